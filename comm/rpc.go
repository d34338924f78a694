package comm

import (
	"sync"

	"github.com/pkg/errors"
)

// What follows are RPC types and methods.
// Field names must start with capital letters, otherwise RPC will break.

// DeliverArgs is one point-to-point message. The element count travels as
// the slice length, so it is 64 bits wide on the wire.
type DeliverArgs struct {
	Job    string
	Source int
	Tag    int
	Data   []int64
}

type slot struct {
	source, tag int
}

// Mailbox is the RPC endpoint every networked rank serves. Deliver parks the
// caller until the local rank posts a matching Recv.
type Mailbox struct {
	job string

	mu    sync.Mutex
	slots map[slot]chan []int64
	done  chan struct{}
	once  sync.Once
}

func newMailbox(job string) *Mailbox {
	return &Mailbox{
		job:   job,
		slots: make(map[slot]chan []int64),
		done:  make(chan struct{}),
	}
}

// Deliver is called by a remote Send.
func (m *Mailbox) Deliver(args *DeliverArgs, _ *struct{}) error {
	if args.Job != m.job {
		return errors.Errorf("message for job %q delivered to job %q", args.Job, m.job)
	}
	select {
	case m.slot(args.Source, args.Tag) <- args.Data:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// Hold is called once by every rank that dials this one. It returns when this
// rank closes its mailbox, so the caller sees an orderly leave as a reply and
// a dead process as a broken connection.
func (m *Mailbox) Hold(job string, _ *struct{}) error {
	if job != m.job {
		return errors.Errorf("hold for job %q sent to job %q", job, m.job)
	}
	<-m.done
	return nil
}

func (m *Mailbox) slot(source, tag int) chan []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := slot{source, tag}
	ch, ok := m.slots[s]
	if !ok {
		ch = make(chan []int64)
		m.slots[s] = ch
	}
	return ch
}

func (m *Mailbox) close() {
	m.once.Do(func() { close(m.done) })
}
