package comm

import (
	"context"
	"sort"
	"sync"
)

// Event is one point-to-point send observed by a Trace. Seq orders the sends
// of a single source.
type Event struct {
	From, To, Tag, Length int
	Seq                   int
}

// Trace records every send made through the groups it wraps.
type Trace struct {
	mu     sync.Mutex
	seq    map[int]int
	events []Event
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{seq: make(map[int]int)}
}

// Wrap returns g with its sends recorded into t.
func (t *Trace) Wrap(g Group) Group {
	return &traced{Group: g, trace: t}
}

// Events returns the recorded sends ordered by source and sequence, which
// is independent of how the sources were scheduled.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]Event(nil), t.events...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (t *Trace) record(from, to, tag, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{From: from, To: to, Tag: tag, Length: length, Seq: t.seq[from]})
	t.seq[from]++
}

type traced struct {
	Group
	trace *Trace
}

func (t *traced) Send(ctx context.Context, buf []int64, dest, tag int) error {
	if err := t.Group.Send(ctx, buf, dest, tag); err != nil {
		return err
	}
	t.trace.record(t.Rank(), dest, tag, len(buf))
	return nil
}
