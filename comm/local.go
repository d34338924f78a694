package comm

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

type route struct {
	from, to, tag int
}

// Local is a process group whose members are goroutines of the current
// process. Every (source, destination, tag) triple gets its own unbuffered
// channel, so a Send completes only when the matching Recv takes it.
type Local struct {
	size int

	mu     sync.Mutex
	routes map[route]chan []int64
	done   chan struct{}
	once   sync.Once
}

// NewLocal creates an in-process group of the given size.
func NewLocal(size int) *Local {
	return &Local{
		size:   size,
		routes: make(map[route]chan []int64),
		done:   make(chan struct{}),
	}
}

// Size returns how many members this group has.
func (l *Local) Size() int { return l.size }

// Member returns the handle for one rank.
func (l *Local) Member(rank int) Group {
	return &member{group: l, rank: rank}
}

// Run calls fn once per rank, each in its own goroutine, and waits for all
// of them. The first failure cancels the context passed to the others, which
// aborts their blocked transfers.
func (l *Local) Run(ctx context.Context, fn func(ctx context.Context, g Group) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < l.size; i++ {
		m := l.Member(i)
		eg.Go(func() error { return fn(ctx, m) })
	}
	return eg.Wait()
}

// Shutdown closes the group; blocked transfers fail with ErrClosed.
func (l *Local) Shutdown() {
	l.once.Do(func() { close(l.done) })
}

func (l *Local) route(from, to, tag int) chan []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := route{from, to, tag}
	ch, ok := l.routes[r]
	if !ok {
		ch = make(chan []int64)
		l.routes[r] = ch
	}
	return ch
}

type member struct {
	group *Local
	rank  int
}

func (m *member) Rank() int { return m.rank }

func (m *member) Size() int { return m.group.size }

func (m *member) Host() string {
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

func (m *member) Send(ctx context.Context, buf []int64, dest, tag int) error {
	if err := checkPeer(m, dest); err != nil {
		return err
	}
	msg := make([]int64, len(buf))
	copy(msg, buf)
	select {
	case m.group.route(m.rank, dest, tag) <- msg:
		return nil
	case <-m.group.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *member) Recv(ctx context.Context, buf []int64, source, tag int) error {
	if err := checkPeer(m, source); err != nil {
		return err
	}
	select {
	case msg := <-m.group.route(source, m.rank, tag):
		if len(msg) != len(buf) {
			return lengthError(len(msg), len(buf))
		}
		copy(buf, msg)
		return nil
	case <-m.group.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *member) Close() error { return nil }
