package comm

import (
	"context"

	"github.com/pkg/errors"
)

// Barrier blocks until every member of g has entered it. Rank 0 collects a
// token from everyone else and then releases them.
func Barrier(ctx context.Context, g Group) error {
	if g.Size() == 1 {
		return nil
	}
	if g.Rank() != 0 {
		if err := g.Send(ctx, nil, 0, tagBarrier); err != nil {
			return errors.Wrap(err, "barrier enter")
		}
		return errors.Wrap(g.Recv(ctx, nil, 0, tagBarrier), "barrier release")
	}
	for i := 1; i < g.Size(); i++ {
		if err := g.Recv(ctx, nil, i, tagBarrier); err != nil {
			return errors.Wrapf(err, "barrier collect from %d", i)
		}
	}
	for i := 1; i < g.Size(); i++ {
		if err := g.Send(ctx, nil, i, tagBarrier); err != nil {
			return errors.Wrapf(err, "barrier release %d", i)
		}
	}
	return nil
}

// Bcast copies root's buf into buf on every other member. All members must
// pass buffers of the same length.
func Bcast(ctx context.Context, g Group, buf []int64, root int) error {
	if g.Rank() != root {
		return errors.Wrap(g.Recv(ctx, buf, root, tagBcast), "bcast")
	}
	for i := 0; i < g.Size(); i++ {
		if i == root {
			continue
		}
		if err := g.Send(ctx, buf, i, tagBcast); err != nil {
			return errors.Wrapf(err, "bcast to %d", i)
		}
	}
	return nil
}

// Scatter splits root's send buffer into Size() equal chunks of len(recv)
// elements and delivers chunk i to rank i. send is only read on root.
func Scatter(ctx context.Context, g Group, send, recv []int64, root int) error {
	chunk := len(recv)
	if g.Rank() != root {
		return errors.Wrap(g.Recv(ctx, recv, root, tagScatter), "scatter")
	}
	if len(send) != chunk*g.Size() {
		return errors.Errorf("scatter: send buffer holds %d elements, want %d", len(send), chunk*g.Size())
	}
	for i := 0; i < g.Size(); i++ {
		part := send[i*chunk : (i+1)*chunk]
		if i == root {
			copy(recv, part)
			continue
		}
		if err := g.Send(ctx, part, i, tagScatter); err != nil {
			return errors.Wrapf(err, "scatter to %d", i)
		}
	}
	return nil
}
