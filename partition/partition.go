// Package partition hands the input out to the group: rank 0 broadcasts the
// global length and scatters one equal shard to every rank.
package partition

import (
	"context"

	"github.com/Hughevre/DistributedMergeSort/comm"
	"github.com/pkg/errors"
)

// Root is the rank that owns the input and, later, the result.
const Root = 0

// ErrLength is returned on every rank when the global length is not a
// positive multiple of the group size.
var ErrLength = errors.New("length must be a positive multiple of the group size")

// Distribute broadcasts len(input) from the root and scatters input in
// Size() equal shards. input is only read on the root. Every rank returns
// its own shard and the global length.
//
// The root validates the length before broadcasting it, so it reports
// ErrLength no matter how the other ranks fare once they reject the same
// length.
func Distribute(ctx context.Context, g comm.Group, input []int64) ([]int64, int64, error) {
	length := []int64{0}
	var invalid error
	if g.Rank() == Root {
		length[0] = int64(len(input))
		invalid = Validate(length[0], g.Size())
	}
	if err := comm.Bcast(ctx, g, length, Root); err != nil {
		if invalid != nil {
			return nil, length[0], invalid
		}
		return nil, 0, errors.Wrap(err, "broadcast length")
	}

	n := length[0]
	if err := Validate(n, g.Size()); err != nil {
		return nil, n, err
	}

	shard := make([]int64, n/int64(g.Size()))
	var send []int64
	if g.Rank() == Root {
		send = input
	}
	if err := comm.Scatter(ctx, g, send, shard, Root); err != nil {
		return nil, n, errors.Wrap(err, "scatter")
	}
	return shard, n, nil
}

// Validate checks a global length against a group size.
func Validate(n int64, size int) error {
	if n <= 0 || n%int64(size) != 0 {
		return errors.Wrapf(ErrLength, "length %d over %d ranks", n, size)
	}
	return nil
}
