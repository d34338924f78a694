// Package reduce implements the hypercube merge reduction: every rank sorts
// its shard, then in round r the ranks with bit r set ship their shard to
// the rank with that bit cleared, which merges the two runs. After log2(P)
// rounds rank 0 holds the whole sorted sequence.
package reduce

import (
	"context"
	"io/ioutil"

	"github.com/Hughevre/DistributedMergeSort/comm"
	"github.com/Hughevre/DistributedMergeSort/mergesort"
	"github.com/convox/logger"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Tag is the message tag every reduction transfer uses.
const Tag = 0

// State is where a rank stands in the reduction: Active, Sent or Root.
type State interface {
	isState()
}

// Active is a rank still holding a run it has not sent on. Round is the
// round whose merge produced Shard, -1 for the locally sorted shard.
type Active struct {
	Round int
	Shard []int64
}

// Sent is a rank that shipped its shard to Parent in Round and is done.
type Sent struct {
	Round  int
	Parent int
}

// Root is rank 0 after the last round. Shard is the global sorted result.
type Root struct {
	Shard []int64
}

func (Active) isState() {}
func (Sent) isState()   {}
func (Root) isState()   {}

// Hook observes the Active state every merge leaves a rank in. It is called
// from the merging rank's goroutine; st.Shard is only valid until the hook
// returns.
type Hook interface {
	Merged(rank int, st Active)
}

// HookFunc adapts a function to Hook.
type HookFunc func(rank int, st Active)

// Merged calls f.
func (f HookFunc) Merged(rank int, st Active) { f(rank, st) }

// Driver runs the reduction for one rank.
type Driver struct {
	Group comm.Group
	Log   *logger.Logger
	Hook  Hook
}

// Run sorts shard in place and takes part in every round of the reduction.
// shard is borrowed: the driver reads it but never retains it past the first
// merge. Rank 0 ends in Root, every other rank in Sent.
func (d *Driver) Run(ctx context.Context, shard []int64) (State, error) {
	g := d.Group
	rank := g.Rank()
	height, err := Height(g.Size())
	if err != nil {
		return nil, err
	}
	log := d.Log
	if log == nil {
		log = logger.NewWriter("ns=reduce", ioutil.Discard)
	}
	log = log.Namespace("rank=%d", rank)

	mergesort.LocalSort(shard)
	log.At("sort").Logf("length=%s height=%d", humanize.Comma(int64(len(shard))), height)

	// Two ping-pong buffers for merge outputs and one for the peer's run,
	// sized for the last round this rank receives in.
	var bufs [2][]int64
	var peer []int64
	if k := Survives(rank, height); k > 0 {
		full := len(shard) << uint(k)
		bufs[0] = make([]int64, full)
		bufs[1] = make([]int64, full)
		peer = make([]int64, full/2)
	}

	st := Active{Round: -1, Shard: shard}
	for round := 0; round < height; round++ {
		role := Peer(rank, round)
		rlog := log.At("round").Namespace("round=%d role=%s peer=%d", round, role.Kind, role.Peer)

		switch role.Kind {
		case Send:
			if err := g.Send(ctx, st.Shard, role.Peer, Tag); err != nil {
				return nil, errors.Wrapf(err, "rank %d round %d: send to %d", rank, round, role.Peer)
			}
			rlog.Logf("length=%s", humanize.Comma(int64(len(st.Shard))))
			return Sent{Round: round, Parent: role.Peer}, nil
		case Receive:
			in := peer[:len(st.Shard)]
			if err := g.Recv(ctx, in, role.Peer, Tag); err != nil {
				return nil, errors.Wrapf(err, "rank %d round %d: recv from %d", rank, round, role.Peer)
			}
			out := bufs[round%2][:2*len(st.Shard)]
			mergesort.Merge(st.Shard, in, out)
			st = Active{Round: round, Shard: out}
			if d.Hook != nil {
				d.Hook.Merged(rank, st)
			}
			rlog.Logf("length=%s", humanize.Comma(int64(len(out))))
		}
	}

	if rank != 0 {
		return nil, errors.Errorf("rank %d finished %d rounds without sending", rank, height)
	}
	log.At("root").Successf("length=%s", humanize.Comma(int64(len(st.Shard))))
	return Root{Shard: st.Shard}, nil
}
