// Package comm is the message passing substrate shared by every rank of a
// sort job. It offers blocking point-to-point transfers of int64 slices and
// the handful of collectives (barrier, broadcast, scatter) the sort needs.
//
// All calls are blocking. A Send returns once the destination has taken the
// message; a Recv returns once a message from the given source and tag has
// been copied into the supplied buffer.
//
// Two implementations exist: Local runs every rank as a goroutine inside one
// process, Network runs one rank per process and talks net/rpc over TCP.
package comm

import (
	"context"

	"github.com/pkg/errors"
)

// Negative tags are reserved for collectives.
const (
	tagBarrier = -1 - iota
	tagBcast
	tagScatter
)

var (
	// ErrClosed is returned by operations on a group that has been closed.
	ErrClosed = errors.New("comm: group closed")

	// ErrLength is returned by Recv when the incoming message does not fit
	// the receive buffer exactly.
	ErrLength = errors.New("comm: message length mismatch")

	// ErrPeerGone is returned by a networked Recv whose source rank closed
	// or lost its connection before sending.
	ErrPeerGone = errors.New("comm: peer left the group")
)

// Group is one member's handle on a process group.
type Group interface {
	// Rank is this member's identity, 0 <= Rank() < Size().
	Rank() int
	// Size is the number of members in the group.
	Size() int
	// Host names the machine this member runs on.
	Host() string
	// Send transmits buf to dest under tag and blocks until it is taken.
	Send(ctx context.Context, buf []int64, dest, tag int) error
	// Recv blocks until a message from source under tag arrives and copies
	// it into buf. The message length must equal len(buf).
	Recv(ctx context.Context, buf []int64, source, tag int) error
	// Close releases the member's resources.
	Close() error
}

func checkPeer(g Group, peer int) error {
	if peer < 0 || peer >= g.Size() {
		return errors.Errorf("comm: rank %d out of range [0, %d)", peer, g.Size())
	}
	if peer == g.Rank() {
		return errors.Errorf("comm: rank %d cannot address itself", peer)
	}
	return nil
}

func lengthError(got, want int) error {
	return errors.Wrapf(ErrLength, "got %d elements, want %d", got, want)
}
