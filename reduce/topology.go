package reduce

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

// ErrNotPowerOfTwo is returned for group sizes the merge tree cannot be
// built over.
var ErrNotPowerOfTwo = errors.New("group size is not a power of two")

// Kind says what a rank does in one round.
type Kind int

const (
	// Receive means the rank takes its peer's shard and merges.
	Receive Kind = iota
	// Send means the rank ships its shard to its parent and leaves.
	Send
)

func (k Kind) String() string {
	switch k {
	case Receive:
		return "receive"
	case Send:
		return "send"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Role is a rank's part in one round of the reduction.
type Role struct {
	Kind Kind
	Peer int
}

// Peer returns the role of rank id in round r. A rank whose bit r is clear
// receives from id|1<<r; otherwise it sends to id&^(1<<r).
func Peer(id, round int) Role {
	bit := 1 << uint(round)
	if parent := id &^ bit; parent != id {
		return Role{Kind: Send, Peer: parent}
	}
	return Role{Kind: Receive, Peer: id | bit}
}

// IsPowerOfTwo reports whether p is a positive power of two.
func IsPowerOfTwo(p int) bool {
	return p > 0 && p&(p-1) == 0
}

// Height is the number of rounds needed to reduce p shards into one.
func Height(p int) (int, error) {
	if !IsPowerOfTwo(p) {
		return 0, errors.Wrapf(ErrNotPowerOfTwo, "size %d", p)
	}
	return bits.TrailingZeros(uint(p)), nil
}

// Survives is the number of rounds rank id receives in before it sends or
// the tree is complete.
func Survives(id, height int) int {
	if id == 0 {
		return height
	}
	if tz := bits.TrailingZeros(uint(id)); tz < height {
		return tz
	}
	return height
}
