// Package verify checks a distributed sort result against a sequential
// reference sort of the original input.
package verify

import (
	"fmt"

	"github.com/Hughevre/DistributedMergeSort/mergesort"
	"github.com/pkg/errors"
)

// MismatchError reports the first position where the result and the
// reference disagree.
type MismatchError struct {
	Index int
	Got   int64
	Want  int64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("element %d is %d, want %d", e.Index, e.Got, e.Want)
}

// Reference returns a sorted copy of input.
func Reference(input []int64) []int64 {
	ref := make([]int64, len(input))
	copy(ref, input)
	mergesort.LocalSort(ref)
	return ref
}

// Check compares result with reference element by element.
func Check(result, reference []int64) error {
	if len(result) != len(reference) {
		return errors.Errorf("result holds %d elements, want %d", len(result), len(reference))
	}
	for i := range reference {
		if result[i] != reference[i] {
			return &MismatchError{Index: i, Got: result[i], Want: reference[i]}
		}
	}
	return nil
}

// Sorted reports whether xs is in ascending order.
func Sorted(xs []int64) bool {
	for i := 1; i < len(xs); i++ {
		if mergesort.Less(xs[i], xs[i-1]) {
			return false
		}
	}
	return true
}
