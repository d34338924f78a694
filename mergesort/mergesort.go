// Package mergesort holds the per-process sorting primitives: the element
// order, the local shard sort and the two-way merge used by every round of
// the distributed reduction.
package mergesort

import "sort"

// Less is the total order on elements.
func Less(a, b int64) bool { return a < b }

// LocalSort sorts a shard in place. Stability is not guaranteed.
func LocalSort(shard []int64) {
	sort.Slice(shard, func(i, j int) bool { return Less(shard[i], shard[j]) })
}

// Merge merges two sorted runs of equal length into out, which must have
// room for both and must not alias either input. Ties are taken from a.
func Merge(a, b, out []int64) {
	if len(a) != len(b) || len(out) != len(a)+len(b) {
		panic("mergesort: merge of unequal runs or short output")
	}
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if !Less(b[j], a[i]) {
			out[k] = a[i]
			i++
		} else {
			out[k] = b[j]
			j++
		}
		k++
	}
	k += copy(out[k:], a[i:])
	copy(out[k:], b[j:])
}

// MergeSort performs a sequential merge sort of src in place.
func MergeSort(src []int64) {
	if len(src) <= 1 {
		return
	}
	buf := make([]int64, len(src))
	mergeSort(src, buf)
}

func mergeSort(src, buf []int64) {
	if len(src) <= 1 {
		return
	}
	mid := len(src) / 2
	mergeSort(src[:mid], buf[:mid])
	mergeSort(src[mid:], buf[mid:])
	left, right := src[:mid], src[mid:]
	i, j, k := 0, 0, 0
	for i < len(left) && j < len(right) {
		if !Less(right[j], left[i]) {
			buf[k] = left[i]
			i++
		} else {
			buf[k] = right[j]
			j++
		}
		k++
	}
	k += copy(buf[k:], left[i:])
	copy(buf[k:], right[j:])
	copy(src, buf[:len(src)])
}
