package mergesort

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/pingcap/check"
)

var _ = check.Suite(&sortTestSuite{})

func TestT(t *testing.T) {
	check.TestingT(t)
}

func prepare(src []int64) {
	rnd := rand.New(rand.NewSource(time.Now().Unix()))
	for i := range src {
		src[i] = rnd.Int63n(100001)
	}
}

type sortTestSuite struct{}

func (s *sortTestSuite) TestMergeSort(c *check.C) {
	lens := []int{1, 3, 5, 7, 11, 13, 17, 19, 23, 29, 1024, 1 << 13, 1 << 17}

	for i := range lens {
		src := make([]int64, lens[i])
		expect := make([]int64, lens[i])
		prepare(src)
		copy(expect, src)
		MergeSort(src)
		sort.Slice(expect, func(i, j int) bool { return expect[i] < expect[j] })
		for i := 0; i < len(src); i++ {
			c.Assert(src[i], check.Equals, expect[i])
		}
	}
}

func (s *sortTestSuite) TestLocalSort(c *check.C) {
	shard := []int64{5, 2, 8, 1, 9, 3, 7, 4}
	LocalSort(shard)
	c.Assert(shard, check.DeepEquals, []int64{1, 2, 3, 4, 5, 7, 8, 9})

	once := append([]int64(nil), shard...)
	LocalSort(shard)
	c.Assert(shard, check.DeepEquals, once)

	LocalSort(nil)
}

func (s *sortTestSuite) TestMerge(c *check.C) {
	for _, t := range []struct {
		a, b   []int64
		expect []int64
	}{
		{[]int64{7}, []int64{3}, []int64{3, 7}},
		{[]int64{1, 3}, []int64{1, 4}, []int64{1, 1, 3, 4}},
		{[]int64{2, 5}, []int64{1, 8}, []int64{1, 2, 5, 8}},
		{[]int64{1, 2, 5, 8}, []int64{3, 4, 7, 9}, []int64{1, 2, 3, 4, 5, 7, 8, 9}},
		// a runs out first
		{[]int64{1, 2, 3, 4}, []int64{5, 6, 7, 8}, []int64{1, 2, 3, 4, 5, 6, 7, 8}},
		// b runs out first
		{[]int64{5, 6, 7, 8}, []int64{1, 2, 3, 4}, []int64{1, 2, 3, 4, 5, 6, 7, 8}},
		// ties
		{[]int64{5, 5}, []int64{5, 5}, []int64{5, 5, 5, 5}},
		{[]int64{-3, 0}, []int64{-3, 0}, []int64{-3, -3, 0, 0}},
		{nil, nil, []int64{}},
	} {
		out := make([]int64, len(t.a)+len(t.b))
		Merge(t.a, t.b, out)
		c.Assert(out, check.DeepEquals, t.expect)
	}
}

func (s *sortTestSuite) TestMergeLarge(c *check.C) {
	a := make([]int64, 1<<12)
	b := make([]int64, 1<<12)
	prepare(a)
	prepare(b)
	LocalSort(a)
	LocalSort(b)

	out := make([]int64, len(a)+len(b))
	Merge(a, b, out)

	expect := append(append([]int64(nil), a...), b...)
	LocalSort(expect)
	c.Assert(out, check.DeepEquals, expect)
}

func (s *sortTestSuite) TestMergeRejectsUnequalRuns(c *check.C) {
	c.Assert(func() { Merge([]int64{1}, []int64{1, 2}, make([]int64, 3)) }, check.PanicMatches, "mergesort: .*")
	c.Assert(func() { Merge([]int64{1}, []int64{2}, make([]int64, 1)) }, check.PanicMatches, "mergesort: .*")
}
