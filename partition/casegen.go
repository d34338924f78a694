package partition

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Bounds of the default uniform input.
const (
	MinValue = 0
	MaxValue = 100000
)

// Generator produces an input of n elements.
type Generator func(n int64, rnd *rand.Rand) []int64

// Uniform draws values uniformly from [min, max].
func Uniform(min, max int64) Generator {
	return func(n int64, rnd *rand.Rand) []int64 {
		xs := make([]int64, n)
		for i := range xs {
			xs[i] = rnd.Int63n(max+1-min) + min
		}
		return xs
	}
}

// Sorted produces 0, 1, ..., n-1.
func Sorted(n int64, _ *rand.Rand) []int64 {
	xs := make([]int64, n)
	for i := range xs {
		xs[i] = int64(i)
	}
	return xs
}

// Reversed produces n-1, ..., 1, 0.
func Reversed(n int64, _ *rand.Rand) []int64 {
	xs := Sorted(n, nil)
	sort.Slice(xs, func(i, j int) bool { return xs[i] > xs[j] })
	return xs
}

// Constant repeats v.
func Constant(v int64) Generator {
	return func(n int64, _ *rand.Rand) []int64 {
		xs := make([]int64, n)
		for i := range xs {
			xs[i] = v
		}
		return xs
	}
}

// Fixed always returns a copy of values, whatever n is asked for.
func Fixed(values ...int64) Generator {
	return func(int64, *rand.Rand) []int64 {
		return append([]int64(nil), values...)
	}
}

// ByName resolves the generator names accepted on the command line.
func ByName(name string) (Generator, error) {
	switch name {
	case "", "uniform":
		return Uniform(MinValue, MaxValue), nil
	case "sorted":
		return Sorted, nil
	case "reversed":
		return Reversed, nil
	case "constant":
		return Constant(MaxValue / 2), nil
	}
	return nil, errors.Errorf("unknown input %q", name)
}

// AllGenerators returns every named generator, used to exercise the sort
// against differently shaped inputs.
func AllGenerators() map[string]Generator {
	gs := make(map[string]Generator)
	for _, name := range []string{"uniform", "sorted", "reversed", "constant"} {
		g, _ := ByName(name)
		gs[name] = g
	}
	return gs
}
