// Package harness runs one rank of a distributed sort job end to end:
// input generation on rank 0, partitioning, the barrier-fenced reduction and
// the verification of the result.
package harness

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/Hughevre/DistributedMergeSort/comm"
	"github.com/Hughevre/DistributedMergeSort/partition"
	"github.com/Hughevre/DistributedMergeSort/reduce"
	"github.com/Hughevre/DistributedMergeSort/verify"
	"github.com/convox/logger"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Config describes one sort job.
type Config struct {
	// Length is the number of elements rank 0 generates.
	Length int64
	// Generator produces the input on rank 0. Defaults to uniform values
	// in [0, 100000].
	Generator partition.Generator
	// Seed seeds the generator; zero seeds from the wall clock.
	Seed int64
	// Stdout receives the rank 0 report lines.
	Stdout io.Writer
	Logger *logger.Logger
	Hook   reduce.Hook
	// Debug prints the unsorted input and the reference sequence.
	Debug bool
}

// Report is what a rank learned from a finished job. Result and Verified
// are only set on rank 0.
type Report struct {
	Rank     int
	Size     int
	Host     string
	Length   int64
	Elapsed  time.Duration
	Result   []int64
	Verified bool
}

// Run executes the job as member g. Configuration and verification failures
// come back as *ExitError.
func Run(ctx context.Context, g comm.Group, cfg Config) (*Report, error) {
	out := cfg.Stdout
	if out == nil {
		out = ioutil.Discard
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewWriter("ns=msort", ioutil.Discard)
	}
	rank := g.Rank()
	log = log.Namespace("rank=%d", rank)

	report := &Report{Rank: rank, Size: g.Size(), Host: g.Host()}
	log.At("start").Logf("size=%d host=%s", report.Size, report.Host)

	if err := CheckSize(out, rank, g.Size()); err != nil {
		return nil, err
	}

	var input []int64
	if rank == partition.Root {
		input = generate(cfg)
		if cfg.Debug || debugBuild {
			printNumbers(out, input)
		}
	}

	shard, n, err := partition.Distribute(ctx, g, input)
	if errors.Cause(err) == partition.ErrLength {
		fmt.Fprintf(out, "[ERROR, PID = %d] - %s\n", rank, err)
		return nil, exit(ExitBadLength, err)
	}
	if err != nil {
		return nil, exit(ExitTransport, log.Error(err))
	}
	report.Length = n
	log.At("distribute").Logf("length=%s shard=%s", humanize.Comma(n), humanize.Bytes(uint64(len(shard))*8))

	if err := comm.Barrier(ctx, g); err != nil {
		return nil, exit(ExitTransport, log.Error(err))
	}
	start := time.Now()

	d := &reduce.Driver{Group: g, Log: log, Hook: cfg.Hook}
	state, err := d.Run(ctx, shard)
	if err != nil {
		return nil, exit(ExitTransport, log.Error(err))
	}

	if err := comm.Barrier(ctx, g); err != nil {
		return nil, exit(ExitTransport, log.Error(err))
	}
	report.Elapsed = time.Since(start)

	root, ok := state.(reduce.Root)
	if !ok {
		log.At("done").Logf("state=%T elapsed=%s", state, report.Elapsed)
		return report, nil
	}
	report.Result = root.Shard

	fmt.Fprintf(out, "Sorting the array of size %d took %f in seconds\n", n, report.Elapsed.Seconds())

	reference := verify.Reference(input)
	checkErr := verify.Check(report.Result, reference)
	if checkErr != nil {
		fmt.Fprintf(out, "---[FAILURE]---\nCheck failed: %s\n", checkErr)
	} else {
		report.Verified = true
		fmt.Fprintf(out, "---[SUCCESS]---\nCheck ended successfully\n")
	}
	if cfg.Debug || debugBuild {
		printNumbers(out, reference)
	}
	if checkErr != nil {
		return report, exit(ExitVerifyFailed, log.Error(checkErr))
	}

	log.At("done").Successf("length=%s elapsed=%s", humanize.Comma(n), report.Elapsed)
	return report, nil
}

// CheckSize prints rank's diagnostic and returns an ExitGroupOddSize error
// when size is not a power of two.
func CheckSize(out io.Writer, rank, size int) error {
	if reduce.IsPowerOfTwo(size) {
		return nil
	}
	fmt.Fprintf(out, "[ERROR, PID = %d] - Communication group size is not a power of two: %d\n", rank, size)
	return exit(ExitGroupOddSize, errors.Wrapf(reduce.ErrNotPowerOfTwo, "size %d", size))
}

// RunLocal runs every rank of a size-member job as goroutines of this
// process and returns rank 0's report.
func RunLocal(ctx context.Context, size int, cfg Config) (*Report, error) {
	local := comm.NewLocal(size)
	defer local.Shutdown()

	var report *Report
	err := local.Run(ctx, func(ctx context.Context, g comm.Group) error {
		c := cfg
		if g.Rank() != partition.Root {
			c.Stdout = nil
		}
		r, err := Run(ctx, g, c)
		if g.Rank() == partition.Root {
			report = r
		}
		return err
	})
	return report, err
}

func generate(cfg Config) []int64 {
	if cfg.Length <= 0 {
		return nil
	}
	gen := cfg.Generator
	if gen == nil {
		gen = partition.Uniform(partition.MinValue, partition.MaxValue)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return gen(cfg.Length, rand.New(rand.NewSource(seed)))
}

func printNumbers(w io.Writer, xs []int64) {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatInt(x, 10)
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}
