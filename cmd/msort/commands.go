package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/Hughevre/DistributedMergeSort/comm"
	"github.com/Hughevre/DistributedMergeSort/harness"
	"github.com/Hughevre/DistributedMergeSort/partition"
	"github.com/convox/logger"
	"github.com/convox/stdcli"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 7400

func cmdSort(c *stdcli.Context) error {
	rank := rankOf(c)

	hosts, err := hostsOf(c)
	if err != nil {
		return err
	}

	cfg, err := configOf(c)
	if err != nil {
		return err
	}

	n, err := comm.NewNetwork(rank, hosts, nil, cfg.Logger)
	if err != nil {
		return err
	}
	defer n.Close()

	_, err = harness.Run(context.Background(), n, cfg)
	return finish(c, err)
}

func cmdLocal(c *stdcli.Context) error {
	cfg, err := configOf(c)
	if err != nil {
		return err
	}

	_, err = harness.RunLocal(context.Background(), procsOf(c), cfg)
	return finish(c, err)
}

func cmdLaunch(c *stdcli.Context) error {
	if _, err := lengthOf(c); err != nil {
		return err
	}

	procs := procsOf(c)
	port := coalesceInt(c.Int("port"), defaultPort)
	job := coalesceString(c.String("job"), fmt.Sprintf("launch-%d", os.Getpid()))

	dir, err := ioutil.TempDir("", "msort")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.RemoveAll(dir)

	hostfile := filepath.Join(dir, "hosts.yml")
	if err := comm.Loopback(job, procs, port).Save(hostfile); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return errors.WithStack(err)
	}

	eg, ctx := errgroup.WithContext(context.Background())
	codes := make([]int, procs)

	for i := 0; i < procs; i++ {
		i := i
		args := []string{"sort", c.Arg(0), "--rank", strconv.Itoa(i), "--hostfile", hostfile,
			"--input", c.String("input"), "--seed", strconv.Itoa(c.Int("seed"))}
		if c.Bool("debug") {
			args = append(args, "--debug")
		}
		if c.Bool("verbose") {
			args = append(args, "--verbose")
		}

		cmd := exec.CommandContext(ctx, self, args...)
		cmd.Stdout = c.Writer().Stdout
		cmd.Stderr = c.Writer().Stderr

		eg.Go(func() error {
			err := cmd.Run()
			if ee, ok := err.(*exec.ExitError); ok {
				codes[i] = ee.ExitCode()
				return errors.Errorf("rank %d exited with %d", i, codes[i])
			}
			return errors.Wrapf(err, "rank %d", i)
		})
	}

	err = eg.Wait()

	// prefer the root's status, then the first rank that failed on its own
	for _, code := range codes {
		if code > 0 {
			return &harness.ExitError{Status: code, Err: err}
		}
	}
	return err
}

// lengthArg enforces the single length argument. sizeOf reports the group
// size when it can be known up front; a size that is not a power of two is
// reported before a wrong argument count. withRank says whether the command
// takes its rank from the rank flag.
func lengthArg(withRank bool, sizeOf func(*stdcli.Context) (int, bool)) stdcli.Validator {
	return func(c *stdcli.Context) error {
		if len(c.Args) == 1 {
			return nil
		}
		rank := 0
		if withRank {
			rank = rankOf(c)
		}
		if size, ok := sizeOf(c); ok {
			if err := harness.CheckSize(c.Writer().Stdout, rank, size); err != nil {
				return err
			}
		}
		fmt.Fprintf(c.Writer().Stdout, "[ERROR, PID = %d] - Incorrect number of program arguments. Only one argument is accepted\n", rank)
		return &harness.ExitError{Status: harness.ExitArgcIncorrect, Err: errors.Errorf("%d arguments given", len(c.Args))}
	}
}

// groupSize is the size of the group a sort rank joins, if its hostfile or
// peer list can be read.
func groupSize(c *stdcli.Context) (int, bool) {
	h, err := hostsOf(c)
	if err != nil {
		return 0, false
	}
	return h.Size(), true
}

func procsSize(c *stdcli.Context) (int, bool) {
	return procsOf(c), true
}

func lengthOf(c *stdcli.Context) (int64, error) {
	n, err := strconv.ParseInt(c.Arg(0), 10, 64)
	if err != nil || n <= 0 {
		fmt.Fprintf(c.Writer().Stdout, "[ERROR, PID = %d] - Length must be a positive integer: %q\n", rankOf(c), c.Arg(0))
		return 0, &harness.ExitError{Status: harness.ExitBadLength, Err: errors.Errorf("invalid length %q", c.Arg(0))}
	}
	return n, nil
}

func configOf(c *stdcli.Context) (harness.Config, error) {
	n, err := lengthOf(c)
	if err != nil {
		return harness.Config{}, err
	}

	gen, err := partition.ByName(c.String("input"))
	if err != nil {
		return harness.Config{}, err
	}

	return harness.Config{
		Length:    n,
		Generator: gen,
		Seed:      int64(c.Int("seed")),
		Stdout:    c.Writer().Stdout,
		Logger:    loggerOf(c),
		Debug:     c.Bool("debug"),
	}, nil
}

func loggerOf(c *stdcli.Context) *logger.Logger {
	if c.Bool("verbose") || os.Getenv("MSORT_VERBOSE") != "" {
		return logger.NewWriter("ns=msort", c.Writer().Stderr)
	}
	return logger.NewWriter("ns=msort", ioutil.Discard)
}

func rankOf(c *stdcli.Context) int {
	if c.Value("rank") != nil {
		return c.Int("rank")
	}
	if r, err := strconv.Atoi(os.Getenv("MSORT_RANK")); err == nil {
		return r
	}
	return 0
}

func hostsOf(c *stdcli.Context) (*comm.Hostfile, error) {
	job := coalesceString(c.String("job"), os.Getenv("MSORT_JOB"), "msort")

	if path := coalesceString(c.String("hostfile"), os.Getenv("MSORT_HOSTFILE")); path != "" {
		h, err := comm.LoadHostfile(path)
		if err != nil {
			return nil, err
		}
		h.Job = coalesceString(h.Job, job)
		return h, nil
	}

	if peers := coalesceString(c.String("peers"), os.Getenv("MSORT_PEERS")); peers != "" {
		h := comm.ParsePeers(job, peers)
		return h, h.Validate()
	}

	return nil, errors.New("no group given, use --hostfile or --peers")
}

// procsOf defaults to the largest power of two not above the CPU count.
func procsOf(c *stdcli.Context) int {
	if p := c.Int("procs"); p != 0 {
		return p
	}
	p := 1
	for p*2 <= runtime.NumCPU() {
		p *= 2
	}
	return p
}

// finish reports transport failures, which the engine does not print for
// errors that carry their own exit code.
func finish(c *stdcli.Context, err error) error {
	if ee, ok := err.(*harness.ExitError); ok && ee.Status == harness.ExitTransport {
		c.Writer().Error(ee.Err)
	}
	return err
}

func coalesceInt(ii ...int) int {
	for _, i := range ii {
		if i != 0 {
			return i
		}
	}
	return 0
}

func coalesceString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
