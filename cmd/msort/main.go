package main

import (
	"os"

	"github.com/convox/stdcli"
)

var Version = "dev"

var (
	flagDebug    = stdcli.BoolFlag("debug", "", "print the unsorted input and the reference sequence")
	flagHostfile = stdcli.StringFlag("hostfile", "", "yaml file listing every rank's address (MSORT_HOSTFILE)")
	flagInput    = stdcli.StringFlag("input", "i", "input shape: uniform, sorted, reversed, constant")
	flagJob      = stdcli.StringFlag("job", "j", "job name shared by all ranks (MSORT_JOB)")
	flagPeers    = stdcli.StringFlag("peers", "", "comma separated rank addresses (MSORT_PEERS)")
	flagPort     = stdcli.IntFlag("port", "", "first loopback port handed to launched ranks")
	flagProcs    = stdcli.IntFlag("procs", "n", "number of ranks")
	flagRank     = stdcli.IntFlag("rank", "r", "rank of this process (MSORT_RANK)")
	flagSeed     = stdcli.IntFlag("seed", "", "input seed, 0 seeds from the clock")
	flagVerbose  = stdcli.BoolFlag("verbose", "v", "log every step to stderr (MSORT_VERBOSE)")
)

func main() {
	os.Exit(New("msort", Version).Execute(os.Args[1:]))
}

// New returns the command engine.
func New(name, version string) *stdcli.Engine {
	e := stdcli.New(name, version)

	e.Command("sort", "sort as one rank of a networked group", cmdSort, stdcli.CommandOptions{
		Flags:    []stdcli.Flag{flagDebug, flagHostfile, flagInput, flagJob, flagPeers, flagRank, flagSeed, flagVerbose},
		Usage:    "<length>",
		Validate: lengthArg(true, groupSize),
	})

	e.Command("local", "sort with every rank inside this process", cmdLocal, stdcli.CommandOptions{
		Flags:    []stdcli.Flag{flagDebug, flagInput, flagProcs, flagSeed, flagVerbose},
		Usage:    "<length>",
		Validate: lengthArg(false, procsSize),
	})

	e.Command("launch", "start a group of sort processes on this host", cmdLaunch, stdcli.CommandOptions{
		Flags:    []stdcli.Flag{flagDebug, flagInput, flagJob, flagPort, flagProcs, flagSeed, flagVerbose},
		Usage:    "<length>",
		Validate: lengthArg(false, procsSize),
	})

	return e
}
