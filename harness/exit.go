package harness

import "fmt"

// Process exit codes.
const (
	ExitOK = 0

	// ExitGroupOddSize is COMM_GROUP_ODD_SIZE: the group size is not a
	// power of two.
	ExitGroupOddSize = 2

	// ExitArgcIncorrect is ARGC_INCORRECT_VALUE: the command line did not
	// carry exactly one length argument.
	ExitArgcIncorrect = 3

	ExitVerifyFailed = 4
	ExitBadLength    = 5
	ExitTransport    = 6
)

// ExitError carries the process exit code for a failed run. It satisfies
// stdcli's ExitCoder.
type ExitError struct {
	Status int
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d: %s", e.Status, e.Err)
}

// Code returns the status the process should exit with.
func (e *ExitError) Code() int { return e.Status }

// Cause returns the underlying error.
func (e *ExitError) Cause() error { return e.Err }

func exit(code int, err error) *ExitError {
	return &ExitError{Status: code, Err: err}
}
