package host

import (
	"errors"
	"fmt"
	"syscall"
)

// Exported variables.
var (
	// ErrAlreadyStarted is returned when a start variant is called on a host that has already started.
	ErrAlreadyStarted = fmt.Errorf("%w: process already started", ErrContract)
	// ErrClosed is returned when an operation needs a host that has not been closed.
	ErrClosed = fmt.Errorf("%w: host closed", ErrContract)
	// ErrContract is the root of every contract violation. Match it with errors.Is.
	ErrContract = errors.New("contract violation")
	// ErrInvalidEnvironment is returned when an environment mapping cannot be rendered as a block.
	ErrInvalidEnvironment = fmt.Errorf("%w: invalid environment", ErrContract)
	// ErrNotExited is returned when an exit code is requested before the process has exited.
	ErrNotExited = fmt.Errorf("%w: process not exited", ErrContract)
	// ErrNotStarted is returned when an operation needs a started process.
	ErrNotStarted = fmt.Errorf("%w: process not started", ErrContract)
	// ErrUnsupported is returned when the running platform cannot host processes.
	ErrUnsupported = errors.New("process hosting is not supported on this platform")
	// ErrWrongDirection is returned when a pipe operation does not match the pipe's direction.
	ErrWrongDirection = fmt.Errorf("%w: wrong pipe direction", ErrContract)
)

// OSError records a failed native call and the operation that made it.
type OSError struct {
	Op  string
	Err error
}

// Code returns the platform error code, or 0 when the cause is not a system error number.
func (e *OSError) Code() uint32 {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return uint32(errno)
	}

	return 0
}

func (e *OSError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OSError) Unwrap() error {
	return e.Err
}

// NewOSError wraps err as an OSError for op. A nil err yields nil.
func NewOSError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &OSError{Op: op, Err: err}
}

func wrongDirection(op string, dir Direction) error {
	return fmt.Errorf("%w: %s on %s pipe", ErrWrongDirection, op, dir)
}
