package host

import (
	"errors"
	"time"
)

// Credentials identify the account StartAsAnotherUser logs on as.
// Password travels to the logon call in clear text; the native API has no
// other form.
type Credentials struct {
	Domain   string
	User     string
	Password string
	// LogonFlags are passed through unchanged (0, or LOGON_WITH_PROFILE and friends).
	LogonFlags uint32
}

// platform is the native surface a Host drives.
type platform interface {
	NewPipe(dir Direction) (Endpoint, error)
	Launch(spec launchSpec) (process, error)
	LaunchAsUser(spec launchSpec, creds Credentials) (process, error)
	// LaunchDebugged creates the process under debug-only supervision. The
	// returned events must be consumed on the calling OS thread.
	LaunchDebugged(spec launchSpec) (process, debugEvents, error)
	// Open returns a fresh waitable reference by id. It returns
	// errProcessGone when the id no longer resolves.
	Open(pid uint32) (waiter, error)
}

// process is a started child: its handles and identifier.
type process interface {
	ID() uint32
	Handle() uintptr
	ExitCode() (uint32, error)
	// Terminate force-ends the process. It succeeds when the process has
	// already exited.
	Terminate(code uint32) error
	// Close releases the process and thread handles. Only the first call
	// releases anything.
	Close() error
}

type waiter interface {
	// Wait reports whether the process exited within timeout.
	Wait(timeout time.Duration) (bool, error)
	Close() error
}

type launchSpec struct {
	CommandLine string
	WorkDir     string
	// Env is a native environment block, or nil to inherit.
	Env    []uint16
	Stdin  uintptr
	Stdout uintptr
	Stderr uintptr
}

// unexported variables.
var (
	errProcessGone = errors.New("process no longer exists")
)
