// Package prochost hosts child processes on Windows: it launches one child
// with its standard streams on anonymous pipes, waits for it, kills it, and
// releases every native resource exactly once. Interactive programs are
// driven through Shell. Descendants can be tied to this process's lifetime
// with a Tracker, or to a hosted child's lifetime with StartAsChild.
package prochost

import (
	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/shell"
	"github.com/toejough/prochost/internal/tracker"
)

// --- Re-exported types ---

// Host launches and supervises one child process.
type Host = host.Host

// Option configures a Host.
type Option = host.Option

// Credentials identify the account StartAsAnotherUser runs the child as.
type Credentials = host.Credentials

// Direction says which way data flows through a pipe.
type Direction = host.Direction

// ReadPipe is the owner's view of a pipe the child writes to.
type ReadPipe = host.ReadPipe

// WritePipe is the owner's view of a pipe the child reads from.
type WritePipe = host.WritePipe

// State is the lifecycle position of a Host.
type State = host.State

// Mode names the way a process was started.
type Mode = host.Mode

// Metrics receives lifecycle counts from a Host.
type Metrics = host.Metrics

// Timings bounds the retries a Host makes while a process appears.
type Timings = host.Timings

// Supervision tracks a child started with StartAsChild.
type Supervision = host.Supervision

// OSError records a failed native call.
type OSError = host.OSError

// Shell drives a hosted line-prompt program.
type Shell = shell.Shell

// ShellOption configures a Shell.
type ShellOption = shell.Option

// ShellOutput is what a program wrote while a command ran.
type ShellOutput = shell.Output

// Tracker ties processes to a kill-on-close group.
type Tracker = tracker.Tracker

// TrackerOption configures a Tracker.
type TrackerOption = tracker.Option

// Re-exported constants.
const (
	In             = host.In
	Out            = host.Out
	KilledExitCode = host.KilledExitCode
	NewLine        = host.NewLine

	ModeNormal = host.ModeNormal
	ModeUser   = host.ModeUser
	ModeChild  = host.ModeChild

	StateUnstarted = host.StateUnstarted
	StateRunning   = host.StateRunning
	StateExited    = host.StateExited
	StateKilled    = host.StateKilled
	StateClosed    = host.StateClosed
)

// Re-exported errors.
var (
	ErrAlreadyStarted     = host.ErrAlreadyStarted
	ErrClosed             = host.ErrClosed
	ErrContract           = host.ErrContract
	ErrInvalidEnvironment = host.ErrInvalidEnvironment
	ErrNotExited          = host.ErrNotExited
	ErrNotStarted         = host.ErrNotStarted
	ErrUnsupported        = host.ErrUnsupported
	ErrWrongDirection     = host.ErrWrongDirection
)

// Re-exported options.
var (
	WithChildTracker = host.WithChildTracker
	WithEncoding     = host.WithEncoding
	WithLogger       = host.WithLogger
	WithMetrics      = host.WithMetrics
	WithTimings      = host.WithTimings

	WithShellEncoding     = shell.WithEncoding
	WithShellExitGrace    = shell.WithExitGrace
	WithShellLogger       = shell.WithLogger
	WithShellPollInterval = shell.WithPollInterval

	WithTrackerLogger = tracker.WithLogger
	WithTrackerName   = tracker.WithName
)

// --- Public API ---

// New allocates the pipes for a host of the executable at path. A blank
// workDir means the caller's current directory.
func New(path, workDir string, opts ...Option) (*Host, error) {
	return host.New(path, workDir, opts...)
}

// NewShell starts h with args and reads its banner up to the first prompt.
func NewShell(h *Host, args, prompt, exitCommand string, opts ...ShellOption) (*Shell, ShellOutput, error) {
	return shell.Start(h, args, prompt, exitCommand, opts...)
}

// NewTracker creates a tracker with its own kill-on-close group.
func NewTracker(opts ...TrackerOption) *Tracker {
	return tracker.New(opts...)
}

// DefaultTracker returns the process-wide tracker.
func DefaultTracker() *Tracker {
	return tracker.Default()
}

// HostIsCompatible reports whether this system can host processes.
func HostIsCompatible() bool {
	return host.HostIsCompatible()
}

// CommandLine renders path and args the way they are passed to the child.
func CommandLine(path, args string) string {
	return host.CommandLine(path, args)
}

// DefaultTimings returns the retry bounds a Host uses unless WithTimings is given.
func DefaultTimings() Timings {
	return host.DefaultTimings()
}
