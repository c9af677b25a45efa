package host

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// KilledExitCode is the exit code Kill gives a process.
const KilledExitCode = 127

// Mode names the way a process was started.
type Mode string

// Mode values.
const (
	ModeNormal Mode = "normal"
	ModeUser   Mode = "user"
	ModeChild  Mode = "child"
)

// State is the lifecycle position of a Host.
type State int32

// State values.
const (
	// StateUnstarted means no process exists yet.
	StateUnstarted State = iota
	// StateRunning means a start variant succeeded and no exit has been observed.
	StateRunning
	// StateExited means the process was observed to have exited on its own.
	StateExited
	// StateKilled means Kill terminated the process.
	StateKilled
	// StateClosed means Close ran. It is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Host launches one child process with its standard streams wired to
// pipes, and supervises it.
//
// Close kills the child if it is still running and releases every native
// resource exactly once. If a Host becomes unreachable without Close, the
// same release runs at garbage collection and its errors are logged.
type Host struct {
	path    string
	workDir string
	cfg     config
	res     *resources
	cleanup runtime.Cleanup

	mu          sync.Mutex
	supervision *Supervision
	startedAt   time.Time

	state    atomic.Int32
	pid      atomic.Uint32
	lastExit atomic.Int64
	exitSeen atomic.Bool
}

// New allocates the three pipes for a host of the executable at path.
// A blank workDir means the caller's current directory.
func New(path, workDir string, opts ...Option) (*Host, error) {
	cfg := newConfig(opts)

	res, err := newResources(cfg.platform)
	if err != nil {
		return nil, err
	}

	h := &Host{
		path:    path,
		workDir: workDir,
		cfg:     cfg,
		res:     res,
	}

	log, metrics := cfg.log, cfg.metrics
	h.cleanup = runtime.AddCleanup(h, func(r *resources) {
		err := r.release(metrics, nil)
		if err != nil {
			log.Warn("releasing abandoned process host", zap.Error(err))
		}
	}, res)

	return h, nil
}

// Close kills the process if it is running, then closes the three pipes and
// the process handles. Every step runs even if an earlier one fails; the
// failures are combined. Calling Close again is a no-op.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state.Store(int32(StateClosed))
	h.cleanup.Stop()

	err := h.res.release(h.cfg.metrics, h.settleExit)
	if err != nil {
		h.cfg.log.Warn("closing process host", zap.Uint32("pid", h.pid.Load()), zap.Error(err))
	}

	return err
}

// Encoding returns the encoding the host was configured with.
func (h *Host) Encoding() encoding.Encoding {
	return h.cfg.encoding
}

// ExitCode returns the exit code of a process that has exited. It fails
// with ErrNotExited while the process runs; callers wait first. After Close
// it returns the code the process ended with, or ErrNotExited when Close
// could not establish one.
func (h *Host) ExitCode() (int, error) {
	switch h.State() {
	case StateUnstarted:
		return 0, ErrNotStarted
	case StateClosed:
		if h.pid.Load() == 0 {
			return 0, ErrNotStarted
		}

		if !h.exitSeen.Load() {
			return 0, ErrNotExited
		}

		return int(h.lastExit.Load()), nil
	case StateRunning, StateExited, StateKilled:
	}

	exited, code, err := h.WaitForExitCode(0)
	if err != nil {
		return 0, err
	}

	if !exited {
		return 0, ErrNotExited
	}

	return code, nil
}

// IsAlive reports whether the process is running. It is false before start
// and after Close.
func (h *Host) IsAlive() bool {
	if s := h.State(); s == StateUnstarted || s == StateClosed {
		return false
	}

	exited, err := h.WaitForExit(aliveProbe)
	if err != nil {
		h.cfg.log.Warn("probing process liveness", zap.Uint32("pid", h.pid.Load()), zap.Error(err))

		return false
	}

	return !exited
}

// Kill force-terminates the process with exit code 127. Killing a process
// that has already exited succeeds.
func (h *Host) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.State() {
	case StateUnstarted:
		return ErrNotStarted
	case StateClosed:
		return ErrClosed
	case StateRunning, StateExited, StateKilled:
	}

	slot := h.res.proc.Load()
	if slot == nil {
		return ErrClosed
	}

	err := slot.p.Terminate(KilledExitCode)
	if err != nil {
		return err
	}

	if h.state.CompareAndSwap(int32(StateRunning), int32(StateKilled)) {
		h.cfg.metrics.ProcessKilled()
		h.cfg.log.Info("process killed", zap.Uint32("pid", slot.p.ID()))
	}

	return nil
}

// ProcessID returns the native process identifier, or 0 before start.
func (h *Host) ProcessID() uint32 {
	return h.pid.Load()
}

// Start launches the process. args is appended verbatim to the quoted
// executable path. A nil or empty env inherits the caller's environment.
func (h *Host) Start(args string, env map[string]string) error {
	block, err := EnvironmentBlock(env)
	if err != nil {
		return err
	}

	return h.start(ModeNormal, args, block, h.cfg.platform.Launch)
}

// StartAsAnotherUser launches the process under creds instead of the
// caller's security context. The child inherits no custom environment.
func (h *Host) StartAsAnotherUser(creds Credentials, args string) error {
	return h.start(ModeUser, args, nil, func(spec launchSpec) (process, error) {
		return h.cfg.platform.LaunchAsUser(spec, creds)
	})
}

// StartAsChild launches the process under debug-attach supervision on a
// dedicated thread, so that the process is tied to the lifetime of this
// one. It returns once the child is seen running or the start polls run out.
func (h *Host) StartAsChild(args string, env map[string]string) error {
	block, err := EnvironmentBlock(env)
	if err != nil {
		return err
	}

	var sup *Supervision

	err = h.start(ModeChild, args, block, func(spec launchSpec) (process, error) {
		proc, s, err := superviseChild(h.cfg.platform, spec, h.cfg.log)
		sup = s

		return proc, err
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.supervision = sup
	h.mu.Unlock()

	for range h.cfg.timings.ChildStartPolls {
		if h.IsAlive() {
			break
		}

		time.Sleep(h.cfg.timings.ChildStartPollDelay)
	}

	return nil
}

// State returns the host's lifecycle state.
func (h *Host) State() State {
	return State(h.state.Load())
}

// Stderr is the pipe carrying the child's standard error.
func (h *Host) Stderr() *ReadPipe {
	return h.res.stderr
}

// Stdin is the pipe feeding the child's standard input.
func (h *Host) Stdin() *WritePipe {
	return h.res.stdin
}

// Stdout is the pipe carrying the child's standard output.
func (h *Host) Stdout() *ReadPipe {
	return h.res.stdout
}

// Supervision returns the debug-attach supervision of a StartAsChild host,
// or nil for any other start.
func (h *Host) Supervision() *Supervision {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.supervision
}

// WaitForExit waits up to timeout for the process to exit. It is true when
// the process exited, and vacuously true before start or after Close. It is
// false when the timeout expired. A failed wait is an error, not false.
func (h *Host) WaitForExit(timeout time.Duration) (bool, error) {
	exited, _, err := h.WaitForExitCode(timeout)

	return exited, err
}

// WaitForExitCode is WaitForExit that also returns the exit code, or the
// last observed code when the process has not exited.
func (h *Host) WaitForExitCode(timeout time.Duration) (exited bool, code int, err error) {
	slot := h.res.proc.Load()
	if slot == nil {
		return true, int(h.lastExit.Load()), nil
	}

	ref, err := h.openProcess(slot.p.ID())
	if errors.Is(err, errProcessGone) {
		return h.observeExit(slot.p)
	}

	if err != nil {
		return false, int(h.lastExit.Load()), err
	}

	defer multierr.AppendInvoke(&err, multierr.Close(ref))

	done, err := ref.Wait(timeout)
	if err != nil {
		return false, int(h.lastExit.Load()), err
	}

	if !done {
		h.cfg.metrics.WaitTimedOut()
		h.cfg.log.Debug("wait for exit timed out", zap.Uint32("pid", slot.p.ID()), zap.Duration("timeout", timeout))

		return false, int(h.lastExit.Load()), nil
	}

	return h.observeExit(slot.p)
}

// observeExit records the exit code of a process known to have exited.
func (h *Host) observeExit(p process) (bool, int, error) {
	raw, err := p.ExitCode()
	if err != nil {
		return true, int(h.lastExit.Load()), err
	}

	code := int(int32(raw))
	h.recordExit(p.ID(), code)

	return true, code, nil
}

// openProcess retries opening a waitable reference, since the open can race
// with process creation.
func (h *Host) openProcess(pid uint32) (waiter, error) {
	var err error

	for attempt := range max(h.cfg.timings.OpenRetries, 1) {
		if attempt > 0 {
			time.Sleep(h.cfg.timings.OpenRetryDelay)
		}

		var ref waiter

		ref, err = h.cfg.platform.Open(pid)
		if err == nil {
			return ref, nil
		}
	}

	return nil, err
}

// recordExit stores the final code. Only the first exit is reported.
func (h *Host) recordExit(pid uint32, code int) {
	h.lastExit.Store(int64(code))
	h.state.CompareAndSwap(int32(StateRunning), int32(StateExited))

	if h.exitSeen.CompareAndSwap(false, true) {
		h.cfg.metrics.ProcessExited(code, time.Since(h.startedAt))
		h.cfg.log.Info("process exited", zap.Uint32("pid", pid), zap.Int("code", code))
	}
}

// settleExit runs during Close, after the kill and before the handles go.
// A process still winding down after a successful kill ends with
// KilledExitCode.
func (h *Host) settleExit(p process, killErr error) {
	if h.exitSeen.Load() {
		return
	}

	raw, err := p.ExitCode()
	if err == nil && raw != stillActive {
		h.recordExit(p.ID(), int(int32(raw)))

		return
	}

	if killErr == nil {
		h.recordExit(p.ID(), KilledExitCode)
	}
}

func (h *Host) start(mode Mode, args string, env []uint16, launch func(launchSpec) (process, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.State() {
	case StateUnstarted:
	case StateClosed:
		return ErrClosed
	case StateRunning, StateExited, StateKilled:
		return ErrAlreadyStarted
	}

	spec := launchSpec{
		CommandLine: CommandLine(h.path, args),
		WorkDir:     h.workDir,
		Env:         env,
		Stdin:       h.res.stdin.ChildHandle(),
		Stdout:      h.res.stdout.ChildHandle(),
		Stderr:      h.res.stderr.ChildHandle(),
	}

	proc, err := launch(spec)
	if err != nil {
		return err
	}

	if h.cfg.tracker != nil {
		err = h.cfg.tracker.AddProcess(proc.Handle())
		if err != nil {
			return multierr.Combine(
				fmt.Errorf("tracking child process: %w", err),
				proc.Terminate(KilledExitCode),
				proc.Close(),
			)
		}
	}

	h.res.proc.Store(&processSlot{p: proc})
	h.pid.Store(proc.ID())
	h.startedAt = time.Now()
	h.state.Store(int32(StateRunning))

	h.cfg.metrics.ProcessStarted(mode)
	h.cfg.log.Info("process started",
		zap.String("mode", string(mode)),
		zap.Uint32("pid", proc.ID()),
		zap.String("command", spec.CommandLine),
	)

	return nil
}

type processSlot struct {
	p process
}

// resources is everything a Host must release. It never points back at
// the Host, so it can outlive it in a cleanup.
type resources struct {
	stdin  *WritePipe
	stdout *ReadPipe
	stderr *ReadPipe
	proc   atomic.Pointer[processSlot]
}

func newResources(p platform) (*resources, error) {
	in, err := p.NewPipe(In)
	if err != nil {
		return nil, err
	}

	out, err := p.NewPipe(Out)
	if err != nil {
		return nil, multierr.Append(err, in.Close())
	}

	errPipe, err := p.NewPipe(Out)
	if err != nil {
		return nil, multierr.Combine(err, out.Close(), in.Close())
	}

	return &resources{
		stdin:  NewWritePipe(in),
		stdout: NewReadPipe(out),
		stderr: NewReadPipe(errPipe),
	}, nil
}

// release kills and releases everything. settle, when set, sees the
// process after the kill while its handles are still open.
func (r *resources) release(m Metrics, settle func(p process, killErr error)) error {
	var err error

	slot := r.proc.Swap(nil)
	if slot != nil {
		killErr := slot.p.Terminate(KilledExitCode)
		if settle != nil {
			settle(slot.p, killErr)
		}

		err = multierr.Append(err, failedStage(m, "kill", killErr))
	}

	err = multierr.Append(err, failedStage(m, "stderr", r.stderr.Close()))
	err = multierr.Append(err, failedStage(m, "stdout", r.stdout.Close()))
	err = multierr.Append(err, failedStage(m, "stdin", r.stdin.Close()))

	if slot != nil {
		err = multierr.Append(err, failedStage(m, "handles", slot.p.Close()))
	}

	return err
}

func failedStage(m Metrics, stage string, err error) error {
	if err == nil {
		return nil
	}

	m.CloseFailed(stage)

	return fmt.Errorf("%s: %w", stage, err)
}

// unexported constants.
const (
	aliveProbe = time.Millisecond
	// stillActive is the exit code reported for a running process.
	stillActive = 259
)
