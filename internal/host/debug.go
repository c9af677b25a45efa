package host

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
)

// Supervision tracks a process launched under debug-attach supervision.
// It is attached from a successful StartAsChild until the tracked process
// exits, after which Done is closed.
type Supervision struct {
	pid      uint32
	attached atomic.Bool
	done     chan struct{}
	err      error
}

// Attached reports whether the supervising thread is still running.
func (s *Supervision) Attached() bool {
	return s.attached.Load()
}

// Done is closed when supervision ends.
func (s *Supervision) Done() <-chan struct{} {
	return s.done
}

// Err returns why supervision ended early, or nil when it ended because the
// tracked process exited. It is only meaningful after Done is closed.
func (s *Supervision) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// ProcessID returns the tracked process identifier.
func (s *Supervision) ProcessID() uint32 {
	return s.pid
}

type debugEvent struct {
	Code      uint32
	ProcessID uint32
	ThreadID  uint32
	// Exception is the exception code of an exception event.
	Exception uint32
}

// debugEvents is the thread-affine debug event source of one debugged launch.
type debugEvents interface {
	// Next waits for the next event. ok is false when the wait timed out.
	Next() (ev debugEvent, ok bool, err error)
	// Continue resumes the thread that raised ev with the given continue status.
	Continue(ev debugEvent, status uint32) error
}

// superviseChild creates a debugged process on a dedicated, locked OS
// thread and keeps that thread pumping debug events until the process
// exits. The creation result is handed back before the loop starts.
func superviseChild(p platform, spec launchSpec, log *zap.Logger) (process, *Supervision, error) {
	type launched struct {
		proc process
		err  error
	}

	result := make(chan launched, 1)
	sup := &Supervision{done: make(chan struct{})}

	go func() {
		// The thread exits with this goroutine; it is never handed back to the scheduler.
		runtime.LockOSThread()
		defer close(sup.done)

		proc, events, err := p.LaunchDebugged(spec)
		if err != nil {
			result <- launched{err: err}

			return
		}

		sup.pid = proc.ID()
		sup.attached.Store(true)
		result <- launched{proc: proc}

		log.Debug("debug supervision attached", zap.Uint32("pid", sup.pid))

		sup.err = pumpDebugEvents(sup.pid, events)
		sup.attached.Store(false)

		if sup.err != nil {
			log.Warn("debug supervision ended early", zap.Uint32("pid", sup.pid), zap.Error(sup.err))

			return
		}

		log.Debug("debug supervision detached", zap.Uint32("pid", sup.pid))
	}()

	res := <-result
	if res.err != nil {
		return nil, nil, res.err
	}

	return res.proc, sup, nil
}

// pumpDebugEvents acknowledges every event until the exit event of pid.
// Events for other processes are not ours; they are resumed and skipped.
// Exceptions are passed back to the child's own handlers, except the
// loader's initial breakpoint, which only exists because of the attach.
func pumpDebugEvents(pid uint32, events debugEvents) error {
	loaderBreak := false

	for {
		ev, ok, err := events.Next()
		if err != nil {
			return fmt.Errorf("waiting for debug event: %w", err)
		}

		if !ok {
			continue
		}

		if ev.ProcessID == pid && ev.Code == exitProcessDebugEvent {
			return nil
		}

		status := uint32(dbgContinue)

		if ev.Code == exceptionDebugEvent {
			status = dbgExceptionNotHandled

			if !loaderBreak && ev.ProcessID == pid && isBreakpoint(ev.Exception) {
				loaderBreak = true
				status = dbgContinue
			}
		}

		err = events.Continue(ev, status)
		if err != nil {
			return fmt.Errorf("continuing debug event %d: %w", ev.Code, err)
		}
	}
}

func isBreakpoint(code uint32) bool {
	return code == statusBreakpoint || code == statusWX86Breakpoint
}

// unexported constants.
const (
	dbgContinue            = 0x00010002
	dbgExceptionNotHandled = 0x80010001
	exceptionDebugEvent    = 1
	exitProcessDebugEvent  = 5
	statusBreakpoint       = 0x80000003
	// statusWX86Breakpoint is the loader breakpoint of a 32-bit child on a 64-bit system.
	statusWX86Breakpoint = 0x4000001F
)
