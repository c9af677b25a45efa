package host

import "time"

// Metrics receives lifecycle observations from hosts.
type Metrics interface {
	// ProcessStarted records a successful start in the given mode.
	ProcessStarted(mode Mode)
	// ProcessKilled records a forced termination.
	ProcessKilled()
	// ProcessExited records an observed exit code and the process lifetime.
	ProcessExited(code int, lifetime time.Duration)
	// WaitTimedOut records a WaitForExit that returned before the process exited.
	WaitTimedOut()
	// CloseFailed records a failed release step during Close.
	CloseFailed(stage string)
}

// NoopMetrics returns a Metrics that discards everything.
func NoopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) CloseFailed(string)               {}
func (noopMetrics) ProcessExited(int, time.Duration) {}
func (noopMetrics) ProcessKilled()                   {}
func (noopMetrics) ProcessStarted(Mode)              {}
func (noopMetrics) WaitTimedOut()                    {}
