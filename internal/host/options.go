package host

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// ChildTracker adopts started processes into a kill-on-close group.
type ChildTracker interface {
	AddProcess(handle uintptr) error
}

// Option configures a Host.
type Option func(*config)

// Timings bounds the polling a Host does around process creation.
type Timings struct {
	// OpenRetries is how many times WaitForExit tries to open the process by id.
	OpenRetries int
	// OpenRetryDelay is the pause between those attempts.
	OpenRetryDelay time.Duration
	// ChildStartPolls is how many times StartAsChild checks that the child is alive.
	ChildStartPolls int
	// ChildStartPollDelay is the pause between those checks.
	ChildStartPollDelay time.Duration
}

// DefaultTimings returns ten 100ms retries for both opening and child start.
func DefaultTimings() Timings {
	return Timings{
		OpenRetries:         defaultRetries,
		OpenRetryDelay:      defaultRetryDelay,
		ChildStartPolls:     defaultRetries,
		ChildStartPollDelay: defaultRetryDelay,
	}
}

// WithChildTracker adds every process the host starts to tracker.
func WithChildTracker(tracker ChildTracker) Option {
	return func(c *config) {
		c.tracker = tracker
	}
}

// WithEncoding sets the encoding the host's text helpers default to.
func WithEncoding(enc encoding.Encoding) Option {
	return func(c *config) {
		c.encoding = enc
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTimings overrides the creation polling bounds.
func WithTimings(t Timings) Option {
	return func(c *config) {
		c.timings = t
	}
}

type config struct {
	encoding encoding.Encoding
	log      *zap.Logger
	metrics  Metrics
	platform platform
	timings  Timings
	tracker  ChildTracker
}

func newConfig(opts []Option) config {
	c := config{
		log:      zap.NewNop(),
		metrics:  NoopMetrics(),
		platform: nativePlatform(),
		timings:  DefaultTimings(),
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.encoding == nil {
		c.encoding = DefaultEncoding()
	}

	return c
}

func withPlatform(p platform) Option {
	return func(c *config) {
		c.platform = p
	}
}

// unexported constants.
const (
	defaultRetries    = 10
	defaultRetryDelay = 100 * time.Millisecond
)
