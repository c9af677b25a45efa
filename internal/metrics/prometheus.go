// Package metrics records host lifecycle events as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/toejough/prochost/internal/host"
)

// Collector implements host.Metrics on a private registry.
type Collector struct {
	started      *prometheus.CounterVec
	killed       prometheus.Counter
	exited       *prometheus.CounterVec
	lifetime     prometheus.Histogram
	waitTimeouts prometheus.Counter
	closeErrors  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector registers the host metrics under namespace, "prochost" when blank.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_started_total",
			Help:      "Total number of processes started, by start mode",
		}, []string{"mode"}),
		killed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_killed_total",
			Help:      "Total number of processes force-terminated",
		}),
		exited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_exited_total",
			Help:      "Total number of observed process exits, by exit code",
		}, []string{"code"}),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_lifetime_seconds",
			Help:      "Time from start to observed exit",
			Buckets:   prometheus.ExponentialBuckets(lifetimeStart, lifetimeFactor, lifetimeCount),
		}),
		waitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Total number of waits that returned before the process exited",
		}),
		closeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "close_errors_total",
			Help:      "Total number of failed release steps during close, by stage",
		}, []string{"stage"}),
	}

	c.registry.MustRegister(c.started, c.killed, c.exited, c.lifetime, c.waitTimeouts, c.closeErrors)

	return c
}

// CloseFailed implements host.Metrics.
func (c *Collector) CloseFailed(stage string) {
	c.closeErrors.WithLabelValues(stage).Inc()
}

// ProcessExited implements host.Metrics.
func (c *Collector) ProcessExited(code int, lifetime time.Duration) {
	c.exited.WithLabelValues(strconv.Itoa(code)).Inc()
	c.lifetime.Observe(lifetime.Seconds())
}

// ProcessKilled implements host.Metrics.
func (c *Collector) ProcessKilled() {
	c.killed.Inc()
}

// ProcessStarted implements host.Metrics.
func (c *Collector) ProcessStarted(mode host.Mode) {
	c.started.WithLabelValues(string(mode)).Inc()
}

// Registry exposes the private registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WaitTimedOut implements host.Metrics.
func (c *Collector) WaitTimedOut() {
	c.waitTimeouts.Inc()
}

var _ host.Metrics = (*Collector)(nil)

// unexported constants.
const (
	defaultNamespace = "prochost"
	lifetimeCount    = 10
	lifetimeFactor   = 4
	lifetimeStart    = 0.01
)
