// Package tracker ties child processes to the lifetime of this process with
// a kill-on-close group. When the group handle closes, every member dies.
// The operating system closes it when this process ends for any reason,
// crashes included.
package tracker

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/toejough/prochost/internal/host"
)

// Exported variables.
var (
	// ErrUnsupported is returned by AddProcess when no group could be created.
	ErrUnsupported = fmt.Errorf("%w: kill-on-close groups need Windows 8 or later", host.ErrUnsupported)
)

// Option configures a Tracker.
type Option func(*Tracker)

// Tracker adds processes to a kill-on-close group. When group creation
// failed, the Tracker still exists but AddProcess fails rather than
// silently doing nothing.
type Tracker struct {
	log    *zap.Logger
	name   string
	group  group
	reason error
}

// Default returns the process-wide tracker, creating its group on first use.
// Its group is never closed explicitly.
func Default() *Tracker {
	return defaultTracker()
}

// New creates a tracker with its own group.
func New(opts ...Option) *Tracker {
	t := &Tracker{log: zap.NewNop()}

	for _, opt := range opts {
		opt(t)
	}

	t.group, t.reason = newGroup(t.name)
	if t.reason != nil {
		t.log.Warn("child-group tracking unavailable", zap.Error(t.reason))
	}

	return t
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithName names the native group object. Names must be unique per session.
func WithName(name string) Option {
	return func(t *Tracker) {
		t.name = name
	}
}

// AddProcess makes the process behind handle a member of the group.
func (t *Tracker) AddProcess(handle uintptr) error {
	if t.group == nil {
		return fmt.Errorf("adding process to child group: %w", t.reason)
	}

	err := t.group.Assign(handle)
	if err != nil {
		return host.NewOSError("assign process to child group", err)
	}

	t.log.Debug("process added to child group", zap.Uintptr("handle", handle))

	return nil
}

// Close closes the group handle, killing every member. Trackers made by New
// may be closed; closing Default ends tracking for the whole process.
func (t *Tracker) Close() error {
	if t.group == nil {
		return nil
	}

	return t.group.Close()
}

// Supported reports whether the tracker has a working group.
func (t *Tracker) Supported() bool {
	return t.group != nil
}

// group is a native kill-on-close process group.
type group interface {
	Assign(handle uintptr) error
	Close() error
}

// unexported variables.
var (
	//nolint:gochecknoglobals // process-wide singleton
	defaultTracker = sync.OnceValue(func() *Tracker {
		return New(WithName(defaultGroupName()))
	})
)
