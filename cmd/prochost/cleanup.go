package main

import (
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// interruptCleanup closes the hosts it tracks when prochost is interrupted,
// so their children die with it.
type interruptCleanup struct {
	mu        sync.Mutex
	installed bool
	open      map[io.Closer]struct{}
	log       *zap.Logger
	exit      func(code int)
}

func newInterruptCleanup(log *zap.Logger, exit func(code int)) *interruptCleanup {
	return &interruptCleanup{
		open: make(map[io.Closer]struct{}),
		log:  log,
		exit: exit,
	}
}

// closeAll closes every tracked host.
func (c *interruptCleanup) closeAll() error {
	c.mu.Lock()

	open := make([]io.Closer, 0, len(c.open))
	for closer := range c.open {
		open = append(open, closer)
	}

	clear(c.open)
	c.mu.Unlock()

	var err error

	for _, closer := range open {
		err = multierr.Append(err, closer.Close())
	}

	return err
}

// track registers closer until the returned func is called. The signal
// handler is installed on first use.
func (c *interruptCleanup) track(closer io.Closer) (untrack func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.installed {
		c.installed = true
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		go func() {
			sig := <-sigCh
			c.log.Info("interrupted; closing hosts", zap.Stringer("signal", sig))

			err := c.closeAll()
			if err != nil {
				c.log.Warn("closing hosts on interrupt", zap.Error(err))
			}

			c.exit(exitCodeInterrupted)
		}()
	}

	c.open[closer] = struct{}{}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.open, closer)
	}
}

// unexported constants.
const (
	exitCodeInterrupted = 130
)
