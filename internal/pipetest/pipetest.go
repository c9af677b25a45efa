// Package pipetest provides an in-memory pipe endpoint. The test plays the
// child: Feed supplies bytes for the owner to read, Written shows what the
// owner wrote.
package pipetest

import (
	"errors"
	"sync"
)

// Exported variables.
var (
	ErrClosed = errors.New("pipetest: endpoint closed")
)

// Endpoint is an in-memory pipe end. Read blocks until Feed or Close.
type Endpoint struct {
	// CloseErr is returned by the first Close.
	CloseErr error

	mu         sync.Mutex
	ready      *sync.Cond
	pending    []byte
	written    []byte
	closeCount int
	handle     uintptr
	onWrite    func([]byte)
}

// New returns an open endpoint whose ChildHandle is handle.
func New(handle uintptr) *Endpoint {
	e := &Endpoint{handle: handle}
	e.ready = sync.NewCond(&e.mu)

	return e
}

// ChildHandle returns the handle given to New.
func (e *Endpoint) ChildHandle() uintptr {
	return e.handle
}

// Close marks the endpoint closed and wakes blocked readers.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeCount++
	e.ready.Broadcast()

	if e.closeCount == 1 {
		return e.CloseErr
	}

	return nil
}

// CloseCount returns how many times Close was called.
func (e *Endpoint) CloseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closeCount
}

// Feed makes data available to the owner.
func (e *Endpoint) Feed(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, data...)
	e.ready.Broadcast()
}

// FeedString is Feed for text.
func (e *Endpoint) FeedString(s string) {
	e.Feed([]byte(s))
}

// OnWrite registers fn to run after every Write, outside the lock.
func (e *Endpoint) OnWrite(fn func([]byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.onWrite = fn
}

// Peek returns the number of unread bytes.
func (e *Endpoint) Peek() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closeCount > 0 {
		return 0, ErrClosed
	}

	return len(e.pending), nil
}

// PeekRead copies unread bytes without consuming them.
func (e *Endpoint) PeekRead(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closeCount > 0 {
		return 0, ErrClosed
	}

	return copy(p, e.pending), nil
}

// Read blocks until data is available, then consumes what fits in p.
func (e *Endpoint) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.pending) == 0 && e.closeCount == 0 {
		e.ready.Wait()
	}

	if e.closeCount > 0 {
		return 0, ErrClosed
	}

	n := copy(p, e.pending)
	e.pending = e.pending[n:]

	return n, nil
}

// Write records p.
func (e *Endpoint) Write(p []byte) (int, error) {
	e.mu.Lock()

	if e.closeCount > 0 {
		e.mu.Unlock()

		return 0, ErrClosed
	}

	e.written = append(e.written, p...)
	hook := e.onWrite
	e.mu.Unlock()

	if hook != nil {
		hook(append([]byte(nil), p...))
	}

	return len(p), nil
}

// Written returns a copy of everything written so far.
func (e *Endpoint) Written() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]byte(nil), e.written...)
}
