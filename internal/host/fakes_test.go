package host_test

import (
	"errors"
	"sync"
	"time"

	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/pipetest"
)

type fakePlatform struct {
	mu        sync.Mutex
	pipes     []*pipetest.Endpoint
	launched  []host.LaunchSpecForTest
	proc      *fakeProcess
	launchErr error
	openErrs  []error
	opens     int
	events    *fakeEvents
	users     []host.Credentials
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{proc: newFakeProcess(4242)}
}

func (f *fakePlatform) Launch(spec host.LaunchSpecForTest) (host.ProcessForTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.launchErr != nil {
		return nil, f.launchErr
	}

	f.launched = append(f.launched, spec)

	return f.proc, nil
}

func (f *fakePlatform) LaunchAsUser(spec host.LaunchSpecForTest, creds host.Credentials) (host.ProcessForTest, error) {
	f.mu.Lock()
	f.users = append(f.users, creds)
	f.mu.Unlock()

	return f.Launch(spec)
}

func (f *fakePlatform) LaunchDebugged(spec host.LaunchSpecForTest) (host.ProcessForTest, host.DebugEventsForTest, error) {
	proc, err := f.Launch(spec)
	if err != nil {
		return nil, nil, err
	}

	return proc, f.events, nil
}

func (f *fakePlatform) NewPipe(host.Direction) (host.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := pipetest.New(uintptr(100 + len(f.pipes)))
	f.pipes = append(f.pipes, end)

	return end, nil
}

func (f *fakePlatform) Open(uint32) (host.WaiterForTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens++

	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]

		return nil, err
	}

	return fakeWaiter{proc: f.proc}, nil
}

func (f *fakePlatform) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.opens
}

// stdin, stdout and stderr in allocation order.
func (f *fakePlatform) pipe(i int) *pipetest.Endpoint {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pipes[i]
}

type fakeProcess struct {
	mu           sync.Mutex
	id           uint32
	exited       chan struct{}
	code         uint32
	terminateErr error
	terminations []uint32
	closeErr     error
	closes       int
}

func newFakeProcess(id uint32) *fakeProcess {
	return &fakeProcess{id: id, exited: make(chan struct{})}
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closes++
	if p.closes == 1 {
		return p.closeErr
	}

	return nil
}

func (p *fakeProcess) ExitCode() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.exited:
		return p.code, nil
	default:
		return stillActive, nil
	}
}

func (p *fakeProcess) Exit(code uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.exited:
	default:
		p.code = code
		close(p.exited)
	}
}

func (p *fakeProcess) Handle() uintptr {
	return uintptr(p.id) * 4
}

func (p *fakeProcess) ID() uint32 {
	return p.id
}

func (p *fakeProcess) Terminate(code uint32) error {
	p.mu.Lock()
	err := p.terminateErr

	if p.closes > 0 {
		err = errInvalidHandle
	}

	p.terminations = append(p.terminations, code)
	p.mu.Unlock()

	if err != nil {
		return err
	}

	p.Exit(code)

	return nil
}

func (p *fakeProcess) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closes
}

func (p *fakeProcess) terminated() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]uint32(nil), p.terminations...)
}

type fakeWaiter struct {
	proc *fakeProcess
}

func (w fakeWaiter) Close() error {
	return nil
}

func (w fakeWaiter) Wait(timeout time.Duration) (bool, error) {
	select {
	case <-w.proc.exited:
		return true, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.proc.exited:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// fakeEvents replays queued debug events and records acknowledgements.
type fakeEvents struct {
	queue     chan fakeEvent
	mu        sync.Mutex
	continued []host.DebugEventForTest
	statuses  []uint32
	contErr   error
}

type fakeEvent struct {
	ev  host.DebugEventForTest
	ok  bool
	err error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{queue: make(chan fakeEvent, eventQueueSize)}
}

func (e *fakeEvents) Continue(ev host.DebugEventForTest, status uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.continued = append(e.continued, ev)
	e.statuses = append(e.statuses, status)

	return e.contErr
}

func (e *fakeEvents) Next() (host.DebugEventForTest, bool, error) {
	next := <-e.queue

	return next.ev, next.ok, next.err
}

func (e *fakeEvents) acknowledged() []host.DebugEventForTest {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]host.DebugEventForTest(nil), e.continued...)
}

func (e *fakeEvents) continueStatuses() []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]uint32(nil), e.statuses...)
}

func (e *fakeEvents) raise(pid, exception uint32) {
	e.queue <- fakeEvent{
		ev: host.DebugEventForTest{
			Code:      host.ExceptionDebugEventForTest,
			ProcessID: pid,
			ThreadID:  1,
			Exception: exception,
		},
		ok: true,
	}
}

func (e *fakeEvents) send(code, pid uint32) {
	e.queue <- fakeEvent{ev: host.DebugEventForTest{Code: code, ProcessID: pid, ThreadID: 1}, ok: true}
}

type fakeMetrics struct {
	mu           sync.Mutex
	started      []host.Mode
	killed       int
	exits        []int
	timeouts     int
	closeFailure []string
}

func (m *fakeMetrics) CloseFailed(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeFailure = append(m.closeFailure, stage)
}

func (m *fakeMetrics) ProcessExited(code int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exits = append(m.exits, code)
}

func (m *fakeMetrics) ProcessKilled() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.killed++
}

func (m *fakeMetrics) ProcessStarted(mode host.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = append(m.started, mode)
}

func (m *fakeMetrics) WaitTimedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeouts++
}

type fakeTracker struct {
	added []uintptr
	err   error
}

func (t *fakeTracker) AddProcess(handle uintptr) error {
	t.added = append(t.added, handle)

	return t.err
}

// unexported constants.
const (
	eventQueueSize = 16
	stillActive    = 259
)

// unexported variables.
var (
	errBoom          = errors.New("boom")
	errInvalidHandle = errors.New("invalid handle")
)
