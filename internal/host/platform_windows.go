//go:build windows

package host

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/windows"

	"github.com/toejough/prochost/internal/win32"
)

// HostIsCompatible reports whether this system can host processes.
func HostIsCompatible() bool {
	return windows.RtlGetVersion().PlatformId == verPlatformWin32NT
}

type winPlatform struct{}

func (winPlatform) Launch(spec launchSpec) (process, error) {
	return createProcess(spec, 0)
}

func (winPlatform) LaunchAsUser(spec launchSpec, creds Credentials) (process, error) {
	user, err := windows.UTF16PtrFromString(creds.User)
	if err != nil {
		return nil, NewOSError("encode user", err)
	}

	domain, err := windows.UTF16PtrFromString(creds.Domain)
	if err != nil {
		return nil, NewOSError("encode domain", err)
	}

	password, err := windows.UTF16PtrFromString(creds.Password)
	if err != nil {
		return nil, NewOSError("encode password", err)
	}

	cmd, dir, err := commandAndDir(spec)
	if err != nil {
		return nil, err
	}

	var si windows.StartupInfo

	si.Cb = uint32(unsafe.Sizeof(si))
	si.Flags = windows.STARTF_USESTDHANDLES
	si.StdInput = windows.Handle(spec.Stdin)
	si.StdOutput = windows.Handle(spec.Stdout)
	si.StdErr = windows.Handle(spec.Stderr)

	var pi windows.ProcessInformation

	err = win32.CreateProcessWithLogon(
		user, domain, password, creds.LogonFlags,
		cmd, windows.CREATE_UNICODE_ENVIRONMENT, nil, dir, &si, &pi,
	)
	if err != nil {
		return nil, NewOSError("create process with logon", err)
	}

	return newWinProcess(pi), nil
}

func (winPlatform) LaunchDebugged(spec launchSpec) (process, debugEvents, error) {
	proc, err := createProcess(spec, windows.DEBUG_ONLY_THIS_PROCESS)
	if err != nil {
		return nil, nil, err
	}

	return proc, winDebugEvents{}, nil
}

func (winPlatform) NewPipe(dir Direction) (Endpoint, error) {
	var r, w windows.Handle

	sa := windows.SecurityAttributes{InheritHandle: 1}
	sa.Length = uint32(unsafe.Sizeof(sa))

	err := windows.CreatePipe(&r, &w, &sa, 0)
	if err != nil {
		return nil, NewOSError("create pipe", err)
	}

	owner, child := w, r
	if dir == Out {
		owner, child = r, w
	}

	p := &winPipe{}
	p.owner.Store(uintptr(owner))
	p.child.Store(uintptr(child))

	err = windows.SetHandleInformation(owner, windows.HANDLE_FLAG_INHERIT, 0)
	if err != nil {
		return nil, multierr.Append(NewOSError("set pipe handle information", err), p.Close())
	}

	return p, nil
}

func (winPlatform) Open(pid uint32) (waiter, error) {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_INFORMATION, false, pid)
	if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
		return nil, fmt.Errorf("%w: %w", errProcessGone, err)
	}

	if err != nil {
		return nil, NewOSError("open process", err)
	}

	return winWaiter{h: h}, nil
}

type winDebugEvents struct{}

func (winDebugEvents) Continue(ev debugEvent, status uint32) error {
	return NewOSError("continue debug event", win32.ContinueDebugEvent(ev.ProcessID, ev.ThreadID, status))
}

func (winDebugEvents) Next() (debugEvent, bool, error) {
	var ev win32.DebugEvent

	err := win32.WaitForDebugEvent(&ev, debugWaitMillis)
	if errors.Is(err, windows.ERROR_SEM_TIMEOUT) {
		return debugEvent{}, false, nil
	}

	if err != nil {
		return debugEvent{}, false, NewOSError("wait for debug event", err)
	}

	if file := ev.FileHandle(); file != 0 {
		_ = windows.CloseHandle(file)
	}

	return debugEvent{
		Code:      ev.Code,
		ProcessID: ev.ProcessID,
		ThreadID:  ev.ThreadID,
		Exception: ev.ExceptionCode(),
	}, true, nil
}

// winPipe holds both ends of one anonymous pipe. The owner end stays in this
// process; the child end is inherited. Each is closed at most once.
type winPipe struct {
	owner atomic.Uintptr
	child atomic.Uintptr
}

func (p *winPipe) ChildHandle() uintptr {
	return p.child.Load()
}

func (p *winPipe) Close() error {
	return multierr.Combine(
		closeSwapped(&p.owner, "close pipe"),
		closeSwapped(&p.child, "close child pipe end"),
	)
}

func (p *winPipe) Peek() (int, error) {
	_, avail, err := win32.PeekNamedPipe(windows.Handle(p.owner.Load()), nil)
	if errors.Is(err, windows.ERROR_BROKEN_PIPE) {
		return 0, nil
	}

	if err != nil {
		return 0, NewOSError("peek pipe", err)
	}

	return int(avail), nil
}

func (p *winPipe) PeekRead(buf []byte) (int, error) {
	n, _, err := win32.PeekNamedPipe(windows.Handle(p.owner.Load()), buf)
	if errors.Is(err, windows.ERROR_BROKEN_PIPE) {
		return 0, nil
	}

	if err != nil {
		return 0, NewOSError("peek read pipe", err)
	}

	return int(n), nil
}

func (p *winPipe) Read(buf []byte) (int, error) {
	var n uint32

	err := windows.ReadFile(windows.Handle(p.owner.Load()), buf, &n, nil)
	if err != nil {
		return int(n), NewOSError("read pipe", err)
	}

	return int(n), nil
}

func (p *winPipe) Write(buf []byte) (int, error) {
	var n uint32

	err := windows.WriteFile(windows.Handle(p.owner.Load()), buf, &n, nil)
	if err != nil {
		return int(n), NewOSError("write pipe", err)
	}

	return int(n), nil
}

type winProcess struct {
	pid     uint32
	process atomic.Uintptr
	thread  atomic.Uintptr
}

func newWinProcess(pi windows.ProcessInformation) *winProcess {
	p := &winProcess{pid: pi.ProcessId}
	p.process.Store(uintptr(pi.Process))
	p.thread.Store(uintptr(pi.Thread))

	return p
}

func (p *winProcess) Close() error {
	return multierr.Combine(
		closeSwapped(&p.thread, "close thread handle"),
		closeSwapped(&p.process, "close process handle"),
	)
}

func (p *winProcess) ExitCode() (uint32, error) {
	var code uint32

	err := windows.GetExitCodeProcess(windows.Handle(p.process.Load()), &code)
	if err != nil {
		return 0, NewOSError("get exit code", err)
	}

	return code, nil
}

func (p *winProcess) Handle() uintptr {
	return p.process.Load()
}

func (p *winProcess) ID() uint32 {
	return p.pid
}

func (p *winProcess) Terminate(code uint32) error {
	h := windows.Handle(p.process.Load())

	err := windows.TerminateProcess(h, code)
	if err == nil {
		return nil
	}

	// Terminating a process that has exited is refused with access denied.
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		var current uint32
		if windows.GetExitCodeProcess(h, &current) == nil && current != win32.StillActive {
			return nil
		}
	}

	return NewOSError("terminate process", err)
}

type winWaiter struct {
	h windows.Handle
}

func (w winWaiter) Close() error {
	return NewOSError("close process reference", windows.CloseHandle(w.h))
}

func (w winWaiter) Wait(timeout time.Duration) (bool, error) {
	millis := uint32(min(max(timeout.Milliseconds(), 0), math.MaxUint32-1))

	event, err := windows.WaitForSingleObject(w.h, millis)

	switch event {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case windows.WAIT_FAILED:
		return false, NewOSError("wait for process", err)
	default:
		return false, nil
	}
}

func closeSwapped(h *atomic.Uintptr, op string) error {
	handle := h.Swap(0)
	if handle == 0 {
		return nil
	}

	return NewOSError(op, windows.CloseHandle(windows.Handle(handle)))
}

func commandAndDir(spec launchSpec) (cmd, dir *uint16, err error) {
	cmd, err = windows.UTF16PtrFromString(spec.CommandLine)
	if err != nil {
		return nil, nil, NewOSError("encode command line", err)
	}

	if spec.WorkDir == "" {
		return cmd, nil, nil
	}

	dir, err = windows.UTF16PtrFromString(spec.WorkDir)
	if err != nil {
		return nil, nil, NewOSError("encode working directory", err)
	}

	return cmd, dir, nil
}

// createProcess starts spec with only its three standard handles inherited.
func createProcess(spec launchSpec, flags uint32) (process, error) {
	cmd, dir, err := commandAndDir(spec)
	if err != nil {
		return nil, err
	}

	handles := []windows.Handle{
		windows.Handle(spec.Stdin),
		windows.Handle(spec.Stdout),
		windows.Handle(spec.Stderr),
	}

	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return nil, NewOSError("allocate attribute list", err)
	}
	defer attrs.Delete()

	err = attrs.Update(
		windows.PROC_THREAD_ATTRIBUTE_HANDLE_LIST,
		unsafe.Pointer(&handles[0]),
		uintptr(len(handles))*unsafe.Sizeof(handles[0]),
	)
	if err != nil {
		return nil, NewOSError("set inherited handles", err)
	}

	var si windows.StartupInfoEx

	si.Cb = uint32(unsafe.Sizeof(si))
	si.Flags = windows.STARTF_USESTDHANDLES
	si.StdInput = handles[0]
	si.StdOutput = handles[1]
	si.StdErr = handles[2]
	si.ProcThreadAttributeList = attrs.List()

	var env *uint16
	if len(spec.Env) > 0 {
		env = &spec.Env[0]
	}

	var pi windows.ProcessInformation

	flags |= windows.EXTENDED_STARTUPINFO_PRESENT | windows.CREATE_UNICODE_ENVIRONMENT

	err = windows.CreateProcess(nil, cmd, nil, nil, true, flags, env, dir, &si.StartupInfo, &pi)
	if err != nil {
		return nil, NewOSError("create process", err)
	}

	return newWinProcess(pi), nil
}

func nativePlatform() platform {
	return winPlatform{}
}

// unexported constants.
const (
	debugWaitMillis    = math.MaxInt32
	verPlatformWin32NT = 2
)
