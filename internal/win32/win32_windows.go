//go:build windows

package win32

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// Exported constants.
const (
	// CreateProcessDebugEvent is the first event of a debugged process.
	CreateProcessDebugEvent = 3
	// ExceptionDebugEvent reports an exception in the debugged process.
	ExceptionDebugEvent = 1
	// ExitProcessDebugEvent is the last event of a debugged process.
	ExitProcessDebugEvent = 5
	// LoadDLLDebugEvent reports a module load.
	LoadDLLDebugEvent = 6
	// StillActive is the exit code of a running process.
	StillActive = 259
)

// DebugEvent mirrors DEBUG_EVENT. Info holds the event-specific union; its
// uint64 elements give it the native union alignment.
type DebugEvent struct {
	Code      uint32
	ProcessID uint32
	ThreadID  uint32
	Info      [20]uint64
}

// FileHandle returns the hFile member that CREATE_PROCESS and LOAD_DLL
// events carry, or 0 for other events. The receiver owns it.
func (e *DebugEvent) FileHandle() windows.Handle {
	switch e.Code {
	case CreateProcessDebugEvent, LoadDLLDebugEvent:
		return windows.Handle(uintptr(e.Info[0]))
	default:
		return 0
	}
}

// ExceptionCode returns ExceptionRecord.ExceptionCode of an EXCEPTION event,
// or 0 for other events.
func (e *DebugEvent) ExceptionCode() uint32 {
	if e.Code != ExceptionDebugEvent {
		return 0
	}

	return uint32(e.Info[0])
}

// ContinueDebugEvent resumes the thread that raised a debug event.
func ContinueDebugEvent(pid, tid, status uint32) error {
	r1, _, err := procContinueDebugEvent.Call(uintptr(pid), uintptr(tid), uintptr(status))
	if r1 == 0 {
		return err
	}

	return nil
}

// CreateProcessWithLogon starts a process under the given account.
func CreateProcessWithLogon(
	user, domain, password *uint16,
	logonFlags uint32,
	commandLine *uint16,
	creationFlags uint32,
	env *uint16,
	currentDir *uint16,
	si *windows.StartupInfo,
	pi *windows.ProcessInformation,
) error {
	r1, _, err := procCreateProcessWithLogonW.Call(
		uintptr(unsafe.Pointer(user)),
		uintptr(unsafe.Pointer(domain)),
		uintptr(unsafe.Pointer(password)),
		uintptr(logonFlags),
		0,
		uintptr(unsafe.Pointer(commandLine)),
		uintptr(creationFlags),
		uintptr(unsafe.Pointer(env)),
		uintptr(unsafe.Pointer(currentDir)),
		uintptr(unsafe.Pointer(si)),
		uintptr(unsafe.Pointer(pi)),
	)
	if r1 == 0 {
		return err
	}

	return nil
}

// PeekNamedPipe copies up to len(buf) bytes without removing them and
// reports how many bytes are available in total. buf may be empty.
func PeekNamedPipe(pipe windows.Handle, buf []byte) (read, avail uint32, err error) {
	var ptr *byte
	if len(buf) > 0 {
		ptr = &buf[0]
	}

	r1, _, e := procPeekNamedPipe.Call(
		uintptr(pipe),
		uintptr(unsafe.Pointer(ptr)),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&read)),
		uintptr(unsafe.Pointer(&avail)),
		0,
	)
	if r1 == 0 {
		return 0, 0, e
	}

	return read, avail, nil
}

// WaitForDebugEvent waits up to ms milliseconds for the next event of a
// process this thread is debugging.
func WaitForDebugEvent(ev *DebugEvent, ms uint32) error {
	r1, _, err := procWaitForDebugEvent.Call(uintptr(unsafe.Pointer(ev)), uintptr(ms))
	if r1 == 0 {
		return err
	}

	return nil
}

// unexported variables.
var (
	//nolint:gochecknoglobals // lazily bound system DLLs
	advapi32 = windows.NewLazySystemDLL("advapi32.dll")
	//nolint:gochecknoglobals // lazily bound system DLLs
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	//nolint:gochecknoglobals // lazily bound procedures
	procContinueDebugEvent = kernel32.NewProc("ContinueDebugEvent")
	//nolint:gochecknoglobals // lazily bound procedures
	procCreateProcessWithLogonW = advapi32.NewProc("CreateProcessWithLogonW")
	//nolint:gochecknoglobals // lazily bound procedures
	procPeekNamedPipe = kernel32.NewProc("PeekNamedPipe")
	//nolint:gochecknoglobals // lazily bound procedures
	procWaitForDebugEvent = kernel32.NewProc("WaitForDebugEvent")
)
