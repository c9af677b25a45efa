//go:build windows

package tracker

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/toejough/prochost/internal/host"
)

type jobGroup struct {
	h atomic.Uintptr
}

func (j *jobGroup) Assign(handle uintptr) error {
	return windows.AssignProcessToJobObject(windows.Handle(j.h.Load()), windows.Handle(handle))
}

func (j *jobGroup) Close() error {
	h := j.h.Swap(0)
	if h == 0 {
		return nil
	}

	return host.NewOSError("close child group", windows.CloseHandle(windows.Handle(h)))
}

func defaultGroupName() string {
	return fmt.Sprintf("prochost-tracker-%d", os.Getpid())
}

func newGroup(name string) (group, error) {
	v := windows.RtlGetVersion()
	if !versionAtLeast(v.MajorVersion, v.MinorVersion, minMajor, minMinor) {
		return nil, ErrUnsupported
	}

	var namePtr *uint16

	if name != "" {
		var err error

		namePtr, err = windows.UTF16PtrFromString(name)
		if err != nil {
			return nil, host.NewOSError("encode group name", err)
		}
	}

	h, err := windows.CreateJobObject(nil, namePtr)
	if err != nil {
		return nil, host.NewOSError("create job object", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}

	_, err = windows.SetInformationJobObject(
		h,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)
	if err != nil {
		_ = windows.CloseHandle(h)

		return nil, host.NewOSError("set job kill-on-close", err)
	}

	g := &jobGroup{}
	g.h.Store(uintptr(h))

	return g, nil
}

// unexported constants.
const (
	minMajor = 6
	minMinor = 2
)
