package tracker_test

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/tracker"
)

func TestProperty_VersionAtLeast(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		g := NewWithT(t)
		major := rapid.Uint32Range(0, 20).Draw(t, "major")
		minor := rapid.Uint32Range(0, 20).Draw(t, "minor")
		wantMajor := rapid.Uint32Range(0, 20).Draw(t, "wantMajor")
		wantMinor := rapid.Uint32Range(0, 20).Draw(t, "wantMinor")

		want := major*100+minor >= wantMajor*100+wantMinor
		g.Expect(tracker.VersionAtLeastForTest(major, minor, wantMajor, wantMinor)).To(Equal(want))
	})
}

func TestAddProcess_AssignFailureIsAnOSError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	grp := &fakeGroup{assignErr: errBoom}
	tr := tracker.NewWithGroupForTest(grp, nil, zap.NewNop())

	err := tr.AddProcess(8)
	g.Expect(err).To(MatchError(errBoom))

	var osErr *host.OSError
	g.Expect(errors.As(err, &osErr)).To(BeTrue())
	g.Expect(osErr.Op).To(Equal("assign process to child group"))
}

func TestAddProcess_AssignsToTheGroup(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	core, logs := observer.New(zap.DebugLevel)
	grp := &fakeGroup{}
	tr := tracker.NewWithGroupForTest(grp, nil, zap.New(core))

	g.Expect(tr.Supported()).To(BeTrue())
	g.Expect(tr.AddProcess(8)).To(Succeed())
	g.Expect(tr.AddProcess(12)).To(Succeed())
	g.Expect(grp.assigned).To(Equal([]uintptr{8, 12}))
	g.Expect(logs.FilterMessage("process added to child group").Len()).To(Equal(2))
}

func TestAddProcess_FailsLoudlyWhenUnsupported(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	tr := tracker.NewWithGroupForTest(nil, tracker.ErrUnsupported, zap.NewNop())

	g.Expect(tr.Supported()).To(BeFalse())
	g.Expect(tr.AddProcess(8)).To(MatchError(host.ErrUnsupported))
	g.Expect(tr.Close()).To(Succeed())
}

func TestClose_ClosesTheGroup(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	grp := &fakeGroup{}
	tr := tracker.NewWithGroupForTest(grp, nil, zap.NewNop())

	g.Expect(tr.Close()).To(Succeed())
	g.Expect(grp.closed).To(Equal(1))
}

func TestDefault_IsASingleton(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	var (
		wg  sync.WaitGroup
		got [8]*tracker.Tracker
	)

	for i := range got {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got[i] = tracker.Default()
		}()
	}

	wg.Wait()

	for _, tr := range got {
		g.Expect(tr).To(BeIdenticalTo(got[0]))
	}
}

func TestNew_WarnsWhenUnsupported(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("groups are supported on windows")
	}

	t.Parallel()
	g := NewWithT(t)

	core, logs := observer.New(zap.WarnLevel)
	tr := tracker.New(tracker.WithLogger(zap.New(core)), tracker.WithName("ignored"))

	g.Expect(tr.Supported()).To(BeFalse())
	g.Expect(tr.AddProcess(1)).To(MatchError(tracker.ErrUnsupported))
	g.Expect(logs.FilterMessage("child-group tracking unavailable").Len()).To(Equal(1))
}

type fakeGroup struct {
	assignErr error
	assigned  []uintptr
	closed    int
}

func (f *fakeGroup) Assign(handle uintptr) error {
	if f.assignErr != nil {
		return f.assignErr
	}

	f.assigned = append(f.assigned, handle)

	return nil
}

func (f *fakeGroup) Close() error {
	f.closed++

	return nil
}

// unexported variables.
var (
	errBoom = errors.New("boom")
)
