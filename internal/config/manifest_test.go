package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/toejough/prochost/internal/config"
	"github.com/toejough/prochost/internal/host"
)

func TestLoadManifest(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "run.yaml")
	g.Expect(os.WriteFile(path, []byte(`
executable: C:\tools\fixture.exe
working_dir: C:\work
arguments: print hello world
env:
  GREETING: hi
timeout: 5s
kill_on_timeout: true
mode: child
track_children: true
encoding: utf-8
`), 0o600)).To(Succeed())

	m, err := config.LoadManifest(path)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(*m).To(Equal(config.Manifest{
		Executable:    `C:\tools\fixture.exe`,
		WorkDir:       `C:\work`,
		Arguments:     "print hello world",
		Env:           map[string]string{"GREETING": "hi"},
		Timeout:       5 * time.Second,
		KillOnTimeout: true,
		Mode:          host.ModeChild,
		TrackChildren: true,
		Encoding:      "utf-8",
	}))
}

func TestLoadManifest_MissingFile(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := config.LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	g.Expect(err).To(MatchError(os.ErrNotExist))
}

func TestParseManifest_DefaultsModeToNormal(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	m, err := config.ParseManifest([]byte("executable: fixture.exe\n"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(m.Mode).To(Equal(host.ModeNormal))
	g.Expect(m.Timeout).To(BeZero())
}

func TestParseManifest_Rejects(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"missing executable": "arguments: x\n",
		"unknown key":        "executable: a.exe\nshell: yes\n",
		"negative timeout":   "executable: a.exe\ntimeout: -1s\n",
		"user mode":          "executable: a.exe\nmode: user\n",
		"blank env key":      "executable: a.exe\nenv:\n  \" \": x\n",
		"unknown encoding":   "executable: a.exe\nencoding: klingon\n",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			_, err := config.ParseManifest([]byte(doc))
			g.Expect(err).To(MatchError(config.ErrInvalidManifest))
		})
	}
}
