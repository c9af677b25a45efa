package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/toejough/prochost/internal/host"
)

// Exported variables.
var (
	ErrInvalidManifest = errors.New("invalid manifest")
)

// Manifest describes one launch.
type Manifest struct {
	Executable string            `yaml:"executable"`
	WorkDir    string            `yaml:"working_dir"`
	Arguments  string            `yaml:"arguments"`
	Env        map[string]string `yaml:"env"`
	// Timeout bounds the wait for exit. Zero waits forever.
	Timeout       time.Duration `yaml:"timeout"`
	KillOnTimeout bool          `yaml:"kill_on_timeout"`
	// Mode is "normal" (the default) or "child".
	Mode          host.Mode `yaml:"mode"`
	TrackChildren bool      `yaml:"track_children"`
	Encoding      string    `yaml:"encoding"`
}

// LoadManifest reads, defaults and validates the manifest at path. Unknown
// keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	//nolint:gosec // reading the user's manifest is the point
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return ParseManifest(data)
}

// ParseManifest decodes, defaults and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	if m.Mode == "" {
		m.Mode = host.ModeNormal
	}

	err = m.Validate()
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate reports the first problem with the manifest.
func (m *Manifest) Validate() error {
	switch {
	case m.Executable == "":
		return fmt.Errorf("%w: executable is required", ErrInvalidManifest)
	case m.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidManifest)
	case m.Mode != host.ModeNormal && m.Mode != host.ModeChild:
		return fmt.Errorf("%w: mode %q is not normal or child", ErrInvalidManifest, m.Mode)
	}

	_, err := host.EnvironmentBlock(m.Env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	_, err = LookupEncoding(m.Encoding)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	return nil
}
