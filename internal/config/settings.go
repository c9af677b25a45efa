// Package config loads process-host settings from the environment and
// launch manifests from YAML files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/logging"
)

// EnvPrefix prefixes every settings variable, as in PROCHOST_LOG_LEVEL.
const EnvPrefix = "PROCHOST"

// Exported variables.
var (
	ErrUnknownEncoding = errors.New("unknown encoding")
)

// Settings are the environment-tunable knobs.
type Settings struct {
	LogLevel            string        `default:"info"  envconfig:"LOG_LEVEL"`
	LogDevelopment      bool          `default:"false" envconfig:"LOG_DEV"`
	OpenRetries         int           `default:"10"    envconfig:"OPEN_RETRIES"`
	OpenRetryDelay      time.Duration `default:"100ms" envconfig:"OPEN_RETRY_DELAY"`
	ChildStartPolls     int           `default:"10"    envconfig:"CHILD_START_POLLS"`
	ChildStartPollDelay time.Duration `default:"100ms" envconfig:"CHILD_START_POLL_DELAY"`
	ShellPollInterval   time.Duration `default:"20ms"  envconfig:"SHELL_POLL_INTERVAL"`
	// Encoding is an IANA charset name. Blank means the platform default.
	Encoding string `envconfig:"ENCODING"`
}

// Default returns the settings used when the environment sets nothing.
func Default() *Settings {
	timings := host.DefaultTimings()

	return &Settings{
		LogLevel:            "info",
		OpenRetries:         timings.OpenRetries,
		OpenRetryDelay:      timings.OpenRetryDelay,
		ChildStartPolls:     timings.ChildStartPolls,
		ChildStartPollDelay: timings.ChildStartPollDelay,
		ShellPollInterval:   defaultShellPoll,
	}
}

// Load reads settings from PROCHOST_* environment variables.
func Load() (*Settings, error) {
	var s Settings

	err := envconfig.Process(EnvPrefix, &s)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	return &s, nil
}

// LookupEncoding resolves an IANA charset name. Blank resolves to nil,
// which the host reads as the platform default.
func LookupEncoding(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}

	return enc, nil
}

// HostOptions turns the settings into host options.
func (s *Settings) HostOptions(log *zap.Logger, metrics host.Metrics) ([]host.Option, error) {
	enc, err := LookupEncoding(s.Encoding)
	if err != nil {
		return nil, err
	}

	return []host.Option{
		host.WithLogger(log),
		host.WithMetrics(metrics),
		host.WithEncoding(enc),
		host.WithTimings(s.Timings()),
	}, nil
}

// LogConfig returns the logging configuration the settings describe.
func (s *Settings) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if s.LogDevelopment {
		cfg = logging.DevelopmentConfig()
	}

	cfg.Level = s.LogLevel

	return cfg
}

// Timings returns the host polling bounds.
func (s *Settings) Timings() host.Timings {
	return host.Timings{
		OpenRetries:         s.OpenRetries,
		OpenRetryDelay:      s.OpenRetryDelay,
		ChildStartPolls:     s.ChildStartPolls,
		ChildStartPollDelay: s.ChildStartPollDelay,
	}
}

// unexported constants.
const (
	defaultShellPoll = 20 * time.Millisecond
)
