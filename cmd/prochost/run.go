package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/toejough/prochost/internal/config"
	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/tracker"
)

// runFlags holds the flags for the run command.
type runFlags struct {
	manifest      string
	timeout       time.Duration
	killOnTimeout bool
	asChild       bool
	trackChildren bool
	env           []string
	dir           string
	encoding      string
	metricsOut    string
}

func (a *app) runCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] [executable [args...]]",
		Short: "Run a program and relay its output",
		Long: `Run starts the program, copies its stdout and stderr to the terminal,
and exits with the program's exit code.

The program may be given on the command line or in a YAML manifest
(--manifest). Flags given explicitly override the manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManifest(cmd, *flags, args)
			if err != nil {
				return err
			}

			return a.run(m, flags.metricsOut)
		},
	}

	flags.bind(cmd)

	return cmd
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", "", "YAML launch manifest")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "how long to wait for exit (0 waits forever)")
	cmd.Flags().BoolVar(&f.killOnTimeout, "kill-on-timeout", false, "kill the program when the timeout expires")
	cmd.Flags().BoolVar(&f.asChild, "as-child", false, "supervise the program through the debug event protocol")
	cmd.Flags().BoolVar(&f.trackChildren, "track-children", false, "kill the program's tree when prochost exits")
	cmd.Flags().StringArrayVarP(&f.env, "env", "e", nil,
		"environment entry KEY=VALUE (repeatable; replaces the inherited environment)")
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "", "working directory")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "IANA name of the program's text encoding")
	cmd.Flags().StringVar(&f.metricsOut, "metrics-out", "", "write Prometheus metrics to this file on exit")
}

// run hosts the program m describes until it exits or times out.
func (a *app) run(m *config.Manifest, metricsOut string) (err error) {
	if metricsOut != "" {
		defer func() {
			err = multierr.Append(err, prometheus.WriteToTextfile(metricsOut, a.metrics.Registry()))
		}()
	}

	h, enc, err := a.newHost(m)
	if err != nil {
		return err
	}

	defer multierr.AppendInvoke(&err, multierr.Close(h))
	defer a.cleanup.track(h)()

	err = start(h, m)
	if err != nil {
		return err
	}

	stop := make(chan struct{})

	var relays sync.WaitGroup

	relays.Go(func() { a.relay(h.Stdout(), enc, a.stdout, stop) })
	relays.Go(func() { a.relay(h.Stderr(), enc, a.stderr, stop) })

	exited, code, err := wait(h, m.Timeout)

	close(stop)
	relays.Wait()

	if err != nil {
		return err
	}

	if !exited {
		return a.timedOut(h, m)
	}

	if code != 0 {
		return exitError{code: code}
	}

	return nil
}

// newHost builds a host for m from the loaded settings.
func (a *app) newHost(m *config.Manifest) (*host.Host, encoding.Encoding, error) {
	opts, err := a.settings.HostOptions(a.log, a.metrics)
	if err != nil {
		return nil, nil, err
	}

	enc, err := config.LookupEncoding(m.Encoding)
	if err != nil {
		return nil, nil, err
	}

	if enc != nil {
		opts = append(opts, host.WithEncoding(enc))
	}

	if m.TrackChildren {
		t := tracker.Default()
		if !t.Supported() {
			return nil, nil, tracker.ErrUnsupported
		}

		opts = append(opts, host.WithChildTracker(t))
	}

	h, err := host.New(m.Executable, m.WorkDir, opts...)
	if err != nil {
		return nil, nil, err
	}

	return h, h.Encoding(), nil
}

// relay copies text from p to w until stop closes, then drains what is left.
func (a *app) relay(p *host.ReadPipe, enc encoding.Encoding, w io.Writer, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			text, err := p.ReadAllText(enc)
			a.relayed(w, text, err)

			return
		default:
		}

		text, err := p.ReadAllWithTimeout(enc, relayPoll)
		if !a.relayed(w, text, err) {
			return
		}
	}
}

// relayed writes text to w and reports whether relaying can go on.
func (a *app) relayed(w io.Writer, text string, err error) bool {
	if text != "" {
		_, _ = io.WriteString(w, text)
	}

	if err != nil {
		a.log.Warn("relaying child output", zap.Error(err))

		return false
	}

	return true
}

func (a *app) timedOut(h *host.Host, m *config.Manifest) error {
	if !m.KillOnTimeout {
		fmt.Fprintln(a.stderr, a.styles.Warning.Render(
			fmt.Sprintf("%s (pid %d) did not exit within %s", m.Executable, h.ProcessID(), m.Timeout)))

		return fmt.Errorf("%w after %s", errTimedOut, m.Timeout)
	}

	err := h.Kill()
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stderr, a.styles.Warning.Render(
		fmt.Sprintf("%s killed after %s", m.Executable, m.Timeout)))

	return exitError{code: host.KilledExitCode}
}

// buildManifest merges the manifest file, the explicitly set flags and the
// positional command line into one validated manifest.
func buildManifest(cmd *cobra.Command, flags runFlags, args []string) (*config.Manifest, error) {
	m := &config.Manifest{Mode: host.ModeNormal}

	if flags.manifest != "" {
		var err error

		m, err = config.LoadManifest(flags.manifest)
		if err != nil {
			return nil, err
		}
	}

	if len(args) > 0 {
		m.Executable = args[0]
		m.Arguments = joinArgs(args[1:])
	}

	changed := cmd.Flags().Changed

	if changed("timeout") {
		m.Timeout = flags.timeout
	}

	if changed("kill-on-timeout") {
		m.KillOnTimeout = flags.killOnTimeout
	}

	if changed("as-child") {
		m.Mode = host.ModeNormal
		if flags.asChild {
			m.Mode = host.ModeChild
		}
	}

	if changed("track-children") {
		m.TrackChildren = flags.trackChildren
	}

	if changed("dir") {
		m.WorkDir = flags.dir
	}

	if changed("encoding") {
		m.Encoding = flags.encoding
	}

	if changed("env") {
		env, err := parseEnv(flags.env)
		if err != nil {
			return nil, err
		}

		m.Env = env
	}

	err := m.Validate()
	if err != nil {
		return nil, err
	}

	return m, nil
}

// joinArgs renders args as one command-line tail, quoting those that
// contain whitespace or quotes.
func joinArgs(args []string) string {
	quoted := make([]string, 0, len(args))

	for _, arg := range args {
		if arg != "" && !strings.ContainsAny(arg, " \t\"") {
			quoted = append(quoted, arg)

			continue
		}

		quoted = append(quoted, `"`+strings.ReplaceAll(arg, `"`, `\"`)+`"`)
	}

	return strings.Join(quoted, " ")
}

// parseEnv turns KEY=VALUE entries into a mapping. Later keys win.
func parseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))

	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", errBadEnvFlag, entry)
		}

		env[key] = value
	}

	return env, nil
}

func start(h *host.Host, m *config.Manifest) error {
	if m.Mode == host.ModeChild {
		return h.StartAsChild(m.Arguments, m.Env)
	}

	return h.Start(m.Arguments, m.Env)
}

// wait waits for exit. A zero timeout waits until the process exits.
func wait(h *host.Host, timeout time.Duration) (bool, int, error) {
	if timeout > 0 {
		return h.WaitForExitCode(timeout)
	}

	for {
		exited, code, err := h.WaitForExitCode(foreverSlice)
		if exited || err != nil {
			return exited, code, err
		}
	}
}

// unexported constants.
const (
	foreverSlice = time.Hour
	relayPoll    = 50 * time.Millisecond
)

// unexported variables.
var (
	errBadEnvFlag = errors.New("--env wants KEY=VALUE")
	errTimedOut   = errors.New("process did not exit in time")
)
