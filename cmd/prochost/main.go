// Package main provides the prochost CLI, which runs a program under a
// process host and reports what it did.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toejough/prochost/internal/config"
	"github.com/toejough/prochost/internal/logging"
	"github.com/toejough/prochost/internal/metrics"
)

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app holds the state shared by every subcommand of one invocation.
type app struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	styles   Styles
	settings *config.Settings
	log      *zap.Logger
	metrics  *metrics.Collector
	cleanup  *interruptCleanup
}

// exitError carries the child's exit code out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// setup loads settings from the environment and builds the logger and
// metrics every command uses.
func (a *app) setup() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(settings.LogConfig())
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	a.settings = settings
	a.log = log
	a.metrics = metrics.NewCollector("")
	a.cleanup = newInterruptCleanup(log, os.Exit)

	return nil
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "prochost",
		Short: "Run programs under a supervising process host",
		Long: `prochost launches a program with its standard streams on pipes,
waits for it with an optional timeout, and can tie its descendants to the
host's lifetime.

Settings are read from PROCHOST_* environment variables.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.AddCommand(a.runCommand(), a.shellCommand(), a.versionCommand())

	return root
}

func runMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		styles: DefaultStyles(),
		log:    zap.NewNop(),
	}

	root := a.rootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if a.log != nil {
		_ = a.log.Sync()
	}

	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	if err != nil {
		fmt.Fprintln(stderr, a.styles.Error.Render("error:"), err)

		return 1
	}

	return 0
}
