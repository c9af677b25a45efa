package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/toejough/prochost/internal/config"
	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/shell"
)

// shellFlags holds the flags for the shell command.
type shellFlags struct {
	prompt      string
	exitCommand string
	dir         string
	encoding    string
}

func (a *app) shellCommand() *cobra.Command {
	var flags shellFlags

	cmd := &cobra.Command{
		Use:   "shell [flags] executable [args...]",
		Short: "Drive an interactive program one prompt at a time",
		Long: `Shell starts a line-prompt program, prints its banner, and then sends
each line read from stdin as a command, printing the output up to the next
prompt. End of input, or the exit command, ends the session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m := &config.Manifest{
				Executable: args[0],
				Arguments:  joinArgs(args[1:]),
				WorkDir:    flags.dir,
				Encoding:   flags.encoding,
				Mode:       host.ModeNormal,
			}

			err := m.Validate()
			if err != nil {
				return err
			}

			return a.shell(m, flags)
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "p", "> ", "text the program prints when ready for input")
	cmd.Flags().StringVarP(&flags.exitCommand, "exit-command", "x", "exit", "command that makes the program quit")
	cmd.Flags().StringVarP(&flags.dir, "dir", "d", "", "working directory")
	cmd.Flags().StringVar(&flags.encoding, "encoding", "", "IANA name of the program's text encoding")

	return cmd
}

// shell bridges stdin lines to the program until input ends or the exit
// command is entered.
func (a *app) shell(m *config.Manifest, flags shellFlags) (err error) {
	h, _, err := a.newHost(m)
	if err != nil {
		return err
	}

	defer a.cleanup.track(h)()

	s, banner, err := shell.Start(h, m.Arguments, flags.prompt, flags.exitCommand,
		shell.WithLogger(a.log),
		shell.WithPollInterval(a.settings.ShellPollInterval),
	)
	if err != nil {
		return err
	}

	defer multierr.AppendInvoke(&err, multierr.Invoke(s.Terminate))

	a.printOutput(banner)

	lines := bufio.NewScanner(a.stdin)
	for lines.Scan() {
		if lines.Text() == flags.exitCommand {
			return nil
		}

		out, err := s.SendAndReceive(lines.Text())
		if err != nil {
			return err
		}

		a.printOutput(out)
	}

	return lines.Err()
}

func (a *app) printOutput(out shell.Output) {
	if out.Stderr != "" {
		fmt.Fprint(a.stderr, a.styles.Warning.Render(out.Stderr))
	}

	fmt.Fprint(a.stdout, out.Stdout)
}
