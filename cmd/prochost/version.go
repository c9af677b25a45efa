package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			version, goVersion := buildVersion()

			fmt.Fprintln(a.stdout, a.styles.Header.Render("prochost "+version))
			fmt.Fprintf(a.stdout, "  %s %s\n", a.styles.Label.Render("go version:"), goVersion)

			return nil
		},
	}
}

func buildVersion() (version, goVersion string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return develVersion, "unknown"
	}

	version = info.Main.Version
	if version == "" {
		version = develVersion
	}

	return version, info.GoVersion
}

// unexported constants.
const (
	develVersion = "(devel)"
)
