package host

import "strings"

// CommandLine joins the executable path and the argument string into a
// single native command line. The path is quoted unless it already carries
// a quote; args are appended verbatim.
func CommandLine(path, args string) string {
	line := quotePath(path)
	if args == "" {
		return line
	}

	return line + " " + args
}

func quotePath(path string) string {
	if strings.Contains(path, `"`) {
		return path
	}

	return `"` + path + `"`
}
