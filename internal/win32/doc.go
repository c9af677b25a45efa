// Package win32 binds the few Windows primitives golang.org/x/sys/windows
// does not export: named-pipe peeking, logon-based process creation and the
// debug event loop.
package win32
