package host

import "golang.org/x/text/encoding"

// Exported constants.
const (
	DBGContinueForTest            = dbgContinue
	DBGExceptionNotHandledForTest = dbgExceptionNotHandled
	ExceptionDebugEventForTest    = exceptionDebugEvent
	ExitProcessDebugEventForTest  = exitProcessDebugEvent
	StatusBreakpointForTest       = statusBreakpoint
)

// Exported variables.
var (
	ErrProcessGoneForTest  = errProcessGone
	PumpDebugEventsForTest = pumpDebugEvents
	QuotePathForTest       = quotePath
	UnitWidthForTest       = unitWidth
	WithPlatformForTest    = withPlatform
)

type (
	DebugEventForTest  = debugEvent
	DebugEventsForTest = debugEvents
	LaunchSpecForTest  = launchSpec
	PlatformForTest    = platform
	ProcessForTest     = process
	WaiterForTest      = waiter
)

// DecodeStreamForTest feeds raw through a charDecoder in chunks of size
// bytes and returns the concatenated output.
func DecodeStreamForTest(enc encoding.Encoding, raw []byte, size int) string {
	dec := newCharDecoder(enc)

	var out string

	for start := 0; start < len(raw); start += size {
		text, ok := dec.feed(raw[start:min(start+size, len(raw))])
		if ok {
			out += text
		}
	}

	return out
}

// PipeOpForTest runs op ("peek", "peekRead", "read" or "write") on a pipe
// of direction dir.
func PipeOpForTest(dir Direction, op string, end Endpoint) error {
	p := &pipe{dir: dir, end: end}
	buf := make([]byte, 1)

	var err error

	switch op {
	case "peek":
		_, err = p.peek()
	case "peekRead":
		_, err = p.peekRead(buf)
	case "read":
		_, err = p.read(buf)
	case "write":
		_, err = p.write(buf)
	}

	return err
}
