package host

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding"
)

// Direction says which way data flows through a pipe, seen from the child.
type Direction int

// Direction values.
const (
	// In pipes are written by the owner and read by the child (standard input).
	In Direction = iota
	// Out pipes are written by the child and read by the owner (standard output and error).
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Endpoint is the native half of one anonymous pipe pair.
//
// Peek, PeekRead and Read act on the read end; Write acts on the write end.
// ChildHandle is the end the child inherits. Close releases the owner's end
// and must be idempotent.
type Endpoint interface {
	ChildHandle() uintptr
	Close() error
	Peek() (int, error)
	PeekRead(p []byte) (int, error)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// ReadPipe is the owner's view of a pipe the child writes to.
type ReadPipe struct {
	p *pipe
}

// NewReadPipe wraps end as an outbound pipe.
func NewReadPipe(end Endpoint) *ReadPipe {
	return &ReadPipe{p: &pipe{dir: Out, end: end}}
}

// ChildHandle returns the handle the child inherits as its write end.
func (r *ReadPipe) ChildHandle() uintptr {
	return r.p.end.ChildHandle()
}

// Close releases the owner's end. A second Close is a no-op.
func (r *ReadPipe) Close() error {
	return r.p.close()
}

// Peek returns the number of bytes that can be read without blocking.
func (r *ReadPipe) Peek() (int, error) {
	return r.p.peek()
}

// PeekRead copies available bytes into p without removing them from the pipe.
func (r *ReadPipe) PeekRead(p []byte) (int, error) {
	return r.p.peekRead(p)
}

// Read blocks until at least one byte is available, then returns what is
// immediately available. It never waits to fill p.
func (r *ReadPipe) Read(p []byte) (int, error) {
	return r.p.read(p)
}

// ReadAllText drains the bytes available at call time and decodes them. It
// never blocks.
func (r *ReadPipe) ReadAllText(enc encoding.Encoding) (string, error) {
	enc = orDefault(enc)

	var raw []byte

	buf := make([]byte, readChunk)

	for {
		avail, err := r.p.peek()
		if err != nil {
			return decodeAll(enc, raw), err
		}

		if avail == 0 {
			return decodeAll(enc, raw), nil
		}

		n, err := r.p.read(buf[:min(avail, readChunk)])
		raw = append(raw, buf[:n]...)

		if err != nil {
			return decodeAll(enc, raw), err
		}
	}
}

// ReadAllWithTimeout waits up to timeout for data to appear, then drains it.
// It returns an empty string when nothing arrives in time.
func (r *ReadPipe) ReadAllWithTimeout(enc encoding.Encoding, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		avail, err := r.p.peek()
		if err != nil {
			return "", err
		}

		if avail > 0 || !time.Now().Before(deadline) {
			break
		}

		time.Sleep(pollInterval)
	}

	return r.ReadAllText(enc)
}

// ReadLine reads one line, consuming its terminator. A CR followed by LF is
// consumed as one terminator. The timeout is an idle timeout: it restarts on
// every successful read. When it expires the text read so far is returned,
// which may be a partial line.
func (r *ReadPipe) ReadLine(enc encoding.Encoding, timeout time.Duration) (string, error) {
	enc = orDefault(enc)
	width := unitWidth(enc)
	dec := newCharDecoder(enc)
	unit := make([]byte, width)

	var line strings.Builder

	idleSince := time.Now()

	for time.Since(idleSince) < timeout {
		avail, err := r.p.peek()
		if err != nil {
			return line.String(), err
		}

		if avail == 0 {
			time.Sleep(pollInterval)

			continue
		}

		idleSince = time.Now()

		n, err := r.p.read(unit[:min(width, avail)])
		if err != nil {
			return line.String(), err
		}

		text, ok := dec.feed(unit[:n])
		if !ok || text == "" {
			continue
		}

		for _, c := range text {
			if !IsLineEnd(c) {
				line.WriteRune(c)

				continue
			}

			if c == '\r' {
				err = r.consumeLF(enc, width)
			}

			return line.String(), err
		}
	}

	return line.String(), nil
}

// consumeLF removes a single LF unit if it is the next thing in the pipe.
func (r *ReadPipe) consumeLF(enc encoding.Encoding, width int) error {
	avail, err := r.p.peek()
	if err != nil || avail < width {
		return err
	}

	ahead := make([]byte, width)

	n, err := r.p.peekRead(ahead)
	if err != nil || n < width {
		return err
	}

	if decodeAll(enc, ahead[:n]) != "\n" {
		return nil
	}

	_, err = r.p.read(ahead[:n])

	return err
}

// WritePipe is the owner's view of a pipe the child reads from.
type WritePipe struct {
	p *pipe
}

// NewWritePipe wraps end as an inbound pipe.
func NewWritePipe(end Endpoint) *WritePipe {
	return &WritePipe{p: &pipe{dir: In, end: end}}
}

// ChildHandle returns the handle the child inherits as its read end.
func (w *WritePipe) ChildHandle() uintptr {
	return w.p.end.ChildHandle()
}

// Close releases the owner's end. A second Close is a no-op.
func (w *WritePipe) Close() error {
	return w.p.close()
}

// Write writes all of p to the pipe.
func (w *WritePipe) Write(p []byte) (int, error) {
	return w.p.write(p)
}

// WriteAllText encodes text and writes it without adding a terminator.
func (w *WritePipe) WriteAllText(enc encoding.Encoding, text string) error {
	raw, err := encodeAll(orDefault(enc), text)
	if err != nil {
		return err
	}

	_, err = w.p.write(raw)

	return err
}

// WriteLine encodes text followed by NewLine and writes it.
func (w *WritePipe) WriteLine(enc encoding.Encoding, text string) error {
	return w.WriteAllText(enc, text+NewLine)
}

// pipe checks every native operation against its direction before
// delegating to the endpoint.
type pipe struct {
	dir Direction
	end Endpoint
}

func (p *pipe) close() error {
	return p.end.Close()
}

func (p *pipe) peek() (int, error) {
	if p.dir != Out {
		return 0, wrongDirection("peek", p.dir)
	}

	return p.end.Peek()
}

func (p *pipe) peekRead(buf []byte) (int, error) {
	if p.dir != Out {
		return 0, wrongDirection("peek read", p.dir)
	}

	return p.end.PeekRead(buf)
}

func (p *pipe) read(buf []byte) (int, error) {
	if p.dir != Out {
		return 0, wrongDirection("read", p.dir)
	}

	return p.end.Read(buf)
}

func (p *pipe) write(buf []byte) (int, error) {
	if p.dir != In {
		return 0, wrongDirection("write", p.dir)
	}

	written := 0

	for written < len(buf) {
		n, err := p.end.Write(buf[written:])
		written += n

		if err != nil {
			return written, err
		}

		if n == 0 {
			return written, NewOSError("write pipe", io.ErrShortWrite)
		}
	}

	return written, nil
}

// unexported constants.
const (
	pollInterval = time.Millisecond
	readChunk    = 1024
)
