// Package shell drives a hosted line-prompt program: it reads output until
// the program prints its prompt, and sends commands one line at a time.
package shell

import (
	"context"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/toejough/prochost/internal/host"
)

// Exported constants.
const (
	// DefaultExitGrace is how long Terminate waits for the program to quit.
	DefaultExitGrace = time.Second
	// DefaultPollInterval is the pause between output polls.
	DefaultPollInterval = 20 * time.Millisecond
)

// Option configures a Shell.
type Option func(*Shell)

// Output is what the program wrote while a command ran.
type Output struct {
	Stdout string
	Stderr string
}

// Process is the hosted program a Shell talks to. *host.Host satisfies it.
type Process interface {
	Close() error
	Encoding() encoding.Encoding
	Stderr() *host.ReadPipe
	Stdin() *host.WritePipe
	Stdout() *host.ReadPipe
	WaitForExit(timeout time.Duration) (bool, error)
}

// Shell speaks the prompt protocol over a Process's pipes.
type Shell struct {
	proc         Process
	prompt       string
	exitCommand  string
	enc          encoding.Encoding
	pollInterval time.Duration
	exitGrace    time.Duration
	log          *zap.Logger
}

// New wraps proc, which must already be running. prompt is what the program
// prints when it is ready for input; exitCommand makes it quit.
func New(proc Process, prompt, exitCommand string, opts ...Option) *Shell {
	s := &Shell{
		proc:         proc,
		prompt:       prompt,
		exitCommand:  exitCommand,
		enc:          proc.Encoding(),
		pollInterval: DefaultPollInterval,
		exitGrace:    DefaultExitGrace,
		log:          zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start starts h with args, wraps it, and reads the program's banner up to
// its first prompt.
func Start(h *host.Host, args, prompt, exitCommand string, opts ...Option) (*Shell, Output, error) {
	err := h.Start(args, nil)
	if err != nil {
		return nil, Output{}, err
	}

	s := New(h, prompt, exitCommand, opts...)

	banner, err := s.ReadToPrompt()
	if err != nil {
		return nil, banner, multierr.Append(err, h.Close())
	}

	return s, banner, nil
}

// WithEncoding overrides the process's encoding for this shell.
func WithEncoding(enc encoding.Encoding) Option {
	return func(s *Shell) {
		if enc != nil {
			s.enc = enc
		}
	}
}

// WithExitGrace sets how long Terminate waits for the program to quit
// before the host kills it.
func WithExitGrace(d time.Duration) Option {
	return func(s *Shell) {
		s.exitGrace = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Shell) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPollInterval sets the pause between output polls.
func WithPollInterval(d time.Duration) Option {
	return func(s *Shell) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// ReadToPrompt collects stdout and stderr until stdout is exactly the prompt
// or ends with a newline followed by the prompt. It has no timeout: a
// program that never prompts blocks it forever. Use ReadToPromptContext to
// bound it.
func (s *Shell) ReadToPrompt() (Output, error) {
	return s.ReadToPromptContext(context.Background())
}

// ReadToPromptContext is ReadToPrompt that gives up when ctx is done,
// returning what was collected so far with ctx's error.
func (s *Shell) ReadToPromptContext(ctx context.Context) (Output, error) {
	var stdout, stderr []byte

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		var err error

		stderr, err = drain(s.proc.Stderr(), stderr)
		if err != nil {
			return s.output(stdout, stderr), err
		}

		stdout, err = drain(s.proc.Stdout(), stdout)
		if err != nil {
			return s.output(stdout, stderr), err
		}

		if s.atPrompt(host.Decode(s.enc, stdout)) {
			break
		}

		select {
		case <-ctx.Done():
			return s.output(stdout, stderr), ctx.Err()
		case <-ticker.C:
		}
	}

	stderr, err := drain(s.proc.Stderr(), stderr)

	return s.output(stdout, stderr), err
}

// SendAndReceive sends text as one line and reads to the next prompt.
func (s *Shell) SendAndReceive(text string) (Output, error) {
	err := s.send(text)
	if err != nil {
		return Output{}, err
	}

	return s.ReadToPrompt()
}

// Terminate sends the exit command, gives the program the exit grace period
// to quit, and closes the host.
func (s *Shell) Terminate() error {
	err := s.send(s.exitCommand)
	if err == nil {
		_, err = s.proc.WaitForExit(s.exitGrace)
	}

	return multierr.Append(err, s.proc.Close())
}

func (s *Shell) atPrompt(stdout string) bool {
	return stdout == s.prompt || strings.HasSuffix(stdout, "\n"+s.prompt)
}

func (s *Shell) output(stdout, stderr []byte) Output {
	return Output{Stdout: host.Decode(s.enc, stdout), Stderr: host.Decode(s.enc, stderr)}
}

func (s *Shell) send(text string) error {
	s.log.Debug("sending shell command", zap.String("command", text))

	return s.proc.Stdin().WriteLine(s.enc, text)
}

// drain appends every byte available on p without blocking.
func drain(p *host.ReadPipe, into []byte) ([]byte, error) {
	buf := make([]byte, readChunk)

	for {
		avail, err := p.Peek()
		if err != nil || avail == 0 {
			return into, err
		}

		n, err := p.Read(buf[:min(avail, readChunk)])
		into = append(into, buf[:n]...)

		if err != nil {
			return into, err
		}
	}
}

// unexported constants.
const (
	readChunk = 128
)
