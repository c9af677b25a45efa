package host_test

import (
	"io"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"pgregory.net/rapid"

	"github.com/toejough/prochost/internal/host"
	"github.com/toejough/prochost/internal/pipetest"
)

func TestProperty_WrongDirectionIsAContractViolation(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		g := NewWithT(t)
		op := rapid.SampledFrom([]string{"peek", "peekRead", "read", "write"}).Draw(t, "op")
		end := pipetest.New(1)
		end.FeedString(rapid.String().Draw(t, "pending"))

		dir := host.Out
		if op != "write" {
			dir = host.In
		}

		err := host.PipeOpForTest(dir, op, end)
		g.Expect(err).To(MatchError(host.ErrWrongDirection))
		g.Expect(err).To(MatchError(host.ErrContract))
		g.Expect(err.Error()).To(ContainSubstring(dir.String()))
		g.Expect(end.Written()).To(BeEmpty())
	})
}

func TestDirection_String(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(host.In.String()).To(Equal("in"))
	g.Expect(host.Out.String()).To(Equal("out"))
	g.Expect(host.Direction(9).String()).To(Equal("direction(9)"))
}

func TestReadPipe_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	end.CloseErr = errBoom
	r := host.NewReadPipe(end)

	g.Expect(r.Close()).To(MatchError(errBoom))
	g.Expect(r.Close()).To(Succeed())
}

func TestReadPipe_PeekLeavesData(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	end.FeedString("abc")
	r := host.NewReadPipe(end)

	n, err := r.Peek()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(n).To(Equal(3))

	buf := make([]byte, 2)
	n, err = r.PeekRead(buf)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(buf[:n])).To(Equal("ab"))

	buf = make([]byte, 8)
	n, err = r.Read(buf)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(buf[:n])).To(Equal("abc"))
}

func TestReadPipe_ReadAllText(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	r := host.NewReadPipe(end)

	text, err := r.ReadAllText(unicode.UTF8)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(text).To(BeEmpty())

	end.FeedString("hello world")

	text, err = r.ReadAllText(unicode.UTF8)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(text).To(Equal("hello world"))

	n, err := r.Peek()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(n).To(BeZero())
}

func TestReadPipe_ReadAllTextDecodes(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	end.Feed([]byte{'c', 'a', 'f', 0xe9})

	text, err := host.NewReadPipe(end).ReadAllText(charmap.Windows1252)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(text).To(Equal("café"))
}

func TestReadPipe_ReadAllWithTimeout(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	r := host.NewReadPipe(end)

	start := time.Now()
	text, err := r.ReadAllWithTimeout(unicode.UTF8, 20*time.Millisecond)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(text).To(BeEmpty())
	g.Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		end.FeedString("late")
	}()

	text, err = r.ReadAllWithTimeout(unicode.UTF8, 5*time.Second)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(text).To(Equal("late"))
}

func TestReadPipe_ReadLine(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		fed   string
		lines []string
	}{
		"crlf":             {fed: "one\r\ntwo\r\n", lines: []string{"one", "two"}},
		"lf":               {fed: "one\ntwo\n", lines: []string{"one", "two"}},
		"lone cr":          {fed: "one\rtwo\r", lines: []string{"one", "two"}},
		"lf cr is two":     {fed: "one\n\rtwo\n", lines: []string{"one", "", "two"}},
		"form feed":        {fed: "one\ftwo\v", lines: []string{"one", "two"}},
		"unicode breaks":   {fed: "one\u2028two\u2029three\u0085", lines: []string{"one", "two", "three"}},
		"multi-byte chars": {fed: "héllo wörld\r\n", lines: []string{"héllo wörld"}},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			end := pipetest.New(1)
			end.FeedString(tc.fed)
			r := host.NewReadPipe(end)

			for _, want := range tc.lines {
				line, err := r.ReadLine(unicode.UTF8, time.Second)
				g.Expect(err).ToNot(HaveOccurred())
				g.Expect(line).To(Equal(want))
			}

			n, err := r.Peek()
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(n).To(BeZero())
		})
	}
}

func TestReadPipe_ReadLineReturnsPartialLineOnTimeout(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	end.FeedString("no terminator")
	r := host.NewReadPipe(end)

	line, err := r.ReadLine(unicode.UTF8, 30*time.Millisecond)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(line).To(Equal("no terminator"))
}

func TestReadPipe_ReadLineTimeoutIsIdle(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	r := host.NewReadPipe(end)

	go func() {
		for _, part := range []string{"sl", "ow", "ly\n"} {
			time.Sleep(20 * time.Millisecond)
			end.FeedString(part)
		}
	}()

	line, err := r.ReadLine(unicode.UTF8, 2*time.Second)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(line).To(Equal("slowly"))
}

func TestReadPipe_ReadLineUTF16(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	raw, err := enc.NewEncoder().Bytes([]byte("first 🎉\r\nsecond\n"))
	g.Expect(err).ToNot(HaveOccurred())

	end := pipetest.New(1)
	end.Feed(raw)
	r := host.NewReadPipe(end)

	line, err := r.ReadLine(enc, time.Second)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(line).To(Equal("first 🎉"))

	line, err = r.ReadLine(enc, time.Second)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(line).To(Equal("second"))
}

func TestReadPipe_ReadSurfacesEndpointErrors(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(1)
	r := host.NewReadPipe(end)
	g.Expect(end.Close()).To(Succeed())

	_, err := r.ReadAllText(nil)
	g.Expect(err).To(MatchError(pipetest.ErrClosed))

	_, err = r.ReadLine(nil, time.Second)
	g.Expect(err).To(MatchError(pipetest.ErrClosed))
}

func TestWritePipe_ShortWriteIsAnOSError(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	w := host.NewWritePipe(stalledEndpoint{Endpoint: pipetest.New(1)})

	err := w.WriteAllText(unicode.UTF8, "stuck")
	g.Expect(err).To(MatchError(io.ErrShortWrite))

	var osErr *host.OSError
	g.Expect(err).To(BeAssignableToTypeOf(osErr))
}

func TestWritePipe_WriteLine(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	end := pipetest.New(7)
	w := host.NewWritePipe(end)

	g.Expect(w.ChildHandle()).To(Equal(uintptr(7)))
	g.Expect(w.WriteLine(charmap.Windows1252, "café")).To(Succeed())
	g.Expect(w.WriteAllText(unicode.UTF8, "!")).To(Succeed())
	g.Expect(end.Written()).To(Equal([]byte{'c', 'a', 'f', 0xe9, '\r', '\n', '!'}))

	g.Expect(w.Close()).To(Succeed())
	g.Expect(w.WriteLine(nil, "late")).To(MatchError(pipetest.ErrClosed))
}

func TestWritePipe_UnencodableText(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	w := host.NewWritePipe(pipetest.New(1))

	g.Expect(w.WriteAllText(charmap.Windows1252, "日本")).ToNot(Succeed())
}

// stalledEndpoint accepts nothing.
type stalledEndpoint struct {
	*pipetest.Endpoint
}

func (stalledEndpoint) Write([]byte) (int, error) {
	return 0, nil
}
