package host

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewLine is the line terminator appended by WriteLine and shell commands.
const NewLine = "\r\n"

// DefaultEncoding returns the encoding text helpers use when none is supplied.
// On Windows this is the active ANSI code page; elsewhere it is UTF-8.
func DefaultEncoding() encoding.Encoding {
	return platformEncoding()
}

// Decode decodes raw with enc, or the default encoding when enc is nil.
// Bytes the decoder rejects are returned as they are.
func Decode(enc encoding.Encoding, raw []byte) string {
	return decodeAll(orDefault(enc), raw)
}

// IsLineEnd reports whether r terminates a line: LF, VT, FF, CR, NEL, LS or PS.
func IsLineEnd(r rune) bool {
	switch r {
	case '\n', '\v', '\f', '\r', '\u0085', '\u2028', '\u2029':
		return true
	default:
		return false
	}
}

// charDecoder turns a stream of raw units into characters without splitting
// multi-byte sequences.
type charDecoder struct {
	dec     *encoding.Decoder
	pending []byte
	out     [utf8Max * 4]byte
}

func newCharDecoder(enc encoding.Encoding) *charDecoder {
	return &charDecoder{dec: enc.NewDecoder()}
}

// feed appends raw bytes and returns the decoded text once they form at
// least one complete character. ok is false while a sequence is incomplete.
func (c *charDecoder) feed(raw []byte) (string, bool) {
	c.pending = append(c.pending, raw...)
	c.dec.Reset()

	nDst, nSrc, err := c.dec.Transform(c.out[:], c.pending, false)
	if nDst == 0 && errors.Is(err, transform.ErrShortSrc) && len(c.pending) < utf8Max {
		return "", false
	}

	if nSrc == 0 {
		// Undecodable; drop it rather than stall the stream.
		c.pending = c.pending[:0]

		return "", true
	}

	c.pending = append(c.pending[:0], c.pending[nSrc:]...)

	return string(c.out[:nDst]), true
}

// decodeAll decodes a complete byte slice, falling back to the raw bytes if
// the decoder rejects them.
func decodeAll(enc encoding.Encoding, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	text, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}

	return string(text)
}

func encodeAll(enc encoding.Encoding, text string) ([]byte, error) {
	raw, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}

	return raw, nil
}

func orDefault(enc encoding.Encoding) encoding.Encoding {
	if enc == nil {
		return DefaultEncoding()
	}

	return enc
}

// unitWidth is the size in bytes of the smallest code unit of enc.
func unitWidth(enc encoding.Encoding) int {
	for _, e := range []unicode.Endianness{unicode.LittleEndian, unicode.BigEndian} {
		for _, b := range []unicode.BOMPolicy{unicode.IgnoreBOM, unicode.UseBOM, unicode.ExpectBOM} {
			if enc == unicode.UTF16(e, b) {
				return 2
			}
		}
	}

	return 1
}

// unexported constants.
const (
	utf8Max = 4
)
