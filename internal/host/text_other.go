//go:build !windows

package host

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

func platformEncoding() encoding.Encoding {
	return unicode.UTF8
}
