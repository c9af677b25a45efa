//go:build windows

package host

import (
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// platformEncoding maps the active ANSI code page to an encoding, falling
// back to UTF-8 for code pages the index does not know.
func platformEncoding() encoding.Encoding {
	return codePageEncoding(windows.GetACP())
}

func codePageEncoding(cp uint32) encoding.Encoding {
	name, ok := codePageNames[cp]
	if !ok {
		name = fmt.Sprintf("windows-%d", cp)
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return unicode.UTF8
	}

	return enc
}

// unexported variables.
var (
	//nolint:gochecknoglobals // lookup table
	codePageNames = map[uint32]string{
		437:   "IBM437",
		850:   "IBM850",
		866:   "IBM866",
		932:   "Shift_JIS",
		936:   "GBK",
		949:   "EUC-KR",
		950:   "Big5",
		1200:  "UTF-16LE",
		1201:  "UTF-16BE",
		20866: "KOI8-R",
		28591: "ISO-8859-1",
		65001: "UTF-8",
	}
)
