package analysis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Memory is the address space strings and pointers are read from. Both
// *elfx.Image and *procmem.Dump implement it.
type Memory interface {
	ReadVA(va uint64, n int) ([]byte, error)
}

// StringResult represents a recovered string with metadata
type StringResult struct {
	VA    uint64
	Value string // Escaped string content
	Len   int    // Original byte length
}

// EscapeUnprintable returns a string where printable Unicode runes are preserved.
// Control and unprintable runes are escaped as \uXXXX. Invalid UTF-8 is escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&sb, "\\x%02X", b[0])
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
		} else {
			fmt.Fprintf(&sb, "\\u%04X", r)
		}
		b = b[size:]
	}
	return sb.String()
}

// FormatRecovered returns both the escaped Unicode string and the hex encoding.
// Use for debug and log of recovered secrets.
func FormatRecovered(b []byte) (string, string) {
	return EscapeUnprintable(b), fmt.Sprintf("%x", b)
}

func isText(c byte) bool {
	return c == '\t' || c == '\n' || c == '\r' || (c >= 0x20 && c < 0x7f)
}

// ReadCString reads a NUL-terminated string of text bytes at va. It fails
// when the bytes at va are not text or the run is shorter than
// MinStringLength. Strings longer than maxLen are cut.
func ReadCString(mem Memory, va uint64, maxLen int) (StringResult, bool) {
	if mem == nil || va == 0 {
		return StringResult{}, false
	}
	var raw []byte
	for len(raw) < maxLen {
		c, err := mem.ReadVA(va+uint64(len(raw)), 1)
		if err != nil || c[0] == 0 {
			break
		}
		if !isText(c[0]) {
			return StringResult{}, false
		}
		raw = append(raw, c[0])
	}
	if len(raw) < MinStringLength {
		return StringResult{}, false
	}
	return StringResult{VA: va, Value: EscapeUnprintable(raw), Len: len(raw)}, true
}

// Strings extracts runs of at least minLen text bytes from buf, the way
// strings(1) does. base is the address of buf[0].
func Strings(buf []byte, base uint64, minLen int) []StringResult {
	if minLen < 1 {
		minLen = MinStringLength
	}
	var out []StringResult
	flush := func(start, end int) {
		if end-start >= minLen {
			out = append(out, StringResult{
				VA:    base + uint64(start),
				Value: EscapeUnprintable(buf[start:end]),
				Len:   end - start,
			})
		}
	}
	start := -1
	for i, c := range buf {
		switch {
		case isText(c) && start < 0:
			start = i
		case !isText(c) && start >= 0:
			flush(start, i)
			start = -1
		}
	}
	if start >= 0 {
		flush(start, len(buf))
	}
	return out
}
