// Package compress unpacks the compression and encoding layers payloads
// are commonly wrapped in.
package compress

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var (
	// ErrCorrupt is returned for malformed or inconsistent input.
	ErrCorrupt = errors.New("corrupt input")
	// ErrTooLarge is returned when output would exceed MaxOutput.
	ErrTooLarge = errors.New("output exceeds limit")
)

// Gzip inflates a gzip or zlib stream, chosen by the leading magic.
func Gzip(buf []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	switch {
	case bytes.HasPrefix(buf, []byte{0x1f, 0x8b}):
		r, err = gzip.NewReader(bytes.NewReader(buf))
	case len(buf) >= 2 && buf[0]&0x0f == 8 && (uint16(buf[0])<<8|uint16(buf[1]))%31 == 0:
		r, err = zlib.NewReader(bytes.NewReader(buf))
	default:
		return nil, fmt.Errorf("gzip: %w: no gzip or zlib header", ErrCorrupt)
	}
	if err != nil {
		return nil, fmt.Errorf("gzip: %w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxOutput+1))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w: %v", ErrCorrupt, err)
	}
	if len(out) > MaxOutput {
		return nil, fmt.Errorf("gzip: %w", ErrTooLarge)
	}
	return out, nil
}

// Base64 decodes standard base64, ignoring embedded whitespace and
// tolerating missing padding.
func Base64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return b, nil
}

// Unhex decodes a hex string, ignoring whitespace and an optional 0x
// prefix.
func Unhex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("unhex: %w", err)
	}
	return b, nil
}
