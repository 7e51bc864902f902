package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEscapeUnprintable(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte("tab\there"), `tab\u0009here`},
		{[]byte{'a', 0xff, 'b'}, `a\xFFb`},
		{[]byte("héllo"), "héllo"},
	}
	for _, tt := range tests {
		if got := EscapeUnprintable(tt.in); got != tt.want {
			t.Errorf("EscapeUnprintable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRecovered(t *testing.T) {
	s, hex := FormatRecovered([]byte("k\x01"))
	if s != `k\u0001` || hex != "6b01" {
		t.Errorf("FormatRecovered() = %q, %q", s, hex)
	}
}

func TestReadCString(t *testing.T) {
	mem := fakeMem{
		0x100: []byte("key\x00"),
		0x200: []byte("secret-key\x00"),
		0x300: []byte{'a', 'b', 'c', 'd', 0x90, 0},
		0x400: []byte("unterminated"),
	}
	tests := []struct {
		name string
		va   uint64
		max  int
		want string
		ok   bool
	}{
		{"too short", 0x100, MaxStringLength, "", false},
		{"terminated", 0x200, MaxStringLength, "secret-key", true},
		{"binary", 0x300, MaxStringLength, "", false},
		{"runs to end of memory", 0x400, MaxStringLength, "unterminated", true},
		{"cut", 0x200, 6, "secret", true},
		{"null", 0, MaxStringLength, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReadCString(mem, tt.va, tt.max)
			if ok != tt.ok || got.Value != tt.want {
				t.Errorf("ReadCString() = %q, %v; want %q, %v", got.Value, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	buf := []byte("\x00\x01abc\x00hello\x02\x03world!\x00")
	want := []StringResult{
		{VA: 0x1006, Value: "hello", Len: 5},
		{VA: 0x100d, Value: "world!", Len: 6},
	}
	if diff := cmp.Diff(want, Strings(buf, 0x1000, 4)); diff != "" {
		t.Errorf("Strings() mismatch (-want +got):\n%s", diff)
	}
}
