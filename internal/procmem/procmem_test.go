package procmem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"roach/internal/disasm"
)

type record struct {
	addr                uint64
	state, typ, protect uint32
	data                []byte
}

func build(records ...record) []byte {
	var b bytes.Buffer
	for _, r := range records {
		binary.Write(&b, binary.LittleEndian, recordHeader{
			Addr: r.addr, Size: uint32(len(r.data)), State: r.state, Type: r.typ, Protect: r.protect,
		})
		b.Write(r.data)
	}
	return b.Bytes()
}

func page(c byte, n int) []byte { return bytes.Repeat([]byte{c}, n*0x1000) }

// dummyDump mirrors a three-region dump: an RX page of A, two RW pages of
// B stored as separate records, and a lone page of C elsewhere.
func dummyDump() []byte {
	return build(
		record{0x41410000, 0x1000, 0x20000, 0x20, page('A', 1)},
		record{0x41411000, 0x1000, 0x20000, 0x04, page('B', 1)},
		record{0x41412000, 0x1000, 0x20000, 0x04, page('B', 1)},
		record{0x42420000, 0x1000, 0x20000, 0x04, page('C', 1)},
	)
}

func TestParseMergesRegions(t *testing.T) {
	d, err := Parse(dummyDump())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var got []string
	for _, r := range d.Regions() {
		got = append(got, r.String())
	}
	want := []string{
		`0x41410000 .. 0x41411000 "AAAAAAAAAAAAAAAA"`,
		`0x41411000 .. 0x41413000 "BBBBBBBBBBBBBBBB"`,
		`0x42420000 .. 0x42421000 "CCCCCCCCCCCCCCCC"`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	full := dummyDump()
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"short header", full[:10], ErrShortHeader},
		{"short data", full[:recordHeaderSize+100], ErrShortData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}

	overlap := build(
		record{0x1000, 0, 0, 0, page('A', 1)},
		record{0x1800, 0, 0, 0, page('B', 1)},
	)
	if _, err := Parse(overlap); err == nil {
		t.Error("overlapping records should fail")
	}

	d, err := Parse(nil)
	if err != nil || len(d.Regions()) != 0 {
		t.Errorf("Parse(nil) = %v, %v", d.Regions(), err)
	}
}

func TestReadVA(t *testing.T) {
	d, err := Parse(dummyDump())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		addr    uint64
		n       int
		want    []byte
		wantErr error
	}{
		{"inside", 0x41410010, 4, []byte("AAAA"), nil},
		{"across regions", 0x41410ffe, 4, []byte("AABB"), nil},
		{"into gap", 0x41412ffe, 4, nil, ErrUnmapped},
		{"unmapped", 0x1000, 1, nil, ErrUnmapped},
		{"zero length", 0x42420000, 0, []byte{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.ReadVA(tt.addr, tt.n)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadVA() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !bytes.Equal(got, tt.want) {
				t.Errorf("ReadVA() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	code := append([]byte{0x55, 0x8b, 0xec, 0xc3}, make([]byte, 0x1000-4)...)
	d, err := Parse(build(record{0x00401000, 0x1000, 0x20000, 0x20, code}))
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.Disassemble(disasm.NewDecoder(), 0x00401000)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for s.Next() && len(got) < 3 {
		got = append(got, s.Inst().String())
	}
	if diff := cmp.Diff([]string{"push ebp", "mov ebp, esp", "ret"}, got); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
	if _, err := d.Disassemble(disasm.NewDecoder(), 0x500000); !errors.Is(err, ErrUnmapped) {
		t.Errorf("unmapped: err = %v", err)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dummy.dmp")
	if err := os.WriteFile(path, dummyDump(), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if n := len(d.Regions()); n != 3 {
		t.Errorf("got %d regions, want 3", n)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Open(missing) should fail")
	}
}
