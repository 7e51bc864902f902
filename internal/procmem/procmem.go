// Package procmem reads process memory dumps made of consecutive region
// records, as written by sandbox memory dumpers.
package procmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"roach/internal/disasm"
)

var (
	// ErrShortHeader is returned when a record header is cut off.
	ErrShortHeader = errors.New("procmem: short record header")
	// ErrShortData is returned when a record's payload is cut off.
	ErrShortData = errors.New("procmem: short record data")
	// ErrUnmapped is returned for reads outside every region.
	ErrUnmapped = errors.New("procmem: address not mapped")
)

// recordHeader is the on-disk header preceding each region's bytes.
type recordHeader struct {
	Addr    uint64
	Size    uint32
	State   uint32
	Type    uint32
	Protect uint32
}

const recordHeaderSize = 24

// Region is a contiguous run of dumped memory with uniform attributes.
type Region struct {
	Addr    uint64
	State   uint32
	Type    uint32
	Protect uint32
	Data    []byte
}

// End is the first address past the region.
func (r Region) End() uint64 { return r.Addr + uint64(len(r.Data)) }

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uint64) bool { return addr >= r.Addr && addr < r.End() }

func (r Region) String() string {
	preview := r.Data
	if len(preview) > 16 {
		preview = preview[:16]
	}
	return fmt.Sprintf("0x%08x .. 0x%08x %q", r.Addr, r.End(), preview)
}

func (r Region) sameAttrs(o Region) bool {
	return r.State == o.State && r.Type == o.Type && r.Protect == o.Protect
}

// Dump is a parsed memory dump. Regions are sorted by address and never
// overlap.
type Dump struct {
	regions []Region
}

// Open reads and parses the dump at path.
func Open(path string) (*Dump, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	d, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a dump. Records that follow each other in memory and share
// state, type and protection are merged into one region.
func Parse(buf []byte) (*Dump, error) {
	var records []Region
	for off := 0; off < len(buf); {
		if len(buf)-off < recordHeaderSize {
			return nil, fmt.Errorf("%w at offset %d", ErrShortHeader, off)
		}
		h := recordHeader{
			Addr:    binary.LittleEndian.Uint64(buf[off:]),
			Size:    binary.LittleEndian.Uint32(buf[off+8:]),
			State:   binary.LittleEndian.Uint32(buf[off+12:]),
			Type:    binary.LittleEndian.Uint32(buf[off+16:]),
			Protect: binary.LittleEndian.Uint32(buf[off+20:]),
		}
		off += recordHeaderSize
		if uint64(len(buf)-off) < uint64(h.Size) {
			return nil, fmt.Errorf("%w: record at 0x%08x wants %d bytes, %d left", ErrShortData, h.Addr, h.Size, len(buf)-off)
		}
		records = append(records, Region{
			Addr:    h.Addr,
			State:   h.State,
			Type:    h.Type,
			Protect: h.Protect,
			Data:    buf[off : off+int(h.Size)],
		})
		off += int(h.Size)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Addr < records[j].Addr })

	var regions []Region
	for _, r := range records {
		if len(r.Data) == 0 {
			continue
		}
		if n := len(regions); n > 0 {
			last := &regions[n-1]
			if r.Addr < last.End() {
				return nil, fmt.Errorf("procmem: record at 0x%08x overlaps region ending at 0x%08x", r.Addr, last.End())
			}
			if r.Addr == last.End() && last.sameAttrs(r) {
				last.Data = append(last.Data, r.Data...)
				continue
			}
		}
		r.Data = append([]byte(nil), r.Data...)
		regions = append(regions, r)
	}
	slog.Debug("parsed memory dump", "records", len(records), "regions", len(regions))
	return &Dump{regions: regions}, nil
}

// Regions returns the dump's regions in address order.
func (d *Dump) Regions() []Region { return d.regions }

// Region returns the region containing addr.
func (d *Dump) Region(addr uint64) (Region, bool) {
	i := sort.Search(len(d.regions), func(i int) bool { return d.regions[i].End() > addr })
	if i < len(d.regions) && d.regions[i].Contains(addr) {
		return d.regions[i], true
	}
	return Region{}, false
}

// ReadVA reads n bytes at virtual address addr. Reads may cross into
// adjacent regions but not into unmapped gaps.
func (d *Dump) ReadVA(addr uint64, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		r, ok := d.Region(addr)
		if !ok {
			return nil, fmt.Errorf("%w: 0x%08x", ErrUnmapped, addr)
		}
		chunk := r.Data[addr-r.Addr:]
		if want := n - len(out); len(chunk) > want {
			chunk = chunk[:want]
		}
		out = append(out, chunk...)
		addr += uint64(len(chunk))
	}
	return out, nil
}

// Disassemble decodes from addr to the end of its region.
func (d *Dump) Disassemble(dec *disasm.Decoder, addr uint64) (*disasm.Stream, error) {
	r, ok := d.Region(addr)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnmapped, addr)
	}
	return dec.Decode(r.Data[addr-r.Addr:], addr), nil
}
