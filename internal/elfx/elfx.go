// Package elfx opens ELF binaries, locates their code and symbols, and maps
// virtual addresses to file bytes. It is tuned for 32-bit x86 images but
// reads any ELF the standard library can parse.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/ianlancetaylor/demangle"

	"roach/internal/disasm"
)

type Image struct {
	Path    string
	File    *elf.File
	All     []byte
	Loads   []Seg
	Text    Section
	Rodata  Section
	Data    Section
	PLT     Section
	GOTPLT  Section
	Symbols []Symbol // sorted by address
	Imports []PLTRel
	f       *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Contains reports whether va lies inside the section.
func (s Section) Contains(va uint64) bool {
	return s.Size > 0 && va >= s.VA && va < s.VA+s.Size
}

// Symbol is a function symbol. Name is the raw symbol name, Demangled its
// readable form (equal to Name for C symbols).
type Symbol struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      uint64
	Dynamic   bool
	IsPLT     bool
}

func (s Symbol) String() string { return s.Demangled }

// PLTRel ties a .rel.plt relocation to its GOT slot and PLT stub.
type PLTRel struct {
	GOTAddr uint64
	SymName string
	PLTAddr uint64
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	var all []byte
	if fi.Size() > 0 {
		all, err = syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			of.Close()
			f.Close()
			return nil, fmt.Errorf("mmap file: %w", err)
		}
	}

	im := &Image{Path: path, File: f, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	for _, s := range f.Sections {
		sec := Section{s.Name, s.Addr, s.Offset, s.Size}
		switch s.Name {
		case ".text":
			im.Text = sec
		case ".rodata":
			im.Rodata = sec
		case ".data":
			im.Data = sec
		case ".plt":
			im.PLT = sec
		case ".got.plt":
			im.GOTPLT = sec
		}
	}

	im.loadSymbols()
	im.parsePLT()

	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	if f.Machine != elf.EM_386 {
		slog.Warn("not an i386 image, listings will be wrong", "path", path, "machine", f.Machine)
	}
	slog.Debug("opened elf", "path", path, "symbols", len(im.Symbols), "imports", len(im.Imports))
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		if err3 := im.File.Close(); err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Is386 reports whether the image targets 32-bit x86.
func (im *Image) Is386() bool {
	return im.File != nil && im.File.Machine == elf.EM_386
}

// Entry returns the entry point address.
func (im *Image) Entry() uint64 {
	if im.File == nil {
		return 0
	}
	return im.File.Entry
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns the file bytes backing [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// ReadVA returns n bytes at va, failing if any of them is unmapped.
func (im *Image) ReadVA(va uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read 0x%x: negative length %d", va, n)
	}
	b, ok := im.SliceVA(va, uint64(n))
	if !ok {
		return nil, fmt.Errorf("read 0x%x+%d: address not mapped", va, n)
	}
	return b, nil
}

// SliceToSegmentEnd returns the bytes from va to the end of its segment.
func (im *Image) SliceToSegmentEnd(va uint64) ([]byte, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return im.SliceVA(va, l.Vaddr+l.Filesz-va)
		}
	}
	return nil, false
}

// FunctionBytes returns the code of a sized symbol.
func (im *Image) FunctionBytes(sym Symbol) ([]byte, bool) {
	if sym.Size == 0 {
		return nil, false
	}
	return im.SliceVA(sym.Addr, sym.Size)
}

func (im *Image) loadSymbols() {
	seen := make(map[uint64]bool)
	add := func(syms []elf.Symbol, dynamic bool) {
		for _, sym := range syms {
			if sym.Value == 0 || elf.ST_TYPE(sym.Info) != elf.STT_FUNC || seen[sym.Value] {
				continue
			}
			seen[sym.Value] = true
			im.Symbols = append(im.Symbols, newSymbol(sym.Name, sym.Value, sym.Size, dynamic))
		}
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms, false)
	}
	if syms, err := im.File.DynamicSymbols(); err == nil {
		add(syms, true)
	}
	im.sortSymbols()
}

func (im *Image) sortSymbols() {
	sort.SliceStable(im.Symbols, func(i, j int) bool {
		return im.Symbols[i].Addr < im.Symbols[j].Addr
	})
}

func newSymbol(name string, addr, size uint64, dynamic bool) Symbol {
	base, _, _ := strings.Cut(name, "@")
	d := demangle.Filter(base)
	if d == "" {
		d = base
	}
	if strings.HasSuffix(name, "@plt") {
		d += "@plt"
	}
	return Symbol{
		Name:      name,
		Demangled: d,
		Addr:      addr,
		Size:      size,
		Dynamic:   dynamic,
		IsPLT:     strings.HasSuffix(name, "@plt"),
	}
}

// parsePLT names the PLT stubs of a dynamically linked i386 image. Each
// 16-byte stub after PLT0 starts with "jmp dword [got]" (non-PIC) or
// "jmp dword [ebx+off]" (PIC, ebx = .got.plt); .rel.plt maps GOT slots to
// imported symbol names.
func (im *Image) parsePLT() {
	if !im.Is386() || im.PLT.Size < 32 {
		return
	}
	rel := im.File.Section(".rel.plt")
	if rel == nil {
		return
	}
	data, err := rel.Data()
	if err != nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	stubs := make(map[uint64]uint64) // GOT slot -> stub
	dec := disasm.NewDecoder(disasm.WithPolicy(disasm.PolicyStop))
	for va := im.PLT.VA + 16; va+16 <= im.PLT.VA+im.PLT.Size; va += 16 {
		if got, ok := im.stubTarget(dec, va); ok {
			stubs[got] = va
		}
	}

	for off := 0; off+8 <= len(data); off += 8 {
		gotAddr := uint64(binary.LittleEndian.Uint32(data[off:]))
		symIndex := binary.LittleEndian.Uint32(data[off+4:]) >> 8
		var name string
		// DynamicSymbols omits the null symbol at index 0.
		if symIndex > 0 && int(symIndex) <= len(dynsyms) {
			name = dynsyms[symIndex-1].Name
		}
		r := PLTRel{GOTAddr: gotAddr, SymName: name, PLTAddr: stubs[gotAddr]}
		im.Imports = append(im.Imports, r)
		if name != "" && r.PLTAddr != 0 {
			im.Symbols = append(im.Symbols, newSymbol(name+"@plt", r.PLTAddr, 16, true))
		}
	}
	im.sortSymbols()
}

func (im *Image) stubTarget(dec *disasm.Decoder, va uint64) (uint64, bool) {
	code, ok := im.SliceVA(va, 16)
	if !ok {
		return 0, false
	}
	s := dec.Decode(code, va)
	if !s.Next() {
		return 0, false
	}
	in := s.Inst()
	mem, ok := in.Arg(1).Memory()
	if in.Mnemonic != "jmp" || !ok || mem.Index != "" {
		return 0, false
	}
	switch mem.Base {
	case "":
		return uint64(mem.Disp), true
	case "ebx":
		return uint64(uint32(int64(im.GOTPLT.VA) + mem.Disp)), im.GOTPLT.Size > 0
	}
	return 0, false
}

// FindFunctionByName looks a function up by raw or demangled name.
func (im *Image) FindFunctionByName(name string) (Symbol, bool) {
	for _, sym := range im.Symbols {
		if sym.Name == name && !sym.IsPLT {
			return sym, true
		}
	}
	for _, sym := range im.Symbols {
		if sym.Demangled == name || strings.TrimSuffix(sym.Demangled, "()") == name {
			return sym, true
		}
	}
	return Symbol{}, false
}

// SymbolAt returns the symbol starting at va, or the sized symbol that
// contains it.
func (im *Image) SymbolAt(va uint64) (Symbol, bool) {
	i := sort.Search(len(im.Symbols), func(i int) bool { return im.Symbols[i].Addr > va })
	for i--; i >= 0; i-- {
		sym := im.Symbols[i]
		if sym.Addr == va || va < sym.Addr+sym.Size {
			return sym, true
		}
		if sym.Size != 0 {
			break
		}
	}
	return Symbol{}, false
}

// InRodata reports whether va lies in .rodata.
func (im *Image) InRodata(va uint64) bool { return im.Rodata.Contains(va) }

// InData reports whether va lies in .data.
func (im *Image) InData(va uint64) bool { return im.Data.Contains(va) }

// IsPLTEntry reports whether va lies in .plt.
func (im *Image) IsPLTEntry(va uint64) bool { return im.PLT.Contains(va) }
