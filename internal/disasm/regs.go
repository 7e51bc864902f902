package disasm

import (
	"fmt"
	"sort"
)

// RegisterError reports a register encoding the resolver has no name for.
// It indicates an opcode table that claims a form its register table
// cannot express.
type RegisterError struct {
	Code  uint8
	Width Width
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("disasm: no register name for code %d at width %q", e.Code, e.Width)
}

type regKey struct {
	code  uint8
	width Width
}

// Resolver maps register encodings and ModRM/SIB fields to symbolic names
// and addressing tuples.
type Resolver struct {
	names map[regKey]string
}

// NewResolver builds a resolver from per-width name lists indexed by the
// 3-bit register code.
func NewResolver(names map[Width][]string) *Resolver {
	r := &Resolver{names: make(map[regKey]string)}
	for w, list := range names {
		for code, name := range list {
			if name != "" {
				r.names[regKey{uint8(code), w}] = name
			}
		}
	}
	return r
}

var gpr = map[Width][]string{
	Byte:  {"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"},
	Word:  {"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"},
	Dword: {"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"},
}

// Lookup returns the name for a register code at the given width.
func (r *Resolver) Lookup(code uint8, w Width) (string, bool) {
	name, ok := r.names[regKey{code, w}]
	return name, ok
}

// Name is Lookup for encodings the opcode table guarantees. A miss panics
// with a *RegisterError.
func (r *Resolver) Name(code uint8, w Width) string {
	name, ok := r.Lookup(code, w)
	if !ok {
		panic(&RegisterError{Code: code, Width: w})
	}
	return name
}

// complete reports the first code in 0..7 missing at width w.
func (r *Resolver) complete(w Width) error {
	for code := uint8(0); code < 8; code++ {
		if _, ok := r.Lookup(code, w); !ok {
			return &RegisterError{Code: code, Width: w}
		}
	}
	return nil
}

type modRM struct {
	mod, reg, rm uint8
}

func readModRM(c *cursor) (modRM, error) {
	b, err := c.u8()
	if err != nil {
		return modRM{}, err
	}
	return modRM{mod: b >> 6, reg: (b >> 3) & 7, rm: b & 7}, nil
}

// rmOperand decodes the r/m half of a ModRM byte, consuming any SIB and
// displacement bytes. Addressing registers are always 32-bit.
func (r *Resolver) rmOperand(c *cursor, m modRM, w Width) (Operand, error) {
	if m.mod == 3 {
		return RegOp(r.Name(m.rm, w)), nil
	}

	mem := Memory{Width: w}
	switch {
	case m.rm == 4:
		sib, err := c.u8()
		if err != nil {
			return Operand{}, err
		}
		scale, index, base := sib>>6, (sib>>3)&7, sib&7
		if index != 4 {
			mem.Index = r.Name(index, Dword)
			mem.Scale = 1 << scale
		}
		if base == 5 && m.mod == 0 {
			d, err := c.u32()
			if err != nil {
				return Operand{}, err
			}
			mem.Disp = int64(d)
			if mem.Index != "" {
				mem.Disp = int64(int32(d))
			}
			return MemOp(mem), nil
		}
		mem.Base = r.Name(base, Dword)
	case m.rm == 5 && m.mod == 0:
		d, err := c.u32()
		if err != nil {
			return Operand{}, err
		}
		mem.Disp = int64(d)
		return MemOp(mem), nil
	default:
		mem.Base = r.Name(m.rm, Dword)
	}

	switch m.mod {
	case 1:
		d, err := c.u8()
		if err != nil {
			return Operand{}, err
		}
		mem.Disp = int64(int8(d))
	case 2:
		d, err := c.u32()
		if err != nil {
			return Operand{}, err
		}
		mem.Disp = int64(int32(d))
	}
	return MemOp(mem), nil
}

// Table bundles the opcode maps with the resolver used to name their
// registers. A Table is read-only once built.
type Table struct {
	oneByte [256]*opcode
	twoByte [256]*opcode
	regs    *Resolver
}

var defaultTable = func() *Table {
	t := &Table{regs: NewResolver(gpr)}
	populate(t)
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}()

// DefaultTable returns the built-in 32-bit opcode table.
func DefaultTable() *Table { return defaultTable }

// Resolver returns the table's register resolver.
func (t *Table) Resolver() *Resolver { return t.regs }

// WithResolver returns a copy of t that names registers through r. The
// copy is not validated.
func (t *Table) WithResolver(r *Resolver) *Table {
	cp := *t
	cp.regs = r
	return &cp
}

// Validate checks that every register width an opcode entry can request
// is fully mapped by the resolver.
func (t *Table) Validate() error {
	need := map[Width]bool{Dword: true} // addressing
	visit := func(e *opcode) {
		for _, w := range e.registerWidths() {
			need[w] = true
		}
	}
	for _, maps := range [][256]*opcode{t.oneByte, t.twoByte} {
		for _, e := range maps {
			if e == nil {
				continue
			}
			if e.group != nil {
				for _, g := range e.group {
					if g != nil {
						visit(g)
					}
				}
				continue
			}
			visit(e)
		}
	}

	widths := make([]Width, 0, len(need))
	for w := range need {
		widths = append(widths, w)
	}
	sort.Slice(widths, func(i, j int) bool { return widths[i] < widths[j] })
	for _, w := range widths {
		if err := t.regs.complete(w); err != nil {
			return fmt.Errorf("disasm: incomplete register table: %w", err)
		}
	}
	return nil
}
