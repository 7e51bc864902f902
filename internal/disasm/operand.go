package disasm

import (
	"fmt"
	"strings"
)

// Kind discriminates the payload an Operand carries.
type Kind uint8

const (
	KindNone Kind = iota // absent operand slot
	KindRegister
	KindImmediate
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindImmediate:
		return "immediate"
	case KindMemory:
		return "memory"
	default:
		return "none"
	}
}

// Width is the size of a memory access or register.
type Width uint8

const (
	WidthNone Width = iota
	Byte
	Word
	Dword
	Qword
)

func (w Width) String() string {
	switch w {
	case Byte:
		return "byte"
	case Word:
		return "word"
	case Dword:
		return "dword"
	case Qword:
		return "qword"
	default:
		return ""
	}
}

// Bytes returns the number of bytes a value of this width occupies.
func (w Width) Bytes() int {
	switch w {
	case Byte:
		return 1
	case Word:
		return 2
	case Dword:
		return 4
	case Qword:
		return 8
	default:
		return 0
	}
}

// Memory is a decoded memory reference. Empty Base/Index and a zero Scale
// mean the term is absent.
type Memory struct {
	Width Width
	Base  string
	Scale int
	Index string
	Disp  int64

	Segment string // override register such as "fs", empty when absent
}

func (m Memory) String() string {
	var terms []string
	if m.Base != "" {
		terms = append(terms, m.Base)
	}
	if m.Index != "" {
		terms = append(terms, fmt.Sprintf("%d*%s", m.Scale, m.Index))
	}
	sign, disp := "+", uint64(m.Disp)
	if m.Disp < 0 {
		sign, disp = "-", uint64(-m.Disp)
	}
	expr := fmt.Sprintf("0x%08x", disp)
	switch {
	case len(terms) > 0:
		expr = strings.Join(terms, "+") + sign + expr
	case sign == "-":
		expr = sign + expr
	}
	expr = "[" + expr + "]"
	if m.Segment != "" {
		expr = m.Segment + ":" + expr
	}
	if m.Width == WidthNone {
		return expr
	}
	return m.Width.String() + " " + expr
}

// Operand is one decoded instruction operand. Only the fields that belong
// to Kind are populated.
type Operand struct {
	Kind Kind

	Reg string // KindRegister
	Imm int64  // KindImmediate; the absolute target for relative branches
	Mem Memory // KindMemory

	// Relative reports a branch operand; Rel is the encoded displacement.
	Relative bool
	Rel      int64
}

// RegOp returns a register operand.
func RegOp(name string) Operand {
	return Operand{Kind: KindRegister, Reg: name}
}

// ImmOp returns an immediate operand.
func ImmOp(v int64) Operand {
	return Operand{Kind: KindImmediate, Imm: v}
}

// MemOp returns a memory operand.
func MemOp(m Memory) Operand {
	return Operand{Kind: KindMemory, Mem: m}
}

// BranchOp returns a relative branch operand resolved to target.
func BranchOp(target uint64, rel int64) Operand {
	return Operand{Kind: KindImmediate, Imm: int64(target), Relative: true, Rel: rel}
}

// Present reports whether the slot holds an operand.
func (o Operand) Present() bool { return o.Kind != KindNone }

// Register returns the register name for register operands.
func (o Operand) Register() (string, bool) {
	return o.Reg, o.Kind == KindRegister
}

// Immediate returns the immediate value, or the resolved target of a
// relative branch.
func (o Operand) Immediate() (int64, bool) {
	return o.Imm, o.Kind == KindImmediate
}

// Memory returns the memory reference for memory operands.
func (o Operand) Memory() (Memory, bool) {
	return o.Mem, o.Kind == KindMemory
}

// Equal compares the resolved values of two operands.
func (o Operand) Equal(other Operand) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case KindRegister:
		return o.Reg == other.Reg
	case KindImmediate:
		return o.Imm == other.Imm
	case KindMemory:
		return o.Mem == other.Mem
	default:
		return true
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case KindRegister:
		return o.Reg
	case KindImmediate:
		if o.Imm < 0 {
			return fmt.Sprintf("-0x%x", uint64(-o.Imm))
		}
		return fmt.Sprintf("0x%x", o.Imm)
	case KindMemory:
		return o.Mem.String()
	default:
		return ""
	}
}
