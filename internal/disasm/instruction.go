// Package disasm decodes 32-bit x86 machine code into a structured
// instruction representation and renders it in Intel syntax.
package disasm

import (
	"fmt"
	"strings"
)

// Instruction is a single decoded instruction. Values are immutable once
// the decoder hands them out.
type Instruction struct {
	Address  uint64     // virtual address of the first byte
	Mnemonic string     // lowercase mnemonic
	Args     [3]Operand // operand1..operand3, absent slots are KindNone
	Len      int        // encoded length in bytes
	Raw      []byte     // copy of the encoded bytes
}

// Equal reports whether two instructions have the same mnemonic and
// operands. Address, length and raw bytes do not participate.
func (i Instruction) Equal(other Instruction) bool {
	if i.Mnemonic != other.Mnemonic {
		return false
	}
	for n := range i.Args {
		if !i.Args[n].Equal(other.Args[n]) {
			return false
		}
	}
	return true
}

// Arg returns operand n (1-based, matching operand1..operand3).
func (i Instruction) Arg(n int) Operand {
	if n < 1 || n > len(i.Args) {
		return Operand{}
	}
	return i.Args[n-1]
}

// Operands renders the operand list without the mnemonic.
func (i Instruction) Operands() string {
	parts := make([]string, 0, len(i.Args))
	for _, a := range i.Args {
		if a.Present() {
			parts = append(parts, a.String())
		}
	}
	return strings.Join(parts, ", ")
}

func (i Instruction) String() string {
	ops := i.Operands()
	if ops == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + ops
}

// Listing is an ordered run of decoded instructions.
type Listing []Instruction

// Equal compares two listings element-wise.
func (l Listing) Equal(other Listing) bool {
	if len(l) != len(other) {
		return false
	}
	for n := range l {
		if !l[n].Equal(other[n]) {
			return false
		}
	}
	return true
}

// String renders one "address  mnemonic operands" line per instruction.
func (l Listing) String() string {
	var b strings.Builder
	for _, in := range l {
		fmt.Fprintf(&b, "%08x  %s\n", in.Address, in)
	}
	return b.String()
}
