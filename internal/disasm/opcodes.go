package disasm

// form is the operand encoding scheme of an opcode.
type form uint8

const (
	formNone       form = iota
	formOpReg           // register in the low three opcode bits
	formOpRegImm        // opcode register, immediate
	formRegRM           // reg, r/m
	formRMReg           // r/m, reg
	formRegRMImm        // reg, r/m, immediate
	formRM              // r/m
	formRMImm           // r/m, immediate
	formRMOne           // r/m, 1
	formRMCL            // r/m, cl
	formAccImm          // al/eax, immediate
	formMoffs           // moffs only
	formAccMoffs        // al/eax, moffs
	formMoffsAcc        // moffs, al/eax
	formImm             // immediate
	formRel             // relative branch
)

type opcode struct {
	mnem    string
	form    form
	width   Width // reg and r/m width
	rmWidth Width // r/m width when it differs from width
	imm     Width // immediate or displacement width
	signExt bool  // immediate is sign-extended
	address bool  // r/m is an effective address, never a register
	group   *[8]*opcode
}

func (e *opcode) rmW() Width {
	if e.rmWidth != WidthNone {
		return e.rmWidth
	}
	return e.width
}

// registerWidths lists the widths the entry can ask the resolver for.
func (e *opcode) registerWidths() []Width {
	switch e.form {
	case formOpReg, formOpRegImm, formAccImm, formAccMoffs, formMoffsAcc:
		return []Width{e.width}
	case formRegRM, formRMReg, formRegRMImm:
		if e.address {
			return []Width{e.width}
		}
		return []Width{e.width, e.rmW()}
	case formRM, formRMImm, formRMOne:
		return []Width{e.rmW()}
	case formRMCL:
		return []Width{e.rmW(), Byte}
	}
	return nil
}

func (t *Table) one(b byte, e opcode) { t.oneByte[b] = &e }
func (t *Table) two(b byte, e opcode) { t.twoByte[b] = &e }

// span registers e under the eight opcodes b..b+7 that encode a register.
func (t *Table) span(two bool, b byte, e opcode) {
	for r := byte(0); r < 8; r++ {
		if two {
			t.two(b+r, e)
		} else {
			t.one(b+r, e)
		}
	}
}

func group(entries map[uint8]opcode) *[8]*opcode {
	var g [8]*opcode
	for reg, e := range entries {
		g[reg] = &e
	}
	return &g
}

var (
	aluNames   = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}
	shiftNames = [8]string{"rol", "ror", "rcl", "rcr", "shl", "shr", "", "sar"}
	condNames  = [16]string{"o", "no", "b", "ae", "e", "ne", "be", "a", "s", "ns", "p", "np", "l", "ge", "le", "g"}
)

func aluGroup(w, imm Width, signExt bool) *[8]*opcode {
	m := make(map[uint8]opcode, 8)
	for i, name := range aluNames {
		m[uint8(i)] = opcode{mnem: name, form: formRMImm, width: w, imm: imm, signExt: signExt}
	}
	return group(m)
}

func shiftGroup(f form, w, imm Width) *[8]*opcode {
	m := make(map[uint8]opcode, 7)
	for i, name := range shiftNames {
		if name != "" {
			m[uint8(i)] = opcode{mnem: name, form: f, width: w, imm: imm}
		}
	}
	return group(m)
}

func unaryGroup(w Width) *[8]*opcode {
	return group(map[uint8]opcode{
		0: {mnem: "test", form: formRMImm, width: w, imm: w},
		2: {mnem: "not", form: formRM, width: w},
		3: {mnem: "neg", form: formRM, width: w},
		4: {mnem: "mul", form: formRM, width: w},
		5: {mnem: "imul", form: formRM, width: w},
		6: {mnem: "div", form: formRM, width: w},
		7: {mnem: "idiv", form: formRM, width: w},
	})
}

// populate fills t with the supported subset of the 32-bit opcode map.
func populate(t *Table) {
	for i, name := range aluNames {
		b := byte(i) << 3
		t.one(b+0, opcode{mnem: name, form: formRMReg, width: Byte})
		t.one(b+1, opcode{mnem: name, form: formRMReg, width: Dword})
		t.one(b+2, opcode{mnem: name, form: formRegRM, width: Byte})
		t.one(b+3, opcode{mnem: name, form: formRegRM, width: Dword})
		t.one(b+4, opcode{mnem: name, form: formAccImm, width: Byte, imm: Byte})
		t.one(b+5, opcode{mnem: name, form: formAccImm, width: Dword, imm: Dword})
	}

	t.span(false, 0x40, opcode{mnem: "inc", form: formOpReg, width: Dword})
	t.span(false, 0x48, opcode{mnem: "dec", form: formOpReg, width: Dword})
	t.span(false, 0x50, opcode{mnem: "push", form: formOpReg, width: Dword})
	t.span(false, 0x58, opcode{mnem: "pop", form: formOpReg, width: Dword})
	t.one(0x60, opcode{mnem: "pushal"})
	t.one(0x61, opcode{mnem: "popal"})

	t.one(0x68, opcode{mnem: "push", form: formImm, imm: Dword})
	t.one(0x69, opcode{mnem: "imul", form: formRegRMImm, width: Dword, imm: Dword})
	t.one(0x6a, opcode{mnem: "push", form: formImm, imm: Byte, signExt: true})
	t.one(0x6b, opcode{mnem: "imul", form: formRegRMImm, width: Dword, imm: Byte, signExt: true})

	for cc, name := range condNames {
		t.one(0x70+byte(cc), opcode{mnem: "j" + name, form: formRel, imm: Byte})
		t.two(0x80+byte(cc), opcode{mnem: "j" + name, form: formRel, imm: Dword})
		t.two(0x90+byte(cc), opcode{mnem: "set" + name, form: formRM, width: Byte})
	}

	t.one(0x80, opcode{group: aluGroup(Byte, Byte, false)})
	t.one(0x81, opcode{group: aluGroup(Dword, Dword, false)})
	t.one(0x83, opcode{group: aluGroup(Dword, Byte, true)})
	t.one(0x84, opcode{mnem: "test", form: formRMReg, width: Byte})
	t.one(0x85, opcode{mnem: "test", form: formRMReg, width: Dword})
	t.one(0x86, opcode{mnem: "xchg", form: formRMReg, width: Byte})
	t.one(0x87, opcode{mnem: "xchg", form: formRMReg, width: Dword})
	t.one(0x88, opcode{mnem: "mov", form: formRMReg, width: Byte})
	t.one(0x89, opcode{mnem: "mov", form: formRMReg, width: Dword})
	t.one(0x8a, opcode{mnem: "mov", form: formRegRM, width: Byte})
	t.one(0x8b, opcode{mnem: "mov", form: formRegRM, width: Dword})
	t.one(0x8d, opcode{mnem: "lea", form: formRegRM, width: Dword, address: true})
	t.one(0x8f, opcode{group: group(map[uint8]opcode{
		0: {mnem: "pop", form: formRM, width: Dword},
	})})

	t.one(0x90, opcode{mnem: "nop"})
	t.one(0x98, opcode{mnem: "cwde"})
	t.one(0x99, opcode{mnem: "cdq"})
	t.one(0x9c, opcode{mnem: "pushfd"})
	t.one(0x9d, opcode{mnem: "popfd"})

	// a0 keeps the memory operand in operand1 without the accumulator.
	t.one(0xa0, opcode{mnem: "mov", form: formMoffs, width: Byte})
	t.one(0xa1, opcode{mnem: "mov", form: formAccMoffs, width: Dword})
	t.one(0xa2, opcode{mnem: "mov", form: formMoffsAcc, width: Byte})
	t.one(0xa3, opcode{mnem: "mov", form: formMoffsAcc, width: Dword})
	t.one(0xa8, opcode{mnem: "test", form: formAccImm, width: Byte, imm: Byte})
	t.one(0xa9, opcode{mnem: "test", form: formAccImm, width: Dword, imm: Dword})

	t.span(false, 0xb0, opcode{mnem: "mov", form: formOpRegImm, width: Byte, imm: Byte})
	t.span(false, 0xb8, opcode{mnem: "mov", form: formOpRegImm, width: Dword, imm: Dword})

	t.one(0xc0, opcode{group: shiftGroup(formRMImm, Byte, Byte)})
	t.one(0xc1, opcode{group: shiftGroup(formRMImm, Dword, Byte)})
	t.one(0xc2, opcode{mnem: "ret", form: formImm, imm: Word})
	t.one(0xc3, opcode{mnem: "ret"})
	t.one(0xc6, opcode{group: group(map[uint8]opcode{
		0: {mnem: "mov", form: formRMImm, width: Byte, imm: Byte},
	})})
	t.one(0xc7, opcode{group: group(map[uint8]opcode{
		0: {mnem: "mov", form: formRMImm, width: Dword, imm: Dword},
	})})
	t.one(0xc9, opcode{mnem: "leave"})
	t.one(0xcc, opcode{mnem: "int3"})
	t.one(0xcd, opcode{mnem: "int", form: formImm, imm: Byte})

	t.one(0xd0, opcode{group: shiftGroup(formRMOne, Byte, WidthNone)})
	t.one(0xd1, opcode{group: shiftGroup(formRMOne, Dword, WidthNone)})
	t.one(0xd2, opcode{group: shiftGroup(formRMCL, Byte, WidthNone)})
	t.one(0xd3, opcode{group: shiftGroup(formRMCL, Dword, WidthNone)})

	t.one(0xe3, opcode{mnem: "jecxz", form: formRel, imm: Byte})
	t.one(0xe8, opcode{mnem: "call", form: formRel, imm: Dword})
	t.one(0xe9, opcode{mnem: "jmp", form: formRel, imm: Dword})
	t.one(0xeb, opcode{mnem: "jmp", form: formRel, imm: Byte})

	t.one(0xf4, opcode{mnem: "hlt"})
	t.one(0xf6, opcode{group: unaryGroup(Byte)})
	t.one(0xf7, opcode{group: unaryGroup(Dword)})
	t.one(0xf8, opcode{mnem: "clc"})
	t.one(0xf9, opcode{mnem: "stc"})
	t.one(0xfc, opcode{mnem: "cld"})
	t.one(0xfd, opcode{mnem: "std"})
	t.one(0xfe, opcode{group: group(map[uint8]opcode{
		0: {mnem: "inc", form: formRM, width: Byte},
		1: {mnem: "dec", form: formRM, width: Byte},
	})})
	t.one(0xff, opcode{group: group(map[uint8]opcode{
		0: {mnem: "inc", form: formRM, width: Dword},
		1: {mnem: "dec", form: formRM, width: Dword},
		2: {mnem: "call", form: formRM, width: Dword},
		4: {mnem: "jmp", form: formRM, width: Dword},
		6: {mnem: "push", form: formRM, width: Dword},
	})})

	t.two(0x31, opcode{mnem: "rdtsc"})
	t.two(0xa2, opcode{mnem: "cpuid"})
	t.two(0xaf, opcode{mnem: "imul", form: formRegRM, width: Dword})
	t.two(0xb6, opcode{mnem: "movzx", form: formRegRM, width: Dword, rmWidth: Byte})
	t.two(0xb7, opcode{mnem: "movzx", form: formRegRM, width: Dword, rmWidth: Word})
	t.two(0xbe, opcode{mnem: "movsx", form: formRegRM, width: Dword, rmWidth: Byte})
	t.two(0xbf, opcode{mnem: "movsx", form: formRegRM, width: Dword, rmWidth: Word})
	t.span(true, 0xc8, opcode{mnem: "bswap", form: formOpReg, width: Dword})
}
