package analysis

import (
	"sort"
	"strings"

	"roach/internal/disasm"
)

// canonical maps every general purpose register name onto the 32-bit
// register that contains it.
var canonical = map[string]string{
	"al": "eax", "ah": "eax", "ax": "eax", "eax": "eax",
	"cl": "ecx", "ch": "ecx", "cx": "ecx", "ecx": "ecx",
	"dl": "edx", "dh": "edx", "dx": "edx", "edx": "edx",
	"bl": "ebx", "bh": "ebx", "bx": "ebx", "ebx": "ebx",
	"sp": "esp", "esp": "esp",
	"bp": "ebp", "ebp": "ebp",
	"si": "esi", "esi": "esi",
	"di": "edi", "edi": "edi",
}

// readOnly lists mnemonics that never write their first operand.
var readOnly = map[string]bool{
	"cmp": true, "test": true, "push": true, "call": true, "ret": true,
	"nop": true, "int": true, "int3": true, "hlt": true, "db": true,
	"bt": true,
}

// RegisterState tracks constant register values and the outgoing stack
// arguments of the call being set up.
type RegisterState struct {
	regs    map[string]int64     // known 32-bit register values
	sources map[string]uint64    // VA where each register was last set
	pushes  []ParamValue         // pushed since the last call, oldest first
	stores  map[int64]ParamValue // outgoing arguments stored at [esp+off]
}

func newRegisterState() *RegisterState {
	s := &RegisterState{}
	s.reset()
	return s
}

func (s *RegisterState) reset() {
	s.regs = make(map[string]int64)
	s.sources = make(map[string]uint64)
	s.pushes = nil
	s.stores = make(map[int64]ParamValue)
}

func (s *RegisterState) set(reg string, v int64, va uint64) {
	full, ok := canonical[reg]
	if !ok {
		return
	}
	if full != reg {
		// Partial writes leave the rest of the register unknown.
		s.clobber(reg)
		return
	}
	s.regs[reg] = int64(uint32(v))
	s.sources[reg] = va
}

func (s *RegisterState) clobber(regs ...string) {
	for _, r := range regs {
		if full, ok := canonical[r]; ok {
			delete(s.regs, full)
			delete(s.sources, full)
		}
	}
}

// Value returns the known 32-bit value of a register.
func (s *RegisterState) Value(reg string) (int64, bool) {
	if full, ok := canonical[reg]; !ok || full != reg {
		return 0, false
	}
	v, ok := s.regs[reg]
	return v, ok
}

// operand resolves an immediate or a known register operand.
func (s *RegisterState) operand(o disasm.Operand) (ParamValue, bool) {
	if v, ok := o.Immediate(); ok {
		return ParamValue{Value: v, From: "imm"}, true
	}
	if r, ok := o.Register(); ok {
		if v, ok := s.Value(r); ok {
			return ParamValue{Value: v, From: "reg:" + r, TraceVA: s.sources[r]}, true
		}
	}
	return ParamValue{}, false
}

// stackSlot reports the esp offset of a dword [esp+off] operand.
func stackSlot(o disasm.Operand) (int64, bool) {
	m, ok := o.Memory()
	if !ok || m.Base != "esp" || m.Index != "" || m.Width != disasm.Dword {
		return 0, false
	}
	return m.Disp, true
}

// step applies the effect of one instruction.
func (s *RegisterState) step(in disasm.Instruction) {
	dst, src := in.Arg(1), in.Arg(2)
	dreg, dIsReg := dst.Register()

	switch in.Mnemonic {
	case "mov":
		if off, ok := stackSlot(dst); ok {
			p, _ := s.operand(src)
			p.TraceVA = in.Address
			s.stores[off] = p
			return
		}
		if !dIsReg {
			return
		}
		if p, ok := s.operand(src); ok {
			s.set(dreg, p.Value.(int64), in.Address)
			return
		}
		s.clobber(dreg)
		return

	case "lea":
		if m, ok := src.Memory(); ok && m.Base == "" && m.Index == "" {
			s.set(dreg, m.Disp, in.Address)
			return
		}
		s.clobber(dreg)
		return

	case "xor", "sub":
		if sreg, ok := src.Register(); ok && dIsReg && sreg == dreg {
			s.set(dreg, 0, in.Address)
			return
		}

	case "push":
		p, _ := s.operand(dst)
		p.TraceVA = in.Address
		s.pushes = append(s.pushes, p)
		return

	case "pop":
		if n := len(s.pushes); n > 0 {
			s.pushes = s.pushes[:n-1]
		}

	case "call":
		s.pushes = nil
		s.stores = make(map[int64]ParamValue)
		s.clobber("eax", "ecx", "edx")
		return

	case "ret", "leave":
		s.reset()
		return

	case "mul", "div", "idiv", "cdq":
		s.clobber("eax", "edx")
	case "imul":
		if !src.Present() {
			s.clobber("eax", "edx")
		}
	case "cwde":
		s.clobber("eax")
	case "xchg":
		if sreg, ok := src.Register(); ok {
			s.clobber(sreg)
		}
	}

	if dIsReg && !readOnly[in.Mnemonic] && !strings.HasPrefix(in.Mnemonic, "j") {
		if v, ok := s.arith(in.Mnemonic, dreg, src); ok {
			s.set(dreg, v, in.Address)
			return
		}
		s.clobber(dreg)
	}
}

// arith folds simple arithmetic on a known register.
func (s *RegisterState) arith(mnem, dreg string, src disasm.Operand) (int64, bool) {
	a, ok := s.Value(dreg)
	if !ok {
		return 0, false
	}
	switch mnem {
	case "inc":
		return a + 1, true
	case "dec":
		return a - 1, true
	case "not":
		return ^a, true
	case "neg":
		return -a, true
	}
	p, ok := s.operand(src)
	if !ok {
		return 0, false
	}
	b := p.Value.(int64)
	switch mnem {
	case "add":
		return a + b, true
	case "sub":
		return a - b, true
	case "and":
		return a & b, true
	case "or":
		return a | b, true
	case "xor":
		return a ^ b, true
	case "shl":
		return a << (uint(b) & 31), true
	case "shr":
		return int64(uint32(a) >> (uint(b) & 31)), true
	}
	return 0, false
}

// takeArgs returns the known arguments of the call being set up. Stores
// relative to esp win over pushes when both are present.
func (s *RegisterState) takeArgs() []ParamValue {
	var args []ParamValue
	if len(s.stores) > 0 {
		for off, p := range s.stores {
			if off < 0 || off%4 != 0 || off/4 >= MaxCallArgs || p.Value == nil {
				continue
			}
			p.Slot = int(off / 4)
			args = append(args, p)
		}
		sort.Slice(args, func(i, j int) bool { return args[i].Slot < args[j].Slot })
		return args
	}
	for i := 0; i < len(s.pushes) && i < MaxCallArgs; i++ {
		p := s.pushes[len(s.pushes)-1-i]
		if p.Value == nil {
			continue
		}
		p.Slot = i
		args = append(args, p)
	}
	return args
}
