package analysis

import (
	"fmt"
	"log/slog"
	"strings"

	"roach/internal/disasm"
)

// Annotator turns a decoded listing into annotated lines and call
// findings. The zero value annotates branch targets only.
type Annotator struct {
	Symbols   Symbols
	Memory    Memory // strings behind pushed pointers are read from here
	Detectors *DetectorChain
	Logger    *slog.Logger
}

// Annotate annotates insts with syms and no string recovery.
func Annotate(insts disasm.Listing, syms Symbols) AnnotatorResult {
	return (&Annotator{Symbols: syms}).Annotate(insts)
}

// Calls returns the call findings of insts.
func Calls(insts disasm.Listing, syms Symbols) []CallFinding {
	return Annotate(insts, syms).Findings
}

func isBranch(mnem string) bool {
	return mnem == "call" || strings.HasPrefix(mnem, "j") || mnem == "loop"
}

// Annotate walks insts once, tracking register constants and pushed
// arguments. Listings longer than MaxTraceInstructions are annotated
// without argument recovery past that point.
func (a *Annotator) Annotate(insts disasm.Listing) AnnotatorResult {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}

	var res AnnotatorResult
	state := newRegisterState()
	for i, in := range insts {
		if name, ok := a.Symbols.Lookup(in.Address); ok {
			res.Listing = append(res.Listing, AnnotatedInst{VA: in.Address, Mnemonic: name + ":"})
		}

		ai := AnnotatedInst{
			VA:       in.Address,
			Bytes:    in.Raw,
			Inst:     in,
			Mnemonic: in.Mnemonic,
			Operands: in.Operands(),
		}

		if isBranch(in.Mnemonic) {
			if note, ok := a.branchTarget(in, state); ok {
				ai.Annotations = append(ai.Annotations, note)
			}
		} else {
			ai.Annotations = append(ai.Annotations, a.operandNotes(in)...)
		}

		if in.Mnemonic == "call" {
			f := a.callFinding(in, state)
			for _, p := range f.Args {
				ai.Annotations = append(ai.Annotations, p.String())
			}
			res.Findings = append(res.Findings, f)
		}

		if i < MaxTraceInstructions {
			state.step(in)
		} else if i == MaxTraceInstructions {
			log.Debug("trace limit reached, argument recovery stops", "va", in.Address)
			state.reset()
		}
		res.Listing = append(res.Listing, ai)
	}

	if a.Detectors != nil {
		res.Findings = a.Detectors.Detect(res.Findings)
	}
	log.Debug("annotated listing", "instructions", len(insts), "calls", len(res.Findings))
	return res
}

// target resolves the destination of a branch: a relative target, an
// absolute memory slot, or a register holding a known constant.
func (a *Annotator) target(in disasm.Instruction, state *RegisterState) (va uint64, slot uint64, ok bool) {
	op := in.Arg(1)
	if op.Relative {
		return uint64(op.Imm), 0, true
	}
	if m, isMem := op.Memory(); isMem && m.Base == "" && m.Index == "" {
		return 0, uint64(uint32(m.Disp)), true
	}
	if r, isReg := op.Register(); isReg {
		if v, known := state.Value(r); known {
			return uint64(uint32(v)), 0, true
		}
	}
	return 0, 0, false
}

func (a *Annotator) branchTarget(in disasm.Instruction, state *RegisterState) (string, bool) {
	va, slot, ok := a.target(in, state)
	if !ok {
		return "", false
	}
	if slot != 0 {
		if name, ok := a.Symbols.Lookup(slot); ok {
			return "-> " + name, true
		}
		return "", false
	}
	if name, ok := a.Symbols.Lookup(va); ok {
		return "-> " + name, true
	}
	return fmt.Sprintf("-> 0x%x", va), true
}

// operandNotes names immediates and absolute addresses that point at a
// symbol or a string.
func (a *Annotator) operandNotes(in disasm.Instruction) []string {
	var notes []string
	for n := 1; n <= 3; n++ {
		op := in.Arg(n)
		var va uint64
		if v, ok := op.Immediate(); ok {
			va = uint64(uint32(v))
		} else if m, ok := op.Memory(); ok && in.Mnemonic == "lea" && m.Base == "" && m.Index == "" {
			va = uint64(uint32(m.Disp))
		} else {
			continue
		}
		if va == 0 {
			continue
		}
		if name, ok := a.Symbols.Lookup(va); ok {
			notes = append(notes, "-> "+name)
		} else if s, ok := ReadCString(a.Memory, va, MaxStringLength); ok {
			notes = append(notes, `"`+s.Value+`"`)
		}
	}
	return notes
}

func (a *Annotator) callFinding(in disasm.Instruction, state *RegisterState) CallFinding {
	f := CallFinding{CallVA: in.Address, Target: in.Operands()}
	va, slot, ok := a.target(in, state)
	if ok {
		f.TargetVA = va
		if slot != 0 {
			f.Symbol, _ = a.Symbols.Lookup(slot)
		} else {
			f.Symbol, _ = a.Symbols.Lookup(va)
		}
	}

	for _, p := range state.takeArgs() {
		if v, ok := p.Value.(int64); ok {
			if s, ok := ReadCString(a.Memory, uint64(uint32(v)), MaxStringLength); ok {
				p.Value = s.Value
				p.From = "string"
			}
		}
		f.Args = append(f.Args, p)
	}

	if len(f.Args) > 0 {
		parts := make([]string, len(f.Args))
		for i, p := range f.Args {
			parts[i] = p.String()
		}
		f.Comment = fmt.Sprintf("%s(%s)", f.Name(), strings.Join(parts, ", "))
	}
	return f
}
