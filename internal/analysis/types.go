package analysis

import (
	"fmt"
	"strings"

	"roach/internal/disasm"
)

// ParamValue is a stack argument recovered before a call. Slot 0 is the
// first argument, the one pushed last.
type ParamValue struct {
	Slot    int
	Value   any    // int64 or string
	From    string // "imm", "reg:eax", "string"
	TraceVA uint64 // where the value was pushed or stored
}

func (p ParamValue) String() string {
	switch v := p.Value.(type) {
	case string:
		return fmt.Sprintf("arg%d=\"%s\"", p.Slot, v)
	case int64:
		if v < 0 {
			return fmt.Sprintf("arg%d=-0x%x", p.Slot, uint64(-v))
		}
		return fmt.Sprintf("arg%d=0x%x", p.Slot, v)
	}
	return fmt.Sprintf("arg%d=?", p.Slot)
}

// CallFinding describes one call site.
type CallFinding struct {
	CallVA   uint64
	TargetVA uint64 // 0 when unresolved or called through a memory slot
	Target   string // rendered call operand
	Symbol   string // resolved name, empty when unknown
	Args     []ParamValue
	Comment  string
	Metadata map[string]any
}

// Name returns the symbol when known and the rendered target otherwise.
func (c CallFinding) Name() string {
	if c.Symbol != "" {
		return c.Symbol
	}
	return c.Target
}

// Arg returns the argument in slot n.
func (c CallFinding) Arg(n int) (ParamValue, bool) {
	for _, a := range c.Args {
		if a.Slot == n {
			return a, true
		}
	}
	return ParamValue{}, false
}

// AnnotatedInst is one listing line.
type AnnotatedInst struct {
	VA          uint64
	Bytes       []byte
	Inst        disasm.Instruction
	Mnemonic    string
	Operands    string
	Annotations []string
}

func (a AnnotatedInst) String() string {
	// Comment-only line
	if a.Mnemonic == "" && a.Operands == "" && len(a.Annotations) > 0 {
		return fmt.Sprintf("           %-6s %-30s ; %s", "", "", strings.Join(a.Annotations, ", "))
	}

	// Labels print without operands
	if strings.HasSuffix(a.Mnemonic, ":") {
		return fmt.Sprintf("%x  %s", a.VA, a.Mnemonic)
	}

	addr := fmt.Sprintf("%x", a.VA) // no 0x prefix, the colorizer styles it
	base := fmt.Sprintf("%-10s %-6s %-30s", addr, a.Mnemonic, a.Operands)
	if len(a.Annotations) > 0 {
		return fmt.Sprintf("%s ; %s", base, strings.Join(a.Annotations, ", "))
	}
	return base
}

// AnnotatorResult contains both annotated listing and call findings
type AnnotatorResult struct {
	Listing  []AnnotatedInst
	Findings []CallFinding
}

// Text renders the listing one line per instruction.
func (r AnnotatorResult) Text() string {
	var sb strings.Builder
	for _, ai := range r.Listing {
		sb.WriteString(ai.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
