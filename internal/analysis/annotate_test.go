package analysis

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"roach/internal/disasm"
)

// fakeMem maps base addresses to the bytes stored there.
type fakeMem map[uint64][]byte

func (m fakeMem) ReadVA(va uint64, n int) ([]byte, error) {
	for base, b := range m {
		if va >= base && va+uint64(n) <= base+uint64(len(b)) {
			return b[va-base : va-base+uint64(n)], nil
		}
	}
	return nil, errors.New("unmapped")
}

func decode(t *testing.T, code []byte, base uint64) disasm.Listing {
	t.Helper()
	l, err := disasm.NewDecoder(disasm.WithPolicy(disasm.PolicyStop)).Decode(code, base).Collect()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return l
}

var pushCallCode = []byte{
	0x68, 0x20, 0x10, 0x00, 0x00, // push 0x1020
	0x6a, 0x05, // push 0x5
	0xe8, 0x0b, 0x00, 0x00, 0x00, // call 0x1017
	0x83, 0xc4, 0x08, // add esp, 0x8
	0xb8, 0x20, 0x10, 0x00, 0x00, // mov eax, 0x1020
	0xff, 0xd0, // call eax
	0xc3, // ret
}

var helloMem = fakeMem{0x1020: []byte("hello, world\x00")}

type line struct {
	VA    uint64
	Text  string
	Notes []string
}

func TestAnnotate(t *testing.T) {
	a := &Annotator{
		Symbols: Symbols{0x1000: "start", 0x1017: "decrypt"},
		Memory:  helloMem,
	}
	res := a.Annotate(decode(t, pushCallCode, 0x1000))

	var got []line
	for _, ai := range res.Listing {
		got = append(got, line{ai.VA, strings.TrimSpace(ai.Mnemonic + " " + ai.Operands), ai.Annotations})
	}
	want := []line{
		{0x1000, "start:", nil},
		{0x1000, "push 0x1020", []string{`"hello, world"`}},
		{0x1005, "push 0x5", nil},
		{0x1007, "call 0x1017", []string{"-> decrypt", "arg0=0x5", `arg1="hello, world"`}},
		{0x100c, "add esp, 0x8", nil},
		{0x100f, "mov eax, 0x1020", []string{`"hello, world"`}},
		{0x1014, "call eax", []string{"-> 0x1020"}},
		{0x1016, "ret", nil},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}

	wantFindings := []CallFinding{
		{
			CallVA:   0x1007,
			TargetVA: 0x1017,
			Target:   "0x1017",
			Symbol:   "decrypt",
			Args: []ParamValue{
				{Slot: 0, Value: int64(5), From: "imm", TraceVA: 0x1005},
				{Slot: 1, Value: "hello, world", From: "string", TraceVA: 0x1000},
			},
			Comment: `decrypt(arg0=0x5, arg1="hello, world")`,
		},
		{CallVA: 0x1014, TargetVA: 0x1020, Target: "eax"},
	}
	if diff := cmp.Diff(wantFindings, res.Findings, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestAnnotateWithoutSymbols(t *testing.T) {
	res := Annotate(decode(t, pushCallCode, 0x1000), nil)
	if len(res.Listing) != 7 {
		t.Fatalf("got %d lines, want 7", len(res.Listing))
	}
	if diff := cmp.Diff([]string{"-> 0x1017", "arg0=0x5", "arg1=0x1020"}, res.Listing[2].Annotations); diff != "" {
		t.Errorf("call annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestCallsStackStores(t *testing.T) {
	code := []byte{
		0xc7, 0x44, 0x24, 0x04, 0x20, 0x10, 0x00, 0x00, // mov dword [esp+4], 0x1020
		0xc7, 0x04, 0x24, 0x07, 0x00, 0x00, 0x00, // mov dword [esp], 0x7
		0xe8, 0xec, 0x0f, 0x00, 0x00, // call 0x3000
	}
	want := []CallFinding{{
		CallVA:   0x200f,
		TargetVA: 0x3000,
		Target:   "0x3000",
		Args: []ParamValue{
			{Slot: 0, Value: int64(7), From: "imm", TraceVA: 0x2008},
			{Slot: 1, Value: int64(0x1020), From: "imm", TraceVA: 0x2000},
		},
		Comment: "0x3000(arg0=0x7, arg1=0x1020)",
	}}
	got := Calls(decode(t, code, 0x2000), nil)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Calls() mismatch (-want +got):\n%s", diff)
	}
}

func TestCallThroughImportSlot(t *testing.T) {
	code := []byte{0xff, 0x15, 0x0c, 0xa0, 0x04, 0x08} // call dword [0x0804a00c]
	res := Annotate(decode(t, code, 0x1000), Symbols{0x0804a00c: "CryptDecrypt"})
	if got := res.Findings[0].Symbol; got != "CryptDecrypt" {
		t.Errorf("Symbol = %q, want CryptDecrypt", got)
	}
	if got := res.Findings[0].TargetVA; got != 0 {
		t.Errorf("TargetVA = %#x, want 0", got)
	}
	if diff := cmp.Diff([]string{"-> CryptDecrypt"}, res.Listing[0].Annotations); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterState(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int64
		ok   bool
	}{
		{"mov add", []byte{0xb8, 0x05, 0x00, 0x00, 0x00, 0x83, 0xc0, 0x03}, 8, true},
		{"xor self", []byte{0x31, 0xc0}, 0, true},
		{"partial write", []byte{0xb8, 0x05, 0x00, 0x00, 0x00, 0xb0, 0x01}, 0, false},
		{"copy", []byte{0xb9, 0x10, 0x00, 0x00, 0x00, 0x89, 0xc8}, 0x10, true},
		{"call clobbers", []byte{0xb8, 0x05, 0x00, 0x00, 0x00, 0xe8, 0x00, 0x00, 0x00, 0x00}, 0, false},
		{"shift", []byte{0xb8, 0x01, 0x00, 0x00, 0x00, 0xc1, 0xe0, 0x04}, 0x10, true},
		{"wraps", []byte{0x31, 0xc0, 0x48}, 0xffffffff, true},
		{"unknown source", []byte{0x8b, 0x03}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRegisterState()
			for _, in := range decode(t, tt.code, 0x1000) {
				s.step(in)
			}
			got, ok := s.Value("eax")
			if ok != tt.ok || got != tt.want {
				t.Errorf("eax = %#x, %v; want %#x, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAnnotatedInstString(t *testing.T) {
	tests := []struct {
		name string
		in   AnnotatedInst
		want string
	}{
		{
			"plain",
			AnnotatedInst{VA: 0x1000, Mnemonic: "push", Operands: "0x5"},
			"1000       push   0x5" + strings.Repeat(" ", 27),
		},
		{
			"annotated",
			AnnotatedInst{VA: 0x1000, Mnemonic: "ret", Annotations: []string{"a", "b"}},
			"1000       ret    " + strings.Repeat(" ", 30) + " ; a, b",
		},
		{
			"label",
			AnnotatedInst{VA: 0x1000, Mnemonic: "start:"},
			"1000  start:",
		},
		{
			"comment",
			AnnotatedInst{Annotations: []string{"note"}},
			strings.Repeat(" ", 11) + strings.Repeat(" ", 6) + " " + strings.Repeat(" ", 30) + " ; note",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectorChain(t *testing.T) {
	tag := func(s string) Detector {
		return DetectorFunc(func(fs []CallFinding) []CallFinding {
			for i := range fs {
				fs[i].Comment += s
			}
			return fs
		})
	}
	got := NewDetectorChain(tag("a"), tag("b")).Detect([]CallFinding{{CallVA: 1}})
	if got[0].Comment != "ab" {
		t.Errorf("Comment = %q, want ab", got[0].Comment)
	}
}
