package disasm

import (
	"errors"
	"testing"
)

func TestMemoryString(t *testing.T) {
	tests := []struct {
		mem  Memory
		want string
	}{
		{Memory{Width: Dword, Base: "edi", Disp: 4}, "dword [edi+0x00000004]"},
		{Memory{Width: Dword, Base: "ebx", Scale: 4, Index: "ecx", Disp: 0x1092}, "dword [ebx+4*ecx+0x00001092]"},
		{Memory{Width: Byte, Disp: 0x145859}, "byte [0x00145859]"},
		{Memory{Width: Word, Base: "ebp", Disp: -0x10}, "word [ebp-0x00000010]"},
		{Memory{Base: "esp", Disp: 8}, "[esp+0x00000008]"},
		{Memory{Width: Dword, Scale: 2, Index: "esi"}, "dword [2*esi+0x00000000]"},
		{Memory{Width: Dword, Disp: -4}, "dword [-0x00000004]"},
		{Memory{Width: Dword, Disp: 0x30, Segment: "fs"}, "dword fs:[0x00000030]"},
		{Memory{Base: "edi", Segment: "es"}, "es:[edi+0x00000000]"},
	}
	for _, tt := range tests {
		if got := tt.mem.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.mem, got, tt.want)
		}
	}
}

func TestOperandEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Operand
		want bool
	}{
		{"same register", RegOp("eax"), RegOp("eax"), true},
		{"different register", RegOp("eax"), RegOp("ecx"), false},
		{"register vs immediate", RegOp("eax"), ImmOp(0), false},
		{"branch vs plain immediate", BranchOp(0x1005, 0), ImmOp(0x1005), true},
		{"memory", MemOp(Memory{Width: Byte, Disp: 1}), MemOp(Memory{Width: Byte, Disp: 1}), true},
		{"memory width", MemOp(Memory{Width: Byte, Disp: 1}), MemOp(Memory{Width: Dword, Disp: 1}), false},
		{"memory segment", MemOp(Memory{Width: Dword, Disp: 0x30, Segment: "fs"}), MemOp(Memory{Width: Dword, Disp: 0x30}), false},
		{"absent", Operand{}, Operand{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstructionEqualIgnoresAddress(t *testing.T) {
	a := Instruction{Address: 0x1000, Mnemonic: "push", Args: [3]Operand{ImmOp(1)}, Len: 2}
	b := Instruction{Address: 0x2000, Mnemonic: "push", Args: [3]Operand{ImmOp(1)}, Len: 5}
	if !a.Equal(b) {
		t.Errorf("%v and %v should be equal", a, b)
	}
	b.Args[0] = ImmOp(2)
	if a.Equal(b) {
		t.Errorf("%v and %v should differ", a, b)
	}
	if a.Arg(0).Present() || a.Arg(4).Present() || a.Arg(2).Present() {
		t.Errorf("out-of-range and absent slots must be empty")
	}
}

func TestListingString(t *testing.T) {
	l := Listing{
		{Address: 0x1000, Mnemonic: "nop", Len: 1},
		{Address: 0x1001, Mnemonic: "push", Args: [3]Operand{RegOp("ebp")}, Len: 1},
	}
	want := "00001000  nop\n00001001  push ebp\n"
	if got := l.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{PolicyByte, PolicyStop, PolicyArch} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p, got, err)
		}
	}
	if _, err := ParsePolicy("skip"); err == nil {
		t.Error("ParsePolicy(skip) should fail")
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultTable().Validate(); err != nil {
		t.Fatalf("DefaultTable().Validate() = %v", err)
	}

	partial := DefaultTable().WithResolver(NewResolver(map[Width][]string{
		Dword: {"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"},
	}))
	var re *RegisterError
	if err := partial.Validate(); !errors.As(err, &re) || re.Width != Byte {
		t.Errorf("Validate() = %v, want byte RegisterError", err)
	}
}

func TestMissingRegisterPanics(t *testing.T) {
	table := DefaultTable().WithResolver(NewResolver(map[Width][]string{
		Dword: {"eax"},
	}))
	d := NewDecoder(WithTable(table))

	defer func() {
		r := recover()
		re, ok := r.(*RegisterError)
		if !ok {
			t.Fatalf("recovered %v, want *RegisterError", r)
		}
		if re.Code != 6 || re.Width != Dword {
			t.Errorf("RegisterError = %+v, want code 6 dword", re)
		}
	}()
	// mov esi, [edi+4]: esi is code 6.
	d.Decode([]byte{0x8b, 0x77, 0x04}, 0).Next()
	t.Fatal("decode with an incomplete resolver did not panic")
}

func TestResolverLookup(t *testing.T) {
	r := DefaultTable().Resolver()
	if name, ok := r.Lookup(4, Byte); !ok || name != "ah" {
		t.Errorf("Lookup(4, byte) = %q, %v", name, ok)
	}
	if _, ok := r.Lookup(0, Qword); ok {
		t.Error("Lookup(0, qword) should miss")
	}
}
