package disasm

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/arch/x86/x86asm"
)

var corpus = []byte(strings.Join([]string{
	"\x8b\x77\x04",                 // mov esi, [edi+4]
	"\x8b\x84\x8b\x92\x10\x00\x00", // mov eax, [ebx+4*ecx+4242]
	"\xa0\x59\x58\x14\x00",         // mov al, byte [1333337]
	"\xa1\x59\x58\x14\x00",         // mov eax, [1333337]
	"\x68\x41\x41\x41\x41",         // push 0x41414141
	"\xe8\x00\x00\x00\x00",         // call $+5
	"\x0f\xb6\x05\x00\x00\x04\x00", // movzx eax, byte [0x400000]
}, ""))

func decodeAll(t *testing.T, d *Decoder, buf []byte, base uint64) Listing {
	t.Helper()
	insts, err := d.Decode(buf, base).Collect()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return insts
}

func TestDecodeCorpus(t *testing.T) {
	insts := decodeAll(t, NewDecoder(), corpus, 0x1000)
	if len(insts) != 7 {
		t.Fatalf("got %d instructions, want 7:\n%s", len(insts), insts)
	}

	t.Run("register and disp8", func(t *testing.T) {
		in := insts[0]
		if in.Mnemonic != "mov" {
			t.Errorf("mnemonic = %q, want mov", in.Mnemonic)
		}
		if reg, ok := in.Arg(1).Register(); !ok || reg != "esi" {
			t.Errorf("operand1 = %v, want esi", in.Arg(1))
		}
		want := Memory{Width: Dword, Base: "edi", Disp: 4}
		if mem, ok := in.Arg(2).Memory(); !ok || mem != want {
			t.Errorf("operand2 = %+v, want %+v", mem, want)
		}
		if got := in.String(); got != "mov esi, dword [edi+0x00000004]" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("sib", func(t *testing.T) {
		in := insts[1]
		want := Memory{Width: Dword, Base: "ebx", Scale: 4, Index: "ecx", Disp: 4242}
		if mem, _ := in.Arg(2).Memory(); mem != want {
			t.Errorf("operand2 = %+v, want %+v", mem, want)
		}
		if got := in.String(); got != "mov eax, dword [ebx+4*ecx+0x00001092]" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("moffs byte keeps memory in operand1", func(t *testing.T) {
		in := insts[2]
		want := Memory{Width: Byte, Disp: 1333337}
		if mem, ok := in.Arg(1).Memory(); !ok || mem != want {
			t.Errorf("operand1 = %+v, want %+v", in.Arg(1), want)
		}
		if in.Arg(2).Present() {
			t.Errorf("operand2 = %v, want absent", in.Arg(2))
		}
	})

	t.Run("moffs dword", func(t *testing.T) {
		in := insts[3]
		if reg, _ := in.Arg(1).Register(); reg != "eax" {
			t.Errorf("operand1 = %v, want eax", in.Arg(1))
		}
		want := Memory{Width: Dword, Disp: 1333337}
		if mem, _ := in.Arg(2).Memory(); mem != want {
			t.Errorf("operand2 = %+v, want %+v", mem, want)
		}
		if got := in.String(); got != "mov eax, dword [0x00145859]" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("push imm32", func(t *testing.T) {
		in := insts[4]
		if v, ok := in.Arg(1).Immediate(); !ok || v != 0x41414141 {
			t.Errorf("operand1 = %v, want 0x41414141", in.Arg(1))
		}
		if got := in.String(); got != "push 0x41414141" {
			t.Errorf("String() = %q", got)
		}
	})

	t.Run("call resolves target", func(t *testing.T) {
		in := insts[5]
		v, _ := in.Arg(1).Immediate()
		if uint64(v) != in.Address+5 {
			t.Errorf("call target = %#x, want %#x", v, in.Address+5)
		}
		if !in.Arg(1).Relative || in.Arg(1).Rel != 0 {
			t.Errorf("operand1 = %+v, want relative with zero displacement", in.Arg(1))
		}
	})

	t.Run("movzx absolute", func(t *testing.T) {
		in := insts[6]
		want := Memory{Width: Byte, Disp: 0x400000}
		if mem, _ := in.Arg(2).Memory(); mem != want || mem.Base != "" {
			t.Errorf("operand2 = %+v, want %+v", mem, want)
		}
		if got := in.String(); got != "movzx eax, byte [0x00400000]" {
			t.Errorf("String() = %q", got)
		}
	})
}

func TestDecodeRendering(t *testing.T) {
	tests := []struct {
		name string
		code string
		base uint64
		want string
	}{
		{"negative disp8", "\x8b\x45\xf8", 0, "mov eax, dword [ebp-0x00000008]"},
		{"index without base", "\x8b\x04\x8d\x00\x10\x40\x00", 0, "mov eax, dword [4*ecx+0x00401000]"},
		{"negative disp with index", "\x8b\x04\x8d\xfc\xff\xff\xff", 0, "mov eax, dword [4*ecx-0x00000004]"},
		{"lea has no width", "\x8d\x44\x24\x08", 0, "lea eax, [esp+0x00000008]"},
		{"three operands", "\x6b\xc0\x0c", 0, "imul eax, eax, 0xc"},
		{"sign-extended imm8", "\x6a\xff", 0, "push -0x1"},
		{"short jump to self", "\xeb\xfe", 0x1000, "jmp 0x1000"},
		{"backward call", "\xe8\xfb\xff\xff\xff", 0x2000, "call 0x2000"},
		{"indirect call", "\xff\x15\x00\x20\x40\x00", 0, "call dword [0x00402000]"},
		{"shift by one", "\xd1\xe0", 0, "shl eax, 0x1"},
		{"shift by cl", "\xd3\xf9", 0, "sar ecx, cl"},
		{"mov r8 imm8", "\xb0\x41", 0, "mov al, 0x41"},
		{"register to register", "\x31\xc0", 0, "xor eax, eax"},
		{"no operands", "\xc3", 0, "ret"},
		{"jcc rel32", "\x0f\x85\x10\x00\x00\x00", 0x1000, "jne 0x1016"},
		{"movzx word register", "\x0f\xb7\xc1", 0, "movzx eax, cx"},
		{"setcc", "\x0f\x95\xc0", 0, "setne al"},
		{"mov mem imm32", "\xc7\x03\x01\x00\x00\x00", 0, "mov dword [ebx+0x00000000], 0x1"},
		{"moffs store", "\xa2\x00\x10\x40\x00", 0, "mov byte [0x00401000], al"},
		{"alu group imm8", "\x83\xec\x10", 0, "sub esp, 0x10"},
		{"accumulator imm", "\x3d\x00\x01\x00\x00", 0, "cmp eax, 0x100"},
		{"push register", "\x55", 0, "push ebp"},
		{"bswap", "\x0f\xc9", 0, "bswap ecx"},
		{"ret imm16", "\xc2\x08\x00", 0, "ret 0x8"},
	}

	d := NewDecoder(WithPolicy(PolicyStop))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts := decodeAll(t, d, []byte(tt.code), tt.base)
			if len(insts) != 1 {
				t.Fatalf("got %d instructions, want 1:\n%s", len(insts), insts)
			}
			if got := insts[0].String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if insts[0].Len != len(tt.code) {
				t.Errorf("Len = %d, want %d", insts[0].Len, len(tt.code))
			}
		})
	}
}

func TestDecodeLengthsMatchX86asm(t *testing.T) {
	for in := range Instructions(corpus, 0) {
		ref, err := x86asm.Decode(in.Raw, 32)
		if err != nil {
			t.Fatalf("x86asm.Decode(% x) error = %v", in.Raw, err)
		}
		if ref.Len != in.Len {
			t.Errorf("%s: Len = %d, x86asm says %d", in, in.Len, ref.Len)
		}
	}
}

func TestDecodeDeterministic(t *testing.T) {
	first := decodeAll(t, NewDecoder(), corpus, 0x1000)
	second := decodeAll(t, NewDecoder(), corpus, 0x1000)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("decode passes differ (-first +second):\n%s", diff)
	}

	a := decodeAll(t, NewDecoder(), []byte("hAAAA"), 0)
	b := decodeAll(t, NewDecoder(), []byte("hAAAA"), 0)
	if !a.Equal(b) {
		t.Errorf("decode(hAAAA) not equal: %v vs %v", a, b)
	}
	if a[0].Mnemonic != "push" {
		t.Errorf("mnemonic = %q, want push", a[0].Mnemonic)
	}
	if v, _ := a[0].Arg(1).Immediate(); v != 0x41414141 {
		t.Errorf("operand1 = %#x, want 0x41414141", v)
	}
}

func TestInstructionsRestartable(t *testing.T) {
	seq := Instructions(corpus, 0x1000)
	var first, second []string
	for in := range seq {
		first = append(first, in.String())
	}
	for in := range seq {
		second = append(second, in.String())
	}
	if len(first) != 7 {
		t.Fatalf("first pass yielded %d instructions", len(first))
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second pass differs:\n%s", diff)
	}
}

func TestAddressProgression(t *testing.T) {
	for _, base := range []uint64{0, 0x1000, 0x7ffffff0} {
		insts := decodeAll(t, NewDecoder(), corpus, base)
		if insts[0].Address != base {
			t.Errorf("first address = %#x, want %#x", insts[0].Address, base)
		}
		for i := 1; i < len(insts); i++ {
			prev := insts[i-1]
			if insts[i].Address != prev.Address+uint64(prev.Len) {
				t.Errorf("insts[%d].Address = %#x, want %#x", i, insts[i].Address, prev.Address+uint64(prev.Len))
			}
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, base := range []uint64{0, 0x1000, 0xffffffff} {
		s := Decode(nil, base)
		if s.Next() {
			t.Errorf("Decode(nil, %#x) yielded %v", base, s.Inst())
		}
		if err := s.Err(); err != nil {
			t.Errorf("Decode(nil, %#x).Err() = %v", base, err)
		}
	}
}

func TestUnknownOpcodePolicy(t *testing.T) {
	t.Run("byte", func(t *testing.T) {
		insts := decodeAll(t, NewDecoder(), []byte{0x27, 0x90}, 0x10)
		want := []string{"db 0x27", "nop"}
		var got []string
		for _, in := range insts {
			got = append(got, in.String())
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("listing mismatch (-want +got):\n%s", diff)
		}
		if insts[0].Len != 1 || insts[1].Address != 0x11 {
			t.Errorf("db should cover one byte, got len %d next %#x", insts[0].Len, insts[1].Address)
		}
	})

	t.Run("undefined group slot", func(t *testing.T) {
		insts := decodeAll(t, NewDecoder(), []byte{0xf7, 0xc8}, 0)
		if len(insts) != 2 || insts[0].String() != "db 0xf7" || insts[1].String() != "db 0xc8" {
			t.Errorf("got %v", insts)
		}
	})

	t.Run("stop", func(t *testing.T) {
		insts, err := NewDecoder(WithPolicy(PolicyStop)).Decode([]byte{0x90, 0x27, 0x90}, 0x400).Collect()
		if len(insts) != 1 || insts[0].Mnemonic != "nop" {
			t.Errorf("got %v, want a single nop", insts)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("error = %v, want *DecodeError", err)
		}
		if !errors.Is(err, ErrUnknownOpcode) || de.Offset != 1 || de.Address != 0x401 {
			t.Errorf("error = %+v", de)
		}
	})

	t.Run("arch", func(t *testing.T) {
		d := NewDecoder(WithPolicy(PolicyArch))
		insts := decodeAll(t, d, []byte{0x66, 0x89, 0xc8, 0x27}, 0)
		var got []string
		for _, in := range insts {
			got = append(got, in.String())
		}
		if diff := cmp.Diff([]string{"mov ax, cx", "daa"}, got); diff != "" {
			t.Errorf("listing mismatch (-want +got):\n%s", diff)
		}
		if insts[0].Len != 3 {
			t.Errorf("Len = %d, want 3", insts[0].Len)
		}

		tests := []struct {
			name string
			code string
			want string
		}{
			{"fs override", "\x64\xa1\x30\x00\x00\x00", "mov eax, dword fs:[0x00000030]"},
			{"rep string move", "\xf3\xa4", "rep movsb es:[edi+0x00000000], ds:[esi+0x00000000]"},
			{"lock", "\xf0\x0f\xc1\x01", "lock xadd dword [ecx+0x00000000], eax"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				insts := decodeAll(t, d, []byte(tt.code), 0)
				if len(insts) != 1 {
					t.Fatalf("got %v, want one instruction", insts)
				}
				if diff := cmp.Diff(tt.want, insts[0].String()); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
				if insts[0].Len != len(tt.code) {
					t.Errorf("Len = %d, want %d", insts[0].Len, len(tt.code))
				}
			})
		}
	})

	t.Run("arch agrees on sib displacement", func(t *testing.T) {
		code := []byte{0x8b, 0x04, 0x8d, 0xfc, 0xff, 0xff, 0xff}
		native := decodeAll(t, NewDecoder(), code, 0)
		arch, ok := archDecode(code, 0, 0)
		if !ok || len(native) != 1 {
			t.Fatalf("decode failed: native %v arch ok %v", native, ok)
		}
		if !native[0].Args[1].Equal(arch.Args[1]) {
			t.Errorf("native %v, arch %v", native[0].Args[1], arch.Args[1])
		}
	})
}

func TestTruncatedInstruction(t *testing.T) {
	insts, err := Decode([]byte{0x90, 0x8b, 0x77}, 0).Collect()
	if len(insts) != 1 || insts[0].Mnemonic != "nop" {
		t.Errorf("got %v, want the leading nop", insts)
	}
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
	var de *DecodeError
	if errors.As(err, &de) && de.Offset != 1 {
		t.Errorf("Offset = %d, want 1", de.Offset)
	}

	// Truncation is not an unknown opcode: the arch policy does not apply.
	_, err = NewDecoder(WithPolicy(PolicyArch)).Decode([]byte{0x68, 0x41}, 0).Collect()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("error = %v, want ErrTruncated", err)
	}
}

func TestStreamDoesNotMutateInput(t *testing.T) {
	buf := append([]byte(nil), corpus...)
	insts := decodeAll(t, NewDecoder(), buf, 0)
	insts[0].Raw[0] = 0xcc
	if diff := cmp.Diff(corpus, buf); diff != "" {
		t.Errorf("input buffer changed:\n%s", diff)
	}
}
