package colorize

import (
	"strings"
	"testing"

	"github.com/alecthomas/chroma/v2/styles"
)

func TestStyleRegistered(t *testing.T) {
	if styles.Get("disasm-dark") != DisasmDark {
		t.Error("disasm-dark is not registered")
	}
	if getAssemblyLexer() == nil {
		t.Error("no assembly lexer available")
	}
}

func TestNoColor(t *testing.T) {
	t.Setenv("ROACH_NO_COLOR", "1")
	line := "8048400    push   ebp"
	if got := ColorizeInstructionLine(line); got != line {
		t.Errorf("ColorizeInstructionLine() = %q with colors off", got)
	}
	code := "mov eax, 0x1\nret\n"
	if got, err := ColorizeAssembly(code); err != nil || got != code {
		t.Errorf("ColorizeAssembly() = %q, %v", got, err)
	}
}

func TestColorizePreservesText(t *testing.T) {
	t.Setenv("ROACH_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")
	lines := []string{
		"8048400    push   ebp                            ; -> main",
		"8048401    mov    dword [ebx+0x00000004], 0x1",
		strings.Repeat(" ", 49) + "; comment only",
		"main:",
	}
	for _, line := range lines {
		got := ColorizeInstructionLine(line)
		if !strings.Contains(got, "\x1b[") {
			t.Errorf("ColorizeInstructionLine(%q) carries no escapes", line)
		}
		if plain := StripANSI(got); plain != line {
			t.Errorf("StripANSI(ColorizeInstructionLine(%q)) = %q", line, plain)
		}
	}
}

func TestVisibleWidth(t *testing.T) {
	if got := VisibleWidth("\x1b[38;2;79;79;79mabc\x1b[0m d"); got != 5 {
		t.Errorf("VisibleWidth() = %d, want 5", got)
	}
}
