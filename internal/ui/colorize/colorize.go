// Package colorize highlights Intel-syntax x86 listings for the terminal.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss/v2"
)

var (
	addrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4F4F4F"))
	commentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EBC2ED"))
)

// Enabled reports whether output should carry color. ROACH_NO_COLOR and
// the NO_COLOR convention both switch it off.
func Enabled() bool {
	return os.Getenv("ROACH_NO_COLOR") == "" && os.Getenv("NO_COLOR") == ""
}

// getAssemblyLexer returns an Intel-syntax lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	for _, name := range []string{"nasm", "gas"} {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	for _, name := range []string{"disasm-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeAssembly highlights a whole listing in one pass.
func ColorizeAssembly(code string) (string, error) {
	if !Enabled() {
		return code, nil
	}
	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// ColorizeInstructionLine colorizes a single listing line while preserving
// its column layout. Lines look like
//
//	"8048400    push   ebp                            ; comment"
//	"                                                 ; comment only"
func ColorizeInstructionLine(line string) string {
	if !Enabled() {
		return line
	}

	if strings.HasPrefix(strings.TrimSpace(line), ";") {
		return commentStyle.Render(line)
	}

	addr, rest, ok := strings.Cut(line, " ")
	if !ok || !isHex(addr) {
		return colorizeFullLine(line)
	}
	return addrStyle.Render(addr) + " " + colorizeFullLine(rest)
}

// ColorizeListing colorizes every line of a rendered listing.
func ColorizeListing(text string) string {
	if !Enabled() {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = ColorizeInstructionLine(l)
		}
	}
	return strings.Join(lines, "\n")
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexChar(s[i]) {
			return false
		}
	}
	return true
}

// isHexChar checks if a character is a hexadecimal digit
func isHexChar(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// colorizeFullLine uses Chroma to colorize an assembly line
func colorizeFullLine(line string) string {
	lexer := getAssemblyLexer()
	if lexer == nil {
		return line
	}

	iterator, err := lexer.Tokenise(nil, line)
	if err != nil {
		return line
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return line
	}
	// The formatter terminates the last token with a newline of its own.
	return strings.TrimSuffix(buf.String(), "\n")
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}

// VisibleWidth counts the characters of s that print.
func VisibleWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
