package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"roach/internal/analysis"
	"roach/internal/detectors"
	"roach/internal/disasm"
	"roach/internal/elfx"
	"roach/internal/ui/colorize"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm FILE",
	Short: "Disassemble a raw buffer or an ELF function",
	Long: `Disassemble 32-bit x86 code. Raw files are decoded from --offset, with
--base naming the address of the file's first byte. ELF images are decoded
from .text, from --base, or from the function named by --symbol.`,
	Example: `
# Shellcode mapped at 0x401000, first 20 instructions
roach disasm --base 0x401000 --count 20 payload.bin

# A function of an i386 ELF, with call arguments
roach disasm --symbol decrypt_config --calls sample.elf
  `,
	Args: cobra.ExactArgs(1),
	RunE: runDisasm,
}

func init() {
	disasmCmd.Flags().String("base", "", "Load address (hex)")
	disasmCmd.Flags().Int("offset", 0, "File offset to start decoding at (raw input)")
	disasmCmd.Flags().Int("length", 0, "Number of bytes to decode, 0 for all")
	disasmCmd.Flags().IntP("count", "n", 0, "Maximum number of instructions, 0 for all")
	disasmCmd.Flags().String("policy", "arch", "Unknown opcode policy: byte, stop or arch")
	disasmCmd.Flags().StringP("symbol", "s", "", "ELF function to disassemble")
	disasmCmd.Flags().Bool("raw", false, "Treat the input as raw code even if it is an ELF image")
	disasmCmd.Flags().Bool("plain", false, "Print bare address and instruction columns")
	disasmCmd.Flags().Bool("calls", false, "List call sites with recovered arguments")
}

func newDecoder(cmd *cobra.Command) (*disasm.Decoder, error) {
	name, _ := cmd.Flags().GetString("policy")
	p, err := disasm.ParsePolicy(name)
	if err != nil {
		return nil, err
	}
	return disasm.NewDecoder(disasm.WithPolicy(p), disasm.WithLogger(slog.Default())), nil
}

// newAnnotator wires symbols, memory and the detectors together.
func newAnnotator(syms analysis.Symbols, mem analysis.Memory) *analysis.Annotator {
	return &analysis.Annotator{
		Symbols: syms,
		Memory:  mem,
		Detectors: analysis.NewDetectorChain(
			detectors.NewAPIDetector(),
			detectors.NewXXTEADetector(),
		),
		Logger: slog.Default(),
	}
}

// decodeN decodes up to count instructions (all when count <= 0). A
// truncated final instruction only ends the listing.
func decodeN(dec *disasm.Decoder, buf []byte, addr uint64, count int) (disasm.Listing, error) {
	s := dec.Decode(buf, addr)
	var out disasm.Listing
	for (count <= 0 || len(out) < count) && s.Next() {
		out = append(out, s.Inst())
	}
	if err := s.Err(); err != nil {
		if errors.Is(err, disasm.ErrTruncated) {
			slog.Warn("listing ends in a truncated instruction", "error", err)
			return out, nil
		}
		return out, err
	}
	return out, nil
}

func runDisasm(cmd *cobra.Command, args []string) error {
	dec, err := newDecoder(cmd)
	if err != nil {
		return err
	}
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	raw, _ := cmd.Flags().GetBool("raw")
	if !raw && args[0] != "-" && bytes.HasPrefix(data, []byte("\x7fELF")) {
		return disasmELF(cmd, dec, args[0])
	}

	var base uint64
	if s, _ := cmd.Flags().GetString("base"); s != "" {
		if base, err = parseAddress(s); err != nil {
			return err
		}
	}
	offset, _ := cmd.Flags().GetInt("offset")
	length, _ := cmd.Flags().GetInt("length")
	if offset < 0 || offset > len(data) {
		return fmt.Errorf("offset %d outside the %d byte input", offset, len(data))
	}
	code := data[offset:]
	if length > 0 && length < len(code) {
		code = code[:length]
	}

	count, _ := cmd.Flags().GetInt("count")
	l, err := decodeN(dec, code, base+uint64(offset), count)
	if perr := printListing(cmd, l, newAnnotator(nil, nil)); perr != nil {
		return perr
	}
	return err
}

func disasmELF(cmd *cobra.Command, dec *disasm.Decoder, path string) error {
	im, err := elfx.Open(path)
	if err != nil {
		return err
	}
	defer im.Close()

	count, _ := cmd.Flags().GetInt("count")
	var (
		code []byte
		addr uint64
		ok   bool
	)
	symName, _ := cmd.Flags().GetString("symbol")
	baseFlag, _ := cmd.Flags().GetString("base")
	switch {
	case symName != "":
		sym, found := im.FindFunctionByName(symName)
		if !found {
			return fmt.Errorf("function %q not found", symName)
		}
		addr = sym.Addr
		if code, ok = im.FunctionBytes(sym); !ok {
			// Unsized symbol: decode a window from its start.
			code, ok = im.SliceToSegmentEnd(sym.Addr)
			if count <= 0 {
				count = 64
			}
		}
	case baseFlag != "":
		if addr, err = parseAddress(baseFlag); err != nil {
			return err
		}
		code, ok = im.SliceToSegmentEnd(addr)
	default:
		addr = im.Text.VA
		code, ok = im.SliceVA(im.Text.VA, im.Text.Size)
	}
	if !ok {
		return fmt.Errorf("address 0x%x is not backed by the file", addr)
	}

	l, err := decodeN(dec, code, addr, count)
	if perr := printListing(cmd, l, newAnnotator(analysis.SymbolsFromImage(im), im)); perr != nil {
		return perr
	}
	return err
}

func printListing(cmd *cobra.Command, l disasm.Listing, a *analysis.Annotator) error {
	w := cmd.OutOrStdout()
	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		_, err := io.WriteString(w, l.String())
		return err
	}

	res := a.Annotate(l)
	if _, err := io.WriteString(w, colorize.ColorizeListing(res.Text())); err != nil {
		return err
	}
	if calls, _ := cmd.Flags().GetBool("calls"); calls {
		writeFindings(w, res.Findings)
	}
	return nil
}

func writeFindings(w io.Writer, findings []analysis.CallFinding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "\n; %d call sites\n", len(findings))
	for _, f := range findings {
		line := fmt.Sprintf("%08x  %s", f.CallVA, f.Name())
		if f.Comment != "" {
			line += "  ; " + f.Comment
		}
		fmt.Fprintln(w, line)
	}
}
