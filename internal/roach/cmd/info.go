package cmd

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"roach/internal/analysis"
	"roach/internal/disasm"
	"roach/internal/elfx"
	"roach/internal/procmem"
	"roach/internal/roach/styles"
)

const previewCount = 16

// Report summarizes one input file.
type Report struct {
	Path    string       `json:"path"`
	Size    int          `json:"size"`
	SHA256  string       `json:"sha256"`
	Format  string       `json:"format"`
	Entry   uint64       `json:"entry,omitempty"`
	Symbols int          `json:"symbols,omitempty"`
	Imports int          `json:"imports,omitempty"`
	Regions []string     `json:"regions,omitempty"`
	Strings int          `json:"strings"`
	Preview []string     `json:"preview,omitempty"`
	Calls   []CallReport `json:"calls,omitempty"`
	Errors  []string     `json:"errors,omitempty"`
}

// CallReport is the JSON form of a recovered call site.
type CallReport struct {
	Address  string         `json:"address"`
	Function string         `json:"function"`
	Comment  string         `json:"comment,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Summarize a sample: format, hashes, code preview and call sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := buildReport(cmd, args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		plain := os.Getenv("ROACH_NO_COLOR") != ""
		width := 100
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			width = w
		}
		out, err := styles.RenderMarkdown(rep.Markdown(), width-2, plain)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	infoCmd.Flags().Bool("json", false, "Print the report as JSON")
	infoCmd.Flags().String("policy", "arch", "Unknown opcode policy: byte, stop or arch")
}

// detectFormat names the container or encoding data looks like.
func detectFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")):
		return "elf"
	case bytes.HasPrefix(data, []byte("AP32")):
		return "aplib"
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		return "gzip"
	case len(data) >= 2 && data[0] == 0x78 && (data[1] == 0x01 || data[1] == 0x9c || data[1] == 0xda):
		return "zlib"
	}
	if _, err := procmem.Parse(data); err == nil && len(data) > 0 {
		return "procmem"
	}
	return "raw"
}

func buildReport(cmd *cobra.Command, path string) (*Report, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(cmd)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	rep := &Report{
		Path:   path,
		Size:   len(data),
		SHA256: hex.EncodeToString(sum[:]),
		Format: detectFormat(data),
	}

	var (
		a         *analysis.Annotator
		listing   disasm.Listing
		decodeErr error
	)
	switch rep.Format {
	case "elf":
		im, err := elfx.Open(path)
		if err != nil {
			return nil, err
		}
		defer im.Close()
		rep.Entry = im.Entry()
		rep.Symbols = len(im.Symbols)
		rep.Imports = len(im.Imports)
		for _, sec := range []elfx.Section{im.Text, im.Rodata, im.Data} {
			if b, ok := im.SliceVA(sec.VA, sec.Size); ok {
				rep.Strings += len(analysis.Strings(b, sec.VA, analysis.MinStringLength))
			}
		}
		if code, ok := im.SliceToSegmentEnd(rep.Entry); ok {
			listing, decodeErr = decodeN(dec, code, rep.Entry, previewCount)
		}
		a = newAnnotator(analysis.SymbolsFromImage(im), im)
	case "procmem":
		d, _ := procmem.Parse(data)
		for _, r := range d.Regions() {
			rep.Regions = append(rep.Regions, r.String())
			rep.Strings += len(analysis.Strings(r.Data, r.Addr, analysis.MinStringLength))
		}
	case "raw":
		rep.Strings = len(analysis.Strings(data, 0, analysis.MinStringLength))
		listing, decodeErr = decodeN(dec, data, 0, previewCount)
		a = newAnnotator(nil, nil)
	default:
		rep.Strings = len(analysis.Strings(data, 0, analysis.MinStringLength))
	}
	if decodeErr != nil {
		rep.Errors = append(rep.Errors, decodeErr.Error())
	}

	if a != nil && len(listing) > 0 {
		res := a.Annotate(listing)
		for _, line := range res.Listing {
			rep.Preview = append(rep.Preview, sanitizeForJSON(line.String()))
		}
		for _, f := range res.Findings {
			rep.Calls = append(rep.Calls, CallReport{
				Address:  fmt.Sprintf("0x%08x", f.CallVA),
				Function: f.Name(),
				Comment:  sanitizeForJSON(f.Comment),
				Metadata: f.Metadata,
			})
		}
	}
	return rep, nil
}

// sanitizeForJSON replaces invalid UTF-8 so recovered bytes survive encoding.
func sanitizeForJSON(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// Markdown renders the report for glamour.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Path)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Format | %s |\n", r.Format)
	fmt.Fprintf(&b, "| Size | %d bytes |\n", r.Size)
	fmt.Fprintf(&b, "| SHA256 | `%s` |\n", r.SHA256)
	if r.Format == "elf" {
		fmt.Fprintf(&b, "| Entry | `0x%08x` |\n", r.Entry)
		fmt.Fprintf(&b, "| Symbols | %d |\n", r.Symbols)
		fmt.Fprintf(&b, "| Imports | %d |\n", r.Imports)
	}
	fmt.Fprintf(&b, "| Strings | %d |\n", r.Strings)

	if len(r.Regions) > 0 {
		fmt.Fprintf(&b, "\n## Regions (%d)\n\n```\n%s\n```\n", len(r.Regions), strings.Join(r.Regions, "\n"))
	}
	if len(r.Preview) > 0 {
		fmt.Fprintf(&b, "\n## Code\n\n```nasm\n%s\n```\n", strings.Join(r.Preview, "\n"))
	}
	if len(r.Calls) > 0 {
		b.WriteString("\n## Calls\n\n")
		for _, c := range r.Calls {
			line := c.Function
			if c.Comment != "" {
				line = c.Comment
			}
			fmt.Fprintf(&b, "- `%s` %s\n", c.Address, line)
		}
	}
	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}
