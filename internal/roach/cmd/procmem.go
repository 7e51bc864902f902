package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"roach/internal/analysis"
	"roach/internal/procmem"
)

var procmemCmd = &cobra.Command{
	Use:   "procmem",
	Short: "Inspect process memory dumps",
}

var procmemListCmd = &cobra.Command{
	Use:   "list DUMP",
	Short: "List the memory regions of a dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := procmem.Open(args[0])
		if err != nil {
			return err
		}
		for _, r := range d.Regions() {
			fmt.Fprintln(cmd.OutOrStdout(), r.String())
		}
		return nil
	},
}

var procmemDisasmCmd = &cobra.Command{
	Use:   "disasm DUMP ADDR",
	Short: "Disassemble dump memory starting at ADDR",
	Example: `
roach procmem disasm --count 40 1234.dmp 0x401000
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dec, err := newDecoder(cmd)
		if err != nil {
			return err
		}
		d, err := procmem.Open(args[0])
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		r, ok := d.Region(addr)
		if !ok {
			return fmt.Errorf("0x%x: %w", addr, procmem.ErrUnmapped)
		}

		count, _ := cmd.Flags().GetInt("count")
		l, err := decodeN(dec, r.Data[addr-r.Addr:], addr, count)
		if perr := printListing(cmd, l, newAnnotator(nil, d)); perr != nil {
			return perr
		}
		return err
	},
}

var procmemStringsCmd = &cobra.Command{
	Use:   "strings DUMP",
	Short: "Print the text strings of every region",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := procmem.Open(args[0])
		if err != nil {
			return err
		}
		minLen, _ := cmd.Flags().GetInt("min")
		for _, r := range d.Regions() {
			for _, s := range analysis.Strings(r.Data, r.Addr, minLen) {
				fmt.Fprintf(cmd.OutOrStdout(), "0x%08x  %s\n", s.VA, s.Value)
			}
		}
		return nil
	},
}

func init() {
	procmemDisasmCmd.Flags().IntP("count", "n", 32, "Maximum number of instructions, 0 for the rest of the region")
	procmemDisasmCmd.Flags().String("policy", "arch", "Unknown opcode policy: byte, stop or arch")
	procmemDisasmCmd.Flags().Bool("plain", false, "Print bare address and instruction columns")
	procmemDisasmCmd.Flags().Bool("calls", false, "List call sites with recovered arguments")
	procmemStringsCmd.Flags().Int("min", analysis.MinStringLength, "Minimum string length")

	procmemCmd.AddCommand(procmemListCmd, procmemDisasmCmd, procmemStringsCmd)
}
