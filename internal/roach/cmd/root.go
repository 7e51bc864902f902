package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	roachlog "roach/internal/roach/log"
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("log-file", "", "Append logs to this file instead of stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		disasmCmd,
		procmemCmd,
		decryptCmd,
		unpackCmd,
		keyCmd,
		infoCmd,
		viewCmd,
		schemaCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "roach",
	Short: "Malware analysis helpers built around a 32-bit x86 decoder",
	Long: `Roach disassembles 32-bit x86 code from raw buffers, ELF images and
process memory dumps, and carries the decryption and decompression
routines needed to pull configuration out of malware samples.`,
	Example: `
# Disassemble shellcode loaded at 0x401000
roach disasm --base 0x401000 shellcode.bin

# List the regions of a process memory dump
roach procmem list 1234.dmp

# Decrypt a blob with RC4
roach decrypt rc4 --key-hex 0badc0de config.bin
  `,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		logFile, _ := cmd.Flags().GetString("log-file")
		roachlog.Setup(logFile, debug)

		noColor, _ := cmd.Flags().GetBool("no-color")
		if noColor || !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("ROACH_NO_COLOR", "1")
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		roachlog.Close()
	},
}

// Execute runs the root command. Pipes get plain cobra output, terminals
// get fang's styled help and errors.
func Execute() {
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
