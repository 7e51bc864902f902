package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"roach/internal/compress"
)

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// parseAddress parses a hexadecimal address with or without a 0x prefix.
func parseAddress(s string) (uint64, error) {
	h := strings.TrimSpace(s)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil || h == "" {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

// bytesFlag resolves the text, hex and base64 forms of a byte flag such
// as --key/--key-hex/--key-b64. At most one may be set.
func bytesFlag(cmd *cobra.Command, name string) ([]byte, error) {
	text, _ := cmd.Flags().GetString(name)
	hex, _ := cmd.Flags().GetString(name + "-hex")
	b64, _ := cmd.Flags().GetString(name + "-b64")

	set := 0
	for _, v := range []string{text, hex, b64} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("use only one of --%[1]s, --%[1]s-hex and --%[1]s-b64", name)
	}

	switch {
	case hex != "":
		b, err := compress.Unhex(hex)
		if err != nil {
			return nil, fmt.Errorf("--%s-hex: %w", name, err)
		}
		return b, nil
	case b64 != "":
		b, err := compress.Base64(b64)
		if err != nil {
			return nil, fmt.Errorf("--%s-b64: %w", name, err)
		}
		return b, nil
	case text != "":
		return []byte(text), nil
	}
	return nil, nil
}

func addBytesFlag(cmd *cobra.Command, name, usage string) {
	cmd.Flags().String(name, "", usage+" (text)")
	cmd.Flags().String(name+"-hex", "", usage+" (hex)")
	cmd.Flags().String(name+"-b64", "", usage+" (base64)")
}

// writeOutput sends data to --write when set and to stdout otherwise.
func writeOutput(cmd *cobra.Command, data []byte) error {
	path, _ := cmd.Flags().GetString("write")
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d bytes written to %s\n", len(data), path)
	return nil
}
