package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"roach/internal/compress"
)

var unpackCmd = &cobra.Command{
	Use:       "unpack FORMAT FILE",
	Short:     "Decompress or decode a file",
	Long:      "Unpack FILE (or stdin with \"-\"). FORMAT is one of aplib, gzip, base64 or hex.\nThe gzip format also accepts zlib streams.",
	ValidArgs: []string{"aplib", "gzip", "base64", "hex"},
	Example: `
roach unpack aplib stage2.bin --write stage2.exe
base64 -w0 blob | roach unpack base64 -
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[1])
		if err != nil {
			return err
		}
		out, err := unpackBytes(args[0], data)
		if err != nil {
			return err
		}
		return writeOutput(cmd, out)
	},
}

func init() {
	unpackCmd.Flags().StringP("write", "w", "", "Write output to this file")
}

func unpackBytes(format string, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch format {
	case "aplib":
		out, err = compress.APLib(data)
	case "gzip", "zlib":
		out, err = compress.Gzip(data)
	case "base64":
		out, err = compress.Base64(string(data))
	case "hex":
		out, err = compress.Unhex(string(data))
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("unpacked", "format", format, "in", len(data), "out", len(out))
	return out, nil
}
