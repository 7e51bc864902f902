package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"roach/internal/crypto"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt ALGORITHM FILE",
	Short: "Decrypt a file with one of the built-in ciphers",
	Long: `Decrypt FILE (or stdin with "-") and write the plaintext to stdout or --write.

Algorithms: ` + strings.Join(crypto.Names(), ", ") + `

Stream ciphers (xor, rc4, aes-ctr, rabbit) encrypt and decrypt alike.`,
	Example: `
# RC4 with a hex key
roach decrypt rc4 --key-hex 0badc0de config.bin

# XXTEA with a text key, then inflate the result
roach decrypt xxtea --key s3cr3t --unpack gzip payload.bin --write payload.out
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := runDecrypt(cmd, args[0], args[1])
		if err != nil {
			return err
		}
		return writeOutput(cmd, out)
	},
}

func init() {
	addBytesFlag(decryptCmd, "key", "Key")
	addBytesFlag(decryptCmd, "iv", "IV or nonce")
	decryptCmd.Flags().Int("skip", 0, "Bytes to skip before the ciphertext")
	decryptCmd.Flags().String("unpack", "", "Unpack the plaintext afterwards: aplib or gzip")
	decryptCmd.Flags().StringP("write", "w", "", "Write output to this file")
}

func runDecrypt(cmd *cobra.Command, algo, path string) ([]byte, error) {
	fn, err := crypto.Lookup(algo)
	if err != nil {
		return nil, err
	}
	key, err := bytesFlag(cmd, "key")
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("a key is required (--key, --key-hex or --key-b64)")
	}
	iv, err := bytesFlag(cmd, "iv")
	if err != nil {
		return nil, err
	}

	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	skip, _ := cmd.Flags().GetInt("skip")
	if skip < 0 || skip > len(data) {
		return nil, fmt.Errorf("--skip %d outside the %d byte input", skip, len(data))
	}

	out, err := fn(key, iv, data[skip:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", algo, err)
	}
	slog.Debug("decrypted", "algorithm", algo, "in", len(data)-skip, "out", len(out))

	unpack, _ := cmd.Flags().GetString("unpack")
	if unpack == "" {
		return out, nil
	}
	return unpackBytes(unpack, out)
}
