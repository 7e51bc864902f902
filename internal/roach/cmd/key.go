package cmd

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"roach/internal/crypto"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Convert key material between encodings",
}

var keyImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Convert a CryptoAPI or DER key blob",
	Long: `Convert a key blob lifted from a sample. RSA keys (DER, PKCS#1 or a
CryptoAPI PUBLICKEYBLOB/PRIVATEKEYBLOB) are printed as PEM. AES
PLAINTEXTKEYBLOBs are printed as the algorithm name and the hex key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		out, err := importKey(blob)
		if err != nil {
			return err
		}
		return writeOutput(cmd, out)
	},
}

var keyExportCmd = &cobra.Command{
	Use:   "export N E",
	Short: "Encode an RSA public key (modulus and exponent) as PEM",
	Example: `
roach key export 0xc3a1...9f 65537
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, ok := new(big.Int).SetString(args[0], 0)
		if !ok {
			return fmt.Errorf("invalid modulus %q", args[0])
		}
		e, ok := new(big.Int).SetString(args[1], 0)
		if !ok {
			return fmt.Errorf("invalid exponent %q", args[1])
		}
		pem, err := crypto.RSAExportKey(n, e)
		if err != nil {
			return err
		}
		return writeOutput(cmd, pem)
	},
}

func init() {
	keyImportCmd.Flags().StringP("write", "w", "", "Write output to this file")
	keyExportCmd.Flags().StringP("write", "w", "", "Write output to this file")
	keyCmd.AddCommand(keyImportCmd, keyExportCmd)
}

func importKey(blob []byte) ([]byte, error) {
	if pem, ok := crypto.RSAImportKey(blob); ok {
		return pem, nil
	}
	if name, key, ok := crypto.AESImportKey(blob); ok {
		return []byte(fmt.Sprintf("%s %s\n", name, hex.EncodeToString(key))), nil
	}
	return nil, fmt.Errorf("unrecognized key blob (%d bytes)", len(blob))
}
