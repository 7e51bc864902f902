package crypto

import (
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// Blowfish decrypts block-aligned data with Blowfish in ECB mode.
func Blowfish(key, data []byte) ([]byte, error) {
	block, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blowfish: %w: %v", ErrKeySize, err)
	}
	return ecbDecrypt(block, data)
}
