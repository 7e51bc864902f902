package crypto

import (
	"crypto/des"
	"fmt"
)

// DES3CBCDecrypt decrypts with Triple DES in CBC mode. An 8-byte key is
// used as K|K|K (plain DES) and a 16-byte key as K1|K2|K1.
func DES3CBCDecrypt(key, iv, data []byte) ([]byte, error) {
	var full []byte
	switch len(key) {
	case 8:
		full = append(append(append(full, key...), key...), key...)
	case 16:
		full = append(append(full, key...), key[:8]...)
	case 24:
		full = key
	default:
		return nil, fmt.Errorf("des3: %w: %d", ErrKeySize, len(key))
	}
	block, err := des.NewTripleDESCipher(full)
	if err != nil {
		return nil, fmt.Errorf("des3: %w", err)
	}
	return cbcDecrypt(block, iv, data)
}
