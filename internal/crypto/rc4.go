package crypto

import (
	"crypto/rc4"
	"fmt"
)

// RC4 runs the RC4 keystream over data. Encryption and decryption are the
// same operation.
func RC4(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("rc4: %w: %v", ErrKeySize, err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}
