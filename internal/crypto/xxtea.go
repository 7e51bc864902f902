package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xxtea/xxtea-go/xxtea"
)

// XXTEAEncrypt encrypts data with XXTEA using the common length-suffixed
// layout. Keys are zero padded or truncated to 16 bytes.
func XXTEAEncrypt(key, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("xxtea: empty data")
	}
	return xxtea.Encrypt(data, key), nil
}

// XXTEADecrypt reverses XXTEAEncrypt.
func XXTEADecrypt(key, data []byte) ([]byte, error) {
	out := xxtea.Decrypt(data, key)
	if out == nil {
		return nil, errors.New("xxtea: decryption failed (bad key or corrupt data)")
	}
	return out, nil
}

const xxteaDelta = 0x9e3779b9

func xxteaMX(sum, y, z uint32, p, e int, k *[4]uint32) uint32 {
	return ((z>>5 ^ y<<2) + (y>>3 ^ z<<4)) ^ ((sum ^ y) + (k[p&3^e] ^ z))
}

// XXTEAEncryptBlocks encrypts data as a bare array of little-endian words
// with no length suffix, the layout many droppers use for embedded
// configuration. data must be a multiple of 4 bytes and at least 8.
func XXTEAEncryptBlocks(key, data []byte) ([]byte, error) {
	v, k, err := xxteaWords(key, data)
	if err != nil {
		return nil, err
	}
	n := len(v) - 1
	z, sum := v[n], uint32(0)
	for q := 6 + 52/len(v); q > 0; q-- {
		sum += xxteaDelta
		e := int(sum >> 2 & 3)
		for p := 0; p <= n; p++ {
			y := v[(p+1)%len(v)]
			v[p] += xxteaMX(sum, y, z, p, e, k)
			z = v[p]
		}
	}
	return xxteaBytes(v), nil
}

// XXTEADecryptBlocks reverses XXTEAEncryptBlocks.
func XXTEADecryptBlocks(key, data []byte) ([]byte, error) {
	v, k, err := xxteaWords(key, data)
	if err != nil {
		return nil, err
	}
	n := len(v) - 1
	y := v[0]
	for sum := uint32(6+52/len(v)) * xxteaDelta; sum != 0; sum -= xxteaDelta {
		e := int(sum >> 2 & 3)
		for p := n; p >= 0; p-- {
			z := v[(p+n)%len(v)]
			v[p] -= xxteaMX(sum, y, z, p, e, k)
			y = v[p]
		}
	}
	return xxteaBytes(v), nil
}

func xxteaWords(key, data []byte) ([]uint32, *[4]uint32, error) {
	if len(data)%4 != 0 || len(data) < 8 {
		return nil, nil, fmt.Errorf("xxtea: %w: %d bytes", ErrBlockSize, len(data))
	}
	var kb [16]byte
	copy(kb[:], key)
	var k [4]uint32
	for i := range k {
		k[i] = binary.LittleEndian.Uint32(kb[4*i:])
	}
	v := make([]uint32, len(data)/4)
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return v, &k, nil
}

func xxteaBytes(v []uint32) []byte {
	out := make([]byte, 4*len(v))
	for i, w := range v {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
