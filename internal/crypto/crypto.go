// Package crypto collects the decryption primitives commonly needed when
// pulling configuration out of malware samples. Every function takes its
// input by value and returns a fresh buffer.
package crypto

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrKeySize is returned for keys a cipher cannot accept.
	ErrKeySize = errors.New("invalid key size")
	// ErrIVSize is returned for IVs that do not match the block size.
	ErrIVSize = errors.New("invalid iv size")
	// ErrBlockSize is returned when block-mode input is not block aligned.
	ErrBlockSize = errors.New("input not a multiple of the block size")
)

// Func is the common shape of the symmetric primitives. Ciphers that take
// no IV ignore it.
type Func func(key, iv, data []byte) ([]byte, error)

var algorithms = map[string]Func{
	"xor": func(key, _, data []byte) ([]byte, error) { return XOR(key, data) },
	"rc4": func(key, _, data []byte) ([]byte, error) { return RC4(key, data) },
	"aes-ecb": func(key, _, data []byte) ([]byte, error) {
		return AESECBDecrypt(key, data)
	},
	"aes-cbc": AESCBCDecrypt,
	"aes-ctr": AESCTR,
	"blowfish": func(key, _, data []byte) ([]byte, error) {
		return Blowfish(key, data)
	},
	"des3":   DES3CBCDecrypt,
	"rabbit": Rabbit,
	"xxtea": func(key, _, data []byte) ([]byte, error) {
		return XXTEADecrypt(key, data)
	},
	"xxtea-raw": func(key, _, data []byte) ([]byte, error) {
		return XXTEADecryptBlocks(key, data)
	},
}

// Lookup returns the decryption primitive registered under name.
func Lookup(name string) (Func, error) {
	fn, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q (have %v)", name, Names())
	}
	return fn, nil
}

// Names lists the registered algorithm names in sorted order.
func Names() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
