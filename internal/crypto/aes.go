package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

func newAES(key []byte) (cipher.Block, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w: %v", ErrKeySize, err)
	}
	return block, nil
}

// AESECBDecrypt decrypts block-aligned data in ECB mode.
func AESECBDecrypt(key, data []byte) ([]byte, error) {
	block, err := newAES(key)
	if err != nil {
		return nil, err
	}
	return ecbDecrypt(block, data)
}

// AESCBCDecrypt decrypts block-aligned data in CBC mode.
func AESCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := newAES(key)
	if err != nil {
		return nil, err
	}
	return cbcDecrypt(block, iv, data)
}

// AESCTR runs AES in counter mode, with iv as the initial 128-bit
// big-endian counter block.
func AESCTR(key, iv, data []byte) ([]byte, error) {
	block, err := newAES(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("aes-ctr: %w: %d", ErrIVSize, len(iv))
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(out, data)
	return out, nil
}

// AESImportKey extracts the raw key from a CryptoAPI PLAINTEXTKEYBLOB. The
// returned name is "AES-128", "AES-192" or "AES-256".
func AESImportKey(blob []byte) (string, []byte, bool) {
	hdr, err := parseBlobHeader(blob)
	if err != nil || hdr.Type != blobPlaintextKey {
		return "", nil, false
	}
	var name string
	switch hdr.Alg {
	case algAES128:
		name = "AES-128"
	case algAES192:
		name = "AES-192"
	case algAES256:
		name = "AES-256"
	default:
		return "", nil, false
	}

	r := &blobReader{b: blob[blobHeaderSize:]}
	n := r.u32()
	key := r.bytes(int(n))
	if r.err != nil {
		return "", nil, false
	}
	if _, err := aes.NewCipher(key); err != nil {
		return "", nil, false
	}
	return name, append([]byte(nil), key...), true
}

func ecbDecrypt(block cipher.Block, data []byte) ([]byte, error) {
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: %d %% %d", ErrBlockSize, len(data), bs)
	}
	out := make([]byte, len(data))
	for off := 0; off < len(data); off += bs {
		block.Decrypt(out[off:off+bs], data[off:off+bs])
	}
	return out, nil
}

func cbcDecrypt(block cipher.Block, iv, data []byte) ([]byte, error) {
	bs := block.BlockSize()
	if len(iv) != bs {
		return nil, fmt.Errorf("%w: %d, want %d", ErrIVSize, len(iv), bs)
	}
	if len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: %d %% %d", ErrBlockSize, len(data), bs)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
