package crypto

import (
	"encoding/binary"
	"errors"
)

// Windows CryptoAPI key blob types.
const (
	blobPlaintextKey = 0x08
	blobPublicKey    = 0x06
	blobPrivateKey   = 0x07
)

// CryptoAPI ALG_ID values.
const (
	algAES128  = 0x660e
	algAES192  = 0x660f
	algAES256  = 0x6610
	algRSAKeyX = 0xa400
	algRSASign = 0x2400
)

var errShortBlob = errors.New("key blob too short")

// blobHeader is the CryptoAPI BLOBHEADER (PUBLICKEYSTRUC).
type blobHeader struct {
	Type    uint8
	Version uint8
	Alg     uint32
}

const blobHeaderSize = 8

func parseBlobHeader(b []byte) (blobHeader, error) {
	if len(b) < blobHeaderSize {
		return blobHeader{}, errShortBlob
	}
	return blobHeader{
		Type:    b[0],
		Version: b[1],
		Alg:     binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// blobReader walks the little-endian fields after a BLOBHEADER.
type blobReader struct {
	b   []byte
	err error
}

func (r *blobReader) u32() uint32 {
	if r.err != nil || len(r.b) < 4 {
		r.err = errShortBlob
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b)
	r.b = r.b[4:]
	return v
}

func (r *blobReader) bytes(n int) []byte {
	if r.err != nil || n < 0 || len(r.b) < n {
		r.err = errShortBlob
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}
