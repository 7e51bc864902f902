package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"slices"
)

// RSAImportKey converts an RSA key in one of the encodings found in the
// wild to PEM: DER SubjectPublicKeyInfo, DER PKCS#1 public or private
// keys, and CryptoAPI PUBLICKEYBLOB / PRIVATEKEYBLOB structures. Public
// keys come out as "PUBLIC KEY", private keys as "RSA PRIVATE KEY".
func RSAImportKey(blob []byte) ([]byte, bool) {
	if len(blob) == 0 {
		return nil, false
	}
	if pub, err := x509.ParsePKIXPublicKey(blob); err == nil {
		if pub, ok := pub.(*rsa.PublicKey); ok {
			return encodePublic(pub)
		}
		return nil, false
	}
	if pub, err := x509.ParsePKCS1PublicKey(blob); err == nil {
		return encodePublic(pub)
	}
	if priv, err := x509.ParsePKCS1PrivateKey(blob); err == nil {
		return encodePrivate(priv), true
	}

	switch key := parseRSABlob(blob).(type) {
	case *rsa.PublicKey:
		return encodePublic(key)
	case *rsa.PrivateKey:
		return encodePrivate(key), true
	}
	return nil, false
}

// RSAExportKey encodes the public key (n, e) as a PEM "PUBLIC KEY".
func RSAExportKey(n, e *big.Int) ([]byte, error) {
	if n == nil || e == nil || n.Sign() <= 0 || e.Sign() <= 0 || !e.IsInt64() {
		return nil, fmt.Errorf("rsa: invalid public key")
	}
	pem, ok := encodePublic(&rsa.PublicKey{N: n, E: int(e.Int64())})
	if !ok {
		return nil, fmt.Errorf("rsa: cannot encode public key")
	}
	return pem, nil
}

func encodePublic(pub *rsa.PublicKey) ([]byte, bool) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, false
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), true
}

func encodePrivate(priv *rsa.PrivateKey) []byte {
	priv.Precompute()
	der := x509.MarshalPKCS1PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

// parseRSABlob decodes a CryptoAPI RSA key blob. It returns nil for
// anything else.
func parseRSABlob(blob []byte) any {
	hdr, err := parseBlobHeader(blob)
	if err != nil || (hdr.Alg != algRSAKeyX && hdr.Alg != algRSASign) {
		return nil
	}

	r := &blobReader{b: blob[blobHeaderSize:]}
	magic := string(r.bytes(4))
	bitlen := int(r.u32())
	e := int(r.u32())
	if r.err != nil || bitlen <= 0 || bitlen%16 != 0 {
		return nil
	}
	full, half := bitlen/8, bitlen/16
	le := func(n int) *big.Int {
		b := slices.Clone(r.bytes(n))
		slices.Reverse(b)
		return new(big.Int).SetBytes(b)
	}

	pub := rsa.PublicKey{N: le(full), E: e}
	switch {
	case hdr.Type == blobPublicKey && magic == "RSA1":
		if r.err != nil {
			return nil
		}
		return &pub
	case hdr.Type == blobPrivateKey && magic == "RSA2":
		p, q := le(half), le(half)
		_, _, _ = le(half), le(half), le(half) // exponent1, exponent2, coefficient
		d := le(full)
		if r.err != nil {
			return nil
		}
		return &rsa.PrivateKey{PublicKey: pub, D: d, Primes: []*big.Int{p, q}}
	}
	return nil
}
