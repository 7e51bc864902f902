package crypto

// XOR applies a repeating-key XOR. It is its own inverse.
func XOR(key, data []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrKeySize
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out, nil
}

// XORByte XORs every byte of data with k.
func XORByte(k byte, data []byte) []byte {
	out, _ := XOR([]byte{k}, data)
	return out
}
