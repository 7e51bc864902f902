package crypto

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

var rabbitA = [8]uint32{
	0x4d34d34d, 0xd34d34d3, 0x34d34d34, 0x4d34d34d,
	0xd34d34d3, 0x34d34d34, 0x4d34d34d, 0xd34d34d3,
}

type rabbitState struct {
	x     [8]uint32
	c     [8]uint32
	carry uint32
}

func rabbitG(u, v uint32) uint32 {
	sq := uint64(u+v) * uint64(u+v)
	return uint32(sq) ^ uint32(sq>>32)
}

func (s *rabbitState) next() {
	for j := range s.c {
		t := uint64(s.c[j]) + uint64(rabbitA[j]) + uint64(s.carry)
		s.c[j] = uint32(t)
		s.carry = uint32(t >> 32)
	}
	var g [8]uint32
	for j := range g {
		g[j] = rabbitG(s.x[j], s.c[j])
	}
	rotl := bits.RotateLeft32
	s.x[0] = g[0] + rotl(g[7], 16) + rotl(g[6], 16)
	s.x[1] = g[1] + rotl(g[0], 8) + g[7]
	s.x[2] = g[2] + rotl(g[1], 16) + rotl(g[0], 16)
	s.x[3] = g[3] + rotl(g[2], 8) + g[1]
	s.x[4] = g[4] + rotl(g[3], 16) + rotl(g[2], 16)
	s.x[5] = g[5] + rotl(g[4], 8) + g[3]
	s.x[6] = g[6] + rotl(g[5], 16) + rotl(g[4], 16)
	s.x[7] = g[7] + rotl(g[6], 8) + g[5]
}

func (s *rabbitState) keySetup(key []byte) {
	var k [4]uint32
	for i := range k {
		k[i] = binary.LittleEndian.Uint32(key[4*i:])
	}
	s.x = [8]uint32{
		k[0], k[3]<<16 | k[2]>>16,
		k[1], k[0]<<16 | k[3]>>16,
		k[2], k[1]<<16 | k[0]>>16,
		k[3], k[2]<<16 | k[1]>>16,
	}
	s.c = [8]uint32{
		bits.RotateLeft32(k[2], 16), k[0]&0xffff0000 | k[1]&0xffff,
		bits.RotateLeft32(k[3], 16), k[1]&0xffff0000 | k[2]&0xffff,
		bits.RotateLeft32(k[0], 16), k[2]&0xffff0000 | k[3]&0xffff,
		bits.RotateLeft32(k[1], 16), k[3]&0xffff0000 | k[0]&0xffff,
	}
	s.carry = 0
	for range 4 {
		s.next()
	}
	for i := range s.c {
		s.c[i] ^= s.x[(i+4)&7]
	}
}

func (s *rabbitState) ivSetup(iv []byte) {
	i0 := binary.LittleEndian.Uint32(iv[0:])
	i2 := binary.LittleEndian.Uint32(iv[4:])
	i1 := i0>>16 | i2&0xffff0000
	i3 := i2<<16 | i0&0x0000ffff
	mix := [4]uint32{i0, i1, i2, i3}
	for i := range s.c {
		s.c[i] ^= mix[i&3]
	}
	for range 4 {
		s.next()
	}
}

// Rabbit runs the Rabbit stream cipher (RFC 4503) with a 16-byte key over
// data, using the eSTREAM byte order. A nil iv skips IV setup; otherwise
// it must be 8 bytes.
func Rabbit(key, iv, data []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("rabbit: %w: %d", ErrKeySize, len(key))
	}
	if iv != nil && len(iv) != 8 {
		return nil, fmt.Errorf("rabbit: %w: %d", ErrIVSize, len(iv))
	}

	var s rabbitState
	s.keySetup(key)
	if iv != nil {
		s.ivSetup(iv)
	}

	out := make([]byte, len(data))
	var ks [16]byte
	for off := 0; off < len(data); off += len(ks) {
		s.next()
		binary.LittleEndian.PutUint32(ks[0:], s.x[0]^s.x[5]>>16^s.x[3]<<16)
		binary.LittleEndian.PutUint32(ks[4:], s.x[2]^s.x[7]>>16^s.x[5]<<16)
		binary.LittleEndian.PutUint32(ks[8:], s.x[4]^s.x[1]>>16^s.x[7]<<16)
		binary.LittleEndian.PutUint32(ks[12:], s.x[6]^s.x[3]>>16^s.x[1]<<16)
		for i := 0; i < len(ks) && off+i < len(data); i++ {
			out[off+i] = data[off+i] ^ ks[i]
		}
	}
	return out, nil
}
