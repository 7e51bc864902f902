package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// MaxOutput bounds the size of a depacked aPLib stream.
const MaxOutput = 4 << 20

var apMagic = []byte("AP32")

// apHeader is the header aPsafe_pack prepends to a packed stream.
type apHeader struct {
	Size       uint32
	PackedSize uint32
	PackedCRC  uint32
	OrigSize   uint32
	OrigCRC    uint32
}

const apHeaderSize = 24

// APLib depacks an aPLib stream. Streams starting with the "AP32" safe
// header are length and CRC checked; anything else is depacked raw.
func APLib(buf []byte) ([]byte, error) {
	if !bytes.HasPrefix(buf, apMagic) {
		return apDepack(buf, MaxOutput)
	}

	if len(buf) < apHeaderSize {
		return nil, fmt.Errorf("aplib: %w: short header", ErrCorrupt)
	}
	var h apHeader
	if err := binary.Read(bytes.NewReader(buf[4:apHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("aplib: %w", err)
	}
	if h.Size < apHeaderSize || uint64(h.Size)+uint64(h.PackedSize) > uint64(len(buf)) {
		return nil, fmt.Errorf("aplib: %w: header sizes out of range", ErrCorrupt)
	}
	if h.OrigSize > MaxOutput {
		return nil, fmt.Errorf("aplib: %w: %d bytes", ErrTooLarge, h.OrigSize)
	}

	packed := buf[h.Size : h.Size+h.PackedSize]
	if crc := crc32.ChecksumIEEE(packed); crc != h.PackedCRC {
		return nil, fmt.Errorf("aplib: %w: packed crc %08x, header says %08x", ErrCorrupt, crc, h.PackedCRC)
	}
	out, err := apDepack(packed, int(h.OrigSize))
	if err != nil {
		return nil, err
	}
	if len(out) != int(h.OrigSize) {
		return nil, fmt.Errorf("aplib: %w: depacked %d bytes, header says %d", ErrCorrupt, len(out), h.OrigSize)
	}
	if crc := crc32.ChecksumIEEE(out); crc != h.OrigCRC {
		return nil, fmt.Errorf("aplib: %w: crc %08x, header says %08x", ErrCorrupt, crc, h.OrigCRC)
	}
	return out, nil
}

type apState struct {
	src  []byte
	pos  int
	tag  byte
	bits int
	dst  []byte
	max  int
}

func (s *apState) readByte() (byte, error) {
	if s.pos >= len(s.src) {
		return 0, ErrCorrupt
	}
	b := s.src[s.pos]
	s.pos++
	return b, nil
}

func (s *apState) bit() (uint32, error) {
	if s.bits == 0 {
		b, err := s.readByte()
		if err != nil {
			return 0, err
		}
		s.tag, s.bits = b, 8
	}
	s.bits--
	v := uint32(s.tag>>7) & 1
	s.tag <<= 1
	return v, nil
}

func (s *apState) gamma() (uint32, error) {
	v := uint32(1)
	for {
		b, err := s.bit()
		if err != nil {
			return 0, err
		}
		if v >= 1<<30 {
			return 0, ErrCorrupt
		}
		v = v<<1 + b
		more, err := s.bit()
		if err != nil {
			return 0, err
		}
		if more == 0 {
			return v, nil
		}
	}
}

func (s *apState) literal() error {
	b, err := s.readByte()
	if err != nil {
		return err
	}
	return s.emit(b)
}

func (s *apState) emit(b byte) error {
	if len(s.dst) >= s.max {
		return ErrTooLarge
	}
	s.dst = append(s.dst, b)
	return nil
}

// copyBack appends n bytes starting offs bytes back in the output.
func (s *apState) copyBack(offs, n uint32) error {
	if offs == 0 || uint64(offs) > uint64(len(s.dst)) {
		return ErrCorrupt
	}
	if uint64(len(s.dst))+uint64(n) > uint64(s.max) {
		return ErrTooLarge
	}
	from := len(s.dst) - int(offs)
	for i := 0; i < int(n); i++ {
		s.dst = append(s.dst, s.dst[from+i])
	}
	return nil
}

func apDepack(src []byte, max int) ([]byte, error) {
	s := &apState{src: src, max: max}
	if err := s.run(); err != nil {
		return nil, fmt.Errorf("aplib: %w", err)
	}
	return s.dst, nil
}

func (s *apState) run() error {
	if err := s.literal(); err != nil {
		return err
	}
	r0 := ^uint32(0)
	lwm := false
	for {
		b, err := s.bit()
		if err != nil {
			return err
		}
		if b == 0 {
			if err := s.literal(); err != nil {
				return err
			}
			lwm = false
			continue
		}

		if b, err = s.bit(); err != nil {
			return err
		}
		if b == 0 {
			// Gamma-coded offset and length.
			offs, err := s.gamma()
			if err != nil {
				return err
			}
			var n uint32
			if !lwm && offs == 2 {
				offs = r0
				if n, err = s.gamma(); err != nil {
					return err
				}
			} else {
				if lwm {
					offs -= 2
				} else {
					offs -= 3
				}
				lo, err := s.readByte()
				if err != nil {
					return err
				}
				offs = offs<<8 + uint32(lo)
				if n, err = s.gamma(); err != nil {
					return err
				}
				if offs >= 32000 {
					n++
				}
				if offs >= 1280 {
					n++
				}
				if offs < 128 {
					n += 2
				}
			}
			if err := s.copyBack(offs, n); err != nil {
				return err
			}
			r0 = offs
			lwm = true
			continue
		}

		if b, err = s.bit(); err != nil {
			return err
		}
		if b == 0 {
			// One byte offset, length 2 or 3; offset zero ends the stream.
			v, err := s.readByte()
			if err != nil {
				return err
			}
			n, offs := 2+uint32(v&1), uint32(v>>1)
			if offs == 0 {
				return nil
			}
			if err := s.copyBack(offs, n); err != nil {
				return err
			}
			r0 = offs
			lwm = true
			continue
		}

		// Four bit offset, single byte; offset zero emits a zero.
		var offs uint32
		for range 4 {
			b, err := s.bit()
			if err != nil {
				return err
			}
			offs = offs<<1 + b
		}
		if offs == 0 {
			err = s.emit(0)
		} else {
			err = s.copyBack(offs, 1)
		}
		if err != nil {
			return err
		}
		lwm = false
	}
}
