package disasm

import "iter"

// Stream is a lazy, finite pass over a buffer. It decodes one instruction
// per call to Next and never reads past the end of the buffer.
//
//	s := disasm.Decode(code, 0x1000)
//	for s.Next() {
//		fmt.Println(s.Inst())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	dec  *Decoder
	buf  []byte
	base uint64
	off  int
	cur  Instruction
	err  error
	done bool
}

// Next decodes the next instruction. It returns false at the end of the
// buffer or after a decode failure, which Err then reports.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if s.off >= len(s.buf) {
		s.done = true
		return false
	}
	in, err := s.dec.step(s.buf, s.off, s.base+uint64(s.off))
	if err != nil {
		s.err = err
		s.done = true
		return false
	}
	s.cur = in
	s.off += in.Len
	return true
}

// Inst returns the instruction decoded by the last successful Next.
func (s *Stream) Inst() Instruction { return s.cur }

// Offset is the buffer offset of the next instruction to decode.
func (s *Stream) Offset() int { return s.off }

// Err returns the decode failure that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// All adapts the remaining stream to a range-over-func iterator.
func (s *Stream) All() iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		for s.Next() {
			if !yield(s.Inst()) {
				return
			}
		}
	}
}

// Collect drains the stream. The instructions decoded before a failure
// are returned together with the error.
func (s *Stream) Collect() (Listing, error) {
	var out Listing
	for s.Next() {
		out = append(out, s.Inst())
	}
	return out, s.Err()
}

// Instructions returns a restartable iterator: every range over it starts
// a fresh decode pass from offset 0.
func (d *Decoder) Instructions(buf []byte, base uint64) iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		d.Decode(buf, base).All()(yield)
	}
}

// Instructions is (*Decoder).Instructions on the default decoder.
func Instructions(buf []byte, base uint64) iter.Seq[Instruction] {
	return defaultDecoder.Instructions(buf, base)
}
