package disasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

var (
	// ErrUnknownOpcode is reported for byte patterns the table cannot decode.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrTruncated is reported when an instruction runs past the buffer.
	ErrTruncated = errors.New("truncated instruction")
)

// DecodeError locates a decode failure in the input buffer.
type DecodeError struct {
	Offset  int
	Address uint64
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("disasm: offset %d (0x%08x): %v", e.Offset, e.Address, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Policy selects what happens when the table has no entry for an opcode.
type Policy uint8

const (
	// PolicyByte emits "db 0xNN" covering one byte and continues.
	PolicyByte Policy = iota
	// PolicyStop ends the stream with a *DecodeError.
	PolicyStop
	// PolicyArch decodes the instruction with x86asm, falling back to
	// PolicyByte when that fails too.
	PolicyArch
)

func (p Policy) String() string {
	switch p {
	case PolicyStop:
		return "stop"
	case PolicyArch:
		return "arch"
	default:
		return "byte"
	}
}

// ParsePolicy parses the names printed by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "byte":
		return PolicyByte, nil
	case "stop":
		return PolicyStop, nil
	case "arch":
		return PolicyArch, nil
	}
	return PolicyByte, fmt.Errorf("unknown decode policy %q", s)
}

// Decoder turns byte buffers into instruction streams. A Decoder is
// immutable and safe for concurrent use.
type Decoder struct {
	table  *Table
	policy Policy
	log    *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithTable decodes with t instead of DefaultTable.
func WithTable(t *Table) Option {
	return func(d *Decoder) { d.table = t }
}

// WithPolicy sets the unknown-opcode policy.
func WithPolicy(p Policy) Option {
	return func(d *Decoder) { d.policy = p }
}

// WithLogger sets the logger used for policy decisions.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.log = l }
}

// NewDecoder returns a 32-bit decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{table: DefaultTable(), policy: PolicyByte}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

var defaultDecoder = NewDecoder()

// Decode decodes buf with the default decoder; see (*Decoder).Decode.
func Decode(buf []byte, base uint64) *Stream {
	return defaultDecoder.Decode(buf, base)
}

// Decode returns a lazy stream over the instructions in buf, the first of
// which is located at virtual address base.
func (d *Decoder) Decode(buf []byte, base uint64) *Stream {
	return &Stream{dec: d, buf: buf, base: base}
}

// step decodes the instruction at off, applying the unknown-opcode policy.
func (d *Decoder) step(buf []byte, off int, addr uint64) (Instruction, error) {
	in, err := d.decodeAt(buf, off, addr)
	if err == nil {
		return in, nil
	}
	if !errors.Is(err, ErrUnknownOpcode) {
		d.log.Debug("decode stopped", "offset", off, "address", addr, "error", err)
		return Instruction{}, &DecodeError{Offset: off, Address: addr, Err: err}
	}

	switch d.policy {
	case PolicyStop:
		d.log.Debug("unknown opcode, stopping", "offset", off, "byte", buf[off])
		return Instruction{}, &DecodeError{Offset: off, Address: addr, Err: err}
	case PolicyArch:
		if in, ok := archDecode(buf, off, addr); ok {
			return in, nil
		}
	}
	d.log.Debug("unknown opcode, emitting byte", "offset", off, "byte", buf[off])
	return Instruction{
		Address:  addr,
		Mnemonic: "db",
		Args:     [3]Operand{ImmOp(int64(buf[off]))},
		Len:      1,
		Raw:      []byte{buf[off]},
	}, nil
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.pos+n > len(c.buf) {
		return nil, ErrTruncated
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// imm reads an immediate of width w.
func (c *cursor) imm(w Width, signExt bool) (int64, error) {
	switch w {
	case Byte:
		v, err := c.u8()
		if signExt {
			return int64(int8(v)), err
		}
		return int64(v), err
	case Word:
		v, err := c.u16()
		if signExt {
			return int64(int16(v)), err
		}
		return int64(v), err
	case Dword:
		v, err := c.u32()
		if signExt {
			return int64(int32(v)), err
		}
		return int64(v), err
	}
	return 0, fmt.Errorf("immediate width %q: %w", w, ErrUnknownOpcode)
}

func (d *Decoder) decodeAt(buf []byte, off int, addr uint64) (Instruction, error) {
	c := &cursor{buf: buf, pos: off}
	op, err := c.u8()
	if err != nil {
		return Instruction{}, err
	}
	e := d.table.oneByte[op]
	if op == 0x0f {
		if op, err = c.u8(); err != nil {
			return Instruction{}, err
		}
		e = d.table.twoByte[op]
	}
	if e == nil {
		return Instruction{}, ErrUnknownOpcode
	}

	var m modRM
	hasModRM := false
	if e.group != nil {
		if m, err = readModRM(c); err != nil {
			return Instruction{}, err
		}
		hasModRM = true
		if e = e.group[m.reg]; e == nil {
			return Instruction{}, ErrUnknownOpcode
		}
	}
	if !hasModRM && e.usesModRM() {
		if m, err = readModRM(c); err != nil {
			return Instruction{}, err
		}
	}
	if e.address && m.mod == 3 {
		return Instruction{}, ErrUnknownOpcode
	}

	args, err := d.operands(c, e, op, m)
	if err != nil {
		return Instruction{}, err
	}

	n := c.pos - off
	for i := range args {
		if args[i].Relative {
			target := uint32(addr + uint64(n) + uint64(args[i].Rel))
			args[i] = BranchOp(uint64(target), args[i].Rel)
		}
	}
	return Instruction{
		Address:  addr,
		Mnemonic: e.mnem,
		Args:     args,
		Len:      n,
		Raw:      append([]byte(nil), buf[off:c.pos]...),
	}, nil
}

func (e *opcode) usesModRM() bool {
	switch e.form {
	case formRegRM, formRMReg, formRegRMImm, formRM, formRMImm, formRMOne, formRMCL:
		return true
	}
	return false
}

// operands builds the operand slots for e. Relative branch slots carry
// only the displacement; decodeAt resolves them once the length is known.
func (d *Decoder) operands(c *cursor, e *opcode, op uint8, m modRM) ([3]Operand, error) {
	var args [3]Operand
	regs := d.table.regs

	rm := func() (Operand, error) {
		o, err := regs.rmOperand(c, m, e.rmW())
		if err == nil && e.address {
			o.Mem.Width = WidthNone
		}
		return o, err
	}
	imm := func() (Operand, error) {
		v, err := c.imm(e.imm, e.signExt)
		return ImmOp(v), err
	}
	moffs := func() (Operand, error) {
		v, err := c.u32()
		return MemOp(Memory{Width: e.width, Disp: int64(v)}), err
	}

	var err error
	switch e.form {
	case formNone:
	case formOpReg:
		args[0] = RegOp(regs.Name(op&7, e.width))
	case formOpRegImm:
		args[0] = RegOp(regs.Name(op&7, e.width))
		args[1], err = imm()
	case formRegRM:
		args[0] = RegOp(regs.Name(m.reg, e.width))
		args[1], err = rm()
	case formRMReg:
		if args[0], err = rm(); err == nil {
			args[1] = RegOp(regs.Name(m.reg, e.width))
		}
	case formRegRMImm:
		args[0] = RegOp(regs.Name(m.reg, e.width))
		if args[1], err = rm(); err == nil {
			args[2], err = imm()
		}
	case formRM:
		args[0], err = rm()
	case formRMImm:
		if args[0], err = rm(); err == nil {
			args[1], err = imm()
		}
	case formRMOne:
		args[0], err = rm()
		args[1] = ImmOp(1)
	case formRMCL:
		args[0], err = rm()
		args[1] = RegOp(regs.Name(1, Byte))
	case formAccImm:
		args[0] = RegOp(regs.Name(0, e.width))
		args[1], err = imm()
	case formMoffs:
		args[0], err = moffs()
	case formAccMoffs:
		args[0] = RegOp(regs.Name(0, e.width))
		args[1], err = moffs()
	case formMoffsAcc:
		if args[0], err = moffs(); err == nil {
			args[1] = RegOp(regs.Name(0, e.width))
		}
	case formImm:
		args[0], err = imm()
	case formRel:
		var v int64
		v, err = c.imm(e.imm, true)
		args[0] = Operand{Kind: KindImmediate, Relative: true, Rel: v}
	default:
		err = ErrUnknownOpcode
	}
	return args, err
}

// archDecode converts an x86asm decode of the bytes at off into the
// package's instruction model.
func archDecode(buf []byte, off int, addr uint64) (Instruction, bool) {
	inst, err := x86asm.Decode(buf[off:], 32)
	if err != nil || inst.Len == 0 || inst.Op == 0 {
		return Instruction{}, false
	}

	in := Instruction{
		Address:  addr,
		Mnemonic: archPrefixes(inst) + strings.ToLower(inst.Op.String()),
		Len:      inst.Len,
		Raw:      append([]byte(nil), buf[off:off+inst.Len]...),
	}
	n := 0
	for _, a := range inst.Args {
		if a == nil || n == len(in.Args) {
			break
		}
		in.Args[n] = archOperand(a, inst, addr)
		n++
	}
	return in, true
}

// archPrefixes spells the explicit rep, repne and lock prefixes of inst,
// each followed by a space.
func archPrefixes(inst x86asm.Inst) string {
	var b strings.Builder
	for _, p := range inst.Prefix {
		if p == 0 {
			break
		}
		if p&(x86asm.PrefixImplicit|x86asm.PrefixIgnored) != 0 {
			continue
		}
		switch p &^ x86asm.PrefixInvalid {
		case x86asm.PrefixREP:
			b.WriteString("rep ")
		case x86asm.PrefixREPN:
			b.WriteString("repne ")
		case x86asm.PrefixLOCK:
			b.WriteString("lock ")
		}
	}
	return b.String()
}

func archOperand(a x86asm.Arg, inst x86asm.Inst, addr uint64) Operand {
	switch a := a.(type) {
	case x86asm.Reg:
		return RegOp(strings.ToLower(a.String()))
	case x86asm.Imm:
		return ImmOp(int64(a))
	case x86asm.Rel:
		target := uint32(addr + uint64(inst.Len) + uint64(int64(a)))
		return BranchOp(uint64(target), int64(a))
	case x86asm.Mem:
		m := Memory{Disp: a.Disp}
		switch inst.MemBytes {
		case 1:
			m.Width = Byte
		case 2:
			m.Width = Word
		case 4:
			m.Width = Dword
		case 8:
			m.Width = Qword
		}
		if a.Segment != 0 {
			m.Segment = strings.ToLower(a.Segment.String())
		}
		if a.Base != 0 {
			m.Base = strings.ToLower(a.Base.String())
		}
		if a.Index != 0 {
			m.Index = strings.ToLower(a.Index.String())
			m.Scale = int(a.Scale)
		}
		if m.Base == "" && m.Index == "" {
			m.Disp = int64(uint32(a.Disp))
		}
		return MemOp(m)
	}
	return Operand{}
}
