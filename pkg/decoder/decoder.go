// Package decoder implements the single decode step (spec §4.3): given a
// borrowed byte view, an offset, and carried prefix state, produce one
// fully-assembled inst.Instruction, looked up through an encoding.Table the
// package builds once from encoding.Catalog.
//
// Grounded on IntuitionAmiga-IntuitionEngine/cpu_x86.go's fetchModRM and
// prefix-tracking fields (lockPrefix, repPrefix, segmentOverride), reworked
// from a mutable-CPU method into the spec's pure decode_next(source,
// offset, table, ctx) contract: no CPU, just a byte cursor over a borrowed
// view plus the small carried-prefix struct DecoderContext.
package decoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/intuitionamiga/sim8086/pkg/encoding"
	"github.com/intuitionamiga/sim8086/pkg/inst"
)

// table lazily builds and caches the dispatch table from encoding.Catalog.
// A build failure here is a programmer error in the catalog, not a runtime
// one, but it is still surfaced as an error rather than a panic so a
// malformed catalog fails the first decode cleanly instead of crashing init.
var (
	tableOnce sync.Once
	tableVal  *encoding.Table
	tableErr  error
)

func table() (*encoding.Table, error) {
	tableOnce.Do(func() {
		tableVal, tableErr = encoding.BuildTable(encoding.Catalog)
	})
	return tableVal, tableErr
}

// ErrUnknownEncoding is returned when the first two bytes at offset match no
// catalog entry — a bad instruction stream, not a programmer error.
var ErrUnknownEncoding = errors.New("decoder: no encoding matches input bytes")

// ErrTruncated is returned when a field's bytes run past the end of the
// source view — a short read, e.g. an instruction cut off at end of file.
var ErrTruncated = errors.New("decoder: instruction truncated at end of input")

// DecodeError carries the stream offset alongside the sentinel so callers
// can report "truncated instruction at offset 413" instead of a bare error.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoder: at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ByteSource is a borrowed, read-only view over an input buffer. It never
// copies; Decode reads through it by relative index from a given offset.
type ByteSource struct {
	buf  []byte
	base int
	size int
}

// NewByteSource wraps buf for decoding starting at relative offset 0.
func NewByteSource(buf []byte) ByteSource {
	return ByteSource{buf: buf, base: 0, size: len(buf)}
}

// Len reports the number of bytes remaining in the view from its base.
func (s ByteSource) Len() int { return s.size - s.base }

func (s ByteSource) byteAt(relIdx int) (uint8, error) {
	idx := s.base + relIdx
	if idx < 0 || idx >= s.size {
		return 0, ErrTruncated
	}
	return s.buf[idx], nil
}

// DecoderContext carries prefix state across the byte(s) it was read from
// into the instruction that follows (spec §4.3 step 9). A fresh
// DecoderContext is its own zero value.
type DecoderContext struct {
	Lock           bool
	RepActive      bool
	RepZ           bool
	HasSegOverride bool
	SegOverride    inst.Reg
}

// UpdateContext folds a just-decoded raw instruction into ctx if it is one
// of the three prefix pseudo-instructions, returning true when absorbed.
// Non-prefix instructions leave ctx untouched; the caller folds ctx into
// them and then resets ctx to its zero value.
func UpdateContext(ctx *DecoderContext, raw inst.Instruction) bool {
	switch raw.Op {
	case inst.Lock:
		ctx.Lock = true
		return true
	case inst.Rep:
		ctx.RepActive = true
		ctx.RepZ = raw.Flags&inst.FlagZ != 0
		return true
	case inst.Segment:
		ctx.HasSegOverride = true
		ctx.SegOverride = raw.Operands[0].Reg.Reg
		return true
	default:
		return false
	}
}

// bitCursor walks a ByteSource bit by bit, MSB-first within each byte,
// matching the convention encoding.BuildTable's literal-mask walk uses.
type bitCursor struct {
	src     ByteSource
	nextIdx int
	cur     uint8
	bitPos  int // 7..0 while a byte is loaded, -1 when exhausted
}

func newCursor(src ByteSource) bitCursor {
	return bitCursor{src: src, bitPos: -1}
}

func (c *bitCursor) takeBits(n int) (uint32, error) {
	var result uint32
	remaining := n
	for remaining > 0 {
		if c.bitPos < 0 {
			b, err := c.src.byteAt(c.nextIdx)
			if err != nil {
				return 0, err
			}
			c.cur = b
			c.nextIdx++
			c.bitPos = 7
		}
		take := remaining
		if take > c.bitPos+1 {
			take = c.bitPos + 1
		}
		shift := c.bitPos - take + 1
		chunk := (c.cur >> uint(shift)) & uint8((1<<uint(take))-1)
		result = (result << uint(take)) | uint32(chunk)
		c.bitPos -= take
		remaining -= take
	}
	return result, nil
}

// takeByte reads one whole byte; callers use it for the byte-aligned
// little-endian fields (Disp/Data/JmpRelDisp) which always start on a byte
// boundary in this catalog.
func (c *bitCursor) takeByte() (uint8, error) {
	v, err := c.takeBits(8)
	return uint8(v), err
}

func (c *bitCursor) takeWordLE() (uint16, error) {
	lo, err := c.takeByte()
	if err != nil {
		return 0, err
	}
	hi, err := c.takeByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// rawDecode resolves and walks exactly one encoding at src[offset:], with
// no prefix-folding or context applied, returning the instruction with its
// operands assembled and its encoded size in bytes.
func rawDecode(src ByteSource, offset int) (inst.Instruction, int, error) {
	view := ByteSource{buf: src.buf, base: src.base + offset, size: src.size}

	b0, err := view.byteAt(0)
	if err != nil {
		return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
	}
	b1, _ := view.byteAt(1) // 0 if unavailable; Lookup tolerates this for single-byte ops

	tbl, err := table()
	if err != nil {
		return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
	}
	found := tbl.Lookup(b0, b1)
	if found == nil {
		return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: ErrUnknownEncoding}
	}

	// XCHG's accumulator short form bakes its register index as a Literal
	// (rather than a Reg field) so the dispatch table can carve reg=000 out
	// for NOP; recover that index directly from the opcode byte's low 3
	// bits rather than by threading it through as a semantic field.
	xchgShortForm := found.Op == inst.Xchg && len(found.Fields) >= 2 &&
		found.Fields[0].Type == encoding.Literal && found.Fields[0].BitCount == 5 &&
		found.Fields[1].Type == encoding.Literal && found.Fields[1].BitCount == 3

	cur := newCursor(view)

	var (
		wBit, dBit, sBit, zBit, vBit int = -1, -1, -1, -1, -1
		modVal, regVal, rmVal, srVal int = -1, -1, -1, -1
		extLo, extHi                 int
		dataVal                      uint16
		dataIsSet                    bool
		dispDirect                   uint16
		dispDirectSet                bool
		jmpRel                       int32
		jmpRelSet                    bool
		farSet                       bool
		rmAlwaysW                    bool
		eaDisp                       int16
	)

	for _, fld := range found.Fields {
		if fld.Type == encoding.End {
			break
		}
		var val uint32
		if fld.BitCount == 0 {
			val = uint32(fld.Val)
		} else if fld.Type != encoding.Data && fld.Type != encoding.DataWIfW &&
			fld.Type != encoding.Disp && fld.Type != encoding.DispAlwaysW &&
			fld.Type != encoding.JmpRelDisp {
			v, err := cur.takeBits(fld.BitCount)
			if err != nil {
				return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
			}
			val = v
		}

		switch fld.Type {
		case encoding.Literal:
			// already matched by table lookup; bits consumed above.
		case encoding.W:
			wBit = int(val)
		case encoding.D:
			dBit = int(val)
		case encoding.S:
			sBit = int(val)
		case encoding.Z:
			zBit = int(val)
		case encoding.V:
			vBit = int(val)
		case encoding.Mod:
			modVal = int(val)
		case encoding.Reg:
			regVal = int(val)
		case encoding.Rm:
			rmVal = int(val)
			// A displacement, when present, sits immediately after the
			// ModR/M byte in the instruction stream — strictly before any
			// Data/DataWIfW field that might follow later in this same
			// field list (e.g. the ALU/MOV imm-to-rm forms). It must be
			// consumed here, at the point mod/rm become known, rather than
			// after the whole field list is walked.
			if modVal >= 0 {
				present, wideDisp := needsDisp(modVal, rmVal)
				if present {
					if wideDisp {
						w, err := cur.takeWordLE()
						if err != nil {
							return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
						}
						eaDisp = int16(w)
					} else {
						b, err := cur.takeByte()
						if err != nil {
							return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
						}
						eaDisp = int16(int8(b))
					}
				}
			}
		case encoding.Sr:
			srVal = int(val)
		case encoding.ExtOpcodeLo:
			extLo = int(val)
		case encoding.ExtOpcodeHi:
			extHi = int(val)
		case encoding.RmAlwaysW:
			rmAlwaysW = true
		case encoding.Far:
			farSet = val != 0
		case encoding.Data:
			switch fld.BitCount {
			case 0:
				// implicit() fields (e.g. INT3's operand-3 literal) carry
				// their value in fld.Val and consume no stream bytes.
				dataVal = uint16(fld.Val)
			case 16:
				w, err := cur.takeWordLE()
				if err != nil {
					return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
				}
				dataVal = w
			default:
				b, err := cur.takeByte()
				if err != nil {
					return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
				}
				dataVal = uint16(b)
			}
			dataIsSet = true
		case encoding.DataWIfW:
			// With W=1 the immediate is 16 bits wide: when S=1 (the ALU
			// imm-to-rm group's 83 form) it is the one byte already read,
			// sign-extended; otherwise a genuine second byte follows.
			if wBit == 1 && sBit == 1 {
				dataVal = uint16(int16(int8(uint8(dataVal))))
			} else if wBit == 1 {
				hi, err := cur.takeByte()
				if err != nil {
					return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
				}
				dataVal |= uint16(hi) << 8
			}
		case encoding.Disp, encoding.DispAlwaysW:
			w, err := cur.takeWordLE()
			if err != nil {
				return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
			}
			dispDirect = w
			dispDirectSet = true
		case encoding.JmpRelDisp:
			if fld.BitCount == 16 {
				w, err := cur.takeWordLE()
				if err != nil {
					return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
				}
				jmpRel = int32(int16(w))
			} else {
				b, err := cur.takeByte()
				if err != nil {
					return inst.Instruction{}, 0, &DecodeError{Offset: offset, Err: err}
				}
				jmpRel = int32(int8(b))
			}
			jmpRelSet = true
		}
	}

	if xchgShortForm {
		regVal = int(b0) & 0b111
	}

	wide := wBit == 1 || rmAlwaysW
	hasRm := modVal >= 0 && rmVal >= 0

	instr := inst.Instruction{Op: found.Op}
	if wide {
		instr.Flags |= inst.FlagW
	}
	if sBit == 1 {
		instr.Flags |= inst.FlagS
	}
	if zBit == 1 {
		instr.Flags |= inst.FlagZ
	}
	if farSet {
		instr.Flags |= inst.FlagFar
	}

	direction := dBit
	if direction < 0 {
		direction = 1
	}

	addOperand := func(op inst.Operand) {
		instr.Operands[instr.OperandCnt] = op
		instr.OperandCnt++
	}

	accOperand := inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.A, Size: wideSize(wide)}}
	dxOperand := inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.D, Size: 2}}

	switch {
	case found.Op == inst.Lock || found.Op == inst.Rep:
		// no operands; Z already folded into Flags above.
	case found.Op == inst.Segment:
		addOperand(segregOperand(srVal))

	// IN/OUT never carry a Reg/Rm pair: the accumulator side is always
	// implicit, and the port side is either an immediate byte (fixed form)
	// or implicit DX (variable form).
	case found.Op == inst.In && dataIsSet:
		addOperand(accOperand)
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: dataVal})
	case found.Op == inst.In:
		addOperand(accOperand)
		addOperand(dxOperand)
	case found.Op == inst.Out && dataIsSet:
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: dataVal})
		addOperand(accOperand)
	case found.Op == inst.Out:
		addOperand(dxOperand)
		addOperand(accOperand)

	// The ALU family's imm-to-accumulator form has no Reg/Rm either: the
	// accumulator is implicit and the only decoded field is the immediate.
	case isAluOp(found.Op) && dataIsSet && !hasRm:
		addOperand(accOperand)
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: dataVal})

	case found.Op == inst.Esc:
		extOp := uint16(extLo)<<3 | uint16(extHi)
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: extOp})
		addOperand(rmOperand(modVal, rmVal, wide, eaDisp))

	case vBit >= 0 && hasRm:
		// shift/rotate group: rm operand plus either CL or a literal 1.
		rm := rmOperand(modVal, rmVal, wide, eaDisp)
		var count inst.Operand
		if vBit == 1 {
			count = inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.C, Size: 1}}
		} else {
			count = inst.Operand{Kind: inst.OperandImm, Imm: 1}
		}
		addOperand(rm)
		addOperand(count)

	case regVal >= 0 && hasRm:
		reg := regOperand(regVal, wide)
		rm := rmOperand(modVal, rmVal, wide, eaDisp)
		if direction == 1 {
			addOperand(reg)
			addOperand(rm)
		} else {
			addOperand(rm)
			addOperand(reg)
		}

	case srVal >= 0 && hasRm:
		sr := segregOperand(srVal)
		rm := rmOperand(modVal, rmVal, wide, eaDisp)
		if direction == 1 {
			addOperand(sr)
			addOperand(rm)
		} else {
			addOperand(rm)
			addOperand(sr)
		}

	case regVal >= 0 && dataIsSet:
		addOperand(regOperand(regVal, wide))
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: dataVal})

	case hasRm && dataIsSet:
		addOperand(rmOperand(modVal, rmVal, wide, eaDisp))
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: dataVal})

	case hasRm && farSet:
		addOperand(rmOperand(modVal, rmVal, wide, eaDisp))

	case hasRm:
		addOperand(rmOperand(modVal, rmVal, wide, eaDisp))

	case xchgShortForm:
		addOperand(accOperand)
		addOperand(regOperand(regVal, wide))

	case regVal >= 0:
		addOperand(regOperand(regVal, wide))

	case srVal >= 0:
		addOperand(segregOperand(srVal))

	case dispDirectSet && !dataIsSet && !farSet:
		acc := inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.A, Size: wideSize(wide)}}
		mem := inst.Operand{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Direct, Disp: int16(dispDirect)}}
		if direction == 1 {
			addOperand(acc)
			addOperand(mem)
		} else {
			addOperand(mem)
			addOperand(acc)
		}

	case dataIsSet && farSet:
		addOperand(inst.Operand{Kind: inst.OperandCsIp, Ip: dataVal, Cs: 0})

	case jmpRelSet:
		instr.Flags |= inst.FlagImmIsRelDisp
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: uint16(jmpRel)})

	case dataIsSet:
		addOperand(inst.Operand{Kind: inst.OperandImm, Imm: dataVal})
	}

	instr.SizeBytes = uint8(cur.nextIdx)
	return instr, cur.nextIdx, nil
}

// isAluOp reports whether op belongs to the eight-way ALU family sharing the
// 00xxx0dw / 00xxx1xw / 100000sw encoding shapes (spec's ALU group), or is
// TEST, whose A8/A9 imm-to-accumulator form has the same operand shape.
func isAluOp(op inst.Op) bool {
	switch op {
	case inst.Add, inst.Or, inst.Adc, inst.Sbb, inst.And, inst.Sub, inst.Xor, inst.Cmp, inst.Test:
		return true
	default:
		return false
	}
}

func wideSize(wide bool) uint8 {
	if wide {
		return 2
	}
	return 1
}

// Decode implements spec §4.3: it resolves and walks exactly one encoding at
// source[offset:], producing one Instruction per call — prefixes included,
// as their own standalone Lock/Rep/Segment instruction (spec §9: "do not
// try to eagerly merge prefixes inside one decode call"). The caller is
// expected to loop, advancing by the returned byte count each time; ctx
// carries prefix state from one call to the next:
//   - if the decoded instruction is itself a prefix, it is returned as-is
//     and UpdateContext folds it into ctx for the following call;
//   - otherwise, any prefix state already accumulated in ctx is folded into
//     this instruction's flags/segment override, and ctx is reset to zero.
func Decode(src ByteSource, offset int, ctx *DecoderContext) (inst.Instruction, int, error) {
	raw, n, err := rawDecode(src, offset)
	if err != nil {
		return inst.Instruction{}, 0, err
	}

	if UpdateContext(ctx, raw) {
		return raw, n, nil
	}

	if ctx.Lock {
		raw.Flags |= inst.FlagLock
	}
	if ctx.RepActive {
		raw.Flags |= inst.FlagRep
		if ctx.RepZ {
			raw.Flags |= inst.FlagZ
		}
	}
	if ctx.HasSegOverride {
		raw.HasSegOverride = true
		raw.SegmentOverride = ctx.SegOverride
		raw.Flags |= inst.FlagSegOverride
	}
	*ctx = DecoderContext{}
	return raw, n, nil
}

// Decoder is a thin, stateful convenience wrapper around Decode for callers
// (pkg/sim, cmd/sim8086) that want to keep decoding forward through a
// buffer without threading a DecoderContext by hand.
type Decoder struct {
	ctx     DecoderContext
	lastErr error
}

// NewDecoder returns a Decoder with an empty prefix context.
func NewDecoder() *Decoder { return &Decoder{} }

// Next decodes the instruction at offset, folding any carried prefix state.
func (d *Decoder) Next(src ByteSource, offset int) (inst.Instruction, int, error) {
	i, n, err := Decode(src, offset, &d.ctx)
	d.lastErr = err
	return i, n, err
}

// LastError returns the error from the most recent Next call, or nil.
func (d *Decoder) LastError() error { return d.lastErr }
