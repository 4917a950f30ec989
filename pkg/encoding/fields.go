// Package encoding compiles the static 8086 opcode table (EncodingCatalog)
// and the O(1) dispatch structure built from it (InstructionTable). Nothing
// in this package depends on a decoded byte stream — it is pure, immutable
// metadata consumed by pkg/decoder.
package encoding

import (
	"math/bits"

	"github.com/intuitionamiga/sim8086/pkg/inst"
)

// FieldType names one slot in an InstructionEncoding's bit-field template.
// Field lists are written high-to-low bit within each byte, byte 0 then
// byte 1 and on; see InstructionEncoding.
type FieldType int

const (
	End FieldType = iota
	Literal
	W
	D
	S
	Z
	V
	Mod
	Reg
	Rm
	Sr
	Disp
	DispAlwaysW
	Data
	DataWIfW
	RmAlwaysW
	JmpRelDisp
	Far
	ExtOpcodeLo
	ExtOpcodeHi
)

// Field is one templated bit-field: either a fixed Literal pattern or a
// named semantic slot the Decoder fills from the input stream.
type Field struct {
	Type     FieldType
	BitCount int
	Val      int
}

// lit declares a Literal field of the given bit width and value.
func lit(bitCount, val int) Field { return Field{Type: Literal, BitCount: bitCount, Val: val} }

// f declares a non-literal semantic slot of the given bit width.
func f(t FieldType, bitCount int) Field { return Field{Type: t, BitCount: bitCount} }

// implicit declares a zero-width field that simply sets a semantic flag to
// a fixed value without consuming any input bits (spec §4.3 step 3: "If
// bit_count == 0: set the named field to the encoding's literal val").
func implicit(t FieldType, val int) Field { return Field{Type: t, BitCount: 0, Val: val} }

// end terminates a field list.
var end = Field{Type: End}

// Encoding is one catalog entry: an opcode plus its ordered field template.
type Encoding struct {
	Op     inst.Op
	Fields []Field
}

// Table is the compiled O(1) dispatch structure built from a Catalog by
// BuildTable (spec §4.2).
type Table struct {
	Mask  uint16
	Slots []*Encoding
}

// literalMaskValue computes, for one encoding, the (mask, value) pair
// covering Literal bits within the first two bytes, in MSB-first
// big-endian convention over the concatenated uint16, plus the number of
// free (non-literal) bits within those same two bytes.
//
// Field lists are written high-to-low within a byte, and bits are folded
// into curByteMask/curByteVal at their natural MSB-first position as they
// are consumed, so the per-byte value already matches the convention the
// dispatch key uses (bit i of the key == bit i of the two input bytes read
// MSB-first) — the "reverse within each byte" step spec §9 calls out is
// only needed if an implementation instead accumulates bits in read order;
// building directly in natural byte order sidesteps that step entirely.
func literalMaskValue(enc *Encoding) (mask, val uint16, freeBits int) {
	byteIdx := 0
	bitPos := 7 // current bit offset within byteIdx, counting down from 7
	curByteMask := uint8(0)
	curByteVal := uint8(0)
	curByteFree := 0

	flushByte := func() {
		if byteIdx > 1 {
			return
		}
		shift := uint(8 * (1 - byteIdx))
		mask |= uint16(curByteMask) << shift
		val |= uint16(curByteVal) << shift
		freeBits += curByteFree
		curByteMask, curByteVal, curByteFree = 0, 0, 0
	}

	for _, fld := range enc.Fields {
		if fld.Type == End {
			break
		}
		if fld.BitCount == 0 {
			continue // implicit field, consumes no bits
		}
		if byteIdx > 1 {
			break // only the first two bytes participate in dispatch
		}
		remaining := fld.BitCount
		for remaining > 0 {
			if bitPos < 0 {
				flushByte()
				byteIdx++
				bitPos = 7
				if byteIdx > 1 {
					return mask, val, freeBits
				}
			}
			take := remaining
			if take > bitPos+1 {
				take = bitPos + 1
			}
			if fld.Type == Literal {
				bitsVal := (fld.Val >> (remaining - take)) & ((1 << take) - 1)
				curByteMask |= uint8(((1<<take)-1)<<(bitPos-take+1)) & 0xFF
				curByteVal |= uint8(bitsVal<<(bitPos-take+1)) & 0xFF
			} else {
				curByteFree += take
			}
			bitPos -= take
			remaining -= take
		}
	}
	flushByte()
	return mask, val, freeBits
}

// BuildTable implements spec §4.2: compute the literal mask across the
// whole catalog, allocate a 2^popcount(mask) slot table, and for every
// encoding, project its own literal bits down onto the shared mask and
// write the encoding pointer into every compressed key consistent with its
// wildcard bits. Two encodings claiming the same slot is a catalog bug and
// fails the build rather than silently picking one.
func BuildTable(catalog []Encoding) (*Table, error) {
	var mask uint16
	entryMasks := make([]uint16, len(catalog))
	entryVals := make([]uint16, len(catalog))
	for i := range catalog {
		m, v, _ := literalMaskValue(&catalog[i])
		entryMasks[i] = m
		entryVals[i] = v
		mask |= m
	}

	k := bits.OnesCount16(mask)
	slots := make([]*Encoding, 1<<uint(k))

	// maskBitPositions lists, low to high, which of the 16 key bits are
	// part of mask — used to project a 16-bit literal pattern down into
	// the compressed k-bit key space.
	var maskBitPositions []uint
	for bit := uint(0); bit < 16; bit++ {
		if mask&(1<<bit) != 0 {
			maskBitPositions = append(maskBitPositions, bit)
		}
	}

	for i := range catalog {
		entryMask := entryMasks[i]
		entryVal := entryVals[i]

		// Compress this entry's literal bits onto the shared mask.
		var idMask, idVal uint16
		var freePositions []uint
		for slot, bit := range maskBitPositions {
			if entryMask&(1<<bit) != 0 {
				idMask |= 1 << uint(slot)
				if entryVal&(1<<bit) != 0 {
					idVal |= 1 << uint(slot)
				}
			} else {
				freePositions = append(freePositions, uint(slot))
			}
		}

		free := len(freePositions)
		for assignment := 0; assignment < (1 << uint(free)); assignment++ {
			key := idVal
			for bitIdx, slot := range freePositions {
				if assignment&(1<<uint(bitIdx)) != 0 {
					key |= 1 << slot
				}
			}
			if slots[key] != nil && slots[key] != &catalog[i] {
				return nil, &ConflictError{Key: key, A: slots[key], B: &catalog[i]}
			}
			slots[key] = &catalog[i]
		}
		_ = idMask
	}

	return &Table{Mask: mask, Slots: slots}, nil
}

// ConflictError is a build-time programmer error: two encodings in the
// catalog claim the same dispatch slot.
type ConflictError struct {
	Key  uint16
	A, B *Encoding
}

func (e *ConflictError) Error() string {
	return "encoding catalog conflict at compressed key"
}

// Lookup resolves the encoding matching the first two input bytes (b0
// present, b1 may be a don't-care 0 for single-byte instructions — the
// mask naturally wildcards bits the catalog never declared literal in a
// second byte for those opcodes).
func (t *Table) Lookup(b0, b1 uint8) *Encoding {
	key16 := uint16(b0)<<8 | uint16(b1)
	var compressed uint16
	slot := uint(0)
	for bit := uint(0); bit < 16; bit++ {
		if t.Mask&(1<<bit) != 0 {
			if key16&(1<<bit) != 0 {
				compressed |= 1 << slot
			}
			slot++
		}
	}
	if int(compressed) >= len(t.Slots) {
		return nil
	}
	return t.Slots[compressed]
}
