// Package sim implements the register-file-plus-memory simulator of spec
// §4.7: MOV execution is mandatory, everything else may report unimplemented
// and halt cleanly.
//
// Grounded on IntuitionAmiga-IntuitionEngine/cpu_x86.go's CPU_X86 register
// layout (EAX/EBX/ECX/EDX/... plus segment registers and Flags as struct
// fields) and its bus-tick execution loop, reworked per spec §9's
// "process-wide mutable state" note: a value-typed Simulator owning its own
// register file and memory, with tracing as fields rather than globals, and
// no 386 extensions — 14 architectural 16-bit registers, flat.
package sim

import (
	"fmt"

	"github.com/intuitionamiga/sim8086/pkg/decoder"
	"github.com/intuitionamiga/sim8086/pkg/inst"
)

const memSize = 1 << 20 // 2^20 bytes, spec §3 "Memory"

// TraceFlags selects which mutation streams a Simulator reports.
type TraceFlags uint8

const (
	TraceDataMutation TraceFlags = 1 << iota
	TraceDisassembly
)

// Fault reports why a Run loop stopped.
type Fault int

const (
	FaultNone Fault = iota
	FaultUnimplementedOp
	FaultHalted
	FaultDecodeError
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultUnimplementedOp:
		return "unimplemented-op"
	case FaultHalted:
		return "halted"
	case FaultDecodeError:
		return "decode-error"
	default:
		return "unknown-fault"
	}
}

// RegisterMutation is one {reg, old, new} record, emitted before a write
// takes effect when TraceDataMutation is set (spec §4.7 "Register write").
type RegisterMutation struct {
	Access  inst.RegAccess
	OldWord uint16
	NewWord uint16
}

// DisasmTrace is emitted before executing an instruction when
// TraceDisassembly is set. Run leaves Text empty: callers format Instr
// themselves, keeping this package decoupled from pkg/output.
type DisasmTrace struct {
	Offset int
	Instr  inst.Instruction
	Text   string
}

// Simulator owns the 14-register file and the 1 MiB flat memory. Strict
// gates whether the ALU-group execution supplement beyond the mandatory MOV
// runs; with Strict=false those opcodes fault as unimplemented exactly like
// the baseline spec describes, matching a from-scratch reading of §4.7.
type Simulator struct {
	registers [inst.RegCount]uint16
	memory    [memSize]byte

	Trace    TraceFlags
	Strict   bool
	OnReg    func(RegisterMutation)
	OnDisasm func(DisasmTrace)
}

// New returns a Simulator with zeroed registers and memory.
func New() *Simulator {
	return &Simulator{}
}

// ReadReg implements spec §4.7 "Register read".
func (s *Simulator) ReadReg(a inst.RegAccess) uint16 {
	word := s.registers[a.Reg]
	if a.Size == 2 {
		return word
	}
	if a.Offset == 1 {
		return word >> 8
	}
	return word & 0xFF
}

// WriteReg implements spec §4.7 "Register write": byte writes preserve the
// other byte of the word, and a TraceDataMutation record is emitted before
// the change is applied.
func (s *Simulator) WriteReg(a inst.RegAccess, value uint16) {
	old := s.registers[a.Reg]
	var newWord uint16
	switch {
	case a.Size == 2:
		newWord = value
	case a.Offset == 1:
		newWord = (old & 0x00FF) | (value&0xFF)<<8
	default:
		newWord = (old & 0xFF00) | (value & 0xFF)
	}
	if s.Trace&TraceDataMutation != 0 && s.OnReg != nil {
		s.OnReg(RegisterMutation{Access: a, OldWord: old, NewWord: newWord})
	}
	s.registers[a.Reg] = newWord
}

// ReadByte reads one byte, wrapping the address modulo 2^20 (spec §3
// "Memory", testable property "Memory wrap").
func (s *Simulator) ReadByte(addr int) uint8 {
	return s.memory[addr&(memSize-1)]
}

// WriteByte writes one byte, wrapping the address modulo 2^20.
func (s *Simulator) WriteByte(addr int, v uint8) {
	s.memory[addr&(memSize-1)] = v
}

// LoadImage copies buf into memory starting at offset 0, matching spec §6's
// "loaded into memory starting at offset 0; contents past EOF are zero" —
// the backing array is already zeroed by New, so nothing past len(buf)
// needs touching.
func (s *Simulator) LoadImage(buf []byte) {
	copy(s.memory[:], buf)
}

// Dump returns the full register file keyed by register name ("ax", "sp",
// "flags", ...), matching spec §4.7 "After a run, dump the full register
// file in hex".
func (s *Simulator) Dump() map[string]uint16 {
	out := make(map[string]uint16, inst.RegCount)
	for r := inst.Reg(0); r < inst.RegCount; r++ {
		out[inst.RegAccess{Reg: r, Size: 2}.Name()] = s.registers[r]
	}
	return out
}

// ErrUnimplemented reports an opcode the simulator does not execute.
type ErrUnimplemented struct{ Op inst.Op }

func (e *ErrUnimplemented) Error() string {
	return fmt.Sprintf("sim: opcode %s not implemented", e.Op)
}

// FLAGS register bit positions for the 8086 subset this simulator models —
// CF, PF, AF, ZF, SF, OF. Matches the bit positions of
// IntuitionAmiga-IntuitionEngine/cpu_x86.go's x86Flag* constants; the
// TF/IF/DF bits and the 386-only IOPL/NT/RF/VM/AC/VIF/VIP/ID bits are never
// set here, since this simulator models neither interrupts nor protected mode.
const (
	flagCF uint16 = 1 << 0
	flagPF uint16 = 1 << 2
	flagAF uint16 = 1 << 4
	flagZF uint16 = 1 << 6
	flagSF uint16 = 1 << 7
	flagOF uint16 = 1 << 11
)

func (s *Simulator) getFlag(bit uint16) bool {
	return s.registers[inst.Flags]&bit != 0
}

func (s *Simulator) setFlag(bit uint16, v bool) {
	if v {
		s.registers[inst.Flags] |= bit
	} else {
		s.registers[inst.Flags] &^= bit
	}
}

// parity reports the parity of the low byte of v (true = even number of set
// bits), matching cpu_x86.go's parity().
func parity(v uint8) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// setFlagsArith8/16 update CF/ZF/SF/PF/AF/OF after an arithmetic op. result
// carries one bit wider than the operand width so the carry/borrow out can
// still be observed after a is added to or subtracted from b; mirrors
// cpu_x86.go's setFlagsArith8/setFlagsArith16 (there is no setFlagsArith32
// supplement here — the 8086 has no 32-bit registers).
func (s *Simulator) setFlagsArith8(result uint16, a, b uint8, sub bool) {
	r := uint8(result)
	s.setFlag(flagCF, result > 0xFF)
	s.setFlag(flagZF, r == 0)
	s.setFlag(flagSF, r&0x80 != 0)
	s.setFlag(flagPF, parity(r))
	if sub {
		s.setFlag(flagOF, (a^b)&(a^r)&0x80 != 0)
		s.setFlag(flagAF, a&0x0F < b&0x0F)
	} else {
		s.setFlag(flagOF, (^(a^b))&(a^r)&0x80 != 0)
		s.setFlag(flagAF, (a&0x0F)+(b&0x0F) > 0x0F)
	}
}

func (s *Simulator) setFlagsArith16(result uint32, a, b uint16, sub bool) {
	r := uint16(result)
	s.setFlag(flagCF, result > 0xFFFF)
	s.setFlag(flagZF, r == 0)
	s.setFlag(flagSF, r&0x8000 != 0)
	s.setFlag(flagPF, parity(uint8(r)))
	if sub {
		s.setFlag(flagOF, (a^b)&(a^r)&0x8000 != 0)
		s.setFlag(flagAF, a&0x0F < b&0x0F)
	} else {
		s.setFlag(flagOF, (^(a^b))&(a^r)&0x8000 != 0)
		s.setFlag(flagAF, (a&0x0F)+(b&0x0F) > 0x0F)
	}
}

// setFlagsLogic8/16 clear CF/OF and set ZF/SF/PF after a logical op; AF is
// left undefined by real hardware and untouched here, matching cpu_x86.go's
// setFlagsLogic8/setFlagsLogic16.
func (s *Simulator) setFlagsLogic8(result uint8) {
	s.setFlag(flagCF, false)
	s.setFlag(flagOF, false)
	s.setFlag(flagZF, result == 0)
	s.setFlag(flagSF, result&0x80 != 0)
	s.setFlag(flagPF, parity(result))
}

func (s *Simulator) setFlagsLogic16(result uint16) {
	s.setFlag(flagCF, false)
	s.setFlag(flagOF, false)
	s.setFlag(flagZF, result == 0)
	s.setFlag(flagSF, result&0x8000 != 0)
	s.setFlag(flagPF, parity(uint8(result)))
}

// setArithFlags and setLogicFlags pick the 8- or 16-bit variant above based
// on the operand width actually being written.
func (s *Simulator) setArithFlags(result uint32, a, b uint16, wide, sub bool) {
	if wide {
		s.setFlagsArith16(result, a, b, sub)
		return
	}
	s.setFlagsArith8(uint16(result), uint8(a), uint8(b), sub)
}

func (s *Simulator) setLogicFlags(result uint16, wide bool) {
	if wide {
		s.setFlagsLogic16(result)
		return
	}
	s.setFlagsLogic8(uint8(result))
}

// operandIsWide reports the bit width of one specific access: a register
// operand carries its own width (byte sub-registers stay 8-bit regardless of
// the instruction's W bit), while memory and immediate operands follow the
// instruction's W bit.
func operandIsWide(op inst.Operand, instrWide bool) bool {
	if op.Kind == inst.OperandReg {
		return op.Reg.Size == 2
	}
	return instrWide
}

func (s *Simulator) readOperand(op inst.Operand) uint16 {
	switch op.Kind {
	case inst.OperandReg:
		return s.ReadReg(op.Reg)
	case inst.OperandImm:
		return op.Imm
	case inst.OperandMem:
		addr := s.effectiveAddress(op.Mem)
		lo := uint16(s.ReadByte(addr))
		hi := uint16(s.ReadByte(addr + 1))
		return lo | hi<<8
	default:
		return 0
	}
}

func (s *Simulator) writeOperand(op inst.Operand, value uint16) {
	switch op.Kind {
	case inst.OperandReg:
		s.WriteReg(op.Reg, value)
	case inst.OperandMem:
		addr := s.effectiveAddress(op.Mem)
		s.WriteByte(addr, uint8(value))
		s.WriteByte(addr+1, uint8(value>>8))
	}
}

// effectiveAddress resolves an EaMem against the current register file. No
// segmentation is modeled (spec §3 "Memory" — flat, wraps modulo 2^20); a
// base expression's registers are read as plain offsets into that flat
// space.
func (s *Simulator) effectiveAddress(m inst.EaMem) int {
	base := 0
	switch m.Base {
	case inst.BxSi:
		base = int(s.registers[inst.B]) + int(s.registers[inst.SI])
	case inst.BxDi:
		base = int(s.registers[inst.B]) + int(s.registers[inst.DI])
	case inst.BpSi:
		base = int(s.registers[inst.BP]) + int(s.registers[inst.SI])
	case inst.BpDi:
		base = int(s.registers[inst.BP]) + int(s.registers[inst.DI])
	case inst.Si:
		base = int(s.registers[inst.SI])
	case inst.Di:
		base = int(s.registers[inst.DI])
	case inst.Bp:
		base = int(s.registers[inst.BP])
	case inst.Bx:
		base = int(s.registers[inst.B])
	case inst.Direct:
		base = 0
	}
	return base + int(m.Disp)
}

// Execute runs i against the register file and memory. MOV is mandatory
// per spec §4.7; with Strict, ADD/SUB/CMP/AND/OR/XOR plus INC/DEC also
// execute, against the flags register, as a supplement beyond the mandatory
// minimum (gated so the baseline contract — "unimplemented opcodes halt" —
// still holds by default).
func (s *Simulator) Execute(i inst.Instruction) error {
	switch i.Op {
	case inst.Mov:
		v := s.readOperand(i.Operands[1])
		s.writeOperand(i.Operands[0], v)
		return nil
	}

	if s.Strict {
		switch i.Op {
		case inst.Inc, inst.Dec:
			return s.executeIncDec(i)
		}
		if v, ok := s.executeAlu(i); ok {
			_ = v
			return nil
		}
	}

	return &ErrUnimplemented{Op: i.Op}
}

func (s *Simulator) executeAlu(i inst.Instruction) (uint16, bool) {
	a := s.readOperand(i.Operands[0])
	b := s.readOperand(i.Operands[1])
	wide := operandIsWide(i.Operands[0], i.Wide())

	var result uint16
	switch i.Op {
	case inst.Add:
		result = a + b
		s.setArithFlags(uint32(a)+uint32(b), a, b, wide, false)
	case inst.Sub, inst.Cmp:
		result = a - b
		s.setArithFlags(uint32(a)-uint32(b), a, b, wide, true)
	case inst.And:
		result = a & b
		s.setLogicFlags(result, wide)
	case inst.Or:
		result = a | b
		s.setLogicFlags(result, wide)
	case inst.Xor:
		result = a ^ b
		s.setLogicFlags(result, wide)
	default:
		return 0, false
	}

	if i.Op != inst.Cmp {
		s.writeOperand(i.Operands[0], result)
	}
	return result, true
}

// executeIncDec implements INC/DEC: arithmetic against the flags register
// exactly like the rest of the ALU supplement, except CF is saved and
// restored around the update — real 8086 hardware leaves CF unaffected by
// INC/DEC so loop counters built on it survive, matching cpu_x86_ops.go's
// opINC_reg/opDEC_reg.
func (s *Simulator) executeIncDec(i inst.Instruction) error {
	cf := s.getFlag(flagCF)
	v := s.readOperand(i.Operands[0])
	wide := operandIsWide(i.Operands[0], i.Wide())

	var result uint16
	if i.Op == inst.Dec {
		result = v - 1
		s.setArithFlags(uint32(v)-1, v, 1, wide, true)
	} else {
		result = v + 1
		s.setArithFlags(uint32(v)+1, v, 1, wide, false)
	}
	s.writeOperand(i.Operands[0], result)
	s.setFlag(flagCF, cf)
	return nil
}

// Run decodes and executes forward from offset 0 using dec, until a fault,
// Hlt, or limit is reached, returning the number of instructions executed
// and why it stopped. dec is supplied by the caller (rather than built
// internally) so a single DecoderContext/Simulator pair stays reentrant
// across repeated runs over the same image, matching spec §5's requirement
// that Decoder and Simulator values never share hidden global state.
func (s *Simulator) Run(dec *decoder.Decoder, limit int) (int, Fault) {
	offset := 0
	steps := 0
	for steps < limit {
		src := decoder.NewByteSource(s.memory[:])
		i, n, err := dec.Next(src, offset)
		if err != nil {
			return steps, FaultDecodeError
		}
		if s.Trace&TraceDisassembly != 0 && s.OnDisasm != nil {
			s.OnDisasm(DisasmTrace{Offset: offset, Instr: i})
		}
		if i.Op == inst.Hlt {
			return steps, FaultHalted
		}
		if i.Op == inst.Lock || i.Op == inst.Rep || i.Op == inst.Segment {
			offset += n
			continue
		}
		if err := s.Execute(i); err != nil {
			return steps, FaultUnimplementedOp
		}
		steps++
		offset += n
	}
	return steps, FaultNone
}
