// Package clocks estimates 8086/8088 clock-cycle counts for a decoded
// instruction, per spec §4.6. Grounded on the data-driven design spec §9
// recommends in place of the teacher's switch-based cost calculator
// (IntuitionAmiga-IntuitionEngine/cpu_x86_ops.go mixes cycle accounting
// into the same switch that executes each opcode): a cost expression per
// (Op, operand shape) pair, looked up instead of branched through, so a
// missing `break` can't silently fall through into the wrong entry.
package clocks

import (
	"errors"
	"fmt"

	"github.com/intuitionamiga/sim8086/pkg/inst"
)

// ProcType distinguishes the 8086 (16-bit external bus) from the 8088
// (8-bit external bus), which differ only in how wide memory transfers are
// charged (spec §4.6 "Additive adjustments").
type ProcType int

const (
	Proc8086 ProcType = iota
	Proc8088
)

// ErrPrefixHasNoCost reports a usage error: querying cycles on a raw
// Lock/Rep/Segment prefix instruction instead of the instruction it
// decorates (spec §4.6 "Error semantics").
var ErrPrefixHasNoCost = errors.New("clocks: prefixes carry no standalone cost")

// ErrUnmodelled reports an opcode this table has no cost entry for.
var ErrUnmodelled = errors.New("clocks: no cost entry for this instruction shape")

// costExpr is the small variant spec §9 calls for: Const | EaPlus | RepLinear
// | CondPair. Exactly one of the four modes applies per instance, selected
// by which constructor built it.
type costExpr struct {
	mode costMode
	a, b uint32
}

type costMode int

const (
	modeConst costMode = iota
	modeEaPlus
	modeRepLinear
	modeCondPair
)

func constCost(k uint32) costExpr                { return costExpr{mode: modeConst, a: k} }
func eaPlus(k uint32) costExpr                    { return costExpr{mode: modeEaPlus, a: k} }
func repLinear(base, perIter uint32) costExpr     { return costExpr{mode: modeRepLinear, a: base, b: perIter} }
func condPair(taken, notTaken uint32) costExpr    { return costExpr{mode: modeCondPair, a: taken, b: notTaken} }

// shape classifies an instruction's operand kinds into the small set of
// buckets the cost table keys on — coarser than the full decoded operand
// structure, but exactly what spec §4.6's per-opcode table distinguishes on.
type shape int

const (
	shapeNone shape = iota
	shapeRegReg
	shapeRegImm
	shapeRegMem
	shapeMemReg
	shapeMemImm
	shapeAccMem
	shapeRegOnly
	shapeMemOnly
	shapeSegregOrFlags
)

func operandShape(i inst.Instruction) shape {
	if i.OperandCnt == 0 {
		return shapeNone
	}
	if i.OperandCnt == 1 {
		switch i.Operands[0].Kind {
		case inst.OperandMem:
			return shapeMemOnly
		case inst.OperandReg:
			switch i.Operands[0].Reg.Reg {
			case inst.Flags, inst.ES, inst.CS, inst.SS, inst.DS:
				return shapeSegregOrFlags
			default:
				return shapeRegOnly
			}
		default:
			return shapeRegOnly
		}
	}
	a, b := i.Operands[0].Kind, i.Operands[1].Kind
	if i.Op == inst.Mov {
		isAcc := func(o inst.Operand) bool { return o.Kind == inst.OperandReg && o.Reg.Reg == inst.A }
		if (isAcc(i.Operands[0]) && b == inst.OperandMem) || (a == inst.OperandMem && isAcc(i.Operands[1])) {
			return shapeAccMem
		}
	}
	if i.Op == inst.Xchg && a == inst.OperandReg && b == inst.OperandReg {
		// XCHG AX,reg is costed under the one-operand key (the short form).
		isAx := func(o inst.Operand) bool { return o.Reg.Reg == inst.A && o.Reg.Size == 2 }
		if isAx(i.Operands[0]) || isAx(i.Operands[1]) {
			return shapeRegOnly
		}
	}
	switch {
	case a == inst.OperandReg && b == inst.OperandReg:
		return shapeRegReg
	case a == inst.OperandReg && b == inst.OperandImm:
		return shapeRegImm
	case a == inst.OperandReg && b == inst.OperandMem:
		return shapeRegMem
	case a == inst.OperandMem && b == inst.OperandReg:
		return shapeMemReg
	case a == inst.OperandMem && b == inst.OperandImm:
		return shapeMemImm
	default:
		return shapeRegReg
	}
}

type key struct {
	op inst.Op
	sh shape
}

// aluGroup lists the eight-way ALU family that all share one cost pattern
// (spec §4.6: "ADD/ADC/SUB/SBB/AND/OR/XOR reg,reg = 3; ...").
var aluGroup = []inst.Op{inst.Add, inst.Adc, inst.Sub, inst.Sbb, inst.And, inst.Or, inst.Xor, inst.Cmp}

var costTable = buildCostTable()

func buildCostTable() map[key]costExpr {
	t := make(map[key]costExpr)

	t[key{inst.Mov, shapeRegReg}] = constCost(2)
	t[key{inst.Mov, shapeRegImm}] = constCost(4)
	t[key{inst.Mov, shapeAccMem}] = constCost(10)
	t[key{inst.Mov, shapeRegMem}] = eaPlus(8)
	t[key{inst.Mov, shapeMemReg}] = eaPlus(9)
	t[key{inst.Mov, shapeMemImm}] = eaPlus(10)

	t[key{inst.Push, shapeSegregOrFlags}] = constCost(10)
	t[key{inst.Push, shapeRegOnly}] = constCost(11)
	t[key{inst.Push, shapeMemOnly}] = eaPlus(16)
	t[key{inst.Pop, shapeSegregOrFlags}] = constCost(8)
	t[key{inst.Pop, shapeRegOnly}] = constCost(8)
	t[key{inst.Pop, shapeMemOnly}] = eaPlus(17)

	t[key{inst.Xchg, shapeRegOnly}] = constCost(3) // ax,reg short form
	t[key{inst.Xchg, shapeRegReg}] = constCost(4)
	t[key{inst.Xchg, shapeRegMem}] = eaPlus(17)
	t[key{inst.Xchg, shapeMemReg}] = eaPlus(17)

	for _, op := range aluGroup {
		t[key{op, shapeRegReg}] = constCost(3)
		t[key{op, shapeRegImm}] = constCost(4)
		t[key{op, shapeRegMem}] = eaPlus(9)
		t[key{op, shapeMemReg}] = eaPlus(16)
		t[key{op, shapeMemImm}] = eaPlus(17)
	}
	// CMP is read-only on its memory operand, so its mem,reg form costs the
	// same as reg,mem (9+EA) rather than the 16+EA of the writing ALU ops.
	t[key{inst.Cmp, shapeMemReg}] = eaPlus(9)

	t[key{inst.Mul, shapeRegOnly}] = constCost(130) // byte reg, upper bound
	t[key{inst.Mul, shapeMemOnly}] = eaPlus(139)
	t[key{inst.Imul, shapeRegOnly}] = constCost(154)
	t[key{inst.Imul, shapeMemOnly}] = eaPlus(162)
	t[key{inst.Div, shapeRegOnly}] = constCost(184)
	t[key{inst.Div, shapeMemOnly}] = eaPlus(190)
	t[key{inst.Idiv, shapeRegOnly}] = constCost(190)
	t[key{inst.Idiv, shapeMemOnly}] = eaPlus(196)

	t[key{inst.Movs, shapeNone}] = repLinear(9, 17)
	t[key{inst.Cmps, shapeNone}] = repLinear(9, 22)
	t[key{inst.Scas, shapeNone}] = repLinear(9, 15)
	t[key{inst.Lods, shapeNone}] = repLinear(9, 13)
	t[key{inst.Stos, shapeNone}] = repLinear(9, 10)

	condJumps := []inst.Op{
		inst.Je, inst.Jne, inst.Jl, inst.Jle, inst.Jb, inst.Jbe, inst.Jp, inst.Jo, inst.Js,
		inst.Jnl, inst.Jg, inst.Jnb, inst.Ja, inst.Jnp, inst.Jno, inst.Jns,
	}
	for _, op := range condJumps {
		t[key{op, shapeRegOnly}] = condPair(16, 4)
	}
	t[key{inst.Loop, shapeRegOnly}] = condPair(17, 5)
	t[key{inst.Loopz, shapeRegOnly}] = condPair(18, 6)
	t[key{inst.Loopnz, shapeRegOnly}] = condPair(19, 5)
	t[key{inst.Jcxz, shapeRegOnly}] = condPair(18, 6)
	t[key{inst.Into, shapeNone}] = condPair(53, 4)

	t[key{inst.Int3, shapeRegOnly}] = constCost(52)
	t[key{inst.Int, shapeRegOnly}] = constCost(51)
	t[key{inst.Iret, shapeNone}] = constCost(24)
	t[key{inst.Hlt, shapeNone}] = constCost(2)
	t[key{inst.Nop, shapeNone}] = constCost(3)

	// JMP/CALL/RET — the source's "@TODO check, seems sus" entries (spec
	// §9); values below follow the Intel manual rather than the source.
	t[key{inst.Jmp, shapeRegOnly}] = constCost(15) // short/near direct
	t[key{inst.Jmp, shapeMemOnly}] = eaPlus(11)    // indirect via memory
	t[key{inst.Call, shapeRegOnly}] = constCost(19)
	t[key{inst.Call, shapeMemOnly}] = eaPlus(21)
	t[key{inst.Ret, shapeNone}] = constCost(8)
	t[key{inst.Ret, shapeRegOnly}] = constCost(12) // with imm16 pop
	t[key{inst.Retf, shapeNone}] = constCost(32)
	t[key{inst.Retf, shapeRegOnly}] = constCost(17)

	for _, op := range []inst.Op{
		inst.Inc, inst.Dec, inst.Not, inst.Neg, inst.Test, inst.Xlat, inst.Lea, inst.Lds, inst.Les,
		inst.Lahf, inst.Sahf, inst.Pushf, inst.Popf, inst.Aaa, inst.Daa, inst.Aas, inst.Das,
		inst.Aam, inst.Aad, inst.Cbw, inst.Cwd, inst.Clc, inst.Cmc, inst.Stc, inst.Cld, inst.Std,
		inst.Cli, inst.Sti, inst.In, inst.Out, inst.Esc,
	} {
		t[key{op, shapeRegOnly}] = constCost(3)
		t[key{op, shapeMemOnly}] = eaPlus(15)
		t[key{op, shapeNone}] = constCost(2)
		t[key{op, shapeRegReg}] = constCost(3)
		t[key{op, shapeRegImm}] = constCost(4)
	}

	// Shifts always carry two operands (target, count). The by-CL forms
	// (count operand is a register) get their 4*count term in Estimate.
	for _, op := range []inst.Op{inst.Rol, inst.Ror, inst.Rcl, inst.Rcr, inst.Shl, inst.Shr, inst.Sar} {
		t[key{op, shapeRegImm}] = constCost(2) // by-1 reg form
		t[key{op, shapeMemImm}] = eaPlus(15)   // by-1 mem form
		t[key{op, shapeRegReg}] = constCost(8) // by-CL reg form
		t[key{op, shapeMemReg}] = eaPlus(20)   // by-CL mem form
	}

	return t
}

// eaCost implements spec §4.6's effective-address cost table.
func eaCost(op inst.Operand) uint32 {
	if op.Kind != inst.OperandMem {
		return 0
	}
	m := op.Mem
	if m.Base == inst.Direct {
		return 6
	}
	base := uint32(0)
	switch m.Base {
	case inst.BpDi, inst.BxSi:
		base = 7
	case inst.BpSi, inst.BxDi:
		base = 8
	case inst.Si, inst.Di, inst.Bp, inst.Bx:
		base = 5
	}
	if m.Disp != 0 {
		base += 4
	}
	return base
}

func memOperand(i inst.Instruction) (inst.Operand, bool) {
	for idx := 0; idx < int(i.OperandCnt); idx++ {
		if i.Operands[idx].Kind == inst.OperandMem {
			return i.Operands[idx], true
		}
	}
	return inst.Operand{}, false
}

// Estimate implements spec §4.6 end to end: base cost lookup, EA cost,
// REP/conditional/shift-count variable terms, active-prefix additive cost,
// and the 8086/8088 wide-transfer penalty split.
func Estimate(m inst.InstructionMetadata, proc ProcType) (uint32, error) {
	i := m.Instr
	if i.Op == inst.Lock || i.Op == inst.Rep || i.Op == inst.Segment {
		return 0, fmt.Errorf("%w: %s", ErrPrefixHasNoCost, i.Op)
	}
	if i.Op == inst.Wait {
		return 3 + 5*m.WaitN, nil
	}

	sh := operandShape(i)
	entry, ok := costTable[key{i.Op, sh}]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%d", ErrUnmodelled, i.Op, sh)
	}

	var total uint32
	switch entry.mode {
	case modeConst:
		total = entry.a
	case modeEaPlus:
		memOp, _ := memOperand(i)
		total = entry.a + eaCost(memOp)
	case modeRepLinear:
		if i.Flags&inst.FlagRep != 0 {
			total = entry.a + entry.b*m.RepCount
		} else {
			total = entry.b
		}
	case modeCondPair:
		if m.CondActionHappened {
			total = entry.a
		} else {
			total = entry.b
		}
	}

	isShiftOp := func(op inst.Op) bool {
		switch op {
		case inst.Rol, inst.Ror, inst.Rcl, inst.Rcr, inst.Shl, inst.Shr, inst.Sar:
			return true
		default:
			return false
		}
	}
	if isShiftOp(i.Op) && i.OperandCnt == 2 && i.Operands[1].Kind == inst.OperandReg {
		// shift-by-CL: reg form 8 + 4*count; mem form 20 + EA + 4*count.
		count := m.Op1Val
		if memOp, ok := memOperand(i); ok {
			total = 20 + eaCost(memOp) + 4*uint32(count)
		} else {
			total = 8 + 4*uint32(count)
		}
	}

	var prefixCount uint32
	if i.Flags&inst.FlagRep != 0 {
		prefixCount++
	}
	if i.Flags&inst.FlagLock != 0 {
		prefixCount++
	}
	if i.Flags&inst.FlagSegOverride != 0 {
		prefixCount++
	}
	total += 2 * prefixCount

	if proc == Proc8088 {
		total += 4 * m.WideTransferCnt
	} else {
		total += 4 * m.WideOddTransferCnt
	}

	return total, nil
}
