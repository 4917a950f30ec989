// Package validate checks the structural invariants spec §4.5 assigns to
// decoded instructions and their runtime metadata, before either reaches
// Clocks or the Simulator. A failing check here means a decoder or catalog
// bug, not a malformed input file — inputs that don't decode are already
// filtered out as Invalid before validation runs.
//
// Grounded on original_source/8086/validation.cpp's per-opcode invariant
// checks and IntuitionAmiga-IntuitionEngine/cpu_x86_ops.go's ad hoc
// operand-count assertions scattered through its execution switch,
// centralized here into one data-driven pass run before execution rather
// than inline per opcode.
package validate

import (
	"fmt"

	"github.com/intuitionamiga/sim8086/pkg/inst"
)

// Instruction checks i's structural invariants, returning (true, "") when
// they all hold, or (false, reason) for the first violation found.
func Instruction(i inst.Instruction) (bool, string) {
	for idx := int(i.OperandCnt); idx < len(i.Operands); idx++ {
		if i.Operands[idx].Kind != inst.OperandNone {
			return false, fmt.Sprintf("operand %d set past operand_cnt %d", idx, i.OperandCnt)
		}
	}
	if i.HasSegOverride != (i.Flags&inst.FlagSegOverride != 0) {
		return false, "HasSegOverride disagrees with FlagSegOverride"
	}
	if i.HasSegOverride {
		switch i.SegmentOverride {
		case inst.ES, inst.SS, inst.DS:
		default:
			return false, "segment override register is not one of ES/SS/DS"
		}
	}

	switch i.Op {
	case inst.Mov:
		if i.OperandCnt != 2 {
			return false, "mov: expected 2 operands"
		}
		switch i.Operands[0].Kind {
		case inst.OperandReg, inst.OperandMem:
		default:
			return false, "mov: destination must be reg or mem"
		}
		if i.Operands[1].Kind == inst.OperandCsIp {
			return false, "mov: source cannot be a cs:ip pair"
		}
		if i.Flags&(inst.FlagLock|inst.FlagRep|inst.FlagImmIsRelDisp|inst.FlagFar) != 0 {
			return false, "mov: forbidden flag set"
		}

	case inst.Push:
		if i.OperandCnt != 1 {
			return false, "push: expected 1 operand"
		}
		if i.Flags&inst.FlagW == 0 {
			return false, "push: W must be set"
		}
		if i.Flags&(inst.FlagS|inst.FlagZ|inst.FlagRep|inst.FlagImmIsRelDisp|inst.FlagFar) != 0 {
			return false, "push: forbidden flag set"
		}

	case inst.Rol, inst.Ror, inst.Rcl, inst.Rcr, inst.Shl, inst.Shr, inst.Sar:
		if i.OperandCnt != 2 {
			return false, "shift group: expected 2 operands"
		}
		snd := i.Operands[1]
		isClReg := snd.Kind == inst.OperandReg && snd.Reg.Reg == inst.C && snd.Reg.Size == 1
		isImm1 := snd.Kind == inst.OperandImm && snd.Imm == 1
		if !isClReg && !isImm1 {
			return false, "shift group: second operand must be CL or Imm(1)"
		}

	case inst.Movs, inst.Cmps, inst.Scas, inst.Lods, inst.Stos:
		if i.OperandCnt != 0 {
			return false, "string op: expected 0 operands"
		}

	case inst.Je, inst.Jne, inst.Jl, inst.Jle, inst.Jb, inst.Jbe, inst.Jp, inst.Jo, inst.Js,
		inst.Jnl, inst.Jg, inst.Jnb, inst.Ja, inst.Jnp, inst.Jno, inst.Jns,
		inst.Loop, inst.Loopz, inst.Loopnz, inst.Jcxz, inst.Int:
		if i.OperandCnt != 1 {
			return false, "conditional jump/loop/int: expected 1 operand"
		}
		if i.Operands[0].Kind != inst.OperandImm {
			return false, "conditional jump/loop/int: operand must be Imm"
		}
		if i.Flags&(inst.FlagLock|inst.FlagRep|inst.FlagSegOverride) != 0 {
			return false, "conditional jump/loop/int: forbidden flag set"
		}
	}

	return true, ""
}

// Metadata checks the dynamic InstructionMetadata invariants spec §4.5
// layers on top of the static Instruction checks.
func Metadata(m inst.InstructionMetadata) (bool, string) {
	limit := uint32(1 << 8)
	if m.Instr.Wide() {
		limit = 1 << 16
	}
	if uint32(m.Op0Val) >= limit {
		return false, "op0_val exceeds the operand's declared width"
	}
	if uint32(m.Op1Val) >= limit {
		return false, "op1_val exceeds the operand's declared width"
	}

	switch m.Instr.Op {
	case inst.Movs, inst.Cmps, inst.Scas, inst.Lods, inst.Stos:
		if m.Instr.Flags&inst.FlagRep != 0 && m.RepCount == 0 {
			return false, "rep-prefixed string op: rep_count must be > 0"
		}
		if m.CondActionHappened {
			return false, "string op: cond_action_happened must be false"
		}
	}

	switch m.Instr.Op {
	case inst.Je, inst.Jne, inst.Jl, inst.Jle, inst.Jb, inst.Jbe, inst.Jp, inst.Jo, inst.Js,
		inst.Jnl, inst.Jg, inst.Jnb, inst.Ja, inst.Jnp, inst.Jno, inst.Jns,
		inst.Loop, inst.Loopz, inst.Loopnz, inst.Jcxz, inst.Into:
		// cond_action_happened is meaningful here; no further constraint.
	default:
		if m.CondActionHappened {
			return false, "cond_action_happened set on a non-branching op"
		}
	}

	if m.Instr.Op != inst.Wait && m.WaitN != 0 {
		return false, "wait_n must be 0 except for WAIT"
	}
	if m.WideOddTransferCnt > m.WideTransferCnt {
		return false, "wide_odd_transfer_cnt exceeds wide_transfer_cnt"
	}

	return true, ""
}
