// Package output renders a decoded inst.Instruction as NASM-compatible
// assembly text (spec §4.8), the sole place in this module concerned with
// textual formatting — Decoder, Validator, Clocks, and Simulator never
// produce strings themselves.
//
// The teacher's x86 core has no disassembly formatter to ground this on (its
// execution switch in cpu_x86_ops.go never renders text), so the shape here
// follows spec §4.8 directly; the Sprintf-building style and one-purpose-
// per-function layout follow the teacher's general composition habits
// throughout cpu_x86_ops.go.
package output

import (
	"fmt"
	"strings"

	"github.com/intuitionamiga/sim8086/pkg/inst"
)

var segPrefix = map[inst.Reg]string{
	inst.ES: "es:", inst.CS: "cs:", inst.SS: "ss:", inst.DS: "ds:",
}

// stringOpSuffix reports the b/w suffix spec §4.8 attaches to the five
// string mnemonics so e.g. MOVS prints as "movsb" or "movsw".
func stringOpSuffix(i inst.Instruction) string {
	switch i.Op {
	case inst.Movs, inst.Cmps, inst.Scas, inst.Lods, inst.Stos:
		if i.Wide() {
			return "w"
		}
		return "b"
	default:
		return ""
	}
}

// Format renders i as one line of NASM-compatible assembly text. i.SizeBytes
// lets a relative-displacement operand (FlagImmIsRelDisp) be rendered as
// "$+disp+instr_size", matching NASM's own self-relative label syntax
// instead of a raw signed byte count.
func Format(i inst.Instruction) string {
	var b strings.Builder

	if i.Flags&inst.FlagLock != 0 {
		b.WriteString("lock ")
	}
	if i.Flags&inst.FlagRep != 0 {
		if i.Flags&inst.FlagZ != 0 {
			b.WriteString("rep ")
		} else {
			b.WriteString("repnz ")
		}
	}

	b.WriteString(i.Op.String())
	b.WriteString(stringOpSuffix(i))

	operands := renderOperands(i)
	if len(operands) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(operands, ", "))
	}
	return b.String()
}

func renderOperands(i inst.Instruction) []string {
	if i.OperandCnt == 0 {
		return nil
	}
	ops := make([]inst.Operand, 0, 2)
	for k := 0; k < int(i.OperandCnt); k++ {
		ops = append(ops, i.Operands[k])
	}

	// XCHG's accumulator short form decodes as (acc, reg) for uniformity
	// with the general reg<->rm forms, but NASM prints the non-accumulator
	// register first under LOCK XCHG; swap purely for display.
	if i.Op == inst.Xchg && i.Flags&inst.FlagLock != 0 && len(ops) == 2 &&
		ops[0].Kind == inst.OperandReg && ops[1].Kind == inst.OperandReg &&
		ops[0].Reg.Reg == inst.A {
		ops[0], ops[1] = ops[1], ops[0]
	}

	otherIsReg := len(ops) == 2 && (ops[0].Kind == inst.OperandReg || ops[1].Kind == inst.OperandReg)

	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, renderOperand(op, i, otherIsReg))
	}
	return out
}

func renderOperand(op inst.Operand, i inst.Instruction, otherIsReg bool) string {
	switch op.Kind {
	case inst.OperandReg:
		return op.Reg.Name()

	case inst.OperandMem:
		return renderMem(op.Mem, i, otherIsReg)

	case inst.OperandImm:
		if i.Flags&inst.FlagImmIsRelDisp != 0 {
			disp := int32(int16(op.Imm))
			total := disp + int32(i.SizeBytes)
			switch {
			case total > 0:
				return fmt.Sprintf("$+%d", total)
			case total < 0:
				return fmt.Sprintf("$%d", total)
			default:
				return "$"
			}
		}
		return fmt.Sprintf("%d", op.Imm)

	case inst.OperandCsIp:
		return fmt.Sprintf("%04x:%04x", op.Cs, op.Ip)

	default:
		return ""
	}
}

func renderMem(m inst.EaMem, i inst.Instruction, otherIsReg bool) string {
	var b strings.Builder

	if i.HasSegOverride {
		b.WriteString(segPrefix[i.SegmentOverride])
	}

	if i.Flags&inst.FlagFar != 0 {
		b.WriteString("far ")
	} else if !otherIsReg {
		if i.Wide() {
			b.WriteString("word ")
		} else {
			b.WriteString("byte ")
		}
	}

	b.WriteString("[")
	if m.Base == inst.Direct {
		b.WriteString(fmt.Sprintf("%d", uint16(m.Disp)))
	} else {
		b.WriteString(eaBaseText(m.Base))
		if m.Disp > 0 {
			b.WriteString(fmt.Sprintf("+%d", m.Disp))
		} else if m.Disp < 0 {
			b.WriteString(fmt.Sprintf("-%d", -int32(m.Disp)))
		}
	}
	b.WriteString("]")
	return b.String()
}

func eaBaseText(base inst.EaBase) string {
	switch base {
	case inst.BxSi:
		return "bx+si"
	case inst.BxDi:
		return "bx+di"
	case inst.BpSi:
		return "bp+si"
	case inst.BpDi:
		return "bp+di"
	case inst.Si:
		return "si"
	case inst.Di:
		return "di"
	case inst.Bp:
		return "bp"
	case inst.Bx:
		return "bx"
	default:
		return ""
	}
}
