package decoder

import "github.com/intuitionamiga/sim8086/pkg/inst"

// OperandBuilder: pure helpers mapping raw encoded fields to Operand values.
// Grounded on IntuitionAmiga-IntuitionEngine/cpu_x86.go's register-pointer
// lookup table (regs32 [8]*uint32 in hardware order), generalized to the
// spec's two distinct register orderings: Reg (A,B,C,D,SP,BP,SI,DI — note
// this differs from the raw hardware encoding) for register display order,
// and the raw 3-bit code tables below for what the wire actually encodes.

// byteRegs maps a 3-bit reg code to {reg, offset} for 8-bit operands:
// 000=AL 001=CL 010=DL 011=BL 100=AH 101=CH 110=DH 111=BH.
var byteRegs = [8]struct {
	reg    inst.Reg
	offset uint8
}{
	{inst.A, 0}, {inst.C, 0}, {inst.D, 0}, {inst.B, 0},
	{inst.A, 1}, {inst.C, 1}, {inst.D, 1}, {inst.B, 1},
}

// wordRegs maps a 3-bit reg code to a register for 16-bit operands, in
// hardware order: AX, CX, DX, BX, SP, BP, SI, DI.
var wordRegs = [8]inst.Reg{
	inst.A, inst.C, inst.D, inst.B, inst.SP, inst.BP, inst.SI, inst.DI,
}

// segRegs maps a 2-bit segment-register code: ES, CS, SS, DS.
var segRegs = [4]inst.Reg{inst.ES, inst.CS, inst.SS, inst.DS}

// eaBases maps a 3-bit r/m code (when mod != 11 and rm != 110 under mod==00)
// to its effective-address base expression.
var eaBases = [8]inst.EaBase{
	inst.BxSi, inst.BxDi, inst.BpSi, inst.BpDi, inst.Si, inst.Di, inst.Bp, inst.Bx,
}

func regOperand(code int, wide bool) inst.Operand {
	if wide {
		return inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: wordRegs[code], Size: 2}}
	}
	br := byteRegs[code]
	return inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: br.reg, Offset: br.offset, Size: 1}}
}

func segregOperand(code int) inst.Operand {
	return inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: segRegs[code&0b11], Size: 2}}
}

// rmOperand builds the register-or-memory operand named by mod/rm. disp is
// the displacement already read by the caller (0 when mod==00 and rm!=110).
func rmOperand(mod, rm int, wide bool, disp int16) inst.Operand {
	if mod == 0b11 {
		return regOperand(rm, wide)
	}
	if mod == 0b00 && rm == 0b110 {
		return inst.Operand{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Direct, Disp: disp}}
	}
	return inst.Operand{Kind: inst.OperandMem, Mem: inst.EaMem{Base: eaBases[rm], Disp: disp}}
}

// needsDisp reports whether a displacement follows the ModR/M byte for the
// given mod/rm, and how wide it is (spec §4.3 step 4).
func needsDisp(mod, rm int) (present bool, wide bool) {
	switch {
	case mod == 0b01:
		return true, false
	case mod == 0b10:
		return true, true
	case mod == 0b00 && rm == 0b110:
		return true, true
	default:
		return false, false
	}
}
