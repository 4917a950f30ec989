package output

import (
	"testing"

	"github.com/intuitionamiga/sim8086/pkg/inst"
)

func TestFormatRegReg(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Mov,
		Flags:      inst.FlagW,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.C, Size: 2}},
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.B, Size: 2}},
		},
	}
	if got, want := Format(i), "mov cx, bx"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRegImm(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Mov,
		Flags:      inst.FlagW,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.A, Size: 2}},
			{Kind: inst.OperandImm, Imm: 0x0539},
		},
	}
	if got, want := Format(i), "mov ax, 1337"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatMemWithDisplacement(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Mov,
		Flags:      inst.FlagW,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.B, Size: 2}},
			{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.BxSi, Disp: 4}},
		},
	}
	if got, want := Format(i), "mov bx, [bx+si+4]"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatMemNegativeDisplacement(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Mov,
		Flags:      inst.FlagW,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.B, Size: 2}},
			{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Bp, Disp: -6}},
		},
	}
	if got, want := Format(i), "mov bx, [bp-6]"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatMemDirectAddress(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Add,
		Flags:      inst.FlagW,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Direct, Disp: 0x0150}},
			{Kind: inst.OperandImm, Imm: 5},
		},
	}
	if got, want := Format(i), "add word [336], 5"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatMemByteSized(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Mov,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Bx, Disp: 0}},
			{Kind: inst.OperandImm, Imm: 7},
		},
	}
	if got, want := Format(i), "mov byte [bx], 7"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatSegmentOverridePrefix(t *testing.T) {
	i := inst.Instruction{
		Op:              inst.Mov,
		Flags:           inst.FlagW | inst.FlagSegOverride,
		OperandCnt:      2,
		HasSegOverride:  true,
		SegmentOverride: inst.ES,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.B, Size: 2}},
			{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Direct, Disp: 0}},
		},
	}
	if got, want := Format(i), "mov bx, es:[0]"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatLockXchgSwapsOperandsForDisplay(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Xchg,
		Flags:      inst.FlagW | inst.FlagLock,
		OperandCnt: 2,
		Operands: [2]inst.Operand{
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.A, Size: 2}},
			{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: inst.C, Size: 2}},
		},
	}
	if got, want := Format(i), "lock xchg cx, ax"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRepStringOp(t *testing.T) {
	i := inst.Instruction{
		Op:    inst.Movs,
		Flags: inst.FlagW | inst.FlagRep | inst.FlagZ,
	}
	if got, want := Format(i), "rep movsw"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRepnzStringOp(t *testing.T) {
	i := inst.Instruction{
		Op:    inst.Scas,
		Flags: inst.FlagRep,
	}
	if got, want := Format(i), "repnz scasb"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRelativeJumpForward(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Jne,
		OperandCnt: 1,
		Flags:      inst.FlagImmIsRelDisp,
		SizeBytes:  2,
		Operands:   [2]inst.Operand{{Kind: inst.OperandImm, Imm: 2}},
	}
	if got, want := Format(i), "jne $+4"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRelativeJumpSelf(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Jmp,
		OperandCnt: 1,
		Flags:      inst.FlagImmIsRelDisp,
		SizeBytes:  2,
		Operands:   [2]inst.Operand{{Kind: inst.OperandImm, Imm: 0xFFFE}}, // -2 as a 16-bit displacement
	}
	if got, want := Format(i), "jmp $"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormatRelativeJumpBackward(t *testing.T) {
	i := inst.Instruction{
		Op:         inst.Jmp,
		OperandCnt: 1,
		Flags:      inst.FlagImmIsRelDisp,
		SizeBytes:  2,
		Operands:   [2]inst.Operand{{Kind: inst.OperandImm, Imm: 0xFFF6}}, // -10 as a 16-bit displacement
	}
	if got, want := Format(i), "jmp $-8"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
