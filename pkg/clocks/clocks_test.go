package clocks

import (
	"testing"

	"github.com/intuitionamiga/sim8086/pkg/inst"
)

func regOp(r inst.Reg, size uint8) inst.Operand {
	return inst.Operand{Kind: inst.OperandReg, Reg: inst.RegAccess{Reg: r, Size: size}}
}

func memOp(disp int16) inst.Operand {
	return inst.Operand{Kind: inst.OperandMem, Mem: inst.EaMem{Base: inst.Direct, Disp: disp}}
}

func TestEstimateMovShapes(t *testing.T) {
	cases := []struct {
		name string
		i    inst.Instruction
		want uint32
	}{
		{
			name: "reg,reg",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{regOp(inst.C, 2), regOp(inst.B, 2)}},
			want: 2,
		},
		{
			name: "reg,imm",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{regOp(inst.A, 2), {Kind: inst.OperandImm, Imm: 5}}},
			want: 4,
		},
		{
			name: "acc,mem",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{regOp(inst.A, 2), memOp(0)}},
			want: 10,
		},
		{
			name: "mem,acc",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{memOp(0), regOp(inst.A, 2)}},
			want: 10,
		},
		{
			name: "reg,mem direct (ea=6)",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{regOp(inst.C, 2), memOp(0)}},
			want: 8 + 6,
		},
		{
			name: "mem,reg direct (ea=6)",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{memOp(0), regOp(inst.C, 2)}},
			want: 9 + 6,
		},
		{
			// Direct addressing's displacement *is* the address, not an
			// additive displacement on top of a register base, so eaCost
			// charges the flat 6 regardless of the disp value.
			name: "mem,imm direct with nonzero disp (ea=6)",
			i: inst.Instruction{Op: inst.Mov, OperandCnt: 2,
				Operands: [2]inst.Operand{memOp(0x0150), {Kind: inst.OperandImm, Imm: 5}}},
			want: 10 + 6,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Estimate(inst.InstructionMetadata{Instr: tc.i}, Proc8086)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if got != tc.want {
				t.Errorf("cycles = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestEstimatePushPopShapes(t *testing.T) {
	cases := []struct {
		name string
		i    inst.Instruction
		want uint32
	}{
		{"push reg", inst.Instruction{Op: inst.Push, OperandCnt: 1,
			Operands: [2]inst.Operand{regOp(inst.A, 2)}}, 11},
		{"push segreg", inst.Instruction{Op: inst.Push, OperandCnt: 1,
			Operands: [2]inst.Operand{regOp(inst.ES, 2)}}, 10},
		{"push mem direct", inst.Instruction{Op: inst.Push, OperandCnt: 1,
			Operands: [2]inst.Operand{memOp(0)}}, 16 + 6},
		{"pop reg", inst.Instruction{Op: inst.Pop, OperandCnt: 1,
			Operands: [2]inst.Operand{regOp(inst.A, 2)}}, 8},
		{"pop segreg", inst.Instruction{Op: inst.Pop, OperandCnt: 1,
			Operands: [2]inst.Operand{regOp(inst.DS, 2)}}, 8},
		{"pop mem direct", inst.Instruction{Op: inst.Pop, OperandCnt: 1,
			Operands: [2]inst.Operand{memOp(0)}}, 17 + 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Estimate(inst.InstructionMetadata{Instr: tc.i}, Proc8086)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if got != tc.want {
				t.Errorf("cycles = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestEstimateAluGroupShapes(t *testing.T) {
	cases := []struct {
		name string
		i    inst.Instruction
		want uint32
	}{
		{"add reg,reg", inst.Instruction{Op: inst.Add, OperandCnt: 2,
			Operands: [2]inst.Operand{regOp(inst.A, 2), regOp(inst.B, 2)}}, 3},
		{"sub reg,imm", inst.Instruction{Op: inst.Sub, OperandCnt: 2,
			Operands: [2]inst.Operand{regOp(inst.A, 2), {Kind: inst.OperandImm, Imm: 1}}}, 4},
		{"and reg,mem direct", inst.Instruction{Op: inst.And, OperandCnt: 2,
			Operands: [2]inst.Operand{regOp(inst.A, 2), memOp(0)}}, 9 + 6},
		{"xor mem,reg direct", inst.Instruction{Op: inst.Xor, OperandCnt: 2,
			Operands: [2]inst.Operand{memOp(0), regOp(inst.A, 2)}}, 16 + 6},
		{"or mem,imm direct", inst.Instruction{Op: inst.Or, OperandCnt: 2,
			Operands: [2]inst.Operand{memOp(0), {Kind: inst.OperandImm, Imm: 1}}}, 17 + 6},
		{"cmp mem,reg direct (same cost as reg,mem)", inst.Instruction{Op: inst.Cmp, OperandCnt: 2,
			Operands: [2]inst.Operand{memOp(0), regOp(inst.A, 2)}}, 9 + 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Estimate(inst.InstructionMetadata{Instr: tc.i}, Proc8086)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if got != tc.want {
				t.Errorf("cycles = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestEstimateShiftByOneVsByCl(t *testing.T) {
	byOne := inst.Instruction{Op: inst.Shl, OperandCnt: 2,
		Operands: [2]inst.Operand{regOp(inst.A, 2), {Kind: inst.OperandImm, Imm: 1}}}
	got, err := Estimate(inst.InstructionMetadata{Instr: byOne}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got != 2 {
		t.Errorf("shift-by-1 reg cycles = %d, want 2", got)
	}

	byCl := inst.Instruction{Op: inst.Shl, OperandCnt: 2,
		Operands: [2]inst.Operand{regOp(inst.A, 2), regOp(inst.C, 1)}}
	got, err = Estimate(inst.InstructionMetadata{Instr: byCl, Op1Val: 3}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if want := uint32(8 + 4*3); got != want {
		t.Errorf("shift-by-CL reg cycles = %d, want %d", got, want)
	}

	byClMem := inst.Instruction{Op: inst.Shr, OperandCnt: 2,
		Operands: [2]inst.Operand{memOp(0), regOp(inst.C, 1)}}
	got, err = Estimate(inst.InstructionMetadata{Instr: byClMem, Op1Val: 2}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if want := uint32(20 + 6 + 4*2); got != want {
		t.Errorf("shift-by-CL mem cycles = %d, want %d", got, want)
	}
}

func TestEstimateStringOpRepLinear(t *testing.T) {
	notRep := inst.Instruction{Op: inst.Movs, Flags: inst.FlagW}
	got, err := Estimate(inst.InstructionMetadata{Instr: notRep}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got != 17 {
		t.Errorf("unprefixed movsw cycles = %d, want 17", got)
	}

	rep := inst.Instruction{Op: inst.Movs, Flags: inst.FlagW | inst.FlagRep}
	got, err = Estimate(inst.InstructionMetadata{Instr: rep, RepCount: 4}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if want := uint32(9 + 17*4 + 2); got != want { // +2 for the active Rep prefix surcharge
		t.Errorf("rep movsw*4 cycles = %d, want %d", got, want)
	}
}

func TestEstimateConditionalJumpTakenVsNotTaken(t *testing.T) {
	i := inst.Instruction{Op: inst.Jne, OperandCnt: 1, Flags: inst.FlagImmIsRelDisp,
		Operands: [2]inst.Operand{{Kind: inst.OperandImm, Imm: 2}}}

	taken, err := Estimate(inst.InstructionMetadata{Instr: i, CondActionHappened: true}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if taken != 16 {
		t.Errorf("taken jne cycles = %d, want 16", taken)
	}

	notTaken, err := Estimate(inst.InstructionMetadata{Instr: i, CondActionHappened: false}, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if notTaken != 4 {
		t.Errorf("not-taken jne cycles = %d, want 4", notTaken)
	}
}

func TestEstimateWaitFormula(t *testing.T) {
	m := inst.InstructionMetadata{Instr: inst.Instruction{Op: inst.Wait}, WaitN: 5}
	got, err := Estimate(m, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if want := uint32(3 + 5*5); got != want {
		t.Errorf("wait cycles = %d, want %d", got, want)
	}
}

func TestEstimatePrefixHasNoCost(t *testing.T) {
	for _, op := range []inst.Op{inst.Lock, inst.Rep, inst.Segment} {
		_, err := Estimate(inst.InstructionMetadata{Instr: inst.Instruction{Op: op}}, Proc8086)
		if err == nil {
			t.Errorf("Estimate(%s) = nil error, want ErrPrefixHasNoCost", op)
		}
	}
}

func TestEstimateWideTransferPenaltySplitsByProc(t *testing.T) {
	i := inst.Instruction{Op: inst.Mov, OperandCnt: 2,
		Operands: [2]inst.Operand{regOp(inst.C, 2), regOp(inst.B, 2)}}

	m8088 := inst.InstructionMetadata{Instr: i, WideTransferCnt: 2, WideOddTransferCnt: 9}
	got, err := Estimate(m8088, Proc8088)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if want := uint32(2 + 4*2); got != want {
		t.Errorf("8088 penalty cycles = %d, want %d", got, want)
	}

	got, err = Estimate(m8088, Proc8086)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if want := uint32(2 + 4*9); got != want {
		t.Errorf("8086 penalty cycles = %d, want %d", got, want)
	}
}

// TestEstimateNeverNegative is the universal property from spec §8: every
// modelled (Op, shape) combination this table ships must resolve to a
// positive cycle count once the base and EA costs are summed.
func TestEstimateNeverNegative(t *testing.T) {
	for k := range costTable {
		i := inst.Instruction{Op: k.op}
		switch k.sh {
		case shapeRegReg:
			i.OperandCnt = 2
			i.Operands = [2]inst.Operand{regOp(inst.A, 2), regOp(inst.B, 2)}
		case shapeRegImm:
			i.OperandCnt = 2
			i.Operands = [2]inst.Operand{regOp(inst.A, 2), {Kind: inst.OperandImm, Imm: 1}}
		case shapeRegMem:
			i.OperandCnt = 2
			i.Operands = [2]inst.Operand{regOp(inst.A, 2), memOp(0)}
		case shapeMemReg:
			i.OperandCnt = 2
			i.Operands = [2]inst.Operand{memOp(0), regOp(inst.A, 2)}
		case shapeMemImm:
			i.OperandCnt = 2
			i.Operands = [2]inst.Operand{memOp(0), {Kind: inst.OperandImm, Imm: 1}}
		case shapeAccMem:
			i.OperandCnt = 2
			i.Operands = [2]inst.Operand{regOp(inst.A, 2), memOp(0)}
		case shapeRegOnly:
			i.OperandCnt = 1
			i.Operands = [2]inst.Operand{regOp(inst.A, 2)}
		case shapeMemOnly:
			i.OperandCnt = 1
			i.Operands = [2]inst.Operand{memOp(0)}
		case shapeSegregOrFlags:
			i.OperandCnt = 1
			i.Operands = [2]inst.Operand{regOp(inst.ES, 2)}
		}
		got, err := Estimate(inst.InstructionMetadata{Instr: i, CondActionHappened: true, RepCount: 1}, Proc8086)
		if err != nil {
			t.Fatalf("Estimate(%s/%d): %v", k.op, k.sh, err)
		}
		if got == 0 {
			t.Errorf("Estimate(%s/%d) = 0, want > 0", k.op, k.sh)
		}
	}
}
