// Package inst defines the structured representation every other package in
// this module consumes or produces: the Op enum, register/operand shapes,
// the Instruction record, and the metadata the clock estimator needs.
package inst

// Op is a closed enumeration of 8086 mnemonics plus the three raw prefixes
// and the Invalid sentinel returned on a failed decode.
type Op int

const (
	Invalid Op = iota

	// Prefixes — decoded as standalone one-byte instructions, folded into
	// the following instruction by the decoder's context (see pkg/decoder).
	Lock
	Rep
	Segment

	// Data transfer
	Mov
	Push
	Pop
	Xchg
	In
	Out
	Xlat
	Lea
	Lds
	Les
	Lahf
	Sahf
	Pushf
	Popf

	// Arithmetic
	Add
	Adc
	Inc
	Aaa
	Daa
	Sub
	Sbb
	Dec
	Neg
	Cmp
	Aas
	Das
	Mul
	Imul
	Aam
	Div
	Idiv
	Aad
	Cbw
	Cwd

	// Logic
	Not
	Shl
	Shr
	Sar
	Rol
	Ror
	Rcl
	Rcr
	And
	Test
	Or
	Xor

	// String manipulation
	Movs
	Cmps
	Scas
	Lods
	Stos

	// Control transfer
	Call
	Jmp
	Ret
	Retf
	Je
	Jl
	Jle
	Jb
	Jbe
	Jp
	Jo
	Js
	Jne
	Jnl
	Jg
	Jnb
	Ja
	Jnp
	Jno
	Jns
	Loop
	Loopz
	Loopnz
	Jcxz
	Int
	Int3
	Into
	Iret

	// Processor control
	Clc
	Cmc
	Stc
	Cld
	Std
	Cli
	Sti
	Hlt
	Wait
	Esc
	Nop

	OpCount
)

var opNames = map[Op]string{
	Invalid: "(invalid)",
	Lock:    "lock", Rep: "rep", Segment: "segment",
	Mov: "mov", Push: "push", Pop: "pop", Xchg: "xchg", In: "in", Out: "out",
	Xlat: "xlat", Lea: "lea", Lds: "lds", Les: "les", Lahf: "lahf", Sahf: "sahf",
	Pushf: "pushf", Popf: "popf",
	Add: "add", Adc: "adc", Inc: "inc", Aaa: "aaa", Daa: "daa",
	Sub: "sub", Sbb: "sbb", Dec: "dec", Neg: "neg", Cmp: "cmp", Aas: "aas", Das: "das",
	Mul: "mul", Imul: "imul", Aam: "aam", Div: "div", Idiv: "idiv", Aad: "aad",
	Cbw: "cbw", Cwd: "cwd",
	Not: "not", Shl: "shl", Shr: "shr", Sar: "sar", Rol: "rol", Ror: "ror",
	Rcl: "rcl", Rcr: "rcr", And: "and", Test: "test", Or: "or", Xor: "xor",
	Movs: "movs", Cmps: "cmps", Scas: "scas", Lods: "lods", Stos: "stos",
	Call: "call", Jmp: "jmp", Ret: "ret", Retf: "retf",
	Je: "je", Jl: "jl", Jle: "jle", Jb: "jb", Jbe: "jbe", Jp: "jp", Jo: "jo", Js: "js",
	Jne: "jne", Jnl: "jnl", Jg: "jg", Jnb: "jnb", Ja: "ja", Jnp: "jnp", Jno: "jno", Jns: "jns",
	Loop: "loop", Loopz: "loopz", Loopnz: "loopnz", Jcxz: "jcxz",
	Int: "int", Int3: "int3", Into: "into", Iret: "iret",
	Clc: "clc", Cmc: "cmc", Stc: "stc", Cld: "cld", Std: "std",
	Cli: "cli", Sti: "sti", Hlt: "hlt", Wait: "wait", Esc: "esc", Nop: "nop",
}

// String implements fmt.Stringer for diagnostics and the Output collaborator.
func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "(unknown-op)"
}

// Reg identifies one of the 14 architectural registers. Note the ordering
// (A, B, C, D ...) intentionally differs from the raw 3-bit hardware
// encoding; mapping between the two is OperandBuilder's job (pkg/decoder).
type Reg int

const (
	A Reg = iota
	B
	C
	D
	SP
	BP
	SI
	DI
	ES
	CS
	SS
	DS
	IP
	Flags

	RegCount
)

var regNames = [RegCount]string{
	A: "a", B: "b", C: "c", D: "d", SP: "sp", BP: "bp", SI: "si", DI: "di",
	ES: "es", CS: "cs", SS: "ss", DS: "ds", IP: "ip", Flags: "flags",
}

// RegAccess names a register plus the sub-register slice being addressed.
// Invariant: size == 2 implies offset == 0; size == 1 implies reg is one of
// A/B/C/D and offset selects low (0) or high (1) byte of that 16-bit pair.
type RegAccess struct {
	Reg    Reg
	Offset uint8
	Size   uint8
}

// Name renders the conventional 8086 register name (al, ah, ax, bx, cx, ...).
func (r RegAccess) Name() string {
	if r.Size == 2 {
		if r.Reg <= D {
			return regNames[r.Reg] + "x"
		}
		return regNames[r.Reg]
	}
	suffix := "l"
	if r.Offset == 1 {
		suffix = "h"
	}
	return regNames[r.Reg] + suffix
}

// EaBase names the base-register expression of a memory effective address.
type EaBase int

const (
	BxSi EaBase = iota
	BxDi
	BpSi
	BpDi
	Si
	Di
	Bp
	Bx
	Direct // carries only the displacement, no base registers
)

var eaBaseNames = [9]string{
	BxSi: "bx+si", BxDi: "bx+di", BpSi: "bp+si", BpDi: "bp+di",
	Si: "si", Di: "di", Bp: "bp", Bx: "bx", Direct: "",
}

// EaMem is a decoded memory operand: a base expression plus a 16-bit
// (possibly zero) displacement.
type EaMem struct {
	Base EaBase
	Disp int16
}

// OperandKind tags the active variant of Operand.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandReg
	OperandMem
	OperandImm
	OperandCsIp
)

// Operand is a tagged union: exactly one field is meaningful, selected by
// Kind. A target-language sum type replaces the original's C-style tagged
// union while keeping the same one-active-variant contract.
type Operand struct {
	Kind OperandKind
	Reg  RegAccess
	Mem  EaMem
	Imm  uint16
	Cs   uint16
	Ip   uint16
}

// InstrFlags is the decoded-instruction flag bitset (distinct from the
// simulated CPU FLAGS register, which is the Reg constant Flags above).
type InstrFlags uint16

const (
	FlagW InstrFlags = 1 << iota
	FlagS
	FlagZ
	FlagLock
	FlagRep
	FlagSegOverride
	FlagImmIsRelDisp
	FlagFar
)

// Instruction is the fixed-size record the Decoder produces and every
// downstream component (Validator, Clocks, Simulator, Output) consumes.
type Instruction struct {
	Op              Op
	Flags           InstrFlags
	Operands        [2]Operand
	OperandCnt      uint8
	SizeBytes       uint8
	SegmentOverride Reg
	HasSegOverride  bool
}

// Wide reports whether this instruction operates on 16-bit data.
func (i Instruction) Wide() bool { return i.Flags&FlagW != 0 }

// InstructionMetadata carries the dynamic, runtime-observed values the clock
// estimator needs on top of the static Instruction: operand values for
// variable-cost ops (shift count in CL, etc.), whether a conditional branch
// was actually taken, and REP/wide-transfer counts.
type InstructionMetadata struct {
	Instr              Instruction
	Op0Val             uint16
	Op1Val             uint16
	CondActionHappened bool
	RepCount           uint32
	WaitN              uint32
	WideTransferCnt    uint32
	WideOddTransferCnt uint32
}
