package encoding

import "github.com/intuitionamiga/sim8086/pkg/inst"

// Catalog is the compile-time list of 8086 opcode templates (spec §4.1).
// Every record's field list is written high bit to low bit within each
// byte, byte 0 then byte 1 and on — see fields.go for the walking
// convention BuildTable and the Decoder rely on.
//
// Grounded on IntuitionAmiga-IntuitionEngine/cpu_x86_ops.go and
// cpu_x86_grp.go for which mnemonics group together (ALU group, shift
// group, Grp3 MUL/IMUL/DIV/IDIV/TEST/NOT/NEG), cross-checked against
// original_source/8086/encoding.cpp for the exact bit patterns.
var Catalog = buildCatalog()

func buildCatalog() []Encoding {
	var c []Encoding

	modrm := func(tail ...Field) []Field {
		fields := []Field{f(Mod, 2), f(Reg, 3), f(Rm, 3)}
		return append(fields, tail...)
	}

	// --- MOV ---
	c = append(c,
		Encoding{inst.Mov, append([]Field{lit(6, 0b100010), f(D, 1), f(W, 1)}, modrm()...)},
		Encoding{inst.Mov, []Field{lit(7, 0b1100011), f(W, 1), f(Mod, 2), lit(3, 0b000), f(Rm, 3), f(Data, 8), f(DataWIfW, 0)}},
		Encoding{inst.Mov, []Field{lit(4, 0b1011), f(W, 1), f(Reg, 3), f(Data, 8), f(DataWIfW, 0)}},
		Encoding{inst.Mov, []Field{lit(7, 0b1010000), f(W, 1), implicit(D, 1), f(Disp, 16)}},
		Encoding{inst.Mov, []Field{lit(7, 0b1010001), f(W, 1), implicit(D, 0), f(Disp, 16)}},
		// Segment-register ModR/M forms: the middle 3 bits are a 2-bit segreg
		// selector plus a reserved/ignored high bit, not a general Reg field.
		Encoding{inst.Mov, []Field{lit(8, 0b10001110), f(Mod, 2), lit(1, 0b0), f(Sr, 2), f(Rm, 3), implicit(D, 1), implicit(W, 1)}},
		Encoding{inst.Mov, []Field{lit(8, 0b10001100), f(Mod, 2), lit(1, 0b0), f(Sr, 2), f(Rm, 3), implicit(D, 0), implicit(W, 1)}},
	)

	// --- PUSH / POP ---
	c = append(c,
		Encoding{inst.Push, []Field{lit(5, 0b01010), f(Reg, 3), implicit(W, 1)}},
		Encoding{inst.Push, []Field{lit(3, 0b000), f(Sr, 2), lit(3, 0b110), implicit(W, 1)}},
		Encoding{inst.Pop, []Field{lit(5, 0b01011), f(Reg, 3), implicit(W, 1)}},
		Encoding{inst.Pop, []Field{lit(8, 0b10001111), f(Mod, 2), lit(3, 0b000), f(Rm, 3), implicit(W, 1)}},
		Encoding{inst.Pop, []Field{lit(3, 0b000), f(Sr, 2), lit(3, 0b111), implicit(W, 1)}},
		Encoding{inst.Pushf, []Field{lit(8, 0b10011100)}},
		Encoding{inst.Popf, []Field{lit(8, 0b10011101)}},
	)

	// --- XCHG ---
	// 0x90 (reg=000) is reserved for NOP below rather than "xchg ax,ax", so
	// the accumulator-exchange short form only covers reg 001..111.
	c = append(c,
		Encoding{inst.Xchg, append([]Field{lit(7, 0b1000011), f(W, 1)}, modrm()...)},
	)
	for r := 1; r < 8; r++ {
		c = append(c, Encoding{inst.Xchg, []Field{lit(5, 0b10010), lit(3, r), implicit(W, 1)}})
	}

	// --- NOP ---
	c = append(c, Encoding{inst.Nop, []Field{lit(8, 0b10010000)}})

	// --- IN / OUT ---
	c = append(c,
		Encoding{inst.In, []Field{lit(7, 0b1110010), f(W, 1), f(Data, 8)}},
		Encoding{inst.In, []Field{lit(7, 0b1110110), f(W, 1)}},
		Encoding{inst.Out, []Field{lit(7, 0b1110011), f(W, 1), f(Data, 8)}},
		Encoding{inst.Out, []Field{lit(7, 0b1110111), f(W, 1)}},
	)

	// --- XLAT, LEA, LDS, LES ---
	c = append(c,
		Encoding{inst.Xlat, []Field{lit(8, 0b11010111)}},
		Encoding{inst.Lea, append([]Field{lit(8, 0b10001101)}, modrm()...)},
		Encoding{inst.Lds, append([]Field{lit(8, 0b11000101)}, modrm()...)},
		Encoding{inst.Les, append([]Field{lit(8, 0b11000100)}, modrm()...)},
	)

	// --- LAHF / SAHF ---
	c = append(c,
		Encoding{inst.Lahf, []Field{lit(8, 0b10011111)}},
		Encoding{inst.Sahf, []Field{lit(8, 0b10011110)}},
	)

	// --- ALU group: ADD/ADC/SUB/SBB/AND/OR/XOR/CMP ---
	alu := []struct {
		op   inst.Op
		bits int // 3-bit family selector
	}{
		{inst.Add, 0b000}, {inst.Or, 0b001}, {inst.Adc, 0b010}, {inst.Sbb, 0b011},
		{inst.And, 0b100}, {inst.Sub, 0b101}, {inst.Xor, 0b110}, {inst.Cmp, 0b111},
	}
	for _, a := range alu {
		c = append(c,
			Encoding{a.op, append([]Field{lit(2, 0b00), lit(3, a.bits), lit(1, 0b0), f(D, 1), f(W, 1)}, modrm()...)},
			Encoding{a.op, []Field{lit(2, 0b00), lit(3, a.bits), lit(1, 0b1), lit(1, 0b0), f(W, 1), f(Data, 8), f(DataWIfW, 0)}},
			Encoding{a.op, append([]Field{lit(6, 0b100000), f(S, 1), f(W, 1)},
				append([]Field{f(Mod, 2), lit(3, a.bits), f(Rm, 3)}, f(Data, 8), f(DataWIfW, 0))...)},
		)
	}
	// TEST is ALU-shaped but only has rm<->reg and imm<->acc/rm forms (no imm-to-acc "00xxx10w" slot, it uses Grp3).
	c = append(c,
		Encoding{inst.Test, append([]Field{lit(7, 0b1000010), f(W, 1)}, modrm()...)},
		Encoding{inst.Test, []Field{lit(7, 0b1010100), f(W, 1), f(Data, 8), f(DataWIfW, 0)}},
	)

	// --- INC / DEC short register forms ---
	c = append(c,
		Encoding{inst.Inc, []Field{lit(5, 0b01000), f(Reg, 3), implicit(W, 1)}},
		Encoding{inst.Dec, []Field{lit(5, 0b01001), f(Reg, 3), implicit(W, 1)}},
	)

	// --- Grp1 (FF /0../6): INC/DEC reg-or-mem, indirect CALL/JMP, PUSH mem ---
	grp1Entry := func(op inst.Op, ext int, wField Field, extra ...Field) Encoding {
		fields := []Field{lit(7, 0b1111111), wField, f(Mod, 2), lit(3, ext), f(Rm, 3)}
		return Encoding{op, append(fields, extra...)}
	}
	c = append(c,
		grp1Entry(inst.Inc, 0b000, f(W, 1)),
		grp1Entry(inst.Dec, 0b001, f(W, 1)),
		grp1Entry(inst.Call, 0b010, lit(1, 0b1), implicit(W, 1)),
		grp1Entry(inst.Call, 0b011, lit(1, 0b1), implicit(W, 1), implicit(Far, 1)),
		grp1Entry(inst.Jmp, 0b100, lit(1, 0b1), implicit(W, 1)),
		grp1Entry(inst.Jmp, 0b101, lit(1, 0b1), implicit(W, 1), implicit(Far, 1)),
		grp1Entry(inst.Push, 0b110, lit(1, 0b1), implicit(W, 1)),
	)

	// --- AAA/DAA/AAS/DAS/AAM/AAD/CBW/CWD ---
	c = append(c,
		Encoding{inst.Aaa, []Field{lit(8, 0b00110111)}},
		Encoding{inst.Daa, []Field{lit(8, 0b00100111)}},
		Encoding{inst.Aas, []Field{lit(8, 0b00111111)}},
		Encoding{inst.Das, []Field{lit(8, 0b00101111)}},
		Encoding{inst.Aam, []Field{lit(8, 0b11010100), lit(8, 0b00001010)}},
		Encoding{inst.Aad, []Field{lit(8, 0b11010101), lit(8, 0b00001010)}},
		Encoding{inst.Cbw, []Field{lit(8, 0b10011000)}},
		Encoding{inst.Cwd, []Field{lit(8, 0b10011001)}},
	)

	// --- MUL/IMUL/DIV/IDIV/NOT/NEG/TEST(imm): Grp3 (F6/F7) ---
	grp3 := []struct {
		op  inst.Op
		ext int
	}{
		{inst.Not, 0b010}, {inst.Neg, 0b011}, {inst.Mul, 0b100},
		{inst.Imul, 0b101}, {inst.Div, 0b110}, {inst.Idiv, 0b111},
	}
	for _, g := range grp3 {
		c = append(c, Encoding{g.op, append([]Field{lit(7, 0b1111011), f(W, 1)}, []Field{f(Mod, 2), lit(3, g.ext), f(Rm, 3)}...)})
	}
	c = append(c, Encoding{inst.Test, append([]Field{lit(7, 0b1111011), f(W, 1)}, append([]Field{f(Mod, 2), lit(3, 0b000), f(Rm, 3)}, f(Data, 8), f(DataWIfW, 0))...)})

	// --- Shift/rotate group (D0-D3): ROL/ROR/RCL/RCR/SHL/SHR/SAR ---
	shift := []struct {
		op  inst.Op
		ext int
	}{
		{inst.Rol, 0b000}, {inst.Ror, 0b001}, {inst.Rcl, 0b010}, {inst.Rcr, 0b011},
		{inst.Shl, 0b100}, {inst.Shr, 0b101}, {inst.Sar, 0b111},
	}
	for _, s := range shift {
		c = append(c, Encoding{s.op, append([]Field{lit(6, 0b110100), f(V, 1), f(W, 1)}, []Field{f(Mod, 2), lit(3, s.ext), f(Rm, 3)}...)})
	}

	// --- String ops ---
	c = append(c,
		Encoding{inst.Movs, []Field{lit(7, 0b1010010), f(W, 1)}},
		Encoding{inst.Cmps, []Field{lit(7, 0b1010011), f(W, 1)}},
		Encoding{inst.Scas, []Field{lit(7, 0b1010111), f(W, 1)}},
		Encoding{inst.Lods, []Field{lit(7, 0b1010110), f(W, 1)}},
		Encoding{inst.Stos, []Field{lit(7, 0b1010101), f(W, 1)}},
	)

	// --- Control flow: CALL/JMP/RET ---
	// Direct-far CALL/JMP carry a full cs:ip pointer on real hardware (offset
	// word then segment word); this catalog models only the offset word and
	// tags the instruction Far, matching the disassembler-only scope — the
	// segment half is never needed since nothing here relocates segments.
	c = append(c,
		Encoding{inst.Call, []Field{lit(8, 0b11101000), f(JmpRelDisp, 16)}},
		Encoding{inst.Call, []Field{lit(8, 0b10011010), f(Data, 16), implicit(Far, 1)}},
		Encoding{inst.Jmp, []Field{lit(8, 0b11101001), f(JmpRelDisp, 16)}},
		Encoding{inst.Jmp, []Field{lit(8, 0b11101011), f(JmpRelDisp, 8)}},
		Encoding{inst.Jmp, []Field{lit(8, 0b11101010), f(Data, 16), implicit(Far, 1)}},
		Encoding{inst.Ret, []Field{lit(8, 0b11000011)}},
		Encoding{inst.Ret, []Field{lit(8, 0b11000010), f(Data, 16)}},
		Encoding{inst.Retf, []Field{lit(8, 0b11001011)}},
		Encoding{inst.Retf, []Field{lit(8, 0b11001010), f(Data, 16)}},
	)

	// --- Conditional jumps / loops ---
	cond := []struct {
		op  inst.Op
		bit int
	}{
		{inst.Jo, 0b0000}, {inst.Jno, 0b0001}, {inst.Jb, 0b0010}, {inst.Jnb, 0b0011},
		{inst.Je, 0b0100}, {inst.Jne, 0b0101}, {inst.Jbe, 0b0110}, {inst.Ja, 0b0111},
		{inst.Js, 0b1000}, {inst.Jns, 0b1001}, {inst.Jp, 0b1010}, {inst.Jnp, 0b1011},
		{inst.Jl, 0b1100}, {inst.Jnl, 0b1101}, {inst.Jle, 0b1110}, {inst.Jg, 0b1111},
	}
	for _, cj := range cond {
		c = append(c, Encoding{cj.op, []Field{lit(4, 0b0111), lit(4, cj.bit), f(JmpRelDisp, 8)}})
	}
	c = append(c,
		Encoding{inst.Loopnz, []Field{lit(8, 0b11100000), f(JmpRelDisp, 8)}},
		Encoding{inst.Loopz, []Field{lit(8, 0b11100001), f(JmpRelDisp, 8)}},
		Encoding{inst.Loop, []Field{lit(8, 0b11100010), f(JmpRelDisp, 8)}},
		Encoding{inst.Jcxz, []Field{lit(8, 0b11100011), f(JmpRelDisp, 8)}},
	)

	// --- INT/INTO/INT3/IRET ---
	c = append(c,
		Encoding{inst.Int3, []Field{lit(8, 0b11001100), implicit(Data, 3)}},
		Encoding{inst.Int, []Field{lit(8, 0b11001101), f(Data, 8)}},
		Encoding{inst.Into, []Field{lit(8, 0b11001110)}},
		Encoding{inst.Iret, []Field{lit(8, 0b11001111)}},
	)

	// --- Flag ops ---
	c = append(c,
		Encoding{inst.Clc, []Field{lit(8, 0b11111000)}},
		Encoding{inst.Cmc, []Field{lit(8, 0b11110101)}},
		Encoding{inst.Stc, []Field{lit(8, 0b11111001)}},
		Encoding{inst.Cld, []Field{lit(8, 0b11111100)}},
		Encoding{inst.Std, []Field{lit(8, 0b11111101)}},
		Encoding{inst.Cli, []Field{lit(8, 0b11111010)}},
		Encoding{inst.Sti, []Field{lit(8, 0b11111011)}},
	)

	// --- Misc: HLT, WAIT, ESC ---
	c = append(c,
		Encoding{inst.Hlt, []Field{lit(8, 0b11110100)}},
		Encoding{inst.Wait, []Field{lit(8, 0b10011011)}},
	)
	c = append(c, Encoding{inst.Esc, append([]Field{lit(5, 0b11011), f(ExtOpcodeLo, 3)}, []Field{f(Mod, 2), f(ExtOpcodeHi, 3), f(Rm, 3)}...)})

	// --- Prefixes ---
	c = append(c,
		Encoding{inst.Lock, []Field{lit(8, 0b11110000)}},
		Encoding{inst.Rep, []Field{lit(7, 0b1111001), f(Z, 1)}},
		Encoding{inst.Segment, []Field{lit(3, 0b001), f(Sr, 2), lit(3, 0b110)}},
	)

	for i := range c {
		c[i].Fields = append(c[i].Fields, end)
	}
	return c
}
