package encoding

import "testing"

// TestBuildTableNoConflicts is the coverage property from spec §8: the
// shipped Catalog must compile into a dispatch table with no two encodings
// claiming the same compressed slot.
func TestBuildTableNoConflicts(t *testing.T) {
	tbl, err := BuildTable(Catalog)
	if err != nil {
		t.Fatalf("BuildTable(Catalog): %v", err)
	}
	if tbl == nil {
		t.Fatal("BuildTable returned a nil table with a nil error")
	}
}

// TestLookupKnownOpcodes spot-checks a handful of well-known first bytes
// resolve to the expected mnemonic, matching the catalog's documented wire
// format.
func TestLookupKnownOpcodes(t *testing.T) {
	tbl, err := BuildTable(Catalog)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	cases := []struct {
		name   string
		b0, b1 uint8
		want   string
	}{
		{"mov reg,reg", 0x89, 0xD9, "mov"},
		{"mov imm->reg (ax family)", 0xB8, 0x00, "mov"},
		{"add group1 imm", 0x83, 0x06, "add"},
		{"int3", 0xCC, 0x00, "int3"},
		{"hlt", 0xF4, 0x00, "hlt"},
		{"nop", 0x90, 0x00, "nop"}, // reg=000 is carved out of XCHG's encoding for a dedicated NOP
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := tbl.Lookup(tc.b0, tc.b1)
			if enc == nil {
				t.Fatalf("Lookup(%#02x, %#02x) = nil", tc.b0, tc.b1)
			}
			if got := enc.Op.String(); got != tc.want {
				t.Errorf("Lookup(%#02x, %#02x).Op = %s, want %s", tc.b0, tc.b1, got, tc.want)
			}
		})
	}
}

func TestLookupUnknownOpcodeReturnsNil(t *testing.T) {
	tbl, err := BuildTable(Catalog)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	// 0x60 is PUSHA on later x86 generations; the 8086 catalog never defines
	// it, so it must resolve to no match rather than a panic. (0x0F is not
	// usable here: on the 8086 it is POP CS, covered by the segreg POP form.)
	if enc := tbl.Lookup(0x60, 0x00); enc != nil {
		t.Errorf("Lookup(0x60, 0x00) = %v, want nil", enc.Op)
	}
}
