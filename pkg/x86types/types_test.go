package x86types

import "testing"

func TestIntTypeBitWidth(t *testing.T) {
	cases := map[IntType]uint8{I8: 8, I16: 16, I32: 32, I64: 64}
	for ty, want := range cases {
		if got := ty.BitWidth(); got != want {
			t.Errorf("%v.BitWidth() = %d, want %d", ty, got, want)
		}
	}
}

func TestIntTypeDoubleSized(t *testing.T) {
	cases := map[IntType]IntType{I8: I16, I16: I32, I32: I64}
	for ty, want := range cases {
		if got := ty.DoubleSized(); got != want {
			t.Errorf("%v.DoubleSized() = %v, want %v", ty, got, want)
		}
	}
}

func TestIntTypeDoubleSizedI64Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic doubling I64")
		}
	}()
	I64.DoubleSized()
}

func TestRegisterSize(t *testing.T) {
	cases := map[Register]IntType{
		EAX: I32, EDI: I32,
		AX: I16, DI: I16,
		AH: I8, AL: I8, DL: I8,
	}
	for r, want := range cases {
		if got := r.Size(); got != want {
			t.Errorf("%v.Size() = %v, want %v", r, got, want)
		}
	}
}

func TestAliasParentAndOffset(t *testing.T) {
	cases := []struct {
		r      Register
		parent FullSizeGPR
		offset uint8
	}{
		{EAX, FullEAX, 0},
		{AX, FullEAX, 0},
		{AL, FullEAX, 0},
		{AH, FullEAX, 8},
		{DL, FullEDX, 0},
		{DH, FullEDX, 8},
	}
	for _, c := range cases {
		a := c.r.Alias()
		if a.Parent != c.parent || a.BitOffset != c.offset {
			t.Errorf("%v.Alias() = {%v, %d}, want {%v, %d}", c.r, a.Parent, a.BitOffset, c.parent, c.offset)
		}
	}
}

func TestOperandSize(t *testing.T) {
	if RegisterOperand(EAX).Size() != I32 {
		t.Error("register operand size mismatch")
	}
	if Imm8Operand(1).Size() != I8 {
		t.Error("imm8 operand size mismatch")
	}
	mem := MemoryOperandOf(MemoryOperand{Size: I32, HasSize: true})
	if mem.Size() != I32 {
		t.Error("memory operand size mismatch")
	}
}

func TestMemoryOperandSizePanicsWithoutSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading size of a sizeless memory operand")
		}
	}()
	MemoryOperandOf(MemoryOperand{}).Size()
}
