package lower_test

import (
	"testing"

	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/interp"
	"github.com/oisee/x86lift/pkg/lower"
	"github.com/oisee/x86lift/pkg/x86types"
)

func run(t *testing.T, instrs ...lower.Instruction) (*interp.Interp, builder.ControlFlow) {
	t.Helper()
	it := interp.New(&x86types.CpuContext{})
	var flow builder.ControlFlow
	for _, inst := range instrs {
		flow = lower.Lower(it, inst)
	}
	return it, flow
}

func reg(r x86types.Register) x86types.Operand { return x86types.RegisterOperand(r) }
func imm32(v uint32) x86types.Operand          { return x86types.Imm32Operand(v) }
func imm8(v uint8) x86types.Operand            { return x86types.Imm8Operand(v) }

func movImm32(dst x86types.Register, v uint32) lower.Instruction {
	return lower.Instruction{Mnemonic: lower.MOV, Width: x86types.I32, Operands: []x86types.Operand{reg(dst), imm32(v)}}
}

func gpr(it *interp.Interp, r x86types.Register) uint32 {
	return it.Ctx().GPRegs[r.FullSizeGPR()]
}

func flag(it *interp.Interp, f x86types.Flag) bool {
	return it.Ctx().Flags[f] != 0
}

// mov eax,0x41424344; mov al,42 -> EAX = 0x4142422A (parent-preservation).
func TestMovSubRegisterPreservesParentBits(t *testing.T) {
	it, _ := run(t,
		movImm32(x86types.EAX, 0x41424344),
		lower.Instruction{Mnemonic: lower.MOV, Width: x86types.I8, Operands: []x86types.Operand{reg(x86types.AL), imm8(42)}},
	)
	if got := gpr(it, x86types.EAX); got != 0x4142422A {
		t.Errorf("EAX = 0x%08x, want 0x4142422A", got)
	}
}

// mov eax,1; sub eax,2 -> EAX = 0xFFFFFFFF, CF=1, ZF=0, SF=1, OF=0.
func TestSubUnderflow(t *testing.T) {
	it, _ := run(t,
		movImm32(x86types.EAX, 1),
		lower.Instruction{Mnemonic: lower.SUB, Width: x86types.I32, Operands: []x86types.Operand{reg(x86types.EAX), imm32(2)}},
	)
	if got := gpr(it, x86types.EAX); got != 0xFFFFFFFF {
		t.Errorf("EAX = 0x%08x, want 0xFFFFFFFF", got)
	}
	if !flag(it, x86types.Carry) || flag(it, x86types.Zero) || !flag(it, x86types.Sign) || flag(it, x86types.Overflow) {
		t.Errorf("flags CF=%v ZF=%v SF=%v OF=%v, want 1 0 1 0",
			flag(it, x86types.Carry), flag(it, x86types.Zero), flag(it, x86types.Sign), flag(it, x86types.Overflow))
	}
}

// mov eax,0x7fffffff; inc eax -> EAX=0x80000000, OF=1, SF=1, ZF=0, CF unchanged.
func TestIncSignedOverflow(t *testing.T) {
	it, _ := run(t,
		movImm32(x86types.EAX, 0x7fffffff),
		lower.Instruction{Mnemonic: lower.INC, Width: x86types.I32, Operands: []x86types.Operand{reg(x86types.EAX)}},
	)
	if got := gpr(it, x86types.EAX); got != 0x80000000 {
		t.Errorf("EAX = 0x%08x, want 0x80000000", got)
	}
	if !flag(it, x86types.Overflow) || !flag(it, x86types.Sign) || flag(it, x86types.Zero) {
		t.Error("inc 0x7fffffff: want OF=1 SF=1 ZF=0")
	}
}

// mov al,-0x08; sar al,0x09 -> AL=0xFF, CF=1.
func TestSarMaskedCount(t *testing.T) {
	neg8 := int8(-0x08)
	it, _ := run(t,
		lower.Instruction{Mnemonic: lower.MOV, Width: x86types.I8, Operands: []x86types.Operand{reg(x86types.AL), imm8(uint8(neg8))}},
		lower.Instruction{Mnemonic: lower.SAR, Width: x86types.I8, Operands: []x86types.Operand{reg(x86types.AL), imm8(0x09)}},
	)
	if got := gpr(it, x86types.EAX) & 0xFF; got != 0xFF {
		t.Errorf("AL = 0x%02x, want 0xFF", got)
	}
	if !flag(it, x86types.Carry) {
		t.Error("sar al,9 from -8: want CF=1")
	}
}

// mov eax,42; mov ebx,24; div ebx -> EAX=1, EDX=18.
func TestDivUnsigned(t *testing.T) {
	it, _ := run(t,
		movImm32(x86types.EAX, 42),
		movImm32(x86types.EBX, 24),
		lower.Instruction{Mnemonic: lower.DIV, Width: x86types.I32, Operands: []x86types.Operand{reg(x86types.EBX)}},
	)
	if got := gpr(it, x86types.EAX); got != 1 {
		t.Errorf("EAX (quotient) = %d, want 1", got)
	}
	if got := gpr(it, x86types.EDX); got != 18 {
		t.Errorf("EDX (remainder) = %d, want 18", got)
	}
}

// push 0x1337; mov ebp,esp; leave; ret -> ESP restored, EBP = 0x1337.
func TestPushLeaveRet(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.StoreRegister(x86types.ESP, it.MakeU32(0x2000))

	lower.Lower(it, lower.Instruction{Mnemonic: lower.PUSH, Width: x86types.I32, Operands: []x86types.Operand{imm32(0x1337)}})
	lower.Lower(it, lower.Instruction{Mnemonic: lower.MOV, Width: x86types.I32, Operands: []x86types.Operand{reg(x86types.EBP), reg(x86types.ESP)}})
	espAfterPush := gpr(it, x86types.ESP)

	lower.Lower(it, lower.Instruction{Mnemonic: lower.LEAVE})
	flow := lower.Lower(it, lower.Instruction{Mnemonic: lower.RET})

	if got := gpr(it, x86types.EBP); got != 0x1337 {
		t.Errorf("EBP = 0x%x, want 0x1337", got)
	}
	if got := gpr(it, x86types.ESP); got != espAfterPush+8 {
		t.Errorf("ESP after leave+ret = 0x%x, want 0x%x (restored past pushed dword and return address)", got, espAfterPush+8)
	}
	if flow.Kind != builder.Return {
		t.Errorf("RET must produce a Return ControlFlow, got %v", flow.Kind)
	}
	if _, ok := it.LastIndirectTarget(); !ok {
		t.Error("RET must dispatch to the popped return address")
	}
}

// SCASB over [M]=0x11, AL=0x11, EDI=M -> ZF=1, EDI advanced by +1.
func TestScasbMatch(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.WriteBytes(0x1000, []byte{0x11})
	it.StoreRegister(x86types.AL, it.MakeU8(0x11))
	it.StoreRegister(x86types.EDI, it.MakeU32(0x1000))

	lower.Lower(it, lower.Instruction{Mnemonic: lower.SCASB})

	if !flag(it, x86types.Zero) {
		t.Error("scasb 0x11 vs AL=0x11: want ZF=1")
	}
	if got := gpr(it, x86types.EDI); got != 0x1001 {
		t.Errorf("EDI = 0x%x, want 0x1001", got)
	}
}

// repe scasb with ECX=4 over bytes 11 11 12 11 and AL=0x11 -> terminates at
// the 0x12 byte with ECX=1.
func TestRepeScasbStopsOnMismatch(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.WriteBytes(0x2000, []byte{0x11, 0x11, 0x12, 0x11})
	it.StoreRegister(x86types.AL, it.MakeU8(0x11))
	it.StoreRegister(x86types.EDI, it.MakeU32(0x2000))
	it.StoreRegister(x86types.ECX, it.MakeU32(4))

	lower.Lower(it, lower.Instruction{Mnemonic: lower.SCASB, Prefix: lower.PrefixREP})

	if got := gpr(it, x86types.ECX); got != 1 {
		t.Errorf("ECX = %d, want 1", got)
	}
	if flag(it, x86types.Zero) {
		t.Error("loop must have stopped on the mismatching 0x12 byte, ZF should be 0")
	}
}

func TestCmovTakenAndNotTaken(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.StoreRegister(x86types.EAX, it.MakeU32(1))
	it.StoreRegister(x86types.EBX, it.MakeU32(0xDEADBEEF))
	it.StoreFlag(x86types.Zero, it.MakeTrue())

	lower.Lower(it, lower.Instruction{
		Mnemonic: lower.CMOVCC, Width: x86types.I32, Cond: flags.CondZ,
		Operands: []x86types.Operand{reg(x86types.EAX), reg(x86types.EBX)},
	})
	if got := gpr(it, x86types.EAX); got != 0xDEADBEEF {
		t.Errorf("cmovz with ZF=1: EAX = 0x%x, want 0xDEADBEEF", got)
	}

	it.StoreRegister(x86types.EAX, it.MakeU32(1))
	it.StoreFlag(x86types.Zero, it.MakeFalse())
	lower.Lower(it, lower.Instruction{
		Mnemonic: lower.CMOVCC, Width: x86types.I32, Cond: flags.CondZ,
		Operands: []x86types.Operand{reg(x86types.EAX), reg(x86types.EBX)},
	})
	if got := gpr(it, x86types.EAX); got != 1 {
		t.Errorf("cmovz with ZF=0: EAX = %d, want unchanged 1", got)
	}
}

func TestJccProducesConditionalBranch(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.StoreFlag(x86types.Zero, it.MakeTrue())

	flow := lower.Lower(it, lower.Instruction{Mnemonic: lower.JCC, Cond: flags.CondZ, Target: 0x4000})
	if flow.Kind != builder.Conditional {
		t.Fatalf("Jcc ControlFlow.Kind = %v, want Conditional", flow.Kind)
	}
	var sawJump bool
	for _, sub := range flow.Sub {
		if sub.Kind == builder.DirectJump && sub.Target == 0x4000 {
			sawJump = true
		}
	}
	if !sawJump {
		t.Error("taken arm must flatten to a DirectJump(0x4000) edge")
	}
}

func TestLeaComputesAddressWithoutMemoryAccess(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.StoreRegister(x86types.EBX, it.MakeU32(0x1000))
	// If LEA touched memory, reading an unwritten address would still
	// return 0 from Interp's sparse map, so this test only distinguishes
	// LEA from a load by checking the destination holds the address itself.
	lower.Lower(it, lower.Instruction{
		Mnemonic: lower.LEA, Width: x86types.I32,
		Operands: []x86types.Operand{reg(x86types.EAX), x86types.MemoryOperandOf(x86types.MemoryOperand{
			Base: x86types.EBX, HasBase: true, Displacement: 0x10, Size: x86types.I32, HasSize: true,
		})},
	})
	if got := gpr(it, x86types.EAX); got != 0x1010 {
		t.Errorf("EAX = 0x%x, want 0x1010", got)
	}
}
