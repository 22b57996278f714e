package llvmgen_test

import (
	"strings"
	"testing"

	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/llvmgen"
	"github.com/oisee/x86lift/pkg/lower"
	"github.com/oisee/x86lift/pkg/x86types"
	"github.com/oisee/x86lift/pkg/xlate"
)

// These are smoke tests: pkg/flags and pkg/lower's correctness is checked
// against pkg/interp instead, since only the interpreter can report back a
// concrete register/flag value to assert against. What's worth checking
// here is that the exact same lowering routines, run against the real LLVM
// builder, produce well-formed IR without panicking — i.e. that
// pkg/builder's abstraction actually holds across both realizations.

// TestBlockFuncIdempotentPerAddress: a second request for the same guest
// address must hand back the very same function, not a fresh declaration.
func TestBlockFuncIdempotentPerAddress(t *testing.T) {
	mb := llvmgen.NewModuleBuilder("smoke-idempotent")
	first := mb.BlockFunc(0x5000)
	second := mb.BlockFunc(0x5000)
	if first != second {
		t.Error("BlockFunc must return the same *ir.Func for a repeated address")
	}
	if strings.Count(mb.Module.String(), "sub_00005000") != 1 {
		t.Error("a repeated address must not declare a second function")
	}
}

func TestArithmeticLowersToWellFormedIR(t *testing.T) {
	mb := llvmgen.NewModuleBuilder("smoke-arith")
	b := mb.NewBuilder(0x1000)

	flow, next := xlate.AssembleBlock(b, []lower.Instruction{
		{Mnemonic: lower.MOV, Width: x86types.I32, Address: 0x1000, NextAddr: 0x1005,
			Operands: []x86types.Operand{x86types.RegisterOperand(x86types.EAX), x86types.Imm32Operand(1)}},
		{Mnemonic: lower.SUB, Width: x86types.I32, Address: 0x1005, NextAddr: 0x100b,
			Operands: []x86types.Operand{x86types.RegisterOperand(x86types.EAX), x86types.Imm32Operand(2)}},
	})
	b.FinishBlock(flow, next)

	ir := mb.Module.String()
	if !strings.Contains(ir, "sub_00001000") {
		t.Error("module text must contain the entry block function")
	}
	if !strings.Contains(ir, "fastcc") {
		t.Error("block functions must use the fastcc calling convention")
	}
}

func TestConditionalBranchLowersToWellFormedIR(t *testing.T) {
	mb := llvmgen.NewModuleBuilder("smoke-jcc")
	b := mb.NewBuilder(0x2000)

	flow := lower.Lower(b, lower.Instruction{
		Mnemonic: lower.JCC, Cond: flags.CondZ, Address: 0x2000, NextAddr: 0x2002, Target: 0x3000,
	})
	b.FinishBlock(flow, 0x2002)

	ir := mb.Module.String()
	if !strings.Contains(ir, "sub_00002000") || !strings.Contains(ir, "sub_00003000") {
		t.Error("module text must declare both the entry block and the taken-branch target block")
	}
	if !strings.Contains(ir, "sub_00002002") {
		t.Error("the not-taken edge must continue at the fallthrough block function")
	}
	if !strings.Contains(ir, "br i1") {
		t.Error("a Jcc lowering must produce a conditional branch instruction")
	}
}

// TestRepStringLoopLowersToWellFormedIR exercises Builder.Loop through a
// REPE SCASB, the one instruction family that actually needs it (every
// other family only needs IfElse).
func TestRepStringLoopLowersToWellFormedIR(t *testing.T) {
	mb := llvmgen.NewModuleBuilder("smoke-rep-scasb")
	b := mb.NewBuilder(0x4000)

	flow := lower.Lower(b, lower.Instruction{
		Mnemonic: lower.SCASB, Prefix: lower.PrefixREP, Address: 0x4000, NextAddr: 0x4001,
	})
	b.FinishBlock(flow, 0x4001)

	ir := mb.Module.String()
	if !strings.Contains(ir, "sub_00004000") {
		t.Error("module text must contain the entry block function")
	}
	// A Loop lowers to header/body/continuation blocks: the header's
	// conditional branch plus the body's unconditional branch back to it
	// are the structural signature of a back edge, which IfElse alone
	// never produces.
	if strings.Count(ir, "br i1") < 1 {
		t.Error("a REP-prefixed string instruction must lower through at least one conditional branch (the loop header)")
	}
	if strings.Count(ir, "br label") < 2 {
		t.Error("a REP-prefixed string instruction's loop must include the body's back edge to its header")
	}
}
