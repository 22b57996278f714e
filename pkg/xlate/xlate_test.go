package xlate_test

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/interp"
	"github.com/oisee/x86lift/pkg/lower"
	"github.com/oisee/x86lift/pkg/x86types"
	"github.com/oisee/x86lift/pkg/xlate"
)

func TestBlockTableClaimIsIdempotent(t *testing.T) {
	bt := xlate.NewBlockTable()
	if !bt.Claim(0x1000) {
		t.Fatal("first claim of a fresh address must succeed")
	}
	if bt.Claim(0x1000) {
		t.Error("second claim of the same address must report already-claimed")
	}
	if !bt.Has(0x1000) || bt.Has(0x2000) {
		t.Error("Has must reflect exactly the claimed set")
	}
}

func TestBlockTableAddressesSorted(t *testing.T) {
	bt := xlate.NewBlockTable()
	for _, a := range []uint32{0x3000, 0x1000, 0x2000} {
		bt.Claim(a)
	}
	got := bt.Addresses()
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
		t.Errorf("Addresses() = %v, want ascending", got)
	}
	if len(got) != 3 {
		t.Fatalf("Addresses() len = %d, want 3", len(got))
	}
}

// TestAssembleBlockStopsAtTerminator checks that an instruction following a
// JMP is never lowered: AssembleBlock must return as soon as lower.Lower
// produces a non-fallthrough exit.
func TestAssembleBlockStopsAtTerminator(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	instrs := []lower.Instruction{
		{Mnemonic: lower.MOV, Width: x86types.I32, Address: 0x1000, NextAddr: 0x1006,
			Operands: []x86types.Operand{x86types.RegisterOperand(x86types.EAX), x86types.Imm32Operand(1)}},
		{Mnemonic: lower.JMP, Address: 0x1006, NextAddr: 0x100b, Target: 0x2000},
		// Never reached: if AssembleBlock kept going past the JMP, EAX would
		// end up 2 instead of 1.
		{Mnemonic: lower.MOV, Width: x86types.I32, Address: 0x100b, NextAddr: 0x1011,
			Operands: []x86types.Operand{x86types.RegisterOperand(x86types.EAX), x86types.Imm32Operand(2)}},
	}
	flow, next := xlate.AssembleBlock(it, instrs)

	if flow.Kind != builder.DirectJump || flow.Target != 0x2000 {
		t.Fatalf("flow = %+v, want DirectJump to 0x2000", flow)
	}
	if next != 0x100b {
		t.Errorf("fallthrough addr = 0x%x, want the JMP's NextAddr 0x100b", next)
	}
	if got := it.Ctx().GPRegs[x86types.EAX.FullSizeGPR()]; got != 1 {
		t.Errorf("EAX = %d, want 1 (trailing instruction must not run)", got)
	}
}

// TestAssembleBlockFallsThrough checks that a block with no terminator at
// all (every instruction a NextInstruction exit) reports Next, matching the
// implicit-fallthrough-to-whatever-follows contract.
func TestAssembleBlockFallsThrough(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	instrs := []lower.Instruction{
		{Mnemonic: lower.MOV, Width: x86types.I32, Address: 0x1000, NextAddr: 0x1006,
			Operands: []x86types.Operand{x86types.RegisterOperand(x86types.EAX), x86types.Imm32Operand(7)}},
	}
	flow, next := xlate.AssembleBlock(it, instrs)
	if flow.Kind != builder.NextInstruction {
		t.Errorf("flow.Kind = %v, want NextInstruction", flow.Kind)
	}
	if !flow.FallsThrough() {
		t.Error("a terminator-less block must report FallsThrough")
	}
	if next != 0x1006 {
		t.Errorf("fallthrough addr = 0x%x, want 0x1006", next)
	}
}

// TestDirectTargetsFromConditional exercises the Jcc shape: one
// Conditional ControlFlow whose DirectJump edge contributes a worklist
// target. With ZF set, Interp runs only the taken arm, so the Conditional
// holds just that DirectJump edge.
func TestDirectTargetsFromConditional(t *testing.T) {
	it := interp.New(&x86types.CpuContext{})
	it.StoreFlag(x86types.Zero, it.MakeTrue())

	flow := lower.Lower(it, lower.Instruction{
		Mnemonic: lower.JCC, Cond: flags.CondZ, Address: 0x1000, NextAddr: 0x1002, Target: 0x3000,
	})
	got := xlate.DirectTargets(flow)
	if len(got) != 1 || got[0] != 0x3000 {
		t.Errorf("DirectTargets(jcc) = %v, want [0x3000]", got)
	}
}

func TestDirectTargetsIndirectContributesNothing(t *testing.T) {
	got := xlate.DirectTargets(builder.Indirect())
	if len(got) != 0 {
		t.Errorf("DirectTargets(indirect) = %v, want empty", got)
	}
	got = xlate.DirectTargets(builder.Ret())
	if len(got) != 0 {
		t.Errorf("DirectTargets(ret) = %v, want empty", got)
	}
}

// fakeDecoder serves a tiny fixed program: a fallthrough-free JMP from
// 0x1000 to 0x2000, a RET at 0x2000, a JZ at 0x4000 to 0x2000 with a RET at
// its fallthrough 0x4002, and a segment-override MOV at 0x6000.
type fakeDecoder struct {
	calls map[uint32]int
}

func newFakeDecoder() *fakeDecoder { return &fakeDecoder{calls: map[uint32]int{}} }

func (d *fakeDecoder) Decode(addr uint32) ([]lower.Instruction, error) {
	d.calls[addr]++
	switch addr {
	case 0x1000:
		return []lower.Instruction{{Mnemonic: lower.JMP, Address: 0x1000, NextAddr: 0x1005, Target: 0x2000}}, nil
	case 0x2000:
		return []lower.Instruction{{Mnemonic: lower.RET, Address: 0x2000, NextAddr: 0x2001}}, nil
	case 0x4000:
		return []lower.Instruction{{Mnemonic: lower.JCC, Cond: flags.CondZ, Address: 0x4000, NextAddr: 0x4002, Target: 0x2000}}, nil
	case 0x4002:
		return []lower.Instruction{{Mnemonic: lower.RET, Address: 0x4002, NextAddr: 0x4003}}, nil
	case 0x6000:
		// A segment override the core rejects mid-lowering.
		return []lower.Instruction{{Mnemonic: lower.MOV, Width: x86types.I32, Address: 0x6000, NextAddr: 0x6006,
			Operands: []x86types.Operand{
				x86types.RegisterOperand(x86types.EAX),
				x86types.MemoryOperandOf(x86types.MemoryOperand{
					Displacement: 0x10, Size: x86types.I32, HasSize: true,
					Segment: x86types.FS, HasSegment: true,
				}),
			}}}, nil
	default:
		return nil, fmt.Errorf("fakeDecoder: no block at 0x%x", addr)
	}
}

// TestProgramLowerWalksJccFallthrough checks that both successors of a
// conditional branch end up translated: the taken target via its
// DirectJump edge and the not-taken side via the fallthrough address.
func TestProgramLowerWalksJccFallthrough(t *testing.T) {
	dec := newFakeDecoder()
	p := xlate.NewProgram("test-jcc", dec)

	if err := p.Lower(0x4000); err != nil {
		t.Fatalf("Lower: %v", err)
	}
	for _, addr := range []uint32{0x4000, 0x2000, 0x4002} {
		if !p.Table.Has(addr) {
			t.Errorf("block 0x%x not translated", addr)
		}
	}
}

func TestProgramLowerWalksReachableClosureOnce(t *testing.T) {
	dec := newFakeDecoder()
	p := xlate.NewProgram("test", dec)

	if err := p.Lower(0x1000); err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if got := p.Table.Addresses(); len(got) != 2 || got[0] != 0x1000 || got[1] != 0x2000 {
		t.Errorf("Table.Addresses() = %v, want [0x1000 0x2000]", got)
	}
	if dec.calls[0x1000] != 1 || dec.calls[0x2000] != 1 {
		t.Errorf("decode calls = %v, want exactly one per address", dec.calls)
	}
}

func TestProgramLowerConcurrentMatchesSerial(t *testing.T) {
	dec := newFakeDecoder()
	p := xlate.NewProgram("test-concurrent", dec)

	if err := p.LowerConcurrent(0x1000, 4); err != nil {
		t.Fatalf("LowerConcurrent: %v", err)
	}
	if got := p.Table.Addresses(); len(got) != 2 || got[0] != 0x1000 || got[1] != 0x2000 {
		t.Errorf("Table.Addresses() = %v, want [0x1000 0x2000]", got)
	}
	if dec.calls[0x1000] != 1 || dec.calls[0x2000] != 1 {
		t.Errorf("decode calls = %v, want exactly one per address even when racing", dec.calls)
	}
}

// TestProgramLowerReportsUnsupportedBlock: a segment override aborts the
// affected block's translation with an error naming it, rather than
// panicking out of the walk or silently skipping the block.
func TestProgramLowerReportsUnsupportedBlock(t *testing.T) {
	dec := newFakeDecoder()
	p := xlate.NewProgram("test-unsupported", dec)

	err := p.Lower(0x6000)
	if err == nil {
		t.Fatal("Lower must fail on a segment-override operand")
	}
	if !errors.Is(err, builder.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	if !strings.Contains(err.Error(), "0x00006000") {
		t.Errorf("err = %v, want the failing block's address in the message", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	bt := xlate.NewBlockTable()
	for _, a := range []uint32{0x1000, 0x2000, 0x3000} {
		bt.Claim(a)
	}

	path := t.TempDir() + "/checkpoint.gob"
	if err := xlate.SaveCheckpoint(path, bt); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}

	restored, err := xlate.LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	for _, a := range []uint32{0x1000, 0x2000, 0x3000} {
		if !restored.Has(a) {
			t.Errorf("restored table missing 0x%x", a)
		}
	}
	if restored.Claim(0x1000) {
		t.Error("restored table must already have 0x1000 claimed")
	}
}
