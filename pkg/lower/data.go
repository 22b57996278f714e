package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/x86types"
)

func lowerMov(b builder.Builder, inst Instruction) {
	dst, src := inst.Operands[0], inst.Operands[1]
	v := builder.LoadOperand(b, src)
	builder.StoreOperand(b, dst, v)
}

// lowerLea stores the operand's effective address, never its contents; the
// source operand must be memory.
func lowerLea(b builder.Builder, inst Instruction) {
	dst, src := inst.Operands[0], inst.Operands[1]
	addr := builder.ComputeEffectiveAddress(b, src.Mem)
	builder.StoreOperand(b, dst, addr)
}

func stackWidth(inst Instruction) x86types.IntType {
	if inst.Width == x86types.I16 {
		return x86types.I16
	}
	return x86types.I32
}

func lowerPush(b builder.Builder, inst Instruction) {
	w := stackWidth(inst)
	v := builder.LoadOperand(b, inst.Operands[0])
	if v.Size() != w {
		// A narrow immediate (push imm8) goes onto the stack sign-extended
		// to the operation width.
		v = b.Sext(v, w)
	}
	esp := b.LoadRegister(x86types.ESP)
	newEsp := b.Sub(esp, b.MakeU32(uint32(w.BitWidth())/8))
	b.StoreRegister(x86types.ESP, newEsp)
	b.StoreMemory(newEsp, v)
}

func lowerPop(b builder.Builder, inst Instruction) {
	w := stackWidth(inst)
	esp := b.LoadRegister(x86types.ESP)
	v := b.LoadMemory(w, esp)
	newEsp := b.Add(esp, b.MakeU32(uint32(w.BitWidth())/8))
	b.StoreRegister(x86types.ESP, newEsp)
	builder.StoreOperand(b, inst.Operands[0], v)
}

// lowerLeave: ESP = EBP, then pop EBP.
func lowerLeave(b builder.Builder, inst Instruction) {
	ebp := b.LoadRegister(x86types.EBP)
	v := b.LoadMemory(x86types.I32, ebp)
	b.StoreRegister(x86types.ESP, b.Add(ebp, b.MakeU32(4)))
	b.StoreRegister(x86types.EBP, v)
}

// lowerEnter: push EBP, EBP = ESP, ESP -= allocSize. Nested-frame display
// copying (nesting level > 0) is out of scope; the decoder is expected to
// hand this lowerer only nesting-level-0 ENTER instructions.
func lowerEnter(b builder.Builder, inst Instruction) {
	allocSize := inst.Operands[0].Imm16

	ebp := b.LoadRegister(x86types.EBP)
	esp := b.LoadRegister(x86types.ESP)
	newEsp := b.Sub(esp, b.MakeU32(4))
	b.StoreMemory(newEsp, ebp)
	b.StoreRegister(x86types.EBP, newEsp)
	b.StoreRegister(x86types.ESP, b.Sub(newEsp, b.MakeU32(uint32(allocSize))))
}
