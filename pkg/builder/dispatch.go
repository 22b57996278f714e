package builder

import (
	"github.com/oisee/x86lift/pkg/x86types"
)

// ComputeEffectiveAddress emits: start from the I32 immediate
// displacement (mod 2^32); if base is present add load_register(base); if
// index is present add load_register(index) * scale. A non-default segment
// is rejected — the core only supports flat addressing.
func ComputeEffectiveAddress(b Builder, m x86types.MemoryOperand) IntValue {
	if m.HasSegment {
		Unsupportedf("segment override %d", m.Segment)
	}

	res := b.MakeU32(uint32(int32(m.Displacement)))

	if m.HasBase {
		res = b.Add(res, b.LoadRegister(m.Base))
	}
	if m.HasIndex {
		idx := b.LoadRegister(m.Index)
		scaled := b.Mul(idx, b.MakeU32(uint32(m.Scale)))
		res = b.Add(res, scaled)
	}
	return res
}

// LoadOperand translates any decoded Operand into a Builder load.
func LoadOperand(b Builder, op x86types.Operand) IntValue {
	switch op.Kind {
	case x86types.OperandRegister:
		return b.LoadRegister(op.Reg)
	case x86types.OperandImmediate8:
		return b.MakeU8(op.Imm8)
	case x86types.OperandImmediate16:
		return b.MakeU16(op.Imm16)
	case x86types.OperandImmediate32:
		return b.MakeU32(op.Imm32)
	case x86types.OperandImmediate64:
		return b.MakeU64(op.Imm64)
	case x86types.OperandMemory:
		addr := ComputeEffectiveAddress(b, op.Mem)
		return b.LoadMemory(op.Size(), addr)
	default:
		Unsupportedf("load of operand kind %d", op.Kind)
		return nil
	}
}

// StoreOperand translates any decoded Operand into a Builder store.
func StoreOperand(b Builder, op x86types.Operand, value IntValue) {
	switch op.Kind {
	case x86types.OperandRegister:
		b.StoreRegister(op.Reg, value)
	case x86types.OperandMemory:
		addr := ComputeEffectiveAddress(b, op.Mem)
		if op.Size() != value.Size() {
			Invariantf("store width %v does not match memory operand width %v", value.Size(), op.Size())
		}
		b.StoreMemory(addr, value)
	default:
		Unsupportedf("store to operand kind %d", op.Kind)
	}
}
