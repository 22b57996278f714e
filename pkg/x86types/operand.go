package x86types

import "fmt"

// MemoryOperand addresses a guest linear address:
// (base? + index?*scale + displacement) mod 2^32.
type MemoryOperand struct {
	Base         Register
	HasBase      bool
	Index        Register
	HasIndex     bool
	Scale        uint8 // one of {1, 2, 4, 8}, meaningful only if HasIndex
	Displacement int64 // signed 32-bit value, stored widened; narrowed at use
	Size         IntType
	HasSize      bool
	Segment      SegmentRegister
	HasSegment   bool
}

// OperandKind tags the active member of Operand's union.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate8
	OperandImmediate16
	OperandImmediate32
	OperandImmediate64
	OperandMemory
	OperandFarBranch
)

// Operand is the decoded-operand union the external decoder hands to the
// lowerer. Exactly one of the typed fields is meaningful, selected by Kind.
type Operand struct {
	Kind OperandKind

	Reg Register

	Imm8  uint8
	Imm16 uint16
	Imm32 uint32
	Imm64 uint64

	Mem MemoryOperand

	FarSegment SegmentRegister
	FarOffset  uint32
}

// RegisterOperand builds a register Operand.
func RegisterOperand(r Register) Operand {
	return Operand{Kind: OperandRegister, Reg: r}
}

// Imm8Operand builds an 8-bit immediate Operand.
func Imm8Operand(v uint8) Operand { return Operand{Kind: OperandImmediate8, Imm8: v} }

// Imm16Operand builds a 16-bit immediate Operand.
func Imm16Operand(v uint16) Operand { return Operand{Kind: OperandImmediate16, Imm16: v} }

// Imm32Operand builds a 32-bit immediate Operand.
func Imm32Operand(v uint32) Operand { return Operand{Kind: OperandImmediate32, Imm32: v} }

// Imm64Operand builds a 64-bit immediate Operand.
func Imm64Operand(v uint64) Operand { return Operand{Kind: OperandImmediate64, Imm64: v} }

// MemoryOperandOf builds a memory Operand.
func MemoryOperandOf(m MemoryOperand) Operand {
	return Operand{Kind: OperandMemory, Mem: m}
}

// Size reports the operand's width. FarBranch has no representable size in
// this core (unsupported, see Non-goals) and panics.
func (o Operand) Size() IntType {
	switch o.Kind {
	case OperandRegister:
		return o.Reg.Size()
	case OperandImmediate8:
		return I8
	case OperandImmediate16:
		return I16
	case OperandImmediate32:
		return I32
	case OperandImmediate64:
		return I64
	case OperandMemory:
		if !o.Mem.HasSize {
			panic("x86types: memory operand missing mandatory size")
		}
		return o.Mem.Size
	case OperandFarBranch:
		panic("x86types: FarBranch is unsupported in the core")
	default:
		panic(fmt.Sprintf("x86types: invalid OperandKind %d", o.Kind))
	}
}
