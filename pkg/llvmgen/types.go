// Package llvmgen is the real SSA backend (C7): a concrete builder.Builder
// that emits github.com/llir/llvm IR instead of evaluating anything. Its
// memory model mirrors the original inkwell-based design it's grounded on
// one-for-one: CpuContext is a GEP-addressable LLVM struct passed by
// pointer, guest memory is a flat byte buffer addressed by a host base
// pointer (the same trick QEMU's TCG backend uses), and every lowered
// block becomes its own fastcc function so tail calls between blocks never
// grow the host stack.
package llvmgen

import (
	"github.com/llir/llvm/ir/types"

	"github.com/oisee/x86lift/pkg/x86types"
)

// Types holds the LLVM IR types this backend's codegen is built from,
// computed once per module.
type Types struct {
	I1, I8, I16, I32, I64 *types.IntType

	// CtxStruct mirrors x86types.CpuContext's layout: an 8-element i32
	// array for the general-purpose registers, then a FlagCount-element i8
	// array for the flags.
	CtxStruct *types.StructType
	CtxPtr    *types.PointerType
	MemPtr    *types.PointerType

	// BlockFunc is every lowered block function's signature: both CpuContext
	// and the guest memory base pointer are passed explicitly, matching the
	// calling convention every sub_%08x function shares.
	BlockFunc *types.FuncType
}

// NewTypes builds the fixed type set this backend works with. There is
// exactly one Types value per module; every LLVMBuilder instance for that
// module shares it.
func NewTypes() *Types {
	i32 := types.I32
	i8 := types.I8

	ctxStruct := types.NewStruct(
		types.NewArray(8, i32),
		types.NewArray(x86types.FlagCount, i8),
	)
	ctxPtr := types.NewPointer(ctxStruct)
	memPtr := types.NewPointer(i8)

	blockFunc := types.NewFunc(types.Void, ctxPtr, memPtr)

	return &Types{
		I1:        types.I1,
		I8:        i8,
		I16:       types.I16,
		I32:       i32,
		I64:       types.I64,
		CtxStruct: ctxStruct,
		CtxPtr:    ctxPtr,
		MemPtr:    memPtr,
		BlockFunc: blockFunc,
	}
}

func (t *Types) of(bitWidth uint8) *types.IntType {
	switch bitWidth {
	case 8:
		return t.I8
	case 16:
		return t.I16
	case 32:
		return t.I32
	default:
		return t.I64
	}
}
