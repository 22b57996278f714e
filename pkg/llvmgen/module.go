package llvmgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// FastCC is the calling convention every block function and every
// block-to-block call uses, matching LLVM's numeric fastcc (8) — the same
// value the design this backend is grounded on hardcodes for exactly the
// same reason: fastcc lets the optimizer treat block-to-block tail calls as
// cheap, uniform jumps.
const FastCC = enum.CallingConvFast

// ModuleBuilder owns one LLVM module and the registry of block functions
// emitted into it so far. Block functions are created lazily and
// idempotently: the first Lower that reaches a given guest address creates
// its function; every later reference (a DirectJump target, a recursive
// call) reuses the same *ir.Func.
type ModuleBuilder struct {
	Module *ir.Module
	Types  *Types

	blocks map[uint32]*ir.Func

	// dispatch is the external runtime trampoline DispatchIndirect tail-calls
	// into: looking up a computed guest address and resolving it to a block
	// function is a JIT-loader concern this module only declares, never
	// defines.
	dispatch *ir.Func
}

// NewModuleBuilder creates an empty module with the CpuContext/guest-memory
// type set and the indirect-dispatch trampoline declared.
func NewModuleBuilder(name string) *ModuleBuilder {
	m := ir.NewModule()
	m.SourceFilename = name

	t := NewTypes()
	mb := &ModuleBuilder{Module: m, Types: t, blocks: make(map[uint32]*ir.Func)}

	dispatch := m.NewFunc("x86lift_dispatch_indirect", types.Void, ir.NewParam("ctx", t.CtxPtr), ir.NewParam("mem", t.MemPtr), ir.NewParam("target", t.I32))
	dispatch.CallingConv = FastCC
	mb.dispatch = dispatch

	return mb
}

// blockName is the naming scheme every lowered block function uses:
// sub_%08x keyed by its guest entry address.
func blockName(addr uint32) string {
	return fmt.Sprintf("sub_%08x", addr)
}

// BlockFunc returns the function for addr, creating it (declaration only —
// callers are responsible for giving it a body exactly once) the first
// time addr is seen.
func (mb *ModuleBuilder) BlockFunc(addr uint32) *ir.Func {
	if fn, ok := mb.blocks[addr]; ok {
		return fn
	}
	fn := mb.Module.NewFunc(blockName(addr), types.Void, ir.NewParam("ctx", mb.Types.CtxPtr), ir.NewParam("mem", mb.Types.MemPtr))
	fn.CallingConv = FastCC
	mb.blocks[addr] = fn
	return fn
}

// NewBuilder starts lowering a fresh block function at addr: BlockFunc's
// declaration gets its entry block and parameters bound to an LLVMBuilder
// ready to receive Lower calls.
func (mb *ModuleBuilder) NewBuilder(addr uint32) *LLVMBuilder {
	fn := mb.BlockFunc(addr)
	entry := fn.NewBlock("entry")
	return &LLVMBuilder{
		mb:     mb,
		fn:     fn,
		block:  entry,
		ctxPtr: fn.Params[0],
		memPtr: fn.Params[1],
	}
}
