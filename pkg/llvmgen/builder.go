package llvmgen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/x86types"
)

// LLVMBuilder is the builder.Builder realization backed by a single
// in-progress block function. Its current insertion point (block) changes
// as IfElse/Loop open new basic blocks; everything else (fn, ctxPtr,
// memPtr, mb) stays fixed for the function's lifetime.
type LLVMBuilder struct {
	mb     *ModuleBuilder
	fn     *ir.Func
	block  *ir.Block
	ctxPtr value.Value
	memPtr value.Value
}

type llvmInt struct {
	v  value.Value
	ty x86types.IntType
}

func (i llvmInt) Size() x86types.IntType { return i.ty }

type llvmBool struct {
	builder.SealBoolValue
	v value.Value
}

func wrapBool(v value.Value) builder.BoolValue { return llvmBool{v: v} }

func unwrapInt(v builder.IntValue) llvmInt {
	lv, ok := v.(llvmInt)
	if !ok {
		panic(fmt.Sprintf("llvmgen: foreign IntValue %T", v))
	}
	return lv
}

func unwrapBool(v builder.BoolValue) value.Value {
	lv, ok := v.(llvmBool)
	if !ok {
		panic(fmt.Sprintf("llvmgen: foreign BoolValue %T", v))
	}
	return lv.v
}

func (b *LLVMBuilder) llType(ty x86types.IntType) *types.IntType {
	return b.mb.Types.of(ty.BitWidth())
}

// MakeInt treats bits as the exact two's-complement pattern for ty; the
// constant wraps to ty's width on emission, so signExtend only matters for
// types wider than the 64-bit payload, which this core does not have.
func (b *LLVMBuilder) MakeInt(ty x86types.IntType, bits uint64, signExtend bool) builder.IntValue {
	c := constant.NewInt(b.llType(ty), int64(bits))
	return llvmInt{v: c, ty: ty}
}

func (b *LLVMBuilder) MakeU8(v uint8) builder.IntValue {
	return llvmInt{v: constant.NewInt(b.mb.Types.I8, int64(v)), ty: x86types.I8}
}
func (b *LLVMBuilder) MakeU16(v uint16) builder.IntValue {
	return llvmInt{v: constant.NewInt(b.mb.Types.I16, int64(v)), ty: x86types.I16}
}
func (b *LLVMBuilder) MakeU32(v uint32) builder.IntValue {
	return llvmInt{v: constant.NewInt(b.mb.Types.I32, int64(v)), ty: x86types.I32}
}
func (b *LLVMBuilder) MakeU64(v uint64) builder.IntValue {
	return llvmInt{v: constant.NewInt(b.mb.Types.I64, int64(v)), ty: x86types.I64}
}
func (b *LLVMBuilder) MakeTrue() builder.BoolValue  { return wrapBool(constant.NewInt(b.mb.Types.I1, 1)) }
func (b *LLVMBuilder) MakeFalse() builder.BoolValue { return wrapBool(constant.NewInt(b.mb.Types.I1, 0)) }

// ctxGPGep computes a pointer to GPRegs[full] within *ctxPtr, mirroring the
// original design's build_ctx_gp_gep: a 3-index GEP (deref pointer, select
// the GPRegs array field, select the register).
func (b *LLVMBuilder) ctxGPGep(full x86types.FullSizeGPR) value.Value {
	zero := constant.NewInt(types.I32, 0)
	fieldIdx := constant.NewInt(types.I32, 0)
	regIdx := constant.NewInt(types.I32, int64(full))
	return b.block.NewGetElementPtr(b.mb.Types.CtxStruct, b.ctxPtr, zero, fieldIdx, regIdx)
}

// ctxFlagGep computes a pointer to Flags[f] within *ctxPtr.
func (b *LLVMBuilder) ctxFlagGep(f x86types.Flag) value.Value {
	zero := constant.NewInt(types.I32, 0)
	fieldIdx := constant.NewInt(types.I32, 1)
	flagIdx := constant.NewInt(types.I32, int64(f))
	return b.block.NewGetElementPtr(b.mb.Types.CtxStruct, b.ctxPtr, zero, fieldIdx, flagIdx)
}

func (b *LLVMBuilder) LoadRegister(r x86types.Register) builder.IntValue {
	a := r.Alias()
	ptr := b.ctxGPGep(a.Parent)
	full := b.block.NewLoad(b.mb.Types.I32, ptr)

	if a.BitOffset == 0 && a.Width == x86types.I32 {
		return llvmInt{v: full, ty: x86types.I32}
	}
	shifted := value.Value(full)
	if a.BitOffset != 0 {
		shifted = b.block.NewLShr(full, constant.NewInt(types.I32, int64(a.BitOffset)))
	}
	trunc := b.block.NewTrunc(shifted, b.llType(a.Width))
	return llvmInt{v: trunc, ty: a.Width}
}

func (b *LLVMBuilder) StoreRegister(r x86types.Register, v builder.IntValue) {
	a := r.Alias()
	ptr := b.ctxGPGep(a.Parent)
	val := unwrapInt(v).v

	if a.BitOffset == 0 && a.Width == x86types.I32 {
		b.block.NewStore(val, ptr)
		return
	}

	widened := b.block.NewZExt(val, types.I32)
	shifted := value.Value(widened)
	if a.BitOffset != 0 {
		shifted = b.block.NewShl(widened, constant.NewInt(types.I32, int64(a.BitOffset)))
	}
	widthMask := (uint64(1)<<a.Width.BitWidth() - 1) << a.BitOffset
	maskConst := constant.NewInt(types.I32, int64(uint32(widthMask)))
	notMask := b.block.NewXor(maskConst, constant.NewInt(types.I32, -1))

	current := b.block.NewLoad(types.I32, ptr)
	cleared := b.block.NewAnd(current, notMask)
	merged := b.block.NewOr(cleared, shifted)
	b.block.NewStore(merged, ptr)
}

func (b *LLVMBuilder) LoadFlag(f x86types.Flag) builder.BoolValue {
	ptr := b.ctxFlagGep(f)
	v := b.block.NewLoad(b.mb.Types.I8, ptr)
	cmp := b.block.NewICmp(enum.IPredNE, v, constant.NewInt(b.mb.Types.I8, 0))
	return wrapBool(cmp)
}

func (b *LLVMBuilder) StoreFlag(f x86types.Flag, v builder.BoolValue) {
	ptr := b.ctxFlagGep(f)
	widened := b.block.NewZExt(unwrapBool(v), b.mb.Types.I8)
	b.block.NewStore(widened, ptr)
}

func (b *LLVMBuilder) hostPointer(addr value.Value) value.Value {
	ext := b.block.NewZExt(addr, types.I64)
	return b.block.NewGetElementPtr(types.I8, b.memPtr, ext)
}

func (b *LLVMBuilder) LoadMemory(ty x86types.IntType, addr builder.IntValue) builder.IntValue {
	hptr := b.hostPointer(unwrapInt(addr).v)
	llTy := b.llType(ty)
	casted := b.block.NewBitCast(hptr, types.NewPointer(llTy))
	v := b.block.NewLoad(llTy, casted)
	return llvmInt{v: v, ty: ty}
}

func (b *LLVMBuilder) StoreMemory(addr, v builder.IntValue) {
	hptr := b.hostPointer(unwrapInt(addr).v)
	iv := unwrapInt(v)
	casted := b.block.NewBitCast(hptr, types.NewPointer(b.llType(iv.ty)))
	b.block.NewStore(iv.v, casted)
}

func binOp(b *LLVMBuilder, lhs, rhs builder.IntValue, f func(x, y value.Value) value.Value) builder.IntValue {
	l, r := unwrapInt(lhs), unwrapInt(rhs)
	if l.ty != r.ty {
		builder.Invariantf("width mismatch in binary op: %v vs %v", l.ty, r.ty)
	}
	return llvmInt{v: f(l.v, r.v), ty: l.ty}
}

func (b *LLVMBuilder) Add(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewAdd(x, y) })
}
func (b *LLVMBuilder) Sub(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewSub(x, y) })
}
func (b *LLVMBuilder) Mul(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewMul(x, y) })
}
func (b *LLVMBuilder) Xor(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewXor(x, y) })
}
func (b *LLVMBuilder) Or(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewOr(x, y) })
}
func (b *LLVMBuilder) And(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewAnd(x, y) })
}
func (b *LLVMBuilder) Shl(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewShl(x, y) })
}
func (b *LLVMBuilder) Lshr(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewLShr(x, y) })
}
func (b *LLVMBuilder) Ashr(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewAShr(x, y) })
}
func (b *LLVMBuilder) Udiv(lhs, rhs builder.IntValue) builder.IntValue {
	return binOp(b, lhs, rhs, func(x, y value.Value) value.Value { return b.block.NewUDiv(x, y) })
}

func (b *LLVMBuilder) IntNeg(v builder.IntValue) builder.IntValue {
	iv := unwrapInt(v)
	zero := constant.NewInt(b.llType(iv.ty), 0)
	return llvmInt{v: b.block.NewSub(zero, iv.v), ty: iv.ty}
}

func (b *LLVMBuilder) BoolNeg(v builder.BoolValue) builder.BoolValue {
	xored := b.block.NewXor(unwrapBool(v), constant.NewInt(b.mb.Types.I1, 1))
	return wrapBool(xored)
}
func (b *LLVMBuilder) BoolAnd(lhs, rhs builder.BoolValue) builder.BoolValue {
	return wrapBool(b.block.NewAnd(unwrapBool(lhs), unwrapBool(rhs)))
}
func (b *LLVMBuilder) BoolOr(lhs, rhs builder.BoolValue) builder.BoolValue {
	return wrapBool(b.block.NewOr(unwrapBool(lhs), unwrapBool(rhs)))
}
func (b *LLVMBuilder) BoolXor(lhs, rhs builder.BoolValue) builder.BoolValue {
	return wrapBool(b.block.NewXor(unwrapBool(lhs), unwrapBool(rhs)))
}

var predTable = map[builder.ComparisonType]enum.IPred{
	builder.Eq:  enum.IPredEQ,
	builder.Ne:  enum.IPredNE,
	builder.UGt: enum.IPredUGT,
	builder.UGe: enum.IPredUGE,
	builder.ULt: enum.IPredULT,
	builder.ULe: enum.IPredULE,
	builder.SGt: enum.IPredSGT,
	builder.SGe: enum.IPredSGE,
	builder.SLt: enum.IPredSLT,
	builder.SLe: enum.IPredSLE,
}

func (b *LLVMBuilder) ICmp(cmp builder.ComparisonType, lhs, rhs builder.IntValue) builder.BoolValue {
	l, r := unwrapInt(lhs), unwrapInt(rhs)
	pred, ok := predTable[cmp]
	if !ok {
		panic("llvmgen: invalid ComparisonType")
	}
	return wrapBool(b.block.NewICmp(pred, l.v, r.v))
}

// Equal-width casts are identity per the builder contract; LLVM itself
// rejects a zext/sext/trunc whose source and destination types match.
func (b *LLVMBuilder) Zext(v builder.IntValue, to x86types.IntType) builder.IntValue {
	iv := unwrapInt(v)
	if iv.ty == to {
		return v
	}
	return llvmInt{v: b.block.NewZExt(iv.v, b.llType(to)), ty: to}
}
func (b *LLVMBuilder) Sext(v builder.IntValue, to x86types.IntType) builder.IntValue {
	iv := unwrapInt(v)
	if iv.ty == to {
		return v
	}
	return llvmInt{v: b.block.NewSExt(iv.v, b.llType(to)), ty: to}
}
func (b *LLVMBuilder) Trunc(v builder.IntValue, to x86types.IntType) builder.IntValue {
	iv := unwrapInt(v)
	if iv.ty == to {
		return v
	}
	return llvmInt{v: b.block.NewTrunc(iv.v, b.llType(to)), ty: to}
}

// callBlockFunc emits a fastcc, tail-marked call to target's block
// function, mirroring call_basic_block from the design this is grounded on.
func (b *LLVMBuilder) callBlockFunc(target *ir.Func, tailCall bool) {
	call := b.block.NewCall(target, b.ctxPtr, b.memPtr)
	call.CallingConv = FastCC
	if tailCall {
		call.Tail = enum.TailTail
	}
}

// handleFlow emits an arm's terminator from the ControlFlow it returned: a
// DirectJump becomes a tail call plus a void return, a NextInstruction
// branches to the merge block, and a nested Conditional's own merge path
// (the arm builder's current block, if any of its edges fall through)
// branches on to this ifelse's merge. merge is lazy so arms that all
// terminate in place never materialize an unreachable merge block.
func (b *LLVMBuilder) handleFlow(flow builder.ControlFlow, merge func() *ir.Block) {
	switch flow.Kind {
	case builder.NextInstruction:
		b.block.NewBr(merge())
	case builder.DirectJump:
		b.callBlockFunc(b.mb.BlockFunc(flow.Target), true)
		b.block.NewRet(nil)
	case builder.Return, builder.IndirectJump:
		b.block.NewRet(nil)
	default:
		// ConditionalBranch/Conditional: every edge that terminates was
		// already closed by the nested ifelse that produced it; what
		// remains open is the nested merge path this builder now sits in.
		if flow.FallsThrough() {
			b.block.NewBr(merge())
		}
	}
}

func (b *LLVMBuilder) IfElse(cond builder.BoolValue, thenFn, elseFn func(builder.Builder) builder.ControlFlow) builder.ControlFlow {
	trueBlock := b.fn.NewBlock("")
	falseBlock := b.fn.NewBlock("")

	b.block.NewCondBr(unwrapBool(cond), trueBlock, falseBlock)

	var mergeBlock *ir.Block
	merge := func() *ir.Block {
		if mergeBlock == nil {
			mergeBlock = b.fn.NewBlock("")
		}
		return mergeBlock
	}

	thenBuilder := &LLVMBuilder{mb: b.mb, fn: b.fn, block: trueBlock, ctxPtr: b.ctxPtr, memPtr: b.memPtr}
	leftFlow := thenFn(thenBuilder)
	thenBuilder.handleFlow(leftFlow, merge)

	elseBuilder := &LLVMBuilder{mb: b.mb, fn: b.fn, block: falseBlock, ctxPtr: b.ctxPtr, memPtr: b.memPtr}
	rightFlow := elseFn(elseBuilder)
	elseBuilder.handleFlow(rightFlow, merge)

	if mergeBlock != nil {
		b.block = mergeBlock
	}
	return builder.Flatten(leftFlow, rightFlow)
}

// Loop lowers a pretest while loop as three blocks: a header that
// evaluates cond and branches into the body or out to the continuation,
// a body that runs once and branches back to the header, and the
// continuation the enclosing builder resumes in.
func (b *LLVMBuilder) Loop(cond func(builder.Builder) builder.BoolValue, body func(builder.Builder)) {
	headerBlock := b.fn.NewBlock("")
	bodyBlock := b.fn.NewBlock("")
	contBlock := b.fn.NewBlock("")

	b.block.NewBr(headerBlock)

	headerBuilder := &LLVMBuilder{mb: b.mb, fn: b.fn, block: headerBlock, ctxPtr: b.ctxPtr, memPtr: b.memPtr}
	c := cond(headerBuilder)
	headerBuilder.block.NewCondBr(unwrapBool(c), bodyBlock, contBlock)

	bodyBuilder := &LLVMBuilder{mb: b.mb, fn: b.fn, block: bodyBlock, ctxPtr: b.ctxPtr, memPtr: b.memPtr}
	body(bodyBuilder)
	bodyBuilder.block.NewBr(headerBlock)

	b.block = contBlock
}

// FinishBlock terminates the block function according to the top-level
// ControlFlow that AssembleBlock (or a single Lower call) returned for it,
// with next the guest address immediately after the block's last
// instruction. A DirectJump becomes a tail call into the target block
// function followed by a void return; Return and IndirectJump exits
// (DispatchIndirect already emitted the indirect case's own tail call)
// just need the void return. Any flow that still falls through — a bare
// NextInstruction, or a Conditional carrying a not-taken Jcc edge — leaves
// the builder sitting in its merge path, which continues at next's block:
// a tail call to sub_<next> plus the return. A Conditional with no
// fallthrough edge terminated every path inside IfElse already.
func (b *LLVMBuilder) FinishBlock(flow builder.ControlFlow, next uint32) {
	switch flow.Kind {
	case builder.DirectJump:
		b.callBlockFunc(b.mb.BlockFunc(flow.Target), true)
		b.block.NewRet(nil)
	case builder.Return, builder.IndirectJump:
		b.block.NewRet(nil)
	default: // NextInstruction, Conditional, ConditionalBranch
		if flow.FallsThrough() {
			b.callBlockFunc(b.mb.BlockFunc(next), true)
			b.block.NewRet(nil)
		}
	}
}

// DispatchIndirect tail-calls the runtime block-lookup trampoline with a
// dynamically computed guest address, then returns — the block function's
// job ends at an indirect exit; resolving addr to a concrete sub_%08x and
// continuing execution there is the loader's job, not this backend's.
func (b *LLVMBuilder) DispatchIndirect(addr builder.IntValue) {
	call := b.block.NewCall(b.mb.dispatch, b.ctxPtr, b.memPtr, unwrapInt(addr).v)
	call.CallingConv = FastCC
	call.Tail = enum.TailTail
}
