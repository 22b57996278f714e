// Package interp is a concrete, eager evaluator of builder.Builder: every
// call mutates an in-memory CpuContext and a byte-addressed memory map
// immediately, rather than emitting IR. It exists to check pkg/flags and
// pkg/lower's recipes against expected hardware results in tests, running
// the very same lowering routines pkg/llvmgen compiles.
package interp

import (
	"fmt"

	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/x86types"
)

// Interp is a builder.Builder that runs immediately against ctx and mem
// instead of constructing IR.
type Interp struct {
	ctx *x86types.CpuContext
	mem map[uint32]uint8

	lastIndirectTarget uint32
	hasIndirectTarget  bool
}

// New creates an Interp over ctx, with an initially empty sparse memory.
func New(ctx *x86types.CpuContext) *Interp {
	return &Interp{ctx: ctx, mem: make(map[uint32]uint8)}
}

// Ctx returns the underlying register file, for test assertions.
func (it *Interp) Ctx() *x86types.CpuContext { return it.ctx }

// WriteBytes seeds memory at addr, for test fixtures.
func (it *Interp) WriteBytes(addr uint32, data []byte) {
	for i, v := range data {
		it.mem[addr+uint32(i)] = v
	}
}

// ReadBytes reads n bytes from addr, for test assertions.
func (it *Interp) ReadBytes(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = it.mem[addr+uint32(i)]
	}
	return out
}

type intVal struct {
	ty x86types.IntType
	v  uint64
}

func (i intVal) Size() x86types.IntType { return i.ty }

func mask(w x86types.IntType, v uint64) uint64 {
	switch w {
	case x86types.I8:
		return v & 0xFF
	case x86types.I16:
		return v & 0xFFFF
	case x86types.I32:
		return v & 0xFFFFFFFF
	default:
		return v
	}
}

func mk(w x86types.IntType, v uint64) builder.IntValue {
	return intVal{ty: w, v: mask(w, v)}
}

func asInt(v builder.IntValue) intVal {
	iv, ok := v.(intVal)
	if !ok {
		panic(fmt.Sprintf("interp: foreign IntValue %T", v))
	}
	return iv
}

type boolVal struct {
	builder.SealBoolValue
	v bool
}

func mkBool(v bool) builder.BoolValue { return boolVal{v: v} }

func asBool(v builder.BoolValue) boolVal {
	bv, ok := v.(boolVal)
	if !ok {
		panic(fmt.Sprintf("interp: foreign BoolValue %T", v))
	}
	return bv
}

// MakeInt treats bits as the exact two's-complement pattern for ty, so a
// negative literal arrives pre-extended (uint64(int64(-8))) and truncates
// to the right narrow value either way; signExtend only matters for types
// wider than the 64-bit payload, which this core does not have.
func (it *Interp) MakeInt(ty x86types.IntType, bits uint64, signExtend bool) builder.IntValue {
	return mk(ty, bits)
}

func (it *Interp) MakeU8(v uint8) builder.IntValue   { return mk(x86types.I8, uint64(v)) }
func (it *Interp) MakeU16(v uint16) builder.IntValue { return mk(x86types.I16, uint64(v)) }
func (it *Interp) MakeU32(v uint32) builder.IntValue { return mk(x86types.I32, uint64(v)) }
func (it *Interp) MakeU64(v uint64) builder.IntValue { return mk(x86types.I64, v) }
func (it *Interp) MakeTrue() builder.BoolValue       { return mkBool(true) }
func (it *Interp) MakeFalse() builder.BoolValue      { return mkBool(false) }

func (it *Interp) LoadRegister(r x86types.Register) builder.IntValue {
	a := r.Alias()
	full := it.ctx.GPRegs[a.Parent]
	shifted := full >> a.BitOffset
	return mk(a.Width, uint64(shifted))
}

func (it *Interp) StoreRegister(r x86types.Register, v builder.IntValue) {
	a := r.Alias()
	val := asInt(v).v
	if a.Width == x86types.I32 {
		it.ctx.GPRegs[a.Parent] = uint32(val)
		return
	}
	widthMask := uint32(mask(a.Width, 0xFFFFFFFFFFFFFFFF))
	cleared := it.ctx.GPRegs[a.Parent] &^ (widthMask << a.BitOffset)
	it.ctx.GPRegs[a.Parent] = cleared | (uint32(val) << a.BitOffset)
}

func (it *Interp) LoadFlag(f x86types.Flag) builder.BoolValue {
	return mkBool(it.ctx.Flags[f] != 0)
}

func (it *Interp) StoreFlag(f x86types.Flag, v builder.BoolValue) {
	if asBool(v).v {
		it.ctx.Flags[f] = 1
	} else {
		it.ctx.Flags[f] = 0
	}
}

func (it *Interp) LoadMemory(ty x86types.IntType, addr builder.IntValue) builder.IntValue {
	base := uint32(asInt(addr).v)
	n := int(ty.BitWidth() / 8)
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(it.mem[base+uint32(i)]) << (8 * i)
	}
	return mk(ty, v)
}

func (it *Interp) StoreMemory(addr builder.IntValue, v builder.IntValue) {
	base := uint32(asInt(addr).v)
	iv := asInt(v)
	n := int(iv.ty.BitWidth() / 8)
	for i := 0; i < n; i++ {
		it.mem[base+uint32(i)] = uint8(iv.v >> (8 * i))
	}
}

func binop(lhs, rhs builder.IntValue, f func(a, b uint64) uint64) builder.IntValue {
	l, r := asInt(lhs), asInt(rhs)
	if l.ty != r.ty {
		builder.Invariantf("width mismatch in binary op: %v vs %v", l.ty, r.ty)
	}
	return mk(l.ty, f(l.v, r.v))
}

func (it *Interp) Add(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a + b })
}
func (it *Interp) Sub(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a - b })
}
func (it *Interp) Mul(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a * b })
}
func (it *Interp) Xor(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a ^ b })
}
func (it *Interp) Or(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a | b })
}
func (it *Interp) And(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a & b })
}
func (it *Interp) Shl(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a << b })
}
func (it *Interp) Lshr(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a >> b })
}

func (it *Interp) Ashr(lhs, rhs builder.IntValue) builder.IntValue {
	l, r := asInt(lhs), asInt(rhs)
	if l.ty != r.ty {
		builder.Invariantf("width mismatch in binary op: %v vs %v", l.ty, r.ty)
	}
	w := l.ty.BitWidth()
	signed := signExtendTo64(l.ty, l.v)
	return mk(l.ty, uint64(signed>>r.v)&mask64(w))
}

func (it *Interp) Udiv(lhs, rhs builder.IntValue) builder.IntValue {
	return binop(lhs, rhs, func(a, b uint64) uint64 { return a / b })
}

func (it *Interp) IntNeg(v builder.IntValue) builder.IntValue {
	iv := asInt(v)
	return mk(iv.ty, uint64(-int64(iv.v)))
}

func (it *Interp) BoolNeg(v builder.BoolValue) builder.BoolValue {
	return mkBool(!asBool(v).v)
}
func (it *Interp) BoolAnd(lhs, rhs builder.BoolValue) builder.BoolValue {
	return mkBool(asBool(lhs).v && asBool(rhs).v)
}
func (it *Interp) BoolOr(lhs, rhs builder.BoolValue) builder.BoolValue {
	return mkBool(asBool(lhs).v || asBool(rhs).v)
}
func (it *Interp) BoolXor(lhs, rhs builder.BoolValue) builder.BoolValue {
	return mkBool(asBool(lhs).v != asBool(rhs).v)
}

func signExtendTo64(ty x86types.IntType, v uint64) int64 {
	switch ty {
	case x86types.I8:
		return int64(int8(v))
	case x86types.I16:
		return int64(int16(v))
	case x86types.I32:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func mask64(w uint8) uint64 {
	if w >= 64 {
		return 0xFFFFFFFFFFFFFFFF
	}
	return (uint64(1) << w) - 1
}

func (it *Interp) ICmp(cmp builder.ComparisonType, lhs, rhs builder.IntValue) builder.BoolValue {
	l, r := asInt(lhs), asInt(rhs)
	if l.ty != r.ty {
		builder.Invariantf("width mismatch in ICmp: %v vs %v", l.ty, r.ty)
	}
	sl, sr := signExtendTo64(l.ty, l.v), signExtendTo64(r.ty, r.v)
	switch cmp {
	case builder.Eq:
		return mkBool(l.v == r.v)
	case builder.Ne:
		return mkBool(l.v != r.v)
	case builder.UGt:
		return mkBool(l.v > r.v)
	case builder.UGe:
		return mkBool(l.v >= r.v)
	case builder.ULt:
		return mkBool(l.v < r.v)
	case builder.ULe:
		return mkBool(l.v <= r.v)
	case builder.SGt:
		return mkBool(sl > sr)
	case builder.SGe:
		return mkBool(sl >= sr)
	case builder.SLt:
		return mkBool(sl < sr)
	case builder.SLe:
		return mkBool(sl <= sr)
	default:
		panic("interp: invalid ComparisonType")
	}
}

func (it *Interp) Zext(v builder.IntValue, to x86types.IntType) builder.IntValue {
	iv := asInt(v)
	return mk(to, iv.v)
}

func (it *Interp) Sext(v builder.IntValue, to x86types.IntType) builder.IntValue {
	iv := asInt(v)
	return mk(to, uint64(signExtendTo64(iv.ty, iv.v)))
}

func (it *Interp) Trunc(v builder.IntValue, to x86types.IntType) builder.IntValue {
	iv := asInt(v)
	return mk(to, iv.v)
}

// IfElse evaluates cond immediately and runs exactly one of the two arms,
// matching hardware — this is the one place Interp's eager evaluation
// necessarily diverges from pkg/llvmgen's "both arms always emitted"
// construction, and exactly why both backends exist: pkg/llvmgen checks the
// IR shape compiles for every path, Interp checks the taken path's result.
// The returned value still has the contract's Conditional shape, holding
// just the taken path's exit edges.
func (it *Interp) IfElse(cond builder.BoolValue, thenFn, elseFn func(builder.Builder) builder.ControlFlow) builder.ControlFlow {
	if asBool(cond).v {
		return builder.Flatten(thenFn(it))
	}
	return builder.Flatten(elseFn(it))
}

// Loop runs body while cond holds, exactly like a native while loop — no
// divergence from pkg/llvmgen's intended semantics here, since eager
// evaluation of a bounded count loop just is the loop.
func (it *Interp) Loop(cond func(builder.Builder) builder.BoolValue, body func(builder.Builder)) {
	for asBool(cond(it)).v {
		body(it)
	}
}

// DispatchIndirect records the resolved target for test assertions; there
// is no real runtime dispatcher to hand off to in this backend.
func (it *Interp) DispatchIndirect(addr builder.IntValue) {
	it.lastIndirectTarget = uint32(asInt(addr).v)
	it.hasIndirectTarget = true
}

// LastIndirectTarget returns the most recent DispatchIndirect address, for
// test assertions on RET/indirect-JMP/CALL lowering.
func (it *Interp) LastIndirectTarget() (uint32, bool) {
	return it.lastIndirectTarget, it.hasIndirectTarget
}
