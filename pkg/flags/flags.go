// Package flags holds the canonical recipes for CF/ZF/SF/OF/AF/PF (C4).
// Every recipe is expressed purely through builder.Builder primitives, so
// the same code path lowers correctly whether the active backend is the
// LLVM IR builder (pkg/llvmgen) or the concrete interpreter (pkg/interp)
// used to check these recipes against hardware semantics in tests.
package flags

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/x86types"
)

func allOnes(b builder.Builder, w x86types.IntType) builder.IntValue {
	switch w {
	case x86types.I8:
		return b.MakeInt(w, 0xFF, false)
	case x86types.I16:
		return b.MakeInt(w, 0xFFFF, false)
	case x86types.I32:
		return b.MakeInt(w, 0xFFFFFFFF, false)
	default:
		return b.MakeInt(w, 0xFFFFFFFFFFFFFFFF, false)
	}
}

// topBitValue extracts bit (W-1) of v as a 0/1 IntValue of the same width,
// so callers can combine it with other bits (AND/XOR) before converting to
// a BoolValue with a single final comparison.
func topBitValue(b builder.Builder, w x86types.IntType, v builder.IntValue) builder.IntValue {
	shifted := b.Lshr(v, b.MakeInt(w, uint64(w.BitWidth()-1), false))
	return b.And(shifted, b.MakeInt(w, 1, false))
}

func nonZero(b builder.Builder, w x86types.IntType, bit builder.IntValue) builder.BoolValue {
	return b.ICmp(builder.Ne, bit, b.MakeInt(w, 0, false))
}

func topBit(b builder.Builder, w x86types.IntType, v builder.IntValue) builder.BoolValue {
	return nonZero(b, w, topBitValue(b, w, v))
}

// Zero reports whether v equals zero.
func Zero(b builder.Builder, v builder.IntValue) builder.BoolValue {
	return b.ICmp(builder.Eq, v, b.MakeInt(v.Size(), 0, false))
}

// Sign reports the top bit of v (the SF recipe, reused standalone by
// lowering routines that need just the sign, e.g. NEG/shift formulas).
func Sign(b builder.Builder, v builder.IntValue) builder.BoolValue {
	return topBit(b, v.Size(), v)
}

// Parity computes PF: even parity of the low byte of v, via the standard
// XOR-fold bit trick (the IR has no popcount primitive, so this is the
// SSA-expressible equivalent of a precomputed parity table; the tests
// check it against a popcount for every byte value).
func Parity(b builder.Builder, v builder.IntValue) builder.BoolValue {
	w := v.Size()
	lowByte := b.And(v, b.MakeInt(w, 0xFF, false))
	x := lowByte
	for _, shift := range []uint64{4, 2, 1} {
		x = b.Xor(x, b.Lshr(x, b.MakeInt(w, shift, false)))
	}
	bit := b.And(x, b.MakeInt(w, 1, false))
	return b.ICmp(builder.Eq, bit, b.MakeInt(w, 0, false))
}

func auxCarry(b builder.Builder, w x86types.IntType, a, v, r builder.IntValue) builder.BoolValue {
	x := b.Xor(a, b.Xor(v, r))
	shifted := b.Lshr(x, b.MakeInt(w, 4, false))
	bit := b.And(shifted, b.MakeInt(w, 1, false))
	return b.ICmp(builder.Ne, bit, b.MakeInt(w, 0, false))
}

// StoreSZP stores ZF/SF/PF for r. Exported for pkg/lower/shift.go, which
// orchestrates the shift flag sequence itself (the masked-count-zero and
// count-one guards need to sit between "compute CF" and "store it").
func StoreSZP(b builder.Builder, r builder.IntValue) {
	b.StoreFlag(x86types.Zero, Zero(b, r))
	b.StoreFlag(x86types.Sign, Sign(b, r))
	b.StoreFlag(x86types.Parity, Parity(b, r))
}

// Add computes and stores CF/OF/ZF/SF/AF/PF for r = a + v at width w.
func Add(b builder.Builder, w x86types.IntType, a, v, r builder.IntValue) {
	cf := b.ICmp(builder.ULt, r, a)
	notV := b.Xor(v, allOnes(b, w))
	ofBit := b.And(b.Xor(a, notV), b.Xor(a, r))
	of := topBit(b, w, ofBit)

	b.StoreFlag(x86types.Carry, cf)
	b.StoreFlag(x86types.Overflow, of)
	b.StoreFlag(x86types.AuxiliaryCarry, auxCarry(b, w, a, v, r))
	StoreSZP(b, r)
}

// Sub computes and stores flags for r = a - v (also used by CMP, which
// calls this and discards r).
func Sub(b builder.Builder, w x86types.IntType, a, v, r builder.IntValue) {
	cf := b.ICmp(builder.ULt, a, v)
	ofBit := b.And(b.Xor(a, v), b.Xor(a, r))
	of := topBit(b, w, ofBit)

	b.StoreFlag(x86types.Carry, cf)
	b.StoreFlag(x86types.Overflow, of)
	b.StoreFlag(x86types.AuxiliaryCarry, auxCarry(b, w, a, v, r))
	StoreSZP(b, r)
}

// Cmp computes and stores flags for a CMP of a and v, without storing the
// result r anywhere (the caller still passes r, the would-be a-v, purely
// for flag computation).
func Cmp(b builder.Builder, w x86types.IntType, a, v, r builder.IntValue) {
	Sub(b, w, a, v, r)
}

// Inc computes and stores flags for INC: like Add with v=1, but CF is left
// untouched.
func Inc(b builder.Builder, w x86types.IntType, a, r builder.IntValue) {
	one := b.MakeInt(w, 1, false)
	notOne := b.Xor(one, allOnes(b, w))
	ofBit := b.And(b.Xor(a, notOne), b.Xor(a, r))
	of := topBit(b, w, ofBit)

	b.StoreFlag(x86types.Overflow, of)
	b.StoreFlag(x86types.AuxiliaryCarry, auxCarry(b, w, a, one, r))
	StoreSZP(b, r)
}

// Dec computes and stores flags for DEC: like Sub with v=1, but CF is left
// untouched.
func Dec(b builder.Builder, w x86types.IntType, a, r builder.IntValue) {
	one := b.MakeInt(w, 1, false)
	ofBit := b.And(b.Xor(a, one), b.Xor(a, r))
	of := topBit(b, w, ofBit)

	b.StoreFlag(x86types.Overflow, of)
	b.StoreFlag(x86types.AuxiliaryCarry, auxCarry(b, w, a, one, r))
	StoreSZP(b, r)
}

// Logic computes and stores flags for AND/OR/XOR/TEST: CF and OF are
// cleared, ZF/SF/PF come from the result, AF is deterministic-but-undefined
// (cleared, so undefined bits stay reproducible across runs).
func Logic(b builder.Builder, r builder.IntValue) {
	b.StoreFlag(x86types.Carry, b.MakeFalse())
	b.StoreFlag(x86types.Overflow, b.MakeFalse())
	b.StoreFlag(x86types.AuxiliaryCarry, b.MakeFalse())
	StoreSZP(b, r)
}

// Neg computes and stores flags for NEG: r = -a.
func Neg(b builder.Builder, w x86types.IntType, a, r builder.IntValue) {
	zero := b.MakeInt(w, 0, false)
	cf := b.ICmp(builder.Ne, a, zero)
	minSigned := b.MakeInt(w, uint64(1)<<(w.BitWidth()-1), false)
	of := b.ICmp(builder.Eq, a, minSigned)

	b.StoreFlag(x86types.Carry, cf)
	b.StoreFlag(x86types.Overflow, of)
	b.StoreFlag(x86types.AuxiliaryCarry, auxCarry(b, w, zero, a, r))
	StoreSZP(b, r)
}

// ShiftKind selects which of SHL/SHR/SAR's flag recipe to use.
type ShiftKind int

const (
	ShiftLeft ShiftKind = iota
	ShiftRightLogical
	ShiftRightArithmetic
)

// ShiftCarryBit computes the CF bit (as a 0/1 IntValue at I32, not yet a
// BoolValue) for a shift at logical width w. wide is the pre-shift operand
// widened to I32 (zero-extended for SHL/SHR, sign-extended for SAR) and
// wideCount the masked (0x1F) count at I32, already known non-zero.
//
// Working at I32 keeps every emitted shift amount strictly below the
// shifted value's width even when the masked count exceeds w for an 8- or
// 16-bit operand (an SSA shift is undefined at amounts >= the value
// width). The recipe shifts by (count-1) and reads off the bit that would
// fall out on the final single-bit step; the widened fill bits reproduce
// hardware's repeated-single-bit-shift behavior for counts beyond w: SHL
// and SHR run out into zeros, SAR runs into copies of the sign.
func ShiftCarryBit(b builder.Builder, kind ShiftKind, w x86types.IntType, wide, wideCount builder.IntValue) builder.IntValue {
	one := b.MakeU32(1)
	amt := b.Sub(wideCount, one)
	switch kind {
	case ShiftLeft:
		if w == x86types.I32 {
			// Bit (32-count) of the operand; count is in [1,31] here, so
			// the full width has no headroom for the shifted-up form below.
			return b.And(b.Lshr(wide, b.Sub(b.MakeU32(32), wideCount)), one)
		}
		return b.And(b.Lshr(b.Shl(wide, amt), b.MakeU32(uint32(w.BitWidth()-1))), one)
	case ShiftRightLogical:
		return b.And(b.Lshr(wide, amt), one)
	default: // ShiftRightArithmetic
		return b.And(b.Ashr(wide, amt), one)
	}
}

// ShiftOverflow computes the OF value for an unmasked count of exactly 1,
// per-kind: SHL uses CF xor top-bit(result); SHR uses top-bit(a)
// (pre-shift); SAR is always 0. cfBit, wide and wideResult all live at I32
// (cfBit straight from ShiftCarryBit, kept as a bit rather than a
// BoolValue so the SHL case can XOR before the single final comparison);
// w names the logical width whose top bit the recipes read.
func ShiftOverflow(b builder.Builder, kind ShiftKind, w x86types.IntType, cfBit, wide, wideResult builder.IntValue) builder.BoolValue {
	topOf := func(v builder.IntValue) builder.IntValue {
		return b.And(b.Lshr(v, b.MakeU32(uint32(w.BitWidth()-1))), b.MakeU32(1))
	}
	switch kind {
	case ShiftLeft:
		return nonZero(b, x86types.I32, b.Xor(cfBit, topOf(wideResult)))
	case ShiftRightLogical:
		return nonZero(b, x86types.I32, topOf(wide))
	default: // ShiftRightArithmetic
		return b.MakeFalse()
	}
}

// MulHighLowDeterministic reports whether the high half of a wide multiply
// signals overflow, per the IMUL ("high != sign-extension of low") or MUL
// ("high != 0") convention.
func MulHighLowDeterministic(b builder.Builder, signed bool, w x86types.IntType, high, low builder.IntValue) builder.BoolValue {
	if !signed {
		return b.ICmp(builder.Ne, high, b.MakeInt(w, 0, false))
	}
	expected := b.Ashr(low, b.MakeInt(w, uint64(w.BitWidth()-1), false))
	return b.ICmp(builder.Ne, high, expected)
}
