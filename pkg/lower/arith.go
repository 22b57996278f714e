package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/x86types"
)

// lowerBinArith handles ADD/SUB/CMP: dst (and, for CMP, only flags) gets
// the two-operand arithmetic result.
func lowerBinArith(b builder.Builder, inst Instruction) {
	dst, src := inst.Operands[0], inst.Operands[1]
	a := builder.LoadOperand(b, dst)
	v := builder.LoadOperand(b, src)
	w := dst.Size()

	switch inst.Mnemonic {
	case ADD:
		r := b.Add(a, v)
		flags.Add(b, w, a, v, r)
		builder.StoreOperand(b, dst, r)
	case SUB:
		r := b.Sub(a, v)
		flags.Sub(b, w, a, v, r)
		builder.StoreOperand(b, dst, r)
	case CMP:
		r := b.Sub(a, v)
		flags.Cmp(b, w, a, v, r)
	}
}

// lowerIncDec handles INC/DEC, which touch every flag except CF.
func lowerIncDec(b builder.Builder, inst Instruction) {
	dst := inst.Operands[0]
	a := builder.LoadOperand(b, dst)
	w := dst.Size()

	switch inst.Mnemonic {
	case INC:
		r := b.Add(a, b.MakeInt(w, 1, false))
		flags.Inc(b, w, a, r)
		builder.StoreOperand(b, dst, r)
	case DEC:
		r := b.Sub(a, b.MakeInt(w, 1, false))
		flags.Dec(b, w, a, r)
		builder.StoreOperand(b, dst, r)
	}
}

// lowerUnaryArith handles NEG (arithmetic negation, flags per flags.Neg)
// and NOT (bitwise complement, flags untouched per the x86 architecture).
func lowerUnaryArith(b builder.Builder, inst Instruction) {
	dst := inst.Operands[0]
	a := builder.LoadOperand(b, dst)
	w := dst.Size()

	switch inst.Mnemonic {
	case NEG:
		r := b.IntNeg(a)
		flags.Neg(b, w, a, r)
		builder.StoreOperand(b, dst, r)
	case NOT:
		r := b.Xor(a, allOnesFor(b, w))
		builder.StoreOperand(b, dst, r)
	}
}

func allOnesFor(b builder.Builder, w x86types.IntType) builder.IntValue {
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

// registerPairFor returns the (high, low) accumulator registers MUL/IMUL/DIV
// implicitly operate on for a given operand width (AX split as DX:AX for
// 16-bit, EDX:EAX for 32-bit; the 8-bit form packs both halves into AX and
// is handled by its caller directly).
func registerPairFor(w x86types.IntType) (high, low x86types.Register) {
	if w == x86types.I16 {
		return x86types.DX, x86types.AX
	}
	return x86types.EDX, x86types.EAX
}

// lowerMul handles the one-operand MUL/IMUL form: result = AL/AX/EAX *
// operand, widened to double size, then split back into the high:low
// register pair (AH:AL for 8-bit, DX:AX / EDX:EAX otherwise). CF and OF are
// set identically (clear iff the high half is zero for MUL, or just the
// sign extension of the low half for IMUL); SF/ZF/AF/PF are left architecturally undefined and not
// touched here.
func lowerMul(b builder.Builder, inst Instruction) {
	src := inst.Operands[0]
	w := src.Size()
	signed := inst.Mnemonic == IMUL

	if w == x86types.I8 {
		a := b.LoadRegister(x86types.AL)
		v := builder.LoadOperand(b, src)
		wide := widen(b, signed, a, x86types.I16)
		wideV := widen(b, signed, v, x86types.I16)
		r := b.Mul(wide, wideV)
		b.StoreRegister(x86types.AX, r)

		low := b.Trunc(r, x86types.I8)
		high := b.Trunc(b.Lshr(r, b.MakeInt(x86types.I16, 8, false)), x86types.I8)
		cf := flags.MulHighLowDeterministic(b, signed, x86types.I8, high, low)
		b.StoreFlag(x86types.Carry, cf)
		b.StoreFlag(x86types.Overflow, cf)
		return
	}

	highReg, lowReg := registerPairFor(w)
	a := b.LoadRegister(lowReg)
	v := builder.LoadOperand(b, src)
	double := w.DoubleSized()
	wide := widen(b, signed, a, double)
	wideV := widen(b, signed, v, double)
	r := b.Mul(wide, wideV)

	low := b.Trunc(r, w)
	high := b.Trunc(b.Lshr(r, b.MakeInt(double, uint64(w.BitWidth()), false)), w)
	b.StoreRegister(lowReg, low)
	b.StoreRegister(highReg, high)

	cf := flags.MulHighLowDeterministic(b, signed, w, high, low)
	b.StoreFlag(x86types.Carry, cf)
	b.StoreFlag(x86types.Overflow, cf)
}

func widen(b builder.Builder, signed bool, v builder.IntValue, to x86types.IntType) builder.IntValue {
	if signed {
		return b.Sext(v, to)
	}
	return b.Zext(v, to)
}

// lowerDiv handles unsigned DIV (IDIV's signed variant follows the same
// shape with Sext/Ashr/SDiv substituted; the decoder this core targets does
// not emit IDIV, so it is not separately handled — see DESIGN.md).
// Division-by-zero and quotient-overflow (#DE) are guest faults this core
// does not model; callers are expected to ensure the divisor is non-zero
// and the quotient representable.
func lowerDiv(b builder.Builder, inst Instruction) {
	src := inst.Operands[0]
	w := src.Size()

	if w == x86types.I8 {
		// The 8-bit form packs the 16-bit dividend into AX and the results
		// into AH:AL, mirroring lowerMul's 8-bit case.
		dividend := b.LoadRegister(x86types.AX)
		divisor := b.Zext(builder.LoadOperand(b, src), x86types.I16)
		quotient := b.Udiv(dividend, divisor)
		remainder := b.Sub(dividend, b.Mul(quotient, divisor))
		b.StoreRegister(x86types.AL, b.Trunc(quotient, x86types.I8))
		b.StoreRegister(x86types.AH, b.Trunc(remainder, x86types.I8))
		return
	}

	highReg, lowReg := registerPairFor(w)

	high := b.LoadRegister(highReg)
	low := b.LoadRegister(lowReg)
	double := w.DoubleSized()
	dividend := b.Or(b.Zext(low, double), b.Shl(b.Zext(high, double), b.MakeInt(double, uint64(w.BitWidth()), false)))

	divisor := b.Zext(builder.LoadOperand(b, src), double)
	quotient := b.Udiv(dividend, divisor)
	remainder := b.Sub(dividend, b.Mul(quotient, divisor))

	b.StoreRegister(lowReg, b.Trunc(quotient, w))
	b.StoreRegister(highReg, b.Trunc(remainder, w))
}
