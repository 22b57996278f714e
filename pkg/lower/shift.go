package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/x86types"
)

// lowerShift handles SHL/SHR/SAR. The whole flag sequence is guarded behind
// an ifelse on the masked count being non-zero (a shift by zero leaves
// every flag untouched, per the architecture), with OF only deterministic
// for maskedCount == 1 and otherwise left alone, guarded by a nested
// ifelse.
//
// All shifting happens at I32 regardless of the operand width: the count
// masks to 0x1F, which for an 8- or 16-bit operand can exceed the width,
// where hardware keeps shifting through the zero/sign fill but an SSA
// shift of the narrow value would be undefined. Widening first (zero for
// SHL/SHR, sign for SAR) makes every emitted shift amount strictly smaller
// than the shifted value's width while reproducing the fill bits exactly.
func lowerShift(b builder.Builder, inst Instruction) {
	dst, countOp := inst.Operands[0], inst.Operands[1]
	w := dst.Size()

	a := builder.LoadOperand(b, dst)
	rawCount := builder.LoadOperand(b, countOp)
	count := b.Zext(rawCount, x86types.I32)
	maskedCount := b.And(count, b.MakeU32(0x1F))

	var kind flags.ShiftKind
	switch inst.Mnemonic {
	case SHL:
		kind = flags.ShiftLeft
	case SHR:
		kind = flags.ShiftRightLogical
	default:
		kind = flags.ShiftRightArithmetic
	}

	var wide builder.IntValue
	if kind == flags.ShiftRightArithmetic {
		wide = b.Sext(a, x86types.I32)
	} else {
		wide = b.Zext(a, x86types.I32)
	}

	nonZeroCount := b.ICmp(builder.Ne, maskedCount, b.MakeU32(0))

	b.IfElse(nonZeroCount, func(b2 builder.Builder) builder.ControlFlow {
		var wideResult builder.IntValue
		switch kind {
		case flags.ShiftLeft:
			wideResult = b2.Shl(wide, maskedCount)
		case flags.ShiftRightLogical:
			wideResult = b2.Lshr(wide, maskedCount)
		default:
			wideResult = b2.Ashr(wide, maskedCount)
		}
		result := b2.Trunc(wideResult, w)
		builder.StoreOperand(b2, dst, result)

		cfBit := flags.ShiftCarryBit(b2, kind, w, wide, maskedCount)
		b2.StoreFlag(x86types.Carry, b2.ICmp(builder.Ne, cfBit, b2.MakeU32(0)))
		flags.StoreSZP(b2, result)

		countIsOne := b2.ICmp(builder.Eq, maskedCount, b2.MakeU32(1))
		b2.IfElse(countIsOne, func(b3 builder.Builder) builder.ControlFlow {
			of := flags.ShiftOverflow(b3, kind, w, cfBit, wide, wideResult)
			b3.StoreFlag(x86types.Overflow, of)
			return builder.Next()
		}, func(b3 builder.Builder) builder.ControlFlow {
			return builder.Next()
		})

		return builder.Next()
	}, func(b2 builder.Builder) builder.ControlFlow {
		return builder.Next()
	})
}
