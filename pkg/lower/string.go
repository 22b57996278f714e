package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/x86types"
)

func scasWidth(m Mnemonic) x86types.IntType {
	switch m {
	case SCASB:
		return x86types.I8
	case SCASW:
		return x86types.I16
	default:
		return x86types.I32
	}
}

func scasAccumulator(w x86types.IntType) x86types.Register {
	switch w {
	case x86types.I8:
		return x86types.AL
	case x86types.I16:
		return x86types.AX
	default:
		return x86types.EAX
	}
}

// scasStep compares the accumulator against [EDI], sets flags like CMP, and
// advances EDI by the operand width (the direction flag is not modeled in
// CpuContext, so EDI always advances forward — see DESIGN.md).
func scasStep(b builder.Builder, w x86types.IntType, accReg x86types.Register) {
	edi := b.LoadRegister(x86types.EDI)
	mem := b.LoadMemory(w, edi)
	acc := b.LoadRegister(accReg)
	r := b.Sub(acc, mem)
	flags.Cmp(b, w, acc, mem, r)
	b.StoreRegister(x86types.EDI, b.Add(edi, b.MakeU32(uint32(w.BitWidth())/8)))
}

func decrementECX(b builder.Builder) {
	ecx := b.LoadRegister(x86types.ECX)
	b.StoreRegister(x86types.ECX, b.Sub(ecx, b.MakeU32(1)))
}

// repContinues reports the architectural continuation test for a REP
// family's second and later iterations: ZF == 1 for REPE/REPZ, ZF == 0 for
// REPNE/REPNZ.
func repContinues(b builder.Builder, prefix Prefix) builder.BoolValue {
	zf := b.LoadFlag(x86types.Zero)
	if prefix == PrefixREP {
		return zf
	}
	return b.BoolNeg(zf)
}

// lowerScas handles SCASB/SCASW/SCASD, bare or REP/REPE/REPNE-prefixed.
// The REP forms are rewritten as one manually-unrolled iteration (entered
// only if ECX != 0) followed by a pretest Loop whose condition re-reads
// ECX and ZF after every iteration — equivalent to the architecture's
// do-while-shaped "repeat while ECX != 0 and zf-condition holds", expressed
// atop the pretest Loop primitive builder.Builder exposes.
func lowerScas(b builder.Builder, inst Instruction) builder.ControlFlow {
	w := scasWidth(inst.Mnemonic)
	accReg := scasAccumulator(w)

	if inst.Prefix == PrefixNone {
		scasStep(b, w, accReg)
		return builder.Next()
	}

	ecx0 := b.LoadRegister(x86types.ECX)
	hasCount := b.ICmp(builder.Ne, ecx0, b.MakeU32(0))

	b.IfElse(hasCount, func(b2 builder.Builder) builder.ControlFlow {
		scasStep(b2, w, accReg)
		decrementECX(b2)

		b2.Loop(func(b3 builder.Builder) builder.BoolValue {
			ecx := b3.LoadRegister(x86types.ECX)
			ecxNonZero := b3.ICmp(builder.Ne, ecx, b3.MakeU32(0))
			return b3.BoolAnd(ecxNonZero, repContinues(b3, inst.Prefix))
		}, func(b3 builder.Builder) {
			scasStep(b3, w, accReg)
			decrementECX(b3)
		})

		return builder.Next()
	}, func(b2 builder.Builder) builder.ControlFlow {
		return builder.Next()
	})

	// However many iterations ran, a REP string instruction itself always
	// resumes at the following instruction.
	return builder.Next()
}
