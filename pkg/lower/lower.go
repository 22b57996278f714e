package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
)

// Lower emits inst's semantics against b and reports its exit edge. The
// returned builder.ControlFlow is NextInstruction for every instruction
// that merely falls through; callers assembling a block function are
// expected to chain successive Lower calls until a non-NextInstruction
// edge (or end of the decoded block) is reached.
func Lower(b builder.Builder, inst Instruction) builder.ControlFlow {
	switch inst.Mnemonic {
	case MOV:
		lowerMov(b, inst)
		return builder.Next()
	case LEA:
		lowerLea(b, inst)
		return builder.Next()
	case PUSH:
		lowerPush(b, inst)
		return builder.Next()
	case POP:
		lowerPop(b, inst)
		return builder.Next()
	case LEAVE:
		lowerLeave(b, inst)
		return builder.Next()
	case ENTER:
		lowerEnter(b, inst)
		return builder.Next()

	case ADD, SUB, CMP:
		lowerBinArith(b, inst)
		return builder.Next()
	case AND, OR, XOR, TEST:
		lowerLogic(b, inst)
		return builder.Next()
	case INC, DEC:
		lowerIncDec(b, inst)
		return builder.Next()
	case NEG, NOT:
		lowerUnaryArith(b, inst)
		return builder.Next()
	case MUL, IMUL:
		lowerMul(b, inst)
		return builder.Next()
	case DIV:
		lowerDiv(b, inst)
		return builder.Next()

	case SHL, SHR, SAR:
		lowerShift(b, inst)
		return builder.Next()

	case CMOVCC:
		lowerCmov(b, inst)
		return builder.Next()

	case JMP:
		return lowerJmp(b, inst)
	case JCC:
		return lowerJcc(b, inst)
	case CALL:
		return lowerCall(b, inst)
	case RET:
		return lowerRet(b, inst)

	case SCASB, SCASW, SCASD:
		return lowerScas(b, inst)

	default:
		builder.Unsupportedf("mnemonic %s", inst.Mnemonic)
		return builder.ControlFlow{}
	}
}
