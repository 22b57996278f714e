package flags

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/x86types"
)

// Condition is an x86 condition code, shared by Jcc and CMOVcc (CMOVcc
// reuses the same 16-entry map per the Lowering component's condition
// table).
type Condition int

const (
	CondO  Condition = iota // overflow
	CondNO                  // not overflow
	CondB                   // below / carry
	CondNB                  // not below / not carry
	CondZ                   // zero / equal
	CondNZ                  // not zero / not equal
	CondBE                  // below or equal
	CondA                   // above (not below, not equal)
	CondS                   // sign
	CondNS                  // not sign
	CondP                   // parity even
	CondNP                  // parity odd
	CondL                   // less (signed)
	CondGE                  // greater or equal (signed)
	CondLE                  // less or equal (signed)
	CondG                   // greater (signed)
)

// Eval computes the BoolValue for a condition code from the current
// flags (JZ=ZF, JNZ=!ZF, JS=SF, JL=SF xor OF, JLE=ZF or (SF xor OF),
// JB=CF, JBE=CF or ZF, and so on for the remaining codes).
func Eval(b builder.Builder, cond Condition) builder.BoolValue {
	cf := func() builder.BoolValue { return b.LoadFlag(x86types.Carry) }
	zf := func() builder.BoolValue { return b.LoadFlag(x86types.Zero) }
	sf := func() builder.BoolValue { return b.LoadFlag(x86types.Sign) }
	of := func() builder.BoolValue { return b.LoadFlag(x86types.Overflow) }
	pf := func() builder.BoolValue { return b.LoadFlag(x86types.Parity) }

	switch cond {
	case CondO:
		return of()
	case CondNO:
		return b.BoolNeg(of())
	case CondB:
		return cf()
	case CondNB:
		return b.BoolNeg(cf())
	case CondZ:
		return zf()
	case CondNZ:
		return b.BoolNeg(zf())
	case CondBE:
		return b.BoolOr(cf(), zf())
	case CondA:
		return b.BoolNeg(b.BoolOr(cf(), zf()))
	case CondS:
		return sf()
	case CondNS:
		return b.BoolNeg(sf())
	case CondP:
		return pf()
	case CondNP:
		return b.BoolNeg(pf())
	case CondL:
		return b.BoolXor(sf(), of())
	case CondGE:
		return b.BoolNeg(b.BoolXor(sf(), of()))
	case CondLE:
		return b.BoolOr(zf(), b.BoolXor(sf(), of()))
	case CondG:
		return b.BoolNeg(b.BoolOr(zf(), b.BoolXor(sf(), of())))
	default:
		panic("flags: invalid Condition")
	}
}
