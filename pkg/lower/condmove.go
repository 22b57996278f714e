package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
)

// lowerCmov evaluates inst.Cond and conditionally stores the source into
// the destination register, via ifelse (both arms fall through, so this
// never changes the enclosing instruction's control flow — only CMOVcc's
// own data effect is conditional).
func lowerCmov(b builder.Builder, inst Instruction) {
	dst, src := inst.Operands[0], inst.Operands[1]
	cond := flags.Eval(b, inst.Cond)

	b.IfElse(cond, func(b2 builder.Builder) builder.ControlFlow {
		v := builder.LoadOperand(b2, src)
		builder.StoreOperand(b2, dst, v)
		return builder.Next()
	}, func(b2 builder.Builder) builder.ControlFlow {
		return builder.Next()
	})
}
