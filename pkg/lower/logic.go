package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
)

// lowerLogic handles AND/OR/XOR/TEST: TEST is AND without the store, exactly
// like CMP is SUB without the store.
func lowerLogic(b builder.Builder, inst Instruction) {
	dst, src := inst.Operands[0], inst.Operands[1]
	a := builder.LoadOperand(b, dst)
	v := builder.LoadOperand(b, src)

	switch inst.Mnemonic {
	case AND:
		r := b.And(a, v)
		flags.Logic(b, r)
		builder.StoreOperand(b, dst, r)
	case OR:
		r := b.Or(a, v)
		flags.Logic(b, r)
		builder.StoreOperand(b, dst, r)
	case XOR:
		r := b.Xor(a, v)
		flags.Logic(b, r)
		builder.StoreOperand(b, dst, r)
	case TEST:
		r := b.And(a, v)
		flags.Logic(b, r)
	}
}
