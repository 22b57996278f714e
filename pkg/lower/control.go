package lower

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/x86types"
)

// lowerJmp handles direct and indirect JMP. A direct JMP is pure control
// flow (no builder side effect beyond the exit edge); an indirect JMP
// dispatches through the runtime block-lookup trampoline.
func lowerJmp(b builder.Builder, inst Instruction) builder.ControlFlow {
	if inst.IsIndirect {
		addr := builder.LoadOperand(b, inst.Operands[0])
		b.DispatchIndirect(addr)
		return builder.Indirect()
	}
	return builder.Jump(inst.Target)
}

// lowerJcc evaluates inst.Cond and returns the Conditional that IfElse
// builds from a taken arm ending in a DirectJump to inst.Target and a
// not-taken arm ending in a NextInstruction fallthrough. Per the IfElse contract both arms are
// expressed as control-flow-only closures (the condition itself was
// already evaluated eagerly, so the ifelse here exists purely to let the
// backend materialize an actual conditional branch instruction rather than
// select between two ControlFlow values at the Go level).
func lowerJcc(b builder.Builder, inst Instruction) builder.ControlFlow {
	cond := flags.Eval(b, inst.Cond)
	return b.IfElse(cond, func(b2 builder.Builder) builder.ControlFlow {
		return builder.Jump(inst.Target)
	}, func(b2 builder.Builder) builder.ControlFlow {
		return builder.Next()
	})
}

// lowerCall handles direct and indirect CALL. The return address push onto
// the guest stack is this lowerer's responsibility; resuming at the callee
// and eventually returning to NextAddr is the block assembler's (pkg/xlate)
// responsibility, driven by the DirectJump/IndirectJump exit this produces.
func lowerCall(b builder.Builder, inst Instruction) builder.ControlFlow {
	esp := b.LoadRegister(x86types.ESP)
	newEsp := b.Sub(esp, b.MakeU32(4))
	b.StoreRegister(x86types.ESP, newEsp)
	b.StoreMemory(newEsp, b.MakeU32(inst.NextAddr))

	if inst.IsIndirect {
		addr := builder.LoadOperand(b, inst.Operands[0])
		b.DispatchIndirect(addr)
		return builder.Indirect()
	}
	return builder.Jump(inst.Target)
}

// lowerRet pops the return address off the guest stack and dispatches to
// it; the enclosing block function's own job is done, so this is also a
// Return from the Go call-stack's point of view once the dispatch target
// is resolved (the block-function boundary itself returns — see
// builder.ControlFlow's doc comment on Return).
func lowerRet(b builder.Builder, inst Instruction) builder.ControlFlow {
	esp := b.LoadRegister(x86types.ESP)
	target := b.LoadMemory(x86types.I32, esp)
	newEsp := b.Add(esp, b.MakeU32(4))
	b.StoreRegister(x86types.ESP, newEsp)
	b.DispatchIndirect(target)
	return builder.Ret()
}
