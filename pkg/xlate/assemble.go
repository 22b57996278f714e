package xlate

import (
	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/lower"
)

// AssembleBlock lowers instrs (already decoded, straight-line, in address
// order) against b, chaining lower.Lower calls until one produces a
// non-NextInstruction exit or the instruction list is exhausted.
// Instructions after the first terminating exit are never reached and are
// not lowered, matching the real decoder's behavior of stopping at a
// block's actual terminator. The second return is the fallthrough address:
// the NextAddr of the last instruction lowered, where execution resumes if
// the returned flow still falls through (a not-taken Jcc edge, or a block
// with no terminator at all).
func AssembleBlock(b builder.Builder, instrs []lower.Instruction) (builder.ControlFlow, uint32) {
	var next uint32
	for _, inst := range instrs {
		next = inst.NextAddr
		flow := lower.Lower(b, inst)
		if flow.Kind != builder.NextInstruction {
			return flow, next
		}
	}
	return builder.Next(), next
}

// DirectTargets extracts every statically-known successor address from a
// ControlFlow value: DirectJump's Target, plus whatever DirectJump targets
// appear flattened into a Conditional's Sub list. IndirectJump/Return
// contribute nothing — their successors are resolved at runtime, outside
// this module's static worklist.
func DirectTargets(flow builder.ControlFlow) []uint32 {
	var targets []uint32
	var walk func(f builder.ControlFlow)
	walk = func(f builder.ControlFlow) {
		switch f.Kind {
		case builder.DirectJump:
			targets = append(targets, f.Target)
		case builder.ConditionalBranch:
			if f.Taken != nil {
				walk(*f.Taken)
			}
			if f.NotTaken != nil {
				walk(*f.NotTaken)
			}
		case builder.Conditional:
			for _, sub := range f.Sub {
				walk(sub)
			}
		}
	}
	walk(flow)
	return targets
}
