// Package builder defines the backend-agnostic IR builder abstraction (C2):
// the sole surface through which instruction semantics are expressed. Two
// concrete realizations exist in this module — pkg/llvmgen (a real SSA
// backend over github.com/llir/llvm) and pkg/interp (a concrete evaluator
// used to check lowering routines against hardware semantics in tests).
package builder

import "github.com/oisee/x86lift/pkg/x86types"

// IntValue is an opaque, backend-owned handle to an integer IR value. Once
// produced it is immutable; its identity is scope-local to the builder that
// emitted it.
type IntValue interface {
	Size() x86types.IntType
}

// BoolValue is an opaque handle to a 1-bit IR value (flag bits, comparison
// results, ifelse conditions).
type BoolValue interface {
	isBoolValue()
}

// SealBoolValue is embedded by concrete BoolValue implementations in other
// packages to satisfy the unexported isBoolValue marker method.
type SealBoolValue struct{}

func (SealBoolValue) isBoolValue() {}

// ComparisonType selects the predicate for Builder.ICmp.
type ComparisonType int

const (
	Eq ComparisonType = iota
	Ne
	UGt
	UGe
	ULt
	ULe
	SGt
	SGe
	SLt
	SLe
)

// ControlFlowKind tags the active shape of a ControlFlow value.
type ControlFlowKind int

const (
	NextInstruction ControlFlowKind = iota
	DirectJump
	IndirectJump
	ConditionalBranch
	Conditional
	Return
)

// ControlFlow summarizes an instruction's exit behavior. It is a tagged
// sum type: only the fields relevant to Kind are meaningful.
//
//   - NextInstruction: instruction falls through; no extra fields.
//   - DirectJump: Target is the absolute guest address of the callee block.
//   - IndirectJump: the target address was computed at runtime (a
//     register-indirect JMP/CALL); resolving it to a block function is an
//     external JIT-loader concern (see DESIGN.md).
//   - ConditionalBranch: Taken/NotTaken name two guest-level successors;
//     both are themselves ControlFlow values. A Jcc lowers through IfElse
//     and so returns a Conditional rather than this shape.
//   - Conditional: Sub holds a flattened list of exit edges produced by
//     composing ifelse arms (nested Conditionals are flattened one level so
//     the block assembler sees every exit).
//   - Return: the enclosing block function itself returns.
type ControlFlow struct {
	Kind ControlFlowKind

	Target uint32 // DirectJump

	Taken, NotTaken *ControlFlow // ConditionalBranch

	Sub []ControlFlow // Conditional
}

// Next builds a NextInstruction ControlFlow.
func Next() ControlFlow { return ControlFlow{Kind: NextInstruction} }

// Jump builds a DirectJump ControlFlow to the given absolute guest address.
func Jump(target uint32) ControlFlow { return ControlFlow{Kind: DirectJump, Target: target} }

// Indirect builds an IndirectJump ControlFlow.
func Indirect() ControlFlow { return ControlFlow{Kind: IndirectJump} }

// Ret builds a Return ControlFlow.
func Ret() ControlFlow { return ControlFlow{Kind: Return} }

// Branch builds a ConditionalBranch ControlFlow from its two successors.
func Branch(taken, notTaken ControlFlow) ControlFlow {
	return ControlFlow{Kind: ConditionalBranch, Taken: &taken, NotTaken: &notTaken}
}

// Flatten combines the ControlFlow values returned by ifelse arms into a
// single Conditional, flattening any nested Conditional one level so the
// block assembler sees every exit edge. An eager backend that only ever
// runs one arm passes that single arm's flow; an emitting backend passes
// both.
func Flatten(flows ...ControlFlow) ControlFlow {
	var sub []ControlFlow
	for _, f := range flows {
		if f.Kind == Conditional {
			sub = append(sub, f.Sub...)
		} else {
			sub = append(sub, f)
		}
	}
	return ControlFlow{Kind: Conditional, Sub: sub}
}

// FallsThrough reports whether any exit edge of f is a NextInstruction —
// i.e. whether the instruction can resume at the following guest address.
// The block assembler uses this to decide whether a terminating flow still
// needs the fallthrough block (a Jcc's not-taken edge) emitted and queued.
func (f ControlFlow) FallsThrough() bool {
	switch f.Kind {
	case NextInstruction:
		return true
	case ConditionalBranch:
		return (f.Taken != nil && f.Taken.FallsThrough()) ||
			(f.NotTaken != nil && f.NotTaken.FallsThrough())
	case Conditional:
		for _, sub := range f.Sub {
			if sub.FallsThrough() {
				return true
			}
		}
	}
	return false
}

// Builder is the capability set instruction lowering is expressed against.
// Implementations are free to choose virtual dispatch (as here), a tagged
// variant of backends, or compile-time parametric dispatch; this interface
// form is the idiomatic Go rendering of that choice.
type Builder interface {
	// Value factories.
	MakeInt(ty x86types.IntType, bits uint64, signExtend bool) IntValue
	MakeU8(v uint8) IntValue
	MakeU16(v uint16) IntValue
	MakeU32(v uint32) IntValue
	MakeU64(v uint64) IntValue
	MakeTrue() BoolValue
	MakeFalse() BoolValue

	// CPU-state access.
	LoadRegister(r x86types.Register) IntValue
	StoreRegister(r x86types.Register, v IntValue)
	LoadFlag(f x86types.Flag) BoolValue
	StoreFlag(f x86types.Flag, v BoolValue)

	// Memory access. addr is always I32, a guest linear address; no
	// alignment is assumed or required.
	LoadMemory(ty x86types.IntType, addr IntValue) IntValue
	StoreMemory(addr IntValue, v IntValue)

	// Integer ops. All require operands of equal width and produce that
	// width.
	Add(lhs, rhs IntValue) IntValue
	Sub(lhs, rhs IntValue) IntValue
	Mul(lhs, rhs IntValue) IntValue
	Xor(lhs, rhs IntValue) IntValue
	Or(lhs, rhs IntValue) IntValue
	And(lhs, rhs IntValue) IntValue
	Shl(lhs, rhs IntValue) IntValue
	Lshr(lhs, rhs IntValue) IntValue
	Ashr(lhs, rhs IntValue) IntValue
	Udiv(lhs, rhs IntValue) IntValue
	IntNeg(v IntValue) IntValue

	// Boolean ops and comparisons. BoolAnd/BoolOr/BoolXor round out BoolNeg
	// so condition-code composition (e.g. JLE = ZF | (SF xor OF)) never has
	// to round-trip a flag through IntValue to combine it with another flag.
	BoolNeg(v BoolValue) BoolValue
	BoolAnd(lhs, rhs BoolValue) BoolValue
	BoolOr(lhs, rhs BoolValue) BoolValue
	BoolXor(lhs, rhs BoolValue) BoolValue
	ICmp(cmp ComparisonType, lhs, rhs IntValue) BoolValue

	// Width casts. Equal source/destination widths are identity.
	Zext(v IntValue, to x86types.IntType) IntValue
	Sext(v IntValue, to x86types.IntType) IntValue
	Trunc(v IntValue, to x86types.IntType) IntValue

	// Control composition. Both arms are invoked exactly once to emit
	// their bodies; see ControlFlow's doc comment for the merge contract.
	IfElse(cond BoolValue, thenFn, elseFn func(Builder) ControlFlow) ControlFlow

	// Loop builds a counted/conditioned backward-branching loop: header
	// evaluates cond, and while true runs body then re-evaluates cond.
	// This is the one C6 primitive beyond ifelse/branch that REP-prefixed
	// string instructions need (see pkg/lower/string.go and DESIGN.md for
	// why ifelse alone cannot express a backward edge).
	Loop(cond func(Builder) BoolValue, body func(Builder))

	// DispatchIndirect tail-calls the runtime block-lookup trampoline with
	// addr (a computed guest target from RET, a register-indirect JMP/CALL,
	// or an IndirectJump exit generally). CpuContext's register file has no
	// modeled program counter, so an indirect target cannot be "returned"
	// through ControlFlow's plain data fields the way DirectJump's Target
	// can — this is the second C6 primitive beyond the literal ifelse/branch
	// list (see DESIGN.md). Callers still return an exit shape from Lower:
	// builder.Indirect() for an indirect JMP/CALL, builder.Ret() for RET.
	DispatchIndirect(addr IntValue)
}
