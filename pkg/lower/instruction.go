// Package lower implements the per-instruction-family lowering routines
// (the mapping from a single decoded x86 instruction to builder.Builder
// calls, producing its side effects and its builder.ControlFlow exit).
// Every routine here is backend-agnostic: it is exercised against both
// pkg/interp (for hardware-equivalence testing) and pkg/llvmgen (for real
// codegen) without modification, exactly like pkg/flags.
package lower

import (
	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/x86types"
)

// Mnemonic identifies an instruction family. Operand count/kind validity
// for a given Mnemonic is the decoder's responsibility, not Instruction's;
// Lower panics if it is handed a shape it does not recognize.
type Mnemonic int

const (
	MOV Mnemonic = iota
	LEA
	PUSH
	POP
	LEAVE
	ENTER

	ADD
	SUB
	CMP
	INC
	DEC
	NEG
	MUL
	IMUL
	DIV

	AND
	OR
	XOR
	NOT
	TEST

	SHL
	SHR
	SAR

	CMOVCC

	JMP
	JCC
	CALL
	RET

	SCASB
	SCASW
	SCASD
)

// Prefix tags a REP-family prefix on string instructions. Non-string
// instructions always carry PrefixNone.
type Prefix int

const (
	PrefixNone Prefix = iota
	PrefixREP         // REP/REPE/REPZ: loop while ECX != 0 AND ZF == 1 (on SCAS, REP is REPE)
	PrefixREPNE       // REPNE/REPNZ: loop while ECX != 0 AND ZF == 0
)

// Instruction is the decoded input to Lower: one machine instruction with
// its operands and metadata, already disassembled by an external decoder.
// Address/NextAddr are absolute guest addresses; NextAddr is the fallthrough
// address used for NextInstruction-shaped control flow and for computing
// relative branch targets that the decoder has already resolved into
// Target (decoders differ on whether they pre-resolve branch
// displacements; this core assumes they do, matching the literal test
// vectors in the testable-properties section, which give absolute jump
// targets).
type Instruction struct {
	Mnemonic   Mnemonic
	Operands   []x86types.Operand
	Cond       flags.Condition // meaningful for JCC/CMOVCC
	Prefix     Prefix          // meaningful for SCASB/SCASW/SCASD
	Width      x86types.IntType
	Address    uint32
	NextAddr   uint32
	Target     uint32 // meaningful for JMP/JCC/CALL direct targets
	IsIndirect bool   // meaningful for JMP/CALL: operand carries a runtime target
}
