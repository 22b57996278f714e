package lower

import (
	"fmt"
	"strings"

	"github.com/oisee/x86lift/pkg/x86types"
)

var mnemonicNames = map[Mnemonic]string{
	MOV: "mov", LEA: "lea", PUSH: "push", POP: "pop", LEAVE: "leave", ENTER: "enter",
	ADD: "add", SUB: "sub", CMP: "cmp", INC: "inc", DEC: "dec", NEG: "neg",
	MUL: "mul", IMUL: "imul", DIV: "div",
	AND: "and", OR: "or", XOR: "xor", NOT: "not", TEST: "test",
	SHL: "shl", SHR: "shr", SAR: "sar",
	CMOVCC: "cmovcc",
	JMP:    "jmp", JCC: "jcc", CALL: "call", RET: "ret",
	SCASB: "scasb", SCASW: "scasw", SCASD: "scasd",
}

var prefixNames = map[Prefix]string{
	PrefixNone:  "",
	PrefixREP:   "rep ",
	PrefixREPNE: "repne ",
}

func (m Mnemonic) String() string {
	if s, ok := mnemonicNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mnemonic(%d)", m)
}

// Disassemble renders inst as one line of x86 assembly syntax, the way
// pkg/inst.Disassemble renders one line of Z80 assembly: a mnemonic
// followed by its operands, with memory/immediate operands spelled out
// (there is no fixed-width placeholder to substitute into here, since x86
// operand shapes vary far more than Z80's "n"/"nn" immediates).
func Disassemble(inst Instruction) string {
	var ops []string
	for _, op := range inst.Operands {
		ops = append(ops, formatOperand(op))
	}
	line := prefixNames[inst.Prefix] + inst.Mnemonic.String()
	if len(ops) > 0 {
		line += " " + strings.Join(ops, ", ")
	}
	switch inst.Mnemonic {
	case JMP, CALL:
		if !inst.IsIndirect {
			line += fmt.Sprintf(" 0x%08x", inst.Target)
		}
	case JCC:
		line += fmt.Sprintf(" 0x%08x", inst.Target)
	}
	return line
}

func formatOperand(op x86types.Operand) string {
	switch op.Kind {
	case x86types.OperandRegister:
		return strings.ToLower(op.Reg.String())
	case x86types.OperandImmediate8:
		return fmt.Sprintf("0x%x", op.Imm8)
	case x86types.OperandImmediate16:
		return fmt.Sprintf("0x%x", op.Imm16)
	case x86types.OperandImmediate32:
		return fmt.Sprintf("0x%x", op.Imm32)
	case x86types.OperandImmediate64:
		return fmt.Sprintf("0x%x", op.Imm64)
	case x86types.OperandMemory:
		return formatMemory(op.Mem)
	default:
		return "?"
	}
}

func formatMemory(m x86types.MemoryOperand) string {
	var sb strings.Builder
	if m.HasSize {
		sb.WriteString(sizeKeyword(m.Size))
		sb.WriteString(" ptr ")
	}
	sb.WriteByte('[')
	wrote := false
	if m.HasBase {
		sb.WriteString(strings.ToLower(m.Base.String()))
		wrote = true
	}
	if m.HasIndex {
		if wrote {
			sb.WriteByte('+')
		}
		sb.WriteString(strings.ToLower(m.Index.String()))
		sb.WriteString(fmt.Sprintf("*%d", m.Scale))
		wrote = true
	}
	if m.Displacement != 0 || !wrote {
		if wrote && m.Displacement >= 0 {
			sb.WriteByte('+')
		}
		sb.WriteString(fmt.Sprintf("0x%x", m.Displacement))
	}
	sb.WriteByte(']')
	return sb.String()
}

func sizeKeyword(ty x86types.IntType) string {
	switch ty {
	case x86types.I8:
		return "byte"
	case x86types.I16:
		return "word"
	case x86types.I32:
		return "dword"
	default:
		return "qword"
	}
}
