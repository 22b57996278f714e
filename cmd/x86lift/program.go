package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oisee/x86lift/pkg/flags"
	"github.com/oisee/x86lift/pkg/lower"
	"github.com/oisee/x86lift/pkg/x86types"
)

// operandJSON is the wire shape of one decoded Operand, the JSON analogue
// of what an external x86 decoder would hand the lowerer. Exactly one of
// Reg/Value/Mem is meaningful, selected by Kind.
type operandJSON struct {
	Kind  string     `json:"kind"`
	Reg   string     `json:"reg,omitempty"`
	Value uint64     `json:"value,omitempty"`
	Mem   *memoryJSON `json:"mem,omitempty"`
}

type memoryJSON struct {
	Base         string `json:"base,omitempty"`
	Index        string `json:"index,omitempty"`
	Scale        uint8  `json:"scale,omitempty"`
	Displacement int64  `json:"displacement,omitempty"`
	Size         string `json:"size,omitempty"`
}

type instructionJSON struct {
	Mnemonic string        `json:"mnemonic"`
	Width    string        `json:"width,omitempty"`
	Operands []operandJSON `json:"operands,omitempty"`
	Cond     string        `json:"cond,omitempty"`
	Prefix   string        `json:"prefix,omitempty"`
	Address  uint32        `json:"address"`
	NextAddr uint32        `json:"next_addr"`
	Target   uint32        `json:"target,omitempty"`
	Indirect bool          `json:"indirect,omitempty"`
}

// expectedJSON names the final GPR/flag values a `verify` run should match,
// keyed by register/flag name; only entries present are checked.
type expectedJSON struct {
	GPRegs map[string]uint32 `json:"gp_regs,omitempty"`
	Flags  map[string]bool   `json:"flags,omitempty"`
}

type programJSON struct {
	Instructions []instructionJSON `json:"instructions"`
	Expected     *expectedJSON     `json:"expected,omitempty"`
}

func loadProgram(path string) (*programJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var p programJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &p, nil
}

var registerNames = func() map[string]x86types.Register {
	m := make(map[string]x86types.Register)
	for _, r := range []x86types.Register{
		x86types.EAX, x86types.EBX, x86types.ECX, x86types.EDX,
		x86types.ESP, x86types.EBP, x86types.ESI, x86types.EDI,
		x86types.AX, x86types.BX, x86types.CX, x86types.DX,
		x86types.SP, x86types.BP, x86types.SI, x86types.DI,
		x86types.AH, x86types.BH, x86types.CH, x86types.DH,
		x86types.AL, x86types.BL, x86types.CL, x86types.DL,
	} {
		m[r.String()] = r
	}
	return m
}()

func parseRegister(name string) (x86types.Register, error) {
	r, ok := registerNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown register %q", name)
	}
	return r, nil
}

func parseWidth(name string) (x86types.IntType, error) {
	switch name {
	case "", "I32":
		return x86types.I32, nil
	case "I8":
		return x86types.I8, nil
	case "I16":
		return x86types.I16, nil
	case "I64":
		return x86types.I64, nil
	default:
		return 0, fmt.Errorf("unknown width %q", name)
	}
}

var mnemonicNames = map[string]lower.Mnemonic{
	"MOV": lower.MOV, "LEA": lower.LEA, "PUSH": lower.PUSH, "POP": lower.POP,
	"LEAVE": lower.LEAVE, "ENTER": lower.ENTER,
	"ADD": lower.ADD, "SUB": lower.SUB, "CMP": lower.CMP, "INC": lower.INC,
	"DEC": lower.DEC, "NEG": lower.NEG, "MUL": lower.MUL, "IMUL": lower.IMUL,
	"DIV": lower.DIV,
	"AND": lower.AND, "OR": lower.OR, "XOR": lower.XOR, "NOT": lower.NOT,
	"TEST": lower.TEST,
	"SHL":  lower.SHL, "SHR": lower.SHR, "SAR": lower.SAR,
	"CMOVCC": lower.CMOVCC,
	"JMP":    lower.JMP, "JCC": lower.JCC, "CALL": lower.CALL, "RET": lower.RET,
	"SCASB": lower.SCASB, "SCASW": lower.SCASW, "SCASD": lower.SCASD,
}

var condNames = map[string]flags.Condition{
	"O": flags.CondO, "NO": flags.CondNO, "B": flags.CondB, "NB": flags.CondNB,
	"Z": flags.CondZ, "NZ": flags.CondNZ, "BE": flags.CondBE, "A": flags.CondA,
	"S": flags.CondS, "NS": flags.CondNS, "P": flags.CondP, "NP": flags.CondNP,
	"L": flags.CondL, "GE": flags.CondGE, "LE": flags.CondLE, "G": flags.CondG,
}

var prefixNames = map[string]lower.Prefix{
	"": lower.PrefixNone, "NONE": lower.PrefixNone,
	"REP": lower.PrefixREP, "REPE": lower.PrefixREP, "REPZ": lower.PrefixREP,
	"REPNE": lower.PrefixREPNE, "REPNZ": lower.PrefixREPNE,
}

var flagNames = map[string]x86types.Flag{
	"CF": x86types.Carry, "PF": x86types.Parity, "AF": x86types.AuxiliaryCarry,
	"ZF": x86types.Zero, "SF": x86types.Sign, "OF": x86types.Overflow,
}

func decodeOperand(o operandJSON, width x86types.IntType) (x86types.Operand, error) {
	switch o.Kind {
	case "reg":
		r, err := parseRegister(o.Reg)
		if err != nil {
			return x86types.Operand{}, err
		}
		return x86types.RegisterOperand(r), nil
	case "imm8":
		return x86types.Imm8Operand(uint8(o.Value)), nil
	case "imm16":
		return x86types.Imm16Operand(uint16(o.Value)), nil
	case "imm32":
		return x86types.Imm32Operand(uint32(o.Value)), nil
	case "imm64":
		return x86types.Imm64Operand(o.Value), nil
	case "imm":
		// Convenience kind: pick the immediate width from the instruction's
		// declared operand width, so fixtures don't need to restate it.
		switch width {
		case x86types.I8:
			return x86types.Imm8Operand(uint8(o.Value)), nil
		case x86types.I16:
			return x86types.Imm16Operand(uint16(o.Value)), nil
		default:
			return x86types.Imm32Operand(uint32(o.Value)), nil
		}
	case "mem":
		if o.Mem == nil {
			return x86types.Operand{}, fmt.Errorf("mem operand missing \"mem\" object")
		}
		m := x86types.MemoryOperand{Displacement: o.Mem.Displacement}
		if o.Mem.Base != "" {
			r, err := parseRegister(o.Mem.Base)
			if err != nil {
				return x86types.Operand{}, err
			}
			m.Base, m.HasBase = r, true
		}
		if o.Mem.Index != "" {
			r, err := parseRegister(o.Mem.Index)
			if err != nil {
				return x86types.Operand{}, err
			}
			m.Index, m.HasIndex = r, true
			if o.Mem.Scale == 0 {
				m.Scale = 1
			} else {
				m.Scale = o.Mem.Scale
			}
		}
		size, err := parseWidth(o.Mem.Size)
		if err != nil {
			return x86types.Operand{}, err
		}
		m.Size, m.HasSize = size, true
		return x86types.MemoryOperandOf(m), nil
	default:
		return x86types.Operand{}, fmt.Errorf("unknown operand kind %q", o.Kind)
	}
}

// decodeInstructions translates the JSON program format into lower.Instruction
// values. This is a stand-in for the external x86 decoder the core assumes
// as a collaborator; it exists only so the CLI has a way to feed fixture
// programs into the lowerer.
func decodeInstructions(p *programJSON) ([]lower.Instruction, error) {
	out := make([]lower.Instruction, 0, len(p.Instructions))
	for i, ij := range p.Instructions {
		mn, ok := mnemonicNames[ij.Mnemonic]
		if !ok {
			return nil, fmt.Errorf("instruction %d: unknown mnemonic %q", i, ij.Mnemonic)
		}
		width, err := parseWidth(ij.Width)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		inst := lower.Instruction{
			Mnemonic: mn,
			Width:    width,
			Address:  ij.Address,
			NextAddr: ij.NextAddr,
			Target:   ij.Target,
			IsIndirect: ij.Indirect,
		}
		if ij.Cond != "" {
			cond, ok := condNames[ij.Cond]
			if !ok {
				return nil, fmt.Errorf("instruction %d: unknown condition %q", i, ij.Cond)
			}
			inst.Cond = cond
		}
		if prefix, ok := prefixNames[ij.Prefix]; ok {
			inst.Prefix = prefix
		} else {
			return nil, fmt.Errorf("instruction %d: unknown prefix %q", i, ij.Prefix)
		}
		for _, oj := range ij.Operands {
			op, err := decodeOperand(oj, width)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			inst.Operands = append(inst.Operands, op)
		}
		out = append(out, inst)
	}
	return out, nil
}
