package xlate

import (
	"fmt"

	"github.com/oisee/x86lift/pkg/builder"
	"github.com/oisee/x86lift/pkg/llvmgen"
	"github.com/oisee/x86lift/pkg/lower"
)

// Program drives block-function emission for a whole translation unit: a
// module builder to emit into, the registry of addresses already turned
// into functions, and the decoder providing instruction streams.
type Program struct {
	MB      *llvmgen.ModuleBuilder
	Table   *BlockTable
	Decoder Decoder
}

// NewProgram creates a Program with a fresh module and block table.
func NewProgram(moduleName string, dec Decoder) *Program {
	return &Program{
		MB:      llvmgen.NewModuleBuilder(moduleName),
		Table:   NewBlockTable(),
		Decoder: dec,
	}
}

// Lower walks the reachable closure of entry by direct-jump/call edges,
// emitting one block function per newly discovered address. It is the
// single-goroutine counterpart to LowerConcurrent; prefer it for small
// translation units or when Decoder isn't safe for concurrent use.
func (p *Program) Lower(entry uint32) error {
	worklist := []uint32{entry}
	for len(worklist) > 0 {
		addr := worklist[0]
		worklist = worklist[1:]

		if !p.Table.Claim(addr) {
			continue
		}

		instrs, err := p.Decoder.Decode(addr)
		if err != nil {
			return err
		}

		flow, next, err := p.lowerOne(addr, instrs)
		if err != nil {
			return err
		}
		worklist = append(worklist, DirectTargets(flow)...)
		if flow.FallsThrough() {
			worklist = append(worklist, next)
		}
	}
	return nil
}

// lowerOne emits addr's block function, converting an ErrUnsupported or
// ErrInvariant panic raised mid-lowering into a returned error naming the
// block: translation is all-or-nothing per block, and an untranslatable
// block aborts the walk rather than being silently skipped.
func (p *Program) lowerOne(addr uint32, instrs []lower.Instruction) (flow builder.ControlFlow, next uint32, err error) {
	defer func() {
		builder.RecoverLowering(recover(), &err)
		if err != nil {
			err = fmt.Errorf("lowering block 0x%08x: %w", addr, err)
		}
	}()
	b := p.MB.NewBuilder(addr)
	flow, next = AssembleBlock(b, instrs)
	b.FinishBlock(flow, next)
	return flow, next, nil
}
