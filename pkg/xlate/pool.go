package xlate

import (
	"runtime"

	"github.com/oisee/x86lift/pkg/lower"
)

// Decoder turns one guest address into its straight-line instruction
// sequence up to and including its terminator. Decoding (disassembly) is
// outside this module's scope — it is handed in so AssembleBlock never
// needs to know the wire format.
type Decoder interface {
	Decode(addr uint32) ([]lower.Instruction, error)
}

type decodeResult struct {
	addr   uint32
	instrs []lower.Instruction
	err    error
}

// LowerConcurrent lowers the reachable closure of entry, decoding blocks
// concurrently (decoding is the CPU-bound, embarrassingly parallel part)
// while emitting each block's IR serially on the calling goroutine, since
// ModuleBuilder's underlying IR module is not safe for concurrent
// mutation. numWorkers <= 0 defaults to runtime.NumCPU().
func (p *Program) LowerConcurrent(entry uint32, numWorkers int) error {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	sem := make(chan struct{}, numWorkers)
	results := make(chan decodeResult)
	pending := 0

	spawn := func(addr uint32) {
		if !p.Table.Claim(addr) {
			return
		}
		pending++
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			instrs, err := p.Decoder.Decode(addr)
			results <- decodeResult{addr: addr, instrs: instrs, err: err}
		}()
	}

	spawn(entry)

	var firstErr error
	for pending > 0 {
		r := <-results
		pending--
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}

		flow, next, err := p.lowerOne(r.addr, r.instrs)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, target := range DirectTargets(flow) {
			spawn(target)
		}
		if flow.FallsThrough() {
			spawn(next)
		}
	}

	return firstErr
}
