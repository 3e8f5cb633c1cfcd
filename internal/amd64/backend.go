// Package amd64 lowers AIVM functions to native x86-64 machine code: it
// drives internal/ssa per function, feeds the result through
// internal/regalloc, and emits golang-asm instructions (internal/asm) per
// allocated instruction, mirroring the teacher's
// internal/engine/wazevo/backend/isa/amd64 split of "one file for the ISA
// register/instruction vocabulary, one for machine lowering".
package amd64

import (
	"fmt"

	"github.com/evolvm/aivm/internal/asm"
	"github.com/evolvm/aivm/internal/decoder"
	"github.com/evolvm/aivm/internal/platform"
	"github.com/evolvm/aivm/internal/regalloc"
	"github.com/evolvm/aivm/internal/ssa"
)

// policy is fixed: AIVM targets exactly one host ISA, unlike the
// teacher's regalloc package which is parameterized per target.
var policy = regalloc.Policy{
	NumRegs:            len(allocatableRegs),
	SupportsMemOperand: supportsMemOperand,
}

// supportsMemOperand reports which ops this package lowers to a single
// x86 instruction that can address one operand directly in memory,
// letting the allocator skip an unspill for that operand (spec.md §4.6
// step 3). Multi-instruction sequences (Min/Max/Abs/Select/Reverse) and
// anything needing both operands live in registers simultaneously for a
// correctness reason (MulHigh's fixed AX:DX pair) report false.
func supportsMemOperand(op ssa.Op) bool {
	switch op {
	case ssa.OpIntAdd, ssa.OpIntSub, ssa.OpBitOr, ssa.OpBitAnd, ssa.OpBitXor:
		return true
	default:
		return false
	}
}

// Backend implements decoder.Backend, collecting one ssa.Builder per
// function (ssa.Builder already satisfies decoder.Emitter) and lowering
// all of them into a single assembled machine-code buffer at Finish.
type Backend struct {
	builders []*ssa.Builder
}

// New returns a fresh amd64 JIT Backend, ready for one Decode call.
func New() *Backend {
	return &Backend{}
}

func (be *Backend) Begin(functionCount int) {
	be.builders = make([]*ssa.Builder, functionCount)
}

func (be *Backend) BeginFunction(idx int) decoder.Emitter {
	b := ssa.NewBuilder()
	be.builders[idx] = b
	return b
}

// callFixup records a CALL instruction's Node so its jump target (the
// callee's first Node, not known until every function has been lowered)
// can be assigned once all functions are emitted.
type callFixup struct {
	node   asm.Node
	target int
}

func (be *Backend) Finish(memorySize, inputSize, outputSize uint32) decoder.Runner {
	asmFn, err := asm.NewAssembler()
	if err != nil {
		panic(fmt.Errorf("amd64: %w", err))
	}

	banks := bankSizes{memorySize: memorySize, inputSize: inputSize}
	entries := make([]asm.Node, len(be.builders))
	var fixups []callFixup
	for idx, b := range be.builders {
		fn := b.Build()
		alloc := regalloc.Allocate(fn, policy)
		entries[idx] = lowerFunction(asmFn, alloc, idx, banks, &fixups)
	}
	for _, f := range fixups {
		f.node.AssignJumpTarget(entries[f.target])
	}

	code, err := asmFn.Assemble()
	if err != nil {
		panic(fmt.Errorf("amd64: assemble: %w", err))
	}
	exec, err := platform.MmapExecutable(code)
	if err != nil {
		panic(fmt.Errorf("amd64: %w", err))
	}

	return &Runner{
		entry:      platform.NewNativeFunc(exec),
		code:       exec,
		memorySize: memorySize,
		inputSize:  inputSize,
		outputSize: outputSize,
	}
}

// Runner executes JIT-compiled native code. The mmap'd buffer is kept
// alive for the Runner's lifetime (spec.md §5's "native code buffer must
// remain live for the Runner's lifetime"); there is no Close/Release in
// decoder.Runner, so this module never unmaps it -- matching spec.md's
// scope of a single long-lived compiled program per process.
type Runner struct {
	entry                              platform.NativeFunc
	code                               []byte
	memorySize, inputSize, outputSize uint32
}

// Step zeroes the output bank in Go (simpler and no less correct than
// encoding a memset in the generated code) then calls into function 0's
// native entry point.
func (r *Runner) Step(memory []int64) error {
	total := int(r.memorySize) + int(r.inputSize) + int(r.outputSize)
	if len(memory) < total {
		return fmt.Errorf("amd64: memory has %d words, need at least %d: %w", len(memory), total, decoder.ErrShortMemory)
	}
	outputStart := int(r.memorySize) + int(r.inputSize)
	for i := outputStart; i < outputStart+int(r.outputSize); i++ {
		memory[i] = 0
	}
	r.entry(memory)
	return nil
}
