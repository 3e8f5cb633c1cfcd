// Package aivm is the public façade of the evolvable virtual machine
// described by spec.md: a thin layer over internal/decoder,
// internal/interpreter, and internal/amd64 that exposes exactly the
// Compiler/Runner shape spec.md §3's "Lifecycle" and §6's "External
// interfaces" call for, the same way wazero's root package is a thin
// façade over internal/wasm and its engines (NewRuntime/CompileModule).
package aivm

import (
	"fmt"
	"runtime"

	"github.com/evolvm/aivm/internal/amd64"
	"github.com/evolvm/aivm/internal/decoder"
	"github.com/evolvm/aivm/internal/interpreter"
)

// Runner is the compiled artifact exposing exactly one operation, per
// spec.md §3: "a value that exposes exactly one operation: step(memory)".
// memory must be at least Params' MemorySize+InputSize+OutputSize words
// long; Step returns ErrShortMemory otherwise (spec.md §4.8's
// precondition check). The Runner owns its produced native code or
// instruction vectors but not the memory bank.
type Runner interface {
	Step(memory []int64) error
}

// Compiler turns arbitrary []uint64 word slabs into Runners, all sharing
// one Params and Backend choice. A Compiler is not safe for concurrent
// use (spec.md §5: "single-threaded... owns reusable buffers"); build
// one Compiler per goroutine if compiling concurrently, though each
// Runner it produces may be stepped in parallel on disjoint memory.
type Compiler struct {
	backend Backend
	params  Params
}

// NewCompiler validates params' frequency table and returns a Compiler
// for the requested back-end. It returns ErrInvalidFrequencyTable if the
// table's weights don't sum to 1<<16 (spec.md §8.7), and
// ErrUnsupportedHost if backend is BackendJIT on a platform the code
// emitter doesn't target (spec.md §4.8/§7) — the interpreter remains
// available on every platform in that case.
func NewCompiler(backend Backend, params Params) (*Compiler, error) {
	if err := params.table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrequencyTable, err)
	}
	if backend == BackendJIT && !jitSupported() {
		return nil, ErrUnsupportedHost
	}
	return &Compiler{backend: backend, params: params}, nil
}

// jitSupported reports whether this binary was built for a GOARCH/GOOS
// pair internal/amd64 + internal/platform actually target. Checked
// eagerly at NewCompiler time rather than deferred to Compile, since
// spec.md §7 places "host unsupported" at "build configuration time".
func jitSupported() bool {
	return runtime.GOARCH == "amd64" && runtime.GOOS == "linux"
}

// Compile decodes code and lowers it through the Compiler's chosen
// back-end, returning a ready-to-step Runner. Compile always succeeds on
// well-formed Params (spec.md §7: "compile always succeeds"); every
// 64-bit word, including ones that look nothing like a legal
// instruction, decodes to something (internal/decoder.Decode is total).
func (c *Compiler) Compile(code []uint64) Runner {
	dp := decoder.Params{
		LowestFunctionLevel: c.params.lowestFunctionLevel,
		MemorySize:          c.params.memorySize,
		InputSize:           c.params.inputSize,
		OutputSize:          c.params.outputSize,
	}
	var backend decoder.Backend
	switch c.backend {
	case BackendJIT:
		backend = amd64.New()
	default:
		backend = interpreter.New()
	}
	return decoder.Decode(code, dp, c.params.table, backend)
}
