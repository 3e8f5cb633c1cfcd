package aivm

import "github.com/evolvm/aivm/internal/freqtable"

// Backend selects which compilation back-end a Compiler uses.
type Backend byte

const (
	// BackendInterpreter is always available: a tree-walking reference
	// implementation of spec.md §4.4's arithmetic semantics.
	BackendInterpreter Backend = iota
	// BackendJIT compiles to native x86-64 machine code (spec.md §4.5-4.7).
	// It is only available when GOARCH/GOOS is amd64/linux; NewCompiler
	// returns ErrUnsupportedHost otherwise.
	BackendJIT
)

// Params bundles every compile-time parameter spec.md §6 names: the
// call-graph layering parameter, the three bank sizes, and an optional
// custom frequency table. The zero value is not valid; build one with
// NewParams.
type Params struct {
	lowestFunctionLevel uint32
	memorySize          uint32
	inputSize           uint32
	outputSize          uint32
	table               freqtable.Table
}

// ParamOption mutates a Params under construction, mirroring the
// teacher's functional-option style over RuntimeConfig
// (config.go's With* methods returning a modified clone).
type ParamOption func(*Params)

// NewParams returns Params for the given bank sizes with spec.md's
// shipped defaults (LowestFunctionLevel 1, the default frequency table),
// as modified by opts.
func NewParams(memorySize, inputSize, outputSize uint32, opts ...ParamOption) Params {
	p := Params{
		lowestFunctionLevel: 1,
		memorySize:          memorySize,
		inputSize:           inputSize,
		outputSize:          outputSize,
		table:               freqtable.Default,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithLowestFunctionLevel overrides the call-graph layering parameter L
// (spec.md §3's "Call graph"). Must be < math.MaxUint32; violating this
// is only detected when Decode actually runs (it panics, per spec.md
// §4.2's documented precondition).
func WithLowestFunctionLevel(l uint32) ParamOption {
	return func(p *Params) { p.lowestFunctionLevel = l }
}

// WithFrequencyTable overrides the default opcode frequency table
// (spec.md §4.1, §6's "Optional custom frequency table").
func WithFrequencyTable(t freqtable.Table) ParamOption {
	return func(p *Params) { p.table = t }
}
