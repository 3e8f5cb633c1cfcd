package aivm

import (
	"errors"

	"github.com/evolvm/aivm/internal/decoder"
)

// ErrUnsupportedHost is returned by NewCompiler when the JIT back-end is
// requested on a platform the code emitter does not target. The
// interpreter back-end remains available on every platform.
var ErrUnsupportedHost = errors.New("aivm: jit backend unsupported on this GOARCH/GOOS")

// ErrInvalidFrequencyTable is returned when a custom frequency table's
// weights do not sum to exactly 1<<16.
var ErrInvalidFrequencyTable = errors.New("aivm: frequency table weights must sum to 65536")

// ErrShortMemory is the precondition failure raised by Runner.Step when the
// caller's memory slice is smaller than the sum of the declared bank sizes.
// It is an alias of internal/decoder's sentinel so both back-ends can wrap
// one definition.
var ErrShortMemory = decoder.ErrShortMemory
