package aivm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evolvm/aivm"
	"github.com/evolvm/aivm/internal/freqtable"
)

// word mirrors internal/decoder's bit layout for building literal test
// programs: opcode selector in bits 0-16, register fields above it.
func word(selector uint32, a, b, cImm uint64, d uint8) uint64 {
	return uint64(selector) | uint64(a&0x3f)<<16 | uint64(b&0x3f)<<22 | (cImm&0xffffffff)<<32 | uint64(d&0x3f)<<46
}

func selectorFor(op freqtable.Opcode) uint32 {
	lo, hi := uint32(0), uint32(0)
	for o := freqtable.Opcode(0); o < op; o++ {
		lo += uint32(freqtable.Default[o])
	}
	hi = lo + uint32(freqtable.Default[op])
	return (lo + hi) / 2
}

func TestNewCompilerRejectsBadFrequencyTable(t *testing.T) {
	bad := freqtable.Default
	bad[freqtable.EndFunc]++
	params := aivm.NewParams(8, 0, 0, aivm.WithFrequencyTable(bad))

	_, err := aivm.NewCompiler(aivm.BackendInterpreter, params)
	require.ErrorIs(t, err, aivm.ErrInvalidFrequencyTable)
}

func TestNewCompilerAcceptsDefaultTable(t *testing.T) {
	params := aivm.NewParams(8, 0, 0)
	c, err := aivm.NewCompiler(aivm.BackendInterpreter, params)
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestCompileAndStepMemRoundTrip(t *testing.T) {
	// mem_load r0, memory[0] ; mem_store memory[1], r0: one word copied
	// through a register via the public Compile/Step path.
	code := []uint64{
		word(selectorFor(freqtable.MemLoad), 0, 0, 0, 0),
		word(selectorFor(freqtable.MemStore), 0, 0, 1, 0),
		word(selectorFor(freqtable.EndFunc), 0, 0, 0, 0),
	}

	params := aivm.NewParams(4, 0, 0)
	c, err := aivm.NewCompiler(aivm.BackendInterpreter, params)
	require.NoError(t, err)

	runner := c.Compile(code)
	mem := []int64{5, 0, 0, 0}
	require.NoError(t, runner.Step(mem))
	require.Equal(t, int64(5), mem[1])
}

func TestStepRejectsShortMemory(t *testing.T) {
	code := []uint64{word(selectorFor(freqtable.EndFunc), 0, 0, 0, 0)}
	params := aivm.NewParams(4, 2, 2)
	c, err := aivm.NewCompiler(aivm.BackendInterpreter, params)
	require.NoError(t, err)

	runner := c.Compile(code)
	err = runner.Step(make([]int64, 3))
	require.True(t, errors.Is(err, aivm.ErrShortMemory))
}

func TestStepZeroesOutputBankEveryCall(t *testing.T) {
	code := []uint64{word(selectorFor(freqtable.EndFunc), 0, 0, 0, 0)}
	params := aivm.NewParams(2, 0, 2)
	c, err := aivm.NewCompiler(aivm.BackendInterpreter, params)
	require.NoError(t, err)

	runner := c.Compile(code)
	mem := []int64{0, 0, 99, 99}
	require.NoError(t, runner.Step(mem))
	require.Equal(t, int64(0), mem[2])
	require.Equal(t, int64(0), mem[3])
}

func TestParamsWithLowestFunctionLevel(t *testing.T) {
	// Three functions: f0 calls into the level-1 layer, f1 and f2 each
	// do one arithmetic op, exercising Decode's call-graph layering
	// through the public API end to end.
	code := []uint64{
		word(selectorFor(freqtable.Call), 0, 0, 1, 0),
		word(selectorFor(freqtable.EndFunc), 0, 0, 0, 0),
		word(selectorFor(freqtable.IntInc), 0, 0, 0, 0),
		word(selectorFor(freqtable.EndFunc), 0, 0, 0, 0),
		word(selectorFor(freqtable.IntInc), 0, 0, 0, 0),
	}
	params := aivm.NewParams(2, 0, 0, aivm.WithLowestFunctionLevel(1))
	c, err := aivm.NewCompiler(aivm.BackendInterpreter, params)
	require.NoError(t, err)

	runner := c.Compile(code)
	require.NoError(t, runner.Step(make([]int64, 2)))
}
