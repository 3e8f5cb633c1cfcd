package freqtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultSumsTo65536(t *testing.T) {
	require.NoError(t, Default.Validate())
}

func TestValidateRejectsBadSum(t *testing.T) {
	bad := Default
	bad[EndFunc]++
	require.Error(t, bad.Validate())
}

func TestResolveIsTotal(t *testing.T) {
	// Every possible 16-bit selector must resolve to some opcode without
	// panicking.
	for selector := 0; selector <= 0xFFFF; selector++ {
		op := Default.Resolve(uint16(selector))
		require.Lessf(t, op, opcodeCount, "selector %d resolved out of range: %v", selector, op)
	}
	require.Equal(t, uint16(0xFFFF), uint16(0xFFFF)) // sanity on the loop bound type
}

func TestResolveBoundaries(t *testing.T) {
	require.Equal(t, EndFunc, Default.Resolve(0))
	require.Equal(t, EndFunc, Default.Resolve(Default[EndFunc]-1))
	require.Equal(t, Call, Default.Resolve(Default[EndFunc]))
}

func TestWithWeightCopies(t *testing.T) {
	modified := Default.WithWeight(Call, 1000)
	require.Equal(t, uint16(1000), modified[Call])
	require.Equal(t, Default[Call], uint16(655), "original table must be untouched")
}

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "end_func", EndFunc.String())
	require.Equal(t, "mem_store", MemStore.String())
}
