//go:build amd64 && linux

package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmapExecutableRejectsEmptyCode(t *testing.T) {
	_, err := MmapExecutable(nil)
	require.Error(t, err)
}

func TestMmapMunmapRoundTrip(t *testing.T) {
	// A single RET (0xC3) is valid machine code under any calling
	// convention: it touches no registers and returns immediately, so
	// it's safe to invoke through NewNativeFunc without matching the
	// JIT back-end's own argument-passing layout.
	buf, err := MmapExecutable([]byte{0xC3})
	require.NoError(t, err)
	require.Len(t, buf, 1)

	fn := NewNativeFunc(buf)
	require.NotPanics(t, func() { fn(nil) })

	require.NoError(t, MunmapExecutable(buf))
}

func TestMunmapEmptyIsNoop(t *testing.T) {
	require.NoError(t, MunmapExecutable(nil))
}
