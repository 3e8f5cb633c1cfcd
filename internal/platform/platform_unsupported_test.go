//go:build !(amd64 && linux)

package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnsupportedHostReturnsSentinel(t *testing.T) {
	_, err := MmapExecutable([]byte{0xC3})
	require.ErrorIs(t, err, ErrUnsupportedHost)

	err = MunmapExecutable([]byte{0xC3})
	require.ErrorIs(t, err, ErrUnsupportedHost)

	fn := NewNativeFunc([]byte{0xC3})
	require.Panics(t, func() { fn(nil) })
}
