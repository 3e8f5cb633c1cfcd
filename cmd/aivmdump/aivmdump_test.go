package main

import (
	"bytes"
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// runMain resets flag.CommandLine the same way cmd/wazero's own test does,
// since doMain registers its flags on the package-global FlagSet every
// call and a second registration in the same test binary would panic.
func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = append([]string{"aivmdump"}, args...)

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	code := doMain(stdOut, stdErr)
	return code, stdOut.String(), stdErr.String()
}

func TestDumpFromSeed(t *testing.T) {
	code, stdOut, stdErr := runMain(t, []string{"-seed=7", "-words=4"})
	require.Equal(t, 0, code)
	require.Empty(t, stdErr)
	require.Contains(t, stdOut, "function(s)")
	require.Contains(t, stdOut, "func 0:")
	require.Contains(t, stdOut, "banks: memory=0 input=0 output=0")
}

func TestDumpFromFile(t *testing.T) {
	path := t.TempDir() + "/slab.bin"
	// One little-endian uint64 word, selector 0 (end_func), so decode
	// produces a single empty function.
	require.NoError(t, os.WriteFile(path, make([]byte, 8), 0o644))

	code, stdOut, stdErr := runMain(t, []string{"-file=" + path})
	require.Equal(t, 0, code)
	require.Empty(t, stdErr)
	require.Contains(t, stdOut, "1 function(s)")
}

func TestDumpRejectsMisalignedFile(t *testing.T) {
	path := t.TempDir() + "/slab.bin"
	require.NoError(t, os.WriteFile(path, make([]byte, 3), 0o644))

	code, _, stdErr := runMain(t, []string{"-file=" + path})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "not a multiple of 8")
}
