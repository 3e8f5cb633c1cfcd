//go:build amd64 && linux

package platform

import (
	"fmt"
	"syscall"
	"unsafe"
)

// MmapExecutable allocates len(code) bytes of RWX memory and copies code
// into it, returning the full mapping so the caller can later
// Munmap it. syscall.Mmap (not golang.org/x/sys/unix) is reached for
// directly: Linux/amd64 is the only host this package ever targets, and
// the standard library already exports the two syscalls needed.
func MmapExecutable(code []byte) ([]byte, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("platform: empty code buffer")
	}
	buf, err := syscall.Mmap(-1, 0, len(code), syscall.PROT_READ|syscall.PROT_WRITE|syscall.PROT_EXEC,
		syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap: %w", err)
	}
	copy(buf, code)
	return buf, nil
}

// MunmapExecutable releases a mapping returned by MmapExecutable.
func MunmapExecutable(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := syscall.Munmap(buf); err != nil {
		return fmt.Errorf("platform: munmap: %w", err)
	}
	return nil
}

// funcval is the runtime's representation of a Go func value: a pointer
// to a struct whose first word is the entry point's program counter. This
// is the same trick the teacher's own JIT-adjacent packages avoid needing
// (wazero calls into native code through assembly trampolines); since
// this module has no assembly of its own, NewNativeFunc fabricates a
// funcval directly so Go can call into mmap'd machine code without a Cgo
// or asm bridge.
type funcval struct {
	entry uintptr
}

// NewNativeFunc returns a NativeFunc whose entry point is the first byte
// of code. code must remain live (not garbage collected, not unmapped)
// for as long as the returned value may still be called; callers keep the
// []byte mapping alive alongside it for exactly this reason.
func NewNativeFunc(code []byte) NativeFunc {
	fv := &funcval{entry: uintptr(unsafe.Pointer(&code[0]))}
	var f NativeFunc
	*(**funcval)(unsafe.Pointer(&f)) = fv
	return f
}
