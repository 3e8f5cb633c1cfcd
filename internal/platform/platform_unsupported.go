//go:build !(amd64 && linux)

package platform

import "errors"

// ErrUnsupportedHost is returned by every function in this file: the JIT
// back-end is Linux/amd64 only ("Host unsupported: static failure at
// build configuration time; the interpreter remains available"). It is
// a separate value from aivm.ErrUnsupportedHost, which the root package
// declares itself and returns from NewCompiler.
var ErrUnsupportedHost = errors.New("aivm: jit backend unsupported on this GOARCH/GOOS")

func MmapExecutable(code []byte) ([]byte, error) {
	return nil, ErrUnsupportedHost
}

func MunmapExecutable(buf []byte) error {
	return ErrUnsupportedHost
}

func NewNativeFunc(code []byte) NativeFunc {
	return func(memory []int64) { panic(ErrUnsupportedHost) }
}
