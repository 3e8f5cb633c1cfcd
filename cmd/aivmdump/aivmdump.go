// Command aivmdump decodes a []uint64 word slab and prints the
// per-function decoded opcode listing. It is pure debugging glue over
// internal/decoder: it never touches the evolutionary search/mutation
// driver spec.md §1 places out of scope, and embeds none of that logic
// here, the same way cmd/wazero is a thin CLI wrapper that never
// embeds engine internals of its own.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/evolvm/aivm/internal/decoder"
	"github.com/evolvm/aivm/internal/freqtable"
	"github.com/evolvm/aivm/internal/genseed"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var (
		path  string
		seed  uint64
		words int
		level uint64
	)
	flag.StringVar(&path, "file", "", "path to a raw little-endian uint64 word slab")
	flag.Uint64Var(&seed, "seed", 0, "generate `words` words deterministically from this seed instead of reading -file")
	flag.IntVar(&words, "words", 64, "word count to generate when -seed is used")
	flag.Uint64Var(&level, "level", 1, "lowest function level (see spec.md §3's call graph)")
	flag.Parse()

	code, err := loadCode(path, seed, words)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	dump(stdOut, code, uint32(level))
	return 0
}

func loadCode(path string, seed uint64, words int) ([]uint64, error) {
	if path == "" {
		return genseed.Slab(seed, words), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("aivmdump: reading %s: %w", path, err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("aivmdump: %s is %d bytes, not a multiple of 8", path, len(raw))
	}
	code := make([]uint64, len(raw)/8)
	for i := range code {
		code[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return code, nil
}

// dumpBackend implements decoder.Backend by printing every emitted
// instruction through a dumpEmitter, rather than compiling anything.
type dumpBackend struct {
	out io.Writer
}

func (b *dumpBackend) Begin(functionCount int) {
	fmt.Fprintf(b.out, "; %d function(s)\n", functionCount)
}

func (b *dumpBackend) BeginFunction(idx int) decoder.Emitter {
	fmt.Fprintf(b.out, "func %d:\n", idx)
	return &dumpEmitter{out: b.out, idx: 0}
}

func (b *dumpBackend) Finish(memorySize, inputSize, outputSize uint32) decoder.Runner {
	fmt.Fprintf(b.out, "; banks: memory=%d input=%d output=%d\n", memorySize, inputSize, outputSize)
	return nil
}

type dumpEmitter struct {
	out io.Writer
	idx int
}

func (e *dumpEmitter) PrepareEmit() {}

func (e *dumpEmitter) Finalize() {}

func (e *dumpEmitter) line(format string, args ...any) {
	fmt.Fprintf(e.out, "  %4d: %s\n", e.idx, fmt.Sprintf(format, args...))
	e.idx++
}

func (e *dumpEmitter) EmitNop()            { e.line("nop") }
func (e *dumpEmitter) EmitCall(target int) { e.line("call f%d", target) }

func (e *dumpEmitter) EmitIntAdd(dst, a, b uint8) { e.line("int_add r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitIntSub(dst, a, b uint8) { e.line("int_sub r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitIntMul(dst, a, b uint8) { e.line("int_mul r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitIntMulHigh(dst, a, b uint8) {
	e.line("int_mul_high r%d, r%d, r%d", dst, a, b)
}
func (e *dumpEmitter) EmitIntMulHighUnsigned(dst, a, b uint8) {
	e.line("int_mul_high_u r%d, r%d, r%d", dst, a, b)
}
func (e *dumpEmitter) EmitIntNeg(dst, src uint8) { e.line("int_neg r%d, r%d", dst, src) }
func (e *dumpEmitter) EmitIntAbs(dst, src uint8) { e.line("int_abs r%d, r%d", dst, src) }
func (e *dumpEmitter) EmitIntInc(dst uint8)      { e.line("int_inc r%d", dst) }
func (e *dumpEmitter) EmitIntDec(dst uint8)      { e.line("int_dec r%d", dst) }
func (e *dumpEmitter) EmitIntMin(dst, a, b uint8) { e.line("int_min r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitIntMax(dst, a, b uint8) { e.line("int_max r%d, r%d, r%d", dst, a, b) }

func (e *dumpEmitter) EmitBitOr(dst, a, b uint8)  { e.line("bit_or r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitBitAnd(dst, a, b uint8) { e.line("bit_and r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitBitXor(dst, a, b uint8) { e.line("bit_xor r%d, r%d, r%d", dst, a, b) }
func (e *dumpEmitter) EmitBitNot(dst, src uint8)  { e.line("bit_not r%d, r%d", dst, src) }
func (e *dumpEmitter) EmitBitShiftLeft(dst, src, amount uint8) {
	e.line("bit_shift_l r%d, r%d, %d", dst, src, amount)
}
func (e *dumpEmitter) EmitBitShiftRight(dst, src, amount uint8) {
	e.line("bit_shift_r r%d, r%d, %d", dst, src, amount)
}
func (e *dumpEmitter) EmitBitRotateLeft(dst, src, amount uint8) {
	e.line("bit_rot_l r%d, r%d, %d", dst, src, amount)
}
func (e *dumpEmitter) EmitBitRotateRight(dst, src, amount uint8) {
	e.line("bit_rot_r r%d, r%d, %d", dst, src, amount)
}
func (e *dumpEmitter) EmitBitSelect(dst, mask, a, b uint8) {
	e.line("bit_select r%d, mask=r%d, r%d, r%d", dst, mask, a, b)
}
func (e *dumpEmitter) EmitBitPopcnt(dst, src uint8)  { e.line("bit_popcnt r%d, r%d", dst, src) }
func (e *dumpEmitter) EmitBitReverse(dst, src uint8) { e.line("bit_reverse r%d, r%d", dst, src) }

func (e *dumpEmitter) EmitBranchCmp(a, b uint8, kind decoder.CompareKind, offset uint32) {
	e.line("branch_cmp r%d, r%d, %s, +%d", a, b, kind, offset)
}
func (e *dumpEmitter) EmitBranchZero(src uint8, offset uint32) {
	e.line("branch_zero r%d, +%d", src, offset)
}
func (e *dumpEmitter) EmitBranchNonZero(src uint8, offset uint32) {
	e.line("branch_non_zero r%d, +%d", src, offset)
}

func (e *dumpEmitter) EmitMemLoad(bank decoder.Bank, dst uint8, addr uint32) {
	e.line("mem_load r%d, %s[%d]", dst, bankName(bank), addr)
}
func (e *dumpEmitter) EmitMemStore(bank decoder.Bank, addr uint32, src uint8) {
	e.line("mem_store %s[%d], r%d", bankName(bank), addr, src)
}

func bankName(b decoder.Bank) string {
	switch b {
	case decoder.BankInput:
		return "input"
	case decoder.BankOutput:
		return "output"
	default:
		return "memory"
	}
}

// dump drives the decoder purely for its side effect of printing, never
// compiling a Runner: level only affects which functions CALL may
// legally target, not the listing itself.
func dump(out io.Writer, code []uint64, level uint32) {
	params := decoder.Params{LowestFunctionLevel: level}
	decoder.Decode(code, params, freqtable.Default, &dumpBackend{out: out})
}
