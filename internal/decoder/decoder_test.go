package decoder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evolvm/aivm/internal/freqtable"
)

// fakeEmitter records every Emit* call it receives as a (name, args) pair
// so tests can assert on decode output without a real back-end.
type fakeEmitter struct {
	calls []call
}

type call struct {
	name string
	args []any
}

func (e *fakeEmitter) record(name string, args ...any) {
	e.calls = append(e.calls, call{name: name, args: args})
}

func (e *fakeEmitter) PrepareEmit() {}
func (e *fakeEmitter) Finalize()    {}

func (e *fakeEmitter) EmitNop()             { e.record("nop") }
func (e *fakeEmitter) EmitCall(target int)  { e.record("call", target) }

func (e *fakeEmitter) EmitIntAdd(dst, a, b uint8)             { e.record("int_add", dst, a, b) }
func (e *fakeEmitter) EmitIntSub(dst, a, b uint8)             { e.record("int_sub", dst, a, b) }
func (e *fakeEmitter) EmitIntMul(dst, a, b uint8)             { e.record("int_mul", dst, a, b) }
func (e *fakeEmitter) EmitIntMulHigh(dst, a, b uint8)         { e.record("int_mul_high", dst, a, b) }
func (e *fakeEmitter) EmitIntMulHighUnsigned(dst, a, b uint8) { e.record("int_mul_high_u", dst, a, b) }
func (e *fakeEmitter) EmitIntNeg(dst, src uint8)              { e.record("int_neg", dst, src) }
func (e *fakeEmitter) EmitIntAbs(dst, src uint8)              { e.record("int_abs", dst, src) }
func (e *fakeEmitter) EmitIntInc(dst uint8)                   { e.record("int_inc", dst) }
func (e *fakeEmitter) EmitIntDec(dst uint8)                   { e.record("int_dec", dst) }
func (e *fakeEmitter) EmitIntMin(dst, a, b uint8)             { e.record("int_min", dst, a, b) }
func (e *fakeEmitter) EmitIntMax(dst, a, b uint8)             { e.record("int_max", dst, a, b) }

func (e *fakeEmitter) EmitBitOr(dst, a, b uint8)  { e.record("bit_or", dst, a, b) }
func (e *fakeEmitter) EmitBitAnd(dst, a, b uint8) { e.record("bit_and", dst, a, b) }
func (e *fakeEmitter) EmitBitXor(dst, a, b uint8) { e.record("bit_xor", dst, a, b) }
func (e *fakeEmitter) EmitBitNot(dst, src uint8)  { e.record("bit_not", dst, src) }
func (e *fakeEmitter) EmitBitShiftLeft(dst, src, amount uint8) {
	e.record("bit_shift_l", dst, src, amount)
}
func (e *fakeEmitter) EmitBitShiftRight(dst, src, amount uint8) {
	e.record("bit_shift_r", dst, src, amount)
}
func (e *fakeEmitter) EmitBitRotateLeft(dst, src, amount uint8) {
	e.record("bit_rot_l", dst, src, amount)
}
func (e *fakeEmitter) EmitBitRotateRight(dst, src, amount uint8) {
	e.record("bit_rot_r", dst, src, amount)
}
func (e *fakeEmitter) EmitBitSelect(dst, mask, a, b uint8) { e.record("bit_select", dst, mask, a, b) }
func (e *fakeEmitter) EmitBitPopcnt(dst, src uint8)        { e.record("bit_popcnt", dst, src) }
func (e *fakeEmitter) EmitBitReverse(dst, src uint8)       { e.record("bit_reverse", dst, src) }

func (e *fakeEmitter) EmitBranchCmp(a, b uint8, kind CompareKind, offset uint32) {
	e.record("branch_cmp", a, b, kind, offset)
}
func (e *fakeEmitter) EmitBranchZero(src uint8, offset uint32) {
	e.record("branch_zero", src, offset)
}
func (e *fakeEmitter) EmitBranchNonZero(src uint8, offset uint32) {
	e.record("branch_non_zero", src, offset)
}

func (e *fakeEmitter) EmitMemLoad(bank Bank, dst uint8, addr uint32) {
	e.record("mem_load", bank, dst, addr)
}
func (e *fakeEmitter) EmitMemStore(bank Bank, addr uint32, src uint8) {
	e.record("mem_store", bank, addr, src)
}

// fakeBackend hands out one fakeEmitter per function and records the
// function count and final sizes it was given.
type fakeBackend struct {
	functionCount                         int
	emitters                              []*fakeEmitter
	memorySize, inputSize, outputSize uint32
}

func (b *fakeBackend) Begin(functionCount int) { b.functionCount = functionCount }

func (b *fakeBackend) BeginFunction(idx int) Emitter {
	e := &fakeEmitter{}
	b.emitters = append(b.emitters, e)
	return e
}

func (b *fakeBackend) Finish(memorySize, inputSize, outputSize uint32) Runner {
	b.memorySize, b.inputSize, b.outputSize = memorySize, inputSize, outputSize
	return nil
}

func word(selector uint16, a, b, c, d uint8, imm uint32) Word {
	var w Word
	w |= Word(selector)
	w |= Word(a&regMask) << 16
	w |= Word(b&regMask) << 22
	w |= Word(imm) << 32
	w |= Word(d&regMask) << 46
	_ = c // c shares the imm field; callers encode it via imm when needed
	return w
}

func selectorFor(table freqtable.Table, op freqtable.Opcode) uint16 {
	var sum uint16
	for i := freqtable.Opcode(0); i < op; i++ {
		sum += table[i]
	}
	return sum
}

func TestDecodeEmptyCodeSynthesizesOneFunction(t *testing.T) {
	b := &fakeBackend{}
	Decode(nil, Params{}, freqtable.Default, b)
	require.Equal(t, 1, b.functionCount)
	require.Len(t, b.emitters, 1)
	require.Empty(t, b.emitters[0].calls)
}

func TestDecodePartitionsOnEndFunc(t *testing.T) {
	endFunc := selectorFor(freqtable.Default, freqtable.EndFunc)
	intAdd := selectorFor(freqtable.Default, freqtable.IntAdd)

	code := []Word{
		word(intAdd, 1, 2, 0, 0, 0),
		word(endFunc, 0, 0, 0, 0, 0),
		word(intAdd, 3, 4, 0, 0, 0),
	}
	b := &fakeBackend{}
	Decode(code, Params{}, freqtable.Default, b)

	require.Equal(t, 2, b.functionCount)
	require.Len(t, b.emitters[0].calls, 1)
	require.Equal(t, "int_add", b.emitters[0].calls[0].name)
	require.Len(t, b.emitters[1].calls, 1)
}

func TestDecodeDropsEmptyFunctionsBetweenEndFuncs(t *testing.T) {
	endFunc := selectorFor(freqtable.Default, freqtable.EndFunc)
	intAdd := selectorFor(freqtable.Default, freqtable.IntAdd)

	code := []Word{
		word(intAdd, 0, 0, 0, 0, 0),
		word(endFunc, 0, 0, 0, 0, 0),
		word(endFunc, 0, 0, 0, 0, 0), // empty function between two EndFuncs, dropped
		word(intAdd, 0, 0, 0, 0, 0),
	}
	b := &fakeBackend{}
	Decode(code, Params{}, freqtable.Default, b)
	require.Equal(t, 2, b.functionCount)
}

func TestDecodeCallTargetsHigherLevelOnly(t *testing.T) {
	endFunc := selectorFor(freqtable.Default, freqtable.EndFunc)
	call := selectorFor(freqtable.Default, freqtable.Call)
	intAdd := selectorFor(freqtable.Default, freqtable.IntAdd)

	// 3 functions, LowestFunctionLevel=1 -> levelSize = ceil(2/1) = 2.
	// Function 0 is level 0, minIdx = 1; functions 1,2 are level 1.
	code := []Word{
		word(call, 0, 0, 0, 0, 0),
		word(endFunc, 0, 0, 0, 0, 0),
		word(intAdd, 0, 0, 0, 0, 0),
		word(endFunc, 0, 0, 0, 0, 0),
		word(intAdd, 0, 0, 0, 0, 0),
	}
	b := &fakeBackend{}
	Decode(code, Params{LowestFunctionLevel: 1}, freqtable.Default, b)

	require.Equal(t, 3, b.functionCount)
	calls := b.emitters[0].calls
	require.Len(t, calls, 1)
	require.Equal(t, "call", calls[0].name)
	target := calls[0].args[0].(int)
	require.GreaterOrEqual(t, target, 1)
	require.Less(t, target, 3)
}

func TestDecodeCallDegradesToNopWhenNoCallableFunctionExists(t *testing.T) {
	call := selectorFor(freqtable.Default, freqtable.Call)

	code := []Word{word(call, 0, 0, 0, 0, 0)} // single function, nothing callable
	b := &fakeBackend{}
	Decode(code, Params{LowestFunctionLevel: 1}, freqtable.Default, b)

	require.Equal(t, "nop", b.emitters[0].calls[0].name)
}

func TestDecodeBranchDegradesToNopWhenNoRoomToBranch(t *testing.T) {
	branchZero := selectorFor(freqtable.Default, freqtable.BranchZero)

	// Single-instruction function: maxOffset = 1-0-1 = 0 <= 1, degrades.
	code := []Word{word(branchZero, 0, 0, 0, 0, 5)}
	b := &fakeBackend{}
	Decode(code, Params{}, freqtable.Default, b)
	require.Equal(t, "nop", b.emitters[0].calls[0].name)
}

func TestDecodeBranchDegradesToNopWhenOffsetResolvesToZero(t *testing.T) {
	branchZero := selectorFor(freqtable.Default, freqtable.BranchZero)
	intAdd := selectorFor(freqtable.Default, freqtable.IntAdd)

	// 3-instruction function, branch at i=0: maxOffset = 3-0-1 = 2.
	// imm % 2 == 0 degrades to nop.
	code := []Word{
		word(branchZero, 0, 0, 0, 0, 2),
		word(intAdd, 0, 0, 0, 0, 0),
		word(intAdd, 0, 0, 0, 0, 0),
	}
	b := &fakeBackend{}
	Decode(code, Params{}, freqtable.Default, b)
	require.Equal(t, "nop", b.emitters[0].calls[0].name)
}

func TestDecodeBranchResolvesNonzeroOffset(t *testing.T) {
	branchZero := selectorFor(freqtable.Default, freqtable.BranchZero)
	intAdd := selectorFor(freqtable.Default, freqtable.IntAdd)

	// 3-instruction function, branch at i=0: maxOffset = 2, imm=1 -> offset 1.
	code := []Word{
		word(branchZero, 0, 0, 0, 0, 1),
		word(intAdd, 0, 0, 0, 0, 0),
		word(intAdd, 0, 0, 0, 0, 0),
	}
	b := &fakeBackend{}
	Decode(code, Params{}, freqtable.Default, b)
	calls := b.emitters[0].calls
	require.Equal(t, "branch_zero", calls[0].name)
	require.Equal(t, uint32(1), calls[0].args[1])
}

func TestDecodeMemLoadSelectsBankFromRegisterD(t *testing.T) {
	memLoad := selectorFor(freqtable.Default, freqtable.MemLoad)

	code := []Word{word(memLoad, 0, 0, 0, 1, 3)} // d=1 -> input bank
	b := &fakeBackend{}
	Decode(code, Params{MemorySize: 8, InputSize: 8}, freqtable.Default, b)

	calls := b.emitters[0].calls
	require.Equal(t, "mem_load", calls[0].name)
	require.Equal(t, BankInput, calls[0].args[0])
}

func TestDecodeMemLoadDegradesToNopOnEmptyBank(t *testing.T) {
	memLoad := selectorFor(freqtable.Default, freqtable.MemLoad)

	code := []Word{word(memLoad, 0, 0, 0, 1, 3)} // d=1 -> input bank, size 0
	b := &fakeBackend{}
	Decode(code, Params{MemorySize: 8, InputSize: 0}, freqtable.Default, b)

	require.Equal(t, "nop", b.emitters[0].calls[0].name)
}

func TestDecodeFinishReceivesSizes(t *testing.T) {
	b := &fakeBackend{}
	Decode(nil, Params{MemorySize: 4, InputSize: 2, OutputSize: 2}, freqtable.Default, b)
	require.Equal(t, uint32(4), b.memorySize)
	require.Equal(t, uint32(2), b.inputSize)
	require.Equal(t, uint32(2), b.outputSize)
}
