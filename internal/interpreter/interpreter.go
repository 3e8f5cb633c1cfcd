// Package interpreter implements the tree-walking back-end: it records
// the decoder's emitted instructions into a flat per-function slice and
// executes them directly against caller-owned memory. It is always
// available, unlike the JIT back-end, which is amd64/Linux only.
package interpreter

import (
	"fmt"
	"math/bits"

	"github.com/evolvm/aivm/internal/decoder"
)

type opKind byte

const (
	opNop opKind = iota
	opCall

	opIntAdd
	opIntSub
	opIntMul
	opIntMulHigh
	opIntMulHighUnsigned
	opIntNeg
	opIntAbs
	opIntInc
	opIntDec
	opIntMin
	opIntMax

	opBitOr
	opBitAnd
	opBitXor
	opBitNot
	opBitShiftLeft
	opBitShiftRight
	opBitRotateLeft
	opBitRotateRight
	opBitSelect
	opBitPopcnt
	opBitReverse

	opBranchCmp
	opBranchZero
	opBranchNonZero

	opMemLoad
	opMemStore
)

// inst is one recorded instruction. Not every field is used by every
// kind; the zero value of unused fields is never read.
type inst struct {
	kind   opKind
	dst    uint8
	a, b   uint8
	amount uint8
	imm    uint32
	cmp    decoder.CompareKind
	bank   decoder.Bank
	target int
}

// recorder implements decoder.Emitter by appending to a single function's
// instruction slice.
type recorder struct {
	insts []inst
}

func (r *recorder) PrepareEmit() {}
func (r *recorder) Finalize()    {}

func (r *recorder) EmitNop()            { r.insts = append(r.insts, inst{kind: opNop}) }
func (r *recorder) EmitCall(target int) { r.insts = append(r.insts, inst{kind: opCall, target: target}) }

func (r *recorder) EmitIntAdd(dst, a, b uint8) { r.push3(opIntAdd, dst, a, b) }
func (r *recorder) EmitIntSub(dst, a, b uint8) { r.push3(opIntSub, dst, a, b) }
func (r *recorder) EmitIntMul(dst, a, b uint8) { r.push3(opIntMul, dst, a, b) }
func (r *recorder) EmitIntMulHigh(dst, a, b uint8) { r.push3(opIntMulHigh, dst, a, b) }
func (r *recorder) EmitIntMulHighUnsigned(dst, a, b uint8) {
	r.push3(opIntMulHighUnsigned, dst, a, b)
}
func (r *recorder) EmitIntNeg(dst, src uint8) { r.push2(opIntNeg, dst, src) }
func (r *recorder) EmitIntAbs(dst, src uint8) { r.push2(opIntAbs, dst, src) }
func (r *recorder) EmitIntInc(dst uint8)      { r.insts = append(r.insts, inst{kind: opIntInc, dst: dst}) }
func (r *recorder) EmitIntDec(dst uint8)      { r.insts = append(r.insts, inst{kind: opIntDec, dst: dst}) }
func (r *recorder) EmitIntMin(dst, a, b uint8) { r.push3(opIntMin, dst, a, b) }
func (r *recorder) EmitIntMax(dst, a, b uint8) { r.push3(opIntMax, dst, a, b) }

func (r *recorder) EmitBitOr(dst, a, b uint8)  { r.push3(opBitOr, dst, a, b) }
func (r *recorder) EmitBitAnd(dst, a, b uint8) { r.push3(opBitAnd, dst, a, b) }
func (r *recorder) EmitBitXor(dst, a, b uint8) { r.push3(opBitXor, dst, a, b) }
func (r *recorder) EmitBitNot(dst, src uint8)  { r.push2(opBitNot, dst, src) }
func (r *recorder) EmitBitShiftLeft(dst, src, amount uint8) {
	r.insts = append(r.insts, inst{kind: opBitShiftLeft, dst: dst, a: src, amount: amount})
}
func (r *recorder) EmitBitShiftRight(dst, src, amount uint8) {
	r.insts = append(r.insts, inst{kind: opBitShiftRight, dst: dst, a: src, amount: amount})
}
func (r *recorder) EmitBitRotateLeft(dst, src, amount uint8) {
	r.insts = append(r.insts, inst{kind: opBitRotateLeft, dst: dst, a: src, amount: amount})
}
func (r *recorder) EmitBitRotateRight(dst, src, amount uint8) {
	r.insts = append(r.insts, inst{kind: opBitRotateRight, dst: dst, a: src, amount: amount})
}
func (r *recorder) EmitBitSelect(dst, mask, a, b uint8) {
	r.insts = append(r.insts, inst{kind: opBitSelect, dst: dst, a: a, b: b, amount: mask})
}
func (r *recorder) EmitBitPopcnt(dst, src uint8)  { r.push2(opBitPopcnt, dst, src) }
func (r *recorder) EmitBitReverse(dst, src uint8) { r.push2(opBitReverse, dst, src) }

func (r *recorder) EmitBranchCmp(a, b uint8, kind decoder.CompareKind, offset uint32) {
	r.insts = append(r.insts, inst{kind: opBranchCmp, a: a, b: b, cmp: kind, imm: offset})
}
func (r *recorder) EmitBranchZero(src uint8, offset uint32) {
	r.insts = append(r.insts, inst{kind: opBranchZero, a: src, imm: offset})
}
func (r *recorder) EmitBranchNonZero(src uint8, offset uint32) {
	r.insts = append(r.insts, inst{kind: opBranchNonZero, a: src, imm: offset})
}

func (r *recorder) EmitMemLoad(bank decoder.Bank, dst uint8, addr uint32) {
	r.insts = append(r.insts, inst{kind: opMemLoad, dst: dst, bank: bank, imm: addr})
}
func (r *recorder) EmitMemStore(bank decoder.Bank, addr uint32, src uint8) {
	r.insts = append(r.insts, inst{kind: opMemStore, a: src, bank: bank, imm: addr})
}

func (r *recorder) push2(kind opKind, dst, src uint8) {
	r.insts = append(r.insts, inst{kind: kind, dst: dst, a: src})
}

func (r *recorder) push3(kind opKind, dst, a, b uint8) {
	r.insts = append(r.insts, inst{kind: kind, dst: dst, a: a, b: b})
}

// Backend implements decoder.Backend, collecting one recorder per
// function and assembling them into a Runner at Finish.
type Backend struct {
	functions []*recorder
}

// New returns a fresh interpreter Backend, ready for one Decode call.
func New() *Backend {
	return &Backend{}
}

func (be *Backend) Begin(functionCount int) {
	be.functions = make([]*recorder, functionCount)
}

func (be *Backend) BeginFunction(idx int) decoder.Emitter {
	r := &recorder{}
	be.functions[idx] = r
	return r
}

func (be *Backend) Finish(memorySize, inputSize, outputSize uint32) decoder.Runner {
	functions := make([][]inst, len(be.functions))
	for i, r := range be.functions {
		functions[i] = r.insts
	}
	return &Runner{
		functions:  functions,
		memorySize: memorySize,
		inputSize:  inputSize,
		outputSize: outputSize,
	}
}

// Runner executes a decoded program by walking its instruction slices.
type Runner struct {
	functions             [][]inst
	memorySize, inputSize, outputSize uint32
}

// Step zeroes the output bank then calls function 0 once against memory,
// which must be at least memorySize+inputSize+outputSize words long,
// laid out as [memory][input][output].
func (r *Runner) Step(memory []int64) error {
	total := int(r.memorySize) + int(r.inputSize) + int(r.outputSize)
	if len(memory) < total {
		return fmt.Errorf("interpreter: memory has %d words, need at least %d: %w", len(memory), total, decoder.ErrShortMemory)
	}

	outputStart := int(r.memorySize) + int(r.inputSize)
	for i := outputStart; i < outputStart+int(r.outputSize); i++ {
		memory[i] = 0
	}

	r.callFunction(memory, 0)
	return nil
}

func (r *Runner) callFunction(memory []int64, idx int) {
	var regs [64]int64
	skip := 0

	insts := r.functions[idx]
	for i := 0; i < len(insts); i++ {
		if skip > 0 {
			skip--
			continue
		}
		in := &insts[i]
		switch in.kind {
		case opNop:
		case opCall:
			r.callFunction(memory, in.target)

		case opIntAdd:
			regs[in.dst] = regs[in.a] + regs[in.b]
		case opIntSub:
			regs[in.dst] = regs[in.a] - regs[in.b]
		case opIntMul:
			regs[in.dst] = regs[in.a] * regs[in.b]
		case opIntMulHigh:
			regs[in.dst] = mulHighSigned(regs[in.a], regs[in.b])
		case opIntMulHighUnsigned:
			hi, _ := bits.Mul64(uint64(regs[in.a]), uint64(regs[in.b]))
			regs[in.dst] = int64(hi)
		case opIntNeg:
			regs[in.dst] = -regs[in.a]
		case opIntAbs:
			v := regs[in.a]
			if v < 0 {
				v = -v
			}
			regs[in.dst] = v
		case opIntInc:
			regs[in.dst]++
		case opIntDec:
			regs[in.dst]--
		case opIntMin:
			if regs[in.a] < regs[in.b] {
				regs[in.dst] = regs[in.a]
			} else {
				regs[in.dst] = regs[in.b]
			}
		case opIntMax:
			if regs[in.a] > regs[in.b] {
				regs[in.dst] = regs[in.a]
			} else {
				regs[in.dst] = regs[in.b]
			}

		case opBitOr:
			regs[in.dst] = regs[in.a] | regs[in.b]
		case opBitAnd:
			regs[in.dst] = regs[in.a] & regs[in.b]
		case opBitXor:
			regs[in.dst] = regs[in.a] ^ regs[in.b]
		case opBitNot:
			regs[in.dst] = ^regs[in.a]
		case opBitShiftLeft:
			regs[in.dst] = int64(uint64(regs[in.a]) << in.amount)
		case opBitShiftRight:
			// Logical (unsigned) shift right.
			regs[in.dst] = int64(uint64(regs[in.a]) >> in.amount)
		case opBitRotateLeft:
			regs[in.dst] = int64(bits.RotateLeft64(uint64(regs[in.a]), int(in.amount)))
		case opBitRotateRight:
			regs[in.dst] = int64(bits.RotateLeft64(uint64(regs[in.a]), -int(in.amount)))
		case opBitSelect:
			mask := regs[in.amount]
			regs[in.dst] = (regs[in.a] & mask) | (regs[in.b] &^ mask)
		case opBitPopcnt:
			regs[in.dst] = int64(bits.OnesCount64(uint64(regs[in.a])))
		case opBitReverse:
			regs[in.dst] = int64(bits.Reverse64(uint64(regs[in.a])))

		case opBranchCmp:
			a, b := regs[in.a], regs[in.b]
			var taken bool
			switch in.cmp {
			case decoder.CompareEq:
				taken = a == b
			case decoder.CompareNeq:
				taken = a != b
			case decoder.CompareGt:
				taken = a > b
			case decoder.CompareLt:
				taken = a < b
			}
			if taken {
				skip = int(in.imm)
			}
		case opBranchZero:
			if regs[in.a] == 0 {
				skip = int(in.imm)
			}
		case opBranchNonZero:
			if regs[in.a] != 0 {
				skip = int(in.imm)
			}

		case opMemLoad:
			regs[in.dst] = memory[r.bankOffset(in.bank)+int(in.imm)]
		case opMemStore:
			memory[r.bankOffset(in.bank)+int(in.imm)] = regs[in.a]
		}
	}
}

// bankOffset returns the starting index of bank within the flat memory
// slice, laid out as [memory][input][output].
func (r *Runner) bankOffset(bank decoder.Bank) int {
	switch bank {
	case decoder.BankInput:
		return int(r.memorySize)
	case decoder.BankOutput:
		return int(r.memorySize) + int(r.inputSize)
	default:
		return 0
	}
}

// mulHighSigned returns the high 64 bits of the signed 128-bit product of
// a and b, built from the unsigned high multiply plus the standard two
// correction terms (each negative operand requires subtracting the other
// operand's bit pattern from the unsigned high word).
func mulHighSigned(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return int64(hi)
}
