package decoder

import "errors"

// ErrShortMemory is returned by a Runner's Step when the caller's memory
// slice is shorter than the declared memorySize+inputSize+outputSize.
// Both back-ends wrap this sentinel so callers can errors.Is against it
// regardless of which Backend produced the Runner.
var ErrShortMemory = errors.New("aivm: memory slice shorter than declared bank sizes")

// CompareKind is the comparison used by a decoded BranchCmp instruction.
// It is resolved from the low 2 bits of register field A (a&3); Gt and Lt
// are signed.
type CompareKind byte

const (
	CompareEq CompareKind = iota
	CompareNeq
	CompareGt
	CompareLt
)

func (k CompareKind) String() string {
	switch k {
	case CompareEq:
		return "eq"
	case CompareNeq:
		return "neq"
	case CompareGt:
		return "gt"
	case CompareLt:
		return "lt"
	default:
		return "invalid"
	}
}

// Bank identifies one of the three disjoint memory banks a MemLoad/MemStore
// instruction may address. Input is read-only, output is write-only,
// memory is read/write. Bank selection is carried in bit 0 of register
// field D (otherwise unused by every instruction except BitSelect), since
// the frequency table has one slot each for MEM_LOAD and MEM_STORE, not
// one slot per bank.
type Bank byte

const (
	BankMemory Bank = iota
	BankInput
	BankOutput
)

// Backend is the back-end-agnostic emitter contract the decoder drives.
// Each back-end (interpreter, JIT) implements this to receive a stream of
// opcode calls shaped like the decoded program.
type Backend interface {
	// Begin is called once per Decode, before any function is visited,
	// with the total number of functions in the program.
	Begin(functionCount int)
	// BeginFunction starts function idx and returns the Emitter that will
	// receive its instructions.
	BeginFunction(idx int) Emitter
	// Finish is called once all functions have been visited and yields
	// the back-end's Runner.
	Finish(memorySize, inputSize, outputSize uint32) Runner
}

// Emitter receives one method call per decoded instruction within a
// single function, in program order, plus the PrepareEmit/Finalize hooks
// that bracket each instruction and the whole function respectively.
type Emitter interface {
	// PrepareEmit is called immediately before each instruction is
	// decoded, letting back-ends (e.g. the SSA builder) open a
	// branch-target block before the instruction itself is emitted.
	PrepareEmit()
	// Finalize is called once after the last instruction of the
	// function has been emitted.
	Finalize()

	EmitNop()
	EmitCall(targetFunc int)

	EmitIntAdd(dst, a, b uint8)
	EmitIntSub(dst, a, b uint8)
	EmitIntMul(dst, a, b uint8)
	EmitIntMulHigh(dst, a, b uint8)
	EmitIntMulHighUnsigned(dst, a, b uint8)
	EmitIntNeg(dst, src uint8)
	EmitIntAbs(dst, src uint8)
	EmitIntInc(dst uint8)
	EmitIntDec(dst uint8)
	EmitIntMin(dst, a, b uint8)
	EmitIntMax(dst, a, b uint8)

	EmitBitOr(dst, a, b uint8)
	EmitBitAnd(dst, a, b uint8)
	EmitBitXor(dst, a, b uint8)
	EmitBitNot(dst, src uint8)
	EmitBitShiftLeft(dst, src uint8, amount uint8)
	EmitBitShiftRight(dst, src uint8, amount uint8)
	EmitBitRotateLeft(dst, src uint8, amount uint8)
	EmitBitRotateRight(dst, src uint8, amount uint8)
	EmitBitSelect(dst, mask, a, b uint8)
	EmitBitPopcnt(dst, src uint8)
	EmitBitReverse(dst, src uint8)

	EmitBranchCmp(a, b uint8, kind CompareKind, offset uint32)
	EmitBranchZero(src uint8, offset uint32)
	EmitBranchNonZero(src uint8, offset uint32)

	EmitMemLoad(bank Bank, dst uint8, addr uint32)
	EmitMemStore(bank Bank, addr uint32, src uint8)
}

// Runner is the compiled artifact exposing exactly one operation, step,
// over caller-owned memory.
type Runner interface {
	Step(memory []int64) error
}
