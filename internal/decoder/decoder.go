package decoder

import "math"

// Params bundles the compile-time parameters that shape decoding: the
// call-graph layering parameter and the three bank sizes. It is owned by
// the caller (aivm.Params carries these four fields plus the frequency
// table) and passed
// down rather than made a package global.
type Params struct {
	LowestFunctionLevel uint32
	MemorySize          uint32
	InputSize           uint32
	OutputSize          uint32
}

// function is pass 1's record of a function's extent within code.
type function struct {
	start, count int
}

// Decode scans code, partitions it into functions (pass 1), then drives
// backend through each function's instructions (pass 2). Decode never
// fails: every word decodes to something, and instructions that cannot
// legally apply (out-of-range branch, call, or address) degrade to nop
// rather than being rejected.
//
// Panics if params.LowestFunctionLevel == math.MaxUint32, matching the
// documented precondition on L.
func Decode(code []Word, params Params, table Resolver, backend Backend) Runner {
	if params.LowestFunctionLevel == math.MaxUint32 {
		panic("decoder: LowestFunctionLevel must be < math.MaxUint32")
	}

	funcs := partitionFunctions(code, table)
	n := len(funcs)
	levelSize := levelSize(n, params.LowestFunctionLevel)

	backend.Begin(n)
	for f, fn := range funcs {
		level := functionLevel(f, levelSize)
		emitFunction(code, f, fn, level, levelSize, n, params, table, backend)
	}
	return backend.Finish(params.MemorySize, params.InputSize, params.OutputSize)
}

// Resolver resolves a word's 16-bit opcode selector to an Opcode; it is
// satisfied by freqtable.Table, kept as a narrow interface here so the
// decoder package does not need to import freqtable's Opcode type
// directly into its control flow (only the EndFunc test and per-opcode
// dispatch below need concrete opcode identities, see opcode.go).
type Resolver interface {
	Resolve(selector uint16) Opcode
}

// partitionFunctions implements pass 1: scan words in order, starting a
// new function whenever the decoded opcode is EndFunc. Empty functions
// are dropped; if none remain, a single empty function is synthesized so
// the invariant "at least one function exists" always holds.
func partitionFunctions(code []Word, table Resolver) []function {
	var funcs []function
	start := 0
	for i, w := range code {
		if table.Resolve(opcodeSelector(w)) == EndFunc {
			if i > start {
				funcs = append(funcs, function{start: start, count: i - start})
			}
			start = i + 1
		}
	}
	if len(code) > start {
		funcs = append(funcs, function{start: start, count: len(code) - start})
	}
	if len(funcs) == 0 {
		funcs = append(funcs, function{start: 0, count: 0})
	}
	return funcs
}

// levelSize computes ceil((n-1)/L), the number of functions per call
// layer. L==0 means "no calls are ever legal" (handled by the CALL
// emission below, which treats a zero levelSize range as empty).
func levelSize(n int, l uint32) int {
	if l == 0 || n <= 1 {
		return 0
	}
	return (n - 1 + int(l) - 1) / int(l)
}

// functionLevel returns the layer index of function f. Function 0 is
// level 0 by definition.
func functionLevel(f, levelSize int) int {
	if f == 0 || levelSize == 0 {
		return 0
	}
	return 1 + (f-1)/levelSize
}

func emitFunction(code []Word, f int, fn function, level, levelSize, n int, params Params, table Resolver, backend Backend) {
	e := backend.BeginFunction(f)
	for i := 0; i < fn.count; i++ {
		e.PrepareEmit()
		w := code[fn.start+i]
		emitInstruction(e, w, i, fn.count, level, levelSize, n, params, table)
	}
	e.Finalize()
}

func emitInstruction(e Emitter, w Word, i, count, level, levelSize, n int, params Params, table Resolver) {
	op := table.Resolve(opcodeSelector(w))
	a, b, c, d := regA(w), regB(w), regC(w), regD(w)
	imm := imm32(w)

	switch op {
	case EndFunc:
		// Never emitted; the function ends elsewhere (pass 1 already
		// consumed this word as a boundary marker).
	case Call:
		emitCall(e, imm, a, b, level, levelSize, n)
	case IntAdd:
		e.EmitIntAdd(a, b, c)
	case IntSub:
		e.EmitIntSub(a, b, c)
	case IntMul:
		e.EmitIntMul(a, b, c)
	case IntMulHigh:
		e.EmitIntMulHigh(a, b, c)
	case IntMulHighUnsigned:
		e.EmitIntMulHighUnsigned(a, b, c)
	case IntNeg:
		e.EmitIntNeg(a, b)
	case IntAbs:
		e.EmitIntAbs(a, b)
	case IntInc:
		e.EmitIntInc(a)
	case IntDec:
		e.EmitIntDec(a)
	case IntMin:
		e.EmitIntMin(a, b, c)
	case IntMax:
		e.EmitIntMax(a, b, c)
	case BitOr:
		e.EmitBitOr(a, b, c)
	case BitAnd:
		e.EmitBitAnd(a, b, c)
	case BitXor:
		e.EmitBitXor(a, b, c)
	case BitNot:
		e.EmitBitNot(a, b)
	case BitShiftLeft:
		e.EmitBitShiftLeft(a, b, c&0x3F)
	case BitShiftRight:
		e.EmitBitShiftRight(a, b, c&0x3F)
	case BitRotateLeft:
		e.EmitBitRotateLeft(a, b, c&0x3F)
	case BitRotateRight:
		e.EmitBitRotateRight(a, b, c&0x3F)
	case BitSelect:
		e.EmitBitSelect(a, b, c, d)
	case BitPopcnt:
		e.EmitBitPopcnt(a, b)
	case BitReverse:
		e.EmitBitReverse(a, b)
	case BranchCmp:
		emitBranchCmp(e, a, b, c, imm, i, count)
	case BranchZero:
		emitBranchZero(e, a, imm, i, count)
	case BranchNonZero:
		emitBranchNonZero(e, a, imm, i, count)
	case MemLoad:
		emitMemLoad(e, a, imm, d, params)
	case MemStore:
		emitMemStore(e, a, imm, d, params)
	default:
		e.EmitNop()
	}
}

// emitCall computes the callable range [minIdx, n) for a call from level
// and emits a nop when that range is empty or calls are entirely disabled
// (LowestFunctionLevel == 0). Because minIdx is always
// >= 1+level*levelSize and a call only ever targets indices in
// [minIdx, n), a call can never target its own function or any function
// at its own level or below: the call graph is a DAG by construction.
func emitCall(e Emitter, imm uint32, a, b uint8, level, levelSize, n int) {
	if levelSize == 0 {
		e.EmitNop()
		return
	}
	minIdx := 1 + level*levelSize
	if minIdx >= n {
		e.EmitNop()
		return
	}
	span := uint32(n - minIdx)
	// Fold the otherwise-unused register fields into the call-target
	// selection so mutations to a/b still perturb which function is
	// called, the same way the source's calc_call_idx widens its
	// selector beyond the bare immediate.
	selector := imm ^ uint32(a) ^ uint32(b)<<6
	target := minIdx + int(selector%span)
	e.EmitCall(target)
}

// emitBranchCmp computes the forward-only branch target and degrades to
// nop when max_offset <= 1 or the resolved offset is 0.
func emitBranchCmp(e Emitter, a, b, c uint8, imm uint32, i, count int) {
	kind := CompareKind(a & 3)
	offset, ok := resolveBranchOffset(imm, i, count)
	if !ok {
		e.EmitNop()
		return
	}
	e.EmitBranchCmp(b, c, kind, offset)
}

func emitBranchZero(e Emitter, a uint8, imm uint32, i, count int) {
	offset, ok := resolveBranchOffset(imm, i, count)
	if !ok {
		e.EmitNop()
		return
	}
	e.EmitBranchZero(a, offset)
}

func emitBranchNonZero(e Emitter, a uint8, imm uint32, i, count int) {
	offset, ok := resolveBranchOffset(imm, i, count)
	if !ok {
		e.EmitNop()
		return
	}
	e.EmitBranchNonZero(a, offset)
}

// resolveBranchOffset computes the forward-only branch offset: max_offset
// is the number of instructions remaining in the function after this one
// (count-i-1). When max_offset <= 1 there is no legal forward target to
// choose, so the instruction degrades to nop; an offset that resolves to
// 0 degrades to nop as well, keeping "branch taken" distinct in effect
// from an unconditional fall-through.
func resolveBranchOffset(imm uint32, i, count int) (uint32, bool) {
	maxOffset := count - i - 1
	if maxOffset <= 1 {
		return 0, false
	}
	offset := imm % uint32(maxOffset)
	if offset == 0 {
		return 0, false
	}
	return offset, true
}

// emitMemLoad/emitMemStore resolve the target bank from bit 0 of register
// field D (see Bank's doc comment) and reduce addr modulo that bank's
// size. Loads/stores against an empty bank degrade to nop.
func emitMemLoad(e Emitter, dst uint8, imm uint32, d uint8, params Params) {
	bank, size := resolveBank(d, params, false)
	if size == 0 {
		e.EmitNop()
		return
	}
	e.EmitMemLoad(bank, dst, imm%size)
}

func emitMemStore(e Emitter, src uint8, imm uint32, d uint8, params Params) {
	bank, size := resolveBank(d, params, true)
	if size == 0 {
		e.EmitNop()
		return
	}
	e.EmitMemStore(bank, imm%size, src)
}

// resolveBank picks between the read/write memory bank and the
// read-only input bank (for loads) or write-only output bank (for
// stores), per bit 0 of register field D.
func resolveBank(d uint8, params Params, forStore bool) (Bank, uint32) {
	if d&1 == 0 {
		return BankMemory, params.MemorySize
	}
	if forStore {
		return BankOutput, params.OutputSize
	}
	return BankInput, params.InputSize
}
