package amd64

import (
	"github.com/evolvm/aivm/internal/asm"
	"github.com/evolvm/aivm/internal/decoder"
	"github.com/evolvm/aivm/internal/regalloc"
	"github.com/evolvm/aivm/internal/ssa"
)

// intraFixup records a branch/jump Node whose target block hasn't been
// lowered yet (every forward branch: spec.md's decoder only ever
// produces forward offsets, and proxy blocks only ever jump forward into
// real code or into another not-yet-lowered proxy).
type intraFixup struct {
	node   asm.Node
	target ssa.BlockID
}

// bankSizes is filled in by Backend.Finish once memorySize/inputSize are
// known (decoder.Backend.Finish receives them only after every function
// has streamed through BeginFunction, so it runs before any lowering).
type bankSizes struct {
	memorySize, inputSize uint32
}

// ctx carries per-function lowering state: a running "first instruction
// emitted so far" marker (every Compile* call recorded through note),
// plus the fixup lists resolved once the whole function (intra-function
// jumps) or every function (cross-function calls) has been lowered.
type ctx struct {
	a          asm.Assembler
	banks      bankSizes
	fn         *regalloc.Function
	isTop      bool
	blockEntry map[ssa.BlockID]asm.Node

	first       asm.Node
	intraFixups []intraFixup
	callFixups  *[]callFixup
}

func (c *ctx) note(n asm.Node) asm.Node {
	if c.first == nil {
		c.first = n
	}
	return n
}

// lowerFunction emits fn's allocated blocks in order and returns the
// Node of the function's first instruction (its call/entry point).
// Pending CALL targets (to another AIVM function, resolved only once
// every function has been lowered) are appended to callFixups.
func lowerFunction(a asm.Assembler, fn *regalloc.Function, idx int, banks bankSizes, callFixups *[]callFixup) asm.Node {
	c := &ctx{
		a:          a,
		banks:      banks,
		fn:         fn,
		isTop:      idx == 0,
		blockEntry: map[ssa.BlockID]asm.Node{},
		callFixups: callFixups,
	}

	c.emitPrologue()
	for _, blk := range fn.Blocks {
		blockFirst := c.lowerBlock(blk)
		c.blockEntry[blk.ID] = blockFirst
	}
	for _, f := range c.intraFixups {
		f.node.AssignJumpTarget(c.blockEntry[f.target])
	}
	return c.first
}

// emitPrologue reserves fn's stack frame and, for function 0 (the only
// one ever called directly from Go, see Backend.Finish/Runner.Step),
// moves the incoming memory-slice pointer into memBaseReg and saves the
// callee-saved registers this module's own calling convention promises
// to preserve across Step.
func (c *ctx) emitPrologue() {
	if c.isTop {
		for _, r := range calleeSaved {
			c.note(c.a.CompileRegisterToNone(asm.PUSHQ, r))
		}
		// Native entry convention: the slice data pointer arrives in AX
		// (Go's ABIInternal assigns a slice's pointer/len/cap to
		// AX/BX/CX for the first argument), moved into the
		// function-lifetime memBaseReg immediately.
		c.note(c.a.CompileRegisterToRegister(asm.MOVQ, AX, memBaseReg))
	}
	if c.fn.StackSize > 0 {
		c.note(c.a.CompileConstToRegister(asm.SUBQ, int64(c.fn.StackSize*8), SP))
	}
}

func (c *ctx) emitEpilogue() {
	if c.fn.StackSize > 0 {
		c.a.CompileConstToRegister(asm.ADDQ, int64(c.fn.StackSize*8), SP)
	}
	if c.isTop {
		for i := len(calleeSaved) - 1; i >= 0; i-- {
			c.a.CompileRegisterToNone(asm.POPQ, calleeSaved[i])
		}
	}
	c.a.CompileStandAlone(asm.RET)
}

func (c *ctx) lowerBlock(blk *regalloc.Block) asm.Node {
	var blockFirst asm.Node
	mark := func(n asm.Node) {
		if blockFirst == nil {
			blockFirst = n
		}
		c.note(n)
	}

	for _, inst := range blk.Insts {
		if inst.Dead {
			continue
		}
		mark(c.lowerInst(inst))
	}
	mark(c.lowerTerm(blk.Term))
	return blockFirst
}

// operand loads loc into a register, using scratch as a temporary if loc
// is a stack slot. Returns the register now holding the value and, if a
// load was emitted, that load's Node (nil otherwise).
func (c *ctx) operand(loc regalloc.PhysicalVar, scratch asm.Register) (asm.Register, asm.Node) {
	if !loc.IsStack() {
		return asm.Register(loc.Index()), nil
	}
	n := c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(loc.Index()*8), scratch)
	return scratch, n
}

// storeResult writes reg into loc if loc is a stack slot (a no-op when
// loc is itself reg, the common case for a register-resident result).
func (c *ctx) storeResult(reg asm.Register, loc regalloc.PhysicalVar) {
	if loc.IsStack() {
		c.a.CompileRegisterToMemory(asm.MOVQ, reg, SP, int64(loc.Index()*8))
		return
	}
	if asm.Register(loc.Index()) != reg {
		c.a.CompileRegisterToRegister(asm.MOVQ, reg, asm.Register(loc.Index()))
	}
}

// resultReg returns the register lowering should compute this
// instruction's result into: its assigned register directly, or
// scratchReg if it was spilled straight to the stack (storeResult then
// spills scratchReg's final value back out).
func resultReg(oi regalloc.Instruction) asm.Register {
	if oi.HasResult && !oi.ResultLoc.IsStack() {
		return asm.Register(oi.ResultLoc.Index())
	}
	return scratchReg
}

func (c *ctx) applyActions(actions []regalloc.Action) {
	for _, act := range actions {
		switch act.Kind {
		case regalloc.Spill:
			c.a.CompileRegisterToMemory(asm.MOVQ, asm.Register(act.From.Index()), SP, int64(act.To.Index()*8))
		case regalloc.Unspill:
			c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(act.From.Index()*8), asm.Register(act.To.Index()))
		case regalloc.Move:
			c.applyMove(act)
		}
	}
}

func (c *ctx) applyMove(act regalloc.Action) {
	switch {
	case !act.From.IsStack() && !act.To.IsStack():
		c.a.CompileRegisterToRegister(asm.MOVQ, asm.Register(act.From.Index()), asm.Register(act.To.Index()))
	case !act.From.IsStack() && act.To.IsStack():
		c.a.CompileRegisterToMemory(asm.MOVQ, asm.Register(act.From.Index()), SP, int64(act.To.Index()*8))
	case act.From.IsStack() && !act.To.IsStack():
		c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(act.From.Index()*8), asm.Register(act.To.Index()))
	default:
		c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(act.From.Index()*8), scratchReg)
		c.a.CompileRegisterToMemory(asm.MOVQ, scratchReg, SP, int64(act.To.Index()*8))
	}
}

func (c *ctx) lowerInst(oi regalloc.Instruction) asm.Node {
	c.applyActions(oi.PreActions)

	switch oi.Src.Op {
	case ssa.OpNop:
		return c.a.CompileStandAlone(asm.NOP)
	case ssa.OpCall:
		node := c.a.CompileJump(asm.CALL)
		*c.callFixups = append(*c.callFixups, callFixup{node: node, target: oi.Src.CallFunc})
		return node

	case ssa.OpIntAdd:
		return c.lowerBinary(oi, asm.ADDQ)
	case ssa.OpIntSub:
		return c.lowerBinary(oi, asm.SUBQ)
	case ssa.OpIntMul:
		return c.lowerBinary(oi, asm.IMULQ)
	case ssa.OpBitOr:
		return c.lowerBinary(oi, asm.ORQ)
	case ssa.OpBitAnd:
		return c.lowerBinary(oi, asm.ANDQ)
	case ssa.OpBitXor:
		return c.lowerBinary(oi, asm.XORQ)

	case ssa.OpIntMulHigh:
		return c.lowerMulHigh(oi, true)
	case ssa.OpIntMulHighUnsigned:
		return c.lowerMulHigh(oi, false)

	case ssa.OpIntNeg:
		return c.lowerUnary(oi, asm.NEGQ)
	case ssa.OpBitNot:
		return c.lowerUnary(oi, asm.NOTQ)
	case ssa.OpBitPopcnt:
		return c.lowerUnaryToReg(oi, asm.POPCNTQ)
	case ssa.OpIntAbs:
		return c.lowerAbs(oi)
	case ssa.OpIntMin:
		return c.lowerMinMax(oi, asm.JLT)
	case ssa.OpIntMax:
		return c.lowerMinMax(oi, asm.JGT)
	case ssa.OpBitSelect:
		return c.lowerSelect(oi)
	case ssa.OpBitReverse:
		return c.lowerReverse(oi)

	case ssa.OpIntInc:
		return c.lowerIncDec(oi, asm.ADDQ)
	case ssa.OpIntDec:
		return c.lowerIncDec(oi, asm.SUBQ)

	case ssa.OpBitShiftLeft:
		return c.lowerShift(oi, asm.SHLQ)
	case ssa.OpBitShiftRight:
		return c.lowerShift(oi, asm.SHRQ)
	case ssa.OpBitRotateLeft:
		return c.lowerShift(oi, asm.ROLQ)
	case ssa.OpBitRotateRight:
		return c.lowerShift(oi, asm.RORQ)

	case ssa.OpMemLoad:
		return c.lowerMemLoad(oi)
	case ssa.OpMemStore:
		return c.lowerMemStore(oi)
	}
	return c.a.CompileStandAlone(asm.NOP)
}

// lowerBinary computes dst = a OP b for two-operand x86 arithmetic: move
// a into the working register (skipped if a already lives there), then
// OP b into it.
func (c *ctx) lowerBinary(oi regalloc.Instruction, instr asm.Instruction) asm.Node {
	dst := resultReg(oi)
	aLoc, bLoc := oi.ArgLocs[0], oi.ArgLocs[1]

	var first asm.Node
	if aLoc.IsStack() {
		first = c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(aLoc.Index()*8), dst)
	} else if asm.Register(aLoc.Index()) != dst {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, asm.Register(aLoc.Index()), dst)
	}

	var n asm.Node
	if bLoc.IsStack() {
		n = c.a.CompileMemoryToRegister(instr, SP, int64(bLoc.Index()*8), dst)
	} else {
		n = c.a.CompileRegisterToRegister(instr, asm.Register(bLoc.Index()), dst)
	}
	if first == nil {
		first = n
	}
	c.storeResult(dst, oi.ResultLoc)
	return first
}

func (c *ctx) lowerUnary(oi regalloc.Instruction, instr asm.Instruction) asm.Node {
	dst := resultReg(oi)
	src, first := c.operand(oi.ArgLocs[0], dst)
	if src != dst {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, src, dst)
	}
	n := c.a.CompileRegisterToNone(instr, dst)
	if first == nil {
		first = n
	}
	c.storeResult(dst, oi.ResultLoc)
	return first
}

func (c *ctx) lowerUnaryToReg(oi regalloc.Instruction, instr asm.Instruction) asm.Node {
	dst := resultReg(oi)
	src, _ := c.operand(oi.ArgLocs[0], scratchReg)
	first := c.a.CompileRegisterToRegister(instr, src, dst)
	c.storeResult(dst, oi.ResultLoc)
	return first
}

func (c *ctx) lowerIncDec(oi regalloc.Instruction, instr asm.Instruction) asm.Node {
	dst := resultReg(oi)
	src := oi.ArgLocs[0]
	var first asm.Node
	if src.IsStack() {
		first = c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(src.Index()*8), dst)
	} else if asm.Register(src.Index()) != dst {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, asm.Register(src.Index()), dst)
	}
	n := c.a.CompileConstToRegister(instr, 1, dst)
	if first == nil {
		first = n
	}
	c.storeResult(dst, oi.ResultLoc)
	return first
}

func (c *ctx) lowerShift(oi regalloc.Instruction, instr asm.Instruction) asm.Node {
	dst := resultReg(oi)
	src, first := c.operand(oi.ArgLocs[0], dst)
	if src != dst {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, src, dst)
	}
	n := c.a.CompileConstToRegister(instr, int64(oi.Src.Amount), dst)
	if first == nil {
		first = n
	}
	c.storeResult(dst, oi.ResultLoc)
	return first
}

// lowerMulHigh uses the one-operand MULQ/IMULQ form: RDX:RAX = RAX * src.
// AX/DX are clobbered as scratch for the duration of this single
// instruction; regalloc never hands either out as a general-purpose
// location (see DESIGN.md's note on this simplification).
func (c *ctx) lowerMulHigh(oi regalloc.Instruction, signed bool) asm.Node {
	aLoc, bLoc := oi.ArgLocs[0], oi.ArgLocs[1]
	var first asm.Node
	if aLoc.IsStack() {
		first = c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(aLoc.Index()*8), AX)
	} else {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, asm.Register(aLoc.Index()), AX)
	}
	if signed {
		c.a.CompileStandAlone(asm.CQO)
	} else {
		c.a.CompileConstToRegister(asm.XORQ, 0, DX)
	}
	instr := asm.MULQ
	if signed {
		instr = asm.IMULQ
	}
	if bLoc.IsStack() {
		c.a.CompileMemoryToNone(instr, SP, int64(bLoc.Index()*8))
	} else {
		c.a.CompileRegisterToNone(instr, asm.Register(bLoc.Index()))
	}
	c.storeResult(DX, oi.ResultLoc)
	return first
}

// lowerAbs negates in place if the value is negative.
func (c *ctx) lowerAbs(oi regalloc.Instruction) asm.Node {
	dst := resultReg(oi)
	src, first := c.operand(oi.ArgLocs[0], dst)
	if src != dst {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, src, dst)
	}
	n := c.a.CompileConstToRegister(asm.CMPQ, 0, dst)
	if first == nil {
		first = n
	}
	skip := c.a.CompileJump(asm.JGE)
	c.a.CompileRegisterToNone(asm.NEGQ, dst)
	c.a.SetJumpTargetOnNext(skip)
	c.a.CompileStandAlone(asm.NOP) // landing pad for skip's target
	c.storeResult(dst, oi.ResultLoc)
	return first
}

// lowerMinMax keeps a if takeA holds (JLT for min: jump-if-less keeps a;
// JGT for max: jump-if-greater keeps a), otherwise overwrites with b.
func (c *ctx) lowerMinMax(oi regalloc.Instruction, takeA asm.Instruction) asm.Node {
	dst := resultReg(oi)
	aLoc, bLoc := oi.ArgLocs[0], oi.ArgLocs[1]
	var first asm.Node
	if aLoc.IsStack() {
		first = c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(aLoc.Index()*8), dst)
	} else {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, asm.Register(aLoc.Index()), dst)
	}
	bReg, _ := c.operand(bLoc, scratchReg)
	c.a.CompileRegisterToRegister(asm.CMPQ, bReg, dst)
	skip := c.a.CompileJump(takeA)
	c.a.CompileRegisterToRegister(asm.MOVQ, bReg, dst)
	c.a.SetJumpTargetOnNext(skip)
	c.a.CompileStandAlone(asm.NOP)
	c.storeResult(dst, oi.ResultLoc)
	return first
}

// lowerSelect computes b ^ ((a ^ b) & mask), the branch-free identity for
// (mask&a)|(~mask&b) that needs only one temporary beyond the result.
func (c *ctx) lowerSelect(oi regalloc.Instruction) asm.Node {
	dst := resultReg(oi)
	maskLoc, aLoc, bLoc := oi.ArgLocs[0], oi.ArgLocs[1], oi.ArgLocs[2]
	aReg, first := c.operand(aLoc, scratchReg)

	n := c.a.CompileRegisterToRegister(asm.MOVQ, aReg, scratchReg)
	if first == nil {
		first = n
	}
	bReg, _ := c.operand(bLoc, dst)
	c.a.CompileRegisterToRegister(asm.XORQ, bReg, scratchReg)
	maskReg, _ := c.operand(maskLoc, dst)
	c.a.CompileRegisterToRegister(asm.ANDQ, maskReg, scratchReg)
	if bLoc.IsStack() {
		c.a.CompileMemoryToRegister(asm.MOVQ, SP, int64(bLoc.Index()*8), dst)
	} else if asm.Register(bLoc.Index()) != dst {
		c.a.CompileRegisterToRegister(asm.MOVQ, asm.Register(bLoc.Index()), dst)
	}
	c.a.CompileRegisterToRegister(asm.XORQ, scratchReg, dst)
	c.storeResult(dst, oi.ResultLoc)
	return first
}

var reverseMasks = [5]int64{
	0x5555555555555555, 0x3333333333333333, 0x0f0f0f0f0f0f0f0f,
	0x00ff00ff00ff00ff, 0x0000ffff0000ffff,
}

// lowerReverse implements the classic SWAR bit-reversal: five masked
// swap-and-combine stages (1,2,4,8,16-bit groups) plus a final plain
// 32-bit half swap, reversing all 64 bits (Hacker's Delight §7-1).
func (c *ctx) lowerReverse(oi regalloc.Instruction) asm.Node {
	dst := resultReg(oi)
	src, first := c.operand(oi.ArgLocs[0], dst)
	if src != dst {
		first = c.a.CompileRegisterToRegister(asm.MOVQ, src, dst)
	}
	amount := 1
	for _, mask := range reverseMasks {
		n := c.a.CompileRegisterToRegister(asm.MOVQ, dst, scratchReg)
		if first == nil {
			first = n
		}
		c.a.CompileConstToRegister(asm.SHRQ, int64(amount), scratchReg)
		c.a.CompileConstToRegister(asm.ANDQ, mask, scratchReg)
		c.a.CompileConstToRegister(asm.ANDQ, mask, dst)
		c.a.CompileConstToRegister(asm.SHLQ, int64(amount), dst)
		c.a.CompileRegisterToRegister(asm.ORQ, scratchReg, dst)
		amount <<= 1
	}
	n := c.a.CompileRegisterToRegister(asm.MOVQ, dst, scratchReg)
	if first == nil {
		first = n
	}
	c.a.CompileConstToRegister(asm.SHRQ, 32, scratchReg)
	c.a.CompileConstToRegister(asm.SHLQ, 32, dst)
	c.a.CompileRegisterToRegister(asm.ORQ, scratchReg, dst)
	c.storeResult(dst, oi.ResultLoc)
	return first
}

func (c *ctx) lowerMemLoad(oi regalloc.Instruction) asm.Node {
	dst := resultReg(oi)
	addr := c.bankByteOffset(oi.Src.Bank, oi.Src.Addr)
	first := c.a.CompileMemoryToRegister(asm.MOVQ, memBaseReg, addr, dst)
	c.storeResult(dst, oi.ResultLoc)
	return first
}

func (c *ctx) lowerMemStore(oi regalloc.Instruction) asm.Node {
	src, first := c.operand(oi.ArgLocs[0], scratchReg)
	addr := c.bankByteOffset(oi.Src.Bank, oi.Src.Addr)
	n := c.a.CompileRegisterToMemory(asm.MOVQ, src, memBaseReg, addr)
	if first == nil {
		first = n
	}
	return first
}

// bankByteOffset converts a decoder.Bank + word address into a byte
// offset from memBaseReg, matching the interpreter's flat
// [memory][input][output] layout (internal/interpreter's bankOffset).
func (c *ctx) bankByteOffset(bank decoder.Bank, addr uint32) int64 {
	var base uint32
	switch bank {
	case decoder.BankInput:
		base = c.banks.memorySize
	case decoder.BankOutput:
		base = c.banks.memorySize + c.banks.inputSize
	}
	return int64(base+addr) * 8
}

func (c *ctx) lowerTerm(term regalloc.Terminator) asm.Node {
	c.applyActions(term.PreActions)

	switch term.Src.Kind {
	case ssa.TermExit:
		first := c.a.CompileStandAlone(asm.NOP) // stable landing pad every predecessor jump can target
		c.emitEpilogue()
		return first
	case ssa.TermJump:
		c.applyActions(term.EdgeMoves0)
		node := c.a.CompileJump(asm.JMP)
		c.intraFixups = append(c.intraFixups, intraFixup{node: node, target: term.Src.Target0})
		return node
	case ssa.TermBranch:
		var cmpNode asm.Node
		if term.Src.Cond == ssa.CondCmp {
			aReg, n := c.operand(term.CondALoc, scratchReg)
			cmpNode = n
			bReg, n2 := c.operand(term.CondBLoc, AX)
			if cmpNode == nil {
				cmpNode = n2
			}
			n3 := c.a.CompileRegisterToRegister(asm.CMPQ, bReg, aReg)
			if cmpNode == nil {
				cmpNode = n3
			}
		} else {
			aReg, n := c.operand(term.CondALoc, scratchReg)
			cmpNode = n
			n2 := c.a.CompileConstToRegister(asm.CMPQ, 0, aReg)
			if cmpNode == nil {
				cmpNode = n2
			}
		}
		takenInstr := condJump(term.Src.Cond, term.Src.CmpKind)
		taken := c.a.CompileJump(takenInstr)
		c.intraFixups = append(c.intraFixups, intraFixup{node: taken, target: term.Src.Target0})

		c.applyActions(term.EdgeMoves1)
		fall := c.a.CompileJump(asm.JMP)
		c.intraFixups = append(c.intraFixups, intraFixup{node: fall, target: term.Src.Target1})
		return cmpNode
	}
	return nil
}

func condJump(cond ssa.CondKind, kind decoder.CompareKind) asm.Instruction {
	if cond == ssa.CondZero {
		return asm.JEQ
	}
	if cond == ssa.CondNonZero {
		return asm.JNE
	}
	switch kind {
	case decoder.CompareEq:
		return asm.JEQ
	case decoder.CompareNeq:
		return asm.JNE
	case decoder.CompareGt:
		return asm.JGT
	default:
		return asm.JLT
	}
}
