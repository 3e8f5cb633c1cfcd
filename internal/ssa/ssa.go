// Package ssa turns one function's stream of decoder.Emitter calls into
// parameterized SSA form: basic blocks whose live-across-edge register
// values are carried as explicit block parameters rather than classic
// phi nodes. Building happens in two stages. Builder (a decoder.Emitter)
// streams instructions into register-indexed blocks, splitting a new
// block at every forward branch target as it is discovered — mirroring
// how a branch's absolute target is already known the moment it is
// decoded. Build then computes dominators and dominance frontiers
// over the finished block graph, places block parameters only where a
// register's definitions actually disagree across predecessors, and
// renames every register read into the reaching SSA value with one
// dominator-tree walk.
package ssa

import (
	"github.com/evolvm/aivm/internal/decoder"
)

// Value names one SSA definition: a block parameter or an instruction
// result. The zero Value is reserved (no such value); real values start
// at 1 so a zero field reads unambiguously as "unused".
type Value uint32

// BlockID names a basic block within a single function.
type BlockID uint32

// Op identifies what an Inst computes. It mirrors decoder.Emitter's
// opcode set one-for-one (branches excepted: they become a block's
// Terminator), plus OpInitVar for the synthesized entry block. Block
// parameters are Block.Params, not an Op.
type Op byte

const (
	OpNop Op = iota
	OpCall

	OpIntAdd
	OpIntSub
	OpIntMul
	OpIntMulHigh
	OpIntMulHighUnsigned
	OpIntNeg
	OpIntAbs
	OpIntInc
	OpIntDec
	OpIntMin
	OpIntMax

	OpBitOr
	OpBitAnd
	OpBitXor
	OpBitNot
	OpBitShiftLeft
	OpBitShiftRight
	OpBitRotateLeft
	OpBitRotateRight
	OpBitSelect
	OpBitPopcnt
	OpBitReverse

	OpMemLoad
	OpMemStore

	// OpInitVar only appears in the synthesized entry block: one per
	// register, defining its first version as the constant 0. Never
	// emitted by Builder's streaming Emit* methods.
	OpInitVar
)

// Inst is one SSA instruction: operands are already-renamed Values, not
// VM register indices. Result is the Value this instruction defines; it
// is the zero Value for instructions with no result (MemStore, Call).
type Inst struct {
	Op       Op
	Result   Value
	Args     [3]Value // meaning depends on Op; unused slots are 0
	Amount   uint8    // shift/rotate amount, or BitSelect's mask operand slot
	Bank     decoder.Bank
	Addr     uint32
	CallFunc int
}

// TermKind identifies how a block ends.
type TermKind byte

const (
	TermExit TermKind = iota
	TermJump
	TermBranch
)

// CondKind identifies the condition a TermBranch evaluates.
type CondKind byte

const (
	CondCmp CondKind = iota
	CondZero
	CondNonZero
)

// Terminator ends a block. TermExit has no targets (the function
// returns). TermJump has exactly Target0/Args0 populated. TermBranch
// evaluates Cond against CondA/CondB (CondB unused for Zero/NonZero) and
// goes to Target0/Args0 if true, Target1/Args1 otherwise.
type Terminator struct {
	Kind         TermKind
	Cond         CondKind
	CmpKind      decoder.CompareKind
	CondA, CondB Value
	Target0      BlockID
	Args0        []Value
	Target1      BlockID
	Args1        []Value
}

// Block is one SSA basic block. Params are the block's incoming values,
// one per register that disagrees across predecessors at this point;
// ParamRegs records which VM register each corresponds to, in the same
// order, purely for debugging/disassembly.
type Block struct {
	ID        BlockID
	Params    []Value
	ParamRegs []uint8
	Insts     []Inst
	Term      Terminator
	Preds     []BlockID
	Succs     []BlockID
}

// LiveRange is one SSA value's half-open interval of linearized
// instruction positions, per spec.md's (var, start, end): start is the
// position it is defined, end is one past its last use. A value with no
// recorded use is dropped rather than kept with end==start, matching
// "values never used may be dropped" (the interpreter-equivalent dead
// code the register allocator would otherwise have to special-case).
type LiveRange struct {
	Var        Value
	Start, End int
}

// Function is one fully built SSA function, ready for register
// allocation and code generation. Blocks[0] is always the synthesized
// entry block (64 OpInitVar instructions, one per register, defining
// each register's first version as 0) and Blocks are listed in the
// reverse-postorder layout order register allocation and code emission
// both walk.
type Function struct {
	Blocks []*Block
	// NumValues is one past the greatest Value used, sizing arrays
	// consumers key by Value.
	NumValues int
	// LiveRanges is sorted by ascending Start, ready for linear-scan
	// allocation (internal/regalloc).
	LiveRanges []LiveRange
}

// regInst is Builder's pre-SSA instruction shape: operands are raw VM
// register indices, not yet renamed to Values.
type regInst struct {
	op       Op
	dst      uint8
	a, b     uint8
	amount   uint8
	bank     decoder.Bank
	addr     uint32
	callFunc int
	hasDst   bool
}

// branchInst's target names the proxy block wired to the taken edge's
// real destination (see Builder.branch); it is never the destination
// block itself, so that every merge point is reached only through
// single-pred, single-succ proxy blocks and no critical edge survives
// into dominance/SSA construction.
type branchInst struct {
	cond    CondKind
	cmpKind decoder.CompareKind
	a, b    uint8
	target  BlockID
}

// rawBlock is a block during streaming construction, indexed by VM
// register rather than Value.
type rawBlock struct {
	id      BlockID
	start   int // absolute instruction index this block begins at, -1 for synthesized blocks (entry, proxies)
	isInit  bool
	insts   []regInst
	branch  *branchInst // non-nil if this block ends in a conditional branch
	closed  bool
	preds   []BlockID
	fallsTo BlockID // block reached when branch (if any) is not taken, or plain fallthrough
	hasFall bool

	idom        BlockID
	hasIdom     bool
	domChildren []BlockID
	domFrontier []BlockID
}

// Builder implements decoder.Emitter, building one Function per
// function the decoder visits.
type Builder struct {
	blocks   []*rawBlock
	byStart  map[int]*rawBlock
	cur      *rawBlock
	instrIdx int
	nextID   BlockID
}

// NewBuilder returns a Builder ready to receive one function's
// instructions. Block 0 is always the synthesized entry, pre-wired to
// fall through into the real first block (id 1), matching spec.md
// §4.5's "Block 0 is synthesized and pre-populated with 64 InitVar
// instructions".
func NewBuilder() *Builder {
	b := &Builder{byStart: map[int]*rawBlock{}}
	entry := &rawBlock{id: 0, start: -1, isInit: true}
	b.blocks = append(b.blocks, entry)
	b.nextID = 1

	first := b.blockAt(0)
	entry.fallsTo = first.id
	entry.hasFall = true
	entry.closed = true
	first.preds = append(first.preds, entry.id)

	b.cur = first
	return b
}

// newProxy allocates a fresh, unshared block that exists solely to carry
// one CFG edge. If target is non-nil the proxy is immediately closed as
// a plain fallthrough into it (the taken edge of a branch, whose
// destination is always already known); otherwise it is left open for
// PrepareEmit/closeFallthrough to wire once the real next block is
// reached (the fallthrough edge of a branch).
func (b *Builder) newProxy(target *rawBlock) *rawBlock {
	rb := &rawBlock{id: b.nextID, start: -1}
	b.nextID++
	b.blocks = append(b.blocks, rb)
	if target != nil {
		rb.fallsTo = target.id
		rb.hasFall = true
		rb.closed = true
		target.preds = append(target.preds, rb.id)
	}
	return rb
}

func (b *Builder) blockAt(idx int) *rawBlock {
	if rb, ok := b.byStart[idx]; ok {
		return rb
	}
	rb := &rawBlock{id: b.nextID, start: idx}
	b.nextID++
	b.byStart[idx] = rb
	b.blocks = append(b.blocks, rb)
	return rb
}

// PrepareEmit switches the current block if instrIdx lands on a
// previously-registered block start (a forward branch's target, or the
// fallthrough of an earlier conditional branch), closing the previous
// block with a plain fallthrough edge when it wasn't already closed by a
// branch.
func (b *Builder) PrepareEmit() {
	if rb, ok := b.byStart[b.instrIdx]; ok && rb != b.cur {
		b.closeFallthrough(rb)
		b.cur = rb
	}
}

func (b *Builder) closeFallthrough(target *rawBlock) {
	if b.cur.closed {
		return
	}
	b.cur.fallsTo = target.id
	b.cur.hasFall = true
	b.cur.closed = true
	target.preds = append(target.preds, b.cur.id)
}

// Finalize closes the function's last block as an exit block. Callers
// obtain the finished Function via Build.
func (b *Builder) Finalize() {
	if !b.cur.closed {
		b.cur.closed = true
	}
}

// Build runs dominator/dominance-frontier computation, block-parameter
// placement, and renaming, returning the finished SSA Function. Call
// after Finalize.
func (b *Builder) Build() *Function {
	order := reversePostorder(b.blocks)
	computeDominators(b.blocks, order)
	computeDominanceFrontiers(b.blocks, order)
	return renameAndFinish(b.blocks, order)
}

func (b *Builder) emit(ri regInst) {
	b.cur.insts = append(b.cur.insts, ri)
}

func (b *Builder) advance() {
	b.instrIdx++
}

func (b *Builder) EmitNop() {
	b.emit(regInst{op: OpNop})
	b.advance()
}

func (b *Builder) EmitCall(target int) {
	b.emit(regInst{op: OpCall, callFunc: target})
	b.advance()
}

func (b *Builder) EmitIntAdd(dst, a, c uint8)             { b.emit3(OpIntAdd, dst, a, c) }
func (b *Builder) EmitIntSub(dst, a, c uint8)             { b.emit3(OpIntSub, dst, a, c) }
func (b *Builder) EmitIntMul(dst, a, c uint8)             { b.emit3(OpIntMul, dst, a, c) }
func (b *Builder) EmitIntMulHigh(dst, a, c uint8)         { b.emit3(OpIntMulHigh, dst, a, c) }
func (b *Builder) EmitIntMulHighUnsigned(dst, a, c uint8) { b.emit3(OpIntMulHighUnsigned, dst, a, c) }
func (b *Builder) EmitIntNeg(dst, src uint8)              { b.emit2(OpIntNeg, dst, src) }
func (b *Builder) EmitIntAbs(dst, src uint8)              { b.emit2(OpIntAbs, dst, src) }
func (b *Builder) EmitIntInc(dst uint8)                   { b.emit1(OpIntInc, dst) }
func (b *Builder) EmitIntDec(dst uint8)                   { b.emit1(OpIntDec, dst) }
func (b *Builder) EmitIntMin(dst, a, c uint8)              { b.emit3(OpIntMin, dst, a, c) }
func (b *Builder) EmitIntMax(dst, a, c uint8)              { b.emit3(OpIntMax, dst, a, c) }

func (b *Builder) EmitBitOr(dst, a, c uint8)  { b.emit3(OpBitOr, dst, a, c) }
func (b *Builder) EmitBitAnd(dst, a, c uint8) { b.emit3(OpBitAnd, dst, a, c) }
func (b *Builder) EmitBitXor(dst, a, c uint8) { b.emit3(OpBitXor, dst, a, c) }
func (b *Builder) EmitBitNot(dst, src uint8)  { b.emit2(OpBitNot, dst, src) }
func (b *Builder) EmitBitShiftLeft(dst, src, amount uint8) {
	b.emit(regInst{op: OpBitShiftLeft, dst: dst, a: src, amount: amount, hasDst: true})
	b.advance()
}
func (b *Builder) EmitBitShiftRight(dst, src, amount uint8) {
	b.emit(regInst{op: OpBitShiftRight, dst: dst, a: src, amount: amount, hasDst: true})
	b.advance()
}
func (b *Builder) EmitBitRotateLeft(dst, src, amount uint8) {
	b.emit(regInst{op: OpBitRotateLeft, dst: dst, a: src, amount: amount, hasDst: true})
	b.advance()
}
func (b *Builder) EmitBitRotateRight(dst, src, amount uint8) {
	b.emit(regInst{op: OpBitRotateRight, dst: dst, a: src, amount: amount, hasDst: true})
	b.advance()
}
func (b *Builder) EmitBitSelect(dst, mask, a, c uint8) {
	// mask is folded into regInst.amount, which is otherwise unused by
	// three-operand ops; b.a/b.b carry the two selected operands.
	b.emit(regInst{op: OpBitSelect, dst: dst, a: a, b: c, amount: mask, hasDst: true})
	b.advance()
}
func (b *Builder) EmitBitPopcnt(dst, src uint8)  { b.emit2(OpBitPopcnt, dst, src) }
func (b *Builder) EmitBitReverse(dst, src uint8) { b.emit2(OpBitReverse, dst, src) }

func (b *Builder) EmitBranchCmp(a, c uint8, kind decoder.CompareKind, offset uint32) {
	b.branch(CondCmp, kind, a, c, offset)
}
func (b *Builder) EmitBranchZero(src uint8, offset uint32) {
	b.branch(CondZero, 0, src, 0, offset)
}
func (b *Builder) EmitBranchNonZero(src uint8, offset uint32) {
	b.branch(CondNonZero, 0, src, 0, offset)
}

func (b *Builder) EmitMemLoad(bank decoder.Bank, dst uint8, addr uint32) {
	b.emit(regInst{op: OpMemLoad, dst: dst, bank: bank, addr: addr, hasDst: true})
	b.advance()
}
func (b *Builder) EmitMemStore(bank decoder.Bank, addr uint32, src uint8) {
	b.emit(regInst{op: OpMemStore, a: src, bank: bank, addr: addr})
	b.advance()
}

func (b *Builder) emit1(op Op, dst uint8) {
	b.emit(regInst{op: op, dst: dst, hasDst: true})
	b.advance()
}

func (b *Builder) emit2(op Op, dst, src uint8) {
	b.emit(regInst{op: op, dst: dst, a: src, hasDst: true})
	b.advance()
}

func (b *Builder) emit3(op Op, dst, a, c uint8) {
	b.emit(regInst{op: op, dst: dst, a: a, b: c, hasDst: true})
	b.advance()
}

// branch closes the current block with a conditional terminator. Per
// spec.md §4.5, both successor edges are split through proxy blocks
// before SSA construction runs: takenProxy is fully resolved now (the
// target instruction index is already known), fallProxy is left pending
// and resolved by PrepareEmit the moment the fallthrough instruction is
// reached (which may itself be a previously-registered branch target).
func (b *Builder) branch(cond CondKind, kind decoder.CompareKind, a, c uint8, offset uint32) {
	targetIdx := b.instrIdx + 1 + int(offset)
	target := b.blockAt(targetIdx)
	takenProxy := b.newProxy(target)
	fallProxy := b.newProxy(nil)

	b.cur.branch = &branchInst{cond: cond, cmpKind: kind, a: a, b: c, target: takenProxy.id}
	b.cur.fallsTo = fallProxy.id
	b.cur.hasFall = true
	b.cur.closed = true

	b.cur = fallProxy
	b.advance()
}
