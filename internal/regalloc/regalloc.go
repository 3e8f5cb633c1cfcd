// Package regalloc implements spec.md §4.6's linear-scan register
// allocator: it walks an SSA function's live ranges in start order,
// spilling the longest-remaining live value whenever physical registers
// are exhausted, and resolves every instruction's operands to either a
// physical register or a stack slot, inserting reg<->stack moves where
// the host cannot address an operand in place.
//
// The vocabulary (PhysicalVar, spill/unspill Actions) is the teacher's
// own (internal/engine/wazevo/backend/regalloc's VReg/RealReg/LiveRange
// split), generalized from that package's graph-coloring core to the
// classic Poletto-Sarkar linear-scan-by-start algorithm spec.md calls
// for.
package regalloc

import (
	"sort"

	"github.com/evolvm/aivm/internal/ssa"
)

// PhysicalVar is a tagged location a Value has been assigned: either one
// of the host's physical registers or a stack slot, per spec.md §3.
type PhysicalVar uint32

const stackTag PhysicalVar = 1 << 31

// condOp is a sentinel Op value never produced by the decoder/SSA
// builder, used to force resolve() to treat both operands of a branch
// comparison as register-only (no Policy.SupportsMemOperand declares
// support for it).
const condOp ssa.Op = 0xFF

// RegPhysicalVar names physical register idx.
func RegPhysicalVar(idx int) PhysicalVar { return PhysicalVar(idx) }

// StackPhysicalVar names stack slot idx (8 bytes each, per spec.md §4.6).
func StackPhysicalVar(idx int) PhysicalVar { return PhysicalVar(idx) | stackTag }

// IsStack reports whether p names a stack slot rather than a register.
func (p PhysicalVar) IsStack() bool { return p&stackTag != 0 }

// Index returns the register index (IsStack() == false) or stack slot
// index (IsStack() == true) p names.
func (p PhysicalVar) Index() int { return int(p &^ stackTag) }

// ActionKind identifies what an Action does to a value's location.
type ActionKind byte

const (
	// Spill evicts a value from a register to a stack slot, emitted
	// when a new live range is admitted and every register is in use
	// (spec.md §4.6 step 2).
	Spill ActionKind = iota
	// Unspill loads a value from its stack slot into a freshly
	// allocated register because the instruction using it needs a
	// register operand (spec.md §4.6 step 3).
	Unspill
	// Move copies a value between two locations to satisfy a block
	// parameter on a CFG edge — the parallel-copy resolution every
	// SSA-with-block-parameters allocator needs once all locations are
	// known (see Block.ParamSlots).
	Move
)

// Action is one location change emitted alongside an instruction.
type Action struct {
	Kind     ActionKind
	Var      ssa.Value
	From, To PhysicalVar
}

// Policy describes what the host machine's instruction set can do
// in-place, letting the allocator decide when an operand must be
// unspilled into a register rather than addressed directly in memory.
type Policy struct {
	// NumRegs is the number of allocatable physical registers, R in
	// spec.md §4.6 (internal/amd64 uses len(allocatableRegs), reserving
	// the rest for the ABI, scratch use and the memory-bank pointer).
	NumRegs int
	// SupportsMemOperand reports whether op's host lowering can take one
	// operand directly from a stack slot rather than a register.
	SupportsMemOperand func(op ssa.Op) bool
}

// Instruction is one SSA instruction after allocation: Src is
// unmodified, ArgLocs/ResultLoc give its operands' and result's
// resolved locations, and PreActions lists the moves that must be
// emitted immediately before it (spills admitted alongside it, unspills
// its own operand resolution required). Dead instructions (an operand
// or result whose value was never admitted — spec.md §4.6 step 3's "the
// instruction is dead") are kept in the stream with Dead set so callers
// can skip emission without re-deriving liveness.
type Instruction struct {
	Src        ssa.Inst
	PreActions []Action
	ArgLocs    [3]PhysicalVar
	ResultLoc  PhysicalVar
	HasResult  bool
	Dead       bool
}

// Terminator is a block's terminator after allocation. EdgeMoves0/1
// resolve Src.Args0/Args1 into the taken/fallthrough target's fixed
// parameter slots (see ParamSlots).
type Terminator struct {
	Src                  ssa.Terminator
	PreActions           []Action
	CondALoc, CondBLoc   PhysicalVar
	EdgeMoves0, EdgeMoves1 []Action
}

// Block is one allocated basic block. ParamSlots gives each of the
// block's incoming parameters (ssa.Block.Params, same order) a fixed
// stack slot: since a predecessor may be allocated before or after its
// successor in the single forward pass over live ranges, block
// parameters are assigned a stable incoming location up front rather
// than competing for registers like ordinary values. A parameter may still be promoted into a register the
// first time an instruction needs it in one, exactly like any other
// spilled value.
type Block struct {
	ID         ssa.BlockID
	ParamSlots []PhysicalVar
	Insts      []Instruction
	Term       Terminator
}

// Function is one fully allocated SSA function, ready for code emission.
type Function struct {
	Blocks       []*Block
	StackSize    int
	UsedRegsMask uint32
}

// allocState tracks, for the duration of Allocate, which live range (if
// any) currently occupies each physical register and each stack slot,
// plus the evolving Value -> PhysicalVar map spec.md §4.6 describes.
type allocState struct {
	policy Policy

	regOwner  []ssa.Value // len == policy.NumRegs; zero Value means free
	regRange  []ssa.LiveRange
	stackFree []int // free-list of stack slots for reuse (filled by freeSlot; expiry frees only registers)
	nextSlot  int
	maxSlot   int

	loc        map[ssa.Value]PhysicalVar
	rangeOf    map[ssa.Value]ssa.LiveRange
	usedRegs   uint32
}

func newAllocState(policy Policy) *allocState {
	return &allocState{
		policy:   policy,
		regOwner: make([]ssa.Value, policy.NumRegs),
		regRange: make([]ssa.LiveRange, policy.NumRegs),
		loc:      map[ssa.Value]PhysicalVar{},
		rangeOf:  map[ssa.Value]ssa.LiveRange{},
	}
}

func (a *allocState) allocSlot() int {
	if n := len(a.stackFree); n > 0 {
		s := a.stackFree[n-1]
		a.stackFree = a.stackFree[:n-1]
		return s
	}
	s := a.nextSlot
	a.nextSlot++
	if a.nextSlot > a.maxSlot {
		a.maxSlot = a.nextSlot
	}
	return s
}

func (a *allocState) freeSlot(s int) {
	a.stackFree = append(a.stackFree, s)
}

// freeReg finds an unused register, or -1 if none remain.
func (a *allocState) freeReg() int {
	for i, owner := range a.regOwner {
		if owner == 0 {
			return i
		}
	}
	return -1
}

// Allocate runs the linear-scan pass over fn and returns the allocated
// Function. Allocate recomputes the linearized per-instruction
// positions used by fn.LiveRanges (see internal/ssa's renaming pass) by
// walking fn.Blocks in order, since both use the identical (block-list-order, params=slot 0, inst
// i=slot i+1, terminator=last slot) convention.
func Allocate(fn *ssa.Function, policy Policy) *Function {
	a := newAllocState(policy)

	base := make(map[ssa.BlockID]int, len(fn.Blocks))
	pos := 0
	for _, blk := range fn.Blocks {
		base[blk.ID] = pos
		pos += len(blk.Insts) + 2
	}

	ranges := append([]ssa.LiveRange(nil), fn.LiveRanges...)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	for _, r := range ranges {
		a.rangeOf[r.Var] = r
	}

	// Block parameters get a fixed incoming stack slot up front (see
	// Block.ParamSlots's doc comment) so edge resolution never depends
	// on allocation order between a predecessor and its successor.
	paramSlot := map[ssa.Value]PhysicalVar{}
	for _, blk := range fn.Blocks {
		for _, p := range blk.Params {
			slot := a.allocSlot()
			paramSlot[p] = StackPhysicalVar(slot)
			a.loc[p] = paramSlot[p]
		}
	}

	nextRange := 0
	expireAndAdmit := func(i int) []Action {
		var actions []Action
		for reg, owner := range a.regOwner {
			if owner != 0 && a.regRange[reg].End == i {
				a.regOwner[reg] = 0
			}
		}
		for nextRange < len(ranges) && ranges[nextRange].Start == i {
			r := ranges[nextRange]
			nextRange++
			if _, isParam := paramSlot[r.Var]; isParam {
				continue // already placed on its fixed incoming slot
			}
			if reg := a.freeReg(); reg >= 0 {
				a.regOwner[reg] = r.Var
				a.regRange[reg] = r
				a.loc[r.Var] = RegPhysicalVar(reg)
				a.usedRegs |= 1 << uint(reg)
				continue
			}
			victimReg, victim := -1, ssa.LiveRange{}
			for reg, owner := range a.regOwner {
				if owner == 0 {
					continue
				}
				cand := a.rangeOf[owner]
				if victimReg == -1 || cand.End > victim.End {
					victimReg, victim = reg, cand
				}
			}
			if victimReg == -1 || victim.End <= r.End {
				slot := a.allocSlot()
				a.loc[r.Var] = StackPhysicalVar(slot)
				continue
			}
			slot := a.allocSlot()
			actions = append(actions, Action{Kind: Spill, Var: victim.Var, From: RegPhysicalVar(victimReg), To: StackPhysicalVar(slot)})
			a.loc[victim.Var] = StackPhysicalVar(slot)
			a.regOwner[victimReg] = r.Var
			a.regRange[victimReg] = r
			a.loc[r.Var] = RegPhysicalVar(victimReg)
			a.usedRegs |= 1 << uint(victimReg)
		}
		return actions
	}

	resolve := func(i int, op ssa.Op, used []ssa.Value) ([]PhysicalVar, []Action, bool) {
		var actions []Action
		locs := make([]PhysicalVar, len(used))
		stackUsed := false
		memOK := a.policy.SupportsMemOperand != nil && a.policy.SupportsMemOperand(op)
		for idx, v := range used {
			if v == 0 {
				continue
			}
			loc, ok := a.loc[v]
			if !ok {
				return nil, nil, false // dead: value never admitted
			}
			if loc.IsStack() && (stackUsed || !memOK) {
				// Conflicting stack operand or host can't take a memory
				// operand here: unspill into a fresh register.
				reg := a.freeReg()
				if reg < 0 {
					reg = a.evictForUnspill(&actions, i)
				}
				a.regOwner[reg] = v
				a.regRange[reg] = a.rangeOf[v]
				a.loc[v] = RegPhysicalVar(reg)
				a.usedRegs |= 1 << uint(reg)
				actions = append(actions, Action{Kind: Unspill, Var: v, From: loc, To: RegPhysicalVar(reg)})
				loc = RegPhysicalVar(reg)
			}
			if loc.IsStack() {
				stackUsed = true
			}
			locs[idx] = loc
		}
		return locs, actions, true
	}

	out := &Function{}
	for _, blk := range fn.Blocks {
		ob := &Block{ID: blk.ID}
		for _, p := range blk.Params {
			ob.ParamSlots = append(ob.ParamSlots, paramSlot[p])
		}

		p := base[blk.ID]
		expireAndAdmit(p) // params were pre-placed; this only expires ranges ending at block entry

		for idx, srcInst := range blk.Insts {
			ip := p + 1 + idx
			admitActions := expireAndAdmit(ip)
			args := operandsOf(srcInst)
			locs, resolveActions, live := resolve(ip, srcInst.Op, args)
			oi := Instruction{Src: srcInst, PreActions: append(admitActions, resolveActions...)}
			if !live {
				oi.Dead = true
				ob.Insts = append(ob.Insts, oi)
				continue
			}
			if hasResult(srcInst) {
				loc, ok := a.loc[srcInst.Result]
				if !ok {
					// Computed but never read: dropped from fn.LiveRanges
					// by linearize, so it never got a loc entry. Per
					// spec.md §4.6 step 3 a var missing from the live-var
					// map marks its instruction dead whether the var is
					// used or defined, the same as the used-operand check
					// above -- otherwise ResultLoc would zero-value to
					// PhysicalVar(0) (register index 0) and the generated
					// code would clobber whatever actually lives in that
					// register.
					oi.Dead = true
					ob.Insts = append(ob.Insts, oi)
					continue
				}
				oi.HasResult = true
				oi.ResultLoc = loc
			}
			for k, l := range locs {
				oi.ArgLocs[k] = l
			}
			ob.Insts = append(ob.Insts, oi)
		}

		tp := p + len(blk.Insts) + 1
		termActions := expireAndAdmit(tp)
		term := Terminator{Src: blk.Term, PreActions: termActions}
		if blk.Term.Kind == ssa.TermBranch {
			// Branch conditions are never backed by a policy-declared
			// mem-operand op, so condOp always forces both sides into
			// registers before the compare is lowered.
			locs, actions, _ := resolve(tp, condOp, []ssa.Value{blk.Term.CondA, blk.Term.CondB})
			term.PreActions = append(term.PreActions, actions...)
			if len(locs) == 2 {
				term.CondALoc, term.CondBLoc = locs[0], locs[1]
			}
		}
		term.EdgeMoves0 = edgeMoves(blk.Term.Args0, blk.Term.Target0, fn, paramSlot, a)
		if blk.Term.Kind == ssa.TermBranch {
			term.EdgeMoves1 = edgeMoves(blk.Term.Args1, blk.Term.Target1, fn, paramSlot, a)
		}
		ob.Term = term

		out.Blocks = append(out.Blocks, ob)
	}

	// StackSize is the high-water mark of stack slots allocated over the
	// whole function.
	out.StackSize = a.maxSlot
	out.UsedRegsMask = a.usedRegs
	return out
}

// evictForUnspill is used when every register is occupied at a resolve
// step: it spills the active range with the farthest-away end, the same
// victim-selection rule as normal admission.
func (a *allocState) evictForUnspill(actions *[]Action, i int) int {
	victimReg, victim := -1, ssa.LiveRange{}
	for reg, owner := range a.regOwner {
		if owner == 0 {
			continue
		}
		cand := a.rangeOf[owner]
		if victimReg == -1 || cand.End > victim.End {
			victimReg, victim = reg, cand
		}
	}
	slot := a.allocSlot()
	*actions = append(*actions, Action{Kind: Spill, Var: victim.Var, From: RegPhysicalVar(victimReg), To: StackPhysicalVar(slot)})
	a.loc[victim.Var] = StackPhysicalVar(slot)
	a.regOwner[victimReg] = 0
	return victimReg
}

// edgeMoves resolves Src.Args[i] into target's fixed parameter slots,
// emitting a Move action wherever the source's current location differs
// from the slot the target expects to find it in (spec.md §4.6's
// cross-edge parallel copy, see Block.ParamSlots).
func edgeMoves(args []ssa.Value, target ssa.BlockID, fn *ssa.Function, paramSlot map[ssa.Value]PhysicalVar, a *allocState) []Action {
	if len(args) == 0 {
		return nil
	}
	var tb *ssa.Block
	for _, b := range fn.Blocks {
		if b.ID == target {
			tb = b
			break
		}
	}
	var moves []Action
	for i, v := range args {
		to := paramSlot[tb.Params[i]]
		from, ok := a.loc[v]
		if !ok || from == to {
			continue
		}
		moves = append(moves, Action{Kind: Move, Var: v, From: from, To: to})
	}
	return moves
}

func operandsOf(inst ssa.Inst) []ssa.Value {
	return []ssa.Value{inst.Args[0], inst.Args[1], inst.Args[2]}
}

func hasResult(inst ssa.Inst) bool {
	switch inst.Op {
	case ssa.OpMemStore, ssa.OpCall, ssa.OpNop:
		return false
	default:
		return inst.Result != 0
	}
}
