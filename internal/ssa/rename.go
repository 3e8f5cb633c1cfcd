package ssa

import "sort"

// regDefs returns the bitmask (bit i set => register i is defined) of
// every register rb assigns to, plus the synthesized entry block, which
// by construction defines all 64 (spec.md §4.5's 64 InitVar instructions).
func regDefs(rb *rawBlock) uint64 {
	if rb.isInit {
		return ^uint64(0)
	}
	var mask uint64
	for _, ri := range rb.insts {
		if ri.hasDst {
			mask |= 1 << ri.dst
		}
	}
	return mask
}

// insertBlockParams runs spec.md §4.5 step 4: for every register, seed a
// worklist with its defining blocks and push the register onto every
// block in the iterated dominance frontier, stopping once a block has
// already been given that register as a parameter.
func insertBlockParams(blocks []*rawBlock) [][]uint8 {
	params := make([][]uint8, len(blocks))
	hasParam := make([][64]bool, len(blocks))

	for reg := uint8(0); reg < 64; reg++ {
		var worklist []BlockID
		queued := make([]bool, len(blocks))
		for _, rb := range blocks {
			if regDefs(rb)&(1<<reg) != 0 {
				worklist = append(worklist, rb.id)
				queued[rb.id] = true
			}
		}
		for len(worklist) > 0 {
			id := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, d := range blocks[id].domFrontier {
				if hasParam[d][reg] {
					continue
				}
				hasParam[d][reg] = true
				params[d] = append(params[d], reg)
				if !queued[d] {
					queued[d] = true
					worklist = append(worklist, d)
				}
			}
		}
	}
	return params
}

// site locates a definition or use within a block: slot 0 is the
// block's parameter list, slot i (1 <= i <= len(Insts)) is Insts[i-1],
// and slot len(Insts)+1 is the terminator. This gives each site a
// position independent of the order blocks are *visited* during
// renaming (a dominator-tree DFS), which is resolved to an actual
// linear instruction index afterwards by walking blocks in their final
// layout order (see linearize).
type site struct {
	block BlockID
	slot  int
}

// renameState carries the per-register SSA value stack and the
// def/use site bookkeeping across the dominator-tree DFS.
type renameState struct {
	stack   [64][]Value
	nextVer [64]uint32
	slot    int // current slot within the block being visited

	defSite map[Value]site
	uses    map[Value][]site
}

func newRenameState() *renameState {
	return &renameState{defSite: map[Value]site{}, uses: map[Value][]site{}}
}

func (s *renameState) push(reg uint8, block BlockID) Value {
	s.nextVer[reg]++
	v := Value(reg) | Value(s.nextVer[reg])<<6
	s.stack[reg] = append(s.stack[reg], v)
	s.defSite[v] = site{block: block, slot: s.slot}
	return v
}

func (s *renameState) top(reg uint8) Value {
	st := s.stack[reg]
	return st[len(st)-1]
}

func (s *renameState) use(v Value, block BlockID) {
	s.uses[v] = append(s.uses[v], site{block: block, slot: s.slot})
}

func (s *renameState) pop(reg uint8, n int) {
	s.stack[reg] = s.stack[reg][:len(s.stack[reg])-n]
}

// renameAndFinish runs block-parameter insertion then a single
// dominator-tree DFS that renames every register reference to a
// versioned Value and builds each block's outgoing Args, followed by a
// linearization pass (in rpo, the final block layout order) that turns
// the collected def/use sites into LiveRanges. rpo supplies both that
// layout order and, via domChildren, the tree the renaming DFS descends.
func renameAndFinish(blocks []*rawBlock, rpo []BlockID) *Function {
	paramRegs := insertBlockParams(blocks)

	out := make([]*Block, len(blocks))
	for _, id := range rpo {
		rb := blocks[id]
		out[id] = &Block{ID: id, Preds: append([]BlockID(nil), rb.preds...), Succs: blockSuccs(blocks, id)}
	}

	st := newRenameState()
	var dfs func(id BlockID)
	dfs = func(id BlockID) {
		rb := blocks[id]
		blk := out[id]

		st.slot = 0
		for _, reg := range paramRegs[id] {
			v := st.push(reg, id)
			blk.Params = append(blk.Params, v)
			blk.ParamRegs = append(blk.ParamRegs, reg)
		}

		if rb.isInit {
			for reg := uint8(0); reg < 64; reg++ {
				st.slot++
				v := st.push(reg, id)
				blk.Insts = append(blk.Insts, Inst{Op: OpInitVar, Result: v})
			}
		}

		for _, ri := range rb.insts {
			st.slot++
			inst := Inst{Op: ri.op, Amount: ri.amount, Bank: ri.bank, Addr: ri.addr, CallFunc: ri.callFunc}
			switch ri.op {
			case OpNop, OpCall:
				// No register operands.
			case OpIntInc, OpIntDec:
				// Read-modify-write: source is the current value of dst.
				inst.Args[0] = st.top(ri.dst)
				st.use(inst.Args[0], id)
			case OpIntNeg, OpIntAbs, OpBitNot, OpBitPopcnt, OpBitReverse,
				OpBitShiftLeft, OpBitShiftRight, OpBitRotateLeft, OpBitRotateRight:
				inst.Args[0] = st.top(ri.a)
				st.use(inst.Args[0], id)
			case OpBitSelect:
				inst.Args[0] = st.top(ri.amount) // mask register, see Builder.EmitBitSelect in ssa.go
				inst.Args[1] = st.top(ri.a)
				inst.Args[2] = st.top(ri.b)
				st.use(inst.Args[0], id)
				st.use(inst.Args[1], id)
				st.use(inst.Args[2], id)
			case OpMemLoad:
				// No register operand; dst is written, not read.
			case OpMemStore:
				inst.Args[0] = st.top(ri.a)
				st.use(inst.Args[0], id)
			default:
				inst.Args[0] = st.top(ri.a)
				inst.Args[1] = st.top(ri.b)
				st.use(inst.Args[0], id)
				st.use(inst.Args[1], id)
			}
			if ri.hasDst {
				inst.Result = st.push(ri.dst, id)
			}
			blk.Insts = append(blk.Insts, inst)
		}

		st.slot = len(blk.Insts) + 1
		blk.Term = buildTerminator(rb, id, paramRegs, st)

		for _, child := range rb.domChildren {
			dfs(child)
		}

		for _, reg := range paramRegs[id] {
			st.pop(reg, 1)
		}
		if rb.isInit {
			for reg := uint8(0); reg < 64; reg++ {
				st.pop(reg, 1)
			}
		}
		for i := len(rb.insts) - 1; i >= 0; i-- {
			if rb.insts[i].hasDst {
				st.pop(rb.insts[i].dst, 1)
			}
		}
	}
	dfs(rpo[0])

	fn := &Function{}
	for _, id := range rpo {
		fn.Blocks = append(fn.Blocks, out[id])
	}
	fn.LiveRanges = linearize(out, rpo, st)
	fn.NumValues = maxValueEncoding(fn.LiveRanges) + 1
	return fn
}

// linearize assigns every block a base position following rpo (the
// final emission order) and resolves each value's recorded def/use
// sites into one LiveRange. Values with no recorded use are dropped
// (spec.md §4.5: "dead"/never-used values may be dropped).
func linearize(blocks []*Block, rpo []BlockID, st *renameState) []LiveRange {
	base := make(map[BlockID]int, len(rpo))
	pos := 0
	for _, id := range rpo {
		base[id] = pos
		pos += len(blocks[id].Insts) + 2 // params slot + insts + terminator slot
	}
	position := func(s site) int { return base[s.block] + s.slot }

	var ranges []LiveRange
	for v, def := range st.defSite {
		sites := st.uses[v]
		if len(sites) == 0 {
			continue
		}
		end := position(def)
		for _, u := range sites {
			if p := position(u); p > end {
				end = p
			}
		}
		ranges = append(ranges, LiveRange{Var: v, Start: position(def), End: end + 1})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges
}

// buildArgs gathers the current top-of-stack value for each register the
// target block expects as a parameter.
func buildArgs(target BlockID, paramRegs [][]uint8, st *renameState, from BlockID) []Value {
	regs := paramRegs[target]
	if len(regs) == 0 {
		return nil
	}
	args := make([]Value, len(regs))
	for i, reg := range regs {
		args[i] = st.top(reg)
		st.use(args[i], from)
	}
	return args
}

func buildTerminator(rb *rawBlock, id BlockID, paramRegs [][]uint8, st *renameState) Terminator {
	if rb.branch != nil {
		b := rb.branch
		t := Terminator{
			Kind:    TermBranch,
			Cond:    b.cond,
			CmpKind: b.cmpKind,
			Target0: b.target,
			Target1: rb.fallsTo,
		}
		t.CondA = st.top(b.a)
		st.use(t.CondA, id)
		if b.cond == CondCmp {
			t.CondB = st.top(b.b)
			st.use(t.CondB, id)
		}
		t.Args0 = buildArgs(b.target, paramRegs, st, id)
		t.Args1 = buildArgs(rb.fallsTo, paramRegs, st, id)
		return t
	}
	if rb.hasFall {
		return Terminator{Kind: TermJump, Target0: rb.fallsTo, Args0: buildArgs(rb.fallsTo, paramRegs, st, id)}
	}
	return Terminator{Kind: TermExit}
}

func maxValueEncoding(lr []LiveRange) int {
	max := 0
	for _, r := range lr {
		if int(r.Var) > max {
			max = int(r.Var)
		}
	}
	return max
}
