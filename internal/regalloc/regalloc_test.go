package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evolvm/aivm/internal/decoder"
	"github.com/evolvm/aivm/internal/ssa"
)

// straightLineFn builds r2 = r0 + r1 then stores r2 to mem[0], with no
// branches: the simplest function with more live values than a tiny
// register budget can hold at once, once InitVar pollutes the range set.
func straightLineFn() *ssa.Function {
	b := ssa.NewBuilder()
	b.PrepareEmit()
	b.EmitIntAdd(2, 0, 1)
	b.PrepareEmit()
	b.EmitMemStore(decoder.BankMemory, 0, 2)
	b.Finalize()
	return b.Build()
}

func noMemOperand(ssa.Op) bool { return false }

func TestAllocateAssignsEveryLiveValueALocation(t *testing.T) {
	fn := straightLineFn()
	alloc := Allocate(fn, Policy{NumRegs: 2, SupportsMemOperand: noMemOperand})

	var sawAdd, sawStore bool
	for _, blk := range alloc.Blocks {
		for _, inst := range blk.Insts {
			switch inst.Src.Op {
			case ssa.OpIntAdd:
				sawAdd = true
				require.False(t, inst.Dead)
				require.True(t, inst.HasResult)
				require.GreaterOrEqual(t, inst.ResultLoc.Index(), 0)
			case ssa.OpMemStore:
				sawStore = true
				require.False(t, inst.Dead)
				require.GreaterOrEqual(t, inst.ArgLocs[0].Index(), 0)
			}
		}
	}
	require.True(t, sawAdd)
	require.True(t, sawStore)
}

func TestAllocateSpillsWhenRegistersExhausted(t *testing.T) {
	// r0 and r1 are both live across the add, competing for a single
	// physical register: at least one must land on the stack.
	fn := straightLineFn()
	alloc := Allocate(fn, Policy{NumRegs: 1, SupportsMemOperand: noMemOperand})
	require.Greater(t, alloc.StackSize, 0, "with only 1 register, two simultaneously-live values can't both fit")
}

func TestPhysicalVarRegisterVsStack(t *testing.T) {
	r := RegPhysicalVar(3)
	require.False(t, r.IsStack())
	require.Equal(t, 3, r.Index())

	s := StackPhysicalVar(7)
	require.True(t, s.IsStack())
	require.Equal(t, 7, s.Index())
}

// doubleWriteFn builds r2 = r0 + r1 twice in a row, then stores r2: the
// first write's SSA result is overwritten by the second before anyone
// reads it, so it has no use at all and is dropped from fn.LiveRanges
// during linearize (see internal/ssa), never getting a loc entry. The
// second write's result is read by the store, so it stays live.
func doubleWriteFn() *ssa.Function {
	b := ssa.NewBuilder()
	b.PrepareEmit()
	b.EmitIntAdd(2, 0, 1)
	b.PrepareEmit()
	b.EmitIntAdd(2, 0, 1)
	b.PrepareEmit()
	b.EmitMemStore(decoder.BankMemory, 0, 2)
	b.Finalize()
	return b.Build()
}

func TestDeadInstructionIsMarkedNotEmitted(t *testing.T) {
	fn := doubleWriteFn()
	alloc := Allocate(fn, Policy{NumRegs: 12, SupportsMemOperand: func(ssa.Op) bool { return true }})

	var adds []Instruction
	for _, blk := range alloc.Blocks {
		for _, inst := range blk.Insts {
			if inst.Src.Op == ssa.OpIntAdd {
				adds = append(adds, inst)
			}
		}
	}
	require.Len(t, adds, 2, "expected both int_add instructions to survive into the allocated function")
	require.True(t, adds[0].Dead, "the first write's result is never read, so it must be marked dead")
	require.False(t, adds[1].Dead, "the second write's result is read by the store, so it must stay live")

	var store Instruction
	for _, blk := range alloc.Blocks {
		for _, inst := range blk.Insts {
			if inst.Src.Op == ssa.OpMemStore {
				store = inst
			}
		}
	}
	require.Equal(t, adds[1].ResultLoc, store.ArgLocs[0],
		"the store must read the second add's result location, not a bogus default")
}

func TestAllocateWithAmpleRegistersNeverSpills(t *testing.T) {
	fn := straightLineFn()
	alloc := Allocate(fn, Policy{NumRegs: 64, SupportsMemOperand: noMemOperand})
	for _, blk := range alloc.Blocks {
		for _, inst := range blk.Insts {
			for _, act := range inst.PreActions {
				require.NotEqual(t, Spill, act.Kind, "64 registers is enough to hold every one of the 64 InitVar values live at once")
			}
		}
	}
}
