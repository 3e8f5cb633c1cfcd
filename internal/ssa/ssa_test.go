package ssa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evolvm/aivm/internal/decoder"
)

// straightLine builds r2 = r0 + r1 with no branches, the simplest
// possible function body.
func straightLine() *Builder {
	b := NewBuilder()
	b.PrepareEmit()
	b.EmitIntAdd(2, 0, 1)
	b.Finalize()
	return b
}

func TestEntryBlockDefinesAllRegisters(t *testing.T) {
	fn := straightLine().Build()
	entry := fn.Blocks[0]
	require.Len(t, entry.Insts, 64, "entry block must define all 64 registers")
	for i, inst := range entry.Insts {
		require.Equal(t, OpInitVar, inst.Op)
		require.NotZero(t, inst.Result, "register %d's init value must have a non-zero SSA id", i)
	}
}

func TestStraightLineDropsUnusedAddResult(t *testing.T) {
	fn := straightLine().Build()
	var addResult Value
	found := false
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			if inst.Op == OpIntAdd {
				addResult = inst.Result
				found = true
			}
		}
	}
	require.True(t, found, "expected an OpIntAdd instruction somewhere in the function")
	// The add's result is never read again in this function, so per
	// spec.md §4.5 it is dropped rather than kept with a zero-length
	// range.
	for _, lr := range fn.LiveRanges {
		require.NotEqual(t, addResult, lr.Var, "unused result must be dropped from LiveRanges")
	}
}

// branchingFunction builds:
//
//	0: branch_zero r0, +2   (skips the next two instructions if r0==0)
//	1: int_add r1, r1, r1
//	2: int_add r1, r1, r1
//	3: int_inc r1
//
// so r1's definition reaching instruction 3 disagrees between the taken
// and fall-through edges, forcing a block parameter at their merge.
func branchingFunction() *Builder {
	b := NewBuilder()
	b.PrepareEmit()
	b.EmitBranchZero(0, 2)
	b.PrepareEmit()
	b.EmitIntAdd(1, 1, 1)
	b.PrepareEmit()
	b.EmitIntAdd(1, 1, 1)
	b.PrepareEmit()
	b.EmitIntInc(1)
	b.Finalize()
	return b
}

func TestBranchMergePointGetsABlockParameter(t *testing.T) {
	fn := branchingFunction().Build()

	var mergeBlock *Block
	for _, blk := range fn.Blocks {
		if len(blk.Preds) >= 2 {
			mergeBlock = blk
			break
		}
	}
	require.NotNil(t, mergeBlock, "expected a merge block with 2+ predecessors")
	require.Contains(t, mergeBlock.ParamRegs, uint8(1), "register 1 disagrees across the branch, so it must be a block parameter at the merge")
}

func TestBranchingFunctionHasNoCriticalEdges(t *testing.T) {
	fn := branchingFunction().Build()
	for _, blk := range fn.Blocks {
		if blk.Term.Kind != TermBranch {
			continue
		}
		// Per spec.md §4.5, every conditional branch is split through
		// proxy blocks: both targets must themselves have exactly one
		// predecessor (this block).
		t0 := findBlock(fn, blk.Term.Target0)
		t1 := findBlock(fn, blk.Term.Target1)
		require.Len(t, t0.Preds, 1, "taken edge must go through a single-pred proxy")
		require.Len(t, t1.Preds, 1, "fallthrough edge must go through a single-pred proxy")
	}
}

func findBlock(fn *Function, id BlockID) *Block {
	for _, b := range fn.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func TestLiveRangesSortedByStart(t *testing.T) {
	fn := branchingFunction().Build()
	for i := 1; i < len(fn.LiveRanges); i++ {
		require.LessOrEqual(t, fn.LiveRanges[i-1].Start, fn.LiveRanges[i].Start)
	}
}

func TestMemStoreHasNoResult(t *testing.T) {
	b := NewBuilder()
	b.PrepareEmit()
	b.EmitMemLoad(decoder.BankMemory, 0, 0)
	b.PrepareEmit()
	b.EmitMemStore(decoder.BankMemory, 1, 0)
	b.Finalize()
	fn := b.Build()

	for _, blk := range fn.Blocks {
		for _, inst := range blk.Insts {
			if inst.Op == OpMemStore {
				require.Zero(t, inst.Result)
			}
		}
	}
}
