// Package freqtable implements the opcode frequency table described in
// AIVM's decoder: a partition of [0, 1<<16) into 29 opcode weights. The
// table decides what a decoded word means (Opcode.Resolve) and is a
// parameter of compilation, not a global.
package freqtable

import "fmt"

// Opcode is one of the 29 semantic operations a Word can decode to.
// END_FUNC is ordinal 0 and is always tested first during resolution,
// since its weight directly controls mean function length.
type Opcode byte

const (
	EndFunc Opcode = iota
	Call

	IntAdd
	IntSub
	IntMul
	IntMulHigh
	IntMulHighUnsigned
	IntNeg
	IntAbs
	IntInc
	IntDec
	IntMin
	IntMax

	BitOr
	BitAnd
	BitXor
	BitNot
	BitShiftLeft
	BitShiftRight
	BitRotateLeft
	BitRotateRight
	BitSelect
	BitPopcnt
	BitReverse

	BranchCmp
	BranchZero
	BranchNonZero

	MemLoad
	MemStore

	// opcodeCount is the number of distinct opcodes (29, see the package
	// doc comment); Table is sized to match it.
	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	EndFunc: "end_func", Call: "call",
	IntAdd: "int_add", IntSub: "int_sub", IntMul: "int_mul",
	IntMulHigh: "int_mul_high", IntMulHighUnsigned: "int_mul_high_u",
	IntNeg: "int_neg", IntAbs: "int_abs", IntInc: "int_inc", IntDec: "int_dec",
	IntMin: "int_min", IntMax: "int_max",
	BitOr: "bit_or", BitAnd: "bit_and", BitXor: "bit_xor", BitNot: "bit_not",
	BitShiftLeft: "bit_shift_l", BitShiftRight: "bit_shift_r",
	BitRotateLeft: "bit_rot_l", BitRotateRight: "bit_rot_r",
	BitSelect: "bit_select", BitPopcnt: "bit_popcnt", BitReverse: "bit_reverse",
	BranchCmp: "branch_cmp", BranchZero: "branch_zero", BranchNonZero: "branch_non_zero",
	MemLoad: "mem_load", MemStore: "mem_store",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if int(o) >= len(opcodeNames) {
		return fmt.Sprintf("opcode(%d)", o)
	}
	return opcodeNames[o]
}

// Table holds the 29 opcode weights in opcode order. Table.Validate
// requires the weights sum to exactly 1<<16, making Resolve a total
// function over the 16-bit opcode selector field of a Word.
type Table [opcodeCount]uint16

// Default is the frequency table shipped by AIVM, tuned so that END_FUNC
// and CALL are rare relative to arithmetic and memory ops, keeping mean
// function bodies long enough to be interesting while remaining finite.
var Default = Table{
	EndFunc: 437,
	Call:    655,

	IntAdd:             3277,
	IntSub:             1966,
	IntMul:             2840,
	IntMulHigh:         2185,
	IntMulHighUnsigned: 2185,
	IntNeg:             2185,
	IntAbs:             2185,
	IntInc:             2185,
	IntDec:             2185,
	IntMin:             2840,
	IntMax:             2840,

	BitOr:         2621,
	BitAnd:        2621,
	BitXor:        3497,
	BitNot:        2621,
	BitShiftLeft:  2621,
	BitShiftRight: 2621,
	BitRotateLeft: 2621,
	BitRotateRight: 2621,
	BitSelect:     2840,
	BitPopcnt:     1966,
	BitReverse:    2403,

	BranchCmp:    1092,
	BranchZero:   655,
	BranchNonZero: 655,

	MemLoad:  3276,
	MemStore: 2840,
}

func init() {
	if err := Default.Validate(); err != nil {
		panic(err)
	}
}

// Validate reports whether the weights sum to exactly 1<<16, the
// precondition that makes Resolve total. It is called once at Compiler
// construction, not on every compile.
func (t Table) Validate() error {
	var sum uint32
	for _, w := range t {
		sum += uint32(w)
	}
	if sum != 1<<16 {
		return fmt.Errorf("frequency table weights sum to %d, want %d", sum, 1<<16)
	}
	return nil
}

// WithWeight returns a copy of t with op's weight replaced by weight. It
// does not re-validate the sum; callers that rebalance a table must still
// call Validate before using it to compile, exactly like constructing a
// Table literal by hand.
func (t Table) WithWeight(op Opcode, weight uint16) Table {
	t[op] = weight
	return t
}

// Resolve decodes the low 16 bits of a word into an Opcode by subtracting
// weights in table order: if selector < weight[i], the opcode is i;
// otherwise selector -= weight[i] and the scan continues. Because the
// weights sum to exactly 1<<16 and selector is itself a 16-bit value, this
// scan always terminates with a match — Resolve is total.
func (t Table) Resolve(selector uint16) Opcode {
	for i, w := range t {
		if selector < w {
			return Opcode(i)
		}
		selector -= w
	}
	// Unreachable given Validate(); fall back to the last opcode so
	// Resolve never panics even if an un-validated table is misused.
	return Opcode(len(t) - 1)
}
