package decoder

import "github.com/evolvm/aivm/internal/freqtable"

// Opcode is re-exported from freqtable so callers driving Decode never
// need to import that package directly just to name an opcode.
type Opcode = freqtable.Opcode

const (
	EndFunc             = freqtable.EndFunc
	Call                = freqtable.Call
	IntAdd              = freqtable.IntAdd
	IntSub              = freqtable.IntSub
	IntMul              = freqtable.IntMul
	IntMulHigh          = freqtable.IntMulHigh
	IntMulHighUnsigned  = freqtable.IntMulHighUnsigned
	IntNeg              = freqtable.IntNeg
	IntAbs              = freqtable.IntAbs
	IntInc              = freqtable.IntInc
	IntDec              = freqtable.IntDec
	IntMin              = freqtable.IntMin
	IntMax              = freqtable.IntMax
	BitOr               = freqtable.BitOr
	BitAnd              = freqtable.BitAnd
	BitXor              = freqtable.BitXor
	BitNot              = freqtable.BitNot
	BitShiftLeft        = freqtable.BitShiftLeft
	BitShiftRight       = freqtable.BitShiftRight
	BitRotateLeft       = freqtable.BitRotateLeft
	BitRotateRight      = freqtable.BitRotateRight
	BitSelect           = freqtable.BitSelect
	BitPopcnt           = freqtable.BitPopcnt
	BitReverse          = freqtable.BitReverse
	BranchCmp           = freqtable.BranchCmp
	BranchZero          = freqtable.BranchZero
	BranchNonZero       = freqtable.BranchNonZero
	MemLoad             = freqtable.MemLoad
	MemStore            = freqtable.MemStore
)
