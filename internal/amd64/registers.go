package amd64

import (
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/evolvm/aivm/internal/asm"
)

// Register constants used by the amd64 lowering, given the real
// golang-asm/x86 encodings so they can be passed straight through to
// asm.Assembler without a translation table.
const (
	AX  = asm.Register(x86.REG_AX)
	BX  = asm.Register(x86.REG_BX)
	CX  = asm.Register(x86.REG_CX)
	DX  = asm.Register(x86.REG_DX)
	SI  = asm.Register(x86.REG_SI)
	DI  = asm.Register(x86.REG_DI)
	BP  = asm.Register(x86.REG_BP)
	SP  = asm.Register(x86.REG_SP)
	R8  = asm.Register(x86.REG_R8)
	R9  = asm.Register(x86.REG_R9)
	R10 = asm.Register(x86.REG_R10)
	R11 = asm.Register(x86.REG_R11)
	R12 = asm.Register(x86.REG_R12)
	R13 = asm.Register(x86.REG_R13)
	R14 = asm.Register(x86.REG_R14)
	R15 = asm.Register(x86.REG_R15)
)

// allocatableRegs is the pool regalloc.Policy.NumRegs draws from. R12 is
// reserved across the whole function for the memory-bank base pointer
// (moved there by ctx.emitPrologue); R13 is the scratch register the
// lowering uses for spill/unspill traffic and multi-instruction sequences
// (min, max, select, reverse) that need an extra temporary beyond their declared
// operands; BP/SP are the frame pointer and stack pointer.
var allocatableRegs = [...]asm.Register{AX, BX, CX, DX, SI, DI, R8, R9, R10, R11}

// calleeSaved lists the registers this package's prologue/epilogue
// must preserve per the System V AMD64 calling convention, restricted to
// the subset allocatableRegs/memBaseReg/scratchReg actually touch (BX,
// R12-R15 are callee-saved; AX/CX/DX/SI/DI/R8-R11 are caller-saved and
// need no save/restore).
var calleeSaved = [...]asm.Register{BX, R12, R13}

const (
	// memBaseReg holds the flat [memory][input][output] slice's data
	// pointer for the whole function, never spilled. The native entry
	// convention (see NewNativeFunc) places this pointer in AX on entry;
	// the prologue moves it into R12 immediately.
	memBaseReg = R12
	// scratchReg is a register never handed out by regalloc, reserved for
	// lowering sequences that need a temporary beyond their two declared
	// operands (IntMin/IntMax/BitSelect/BitReverse; see lowerInst).
	scratchReg = R13
)
