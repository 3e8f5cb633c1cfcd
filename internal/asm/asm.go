// Package asm is the architecture-neutral assembler contract the JIT
// back-end (internal/amd64) codes against, mirroring the split the
// teacher keeps between internal/asm's AssemblerBase interface and its
// per-architecture implementations. AIVM only ever targets one
// architecture, so this package collapses the teacher's Node/Assembler
// pair down to the handful of addressing modes the amd64 lowering in
// internal/amd64 actually needs, rather than the teacher's full
// CompileXToY matrix.
package asm

import "fmt"

// Register represents a host register. Its concrete values are defined
// by internal/amd64, the only architecture this package targets.
type Register int16

// NilRegister indicates no register operand.
const NilRegister Register = 0

// Instruction identifies an opcode understood by the concrete Assembler.
type Instruction byte

// ConstantValue is an immediate operand.
type ConstantValue = int64

// Node is one assembled instruction. Branches are resolved by assigning
// their target Node once the target's position in the instruction stream
// is known, exactly as the teacher's golang-asm-backed Node does (see
// GolangAsmNode.AssignJumpTarget): AIVM's decoder only ever produces
// forward branches, and the SSA builder's proxy blocks (critical-edge
// splitting, block-parameter edge moves) also only jump forward, so a
// jump's target Node usually does not exist yet when the jump is added.
type Node interface {
	fmt.Stringer
	AssignJumpTarget(target Node)
}

// Assembler is the amd64 lowering's single dependency: an instruction
// stream builder that defers final relative-offset encoding until
// Assemble, so Nodes can be created before their jump targets exist.
type Assembler interface {
	// CompileStandAlone adds a no-operand instruction (RET, NOP, CQO, ...).
	CompileStandAlone(instruction Instruction) Node
	// CompileConstToRegister adds `destinationReg = value` (MOV-immediate)
	// or an instruction using value as an immediate second operand
	// (e.g. shift-by-immediate, ADD-immediate).
	CompileConstToRegister(instruction Instruction, value ConstantValue, destinationReg Register) Node
	// CompileRegisterToRegister adds a two-register instruction
	// (from is the source, to is the destination, the source-first
	// operand order golang-asm's obj.Prog.{From,To} expect).
	CompileRegisterToRegister(instruction Instruction, from, to Register) Node
	// CompileMemoryToRegister loads from [sourceBaseReg+sourceOffsetConst]
	// into destinationReg.
	CompileMemoryToRegister(instruction Instruction, sourceBaseReg Register, sourceOffsetConst ConstantValue, destinationReg Register) Node
	// CompileRegisterToMemory stores sourceRegister into
	// [destinationBaseRegister+destinationOffsetConst].
	CompileRegisterToMemory(instruction Instruction, sourceRegister Register, destinationBaseRegister Register, destinationOffsetConst ConstantValue) Node
	// CompileJump adds an unconditional or conditional jump whose target
	// is assigned later via Node.AssignJumpTarget.
	CompileJump(jmpInstruction Instruction) Node
	// CompileJumpToRegister adds a jump whose target is the address held
	// in reg. internal/amd64 does not use it: its calls are CompileJump
	// nodes whose targets are assigned once every function is lowered.
	CompileJumpToRegister(jmpInstruction Instruction, reg Register) Node
	// CompileRegisterToNone adds a one-operand instruction whose only
	// operand is a register (MULQ/IMULQ's implicit-AX:DX form).
	CompileRegisterToNone(instruction Instruction, reg Register) Node
	// CompileMemoryToNone adds a one-operand instruction whose only
	// operand is a memory address.
	CompileMemoryToNone(instruction Instruction, baseReg Register, offsetConst ConstantValue) Node
	// SetJumpTargetOnNext marks nodes whose jump target is "whatever
	// instruction is added next" -- the idiom the amd64 lowering uses to
	// land a branch on the instruction immediately following it, instead
	// of threading an explicit Node reference through the lowering
	// switch.
	SetJumpTargetOnNext(nodes ...Node)
	// Assemble finalizes every pending jump and returns the assembled
	// machine code.
	Assemble() ([]byte, error)
}
