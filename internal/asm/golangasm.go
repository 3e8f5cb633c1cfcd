package asm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// instructionSet maps this package's architecture-neutral Instruction
// constants onto golang-asm's obj.As opcodes, the same translation the
// teacher's own amd64 lowering performs against the identical library
// (internal/asm/golang_asm wraps *goasm.Builder directly; our lowering
// needs only the subset of x86-64 this module's JIT emits).
var instructionSet = map[Instruction]obj.As{
	NOP:     obj.ANOP,
	RET:     obj.ARET,
	CQO:     x86.ACQO,
	MOVQ:    x86.AMOVQ,
	ADDQ:    x86.AADDQ,
	SUBQ:    x86.ASUBQ,
	IMULQ:   x86.AIMULQ,
	MULQ:    x86.AMULQ,
	NEGQ:    x86.ANEGQ,
	NOTQ:    x86.ANOTQ,
	ANDQ:    x86.AANDQ,
	ORQ:     x86.AORQ,
	XORQ:    x86.AXORQ,
	SHLQ:    x86.ASHLQ,
	SHRQ:    x86.ASHRQ,
	ROLQ:    x86.AROLQ,
	RORQ:    x86.ARORQ,
	CMPQ:    x86.ACMPQ,
	POPCNTQ: x86.APOPCNTQ,
	BSWAPQ:  x86.ABSWAPQ,
	JMP:     obj.AJMP,
	JEQ:     x86.AJEQ,
	JNE:     x86.AJNE,
	JGT:     x86.AJGT,
	JLT:     x86.AJLT,
	JGE:     x86.AJGE,
	JLE:     x86.AJLE,
	CALL:    obj.ACALL,
	PUSHQ:   x86.APUSHQ,
	POPQ:    x86.APOPQ,
}

// golangAsmNode implements Node over a single *obj.Prog, the same
// one-node-per-instruction model the teacher's GolangAsmNode uses.
type golangAsmNode struct {
	prog *obj.Prog
}

func (n *golangAsmNode) String() string { return n.prog.String() }

func (n *golangAsmNode) AssignJumpTarget(target Node) {
	n.prog.To.SetTarget(target.(*golangAsmNode).prog)
}

// GolangAsmAssembler implements Assembler over *goasm.Builder, in the
// same shape as the teacher's GolangAsmBaseAssembler: every Compile*
// method builds one obj.Prog, appends it via Builder.AddInstruction, and
// resolves any pending SetJumpTargetOnNext nodes against it.
type GolangAsmAssembler struct {
	b                          *goasm.Builder
	setJumpTargetOnNextNodes []Node
}

// NewAssembler returns a fresh amd64 Assembler backed by golang-asm.
func NewAssembler() (*GolangAsmAssembler, error) {
	b, err := goasm.NewBuilder("amd64", 1024)
	if err != nil {
		return nil, fmt.Errorf("asm: new golang-asm builder: %w", err)
	}
	return &GolangAsmAssembler{b: b}, nil
}

func (a *GolangAsmAssembler) add(p *obj.Prog) Node {
	a.b.AddInstruction(p)
	n := &golangAsmNode{prog: p}
	for _, pending := range a.setJumpTargetOnNextNodes {
		pending.(*golangAsmNode).prog.To.SetTarget(p)
	}
	a.setJumpTargetOnNextNodes = nil
	return n
}

func (a *GolangAsmAssembler) CompileStandAlone(instruction Instruction) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileConstToRegister(instruction Instruction, value ConstantValue, destinationReg Register) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(destinationReg)
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileRegisterToRegister(instruction Instruction, from, to Register) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(from)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(to)
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileMemoryToRegister(instruction Instruction, sourceBaseReg Register, sourceOffsetConst ConstantValue, destinationReg Register) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = int16(sourceBaseReg)
	p.From.Offset = sourceOffsetConst
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(destinationReg)
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileRegisterToMemory(instruction Instruction, sourceRegister Register, destinationBaseRegister Register, destinationOffsetConst ConstantValue) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(sourceRegister)
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = int16(destinationBaseRegister)
	p.To.Offset = destinationOffsetConst
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileJump(jmpInstruction Instruction) Node {
	p := a.b.NewProg()
	p.As = instructionSet[jmpInstruction]
	p.To.Type = obj.TYPE_BRANCH
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileRegisterToNone(instruction Instruction, reg Register) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = int16(reg)
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileMemoryToNone(instruction Instruction, baseReg Register, offsetConst ConstantValue) Node {
	p := a.b.NewProg()
	p.As = instructionSet[instruction]
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = int16(baseReg)
	p.From.Offset = offsetConst
	return a.add(p)
}

func (a *GolangAsmAssembler) CompileJumpToRegister(jmpInstruction Instruction, reg Register) Node {
	p := a.b.NewProg()
	p.As = instructionSet[jmpInstruction]
	p.To.Type = obj.TYPE_REG
	p.To.Reg = int16(reg)
	return a.add(p)
}

func (a *GolangAsmAssembler) SetJumpTargetOnNext(nodes ...Node) {
	a.setJumpTargetOnNextNodes = append(a.setJumpTargetOnNextNodes, nodes...)
}

func (a *GolangAsmAssembler) Assemble() ([]byte, error) {
	return a.b.Assemble(), nil
}
