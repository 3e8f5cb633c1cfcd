package asm

// Instruction constants understood by the golang-asm-backed Assembler.
// Names follow AT&T/Intel mnemonic convention with a Q suffix (64-bit
// operand size) since every AIVM register and memory cell is a single
// int64, exactly as the teacher suffixes its own amd64 instruction set
// (asm/amd64's AADDQ, ASUBQ, ...).
const (
	NOP Instruction = iota
	RET
	CQO // sign-extend RAX into RDX:RAX, ahead of a signed IMULQ.

	MOVQ
	ADDQ
	SUBQ
	IMULQ
	MULQ  // unsigned multiply, RAX * src -> RDX:RAX
	NEGQ
	NOTQ
	ANDQ
	ORQ
	XORQ
	SHLQ
	SHRQ
	ROLQ
	RORQ
	CMPQ
	POPCNTQ
	BSWAPQ

	JMP
	JEQ
	JNE
	JGT
	JLT
	JGE
	JLE

	CALL
	PUSHQ
	POPQ
)
