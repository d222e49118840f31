// Package golangasm is the one concrete implementation of
// internal/asm.CodeBuffer in this module, built on
// github.com/twitchyliquid64/golang-asm the same way wazero's (now
// retired) internal/asm/golang_asm backend was: a thin Node/CodeBuffer
// wrapper around golang-asm's Builder and obj.Prog linked list.
//
// Scope is deliberately narrow: this module's JIT tier (internal/jit)
// only emits a tier-up trampoline stub (internal/jit's emitTrampoline
// assembles a lone RET; compiled calls run through jit.Worker.Invoke,
// not through the stub) — not a general instruction-selection backend
// for arbitrary bytecode, which spec.md §1 keeps out of scope ("the
// native machine-code backend proper"). The instruction set below
// covers register moves, an indirect call/jump, and RET, targeting amd64 (the one
// native calling convention this module commits to, per
// internal/nativeabi).
package golangasm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/Ki11erRabbit/rowan/internal/asm"
)

// Narrow amd64 register set, enough to address the trampoline's
// argument-pointer and entry-point registers.
const (
	AX asm.Register = iota + 1
	BX
	CX
	DX
	SP
	BP
)

var toGoAsmRegister = map[asm.Register]int16{
	AX: x86.REG_AX,
	BX: x86.REG_BX,
	CX: x86.REG_CX,
	DX: x86.REG_DX,
	SP: x86.REG_SP,
	BP: x86.REG_BP,
}

// Narrow amd64 instruction set.
const (
	NOP asm.Instruction = iota + 1
	RET
	MOVQ
	JMP
	CALL
)

var toGoAsmInstruction = map[asm.Instruction]obj.As{
	NOP:  obj.ANOP,
	RET:  obj.ARET,
	MOVQ: x86.AMOVQ,
	JMP:  obj.AJMP,
	CALL: obj.ACALL,
}

// Node implements asm.Node by wrapping a golang-asm obj.Prog, the same
// adapter shape as wazero's GolangAsmNode.
type Node struct {
	prog *obj.Prog
}

func (n *Node) String() string { return n.prog.String() }

func (n *Node) AssignJumpTarget(target asm.Node) {
	n.prog.To.SetTarget(target.(*Node).prog)
}

func (n *Node) OffsetInBinary() asm.NodeOffsetInBinary {
	return asm.NodeOffsetInBinary(n.prog.Pc)
}

// CodeBuffer is the golang-asm-backed asm.CodeBuffer.
type CodeBuffer struct {
	asm.BaseCodeBuffer
	b *goasm.Builder
}

// New builds a CodeBuffer targeting amd64.
func New() (*CodeBuffer, error) {
	b, err := goasm.NewBuilder("amd64", 64)
	if err != nil {
		return nil, fmt.Errorf("golangasm: new builder: %w", err)
	}
	return &CodeBuffer{b: b}, nil
}

// Assemble implements asm.CodeBuffer.
func (c *CodeBuffer) Assemble() ([]byte, error) {
	return c.b.Assemble(), nil
}

func (c *CodeBuffer) add(p *obj.Prog) *Node {
	c.b.AddInstruction(p)
	n := &Node{prog: p}
	c.ResolvePending(n)
	return n
}

// CompileStandAlone implements asm.CodeBuffer.
func (c *CodeBuffer) CompileStandAlone(instruction asm.Instruction) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	return c.add(p)
}

// CompileConstToRegister implements asm.CodeBuffer.
func (c *CodeBuffer) CompileConstToRegister(instruction asm.Instruction, value asm.ConstantValue, destinationReg asm.Register) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	p.To.Type = obj.TYPE_REG
	p.To.Reg = toGoAsmRegister[destinationReg]
	return c.add(p)
}

// CompileRegisterToRegister implements asm.CodeBuffer.
func (c *CodeBuffer) CompileRegisterToRegister(instruction asm.Instruction, from, to asm.Register) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = toGoAsmRegister[from]
	p.To.Type = obj.TYPE_REG
	p.To.Reg = toGoAsmRegister[to]
	return c.add(p)
}

// CompileMemoryToRegister implements asm.CodeBuffer.
func (c *CodeBuffer) CompileMemoryToRegister(instruction asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst asm.ConstantValue, destinationReg asm.Register) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = toGoAsmRegister[sourceBaseReg]
	p.From.Offset = sourceOffsetConst
	p.To.Type = obj.TYPE_REG
	p.To.Reg = toGoAsmRegister[destinationReg]
	return c.add(p)
}

// CompileRegisterToMemory implements asm.CodeBuffer.
func (c *CodeBuffer) CompileRegisterToMemory(instruction asm.Instruction, sourceRegister asm.Register, destinationBaseReg asm.Register, destinationOffsetConst asm.ConstantValue) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	p.From.Type = obj.TYPE_REG
	p.From.Reg = toGoAsmRegister[sourceRegister]
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = toGoAsmRegister[destinationBaseReg]
	p.To.Offset = destinationOffsetConst
	return c.add(p)
}

// CompileJump implements asm.CodeBuffer. The target is assigned later
// via the returned Node's AssignJumpTarget.
func (c *CodeBuffer) CompileJump(instruction asm.Instruction) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	p.To.Type = obj.TYPE_BRANCH
	return c.add(p)
}

// CompileJumpToRegister implements asm.CodeBuffer: an indirect
// call/jump through reg, the shape the tier-up trampoline uses to
// reach a compiled entry point held in a register.
func (c *CodeBuffer) CompileJumpToRegister(instruction asm.Instruction, reg asm.Register) asm.Node {
	p := c.b.NewProg()
	p.As = toGoAsmInstruction[instruction]
	p.To.Type = obj.TYPE_REG
	p.To.Reg = toGoAsmRegister[reg]
	return c.add(p)
}

var _ asm.CodeBuffer = (*CodeBuffer)(nil)
