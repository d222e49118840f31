package asm

// CodeBuffer is the common interface the JIT's single worker goroutine
// programs against (internal/jit owns exactly one CodeBuffer per
// in-flight compile). It is deliberately small relative to a full
// instruction-selection backend: this module ships one concrete
// implementation (internal/asm/golangasm) sufficient to emit the
// tier-up trampoline entry points spec.md §4.3 describes, not a
// general-purpose compiler code generator.
//
// Note: this interface is coupled to golang-asm's calling shape (the
// Reg/Mem/Const split below mirrors its Addr type) the same way
// wazero's AssemblerBase is, for exactly the reason wazero's own
// comment gives: the refactor away from that shape happens only if and
// when the library is dropped.
type CodeBuffer interface {
	// Assemble produces the final native byte sequence for everything
	// emitted so far.
	Assemble() ([]byte, error)
	// SetJumpTargetOnNext instructs the buffer that the next emitted
	// node is the jump destination for every node passed here.
	SetJumpTargetOnNext(nodes ...Node)
	// CompileStandAlone emits a zero-operand instruction (RET, NOP, ...).
	CompileStandAlone(instruction Instruction) Node
	// CompileConstToRegister emits an instruction loading the constant
	// value into destinationReg.
	CompileConstToRegister(instruction Instruction, value ConstantValue, destinationReg Register) Node
	// CompileRegisterToRegister emits a register-to-register instruction.
	CompileRegisterToRegister(instruction Instruction, from, to Register) Node
	// CompileMemoryToRegister emits a load from the memory address
	// sourceBaseReg+sourceOffsetConst into destinationReg.
	CompileMemoryToRegister(instruction Instruction, sourceBaseReg Register, sourceOffsetConst ConstantValue, destinationReg Register) Node
	// CompileRegisterToMemory emits a store of sourceRegister into the
	// memory address destinationBaseReg+destinationOffsetConst.
	CompileRegisterToMemory(instruction Instruction, sourceRegister Register, destinationBaseReg Register, destinationOffsetConst ConstantValue) Node
	// CompileJump emits an unconditional jump-kind instruction whose
	// target is assigned later via the returned Node's AssignJumpTarget.
	CompileJump(instruction Instruction) Node
	// CompileJumpToRegister emits a jump-kind instruction whose target
	// is the address held in reg. internal/jit's trampoline does not use
	// it: emitTrampoline emits a lone RET.
	CompileJumpToRegister(instruction Instruction, reg Register) Node
}

// BaseCodeBuffer holds the jump-target bookkeeping shared by any
// CodeBuffer implementation, so a concrete backend only has to embed it
// and call AddInstruction when it appends a node.
type BaseCodeBuffer struct {
	pendingJumpTargets []Node
}

// SetJumpTargetOnNext implements CodeBuffer.SetJumpTargetOnNext.
func (b *BaseCodeBuffer) SetJumpTargetOnNext(nodes ...Node) {
	b.pendingJumpTargets = append(b.pendingJumpTargets, nodes...)
}

// ResolvePending wires every node queued by SetJumpTargetOnNext to
// target, then clears the queue. A concrete backend calls this right
// after appending the instruction that becomes "next".
func (b *BaseCodeBuffer) ResolvePending(target Node) {
	for _, n := range b.pendingJumpTargets {
		n.AssignJumpTarget(target)
	}
	b.pendingJumpTargets = nil
}
