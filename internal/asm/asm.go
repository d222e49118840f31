// Package asm defines the abstraction the JIT tier emits native code
// through. The native machine-code backend proper is out of scope for
// this module (spec.md §1); what lives here is the narrow seam
// internal/jit programs against so it never imports a concrete
// assembler library directly. internal/asm/golangasm is the one
// concrete CodeBuffer implementation.
package asm

import "fmt"

// Register represents a native CPU register. Concrete values are
// defined by whichever CodeBuffer implementation is in use.
type Register byte

// NilRegister indicates "no register specified".
const NilRegister Register = 0

// Instruction represents a native instruction mnemonic. Concrete
// values are defined by whichever CodeBuffer implementation is in use.
type Instruction byte

// ConstantValue is an immediate operand.
type ConstantValue = int64

// NodeOffsetInBinary is the offset of a Node once the buffer has been
// assembled into its final byte sequence.
type NodeOffsetInBinary = uint64

// Node is a single emitted instruction in a CodeBuffer's linked list of
// operations. Call sites hold onto the Node returned by a Compile* method
// so a later instruction can be wired up to jump to it.
type Node interface {
	fmt.Stringer
	// AssignJumpTarget makes target the destination of this jump-kind
	// instruction.
	AssignJumpTarget(target Node)
	// OffsetInBinary reports this node's byte offset once Assemble has
	// run; it is meaningless before that.
	OffsetInBinary() NodeOffsetInBinary
}

// JumpTableMaximumOffset is the largest offset a 32-bit jump-table
// slot can hold.
const JumpTableMaximumOffset = 1<<32 - 1
