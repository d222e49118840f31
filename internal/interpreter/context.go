// Package interpreter implements the bytecode main loop: frame/stack
// machine, typed arithmetic, virtual/static dispatch and the
// exception sketch (spec §4.2).
package interpreter

import (
	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// Safepoint is the GC-gate polling contract the main loop checks after
// every opcode (spec §4.2 "the main loop ticks one opcode, then checks
// the GC gate (§4.4)"). Accepting an interface rather than a concrete
// *gc.Gate avoids a circular import between interpreter and gc; the
// gc package's *Mutator (returned by Gate.Register) satisfies this.
type Safepoint interface {
	Poll()
}

type noopSafepoint struct{}

func (noopSafepoint) Poll() {}

// handler is one registered exception handler (spec §4.2 "Register/
// unregister opcodes maintain per-frame handler sets").
type handler struct {
	class   symbol.Symbol
	blockID uint32
}

// Frame is one active method invocation (spec §3 "Frame").
type Frame struct {
	Method *metadata.FunctionDescriptor

	Stack []metadata.TypedSlot

	IP           int
	CurrentBlock uint32

	// Locals holds the method's parameters (copied in from the
	// caller's CallArgs at push time) followed by any additional
	// locals the method declares.
	Locals []metadata.TypedSlot

	// CallArgs is the staging area StoreArg/LoadArg populate to
	// marshal arguments to the *next* invoke (spec §3 "Frame":
	// "call-args array ... used to marshal arguments to the next
	// call").
	CallArgs []metadata.TypedSlot

	Handlers []handler

	// IsBytecode distinguishes an interpreter frame from a shim frame
	// wrapping a native/compiled call (spec §3 "Frame": "is-bytecode
	// flag").
	IsBytecode bool
}

func newFrame(fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) *Frame {
	locals := make([]metadata.TypedSlot, len(args))
	copy(locals, args)
	return &Frame{
		Method:     fd,
		Locals:     locals,
		IsBytecode: fd.State.Variant() == metadata.Bytecode,
	}
}

func (f *Frame) push(v metadata.TypedSlot) {
	f.Stack = append(f.Stack, v)
}

func (f *Frame) pop() metadata.TypedSlot {
	n := len(f.Stack)
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

func (f *Frame) peek() metadata.TypedSlot {
	return f.Stack[len(f.Stack)-1]
}

func ensureLen(slots *[]metadata.TypedSlot, n int) {
	for len(*slots) <= n {
		*slots = append(*slots, metadata.TypedSlot{Tag: bytecode.TVoid})
	}
}

// Context is the call-main-scoped state threaded through one top-level
// invocation: the frame stack and the current-exception slot (spec
// §4.2 "the interpreter maintains a vector of frames", §7(c)).
type Context struct {
	Symbols *symbol.Table
	Names   *symbol.Map
	Classes *metadata.Classes
	Tables  *metadata.Tables
	Heap    *heap.Table

	Arrays *ArrayTable

	Frames []*Frame

	// CurrentException holds the in-flight exception object, or
	// heap.Null when none is pending (spec §4.2 "Exception model").
	CurrentException heap.Reference

	Safepoint Safepoint

	// A native/builtin FunctionDescriptor carries its own call thunk in
	// its CompileState (not on the Context); see dispatch.go.
}

// NewContext builds a Context over the shared symbol/metadata/heap
// stores. gate may be nil, in which case the interpreter never pauses
// for GC (used by tests that don't exercise the collector).
func NewContext(symbols *symbol.Table, names *symbol.Map, classes *metadata.Classes, tables *metadata.Tables, objects *heap.Table, gate Safepoint) *Context {
	if gate == nil {
		gate = noopSafepoint{}
	}
	return &Context{
		Symbols:   symbols,
		Names:     names,
		Classes:   classes,
		Tables:    tables,
		Heap:      objects,
		Arrays:    NewArrayTable(),
		Safepoint: gate,
	}
}

func (c *Context) top() *Frame {
	return c.Frames[len(c.Frames)-1]
}

func (c *Context) pushFrame(f *Frame) {
	c.Frames = append(c.Frames, f)
}

func (c *Context) popFrame() *Frame {
	n := len(c.Frames)
	f := c.Frames[n-1]
	c.Frames = c.Frames[:n-1]
	return f
}
