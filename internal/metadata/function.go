package metadata

import (
	"sync/atomic"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// FunctionDescriptor is a vtable entry: the owned linked bytecode (may
// be empty for native/builtin methods), argument/return types, the
// native calling-convention signature, and the mutable compile state
// (spec §3 "Function descriptor").
type FunctionDescriptor struct {
	Name symbol.Symbol

	Body   []bytecode.Instruction
	Blocks bytecode.BlockTable

	ArgTypes   []bytecode.TypeTag
	ReturnType bytecode.TypeTag

	// NeedPadding mirrors the interpreter's need_padding helper
	// (spec §4.2 "Argument marshalling"): whether this signature's
	// native calling convention needs a padding slot when the
	// context pointer crosses the register/stack boundary.
	NeedPadding bool

	State CompileState

	// calls counts dispatches through the Bytecode variant (spec.md §4.3
	// "the Interpreter may request JIT compilation of hot methods"); the
	// interpreter's dispatch path bumps it and compares against a
	// tier-up threshold to decide when to submit a compile request.
	calls atomic.Uint64
}

// CountCall increments the descriptor's dispatch counter and returns
// the new count. Safe for concurrent callers.
func (fd *FunctionDescriptor) CountCall() uint64 {
	return fd.calls.Add(1)
}

// NewBytecodeFunction builds a descriptor for a method whose body is
// linked bytecode, scanning it for block starts exactly as Frame
// construction will need later (spec §3 "Frame").
func NewBytecodeFunction(name symbol.Symbol, body []bytecode.Instruction, args []bytecode.TypeTag, ret bytecode.TypeTag) (*FunctionDescriptor, error) {
	blocks, err := bytecode.ScanBlocks(body)
	if err != nil {
		return nil, err
	}
	return &FunctionDescriptor{
		Name:       name,
		Body:       body,
		Blocks:     blocks,
		ArgTypes:   args,
		ReturnType: ret,
	}, nil
}

// NewNativeFunction builds a descriptor bound directly to a host
// native function, with no bytecode body.
func NewNativeFunction(name symbol.Symbol, args []bytecode.TypeTag, ret bytecode.TypeTag, fn NativeFunc) *FunctionDescriptor {
	fd := &FunctionDescriptor{Name: name, ArgTypes: args, ReturnType: ret}
	fd.State.SetNative(fn)
	return fd
}

// NewBuiltinFunction builds a descriptor bound to a VM intrinsic.
func NewBuiltinFunction(name symbol.Symbol, args []bytecode.TypeTag, ret bytecode.TypeTag, fn NativeFunc) *FunctionDescriptor {
	fd := &FunctionDescriptor{Name: name, ArgTypes: args, ReturnType: ret}
	fd.State.SetBuiltin(fn)
	return fd
}
