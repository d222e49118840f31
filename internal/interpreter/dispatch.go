package interpreter

import (
	"fmt"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/nativeabi"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// DispatchError reports a dispatch-time failure: an unresolvable
// vtable, an unknown method name, or a native call that errored.
type DispatchError struct {
	Reason string
}

func (e *DispatchError) Error() string { return "interpreter: " + e.Reason }

// resolveVirtual finds the function descriptor a virtual invoke
// targets: the vtable the *runtime* class keeps for the *declared*
// (or, for a super-call, origin) ancestor (spec §4.2 "Dispatch ...
// virtual invoke"). A non-zero originClass starts the lookup from
// that ancestor instead of the statically declared class, the way a
// super-call reaches past an override (this module's own rendition of
// spec.md's sketched "optional origin-class for super-dispatch").
func (c *Context) resolveVirtual(receiver heap.Reference, declaredClass, originClass, method symbol.Symbol) (*metadata.FunctionDescriptor, error) {
	cell, ok := c.Heap.Get(receiver)
	if !ok {
		return nil, &DispatchError{Reason: "virtual invoke on a dangling or null receiver"}
	}
	runtimeIdx, ok := c.Symbols.ClassIndex(cell.Class)
	if !ok {
		return nil, &DispatchError{Reason: "receiver's class is not a registered class symbol"}
	}
	runtimeClass, ok := c.Classes.Get(runtimeIdx)
	if !ok {
		return nil, &DispatchError{Reason: "receiver's class is not materialised"}
	}

	lookupKey := declaredClass
	if originClass != symbol.None {
		lookupKey = originClass
	}
	vtIdx, ok := runtimeClass.VTables[lookupKey]
	if !ok {
		return nil, &DispatchError{Reason: fmt.Sprintf("no vtable for ancestor symbol %d on runtime class %d", lookupKey, cell.Class)}
	}
	vt := c.Tables.Get(vtIdx)
	fd, ok := vt.ByName(method)
	if !ok {
		return nil, &DispatchError{Reason: fmt.Sprintf("method symbol %d not found in vtable", method)}
	}
	return fd, nil
}

// resolveStatic finds the function descriptor a static invoke targets
// (spec §4.2 "Static invoke skips the receiver and goes straight to
// the class's static-methods vtable").
func (c *Context) resolveStatic(classSym, method symbol.Symbol) (*metadata.FunctionDescriptor, error) {
	idx, ok := c.Symbols.ClassIndex(classSym)
	if !ok {
		return nil, &DispatchError{Reason: "static invoke on an unregistered class symbol"}
	}
	cls, ok := c.Classes.Get(idx)
	if !ok {
		return nil, &DispatchError{Reason: "static invoke on a not-yet-materialised class"}
	}
	if !cls.HasStaticMethods {
		return nil, &DispatchError{Reason: "class declares no static methods"}
	}
	vt := c.Tables.Get(cls.StaticMethods)
	fd, ok := vt.ByName(method)
	if !ok {
		return nil, &DispatchError{Reason: fmt.Sprintf("static method symbol %d not found", method)}
	}
	return fd, nil
}

// ResolveStatic exposes resolveStatic to callers outside the package:
// the embedder's host entry point (spec §6 "Host entry point") needs
// to resolve the main class's static method before the first Call.
func (c *Context) ResolveStatic(classSym, method symbol.Symbol) (*metadata.FunctionDescriptor, error) {
	return c.resolveStatic(classSym, method)
}

// dispatch executes a resolved call: Bytecode pushes a new interpreter
// frame (returning immediately so the main loop picks it up next
// tick); Native/Builtin/Compiled marshal arguments and call through
// synchronously, pushing the (non-void) result onto the caller's stack
// (spec §4.2 "This yields the function descriptor whose compile-state
// determines execution mode").
func (c *Context) dispatch(fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) error {
	switch fd.State.Variant() {
	case metadata.Bytecode:
		if fd.CountCall() == tierUpThreshold && tierUpRequester != nil {
			tierUpRequester(fd)
		}
		c.pushFrame(newFrame(fd, args))
		return nil
	case metadata.Native, metadata.Builtin:
		fn, ok := fd.State.NativeFunc()
		if !ok {
			return &DispatchError{Reason: "native function state missing its callback"}
		}
		result, err := fn(c, nativeabi.Marshal(args))
		if err != nil {
			return err
		}
		if fd.ReturnType != bytecode.TVoid {
			c.top().push(nativeabi.Unmarshal(fd.ReturnType, result))
		}
		return nil
	case metadata.Compiled:
		entry, _, _, ok := fd.State.Compiled()
		if !ok {
			return &DispatchError{Reason: "compiled state missing its entry point"}
		}
		return c.callCompiled(entry, fd, args)
	default:
		return &DispatchError{Reason: "invoke on a Blank function descriptor"}
	}
}

// tierUpThreshold is the dispatch count (spec.md §4.3 "hot methods")
// at which a Bytecode-variant descriptor gets submitted for tier-up.
// Fires exactly once per descriptor: CountCall only equals this value
// on the one dispatch that crosses it.
const tierUpThreshold = 1000

// tierUpRequester is a narrow seam for the JIT tier: this package only
// needs to know "submit fd for compilation", not anything about
// internal/jit.Worker, so the interpreter never imports internal/jit.
// rowan.NewRuntime wires the concrete submitter at runtime startup via
// SetTierUpRequester, the same pattern SetCompiledTrampoline uses.
var tierUpRequester func(fd *metadata.FunctionDescriptor)

// SetTierUpRequester installs the callback the interpreter invokes
// when a Bytecode-variant descriptor crosses the tier-up threshold.
// Called once at runtime construction.
func SetTierUpRequester(fn func(fd *metadata.FunctionDescriptor)) {
	tierUpRequester = fn
}

// callCompiled is a narrow seam for the JIT tier: this package only
// needs to know a compiled entry point exists and can be invoked the
// same way a native call is, so property 6 (tier-up equivalence) holds
// without the interpreter importing internal/jit. rowan.NewRuntime
// wires the concrete trampoline (jit.Worker.Invoke) at runtime startup
// via SetCompiledTrampoline.
var compiledTrampoline func(entry uintptr, args []interface{}) (interface{}, error)

// SetCompiledTrampoline installs the JIT's calling trampoline. Called
// once at runtime construction.
func SetCompiledTrampoline(fn func(entry uintptr, args []interface{}) (interface{}, error)) {
	compiledTrampoline = fn
}

func (c *Context) callCompiled(entry uintptr, fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) error {
	if compiledTrampoline == nil {
		return &DispatchError{Reason: "no compiled-code trampoline installed"}
	}
	result, err := compiledTrampoline(entry, nativeabi.Marshal(args))
	if err != nil {
		return err
	}
	if fd.ReturnType != bytecode.TVoid {
		c.top().push(nativeabi.Unmarshal(fd.ReturnType, result))
	}
	return nil
}
