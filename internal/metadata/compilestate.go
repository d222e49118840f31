package metadata

import (
	"fmt"
	"sync"
)

// CompileVariant tags which variant a FunctionDescriptor's CompileState
// currently holds (spec §3 "Function descriptor").
type CompileVariant uint8

const (
	// Blank means the descriptor has no executable body yet.
	Blank CompileVariant = iota
	// Bytecode means the method runs through the interpreter; the
	// payload is the JIT-declared function id reserved for it.
	Bytecode
	// Native means the method is bound to a host-registered native
	// function (spec §4.1 "Native library binding").
	Native
	// Builtin means the method is a VM-intrinsic.
	Builtin
	// Compiled means the JIT has installed machine code and a stack
	// map; this is the tier-up terminal state (spec glossary "Tier-up").
	Compiled
)

func (v CompileVariant) String() string {
	switch v {
	case Blank:
		return "blank"
	case Bytecode:
		return "bytecode"
	case Native:
		return "native"
	case Builtin:
		return "builtin"
	case Compiled:
		return "compiled"
	default:
		return "compilevariant?unknown?"
	}
}

// StackMap associates a native instruction-pointer offset with the
// list of frame offsets holding live object references at that point
// (spec §3, §4.3 "Stack maps").
type StackMap map[uint64][]int

// NativeFunc is a host-registered native implementation, called with
// the VM context pointer and marshalled argument slots (spec §4.2
// "Argument marshalling", §6 "Native method ABI"). Concretely this is
// the Go-idiomatic rendition of a C ABI export: no dlopen, a
// registered Go closure (see internal/linker's NativeLibrary
// registry and SPEC_FULL.md's DOMAIN STACK table).
type NativeFunc func(ctx interface{}, args []interface{}) (interface{}, error)

// CompileState is the mutable, mutex-guarded, monotonically
// transitioning compile state of a function descriptor (spec §3):
// Blank -> Bytecode -> Compiled (JIT tier-up), or Blank -> Native /
// Blank -> Builtin (linker). No other transitions are legal.
type CompileState struct {
	mu sync.Mutex

	variant CompileVariant

	// Bytecode variant payload.
	jitFuncID uint64

	// Native/Builtin variant payload.
	nativeFn NativeFunc

	// Compiled variant payload.
	entry    uintptr
	code     []byte
	stackMap StackMap
}

// Variant returns the current variant under the descriptor's lock.
func (s *CompileState) Variant() CompileVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// SetBytecode transitions Blank -> Bytecode. Panics if the state is
// not Blank: the linker is the only writer of this transition and it
// only ever runs once per descriptor.
func (s *CompileState) SetBytecode(jitFuncID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Blank {
		panic(fmt.Sprintf("metadata: illegal compile-state transition %s -> bytecode", s.variant))
	}
	s.variant = Bytecode
	s.jitFuncID = jitFuncID
}

// SetNative transitions Blank -> Native.
func (s *CompileState) SetNative(fn NativeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Blank {
		panic(fmt.Sprintf("metadata: illegal compile-state transition %s -> native", s.variant))
	}
	s.variant = Native
	s.nativeFn = fn
}

// SetBuiltin transitions Blank -> Builtin.
func (s *CompileState) SetBuiltin(fn NativeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Blank {
		panic(fmt.Sprintf("metadata: illegal compile-state transition %s -> builtin", s.variant))
	}
	s.variant = Builtin
	s.nativeFn = fn
}

// CopyFrom installs a snapshot of another descriptor's compile state
// "by value, not by reference" (spec §4.1 step 2: inheriting a Blank
// override slot from its base method). Only legal while this state is
// still Blank and the source is no longer Blank.
func (s *CompileState) CopyFrom(other *CompileState) bool {
	other.mu.Lock()
	if other.variant == Blank {
		other.mu.Unlock()
		return false
	}
	snapshot := *other
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Blank {
		panic(fmt.Sprintf("metadata: illegal compile-state transition %s -> %s (copy)", s.variant, snapshot.variant))
	}
	snapshot.mu = sync.Mutex{}
	*s = snapshot
	return true
}

// JITFuncID returns the JIT-declared function id for a Bytecode-state
// descriptor, for submitting/looking up compile requests.
func (s *CompileState) JITFuncID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Bytecode {
		return 0, false
	}
	return s.jitFuncID, true
}

// NativeFunc returns the callable for a Native or Builtin descriptor.
func (s *CompileState) NativeFunc() (NativeFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Native && s.variant != Builtin {
		return nil, false
	}
	return s.nativeFn, true
}

// Compiled returns the installed entry/stack map for a Compiled
// descriptor.
func (s *CompileState) Compiled() (entry uintptr, code []byte, sm StackMap, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Compiled {
		return 0, nil, nil, false
	}
	return s.entry, s.code, s.stackMap, true
}

// Install transitions Bytecode -> Compiled atomically under the
// descriptor's own mutex (spec §4.3 "Installation"). It is a no-op
// returning false if another worker already installed compiled code
// or the state has moved on (a compile-state transition during a GC
// cycle is forbidden by spec §4.4(d), but nothing else can race this
// except a second JIT worker attempting the same method, which the
// worker loop prevents by checking Bytecode before compiling).
func (s *CompileState) Install(entry uintptr, code []byte, sm StackMap) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variant != Bytecode {
		return false
	}
	s.variant = Compiled
	s.entry = entry
	s.code = code
	s.stackMap = sm
	return true
}
