// Package nativeabi implements the single fixed native calling
// convention spec.md §4.2/§6 describe: a context pointer first,
// followed by the method's declared arguments, with a platform
// padding rule applied when the context pointer crosses the
// register/stack boundary. Argument marshalling into Go's
// reflect-friendly call shape follows wazero's
// internal/wasm/gofunc.go, which marshals WebAssembly operand-stack
// values into a host function's reflected argument list the same way.
package nativeabi

import (
	"math"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
)

// registerSlots is the number of argument registers the modeled
// platform ABI passes before spilling to the stack (spec §4.2
// "a platform-specified padding rule when the context pointer crosses
// the register/stack boundary"). This module targets one concrete
// convention rather than the family of real platform ABIs the JIT
// back end would eventually need, matching spec.md's "out of scope:
// cross-platform ABI beyond one native calling convention".
const registerSlots = 6

// NeedPadding reports whether a call with this many declared arguments
// needs a padding slot inserted after the context pointer so the first
// argument lands on the same register/stack boundary it would without
// the context pointer occupying a slot.
func NeedPadding(argTypes []bytecode.TypeTag) bool {
	return (len(argTypes)+1) > registerSlots && (len(argTypes)+1)%2 != 0
}

// Marshal converts typed slots into the Go values a metadata.NativeFunc
// callback receives, preserving tag-appropriate Go types (int64 family,
// float32/float64, or the raw reference payload for TObject/TStr).
func Marshal(args []metadata.TypedSlot) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = toGoValue(a)
	}
	return out
}

func toGoValue(s metadata.TypedSlot) interface{} {
	switch s.Tag {
	case bytecode.I8:
		return int8(s.Payload)
	case bytecode.I16:
		return int16(s.Payload)
	case bytecode.I32:
		return int32(s.Payload)
	case bytecode.I64:
		return int64(s.Payload)
	case bytecode.F32:
		return math.Float32frombits(uint32(s.Payload))
	case bytecode.F64:
		return math.Float64frombits(s.Payload)
	default:
		return s.Payload
	}
}

// Unmarshal converts a native call's Go return value back into a
// typed slot of the declared return tag.
func Unmarshal(tag bytecode.TypeTag, v interface{}) metadata.TypedSlot {
	switch x := v.(type) {
	case int8:
		return metadata.TypedSlot{Tag: tag, Payload: uint64(int64(x))}
	case int16:
		return metadata.TypedSlot{Tag: tag, Payload: uint64(int64(x))}
	case int32:
		return metadata.TypedSlot{Tag: tag, Payload: uint64(int64(x))}
	case int64:
		return metadata.TypedSlot{Tag: tag, Payload: uint64(x)}
	case float32:
		return metadata.TypedSlot{Tag: tag, Payload: uint64(math.Float32bits(x))}
	case float64:
		return metadata.TypedSlot{Tag: tag, Payload: math.Float64bits(x)}
	case uint64:
		return metadata.TypedSlot{Tag: tag, Payload: x}
	default:
		return metadata.TypedSlot{Tag: bytecode.TVoid}
	}
}
