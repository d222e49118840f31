package interpreter

import (
	"math"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
)

// Runtime typed-slot storage convention (an implementation detail
// internal to this package, not part of the wire format): a signed
// integer slot's Payload always holds its value already sign-extended
// to 64 bits, so comparisons and promotions never need to re-derive
// the width from the tag. An F32 slot's Payload holds the raw 4-byte
// IEEE-754 bit pattern zero-extended into the low 32 bits; an F64
// slot's Payload holds the full 8-byte bit pattern.

// wrapSigned truncates v to width bytes and sign-extends back to 64
// bits — Go's int8/int16/int32 conversions do exactly this two's
// complement wraparound (spec §4.2 "all integer ops are wrapping by
// default").
func wrapSigned(v int64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return v
	}
}

func unsignedOf(v int64, width int) uint64 {
	switch width {
	case 1:
		return uint64(uint8(v))
	case 2:
		return uint64(uint16(v))
	case 4:
		return uint64(uint32(v))
	default:
		return uint64(v)
	}
}

func maxUnsigned(width int) uint64 {
	if width >= 8 {
		return math.MaxUint64
	}
	return (uint64(1) << uint(width*8)) - 1
}

func isIntTag(t bytecode.TypeTag) bool {
	switch t {
	case bytecode.I8, bytecode.I16, bytecode.I32, bytecode.I64:
		return true
	default:
		return false
	}
}

func isFloatTag(t bytecode.TypeTag) bool {
	return t == bytecode.F32 || t == bytecode.F64
}

func asFloat64(s metadata.TypedSlot) float64 {
	if s.Tag == bytecode.F32 {
		return float64(math.Float32frombits(uint32(s.Payload)))
	}
	return math.Float64frombits(s.Payload)
}

func floatSlot(tag bytecode.TypeTag, v float64) metadata.TypedSlot {
	if tag == bytecode.F32 {
		return metadata.TypedSlot{Tag: tag, Payload: uint64(math.Float32bits(float32(v)))}
	}
	return metadata.TypedSlot{Tag: tag, Payload: math.Float64bits(v)}
}

func intSlot(tag bytecode.TypeTag, v int64) metadata.TypedSlot {
	return metadata.TypedSlot{Tag: tag, Payload: uint64(wrapSigned(v, tag.Width()))}
}

// binaryArith applies a wrapping integer or IEEE-754 float op to the
// top two stack slots (spec §4.2 "typed arithmetic"). intOp/floatOp
// receive already-extracted values; only one of them runs.
func binaryArith(op bytecode.Op, a, b metadata.TypedSlot, intOp func(x, y int64) int64, floatOp func(x, y float64) float64) (metadata.TypedSlot, error) {
	if err := checkTag(op, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	switch {
	case isIntTag(a.Tag):
		return intSlot(a.Tag, intOp(int64(a.Payload), int64(b.Payload))), nil
	case isFloatTag(a.Tag):
		return floatSlot(a.Tag, floatOp(asFloat64(a), asFloat64(b))), nil
	default:
		return metadata.TypedSlot{}, &TypeError{Op: op, Got: a.Tag}
	}
}

func satAdd(a, b metadata.TypedSlot) (metadata.TypedSlot, error) {
	if err := checkTag(bytecode.SatAdd, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	width := a.Tag.Width()
	ua, ub := unsignedOf(int64(a.Payload), width), unsignedOf(int64(b.Payload), width)
	max := maxUnsigned(width)
	sum := ua + ub
	if sum < ua || sum > max {
		sum = max
	}
	return intSlot(a.Tag, int64(sum)), nil
}

func satSub(a, b metadata.TypedSlot) (metadata.TypedSlot, error) {
	if err := checkTag(bytecode.SatSub, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	width := a.Tag.Width()
	ua, ub := unsignedOf(int64(a.Payload), width), unsignedOf(int64(b.Payload), width)
	if ub > ua {
		return intSlot(a.Tag, 0), nil
	}
	return intSlot(a.Tag, int64(ua-ub)), nil
}

// cmpResult packages a three-way comparison as an I32 typed slot of
// -1/0/1 (spec §4.2 "typed comparison").
func cmpResult(c int) metadata.TypedSlot {
	switch {
	case c < 0:
		return intSlot(bytecode.I32, -1)
	case c > 0:
		return intSlot(bytecode.I32, 1)
	default:
		return intSlot(bytecode.I32, 0)
	}
}

func cmpSigned(op bytecode.Op, a, b metadata.TypedSlot) (metadata.TypedSlot, error) {
	if err := checkTag(op, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	x, y := int64(a.Payload), int64(b.Payload)
	switch {
	case x < y:
		return cmpResult(-1), nil
	case x > y:
		return cmpResult(1), nil
	default:
		return cmpResult(0), nil
	}
}

func cmpUnsigned(op bytecode.Op, a, b metadata.TypedSlot) (metadata.TypedSlot, error) {
	if err := checkTag(op, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	width := a.Tag.Width()
	x, y := unsignedOf(int64(a.Payload), width), unsignedOf(int64(b.Payload), width)
	switch {
	case x < y:
		return cmpResult(-1), nil
	case x > y:
		return cmpResult(1), nil
	default:
		return cmpResult(0), nil
	}
}

func cmpFloat(op bytecode.Op, a, b metadata.TypedSlot) (metadata.TypedSlot, error) {
	if err := checkTag(op, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	x, y := asFloat64(a), asFloat64(b)
	switch {
	case x < y:
		return cmpResult(-1), nil
	case x > y:
		return cmpResult(1), nil
	default:
		return cmpResult(0), nil
	}
}

func bitwise(op bytecode.Op, a, b metadata.TypedSlot, fn func(x, y uint64) uint64) (metadata.TypedSlot, error) {
	if err := checkTag(op, a.Tag, b.Tag); err != nil {
		return metadata.TypedSlot{}, err
	}
	width := a.Tag.Width()
	x, y := unsignedOf(int64(a.Payload), width), unsignedOf(int64(b.Payload), width)
	return intSlot(a.Tag, int64(fn(x, y))), nil
}

func negate(op bytecode.Op, a metadata.TypedSlot) (metadata.TypedSlot, error) {
	switch {
	case isIntTag(a.Tag):
		return intSlot(a.Tag, -int64(a.Payload)), nil
	case isFloatTag(a.Tag):
		return floatSlot(a.Tag, -asFloat64(a)), nil
	default:
		return metadata.TypedSlot{}, &TypeError{Op: op, Got: a.Tag}
	}
}

// convertValue performs a value-changing numeric conversion (spec
// §4.2 "convert (numeric with value change)"): int<->int widening or
// narrowing, int<->float, float<->float.
func convertValue(from, to bytecode.TypeTag, v metadata.TypedSlot) metadata.TypedSlot {
	switch {
	case isIntTag(from) && isIntTag(to):
		return intSlot(to, int64(v.Payload))
	case isIntTag(from) && isFloatTag(to):
		return floatSlot(to, float64(int64(v.Payload)))
	case isFloatTag(from) && isIntTag(to):
		return intSlot(to, int64(asFloat64(v)))
	case isFloatTag(from) && isFloatTag(to):
		return floatSlot(to, asFloat64(v))
	default:
		return v
	}
}

// reinterpretBits performs a bit-for-bit retagging with no value
// change (spec §4.2 "binary-convert (bit-reinterpretation)").
func reinterpretBits(to bytecode.TypeTag, v metadata.TypedSlot) metadata.TypedSlot {
	return metadata.TypedSlot{Tag: to, Payload: v.Payload}
}
