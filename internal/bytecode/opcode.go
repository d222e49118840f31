// Package bytecode defines the stack-machine instruction set: the
// stable opcode enumeration, operand widths and the wire encode/decode
// pair (spec §6 "Bytecode wire format"). This is in scope per §1(a)
// ("execution state and bytecode semantics") even though the
// class-file container format that stores compiled methods is not.
package bytecode

import "fmt"

// Op is a single-byte opcode. The numbering below is this module's
// own stable enumeration: once assigned, an Op's meaning never
// changes (spec §8 property 8, bytecode round-trip). Opcodes are
// grouped by the categories spec.md §4.2/§6 name, in the same order.
type Op byte

const (
	Nop        Op = 0
	Breakpoint Op = 1

	// Constant loads: push a typed slot built from the inline operand.
	ConstI8  Op = 2
	ConstI16 Op = 3
	ConstI32 Op = 4
	ConstI64 Op = 5
	ConstU8  Op = 6
	ConstU16 Op = 7
	ConstU32 Op = 8
	ConstU64 Op = 9
	ConstF32 Op = 10
	ConstF64 Op = 11
	ConstStr Op = 12 // operand: 8-byte string symbol

	// Stack manipulation and local/argument transfer.
	Pop        Op = 13
	Dup        Op = 14
	Swap       Op = 15
	LoadLocal  Op = 16 // operand: 2-byte local slot index
	StoreLocal Op = 17 // operand: 2-byte local slot index
	LoadArg    Op = 18 // operand: 2-byte arg slot index
	StoreArg   Op = 19 // operand: 2-byte arg slot index

	// Typed arithmetic. Operates on whatever tag the top one or two
	// stack slots carry; mismatched tags are a fatal type error.
	Add    Op = 20
	Sub    Op = 21
	Mul    Op = 22
	Div    Op = 23
	Rem    Op = 24
	SatAdd Op = 25
	SatSub Op = 26
	Neg    Op = 27

	// Typed comparison: pushes -1/0/1 (as an i32) the way spec.md §4
	// "compare" routines for cmpu/cmps/cmpf describe.
	CmpSigned   Op = 28
	CmpUnsigned Op = 29
	CmpFloat    Op = 30

	// Bitwise and unary.
	And    Op = 31
	Or     Op = 32
	Xor    Op = 33
	Not    Op = 34
	Shl    Op = 35
	Shr    Op = 36

	// Conversions.
	Convert       Op = 37 // operand: 1-byte source tag, 1-byte dest tag; changes value
	ReinterpretBits Op = 38 // operand: 1-byte dest tag; bit-for-bit reinterpretation

	// Arrays.
	ArrayNew Op = 39 // operand: 1-byte element tag
	ArrayGet Op = 40
	ArraySet Op = 41

	// Objects and fields.
	ObjectNew Op = 42 // operand: 8-byte class symbol
	FieldGet  Op = 43 // operand: 8-byte owning-class symbol, 8-byte offset
	FieldSet  Op = 44 // operand: 8-byte owning-class symbol, 8-byte offset
	IsA       Op = 45 // operand: 8-byte class symbol

	// Method dispatch.
	InvokeVirtual  Op = 46 // operand: declared-class symbol, origin-class symbol (0 if absent), method-name symbol
	InvokeStatic   Op = 47 // operand: class symbol, method-name symbol
	StaticMemberGet Op = 48 // operand: class symbol, slot index (8 bytes)
	StaticMemberSet Op = 49 // operand: class symbol, slot index (8 bytes)

	// Return.
	ReturnValue Op = 50
	ReturnVoid  Op = 51

	// Control flow.
	BlockStart Op = 52 // operand: 4-byte block id, marks a jump target
	Goto       Op = 53 // operand: 4-byte block id
	BranchIf   Op = 54 // operand: 4-byte block id (taken if top-of-stack != 0, popped)
	Switch     Op = 55 // operand: 4-byte case count N, then N*(4-byte value, 4-byte block id), 4-byte default block id

	// Exceptions.
	RegisterHandler   Op = 56 // operand: 8-byte exception-class symbol, 4-byte block id
	UnregisterHandler Op = 57
	Throw             Op = 58
)

var names = map[Op]string{
	Nop: "nop", Breakpoint: "breakpoint",
	ConstI8: "const.i8", ConstI16: "const.i16", ConstI32: "const.i32", ConstI64: "const.i64",
	ConstU8: "const.u8", ConstU16: "const.u16", ConstU32: "const.u32", ConstU64: "const.u64",
	ConstF32: "const.f32", ConstF64: "const.f64", ConstStr: "const.str",
	Pop: "pop", Dup: "dup", Swap: "swap",
	LoadLocal: "load.local", StoreLocal: "store.local", LoadArg: "load.arg", StoreArg: "store.arg",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Rem: "rem",
	SatAdd: "sat.add", SatSub: "sat.sub", Neg: "neg",
	CmpSigned: "cmp.s", CmpUnsigned: "cmp.u", CmpFloat: "cmp.f",
	And: "and", Or: "or", Xor: "xor", Not: "not", Shl: "shl", Shr: "shr",
	Convert: "convert", ReinterpretBits: "reinterpret",
	ArrayNew: "array.new", ArrayGet: "array.get", ArraySet: "array.set",
	ObjectNew: "object.new", FieldGet: "field.get", FieldSet: "field.set", IsA: "isa",
	InvokeVirtual: "invoke.virtual", InvokeStatic: "invoke.static",
	StaticMemberGet: "static.get", StaticMemberSet: "static.set",
	ReturnValue: "return.value", ReturnVoid: "return.void",
	BlockStart: "block", Goto: "goto", BranchIf: "br.if", Switch: "switch",
	RegisterHandler: "handler.register", UnregisterHandler: "handler.unregister", Throw: "throw",
}

// String implements fmt.Stringer, built from the op->name table the
// way _examples/KTStephano-GVM/vm/bytecode.go builds its inverse map.
func (o Op) String() string {
	if s, ok := names[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)?unknown?", o)
}

// IsBlockStart reports whether o marks the start of a basic block —
// used by Frame construction to build the block-id -> instruction
// index table (spec §3 Frame).
func (o Op) IsBlockStart() bool {
	return o == BlockStart
}

// IsControlFlow reports whether o can transfer control outside
// straight-line execution.
func (o Op) IsControlFlow() bool {
	switch o {
	case Goto, BranchIf, Switch, ReturnValue, ReturnVoid, Throw:
		return true
	default:
		return false
	}
}
