package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded bytecode instruction: an opcode plus its
// operand bytes, still in wire order. Symbols/offsets are 8 bytes,
// block ids 4 bytes, primitive constants match their TypeTag's width
// (spec §6 "Bytecode wire format").
type Instruction struct {
	Op       Op
	Operands []byte
}

// fixedOperandBytes returns the number of trailing operand bytes for
// opcodes whose width never depends on the operand values themselves.
// -1 means "variable", handled specially in Decode.
func fixedOperandBytes(op Op) int {
	switch op {
	case Nop, Breakpoint, Pop, Dup, Swap,
		Add, Sub, Mul, Div, Rem, SatAdd, SatSub, Neg,
		CmpSigned, CmpUnsigned, CmpFloat,
		And, Or, Xor, Not, Shl, Shr,
		ArrayGet, ArraySet,
		ReturnValue, ReturnVoid,
		UnregisterHandler, Throw:
		return 0
	case ConstI8, ConstU8, ArrayNew:
		return 1
	case LoadLocal, StoreLocal, LoadArg, StoreArg:
		return 2
	case ConstI16, ConstU16:
		return 2
	case Convert:
		return 2
	case ReinterpretBits:
		return 1
	case ConstI32, ConstU32, ConstF32:
		return 4
	case BlockStart, Goto, BranchIf:
		return 4
	case ConstI64, ConstU64, ConstF64, ConstStr:
		return 8
	case ObjectNew, IsA:
		return 8
	case FieldGet, FieldSet:
		return 16
	case InvokeVirtual:
		return 24
	case InvokeStatic:
		return 16
	case StaticMemberGet, StaticMemberSet:
		return 16
	case RegisterHandler:
		return 12
	case Switch:
		return -1
	default:
		return -1
	}
}

// Encode appends the wire representation of ins to dst and returns the
// extended slice.
func Encode(dst []byte, ins Instruction) []byte {
	dst = append(dst, byte(ins.Op))
	dst = append(dst, ins.Operands...)
	return dst
}

// EncodeConst encodes a typed constant-load instruction for the given
// tag/value bit pattern (the bit pattern is always the little-endian
// encoding the TypeTag's width describes).
func EncodeConst(dst []byte, op Op, bits uint64, width int) []byte {
	dst = append(dst, byte(op))
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, bits)
	return append(dst, buf[:width]...)
}

// Decode reads one instruction from src at offset off, returning the
// instruction and the offset of the next one.
func Decode(src []byte, off int) (Instruction, int, error) {
	if off >= len(src) {
		return Instruction{}, off, fmt.Errorf("bytecode: decode at %d: out of range (len=%d)", off, len(src))
	}
	op := Op(src[off])
	pos := off + 1

	n := fixedOperandBytes(op)
	if op == Switch {
		if pos+4 > len(src) {
			return Instruction{}, off, fmt.Errorf("bytecode: decode switch at %d: truncated case count", off)
		}
		count := int(binary.LittleEndian.Uint32(src[pos : pos+4]))
		n = 4 + count*8 + 4
	} else if n < 0 {
		return Instruction{}, off, fmt.Errorf("bytecode: decode at %d: unknown opcode %d", off, op)
	}

	if pos+n > len(src) {
		return Instruction{}, off, fmt.Errorf("bytecode: decode %s at %d: truncated operands (need %d, have %d)", op, off, n, len(src)-pos)
	}
	operands := make([]byte, n)
	copy(operands, src[pos:pos+n])
	return Instruction{Op: op, Operands: operands}, pos + n, nil
}

// DecodeAll decodes every instruction in src, in order. It is the
// round-trip counterpart to encoding a whole method body (spec §8
// property 8).
func DecodeAll(src []byte) ([]Instruction, error) {
	var out []Instruction
	off := 0
	for off < len(src) {
		ins, next, err := Decode(src, off)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
		off = next
	}
	return out, nil
}

// EncodeAll is the inverse of DecodeAll.
func EncodeAll(ins []Instruction) []byte {
	var out []byte
	for _, i := range ins {
		out = Encode(out, i)
	}
	return out
}

// Uint64Operand reads an 8-byte little-endian operand (a symbol or
// offset) starting at byte index i within ins.Operands.
func (ins Instruction) Uint64Operand(i int) uint64 {
	return binary.LittleEndian.Uint64(ins.Operands[i : i+8])
}

// Uint32Operand reads a 4-byte little-endian operand (a block id)
// starting at byte index i within ins.Operands.
func (ins Instruction) Uint32Operand(i int) uint32 {
	return binary.LittleEndian.Uint32(ins.Operands[i : i+4])
}

// Uint16Operand reads a 2-byte little-endian operand (a slot index)
// starting at byte index i within ins.Operands.
func (ins Instruction) Uint16Operand(i int) uint16 {
	return binary.LittleEndian.Uint16(ins.Operands[i : i+2])
}
