package bytecode_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
)

func TestRoundTrip(t *testing.T) {
	var body []byte
	body = bytecode.EncodeConst(body, bytecode.ConstU64, 3, 8)
	body = bytecode.EncodeConst(body, bytecode.ConstU64, 4, 8)
	body = bytecode.Encode(body, bytecode.Instruction{Op: bytecode.Add})
	body = bytecode.Encode(body, bytecode.Instruction{Op: bytecode.ReturnValue})

	decoded, err := bytecode.DecodeAll(body)
	require.NoError(t, err)
	require.Len(t, decoded, 4)
	assert.Equal(t, bytecode.ConstU64, decoded[0].Op)
	assert.Equal(t, uint64(3), decoded[0].Uint64Operand(0))
	assert.Equal(t, uint64(4), decoded[1].Uint64Operand(0))
	assert.Equal(t, bytecode.Add, decoded[2].Op)
	assert.Equal(t, bytecode.ReturnValue, decoded[3].Op)

	reencoded := bytecode.EncodeAll(decoded)
	assert.Equal(t, body, reencoded, "encode(decode(x)) must equal x")
}

func TestFloatConstWidth(t *testing.T) {
	var body []byte
	body = bytecode.EncodeConst(body, bytecode.ConstF32, uint64(math.Float32bits(3.5)), 4)
	decoded, err := bytecode.DecodeAll(body)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Len(t, decoded[0].Operands, 4)
}

func TestDecodeTruncatedOperandsErrors(t *testing.T) {
	_, err := bytecode.DecodeAll([]byte{byte(bytecode.ConstU64), 1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeUnknownOpcodeErrors(t *testing.T) {
	_, err := bytecode.DecodeAll([]byte{0xEE})
	assert.Error(t, err)
}

func TestScanBlocksFindsBlockStarts(t *testing.T) {
	blockID := func(id uint32) bytecode.Instruction {
		ins, _, err := bytecode.Decode(encodeBlockStart(id), 0)
		require.NoError(t, err)
		return ins
	}
	body := []bytecode.Instruction{
		blockID(0),
		{Op: bytecode.Nop},
		blockID(1),
		{Op: bytecode.ReturnVoid},
	}
	table, err := bytecode.ScanBlocks(body)
	require.NoError(t, err)
	assert.Equal(t, 0, table[0])
	assert.Equal(t, 2, table[1])
}

func TestScanBlocksRejectsDuplicateIDs(t *testing.T) {
	ins0, _, _ := bytecode.Decode(encodeBlockStart(5), 0)
	ins1, _, _ := bytecode.Decode(encodeBlockStart(5), 0)
	_, err := bytecode.ScanBlocks([]bytecode.Instruction{ins0, ins1})
	assert.Error(t, err)
}

func encodeBlockStart(id uint32) []byte {
	var body []byte
	body = append(body, byte(bytecode.BlockStart))
	body = append(body, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
	return body
}
