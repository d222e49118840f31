package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
)

func TestCollectRootsWalksLocalsCallArgsAndStack(t *testing.T) {
	f := newFixture()
	animalSym := f.defineClass("Animal", "", map[string][]bytecode.Instruction{})
	ref, err := heap.NewObject(f.symbols, f.classes, f.objects, animalSym)
	require.NoError(t, err)

	frame := &Frame{
		Locals:   []metadata.TypedSlot{{Tag: bytecode.TObject, Payload: uint64(ref)}, {Tag: bytecode.TVoid}},
		CallArgs: []metadata.TypedSlot{{Tag: bytecode.TVoid}},
		Stack:    []metadata.TypedSlot{{Tag: bytecode.I32, Payload: 7}, {Tag: bytecode.TObject, Payload: uint64(ref)}},
	}
	f.ctx.Frames = append(f.ctx.Frames, frame)

	roots := f.ctx.CollectRoots()
	assert.Equal(t, []heap.Reference{ref, ref}, roots)
}

func TestCollectRootsStopsLocalsAtFirstBlank(t *testing.T) {
	f := newFixture()
	animalSym := f.defineClass("Animal", "", map[string][]bytecode.Instruction{})
	ref, err := heap.NewObject(f.symbols, f.classes, f.objects, animalSym)
	require.NoError(t, err)

	frame := &Frame{
		Locals: []metadata.TypedSlot{
			{Tag: bytecode.TVoid},
			{Tag: bytecode.TObject, Payload: uint64(ref)},
		},
	}
	f.ctx.Frames = append(f.ctx.Frames, frame)

	assert.Empty(t, f.ctx.CollectRoots())
}

func TestCollectRootsSkipsArrayHandles(t *testing.T) {
	f := newFixture()
	arrRef := f.ctx.Arrays.New(bytecode.I32, 3)

	frame := &Frame{
		Locals: []metadata.TypedSlot{{Tag: bytecode.TObject, Payload: EncodeArrayRef(arrRef)}},
	}
	f.ctx.Frames = append(f.ctx.Frames, frame)

	assert.Empty(t, f.ctx.CollectRoots())
}

func TestCollectRootsIncludesCurrentException(t *testing.T) {
	f := newFixture()
	animalSym := f.defineClass("Animal", "", map[string][]bytecode.Instruction{})
	ref, err := heap.NewObject(f.symbols, f.classes, f.objects, animalSym)
	require.NoError(t, err)

	f.ctx.CurrentException = ref
	assert.Equal(t, []heap.Reference{ref}, f.ctx.CollectRoots())
}
