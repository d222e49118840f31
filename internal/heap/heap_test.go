package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

func TestTableAllocateGetFree(t *testing.T) {
	table := heap.NewTable()
	ref := table.New(&heap.Cell{Data: []byte{1, 2, 3}})
	require.NotEqual(t, heap.Null, ref)

	cell, ok := table.Get(ref)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, cell.Data)
	assert.Equal(t, 1, table.Count())

	dropped := false
	cell.Drop = func(*heap.Cell) { dropped = true }
	table.Free(ref)
	assert.True(t, dropped)
	assert.Equal(t, 0, table.Count())

	_, ok = table.Get(ref)
	assert.False(t, ok)
}

func TestTableRecyclesFreedSlots(t *testing.T) {
	table := heap.NewTable()
	a := table.New(&heap.Cell{})
	table.Free(a)
	b := table.New(&heap.Cell{})
	assert.Equal(t, a, b, "a freed slot should be reused rather than growing the table forever")
}

func TestNullReferenceGetFails(t *testing.T) {
	table := heap.NewTable()
	_, ok := table.Get(heap.Null)
	assert.False(t, ok)
}

func TestNewObjectAllocatesParentChain(t *testing.T) {
	symbols := symbol.NewTable()
	strs := symbol.NewStrings()
	names := symbol.NewMap(symbols, strs)
	classes := metadata.NewClasses()

	baseSym := names.Intern("Base")
	baseHole := classes.ReserveHole()
	symbols.RebindClass(baseSym, baseHole)
	base := metadata.NewClass(baseSym, symbol.None)
	base.Members = []metadata.Member{{Name: names.Intern("Base.x"), Kind: metadata.MemberPrimitive, Tag: bytecode.I32, Size: 4}}
	classes.Materialize(baseHole, base)

	derivedSym := names.Intern("Derived")
	derivedHole := classes.ReserveHole()
	symbols.RebindClass(derivedSym, derivedHole)
	derived := metadata.NewClass(derivedSym, baseSym)
	derived.Members = []metadata.Member{{Name: names.Intern("Derived.y"), Kind: metadata.MemberPrimitive, Tag: bytecode.I32, Size: 4}}
	classes.Materialize(derivedHole, derived)

	table := heap.NewTable()
	ref, err := heap.NewObject(symbols, classes, table, derivedSym)
	require.NoError(t, err)

	derivedCell, ok := table.Get(ref)
	require.True(t, ok)
	assert.Equal(t, derivedSym, derivedCell.Class)
	assert.NotEqual(t, heap.Null, derivedCell.Parent)

	baseCell, err := heap.FieldCell(table, ref, baseSym)
	require.NoError(t, err)
	assert.Equal(t, baseSym, baseCell.Class)

	_, err = heap.FieldCell(table, ref, names.Intern("NotAnAncestor"))
	assert.Error(t, err)
}
