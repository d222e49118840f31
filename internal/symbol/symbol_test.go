package symbol_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

func TestInternStability(t *testing.T) {
	table := symbol.NewTable()
	strs := symbol.NewStrings()
	m := symbol.NewMap(table, strs)

	a := m.Intern("Foo::bar")
	b := m.Intern("Foo::bar")
	require.Equal(t, a, b, "interning the same string twice must return the same symbol")
	require.NotEqual(t, symbol.None, a)

	got, ok := m.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, "Foo::bar", got)
}

func TestInternConcurrentSameValue(t *testing.T) {
	table := symbol.NewTable()
	strs := symbol.NewStrings()
	m := symbol.NewMap(table, strs)

	const n = 64
	results := make([]symbol.Symbol, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = m.Intern("Shared::name")
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i], "every goroutine must observe the same interned symbol")
	}
}

func TestClassHoleThenRebind(t *testing.T) {
	table := symbol.NewTable()

	hole := table.IssueClass(0)
	idx, ok := table.ClassIndex(hole)
	require.True(t, ok)
	assert.Equal(t, uint64(0), idx)

	table.RebindClass(hole, 7)
	idx, ok = table.ClassIndex(hole)
	require.True(t, ok)
	assert.Equal(t, uint64(7), idx)
}

func TestUnknownSymbolLookupFails(t *testing.T) {
	table := symbol.NewTable()
	strs := symbol.NewStrings()
	m := symbol.NewMap(table, strs)

	_, ok := m.Lookup(symbol.Symbol(999))
	assert.False(t, ok)
}

func TestSymbolZeroIsNone(t *testing.T) {
	assert.Equal(t, symbol.Symbol(0), symbol.None)
}
