package gc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/gc"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// fixture builds a single materialised class with one MemberObject
// field, so tests can exercise mark's "recurse into reference-typed
// members" path as well as the parent-object chain.
type fixture struct {
	symbols *symbol.Table
	classes *metadata.Classes
	class   symbol.Symbol
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	symbols := symbol.NewTable()
	classes := metadata.NewClasses()

	idx := classes.ReserveHole()
	sym := symbols.IssueClass(idx)
	cls := metadata.NewClass(sym, symbol.None)
	cls.Members = []metadata.Member{{Kind: metadata.MemberObject}}
	classes.Materialize(idx, cls)

	return &fixture{symbols: symbols, classes: classes, class: sym}
}

// fakeRootSource is a stable gc.RootSource a poll loop reads from
// repeatedly, standing in for *interpreter.Context.CollectRoots.
type fakeRootSource struct {
	refs []heap.Reference
}

func (f *fakeRootSource) CollectRoots() []heap.Reference { return f.refs }

// runPollLoop starts a goroutine calling m.Poll() in a tight loop until
// the test ends, modeling a mutator thread cooperating with the gate
// at frequent safepoints (spec §4.4).
func runPollLoop(t *testing.T, gate *gc.Gate, m *gc.Mutator) {
	t.Helper()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				m.Poll()
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		gate.Unregister(m)
	})
}

func TestCycleFreesUnreachableCell(t *testing.T) {
	fx := newFixture(t)
	objects := heap.NewTable()

	reachable := objects.New(&heap.Cell{Class: fx.class})
	garbage := objects.New(&heap.Cell{Class: fx.class})

	gate := gc.NewGate()
	m := gate.Register(&fakeRootSource{refs: []heap.Reference{reachable}})
	runPollLoop(t, gate, m)

	collector := gc.NewCollector(gate, objects, fx.symbols, fx.classes)
	freed := collector.Cycle()

	assert.Equal(t, 1, freed)
	_, stillThere := objects.Get(reachable)
	assert.True(t, stillThere)
	_, stillAllocated := objects.Get(garbage)
	assert.False(t, stillAllocated)
}

func TestCycleMarksThroughParentObjectChain(t *testing.T) {
	fx := newFixture(t)
	objects := heap.NewTable()

	parent := objects.New(&heap.Cell{Class: fx.class})
	child := objects.New(&heap.Cell{Class: fx.class, Parent: parent})

	gate := gc.NewGate()
	m := gate.Register(&fakeRootSource{refs: []heap.Reference{child}})
	runPollLoop(t, gate, m)

	collector := gc.NewCollector(gate, objects, fx.symbols, fx.classes)
	freed := collector.Cycle()

	assert.Equal(t, 0, freed)
	_, parentStillThere := objects.Get(parent)
	assert.True(t, parentStillThere)
}

func TestCycleMarksThroughObjectField(t *testing.T) {
	fx := newFixture(t)
	objects := heap.NewTable()

	referent := objects.New(&heap.Cell{Class: fx.class})

	data := make([]byte, 8)
	for i := range data {
		data[i] = byte(referent >> (8 * i))
	}
	holder := objects.New(&heap.Cell{Class: fx.class, Data: data})

	gate := gc.NewGate()
	m := gate.Register(&fakeRootSource{refs: []heap.Reference{holder}})
	runPollLoop(t, gate, m)

	collector := gc.NewCollector(gate, objects, fx.symbols, fx.classes)
	freed := collector.Cycle()

	assert.Equal(t, 0, freed)
	_, referentStillThere := objects.Get(referent)
	assert.True(t, referentStillThere)
}

func TestCollectorSweepsUnreachableEvenWithNoRoots(t *testing.T) {
	fx := newFixture(t)
	objects := heap.NewTable()
	objects.New(&heap.Cell{Class: fx.class})

	gate := gc.NewGate()
	m := gate.Register(&fakeRootSource{})
	runPollLoop(t, gate, m)

	collector := gc.NewCollector(gate, objects, fx.symbols, fx.classes)
	freed := collector.Cycle()
	require.Equal(t, 1, freed)
	assert.Equal(t, 0, objects.Count())
}

func TestCycleWithNoRegisteredMutatorsReturnsImmediately(t *testing.T) {
	fx := newFixture(t)
	objects := heap.NewTable()

	gate := gc.NewGate()
	collector := gc.NewCollector(gate, objects, fx.symbols, fx.classes)

	done := make(chan int, 1)
	go func() { done <- collector.Cycle() }()

	select {
	case freed := <-done:
		assert.Equal(t, 0, freed)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Cycle blocked despite no registered mutators")
	}
}
