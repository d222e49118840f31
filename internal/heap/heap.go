// Package heap implements the Object Heap: an indirection table
// mapping an opaque Reference to a heap cell (spec §3 "Object cell").
package heap

import (
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/nativelib"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// Reference is an opaque handle indexing the Object Table. Zero is
// "null" (spec §4.4 invariant (c)).
type Reference uint64

// Null is the zero reference.
const Null Reference = 0

// DropHook is the optional native callback invoked at finalization,
// pre-free (spec §3 "Object cell": "drop: Option<fn(&mut Cell)>").
type DropHook func(*Cell)

// Cell is one object: class symbol, parent-object reference (for
// inherited fields), raw field bytes, optional drop hook (spec §3
// "Object cell" verbatim).
type Cell struct {
	Class  symbol.Symbol
	Parent Reference // Null only for the root class's cell
	Data   []byte
	Drop   DropHook

	// marked is scratch state the collector's mark phase uses; it is
	// only ever touched while mutators are frozen at safepoints
	// (spec §4.4 invariant (d): no concurrent writer during a cycle).
	marked bool
}

// Table is the Object Table: an indirection table with stable
// indices, written only by New (writer) and GC sweep (writer); Get
// and Live take the read lock.
type Table struct {
	mu    sync.RWMutex
	cells []*Cell // cells[0] is an unused placeholder so Reference 0 is always invalid
	free  []Reference
	arena *nativelib.Arena
}

// NewTable returns an empty object table backed by a fresh bulk arena
// for cell field-byte storage (internal/nativelib).
func NewTable() *Table {
	arena, err := nativelib.NewArena(0)
	if err != nil {
		// Anonymous mmap failing is not a recoverable condition any
		// caller of NewTable could act on; every other table
		// constructor in this module (symbol.NewTable, etc.) is
		// likewise infallible.
		panic(err)
	}
	return &Table{cells: []*Cell{nil}, arena: arena}
}

// AllocBytes returns n zeroed bytes from the table's backing arena,
// for a Cell's Data field (see heap.NewObject).
func (t *Table) AllocBytes(n int) ([]byte, error) {
	return t.arena.Alloc(n)
}

// Release unmaps the table's backing arena. Not called during normal
// operation; exposed for tests and process teardown.
func (t *Table) Release() error {
	return t.arena.Release()
}

// New allocates a fresh cell and returns its Reference. Callers are
// responsible for recursively allocating parent cells first and
// wiring Cell.Parent (spec §3 "Lifecycle": "parent objects allocated
// eagerly").
func (t *Table) New(cell *Cell) Reference {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.free); n > 0 {
		ref := t.free[n-1]
		t.free = t.free[:n-1]
		t.cells[ref] = cell
		return ref
	}
	ref := Reference(len(t.cells))
	t.cells = append(t.cells, cell)
	return ref
}

// Get dereferences ref. Returns nil, false for Null or a freed
// reference.
func (t *Table) Get(ref Reference) (*Cell, bool) {
	if ref == Null {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if uint64(ref) >= uint64(len(t.cells)) {
		return nil, false
	}
	c := t.cells[ref]
	return c, c != nil
}

// Live returns every currently-allocated reference, for the
// collector's sweep phase to walk.
func (t *Table) Live() []Reference {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Reference, 0, len(t.cells))
	for i := 1; i < len(t.cells); i++ {
		if t.cells[i] != nil {
			out = append(out, Reference(i))
		}
	}
	return out
}

// Free removes ref from the table after running its drop hook,
// recycling the slot for a future New. Called only by the collector
// during a sweep (spec §4.4 "Collector logic").
func (t *Table) Free(ref Reference) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if uint64(ref) >= uint64(len(t.cells)) || t.cells[ref] == nil {
		return
	}
	cell := t.cells[ref]
	if cell.Drop != nil {
		cell.Drop(cell)
	}
	t.cells[ref] = nil
	t.free = append(t.free, ref)
}

// Count returns the number of live cells (spec §8 property 5 uses
// this to check the Object Table's live count after a GC cycle).
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := 1; i < len(t.cells); i++ {
		if t.cells[i] != nil {
			n++
		}
	}
	return n
}

// SetMarked and Marked give the collector's mark phase scratch state
// on a cell without needing a separate parallel map.
func (c *Cell) SetMarked(v bool) { c.marked = v }
func (c *Cell) Marked() bool     { return c.marked }
