// Package symbol implements the symbol store: a monotonic table of
// interned strings and classes addressed by a stable integer index
// that never changes once issued.
package symbol

import (
	"fmt"
	"sync"
)

// Symbol is a non-zero index into the Table. Zero is reserved to mean
// "absent", e.g. a class with no parent.
type Symbol uint64

// None is the reserved "absent/null parent" symbol.
const None Symbol = 0

// Kind distinguishes what a Symbol's table entry refers to.
type Kind uint8

const (
	// KindString means the symbol indexes into the string table.
	KindString Kind = iota
	// KindClass means the symbol indexes into the class table.
	KindClass
)

// entry is the tagged union stored per issued symbol.
type entry struct {
	kind  Kind
	index uint64 // index into the string table or the class table
}

// Table is the global symbol table. All accesses go through a
// reader-writer lock held as briefly as possible, the way wazero
// guards its per-engine code maps (see internal/engine/interpreter).
type Table struct {
	mu      sync.RWMutex
	entries []entry // entries[0] is an unused placeholder for Symbol 0
}

// NewTable returns an empty symbol table with Symbol 0 reserved.
func NewTable() *Table {
	return &Table{entries: []entry{{}}}
}

// internal/symbol never exposes the entry's raw Kind/index pair
// outside the package; String/Class tables look symbols up by
// calling back into Table via the accessors below.

// issue appends a new entry and returns its Symbol.
func (t *Table) issue(k Kind, index uint64) Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Symbol(len(t.entries))
	t.entries = append(t.entries, entry{kind: k, index: index})
	return s
}

func (t *Table) lookup(s Symbol) (entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s == None || int(s) >= len(t.entries) {
		return entry{}, false
	}
	return t.entries[s], true
}

// Kind reports what kind of table a symbol refers to. Panics on an
// unknown symbol — callers only ever hold symbols this table issued.
func (t *Table) Kind(s Symbol) Kind {
	e, ok := t.lookup(s)
	if !ok {
		panic(fmt.Sprintf("symbol: unknown symbol %d", s))
	}
	return e.kind
}

// Count returns the number of issued symbols, Symbol 0 excluded.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - 1
}

// IssueClass reserves a new class symbol pointing at index in the
// caller's class table (internal/metadata owns that table; this
// package only owns the indirection). Used both to register a fully
// known class and to reserve a "hole" for a name seen only as a
// reference (linker Phase A).
func (t *Table) IssueClass(index uint64) Symbol {
	return t.issue(KindClass, index)
}

// ClassIndex returns the class-table index a class symbol refers to.
func (t *Table) ClassIndex(s Symbol) (uint64, bool) {
	e, ok := t.lookup(s)
	if !ok || e.kind != KindClass {
		return 0, false
	}
	return e.index, true
}

// RebindClass updates the class-table index a previously issued class
// symbol points at. This lets the linker reserve a symbol for a class
// name before the class itself has been materialised (a "hole"), then
// repoint it once materialisation assigns the class its final slot.
func (t *Table) RebindClass(s Symbol, index uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(s) >= len(t.entries) {
		panic(fmt.Sprintf("symbol: rebind of unknown symbol %d", s))
	}
	t.entries[s] = entry{kind: KindClass, index: index}
}
