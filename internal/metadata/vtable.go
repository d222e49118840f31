package metadata

import (
	"fmt"
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// VTableIndex is a stable index into the global VTable table, issued
// once and never reused (spec §3 "VTables").
type VTableIndex uint64

// VTable is an ordered list of function descriptors (spec §2
// "VTables": "append-only table of function descriptors keyed by
// vtable index"). A class holds one VTable per ancestor, its own
// included, plus one for its static methods.
type VTable struct {
	methods []*FunctionDescriptor
	byName  map[symbol.Symbol]int
}

// NewVTable returns an empty vtable.
func NewVTable() *VTable {
	return &VTable{byName: make(map[symbol.Symbol]int)}
}

// Append adds fd as the next method slot and indexes it by name.
// Duplicate names within one vtable are a linker bug, not a runtime
// condition, so this panics rather than returning an error.
func (v *VTable) Append(fd *FunctionDescriptor) int {
	if _, dup := v.byName[fd.Name]; dup {
		panic(fmt.Sprintf("metadata: duplicate method name symbol %d in vtable", fd.Name))
	}
	idx := len(v.methods)
	v.methods = append(v.methods, fd)
	v.byName[fd.Name] = idx
	return idx
}

// ByName looks up a method by its name symbol.
func (v *VTable) ByName(name symbol.Symbol) (*FunctionDescriptor, bool) {
	idx, ok := v.byName[name]
	if !ok {
		return nil, false
	}
	return v.methods[idx], true
}

// At returns the method at a given slot position (used for pairing
// base/derived method lists by slot during override materialisation,
// spec §4.1 step 2).
func (v *VTable) At(i int) *FunctionDescriptor {
	return v.methods[i]
}

// Len returns the number of methods in the vtable.
func (v *VTable) Len() int {
	return len(v.methods)
}

// Methods returns a copy of the method set, in declaration order.
// Used for spec §8 property 2 (vtable completeness: "method set
// equals A's declared method set").
func (v *VTable) Methods() []*FunctionDescriptor {
	out := make([]*FunctionDescriptor, len(v.methods))
	copy(out, v.methods)
	return out
}

// Tables is the global, append-only table of vtables, indexed by
// VTableIndex, one reader-writer lock guarding insertion (linking and
// JIT installation are the only writers; steady-state dispatch is
// read-only, spec §5).
type Tables struct {
	mu     sync.RWMutex
	tables []*VTable
}

// NewTables returns an empty vtable-of-vtables store.
func NewTables() *Tables {
	return &Tables{}
}

// Add appends vt and returns its stable index.
func (t *Tables) Add(vt *VTable) VTableIndex {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := VTableIndex(len(t.tables))
	t.tables = append(t.tables, vt)
	return idx
}

// Get returns the vtable at idx.
func (t *Tables) Get(idx VTableIndex) *VTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tables[idx]
}

// Count returns how many vtables have been issued.
func (t *Tables) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tables)
}
