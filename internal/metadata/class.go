package metadata

import (
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// MemberKind distinguishes a primitive field from an object reference
// field or a "native sized" field whose byte size is resolved at link
// time via the native library (spec §3 "Class", §4.1 "native sized").
type MemberKind uint8

const (
	MemberPrimitive MemberKind = iota
	MemberObject
	MemberNativeSized
)

// Member is one entry of a class's field layout.
type Member struct {
	Name symbol.Symbol
	Kind MemberKind
	// Tag is the primitive type for MemberPrimitive fields.
	Tag bytecode.TypeTag
	// Size is the byte width; for MemberNativeSized this is whatever
	// the linker's A__B_member__get_dash_size native call returned.
	Size int
}

// TypedSlot is a (tag, payload) pair (spec §3 "A typed slot"). Blank
// means "unused"; root/local/arg scans stop at the first Blank slot.
type TypedSlot struct {
	Tag     bytecode.TypeTag
	Payload uint64 // the slot's bit pattern; for TObject this is a heap.Reference
}

// IsBlank reports whether the slot is unused.
func (s TypedSlot) IsBlank() bool {
	return s.Tag == bytecode.TVoid
}

// StaticInit is the once-per-class static initializer: optional
// bytecode that must run exactly once before any method of the class
// executes (spec §3 "static-init", §9 Open Question — implemented as
// the "natural choice", a once-per-class latch).
type StaticInit struct {
	Body []bytecode.Instruction
	once sync.Once
	fn   func()
}

// Bind supplies the callback that actually runs the static
// initializer bytecode (wired up by the interpreter once it exists,
// avoiding an import cycle from metadata -> interpreter).
func (si *StaticInit) Bind(fn func()) {
	si.fn = fn
}

// Ensure runs the static initializer exactly once, blocking any
// concurrent caller until the first run completes.
func (si *StaticInit) Ensure() {
	si.once.Do(func() {
		if si.fn != nil {
			si.fn()
		}
	})
}

// Class is the per-class descriptor (spec §3 "Class" table, verbatim
// field set).
type Class struct {
	Name   symbol.Symbol
	Parent symbol.Symbol // symbol.None for the root class

	Members []Member

	// VTables maps an ancestor class symbol (including Name itself)
	// to the vtable index holding that ancestor's method set as seen
	// from this class (own methods, or overrides). Spec §3 invariant:
	// "the vtables map contains entries for every transitive
	// ancestor."
	VTables map[symbol.Symbol]VTableIndex

	StaticMethods VTableIndex
	HasStaticMethods bool

	StaticMembers []TypedSlot

	StaticInit *StaticInit // nil if the class declares none

	// Drop is the optional native finalizer callback, exported as
	// "custom_drop" (spec §6).
	Drop func(cell interface{})
}

// NewClass returns a Class with its VTables map initialized and no
// static initializer.
func NewClass(name, parent symbol.Symbol) *Class {
	return &Class{
		Name:    name,
		Parent:  parent,
		VTables: make(map[symbol.Symbol]VTableIndex),
	}
}

// Classes is the global class table: reserved "holes" by the linker's
// registration phase, materialised in place during phase B (spec
// §4.1). Indices are symbol.Symbol class-table indices.
type Classes struct {
	mu      sync.RWMutex
	classes []*Class // nil entry = reserved hole, not yet materialised
}

// NewClasses returns an empty class table.
func NewClasses() *Classes {
	return &Classes{classes: []*Class{nil}} // index 0 unused, mirrors symbol.None
}

// ReserveHole appends a nil placeholder and returns its index, used
// when the linker sees a class name referenced before that class file
// has been processed (spec §4.1 "allocate a hole + symbol").
func (c *Classes) ReserveHole() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := uint64(len(c.classes))
	c.classes = append(c.classes, nil)
	return idx
}

// Materialize fills a previously reserved hole (or appends fresh if
// idx is new) with cls.
func (c *Classes) Materialize(idx uint64, cls *Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for uint64(len(c.classes)) <= idx {
		c.classes = append(c.classes, nil)
	}
	c.classes[idx] = cls
}

// Get returns the class at idx, and whether it has been materialised
// yet (a reserved-but-unfilled hole reports ok=false).
func (c *Classes) Get(idx uint64) (*Class, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx >= uint64(len(c.classes)) || c.classes[idx] == nil {
		return nil, false
	}
	return c.classes[idx], true
}

// Count returns the number of class-table slots, holes included.
func (c *Classes) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.classes) - 1
}
