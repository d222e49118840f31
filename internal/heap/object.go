package heap

import (
	"fmt"

	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// referenceSize is the byte width of a MemberObject field: an
// object field holds a Reference value, not inline object bytes
// (spec §3 "Object cell": "parent-object reference" is itself a
// Reference-sized slot, and the same holds for any reference-typed
// member).
const referenceSize = 8

// layoutSize sums the byte size of one class's own (non-inherited)
// member list, the way the linker bakes a native-sized member's width
// into the class layout at link time (spec §4.1).
func layoutSize(cls *metadata.Class) int {
	n := 0
	for _, m := range cls.Members {
		if m.Kind == metadata.MemberObject {
			n += referenceSize
		} else {
			n += m.Size
		}
	}
	return n
}

// classByIndex resolves a class symbol all the way to its Class,
// through the symbol table's class-ref indirection.
func classByIndex(symbols *symbol.Table, classes *metadata.Classes, class symbol.Symbol) (*metadata.Class, error) {
	idx, ok := symbols.ClassIndex(class)
	if !ok {
		return nil, fmt.Errorf("heap: symbol %d is not a class", class)
	}
	cls, ok := classes.Get(idx)
	if !ok {
		return nil, fmt.Errorf("heap: class %d is not materialised", idx)
	}
	return cls, nil
}

// NewObject allocates a cell for class and, recursively, one cell per
// ancestor class, wiring Cell.Parent along the way (spec §3 "Object
// cell": "A new object allocates its parent recursively; the chain's
// tail is null only for the root class", and §9 "Inheritance with
// shared state": "every derived instance owns (transitively) one cell
// per ancestor class").
func NewObject(symbols *symbol.Table, classes *metadata.Classes, table *Table, class symbol.Symbol) (Reference, error) {
	cls, err := classByIndex(symbols, classes, class)
	if err != nil {
		return Null, err
	}

	var parentRef Reference = Null
	if cls.Parent != symbol.None {
		parentRef, err = NewObject(symbols, classes, table, cls.Parent)
		if err != nil {
			return Null, err
		}
	}

	data, err := table.AllocBytes(layoutSize(cls))
	if err != nil {
		return Null, err
	}
	cell := &Cell{
		Class:  class,
		Parent: parentRef,
		Data:   data,
		Drop:   dropHookFor(cls),
	}
	return table.New(cell), nil
}

func dropHookFor(cls *metadata.Class) DropHook {
	if cls.Drop == nil {
		return nil
	}
	return func(c *Cell) { cls.Drop(c) }
}

// FieldCell walks the parent-object chain starting at ref until it
// finds the cell whose class matches owner, the way field access "by
// owning-class symbol and offset" is specified to work (spec §3
// "Object cell", §4.2 "field get/set").
func FieldCell(table *Table, ref Reference, owner symbol.Symbol) (*Cell, error) {
	cur := ref
	for cur != Null {
		cell, ok := table.Get(cur)
		if !ok {
			return nil, fmt.Errorf("heap: dangling reference in parent chain")
		}
		if cell.Class == owner {
			return cell, nil
		}
		cur = cell.Parent
	}
	return nil, fmt.Errorf("heap: no ancestor cell for owning class %d", owner)
}
