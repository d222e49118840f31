package gc

import (
	"encoding/binary"

	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// Collector drives one stop-the-world mark-sweep cycle over the shared
// object heap (spec §4.4 "Collector logic").
//
// Scope note: this module's own ArrayTable (internal/interpreter's
// variable-length-array namespace, disjoint from heap.Table since
// array elements aren't fixed-layout object cells) is not part of the
// mark-sweep graph spec.md §3/§4.4 describe — the spec's Object Table
// is exactly heap.Table, and arrays hold only primitive element slots
// in this implementation (no array-of-object element kind is wired),
// so there is nothing array-shaped for the collector to trace.
type Collector struct {
	Gate    *Gate
	Heap    *heap.Table
	Symbols *symbol.Table
	Classes *metadata.Classes
}

// NewCollector wires a collector to the shared heap/symbol/class
// tables and the gate its mutators poll.
func NewCollector(gate *Gate, objects *heap.Table, symbols *symbol.Table, classes *metadata.Classes) *Collector {
	return &Collector{Gate: gate, Heap: objects, Symbols: symbols, Classes: classes}
}

// Cycle runs exactly one collection: request the gate, wait for every
// registered mutator to publish its roots, mark transitively, sweep
// unmarked cells, reopen the gate. Returns the number of cells freed
// (spec §8 property 5 scaffolding).
func (c *Collector) Cycle() int {
	pending := c.Gate.beginCycle()

	var roots []heap.Reference
	for _, ch := range pending {
		roots = append(roots, <-ch...)
	}

	c.mark(roots)
	freed := c.sweep()

	c.Gate.endCycle()
	return freed
}

// mark explores every root's referent transitively: the cell's own
// class members (recursing into MemberObject fields) and its
// parent-object cell (spec §4.4 "recursing into reference-typed
// members and the parent-object pointer").
func (c *Collector) mark(roots []heap.Reference) {
	seen := make(map[heap.Reference]bool, len(roots))
	var stack []heap.Reference

	push := func(r heap.Reference) {
		if r == heap.Null || seen[r] {
			return
		}
		seen[r] = true
		stack = append(stack, r)
	}
	for _, r := range roots {
		push(r)
	}

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cell, ok := c.Heap.Get(r)
		if !ok {
			continue
		}
		cell.SetMarked(true)
		push(cell.Parent)

		cls, ok := c.classOf(cell.Class)
		if !ok {
			continue
		}
		offset := 0
		for _, m := range cls.Members {
			width := m.Size
			if m.Kind == metadata.MemberObject {
				width = 8
				if offset+width <= len(cell.Data) {
					raw := binary.LittleEndian.Uint64(cell.Data[offset : offset+width])
					push(heap.Reference(raw))
				}
			}
			offset += width
		}
	}
}

// sweep frees every live cell the mark phase didn't visit, clearing
// the mark bit on survivors for the next cycle (spec §4.4 "iterate the
// Object Table and free every cell not in the live-set").
func (c *Collector) sweep() int {
	freed := 0
	for _, r := range c.Heap.Live() {
		cell, ok := c.Heap.Get(r)
		if !ok {
			continue
		}
		if cell.Marked() {
			cell.SetMarked(false)
			continue
		}
		c.Heap.Free(r)
		freed++
	}
	return freed
}

func (c *Collector) classOf(sym symbol.Symbol) (*metadata.Class, bool) {
	idx, ok := c.Symbols.ClassIndex(sym)
	if !ok {
		return nil, false
	}
	return c.Classes.Get(idx)
}
