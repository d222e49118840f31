package interpreter

import (
	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
)

// CollectRoots implements gc.RootSource (spec §4.4 "Interpreter
// roots"): for every frame, walk the locals array and the call-args
// array (each stopping at the first blank slot, per spec §3 "A typed
// slot"), plus the operand stack (which carries no blank sentinel and
// is walked in full), collecting every TObject-tagged slot's payload
// as a live reference. The in-flight exception slot, if any, is a root
// too.
//
// A TObject slot can hold either a heap.Reference or an ArrayRef (both
// share the tag — see array.go); ArrayRef payloads carry arrayRefBit
// and are skipped here, since ArrayTable isn't part of the mark-sweep
// graph (gc.Collector's Scope note in DESIGN.md).
func (c *Context) CollectRoots() []heap.Reference {
	var roots []heap.Reference
	if c.CurrentException != heap.Null {
		roots = append(roots, c.CurrentException)
	}
	for _, f := range c.Frames {
		roots = appendObjectRoots(roots, f.Locals, true)
		roots = appendObjectRoots(roots, f.CallArgs, true)
		roots = appendObjectRoots(roots, f.Stack, false)
	}
	return roots
}

func appendObjectRoots(roots []heap.Reference, slots []metadata.TypedSlot, stopAtBlank bool) []heap.Reference {
	for _, s := range slots {
		if stopAtBlank && s.IsBlank() {
			break
		}
		if s.Tag == bytecode.TObject {
			if _, isArray := DecodeArrayRef(s.Payload); !isArray {
				roots = append(roots, heap.Reference(s.Payload))
			}
		}
	}
	return roots
}
