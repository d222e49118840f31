package jit

import "github.com/Ki11erRabbit/rowan/internal/metadata"

// buildStackMap collates the stack map spec.md §4.3 describes: for
// each call-site instruction offset, the frame offsets holding live
// object references. Because a Compiled call in this module re-enters
// the interpreter (Worker.Invoke), the emitted trampoline frame itself
// never holds a live reference slot directly — marshalled arguments
// become locals of a freshly pushed *interpreter* Frame, which the
// ordinary interpreter root-enumeration pass already scans. The
// trampoline's own stack map is therefore a single entry, keyed by its
// entry address, with no root offsets. Nothing in internal/gc reads
// stack maps: there is no JIT-roots pass, and the collector's only
// roots are the ones each mutator's RootSource publishes.
func buildStackMap(fd *metadata.FunctionDescriptor, entry uintptr) metadata.StackMap {
	return metadata.StackMap{
		uint64(entry): nil,
	}
}
