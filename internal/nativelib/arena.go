// Package nativelib provides a page-aligned, mmap-backed bump arena
// used as the Object Heap's bulk byte storage (spec §3 "Object cell":
// field bytes), the way wazero's internal/platform reaches for
// golang.org/x/sys/unix rather than plain make([]byte, n) for memory
// the runtime manages outside the Go GC's view. Unlike
// internal/asm's ExecutableBuffer (one mapping per JIT-compiled
// function, PROT_EXEC), an Arena is a single growable RW mapping many
// small allocations bump-carve out of, matching the Object Table's
// "many small cells, one long-lived table" shape.
//
// The actual mmap_linux.go implementation backing wazero's
// MmapCodeSegment/MunmapCodeSegment wasn't present in the retrieved
// pack snapshot (only its _test.go siblings were); this package calls
// golang.org/x/sys/unix directly rather than inventing that file's
// contents, preserving the naming and error-return idiom those tests
// imply (MmapCodeSegment(reader, length) / MunmapCodeSegment(buf)) but
// not its unseen internals.
package nativelib

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// defaultBlockSize is the size of the first block an Arena mmaps;
// later blocks double, matching a conventional bump-arena growth
// policy.
const defaultBlockSize = 64 * 1024

// block is one mmap'd region and the arena's bump cursor into it.
type block struct {
	mem  []byte
	next int
}

// Arena is a growable bump allocator over one or more anonymous RW
// mappings. It never reclaims individual allocations — the Object
// Heap's mark-sweep collector frees *Cell slots in heap.Table, not the
// backing bytes, so a swept cell's Data simply becomes unreachable
// arena space until the whole Arena is released. That tradeoff mirrors
// the spec's non-compacting collector (spec §4.4: cells are freed by
// index, never relocated).
type Arena struct {
	blocks    []*block
	blockSize int
}

// NewArena returns an empty arena whose first block is sized to hold
// at least initialHint bytes (rounded up to the page-aligned default
// if smaller).
func NewArena(initialHint int) (*Arena, error) {
	size := defaultBlockSize
	for size < initialHint {
		size *= 2
	}
	a := &Arena{blockSize: size}
	if _, err := a.grow(size); err != nil {
		return nil, err
	}
	return a, nil
}

// Alloc returns n zeroed bytes carved from the arena's current block,
// growing the arena (doubling block size) if the current block lacks
// room. The returned slice is valid until Release.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := a.blocks[len(a.blocks)-1]
	if b.next+n > len(b.mem) {
		size := a.blockSize * 2
		for size < n {
			size *= 2
		}
		a.blockSize = size
		grown, err := a.grow(size)
		if err != nil {
			return nil, err
		}
		b = grown
	}
	out := b.mem[b.next : b.next+n : b.next+n]
	b.next += n
	return out, nil
}

// grow mmaps a new block and appends it, returning the new block.
func (a *Arena) grow(size int) (*block, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("nativelib: mmap %d bytes: %w", size, err)
	}
	b := &block{mem: mem}
	a.blocks = append(a.blocks, b)
	return b, nil
}

// Release unmaps every block the arena owns. Callers must not touch
// any previously returned slice afterward.
func (a *Arena) Release() error {
	for _, b := range a.blocks {
		if b.mem == nil {
			continue
		}
		if err := unix.Munmap(b.mem); err != nil {
			return fmt.Errorf("nativelib: munmap: %w", err)
		}
		b.mem = nil
	}
	a.blocks = nil
	return nil
}
