package asm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ExecutableBuffer is a memory-mapped, page-aligned region holding
// native code produced by a CodeBuffer's Assemble call. It exists
// because a freshly generated []byte is not executable on its own:
// the page needs PROT_EXEC, which only an mmap'd region can grant
// without invoking the platform's C toolchain.
//
// Grounded on wazero's internal/asm.CodeSegment: a manually managed
// (non-GC'd) mapping that the owner must explicitly release.
type ExecutableBuffer struct {
	mem []byte
}

// MapExecutable copies code into a fresh PROT_EXEC mapping and returns
// the buffer owning it.
func MapExecutable(code []byte) (*ExecutableBuffer, error) {
	if len(code) == 0 {
		return &ExecutableBuffer{}, nil
	}
	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("asm: mmap executable segment: %w", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("asm: mprotect executable segment: %w", err)
	}
	return &ExecutableBuffer{mem: mem}, nil
}

// Addr returns the address of the first byte of the mapping, or 0 for
// an empty buffer.
func (b *ExecutableBuffer) Addr() uintptr {
	if len(b.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.mem[0]))
}

// Len reports the mapping's size in bytes.
func (b *ExecutableBuffer) Len() int { return len(b.mem) }

// Unmap releases the mapping. The buffer is unusable afterward.
func (b *ExecutableBuffer) Unmap() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}
