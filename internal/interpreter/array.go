package interpreter

import (
	"fmt"
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
)

// array is the interpreter's runtime representation of an array
// value. Arrays are not class instances, so they live in their own
// table rather than internal/heap's object table; bytecode still
// addresses them through the unified "reference" typed-slot tag (spec
// §3 "A typed slot": tags include a single "reference" tag, used for
// both object and array values in the original design).
type array struct {
	Tag  bytecode.TypeTag
	Elem []uint64 // one bit-pattern per element, width per Tag
}

// ArrayRef is an opaque handle into the ArrayTable, disjoint from
// heap.Reference (a different table, a different namespace).
type ArrayRef uint64

// ArrayNull is the zero/invalid array reference.
const ArrayNull ArrayRef = 0

// arrayRefBit marks a TObject-tagged typed-slot payload as an ArrayRef
// rather than a heap.Reference. Both tables number their handles
// sequentially from 1, so without this bit a small ArrayRef and a
// small heap.Reference are indistinguishable once both are widened
// into the same uint64 payload under the shared "reference" wire tag
// (array.go's own doc comment on the array type) — harmless to normal
// array opcodes, which already know they're reading an array slot, but
// fatal to gc.Collector.mark, which otherwise cannot tell whether a
// TObject payload indexes heap.Table or ArrayTable. Neither table will
// ever use bit 63 of a real index, so stealing it for a tag costs
// nothing observable.
const arrayRefBit = uint64(1) << 63

// EncodeArrayRef packs ref into a TypedSlot payload tagged TObject,
// tagged so CollectRoots can tell it apart from a heap.Reference.
func EncodeArrayRef(ref ArrayRef) uint64 {
	return uint64(ref) | arrayRefBit
}

// DecodeArrayRef reverses EncodeArrayRef. ok is false if payload does
// not carry the array tag bit.
func DecodeArrayRef(payload uint64) (ref ArrayRef, ok bool) {
	if payload&arrayRefBit == 0 {
		return 0, false
	}
	return ArrayRef(payload &^ arrayRefBit), true
}

// ArrayTable is the owning store of array values.
type ArrayTable struct {
	mu   sync.Mutex
	objs []*array // objs[0] unused, mirrors heap.Table's Null convention
}

// NewArrayTable returns an empty array table.
func NewArrayTable() *ArrayTable {
	return &ArrayTable{objs: []*array{nil}}
}

// New allocates an array of the given element tag and length, every
// element zero-valued.
func (t *ArrayTable) New(tag bytecode.TypeTag, length int) ArrayRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref := ArrayRef(len(t.objs))
	t.objs = append(t.objs, &array{Tag: tag, Elem: make([]uint64, length)})
	return ref
}

// Get returns the array at ref.
func (t *ArrayTable) Get(ref ArrayRef) (*array, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ref == ArrayNull || uint64(ref) >= uint64(len(t.objs)) {
		return nil, false
	}
	a := t.objs[ref]
	return a, a != nil
}

// BoundsError is the §8 scenario S3 "array bounds" exception: an
// array access with an out-of-range index.
type BoundsError struct {
	Index, Length int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("interpreter: array index %d out of bounds (length %d)", e.Index, e.Length)
}
