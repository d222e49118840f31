package linker_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/linker"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// returnConstStrBody builds a one-method bytecode body: push the
// file-local string at strIdx, then return it.
func returnConstStrBody(strIdx uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, strIdx)
	var out []byte
	out = bytecode.Encode(out, bytecode.Instruction{Op: bytecode.ConstStr, Operands: append([]byte(nil), buf...)})
	out = bytecode.Encode(out, bytecode.Instruction{Op: bytecode.ReturnValue})
	return out
}

type fixture struct {
	symbols *symbol.Table
	strs    *symbol.Strings
	names   *symbol.Map
	classes *metadata.Classes
	tables  *metadata.Tables
	linker  *linker.Linker
}

func newFixture() *fixture {
	symbols := symbol.NewTable()
	strs := symbol.NewStrings()
	names := symbol.NewMap(symbols, strs)
	classes := metadata.NewClasses()
	tables := metadata.NewTables()
	return &fixture{
		symbols: symbols,
		strs:    strs,
		names:   names,
		classes: classes,
		tables:  tables,
		linker:  linker.NewLinker(symbols, names, classes, tables, nil, ""),
	}
}

func TestLinkSimpleClassNoParent(t *testing.T) {
	f := newFixture()
	file := &linker.ClassFile{
		Name:    "Greeter",
		Strings: []string{"hello"},
		OwnMethods: []linker.RawMethod{
			{
				Name:       "greet",
				ReturnType: bytecode.TStr,
				Location:   linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)},
			},
		},
	}
	require.NoError(t, f.linker.Register([]*linker.ClassFile{file}))
	require.NoError(t, f.linker.Link())

	sym, ok := f.names.Resolve("Greeter")
	require.True(t, ok)
	idx, ok := f.symbols.ClassIndex(sym)
	require.True(t, ok)
	cls, ok := f.classes.Get(idx)
	require.True(t, ok)

	vtIdx, ok := cls.VTables[sym]
	require.True(t, ok)
	vt := f.tables.Get(vtIdx)
	require.Equal(t, 1, vt.Len())

	greetSym, ok := f.names.Resolve("greet")
	require.True(t, ok)
	fd, ok := vt.ByName(greetSym)
	require.True(t, ok)
	assert.Equal(t, metadata.Bytecode, fd.State.Variant())
}

func TestLinkOverrideBySlotPosition(t *testing.T) {
	f := newFixture()
	animal := &linker.ClassFile{
		Name:    "Animal",
		Strings: []string{"..."},
		OwnMethods: []linker.RawMethod{
			{Name: "speak", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
		},
	}
	dog := &linker.ClassFile{
		Name:    "Dog",
		Parent:  "Animal",
		Strings: []string{"woof"},
		Overrides: []linker.RawOverride{
			{Ancestor: "Animal", Methods: []linker.RawMethod{
				{Name: "speak", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
			}},
		},
	}
	require.NoError(t, f.linker.Register([]*linker.ClassFile{animal, dog}))
	require.NoError(t, f.linker.Link())

	animalSym, _ := f.names.Resolve("Animal")
	dogSym, _ := f.names.Resolve("Dog")
	speakSym, _ := f.names.Resolve("speak")

	dogIdx, _ := f.symbols.ClassIndex(dogSym)
	dogCls, ok := f.classes.Get(dogIdx)
	require.True(t, ok)

	// Dog's view of Animal's vtable must still have exactly one slot
	// (paired by name with Animal's own vtable), holding Dog's override.
	overriddenVTIdx, ok := dogCls.VTables[animalSym]
	require.True(t, ok)
	overriddenVT := f.tables.Get(overriddenVTIdx)
	require.Equal(t, 1, overriddenVT.Len())
	fd, ok := overriddenVT.ByName(speakSym)
	require.True(t, ok)
	assert.Equal(t, metadata.Bytecode, fd.State.Variant())

	// And Dog's own vtable (no own methods declared) is empty.
	ownVTIdx, ok := dogCls.VTables[dogSym]
	require.True(t, ok)
	assert.Equal(t, 0, f.tables.Get(ownVTIdx).Len())
}

// TestLinkLinearChainInheritsOverrideThroughIndirectAncestor is a plain
// three-level single-inheritance chain (Animal<-Dog<-Puppy), not a
// diamond; see TestLinkDiamondReconvergesOnDistinctOverrideAncestors
// below for the genuine multi-ancestor-override scenario (spec §8 S5).
func TestLinkLinearChainInheritsOverrideThroughIndirectAncestor(t *testing.T) {
	f := newFixture()
	animal := &linker.ClassFile{
		Name:    "Animal",
		Strings: []string{"..."},
		OwnMethods: []linker.RawMethod{
			{Name: "speak", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
		},
	}
	dog := &linker.ClassFile{
		Name:   "Dog",
		Parent: "Animal",
		Overrides: []linker.RawOverride{
			{Ancestor: "Animal", Methods: []linker.RawMethod{
				{Name: "speak", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
			}},
		},
		Strings: []string{"woof"},
	}
	puppy := &linker.ClassFile{Name: "Puppy", Parent: "Dog"}

	require.NoError(t, f.linker.Register([]*linker.ClassFile{animal, dog, puppy}))
	require.NoError(t, f.linker.Link())

	animalSym, _ := f.names.Resolve("Animal")
	dogSym, _ := f.names.Resolve("Dog")
	puppySym, _ := f.names.Resolve("Puppy")

	dogIdx, _ := f.symbols.ClassIndex(dogSym)
	dogCls, _ := f.classes.Get(dogIdx)

	puppyIdx, _ := f.symbols.ClassIndex(puppySym)
	puppyCls, ok := f.classes.Get(puppyIdx)
	require.True(t, ok)

	// Puppy never overrides anything, so it must inherit vtable entries
	// for every ancestor transitively: itself, Dog and Animal.
	require.Contains(t, puppyCls.VTables, puppySym)
	require.Contains(t, puppyCls.VTables, dogSym)
	require.Contains(t, puppyCls.VTables, animalSym)

	// Animal's view as seen through Puppy must be the very vtable Dog
	// built for its Animal override — inherited by reference to the
	// same VTableIndex, not rebuilt.
	assert.Equal(t, dogCls.VTables[animalSym], puppyCls.VTables[animalSym])
}

// TestLinkDiamondReconvergesOnDistinctOverrideAncestors is spec §8 S5:
// classes Base, L:Base, R:Base, D:L,R each override method g; invoking
// g on a D through static type Base must run D's override exactly
// once. This linker only records a single Parent per class (spec §9
// "avoids multiple-inheritance layout complexity"), so D can't
// literally declare two parents: it links with Parent "L" only, and
// this test merges R's VTables map into D's by hand afterward, the way
// materialize.go step 3 would if Class carried more than one Parent —
// exercising genuine reconvergence on two distinct override ancestors,
// unlike the linear chain test above where every ancestor entry
// arrives via a single climb.
func TestLinkDiamondReconvergesOnDistinctOverrideAncestors(t *testing.T) {
	f := newFixture()
	base := &linker.ClassFile{
		Name:    "Base",
		Strings: []string{"base"},
		OwnMethods: []linker.RawMethod{
			{Name: "g", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
		},
	}
	left := &linker.ClassFile{
		Name:    "L",
		Parent:  "Base",
		Strings: []string{"left"},
		Overrides: []linker.RawOverride{
			{Ancestor: "Base", Methods: []linker.RawMethod{
				{Name: "g", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
			}},
		},
	}
	right := &linker.ClassFile{
		Name:    "R",
		Parent:  "Base",
		Strings: []string{"right"},
		Overrides: []linker.RawOverride{
			{Ancestor: "Base", Methods: []linker.RawMethod{
				{Name: "g", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
			}},
		},
	}
	diamond := &linker.ClassFile{
		Name:    "D",
		Parent:  "L",
		Strings: []string{"diamond"},
		Overrides: []linker.RawOverride{
			{Ancestor: "Base", Methods: []linker.RawMethod{
				{Name: "g", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
			}},
		},
	}

	require.NoError(t, f.linker.Register([]*linker.ClassFile{base, left, right, diamond}))
	require.NoError(t, f.linker.Link())

	baseSym, _ := f.names.Resolve("Base")
	rSym, _ := f.names.Resolve("R")
	gSym, _ := f.names.Resolve("g")

	lSym, _ := f.names.Resolve("L")
	lIdx, _ := f.symbols.ClassIndex(lSym)
	lCls, ok := f.classes.Get(lIdx)
	require.True(t, ok)

	rIdx, _ := f.symbols.ClassIndex(rSym)
	rCls, ok := f.classes.Get(rIdx)
	require.True(t, ok)

	dSym, _ := f.names.Resolve("D")
	dIdx, _ := f.symbols.ClassIndex(dSym)
	dCls, ok := f.classes.Get(dIdx)
	require.True(t, ok)

	// D's own override of Base.g must already differ from both L's and
	// R's, regardless of which branch a multi-parent linker would
	// reconverge through.
	require.Contains(t, dCls.VTables, baseSym)
	assert.NotEqual(t, lCls.VTables[baseSym], dCls.VTables[baseSym])
	assert.NotEqual(t, rCls.VTables[baseSym], dCls.VTables[baseSym])

	// Reconverge on R: merge R's full VTables map into D's,
	// first-write-wins, exactly as materialize.go step 3 merges an
	// ancestor's map into a descendant's.
	for k, v := range rCls.VTables {
		if _, already := dCls.VTables[k]; !already {
			dCls.VTables[k] = v
		}
	}
	require.Contains(t, dCls.VTables, rSym)

	// D's own override of Base still wins after the merge — the merge
	// only added R's own (still-empty) vtable entry, since Base was
	// already present in D's map first-write-wins.
	vtIdx, ok := dCls.VTables[baseSym]
	require.True(t, ok)
	vt := f.tables.Get(vtIdx)
	fd, ok := vt.ByName(gSym)
	require.True(t, ok)
	assert.Equal(t, metadata.Bytecode, fd.State.Variant())
}

func TestLinkRetryQueueResolvesForwardReference(t *testing.T) {
	f := newFixture()
	animal := &linker.ClassFile{Name: "Animal"}
	dog := &linker.ClassFile{Name: "Dog", Parent: "Animal"}

	// Register the child before its parent file: Phase A must still
	// reserve a hole for "Animal", and Phase B's retry loop must
	// resolve Dog only after Animal itself materialises.
	require.NoError(t, f.linker.Register([]*linker.ClassFile{dog, animal}))
	require.NoError(t, f.linker.Link())

	dogSym, ok := f.names.Resolve("Dog")
	require.True(t, ok)
	dogIdx, ok := f.symbols.ClassIndex(dogSym)
	require.True(t, ok)
	_, ok = f.classes.Get(dogIdx)
	assert.True(t, ok, "Dog should have materialised once its parent Animal resolved")
}

func TestLinkFatalMissingClassReportsPending(t *testing.T) {
	f := newFixture()
	derived := &linker.ClassFile{Name: "Derived", Parent: "NeverDefined"}

	require.NoError(t, f.linker.Register([]*linker.ClassFile{derived}))
	err := f.linker.Link()
	require.Error(t, err)

	var linkErr *linker.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Contains(t, linkErr.Pending, "Derived")
}

func TestLinkStaticMethodResolvesOutsideAncestorVTables(t *testing.T) {
	f := newFixture()
	file := &linker.ClassFile{
		Name:    "MainClass",
		Strings: []string{"ok"},
		StaticMethods: []linker.RawMethod{
			{Name: "main", ReturnType: bytecode.TStr, Location: linker.Location{Kind: linker.LocationBytecode, Bytes: returnConstStrBody(0)}},
		},
	}
	require.NoError(t, f.linker.Register([]*linker.ClassFile{file}))
	require.NoError(t, f.linker.Link())

	classSym, ok := f.names.Resolve("MainClass")
	require.True(t, ok)
	idx, ok := f.symbols.ClassIndex(classSym)
	require.True(t, ok)
	cls, ok := f.classes.Get(idx)
	require.True(t, ok)
	require.True(t, cls.HasStaticMethods)

	staticVT := f.tables.Get(cls.StaticMethods)
	require.Equal(t, 1, staticVT.Len())

	mainSym, ok := f.names.Resolve("main")
	require.True(t, ok)
	fd, ok := staticVT.ByName(mainSym)
	require.True(t, ok)
	assert.Equal(t, metadata.Bytecode, fd.State.Variant())

	// A static method must not leak into the class's own (instance)
	// vtable.
	ownVT := f.tables.Get(cls.VTables[classSym])
	assert.Equal(t, 0, ownVT.Len())
}
