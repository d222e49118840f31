package linker

import (
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// Linker drives the two-phase link (spec §4.1). One Linker links one
// batch of class files together; it is not safe for concurrent Link
// calls against the same instance.
type Linker struct {
	Symbols   *symbol.Table
	Names     *symbol.Map
	Classes   *metadata.Classes
	Tables    *metadata.Tables
	Natives   *NativeLibraries
	NativeDir string // base directory class-relative native paths are joined under

	pending map[symbol.Symbol]*pendingClass

	nextJITFuncID uint64
}

// issueJITFuncID hands out the next monotonic JIT-declared function id
// for a freshly linked Bytecode-state descriptor (spec §3 "Function
// descriptor": "Bytecode variant payload: the JIT-declared function
// id reserved for it"). Ids are never reused within one Linker's
// lifetime.
func (l *Linker) issueJITFuncID() uint64 {
	id := l.nextJITFuncID
	l.nextJITFuncID++
	return id
}

// pendingClass is one class file's Phase-A result: its reserved class
// slot plus everything Phase B needs to materialise it.
type pendingClass struct {
	file      *ClassFile
	nameSym   symbol.Symbol
	parentSym symbol.Symbol // symbol.None for a root class
	classIdx  uint64
	// resolved marks that Phase B has fully materialised this class.
	resolved bool
}

// NewLinker builds a Linker over shared symbol/class tables. natives
// may be nil if no class file declares native methods or members.
func NewLinker(symbols *symbol.Table, names *symbol.Map, classes *metadata.Classes, tables *metadata.Tables, natives *NativeLibraries, nativeDir string) *Linker {
	return &Linker{
		Symbols:   symbols,
		Names:     names,
		Classes:   classes,
		Tables:    tables,
		Natives:   natives,
		NativeDir: nativeDir,
		pending:   make(map[symbol.Symbol]*pendingClass),
	}
}

// classSymbolFor interns name and, if this is the first time the
// linker has seen it, reserves a class-table hole for it (spec §4.1
// "Registration ... interns every class/method/field name it
// encounters, reserving a class-table slot ('hole') for every class
// name not already present"). Calling it again for the same name is
// a no-op beyond the symbol intern, which is itself idempotent.
func (l *Linker) classSymbolFor(name string) symbol.Symbol {
	sym := l.Names.Intern(name)
	if _, ok := l.Symbols.ClassIndex(sym); !ok {
		hole := l.Classes.ReserveHole()
		l.Symbols.RebindClass(sym, hole)
	}
	return sym
}
