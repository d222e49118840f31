package linker

import "github.com/Ki11erRabbit/rowan/internal/symbol"

// Register runs Phase A (spec §4.1 "Registration") over a batch of
// class files: every class/method/field name gets interned and every
// not-yet-seen class name gets a reserved hole, but no vtable or
// bytecode relocation happens yet — that is Phase B's job, deferred
// so that forward references to classes registered later in the same
// batch (or to classes registered in a previous Register call) can
// still resolve.
func (l *Linker) Register(files []*ClassFile) error {
	for _, file := range files {
		nameSym := l.classSymbolFor(file.Name)

		var parentSym symbol.Symbol = symbol.None
		if file.Parent != "" {
			parentSym = l.classSymbolFor(file.Parent)
		}

		// Intern every name the file references so Phase B never has
		// to fall back to the file-local string table.
		for _, m := range file.Members {
			l.Names.Intern(m.Name)
		}
		for _, m := range file.StaticMembers {
			l.Names.Intern(m.Name)
		}
		for _, m := range file.OwnMethods {
			l.Names.Intern(m.Name)
		}
		for _, m := range file.StaticMethods {
			l.Names.Intern(m.Name)
		}
		for _, ov := range file.Overrides {
			l.classSymbolFor(ov.Ancestor)
			for _, m := range ov.Methods {
				l.Names.Intern(m.Name)
			}
		}
		for _, s := range file.Strings {
			l.Names.Intern(s)
		}

		idx, _ := l.Symbols.ClassIndex(nameSym)
		l.pending[nameSym] = &pendingClass{
			file:      file,
			nameSym:   nameSym,
			parentSym: parentSym,
			classIdx:  idx,
		}
	}
	return nil
}
