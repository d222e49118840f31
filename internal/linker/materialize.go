package linker

import (
	"encoding/binary"
	"fmt"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/nativeabi"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// errBail is returned internally by a materialisation step that cannot
// proceed yet because a dependency (a parent class, an overridden
// ancestor, a diamond ancestor) has not itself been materialised.
// Link pushes the class back onto the retry queue when it sees errBail.
var errBail = fmt.Errorf("linker: dependency not yet materialised")

// Link runs Phase B (spec §4.1 "Materialisation") to a fixed point:
// repeatedly sweeping the pending set, resolving whatever it can,
// until either everything resolves or a full pass makes no progress
// (spec §4.1 "if a pass over the retry queue resolves nothing,
// linking fails").
func (l *Linker) Link() error {
	for {
		progressed := false
		var stillPending []*pendingClass
		for _, pc := range l.pending {
			if pc.resolved {
				continue
			}
			if err := l.materialize(pc); err != nil {
				if err == errBail {
					stillPending = append(stillPending, pc)
					continue
				}
				return err
			}
			pc.resolved = true
			progressed = true
		}
		if len(stillPending) == 0 {
			return nil
		}
		if !progressed {
			names := make([]string, 0, len(stillPending))
			for _, pc := range stillPending {
				names = append(names, pc.file.Name)
			}
			return &LinkError{Pending: names}
		}
	}
}

// materialize attempts the three-step build spec §4.1 describes for
// one class: own vtable, overridden-ancestor vtable(s), diamond/
// indirect ancestor vtables. Any unmet dependency returns errBail so
// Link can retry this class on a later pass.
func (l *Linker) materialize(pc *pendingClass) error {
	file := pc.file

	var parentClass *metadata.Class
	if pc.parentSym != symbol.None {
		idx, ok := l.Symbols.ClassIndex(pc.parentSym)
		if !ok {
			return errBail
		}
		parentClass, ok = l.Classes.Get(idx)
		if !ok {
			return errBail
		}
	}

	cls := metadata.NewClass(pc.nameSym, pc.parentSym)

	// Members (spec §3 "Class metadata": member list). linkMember takes
	// a primitive member's width from its tag and asks the native
	// library's sizing export for a native-sized member's width.
	cls.Members = make([]metadata.Member, len(file.Members))
	for i, rm := range file.Members {
		cls.Members[i] = l.linkMember(rm)
	}
	cls.StaticMembers = make([]metadata.TypedSlot, len(file.StaticMembers))
	for i, rm := range file.StaticMembers {
		cls.StaticMembers[i] = metadata.TypedSlot{Tag: rm.Tag}
	}
	if len(file.StaticInit) > 0 {
		body, blocks, err := l.linkBytecode(file, file.StaticInit)
		if err != nil {
			return fmt.Errorf("linker: class %q static init: %w", file.Name, err)
		}
		init := &metadata.StaticInit{Body: body}
		_ = blocks // the block table is rebuilt when ensureStaticInit wraps Body in a descriptor
		cls.StaticInit = init
	}

	// Step 1: own vtable (spec §4.1 step 1: "build a vtable for the
	// class's own declared methods, resolving bytecode bodies against
	// the global symbol table").
	ownVT := metadata.NewVTable()
	for _, rm := range file.OwnMethods {
		fd, err := l.linkMethod(file, rm)
		if err != nil {
			return fmt.Errorf("linker: class %q method %q: %w", file.Name, rm.Name, err)
		}
		ownVT.Append(fd)
	}
	ownIdx := l.Tables.Add(ownVT)
	cls.VTables[pc.nameSym] = ownIdx

	// Step 2: overridden ancestor vtable(s) (spec §4.1 step 2: "for
	// every ancestor the class overrides methods of, pair base and
	// derived method lists by slot position; a slot the override
	// skips inherits the ancestor's compiled state by value, not by
	// reference").
	for _, ov := range file.Overrides {
		ancestorSym := l.Names.Intern(ov.Ancestor)
		ancestorIdx, ok := l.Symbols.ClassIndex(ancestorSym)
		if !ok {
			return errBail
		}
		ancestorClass, ok := l.Classes.Get(ancestorIdx)
		if !ok {
			return errBail
		}
		ancestorVTIdx, ok := ancestorClass.VTables[ancestorSym]
		if !ok {
			return errBail
		}
		ancestorVT := l.Tables.Get(ancestorVTIdx)
		if ancestorVT == nil {
			return errBail
		}

		vt, err := l.buildOverrideVTable(file, ov, ancestorVT)
		if err != nil {
			if err == errBail {
				return errBail
			}
			return fmt.Errorf("linker: class %q override of %q: %w", file.Name, ov.Ancestor, err)
		}
		idx := l.Tables.Add(vt)
		cls.VTables[ancestorSym] = idx
	}

	// Step 3: diamond/indirect inheritance — merge the FULL VTables map
	// of each ancestor up the chain into cls.VTables, first-write-wins,
	// rather than re-deriving each ancestor's own entry from scratch.
	// An ancestor's own VTables map was itself built by this same step
	// when that ancestor was materialised, so it already carries every
	// override a nearer ancestor layered over a farther one (e.g. for
	// Animal<-Dog(overrides Animal.speak)<-Puppy, Dog.VTables[Animal]
	// is Dog's override vtable, not Animal's original one); copying
	// Dog's whole map into Puppy's — instead of re-deriving
	// Puppy.VTables[Animal] straight from Animal — is what keeps that
	// override visible three levels down (spec §4.1 step 3: "copying
	// each ancestor's vtables-map entries", §8 invariant 3 "override
	// correctness", §9 "Inheritance with shared state"). A seen-set
	// guards against visiting the same ancestor twice when the chain
	// itself is linear but reached via more than one
	// override/materialise path.
	seen := map[symbol.Symbol]bool{pc.nameSym: true}
	for a := parentClass; a != nil; {
		aSym := a.Name
		if seen[aSym] {
			break
		}
		seen[aSym] = true
		for k, v := range a.VTables {
			if _, already := cls.VTables[k]; !already {
				cls.VTables[k] = v
			}
		}
		if a.Parent == symbol.None {
			break
		}
		idx, ok := l.Symbols.ClassIndex(a.Parent)
		if !ok {
			return errBail
		}
		next, ok := l.Classes.Get(idx)
		if !ok {
			return errBail
		}
		a = next
	}

	// Static methods, if declared, live in their own vtable slot,
	// resolved straight from the class rather than paired against any
	// ancestor (spec §3 "Class metadata": "static_methods:
	// Option<VTableIndex>").
	if len(file.StaticMethods) > 0 {
		staticVT := metadata.NewVTable()
		for _, rm := range file.StaticMethods {
			fd, err := l.linkMethod(file, rm)
			if err != nil {
				return fmt.Errorf("linker: class %q static method %q: %w", file.Name, rm.Name, err)
			}
			staticVT.Append(fd)
		}
		cls.StaticMethods = l.Tables.Add(staticVT)
		cls.HasStaticMethods = true
	}

	if file.NativeLibraryBase != "" {
		cls.Drop = l.dropHookFor(file)
	}

	l.Classes.Materialize(pc.classIdx, cls)
	return nil
}

func (l *Linker) linkMember(rm RawMember) metadata.Member {
	kind := metadata.MemberPrimitive
	if rm.Kind == MemberObject {
		kind = metadata.MemberObject
	}
	size := rm.Tag.Width()
	if rm.NativeSized {
		kind = metadata.MemberNativeSized
		if lib, ok := l.nativeLibraryFor(rm.SizingExport); ok {
			if n, ok := lib.MemberSize(ExportedSizingSymbol(rm.SizingExport)); ok {
				size = n
			}
		}
	}
	return metadata.Member{Name: l.Names.Intern(rm.Name), Kind: kind, Tag: rm.Tag, Size: size}
}

func (l *Linker) nativeLibraryFor(className string) (NativeLibrary, bool) {
	if l.Natives == nil {
		return nil, false
	}
	return l.Natives.Get(LibraryPath(l.NativeDir, className))
}

func (l *Linker) dropHookFor(file *ClassFile) func(cell interface{}) {
	if file.CustomDropExport == "" {
		return nil
	}
	lib, ok := l.nativeLibraryFor(file.Name)
	if !ok {
		return nil
	}
	fn, ok := lib.Lookup(CustomDropSymbol)
	if !ok {
		return nil
	}
	return func(cell interface{}) { _, _ = fn(nil, []interface{}{cell}) }
}

// linkMethod builds a FunctionDescriptor for one raw method,
// dispatching on its Location.Kind the way spec §4.1/§6 describe a
// method's location being one of Bytecode/Native/Blank.
func (l *Linker) linkMethod(file *ClassFile, rm RawMethod) (*metadata.FunctionDescriptor, error) {
	name := l.Names.Intern(rm.Name)
	needPadding := nativeabi.NeedPadding(rm.ArgTypes)
	switch rm.Location.Kind {
	case LocationBytecode:
		body, _, err := l.linkBytecode(file, rm.Location.Bytes)
		if err != nil {
			return nil, err
		}
		fd, err := metadata.NewBytecodeFunction(name, body, rm.ArgTypes, rm.ReturnType)
		if err != nil {
			return nil, err
		}
		fd.NeedPadding = needPadding
		fd.State.SetBytecode(l.issueJITFuncID())
		return fd, nil
	case LocationNative:
		exported := ExportedMethodSymbol(rm.Location.NativeExport)
		lib, ok := l.nativeLibraryFor(file.Name)
		if !ok {
			return nil, fmt.Errorf("no native library registered for class %q", file.Name)
		}
		fn, ok := lib.Lookup(exported)
		if !ok {
			return nil, fmt.Errorf("native symbol %q not found", exported)
		}
		fd := metadata.NewNativeFunction(name, rm.ArgTypes, rm.ReturnType, fn)
		fd.NeedPadding = needPadding
		return fd, nil
	default:
		fd, err := metadata.NewBytecodeFunction(name, nil, rm.ArgTypes, rm.ReturnType)
		if err != nil {
			return nil, err
		}
		fd.NeedPadding = needPadding
		return fd, nil
	}
}

// buildOverrideVTable pairs ov.Methods with ancestor's own method list
// by slot position (spec §4.1 step 2). A slot the override omits, or
// lists with a Blank location, inherits the ancestor's compiled state
// by value via
// CompileState.CopyFrom; a still-Blank ancestor slot makes that
// inheritance bail until a later pass.
func (l *Linker) buildOverrideVTable(file *ClassFile, ov RawOverride, ancestorVT *metadata.VTable) (*metadata.VTable, error) {
	byName := make(map[symbol.Symbol]RawMethod, len(ov.Methods))
	for _, rm := range ov.Methods {
		byName[l.Names.Intern(rm.Name)] = rm
	}

	vt := metadata.NewVTable()
	for i := 0; i < ancestorVT.Len(); i++ {
		base := ancestorVT.At(i)
		if rm, ok := byName[base.Name]; ok && rm.Location.Kind != LocationBlank {
			fd, err := l.linkMethod(file, rm)
			if err != nil {
				return nil, err
			}
			vt.Append(fd)
			continue
		}
		inherited, err := metadata.NewBytecodeFunction(base.Name, base.Body, base.ArgTypes, base.ReturnType)
		if err != nil {
			return nil, err
		}
		inherited.Blocks = base.Blocks
		if !inherited.State.CopyFrom(&base.State) {
			return nil, errBail
		}
		vt.Append(inherited)
	}
	return vt, nil
}

// linkBytecode decodes body and rewrites every symbol-carrying
// operand from a file-local string-table index to a global symbol,
// leaving field offsets, slot indices and block ids untouched (spec
// §4.1 "Materialisation ... rewrites symbol references in method
// bodies from file-local indices to global symbols; everything else
// in the operand stream — offsets, slot indices, block ids — is
// copied through unchanged").
func (l *Linker) linkBytecode(file *ClassFile, body []byte) ([]bytecode.Instruction, bytecode.BlockTable, error) {
	ins, err := bytecode.DecodeAll(body)
	if err != nil {
		return nil, nil, err
	}
	for i := range ins {
		if err := l.relocate(file, &ins[i]); err != nil {
			return nil, nil, err
		}
	}
	blocks, err := bytecode.ScanBlocks(ins)
	if err != nil {
		return nil, nil, err
	}
	return ins, blocks, nil
}

// fileString resolves a file-local string-table index, erroring on an
// out-of-range index rather than silently zero-valuing it.
func fileString(file *ClassFile, idx uint64) (string, error) {
	if idx >= uint64(len(file.Strings)) {
		return "", fmt.Errorf("linker: file-local string index %d out of range (len=%d)", idx, len(file.Strings))
	}
	return file.Strings[idx], nil
}

func (l *Linker) relocateClassOperand(file *ClassFile, ins *bytecode.Instruction, off int) error {
	localIdx := ins.Uint64Operand(off)
	name, err := fileString(file, localIdx)
	if err != nil {
		return err
	}
	sym := l.classSymbolFor(name)
	binary.LittleEndian.PutUint64(ins.Operands[off:off+8], uint64(sym))
	return nil
}

func (l *Linker) relocateNameOperand(file *ClassFile, ins *bytecode.Instruction, off int) error {
	localIdx := ins.Uint64Operand(off)
	name, err := fileString(file, localIdx)
	if err != nil {
		return err
	}
	sym := l.Names.Intern(name)
	binary.LittleEndian.PutUint64(ins.Operands[off:off+8], uint64(sym))
	return nil
}

// relocate rewrites the symbol-carrying operands of one instruction,
// per the operand layouts opcode.go documents.
func (l *Linker) relocate(file *ClassFile, ins *bytecode.Instruction) error {
	switch ins.Op {
	case bytecode.ConstStr:
		return l.relocateNameOperand(file, ins, 0)
	case bytecode.ObjectNew, bytecode.IsA:
		return l.relocateClassOperand(file, ins, 0)
	case bytecode.FieldGet, bytecode.FieldSet:
		// operand: 8-byte owning-class symbol, 8-byte offset (offset is
		// not a symbol and is left untouched).
		return l.relocateClassOperand(file, ins, 0)
	case bytecode.InvokeVirtual:
		// operand: declared-class symbol, origin-class symbol (0 if
		// absent), method-name symbol.
		if err := l.relocateClassOperand(file, ins, 0); err != nil {
			return err
		}
		if ins.Uint64Operand(8) != 0 {
			if err := l.relocateClassOperand(file, ins, 8); err != nil {
				return err
			}
		}
		return l.relocateNameOperand(file, ins, 16)
	case bytecode.InvokeStatic:
		if err := l.relocateClassOperand(file, ins, 0); err != nil {
			return err
		}
		return l.relocateNameOperand(file, ins, 8)
	case bytecode.StaticMemberGet, bytecode.StaticMemberSet:
		// operand: class symbol, slot index (slot index untouched).
		return l.relocateClassOperand(file, ins, 0)
	case bytecode.RegisterHandler:
		// operand: exception-class symbol, 4-byte block id (block id
		// untouched).
		return l.relocateClassOperand(file, ins, 0)
	default:
		return nil
	}
}
