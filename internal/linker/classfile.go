// Package linker implements the two-phase linker (spec §4.1):
// Registration interns every name a set of class files references and
// reserves class-table holes; Materialisation builds every vtable a
// class needs, resolving bytecode cross-references to global symbols
// along the way.
//
// The class-file byte container format is out of scope (spec §1): a
// ClassFile here is the Go struct the (external, unwritten) class-file
// parser is assumed to already have produced — the file-local string
// table, member lists, and raw per-method bytecode with file-local
// symbol references still unresolved.
package linker

import "github.com/Ki11erRabbit/rowan/internal/bytecode"

// Location is the raw, not-yet-linked form of a vtable entry's
// (name, signature, bytecode-index, flags) tuple (spec §6 "vtable
// section").
type Location struct {
	Kind LocationKind

	// Bytes holds the raw opcode stream for LocationBytecode. Any
	// opcode operand that is a symbol reference still holds a
	// file-local string-table index at this point; the linker
	// rewrites those in place during materialisation.
	Bytes []byte

	// NativeExport is the not-yet-transformed "A::B::c-d" style
	// qualified name for LocationNative (spec §4.1 "Native library
	// binding", §6 "Native method ABI").
	NativeExport string
}

// LocationKind distinguishes the three raw vtable-entry shapes spec
// §4.1 names: "location is one of {Bytecode(bytes),
// Native(exported-symbol-string), Blank}".
type LocationKind uint8

const (
	LocationBlank LocationKind = iota
	LocationBytecode
	LocationNative
)

// RawMethod is one not-yet-linked method declaration.
type RawMethod struct {
	Name       string
	ArgTypes   []bytecode.TypeTag
	ReturnType bytecode.TypeTag
	Location   Location
}

// RawOverride pairs an ancestor class name with the subset of that
// ancestor's methods the derived class overrides. The linker pairs
// these with the ancestor's own vtable by matching method name, then
// walks the ancestor's slot order to build the derived vtable — so
// every slot the override list omits inherits the ancestor's compiled
// state by value (spec §4.1 step 2: "pair base and derived methods by
// slot; a slot the override skips inherits the ancestor's compiled
// state by value, not by reference").
type RawOverride struct {
	Ancestor string
	Methods  []RawMethod
}

// RawMember is a not-yet-linked field declaration.
type RawMember struct {
	Name        string
	Kind        MemberKind
	Tag         bytecode.TypeTag
	NativeSized bool
	// SizingExport is the not-yet-transformed qualified member name
	// used to resolve a native-sized member's byte width (spec §4.1
	// "native sized member").
	SizingExport string
}

// MemberKind mirrors metadata.MemberKind without importing metadata
// here, keeping ClassFile a pure, dependency-light "parser output"
// shape (metadata is an implementation detail of the linked result,
// not of the unlinked input).
type MemberKind uint8

const (
	MemberPrimitive MemberKind = iota
	MemberObject
)

// ClassFile is one already-parsed class file (spec §6 "Class file
// format"): a file-local string table, members, static members, an
// optional static-init bytecode body, this class's own methods, and
// the raw override lists for every ancestor it overrides methods of.
type ClassFile struct {
	Name   string
	Parent string // "" for a root class

	// Strings is the file-local string table; raw bytecode symbol
	// operands are indices into this slice until linking rewrites
	// them.
	Strings []string

	Members       []RawMember
	StaticMembers []RawMember

	StaticInit []byte // nil/empty if the class declares none

	OwnMethods []RawMethod
	Overrides  []RawOverride

	// StaticMethods are this class's static methods — not
	// receiver-dispatched, not part of any ancestor's vtable pairing,
	// resolved straight from the class (spec §3 "Class metadata":
	// "static_methods: Option<VTableIndex>", §4.2 "Static invoke skips
	// the receiver and goes straight to the class's static-methods
	// vtable").
	StaticMethods []RawMethod

	// NativeLibraryBase marks a class that declares native code; the
	// linker only checks that it is non-empty before looking up a
	// custom-drop hook. The native library itself is looked up under
	// LibraryPath(Linker.NativeDir, Name), not under this field. Empty
	// if the class declares no native methods/members.
	NativeLibraryBase string

	// CustomDropExport, if non-empty, names the "custom_drop" export
	// this class's finalizer resolves to (spec §6).
	CustomDropExport string
}
