package linker

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/metadata"
)

// NativeLibrary is the Go-idiomatic rendition of a "native method
// exported symbol" lookup. The spec describes a C ABI shared object
// resolved by dlopen (§4.1, §6); this module instead follows wazero's
// own idiom for "native" functionality — WebAssembly host imports are
// never dlopen'd either, they are Go functions registered ahead of
// time and resolved by name (see SPEC_FULL.md DOMAIN STACK /
// DESIGN.md). The library-path string is still computed exactly the
// spec's way and used as the registry key, so an embedder providing
// native libraries sees the same addressing scheme the spec
// describes; only the binding transport changes.
type NativeLibrary interface {
	// Lookup resolves an exported method symbol to a callable.
	Lookup(exportedSymbol string) (metadata.NativeFunc, bool)
	// MemberSize resolves a native-sized member's sizing symbol to its
	// raw byte width (spec §4.1 "native sized").
	MemberSize(exportedSymbol string) (int, bool)
}

// NativeLibraries is the per-path cache of registered libraries (spec
// §4.1 "loads the library (caching per path)").
type NativeLibraries struct {
	mu     sync.RWMutex
	byPath map[string]NativeLibrary
}

// NewNativeLibraries returns an empty registry.
func NewNativeLibraries() *NativeLibraries {
	return &NativeLibraries{byPath: make(map[string]NativeLibrary)}
}

// Register installs lib under path, overwriting any previous
// registration — the embedder is expected to register every native
// library before linking begins.
func (n *NativeLibraries) Register(path string, lib NativeLibrary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byPath[path] = lib
}

// Get returns the library registered at path, if any.
func (n *NativeLibraries) Get(path string) (NativeLibrary, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	lib, ok := n.byPath[path]
	return lib, ok
}

// sharedObjectSuffix returns the OS-dependent shared-object suffix
// spec §4.1 says the linker appends to a base class directory to
// build a native library path.
func sharedObjectSuffix() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

// LibraryPath builds the native library path for a class: base
// directory + class name + OS-dependent suffix (spec §4.1).
func LibraryPath(baseDir, className string) string {
	return filepath.Join(baseDir, className+sharedObjectSuffix())
}

// ExportedMethodSymbol transforms a qualified method name
// "A::B::c-d" into its exported symbol "A__B__c_dash_d" (spec §4.1,
// §6, verbatim transform).
func ExportedMethodSymbol(qualified string) string {
	parts := strings.Split(qualified, "::")
	if len(parts) == 0 {
		return qualified
	}
	namespace := strings.Join(parts[:len(parts)-1], "__")
	method := strings.ReplaceAll(parts[len(parts)-1], "-", "_dash_")
	if namespace == "" {
		return method
	}
	return namespace + "__" + method
}

// ExportedSizingSymbol transforms a qualified member name
// "A::B::member" into its sizing export "A__B_member__get_dash_size"
// (spec §4.1 "native sized").
func ExportedSizingSymbol(qualified string) string {
	parts := strings.Split(qualified, "::")
	if len(parts) == 0 {
		return qualified
	}
	namespace := strings.Join(parts[:len(parts)-1], "__")
	member := parts[len(parts)-1]
	if namespace == "" {
		return fmt.Sprintf("%s__get_dash_size", member)
	}
	return fmt.Sprintf("%s_%s__get_dash_size", namespace, member)
}

// CustomDropSymbol is the fixed exported symbol name for a class's
// custom finalizer (spec §6: "for custom finalizers the symbol is
// custom_drop").
const CustomDropSymbol = "custom_drop"
