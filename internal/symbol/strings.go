package symbol

import "sync"

// Strings is the owned byte-string table. Each entry is addressable
// by its string index, which is distinct from a Symbol (the Symbol
// wraps a string-index indirectly via the Table's entry union).
type Strings struct {
	mu   sync.RWMutex
	data [][]byte
}

// NewStrings returns an empty string table.
func NewStrings() *Strings {
	return &Strings{}
}

func (s *Strings) add(b []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := uint64(len(s.data))
	cp := make([]byte, len(b))
	copy(cp, b)
	s.data = append(s.data, cp)
	return idx
}

// Get returns the owned bytes for a string index.
func (s *Strings) Get(idx uint64) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx >= uint64(len(s.data)) {
		return nil, false
	}
	return s.data[idx], true
}

// Map provides string -> Symbol interning on top of a Table and a
// Strings table: the same byte string always resolves to the same
// Symbol once interned.
type Map struct {
	mu      sync.RWMutex
	byValue map[string]Symbol
	table   *Table
	strings *Strings
}

// NewMap builds an interner over the given Table/Strings pair.
func NewMap(table *Table, strings *Strings) *Map {
	return &Map{
		byValue: make(map[string]Symbol),
		table:   table,
		strings: strings,
	}
}

// Intern returns the Symbol for s, issuing a new string-ref symbol on
// first sight and reusing it on every subsequent call with the same
// value.
func (m *Map) Intern(s string) Symbol {
	m.mu.RLock()
	if sym, ok := m.byValue[s]; ok {
		m.mu.RUnlock()
		return sym
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-check under the write lock: another goroutine may have
	// interned the same value while we were waiting.
	if sym, ok := m.byValue[s]; ok {
		return sym
	}
	idx := m.strings.add([]byte(s))
	sym := m.table.issue(KindString, idx)
	m.byValue[s] = sym
	return sym
}

// Lookup returns the string value for a previously interned symbol.
func (m *Map) Lookup(sym Symbol) (string, bool) {
	e, ok := m.table.lookup(sym)
	if !ok || e.kind != KindString {
		return "", false
	}
	b, ok := m.strings.Get(e.index)
	if !ok {
		return "", false
	}
	return string(b), true
}

// Resolve returns the Symbol already assigned to s, without interning
// it if absent.
func (m *Map) Resolve(s string) (Symbol, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sym, ok := m.byValue[s]
	return sym, ok
}
