// Package gc implements the stop-the-world mark-sweep collector (spec
// §4.4): a process-wide reader-writer gate mutators poll at
// safepoints, and a Collector that drives one cycle of root
// enumeration, transitive mark, and sweep.
package gc

import (
	"sync"
	"sync/atomic"

	"github.com/Ki11erRabbit/rowan/internal/heap"
)

// RootSource is anything a mutator can ask for its own current GC
// roots (spec §4.4 "collects all reachable roots from its own state").
// interpreter.Context implements this via CollectRoots.
type RootSource interface {
	CollectRoots() []heap.Reference
}

// Gate is the process-wide reader-writer latch spec.md §4.4 describes:
// normally every mutator's safepoint poll succeeds immediately
// ("read-available"); requesting a cycle flips it to "would block" so
// each registered mutator's next poll publishes its roots and waits.
// A plain sync.RWMutex doesn't expose a cheap "would this reader
// block" check, so this hand-rolls the latch over an atomic flag plus
// a channel-based wakeup (see DESIGN.md Open Questions).
type Gate struct {
	writeRequested atomic.Bool

	mu      sync.Mutex
	resume  chan struct{}
	mutants map[*Mutator]struct{}
}

// NewGate returns a gate with no registered mutators.
func NewGate() *Gate {
	return &Gate{resume: make(chan struct{}), mutants: make(map[*Mutator]struct{})}
}

// Mutator is one cooperating thread's handle on the gate. It
// implements interpreter.Safepoint (Poll()), so a *Mutator can be
// assigned as an interpreter.Context's Safepoint (rowan.NewRuntime does
// this after NewContext, since Register needs the Context as its
// RootSource).
type Mutator struct {
	gate   *Gate
	source RootSource
	roots  chan []heap.Reference
}

// Register binds source (typically the *interpreter.Context it will
// poll from) to the gate and returns the handle to install as that
// context's Safepoint.
func (g *Gate) Register(source RootSource) *Mutator {
	m := &Mutator{gate: g, source: source, roots: make(chan []heap.Reference)}
	g.mu.Lock()
	g.mutants[m] = struct{}{}
	g.mu.Unlock()
	return m
}

// Unregister removes a mutator, e.g. once its top-level call returns
// and it will never poll again.
func (g *Gate) Unregister(m *Mutator) {
	g.mu.Lock()
	delete(g.mutants, m)
	g.mu.Unlock()
}

// Poll implements interpreter.Safepoint (spec §4.4 "Mutator safepoint
// protocol"). The fast path is a single atomic load; only a pending
// cycle takes the slow path of publishing roots and waiting for the
// gate to reopen.
func (m *Mutator) Poll() {
	if !m.gate.writeRequested.Load() {
		return
	}
	m.gate.mu.Lock()
	resume := m.gate.resume
	m.gate.mu.Unlock()

	m.roots <- m.source.CollectRoots()
	<-resume
}

// beginCycle flips the gate to "would block" and returns the root
// channel of every currently registered mutator, for the collector to
// drain exactly once each.
func (g *Gate) beginCycle() []chan []heap.Reference {
	g.mu.Lock()
	chs := make([]chan []heap.Reference, 0, len(g.mutants))
	for m := range g.mutants {
		chs = append(chs, m.roots)
	}
	g.mu.Unlock()
	g.writeRequested.Store(true)
	return chs
}

// endCycle reopens the gate, releasing every mutator blocked in Poll.
func (g *Gate) endCycle() {
	g.mu.Lock()
	old := g.resume
	g.resume = make(chan struct{})
	g.mu.Unlock()
	g.writeRequested.Store(false)
	close(old)
}
