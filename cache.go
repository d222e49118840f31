package rowan

import (
	"context"
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/jit"
)

// Cache is the configuration for JIT worker sharing across Runtimes,
// mirroring wazero's Cache: a resource whose lifetime can outlive any
// one Runtime built against it (wazero's Cache shares a compiled-code
// engine; this module has no native machine-code backend to cache
// (spec §1 Non-goal), so what it shares instead is the tier-up worker
// goroutine itself — starting one is the expensive, poolable part).
// internal/jit.Worker carries each compile request's Evaluator with
// the request rather than fixing one at construction, so it's safe
// for several Runtimes (each with a distinct interpreter.Context) to
// submit to the same shared Worker.
type Cache interface {
	// Close stops the shared worker. Every Runtime built from a
	// RuntimeConfig.WithCache(cache) config must itself be closed
	// first; Close does not forcibly stop Runtimes still using it.
	Close(ctx context.Context) error
}

// NewCache returns a new Cache to be passed to RuntimeConfig.WithCache.
func NewCache() Cache {
	return &cache{}
}

// cache implements Cache. The worker is started lazily on first use
// (workerFor below) so a Cache that's never attached to a
// Runtime never spins up a goroutine.
type cache struct {
	mu     sync.Mutex
	worker *jit.Worker
}

// Close implements Cache.
func (c *cache) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker != nil {
		c.worker.Close()
		c.worker = nil
	}
	return nil
}

// workerFor returns the cache's shared worker, starting it lazily on
// first call. Every Runtime built against this Cache gets the SAME
// *jit.Worker goroutine, but each Runtime's tier-up requests still
// carry their own Context.Call as the compile request's Evaluator
// (internal/jit's compileRequest/Invoke keep the two straight per
// entry) — so sharing the worker only amortises the goroutine and its
// compile-request queue across Runtimes, never a Runtime's state.
func (c *cache) workerFor(queueSize int) *jit.Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		c.worker = jit.New(queueSize)
	}
	return c.worker
}
