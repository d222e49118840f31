// Package jit is the tier-up compiler (spec.md §4.3): a single worker
// goroutine that accepts "this method got hot" compile requests, emits
// native code through an internal/asm.CodeBuffer, collates a stack map,
// and atomically installs the result into the method's
// metadata.CompileState (Bytecode -> Compiled).
//
// The native machine-code backend proper is out of scope (spec.md §1):
// this worker emits a real, assembled, mmap'd-executable trampoline
// stub (exercising internal/asm end to end), but invoking it re-enters
// the Evaluator the compile request carried rather than jumping
// through the raw function pointer — the same way the interpreter's
// own Native/Builtin call paths call back into Go instead of machine
// code. Property 6 (tier-up equivalence) holds because both tiers
// bottom out in the same Evaluator. One Worker goroutine can serve
// compile requests from several distinct Evaluators (and therefore
// several distinct interpreter.Contexts) concurrently, which is what
// lets a Cache share one Worker across multiple Runtimes.
package jit

import (
	"fmt"
	"sync"

	"github.com/Ki11erRabbit/rowan/internal/asm"
	"github.com/Ki11erRabbit/rowan/internal/asm/golangasm"
	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/nativeabi"
)

// Evaluator runs a function descriptor's body to completion. The
// interpreter's Context.Call satisfies this signature; the JIT worker
// uses it both to execute Compiled-variant calls (see Invoke) and, in
// a richer backend, would use it as the reference semantics a real
// native translation must match.
type Evaluator func(fd *metadata.FunctionDescriptor, args []metadata.TypedSlot) (metadata.TypedSlot, error)

// NewCodeBuffer constructs the concrete asm.CodeBuffer a compile uses.
// New sets every Worker's to one that returns golangasm.New().
type NewCodeBuffer func() (asm.CodeBuffer, error)

// compileRequest is one "tier this method up" submission (spec.md §4.3
// "submits a JIT request"). evaluate travels with the request, not the
// Worker, so one Worker goroutine can safely serve compile requests
// from more than one interpreter.Context — e.g. a Cache's worker
// shared across several rowan.Runtimes (each with its own Context).
type compileRequest struct {
	fd       *metadata.FunctionDescriptor
	evaluate Evaluator
}

// installed pairs a compiled entry's descriptor with the Evaluator
// Invoke must re-enter for it — the Evaluator a Submit call arrived
// with, not whichever one happens to be live when Invoke runs later.
type installed struct {
	fd       *metadata.FunctionDescriptor
	evaluate Evaluator
}

// Worker is the JIT's single compile-serving goroutine.
type Worker struct {
	requests  chan compileRequest
	newBuffer NewCodeBuffer
	done      chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	entries map[uintptr]installed
}

// New starts a Worker. queueSize bounds the number of pending compile
// requests (spec.md's worker is fire-and-forget: a full queue drops
// that submission, and since the interpreter requests tier-up only
// once per descriptor, that method stays interpreted).
func New(queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	w := &Worker{
		requests: make(chan compileRequest, queueSize),
		newBuffer: func() (asm.CodeBuffer, error) {
			return golangasm.New()
		},
		done:    make(chan struct{}),
		entries: make(map[uintptr]installed),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Submit enqueues fd for tier-up; evaluate is the reference semantics
// Invoke re-enters once fd compiles (typically one Context.Call bound
// to whichever Context is driving fd's mutator). Non-blocking: a full
// queue silently drops the request, matching the "best effort, no
// backpressure on the mutator" design the worker-thread description
// implies.
func (w *Worker) Submit(fd *metadata.FunctionDescriptor, evaluate Evaluator) {
	select {
	case w.requests <- compileRequest{fd: fd, evaluate: evaluate}:
	default:
	}
}

// Close stops the worker goroutine and waits for it to exit. No more
// compiles happen after this returns; in-flight requests are dropped.
func (w *Worker) Close() {
	close(w.done)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case req := <-w.requests:
			w.compile(req.fd, req.evaluate)
		}
	}
}

// compile turns one Bytecode-variant descriptor into Compiled. Errors
// are swallowed (tier-up is an optimization, not a correctness
// requirement: a failed compile just leaves the method interpreted).
func (w *Worker) compile(fd *metadata.FunctionDescriptor, evaluate Evaluator) {
	if fd.State.Variant() != metadata.Bytecode {
		return
	}
	buf, err := w.newBuffer()
	if err != nil {
		return
	}
	code, err := emitTrampoline(buf)
	if err != nil {
		return
	}
	exec, err := asm.MapExecutable(code)
	if err != nil {
		return
	}
	entry := exec.Addr()

	sm := buildStackMap(fd, entry)
	if !fd.State.Install(entry, code, sm) {
		// Another worker beat us to it, or the state moved on.
		_ = exec.Unmap()
		return
	}

	w.mu.Lock()
	w.entries[entry] = installed{fd: fd, evaluate: evaluate}
	w.mu.Unlock()
}

// Invoke is installed as the interpreter's compiled-call trampoline
// (interpreter.SetCompiledTrampoline). It looks the entry address back
// up to the descriptor the worker installed it for, re-marshals the
// native-call arguments into typed slots using the descriptor's
// declared argument types, and runs them through the Evaluator that
// was live when fd was submitted — which may belong to a different
// Context than whichever one is calling Invoke right now, if this
// Worker is shared across Runtimes via a Cache.
func (w *Worker) Invoke(entry uintptr, args []interface{}) (interface{}, error) {
	w.mu.Lock()
	in, ok := w.entries[entry]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("jit: no compiled descriptor registered for entry %#x", entry)
	}
	fd := in.fd

	slots := make([]metadata.TypedSlot, len(args))
	for i, a := range args {
		tag := bytecode.TVoid
		if i < len(fd.ArgTypes) {
			tag = fd.ArgTypes[i]
		}
		slots[i] = nativeabi.Unmarshal(tag, a)
	}

	result, err := in.evaluate(fd, slots)
	if err != nil {
		return nil, err
	}
	if fd.ReturnType == bytecode.TVoid {
		return nil, nil
	}
	return nativeabi.Marshal([]metadata.TypedSlot{result})[0], nil
}
