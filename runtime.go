package rowan

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/gc"
	"github.com/Ki11erRabbit/rowan/internal/heap"
	"github.com/Ki11erRabbit/rowan/internal/interpreter"
	"github.com/Ki11erRabbit/rowan/internal/jit"
	"github.com/Ki11erRabbit/rowan/internal/linker"
	"github.com/Ki11erRabbit/rowan/internal/metadata"
	"github.com/Ki11erRabbit/rowan/internal/rlog"
	"github.com/Ki11erRabbit/rowan/internal/symbol"
)

// ClassFile is the already-parsed, already-deserialised class-file
// container the Linker consumes (spec §6 "Host entry point" takes
// parsed class files, not raw bytes; the binary container format
// itself is out of scope, spec.md §1). Re-exported from internal/linker
// so an embedder never imports an internal package directly.
type ClassFile = linker.ClassFile

// Runtime is one linked object graph plus its interpreter/collector/
// tier-up worker, built from a RuntimeConfig via NewRuntime (spec §6
// "Host entry point"). Mirrors wazero's Runtime: an embedder typically
// builds one per isolated module graph and calls Load then CallMain.
type Runtime struct {
	symbols *symbol.Table
	strings *symbol.Strings
	names   *symbol.Map
	classes *metadata.Classes
	tables  *metadata.Tables
	natives *linker.NativeLibraries

	heap   *heap.Table
	gate   *gc.Gate
	gc     *gc.Collector
	worker *jit.Worker

	ictx *interpreter.Context
	log  *rlog.Logger
	cfg  *RuntimeConfig
}

// NewRuntime builds a Runtime from cfg (NewRuntimeConfig() if cfg is
// nil), wiring the symbol/metadata/heap stores, the GC gate and
// collector, a tier-up worker (shared via cfg's Cache if one was set
// with WithCache, otherwise owned by this Runtime alone), and a fresh
// interpreter.Context registered as that gate's one mutator.
func NewRuntime(cfg *RuntimeConfig) (*Runtime, error) {
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	log := cfg.logger()

	symbols := symbol.NewTable()
	strings := symbol.NewStrings()
	names := symbol.NewMap(symbols, strings)
	classes := metadata.NewClasses()
	tables := metadata.NewTables()
	natives := linker.NewNativeLibraries()
	objects := heap.NewTable()

	gate := gc.NewGate()
	collector := gc.NewCollector(gate, objects, symbols, classes)

	var worker *jit.Worker
	if cfg.cache != nil {
		worker = cfg.cache.workerFor(cfg.jitQueueSize)
	} else {
		worker = jit.New(cfg.jitQueueSize)
	}

	// ictx's Safepoint starts nil; NewContext substitutes a no-op until
	// the gate.Register call below supplies the real Mutator, avoiding
	// an import cycle between interpreter and gc (Context satisfies
	// gc.RootSource structurally via CollectRoots, so gc never imports
	// interpreter either).
	ictx := interpreter.NewContext(symbols, names, classes, tables, objects, nil)
	ictx.Safepoint = gate.Register(ictx)

	// These two package-level seams (interpreter.SetCompiledTrampoline,
	// interpreter.SetTierUpRequester) are process-wide globals, so only
	// one Runtime's worker/Context pairing can be installed at a time —
	// fine for the common "one Runtime per process" embedding, but a
	// second concurrently-live Runtime would clobber the first's
	// trampoline. See DESIGN.md's JIT-worker-sharing open question.
	interpreter.SetCompiledTrampoline(worker.Invoke)
	interpreter.SetTierUpRequester(func(fd *metadata.FunctionDescriptor) {
		worker.Submit(fd, ictx.Call)
	})

	log.Infof("runtime initialised")

	return &Runtime{
		symbols: symbols,
		strings: strings,
		names:   names,
		classes: classes,
		tables:  tables,
		natives: natives,
		heap:    objects,
		gate:    gate,
		gc:      collector,
		worker:  worker,
		ictx:    ictx,
		log:     log,
		cfg:     cfg,
	}, nil
}

// Load runs the two-phase link (spec §4.1) over files, registering
// every class's name/members/methods and then materialising vtables,
// bytecode relocation, and static-init bodies. Returns *linker.LinkError
// when classes are still unresolved after the retry passes (e.g. a
// parent that is never defined); other link-time failures (malformed
// bytecode, a missing native library or symbol) come back as wrapped
// errors, and a repeated class name is not reported as an error. Files
// already registered by a prior Load remain registered even if a later
// Load call fails partway through.
func (r *Runtime) Load(files []*ClassFile) error {
	l := linker.NewLinker(r.symbols, r.names, r.classes, r.tables, r.natives, r.cfg.nativeDir)
	if err := l.Register(files); err != nil {
		return err
	}
	if err := l.Link(); err != nil {
		return err
	}
	r.log.Infof("loaded %d class file(s)", len(files))
	return nil
}

// Collect runs one stop-the-world mark-sweep cycle immediately (spec
// §4.4), returning the number of cells freed. Not required before or
// after any particular CallMain — the collector never runs implicitly
// in this implementation (spec §1 Non-goal: no automatic/incremental
// triggering), matching wazero's own "nothing happens unless you call
// it" shape for its non-blocking maintenance operations.
func (r *Runtime) Collect() int {
	return r.gc.Cycle()
}

// Close releases the Runtime's own resources: its object heap's bulk
// byte arena and, if this Runtime owns its worker (no Cache was
// configured), the tier-up worker goroutine. A worker obtained from a
// shared Cache outlives this call, matching Cache.Close's contract
// that Runtimes must be closed before the Cache itself is.
func (r *Runtime) Close(_ context.Context) error {
	if r.cfg.cache == nil {
		r.worker.Close()
	}
	r.gate.Unregister(r.ictx.Safepoint.(*gc.Mutator))
	return r.heap.Release()
}

// CallMain resolves mainClass/mainMethod (already interned by a prior
// Load) and runs it to completion through the interpreter tier (spec
// §6 "Host entry point: call_main(main-class-symbol, main-method-
// symbol, [args]). The returned exit status is the interpreter's exit
// code."). args are marshalled into TStr-tagged typed slots the same
// way the linker's relocateNameOperand turns a ConstStr operand into
// one: intern the string and carry its symbol as the payload.
//
// exitCode is the VM's I32 return value when mainMethod returns I32;
// 0 for a TVoid-returning main that completes normally; 1 if execution
// unwound with an uncaught exception (spec §9 scenario S3 "top-level
// observer sees a non-zero exit code"); any other dispatch/type error
// from the host side itself (an unresolved class/method, a malformed
// descriptor) is returned as err with exitCode 2, since those are host
// failures rather than the program under test throwing.
func (r *Runtime) CallMain(ctx context.Context, mainClass, mainMethod string, args []string) (exitCode int, err error) {
	classSym, ok := r.names.Resolve(mainClass)
	if !ok {
		return 2, fmt.Errorf("%w: %q", ErrClassNotFound, mainClass)
	}
	methodSym, ok := r.names.Resolve(mainMethod)
	if !ok {
		return 2, fmt.Errorf("%w: %q", ErrMethodNotFound, mainMethod)
	}

	fd, err := r.ictx.ResolveStatic(classSym, methodSym)
	if err != nil {
		return 2, err
	}

	argSlots := make([]metadata.TypedSlot, len(args))
	for i, a := range args {
		argSlots[i] = metadata.TypedSlot{Tag: bytecode.TStr, Payload: uint64(r.names.Intern(a))}
	}

	_ = ctx // not read: nothing below blocks on a context

	result, callErr := r.ictx.Call(fd, argSlots)
	if callErr != nil {
		var uncaught *interpreter.UncaughtException
		if errors.As(callErr, &uncaught) {
			r.log.Warnf("main exited with an uncaught exception")
			return 1, nil
		}
		return 2, callErr
	}

	if fd.ReturnType == bytecode.I32 {
		return int(int32(result.Payload)), nil
	}
	return 0, nil
}
