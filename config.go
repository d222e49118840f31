package rowan

import (
	"context"
	"io"

	"github.com/Ki11erRabbit/rowan/internal/rlog"
)

// RuntimeConfig controls Runtime behaviour, with the default
// implementation as NewRuntimeConfig. Every With* method clones the
// receiver and returns the clone, exactly as wazero's config.go does,
// so a shared base config can't be mutated out from under a caller
// that's still using it.
type RuntimeConfig struct {
	ctx context.Context

	logWriter io.Writer
	logLevel  rlog.Level

	// jitQueueSize bounds the tier-up worker's pending-request queue
	// (spec §4.3). Zero means internal/jit.New's own default.
	jitQueueSize int

	// nativeDir is the base directory class-relative native library
	// paths are resolved under (spec §4.1 "Native library binding").
	nativeDir string

	cache *cache
}

// NewRuntimeConfig returns a config with defaults: background context,
// logging discarded, an unshared (per-Runtime) compile cache.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		ctx:       context.Background(),
		logWriter: io.Discard,
		logLevel:  rlog.LevelOff,
	}
}

// clone ensures all fields are copied even if zero-valued.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithContext stores ctx on the config; no Runtime operation reads it.
// Defaults to context.Background if ctx is nil.
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	ret := c.clone()
	ret.ctx = ctx
	return ret
}

// WithLogWriter directs Runtime's log lines (start-up, each Load, an
// uncaught exception in CallMain) to w (internal/rlog). A nil w
// discards logging.
func (c *RuntimeConfig) WithLogWriter(w io.Writer) *RuntimeConfig {
	ret := c.clone()
	ret.logWriter = w
	return ret
}

// WithLogLevel sets the minimum rlog.Level that reaches the log
// writer. Defaults to rlog.LevelOff (nothing logged).
func (c *RuntimeConfig) WithLogLevel(level rlog.Level) *RuntimeConfig {
	ret := c.clone()
	ret.logLevel = level
	return ret
}

// WithJITQueueSize bounds the tier-up worker's pending-compile queue
// (spec §4.3). Zero or negative falls back to internal/jit's default.
func (c *RuntimeConfig) WithJITQueueSize(n int) *RuntimeConfig {
	ret := c.clone()
	ret.jitQueueSize = n
	return ret
}

// WithNativeDir sets the base directory native-library paths resolve
// under (spec §4.1 "Native library binding").
func (c *RuntimeConfig) WithNativeDir(dir string) *RuntimeConfig {
	ret := c.clone()
	ret.nativeDir = dir
	return ret
}

// WithCache shares a Cache's JIT worker across every Runtime built
// from this config, rather than each Runtime starting its own (spec
// §4.3's worker is a single goroutine; sharing it across Runtimes
// amortises its startup the way wazero's Cache amortises a shared
// compilation engine across Runtime instances).
func (c *RuntimeConfig) WithCache(ca Cache) *RuntimeConfig {
	ret := c.clone()
	if concrete, ok := ca.(*cache); ok {
		ret.cache = concrete
	}
	return ret
}

func (c *RuntimeConfig) logger() *rlog.Logger {
	return rlog.New(c.logWriter, c.logLevel)
}
