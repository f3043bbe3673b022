package unit

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/ededitor/edhost/errors"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Config holds configuration for a compilation context
type Config struct {
	// Name identifies the context in logs.
	Name string

	// CacheDir enables wazero's on-disk compilation cache when set.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per unit in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Interpreter forces the wazero interpreter instead of the compiler.
	Interpreter bool
}

// Context owns the wazero runtime shared by every unit that calls another
// unit's exports. Modules compiled in one Context are cached by content and
// instantiated any number of times.
type Context struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	modules map[[sha256.Size]byte]wazero.CompiledModule
	name    string
	mu      sync.Mutex
}

// NewContext creates a compilation context. A nil cfg uses defaults.
func NewContext(ctx context.Context, cfg *Config) (*Context, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var runtimeCfg wazero.RuntimeConfig
	if cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	} else {
		runtimeCfg = wazero.NewRuntimeConfig()
	}
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	c := &Context{
		name:    cfg.Name,
		modules: make(map[[sha256.Size]byte]wazero.CompiledModule),
	}

	if cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.InvalidInput("open compilation cache "+cfg.CacheDir, err)
		}
		c.cache = cache
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	c.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	Logger().Debug("context created",
		zap.String("name", c.name),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Bool("disk_cache", c.cache != nil))
	return c, nil
}

// Runtime returns the underlying wazero runtime.
func (c *Context) Runtime() wazero.Runtime {
	return c.runtime
}

// Name returns the context's diagnostic name.
func (c *Context) Name() string {
	return c.name
}

// Close releases the runtime and every unit instantiated in it.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	c.modules = nil
	c.mu.Unlock()

	err := c.runtime.Close(ctx)
	if c.cache != nil {
		if cerr := c.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// compile returns the compiled form of src, compiling it at most once per
// distinct content.
func (c *Context) compile(ctx context.Context, src Source) (wazero.CompiledModule, error) {
	data, err := src.Load()
	if err != nil {
		return nil, errors.CompileFailed(src.Name(), err)
	}
	key := sha256.Sum256(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	if compiled, ok := c.modules[key]; ok {
		return compiled, nil
	}

	compiled, err := c.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.CompileFailed(src.Name(), err)
	}
	if c.modules != nil {
		c.modules[key] = compiled
	}
	Logger().Debug("module compiled", zap.String("source", src.Name()), zap.Int("bytes", len(data)))
	return compiled, nil
}
