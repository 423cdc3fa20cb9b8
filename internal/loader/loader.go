// Package loader is the lifecycle of the Go language loader: it defines
// the host types, turns source units into loaded libraries and registers
// their callables into host contexts.
//
// Loading a unit runs the pipeline
//
//	cache lookup -> compile -> inspect -> generate -> recompile -> load
//
// and discovery resolves every trampoline from the loaded library before
// handing the batch to the bridge.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/funvibe/gobridge/internal/bridge"
	"github.com/funvibe/gobridge/internal/compiler"
	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/inspect"
	"github.com/funvibe/gobridge/internal/logger"
	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/internal/trampoline"
	"github.com/funvibe/gobridge/pkg/registry"
	"github.com/funvibe/gobridge/pkg/value"
)

// Tag is the loader tag of Go units in the host.
const Tag = "go"

// Handle is a loaded unit.
type Handle struct {
	Name    string
	Library *compiler.Library

	// Functions is the canonical function list: original names, Symbol
	// set to the trampoline each one is resolved by.
	Functions []signature.Function
	Classes   []signature.Class
	Skipped   []inspect.Skipped

	// Cached is set when the unit was served from the artifact cache.
	Cached bool
}

// Loader holds the per-host state of the Go loader.
type Loader struct {
	cfg      *compiler.Config
	host     *host.Loader
	compiler *compiler.Compiler
	cache    *compiler.Cache
	bridge   *bridge.Bridge
	log      *slog.Logger

	mu      sync.Mutex
	handles []*Handle
}

// Option configures Initialize.
type Option func(*Loader)

// WithCompiler replaces the compiler built from the config.
func WithCompiler(c *compiler.Compiler) Option {
	return func(l *Loader) { l.compiler = c }
}

// Initialize defines the host types in hl and sets up the compiler, the
// artifact cache and the instance registry. A nil cfg means defaults.
func Initialize(ctx context.Context, hl *host.Loader, cfg *compiler.Config, opts ...Option) (*Loader, error) {
	if cfg == nil {
		cfg = compiler.DefaultConfig()
	}
	l := &Loader{cfg: cfg, host: hl, log: logger.Component("loader")}
	for _, opt := range opts {
		opt(l)
	}
	if l.compiler == nil {
		l.compiler = compiler.New(cfg)
	}

	if err := bridge.DefineTypes(hl); err != nil {
		return nil, fmt.Errorf("initializing %s loader: %w", Tag, err)
	}
	l.bridge = bridge.New(hl, registry.New())

	if !cfg.NoCache {
		cache, err := compiler.OpenCache(ctx, cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("initializing %s loader: %w", Tag, err)
		}
		l.cache = cache
	}
	l.log.Debug("initialized", "types", len(hl.TypeNames()), "cache", cfg.CacheDir, "cache_enabled", l.cache != nil)
	return l, nil
}

// Bridge returns the registration bridge.
func (l *Loader) Bridge() *bridge.Bridge { return l.bridge }

// Handles returns every unit loaded so far.
func (l *Loader) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Handle(nil), l.handles...)
}

// LoadFromMemory loads a unit held in memory.
func (l *Loader) LoadFromMemory(ctx context.Context, name, code string) (*Handle, error) {
	return l.Load(ctx, compiler.MemorySource{Name: name, Code: code})
}

// LoadFromFile loads a Go file.
func (l *Loader) LoadFromFile(ctx context.Context, path string) (*Handle, error) {
	return l.Load(ctx, compiler.FileSource{Path: path})
}

// LoadFiles loads several files concurrently. Handles are returned in the
// order of paths.
func (l *Loader) LoadFiles(ctx context.Context, paths ...string) ([]*Handle, error) {
	handles := make([]*Handle, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			h, err := l.LoadFromFile(ctx, p)
			if err != nil {
				return err
			}
			handles[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return handles, nil
}

// Load runs the load pipeline for src.
func (l *Loader) Load(ctx context.Context, src compiler.Source) (*Handle, error) {
	name := src.UnitName()
	code, err := src.Read()
	if err != nil {
		return nil, err
	}

	tc, err := l.compiler.Toolchain(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	key := compiler.Key(code, l.cfg.ModulePath, tc.Raw)

	if h, ok := l.fromCache(ctx, name, key); ok {
		return l.keep(h), nil
	}

	art, err := l.compiler.Compile(ctx, src)
	if err != nil {
		return nil, err
	}
	logger.LogStep(l.log, name, "compiled", "path", art.Path)

	h, err := l.bridgeArtifact(ctx, art, key)
	if err != nil {
		if cerr := l.compiler.Cleanup(art); cerr != nil {
			return nil, fmt.Errorf("%w (after: %v)", cerr, err)
		}
		return nil, err
	}
	return l.keep(h), nil
}

func (l *Loader) fromCache(ctx context.Context, name, key string) (*Handle, bool) {
	if l.cache == nil {
		return nil, false
	}
	e, ok, err := l.cache.Lookup(ctx, key)
	if err != nil {
		l.log.Warn("cache lookup failed", "unit", name, "err", err)
		return nil, false
	}
	if !ok {
		logger.LogStep(l.log, name, "cache miss", "key", key)
		return nil, false
	}
	lib, err := l.compiler.Load(e.Artifact())
	if err != nil {
		l.log.Warn("cached plugin unusable", "unit", name, "path", e.Path, "err", err)
		return nil, false
	}
	logger.LogStep(l.log, name, "cache hit", "key", key, "path", e.Path)
	return &Handle{Name: name, Library: lib, Functions: e.Functions, Classes: e.Classes, Cached: true}, true
}

// bridgeArtifact inspects a compiled unit, generates its trampolines,
// rebuilds and loads it.
func (l *Loader) bridgeArtifact(ctx context.Context, art *compiler.Artifact, key string) (*Handle, error) {
	res, err := inspect.InspectDir(ctx, art.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", art.Name, err)
	}
	for _, s := range res.Skipped {
		l.log.Info("not exposed", "unit", art.Name, "decl", s.Name, "reason", s.Reason)
	}
	if l.cfg.Strict && len(res.Skipped) > 0 {
		return nil, fmt.Errorf("inspecting %s: %d declarations cannot be exposed, first: %s", art.Name, len(res.Skipped), res.Skipped[0])
	}
	logger.LogStep(l.log, art.Name, "discovered", "functions", len(res.Functions), "classes", len(res.Classes))

	file, fns, err := trampoline.NewGenerator(l.cfg.ModulePath).Generate(res.Functions, res.Classes)
	if err != nil {
		return nil, fmt.Errorf("generating trampolines for %s: %w", art.Name, err)
	}
	classes := withClassSymbols(res.Classes)

	bridged, err := l.compiler.Recompile(ctx, art, []trampoline.GeneratedFile{file})
	if err != nil {
		return nil, err
	}

	// A plugin can be opened once per process, so once the unit is cached
	// only the cached copy is ever opened.
	target := bridged
	if l.cache != nil {
		e, err := l.cache.Store(ctx, key, bridged, fns, classes)
		if err != nil {
			l.log.Warn("failed to cache plugin", "unit", art.Name, "err", err)
		} else {
			if err := l.compiler.Cleanup(bridged); err != nil {
				return nil, err
			}
			target = e.Artifact()
		}
	}

	lib, err := l.compiler.Load(target)
	if err != nil {
		return nil, err
	}
	art.WorkDir = ""
	return &Handle{Name: art.Name, Library: lib, Functions: fns, Classes: classes, Skipped: res.Skipped}, nil
}

func withClassSymbols(classes []signature.Class) []signature.Class {
	out := make([]signature.Class, len(classes))
	for i, c := range classes {
		c.Symbol = trampoline.ClassSymbolPrefix + c.Name
		out[i] = c
	}
	return out
}

// LoadNative loads Go funcs and class descriptors linked into the running
// binary. Functions are adapted with reflection instead of generated
// trampolines; func values already in canonical form are used as is.
func (l *Loader) LoadNative(name string, fns map[string]any, classes ...*registry.Class) (*Handle, error) {
	symbols := make(map[string]any)
	h := &Handle{Name: name}

	for _, fnName := range sortedKeys(fns) {
		impl := fns[fnName]
		sig, tr, err := nativeFunction(fnName, impl)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		sig.Symbol = trampoline.SymbolPrefix + fnName
		symbols[sig.Symbol] = tr
		h.Functions = append(h.Functions, sig)
	}
	for _, c := range classes {
		c := c
		symbol := trampoline.ClassSymbolPrefix + c.Name()
		symbols[symbol] = func() *registry.Class { return c }
		h.Classes = append(h.Classes, signature.Class{Name: c.Name(), Symbol: symbol})
	}

	h.Library = compiler.NewLibrary(name, symbols)
	return l.keep(h), nil
}

func nativeFunction(name string, impl any) (signature.Function, value.Trampoline, error) {
	if tr, ok := impl.(func([]*value.Value, int) *value.Value); ok {
		return signature.Function{Name: name, Canonical: true}, tr, nil
	}
	if tr, ok := impl.(value.Trampoline); ok {
		return signature.Function{Name: name, Canonical: true}, tr, nil
	}
	sig, err := signature.FromFunc(name, impl)
	if err != nil {
		return signature.Function{}, nil, err
	}
	tr, err := trampoline.Bind(sig, impl)
	if err != nil {
		return signature.Function{}, nil, err
	}
	return sig, tr, nil
}

// Discover resolves the callables of h and registers them in hctx.
// Missing or mistyped symbols abort before anything is registered.
func (l *Loader) Discover(h *Handle, hctx *host.Context) error {
	var fns []bridge.FunctionSpec
	for _, fn := range h.Functions {
		tr, err := compiler.ResolveErr[value.Trampoline](h.Library, fn.Symbol)
		if err != nil {
			return fmt.Errorf("discovering %s: %w", h.Name, err)
		}
		fns = append(fns, bridge.SpecFromFunction(fn, tr))
	}

	var classes []bridge.ClassSpec
	for i := range h.Classes {
		desc := &h.Classes[i]
		build, err := compiler.ResolveErr[func() *registry.Class](h.Library, desc.Symbol)
		if err != nil {
			return fmt.Errorf("discovering %s: %w", h.Name, err)
		}
		classes = append(classes, bridge.ClassSpec{Name: desc.Name, Class: build(), Descriptor: desc})
	}

	if err := l.bridge.Register(hctx, fns, classes); err != nil {
		return fmt.Errorf("discovering %s: %w", h.Name, err)
	}
	logger.LogStep(l.log, h.Name, "registered", "functions", len(fns), "classes", len(classes))
	return nil
}

// Destroy drops every live instance and closes the cache. The loader must
// not be used afterwards.
func (l *Loader) Destroy() error {
	l.mu.Lock()
	l.handles = nil
	l.mu.Unlock()

	l.bridge.Registry().Reset()
	if l.cache != nil {
		if err := l.cache.Close(); err != nil {
			return fmt.Errorf("closing cache: %w", err)
		}
		l.cache = nil
	}
	return nil
}

func (l *Loader) keep(h *Handle) *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles = append(l.handles, h)
	return h
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
