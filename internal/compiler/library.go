package compiler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/funvibe/gobridge/internal/boundary"
)

// ErrSymbolNotFound is wrapped by LoadError for missing symbols.
var ErrSymbolNotFound = errors.New("symbol not found")

// Library is a loaded unit: a plugin, or a table of symbols linked into
// the running binary.
type Library struct {
	Name string
	Path string

	lookup func(string) (any, error)
}

// NewLibrary wraps symbols already present in the process, keyed by the
// names Resolve will be called with.
func NewLibrary(name string, symbols map[string]any) *Library {
	syms := make(map[string]any, len(symbols))
	for k, v := range symbols {
		syms[k] = v
	}
	return &Library{
		Name: name,
		Path: "<static>",
		lookup: func(s string) (any, error) {
			if v, ok := syms[s]; ok {
				return v, nil
			}
			keys := make([]string, 0, len(syms))
			for k := range syms {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("%w (have %v)", ErrSymbolNotFound, keys)
		},
	}
}

// Lookup returns the raw symbol. Errors are *LoadError.
func (l *Library) Lookup(symbol string) (any, error) {
	if err := boundary.CheckName(symbol); err != nil {
		return nil, &LoadError{Path: l.Path, Symbol: symbol, Err: err}
	}
	sym, err := l.lookup(symbol)
	if err != nil {
		return nil, &LoadError{Path: l.Path, Symbol: symbol, Err: err}
	}
	return sym, nil
}

// Resolve looks up name and checks that it has type T.
func Resolve[T any](l *Library, name string) (T, bool) {
	var zero T
	sym, err := l.Lookup(name)
	if err != nil {
		return zero, false
	}
	v, err := boundary.Cast[T](sym, name)
	if err != nil {
		return zero, false
	}
	return v, true
}

// ResolveErr is Resolve reporting why the symbol is unusable.
func ResolveErr[T any](l *Library, name string) (T, error) {
	var zero T
	sym, err := l.Lookup(name)
	if err != nil {
		return zero, err
	}
	v, err := boundary.Cast[T](sym, name)
	if err != nil {
		return zero, &LoadError{Path: l.Path, Symbol: name, Err: err}
	}
	return v, nil
}

// Load opens the plugin of art and removes its workspace. A workspace
// that cannot be removed is reported as *CleanupError.
func (c *Compiler) Load(art *Artifact) (*Library, error) {
	lib, err := openPlugin(art.Name, art.Path)
	if err != nil {
		return nil, err
	}
	c.log.Debug("loaded", "unit", art.Name, "path", art.Path)
	if err := c.Cleanup(art); err != nil {
		return nil, err
	}
	return lib, nil
}
