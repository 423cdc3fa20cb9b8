//go:build (linux || darwin || freebsd) && cgo

package compiler

import "plugin"

// PluginsSupported reports whether this build can open plugins.
const PluginsSupported = true

func openPlugin(name, path string) (*Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Library{
		Name: name,
		Path: path,
		lookup: func(s string) (any, error) {
			sym, err := p.Lookup(s)
			if err != nil {
				return nil, ErrSymbolNotFound
			}
			return sym, nil
		},
	}, nil
}
