//go:build !((linux || darwin || freebsd) && cgo)

package compiler

import "errors"

const PluginsSupported = false

var errNoPlugins = errors.New("plugins are not supported on this platform or without cgo")

func openPlugin(name, path string) (*Library, error) {
	return nil, &LoadError{Path: path, Err: errNoPlugins}
}
