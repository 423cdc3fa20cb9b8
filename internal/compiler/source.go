package compiler

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// Source is a unit of Go code to compile: a MemorySource or a FileSource.
type Source interface {
	// UnitName is the base name of the unit, without extension.
	UnitName() string

	// Read returns the unit's code.
	Read() ([]byte, error)
}

// MemorySource is code held in memory. A snippet without a package clause
// is compiled as package main.
type MemorySource struct {
	Name string
	Code string
}

func (s MemorySource) UnitName() string {
	if s.Name == "" {
		return "snippet"
	}
	return strings.TrimSuffix(filepath.Base(s.Name), ".go")
}

func (s MemorySource) Read() ([]byte, error) {
	return []byte(s.Code), nil
}

// FileSource is a Go file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) UnitName() string {
	return strings.TrimSuffix(filepath.Base(s.Path), filepath.Ext(s.Path))
}

func (s FileSource) Read() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", s.Path, err)
	}
	return data, nil
}

// ReadSource reads src and returns its code as it will be compiled.
func ReadSource(src Source) ([]byte, error) {
	code, err := src.Read()
	if err != nil {
		return nil, err
	}
	return normalize(src.UnitName()+".go", code)
}

// normalize adds "package main" to code without a package clause and
// rejects units that declare another package.
func normalize(name string, code []byte) ([]byte, error) {
	f, err := parser.ParseFile(token.NewFileSet(), name, code, parser.PackageClauseOnly)
	if err != nil {
		return append([]byte("package main\n\n"), code...), nil
	}
	if f.Name.Name != "main" {
		return nil, fmt.Errorf("%s: package %s must be main to build a plugin", name, f.Name.Name)
	}
	return code, nil
}

// imports reports whether code imports a package under modulePath.
func imports(code []byte, modulePath string) bool {
	f, err := parser.ParseFile(token.NewFileSet(), "", code, parser.ImportsOnly)
	if err != nil {
		return false
	}
	for _, imp := range f.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if path == modulePath || strings.HasPrefix(path, modulePath+"/") {
			return true
		}
	}
	return false
}
