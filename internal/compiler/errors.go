package compiler

import (
	"fmt"
	"regexp"
	"strings"
)

// CompileError is a failed build. Diagnostics holds the toolchain output
// verbatim; Errors holds the file:line:col lines extracted from it.
type CompileError struct {
	Unit        string
	Err         error
	Errors      []string
	Diagnostics string
}

// Error reports the toolchain output verbatim.
func (e *CompileError) Error() string {
	out := strings.TrimRight(e.Diagnostics, "\n")
	if out == "" {
		return fmt.Sprintf("compiling %s: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("compiling %s: %v\n%s", e.Unit, e.Err, out)
}

func (e *CompileError) Unwrap() error { return e.Err }

// LoadError is a failure to open a compiled library or to resolve one of
// its symbols.
type LoadError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("loading %s: symbol %s: %v", e.Path, e.Symbol, e.Err)
	}
	return fmt.Sprintf("loading %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CleanupError is a failure to remove a build workspace. It is fatal: the
// caller must not keep using the loader.
type CleanupError struct {
	Dir string
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("removing build workspace %s: %v", e.Dir, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

var diagLine = regexp.MustCompile(`^\S+\.go:\d+(:\d+)?: `)

// parseDiagnostics keeps the file:line[:col]: lines of go build output.
func parseDiagnostics(output string) []string {
	var errs []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if diagLine.MatchString(line) {
			errs = append(errs, line)
		}
	}
	return errs
}
