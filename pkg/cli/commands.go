package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/funvibe/gobridge/internal/compiler"
	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/inspect"
	"github.com/funvibe/gobridge/internal/loader"
	"github.com/funvibe/gobridge/internal/trampoline"
	"github.com/funvibe/gobridge/pkg/value"
)

func inspectFile(path string) (*inspect.Result, error) {
	code, err := compiler.ReadSource(compiler.FileSource{Path: path})
	if err != nil {
		return nil, err
	}
	return inspect.InspectSource(filepath.Base(path), string(code))
}

// inspect prints what a unit exposes.
//
// Usage: gobridge inspect <file.go>
func (e *env) inspect(args []string) int {
	if len(args) != 1 {
		return e.errorf("usage: gobridge inspect <file.go>")
	}
	res, err := inspectFile(args[0])
	if err != nil {
		return e.errorf("%v", err)
	}
	e.printResult(res)
	if e.cfg.Strict && len(res.Skipped) > 0 {
		return 1
	}
	return 0
}

func (e *env) printResult(res *inspect.Result) {
	w := e.stdout
	fmt.Fprintf(w, "package %s\n", res.Package)
	for _, fn := range res.Functions {
		if fn.Canonical {
			fmt.Fprintf(w, "  func %s(...)\n", fn.Name)
			continue
		}
		fmt.Fprintf(w, "  func %s%s\n", fn.Name, fn.Describe())
	}
	for _, c := range res.Classes {
		fmt.Fprintf(w, "  type %s\n", c.Name)
		if c.Constructor != nil {
			fmt.Fprintf(w, "    new%s\n", c.Constructor.Describe())
		}
		for _, a := range c.Attributes {
			fmt.Fprintf(w, "    attr %s %s\n", a.Name, a.Type.GoName())
		}
		for _, m := range c.Methods {
			mark := ""
			if m.Mutating {
				mark = " " + e.paint("33", "[mut]")
			}
			fmt.Fprintf(w, "    method %s%s%s\n", m.Name, m.Describe(), mark)
		}
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "%s\n", e.paint("31", "not exposed:"))
		for _, s := range res.Skipped {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
}

// gen prints the trampoline file generated for a unit, or writes it into
// a directory.
//
// Usage: gobridge gen <file.go> [-o <dir>]
func (e *env) gen(args []string) int {
	var path, outDir string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-o":
			if i+1 >= len(args) {
				return e.errorf("-o requires a directory")
			}
			outDir = args[i+1]
			i++
		default:
			if path != "" {
				return e.errorf("usage: gobridge gen <file.go> [-o <dir>]")
			}
			path = args[i]
		}
	}
	if path == "" {
		return e.errorf("usage: gobridge gen <file.go> [-o <dir>]")
	}

	res, err := inspectFile(path)
	if err != nil {
		return e.errorf("%v", err)
	}
	if e.cfg.Strict && len(res.Skipped) > 0 {
		return e.errorf("%d declarations cannot be exposed, first: %s", len(res.Skipped), res.Skipped[0])
	}
	file, _, err := trampoline.NewGenerator(e.cfg.ModulePath).Generate(res.Functions, res.Classes)
	if err != nil {
		return e.errorf("%v", err)
	}

	if outDir == "" {
		fmt.Fprint(e.stdout, file.Content)
		return 0
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return e.errorf("%v", err)
	}
	out := filepath.Join(outDir, file.Filename)
	if err := os.WriteFile(out, []byte(file.Content), 0o644); err != nil {
		return e.errorf("writing %s: %v", out, err)
	}
	fmt.Fprintf(e.stdout, "Generated %s (%d functions, %d types)\n", out, len(res.Functions), len(res.Classes))
	return 0
}

// call loads a unit and calls one function with arguments parsed from the
// command line.
//
// Usage: gobridge call <file.go> <func> [args...]
func (e *env) call(ctx context.Context, args []string) int {
	if len(args) < 2 {
		return e.errorf("usage: gobridge call <file.go> <func> [args...]")
	}
	path, name, raw := args[0], args[1], args[2:]

	hctx, done, err := e.loadUnit(ctx, path)
	if err != nil {
		return e.errorf("%v", err)
	}
	defer done()

	f, err := hctx.Scope().Function(name)
	if err != nil {
		return e.errorf("%v (have %s)", err, strings.Join(hctx.Scope().Names(), ", "))
	}
	vals, err := parseArgs(f.Signature(), raw)
	if err != nil {
		return e.errorf("%s: %v", name, err)
	}
	defer func() {
		for _, v := range vals {
			v.Release()
		}
	}()

	res, err := f.Call(vals...)
	if err != nil {
		return e.errorf("%v", err)
	}
	defer res.Release()
	if f.Signature().Return() != nil || !value.IsNull(res) {
		fmt.Fprintln(e.stdout, formatValue(res))
	}
	return 0
}

// loadUnit compiles, loads and discovers the unit at path. done releases
// the scope and the loader.
func (e *env) loadUnit(ctx context.Context, path string) (*host.Context, func(), error) {
	l, err := loader.Initialize(ctx, host.NewLoader(loader.Tag), e.cfg)
	if err != nil {
		return nil, nil, err
	}
	h, err := l.LoadFromFile(ctx, path)
	if err != nil {
		l.Destroy()
		return nil, nil, err
	}
	hctx := host.NewContext()
	if err := l.Discover(h, hctx); err != nil {
		l.Destroy()
		return nil, nil, err
	}
	return hctx, func() {
		hctx.Scope().Destroy()
		l.Destroy()
	}, nil
}

// cache manages the plugin cache.
//
// Usage: gobridge cache list|clean
func (e *env) cache(ctx context.Context, args []string) int {
	if len(args) != 1 || (args[0] != "list" && args[0] != "clean") {
		return e.errorf("usage: gobridge cache list|clean")
	}
	c, err := compiler.OpenCache(ctx, e.cfg.CacheDir)
	if err != nil {
		return e.errorf("%v", err)
	}
	defer c.Close()

	if args[0] == "clean" {
		if err := c.Clean(ctx); err != nil {
			return e.errorf("%v", err)
		}
		fmt.Fprintf(e.stdout, "Cleaned %s\n", c.Dir())
		return 0
	}

	entries, err := c.List(ctx)
	if err != nil {
		return e.errorf("%v", err)
	}
	if len(entries) == 0 {
		fmt.Fprintf(e.stdout, "No cached plugins in %s\n", c.Dir())
		return 0
	}
	for _, en := range entries {
		fmt.Fprintf(e.stdout, "%s  %-20s %d functions, %d types, %d hits  %s\n",
			en.Key, en.Name, len(en.Functions), len(en.Classes), en.Hits, en.Created.Format("2006-01-02 15:04"))
	}
	return 0
}
