// Package inspect discovers the callables of a Go source unit: top-level
// functions, struct types with their fields and methods, and New<Type>
// constructors. Types are resolved with go/types; whole directories are
// loaded through golang.org/x/tools/go/packages.
package inspect

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/internal/trampoline"
)

// Result is what discovery found in one package.
type Result struct {
	Package   string
	Functions []signature.Function
	Classes   []signature.Class

	// Skipped lists declarations that cannot cross the boundary.
	Skipped []Skipped
}

// Skipped is a declaration left out of the result.
type Skipped struct {
	Name   string
	Reason string
}

func (s Skipped) String() string { return s.Name + ": " + s.Reason }

// Names returns the function names followed by the class names.
func (r *Result) Names() []string {
	var names []string
	for _, f := range r.Functions {
		names = append(names, f.Name)
	}
	for _, c := range r.Classes {
		names = append(names, c.Name)
	}
	return names
}

// InspectSource type-checks a single in-memory file. Imports are resolved
// with the default importer.
func InspectSource(filename, code string) (*Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, code, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	conf := types.Config{Importer: importer.Default()}
	pkg, err := conf.Check(file.Name.Name, fset, []*ast.File{file}, nil)
	if err != nil {
		return nil, fmt.Errorf("type-checking %s: %w", filename, err)
	}
	return collect(pkg), nil
}

// InspectDir loads the package in dir with go/packages and inspects it.
func InspectDir(ctx context.Context, dir string) (*Result, error) {
	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName |
			packages.NeedTypes |
			packages.NeedTypesInfo |
			packages.NeedSyntax |
			packages.NeedImports,
		Dir: dir,
		Env: append(os.Environ(), "GOWORK=off"),
	}

	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("expected 1 package in %s, found %d", dir, len(pkgs))
	}

	var errs []string
	for _, e := range pkgs[0].Errors {
		errs = append(errs, e.Error())
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("package errors:\n  %s", strings.Join(errs, "\n  "))
	}
	return collect(pkgs[0].Types), nil
}

func collect(pkg *types.Package) *Result {
	res := &Result{Package: pkg.Name()}
	qual := types.RelativeTo(pkg)
	scope := pkg.Scope()

	claimed := make(map[string]bool)
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || tn.IsAlias() || ignored(name) {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		if _, isStruct := named.Underlying().(*types.Struct); !isStruct {
			continue
		}
		if named.TypeParams().Len() > 0 {
			res.Skipped = append(res.Skipped, Skipped{name, "generic types are not exposed"})
			continue
		}
		class, ctor := inspectClass(scope, named, qual, res)
		if ctor != "" {
			claimed[ctor] = true
		}
		res.Classes = append(res.Classes, class)
	}

	for _, name := range scope.Names() {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok || ignored(name) || claimed[name] {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.TypeParams().Len() > 0 {
			res.Skipped = append(res.Skipped, Skipped{name, "generic functions are not exposed"})
			continue
		}
		if isCanonical(sig) {
			res.Functions = append(res.Functions, canonicalFunction(name))
			continue
		}

		f := signature.Function{Name: name, Signature: signature.FromTypesSignature(sig, qual)}
		if reason := f.Unsupported(); reason != "" {
			res.Skipped = append(res.Skipped, Skipped{name, reason})
			continue
		}
		if err := trampoline.Check(f); err != nil {
			res.Skipped = append(res.Skipped, Skipped{name, err.Error()})
			continue
		}
		res.Functions = append(res.Functions, f)
	}
	return res
}

func inspectClass(scope *types.Scope, named *types.Named, qual types.Qualifier, res *Result) (signature.Class, string) {
	name := named.Obj().Name()
	class := signature.Class{Name: name}

	st := named.Underlying().(*types.Struct)
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Exported() || f.Embedded() {
			continue
		}
		t := signature.FromTypes(f.Type(), qual)
		if !t.Supported() {
			res.Skipped = append(res.Skipped, Skipped{name + "." + f.Name(), t.Reason})
			continue
		}
		class.Attributes = append(class.Attributes, signature.Attribute{Name: f.Name(), Type: t})
	}

	for i := 0; i < named.NumMethods(); i++ {
		m := named.Method(i)
		sig := m.Type().(*types.Signature)
		ms := signature.FromTypesSignature(sig, qual)
		if reason := ms.Unsupported(); reason != "" {
			res.Skipped = append(res.Skipped, Skipped{name + "." + m.Name(), reason})
			continue
		}
		_, ptrRecv := sig.Recv().Type().(*types.Pointer)
		class.Methods = append(class.Methods, signature.Method{Name: m.Name(), Signature: ms, Mutating: ptrRecv})
	}
	sort.Slice(class.Methods, func(i, j int) bool { return class.Methods[i].Name < class.Methods[j].Name })

	ctorName := "New" + name
	if fn, ok := scope.Lookup(ctorName).(*types.Func); ok {
		sig := fn.Type().(*types.Signature)
		if constructs(sig, named) {
			cs := signature.FromTypesSignature(sig, qual)
			if reason := cs.Unsupported(); reason != "" && !returnOnly(cs) {
				res.Skipped = append(res.Skipped, Skipped{ctorName, reason})
				return class, ""
			}
			cs.Return = nil
			class.Constructor = &cs
			class.ConstructorFunc = ctorName
			return class, ctorName
		}
	}
	return class, ""
}

// constructs reports whether sig returns exactly T or *T.
func constructs(sig *types.Signature, named *types.Named) bool {
	if sig.TypeParams().Len() > 0 || sig.Results().Len() != 1 {
		return false
	}
	rt := sig.Results().At(0).Type()
	if p, ok := rt.(*types.Pointer); ok {
		rt = p.Elem()
	}
	return types.Identical(rt, named)
}

// returnOnly reports whether only the return type of s is unsupported.
func returnOnly(s signature.Signature) bool {
	for _, p := range s.Params {
		if !p.Type.Supported() {
			return false
		}
	}
	return true
}

// isCanonical reports whether sig is func([]*value.Value, int) *value.Value
// with value being gobridge's pkg/value.
func isCanonical(sig *types.Signature) bool {
	if sig.Params().Len() != 2 || sig.Results().Len() != 1 || sig.Variadic() {
		return false
	}
	args, ok := sig.Params().At(0).Type().(*types.Slice)
	if !ok || !isValuePtr(args.Elem()) {
		return false
	}
	if b, ok := sig.Params().At(1).Type().(*types.Basic); !ok || b.Kind() != types.Int {
		return false
	}
	return isValuePtr(sig.Results().At(0).Type())
}

func isValuePtr(t types.Type) bool {
	p, ok := t.(*types.Pointer)
	if !ok {
		return false
	}
	named, ok := p.Elem().(*types.Named)
	if !ok || named.Obj().Pkg() == nil {
		return false
	}
	return named.Obj().Name() == "Value" && strings.HasSuffix(named.Obj().Pkg().Path(), "/pkg/value")
}

func canonicalFunction(name string) signature.Function {
	return signature.Function{Name: name, Canonical: true}
}

func ignored(name string) bool {
	return name == "main" || name == "init" || name == "_" ||
		strings.HasPrefix(name, trampoline.SymbolPrefix)
}
