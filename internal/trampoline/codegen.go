// Package trampoline turns discovered Go signatures into callables with the
// canonical shape func(args []*value.Value, count int) *value.Value.
//
// Generator emits Go source compiled into the loaded library; Bind builds
// the same adapter in-process with reflection for natively linked funcs.
// Both use one conversion rule per kind.
package trampoline

import (
	"errors"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"text/template"

	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/pkg/value"
)

const (
	// SymbolPrefix is prepended to a function name to form the exported
	// trampoline symbol.
	SymbolPrefix = "Bridge_"

	// ClassSymbolPrefix is prepended to a class name to form the exported
	// class descriptor constructor.
	ClassSymbolPrefix = "Bridge_class_"

	// Version is bumped when the generated code format changes.
	Version = "v1"
)

// ErrUnsupportedType is wrapped by UnsupportedTypeError.
var ErrUnsupportedType = errors.New("unsupported type")

// UnsupportedTypeError reports a parameter or return type that has no
// trampoline conversion.
type UnsupportedTypeError struct {
	Function string
	Param    string // "" for the return type
	Type     signature.Type
}

func (e *UnsupportedTypeError) Error() string {
	where := "return"
	if e.Param != "" {
		where = "parameter " + e.Param
	}
	msg := fmt.Sprintf("%s: %s: %s (%s)", e.Function, where, ErrUnsupportedType, e.Type.Name)
	if e.Type.Reason != "" {
		msg += ": " + e.Type.Reason
	}
	return msg
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// GeneratedFile is a generated Go source file.
type GeneratedFile struct {
	// Filename is relative to the build workspace.
	Filename string
	Content  string
}

// Generator produces trampoline source for one source unit.
type Generator struct {
	// modulePath is the import path of gobridge as seen from the build
	// workspace.
	modulePath string
}

// NewGenerator creates a generator whose output imports gobridge from
// modulePath.
func NewGenerator(modulePath string) *Generator {
	return &Generator{modulePath: modulePath}
}

// Generate emits one trampoline per function and one descriptor
// constructor per class. It returns the file together with the function
// list the trampolines expose: same names and parameters, passed by value,
// with Symbol set. A single unsupported type fails the whole batch.
func (g *Generator) Generate(fns []signature.Function, classes []signature.Class) (GeneratedFile, []signature.Function, error) {
	ctx := &fileContext{}
	var out []signature.Function

	for _, fn := range fns {
		code, err := trampolineSource(fn)
		if err != nil {
			return GeneratedFile{}, nil, err
		}
		ctx.Funcs = append(ctx.Funcs, code)
		if !fn.Canonical && len(fn.Params) > 0 {
			ctx.needFmt = true
		}
		out = append(out, canonicalFunction(fn))
	}

	sorted := append([]signature.Class(nil), classes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, c := range sorted {
		ctx.Classes = append(ctx.Classes, classSource(c))
	}

	content, err := ctx.render(g.modulePath)
	if err != nil {
		return GeneratedFile{}, nil, err
	}
	return GeneratedFile{Filename: "gobridge_trampolines.go", Content: content}, out, nil
}

func canonicalFunction(fn signature.Function) signature.Function {
	c := signature.Function{Name: fn.Name, Symbol: SymbolPrefix + fn.Name, Canonical: fn.Canonical}
	for _, p := range fn.Params {
		t := p.Type
		t.Reference = false
		t.Mutable = false
		c.Params = append(c.Params, signature.Param{Name: p.Name, Type: t})
	}
	if fn.Return != nil {
		r := *fn.Return
		c.Return = &r
	}
	return c
}

// Check reports the first parameter or return type of fn that has no
// trampoline conversion.
func Check(fn signature.Function) error {
	if fn.Canonical {
		return nil
	}
	for _, p := range fn.Params {
		if !convertible(p.Type) || hasBuffer(p.Type) {
			return &UnsupportedTypeError{Function: fn.Name, Param: p.Name, Type: p.Type}
		}
	}
	if fn.Return != nil && !convertible(*fn.Return) {
		return &UnsupportedTypeError{Function: fn.Name, Type: *fn.Return}
	}
	return nil
}

func convertible(t signature.Type) bool {
	if !t.Supported() || t.Validate() != nil {
		return false
	}
	switch {
	case t.IsPrimitive():
		return true
	case t.Kind == value.Array:
		return convertible(t.Generics[0])
	case t.Kind == value.Map:
		return convertible(t.Generics[0]) && convertible(t.Generics[1])
	}
	return false
}

// hasBuffer reports whether t is or contains a Buffer. Buffers are only
// produced by trampolines, never accepted.
func hasBuffer(t signature.Type) bool {
	if t.Kind == value.Buffer {
		return true
	}
	for _, g := range t.Generics {
		if hasBuffer(g) {
			return true
		}
	}
	return false
}

func trampolineSource(fn signature.Function) (string, error) {
	if err := Check(fn); err != nil {
		return "", err
	}
	symbol := SymbolPrefix + fn.Name

	var b strings.Builder
	fmt.Fprintf(&b, "// %s wraps %s.\n", symbol, fn.Name)
	fmt.Fprintf(&b, "func %s(args []*value.Value, count int) *value.Value {\n", symbol)

	if fn.Canonical {
		fmt.Fprintf(&b, "\treturn %s(args, count)\n}\n", fn.Name)
		return b.String(), nil
	}

	if n := len(fn.Params); n > 0 {
		fmt.Fprintf(&b, "\tif count != %d || len(args) < %d {\n", n, n)
		fmt.Fprintf(&b, "\t\tpanic(fmt.Sprintf(\"%s: expected %d arguments, got %%d\", count))\n\t}\n", fn.Name, n)
	}

	callArgs := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		arg := fmt.Sprintf("args[%d]", i)
		if p.Type.Reference {
			inner := p.Type
			inner.Reference = false
			inner.Mutable = false
			inner.Name = strings.TrimPrefix(p.Type.GoName(), "*")
			fmt.Fprintf(&b, "\tvalue.Retain(%s)\n", arg)
			fmt.Fprintf(&b, "\tdefer value.Release(%s)\n", arg)
			fmt.Fprintf(&b, "\tref_%d := %s\n", i, decodeCall(inner, arg))
			callArgs[i] = fmt.Sprintf("&ref_%d", i)
			continue
		}
		fmt.Fprintf(&b, "\tvar_%d := %s\n", i, decodeCall(p.Type, arg))
		callArgs[i] = fmt.Sprintf("var_%d", i)
	}

	call := fmt.Sprintf("%s(%s)", fn.Name, strings.Join(callArgs, ", "))
	if fn.Return == nil {
		fmt.Fprintf(&b, "\t%s\n\treturn value.CreateNull()\n}\n", call)
	} else {
		fmt.Fprintf(&b, "\tres := %s\n\treturn %s\n}\n", call, encodeCall(*fn.Return, "res"))
	}
	return b.String(), nil
}

// decodeCall is the Go expression converting the host value expr to t.
func decodeCall(t signature.Type, expr string) string {
	switch t.Kind {
	case value.Array:
		return fmt.Sprintf("value.SliceOf(%s, %s)", expr, decoderFunc(t.Generics[0]))
	case value.Map:
		return fmt.Sprintf("value.MapOf(%s, %s, %s)", expr, decoderFunc(t.Generics[0]), decoderFunc(t.Generics[1]))
	}
	conv := fmt.Sprintf("value.To%s(%s)", t.Kind, expr)
	if t.GoName() != signature.BaseName(t.Kind) {
		return fmt.Sprintf("%s(%s)", t.GoName(), conv)
	}
	return conv
}

func decoderFunc(t signature.Type) string {
	if t.IsPrimitive() && t.GoName() == signature.BaseName(t.Kind) {
		return "value.To" + t.Kind.String()
	}
	return fmt.Sprintf("func(v *value.Value) %s { return %s }", t.GoName(), decodeCall(t, "v"))
}

// encodeCall is the Go expression converting expr of type t to a new host
// value.
func encodeCall(t signature.Type, expr string) string {
	switch t.Kind {
	case value.Array:
		return fmt.Sprintf("value.FromSlice(%s, %s)", expr, encoderFunc(t.Generics[0]))
	case value.Map:
		return fmt.Sprintf("value.FromMap(%s, %s, %s)", expr, encoderFunc(t.Generics[0]), encoderFunc(t.Generics[1]))
	}
	if base := signature.BaseName(t.Kind); t.GoName() != base {
		return fmt.Sprintf("value.Create%s(%s(%s))", t.Kind, base, expr)
	}
	return fmt.Sprintf("value.Create%s(%s)", t.Kind, expr)
}

func encoderFunc(t signature.Type) string {
	if t.IsPrimitive() && t.GoName() == signature.BaseName(t.Kind) {
		return "value.Create" + t.Kind.String()
	}
	return fmt.Sprintf("func(x %s) *value.Value { return %s }", t.GoName(), encodeCall(t, "x"))
}

func classSource(c signature.Class) string {
	var b strings.Builder
	symbol := ClassSymbolPrefix + c.Name
	fmt.Fprintf(&b, "// %s describes %s.\n", symbol, c.Name)
	fmt.Fprintf(&b, "func %s() *registry.Class {\n", symbol)
	fmt.Fprintf(&b, "\treturn registry.NewClass[%s](%q)", c.Name, c.Name)
	if c.ConstructorFunc != "" {
		fmt.Fprintf(&b, ".\n\t\tConstructor(%s)", c.ConstructorFunc)
	}
	for _, a := range c.Attributes {
		fmt.Fprintf(&b, ".\n\t\tField(%q)", a.Name)
	}
	for _, m := range c.Methods {
		if m.Mutating {
			fmt.Fprintf(&b, ".\n\t\tMutMethod(%q, (*%s).%s)", m.Name, c.Name, m.Name)
		} else {
			fmt.Fprintf(&b, ".\n\t\tMethod(%q, %s.%s)", m.Name, c.Name, m.Name)
		}
	}
	for _, m := range c.StaticMethods {
		fmt.Fprintf(&b, ".\n\t\tClassMethod(%q, %s)", m.Name, m.Func)
	}
	b.WriteString(".\n\t\tMustBuild()\n}\n")
	return b.String()
}

type fileContext struct {
	Funcs   []string
	Classes []string
	needFmt bool
}

func (ctx *fileContext) render(modulePath string) (string, error) {
	tmpl, err := template.New("trampolines").Parse(trampolineFileTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	data := struct {
		ModulePath string
		Funcs      []string
		Classes    []string
		NeedFmt    bool
	}{modulePath, ctx.Funcs, ctx.Classes, ctx.needFmt}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	src, err := format.Source([]byte(buf.String()))
	if err != nil {
		return "", fmt.Errorf("formatting generated code: %w\n%s", err, buf.String())
	}
	return string(src), nil
}

const trampolineFileTemplate = `// Code generated by gobridge. DO NOT EDIT.

package main

import (
{{- if .NeedFmt}}
	"fmt"
{{- end}}
{{- if .Classes}}

	"{{.ModulePath}}/pkg/registry"
{{- end}}
	"{{.ModulePath}}/pkg/value"
)

var _ = value.CreateNull
{{range .Funcs}}
{{.}}
{{- end}}
{{range .Classes}}
{{.}}
{{- end}}
`
