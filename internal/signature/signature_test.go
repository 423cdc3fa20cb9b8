package signature

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"testing"

	"github.com/funvibe/gobridge/pkg/value"
)

const typesSrc = `package main

type Counter struct{ X int64 }
type Celsius float64

func Prims(a bool, b int8, c int16, d int32, e int64, f int, g float32, h float64, s string, r rune) {}
func Slices(a []int32, b []byte, c *[]int64, d map[string]float64, e *map[int32]bool) {}
func Objects(c Counter, p *Counter, n Celsius, f func()) {}
func Bad(a uint32, b chan int, c error, d ...int) (int, error) { return 0, nil }
`

func checkSource(t *testing.T) *types.Package {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "types.go", typesSrc, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conf := types.Config{Importer: importer.Default()}
	pkg, err := conf.Check("main", fset, []*ast.File{file}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pkg
}

func funcSig(t *testing.T, pkg *types.Package, name string) Signature {
	t.Helper()
	fn, ok := pkg.Scope().Lookup(name).(*types.Func)
	if !ok {
		t.Fatalf("%s not found", name)
	}
	return FromTypesSignature(fn.Type().(*types.Signature), types.RelativeTo(pkg))
}

func TestFromTypesPrimitives(t *testing.T) {
	pkg := checkSource(t)
	sig := funcSig(t, pkg, "Prims")

	want := []value.ID{value.Bool, value.Char, value.Short, value.Int, value.Long,
		value.Long, value.Float, value.Double, value.String, value.Int}
	if len(sig.Params) != len(want) {
		t.Fatalf("got %d params, want %d", len(sig.Params), len(want))
	}
	for i, p := range sig.Params {
		if p.Type.Kind != want[i] {
			t.Errorf("param %s: kind %s, want %s", p.Name, p.Type.Kind, want[i])
		}
		if !p.Type.Supported() {
			t.Errorf("param %s unsupported: %s", p.Name, p.Type.Reason)
		}
	}
	if sig.Return != nil {
		t.Errorf("expected no return, got %v", sig.Return)
	}
	if got := sig.Params[5].Type.HostName(); got != "int" {
		t.Errorf("int host name = %q", got)
	}
}

func TestFromTypesComposites(t *testing.T) {
	pkg := checkSource(t)
	sig := funcSig(t, pkg, "Slices")

	tests := []struct {
		idx    int
		str    string
		ref    bool
		goName string
	}{
		{0, "Array<Int>", false, "[]int32"},
		{1, "Buffer", false, "[]byte"},
		{2, "&mut Array<Long>", true, "*[]int64"},
		{3, "Map<String, Double>", false, "map[string]float64"},
		{4, "&mut Map<Int, Bool>", true, "*map[int32]bool"},
	}
	for _, tt := range tests {
		p := sig.Params[tt.idx].Type
		if p.String() != tt.str {
			t.Errorf("param %d: %s, want %s", tt.idx, p.String(), tt.str)
		}
		if p.Reference != tt.ref || p.Mutable != tt.ref {
			t.Errorf("param %d: reference=%v mutable=%v", tt.idx, p.Reference, p.Mutable)
		}
		if p.Name != tt.goName {
			t.Errorf("param %d: name %q, want %q", tt.idx, p.Name, tt.goName)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("param %d: %v", tt.idx, err)
		}
	}
}

func TestFromTypesObjects(t *testing.T) {
	pkg := checkSource(t)
	sig := funcSig(t, pkg, "Objects")

	want := []struct {
		kind value.ID
		name string
	}{
		{value.Class, "Counter"},
		{value.Object, "*Counter"},
		{value.Double, "Celsius"},
		{value.Function, "func()"},
	}
	for i, w := range want {
		p := sig.Params[i].Type
		if p.Kind != w.kind || p.Name != w.name {
			t.Errorf("param %d: %s %q, want %s %q", i, p.Kind, p.Name, w.kind, w.name)
		}
	}
}

func TestFromTypesUnsupported(t *testing.T) {
	pkg := checkSource(t)
	sig := funcSig(t, pkg, "Bad")

	for _, p := range sig.Params {
		if p.Type.Supported() {
			t.Errorf("param %s (%s) should be unsupported", p.Name, p.Type.Name)
		}
	}
	if sig.Return == nil || sig.Return.Supported() {
		t.Fatal("multiple results should be unsupported")
	}
	if sig.Unsupported() == "" {
		t.Fatal("expected an unsupported reason")
	}
}

func TestValidate(t *testing.T) {
	bad := Type{Kind: value.Map, Generics: []Type{{Kind: value.String}}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for Map with one generic")
	}
	bad = Type{Kind: value.Int, Generics: []Type{{Kind: value.Int}}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for Int with generics")
	}
}

func TestFromFunc(t *testing.T) {
	f, err := FromFunc("sum", func(xs *[]int32) int64 { return 0 })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Params) != 1 || f.Params[0].Type.String() != "&mut Array<Int>" {
		t.Fatalf("unexpected params: %+v", f.Params)
	}
	if f.Return == nil || f.Return.Kind != value.Long {
		t.Fatalf("unexpected return: %+v", f.Return)
	}

	if _, err := FromFunc("x", 42); err == nil {
		t.Fatal("expected error for non-func")
	}
}

func TestFromReflectMatchesFromTypes(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		kind value.ID
	}{
		{reflect.TypeOf(int8(0)), value.Char},
		{reflect.TypeOf(0), value.Long},
		{reflect.TypeOf([]string{}), value.Array},
		{reflect.TypeOf(map[string]int32{}), value.Map},
		{reflect.TypeOf([]byte{}), value.Buffer},
	}
	for _, tt := range tests {
		if got := FromReflect(tt.typ).Kind; got != tt.kind {
			t.Errorf("%s: %s, want %s", tt.typ, got, tt.kind)
		}
	}
	if FromReflect(reflect.TypeOf(uint(0))).Supported() {
		t.Error("uint should be unsupported")
	}
}

func TestDescribe(t *testing.T) {
	ret := Type{Kind: value.String}
	s := Signature{
		Params: []Param{
			{Name: "a", Type: Type{Kind: value.Int}},
			{Name: "xs", Type: Type{Kind: value.Array, Reference: true, Generics: []Type{{Kind: value.Long}}}},
		},
		Return: &ret,
	}
	if got := s.Describe(); got != "(a int32, xs *[]int64) string" {
		t.Fatalf("Describe() = %q", got)
	}
	if got := (Signature{}).Describe(); got != "()" {
		t.Fatalf("Describe() = %q", got)
	}
}
