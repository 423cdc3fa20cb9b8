package signature

import (
	"fmt"
	"reflect"

	"github.com/funvibe/gobridge/pkg/value"
)

// FromReflect maps a runtime type to its descriptor, following the same
// rules as FromTypes.
func FromReflect(t reflect.Type) Type {
	name := t.String()

	switch t.Kind() {
	case reflect.Bool:
		return Type{Kind: value.Bool, Name: name}
	case reflect.Int8:
		return Type{Kind: value.Char, Name: name}
	case reflect.Int16:
		return Type{Kind: value.Short, Name: name}
	case reflect.Int32:
		return Type{Kind: value.Int, Name: name}
	case reflect.Int, reflect.Int64:
		return Type{Kind: value.Long, Name: name}
	case reflect.Float32:
		return Type{Kind: value.Float, Name: name}
	case reflect.Float64:
		return Type{Kind: value.Double, Name: name}
	case reflect.String:
		return Type{Kind: value.String, Name: name}
	case reflect.UnsafePointer:
		return Type{Kind: value.Pointer, Name: name}
	case reflect.Func:
		return Type{Kind: value.Function, Name: name}
	case reflect.Struct:
		return Type{Kind: value.Class, Name: name}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Type{Kind: value.Buffer, Name: name}
		}
		return Type{Kind: value.Array, Name: name, Generics: []Type{FromReflect(t.Elem())}}
	case reflect.Map:
		return Type{Kind: value.Map, Name: name, Generics: []Type{FromReflect(t.Key()), FromReflect(t.Elem())}}
	case reflect.Ptr:
		switch t.Elem().Kind() {
		case reflect.Slice, reflect.Map:
			inner := FromReflect(t.Elem())
			inner.Name = name
			inner.Reference = true
			inner.Mutable = true
			return inner
		case reflect.Struct:
			return Type{Kind: value.Object, Name: name}
		}
	}
	return unsupported(name, fmt.Sprintf("%s has no protocol tag", t.Kind()))
}

// FromFunc builds a Function descriptor from a Go func value.
func FromFunc(name string, fn any) (Function, error) {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func {
		return Function{}, fmt.Errorf("%s: expected func, got %T", name, fn)
	}
	f := Function{Name: name}
	for i := 0; i < ft.NumIn(); i++ {
		pt := FromReflect(ft.In(i))
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			pt.Reason = "variadic parameters are not marshalled"
		}
		f.Params = append(f.Params, Param{Name: fmt.Sprintf("arg%d", i), Type: pt})
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		rt := FromReflect(ft.Out(0))
		f.Return = &rt
	default:
		f.Return = &Type{Kind: value.Null, Name: ft.String(), Reason: "multiple results are not marshalled"}
	}
	return f, nil
}
