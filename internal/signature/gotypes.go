package signature

import (
	"fmt"
	"go/types"

	"github.com/funvibe/gobridge/pkg/value"
)

// FromTypes maps a go/types type to its descriptor. qual controls how named
// types from other packages are spelled in Type.Name.
func FromTypes(t types.Type, qual types.Qualifier) Type {
	name := types.TypeString(t, qual)

	switch t := t.(type) {
	case *types.Basic:
		return basicType(t, name)

	case *types.Alias:
		return withName(FromTypes(types.Unalias(t), qual), name)

	case *types.Named:
		if pkg := t.Obj().Pkg(); pkg != nil && qual != nil && qual(pkg) != "" {
			return unsupported(name, "declared in package "+pkg.Path())
		}
		switch u := t.Underlying().(type) {
		case *types.Struct:
			return Type{Kind: value.Class, Name: name}
		case *types.Basic:
			return withName(basicType(u, u.Name()), name)
		case *types.Interface:
			return unsupported(name, "interface types are not marshalled")
		}
		return unsupported(name, "named composite types are not marshalled")

	case *types.Pointer:
		switch elem := t.Elem().(type) {
		case *types.Slice, *types.Map:
			inner := FromTypes(elem, qual)
			inner.Name = name
			inner.Reference = true
			inner.Mutable = true
			return inner
		case *types.Named:
			if _, ok := elem.Underlying().(*types.Struct); ok {
				return Type{Kind: value.Object, Name: name}
			}
		}
		return unsupported(name, "pointer to "+t.Elem().String())

	case *types.Slice:
		if b, ok := t.Elem().(*types.Basic); ok && b.Kind() == types.Byte {
			return Type{Kind: value.Buffer, Name: name}
		}
		elem := FromTypes(t.Elem(), qual)
		return Type{Kind: value.Array, Name: name, Generics: []Type{elem}}

	case *types.Map:
		key := FromTypes(t.Key(), qual)
		val := FromTypes(t.Elem(), qual)
		return Type{Kind: value.Map, Name: name, Generics: []Type{key, val}}

	case *types.Signature:
		return Type{Kind: value.Function, Name: name}
	}

	return unsupported(name, fmt.Sprintf("%T is not marshalled", t))
}

func basicType(t *types.Basic, name string) Type {
	switch t.Kind() {
	case types.Bool:
		return Type{Kind: value.Bool, Name: name}
	case types.Int8:
		return Type{Kind: value.Char, Name: name}
	case types.Int16:
		return Type{Kind: value.Short, Name: name}
	case types.Int32:
		return Type{Kind: value.Int, Name: name}
	case types.Int, types.Int64:
		return Type{Kind: value.Long, Name: name}
	case types.Float32:
		return Type{Kind: value.Float, Name: name}
	case types.Float64:
		return Type{Kind: value.Double, Name: name}
	case types.String:
		return Type{Kind: value.String, Name: name}
	case types.UnsafePointer:
		return Type{Kind: value.Pointer, Name: name}
	}
	return unsupported(name, "basic type "+t.Name()+" has no protocol tag")
}

func withName(t Type, name string) Type {
	t.Name = name
	return t
}

func unsupported(name, why string) Type {
	return Type{Kind: value.Null, Name: name, Reason: why}
}

// FromTypesSignature converts a function signature. Functions with more
// than one result, or variadic parameters, are reported through the Reason
// of a synthetic return type.
func FromTypesSignature(sig *types.Signature, qual types.Qualifier) Signature {
	var s Signature
	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		name := p.Name()
		if name == "" || name == "_" {
			name = fmt.Sprintf("arg%d", i)
		}
		pt := FromTypes(p.Type(), qual)
		if sig.Variadic() && i == params.Len()-1 {
			pt.Reason = "variadic parameters are not marshalled"
		}
		s.Params = append(s.Params, Param{Name: name, Type: pt})
	}

	switch sig.Results().Len() {
	case 0:
	case 1:
		rt := FromTypes(sig.Results().At(0).Type(), qual)
		s.Return = &rt
	default:
		s.Return = &Type{Kind: value.Null, Name: sig.Results().String(), Reason: "multiple results are not marshalled"}
	}
	return s
}
