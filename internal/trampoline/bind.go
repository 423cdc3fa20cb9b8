package trampoline

import (
	"fmt"
	"reflect"

	"github.com/funvibe/gobridge/internal/boundary"
	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/pkg/value"
)

type decoder func(*value.Value) reflect.Value

type encoder func(reflect.Value) *value.Value

// Bind adapts impl, a Go func described by fn, to the canonical calling
// convention without generating code. Conversions are the ones the
// generated trampolines perform: converters are strict about tags, and
// reference parameters are retained for the duration of the call.
func Bind(fn signature.Function, impl any) (value.Trampoline, error) {
	if err := Check(fn); err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(impl)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: expected func, got %T", fn.Name, impl)
	}
	if fn.Canonical {
		return boundary.Cast[value.Trampoline](impl, fn.Name)
	}
	ft := rv.Type()
	if ft.NumIn() != len(fn.Params) {
		return nil, fmt.Errorf("%s: func takes %d arguments, signature has %d", fn.Name, ft.NumIn(), len(fn.Params))
	}
	if (ft.NumOut() == 1) != (fn.Return != nil) || ft.NumOut() > 1 {
		return nil, fmt.Errorf("%s: func result count does not match signature", fn.Name)
	}

	decs := make([]decoder, len(fn.Params))
	refs := make([]bool, len(fn.Params))
	for i, p := range fn.Params {
		in := ft.In(i)
		if p.Type.Reference {
			if in.Kind() != reflect.Ptr {
				return nil, fmt.Errorf("%s: parameter %s is a reference but %s is not a pointer", fn.Name, p.Name, in)
			}
			in = in.Elem()
			refs[i] = true
		}
		dec, err := decoderFor(p.Type, in)
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %s: %w", fn.Name, p.Name, err)
		}
		decs[i] = dec
	}

	var enc encoder
	if fn.Return != nil {
		var err error
		if enc, err = encoderFor(*fn.Return, ft.Out(0)); err != nil {
			return nil, fmt.Errorf("%s: return: %w", fn.Name, err)
		}
	}

	name := fn.Name
	return func(args []*value.Value, count int) *value.Value {
		if count != len(decs) || len(args) < len(decs) {
			panic(fmt.Sprintf("%s: expected %d arguments, got %d", name, len(decs), count))
		}
		in := make([]reflect.Value, len(decs))
		for i, dec := range decs {
			if refs[i] {
				value.Retain(args[i])
				defer value.Release(args[i])
				ptr := reflect.New(ft.In(i).Elem())
				ptr.Elem().Set(dec(args[i]))
				in[i] = ptr
				continue
			}
			in[i] = dec(args[i])
		}
		out := rv.Call(in)
		if enc == nil {
			return value.CreateNull()
		}
		return enc(out[0])
	}, nil
}

func decoderFor(t signature.Type, rt reflect.Type) (decoder, error) {
	if want := kindOf(rt); want != t.Kind {
		return nil, fmt.Errorf("%s does not marshal as %s", rt, t.Kind)
	}
	switch t.Kind {
	case value.Bool:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToBool(v)).Convert(rt) }, nil
	case value.Char:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToChar(v)).Convert(rt) }, nil
	case value.Short:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToShort(v)).Convert(rt) }, nil
	case value.Int:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToInt(v)).Convert(rt) }, nil
	case value.Long:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToLong(v)).Convert(rt) }, nil
	case value.Float:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToFloat(v)).Convert(rt) }, nil
	case value.Double:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToDouble(v)).Convert(rt) }, nil
	case value.String:
		return func(v *value.Value) reflect.Value { return reflect.ValueOf(value.ToString(v)).Convert(rt) }, nil
	case value.Array:
		elem, err := decoderFor(t.Generics[0], rt.Elem())
		if err != nil {
			return nil, err
		}
		return func(v *value.Value) reflect.Value {
			out := reflect.MakeSlice(rt, 0, value.TypeCount(v))
			for _, el := range value.ToArray(v) {
				out = reflect.Append(out, elem(el))
			}
			return out
		}, nil
	case value.Map:
		kd, err := decoderFor(t.Generics[0], rt.Key())
		if err != nil {
			return nil, err
		}
		vd, err := decoderFor(t.Generics[1], rt.Elem())
		if err != nil {
			return nil, err
		}
		return func(v *value.Value) reflect.Value {
			out := reflect.MakeMapWithSize(rt, value.TypeCount(v))
			for _, p := range value.ToMap(v) {
				kv := value.ToArray(p)
				out.SetMapIndex(kd(kv[0]), vd(kv[1]))
			}
			return out
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t.Kind)
}

func encoderFor(t signature.Type, rt reflect.Type) (encoder, error) {
	if want := kindOf(rt); want != t.Kind && !(t.Kind == value.Buffer && rt.Kind() == reflect.Slice) {
		return nil, fmt.Errorf("%s does not marshal as %s", rt, t.Kind)
	}
	switch t.Kind {
	case value.Bool:
		return func(x reflect.Value) *value.Value { return value.CreateBool(x.Bool()) }, nil
	case value.Char:
		return func(x reflect.Value) *value.Value { return value.CreateChar(int8(x.Int())) }, nil
	case value.Short:
		return func(x reflect.Value) *value.Value { return value.CreateShort(int16(x.Int())) }, nil
	case value.Int:
		return func(x reflect.Value) *value.Value { return value.CreateInt(int32(x.Int())) }, nil
	case value.Long:
		return func(x reflect.Value) *value.Value { return value.CreateLong(x.Int()) }, nil
	case value.Float:
		return func(x reflect.Value) *value.Value { return value.CreateFloat(float32(x.Float())) }, nil
	case value.Double:
		return func(x reflect.Value) *value.Value { return value.CreateDouble(x.Float()) }, nil
	case value.String:
		return func(x reflect.Value) *value.Value { return value.CreateString(x.String()) }, nil
	case value.Buffer:
		return func(x reflect.Value) *value.Value { return value.CreateBuffer(x.Bytes()) }, nil
	case value.Array:
		elem, err := encoderFor(t.Generics[0], rt.Elem())
		if err != nil {
			return nil, err
		}
		return func(x reflect.Value) *value.Value {
			elems := make([]*value.Value, x.Len())
			for i := range elems {
				elems[i] = elem(x.Index(i))
			}
			return value.CreateArray(elems)
		}, nil
	case value.Map:
		ke, err := encoderFor(t.Generics[0], rt.Key())
		if err != nil {
			return nil, err
		}
		ve, err := encoderFor(t.Generics[1], rt.Elem())
		if err != nil {
			return nil, err
		}
		return func(x reflect.Value) *value.Value {
			pairs := make([]*value.Value, 0, x.Len())
			iter := x.MapRange()
			for iter.Next() {
				pairs = append(pairs, value.Pair(ke(iter.Key()), ve(iter.Value())))
			}
			return value.CreateMap(pairs)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t.Kind)
}

func kindOf(rt reflect.Type) value.ID {
	return signature.FromReflect(rt).Kind
}
