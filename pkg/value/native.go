package value

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"unsafe"
)

// ErrUnsupported is returned by the reflection helpers for Go types outside
// the protocol's closed set.
var ErrUnsupported = errors.New("unsupported type")

var (
	valuePtrType      = reflect.TypeOf((*Value)(nil))
	unsafePointerType = reflect.TypeOf(unsafe.Pointer(nil))
)

// FromNative converts a Go value to a host value using the same mapping as
// the generated trampolines: int8 is Char, int16 Short, int32 Int, int and
// int64 Long, float32 Float, float64 Double, []byte Buffer, other slices
// Array and maps Map. Pointers, structs and funcs become Object payloads.
func FromNative(x any) (*Value, error) {
	if x == nil {
		return CreateNull(), nil
	}
	if v, ok := x.(*Value); ok {
		return v.Retain(), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromReflect(rv reflect.Value) (*Value, error) {
	if !rv.IsValid() {
		return CreateNull(), nil
	}
	if rv.Type() == valuePtrType {
		if rv.IsNil() {
			return CreateNull(), nil
		}
		return rv.Interface().(*Value).Retain(), nil
	}
	if rv.Type() == unsafePointerType {
		return CreatePointer(rv.Interface().(unsafe.Pointer)), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return CreateBool(rv.Bool()), nil
	case reflect.Int8:
		return CreateChar(int8(rv.Int())), nil
	case reflect.Int16:
		return CreateShort(int16(rv.Int())), nil
	case reflect.Int32:
		return CreateInt(int32(rv.Int())), nil
	case reflect.Int, reflect.Int64:
		return CreateLong(rv.Int()), nil
	case reflect.Float32:
		return CreateFloat(float32(rv.Float())), nil
	case reflect.Float64:
		return CreateDouble(rv.Float()), nil
	case reflect.String:
		return CreateString(rv.String()), nil
	case reflect.Interface:
		if rv.IsNil() {
			return CreateNull(), nil
		}
		return fromReflect(rv.Elem())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return CreateBuffer(rv.Bytes()), nil
		}
		return sliceToArray(rv)
	case reflect.Map:
		return mapToMap(rv)
	case reflect.Func:
		return CreateFunction(rv.Interface()), nil
	case reflect.Ptr:
		if rv.IsNil() {
			return CreateNull(), nil
		}
		return CreateObject(rv.Interface()), nil
	case reflect.Struct:
		return CreateObject(rv.Interface()), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
}

func sliceToArray(rv reflect.Value) (*Value, error) {
	elems := make([]*Value, rv.Len())
	for i := range elems {
		el, err := fromReflect(rv.Index(i))
		if err != nil {
			releaseAll(elems[:i])
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = el
	}
	return CreateArray(elems), nil
}

func mapToMap(rv reflect.Value) (*Value, error) {
	keys := rv.MapKeys()
	// Stable order keeps results reproducible; map semantics do not depend on it.
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	pairs := make([]*Value, 0, len(keys))
	for _, k := range keys {
		kv, err := fromReflect(k)
		if err != nil {
			releaseAll(pairs)
			return nil, fmt.Errorf("map key: %w", err)
		}
		vv, err := fromReflect(rv.MapIndex(k))
		if err != nil {
			kv.Release()
			releaseAll(pairs)
			return nil, fmt.Errorf("map value: %w", err)
		}
		pairs = append(pairs, Pair(kv, vv))
	}
	return CreateMap(pairs), nil
}

func releaseAll(vs []*Value) {
	for _, v := range vs {
		if v != nil {
			v.Release()
		}
	}
}

// ToNative converts v to a Go value of type t. Integer tags convert to any
// signed integer type they fit in and to floats; Float and Double convert
// to either float type. Arrays and maps are converted element-wise. A nil t
// or an interface type yields the natural Go value of the tag.
func ToNative(v *Value, t reflect.Type) (reflect.Value, error) {
	v.mustLive()
	if t == nil || (t.Kind() == reflect.Interface && t.NumMethod() == 0) {
		nat := natural(v)
		if t == nil {
			if nat == nil {
				return reflect.Value{}, nil
			}
			return reflect.ValueOf(nat), nil
		}
		out := reflect.New(t).Elem()
		if nat != nil {
			out.Set(reflect.ValueOf(nat))
		}
		return out, nil
	}
	if t == valuePtrType {
		return reflect.ValueOf(v), nil
	}

	switch v.id {
	case Null:
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Interface:
			return reflect.Zero(t), nil
		}
	case Bool:
		if t.Kind() == reflect.Bool {
			return reflect.ValueOf(v.data.(bool)).Convert(t), nil
		}
	case Char, Short, Int, Long:
		n := integerOf(v)
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out := reflect.New(t).Elem()
			if out.OverflowInt(n) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetInt(n)
			return out, nil
		case reflect.Float32, reflect.Float64:
			out := reflect.New(t).Elem()
			out.SetFloat(float64(n))
			return out, nil
		}
	case Float, Double:
		f := floatOf(v)
		switch t.Kind() {
		case reflect.Float32, reflect.Float64:
			out := reflect.New(t).Elem()
			if t.Kind() == reflect.Float32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return reflect.Value{}, fmt.Errorf("%g overflows %s", f, t)
			}
			out.SetFloat(f)
			return out, nil
		}
	case String:
		if t.Kind() == reflect.String {
			return reflect.ValueOf(v.data.(string)).Convert(t), nil
		}
	case Buffer:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			b := v.data.([]byte)
			out := reflect.MakeSlice(t, len(b), len(b))
			reflect.Copy(out, reflect.ValueOf(b))
			return out, nil
		}
	case Array:
		if t.Kind() == reflect.Slice {
			return arrayToSlice(v, t)
		}
	case Map:
		if t.Kind() == reflect.Map {
			return mapToGoMap(v, t)
		}
	case Pointer:
		if t == unsafePointerType {
			return reflect.ValueOf(v.data.(unsafe.Pointer)), nil
		}
	case Function, Class, Object:
		if v.data != nil {
			rv := reflect.ValueOf(v.data)
			if rv.Type().AssignableTo(t) {
				out := reflect.New(t).Elem()
				out.Set(rv)
				return out, nil
			}
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", v.id, t)
}

func arrayToSlice(v *Value, t reflect.Type) (reflect.Value, error) {
	elems := v.data.([]*Value)
	out := reflect.MakeSlice(t, len(elems), len(elems))
	for i, el := range elems {
		ev, err := ToNative(el, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

func mapToGoMap(v *Value, t reflect.Type) (reflect.Value, error) {
	pairs := v.data.([]*Value)
	out := reflect.MakeMapWithSize(t, len(pairs))
	for i, p := range pairs {
		kv := ToArray(p)
		k, err := ToNative(kv[0], t.Key())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("pair %d key: %w", i, err)
		}
		val, err := ToNative(kv[1], t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("pair %d value: %w", i, err)
		}
		out.SetMapIndex(k, val)
	}
	return out, nil
}

func integerOf(v *Value) int64 {
	switch d := v.data.(type) {
	case int8:
		return int64(d)
	case int16:
		return int64(d)
	case int32:
		return int64(d)
	case int64:
		return d
	}
	return 0
}

func floatOf(v *Value) float64 {
	switch d := v.data.(type) {
	case float32:
		return float64(d)
	case float64:
		return d
	}
	return 0
}

// natural returns the Go value a tag decodes to without a target type.
func natural(v *Value) any {
	switch v.id {
	case Array:
		elems := v.data.([]*Value)
		out := make([]any, len(elems))
		for i, el := range elems {
			out[i] = natural(el)
		}
		return out
	case Map:
		pairs := v.data.([]*Value)
		out := make(map[any]any, len(pairs))
		for _, p := range pairs {
			kv := ToArray(p)
			out[natural(kv[0])] = natural(kv[1])
		}
		return out
	case Buffer:
		b := v.data.([]byte)
		return append([]byte(nil), b...)
	case Null:
		return nil
	}
	return v.data
}
