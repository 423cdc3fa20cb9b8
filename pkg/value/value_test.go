package value

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	base := Live()

	for _, c := range []int8{0, -1, 1, math.MinInt8, math.MaxInt8} {
		v := CreateChar(c)
		if got := ToChar(v); got != c || TypeID(v) != Char {
			t.Errorf("char %d: got %d (%s)", c, got, TypeID(v))
		}
		v.Release()
	}
	for _, s := range []int16{0, -7, math.MinInt16, math.MaxInt16} {
		v := CreateShort(s)
		if got := ToShort(v); got != s {
			t.Errorf("short %d: got %d", s, got)
		}
		v.Release()
	}
	for _, i := range []int32{0, -11, math.MinInt32, math.MaxInt32} {
		v := CreateInt(i)
		if got := ToInt(v); got != i {
			t.Errorf("int %d: got %d", i, got)
		}
		v.Release()
	}
	for _, l := range []int64{0, -1 << 40, math.MinInt64, math.MaxInt64} {
		v := CreateLong(l)
		if got := ToLong(v); got != l {
			t.Errorf("long %d: got %d", l, got)
		}
		v.Release()
	}
	for _, f := range []float32{0, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		v := CreateFloat(f)
		if got := ToFloat(v); got != f {
			t.Errorf("float %g: got %g", f, got)
		}
		v.Release()
	}
	for _, d := range []float64{0, -2.25, math.MaxFloat64, math.Inf(-1)} {
		v := CreateDouble(d)
		if got := ToDouble(v); got != d {
			t.Errorf("double %g: got %g", d, got)
		}
		v.Release()
	}
	for _, b := range []bool{true, false} {
		v := CreateBool(b)
		if ToBool(v) != b {
			t.Errorf("bool %v mismatch", b)
		}
		v.Release()
	}
	for _, s := range []string{"", "hello", "héllo wörld ✓", "日本語"} {
		v := CreateString(s)
		if got := ToString(v); got != s {
			t.Errorf("string %q: got %q", s, got)
		}
		if TypeCount(v) != len(s) {
			t.Errorf("string %q: count %d, want %d", s, TypeCount(v), len(s))
		}
		v.Release()
	}

	if Live() != base {
		t.Fatalf("leaked values: %d", Live()-base)
	}
}

func TestDoubleNaN(t *testing.T) {
	v := CreateDouble(math.NaN())
	defer v.Release()
	if !math.IsNaN(ToDouble(v)) {
		t.Fatal("expected NaN")
	}
}

func TestArrayRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 150} {
		in := make([]int32, n)
		for i := range in {
			in[i] = int32(i*3 - 7)
		}

		elems := make([]*Value, n)
		for i, x := range in {
			elems[i] = CreateInt(x)
		}
		arr := CreateArray(elems)

		if TypeCount(arr) != n {
			t.Fatalf("n=%d: count %d", n, TypeCount(arr))
		}
		out := ToArray(arr)
		for i := range in {
			if got := ToInt(out[i]); got != in[i] {
				t.Fatalf("n=%d: element %d = %d, want %d", n, i, got, in[i])
			}
		}
		arr.Release()
	}
}

func TestMapRoundTrip(t *testing.T) {
	want := map[string]float64{"a": 1.5, "b": -2, "": 0}

	var pairs []*Value
	for k, v := range want {
		pairs = append(pairs, Pair(CreateString(k), CreateDouble(v)))
	}
	m := CreateMap(pairs)
	defer m.Release()

	if TypeCount(m) != len(want) {
		t.Fatalf("count = %d, want %d", TypeCount(m), len(want))
	}
	got := make(map[string]float64)
	for _, p := range ToMap(m) {
		kv := ToArray(p)
		got[ToString(kv[0])] = ToDouble(kv[1])
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCreateMapRejectsBadPair(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for 3-element pair")
		}
	}()
	CreateMap([]*Value{CreateArray([]*Value{CreateInt(1), CreateInt(2), CreateInt(3)})})
}

func TestOwnership(t *testing.T) {
	base := Live()

	child := CreateLong(5)
	arr := CreateArray([]*Value{child})
	child.Retain()

	arr.Release()
	if child.Destroyed() {
		t.Fatal("retained child destroyed with its parent")
	}
	if ToLong(child) != 5 {
		t.Fatal("child value corrupted")
	}
	child.Release()
	if !child.Destroyed() {
		t.Fatal("child should be destroyed after last release")
	}
	if Live() != base {
		t.Fatalf("leaked values: %d", Live()-base)
	}
}

type destroyCounter struct{ n int }

func (d *destroyCounter) Destroy() { d.n++ }

func TestDestroyHook(t *testing.T) {
	d := &destroyCounter{}
	v := CreateFunction(d)
	if ToFunction(v) != d {
		t.Fatal("payload mismatch")
	}
	v.Release()
	if d.n != 1 {
		t.Fatalf("destroy called %d times, want 1", d.n)
	}
}

func TestKindMismatchPanics(t *testing.T) {
	v := CreateInt(1)
	defer v.Release()

	defer func() {
		r := recover()
		ke, ok := r.(*KindError)
		if !ok {
			t.Fatalf("expected *KindError, got %v", r)
		}
		if ke.Want != Long || ke.Got != Int {
			t.Fatalf("unexpected error: %v", ke)
		}
	}()
	ToLong(v)
}

func TestUseAfterDestroyPanics(t *testing.T) {
	v := CreateString("x")
	v.Release()

	tests := []struct {
		name string
		fn   func()
	}{
		{"convert", func() { ToString(v) }},
		{"release", func() { v.Release() }},
		{"retain", func() { v.Retain() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestParseID(t *testing.T) {
	for i := 0; i < IDCount; i++ {
		id := ID(i)
		got, ok := ParseID(id.String())
		if !ok || got != id {
			t.Errorf("ParseID(%q) = %v, %v", id.String(), got, ok)
		}
	}
	if Object != 16 || Bool != 0 || Null != 14 {
		t.Fatal("protocol tag numbering changed")
	}
	if _, ok := ParseID("Nope"); ok {
		t.Fatal("unexpected match")
	}
}

func TestFromNativeToNative(t *testing.T) {
	tests := []struct {
		name string
		in   any
		id   ID
	}{
		{"int8", int8(-3), Char},
		{"int16", int16(300), Short},
		{"int32", int32(70000), Int},
		{"int", 42, Long},
		{"float32", float32(1.5), Float},
		{"float64", 2.5, Double},
		{"string", "hi", String},
		{"bytes", []byte{1, 2}, Buffer},
		{"slice", []int32{1, 2, 3}, Array},
		{"map", map[string]int64{"a": 1, "b": 2}, Map},
		{"nested", [][]string{{"a"}, {}}, Array},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromNative(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer v.Release()
			if v.ID() != tt.id {
				t.Fatalf("id = %s, want %s", v.ID(), tt.id)
			}
			out, err := ToNative(v, reflect.TypeOf(tt.in))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(out.Interface(), tt.in) {
				t.Fatalf("got %#v, want %#v", out.Interface(), tt.in)
			}
		})
	}
}

func TestToNativeWidening(t *testing.T) {
	v := CreateInt(21)
	defer v.Release()

	out, err := ToNative(v, reflect.TypeOf(int64(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int() != 21 {
		t.Fatalf("got %d", out.Int())
	}

	big := CreateLong(1 << 20)
	defer big.Release()
	if _, err := ToNative(big, reflect.TypeOf(int8(0))); err == nil {
		t.Fatal("expected overflow error")
	}

	s := CreateString("x")
	defer s.Release()
	if _, err := ToNative(s, reflect.TypeOf(0)); err == nil {
		t.Fatal("expected conversion error")
	}
}

func TestFromNativeUnsupported(t *testing.T) {
	_, err := FromNative(make(chan int))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	_, err = FromNative(uint32(1))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for unsigned, got %v", err)
	}
}

func TestGenericHelpers(t *testing.T) {
	base := Live()

	arr := FromSlice([]int64{1, 2, 3}, CreateLong)
	if got := SliceOf(arr, ToLong); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Fatalf("SliceOf = %v", got)
	}
	arr.Release()

	m := FromMap(map[string]int32{"a": 1, "b": 2}, CreateString, CreateInt)
	got := MapOf(m, ToString, ToInt)
	if !reflect.DeepEqual(got, map[string]int32{"a": 1, "b": 2}) {
		t.Fatalf("MapOf = %v", got)
	}
	m.Release()

	nested := FromSlice([][]int32{{1}, {2, 3}}, func(xs []int32) *Value { return FromSlice(xs, CreateInt) })
	back := SliceOf(nested, func(v *Value) []int32 { return SliceOf(v, ToInt) })
	if !reflect.DeepEqual(back, [][]int32{{1}, {2, 3}}) {
		t.Fatalf("nested = %v", back)
	}
	nested.Release()

	if Live() != base {
		t.Fatalf("leaked values: %d", Live()-base)
	}
}
