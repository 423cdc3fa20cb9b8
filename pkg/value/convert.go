package value

import "unsafe"

func CreateBool(b bool) *Value { return newValue(Bool, b) }

func ToBool(v *Value) bool {
	v.expect(Bool)
	return v.data.(bool)
}

func CreateChar(c int8) *Value { return newValue(Char, c) }

func ToChar(v *Value) int8 {
	v.expect(Char)
	return v.data.(int8)
}

func CreateShort(s int16) *Value { return newValue(Short, s) }

func ToShort(v *Value) int16 {
	v.expect(Short)
	return v.data.(int16)
}

func CreateInt(i int32) *Value { return newValue(Int, i) }

func ToInt(v *Value) int32 {
	v.expect(Int)
	return v.data.(int32)
}

func CreateLong(l int64) *Value { return newValue(Long, l) }

func ToLong(v *Value) int64 {
	v.expect(Long)
	return v.data.(int64)
}

func CreateFloat(f float32) *Value { return newValue(Float, f) }

func ToFloat(v *Value) float32 {
	v.expect(Float)
	return v.data.(float32)
}

func CreateDouble(d float64) *Value { return newValue(Double, d) }

func ToDouble(v *Value) float64 {
	v.expect(Double)
	return v.data.(float64)
}

func CreateString(s string) *Value { return newValue(String, s) }

func ToString(v *Value) string {
	v.expect(String)
	return v.data.(string)
}

// CreateBuffer copies b into a new buffer value.
func CreateBuffer(b []byte) *Value {
	buf := make([]byte, len(b))
	copy(buf, b)
	return newValue(Buffer, buf)
}

// ToBuffer returns the bytes held by v. The slice aliases the value and is
// only valid while v is alive.
func ToBuffer(v *Value) []byte {
	v.expect(Buffer)
	return v.data.([]byte)
}

// CreateArray builds an array that takes ownership of elems.
func CreateArray(elems []*Value) *Value {
	owned := make([]*Value, len(elems))
	copy(owned, elems)
	return newValue(Array, owned)
}

// ToArray returns the elements of v. The elements stay owned by v.
func ToArray(v *Value) []*Value {
	v.expect(Array)
	return v.data.([]*Value)
}

// Pair builds the 2-element array used as a map entry, taking ownership of
// key and val.
func Pair(key, val *Value) *Value {
	return CreateArray([]*Value{key, val})
}

// CreateMap builds a map from pair values (see Pair) and takes ownership of
// them.
func CreateMap(pairs []*Value) *Value {
	for _, p := range pairs {
		p.expect(Array)
		if TypeCount(p) != 2 {
			panic("value: map entry must be a 2-element array")
		}
	}
	owned := make([]*Value, len(pairs))
	copy(owned, pairs)
	return newValue(Map, owned)
}

// ToMap returns the pair values of v. Decode each pair with ToArray.
func ToMap(v *Value) []*Value {
	v.expect(Map)
	return v.data.([]*Value)
}

func CreatePointer(p unsafe.Pointer) *Value { return newValue(Pointer, p) }

func ToPointer(v *Value) unsafe.Pointer {
	v.expect(Pointer)
	return v.data.(unsafe.Pointer)
}

func CreateNull() *Value { return newValue(Null, nil) }

// IsNull reports whether v is the Null value.
func IsNull(v *Value) bool {
	v.mustLive()
	return v.id == Null
}

// CreateFunction wraps a host function. If f implements Destroyer it is
// destroyed together with the value.
func CreateFunction(f any) *Value { return newValue(Function, f) }

func ToFunction(v *Value) any {
	v.expect(Function)
	return v.data
}

func CreateClass(c any) *Value { return newValue(Class, c) }

func ToClass(v *Value) any {
	v.expect(Class)
	return v.data
}

func CreateObject(o any) *Value { return newValue(Object, o) }

func ToObject(v *Value) any {
	v.expect(Object)
	return v.data
}
