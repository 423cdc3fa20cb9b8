package value

// SliceOf decodes an array value into a slice, converting each element
// with conv. The array stays owned by the caller.
func SliceOf[E any](v *Value, conv func(*Value) E) []E {
	elems := ToArray(v)
	out := make([]E, 0, TypeCount(v))
	for _, el := range elems {
		out = append(out, conv(el))
	}
	return out
}

// MapOf decodes a map value. Each pair is decoded with ToArray; element 0
// goes through kconv and element 1 through vconv.
func MapOf[K comparable, V any](v *Value, kconv func(*Value) K, vconv func(*Value) V) map[K]V {
	pairs := ToMap(v)
	out := make(map[K]V, TypeCount(v))
	for _, p := range pairs {
		kv := ToArray(p)
		out[kconv(kv[0])] = vconv(kv[1])
	}
	return out
}

// FromSlice encodes xs as an array value owned by the caller.
func FromSlice[E any](xs []E, conv func(E) *Value) *Value {
	elems := make([]*Value, len(xs))
	for i, x := range xs {
		elems[i] = conv(x)
	}
	return CreateArray(elems)
}

// FromMap encodes m as a map value owned by the caller.
func FromMap[K comparable, V any](m map[K]V, kconv func(K) *Value, vconv func(V) *Value) *Value {
	pairs := make([]*Value, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair(kconv(k), vconv(v)))
	}
	return CreateMap(pairs)
}
