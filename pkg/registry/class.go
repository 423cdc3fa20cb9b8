package registry

import (
	"fmt"
	"reflect"
	"sort"
)

// Class is the type-erased descriptor of a native struct type: how to
// construct it and which attributes and methods the host may reach.
type Class struct {
	name  string
	typ   reflect.Type
	ctor  reflect.Value
	attrs map[string]*attribute
	meths map[string]*method

	statics map[string]reflect.Value
}

type attribute struct {
	typ reflect.Type
	get func(ptr reflect.Value) reflect.Value
	set func(ptr, v reflect.Value)
}

type method struct {
	fn       reflect.Value
	byValue  bool
	mutating bool
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Type returns the Go type the class describes.
func (c *Class) Type() reflect.Type { return c.typ }

// HasConstructor reports whether an explicit constructor was declared.
// Classes without one are constructed as the zero value.
func (c *Class) HasConstructor() bool { return c.ctor.IsValid() }

// ConstructorParams returns the parameter types of the constructor.
func (c *Class) ConstructorParams() []reflect.Type {
	if !c.ctor.IsValid() {
		return nil
	}
	return inTypes(c.ctor.Type(), 0)
}

// AttributeInfo describes one attribute.
type AttributeInfo struct {
	Name     string
	Type     reflect.Type
	Readable bool
	Writable bool
}

// Attributes returns the class attributes sorted by name.
func (c *Class) Attributes() []AttributeInfo {
	out := make([]AttributeInfo, 0, len(c.attrs))
	for name, a := range c.attrs {
		out = append(out, AttributeInfo{Name: name, Type: a.typ, Readable: a.get != nil, Writable: a.set != nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MethodInfo describes one instance or static method.
type MethodInfo struct {
	Name     string
	Params   []reflect.Type
	Result   reflect.Type
	Mutating bool
}

// Methods returns the instance methods sorted by name. Params exclude the
// receiver.
func (c *Class) Methods() []MethodInfo {
	out := make([]MethodInfo, 0, len(c.meths))
	for name, m := range c.meths {
		out = append(out, MethodInfo{
			Name:     name,
			Params:   inTypes(m.fn.Type(), 1),
			Result:   result(m.fn.Type()),
			Mutating: m.mutating,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StaticMethods returns the class methods sorted by name.
func (c *Class) StaticMethods() []MethodInfo {
	out := make([]MethodInfo, 0, len(c.statics))
	for name, fn := range c.statics {
		out = append(out, MethodInfo{Name: name, Params: inTypes(fn.Type(), 0), Result: result(fn.Type())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func inTypes(ft reflect.Type, skip int) []reflect.Type {
	var in []reflect.Type
	for i := skip; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	return in
}

func result(ft reflect.Type) reflect.Type {
	if ft.NumOut() == 0 {
		return nil
	}
	return ft.Out(0)
}

// ClassBuilder assembles a Class for T. Every func passed to it is checked
// against T when it is added; the first error is reported by Build.
type ClassBuilder[T any] struct {
	class *Class
	err   error
}

// NewClass starts a class descriptor for T, which must be a struct type.
func NewClass[T any](name string) *ClassBuilder[T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	b := &ClassBuilder[T]{class: &Class{
		name:    name,
		typ:     typ,
		attrs:   make(map[string]*attribute),
		meths:   make(map[string]*method),
		statics: make(map[string]reflect.Value),
	}}
	if typ.Kind() != reflect.Struct {
		b.err = fmt.Errorf("class %s: %s is not a struct", name, typ)
	}
	return b
}

func (b *ClassBuilder[T]) fail(format string, args ...any) *ClassBuilder[T] {
	if b.err == nil {
		b.err = fmt.Errorf("class %s: "+format, append([]any{b.class.name}, args...)...)
	}
	return b
}

func (b *ClassBuilder[T]) ptrType() reflect.Type {
	return reflect.PointerTo(b.class.typ)
}

// Constructor declares fn, a func(...) T or func(...) *T, as the
// constructor.
func (b *ClassBuilder[T]) Constructor(fn any) *ClassBuilder[T] {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return b.fail("constructor is %T, not a func", fn)
	}
	ft := fv.Type()
	if ft.NumOut() != 1 || (ft.Out(0) != b.class.typ && ft.Out(0) != b.ptrType()) {
		return b.fail("constructor must return %s", b.class.typ)
	}
	b.class.ctor = fv
	return b
}

// Field exposes the exported struct field name as a readable and writable
// attribute.
func (b *ClassBuilder[T]) Field(name string) *ClassBuilder[T] {
	sf, ok := b.class.typ.FieldByName(name)
	if !ok || !sf.IsExported() {
		return b.fail("no exported field %s", name)
	}
	idx := sf.Index
	b.class.attrs[name] = &attribute{
		typ: sf.Type,
		get: func(ptr reflect.Value) reflect.Value { return ptr.Elem().FieldByIndex(idx) },
		set: func(ptr, v reflect.Value) { ptr.Elem().FieldByIndex(idx).Set(v) },
	}
	return b
}

// Getter declares a read accessor: func(T) V or func(*T) V.
func (b *ClassBuilder[T]) Getter(name string, fn any) *ClassBuilder[T] {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumIn() != 1 || fv.Type().NumOut() != 1 {
		return b.fail("getter %s must be func(%s) V", name, b.class.typ)
	}
	byValue := fv.Type().In(0) == b.class.typ
	if !byValue && fv.Type().In(0) != b.ptrType() {
		return b.fail("getter %s has receiver %s", name, fv.Type().In(0))
	}
	a := b.attr(name, fv.Type().Out(0))
	if a == nil {
		return b
	}
	a.get = func(ptr reflect.Value) reflect.Value {
		if byValue {
			return fv.Call([]reflect.Value{ptr.Elem()})[0]
		}
		return fv.Call([]reflect.Value{ptr})[0]
	}
	return b
}

// Setter declares a write accessor: func(*T, V).
func (b *ClassBuilder[T]) Setter(name string, fn any) *ClassBuilder[T] {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumIn() != 2 || fv.Type().NumOut() != 0 || fv.Type().In(0) != b.ptrType() {
		return b.fail("setter %s must be func(*%s, V)", name, b.class.typ)
	}
	a := b.attr(name, fv.Type().In(1))
	if a == nil {
		return b
	}
	a.set = func(ptr, v reflect.Value) { fv.Call([]reflect.Value{ptr, v}) }
	return b
}

func (b *ClassBuilder[T]) attr(name string, typ reflect.Type) *attribute {
	a, ok := b.class.attrs[name]
	if !ok {
		a = &attribute{typ: typ}
		b.class.attrs[name] = a
	}
	if a.typ != typ {
		b.fail("attribute %s declared as %s and %s", name, a.typ, typ)
		return nil
	}
	return a
}

// Method declares a method that only reads the instance. fn takes T or *T
// as its first parameter, e.g. Counter.Doubled.
func (b *ClassBuilder[T]) Method(name string, fn any) *ClassBuilder[T] {
	return b.method(name, fn, false)
}

// MutMethod declares a method that modifies the instance. fn takes *T as
// its first parameter, e.g. (*Counter).Inc.
func (b *ClassBuilder[T]) MutMethod(name string, fn any) *ClassBuilder[T] {
	return b.method(name, fn, true)
}

func (b *ClassBuilder[T]) method(name string, fn any, mutating bool) *ClassBuilder[T] {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumIn() < 1 || fv.Type().NumOut() > 1 {
		return b.fail("method %s must be func(recv, ...) with at most one result", name)
	}
	recv := fv.Type().In(0)
	byValue := recv == b.class.typ
	if !byValue && recv != b.ptrType() {
		return b.fail("method %s has receiver %s", name, recv)
	}
	if mutating && byValue {
		return b.fail("mutating method %s needs a pointer receiver", name)
	}
	if _, dup := b.class.meths[name]; dup {
		return b.fail("duplicate method %s", name)
	}
	b.class.meths[name] = &method{fn: fv, byValue: byValue, mutating: mutating}
	return b
}

// ClassMethod declares a static method.
func (b *ClassBuilder[T]) ClassMethod(name string, fn any) *ClassBuilder[T] {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumOut() > 1 {
		return b.fail("class method %s must be a func with at most one result", name)
	}
	if _, dup := b.class.statics[name]; dup {
		return b.fail("duplicate class method %s", name)
	}
	b.class.statics[name] = fv
	return b
}

// Build returns the finished class.
func (b *ClassBuilder[T]) Build() (*Class, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.class, nil
}

// MustBuild is like Build but panics on error. It is meant for generated
// class descriptors, which are checked at generation time.
func (b *ClassBuilder[T]) MustBuild() *Class {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}
