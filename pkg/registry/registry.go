// Package registry is the type-erased store behind class and object
// callbacks. It maps class names to descriptors, Go types to class names,
// and host-assigned ids to live instances, and performs attribute access
// and method dispatch on instances by name.
//
// Registry methods lock only around map access; user code (constructors,
// accessors, methods) runs without the registry lock held, under the
// instance's own borrow.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/funvibe/gobridge/pkg/value"
)

var (
	ErrClassNotFound     = errors.New("class not found")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrMethodNotFound    = errors.New("method not found")
	ErrInstanceNotFound  = errors.New("instance not found")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrArgCount          = errors.New("wrong number of arguments")
)

// Registry holds classes and live instances for one loader context.
type Registry struct {
	mu        sync.Mutex
	classes   map[string]*Class
	byType    map[reflect.Type]string
	instances map[string]*Instance
	classOf   map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		classes:   make(map[string]*Class),
		byType:    make(map[reflect.Type]string),
		instances: make(map[string]*Instance),
		classOf:   make(map[string]string),
	}
}

// CacheClass records c under name and returns the name the class is
// registered as. Caching the same Go type again returns the first name. A
// name already bound to another Go type is refused with ErrTypeMismatch.
func (r *Registry) CacheClass(c *Class, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byType[c.typ]; ok {
		return prev, nil
	}
	if other, ok := r.classes[name]; ok {
		return "", fmt.Errorf("%w: class %s is bound to %s, not %s", ErrTypeMismatch, name, other.typ, c.typ)
	}
	r.classes[name] = c
	r.byType[c.typ] = name
	return name, nil
}

// Class returns the class registered under name.
func (r *Registry) Class(name string) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[name]
	return c, ok
}

// ClassFor returns the class name registered for the Go type t.
func (r *Registry) ClassFor(t reflect.Type) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byType[t]
	return name, ok
}

// ClassNames returns every registered class name, sorted.
func (r *Registry) ClassNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.classes))
	for n := range r.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MakeInstance constructs a value of class className from args and stores
// it under id. Classes without a constructor accept no arguments and start
// from the zero value. Reusing a live id is a logic error and panics.
func (r *Registry) MakeInstance(className, id string, args []*value.Value) (*Instance, error) {
	c, ok := r.Class(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, className)
	}

	var ptr reflect.Value
	if c.ctor.IsValid() {
		out, err := call(c.ctor, nil, args)
		if err != nil {
			return nil, fmt.Errorf("%s constructor: %w", className, err)
		}
		ptr = out
		if ptr.Kind() != reflect.Ptr {
			p := reflect.New(c.typ)
			p.Elem().Set(ptr)
			ptr = p
		}
	} else {
		if len(args) != 0 {
			return nil, fmt.Errorf("%s constructor: %w: got %d, want 0", className, ErrArgCount, len(args))
		}
		ptr = reflect.New(c.typ)
	}

	inst := NewInstance(ptr.Interface())
	r.insert(id, className, inst)
	return inst, nil
}

// Adopt stores an existing native value under id. x must be a pointer to
// a type with a cached class.
func (r *Registry) Adopt(id string, x any) (*Instance, error) {
	pv := reflect.ValueOf(x)
	if pv.Kind() != reflect.Ptr || pv.IsNil() {
		return nil, fmt.Errorf("%w: adopt needs a pointer, got %T", ErrTypeMismatch, x)
	}
	name, ok := r.ClassFor(pv.Elem().Type())
	if !ok {
		return nil, fmt.Errorf("%w: for %s", ErrClassNotFound, pv.Elem().Type())
	}
	inst := NewInstance(x)
	r.insert(id, name, inst)
	return inst, nil
}

func (r *Registry) insert(id, className string, inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.instances[id]; dup {
		panic(fmt.Sprintf("registry: duplicate instance id %q", id))
	}
	r.instances[id] = inst
	r.classOf[id] = className
}

// Lookup returns the instance stored under id.
func (r *Registry) Lookup(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

func (r *Registry) resolve(id string) (*Instance, *Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	name := r.classOf[id]
	c, ok := r.classes[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	if inst.Type() != c.typ {
		return nil, nil, fmt.Errorf("%w: instance %s is %s, class %s wraps %s", ErrTypeMismatch, id, inst.Type(), name, c.typ)
	}
	return inst, c, nil
}

// ClassOf returns the class of the instance stored under id.
func (r *Registry) ClassOf(id string) (*Class, error) {
	_, c, err := r.resolve(id)
	return c, err
}

// GetAttr reads attribute name of instance id under a shared borrow.
func (r *Registry) GetAttr(id, name string) (*value.Value, error) {
	inst, c, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	a, ok := c.attrs[name]
	if !ok || a.get == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrAttributeNotFound, c.name, name)
	}

	ptr, done := inst.Borrow()
	defer done()
	return value.FromNative(a.get(ptr).Interface())
}

// SetAttr writes attribute name of instance id under an exclusive borrow.
func (r *Registry) SetAttr(id, name string, v *value.Value) error {
	inst, c, err := r.resolve(id)
	if err != nil {
		return err
	}
	a, ok := c.attrs[name]
	if !ok || a.set == nil {
		return fmt.Errorf("%w: %s.%s", ErrAttributeNotFound, c.name, name)
	}
	nv, err := value.ToNative(v, a.typ)
	if err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrTypeMismatch, c.name, name, err)
	}

	ptr, done := inst.BorrowMut()
	defer done()
	a.set(ptr, nv)
	return nil
}

// Call invokes method on instance id. Mutating methods hold the exclusive
// borrow for the duration of the call.
func (r *Registry) Call(id, methodName string, args []*value.Value) (*value.Value, error) {
	inst, c, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	m, ok := c.meths[methodName]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, c.name, methodName)
	}

	var (
		ptr  reflect.Value
		done func()
	)
	if m.mutating {
		ptr, done = inst.BorrowMut()
	} else {
		ptr, done = inst.Borrow()
	}
	defer done()

	recv := ptr
	if m.byValue {
		recv = ptr.Elem()
	}
	out, err := call(m.fn, []reflect.Value{recv}, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.name, methodName, err)
	}
	return toValue(out)
}

// CallStatic invokes a class method.
func (r *Registry) CallStatic(className, methodName string, args []*value.Value) (*value.Value, error) {
	c, ok := r.Class(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, className)
	}
	fn, ok := c.statics[methodName]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, className, methodName)
	}
	out, err := call(fn, nil, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", className, methodName, err)
	}
	return toValue(out)
}

// Drop removes instance id and reports whether it was live.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return false
	}
	delete(r.instances, id)
	delete(r.classOf, id)
	inst.Release()
	return true
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Reset drops every instance and class.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = make(map[string]*Class)
	r.byType = make(map[reflect.Type]string)
	r.instances = make(map[string]*Instance)
	r.classOf = make(map[string]string)
}

// call converts args to fn's parameter types after the given leading
// values and calls fn. The zero reflect.Value stands for "no result".
func call(fn reflect.Value, lead []reflect.Value, args []*value.Value) (reflect.Value, error) {
	ft := fn.Type()
	want := ft.NumIn() - len(lead)
	if len(args) != want {
		return reflect.Value{}, fmt.Errorf("%w: got %d, want %d", ErrArgCount, len(args), want)
	}
	in := make([]reflect.Value, 0, ft.NumIn())
	in = append(in, lead...)
	for i, a := range args {
		rv, err := value.ToNative(a, ft.In(len(lead)+i))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: argument %d: %v", ErrTypeMismatch, i, err)
		}
		in = append(in, rv)
	}
	out := fn.Call(in)
	if len(out) == 0 {
		return reflect.Value{}, nil
	}
	return out[0], nil
}

func toValue(out reflect.Value) (*value.Value, error) {
	if !out.IsValid() {
		return value.CreateNull(), nil
	}
	return value.FromNative(out.Interface())
}
