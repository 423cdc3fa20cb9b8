package host

import (
	"fmt"
	"sync"

	"github.com/funvibe/gobridge/pkg/value"
)

// ObjectInterface is the callback table a loader supplies for objects
// produced by its class constructors.
type ObjectInterface interface {
	Create(o *Object) error
	Get(o *Object, attr *Attribute) (*value.Value, error)
	Set(o *Object, attr *Attribute, v *value.Value) error
	MethodInvoke(o *Object, m *Method, args []*value.Value) (*value.Value, error)
	// MethodAwait returns nil when the loader has no asynchronous calls.
	MethodAwait(o *Object, m *Method, args []*value.Value) *value.Value
	Destructor(o *Object) error
	Destroy(o *Object)
}

// Object is an instance of a host class.
type Object struct {
	ID    string
	Impl  any
	Class *Class

	iface     ObjectInterface
	destroyed sync.Once
}

// NewObject creates an object and runs the create callback.
func NewObject(id string, impl any, iface ObjectInterface, class *Class) (*Object, error) {
	o := &Object{ID: id, Impl: impl, Class: class, iface: iface}
	if err := iface.Create(o); err != nil {
		return nil, fmt.Errorf("creating object %s: %w", id, err)
	}
	return o, nil
}

// Get reads an instance attribute.
func (o *Object) Get(name string) (res *value.Value, err error) {
	a, ok := o.Class.Attribute(name)
	if !ok || a.Static {
		return nil, fmt.Errorf("attribute %s.%s: %w", o.Class.Name, name, ErrNotDefined)
	}
	defer guard(o.Class.Name+"."+name, &err)
	return o.iface.Get(o, a)
}

// Set writes an instance attribute. The caller keeps ownership of v.
func (o *Object) Set(name string, v *value.Value) (err error) {
	a, ok := o.Class.Attribute(name)
	if !ok || a.Static {
		return fmt.Errorf("attribute %s.%s: %w", o.Class.Name, name, ErrNotDefined)
	}
	defer guard(o.Class.Name+"."+name, &err)
	return o.iface.Set(o, a, v)
}

// Call invokes an instance method.
func (o *Object) Call(name string, args ...*value.Value) (res *value.Value, err error) {
	m, ok := o.Class.Method(name)
	if !ok {
		return nil, fmt.Errorf("method %s.%s: %w", o.Class.Name, name, ErrNotDefined)
	}
	if m.Sig.Count() != len(args) {
		return nil, fmt.Errorf("%s.%s: %w: got %d, want %d", o.Class.Name, name, ErrArgCount, len(args), m.Sig.Count())
	}
	defer guard(o.Class.Name+"."+name, &err)
	return o.iface.MethodInvoke(o, m, args)
}

// Await starts an asynchronous method call.
func (o *Object) Await(name string, args ...*value.Value) (res *value.Value, err error) {
	m, ok := o.Class.Method(name)
	if !ok {
		return nil, fmt.Errorf("method %s.%s: %w", o.Class.Name, name, ErrNotDefined)
	}
	defer guard(o.Class.Name+"."+name, &err)
	if res = o.iface.MethodAwait(o, m, args); res == nil {
		return nil, fmt.Errorf("%s.%s: await: %w", o.Class.Name, name, ErrUnsupported)
	}
	return res, nil
}

// Destroy runs the destructor and destroy callbacks once. It is called
// when the last value referencing o is released.
func (o *Object) Destroy() {
	o.destroyed.Do(func() {
		_ = o.iface.Destructor(o)
		o.iface.Destroy(o)
	})
}
