package host

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/funvibe/gobridge/pkg/value"
)

// Visibility of a class member.
type Visibility int

const (
	Public Visibility = iota
	Protected
	Private
)

// Constructor is one constructor overload of a class.
type Constructor struct {
	Sig        *Signature
	Visibility Visibility
}

// Attribute is a class or instance attribute.
type Attribute struct {
	Name       string
	Type       *Type
	Visibility Visibility
	Static     bool
}

// Method is a class or instance method.
type Method struct {
	Name       string
	Sig        *Signature
	Visibility Visibility
	Static     bool
	Async      bool
}

// ClassInterface is the callback table a loader supplies for its classes.
type ClassInterface interface {
	Create(c *Class) error
	// Constructor builds an object with the host-assigned id.
	Constructor(c *Class, id string, ctor *Constructor, args []*value.Value) (*Object, error)
	StaticGet(c *Class, attr *Attribute) (*value.Value, error)
	StaticSet(c *Class, attr *Attribute, v *value.Value) error
	StaticInvoke(c *Class, m *Method, args []*value.Value) (*value.Value, error)
	// StaticAwait returns nil when the loader has no asynchronous calls.
	StaticAwait(c *Class, m *Method, args []*value.Value) *value.Value
	Destroy(c *Class)
}

// Class is a class registered by a loader.
type Class struct {
	Name string
	Impl any

	iface        ClassInterface
	mu           sync.RWMutex
	constructors []*Constructor
	attributes   map[string]*Attribute
	methods      map[string]*Method
	statics      map[string]*Method
	destroyed    sync.Once
}

// NewClass creates a class and runs the create callback.
func NewClass(name string, impl any, iface ClassInterface) (*Class, error) {
	c := &Class{
		Name:       name,
		Impl:       impl,
		iface:      iface,
		attributes: make(map[string]*Attribute),
		methods:    make(map[string]*Method),
		statics:    make(map[string]*Method),
	}
	if err := iface.Create(c); err != nil {
		return nil, fmt.Errorf("creating class %s: %w", name, err)
	}
	return c, nil
}

// RegisterConstructor adds a constructor overload.
func (c *Class) RegisterConstructor(ctor *Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.constructors = append(c.constructors, ctor)
}

// RegisterAttribute adds an attribute.
func (c *Class) RegisterAttribute(a *Attribute) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.attributes[a.Name]; ok {
		return fmt.Errorf("%s.%s: %w", c.Name, a.Name, ErrAlreadyDefined)
	}
	c.attributes[a.Name] = a
	return nil
}

// RegisterMethod adds an instance or static method.
func (c *Class) RegisterMethod(m *Method) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	table := c.methods
	if m.Static {
		table = c.statics
	}
	if _, ok := table[m.Name]; ok {
		return fmt.Errorf("%s.%s: %w", c.Name, m.Name, ErrAlreadyDefined)
	}
	table[m.Name] = m
	return nil
}

// Attribute looks up an attribute.
func (c *Class) Attribute(name string) (*Attribute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.attributes[name]
	return a, ok
}

// Method looks up an instance method.
func (c *Class) Method(name string) (*Method, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.methods[name]
	return m, ok
}

// StaticMethod looks up a static method.
func (c *Class) StaticMethod(name string) (*Method, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.statics[name]
	return m, ok
}

// Constructors returns the constructor overloads.
func (c *Class) Constructors() []*Constructor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Constructor(nil), c.constructors...)
}

// Members returns attribute, method and static method names, sorted.
func (c *Class) Members() (attrs, methods, statics []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for n := range c.attributes {
		attrs = append(attrs, n)
	}
	for n := range c.methods {
		methods = append(methods, n)
	}
	for n := range c.statics {
		statics = append(statics, n)
	}
	sort.Strings(attrs)
	sort.Strings(methods)
	sort.Strings(statics)
	return attrs, methods, statics
}

// New constructs an object, selecting the constructor by argument count.
// The returned Object value is owned by the caller; releasing it destroys
// the object.
func (c *Class) New(args ...*value.Value) (res *value.Value, err error) {
	var ctor *Constructor
	for _, k := range c.Constructors() {
		if k.Sig.Count() == len(args) {
			ctor = k
			break
		}
	}
	if ctor == nil {
		return nil, fmt.Errorf("%s: no constructor takes %d arguments: %w", c.Name, len(args), ErrArgCount)
	}

	defer guard(c.Name+" constructor", &err)
	obj, err := c.iface.Constructor(c, uuid.NewString(), ctor, args)
	if err != nil {
		return nil, err
	}
	return value.CreateObject(obj), nil
}

// StaticGet reads a static attribute.
func (c *Class) StaticGet(name string) (res *value.Value, err error) {
	a, ok := c.Attribute(name)
	if !ok || !a.Static {
		return nil, fmt.Errorf("static attribute %s.%s: %w", c.Name, name, ErrNotDefined)
	}
	defer guard(c.Name+"."+name, &err)
	return c.iface.StaticGet(c, a)
}

// StaticSet writes a static attribute.
func (c *Class) StaticSet(name string, v *value.Value) (err error) {
	a, ok := c.Attribute(name)
	if !ok || !a.Static {
		return fmt.Errorf("static attribute %s.%s: %w", c.Name, name, ErrNotDefined)
	}
	defer guard(c.Name+"."+name, &err)
	return c.iface.StaticSet(c, a, v)
}

// StaticCall invokes a static method.
func (c *Class) StaticCall(name string, args ...*value.Value) (res *value.Value, err error) {
	m, ok := c.StaticMethod(name)
	if !ok {
		return nil, fmt.Errorf("static method %s.%s: %w", c.Name, name, ErrNotDefined)
	}
	if m.Sig.Count() != len(args) {
		return nil, fmt.Errorf("%s.%s: %w: got %d, want %d", c.Name, name, ErrArgCount, len(args), m.Sig.Count())
	}
	defer guard(c.Name+"."+name, &err)
	return c.iface.StaticInvoke(c, m, args)
}

// StaticAwait starts an asynchronous static call.
func (c *Class) StaticAwait(name string, args ...*value.Value) (res *value.Value, err error) {
	m, ok := c.StaticMethod(name)
	if !ok {
		return nil, fmt.Errorf("static method %s.%s: %w", c.Name, name, ErrNotDefined)
	}
	defer guard(c.Name+"."+name, &err)
	if res = c.iface.StaticAwait(c, m, args); res == nil {
		return nil, fmt.Errorf("%s.%s: await: %w", c.Name, name, ErrUnsupported)
	}
	return res, nil
}

// Destroy runs the destroy callback once.
func (c *Class) Destroy() {
	c.destroyed.Do(func() { c.iface.Destroy(c) })
}
