// Package host is an in-process host runtime with the contract a polyglot
// runtime offers to language loaders: a named type registry, a scope that
// owns defined values, and function, class and object handles that
// dispatch through callback tables supplied by the loader.
package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/funvibe/gobridge/pkg/value"
)

var (
	// ErrAlreadyDefined is returned when a name is defined twice in the
	// same scope or type registry.
	ErrAlreadyDefined = errors.New("already defined")

	ErrNotDefined  = errors.New("not defined")
	ErrArgCount    = errors.New("wrong number of arguments")
	ErrUnsupported = errors.New("operation not supported")
)

// Type is a named entry in the host type registry.
type Type struct {
	Name string
	ID   value.ID
}

func (t *Type) String() string { return fmt.Sprintf("%s(%s)", t.Name, t.ID) }

// Loader is the per-language loader record of the host: it owns the type
// registry the loader defines at initialization.
type Loader struct {
	Tag string

	mu    sync.RWMutex
	types map[string]*Type
}

// NewLoader creates a loader record with an empty type registry.
func NewLoader(tag string) *Loader {
	return &Loader{Tag: tag, types: make(map[string]*Type)}
}

// DefineType registers name as a host type with protocol tag id.
func (l *Loader) DefineType(name string, id value.ID) (*Type, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.types[name]; ok {
		return nil, fmt.Errorf("type %s: %w", name, ErrAlreadyDefined)
	}
	t := &Type{Name: name, ID: id}
	l.types[name] = t
	return t, nil
}

// Type looks up a type by name.
func (l *Loader) Type(name string) (*Type, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.types[name]
	return t, ok
}

// TypeNames returns the registered type names, sorted.
func (l *Loader) TypeNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.types))
	for n := range l.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Scope maps names to values. A value defined in a scope is owned by it.
type Scope struct {
	mu     sync.RWMutex
	values map[string]*value.Value
	order  []string
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{values: make(map[string]*value.Value)}
}

// Define binds name to v and takes ownership of v. If name is already
// bound, the scope is left unchanged and ErrAlreadyDefined is returned;
// v then stays owned by the caller.
func (s *Scope) Define(name string, v *value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyDefined)
	}
	s.values[name] = v
	s.order = append(s.order, name)
	return nil
}

// Get returns the value bound to name. The scope keeps ownership.
func (s *Scope) Get(name string) (*value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns bound names in definition order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of bindings.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Function returns the host function bound to name.
func (s *Scope) Function(name string) (*Function, error) {
	v, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("function %s: %w", name, ErrNotDefined)
	}
	if value.TypeID(v) != value.Function {
		return nil, fmt.Errorf("%s is a %s, not a function", name, value.TypeID(v))
	}
	f, ok := value.ToFunction(v).(*Function)
	if !ok {
		return nil, fmt.Errorf("%s: foreign function payload %T", name, value.ToFunction(v))
	}
	return f, nil
}

// Class returns the host class bound to name.
func (s *Scope) Class(name string) (*Class, error) {
	v, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("class %s: %w", name, ErrNotDefined)
	}
	if value.TypeID(v) != value.Class {
		return nil, fmt.Errorf("%s is a %s, not a class", name, value.TypeID(v))
	}
	c, ok := value.ToClass(v).(*Class)
	if !ok {
		return nil, fmt.Errorf("%s: foreign class payload %T", name, value.ToClass(v))
	}
	return c, nil
}

// Destroy releases every value the scope owns, in reverse definition order.
func (s *Scope) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		s.values[s.order[i]].Release()
	}
	s.values = make(map[string]*value.Value)
	s.order = nil
}

// Context is the registration context handed to a loader during discovery.
type Context struct {
	scope *Scope
}

// NewContext creates a context with a fresh scope.
func NewContext() *Context {
	return &Context{scope: NewScope()}
}

// Scope returns the context's scope.
func (c *Context) Scope() *Scope { return c.scope }

// Signature is the host-side signature of a function, method or
// constructor: argument names and types plus an optional return type.
type Signature struct {
	names    []string
	types    []*Type
	ret      *Type
	variadic bool
}

// NewSignature creates a signature with n unset arguments.
func NewSignature(n int) *Signature {
	return &Signature{names: make([]string, n), types: make([]*Type, n)}
}

// Set fills argument i.
func (s *Signature) Set(i int, name string, t *Type) {
	s.names[i] = name
	s.types[i] = t
}

// SetVariadic marks a callable that accepts any number of arguments after
// the declared ones.
func (s *Signature) SetVariadic() { s.variadic = true }

// Variadic reports whether SetVariadic was called.
func (s *Signature) Variadic() bool { return s.variadic }

// Accepts reports whether n arguments match the signature.
func (s *Signature) Accepts(n int) bool {
	if s.variadic {
		return n >= len(s.names)
	}
	return n == len(s.names)
}

// SetReturn sets the return type.
func (s *Signature) SetReturn(t *Type) { s.ret = t }

// Count returns the number of arguments.
func (s *Signature) Count() int { return len(s.names) }

// Arg returns argument i.
func (s *Signature) Arg(i int) (string, *Type) { return s.names[i], s.types[i] }

// Return returns the return type, nil when the callable returns nothing.
func (s *Signature) Return() *Type { return s.ret }

func (s *Signature) String() string {
	out := "("
	for i := range s.names {
		if i > 0 {
			out += ", "
		}
		out += s.names[i]
		if s.types[i] != nil {
			out += " " + s.types[i].Name
		}
	}
	if s.variadic {
		if len(s.names) > 0 {
			out += ", "
		}
		out += "..."
	}
	out += ")"
	if s.ret != nil {
		out += " " + s.ret.Name
	}
	return out
}

// guard turns a panic raised inside loader code into an error.
func guard(what string, err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = fmt.Errorf("%s: panic: %w", what, e)
			return
		}
		*err = fmt.Errorf("%s: panic: %v", what, r)
	}
}
