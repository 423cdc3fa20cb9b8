// Package signature holds the data model shared by discovery, trampoline
// generation and registration: type descriptors, function signatures and
// class descriptors.
package signature

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/gobridge/pkg/value"
)

// ErrInvalidType is returned by Type.Validate.
var ErrInvalidType = errors.New("invalid type descriptor")

// Type describes a Go type in protocol terms.
type Type struct {
	// Kind is the protocol tag the type marshals to.
	Kind value.ID

	// Mutable is set for parameters the callee may modify (*[]E, *map[K]V).
	Mutable bool

	// Reference is set for parameters passed by pointer.
	Reference bool

	// Generics holds the element type of an Array, or the key and value
	// types of a Map.
	Generics []Type

	// Name is the Go spelling of the type as it appears in the source unit
	// (e.g. "int32", "[]int64", "*map[string]float64", "Counter").
	Name string

	// Reason is set when the Go type has no protocol representation.
	Reason string
}

// Supported reports whether the type can cross the boundary.
func (t Type) Supported() bool {
	if t.Reason != "" {
		return false
	}
	for _, g := range t.Generics {
		if !g.Supported() {
			return false
		}
	}
	return true
}

// Validate checks the generics arity of composite kinds.
func (t Type) Validate() error {
	switch t.Kind {
	case value.Array:
		if len(t.Generics) != 1 {
			return fmt.Errorf("%w: Array needs 1 generic, has %d", ErrInvalidType, len(t.Generics))
		}
	case value.Map:
		if len(t.Generics) != 2 {
			return fmt.Errorf("%w: Map needs 2 generics, has %d", ErrInvalidType, len(t.Generics))
		}
	default:
		if len(t.Generics) != 0 {
			return fmt.Errorf("%w: %s takes no generics", ErrInvalidType, t.Kind)
		}
	}
	for _, g := range t.Generics {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsPrimitive reports whether the kind is a scalar handled by a single
// converter pair.
func (t Type) IsPrimitive() bool {
	switch t.Kind {
	case value.Bool, value.Char, value.Short, value.Int, value.Long,
		value.Float, value.Double, value.String, value.Buffer:
		return true
	}
	return false
}

// BaseName is the Go spelling of the converter type for a primitive kind.
func BaseName(k value.ID) string {
	switch k {
	case value.Bool:
		return "bool"
	case value.Char:
		return "int8"
	case value.Short:
		return "int16"
	case value.Int:
		return "int32"
	case value.Long:
		return "int64"
	case value.Float:
		return "float32"
	case value.Double:
		return "float64"
	case value.String:
		return "string"
	case value.Buffer:
		return "[]byte"
	}
	return ""
}

// GoName returns Name, or the Go spelling derived from the kind when Name
// is unset.
func (t Type) GoName() string {
	if t.Name != "" {
		return t.Name
	}
	var name string
	switch t.Kind {
	case value.Array:
		if len(t.Generics) == 1 {
			name = "[]" + t.Generics[0].GoName()
		}
	case value.Map:
		if len(t.Generics) == 2 {
			name = "map[" + t.Generics[0].GoName() + "]" + t.Generics[1].GoName()
		}
	default:
		name = BaseName(t.Kind)
	}
	if t.Reference && name != "" {
		name = "*" + name
	}
	return name
}

// HostName is the name the type is registered under in the host type
// registry: the Go spelling for primitives, the kind name otherwise.
func (t Type) HostName() string {
	if t.IsPrimitive() {
		if t.Name == "int" {
			return "int"
		}
		return BaseName(t.Kind)
	}
	return t.Kind.String()
}

func (t Type) String() string {
	var b strings.Builder
	if t.Reference {
		b.WriteString("&")
		if t.Mutable {
			b.WriteString("mut ")
		}
	}
	b.WriteString(t.Kind.String())
	if len(t.Generics) > 0 {
		b.WriteString("<")
		for i, g := range t.Generics {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(g.String())
		}
		b.WriteString(">")
	}
	return b.String()
}

// Param is a named parameter.
type Param struct {
	Name string
	Type Type
}

// Signature is an ordered parameter list and an optional return type.
type Signature struct {
	Params []Param
	Return *Type
}

// Describe renders s in Go syntax, e.g. "(a int32, xs *[]int64) string".
func (s Signature) Describe() string {
	var b strings.Builder
	b.WriteString("(")
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if name := p.Type.GoName(); name != "" {
			b.WriteString(" " + name)
		}
	}
	b.WriteString(")")
	if s.Return != nil {
		if name := s.Return.GoName(); name != "" {
			b.WriteString(" " + name)
		}
	}
	return b.String()
}

// Unsupported returns a description of the first parameter or return type
// that cannot cross the boundary, or "".
func (s Signature) Unsupported() string {
	for _, p := range s.Params {
		if !p.Type.Supported() {
			return fmt.Sprintf("parameter %s: %s", p.Name, reason(p.Type))
		}
	}
	if s.Return != nil && !s.Return.Supported() {
		return "return: " + reason(*s.Return)
	}
	return ""
}

func reason(t Type) string {
	if t.Reason != "" {
		return t.Reason
	}
	for _, g := range t.Generics {
		if !g.Supported() {
			return reason(g)
		}
	}
	return ""
}

// Function is a discovered callable. It is immutable after discovery.
type Function struct {
	Name string
	Signature

	// Symbol is the exported name the callable is resolved by in the
	// loaded library. Empty until trampolines are generated.
	Symbol string

	// Canonical is set when the function already has the trampoline shape
	// and is registered without wrapping.
	Canonical bool
}

// Attribute is a readable and writable field of a class.
type Attribute struct {
	Name string
	Type Type
}

// Method is an instance or static method of a class.
type Method struct {
	Name string
	Signature

	// Mutating is set for methods with a pointer receiver; they borrow the
	// instance exclusively.
	Mutating bool

	// Func names the package-level func implementing a static method.
	Func string
}

// Class describes a native struct type exposed to the host.
type Class struct {
	Name string

	// Constructor is nil when the type has no constructor function; the
	// bridge then registers a zero-argument constructor.
	Constructor *Signature

	// ConstructorFunc names the package-level func behind Constructor.
	ConstructorFunc string

	// Symbol is the exported descriptor constructor in the loaded library.
	Symbol string

	Attributes    []Attribute
	Methods       []Method
	StaticMethods []Method
}
