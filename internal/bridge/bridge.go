// Package bridge registers loaded functions and classes into a host
// scope. Every function, class and object it creates dispatches through
// one of three callback tables owned by the Bridge; function payloads are
// handles into a boundary table so the host never holds Go pointers.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/funvibe/gobridge/internal/boundary"
	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/logger"
	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/pkg/registry"
	"github.com/funvibe/gobridge/pkg/value"
)

var (
	ErrUnknownType          = errors.New("unknown type")
	ErrRegistrationConflict = errors.New("registration conflict")

	// ErrStaticAttribute is returned by the static get and set callbacks:
	// Go types have no class-level attributes.
	ErrStaticAttribute = errors.New("static attributes are not supported")
)

// RegistrationConflictError reports a name that was already bound in the
// target scope. The existing binding is kept.
type RegistrationConflictError struct {
	Name string
	Err  error
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("registering %s: %v", e.Name, e.Err)
}

func (e *RegistrationConflictError) Unwrap() []error {
	return []error{ErrRegistrationConflict, e.Err}
}

// PrimitiveTypeNames are the Go spellings defined in the host type
// registry, in addition to one entry per protocol kind.
var PrimitiveTypeNames = []struct {
	Name string
	ID   value.ID
}{
	{"bool", value.Bool},
	{"int8", value.Char},
	{"int16", value.Short},
	{"int32", value.Int},
	{"int64", value.Long},
	{"int", value.Long},
	{"float32", value.Float},
	{"float64", value.Double},
	{"string", value.String},
	{"[]byte", value.Buffer},
}

// DefineTypes registers the primitive names and the kind names in l.
func DefineTypes(l *host.Loader) error {
	for _, p := range PrimitiveTypeNames {
		if _, err := l.DefineType(p.Name, p.ID); err != nil {
			return fmt.Errorf("defining %s: %w", p.Name, err)
		}
	}
	for i := 0; i < value.IDCount; i++ {
		id := value.ID(i)
		if _, err := l.DefineType(id.String(), id); err != nil {
			return fmt.Errorf("defining %s: %w", id, err)
		}
	}
	return nil
}

// Bridge connects one host loader to one instance registry.
type Bridge struct {
	loader  *host.Loader
	reg     *registry.Registry
	handles *boundary.Table[value.Trampoline]
	log     *slog.Logger

	once    sync.Once
	fnIface *functionInterface
	clIface *classInterface
	obIface *objectInterface
}

// New creates a bridge. Types are resolved through loader; class
// instances live in reg.
func New(loader *host.Loader, reg *registry.Registry) *Bridge {
	return &Bridge{
		loader:  loader,
		reg:     reg,
		handles: boundary.NewTable[value.Trampoline](),
		log:     logger.Component("bridge"),
	}
}

// Registry returns the instance registry.
func (b *Bridge) Registry() *registry.Registry { return b.reg }

// Handles returns the number of live callable handles.
func (b *Bridge) Handles() int { return b.handles.Len() }

func (b *Bridge) init() {
	b.once.Do(func() {
		b.fnIface = &functionInterface{handles: b.handles}
		b.clIface = &classInterface{b: b}
		b.obIface = &objectInterface{reg: b.reg}
	})
}

// FunctionSingleton returns the callback table shared by every function
// this bridge registers.
func (b *Bridge) FunctionSingleton() host.FunctionInterface {
	b.init()
	return b.fnIface
}

// ClassSingleton returns the callback table shared by every class.
func (b *Bridge) ClassSingleton() host.ClassInterface {
	b.init()
	return b.clIface
}

// ObjectSingleton returns the callback table shared by every object.
func (b *Bridge) ObjectSingleton() host.ObjectInterface {
	b.init()
	return b.obIface
}

// Register defines every function and class in ctx. Name conflicts are
// collected and do not stop the batch; any other error aborts it.
func (b *Bridge) Register(ctx *host.Context, fns []FunctionSpec, classes []ClassSpec) error {
	var conflicts []error
	collect := func(err error) error {
		var rc *RegistrationConflictError
		if errors.As(err, &rc) {
			conflicts = append(conflicts, err)
			return nil
		}
		return err
	}

	for _, f := range fns {
		if err := collect(b.RegisterFunction(ctx, f)); err != nil {
			return errors.Join(append(conflicts, err)...)
		}
	}
	for _, c := range classes {
		if err := collect(b.RegisterClass(ctx, c)); err != nil {
			return errors.Join(append(conflicts, err)...)
		}
	}
	return errors.Join(conflicts...)
}

// define binds v under name in ctx, releasing v on conflict.
func define(ctx *host.Context, name string, v *value.Value) error {
	if err := ctx.Scope().Define(name, v); err != nil {
		v.Release()
		if errors.Is(err, host.ErrAlreadyDefined) {
			return &RegistrationConflictError{Name: name, Err: err}
		}
		return err
	}
	return nil
}

func (b *Bridge) resolveType(name string) (*host.Type, error) {
	t, ok := b.loader.Type(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// hostTypeName maps a runtime type to its name in the host type registry.
func hostTypeName(t reflect.Type) (string, error) {
	st := signature.FromReflect(t)
	if !st.Supported() {
		return "", fmt.Errorf("%w: %s: %s", ErrUnknownType, t, st.Reason)
	}
	return st.HostName(), nil
}
