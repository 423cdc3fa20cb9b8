package bridge

import (
	"fmt"

	"github.com/funvibe/gobridge/internal/boundary"
	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/pkg/value"
)

// ParamSpec is a parameter name and its host type name.
type ParamSpec struct {
	Name string
	Type string
}

// FunctionSpec is everything needed to register one function.
type FunctionSpec struct {
	Name       string
	Trampoline value.Trampoline
	ArgsCount  int
	Params     []ParamSpec

	// Return is the host type name of the result, "" for none.
	Return string

	// Variadic is set for functions that already have the trampoline
	// shape: their arity is only known to the function itself.
	Variadic bool
}

// SpecFromFunction builds the spec of fn bound to tr.
func SpecFromFunction(fn signature.Function, tr value.Trampoline) FunctionSpec {
	spec := FunctionSpec{Name: fn.Name, Trampoline: tr, ArgsCount: len(fn.Params), Variadic: fn.Canonical}
	for _, p := range fn.Params {
		spec.Params = append(spec.Params, ParamSpec{Name: p.Name, Type: p.Type.HostName()})
	}
	if fn.Return != nil {
		spec.Return = fn.Return.HostName()
	}
	return spec
}

// RegisterFunction defines spec as a host function in ctx. Every type name
// must be known to the host loader. If the name is taken, the new function
// is released, which frees its handle, and a *RegistrationConflictError is
// returned.
func (b *Bridge) RegisterFunction(ctx *host.Context, spec FunctionSpec) error {
	name := boundary.MustName(spec.Name)
	if spec.Trampoline == nil {
		return fmt.Errorf("registering %s: nil trampoline", name)
	}
	if spec.ArgsCount != len(spec.Params) {
		return fmt.Errorf("registering %s: %d arguments but %d parameters", name, spec.ArgsCount, len(spec.Params))
	}

	types := make([]*host.Type, len(spec.Params))
	for i, p := range spec.Params {
		t, err := b.resolveType(p.Type)
		if err != nil {
			return fmt.Errorf("registering %s: parameter %s: %w", name, p.Name, err)
		}
		types[i] = t
	}
	var ret *host.Type
	if spec.Return != "" {
		t, err := b.resolveType(spec.Return)
		if err != nil {
			return fmt.Errorf("registering %s: return: %w", name, err)
		}
		ret = t
	}

	h := b.handles.New(spec.Trampoline)
	f, err := host.NewFunction(name, spec.ArgsCount, h, b.FunctionSingleton())
	if err != nil {
		b.handles.Release(h)
		return err
	}
	sig := f.Signature()
	for i, p := range spec.Params {
		sig.Set(i, boundary.MustName(p.Name), types[i])
	}
	sig.SetReturn(ret)
	if spec.Variadic {
		sig.SetVariadic()
	}

	if err := define(ctx, name, value.CreateFunction(f)); err != nil {
		return err
	}
	b.log.Debug("registered function", "name", name, "signature", sig.String())
	return nil
}

// functionInterface dispatches host calls to trampolines by handle.
type functionInterface struct {
	handles *boundary.Table[value.Trampoline]
}

func (fi *functionInterface) Create(f *host.Function) error {
	if _, ok := f.Impl.(boundary.Handle); !ok {
		return fmt.Errorf("function payload is %T, not a handle", f.Impl)
	}
	return nil
}

func (fi *functionInterface) Invoke(f *host.Function, args []*value.Value) *value.Value {
	tr := fi.handles.MustGet(f.Impl.(boundary.Handle))
	return tr(args, len(args))
}

func (fi *functionInterface) Await(*host.Function, []*value.Value, func(*value.Value), func(*value.Value)) *value.Value {
	return nil
}

func (fi *functionInterface) Destroy(f *host.Function) {
	fi.handles.Release(f.Impl.(boundary.Handle))
}
