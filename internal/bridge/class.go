package bridge

import (
	"fmt"
	"reflect"

	"github.com/funvibe/gobridge/internal/boundary"
	"github.com/funvibe/gobridge/internal/host"
	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/pkg/registry"
	"github.com/funvibe/gobridge/pkg/value"
)

// ClassSpec is a class descriptor to register. Descriptor is optional and
// only supplies parameter names.
type ClassSpec struct {
	Name       string
	Class      *registry.Class
	Descriptor *signature.Class
}

// RegisterClass describes a host class for spec.Class, caches the class in
// the registry and defines the host class in ctx. A class without a
// constructor gets a zero-argument one that starts from the zero value.
func (b *Bridge) RegisterClass(ctx *host.Context, spec ClassSpec) error {
	name := boundary.MustName(spec.Name)
	if spec.Class == nil {
		return fmt.Errorf("registering class %s: nil descriptor", name)
	}
	hc, err := host.NewClass(name, name, b.ClassSingleton())
	if err != nil {
		return err
	}
	if err := b.describe(hc, spec); err != nil {
		return fmt.Errorf("registering class %s: %w", name, err)
	}

	cached, err := b.reg.CacheClass(spec.Class, name)
	if err != nil {
		return &RegistrationConflictError{Name: name, Err: err}
	}
	hc.Impl = cached

	if err := define(ctx, name, value.CreateClass(hc)); err != nil {
		return err
	}
	b.log.Debug("registered class", "name", name, "registry_name", cached)
	return nil
}

func (b *Bridge) describe(hc *host.Class, spec ClassSpec) error {
	c := spec.Class

	var ctorNames []string
	if spec.Descriptor != nil && spec.Descriptor.Constructor != nil {
		for _, p := range spec.Descriptor.Constructor.Params {
			ctorNames = append(ctorNames, p.Name)
		}
	}
	sig, err := b.signatureOf(c.ConstructorParams(), nil, ctorNames)
	if err != nil {
		return fmt.Errorf("constructor: %w", err)
	}
	hc.RegisterConstructor(&host.Constructor{Sig: sig, Visibility: host.Public})

	for _, a := range c.Attributes() {
		tn, err := hostTypeName(a.Type)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		t, err := b.resolveType(tn)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		if err := hc.RegisterAttribute(&host.Attribute{Name: boundary.MustName(a.Name), Type: t}); err != nil {
			return err
		}
	}

	register := func(m registry.MethodInfo, static bool) error {
		sig, err := b.signatureOf(m.Params, m.Result, b.paramNames(spec.Descriptor, m.Name, static))
		if err != nil {
			return fmt.Errorf("method %s: %w", m.Name, err)
		}
		return hc.RegisterMethod(&host.Method{Name: boundary.MustName(m.Name), Sig: sig, Static: static})
	}
	for _, m := range c.Methods() {
		if err := register(m, false); err != nil {
			return err
		}
	}
	for _, m := range c.StaticMethods() {
		if err := register(m, true); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) signatureOf(params []reflect.Type, result reflect.Type, names []string) (*host.Signature, error) {
	sig := host.NewSignature(len(params))
	for i, pt := range params {
		tn, err := hostTypeName(pt)
		if err != nil {
			return nil, err
		}
		t, err := b.resolveType(tn)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("arg%d", i)
		if i < len(names) && len(names) == len(params) {
			name = names[i]
		}
		sig.Set(i, name, t)
	}
	if result != nil {
		tn, err := hostTypeName(result)
		if err != nil {
			return nil, err
		}
		t, err := b.resolveType(tn)
		if err != nil {
			return nil, err
		}
		sig.SetReturn(t)
	}
	return sig, nil
}

func (b *Bridge) paramNames(d *signature.Class, method string, static bool) []string {
	if d == nil {
		return nil
	}
	methods := d.Methods
	if static {
		methods = d.StaticMethods
	}
	for _, m := range methods {
		if m.Name == method {
			names := make([]string, len(m.Params))
			for i, p := range m.Params {
				names[i] = p.Name
			}
			return names
		}
	}
	return nil
}

// classInterface backs host classes with the registry. Impl of a host
// class is the name it is cached under.
type classInterface struct {
	b *Bridge
}

func (ci *classInterface) Create(c *host.Class) error {
	if _, ok := c.Impl.(string); !ok {
		return fmt.Errorf("class payload is %T, not a class name", c.Impl)
	}
	return nil
}

func (ci *classInterface) Constructor(c *host.Class, id string, _ *host.Constructor, args []*value.Value) (*host.Object, error) {
	inst, err := ci.b.reg.MakeInstance(c.Impl.(string), id, args)
	if err != nil {
		return nil, err
	}
	obj, err := host.NewObject(id, inst, ci.b.ObjectSingleton(), c)
	if err != nil {
		ci.b.reg.Drop(id)
		return nil, err
	}
	return obj, nil
}

func (ci *classInterface) StaticGet(c *host.Class, a *host.Attribute) (*value.Value, error) {
	return nil, fmt.Errorf("%s.%s: %w", c.Name, a.Name, ErrStaticAttribute)
}

func (ci *classInterface) StaticSet(c *host.Class, a *host.Attribute, _ *value.Value) error {
	return fmt.Errorf("%s.%s: %w", c.Name, a.Name, ErrStaticAttribute)
}

func (ci *classInterface) StaticInvoke(c *host.Class, m *host.Method, args []*value.Value) (*value.Value, error) {
	return ci.b.reg.CallStatic(c.Impl.(string), m.Name, args)
}

func (ci *classInterface) StaticAwait(*host.Class, *host.Method, []*value.Value) *value.Value {
	return nil
}

// Destroy keeps the class cached: live objects may still reference it.
func (ci *classInterface) Destroy(c *host.Class) {
	ci.b.log.Debug("class released", "name", c.Name)
}

// objectInterface forwards object access to the registry by object id.
type objectInterface struct {
	reg *registry.Registry
}

func (oi *objectInterface) Create(o *host.Object) error {
	if _, ok := oi.reg.Lookup(o.ID); !ok {
		return fmt.Errorf("%w: %s", registry.ErrInstanceNotFound, o.ID)
	}
	return nil
}

func (oi *objectInterface) Get(o *host.Object, a *host.Attribute) (*value.Value, error) {
	return oi.reg.GetAttr(o.ID, a.Name)
}

func (oi *objectInterface) Set(o *host.Object, a *host.Attribute, v *value.Value) error {
	return oi.reg.SetAttr(o.ID, a.Name, v)
}

func (oi *objectInterface) MethodInvoke(o *host.Object, m *host.Method, args []*value.Value) (*value.Value, error) {
	return oi.reg.Call(o.ID, m.Name, args)
}

func (oi *objectInterface) MethodAwait(*host.Object, *host.Method, []*value.Value) *value.Value {
	return nil
}

func (oi *objectInterface) Destructor(*host.Object) error { return nil }

func (oi *objectInterface) Destroy(o *host.Object) {
	oi.reg.Drop(o.ID)
}
