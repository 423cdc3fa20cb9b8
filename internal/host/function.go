package host

import (
	"fmt"
	"sync/atomic"

	"github.com/funvibe/gobridge/pkg/value"
)

// FunctionInterface is the callback table a loader supplies for its
// functions.
type FunctionInterface interface {
	Create(f *Function) error
	Invoke(f *Function, args []*value.Value) *value.Value
	// Await returns nil when the loader has no asynchronous calls.
	Await(f *Function, args []*value.Value, resolve, reject func(*value.Value)) *value.Value
	Destroy(f *Function)
}

// Function is a callable registered by a loader. Impl is the loader's
// opaque payload.
type Function struct {
	Name string
	Impl any

	sig       *Signature
	iface     FunctionInterface
	destroyed atomic.Bool
}

// NewFunction creates a function and runs the create callback.
func NewFunction(name string, argc int, impl any, iface FunctionInterface) (*Function, error) {
	f := &Function{Name: name, Impl: impl, sig: NewSignature(argc), iface: iface}
	if err := iface.Create(f); err != nil {
		return nil, fmt.Errorf("creating function %s: %w", name, err)
	}
	return f, nil
}

// Signature returns the function signature for the loader to fill.
func (f *Function) Signature() *Signature { return f.sig }

// Call invokes the function. The caller keeps ownership of args and owns
// the result.
func (f *Function) Call(args ...*value.Value) (res *value.Value, err error) {
	if !f.sig.Accepts(len(args)) {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", f.Name, ErrArgCount, len(args), f.sig.Count())
	}
	defer guard(f.Name, &err)
	res = f.iface.Invoke(f, args)
	if res == nil {
		res = value.CreateNull()
	}
	return res, nil
}

// Await starts an asynchronous call.
func (f *Function) Await(args []*value.Value, resolve, reject func(*value.Value)) (res *value.Value, err error) {
	defer guard(f.Name, &err)
	res = f.iface.Await(f, args, resolve, reject)
	if res == nil {
		return nil, fmt.Errorf("%s: await: %w", f.Name, ErrUnsupported)
	}
	return res, nil
}

// Destroy runs the destroy callback. It is called when the last value
// referencing f is released; destroying f twice panics.
func (f *Function) Destroy() {
	if !f.destroyed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("host: function %s destroyed twice", f.Name))
	}
	f.iface.Destroy(f)
}
