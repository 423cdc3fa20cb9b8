package registry

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// BorrowError is the panic payload of a borrow that conflicts with one
// already outstanding.
type BorrowError struct {
	Type      string
	Exclusive bool
}

func (e *BorrowError) Error() string {
	if e.Exclusive {
		return fmt.Sprintf("registry: %s already borrowed", e.Type)
	}
	return fmt.Sprintf("registry: %s already mutably borrowed", e.Type)
}

// Instance is a shared, borrow-checked cell around one native value.
// Any number of shared borrows may be outstanding, or exactly one
// exclusive borrow.
type Instance struct {
	ptr      reflect.Value
	typeName string

	// borrow is the number of shared borrows, or -1 while exclusively held.
	borrow atomic.Int32
	refs   atomic.Int32
}

// NewInstance wraps a pointer to a native value.
func NewInstance(ptr any) *Instance {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Ptr || pv.IsNil() {
		panic(fmt.Sprintf("registry: instance needs a non-nil pointer, got %T", ptr))
	}
	inst := &Instance{ptr: pv, typeName: pv.Elem().Type().String()}
	inst.refs.Store(1)
	return inst
}

// TypeName returns the Go type name of the wrapped value, for debugging.
func (i *Instance) TypeName() string { return i.typeName }

// Type returns the Go type of the wrapped value.
func (i *Instance) Type() reflect.Type { return i.ptr.Elem().Type() }

// Borrow takes a shared borrow and returns the pointer to the value plus
// the function ending the borrow.
func (i *Instance) Borrow() (reflect.Value, func()) {
	for {
		n := i.borrow.Load()
		if n < 0 {
			panic(&BorrowError{Type: i.typeName})
		}
		if i.borrow.CompareAndSwap(n, n+1) {
			break
		}
	}
	return i.ptr, func() { i.borrow.Add(-1) }
}

// BorrowMut takes the exclusive borrow.
func (i *Instance) BorrowMut() (reflect.Value, func()) {
	if !i.borrow.CompareAndSwap(0, -1) {
		panic(&BorrowError{Type: i.typeName, Exclusive: true})
	}
	return i.ptr, func() { i.borrow.Store(0) }
}

// Retain adds a reference.
func (i *Instance) Retain() *Instance {
	i.refs.Add(1)
	return i
}

// Release drops a reference and reports whether it was the last one.
func (i *Instance) Release() bool {
	return i.refs.Add(-1) == 0
}

// Refs returns the reference count.
func (i *Instance) Refs() int { return int(i.refs.Load()) }

// Borrow is the typed form of Instance.Borrow: it checks the dynamic type
// before handing out the pointer.
func Borrow[T any](inst *Instance) (*T, func(), error) {
	ptr, done := inst.Borrow()
	p, ok := ptr.Interface().(*T)
	if !ok {
		done()
		return nil, nil, fmt.Errorf("%w: %s is not %s", ErrTypeMismatch, inst.typeName, reflect.TypeOf((*T)(nil)).Elem())
	}
	return p, done, nil
}

// BorrowMut is the typed form of Instance.BorrowMut.
func BorrowMut[T any](inst *Instance) (*T, func(), error) {
	ptr, done := inst.BorrowMut()
	p, ok := ptr.Interface().(*T)
	if !ok {
		done()
		return nil, nil, fmt.Errorf("%w: %s is not %s", ErrTypeMismatch, inst.typeName, reflect.TypeOf((*T)(nil)).Elem())
	}
	return p, done, nil
}
