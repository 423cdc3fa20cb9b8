// Package value implements the tagged, reference counted values exchanged
// between a host runtime and Go code loaded by gobridge.
//
// Every value carries one of a closed set of type tags (ID). Values are
// created with a reference count of one and are owned by whoever created
// them; containers (arrays and maps) own their elements. Releasing the last
// reference destroys the value, its children and, for function, class and
// object payloads, calls the payload's Destroy hook.
//
// The To* converters are preconditions, not checks: calling one on a value
// with a different tag panics with a *KindError.
package value

import (
	"fmt"
	"sync/atomic"
)

// ID is the host protocol type tag of a value.
type ID int

const (
	Bool ID = iota
	Char
	Short
	Int
	Long
	Float
	Double
	String
	Buffer
	Array
	Map
	Pointer
	Future
	Function
	Null
	Class
	Object
)

// IDCount is the number of type tags defined by the protocol.
const IDCount = int(Object) + 1

var idNames = [...]string{
	Bool:     "Bool",
	Char:     "Char",
	Short:    "Short",
	Int:      "Int",
	Long:     "Long",
	Float:    "Float",
	Double:   "Double",
	String:   "String",
	Buffer:   "Buffer",
	Array:    "Array",
	Map:      "Map",
	Pointer:  "Pointer",
	Future:   "Future",
	Function: "Function",
	Null:     "Null",
	Class:    "Class",
	Object:   "Object",
}

func (id ID) String() string {
	if id < 0 || int(id) >= len(idNames) {
		return fmt.Sprintf("ID(%d)", int(id))
	}
	return idNames[id]
}

// ParseID returns the tag named s (e.g. "Int", "Map").
func ParseID(s string) (ID, bool) {
	for i, name := range idNames {
		if name == s {
			return ID(i), true
		}
	}
	return 0, false
}

// Destroyer is implemented by function, class and object payloads that
// hold resources which must be freed when their value is destroyed.
type Destroyer interface {
	Destroy()
}

// Trampoline is the canonical calling convention of every callable the
// bridge registers: an array of generic values plus its length in, one
// generic value out. The result is owned by the caller.
type Trampoline func(args []*Value, count int) *Value

// Value is a reference counted, tagged host value.
type Value struct {
	id   ID
	data any
	refs atomic.Int32
}

var live atomic.Int64

// Live reports the number of values created and not yet destroyed.
func Live() int64 {
	return live.Load()
}

func newValue(id ID, data any) *Value {
	v := &Value{id: id, data: data}
	v.refs.Store(1)
	live.Add(1)
	return v
}

// TypeID returns the tag of v.
func TypeID(v *Value) ID {
	v.mustLive()
	return v.id
}

// ID returns the tag of v.
func (v *Value) ID() ID {
	v.mustLive()
	return v.id
}

// Destroyed reports whether the last reference to v has been released.
func (v *Value) Destroyed() bool {
	return v.refs.Load() <= 0
}

// Refs returns the current reference count.
func (v *Value) Refs() int {
	return int(v.refs.Load())
}

// Retain adds a reference to v and returns it.
func (v *Value) Retain() *Value {
	if v.refs.Add(1) <= 1 {
		panic("value: retain of destroyed value")
	}
	return v
}

// Release drops a reference to v, destroying it when none remain.
func (v *Value) Release() {
	n := v.refs.Add(-1)
	switch {
	case n == 0:
		v.destroy()
	case n < 0:
		panic(fmt.Sprintf("value: release of destroyed %s value", v.id))
	}
}

// Retain adds a reference to v. It is the free function form used by
// generated trampolines.
func Retain(v *Value) *Value {
	return v.Retain()
}

// Release drops a reference to v.
func Release(v *Value) {
	v.Release()
}

// Destroy releases the reference owned by the caller. It is an alias of
// Release kept for symmetry with the Create* constructors.
func Destroy(v *Value) {
	v.Release()
}

func (v *Value) destroy() {
	live.Add(-1)
	switch d := v.data.(type) {
	case []*Value:
		for _, child := range d {
			if child != nil {
				child.Release()
			}
		}
	case Destroyer:
		d.Destroy()
	}
	v.data = nil
}

func (v *Value) mustLive() {
	if v == nil {
		panic("value: nil value")
	}
	if v.refs.Load() <= 0 {
		panic(fmt.Sprintf("value: use of destroyed %s value", v.id))
	}
}

func (v *Value) expect(id ID) {
	v.mustLive()
	if v.id != id {
		panic(&KindError{Want: id, Got: v.id})
	}
}

// KindError is the panic payload of a converter called on a value of the
// wrong kind.
type KindError struct {
	Want ID
	Got  ID
}

func (e *KindError) Error() string {
	return fmt.Sprintf("value: expected %s, got %s", e.Want, e.Got)
}

// TypeCount returns the number of elements of an array, the number of pairs
// of a map, the byte length of a string or buffer, and 1 for anything else.
func TypeCount(v *Value) int {
	v.mustLive()
	switch d := v.data.(type) {
	case []*Value:
		return len(d)
	case string:
		return len(d)
	case []byte:
		return len(d)
	}
	return 1
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Destroyed() {
		return fmt.Sprintf("<destroyed %s>", v.id)
	}
	switch v.id {
	case Array, Map:
		return fmt.Sprintf("%s[%d]", v.id, TypeCount(v))
	case Null:
		return "Null"
	}
	return fmt.Sprintf("%s(%v)", v.id, v.data)
}
