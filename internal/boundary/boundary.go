// Package boundary owns every operation that crosses between host-owned and
// Go-owned memory: opaque handles for callables held by the host, names
// handed to the host, and checked casts of symbols resolved from a loaded
// library. Nothing outside this package stores raw payloads for the host.
package boundary

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Handle is an opaque token the host stores in place of a Go payload.
// The zero Handle is never issued.
type Handle uintptr

// Table maps handles to payloads. Each handle is released exactly once.
type Table[T any] struct {
	mu      sync.Mutex
	entries map[Handle]T
	next    Handle
}

// NewTable creates an empty handle table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{entries: make(map[Handle]T), next: 1}
}

// New stores payload and returns its handle.
func (t *Table[T]) New(payload T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.entries[h] = payload
	return h
}

// Get returns the payload for h.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[h]
	return p, ok
}

// MustGet returns the payload for h and panics if h is not live.
func (t *Table[T]) MustGet(h Handle) T {
	p, ok := t.Get(h)
	if !ok {
		panic(fmt.Sprintf("boundary: use of released handle %d", h))
	}
	return p
}

// Release frees h. Releasing an unknown or already released handle is a
// logic error and panics.
func (t *Table[T]) Release(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[h]; !ok {
		panic(fmt.Sprintf("boundary: double release of handle %d", h))
	}
	delete(t.entries, h)
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// CheckName reports whether name can be handed to the host as a
// NUL-terminated identifier.
func CheckName(name string) error {
	if name == "" {
		return fmt.Errorf("boundary: empty name")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("boundary: name %q contains NUL", name)
	}
	return nil
}

// MustName returns name, panicking if CheckName rejects it.
func MustName(name string) string {
	if err := CheckName(name); err != nil {
		panic(err)
	}
	return name
}

// Cast converts a resolved library symbol to T. Func symbols whose type is
// structurally identical to T are converted; variable symbols resolve to a
// pointer and are dereferenced.
func Cast[T any](sym any, name string) (T, error) {
	var zero T
	if v, ok := sym.(T); ok {
		return v, nil
	}
	if sym == nil {
		return zero, fmt.Errorf("symbol %s: nil", name)
	}

	want := reflect.TypeOf((*T)(nil)).Elem()
	rv := reflect.ValueOf(sym)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Type().ConvertibleTo(want) {
		rv = rv.Elem()
	}
	if rv.Type().ConvertibleTo(want) && rv.Kind() == want.Kind() {
		return rv.Convert(want).Interface().(T), nil
	}
	return zero, fmt.Errorf("symbol %s: has type %s, want %s", name, reflect.TypeOf(sym), want)
}
