package registry

import (
	"errors"
	"testing"

	"github.com/funvibe/gobridge/pkg/value"
)

type counter struct {
	X     int64
	Label string
}

func newCounter(x int64) counter { return counter{X: x} }

func (c counter) Doubled() int64 { return c.X * 2 }

func (c *counter) Add(n int32) { c.X += int64(n) }

func counterClass(t *testing.T) *Class {
	t.Helper()
	c, err := NewClass[counter]("Counter").
		Constructor(newCounter).
		Field("X").
		Getter("label", func(c counter) string { return c.Label }).
		Setter("label", func(c *counter, s string) { c.Label = s }).
		Method("doubled", counter.Doubled).
		MutMethod("add", (*counter).Add).
		ClassMethod("zero", func() int64 { return 0 }).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestClassScenario(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")

	arg := value.CreateLong(21)
	defer arg.Release()
	if _, err := r.MakeInstance("Counter", "c1", []*value.Value{arg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := r.Call("c1", "doubled", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := value.ToLong(res); got != 42 {
		t.Fatalf("doubled() = %d, want 42", got)
	}
	res.Release()

	ten := value.CreateLong(10)
	defer ten.Release()
	if err := r.SetAttr("c1", "X", ten); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err = r.Call("c1", "doubled", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := value.ToLong(res); got != 20 {
		t.Fatalf("doubled() = %d, want 20", got)
	}
	res.Release()

	x, err := r.GetAttr("c1", "X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToLong(x) != 10 {
		t.Fatalf("X = %d, want 10", value.ToLong(x))
	}
	x.Release()
}

func TestMutatingMethodAndAccessors(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")
	if _, err := r.MakeInstance("Counter", "c", []*value.Value{value.CreateLong(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	five := value.CreateInt(5)
	res, err := r.Call("c", "add", []*value.Value{five})
	five.Release()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.IsNull(res) {
		t.Fatalf("add returned %v, want Null", res)
	}
	res.Release()

	inst, _ := r.Lookup("c")
	p, done, err := Borrow[counter](inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.X != 6 {
		t.Fatalf("X = %d, want 6", p.X)
	}
	done()

	s := value.CreateString("hits")
	defer s.Release()
	if err := r.SetAttr("c", "label", s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := r.GetAttr("c", "label")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToString(label) != "hits" {
		t.Fatalf("label = %q", value.ToString(label))
	}
	label.Release()

	zero, err := r.CallStatic("Counter", "zero", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToLong(zero) != 0 {
		t.Fatal("zero() != 0")
	}
	zero.Release()
}

func TestLookupErrors(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")
	if _, err := r.MakeInstance("Counter", "c", []*value.Value{value.CreateLong(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	str := value.CreateString("nope")
	defer str.Release()

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"unknown class", func() error {
			_, err := r.MakeInstance("Missing", "m", nil)
			return err
		}, ErrClassNotFound},
		{"unknown attribute", func() error {
			_, err := r.GetAttr("c", "nope")
			return err
		}, ErrAttributeNotFound},
		{"unknown method", func() error {
			_, err := r.Call("c", "nope", nil)
			return err
		}, ErrMethodNotFound},
		{"unknown static", func() error {
			_, err := r.CallStatic("Counter", "nope", nil)
			return err
		}, ErrMethodNotFound},
		{"unknown instance", func() error {
			_, err := r.Call("zzz", "doubled", nil)
			return err
		}, ErrInstanceNotFound},
		{"bad attribute type", func() error {
			return r.SetAttr("c", "X", str)
		}, ErrTypeMismatch},
		{"bad arg count", func() error {
			_, err := r.Call("c", "doubled", []*value.Value{str})
			return err
		}, ErrArgCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultConstructor(t *testing.T) {
	c, err := NewClass[counter]("Plain").Field("X").Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.HasConstructor() {
		t.Fatal("unexpected constructor")
	}
	r := New()
	r.CacheClass(c, "Plain")
	if _, err := r.MakeInstance("Plain", "p", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	x, err := r.GetAttr("p", "X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.ToLong(x) != 0 {
		t.Fatal("zero value expected")
	}
	x.Release()

	one := value.CreateLong(1)
	defer one.Release()
	if _, err := r.MakeInstance("Plain", "q", []*value.Value{one}); !errors.Is(err, ErrArgCount) {
		t.Fatalf("expected ErrArgCount, got %v", err)
	}
}

func TestDuplicateIDPanics(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")
	if _, err := r.MakeInstance("Counter", "dup", []*value.Value{value.CreateLong(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate id")
		}
	}()
	r.MakeInstance("Counter", "dup", []*value.Value{value.CreateLong(2)})
}

func TestCacheClassIdempotent(t *testing.T) {
	r := New()
	c := counterClass(t)
	if got, err := r.CacheClass(c, "Counter"); err != nil || got != "Counter" {
		t.Fatalf("got %q, %v", got, err)
	}
	if got, err := r.CacheClass(c, "Other"); err != nil || got != "Counter" {
		t.Fatalf("second cache returned %q, %v, want Counter", got, err)
	}
	if names := r.ClassNames(); len(names) != 1 {
		t.Fatalf("classes = %v", names)
	}
}

type gauge struct {
	S string
}

func TestCacheClassNameTaken(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")
	if _, err := r.MakeInstance("Counter", "c1", []*value.Value{value.CreateLong(3)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other, err := NewClass[gauge]("Counter").Field("S").Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.CacheClass(other, "Counter"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}

	v, err := r.GetAttr("c1", "X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer v.Release()
	if value.ToLong(v) != 3 {
		t.Fatalf("X = %s", v)
	}
}

func TestInstanceClassMismatch(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")
	if _, err := r.Adopt("g1", &counter{X: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Rebind the name behind the registry's back, as a stale class table would.
	other, err := NewClass[gauge]("Counter").Field("S").Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.mu.Lock()
	r.classes["Counter"] = other
	r.mu.Unlock()

	if _, err := r.GetAttr("g1", "S"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("GetAttr: expected ErrTypeMismatch, got %v", err)
	}
	s := value.CreateString("x")
	defer s.Release()
	if err := r.SetAttr("g1", "S", s); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("SetAttr: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := r.Call("g1", "doubled", nil); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("Call: expected ErrTypeMismatch, got %v", err)
	}
}

func TestBorrowConflicts(t *testing.T) {
	inst := NewInstance(&counter{})

	_, done1 := inst.Borrow()
	_, done2 := inst.Borrow()
	func() {
		defer func() {
			if _, ok := recover().(*BorrowError); !ok {
				t.Fatal("expected BorrowError on exclusive borrow while shared")
			}
		}()
		inst.BorrowMut()
	}()
	done1()
	done2()

	_, done := inst.BorrowMut()
	func() {
		defer func() {
			if _, ok := recover().(*BorrowError); !ok {
				t.Fatal("expected BorrowError on shared borrow while exclusive")
			}
		}()
		inst.Borrow()
	}()
	done()

	if _, _, err := Borrow[string](inst); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	_, d, err := BorrowMut[counter](inst)
	if err != nil {
		t.Fatalf("borrow state not restored: %v", err)
	}
	d()
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() error
	}{
		{"missing field", func() error {
			_, err := NewClass[counter]("C").Field("Nope").Build()
			return err
		}},
		{"bad constructor", func() error {
			_, err := NewClass[counter]("C").Constructor(func() int { return 0 }).Build()
			return err
		}},
		{"mutating by value", func() error {
			_, err := NewClass[counter]("C").MutMethod("d", counter.Doubled).Build()
			return err
		}},
		{"wrong receiver", func() error {
			_, err := NewClass[counter]("C").Method("m", func(s string) {}).Build()
			return err
		}},
		{"not a struct", func() error {
			_, err := NewClass[int]("I").Build()
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDropAndAdopt(t *testing.T) {
	r := New()
	r.CacheClass(counterClass(t), "Counter")

	if _, err := r.Adopt("a", &counter{X: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
	if !r.Drop("a") || r.Drop("a") {
		t.Fatal("drop should succeed exactly once")
	}
	if _, err := r.Adopt("b", &struct{}{}); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("expected ErrClassNotFound, got %v", err)
	}
}
