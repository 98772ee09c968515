package heap

import (
	"testing"

	"github.com/craven-lang/craven/pkg/value"
)

func TestStringInterning(t *testing.T) {
	h := New()
	a := h.NewString("hello")
	b := h.NewString("hello")
	if a != b {
		t.Fatalf("NewString returned distinct objects for equal content")
	}
	if !value.Equal(value.Obj(a), value.Obj(b)) {
		t.Fatalf("interned strings should compare equal")
	}
}

func TestDisplay(t *testing.T) {
	h := New()
	list := h.NewList([]value.Value{value.Number(1), value.Bool_(true), value.Obj(h.NewString("x"))})
	got := Display(value.Obj(list))
	want := "[1, true, x]"
	if got != want {
		t.Fatalf("Display(list) = %q, want %q", got, want)
	}
	none := h.NewNone()
	if Display(value.Obj(none)) != "none" {
		t.Fatalf("Display(none) wrong")
	}
	some := h.NewSome(value.Number(5))
	if Display(value.Obj(some)) != "some(5)" {
		t.Fatalf("Display(some(5)) = %q", Display(value.Obj(some)))
	}
}

func TestIsFalsey(t *testing.T) {
	h := New()
	none := h.NewNone()
	if !IsFalsey(value.Obj(none)) {
		t.Fatalf("none option should be falsey")
	}
	some := h.NewSome(value.Bool_(false))
	if IsFalsey(value.Obj(some)) {
		t.Fatalf("some(false) should be truthy")
	}
}

// fakeRoots marks nothing, so a collection run against it should sweep
// every allocated object.
type fakeRoots struct{}

func (fakeRoots) MarkRoots(mark func(value.Value)) {}

func TestCollectGarbageSweepsUnreachable(t *testing.T) {
	h := New()
	h.NewString("garbage")
	h.NewList([]value.Value{value.Number(1)})
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 before collection", h.Count())
	}
	h.CollectGarbage(fakeRoots{})
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 after collecting with no roots", h.Count())
	}
}

type rootedValue struct {
	v value.Value
}

func (r rootedValue) MarkRoots(mark func(value.Value)) { mark(r.v) }

func TestCollectGarbageKeepsReachable(t *testing.T) {
	h := New()
	kept := h.NewString("kept")
	h.NewString("garbage")
	h.CollectGarbage(rootedValue{v: value.Obj(kept)})
	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after collecting with one root", h.Count())
	}
}
