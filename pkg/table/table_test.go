package table

import (
	"testing"

	"github.com/craven-lang/craven/pkg/value"
)

type fakeString struct {
	s    string
	hash uint32
}

func (f *fakeString) ObjType() uint8  { return 0 }
func (f *fakeString) HashBits() uint32 { return f.hash }

func keyOf(s string) value.Value {
	return value.Obj(&fakeString{s: s, hash: fnv(s)})
}

func fnv(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func TestSetGetDelete(t *testing.T) {
	tb := New()
	k := keyOf("foo")
	if isNew := tb.Set(k, value.Number(1)); !isNew {
		t.Fatalf("expected new entry")
	}
	got, ok := tb.Get(k)
	if !ok || got.Number != 1 {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if !tb.Delete(k) {
		t.Fatalf("Delete returned false")
	}
	if _, ok := tb.Get(k); ok {
		t.Fatalf("Get after Delete should miss")
	}
}

func TestTombstoneDoesNotInflateCount(t *testing.T) {
	tb := New()
	k1, k2 := keyOf("a"), keyOf("b")
	tb.Set(k1, value.Number(1))
	tb.Set(k2, value.Number(2))
	if tb.Count() != 2 {
		t.Fatalf("count = %d, want 2", tb.Count())
	}
	tb.Delete(k1)
	if tb.Count() != 1 {
		t.Fatalf("count after delete = %d, want 1", tb.Count())
	}
	// Reinserting a different key should not double-count the tombstone slot.
	k3 := keyOf("c")
	tb.Set(k3, value.Number(3))
	if tb.Count() != 2 {
		t.Fatalf("count after reinsert = %d, want 2", tb.Count())
	}
}

func TestResizeKeepsAllEntries(t *testing.T) {
	tb := New()
	for i := 0; i < 64; i++ {
		tb.Set(value.Number(float64(i)), value.Number(float64(i*2)))
	}
	for i := 0; i < 64; i++ {
		got, ok := tb.Get(value.Number(float64(i)))
		if !ok || got.Number != float64(i*2) {
			t.Fatalf("Get(%d) = %v, %v", i, got, ok)
		}
	}
	if tb.Count() != 64 {
		t.Fatalf("count = %d, want 64", tb.Count())
	}
}

func TestFindString(t *testing.T) {
	tb := New()
	k := keyOf("hello")
	tb.Set(k, value.Bool_(true))
	keyString := func(v value.Value) (string, uint32, bool) {
		fs, ok := v.Obj.(*fakeString)
		if !ok {
			return "", 0, false
		}
		return fs.s, fs.hash, true
	}
	found, ok := tb.FindString("hello", fnv("hello"), keyString)
	if !ok {
		t.Fatalf("FindString missed existing key")
	}
	if found.Obj.(*fakeString).s != "hello" {
		t.Fatalf("FindString returned wrong key")
	}
	if _, ok := tb.FindString("nope", fnv("nope"), keyString); ok {
		t.Fatalf("FindString matched a key that was never inserted")
	}
}
