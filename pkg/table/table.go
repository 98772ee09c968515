// Package table implements the open-addressing hash table shared by
// globals, the string-intern table, class method tables, and instance
// fields.
package table

import "github.com/craven-lang/craven/pkg/value"

const maxLoad = 0.75

type entry struct {
	key     value.Value // KindEmpty when the slot has never held a key
	value   value.Value
	present bool // false + key==Empty marks an unused slot; false + key!=Empty is impossible
}

// Table is an open-addressing hash map keyed by arbitrary Values (strings
// are interned, so string keys compare by pointer). Deleted entries become
// tombstones (key=Empty, present=true) so probe chains stay intact.
type Table struct {
	count   int // occupied slots: live entries plus tombstones (drives the load factor)
	entries []entry
}

// New returns an empty table. The zero value of Table is also usable and
// behaves identically (lazy-allocates on first Set).
func New() *Table { return &Table{} }

func (t *Table) cap() int { return len(t.entries) }

func isTombstone(e entry) bool { return e.key.Kind == value.KindEmpty && e.present }
func isUnused(e entry) bool    { return e.key.Kind == value.KindEmpty && !e.present }

// findEntry locates the slot where key belongs: either its live entry, or
// the first tombstone/empty slot on its probe chain if absent.
func findEntry(entries []entry, key value.Value) int {
	capacity := len(entries)
	index := int(value.Hash(key)) & (capacity - 1)
	var tombstone = -1
	for {
		e := &entries[index]
		if isUnused(*e) {
			if tombstone != -1 {
				return tombstone
			}
			return index
		}
		if isTombstone(*e) {
			if tombstone == -1 {
				tombstone = index
			}
		} else if value.Equal(e.key, key) {
			return index
		}
		index = (index + 1) & (capacity - 1)
	}
}

func (t *Table) adjustCapacity(newCap int) {
	entries := make([]entry, newCap)
	t.count = 0
	for _, e := range t.entries {
		if isUnused(e) || isTombstone(e) {
			continue
		}
		dest := findEntry(entries, e.key)
		entries[dest] = entry{key: e.key, value: e.value, present: true}
		t.count++
	}
	t.entries = entries
}

// Get looks up key, walking past tombstones.
func (t *Table) Get(key value.Value) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if isUnused(*e) || isTombstone(*e) {
		return value.Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key => val. Returns true if this created a new
// entry (the occupancy count only grows when the slot was truly empty —
// reusing a tombstone must not increment it, which is the subtlety the
// original implementation's tombstone encoding exists to preserve).
func (t *Table) Set(key value.Value, val value.Value) bool {
	if len(t.entries) == 0 || float64(t.count+1) > float64(t.cap())*maxLoad {
		newCap := 8
		if t.cap() > 0 {
			newCap = t.cap() * 2
		}
		t.adjustCapacity(newCap)
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	isNew := e.key.Kind == value.KindEmpty
	if isUnused(*e) {
		t.count++
	}
	*e = entry{key: key, value: val, present: true}
	return isNew
}

// Delete converts key's entry into a tombstone, if present.
func (t *Table) Delete(key value.Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := findEntry(t.entries, key)
	e := &t.entries[idx]
	if isUnused(*e) || isTombstone(*e) {
		return false
	}
	*e = entry{key: value.Empty, present: true} // tombstone
	return true
}

// AddAll copies every live (non-tombstone) entry of src into t.
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if isUnused(e) || isTombstone(e) {
			continue
		}
		t.Set(e.key, e.value)
	}
}

// Count returns the number of live entries (tombstones excluded).
func (t *Table) Count() int {
	n := 0
	for _, e := range t.entries {
		if !isUnused(e) && !isTombstone(e) {
			n++
		}
	}
	return n
}

// FindString is the specialized lookup used during string interning: it
// compares candidate keys by length, hash, then byte content before
// falling back to the general probe, so interning never needs to
// allocate a Value to look itself up.
func (t *Table) FindString(chars string, hash uint32, keyString func(value.Value) (string, uint32, bool)) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	capacity := len(t.entries)
	index := int(hash) & (capacity - 1)
	for {
		e := &t.entries[index]
		if isUnused(*e) {
			return value.Nil, false
		}
		if !isTombstone(*e) {
			if s, h, ok := keyString(e.key); ok && h == hash && s == chars {
				return e.key, true
			}
		}
		index = (index + 1) & (capacity - 1)
	}
}

// Each calls fn for every live entry. fn must not mutate the table.
func (t *Table) Each(fn func(key, val value.Value)) {
	for _, e := range t.entries {
		if isUnused(e) || isTombstone(e) {
			continue
		}
		fn(e.key, e.value)
	}
}

// RemoveWhite deletes every live entry whose key object is unmarked,
// according to isMarked. Used by the GC's pre-sweep white-removal pass
// over the string-intern table (§4.5 step 3).
func (t *Table) RemoveWhite(isMarked func(value.Object) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if isUnused(*e) || isTombstone(*e) {
			continue
		}
		if e.key.Kind == value.KindObject && !isMarked(e.key.Obj) {
			*e = entry{key: value.Empty, present: true}
		}
	}
}
