// Package table implements the open-addressed, string-keyed hash table
// loxvm uses for global variables and string interning. Class method
// tables and instance fields use plain Go maps instead (pkg/value); they
// have no need for the weak-reference sweep or FindString-by-raw-text
// lookups this table exists to provide.
package table

import "github.com/kristofer/loxvm/pkg/value"

const maxLoad = 0.75

// entry is one slot in the backing array. A nil Key with Value.IsNil()
// true is an empty slot; a nil Key with Value holding KindBool(true) is a
// tombstone left behind by Delete, so probing can continue past it.
type entry struct {
	Key   *value.StringObj
	Value value.Value
}

// Table is an open-addressed hash table keyed on interned *StringObj
// pointers, probing linearly on collision.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Count reports the number of live (non-tombstone) entries.
func (t *Table) Count() int {
	live := 0
	for _, e := range t.entries {
		if e.Key != nil {
			live++
		}
	}
	return live
}

// Get looks up key, reporting whether it was found.
func (t *Table) Get(key *value.StringObj) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	e := t.findEntry(t.entries, key)
	if e.Key == nil {
		return value.Nil, false
	}
	return e.Value, true
}

// Set inserts or overwrites key's value, growing the backing array first
// if the load factor would exceed maxLoad. It reports whether this
// created a brand-new key (as opposed to overwriting an existing one).
func (t *Table) Set(key *value.StringObj, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}

	e := t.findEntry(t.entries, key)
	isNew := e.Key == nil
	if isNew && e.Value.IsNil() {
		// Only a genuinely empty slot (not a reused tombstone) grows count.
		t.count++
	}
	e.Key = key
	e.Value = v
	return isNew
}

// Delete removes key, leaving a tombstone (Key nil, Value true) so later
// probes for other keys that hashed into the same run keep working.
func (t *Table) Delete(key *value.StringObj) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if e.Key == nil {
		return false
	}
	e.Key = nil
	e.Value = value.Bool(true)
	return true
}

// AddAll copies every live entry of src into t. Class inheritance does not
// use it: method tables are Go maps, copied directly by OP_INHERIT.
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if e.Key != nil {
			t.Set(e.Key, e.Value)
		}
	}
}

// FindString looks up a string by its raw text and precomputed hash,
// without first having an interned *StringObj — the one operation the
// intern pool needs that a plain Get cannot provide.
func (t *Table) FindString(chars string, hash uint32) *value.StringObj {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.Key == nil {
			// Stop only on a true empty slot; tombstones have Value true.
			if e.Value.IsNil() {
				return nil
			}
		} else if e.Key.Hash == hash && e.Key.Chars == chars {
			return e.Key
		}
		index = (index + 1) & mask
	}
}

// RemoveWhite deletes every key the garbage collector did not mark during
// the last mark phase, run just before sweep on the intern table so dead
// strings don't keep themselves artificially alive (spec.md's weak-table
// pass).
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key != nil && !e.Key.Marked {
			e.Key = nil
			e.Value = value.Bool(true)
		}
	}
}

// Each calls fn for every live entry. Used by the collector to mark the
// globals table's roots.
func (t *Table) Each(fn func(key *value.StringObj, v value.Value)) {
	for _, e := range t.entries {
		if e.Key != nil {
			fn(e.Key, e.Value)
		}
	}
}

func (t *Table) findEntry(entries []entry, key *value.StringObj) *entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *entry
	for {
		e := &entries[index]
		switch {
		case e.Key == nil:
			if e.Value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		case e.Key == key:
			return e
		}
		index = (index + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	newEntries := make([]entry, newCap)

	t.count = 0
	for _, e := range t.entries {
		if e.Key == nil {
			continue
		}
		dest := t.findEntry(newEntries, e.Key)
		dest.Key = e.Key
		dest.Value = e.Value
		t.count++
	}
	t.entries = newEntries
}
