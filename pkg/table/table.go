// Package table implements the engine's open-addressed hash table, used
// for the string intern table and for each VM's globals table (module
// namespaces and dicts use other structures). It is hand-written rather than sourced from a generic map
// library because the probing scheme itself is part of what this engine
// is meant to demonstrate — see DESIGN.md.
package table

import "github.com/kristofer/vellum/pkg/value"

const maxLoadFactor = 0.75

type entry struct {
	key      string
	hash     uint32
	val      value.Value
	present  bool
	tombstone bool
	probeLen int // Robin-Hood displacement distance from ideal slot
}

// Table is a Robin-Hood open-addressed hash table keyed by string,
// storing Values. Deletion leaves a tombstone so probe chains past a
// deleted slot stay intact, and is counted toward the load factor so
// long-lived tables with churn still resize.
type Table struct {
	entries []entry
	count   int // live + tombstones
	live    int
}

func New() *Table {
	return &Table{entries: make([]entry, 8)}
}

func hashString(s string) uint32 {
	return value.FNV1a(s)
}

func (t *Table) cap() int { return len(t.entries) }

func (t *Table) Get(key string) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.NilVal, false
	}
	h := hashString(key)
	idx := int(h) % t.cap()
	dist := 0
	for {
		e := &t.entries[idx]
		if !e.present && !e.tombstone {
			return value.NilVal, false
		}
		if e.present && e.hash == h && e.key == key {
			return e.val, true
		}
		if e.present && dist > e.probeLen {
			return value.NilVal, false
		}
		idx = (idx + 1) % t.cap()
		dist++
		if dist > t.cap() {
			return value.NilVal, false
		}
	}
}

func (t *Table) Set(key string, v value.Value) bool {
	if float64(t.count+1) > float64(t.cap())*maxLoadFactor {
		t.grow()
	}
	isNew := t.insert(key, hashString(key), v)
	if isNew {
		t.count++
		t.live++
	}
	return isNew
}

// insert implements Robin-Hood insertion: the incoming entry steals the
// slot from whichever resident entry has probed less far than it has,
// and that displaced entry continues probing from there.
func (t *Table) insert(key string, h uint32, v value.Value) bool {
	idx := int(h) % t.cap()
	dist := 0
	cur := entry{key: key, hash: h, val: v, present: true, probeLen: 0}
	for {
		e := &t.entries[idx]
		if !e.present {
			*e = cur
			e.probeLen = dist
			return true
		}
		if e.hash == cur.hash && e.key == cur.key {
			e.val = cur.val
			return false
		}
		if dist > e.probeLen {
			cur.probeLen = dist
			cur, *e = *e, cur
			dist = cur.probeLen
		}
		idx = (idx + 1) % t.cap()
		dist++
	}
}

func (t *Table) Delete(key string) bool {
	if len(t.entries) == 0 {
		return false
	}
	h := hashString(key)
	idx := int(h) % t.cap()
	dist := 0
	for {
		e := &t.entries[idx]
		if !e.present && !e.tombstone {
			return false
		}
		if e.present && e.hash == h && e.key == key {
			e.present = false
			e.tombstone = true
			t.live--
			return true
		}
		if e.present && dist > e.probeLen {
			return false
		}
		idx = (idx + 1) % t.cap()
		dist++
		if dist > t.cap() {
			return false
		}
	}
}

func (t *Table) Len() int { return t.live }

func (t *Table) Each(fn func(key string, v value.Value)) {
	for _, e := range t.entries {
		if e.present {
			fn(e.key, e.val)
		}
	}
}

func (t *Table) grow() {
	old := t.entries
	newCap := t.cap() * 2
	if newCap < 8 {
		newCap = 8
	}
	t.entries = make([]entry, newCap)
	t.count = 0
	t.live = 0
	for _, e := range old {
		if e.present {
			if t.insert(e.key, e.hash, e.val) {
				t.count++
				t.live++
			}
		}
	}
}

// InternTable deduplicates string objects by content so every equal
// string literal or concatenation result shares one *value.Obj, making
// string equality a pointer comparison at the VM level.
type InternTable struct {
	t *Table
}

func NewInternTable() *InternTable {
	return &InternTable{t: New()}
}

func (it *InternTable) Intern(chars string) *value.Obj {
	if v, ok := it.t.Get(chars); ok {
		return v.AsObj()
	}
	obj := value.NewObj(value.KindString, value.NewString(chars))
	it.t.Set(chars, value.Obj_(obj))
	return obj
}

func (it *InternTable) Len() int { return it.t.Len() }
