// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

// Package objtable implements the object name registry (§4.4): a
// name-to-object hash with MRU rotation on lookup, plus the all-objects and
// destructed-objects lists the backend loop drains each tick.
package objtable

import (
	"container/list"

	mapset "github.com/deckarep/golang-set"
)

// Named is the minimal surface the registry needs from an object record.
type Named interface {
	Name() string
	Destructed() bool
}

// bucket is a chain of entries sharing the same hash slot, MRU-ordered:
// Find moves a hit to the front.
type bucket struct {
	entries *list.List // of Named
}

// Table is the object name registry. The zero value is not usable; use New.
type Table struct {
	buckets   []bucket
	mask      uint32
	all       *list.List         // all-objects list, oldest first
	allElems  map[string]*list.Element
	destruct  []Named            // Phase-A-complete, awaiting Phase-B reclaim
	liveNames mapset.Set         // name set mirror, for O(1) "is this name live" probes
}

// New creates a Table with the given power-of-two bucket count (rounded up
// if size is not already a power of two).
func New(size int) *Table {
	n := uint32(1)
	for int(n) < size {
		n <<= 1
	}
	if n == 0 {
		n = 1
	}
	t := &Table{
		buckets:   make([]bucket, n),
		mask:      n - 1,
		all:       list.New(),
		allElems:  make(map[string]*list.Element),
		liveNames: mapset.NewSet(),
	}
	for i := range t.buckets {
		t.buckets[i].entries = list.New()
	}
	return t
}

func hashName(s string) uint32 {
	// FNV-1a; the exact hash is not load-bearing, only chain correctness.
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (t *Table) slot(name string) *bucket {
	return &t.buckets[hashName(name)&t.mask]
}

// Enter links o into the name hash and the all-objects list (§4.4's
// enter). It is an error (silently overwritten, per "a name maps to at most
// one live object") to enter two objects under the same name; callers must
// ensure name uniqueness before calling Enter (clone_object's #serial
// suffix is how the object lifecycle guarantees this).
func (t *Table) Enter(o Named) {
	t.EnterAtEnd(o)
}

// EnterAtEnd links o at the tail of its bucket chain, used for precompiled
// stubs that must sit behind a real entry sharing the same name (§4.4).
func (t *Table) EnterAtEnd(o Named) {
	b := t.slot(o.Name())
	b.entries.PushBack(o)
	t.liveNames.Add(o.Name())
	e := t.all.PushBack(o)
	t.allElems[o.Name()] = e
}

// Remove unlinks o from both the name hash and the all-objects list. Per
// §3.4, this happens at destruct Phase A, before the object is pushed onto
// the destruct (Phase-B) list.
func (t *Table) Remove(o Named) {
	b := t.slot(o.Name())
	for e := b.entries.Front(); e != nil; e = e.Next() {
		if e.Value.(Named) == o {
			b.entries.Remove(e)
			break
		}
	}
	t.liveNames.Remove(o.Name())
	if e, ok := t.allElems[o.Name()]; ok {
		t.all.Remove(e)
		delete(t.allElems, o.Name())
	}
	t.destruct = append(t.destruct, o)
}

// Lookup finds a live object by name, rotating a hit to the bucket head
// (MRU). A destructed object is never returned because Remove runs at
// Phase A, satisfying invariant 3 in §8: every object in the name hash has
// destructed==false.
func (t *Table) Lookup(name string) (Named, bool) {
	b := t.slot(name)
	for e := b.entries.Front(); e != nil; e = e.Next() {
		o := e.Value.(Named)
		if o.Name() == name {
			b.entries.MoveToFront(e)
			return o, true
		}
	}
	return nil, false
}

// AllObjects returns the current all-objects list snapshot, oldest first.
func (t *Table) AllObjects() []Named {
	out := make([]Named, 0, t.all.Len())
	for e := t.all.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Named))
	}
	return out
}

// DrainPendingDestructs returns objects that completed Phase A and are waiting
// for the backend loop to run Phase B, then clears the pending list.
func (t *Table) DrainPendingDestructs() []Named {
	out := t.destruct
	t.destruct = nil
	return out
}

// Len reports the number of live (entered, not yet removed) objects.
func (t *Table) Len() int { return t.all.Len() }
