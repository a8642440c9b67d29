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

// Package intern implements the shared string table: a canonicalizing,
// reference-counted pool of immutable strings so that two interned strings
// with equal content always share one pointer.
package intern

import "sync"

// maxRef is the saturation point. A ref count at maxRef means the string is
// immortal: it is never freed regardless of further Ref/Unref traffic. This
// mirrors the ref==0-means-immortal convention of the original block header
// (where the counter wraps the other way); here we saturate upward instead
// of wrapping, which is the same "stop counting, never free" outcome.
const maxRef = ^uint32(0)

// ID identifies one canonical entry in the table. Two IDs are equal if and
// only if the underlying strings are byte-identical; this is the pointer
// equality the rest of the driver relies on for O(1) name comparisons.
type ID = *entry

type entry struct {
	s   string
	ref uint32
}

// Table is a canonicalizing string pool. The zero value is not usable; use
// New. Table is not safe for concurrent use without external
// synchronization — in this driver it is only ever touched from the single
// backend goroutine, matching the "no locks required" concurrency model.
type Table struct {
	mu      sync.Mutex // guards buckets only for defensive use from tests
	buckets map[string]*entry
}

// New creates an empty Table.
func New() *Table {
	return &Table{buckets: make(map[string]*entry)}
}

// Intern returns the canonical ID for s, creating an entry with ref count 1
// if none exists yet, or incrementing (saturating) the existing entry's
// count. Calling Intern never returns different IDs for equal content.
func (t *Table) Intern(s string) ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.buckets[s]; ok {
		incRef(e)
		return e
	}
	e := &entry{s: s, ref: 1}
	t.buckets[s] = e
	return e
}

// Lookup probes for s without creating an entry or affecting any ref count.
func (t *Table) Lookup(s string) (ID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.buckets[s]
	return e, ok
}

// Ref adds one reference to id (saturating at maxRef).
func (t *Table) Ref(id ID) {
	if id == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	incRef(id)
}

func incRef(e *entry) {
	if e.ref == maxRef {
		return // already immortal
	}
	e.ref++
}

// Unref removes one reference from id. If the count reaches zero the entry
// is removed from the table. An entry that has saturated to maxRef is
// immortal and Unref is a no-op on it, exactly as the original driver's
// INC/DEC_COUNTED_REF pair treats a ref of zero (its immortal sentinel) as
// "stop counting".
func (t *Table) Unref(id ID) {
	if id == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if id.ref == maxRef {
		return
	}
	id.ref--
	if id.ref == 0 {
		delete(t.buckets, id.s)
	}
}

// String returns the backing bytes of id.
func String(id ID) string {
	if id == nil {
		return ""
	}
	return id.s
}

// RefCount reports the current reference count of id (for tests/diagnostics).
func RefCount(id ID) uint32 {
	if id == nil {
		return 0
	}
	return id.ref
}

// Len returns the number of distinct entries currently interned.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
