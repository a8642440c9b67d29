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

// Package journal implements the undo-log that backs both the virtual
// machine's catch/throw unwind and the object lifecycle's destruct Phase A.
// It is the same shape as a redo/undo log over mutations: record an entry
// with a revert() method at the point of mutation, then roll back to a
// saved checkpoint on error.
package journal

// Entry is one undoable mutation. Revert must restore exactly the state
// that existed before the mutation was applied.
type Entry interface {
	Revert()
}

// Journal is an append-only list of Entries with checkpoint/revert
// support, directly mirroring core/state's journal: entries and dirties
// tracking, except this driver has no concept of "dirtied address" to
// dedupe on, since VM unwind cares about order, not address identity.
type Journal struct {
	entries []Entry
}

// New returns an empty Journal.
func New() *Journal { return &Journal{} }

// Append records a new entry at the current tip.
func (j *Journal) Append(e Entry) {
	j.entries = append(j.entries, e)
}

// Snapshot returns a checkpoint usable with RevertToSnapshot.
func (j *Journal) Snapshot() int { return len(j.entries) }

// RevertToSnapshot undoes every entry recorded since snapshot, walking
// backward from the tip exactly as core/state's journal.revert does, so
// that an entry which itself appended further entries (this driver has no
// such case today, but the shape allows it) unwinds inner-first.
func (j *Journal) RevertToSnapshot(snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].Revert()
	}
	j.entries = j.entries[:snapshot]
}

// Len reports the number of entries currently recorded.
func (j *Journal) Len() int { return len(j.entries) }
