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

// Package callout implements the deferred-call scheduler (§4.7): a
// hash wheel of CYCLE slots, each holding a delta-ordered chain of pending
// calls, plus handle allocation and cancellation.
package callout

import (
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/value"
)

// Cycle is the wheel's slot count, must be a power of two so handle
// encoding can pack the slot into the low bits (§4.7 "Handle encoding").
const Cycle = 1 << 12

const logCycle = 12 // log2(Cycle)

// chunkSize is the free-list allocation granularity for pending-call
// structs, grounded on original_source/lib/efuns/call_out.c's
// CHUNK_SIZE=20: entries are recycled in batches rather than allocated one
// at a time, since the driver is single-threaded and a sync.Pool would
// only add atomic overhead with no concurrency payoff.
const chunkSize = 20

// Target is either a named apply on Owner, or a bound function pointer
// (§4.7 "Execution unlinks and then dispatches via apply ... or
// call_function_pointer").
type Target struct {
	Owner    *object.Object
	FuncName string       // set when dispatching via apply
	FuncPtr  *value.Value // set when dispatching via a function pointer; nil otherwise
}

// entry is one pending call-out. Handle uniquely identifies it; Delta is
// the remaining tick count within its slot's chain (only the head entry's
// Delta is ever decremented — see Tick).
type entry struct {
	handle       uint64
	slot         int
	delta        int
	target       Target
	args         []value.Value
	commandGiver *object.Object
	next         *entry
}

// Wheel is the call-out scheduler.
type Wheel struct {
	slots   [Cycle]*entry
	byHandle map[uint64]*entry
	free    []*entry // recycled entries, chunkSize at a time
	counter uint64
	now     uint64
}

// New returns an empty Wheel.
func New() *Wheel {
	return &Wheel{byHandle: make(map[uint64]*entry)}
}

func (w *Wheel) alloc() *entry {
	if len(w.free) == 0 {
		chunk := make([]entry, chunkSize)
		for i := range chunk {
			w.free = append(w.free, &chunk[i])
		}
	}
	e := w.free[len(w.free)-1]
	w.free = w.free[:len(w.free)-1]
	*e = entry{}
	return e
}

func (w *Wheel) release(e *entry) {
	w.free = append(w.free, e)
}

// Add schedules target to fire after delay ticks (§4.7). A delay below 1
// is treated as 1.
func (w *Wheel) Add(target Target, args []value.Value, commandGiver *object.Object, delay int) uint64 {
	if delay < 1 {
		delay = 1
	}
	slot := int((w.now + uint64(delay)) % Cycle)
	// Visits of slot before it fires: the first Tick that visits it comes
	// delay%Cycle ticks from now (immediately when that is 0), then one visit
	// per full rotation.
	delta := delay/Cycle + 1

	e := w.alloc()
	w.counter++
	e.handle = uint64(slot) | (w.counter << logCycle)
	e.slot = slot
	e.delta = delta
	e.target = target
	e.args = args
	e.commandGiver = commandGiver

	w.insertSorted(slot, e)
	w.byHandle[e.handle] = e
	return e.handle
}

// insertSorted threads e into the slot's delta-list, keeping deltas
// relative to the previous entry in the chain (the classic delta-list:
// only the head's delta is absolute-from-now, every following entry's
// delta is relative to the one before it). Entries whose absolute delta
// ties an existing sibling's land immediately after it with a relative
// delta of zero, so ties fire together on the same visit rather than
// being pushed a spurious full rotation later.
func (w *Wheel) insertSorted(slot int, e *entry) {
	var prev *entry
	cur := w.slots[slot]
	remaining := e.delta
	for cur != nil && remaining >= cur.delta {
		remaining -= cur.delta
		prev = cur
		cur = cur.next
	}
	e.delta = remaining
	if cur != nil {
		cur.delta -= remaining
	}
	e.next = cur
	if prev == nil {
		w.slots[slot] = e
	} else {
		prev.next = e
	}
}

// Remove cancels a pending call-out by handle (§4.7 invariant: no two
// call-outs share a handle, so lookup is O(1) then an O(chain-length)
// unlink).
func (w *Wheel) Remove(handle uint64) bool {
	e, ok := w.byHandle[handle]
	if !ok {
		return false
	}
	w.unlink(e)
	return true
}

func (w *Wheel) unlink(e *entry) {
	slot := e.slot
	head := w.slots[slot]
	if head == e {
		w.slots[slot] = e.next
		if e.next != nil {
			e.next.delta += e.delta
		}
	} else {
		cur := head
		for cur != nil && cur.next != e {
			cur = cur.next
		}
		if cur != nil {
			cur.next = e.next
			if e.next != nil {
				e.next.delta += e.delta
			}
		}
	}
	delete(w.byHandle, e.handle)
	w.release(e)
}

// RemoveOwnedBy cancels every call-out owned by or targeting obj (§4.7
// invariant: "on object destruct, all call-outs owned by or targeted at
// that object are removed").
func (w *Wheel) RemoveOwnedBy(obj *object.Object) {
	for slot := range w.slots {
		cur := w.slots[slot]
		for cur != nil {
			next := cur.next
			if cur.target.Owner == obj || cur.commandGiver == obj {
				w.unlink(cur)
			}
			cur = next
		}
	}
}

// FindRemaining implements find_call_out(handle) (§4.7): O(chain-length-
// in-slot) since it must sum deltas from the slot head to the entry, plus
// the number of ticks left before the wheel's current position first
// reaches the entry's slot (zero if that slot is the one about to be
// processed).
func (w *Wheel) FindRemaining(handle uint64) (ticks int, ok bool) {
	e, present := w.byHandle[handle]
	if !present {
		return -1, false
	}
	sum := 0
	for cur := w.slots[e.slot]; cur != nil; cur = cur.next {
		sum += cur.delta
		if cur == e {
			toSlot := (e.slot - int(w.now%Cycle) + Cycle) % Cycle
			return toSlot + (sum-1)*Cycle, true
		}
	}
	return -1, false
}

// Fired is one call-out ready to dispatch, returned by Tick for the caller
// (the backend loop) to invoke via apply/call_function_pointer — dispatch
// itself needs the VM, which this package does not depend on, keeping the
// scheduler's own import graph minimal.
type Fired struct {
	Target       Target
	Args         []value.Value
	CommandGiver *object.Object
}

// Tick advances the wheel by one tick and returns every entry whose delta
// reached zero this tick, in chain order (§5's ordering guarantee:
// "within one call-out tick, all entries whose delta reaches zero this
// tick fire in chain order").
func (w *Wheel) Tick() []Fired {
	slot := int(w.now % Cycle)
	w.now++

	var fired []Fired
	for w.slots[slot] != nil && w.slots[slot].delta == 0 {
		e := w.slots[slot]
		w.slots[slot] = e.next
		delete(w.byHandle, e.handle)
		fired = append(fired, Fired{Target: e.target, Args: e.args, CommandGiver: e.commandGiver})
		w.release(e)
	}
	if w.slots[slot] != nil {
		w.slots[slot].delta--
		for w.slots[slot] != nil && w.slots[slot].delta == 0 {
			e := w.slots[slot]
			w.slots[slot] = e.next
			delete(w.byHandle, e.handle)
			fired = append(fired, Fired{Target: e.target, Args: e.args, CommandGiver: e.commandGiver})
			w.release(e)
		}
	}
	return fired
}

// Len reports the total pending entry count across every slot (§8
// invariant 7: "the call-out wheel's total entry count equals the sum of
// lengths of all slot chains").
func (w *Wheel) Len() int {
	n := 0
	for _, head := range w.slots {
		for cur := head; cur != nil; cur = cur.next {
			n++
		}
	}
	return n
}
