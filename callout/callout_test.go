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

package callout

import (
	"testing"

	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/program"
)

func testObject(name string) *object.Object {
	return object.New(name, program.New(name))
}

func TestAddFiresAfterDelay(t *testing.T) {
	w := New()
	owner := testObject("/obj/one")
	handle := w.Add(Target{Owner: owner, FuncName: "callback"}, nil, owner, 3)

	if remaining, ok := w.FindRemaining(handle); !ok || remaining != 3 {
		t.Fatalf("expected 3 ticks remaining right after Add, got (%d, %v)", remaining, ok)
	}
	for i := 0; i < 3; i++ {
		if fired := w.Tick(); len(fired) != 0 {
			t.Fatalf("tick %d: expected no fires yet, got %d", i, len(fired))
		}
	}
	fired := w.Tick()
	if len(fired) != 1 {
		t.Fatalf("expected exactly one fire once the delay has elapsed, got %d", len(fired))
	}
	if fired[0].Target.FuncName != "callback" {
		t.Fatalf("wrong target fired: %+v", fired[0])
	}
}

func TestRemoveCancelsPending(t *testing.T) {
	w := New()
	owner := testObject("/obj/two")
	handle := w.Add(Target{Owner: owner, FuncName: "cb"}, nil, owner, 5)

	if !w.Remove(handle) {
		t.Fatal("Remove reported failure for a handle that was just added")
	}
	if w.Remove(handle) {
		t.Fatal("Remove succeeded twice on the same handle")
	}
	for i := 0; i < 10; i++ {
		if fired := w.Tick(); len(fired) != 0 {
			t.Fatalf("removed call-out fired anyway at tick %d", i)
		}
	}
}

func TestRemoveOwnedByDestructCleanup(t *testing.T) {
	w := New()
	owner := testObject("/obj/three")
	other := testObject("/obj/four")
	w.Add(Target{Owner: owner, FuncName: "a"}, nil, owner, 2)
	w.Add(Target{Owner: other, FuncName: "b"}, nil, other, 2)

	w.RemoveOwnedBy(owner)
	if w.Len() != 1 {
		t.Fatalf("expected exactly one surviving call-out, got %d", w.Len())
	}
	w.Tick()
	w.Tick()
	fired := w.Tick()
	if len(fired) != 1 || fired[0].Target.FuncName != "b" {
		t.Fatalf("expected only other's call-out to fire, got %+v", fired)
	}
}

func TestFindRemainingTracksChainPosition(t *testing.T) {
	w := New()
	owner := testObject("/obj/five")
	h1 := w.Add(Target{Owner: owner, FuncName: "first"}, nil, owner, 2)
	h2 := w.Add(Target{Owner: owner, FuncName: "second"}, nil, owner, 5)

	if ticks, ok := w.FindRemaining(h1); !ok || ticks != 2 {
		t.Fatalf("h1: expected (2, true), got (%d, %v)", ticks, ok)
	}
	if ticks, ok := w.FindRemaining(h2); !ok || ticks != 5 {
		t.Fatalf("h2: expected (5, true), got (%d, %v)", ticks, ok)
	}
	if _, ok := w.FindRemaining(999999); ok {
		t.Fatal("FindRemaining reported ok for an unknown handle")
	}
}

func TestTickFiresInChainOrderWithinASlot(t *testing.T) {
	w := New()
	owner := testObject("/obj/six")
	w.Add(Target{Owner: owner, FuncName: "a"}, nil, owner, 4)
	w.Add(Target{Owner: owner, FuncName: "b"}, nil, owner, 4)
	w.Add(Target{Owner: owner, FuncName: "c"}, nil, owner, 4)

	for i := 0; i < 4; i++ {
		w.Tick()
	}
	fired := w.Tick()
	if len(fired) != 3 {
		t.Fatalf("expected all three to fire together, got %d", len(fired))
	}
	want := []string{"a", "b", "c"}
	for i, f := range fired {
		if f.Target.FuncName != want[i] {
			t.Fatalf("fire order mismatch at %d: got %s, want %s", i, f.Target.FuncName, want[i])
		}
	}
}

func TestLenCountsAcrossSlots(t *testing.T) {
	w := New()
	owner := testObject("/obj/seven")
	w.Add(Target{Owner: owner, FuncName: "a"}, nil, owner, 1)
	w.Add(Target{Owner: owner, FuncName: "b"}, nil, owner, 2000)
	if w.Len() != 2 {
		t.Fatalf("expected 2 pending entries, got %d", w.Len())
	}
}

func TestAddWrapsMultipleCycles(t *testing.T) {
	w := New()
	owner := testObject("/obj/eight")
	delay := Cycle*2 + 3
	handle := w.Add(Target{Owner: owner, FuncName: "wrapped"}, nil, owner, delay)

	for i := 0; i < delay; i++ {
		if fired := w.Tick(); len(fired) != 0 {
			t.Fatalf("fired too early at tick %d", i)
		}
	}
	fired := w.Tick()
	if len(fired) != 1 || fired[0].Target.FuncName != "wrapped" {
		t.Fatalf("expected the multi-cycle call-out to fire, got %+v", fired)
	}
	if _, ok := w.FindRemaining(handle); ok {
		t.Fatal("fired call-out's handle should no longer be findable")
	}
}
