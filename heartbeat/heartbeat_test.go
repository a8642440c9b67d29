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

package heartbeat

import (
	"testing"

	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/program"
)

func testObject(name string) *object.Object {
	return object.New(name, program.New(name))
}

func TestSetAndQuery(t *testing.T) {
	s := New()
	obj := testObject("/obj/one")
	s.Set(obj, 4)
	if got := s.Query(obj); got != 4 {
		t.Fatalf("Query: expected 4, got %d", got)
	}
	s.Set(obj, 0)
	if got := s.Query(obj); got != 0 {
		t.Fatalf("Query after zeroing: expected 0, got %d", got)
	}
	if s.Len() != 0 {
		t.Fatalf("expected registration to be fully removed, Len() = %d", s.Len())
	}
}

func TestTickFiresAfterPeriod(t *testing.T) {
	s := New()
	obj := testObject("/obj/two")
	s.Set(obj, 3)

	for i := 0; i < 2; i++ {
		if due := s.Tick(); len(due) != 0 {
			t.Fatalf("tick %d: expected no firings yet, got %d", i, len(due))
		}
	}
	due := s.Tick()
	if len(due) != 1 || due[0].Object != obj {
		t.Fatalf("expected obj to fire on the third tick, got %+v", due)
	}
}

func TestTickReschedulesAfterFiring(t *testing.T) {
	s := New()
	obj := testObject("/obj/three")
	s.Set(obj, 2)

	s.Tick()
	first := s.Tick()
	if len(first) != 1 {
		t.Fatalf("expected first firing at tick 2, got %d", len(first))
	}
	s.Tick()
	second := s.Tick()
	if len(second) != 1 || second[0].Object != obj {
		t.Fatalf("expected second firing two ticks later, got %+v", second)
	}
}

func TestPoisonStopsFutureFirings(t *testing.T) {
	s := New()
	obj := testObject("/obj/four")
	s.Set(obj, 1)
	s.Poison(obj)

	for i := 0; i < 5; i++ {
		if due := s.Tick(); len(due) != 0 {
			t.Fatalf("poisoned object fired anyway at tick %d", i)
		}
	}
	if got := s.Query(obj); got != 0 {
		t.Fatalf("Query on a poisoned object should report 0, got %d", got)
	}
}

func TestRoundRobinSurvivesReentrantRemoval(t *testing.T) {
	s := New()
	a := testObject("/obj/a")
	b := testObject("/obj/b")
	c := testObject("/obj/c")
	s.Set(a, 1)
	s.Set(b, 1)
	s.Set(c, 1)

	due := s.Tick()
	fired := map[*object.Object]bool{}
	for _, d := range due {
		fired[d.Object] = true
	}
	if !fired[a] || !fired[b] || !fired[c] {
		t.Fatalf("expected all three to fire on the first tick, got %+v", due)
	}

	s.Set(b, 0)
	due2 := s.Tick()
	fired2 := map[*object.Object]bool{}
	for _, d := range due2 {
		fired2[d.Object] = true
	}
	if fired2[b] {
		t.Fatal("removed registration fired after being cleared")
	}
	if !fired2[a] || !fired2[c] {
		t.Fatalf("expected remaining two to keep firing, got %+v", due2)
	}
}

func TestRemoveDestructedSweep(t *testing.T) {
	s := New()
	live := testObject("/obj/live")
	gone := testObject("/obj/gone")
	s.Set(live, 5)
	s.Set(gone, 5)
	gone.Flags |= object.FlagDestructed

	s.RemoveDestructed()
	if s.Len() != 1 {
		t.Fatalf("expected one surviving registration, got %d", s.Len())
	}
	if s.Query(gone) != 0 {
		t.Fatal("destructed object's registration should be gone")
	}
	if s.Query(live) != 5 {
		t.Fatal("live object's registration should survive the sweep")
	}
}

func TestLen(t *testing.T) {
	s := New()
	if s.Len() != 0 {
		t.Fatalf("expected empty scheduler to have Len() 0, got %d", s.Len())
	}
	s.Set(testObject("/obj/x"), 10)
	s.Set(testObject("/obj/y"), 20)
	if s.Len() != 2 {
		t.Fatalf("expected Len() 2, got %d", s.Len())
	}
}
