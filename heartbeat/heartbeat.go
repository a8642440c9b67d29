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

// Package heartbeat implements the periodic object-tick scheduler (§4.8): a
// dense, growable array of registrations walked round-robin once per
// heart-beat tick, with one-strike poisoning on error.
package heartbeat

import "github.com/mudcore/driver/object"

// registration is one object's heart-beat state.
type registration struct {
	obj       *object.Object
	period    int
	remaining int // ticks until next firing
	disabled  bool
}

// Scheduler holds every object with an active heart beat.
type Scheduler struct {
	regs    []*registration
	byObj   map[*object.Object]*registration
	cursor  int // round-robin walk position, stable across reentrant removal
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{byObj: make(map[*object.Object]*registration)}
}

// Set implements set_heart_beat(obj, n) (§4.8): n == 0 removes the
// registration; n > 0 installs or updates it, with the first firing n
// ticks away.
func (s *Scheduler) Set(obj *object.Object, n int) {
	if n <= 0 {
		s.remove(obj)
		return
	}
	if r, ok := s.byObj[obj]; ok {
		r.period = n
		r.remaining = n
		r.disabled = false
		return
	}
	r := &registration{obj: obj, period: n, remaining: n}
	s.byObj[obj] = r
	s.regs = append(s.regs, r)
}

// Query implements query_heart_beat(obj) (§4.8): returns the period, or 0
// if obj has none.
func (s *Scheduler) Query(obj *object.Object) int {
	if r, ok := s.byObj[obj]; ok && !r.disabled {
		return r.period
	}
	return 0
}

func (s *Scheduler) remove(obj *object.Object) {
	r, ok := s.byObj[obj]
	if !ok {
		return
	}
	delete(s.byObj, obj)
	for i, cand := range s.regs {
		if cand == r {
			s.regs = append(s.regs[:i], s.regs[i+1:]...)
			if i < s.cursor {
				s.cursor--
			}
			break
		}
	}
}

// Due is one object whose heart beat fires this tick.
type Due struct {
	Object *object.Object
}

// Tick walks the registration array round-robin starting from the cursor
// left by the previous call (§4.8 "round-robin walk, reentrant-removal-
// stable"), decrementing each live registration's remaining-tick count and
// collecting those that reach zero. The cursor advance is computed before
// any removals from this tick's firings so that a heart beat which
// destructs itself (or another pending object) mid-walk does not skip or
// repeat a neighbor.
func (s *Scheduler) Tick() []Due {
	n := len(s.regs)
	if n == 0 {
		return nil
	}
	var due []Due
	start := s.cursor % n
	for i := 0; i < n; i++ {
		idx := (start + i) % len(s.regs)
		if idx >= len(s.regs) {
			break // the array shrank from a removal triggered earlier this tick
		}
		r := s.regs[idx]
		if r.disabled || r.obj.Destructed() {
			continue
		}
		r.remaining--
		if r.remaining <= 0 {
			r.remaining = r.period
			due = append(due, Due{Object: r.obj})
		}
	}
	s.cursor = (start + n) % n
	return due
}

// Poison disables obj's heart beat after an error fired during its
// execution (§4.6 "Heart-beat poisoning: If an error fires while executing
// an object's heart beat, that object's heart beat is disabled (one
// strike)"). The registration stays in the array but no longer fires, and
// Query reports 0 for it; a later Set re-enables it.
func (s *Scheduler) Poison(obj *object.Object) {
	if r, ok := s.byObj[obj]; ok {
		r.disabled = true
	}
}

// RemoveDestructed drops every registration whose object has been
// destructed — called by the backend loop's periodic sweep (§4.9) rather
// than eagerly, since Tick already skips destructed entries safely.
func (s *Scheduler) RemoveDestructed() {
	live := s.regs[:0]
	for _, r := range s.regs {
		if r.obj.Destructed() {
			delete(s.byObj, r.obj)
			continue
		}
		live = append(live, r)
	}
	s.regs = live
	if s.cursor > len(s.regs) {
		s.cursor = 0
	}
}

// Len reports the number of active registrations.
func (s *Scheduler) Len() int { return len(s.regs) }
