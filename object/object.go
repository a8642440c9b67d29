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

// Package object implements the live object record and its lifecycle:
// load, clone, move, and the two-phase destruct described in §3.4/§4.5.
package object

import (
	"fmt"

	"github.com/mudcore/driver/intern"
	"github.com/mudcore/driver/program"
	"github.com/mudcore/driver/value"
)

// Flags bits, §3.4.
const (
	FlagClone uint32 = 1 << iota
	FlagVirtual
	FlagOnceInteractive
	FlagListener
	FlagWizard
	FlagHeartBeat
	FlagDestructed
	FlagResetState
	FlagWillCleanUp
	FlagWillReset
	FlagHidden
	FlagEnableCommands
)

// Sentence is a verb-to-function binding attached to a command-giver's
// sentence list (§3.8).
type Sentence struct {
	Owner  *Object
	Verb   intern.ID
	Target string // function name; function-pointer targets are not supported
	NoSpace, Short bool
	Next   *Sentence
}

// Object is one live script object.
type Object struct {
	name      string // interned externally; stored as a plain string here for Named comparisons
	Program   *program.Program
	Vars      []value.Value
	CreatorID string
	EffUID    string
	Flags     uint32

	Super     *Object // containing object
	Contains  *Object // head of inventory linked list
	nextInInv *Object // this object's link in its Super's inventory chain

	Sentences *Sentence

	NextReset  int64
	TimeOfRef  int64
	LoadTime   int64
}

// Name returns the object's interned path/clone name.
func (o *Object) Name() string { return o.name }

// Destructed reports whether Phase A has run.
func (o *Object) Destructed() bool { return o.Flags&FlagDestructed != 0 }

// New constructs a fresh object sharing prog, with an instance-variable
// array sized for prog's full (including inherited) variable count.
func New(name string, prog *program.Program) *Object {
	prog.Ref()
	return &Object{
		name:    name,
		Program: prog,
		Vars:    make([]value.Value, prog.TotalVariables()),
	}
}

// link walks o's inventory and appends item at the tail, matching the
// original driver's insertion order (most recently moved-in objects sort
// last), which is what `all_inventory()` is expected to preserve.
func (o *Object) linkInventory(item *Object) {
	item.Super = o
	if o.Contains == nil {
		o.Contains = item
		return
	}
	cur := o.Contains
	for cur.nextInInv != nil {
		cur = cur.nextInInv
	}
	cur.nextInInv = item
}

func (o *Object) unlinkInventory(item *Object) {
	if o.Contains == item {
		o.Contains = item.nextInInv
		item.nextInInv = nil
		item.Super = nil
		return
	}
	cur := o.Contains
	for cur != nil && cur.nextInInv != item {
		cur = cur.nextInInv
	}
	if cur != nil {
		cur.nextInInv = item.nextInInv
	}
	item.nextInInv = nil
	item.Super = nil
}

// Inventory returns item's current inventory as a slice, head first.
func (o *Object) Inventory() []*Object {
	var out []*Object
	for cur := o.Contains; cur != nil; cur = cur.nextInInv {
		out = append(out, cur)
	}
	return out
}

// IsAncestorOf reports whether o is dest or an ancestor of dest along the
// Super chain — the check Move must fail on (§3.4 Move, "Fails if item is
// an ancestor of dest").
func (o *Object) IsAncestorOf(dest *Object) bool {
	for cur := dest; cur != nil; cur = cur.Super {
		if cur == o {
			return true
		}
	}
	return false
}

// Move implements §3.4's move_object: unlink from the current Super's
// inventory, link into dest's inventory. The caller is responsible for
// replaying init() against listeners per the spec note — that requires the
// VM's apply dispatch and is therefore invoked from the runtime layer, not
// here.
func Move(item, dest *Object) error {
	if item.IsAncestorOf(dest) {
		return fmt.Errorf("object: cannot move %s into its own descendant %s", item.name, dest.name)
	}
	if item.Super != nil {
		item.Super.unlinkInventory(item)
	}
	dest.linkInventory(item)
	return nil
}

// AddSentence attaches a verb binding to o's sentence list (§4.11
// add_action target is always the command-giver, i.e. o here).
func (o *Object) AddSentence(s *Sentence) {
	s.Next = o.Sentences
	o.Sentences = s
}

// RemoveSentencesOwnedBy detaches every sentence in o's list whose Owner is
// owner — part of destruct Phase A cleanup (§3.4: "sentences referencing or
// referenced by the object are cleaned up").
func (o *Object) RemoveSentencesOwnedBy(owner *Object) {
	var head *Sentence
	var tail *Sentence
	for s := o.Sentences; s != nil; s = s.Next {
		if s.Owner == owner {
			continue
		}
		cp := &Sentence{Owner: s.Owner, Verb: s.Verb, Target: s.Target, NoSpace: s.NoSpace, Short: s.Short}
		if head == nil {
			head = cp
			tail = cp
		} else {
			tail.Next = cp
			tail = cp
		}
	}
	o.Sentences = head
}
