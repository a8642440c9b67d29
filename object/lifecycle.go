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

package object

import (
	"fmt"
	"time"

	"github.com/mudcore/driver/log"
	"github.com/mudcore/driver/objtable"
	"github.com/mudcore/driver/program"
	"github.com/mudcore/driver/value"
)

func nowTick() int64 { return time.Now().Unix() }

// Compiler is the external script-language collaborator (§1: explicitly
// out of scope). Runtime only needs it to turn a path into a linked
// Program on a cache miss.
type Compiler interface {
	Compile(path string) (*program.Program, error)
}

// Policy is the subset of master-object applies the lifecycle needs
// (§6.1): creator_file, valid_object, and the move-or-destruct callback
// used during inventory evacuation. Everything else on the master apply
// surface lives in package master.
type Policy interface {
	CreatorFile(path string) string
	ValidObject(o *Object) bool
	MoveOrDestruct(item, dest *Object) bool
	Create(o *Object, args []string) // invokes create() via the VM; args only used for clone_object
}

// Runtime bundles the object table, program cache and policy callbacks a
// driver boots with — the "single Runtime value" from §9's design notes.
type Runtime struct {
	Objects  *objtable.Table
	Programs map[string]*program.Program
	Compiler Compiler
	Policy   Policy

	serials map[string]int // base path -> next clone serial
}

func NewRuntime(objTableSize int, compiler Compiler, policy Policy) *Runtime {
	return &Runtime{
		Objects:  objtable.New(objTableSize),
		Programs: make(map[string]*program.Program),
		Compiler: compiler,
		Policy:   policy,
		serials:  make(map[string]int),
	}
}

// loadProgram returns a cached Program for path, compiling on a miss
// (§3.4 Load step 1: "if program is cached it is reused").
func (rt *Runtime) loadProgram(path string) (*program.Program, error) {
	if p, ok := rt.Programs[path]; ok {
		return p, nil
	}
	p, err := rt.Compiler.Compile(path)
	if err != nil {
		return nil, err
	}
	rt.Programs[path] = p
	return p, nil
}

// Load implements §3.4 step 1: load_object(path).
func (rt *Runtime) Load(path string) (*Object, error) {
	if existing, ok := rt.Objects.Lookup(path); ok {
		return existing.(*Object), nil
	}
	prog, err := rt.loadProgram(path)
	if err != nil {
		return nil, fmt.Errorf("object: load %s: %w", path, err)
	}
	o := New(path, prog)
	o.CreatorID = rt.Policy.CreatorFile(path)
	o.LoadTime = nowTick()
	rt.Objects.Enter(o)
	if !rt.Policy.ValidObject(o) {
		rt.Destruct(o)
		return nil, fmt.Errorf("object: %s rejected by valid_object", path)
	}
	rt.Policy.Create(o, nil)
	return o, nil
}

// Clone implements §3.4 step 2: clone_object(name, args...). The clone
// name is `<base>#<serial>` with a per-base monotonically advancing
// serial, matching the Clone-lifecycle end-to-end scenario in §8.
func (rt *Runtime) Clone(base string, args []string) (*Object, error) {
	master, ok := rt.Objects.Lookup(base)
	var prog *program.Program
	if ok {
		prog = master.(*Object).Program
	} else {
		loaded, err := rt.Load(base)
		if err != nil {
			return nil, err
		}
		prog = loaded.Program
	}
	serial := rt.serials[base]
	rt.serials[base] = serial + 1
	name := fmt.Sprintf("%s#%d", base, serial)
	o := New(name, prog)
	o.Flags |= FlagClone
	o.CreatorID = rt.Policy.CreatorFile(base)
	o.LoadTime = nowTick()
	rt.Objects.Enter(o)
	rt.Policy.Create(o, args)
	return o, nil
}

// Destruct implements §3.4 Phase A: evacuate inventory via
// Policy.MoveOrDestruct, strip sentences, detach from the name hash and
// all-objects list, mark destructed, and queue for Phase B. It returns an
// error without mutating o if any inventory item cannot be evacuated.
func (rt *Runtime) Destruct(o *Object) error {
	if o.Destructed() {
		return nil
	}
	for _, item := range o.Inventory() {
		void, ok := rt.Objects.Lookup("/room/void")
		dest, _ := void.(*Object)
		if !ok || !rt.Policy.MoveOrDestruct(item, dest) {
			return fmt.Errorf("object: failed to evacuate %s from %s during destruct", item.Name(), o.Name())
		}
	}
	// Clean up sentences anywhere they reference or are owned by o.
	for _, anyObj := range rt.Objects.AllObjects() {
		if co, ok := anyObj.(*Object); ok {
			co.RemoveSentencesOwnedBy(o)
		}
	}
	o.Flags |= FlagDestructed
	rt.Objects.Remove(o)
	return nil
}

// DestructPrivileged implements the §3.4 special case: destructing master
// or simul_efun requires successfully loading replacementPath *before* the
// old object is removed; on failure, destruct aborts with an error and the
// old object remains live.
func (rt *Runtime) DestructPrivileged(o *Object, replacementPath string) (*Object, error) {
	replacement, err := rt.Load(replacementPath)
	if err != nil {
		return nil, fmt.Errorf("object: privileged destruct of %s aborted, replacement load failed: %w", o.Name(), err)
	}
	if err := rt.Destruct(o); err != nil {
		return nil, err
	}
	return replacement, nil
}

// DrainPhaseB implements §3.4 Phase B, run from the backend loop: clear
// every pending destructed object's instance variables (which may itself
// trigger further destructs, handled by simply re-draining until empty)
// and release the object's reference on its program.
func (rt *Runtime) DrainPhaseB() {
	for {
		pending := rt.Objects.DrainPendingDestructs()
		if len(pending) == 0 {
			return
		}
		for _, n := range pending {
			o := n.(*Object)
			for i := range o.Vars {
				value.Free(o.Vars[i])
				o.Vars[i] = value.Undefined
			}
			if o.Program.Unref() {
				delete(rt.Programs, o.Program.Path)
			}
			log.Debug("object reclaimed", "name", o.Name())
		}
	}
}
