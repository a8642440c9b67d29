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

// Package program represents the compiled, immutable output of the
// (external, out-of-scope) script-language compiler: bytecode plus the
// function, variable, string-pool, inherit and class tables the virtual
// machine and the apply dispatcher walk. A Program is shared by every
// object compiled from the same source and by every clone of such an
// object, hence it is itself reference-counted.
package program

import (
	"fmt"

	"github.com/mudcore/driver/intern"
)

// Function describes one function defined directly in a Program.
type Function struct {
	Name      intern.ID
	Address   uint32 // bytecode offset
	Flags     uint32
	NumArgs   int
	NumLocals int
}

const (
	FlagStatic  uint32 = 1 << iota // invisible to external (non-local) applies
	FlagPrivate                    // invisible across inheritance boundaries
	FlagVarArgs
)

// RuntimeFunction is an entry in the per-Program flattened function table
// used for O(1) call-by-index even when the function is only reachable
// through inheritance (§4.3).
type RuntimeFunction struct {
	// Inherited is false when Index refers directly into this Program's
	// own Functions table. When true, InheritIndex selects an entry in
	// Inherits and Index is an index into that ancestor's own RuntimeFns,
	// resolved there in turn until a non-inherited entry is reached (the
	// function-index-offset from §3.3/§4.3 is folded in at link time, so
	// callers never add it themselves).
	Inherited    bool
	Index        int
	InheritIndex int
}

// Variable describes one instance variable slot, declared either directly
// or inherited.
type Variable struct {
	Name intern.ID
	Type string // declared script type, opaque to the driver core
}

// Inherit describes one inherited program and the flat-offset linkage
// described in §4.3: a clone/load of the child allocates one variable slot
// per variable visible through the whole inherit chain, and these offsets
// are how "inherited variable #k" resolves to the correct flat slot.
type Inherit struct {
	Child             *Program
	FunctionIndexOff  int
	VariableIndexOff  int
	TypeModifier      string
}

// Class describes one class/struct-literal type defined in the program.
type Class struct {
	Name    string
	Members []Variable
}

// LineEntry is one row of the compressed pc->(file,line) table.
type LineEntry struct {
	PC   uint32
	File int // index into Files
	Line int
}

// Instruction is one bytecode unit: an opcode tag (interpreted by package
// vm's Opcode type) plus a single inline operand — a string-pool index, a
// local-slot number, a jump target, or an argument count depending on the
// opcode. The program image's on-disk/in-memory layout is not fixed by the
// specification (§6.3 Non-goals); this flat, directly-indexable slice
// stands in for what would otherwise be a packed byte stream.
type Instruction struct {
	Op      uint8
	Operand int64
}

// Program is the immutable compiled image of one source file. The zero
// value is not meaningful; construct with New.
type Program struct {
	refs int

	Path       string
	Bytecode   []Instruction
	Functions  []Function
	RuntimeFns []RuntimeFunction
	Variables  []Variable
	StringPool []intern.ID
	Inherits   []Inherit
	Classes    []Class
	Files      []string
	Lines      []LineEntry
}

// New constructs a Program with a single outstanding reference (its
// defining object or load-cache entry).
func New(path string) *Program {
	return &Program{Path: path, refs: 1}
}

// Ref increments the program's reference count (a clone or a second object
// loaded from a cache hit both add one).
func (p *Program) Ref() { p.refs++ }

// Unref decrements the reference count, returning true if it reached zero;
// at zero it also drops one reference on each inherited Program, so the
// caller only discards this Program itself.
func (p *Program) Unref() bool {
	p.refs--
	if p.refs < 0 {
		panic("program: unref underflow")
	}
	if p.refs == 0 {
		for _, inh := range p.Inherits {
			inh.Child.Unref()
		}
		return true
	}
	return false
}

// TotalVariables returns the flat slot count an object of this program
// needs: its own variables plus every variable reachable through the
// inherit chain.
func (p *Program) TotalVariables() int {
	total := len(p.Variables)
	for _, inh := range p.Inherits {
		total += inh.Child.TotalVariables()
	}
	return total
}

// FunctionAt resolves a runtime function index to its defining program and
// Function record, walking the inherit chain as needed (§4.3's "calling a
// function by runtime index must be O(1) even when the function lives in
// an ancestor" — the walk here is bounded by inherit depth, not program
// size, because RuntimeFns already encodes the direct/inherited choice).
func (p *Program) FunctionAt(idx int) (*Program, *Function, error) {
	if idx < 0 || idx >= len(p.RuntimeFns) {
		return nil, nil, fmt.Errorf("program: runtime function index %d out of range", idx)
	}
	rf := p.RuntimeFns[idx]
	if !rf.Inherited {
		if rf.Index < 0 || rf.Index >= len(p.Functions) {
			return nil, nil, fmt.Errorf("program: function index %d out of range", rf.Index)
		}
		return p, &p.Functions[rf.Index], nil
	}
	if rf.InheritIndex < 0 || rf.InheritIndex >= len(p.Inherits) {
		return nil, nil, fmt.Errorf("program: inherit index %d out of range", rf.InheritIndex)
	}
	return p.Inherits[rf.InheritIndex].Child.FunctionAt(rf.Index)
}

// LineFor returns the (file, line) pair for a given program counter using
// the compressed table: the last entry whose PC is <= pc applies.
func (p *Program) LineFor(pc uint32) (file string, line int, ok bool) {
	best := -1
	for i, e := range p.Lines {
		if e.PC <= pc {
			best = i
		} else {
			break
		}
	}
	if best < 0 {
		return "", 0, false
	}
	e := p.Lines[best]
	if e.File < 0 || e.File >= len(p.Files) {
		return "", e.Line, true
	}
	return p.Files[e.File], e.Line, true
}
