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

package value

// Array is the reference-counted vector container variant.
type Array struct {
	refCounted
	Elems []Value
}

func NewArray(elems []Value) *Array { return &Array{Elems: elems} }

// Mapping is the reference-counted associative container variant. Keys are
// compared by Equal; a missing key read yields Undefined (§4.5 indexing
// family: "inserting undefined on read is not done").
type Mapping struct {
	refCounted
	keys []Value
	vals []Value
}

func NewMapping() *Mapping { return &Mapping{} }

func (m *Mapping) Get(key Value) Value {
	for i, k := range m.keys {
		if Equal(k, key) {
			return m.vals[i]
		}
	}
	return Undefined
}

func (m *Mapping) Set(key, val Value) {
	for i, k := range m.keys {
		if Equal(k, key) {
			Free(m.vals[i])
			m.vals[i] = Assign(val)
			return
		}
	}
	m.keys = append(m.keys, Assign(key))
	m.vals = append(m.vals, Assign(val))
}

func (m *Mapping) Len() int { return len(m.keys) }

func (m *Mapping) Each(fn func(k, v Value)) {
	for i := range m.keys {
		fn(m.keys[i], m.vals[i])
	}
}

// Buffer is the reference-counted raw-byte container variant.
type Buffer struct {
	refCounted
	Bytes []byte
}

func NewBuffer(b []byte) *Buffer { return &Buffer{Bytes: b} }

// FuncPtrKind discriminates the five functional-value flavors from §4.5
// ("Pointers & functional values").
type FuncPtrKind uint8

const (
	FuncPtrEfun FuncPtrKind = iota
	FuncPtrLfun
	FuncPtrSimul
	FuncPtrVariable
	FuncPtrFunctional // captures enclosing locals; not bindable, see §4.5
)

// ObjectRef is the minimal surface the value package needs from an object
// lifecycle record. The concrete type lives in package object; it is kept
// as an interface here so the value model has no import-cycle dependency
// on the lifecycle package that in turn stores Values in instance
// variables.
type ObjectRef interface {
	Name() string
	Destructed() bool
}

// FuncPtr is the reference-counted function-pointer container variant.
type FuncPtr struct {
	refCounted
	PtrKind  FuncPtrKind
	Name     string    // efun/lfun/simul name, empty for functional literals
	Object   ObjectRef // bound object, nil for efun/functional
	Captured []Value   // captured locals for FuncPtrFunctional; read-only
}

// ObjectHandle is the reference-counted object-reference container variant:
// it owns one reference count on the target object record, independent of
// the object table's own bookkeeping, so that a value held on the VM stack
// or in a global keeps counting even across a destruct Phase A (the object
// itself becomes unreachable via lookup, but the handle remains valid
// through Phase B, per §3.4's rationale for splitting destruct in two).
type ObjectHandle struct {
	refCounted
	Target ObjectRef
}

func NewObjectHandle(o ObjectRef) *ObjectHandle { return &ObjectHandle{Target: o} }

// ClassInstance is the reference-counted class-instance container variant
// (a fixed-layout struct literal, distinct from Array in that its member
// count and names are fixed by the defining program's class table).
type ClassInstance struct {
	refCounted
	ClassName string
	Members   []Value
}
