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

// Package value implements the tagged value model shared by the virtual
// machine, the object table and the interactive session layer: integers,
// reals, strings (with their three lifetime regimes), and reference-counted
// container variants (array, mapping, object, function pointer, buffer,
// class instance), plus the transient lvalue variants used only on the
// value stack.
package value

import (
	"fmt"

	"github.com/mudcore/driver/intern"
)

// Kind discriminates a Value's payload.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindInt
	KindReal
	KindString
	KindObject
	KindArray
	KindMapping
	KindFuncPtr
	KindBuffer
	KindClass
	KindLvalue
	KindByteLvalue
	KindRangeLvalue
	KindErrorHandler
)

func (k Kind) String() string {
	names := [...]string{
		"undefined", "int", "real", "string", "object", "array", "mapping",
		"funcptr", "buffer", "class", "lvalue", "byte-lvalue", "range-lvalue",
		"error-handler",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "invalid"
}

// StringSubtype distinguishes the three string lifetime regimes described
// in the data model: constant strings are never freed, owned strings carry
// a private heap buffer with their own header refcount, shared strings are
// entries in the intern table.
type StringSubtype uint8

const (
	StringConstant StringSubtype = iota
	StringOwned
	StringShared
)

// Container is implemented by every reference-counted container variant
// (Array, Mapping, Object, FuncPtr, Buffer, Class). Ref/Unref let Value's
// Assign/Free implement the single-owning-reference discipline described
// in §3.1: assigning copies the value and increments; freeing decrements
// and reclaims at zero.
type Container interface {
	ref()
	unref() (zero bool)
}

// refCounted is embedded by every concrete container type.
type refCounted struct {
	count int
}

func (r *refCounted) ref() { r.count++ }
func (r *refCounted) unref() bool {
	r.count--
	if r.count < 0 {
		panic("value: container unref underflow")
	}
	return r.count == 0
}

// RangeKind selects which end of a range is open/closed and whether it
// indexes from the start or the end of the container, per §4.2.
type RangeKind uint8

const (
	RangeNN RangeKind = iota // [lo..hi] from start
	RangeNR                  // [lo..hi) from start, exclusive upper
	RangeRN                  // (lo..hi] from end, inclusive upper
	RangeRR                  // from end both bounds
	RangeNE                  // from start, upper is end-relative
	RangeRE                  // from end, upper is end-relative
)

// Value is the tagged union the VM's stack, globals, instance variables and
// containers all hold. The zero Value is the Undefined sentinel, distinct
// from the integer zero.
type Value struct {
	kind Kind

	i   int64
	r   float64
	str string       // owned/constant string bytes
	sid intern.ID    // shared-string id, set only when kind==KindString && sub==StringShared
	sub StringSubtype

	container Container // array/mapping/object/funcptr/buffer/class payload

	lv *lvalue // set for KindLvalue/KindByteLvalue/KindRangeLvalue
}

type lvalue struct {
	kind      Kind // KindLvalue | KindByteLvalue | KindRangeLvalue
	container Container
	slot      func() (get func() Value, set func(Value))
	lo, hi    int
	rangeKind RangeKind
}

// Undefined is the canonical undefined value.
var Undefined = Value{kind: KindUndefined}

func Int(i int64) Value   { return Value{kind: KindInt, i: i} }
func Real(r float64) Value { return Value{kind: KindReal, r: r} }

// ConstantString wraps a string literal that is never freed (subtype
// "constant" in §3.1 — typically bytecode string-pool entries whose backing
// array outlives every reference to them).
func ConstantString(s string) Value {
	return Value{kind: KindString, str: s, sub: StringConstant}
}

// OwnedString wraps a uniquely-heap-allocated string value.
func OwnedString(s string) Value {
	return Value{kind: KindString, str: s, sub: StringOwned}
}

// SharedString wraps an interned string id.
func SharedString(id intern.ID) Value {
	return Value{kind: KindString, sid: id, sub: StringShared, str: intern.String(id)}
}

func FromContainer(k Kind, c Container) Value {
	c.ref()
	return Value{kind: k, container: c}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) Int() int64  { return v.i }
func (v Value) Real() float64 { return v.r }
func (v Value) Str() string { return v.str }
func (v Value) StringSub() StringSubtype { return v.sub }
func (v Value) Container() Container { return v.container }

// Assign implements §4.2's assign(dst, src): copy tag+payload, and if the
// source is a container or a shared/owned string with a counted header,
// bump its reference count. The destination's previous contents must be
// freed by the caller first via Free — Assign alone never frees dst.
func Assign(src Value) Value {
	if src.container != nil {
		src.container.ref()
	}
	return src
}

// Free implements §4.2's free(value): decrement the container refcount,
// and when it reaches zero, recursively free every value the container
// holds (an Array's elements, a Mapping's keys and values, a FuncPtr's
// captured locals, a ClassInstance's members) before reclaiming it.
// Scalars and constant strings are no-ops.
func Free(v Value) {
	if v.container == nil {
		return
	}
	if zero := v.container.unref(); zero {
		reclaim(v.container)
	}
}

// reclaim recursively frees every Value nested inside c. Container variants
// with no nested Values (Buffer, ObjectHandle) have nothing to do here.
func reclaim(c Container) {
	switch t := c.(type) {
	case *Array:
		for _, e := range t.Elems {
			Free(e)
		}
	case *Mapping:
		for i := range t.keys {
			Free(t.keys[i])
			Free(t.vals[i])
		}
	case *FuncPtr:
		for _, e := range t.Captured {
			Free(e)
		}
	case *ClassInstance:
		for _, e := range t.Members {
			Free(e)
		}
	}
}

// Promote performs the int<->real coercions permitted by §4.2; any other
// combination is an error the VM surfaces as a catchable runtime error.
func Promote(v Value, target Kind) (Value, error) {
	switch {
	case v.kind == target:
		return v, nil
	case v.kind == KindInt && target == KindReal:
		return Real(float64(v.i)), nil
	case v.kind == KindReal && target == KindInt:
		return Int(int64(v.r)), nil
	default:
		return Value{}, fmt.Errorf("value: cannot promote %s to %s", v.kind, target)
	}
}

// Equal reports value equality for the VM's comparison opcodes. Two shared
// strings are equal iff their intern IDs match (pointer equality); two
// containers are equal iff they are the same underlying container (identity,
// not deep equality — matching script-level "==" semantics for references).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInt:
		return a.i == b.i
	case KindReal:
		return a.r == b.r
	case KindString:
		if a.sub == StringShared && b.sub == StringShared {
			return a.sid == b.sid
		}
		return a.str == b.str
	case KindUndefined:
		return true
	default:
		return a.container == b.container
	}
}
