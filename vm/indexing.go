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

package vm

import (
	"fmt"

	"github.com/mudcore/driver/value"
)

// MaxArraySize is __MAX_ARRAY_SIZE__ from §6.6. The aggregate, range and
// concatenation opcodes do not check their results against it.
const MaxArraySize = 1 << 20

// execIndex implements a[i] / a[<i] (§4.5 "Indexing & ranges"): pops index
// then container, pushes the element. fromEnd selects the "<i" counted-
// from-end form.
func (v *VM) execIndex(fromEnd bool) error {
	idxVal, err := v.pop()
	if err != nil {
		return err
	}
	container, err := v.pop()
	if err != nil {
		return err
	}
	if idxVal.Kind() != value.KindInt {
		return fmt.Errorf("%w: index must be int", ErrTypeMismatch)
	}
	raw := int(idxVal.Int())

	switch container.Kind() {
	case value.KindArray:
		arr := container.Container().(*value.Array)
		i, err := resolveIndex(raw, len(arr.Elems), fromEnd)
		if err != nil {
			return err
		}
		return v.push(value.Assign(arr.Elems[i]))
	case value.KindString:
		s := container.Str()
		i, err := resolveIndex(raw, len(s), fromEnd)
		if err != nil {
			return err
		}
		return v.push(value.Int(int64(s[i])))
	case value.KindMapping:
		m := container.Container().(*value.Mapping)
		return v.push(value.Assign(m.Get(idxVal)))
	case value.KindBuffer:
		buf := container.Container().(*value.Buffer)
		i, err := resolveIndex(raw, len(buf.Bytes), fromEnd)
		if err != nil {
			return err
		}
		return v.push(value.Int(int64(buf.Bytes[i])))
	default:
		return fmt.Errorf("%w: cannot index a %s", ErrTypeMismatch, container.Kind())
	}
}

func resolveIndex(raw, length int, fromEnd bool) (int, error) {
	i := raw
	if fromEnd {
		i = length - 1 - raw
	}
	if i < 0 || i >= length {
		return 0, fmt.Errorf("%w: index %d (length %d)", ErrIndexOutOfRange, raw, length)
	}
	return i, nil
}

// rangeBounds resolves the (lo, hi) pair into clamped, inclusive-exclusive
// [start, end) slice bounds for a container of the given length, honoring
// each RangeKind's from-start/from-end orientation. A lower bound past the
// upper bound after clamping yields an empty (start==end) result rather
// than an error, matching the boundary behavior in §8.
func rangeBounds(kind value.RangeKind, lo, hi, length int) (start, end int) {
	loFromEnd := kind == value.RangeRN || kind == value.RangeRR || kind == value.RangeRE
	hiFromEnd := kind == value.RangeRR || kind == value.RangeNE || kind == value.RangeRE
	hiExclusive := kind == value.RangeNR

	start = lo
	if loFromEnd {
		start = length - 1 - lo
	}
	end = hi
	if hiFromEnd {
		end = length - 1 - hi
	}
	if !hiExclusive {
		end++ // make inclusive upper bound exclusive for Go slicing
	}

	if start < 0 {
		start = 0
	}
	if start > length {
		start = length
	}
	if end < 0 {
		end = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end
}

// execRange implements a[lo..hi] and its five sibling forms (§4.2).
func (v *VM) execRange(kind value.RangeKind) error {
	hiVal, err := v.pop()
	if err != nil {
		return err
	}
	loVal, err := v.pop()
	if err != nil {
		return err
	}
	container, err := v.pop()
	if err != nil {
		return err
	}
	if loVal.Kind() != value.KindInt || hiVal.Kind() != value.KindInt {
		return fmt.Errorf("%w: range bounds must be int", ErrTypeMismatch)
	}
	lo, hi := int(loVal.Int()), int(hiVal.Int())

	switch container.Kind() {
	case value.KindArray:
		arr := container.Container().(*value.Array)
		start, end := rangeBounds(kind, lo, hi, len(arr.Elems))
		out := make([]value.Value, end-start)
		for i := start; i < end; i++ {
			out[i-start] = value.Assign(arr.Elems[i])
		}
		return v.push(value.FromContainer(value.KindArray, value.NewArray(out)))
	case value.KindString:
		s := container.Str()
		start, end := rangeBounds(kind, lo, hi, len(s))
		return v.push(value.OwnedString(s[start:end]))
	default:
		return fmt.Errorf("%w: cannot range a %s", ErrTypeMismatch, container.Kind())
	}
}

// execStoreIndexed implements a[i] = x: pops value, index, container (in
// that order, matching the push order container/index/value the compiler
// emits) and mutates in place, then pushes the stored value back so the
// assignment expression itself evaluates to x.
func (v *VM) execStoreIndexed() error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	idxVal, err := v.pop()
	if err != nil {
		return err
	}
	container, err := v.pop()
	if err != nil {
		return err
	}

	switch container.Kind() {
	case value.KindArray:
		if idxVal.Kind() != value.KindInt {
			return fmt.Errorf("%w: index must be int", ErrTypeMismatch)
		}
		arr := container.Container().(*value.Array)
		i, err := resolveIndex(int(idxVal.Int()), len(arr.Elems), false)
		if err != nil {
			return err
		}
		value.Free(arr.Elems[i])
		arr.Elems[i] = value.Assign(val)
	case value.KindMapping:
		m := container.Container().(*value.Mapping)
		m.Set(idxVal, val)
	case value.KindBuffer:
		if idxVal.Kind() != value.KindInt || val.Kind() != value.KindInt {
			return fmt.Errorf("%w: buffer store requires int index and int value", ErrTypeMismatch)
		}
		buf := container.Container().(*value.Buffer)
		i, err := resolveIndex(int(idxVal.Int()), len(buf.Bytes), false)
		if err != nil {
			return err
		}
		buf.Bytes[i] = byte(val.Int())
	default:
		return fmt.Errorf("%w: cannot index-assign a %s", ErrTypeMismatch, container.Kind())
	}
	return v.push(value.Assign(val))
}

// branch pops the condition and jumps to target when truthy(cond)==wantZero
// is false... concretely: BranchZero jumps when the condition is falsy,
// BranchNZero jumps when it is truthy. Both leave pc at pc+1 (already set
// by execute's default) when the jump is not taken.
func (v *VM) branch(target int64, onZero bool) error {
	cond, err := v.pop()
	if err != nil {
		return err
	}
	t := truthy(cond)
	if (onZero && !t) || (!onZero && t) {
		v.pc = uint32(target)
	}
	return nil
}
