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

	"github.com/mudcore/driver/intern"
	"github.com/mudcore/driver/value"
)

// binaryArith implements +,-,*,/,% over int/real pairs and the string and
// array overloads of + described in §4.2 ("Promote" handles the int<->real
// coercion; + additionally accepts string.string concatenation and
// array.array concatenation, which are not numeric promotions).
func (v *VM) binaryArith(op Opcode) error {
	rhs, err := v.pop()
	if err != nil {
		return err
	}
	lhs, err := v.pop()
	if err != nil {
		return err
	}

	if op == OpAdd {
		if lhs.Kind() == value.KindString && rhs.Kind() == value.KindString {
			return v.push(value.OwnedString(lhs.Str() + rhs.Str()))
		}
		if lhs.Kind() == value.KindArray && rhs.Kind() == value.KindArray {
			la := lhs.Container().(*value.Array)
			ra := rhs.Container().(*value.Array)
			combined := make([]value.Value, 0, len(la.Elems)+len(ra.Elems))
			for _, e := range la.Elems {
				combined = append(combined, value.Assign(e))
			}
			for _, e := range ra.Elems {
				combined = append(combined, value.Assign(e))
			}
			return v.push(value.FromContainer(value.KindArray, value.NewArray(combined)))
		}
	}

	a, b, isReal, err := v.numericPair(lhs, rhs)
	if err != nil {
		return err
	}
	if isReal {
		var r float64
		switch op {
		case OpAdd:
			r = a.(float64) + b.(float64)
		case OpSub:
			r = a.(float64) - b.(float64)
		case OpMul:
			r = a.(float64) * b.(float64)
		case OpDiv:
			if b.(float64) == 0 {
				return ErrDivisionByZero
			}
			r = a.(float64) / b.(float64)
		case OpMod:
			return fmt.Errorf("vm: %% is not defined on reals")
		}
		return v.push(value.Real(r))
	}
	ai, bi := a.(int64), b.(int64)
	var r int64
	switch op {
	case OpAdd:
		r = ai + bi
	case OpSub:
		r = ai - bi
	case OpMul:
		r = ai * bi
	case OpDiv:
		if bi == 0 {
			return ErrDivisionByZero
		}
		r = ai / bi
	case OpMod:
		if bi == 0 {
			return ErrDivisionByZero
		}
		r = ai % bi
	}
	return v.push(value.Int(r))
}

// numericPair promotes lhs/rhs to a common numeric representation, per
// §4.2's int<->real promotion rule (mixed int/real arithmetic promotes the
// int operand to real; anything else is a type error).
func (v *VM) numericPair(lhs, rhs value.Value) (a, b interface{}, isReal bool, err error) {
	if lhs.Kind() == value.KindInt && rhs.Kind() == value.KindInt {
		return lhs.Int(), rhs.Int(), false, nil
	}
	if lhs.Kind() == value.KindReal || rhs.Kind() == value.KindReal {
		lp, err := value.Promote(lhs, value.KindReal)
		if err != nil {
			return nil, nil, false, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		rp, err := value.Promote(rhs, value.KindReal)
		if err != nil {
			return nil, nil, false, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		return lp.Real(), rp.Real(), true, nil
	}
	return nil, nil, false, fmt.Errorf("%w: %s and %s are not arithmetic", ErrTypeMismatch, lhs.Kind(), rhs.Kind())
}

func (v *VM) unaryNeg() error {
	top, err := v.pop()
	if err != nil {
		return err
	}
	switch top.Kind() {
	case value.KindInt:
		return v.push(value.Int(-top.Int()))
	case value.KindReal:
		return v.push(value.Real(-top.Real()))
	default:
		return fmt.Errorf("%w: cannot negate %s", ErrTypeMismatch, top.Kind())
	}
}

func (v *VM) unaryNot() error {
	top, err := v.pop()
	if err != nil {
		return err
	}
	return v.push(value.Int(boolToInt(!truthy(top))))
}

func (v *VM) binaryBit(op Opcode) error {
	rhs, err := v.pop()
	if err != nil {
		return err
	}
	lhs, err := v.pop()
	if err != nil {
		return err
	}
	if lhs.Kind() != value.KindInt || rhs.Kind() != value.KindInt {
		return fmt.Errorf("%w: bitwise ops require int operands", ErrTypeMismatch)
	}
	a, b := lhs.Int(), rhs.Int()
	var r int64
	switch op {
	case OpBitAnd:
		r = a & b
	case OpBitOr:
		r = a | b
	case OpBitXor:
		r = a ^ b
	case OpShl:
		r = a << uint(b)
	case OpShr:
		r = a >> uint(b)
	}
	return v.push(value.Int(r))
}

func (v *VM) unaryBitNot() error {
	top, err := v.pop()
	if err != nil {
		return err
	}
	if top.Kind() != value.KindInt {
		return fmt.Errorf("%w: ~ requires an int operand", ErrTypeMismatch)
	}
	return v.push(value.Int(^top.Int()))
}

func (v *VM) compare(op Opcode) error {
	rhs, err := v.pop()
	if err != nil {
		return err
	}
	lhs, err := v.pop()
	if err != nil {
		return err
	}
	if op == OpEq {
		return v.push(value.Int(boolToInt(value.Equal(lhs, rhs))))
	}
	if op == OpNeq {
		return v.push(value.Int(boolToInt(!value.Equal(lhs, rhs))))
	}
	a, b, isReal, err := v.numericPair(lhs, rhs)
	if err != nil {
		return err
	}
	var result bool
	if isReal {
		af, bf := a.(float64), b.(float64)
		switch op {
		case OpLt:
			result = af < bf
		case OpLte:
			result = af <= bf
		case OpGt:
			result = af > bf
		case OpGte:
			result = af >= bf
		}
	} else {
		ai, bi := a.(int64), b.(int64)
		switch op {
		case OpLt:
			result = ai < bi
		case OpLte:
			result = ai <= bi
		case OpGt:
			result = ai > bi
		case OpGte:
			result = ai >= bi
		}
	}
	return v.push(value.Int(boolToInt(result)))
}

func truthy(val value.Value) bool {
	switch val.Kind() {
	case value.KindUndefined:
		return false
	case value.KindInt:
		return val.Int() != 0
	case value.KindReal:
		return val.Real() != 0
	case value.KindString:
		return val.Str() != ""
	default:
		return val.Container() != nil
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// execAggregateArray implements §4.5's ({ a, b, c }) literal: pop count
// elements (pushed in source order, so they arrive in reverse) and push one
// new Array.
func (v *VM) execAggregateArray(count int) error {
	if count < 0 || count > len(v.stack) {
		return fmt.Errorf("vm: array literal count %d invalid", count)
	}
	elems := make([]value.Value, count)
	for i := count - 1; i >= 0; i-- {
		val, err := v.pop()
		if err != nil {
			return err
		}
		elems[i] = val
	}
	return v.push(value.FromContainer(value.KindArray, value.NewArray(elems)))
}

// execAggregateMapping implements ([ k1:v1, k2:v2, ... ]): pop 2*pairs
// values (value, key, value, key, ... in reverse push order) and build a
// fresh Mapping.
func (v *VM) execAggregateMapping(pairs int) error {
	m := value.NewMapping()
	for i := 0; i < pairs; i++ {
		val, err := v.pop()
		if err != nil {
			return err
		}
		key, err := v.pop()
		if err != nil {
			return err
		}
		m.Set(key, val)
		value.Free(key)
		value.Free(val)
	}
	return v.push(value.FromContainer(value.KindMapping, m))
}

// execAggregateClass takes the class-name string-pool index from the high
// bits of operand and the member count from the low bits, then pops that
// many members, matching
// the {class-name-index:16 | member-count:16} packing chosen for this
// opcode's single inline operand slot.
func (v *VM) execAggregateClass(operand int64) error {
	nameIdx := int(operand >> 16)
	memberCount := int(operand & 0xFFFF)
	id, err := v.stringAt(nameIdx)
	if err != nil {
		return err
	}
	members := make([]value.Value, memberCount)
	for i := memberCount - 1; i >= 0; i-- {
		val, err := v.pop()
		if err != nil {
			return err
		}
		members[i] = val
	}
	return v.push(value.FromContainer(value.KindClass, &value.ClassInstance{ClassName: intern.String(id), Members: members}))
}
