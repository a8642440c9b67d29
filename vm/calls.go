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
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/value"
)

// popArgs pops an explicit argument count (pushed by the compiler as the
// top-of-stack int immediately before a CALL_DIRECT/CALL_EFUN/CALL_SIMUL
// instruction) followed by that many argument values, restoring source
// order.
func (v *VM) popArgs() ([]value.Value, error) {
	nargsVal, err := v.pop()
	if err != nil {
		return nil, err
	}
	if nargsVal.Kind() != value.KindInt {
		return nil, fmt.Errorf("%w: argument count must be int", ErrTypeMismatch)
	}
	nargs := int(nargsVal.Int())
	if nargs < 0 || nargs > len(v.stack) {
		return nil, fmt.Errorf("vm: invalid argument count %d", nargs)
	}
	args := make([]value.Value, nargs)
	for i := nargs - 1; i >= 0; i-- {
		args[i], err = v.pop()
		if err != nil {
			return nil, err
		}
	}
	return args, nil
}

// execCallDirect implements CALL_DIRECT: a statically-linked call by
// runtime function index, resolved (possibly through the inherit chain) by
// program.FunctionAt (§4.3/§4.5).
func (v *VM) execCallDirect(idx int) (value.Value, bool, error) {
	args, err := v.popArgs()
	if err != nil {
		return value.Value{}, false, err
	}
	defProg, fn, err := v.CurrentProgram.FunctionAt(idx)
	if err != nil {
		return value.Value{}, false, fmt.Errorf("%w: %v", ErrFunctionNotFound, err)
	}
	result, err := v.callFunction(v.CurrentObject, defProg, fn, args)
	if err != nil {
		return value.Value{}, false, err
	}
	return value.Value{}, false, v.push(result)
}

// execCallEfun implements CALL_EFUN: the name is a string-pool index since
// efuns have no program-local slot (§6.2 efun calling convention).
func (v *VM) execCallEfun(nameIdx int) error {
	args, err := v.popArgs()
	if err != nil {
		return err
	}
	id, err := v.stringAt(nameIdx)
	if err != nil {
		return err
	}
	name := intern.String(id)
	ef, ok := v.Efuns[name]
	if !ok {
		return fmt.Errorf("vm: unknown efun %q", name)
	}
	result, err := ef.Call(v, args)
	if err != nil {
		return err
	}
	return v.push(result)
}

// execCallSimul implements CALL_SIMUL: a simul_efun, resolved by name
// against the driver-wide simul_efun object (§6.1) rather than a program's
// own function table.
func (v *VM) execCallSimul(nameIdx int) error {
	args, err := v.popArgs()
	if err != nil {
		return err
	}
	id, err := v.stringAt(nameIdx)
	if err != nil {
		return err
	}
	name := intern.String(id)
	ef, ok := v.SimulEfuns[name]
	if !ok {
		return fmt.Errorf("vm: unknown simul_efun %q", name)
	}
	result, err := ef.Call(v, args)
	if err != nil {
		return err
	}
	return v.push(result)
}

// execCallOther implements call_other(ob, fname, args...) (§4.5/§6.2): the
// stack carries object, fname, then an explicit argument count and that
// many arguments, matching popArgs' convention. A call against a
// destructed or absent-function target is not fatal — call_other returns 0
// (Undefined) in that case, per the original driver's lenience.
func (v *VM) execCallOther() error {
	args, err := v.popArgs()
	if err != nil {
		return err
	}
	fnameVal, err := v.pop()
	if err != nil {
		return err
	}
	if fnameVal.Kind() != value.KindString {
		return fmt.Errorf("%w: call_other function name must be a string", ErrTypeMismatch)
	}
	objVal, err := v.pop()
	if err != nil {
		return err
	}
	if objVal.Kind() != value.KindObject {
		return fmt.Errorf("%w: call_other target must be an object", ErrTypeMismatch)
	}
	handle, ok := objVal.Container().(*value.ObjectHandle)
	if !ok {
		return fmt.Errorf("%w: malformed object value", ErrTypeMismatch)
	}
	target, ok := handle.Target.(*object.Object)
	if !ok || target.Destructed() {
		return v.push(value.Undefined)
	}
	result, handled, err := v.Apply(target, fnameVal.Str(), args, false)
	if err != nil {
		return err
	}
	if !handled {
		return v.push(value.Undefined)
	}
	return v.push(result)
}

// execCallFuncPtr implements CALL_FUNC_PTR: operand is the argument count
// directly (no separate count push — the func-pointer value sits just
// below the arguments on the stack).
func (v *VM) execCallFuncPtr(nargs int) error {
	if nargs < 0 || nargs > len(v.stack)-1 {
		return fmt.Errorf("vm: invalid argument count %d", nargs)
	}
	args := make([]value.Value, nargs)
	for i := nargs - 1; i >= 0; i-- {
		val, err := v.pop()
		if err != nil {
			return err
		}
		args[i] = val
	}
	fpVal, err := v.pop()
	if err != nil {
		return err
	}
	if fpVal.Kind() != value.KindFuncPtr {
		return fmt.Errorf("%w: not a function pointer", ErrTypeMismatch)
	}
	fp := fpVal.Container().(*value.FuncPtr)

	result, err := v.callFuncPtr(fp, args)
	if err != nil {
		return err
	}
	return v.push(result)
}

// callFuncPtr is the dispatch core shared by CALL_FUNC_PTR and the public
// CallFuncPtr entry point used by the call-out scheduler and input_to
// continuations, neither of which go through the bytecode stack to invoke
// a bound function value.
func (v *VM) callFuncPtr(fp *value.FuncPtr, args []value.Value) (value.Value, error) {
	switch fp.PtrKind {
	case value.FuncPtrEfun:
		ef, ok := v.Efuns[fp.Name]
		if !ok {
			return value.Value{}, fmt.Errorf("vm: unknown efun %q", fp.Name)
		}
		return ef.Call(v, args)
	case value.FuncPtrSimul:
		ef, ok := v.SimulEfuns[fp.Name]
		if !ok {
			return value.Value{}, fmt.Errorf("vm: unknown simul_efun %q", fp.Name)
		}
		return ef.Call(v, args)
	case value.FuncPtrLfun:
		target, ok := fp.Object.(*object.Object)
		if !ok || target.Destructed() {
			return value.Undefined, nil
		}
		result, handled, err := v.Apply(target, fp.Name, args, true)
		if err != nil {
			return value.Value{}, err
		}
		if !handled {
			return value.Undefined, nil
		}
		return result, nil
	default:
		return value.Value{}, fmt.Errorf("vm: function-pointer kind %d is not directly callable", fp.PtrKind)
	}
}

// CallFuncPtr invokes a function-pointer value directly, bypassing the
// bytecode stack — used by collaborators that hold a bound FuncPtr outside
// any running frame (the call-out scheduler dispatching a function-pointer
// call-out, input_to resuming a captured continuation).
func (v *VM) CallFuncPtr(fpVal value.Value, args []value.Value) (value.Value, error) {
	if fpVal.Kind() != value.KindFuncPtr {
		return value.Value{}, fmt.Errorf("%w: not a function pointer", ErrTypeMismatch)
	}
	fp, ok := fpVal.Container().(*value.FuncPtr)
	if !ok {
		return value.Value{}, fmt.Errorf("%w: malformed function pointer", ErrTypeMismatch)
	}
	return v.callFuncPtr(fp, args)
}

// execMakeFuncPtr implements MAKE_FUNC_PTR: the operand packs the
// FuncPtrKind in its high 32 bits and a string-pool index (the bound
// function's name) in its low 32 bits — a lfun pointer additionally binds
// to the current object, matching §4.5's "Pointers & functional values".
func (v *VM) execMakeFuncPtr(operand int64) error {
	kind := value.FuncPtrKind(operand >> 32)
	nameIdx := int(operand & 0xFFFFFFFF)
	id, err := v.stringAt(nameIdx)
	if err != nil {
		return err
	}
	fp := &value.FuncPtr{PtrKind: kind, Name: intern.String(id)}
	if kind == value.FuncPtrLfun {
		fp.Object = v.CurrentObject
	}
	return v.push(value.FromContainer(value.KindFuncPtr, fp))
}
