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
	"testing"

	"github.com/mudcore/driver/intern"
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/program"
	"github.com/mudcore/driver/value"
)

// newTestVM builds a VM and a single-function object whose program's
// bytecode is instrs, ready to run via Apply/callFunction.
func newTestVM(t *testing.T, instrs []program.Instruction, numArgs, numLocals int) (*VM, *object.Object) {
	t.Helper()
	prog := program.New("/test/obj")
	table := intern.New()
	fnName := table.Intern("test_fn")
	prog.Bytecode = instrs
	prog.Functions = []program.Function{{Name: fnName, Address: 0, NumArgs: numArgs, NumLocals: numLocals}}
	prog.RuntimeFns = []program.RuntimeFunction{{Inherited: false, Index: 0}}

	obj := object.New("/test/obj", prog)
	v := New(nil)
	return v, obj
}

func instr(op Opcode, operand int64) program.Instruction {
	return program.Instruction{Op: uint8(op), Operand: operand}
}

// TestCatchCapturesDivideByZero exercises §8 scenario 5: a division by
// zero inside catch(...) yields the error message rather than aborting the
// whole call.
func TestCatchCapturesDivideByZero(t *testing.T) {
	instrs := []program.Instruction{
		instr(OpCatchBegin, 5), // 0: skip-target = index 5 (RETURN)
		instr(OpPushInt, 1),    // 1
		instr(OpPushInt, 0),    // 2
		instr(OpDiv, 0),        // 3: divides by zero
		instr(OpCatchEnd, 0),   // 4: unreached on the error path
		instr(OpReturn, 0),     // 5
	}
	v, obj := newTestVM(t, instrs, 0, 0)

	result, handled, err := v.Apply(obj, "test_fn", nil, true)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !handled {
		t.Fatalf("Apply did not find test_fn")
	}
	if result.Kind() != value.KindString {
		t.Fatalf("expected caught error to be a string, got %s", result.Kind())
	}
	if result.Str() == "" {
		t.Fatalf("expected a non-empty error message")
	}
}

// TestCatchSuccessYieldsZero exercises the companion no-error path: a
// clean division inside catch(...) evaluates to 0.
func TestCatchSuccessYieldsZero(t *testing.T) {
	instrs := []program.Instruction{
		instr(OpCatchBegin, 5),
		instr(OpPushInt, 10),
		instr(OpPushInt, 2),
		instr(OpDiv, 0),
		instr(OpCatchEnd, 0),
		instr(OpReturn, 0),
	}
	v, obj := newTestVM(t, instrs, 0, 0)

	result, handled, err := v.Apply(obj, "test_fn", nil, true)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !handled {
		t.Fatalf("Apply did not find test_fn")
	}
	if result.Kind() != value.KindInt || result.Int() != 0 {
		t.Fatalf("expected catch() with no error to yield 0, got %v", result)
	}
}

// TestCatchResumesExecutionAfterCatchBlock exercises §4.5's requirement
// that catching an error resumes the enclosing function rather than
// aborting it: the instructions after the catch block must still run, and
// their result, not the caught value, is what the function returns.
func TestCatchResumesExecutionAfterCatchBlock(t *testing.T) {
	instrs := []program.Instruction{
		instr(OpCatchBegin, 5), // 0: skip-target = index 5
		instr(OpPushInt, 1),    // 1
		instr(OpPushInt, 0),    // 2
		instr(OpDiv, 0),        // 3: divides by zero, unwinds to pc=5
		instr(OpCatchEnd, 0),   // 4: unreached on the error path
		instr(OpPop, 0),        // 5: discard the caught error string
		instr(OpPushInt, 42),   // 6
		instr(OpReturn, 0),     // 7
	}
	v, obj := newTestVM(t, instrs, 0, 0)

	result, handled, err := v.Apply(obj, "test_fn", nil, true)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !handled {
		t.Fatalf("Apply did not find test_fn")
	}
	if result.Kind() != value.KindInt || result.Int() != 42 {
		t.Fatalf("expected execution to resume past the catch block and return 42, got %v", result)
	}
}

// TestEvalCostExhaustionIsNotCatchable exercises the §4.5 cost-metering
// boundary: exhausting eval_cost aborts even inside a catch() block.
func TestEvalCostExhaustionIsNotCatchable(t *testing.T) {
	instrs := []program.Instruction{
		instr(OpCatchBegin, 3),
		instr(OpJump, 1), // infinite loop: jump to self
		instr(OpCatchEnd, 0),
		instr(OpReturn, 0),
	}
	v, obj := newTestVM(t, instrs, 0, 0)
	v.maxEvalCost = 10 // small budget so the loop exhausts quickly
	v.ResetEvalCost()

	_, _, err := v.Apply(obj, "test_fn", nil, true)
	if err == nil {
		t.Fatalf("expected eval-cost exhaustion to propagate as an error")
	}
}

// TestArrayIndexBoundary exercises the ±size boundary behavior for array
// indexing: index == len is out of range, index == len-1 is the last
// element, and a negative index is out of range (no implicit from-end
// wrap for plain OpIndex — that is what OpIndexFromEnd is for).
func TestArrayIndexBoundary(t *testing.T) {
	v, obj := newTestVM(t, nil, 0, 0)
	_ = obj
	arr := value.NewArray([]value.Value{value.Int(10), value.Int(20), value.Int(30)})
	arrVal := value.FromContainer(value.KindArray, arr)

	push := func(val value.Value) { _ = v.push(val) }

	push(arrVal)
	push(value.Int(2))
	if err := v.execIndex(false); err != nil {
		t.Fatalf("index 2 (last element) should succeed: %v", err)
	}
	last, _ := v.pop()
	if last.Int() != 30 {
		t.Fatalf("expected 30, got %v", last.Int())
	}

	push(arrVal)
	push(value.Int(3))
	if err := v.execIndex(false); err == nil {
		t.Fatalf("index 3 (== len) should be out of range")
	}

	push(arrVal)
	push(value.Int(-1))
	if err := v.execIndex(false); err == nil {
		t.Fatalf("index -1 should be out of range for plain OpIndex")
	}
}

// TestRangeLowerGreaterThanUpperYieldsEmpty exercises the §8 boundary
// behavior: a range whose lower bound exceeds its upper bound after
// clamping produces an empty result rather than an error.
func TestRangeLowerGreaterThanUpperYieldsEmpty(t *testing.T) {
	v, _ := newTestVM(t, nil, 0, 0)
	arr := value.NewArray([]value.Value{value.Int(1), value.Int(2), value.Int(3)})
	arrVal := value.FromContainer(value.KindArray, arr)

	_ = v.push(arrVal)
	_ = v.push(value.Int(2)) // lo
	_ = v.push(value.Int(0)) // hi < lo
	if err := v.execRange(value.RangeNN); err != nil {
		t.Fatalf("range with lo>hi should not error: %v", err)
	}
	result, _ := v.pop()
	resultArr := result.Container().(*value.Array)
	if len(resultArr.Elems) != 0 {
		t.Fatalf("expected an empty slice, got %d elements", len(resultArr.Elems))
	}
}
