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

// execute dispatches a single decoded instruction. It returns (result,
// true, nil) when the instruction ends the current callFunction's run
// (OpReturn/OpHalt), or (zero, false, err) to signal an error the caller
// (run) routes through unwindOrPropagate. In the ordinary case it advances
// v.pc itself — jumps and branches set it explicitly, everything else
// falls through to pc+1.
func (v *VM) execute(op Opcode, operand int64) (value.Value, bool, error) {
	v.pc++ // default fall-through; control-flow opcodes override below

	switch op {
	case OpPushInt:
		return value.Value{}, false, v.push(value.Int(operand))
	case OpPushReal:
		return value.Value{}, false, v.push(value.Real(float64(operand)))
	case OpPushString:
		id, err := v.stringAt(int(operand))
		if err != nil {
			return value.Value{}, false, err
		}
		return value.Value{}, false, v.push(value.SharedString(id))
	case OpPushLocal:
		slot := v.fp + int(operand)
		if slot < 0 || slot >= len(v.stack) {
			return value.Value{}, false, fmt.Errorf("vm: local slot %d out of range", operand)
		}
		return value.Value{}, false, v.push(value.Assign(v.stack[slot]))
	case OpPushGlobal:
		idx := int(operand)
		if idx < 0 || idx >= len(v.CurrentObject.Vars) {
			return value.Value{}, false, fmt.Errorf("vm: global slot %d out of range", operand)
		}
		return value.Value{}, false, v.push(value.Assign(v.CurrentObject.Vars[idx]))
	case OpStoreLocal:
		top, err := v.top()
		if err != nil {
			return value.Value{}, false, err
		}
		slot := v.fp + int(operand)
		if slot < 0 || slot >= len(v.stack) {
			return value.Value{}, false, fmt.Errorf("vm: local slot %d out of range", operand)
		}
		value.Free(v.stack[slot])
		v.stack[slot] = value.Assign(top)
		return value.Value{}, false, nil
	case OpStoreGlobal:
		top, err := v.top()
		if err != nil {
			return value.Value{}, false, err
		}
		idx := int(operand)
		if idx < 0 || idx >= len(v.CurrentObject.Vars) {
			return value.Value{}, false, fmt.Errorf("vm: global slot %d out of range", operand)
		}
		value.Free(v.CurrentObject.Vars[idx])
		v.CurrentObject.Vars[idx] = value.Assign(top)
		return value.Value{}, false, nil
	case OpPop:
		_, err := v.pop()
		return value.Value{}, false, err
	case OpDup:
		top, err := v.top()
		if err != nil {
			return value.Value{}, false, err
		}
		return value.Value{}, false, v.push(value.Assign(top))
	case OpAggregateArray:
		return value.Value{}, false, v.execAggregateArray(int(operand))
	case OpAggregateMapping:
		return value.Value{}, false, v.execAggregateMapping(int(operand))
	case OpAggregateClass:
		return value.Value{}, false, v.execAggregateClass(operand)

	case OpAdd:
		return value.Value{}, false, v.binaryArith(op)
	case OpSub, OpMul, OpDiv, OpMod:
		return value.Value{}, false, v.binaryArith(op)
	case OpNeg:
		return value.Value{}, false, v.unaryNeg()
	case OpNot:
		return value.Value{}, false, v.unaryNot()
	case OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		return value.Value{}, false, v.binaryBit(op)
	case OpBitNot:
		return value.Value{}, false, v.unaryBitNot()
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return value.Value{}, false, v.compare(op)

	case OpIndex:
		return value.Value{}, false, v.execIndex(false)
	case OpIndexFromEnd:
		return value.Value{}, false, v.execIndex(true)
	case OpRange:
		return value.Value{}, false, v.execRange(value.RangeKind(operand))
	case OpStoreIndexed:
		return value.Value{}, false, v.execStoreIndexed()

	case OpJump:
		v.pc = uint32(operand)
		return value.Value{}, false, nil
	case OpBranchZero:
		return value.Value{}, false, v.branch(operand, true)
	case OpBranchNZero:
		return value.Value{}, false, v.branch(operand, false)
	case OpSwitchDense, OpSwitchString:
		// Dense/string switch tables are a compiler-level optimization over
		// chained OpBranchZero comparisons; the driver core accepts either
		// lowering, so an unresolved switch opcode here means the (external)
		// compiler emitted the table form, which this minimal core does not
		// decode — callers relying on switch must lower it to branches.
		return value.Value{}, false, fmt.Errorf("vm: switch table opcode not supported by this core")
	case OpForeachNext:
		return value.Value{}, false, fmt.Errorf("vm: foreach-next requires compiler-side iterator lowering")

	case OpCallDirect:
		return v.execCallDirect(int(operand))
	case OpCallEfun:
		return value.Value{}, false, v.execCallEfun(int(operand))
	case OpCallSimul:
		return value.Value{}, false, v.execCallSimul(int(operand))
	case OpCallOther:
		return value.Value{}, false, v.execCallOther()
	case OpCallFuncPtr:
		return value.Value{}, false, v.execCallFuncPtr(int(operand))
	case OpReturn:
		result, err := v.pop()
		return result, true, err
	case OpHalt:
		return value.Undefined, true, nil

	case OpMakeFuncPtr:
		return value.Value{}, false, v.execMakeFuncPtr(operand)

	case OpCatchBegin:
		v.control = append(v.control, frame{
			kind:           FrameCatch,
			catchSavedSP:   len(v.stack),
			catchSavedFP:   v.fp,
			catchJournalAt: v.Journal.Snapshot(),
			catchEndPC:     uint32(operand),
		})
		return value.Value{}, false, nil
	case OpCatchEnd:
		// Reached only on the no-error path (the error path jumps straight
		// past this opcode to catchEndPC); pop the FrameCatch, discard the
		// protected expression's result, and push 0 — catch()'s "no error"
		// value, mirroring the error path pushing the error message in the
		// same stack position.
		if len(v.control) > 0 && v.control[len(v.control)-1].kind == FrameCatch {
			v.control = v.control[:len(v.control)-1]
		}
		body, err := v.pop()
		if err != nil {
			return value.Value{}, false, err
		}
		value.Free(body)
		return value.Value{}, false, v.push(value.Int(0))
	case OpThrow:
		thrown, err := v.pop()
		if err != nil {
			return value.Value{}, false, err
		}
		return value.Value{}, false, v.Throw(thrown)

	default:
		return value.Value{}, false, fmt.Errorf("%w: %s", ErrInvalidOpcode, op)
	}
}

func (v *VM) stringAt(idx int) (intern.ID, error) {
	if idx < 0 || idx >= len(v.CurrentProgram.StringPool) {
		return nil, fmt.Errorf("vm: string-pool index %d out of range", idx)
	}
	return v.CurrentProgram.StringPool[idx], nil
}
