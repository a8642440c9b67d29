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
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mudcore/driver/intern"
	"github.com/mudcore/driver/journal"
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/program"
	"github.com/mudcore/driver/value"
)

var (
	ErrStackOverflow      = errors.New("vm: value stack overflow")
	ErrCallDepthOverflow  = errors.New("vm: control stack overflow")
	ErrDivisionByZero     = errors.New("vm: division by zero")
	ErrInvalidOpcode      = errors.New("vm: invalid opcode")
	ErrStackUnderflow     = errors.New("vm: value stack underflow")
	ErrTooLongEvaluation  = errors.New("vm: too long evaluation") // non-catchable, §4.5 cost metering
	ErrTypeMismatch       = errors.New("vm: type mismatch")
	ErrFunctionNotFound   = errors.New("vm: function not found")
	ErrObjectDestructed   = errors.New("vm: object is destructed")
	ErrIndexOutOfRange    = errors.New("vm: index out of range")
	ErrMaxArraySize       = errors.New("vm: array exceeds maximum size")
)

const (
	// DefaultEvalCost is __MAX_EVAL_COST__ (§6.6), the per-top-level-call
	// budget.
	DefaultEvalCost = 1 << 20
	// DefaultStackSize is __EVALUATOR_STACK_SIZE__.
	DefaultStackSize = 4096
	// DefaultCallDepth is __MAX_CALL_DEPTH__.
	DefaultCallDepth = 256

	applyCacheSize = 512
)

// Efun is the calling-convention surface for a builtin primitive (§6.2):
// arguments are already validated against ArgTypes before Call runs.
type Efun interface {
	Name() string
	ArgTypes() []value.Kind
	Call(vmctx *VM, args []value.Value) (value.Value, error)
}

// VM is one virtual machine instance. Per §5, there is exactly one VM, one
// current object and one current frame at a time in this driver — VM
// instances are not meant to run concurrently against shared Runtime
// state.
type VM struct {
	stack    []value.Value
	control  []frame
	fp       int // index into stack of the current frame's first argument
	pc       uint32

	CurrentProgram *program.Program
	CurrentObject  *object.Object
	CommandGiver   *object.Object
	PreviousOb     *object.Object

	evalCost    uint64
	maxEvalCost uint64

	Journal *journal.Journal

	Runtime *object.Runtime
	Efuns   map[string]Efun
	SimulEfuns map[string]Efun

	applyCache *lru.Cache // (program, name) -> applyCacheEntry
}

// New constructs a VM bound to rt. Efun/simul-efun tables are populated by
// the caller after construction (the efun catalogue's individual semantics
// are an external collaborator per §1 — only the calling convention here
// is in scope).
func New(rt *object.Runtime) *VM {
	cache, _ := lru.New(applyCacheSize)
	return &VM{
		maxEvalCost: DefaultEvalCost,
		Journal:     journal.New(),
		Runtime:     rt,
		Efuns:       make(map[string]Efun),
		SimulEfuns:  make(map[string]Efun),
		applyCache:  cache,
	}
}

// ResetEvalCost is called at every top-level entry (a fresh user command, a
// call-out firing, a heart-beat firing — §4.5 "Cost metering").
func (v *VM) ResetEvalCost() { v.evalCost = v.maxEvalCost }

// ForceEvalBudget overrides the per-call-cycle budget used by every
// subsequent ResetEvalCost — the emergency brake a driver operator can pull
// on a runaway mud (§5's signal-flag handling) without restarting the
// process.
func (v *VM) ForceEvalBudget(budget uint64) { v.maxEvalCost = budget }

func (v *VM) charge(cost uint64) error {
	if cost > v.evalCost {
		v.evalCost = 0
		return ErrTooLongEvaluation
	}
	v.evalCost -= cost
	return nil
}

func (v *VM) push(val value.Value) error {
	if len(v.stack) >= DefaultStackSize {
		return ErrStackOverflow
	}
	v.stack = append(v.stack, val)
	return nil
}

func (v *VM) pop() (value.Value, error) {
	if len(v.stack) == 0 {
		return value.Value{}, ErrStackUnderflow
	}
	top := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return top, nil
}

func (v *VM) top() (value.Value, error) {
	if len(v.stack) == 0 {
		return value.Value{}, ErrStackUnderflow
	}
	return v.stack[len(v.stack)-1], nil
}

// Apply implements §4.5's apply(fname, object, nargs, origin): resolve
// fname through a per-program name->index cache (hence the LRU above —
// repeated applies of the same verb/lifecycle hook avoid a linear table
// scan every call), enforce static/private visibility, and either invoke
// or return an "absent" result the caller treats as non-fatal.
//
// origin == true means the call originates from the object's own program
// (a "local" call); static functions are only callable when origin is
// true.
func (v *VM) Apply(target *object.Object, fname string, args []value.Value, origin bool) (value.Value, bool, error) {
	if target.Destructed() {
		return value.Value{}, false, ErrObjectDestructed
	}
	idx, fn, prog, ok := v.resolveApply(target.Program, fname)
	if !ok {
		return value.Value{}, false, nil // miss: caller decides whether this is fatal
	}
	if fn.Flags&program.FlagStatic != 0 && !origin {
		return value.Value{}, false, fmt.Errorf("vm: %s is static, not callable externally", fname)
	}
	if fn.Flags&program.FlagPrivate != 0 && prog != target.Program {
		return value.Value{}, false, nil // private to an inherited program: not visible here
	}
	_ = idx
	result, err := v.callFunction(target, prog, fn, args)
	return result, true, err
}

func (v *VM) resolveApply(prog *program.Program, fname string) (int, *program.Function, *program.Program, bool) {
	type key struct {
		p *program.Program
		n string
	}
	if cached, ok := v.applyCache.Get(key{prog, fname}); ok {
		c := cached.(applyCacheEntry)
		return c.idx, c.fn, c.prog, true
	}
	for i, rf := range prog.RuntimeFns {
		defProg, fn, err := prog.FunctionAt(i)
		if err != nil {
			continue
		}
		if intern.String(fn.Name) == fname {
			v.applyCache.Add(key{prog, fname}, applyCacheEntry{i, fn, defProg})
			return i, fn, defProg, true
		}
		_ = rf
	}
	return 0, nil, nil, false
}

type applyCacheEntry struct {
	idx  int
	fn   *program.Function
	prog *program.Program
}

// callFunction implements the calling convention of §4.5: push a frame,
// push the arguments and establish fp over them, reserve locals as
// Undefined, run until OpReturn/OpHalt, then restore the caller's state.
func (v *VM) callFunction(obj *object.Object, prog *program.Program, fn *program.Function, args []value.Value) (value.Value, error) {
	if len(v.control) >= DefaultCallDepth {
		return value.Value{}, ErrCallDepthOverflow
	}
	if len(args) != fn.NumArgs {
		// Extra args are dropped, missing ones default to Undefined — the
		// original driver's lenient arity handling for lfun calls.
		padded := make([]value.Value, fn.NumArgs)
		copy(padded, args)
		for i := len(args); i < fn.NumArgs; i++ {
			padded[i] = value.Undefined
		}
		args = padded
	}

	savedProgram, savedObject, savedPC, savedFP := v.CurrentProgram, v.CurrentObject, v.pc, v.fp
	controlBase := len(v.control)
	v.control = append(v.control, frame{kind: FrameFunction, prevProgram: savedProgram, prevPC: savedPC, prevFP: savedFP})

	fpBase := len(v.stack)
	for _, a := range args {
		if err := v.push(a); err != nil {
			return value.Value{}, err
		}
	}
	for i := 0; i < fn.NumLocals; i++ {
		if err := v.push(value.Undefined); err != nil {
			return value.Value{}, err
		}
	}

	v.fp = fpBase
	v.CurrentProgram = prog
	v.CurrentObject = obj
	v.pc = fn.Address

	result, err := v.run(fn.Address)

	// Unwind the arguments+locals block regardless of outcome. Truncating to
	// controlBase (rather than popping exactly one entry) also discards any
	// catch frames that were pushed and never popped because a
	// non-catchable error (eval-cost exhaustion) propagated straight past
	// them.
	v.stack = v.stack[:fpBase]
	v.control = v.control[:controlBase]
	v.CurrentProgram, v.CurrentObject, v.pc, v.fp = savedProgram, savedObject, savedPC, savedFP

	return result, err
}

// run executes instructions starting at startPC until OpReturn/OpHalt
// returns a value or an error propagates.
func (v *VM) run(startPC uint32) (value.Value, error) {
	v.pc = startPC
	for {
		if int(v.pc) >= len(v.CurrentProgram.Bytecode) {
			return value.Undefined, nil
		}
		instr := v.CurrentProgram.Bytecode[v.pc]
		op := Opcode(instr.Op)

		if err := v.charge(op.cost()); err != nil {
			if caught := v.unwindOrPropagate(err); caught != nil {
				return value.Value{}, caught
			}
			continue
		}

		ret, done, err := v.execute(op, instr.Operand)
		if err != nil {
			if caught := v.unwindOrPropagate(err); caught != nil {
				return value.Value{}, caught
			}
			continue
		}
		if done {
			return ret, nil
		}
	}
}

// unwindOrPropagate implements §4.5 catch/throw for internally-raised
// errors (division by zero, type mismatches, index-out-of-range): if a
// catch frame is active, restore its saved state and deliver the error
// value; otherwise propagate to the caller, who promotes it to a top-level
// error (§4.6).
func (v *VM) unwindOrPropagate(cause error) error {
	if errors.Is(cause, ErrTooLongEvaluation) {
		return cause // non-catchable: unwinds all the way, per §4.5
	}
	for i := len(v.control) - 1; i >= 0; i-- {
		if v.control[i].kind != FrameCatch {
			continue
		}
		f := v.control[i]
		v.control = v.control[:i]
		v.stack = v.stack[:f.catchSavedSP]
		v.Journal.RevertToSnapshot(f.catchJournalAt)
		v.fp = f.catchSavedFP
		v.pc = f.catchEndPC
		_ = v.push(value.OwnedString(cause.Error()))
		return nil
	}
	return cause
}

// Throw implements explicit throw(value) (§4.5): searches for the nearest
// catch frame and delivers val as its result; if none exists, the value is
// promoted to a top-level error.
func (v *VM) Throw(val value.Value) error {
	for i := len(v.control) - 1; i >= 0; i-- {
		if v.control[i].kind != FrameCatch {
			continue
		}
		f := v.control[i]
		v.control = v.control[:i]
		v.stack = v.stack[:f.catchSavedSP]
		v.Journal.RevertToSnapshot(f.catchJournalAt)
		v.fp = f.catchSavedFP
		v.pc = f.catchEndPC
		return v.push(val)
	}
	return fmt.Errorf("vm: uncaught throw: %v", val)
}
