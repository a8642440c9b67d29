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

// Package master implements the master-object apply surface (§6.1): the
// driver calls out to a single privileged object for every policy decision
// it does not hardcode — who created a file, whether an object is valid,
// whether a read/write/seteuid is permitted, how to report an error. It
// also carries the declarative efun calling-convention surface (§6.2).
package master

import (
	"fmt"
	"strings"

	"github.com/mudcore/driver/log"
	"github.com/mudcore/driver/object"
	"github.com/mudcore/driver/value"
	"github.com/mudcore/driver/vm"
)

// Applier is the narrow VM surface master needs: apply-by-name against a
// specific object, already-resolved arguments.
type Applier interface {
	Apply(target *object.Object, fname string, args []value.Value, origin bool) (value.Value, bool, error)
}

// Master wraps the privileged master object and exposes each apply in
// §6.1 as a typed Go method, so the rest of the driver never constructs the
// apply(...) argument list by hand.
type Master struct {
	VM  Applier
	Obj *object.Object
}

// New binds a Master to the already-loaded master object.
func New(vmctx Applier, obj *object.Object) *Master {
	return &Master{VM: vmctx, Obj: obj}
}

func (m *Master) applyOrDefault(fname string, args []value.Value, def value.Value) value.Value {
	result, handled, err := m.VM.Apply(m.Obj, fname, args, false)
	if err != nil {
		log.Warn("master: apply error", "fn", fname, "err", err)
		return def
	}
	if !handled {
		return def
	}
	return result
}

// CreatorFile implements creator_file(path) (§6.1): the uid attributed to
// an object loaded from path. Default: the top-level directory component.
func (m *Master) CreatorFile(path string) string {
	result := m.applyOrDefault("creator_file", []value.Value{value.OwnedString(path)}, value.Value{})
	if result.Kind() == value.KindString {
		return result.Str()
	}
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// GetRootUID implements get_root_uid() (§6.1): the uid assigned to the
// master object itself.
func (m *Master) GetRootUID() string {
	result := m.applyOrDefault("get_root_uid", nil, value.ConstantString("root"))
	return result.Str()
}

// GetBackboneUID implements get_backbone_uid() (§6.1): the uid shared by
// library/backbone code.
func (m *Master) GetBackboneUID() string {
	result := m.applyOrDefault("get_backbone_uid", nil, value.ConstantString("backbone"))
	return result.Str()
}

// ValidObject implements valid_object(ob) (§6.1): a final veto on a
// freshly-loaded object before its create() runs.
func (m *Master) ValidObject(o *object.Object) bool {
	result := m.applyOrDefault("valid_object", []value.Value{objectArg(o)}, value.Int(1))
	return truthy(result)
}

// ValidRead implements valid_read(path, euid, fn) (§6.1): a file-read
// permission check.
func (m *Master) ValidRead(path, euid, fn string) bool {
	args := []value.Value{value.OwnedString(path), value.OwnedString(euid), value.OwnedString(fn)}
	return truthy(m.applyOrDefault("valid_read", args, value.Int(1)))
}

// ValidWrite implements valid_write(path, euid, fn) (§6.1): a file-write
// permission check.
func (m *Master) ValidWrite(path, euid, fn string) bool {
	args := []value.Value{value.OwnedString(path), value.OwnedString(euid), value.OwnedString(fn)}
	return truthy(m.applyOrDefault("valid_write", args, value.Int(0)))
}

// ValidSaveBinary implements valid_save_binary(ob) (§6.1): whether ob's
// program may be cached to durable storage.
func (m *Master) ValidSaveBinary(o *object.Object) bool {
	return truthy(m.applyOrDefault("valid_save_binary", []value.Value{objectArg(o)}, value.Int(1)))
}

// ValidSetEUID implements valid_seteuid(ob, newEUID) (§6.1).
func (m *Master) ValidSetEUID(o *object.Object, newEUID string) bool {
	args := []value.Value{objectArg(o), value.OwnedString(newEUID)}
	return truthy(m.applyOrDefault("valid_seteuid", args, value.Int(0)))
}

// ValidOverride implements valid_override(oldFn, newProg, callingProg)
// (§6.1): whether an inherited function's override is permitted.
func (m *Master) ValidOverride(oldFn, newProg, callingProg string) bool {
	args := []value.Value{value.OwnedString(oldFn), value.OwnedString(newProg), value.OwnedString(callingProg)}
	return truthy(m.applyOrDefault("valid_override", args, value.Int(1)))
}

// ErrorHandler implements error_handler(errorInfo, caught) (§6.1): the
// master's chance to intercept a top-level error report before it reaches
// the default logging path.
func (m *Master) ErrorHandler(message string, caught bool) {
	args := []value.Value{value.OwnedString(message), value.Int(boolToInt(caught))}
	_, handled, err := m.VM.Apply(m.Obj, "error_handler", args, false)
	if err != nil || !handled {
		log.Error("runtime error", "msg", message, "caught", caught)
	}
}

// Crash implements crash(message) (§6.1): the last-resort notification
// before the driver process exits on an unrecoverable condition.
func (m *Master) Crash(message string) {
	_, _, _ = m.VM.Apply(m.Obj, "crash", []value.Value{value.OwnedString(message)}, false)
	log.Crit("driver crash", "msg", message)
}

// SlowShutdown implements slow_shutdown(minutes) (§6.1): notifies the
// mudlib an orderly shutdown has been requested, giving it a chance to warn
// players before the backend loop actually stops.
func (m *Master) SlowShutdown(minutes int) {
	_, _, err := m.VM.Apply(m.Obj, "slow_shutdown", []value.Value{value.Int(int64(minutes))}, false)
	if err != nil {
		log.Warn("master: slow_shutdown apply failed", "err", err)
	}
}

// Epilog implements epilog() (§6.1): it applies epilog() to the master
// object and discards the result; it does not call Preload for any paths
// that result lists.
func (m *Master) Epilog() {
	_, _, _ = m.VM.Apply(m.Obj, "epilog", nil, false)
}

// Preload implements preload(path) (§6.1): it applies preload(path) to the
// master object for one path.
func (m *Master) Preload(path string) {
	_, _, _ = m.VM.Apply(m.Obj, "preload", []value.Value{value.OwnedString(path)}, false)
}

// LogError implements log_error(path, message) (§6.1): routes a compile-
// time error into the mudlib's own error log rather than the driver's.
func (m *Master) LogError(path, message string) {
	args := []value.Value{value.OwnedString(path), value.OwnedString(message)}
	_, handled, err := m.VM.Apply(m.Obj, "log_error", args, false)
	if err != nil || !handled {
		log.Error("compile error", "path", path, "msg", message)
	}
}

func objectArg(o *object.Object) value.Value {
	return value.FromContainer(value.KindObject, value.NewObjectHandle(o))
}

func truthy(v value.Value) bool {
	switch v.Kind() {
	case value.KindInt:
		return v.Int() != 0
	case value.KindUndefined:
		return false
	default:
		return true
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// MoveOrDestruct implements the object.Policy callback used during destruct
// Phase A's inventory evacuation (§3.4): it moves item into dest with
// object.Move. No function in the master object is applied, so the mudlib
// cannot veto or redirect the move. If the move fails structurally, it
// reports failure so Destruct aborts rather than losing item.
func (m *Master) MoveOrDestruct(item, dest *object.Object) bool {
	if err := object.Move(item, dest); err != nil {
		log.Warn("master: inventory evacuation failed", "item", item.Name(), "err", err)
		return false
	}
	return true
}

// Create invokes create() on a freshly loaded or cloned object (§3.4 Load
// step 5 / Clone step 3). Arguments are only meaningful for a clone; a
// plain load always calls create() with no arguments.
func (m *Master) Create(o *object.Object, args []string) {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = value.OwnedString(a)
	}
	if _, _, err := m.VM.Apply(o, "create", vals, false); err != nil {
		log.Warn("master: create() failed", "object", o.Name(), "err", err)
	}
}

// EfunSpec is the declarative argument-type vector an efun registers with
// the VM before it can be dispatched (§6.2 "efun calling convention"): args
// are validated against this vector before Call runs, so individual efun
// implementations never re-check basic argument kinds themselves.
type EfunSpec struct {
	FnName   string
	Args     []value.Kind
	Variadic bool // true if the final Args entry may repeat zero or more times
}

// ValidateArgs checks args against spec (§6.2), returning a descriptive
// error on the first mismatch.
func (spec EfunSpec) ValidateArgs(args []value.Value) error {
	min := len(spec.Args)
	if spec.Variadic {
		min--
	}
	if len(args) < min {
		return fmt.Errorf("master: %s expects at least %d args, got %d", spec.FnName, min, len(args))
	}
	if !spec.Variadic && len(args) != len(spec.Args) {
		return fmt.Errorf("master: %s expects %d args, got %d", spec.FnName, len(spec.Args), len(args))
	}
	for i, a := range args {
		want := spec.Args[i]
		if spec.Variadic && i >= len(spec.Args)-1 {
			want = spec.Args[len(spec.Args)-1]
		}
		if a.Kind() != want {
			return fmt.Errorf("master: %s argument %d: expected %s, got %s", spec.FnName, i, want, a.Kind())
		}
	}
	return nil
}

var _ vm.Efun = (*namedEfun)(nil)

// namedEfun adapts a plain Go function plus an EfunSpec into the vm.Efun
// interface (§6.2), the shared shape every builtin primitive registers
// with.
type namedEfun struct {
	spec EfunSpec
	fn   func(vmctx *vm.VM, args []value.Value) (value.Value, error)
}

// NewEfun constructs a vm.Efun from a spec and implementation function —
// the on-ramp every concrete efun (not built here; efuns are an external
// mudlib-facing catalogue per §1) uses to register itself.
func NewEfun(spec EfunSpec, fn func(vmctx *vm.VM, args []value.Value) (value.Value, error)) vm.Efun {
	return &namedEfun{spec: spec, fn: fn}
}

func (e *namedEfun) Name() string           { return e.spec.FnName }
func (e *namedEfun) ArgTypes() []value.Kind { return e.spec.Args }
func (e *namedEfun) Call(vmctx *vm.VM, args []value.Value) (value.Value, error) {
	if err := e.spec.ValidateArgs(args); err != nil {
		return value.Value{}, err
	}
	return e.fn(vmctx, args)
}
