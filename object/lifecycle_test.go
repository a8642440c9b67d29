package object

import (
	"testing"

	"github.com/mudcore/driver/program"
)

type fakeCompiler struct{}

func (fakeCompiler) Compile(path string) (*program.Program, error) {
	return program.New(path), nil
}

type fakePolicy struct{ created int }

func (*fakePolicy) CreatorFile(path string) string        { return "adm" }
func (*fakePolicy) ValidObject(o *Object) bool             { return true }
func (*fakePolicy) MoveOrDestruct(item, dest *Object) bool { return Move(item, dest) == nil }
func (p *fakePolicy) Create(o *Object, args []string)      { p.created++ }

func newTestRuntime() *Runtime {
	rt := NewRuntime(16, fakeCompiler{}, &fakePolicy{})
	voidProg, _ := fakeCompiler{}.Compile("/room/void")
	voidObj := New("/room/void", voidProg)
	rt.Objects.Enter(voidObj)
	return rt
}

func TestCloneLifecycleSerialAdvances(t *testing.T) {
	rt := newTestRuntime()
	c0, err := rt.Clone("/obj/torch", nil)
	if err != nil {
		t.Fatalf("first clone: %v", err)
	}
	if c0.Name() != "/obj/torch#0" {
		t.Fatalf("first clone name = %q, want /obj/torch#0", c0.Name())
	}
	if err := rt.Destruct(c0); err != nil {
		t.Fatalf("destruct: %v", err)
	}
	rt.DrainPhaseB()

	c1, err := rt.Clone("/obj/torch", nil)
	if err != nil {
		t.Fatalf("second clone: %v", err)
	}
	if c1.Name() != "/obj/torch#1" {
		t.Fatalf("second clone name = %q, want /obj/torch#1 (serial must advance monotonically)", c1.Name())
	}
}

func TestDestructRemovesFromAllObjectsList(t *testing.T) {
	rt := newTestRuntime()
	before := rt.Objects.Len()
	c, err := rt.Clone("/obj/torch", nil)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if rt.Objects.Len() != before+1 {
		t.Fatalf("all-objects length did not grow on clone")
	}
	if err := rt.Destruct(c); err != nil {
		t.Fatalf("destruct: %v", err)
	}
	if rt.Objects.Len() != before {
		t.Fatalf("all-objects length after destruct = %d, want %d (clone+destruct must leave it unchanged)", rt.Objects.Len(), before)
	}
	if _, ok := rt.Objects.Lookup(c.Name()); ok {
		t.Fatalf("destructed object still resolves via Lookup")
	}
}

func TestMoveFailsIntoOwnDescendant(t *testing.T) {
	rt := newTestRuntime()
	room, _ := rt.Load("/room/hall")
	item, _ := rt.Clone("/obj/box", nil)
	if err := Move(item, room); err != nil {
		t.Fatalf("initial move: %v", err)
	}
	if err := Move(room, item); err == nil {
		t.Fatalf("expected error moving an object into its own inventory item's descendant chain")
	}
}
