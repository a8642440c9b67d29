package intern

import "testing"

func TestInternPointerEquality(t *testing.T) {
	tbl := New()
	a := tbl.Intern("create")
	b := tbl.Intern("create")
	if a != b {
		t.Fatalf("interning equal content produced distinct ids: %p != %p", a, b)
	}
	if String(a) != "create" {
		t.Fatalf("String(a) = %q, want %q", String(a), "create")
	}
}

func TestInternRefCountRoundTrip(t *testing.T) {
	tbl := New()
	before := tbl.Len()
	id := tbl.Intern("heart_beat")
	tbl.Unref(id)
	if tbl.Len() != before {
		t.Fatalf("table size changed across intern+unref: before=%d after=%d", before, tbl.Len())
	}
}

func TestInternSaturatesAndBecomesImmortal(t *testing.T) {
	tbl := New()
	id := tbl.Intern("init")
	id.ref = maxRef - 1
	tbl.Ref(id)
	if RefCount(id) != maxRef {
		t.Fatalf("expected saturation at maxRef, got %d", RefCount(id))
	}
	tbl.Ref(id) // must not overflow
	if RefCount(id) != maxRef {
		t.Fatalf("ref count overflowed past saturation: %d", RefCount(id))
	}
	tbl.Unref(id) // immortal: must not free
	if _, ok := tbl.Lookup("init"); !ok {
		t.Fatalf("immortal (saturated) entry was freed by Unref")
	}
}

func TestLookupIsNonCreating(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Lookup("nonexistent"); ok {
		t.Fatalf("Lookup reported a hit for a string never interned")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Lookup created an entry as a side effect")
	}
}
