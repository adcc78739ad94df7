package sched

import "testing"

func TestGroupInitBias(t *testing.T) {
	var g Group
	g.Init()
	if g.Count() != 1 {
		t.Fatalf("Count() = %d after Init, want 1", g.Count())
	}
	if g.magic != groupMagic {
		t.Fatalf("magic = %#x, want %#x", g.magic, groupMagic)
	}
	if g.id == "" {
		t.Fatal("Init did not assign a debug id")
	}
}

func TestAssertGroupRejectsUninitialized(t *testing.T) {
	s := NewScheduler(Options{JobCount: 8, QueueCount: 1, FiberCount: 4, StackSize: 4096}, zeroLogger())

	var g Group // never Init'd, magic is zero
	defer func() {
		r := recover()
		fe, ok := r.(*FatalError)
		if !ok || fe.Kind != KindGroupMisuse {
			t.Fatalf("panic = %v, want *FatalError{Kind: KindGroupMisuse}", r)
		}
	}()
	s.assertGroup(&g)
}
