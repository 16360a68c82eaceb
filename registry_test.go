package observe

import "testing"

func TestRegistryAllocateExhaustion(t *testing.T) {
	r := NewSubscriberRegistry(2)
	h1, ok := r.Allocate()
	if !ok {
		t.Fatalf("Allocate 1: want ok")
	}
	if _, ok := r.Allocate(); !ok {
		t.Fatalf("Allocate 2: want ok")
	}
	if _, ok := r.Allocate(); ok {
		t.Fatalf("Allocate 3: want pool exhausted")
	}
	r.Free(h1)
	if _, ok := r.Allocate(); !ok {
		t.Fatalf("Allocate after Free: want ok")
	}
}

func TestRegistryStaleHandleAfterFree(t *testing.T) {
	r := NewSubscriberRegistry(1)
	h, ok := r.Allocate()
	if !ok {
		t.Fatalf("Allocate: want ok")
	}
	s, _ := r.Get(h)
	s.URL = "/a"
	r.Free(h)

	// Poison the freed slot by reallocating it, as a real allocator would.
	h2, ok := r.Allocate()
	if !ok {
		t.Fatalf("Allocate (reuse): want ok")
	}
	if h2.index != h.index {
		t.Fatalf("expected slot reuse: got index %d want %d", h2.index, h.index)
	}
	s2, _ := r.Get(h2)
	s2.URL = "/b"

	if _, ok := r.Get(h); ok {
		t.Fatalf("Get on stale handle: want !ok, generation check failed to catch reuse")
	}
	got, ok := r.Get(h2)
	if !ok || got.URL != "/b" {
		t.Fatalf("Get(h2): got %+v, ok=%v", got, ok)
	}
}

func TestRegistryFreePanicsIfStillLinked(t *testing.T) {
	r := NewSubscriberRegistry(1)
	h, _ := r.Allocate()
	r.MoveToUnactive(h)

	defer func() {
		if recover() == nil {
			t.Fatalf("Free on linked handle: want panic")
		}
	}()
	r.Free(h)
}

func TestRegistryMoveToPendingCoalesces(t *testing.T) {
	r := NewSubscriberRegistry(1)
	h, _ := r.Allocate()
	r.MoveToUnactive(h)

	if !r.MoveToPending(h) {
		t.Fatalf("first MoveToPending: want true")
	}
	if r.MoveToPending(h) {
		t.Fatalf("second MoveToPending on already-pending handle: want false (no-op)")
	}
	if r.PendingLen() != 1 {
		t.Fatalf("PendingLen: got %d want 1", r.PendingLen())
	}
}

func TestRegistryDetachAndFindAll(t *testing.T) {
	r := NewSubscriberRegistry(2)
	h1, _ := r.Allocate()
	h2, _ := r.Allocate()
	r.MoveToUnactive(h1)
	r.MoveToUnactive(h2)
	r.MoveToPending(h2)

	// A detached (in-transaction) subscriber must still be visible to
	// FindAll even though it is in neither list.
	r.Detach(h2)

	all := r.FindAll(nil)
	if len(all) != 2 {
		t.Fatalf("FindAll: got %d handles want 2", len(all))
	}

	listed := r.FindByPredicate(ListBoth, nil)
	if len(listed) != 1 {
		t.Fatalf("FindByPredicate(ListBoth): got %d want 1 (detached handle must not appear)", len(listed))
	}
}

func TestRegistryFindByPredicateSnapshotSurvivesFree(t *testing.T) {
	r := NewSubscriberRegistry(3)
	var handles []Handle
	for i := 0; i < 3; i++ {
		h, _ := r.Allocate()
		r.MoveToUnactive(h)
		handles = append(handles, h)
	}

	snap := r.FindByPredicate(ListUnactive, nil)
	if len(snap) != 3 {
		t.Fatalf("snapshot len: got %d want 3", len(snap))
	}
	for _, h := range snap {
		r.Detach(h)
		r.Free(h)
	}
	if r.UnactiveLen() != 0 {
		t.Fatalf("UnactiveLen after draining snapshot: got %d want 0", r.UnactiveLen())
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewSubscriberRegistry(5)
	h1, _ := r.Allocate()
	h2, _ := r.Allocate()
	r.MoveToUnactive(h1)
	r.MoveToUnactive(h2)
	r.MoveToPending(h2)

	st := r.Stats()
	if st.Capacity != 5 || st.Unactive != 1 || st.Pending != 1 {
		t.Fatalf("Stats: got %+v", st)
	}
}
