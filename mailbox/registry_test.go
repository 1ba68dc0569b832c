package mailbox

import "testing"

func TestRegistryOpenCountStartsZero(t *testing.T) {
	r := NewRegistry()
	if got := r.OpenCount(); got != 0 {
		t.Fatalf("OpenCount() = %d, want 0", got)
	}
}

func TestRegistryAcquireExistingMissingReturnsNil(t *testing.T) {
	r := NewRegistry()
	if h := r.acquireExisting("INBOX"); h != nil {
		t.Fatalf("acquireExisting on empty registry = %v, want nil", h)
	}
}

func TestRegistryPutThenAcquireExistingSharesHandle(t *testing.T) {
	r := NewRegistry()
	h := &Handle{name: "INBOX", refcount: 1}
	r.put(h.name, h)

	if got := r.OpenCount(); got != 1 {
		t.Fatalf("OpenCount() = %d, want 1", got)
	}

	got := r.acquireExisting("INBOX")
	if got != h {
		t.Fatalf("acquireExisting returned a different handle")
	}
	if got.refcount != 2 {
		t.Fatalf("refcount = %d, want 2 after a second acquire", got.refcount)
	}
}

func TestRegistryReleaseEvictsAtZero(t *testing.T) {
	r := NewRegistry()
	h := &Handle{name: "INBOX", refcount: 1}
	r.put(h.name, h)
	r.acquireExisting("INBOX") // bumps refcount to 2

	if err := r.release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := r.OpenCount(); got != 1 {
		t.Fatalf("OpenCount() = %d after first release, want 1 (still referenced)", got)
	}

	if err := r.release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := r.OpenCount(); got != 0 {
		t.Fatalf("OpenCount() = %d after last release, want 0", got)
	}
}

func TestRegistryReleaseDoesNotEvictAnotherHandleOfSameName(t *testing.T) {
	r := NewRegistry()
	h1 := &Handle{name: "INBOX", refcount: 1}
	r.put(h1.name, h1)
	if err := r.release(h1); err != nil {
		t.Fatalf("release h1: %v", err)
	}

	h2 := &Handle{name: "INBOX", refcount: 1}
	r.put(h2.name, h2)

	// h1 is a stale reference from before h2 replaced it in the map; its
	// release must not delete h2's entry.
	if err := r.release(h1); err != nil {
		t.Fatalf("release stale h1: %v", err)
	}
	if got := r.OpenCount(); got != 1 {
		t.Fatalf("OpenCount() = %d, want 1 (h2 still registered)", got)
	}
}

func TestRegistryShutdownPanicsWithOpenHandles(t *testing.T) {
	r := NewRegistry()
	h := &Handle{name: "INBOX", refcount: 1}
	r.put(h.name, h)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Shutdown to panic with an open handle")
		}
	}()
	r.Shutdown()
}

func TestRegistryShutdownOKWhenEmpty(t *testing.T) {
	r := NewRegistry()
	r.Shutdown()
}
