package mailbox

import "testing"

func TestNameLockSharedAllowsMultipleReaders(t *testing.T) {
	r := newNameLockRegistry()
	l1, ok := r.TryLock("INBOX", Shared)
	if !ok {
		t.Fatal("expected first shared lock to succeed")
	}
	l2, ok := r.TryLock("INBOX", Shared)
	if !ok {
		t.Fatal("expected second shared lock to succeed")
	}
	l1.Unlock()
	l2.Unlock()
}

func TestNameLockExclusiveBlocksShared(t *testing.T) {
	r := newNameLockRegistry()
	excl, ok := r.TryLock("INBOX", Exclusive)
	if !ok {
		t.Fatal("expected exclusive lock to succeed")
	}
	if _, ok := r.TryLock("INBOX", Shared); ok {
		t.Error("expected shared TryLock to fail while exclusive is held")
	}
	if _, ok := r.TryLock("INBOX", Exclusive); ok {
		t.Error("expected exclusive TryLock to fail while exclusive is held")
	}
	excl.Unlock()

	l, ok := r.TryLock("INBOX", Shared)
	if !ok {
		t.Fatal("expected shared lock to succeed after exclusive released")
	}
	l.Unlock()
}

func TestNameLockSharedBlocksExclusive(t *testing.T) {
	r := newNameLockRegistry()
	shared, ok := r.TryLock("INBOX", Shared)
	if !ok {
		t.Fatal("expected shared lock to succeed")
	}
	if _, ok := r.TryLock("INBOX", Exclusive); ok {
		t.Error("expected exclusive TryLock to fail while a reader holds the lock")
	}
	shared.Unlock()

	excl, ok := r.TryLock("INBOX", Exclusive)
	if !ok {
		t.Fatal("expected exclusive lock to succeed after reader released")
	}
	excl.Unlock()
}

func TestNameLockIndependentNames(t *testing.T) {
	r := newNameLockRegistry()
	a, ok := r.TryLock("INBOX", Exclusive)
	if !ok {
		t.Fatal("expected lock on INBOX to succeed")
	}
	b, ok := r.TryLock("Archive", Exclusive)
	if !ok {
		t.Fatal("expected lock on a different name to succeed independently")
	}
	a.Unlock()
	b.Unlock()
}

func TestNameLockBlockingLockUnblocks(t *testing.T) {
	r := newNameLockRegistry()
	excl, ok := r.TryLock("INBOX", Exclusive)
	if !ok {
		t.Fatal("expected exclusive lock to succeed")
	}

	done := make(chan *NameLock)
	go func() {
		done <- r.Lock("INBOX", Shared)
	}()

	excl.Unlock()
	l := <-done
	l.Unlock()
}
