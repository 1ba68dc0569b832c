package mailbox

import (
	"context"
	"os"
	"testing"

	"github.com/brong/mboxd/mailbox/wireformat"
)

func TestHandleCloseRunsDeleteCleanupOnLastClose(t *testing.T) {
	partition := t.TempDir()
	if err := Create("INBOX", partition, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cat := fakeCatalog{entries: map[string]CatalogEntry{"INBOX": {Partition: partition}}}
	reg := NewRegistry()

	h, err := Open(context.Background(), reg, "INBOX", Shared, Options{Collaborators: Collaborators{Catalog: cat}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	if err := h.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := h.UnlockIndex(); err != nil {
		t.Fatalf("UnlockIndex: %v", err)
	}

	if err := h.Close(reg); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reg.Shutdown()

	if _, err := os.Stat(MailboxDir(partition, "INBOX")); !os.IsNotExist(err) {
		t.Errorf("expected the mailbox directory to be gone after a last close with DELETED set, stat err = %v", err)
	}
}

func TestHandleCloseRunsRepackOnLastClose(t *testing.T) {
	partition := t.TempDir()
	if err := Create("INBOX", partition, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cat := fakeCatalog{entries: map[string]CatalogEntry{"INBOX": {Partition: partition}}}
	reg := NewRegistry()

	h, err := Open(context.Background(), reg, "INBOX", Shared, Options{Collaborators: Collaborators{Catalog: cat}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	startGen := h.header.Generation
	h.header.Options |= wireformat.OptNeedsRepack
	if err := h.flushHeader(); err != nil {
		t.Fatalf("flushHeader: %v", err)
	}
	if err := h.UnlockIndex(); err != nil {
		t.Fatalf("UnlockIndex: %v", err)
	}

	if err := h.Close(reg); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := Open(context.Background(), reg, "INBOX", Shared, Options{Collaborators: Collaborators{Catalog: cat}})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if h2.Header().Options&wireformat.OptNeedsRepack != 0 {
		t.Error("expected NEEDS_REPACK to be cleared by the opportunistic repack at close")
	}
	if h2.Header().Generation <= startGen {
		t.Errorf("Generation = %d, want greater than %d after a repack", h2.Header().Generation, startGen)
	}
	if err := h2.Close(reg); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	reg.Shutdown()
}

func TestHandleCloseSkipsCleanupOnNameLockContention(t *testing.T) {
	partition := t.TempDir()
	if err := Create("INBOX", partition, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cat := fakeCatalog{entries: map[string]CatalogEntry{"INBOX": {Partition: partition}}}
	reg := NewRegistry()

	h, err := Open(context.Background(), reg, "INBOX", Shared, Options{Collaborators: Collaborators{Catalog: cat}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	h.header.Options |= wireformat.OptNeedsRepack
	if err := h.flushHeader(); err != nil {
		t.Fatalf("flushHeader: %v", err)
	}
	if err := h.UnlockIndex(); err != nil {
		t.Fatalf("UnlockIndex: %v", err)
	}

	// A concurrent reader holding the name lock forces the opportunistic
	// upgrade-to-EXCLUSIVE attempt to fail.
	contender := reg.names.Lock("INBOX", Shared)

	if err := h.Close(reg); err != nil {
		t.Fatalf("Close: %v", err)
	}
	contender.Unlock()

	h2, err := Open(context.Background(), reg, "INBOX", Shared, Options{Collaborators: Collaborators{Catalog: cat}})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if h2.Header().Options&wireformat.OptNeedsRepack == 0 {
		t.Error("expected NEEDS_REPACK to survive a close that lost the name-lock upgrade race")
	}
	if err := h2.Close(reg); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	reg.Shutdown()
}
