package main

import (
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/brong/mboxd/catalog"
	"github.com/brong/mboxd/mailbox"
)

func testEnvironment(t *testing.T) (*environment, string) {
	t.Helper()
	partition := t.TempDir()
	cat := catalog.New()
	env := &environment{
		cfg:      DefaultConfig(),
		log:      hclog.NewNullLogger(),
		registry: mailbox.NewRegistry(),
		catalog:  cat,
		collab:   mailbox.Collaborators{Catalog: cat},
	}
	t.Cleanup(env.registry.Shutdown)
	return env, partition
}

func TestEnsureCatalogedRegistersOnce(t *testing.T) {
	env, partition := testEnvironment(t)

	ensureCataloged(env, "INBOX", partition)
	entry, ok := env.catalog.Get("INBOX")
	if !ok {
		t.Fatal("expected INBOX to be registered in the catalog")
	}
	if entry.Partition != partition {
		t.Errorf("Partition = %q, want %q", entry.Partition, partition)
	}

	// Calling it again with a different partition must not clobber the
	// existing entry.
	ensureCataloged(env, "INBOX", "/some/other/partition")
	entry2, _ := env.catalog.Get("INBOX")
	if entry2.Partition != partition {
		t.Errorf("Partition after second ensureCataloged = %q, want unchanged %q", entry2.Partition, partition)
	}
}

func TestOpenMailboxCreatesCatalogEntryAndOpens(t *testing.T) {
	env, partition := testEnvironment(t)
	if err := mailbox.Create("INBOX", partition, mailbox.CreateOptions{}); err != nil {
		t.Fatalf("mailbox.Create: %v", err)
	}

	h, err := openMailbox(env, "INBOX", partition, mailbox.Shared)
	if err != nil {
		t.Fatalf("openMailbox: %v", err)
	}
	defer h.Close(env.registry)

	if h.Name() != "INBOX" {
		t.Errorf("Name() = %q, want INBOX", h.Name())
	}
	if env.registry.OpenCount() != 1 {
		t.Errorf("OpenCount() = %d, want 1", env.registry.OpenCount())
	}
}

func TestEnvironmentLogfFormats(t *testing.T) {
	env, _ := testEnvironment(t)
	logf := env.logf()
	// Exercised only for the side effect of not panicking on a
	// printf-style call; hclog.NewNullLogger discards the output.
	logf("mailbox %s opened at uid %d", "INBOX", 42)
}
