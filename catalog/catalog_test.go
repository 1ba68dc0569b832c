package catalog

import (
	"context"
	"testing"
)

func TestCreateAndLookup(t *testing.T) {
	c := New()
	e, err := c.Create("INBOX", "part1", "acl")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.UniqueID == "" {
		t.Error("expected a non-empty uniqueid")
	}

	got, err := c.Lookup(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Partition != "part1" || got.ACL != "acl" || got.Moving {
		t.Errorf("Lookup = %+v", got)
	}
}

func TestCreateDuplicate(t *testing.T) {
	c := New()
	if _, err := c.Create("INBOX", "part1", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Create("INBOX", "part1", ""); err == nil {
		t.Error("expected error creating duplicate mailbox")
	}
}

func TestLookupMissing(t *testing.T) {
	c := New()
	if _, err := c.Lookup(context.Background(), "nope"); err == nil {
		t.Error("expected error looking up missing mailbox")
	}
}

func TestSetMoving(t *testing.T) {
	c := New()
	c.Create("INBOX", "part1", "")
	if err := c.SetMoving("INBOX", true); err != nil {
		t.Fatalf("SetMoving: %v", err)
	}
	got, err := c.Lookup(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got.Moving {
		t.Error("expected Moving to be true")
	}
}

func TestSetMovingMissing(t *testing.T) {
	c := New()
	if err := c.SetMoving("nope", true); err == nil {
		t.Error("expected error")
	}
}

func TestRename(t *testing.T) {
	c := New()
	c.Create("INBOX", "part1", "acl")
	c.SetMoving("INBOX", true)

	if err := c.Rename("INBOX", "Archive"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := c.Lookup(context.Background(), "INBOX"); err == nil {
		t.Error("expected old name to be gone")
	}
	got, err := c.Lookup(context.Background(), "Archive")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Moving {
		t.Error("expected Moving cleared after rename")
	}

	e, ok := c.Get("Archive")
	if !ok || e.Name != "Archive" || e.ACL != "acl" {
		t.Errorf("Get = %+v, %v", e, ok)
	}
}

func TestRenameDestinationExists(t *testing.T) {
	c := New()
	c.Create("INBOX", "part1", "")
	c.Create("Archive", "part1", "")
	if err := c.Rename("INBOX", "Archive"); err == nil {
		t.Error("expected error renaming onto an existing mailbox")
	}
}

func TestRenameMissing(t *testing.T) {
	c := New()
	if err := c.Rename("nope", "also-nope"); err == nil {
		t.Error("expected error")
	}
}

func TestDelete(t *testing.T) {
	c := New()
	c.Create("INBOX", "part1", "")
	if err := c.Delete("INBOX"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get("INBOX"); ok {
		t.Error("expected mailbox to be gone after Delete")
	}
}

func TestDeleteMissing(t *testing.T) {
	c := New()
	if err := c.Delete("nope"); err == nil {
		t.Error("expected error")
	}
}

func TestGetMissing(t *testing.T) {
	c := New()
	if _, ok := c.Get("nope"); ok {
		t.Error("expected ok=false for missing entry")
	}
}
