// Package catalog provides a reference in-memory implementation of the
// mailbox-list lookup service the mailbox package consumes as an
// out-of-scope collaborator (§4.1 step 3, §4.10).
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/brong/mboxd/mailbox"
)

// Entry is one catalog row: everything Open/Reconstruct need to locate
// and validate a mailbox before touching its files.
type Entry struct {
	Name      string
	Partition string
	ACL       string
	UniqueID  string
	Moving    bool
}

// Catalog is an in-memory, mutex-guarded mailbox-list, suitable for a
// single process (tests, a standalone cmd/mboxd invocation). A
// multi-host deployment would back this with the shared configuration
// database instead; the interface in mailbox.Catalog is what matters to
// callers, not this implementation.
type Catalog struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]*Entry)}
}

// Lookup implements mailbox.Catalog.
func (c *Catalog) Lookup(ctx context.Context, name string) (mailbox.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return mailbox.CatalogEntry{}, fmt.Errorf("catalog: no such mailbox %q", name)
	}
	return mailbox.CatalogEntry{Partition: e.Partition, ACL: e.ACL, Moving: e.Moving}, nil
}

// Create registers a new mailbox under partition, minting a fresh
// uniqueid, and returns the entry (§6.3 create(name, part, acl, opts)).
func (c *Catalog) Create(name, partition, acl string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name]; exists {
		return nil, fmt.Errorf("catalog: mailbox %q already exists", name)
	}
	e := &Entry{
		Name:      name,
		Partition: partition,
		ACL:       acl,
		UniqueID:  uuid.NewString(),
	}
	c.entries[name] = e
	return e, nil
}

// SetMoving flags name as mid-rename, causing concurrent Open calls to
// fail with mailbox.Moved until SetMoving(name, false) or Rename clears
// the flag.
func (c *Catalog) SetMoving(name string, moving bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("catalog: no such mailbox %q", name)
	}
	e.Moving = moving
	return nil
}

// Rename moves an entry from oldName to newName, preserving its
// uniqueid and ACL, and clears its Moving flag (rename_copy, §6.3).
func (c *Catalog) Rename(oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[oldName]
	if !ok {
		return fmt.Errorf("catalog: no such mailbox %q", oldName)
	}
	if _, exists := c.entries[newName]; exists {
		return fmt.Errorf("catalog: mailbox %q already exists", newName)
	}
	delete(c.entries, oldName)
	e.Name = newName
	e.Moving = false
	c.entries[newName] = e
	return nil
}

// Delete removes name from the catalog (delete_cleanup, §6.3).
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; !ok {
		return fmt.Errorf("catalog: no such mailbox %q", name)
	}
	delete(c.entries, name)
	return nil
}

// Get returns the full entry for name, for callers (create, reconstruct)
// that need the uniqueid rather than just the mailbox.CatalogEntry view.
func (c *Catalog) Get(name string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	return e, ok
}
