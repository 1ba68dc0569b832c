package mailbox

import "context"

// CatalogEntry is what the external mailbox-list catalog returns for a
// mailbox name: partition placement, ACL, and move-in-progress status
// (§4.1 step 3).
type CatalogEntry struct {
	Partition string
	ACL       string
	Moving    bool
}

// Catalog is the external mailbox-list lookup service consumed by open
// (§4.1 step 3) and reconstruct (§4.7 step 1, ACL validation). It is
// out of scope to implement fully (§1); package catalog ships a reference
// in-memory implementation.
type Catalog interface {
	Lookup(ctx context.Context, name string) (CatalogEntry, error)
}
