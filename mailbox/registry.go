package mailbox

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry is the process-wide table of open mailboxes: the name lock
// registry plus a refcounted map of live Handles, modeled on
// spilldb/boxmgmt.go's map+mutex registry of per-user state (§4.1 "a
// process maintains at most one open Handle per mailbox name; repeated
// Open calls are refcounted").
type Registry struct {
	names *nameLockRegistry

	mu      sync.Mutex
	handles map[string]*Handle

	// cleanupGroup coalesces concurrent opportunistic-cleanup attempts
	// for the same mailbox name into one in-flight call, so a burst of
	// opens/closes against a mailbox stuck needing repack doesn't pile
	// up redundant TryLock/TryLockIndex attempts behind each other.
	cleanupGroup singleflight.Group
}

// NewRegistry creates an empty registry. Call Shutdown when the process
// is done opening mailboxes, to fail loudly on any handle leak.
func NewRegistry() *Registry {
	return &Registry{
		names:   newNameLockRegistry(),
		handles: make(map[string]*Handle),
	}
}

// acquireExisting returns an already-open handle for name with its
// refcount bumped, or nil if none is open.
func (r *Registry) acquireExisting(name string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handles[name]
	if h == nil {
		return nil
	}
	h.mu.Lock()
	h.refcount++
	h.mu.Unlock()
	return h
}

func (r *Registry) put(name string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[name] = h
}

// release decrements h's refcount, closing its files and evicting it from
// the registry once the count reaches zero.
func (r *Registry) release(h *Handle) error {
	h.mu.Lock()
	h.refcount--
	last := h.refcount <= 0
	h.mu.Unlock()
	if !last {
		return nil
	}

	r.mu.Lock()
	if r.handles[h.name] == h {
		delete(r.handles, h.name)
	}
	r.mu.Unlock()

	r.cleanupGroup.Do(h.name, func() (interface{}, error) {
		h.runOpportunisticCleanup(r)
		return nil, nil
	})

	return h.closeFiles()
}

// Shutdown panics if any handle is still open, per the "explicit
// lifecycle, no silent leaks" discipline called for by Design Notes -
// a process that forgets to Close a Handle has a bug worth surfacing
// immediately rather than papering over with a finalizer.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	invariant(len(r.handles) == 0, "registry shutdown with %d handle(s) still open", len(r.handles))
}

// OpenCount reports how many distinct mailboxes currently have a live
// Handle, for diagnostics and tests.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
