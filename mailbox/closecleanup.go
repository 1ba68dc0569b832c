package mailbox

import (
	"context"

	"github.com/brong/mboxd/mailbox/wireformat"
)

const cleanupOptionsMask = wireformat.OptDeleted | wireformat.OptNeedsRepack | wireformat.OptNeedsUnlink

// runOpportunisticCleanup implements the "closed" lifecycle step (§4.1,
// §4.6): the last closer of a mailbox whose header options include
// DELETED, NEEDS_REPACK, or NEEDS_UNLINK attempts a non-blocking upgrade
// of the name lock to EXCLUSIVE and, on success, runs the matching
// maintenance operation in priority order. Contention at either the name
// lock or the index lock is not an error - the next closer tries again.
//
// The caller must have already removed h from the registry's handle
// table (so a concurrent Open can't observe a half-cleaned-up Handle)
// but must not yet have called h.closeFiles.
func (h *Handle) runOpportunisticCleanup(reg *Registry) {
	opts := h.header.Options
	if opts&cleanupOptionsMask == 0 {
		return
	}
	if h.nameLock == nil {
		return
	}

	h.nameLock.Unlock()
	excl, ok := reg.names.TryLock(h.name, Exclusive)
	h.nameLock = nil
	if !ok {
		return
	}
	defer excl.Unlock()

	if opts&wireformat.OptDeleted != 0 {
		if err := DeleteCleanup(h.partition, h.name); err != nil {
			h.logf("mailbox: opportunistic cleanup: delete_cleanup for %s failed (non-fatal): %v", h.name, err)
		}
		return
	}

	if err := h.TryLockIndex(Exclusive); err != nil {
		return
	}
	defer h.UnlockIndex()

	if opts&wireformat.OptNeedsRepack != 0 {
		if err := h.Repack(context.Background(), RepackOptions{}); err != nil {
			h.logf("mailbox: opportunistic cleanup: repack for %s failed (non-fatal): %v", h.name, err)
		}
		return
	}
	if opts&wireformat.OptNeedsUnlink != 0 {
		if err := h.unlinkSweep(); err != nil {
			h.logf("mailbox: opportunistic cleanup: unlink sweep for %s failed (non-fatal): %v", h.name, err)
		}
	}
}
