package mailbox

import (
	"os"

	"github.com/brong/mboxd/mailbox/wireformat"
)

// unlinkSweep physically removes the payload files for every record still
// marked UNLINKED, without the cost of rebuilding the index and cache
// files the way Repack does, then clears NEEDS_UNLINK (§4.6
// unlink_sweep). The caller must hold an EXCLUSIVE index lock.
func (h *Handle) unlinkSweep() error {
	h.requireIndexLock(Exclusive, "unlinkSweep")
	for recno := 0; recno < h.recordCount(); recno++ {
		r, _, err := h.readRecordAt(recno)
		if err != nil {
			return err
		}
		if r.SystemFlags&wireformat.FlagUnlinked == 0 {
			continue
		}
		path := MessagePath(h.dir, r.UID, roleOf(r))
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			h.logf("mailbox: unlinkSweep: removing %s failed (non-fatal): %v", path, rmErr)
		}
	}
	h.header.Options &^= wireformat.OptNeedsUnlink
	return h.flushHeader()
}
