package mailbox

import (
	"context"
	"time"

	"github.com/brong/mboxd/mailbox/wireformat"
)

// RewriteRecord is the caller-supplied description of how an existing
// record changes; UID and GUID must match the stored record exactly
// (§4.4.2).
type RewriteRecord struct {
	UID          uint32
	GUID         wireformat.MessageGUID
	SystemFlags  uint32
	UserFlags    [4]uint32
	CID          uint64
	Cache        *CacheRecord // nil: keep the existing cache record unchanged
	ImmediateExpunge bool
	Silent       bool

	QuotaRoot  string
	ConvoDelta ConvoDelta
}

// Rewrite implements rewrite_record (§4.4.2): the only way to change an
// existing message's metadata. The caller must hold an EXCLUSIVE index
// lock.
func (h *Handle) Rewrite(ctx context.Context, rec RewriteRecord) error {
	h.requireIndexLock(Exclusive, "Rewrite")

	recno, err := h.findRecno(rec.UID)
	if err != nil {
		return err
	}
	if recno < 0 {
		return &Error{Code: NotFound, Op: "Rewrite"}
	}
	old, crcOK, err := h.readRecordAt(recno)
	if err != nil {
		return err
	}
	if !crcOK {
		return &Error{Code: Checksum, Op: "Rewrite", Err: errf(Checksum, "Rewrite", "record %d failed CRC validation", rec.UID).Err}
	}

	invariant(old.UID == rec.UID, "Rewrite: uid mismatch: have %d want %d", old.UID, rec.UID)
	invariant(old.GUID == rec.GUID, "Rewrite: guid mismatch for uid %d", rec.UID)
	invariant(old.SystemFlags&wireformat.FlagExpunged == 0 || rec.SystemFlags&wireformat.FlagExpunged != 0,
		"Rewrite: cannot unset EXPUNGED on uid %d", rec.UID)

	newRec := *old
	newRec.SystemFlags = rec.SystemFlags
	newRec.UserFlags = rec.UserFlags
	newRec.CID = rec.CID

	if rec.SystemFlags&wireformat.FlagExpunged != 0 && rec.ImmediateExpunge {
		newRec.SystemFlags |= wireformat.FlagUnlinked
	}

	if rec.Silent {
		newRec.ModSeq = old.ModSeq
	} else {
		h.header.HighestModSeq++
		newRec.ModSeq = h.header.HighestModSeq
		newRec.LastUpdated = time.Now().Unix()
	}

	if newRec.SystemFlags&wireformat.FlagUnlinked != 0 {
		h.header.Options |= wireformat.OptNeedsUnlink
		if rec.ImmediateExpunge {
			h.header.Options |= wireformat.OptNeedsRepack
		}
	} else if rec.Cache != nil {
		cacheBuf := rec.Cache.Encode()
		offset, crc, err := h.spoolCache.append(cacheBuf)
		if err != nil {
			return err
		}
		if crc != old.CacheCRC {
			newRec.CacheOffset = offset
			newRec.CacheCRC = crc
			if err := h.spoolCache.sync(); err != nil {
				return err
			}
		}
	}

	h.applyCountersForExpunge(old)
	h.applyCountersForAppend(&newRec)
	h.header.QuotaMailboxUsed = h.header.QuotaMailboxUsed - uint64(old.Size) + uint64(newRec.Size)

	vers := SyncCRCVersion(h.header.SyncCRCVers)
	h.updateSyncCRCIncremental(recordCRCContribution(vers, old), recordCRCContribution(vers, &newRec))

	if newRec.SystemFlags&wireformat.FlagExpunged != 0 && old.SystemFlags&wireformat.FlagExpunged == 0 {
		if h.header.FirstExpunged == 0 || newRec.LastUpdated < h.header.FirstExpunged {
			h.header.FirstExpunged = newRec.LastUpdated
		}
	}

	if err := h.writeRecordAt(recno, &newRec); err != nil {
		return err
	}

	if rec.QuotaRoot != "" {
		delta := int64(newRec.Size) - int64(old.Size)
		if delta != 0 {
			if err := h.collab.Quota.AdjustUsage(ctx, rec.QuotaRoot, delta, 0); err != nil {
				h.logf("mailbox: Rewrite: quota update for %s failed (non-fatal): %v", rec.QuotaRoot, err)
			}
		}
	}
	if rec.CID != 0 {
		if rec.CID != old.CID && old.CID != 0 {
			if err := h.collab.Conversations.Rename(ctx, old.CID, rec.CID, rec.ConvoDelta); err != nil {
				h.logf("mailbox: Rewrite: conversation rename %d->%d failed (non-fatal): %v", old.CID, rec.CID, err)
			}
		} else if err := h.collab.Conversations.Update(ctx, rec.CID, rec.ConvoDelta); err != nil {
			h.logf("mailbox: Rewrite: conversation update for cid %d failed (non-fatal): %v", rec.CID, err)
		}
	}

	return h.flushHeader()
}
