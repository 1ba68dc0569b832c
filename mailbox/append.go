package mailbox

import (
	"context"
	"time"

	"github.com/brong/mboxd/mailbox/wireformat"
)

// AppendRecord is the caller-supplied description of a new message; zero
// fields are filled in by Append per §4.4.1 step 1.
type AppendRecord struct {
	UID          uint32
	InternalDate time.Time
	SentDate     time.Time
	GMTimeOffset int32
	Size         uint32
	HeaderSize   uint32
	ContentLines uint32
	SystemFlags  uint32
	UserFlags    [4]uint32
	GUID         wireformat.MessageGUID
	CID          uint64
	Cache        *CacheRecord

	// Silent suppresses the highestmodseq advance (§4.4.1 step 2); the
	// record is then written with a zero modseq.
	Silent bool

	// QuotaRoot and ConvoDelta feed the sidecar collaborators (§4.4.1
	// step 4); QuotaRoot == "" skips the quota check entirely.
	QuotaRoot string
	ConvoDelta ConvoDelta
}

// Append implements append_record (§4.4.1): the only way to add a new
// message to the mailbox. The caller must hold an EXCLUSIVE index lock.
func (h *Handle) Append(ctx context.Context, rec AppendRecord) error {
	h.requireIndexLock(Exclusive, "Append")
	invariant(rec.UID > h.header.LastUID, "Append: uid %d does not exceed last_uid %d", rec.UID, h.header.LastUID)
	invariant(rec.Size > 0, "Append: record.size must be > 0")
	invariant(!rec.GUID.IsZero(), "Append: record.guid must not be zero")

	if rec.InternalDate.IsZero() {
		rec.InternalDate = time.Now()
	}
	gmtime := rec.InternalDate
	sentDate := rec.SentDate
	if sentDate.IsZero() {
		y, m, d := rec.InternalDate.Date()
		sentDate = time.Date(y, m, d, 0, 0, 0, 0, rec.InternalDate.Location())
	}

	if rec.QuotaRoot != "" {
		if err := h.collab.Quota.CheckLimit(ctx, rec.QuotaRoot, int64(rec.Size)); err != nil {
			return err
		}
	}

	r := &wireformat.Record{
		UID:          rec.UID,
		InternalDate: rec.InternalDate.Unix(),
		SentDate:     sentDate.Unix(),
		Size:         rec.Size,
		HeaderSize:   rec.HeaderSize,
		GMTimeOffset: offsetOf(gmtime, rec.GMTimeOffset),
		LastUpdated:  time.Now().Unix(),
		SystemFlags:  rec.SystemFlags,
		UserFlags:    rec.UserFlags,
		ContentLines: rec.ContentLines,
		GUID:         rec.GUID,
		CID:          rec.CID,
	}

	if !rec.Silent {
		h.header.HighestModSeq++
		r.ModSeq = h.header.HighestModSeq
	}

	if r.SystemFlags&wireformat.FlagUnlinked == 0 && rec.Cache != nil {
		cacheBuf := rec.Cache.Encode()
		offset, crc, err := h.spoolCache.append(cacheBuf)
		if err != nil {
			return err
		}
		r.CacheOffset = offset
		r.CacheCRC = crc
		r.CacheVersion = 1
		if err := h.spoolCache.sync(); err != nil {
			return err
		}
	}

	if rec.QuotaRoot != "" {
		if err := h.collab.Quota.AdjustUsage(ctx, rec.QuotaRoot, int64(rec.Size), 0); err != nil {
			h.logf("mailbox: Append: quota update for %s failed (non-fatal): %v", rec.QuotaRoot, err)
		}
	}
	if rec.CID != 0 {
		if err := h.collab.Conversations.Update(ctx, rec.CID, rec.ConvoDelta); err != nil {
			h.logf("mailbox: Append: conversation update for cid %d failed (non-fatal): %v", rec.CID, err)
		}
	}

	if err := h.writeRecordAt(int(h.header.NumRecords), r); err != nil {
		return err
	}

	h.applyCountersForAppend(r)
	h.header.LastUID = r.UID
	h.header.NumRecords++
	h.header.QuotaMailboxUsed += uint64(r.Size)
	h.header.LastAppendDate = r.InternalDate
	if r.SystemFlags&wireformat.FlagExpunged != 0 {
		if h.header.FirstExpunged == 0 || r.LastUpdated < h.header.FirstExpunged {
			h.header.FirstExpunged = r.LastUpdated
		}
	}

	h.updateSyncCRCIncremental(0, recordCRCContribution(SyncCRCVersion(h.header.SyncCRCVers), r))

	return h.flushHeader()
}

func offsetOf(t time.Time, fallback int32) int32 {
	if _, off := t.Zone(); off != 0 {
		return int32(off)
	}
	return fallback
}

// applyCountersForAppend folds r's contribution into the header's running
// per-flag counters (§3.2 invariant 8).
func (h *Handle) applyCountersForAppend(r *wireformat.Record) {
	if r.SystemFlags&wireformat.FlagExpunged != 0 {
		return
	}
	if r.SystemFlags&wireformat.FlagAnswered != 0 {
		h.header.Answered++
	}
	if r.SystemFlags&wireformat.FlagFlagged != 0 {
		h.header.Flagged++
	}
	if r.SystemFlags&wireformat.FlagDeleted != 0 {
		h.header.Deleted++
	}
	h.header.Exists++
}

func (h *Handle) applyCountersForExpunge(r *wireformat.Record) {
	if r.SystemFlags&wireformat.FlagExpunged != 0 {
		return
	}
	if r.SystemFlags&wireformat.FlagAnswered != 0 {
		h.header.Answered--
	}
	if r.SystemFlags&wireformat.FlagFlagged != 0 {
		h.header.Flagged--
	}
	if r.SystemFlags&wireformat.FlagDeleted != 0 {
		h.header.Deleted--
	}
	h.header.Exists--
}

// updateSyncCRCIncremental implements the "XOR the old contribution out,
// XOR the new one in" incremental maintenance described in §4.9.
func (h *Handle) updateSyncCRCIncremental(old, new uint32) {
	if h.header.SyncCRCVers == 0 {
		return
	}
	h.header.SyncCRC ^= old
	h.header.SyncCRC ^= new
}
