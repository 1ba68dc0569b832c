package mailbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/brong/mboxd/mailbox/wireformat"
)

// Decider reports whether a record should be acted on by Expunge or
// Archive. DefaultExpungeDecider implements the spec's default policy.
type Decider func(r *wireformat.Record) bool

// DefaultExpungeDecider expunges every record carrying \Deleted (§4.4.3).
func DefaultExpungeDecider(r *wireformat.Record) bool {
	return r.SystemFlags&wireformat.FlagDeleted != 0
}

// Expunge implements expunge(decider) (§4.4.3): for every record not
// already EXPUNGED where decider returns true, sets EXPUNGED and rewrites
// it. A nil decider uses DefaultExpungeDecider.
func (h *Handle) Expunge(ctx context.Context, decider Decider, immediate bool) (expunged []uint32, err error) {
	h.requireIndexLock(Exclusive, "Expunge")
	if decider == nil {
		decider = DefaultExpungeDecider
	}
	for recno := 0; recno < h.recordCount(); recno++ {
		r, _, err := h.readRecordAt(recno)
		if err != nil {
			return expunged, err
		}
		if r.SystemFlags&wireformat.FlagExpunged != 0 {
			continue
		}
		if !decider(r) {
			continue
		}
		rw := RewriteRecord{
			UID:              r.UID,
			GUID:             r.GUID,
			SystemFlags:      r.SystemFlags | wireformat.FlagExpunged,
			UserFlags:        r.UserFlags,
			CID:              r.CID,
			ImmediateExpunge: immediate,
		}
		if err := h.Rewrite(ctx, rw); err != nil {
			return expunged, err
		}
		expunged = append(expunged, r.UID)
	}
	return expunged, nil
}

// ExpungeCleanup implements expunge_cleanup(expunge_mark) (§4.4.4): records
// that have been EXPUNGED since before mark are marked UNLINKED via a
// silent rewrite, and first_expunged is advanced to track the earliest
// not-yet-eligible expunge so the next cleanup can be scheduled.
func (h *Handle) ExpungeCleanup(ctx context.Context, mark time.Time) error {
	h.requireIndexLock(Exclusive, "ExpungeCleanup")
	var nextFirst int64
	markUnix := mark.Unix()
	for recno := 0; recno < h.recordCount(); recno++ {
		r, _, err := h.readRecordAt(recno)
		if err != nil {
			return err
		}
		if r.SystemFlags&wireformat.FlagExpunged == 0 || r.SystemFlags&wireformat.FlagUnlinked != 0 {
			continue
		}
		if r.LastUpdated > markUnix {
			if nextFirst == 0 || r.LastUpdated < nextFirst {
				nextFirst = r.LastUpdated
			}
			continue
		}
		rw := RewriteRecord{
			UID:         r.UID,
			GUID:        r.GUID,
			SystemFlags: r.SystemFlags | wireformat.FlagUnlinked,
			UserFlags:   r.UserFlags,
			CID:         r.CID,
			Silent:      true,
		}
		if err := h.Rewrite(ctx, rw); err != nil {
			return err
		}
	}
	h.header.FirstExpunged = nextFirst
	return h.flushHeader()
}

// Archive implements archive(decider) (§4.4.5): each matching record's
// payload is copied from the spool partition to the archive partition,
// ARCHIVED is set, a fresh cache record is appended to the archive cache
// (cache is per-role), the index record is silently rewritten, and the
// source file is unlinked on success.
func (h *Handle) Archive(ctx context.Context, decider Decider) error {
	return h.moveBetweenRoles(ctx, decider, true)
}

// Unarchive reverses Archive: it copies payloads back from the archive
// partition to the spool partition and clears ARCHIVED.
func (h *Handle) Unarchive(ctx context.Context, decider Decider) error {
	return h.moveBetweenRoles(ctx, decider, false)
}

func (h *Handle) moveBetweenRoles(ctx context.Context, decider Decider, toArchive bool) error {
	h.requireIndexLock(Exclusive, "Archive")
	if h.archiveCache == nil && toArchive {
		cf, err := createCacheFile(h.dir+"/"+ArchiveCacheFileName, RoleArchive, h.header.Generation)
		if err != nil {
			return err
		}
		h.archiveCache = cf
	}

	for recno := 0; recno < h.recordCount(); recno++ {
		r, _, err := h.readRecordAt(recno)
		if err != nil {
			return err
		}
		if r.SystemFlags&wireformat.FlagExpunged != 0 || r.SystemFlags&wireformat.FlagUnlinked != 0 {
			continue
		}
		alreadyArchived := r.SystemFlags&wireformat.FlagArchived != 0
		if toArchive == alreadyArchived {
			continue
		}
		if decider != nil && !decider(r) {
			continue
		}

		srcRole, dstRole := RoleSpool, RoleArchive
		if !toArchive {
			srcRole, dstRole = RoleArchive, RoleSpool
		}
		srcPath := MessagePath(h.dir, r.UID, srcRole)
		dstPath := MessagePath(h.dir, r.UID, dstRole)
		if err := copyPayloadFile(srcPath, dstPath); err != nil {
			return wrap(IOError, "moveBetweenRoles", err)
		}

		cacheBuf, err := h.loadCacheOrRepair(recno, r)
		if err != nil {
			return err
		}
		dstCache := h.spoolCache
		if dstRole == RoleArchive {
			dstCache = h.archiveCache
		}
		offset, crc, err := dstCache.append(cacheBuf)
		if err != nil {
			return err
		}
		if err := dstCache.sync(); err != nil {
			return err
		}

		newFlags := r.SystemFlags
		if toArchive {
			newFlags |= wireformat.FlagArchived
		} else {
			newFlags &^= wireformat.FlagArchived
		}

		newRecordBase := *r
		newRecordBase.SystemFlags = newFlags
		newRecordBase.CacheOffset = offset
		newRecordBase.CacheCRC = crc
		if err := h.writeRecordAt(recno, &newRecordBase); err != nil {
			return err
		}

		if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
			h.logf("mailbox: moveBetweenRoles: removing source %s failed (non-fatal): %v", srcPath, err)
		}
	}
	return h.flushHeader()
}

// loadCache returns the raw cache record bytes for r, choosing the spool
// or archive cache file by r's ARCHIVED flag.
func (h *Handle) loadCache(r *wireformat.Record) ([]byte, bool, error) {
	cf := h.spoolCache
	if r.SystemFlags&wireformat.FlagArchived != 0 {
		cf = h.archiveCache
	}
	if cf == nil {
		return nil, false, errf(IOError, "loadCache", "no cache file open for uid %d's role", r.UID)
	}
	return cf.readAt(r.CacheOffset, r.CacheCRC)
}

func copyPayloadFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
