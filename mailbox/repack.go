package mailbox

import (
	"bytes"
	"context"
	"os"

	"github.com/brong/mboxd/mailbox/wireformat"
	atomicfile "github.com/natefinch/atomic"
)

// RepackOptions configures Repack.
type RepackOptions struct {
	// TargetMinorVersion is the minor_version the rebuilt index and
	// records should use. Zero means "keep the current version".
	TargetMinorVersion uint32

	UserID string // owner, for seen-state folding across the v12 boundary
}

// Repack implements repack(new_version) (§4.5): it rebuilds the index and
// all cache files under a new generation number, optionally migrating
// between minor_versions. The caller must hold an EXCLUSIVE index lock
// (the name lock is assumed already EXCLUSIVE per the opportunistic
// cleanup / explicit-maintenance callers of this method).
//
// Any error aborts before the commit step and unlinks the .NEW files,
// leaving the mailbox unchanged (§4.5 "Abort at any step...").
func (h *Handle) Repack(ctx context.Context, opts RepackOptions) (err error) {
	h.requireIndexLock(Exclusive, "Repack")

	target := opts.TargetMinorVersion
	if target == 0 {
		target = h.header.MinorVersion
	}
	crossingV12 := (h.header.MinorVersion < wireformat.SynthesizeBelowMinor) != (target < wireformat.SynthesizeBelowMinor)

	newIndexPath := h.dir + "/" + IndexFileName + NewSuffix
	newSpoolPath := h.dir + "/" + CacheFileName + NewSuffix
	newArchivePath := h.dir + "/" + ArchiveCacheFileName + NewSuffix

	newGen := h.header.Generation + 1
	newSpool, err := createCacheFile(newSpoolPath, RoleSpool, newGen)
	if err != nil {
		return err
	}
	var newArchive *cacheFile
	defer func() {
		if err != nil {
			os.Remove(newIndexPath)
			newSpool.close()
			os.Remove(newSpoolPath)
			if newArchive != nil {
				newArchive.close()
				os.Remove(newArchivePath)
			}
		}
	}()
	if h.archiveCache != nil {
		newArchive, err = createCacheFile(newArchivePath, RoleArchive, newGen)
		if err != nil {
			return err
		}
	}

	var seen SeenState
	if crossingV12 && opts.UserID != "" {
		seen, err = h.collab.Seen.Get(ctx, opts.UserID, h.textHeader.UniqueID)
		if err != nil {
			return err
		}
	}

	newHeader := *h.header
	newHeader.Generation = newGen
	newHeader.MinorVersion = target
	newHeader.NumRecords = 0
	newHeader.Answered, newHeader.Flagged, newHeader.Deleted, newHeader.Exists = 0, 0, 0, 0
	newHeader.QuotaMailboxUsed = 0
	newHeader.HighestModSeq = h.header.HighestModSeq
	newHeader.DeletedModSeq = h.header.DeletedModSeq
	newHeader.LeakedCacheRecords = 0
	newHeader.StartOffset = uint32(wireformat.HeaderSize(target))
	newHeader.RecordSize = uint32(wireformat.Size(int(target)))
	newHeader.Options &^= wireformat.OptNeedsRepack | wireformat.OptNeedsUnlink

	var records [][]byte
	for recno := 0; recno < h.recordCount(); recno++ {
		r, _, rerr := h.readRecordAt(recno)
		if rerr != nil {
			return rerr
		}
		if r.UID == 0 {
			continue // tombstone
		}
		if r.SystemFlags&wireformat.FlagUnlinked != 0 {
			path := MessagePath(h.dir, r.UID, roleOf(r))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				h.logf("mailbox: Repack: removing unlinked payload %s failed (non-fatal): %v", path, rmErr)
			}
			if newHeader.DeletedModSeq < r.ModSeq {
				newHeader.DeletedModSeq = r.ModSeq
			}
			continue
		}

		if crossingV12 && opts.UserID != "" {
			r = foldSeenState(r, seen, target)
		}

		cacheBuf, cerr := h.loadCacheOrRepair(recno, r)
		if cerr != nil {
			return cerr
		}
		destCache := newSpool
		if r.SystemFlags&wireformat.FlagArchived != 0 {
			if newArchive == nil {
				newArchive, err = createCacheFile(newArchivePath, RoleArchive, newGen)
				if err != nil {
					return err
				}
			}
			destCache = newArchive
		}
		offset, crc, aerr := destCache.append(cacheBuf)
		if aerr != nil {
			return aerr
		}
		r.CacheOffset = offset
		r.CacheCRC = crc

		buf, eerr := wireformat.Encode(r, int(target))
		if eerr != nil {
			return wrap(Internal, "Repack", eerr)
		}
		records = append(records, buf)

		if r.SystemFlags&wireformat.FlagAnswered != 0 {
			newHeader.Answered++
		}
		if r.SystemFlags&wireformat.FlagFlagged != 0 {
			newHeader.Flagged++
		}
		if r.SystemFlags&wireformat.FlagDeleted != 0 {
			newHeader.Deleted++
		}
		newHeader.Exists++
		newHeader.QuotaMailboxUsed += uint64(r.Size)
		newHeader.NumRecords++
	}

	if vers := BestSyncCRCVersion(SyncCRCV1, SyncCRCV2); int(target) >= wireformat.SyncCRCMinVersion {
		newHeader.SyncCRCVers = uint32(vers)
	}

	indexBuf := new(bytes.Buffer)
	hdrBuf, herr := wireformat.EncodeHeader(&newHeader)
	if herr != nil {
		return wrap(Internal, "Repack", herr)
	}
	indexBuf.Write(hdrBuf)
	for _, rb := range records {
		indexBuf.Write(rb)
	}

	if err = newSpool.sync(); err != nil {
		return err
	}
	if newArchive != nil {
		if err = newArchive.sync(); err != nil {
			return err
		}
	}
	if err = atomicfile.WriteFile(newIndexPath, bytes.NewReader(indexBuf.Bytes())); err != nil {
		return wrap(IOError, "Repack", err)
	}

	// Index rename first (§4.5 step 5: "the index rename comes first").
	if err = os.Rename(newIndexPath, h.dir+"/"+IndexFileName); err != nil {
		return wrap(IOError, "Repack", err)
	}
	if err = os.Rename(newSpoolPath, h.dir+"/"+CacheFileName); err != nil {
		return wrap(IOError, "Repack", err)
	}
	if newArchive != nil {
		if err = os.Rename(newArchivePath, h.dir+"/"+ArchiveCacheFileName); err != nil {
			return wrap(IOError, "Repack", err)
		}
	}

	if err = h.reopenAfterRepack(&newHeader, newSpool, newArchive); err != nil {
		return err
	}

	if crossingV12 && opts.UserID != "" {
		if serr := h.collab.Seen.Set(ctx, opts.UserID, h.textHeader.UniqueID, seen); serr != nil {
			h.logf("mailbox: Repack: seen-state fold-out for %s failed (non-fatal): %v", opts.UserID, serr)
		}
	}
	return nil
}

func roleOf(r *wireformat.Record) CacheRole {
	if r.SystemFlags&wireformat.FlagArchived != 0 {
		return RoleArchive
	}
	return RoleSpool
}

// foldSeenState applies the owner's seen state to r's SEEN flag when a
// repack migrates across the v12 boundary (§4.5 step 3). Only a target
// below v12 changes the record: SEEN is set for UIDs in seen.SeenUIDs and
// cleared for the rest. For a target of v12 or later r passes through
// unchanged, and Repack writes the seen state back as it was read.
func foldSeenState(r *wireformat.Record, seen SeenState, target uint32) *wireformat.Record {
	out := *r
	if target < wireformat.SynthesizeBelowMinor {
		// Folding in: SEEN becomes a per-record bit derived from seen range.
		if uidInSeenSet(r.UID, seen.SeenUIDs) {
			out.SystemFlags |= wireformat.FlagSeen
		} else {
			out.SystemFlags &^= wireformat.FlagSeen
		}
	}
	return &out
}

func uidInSeenSet(uid uint32, set string) bool {
	return UIDSet(set).Contains(uid)
}
