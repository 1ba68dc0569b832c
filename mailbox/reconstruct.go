package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/brong/mboxd/mailbox/wireformat"
	"github.com/brong/mboxd/msgparse"
)

// ReconstructFlags controls reconstruct's behavior (§4.7).
type ReconstructFlags struct {
	MakeChanges bool // false: dry run, compute but do not commit
	Quiet       bool
	IgnoreOddFiles bool
	RemoveOddFiles bool
	AlwaysParse    bool
	DoStat         bool
	GUIDUnlink     bool // remove payload on GUID mismatch
	GUIDRewrite    bool // re-UID on GUID mismatch
}

// ReconstructResult summarizes what reconstruct found and changed, for
// logging and tests.
type ReconstructResult struct {
	Discovered []foundFile
	OddFiles   []string
	Wiped      int
	Updated    int
}

type foundFile struct {
	UID  uint32
	Role CacheRole
	Path string
}

var payloadNameRe = regexp.MustCompile(`^([0-9]+)\.$`)

// Reconstruct implements reconstruct(name, flags) (§4.7): rebuilding a
// mailbox's metadata from filesystem state. The caller must hold the
// EXCLUSIVE name-lock and EXCLUSIVE index-lock already (per the
// operation-surface table in §6.3, reconstruct takes both itself when
// driven through the registry; this method assumes they are already
// held so it composes with Repack-style maintenance callers).
func (h *Handle) Reconstruct(ctx context.Context, flags ReconstructFlags) (*ReconstructResult, error) {
	h.requireIndexLock(Exclusive, "Reconstruct")

	if h.textHeader.CRC32() != h.header.HeaderFileCRC {
		h.header.HeaderFileCRC = h.textHeader.CRC32()
	}

	result := new(ReconstructResult)
	found, odd, err := h.scanPayloads(RoleSpool)
	if err != nil {
		return nil, err
	}
	foundArchive, oddArchive, err := h.scanPayloads(RoleArchive)
	if err != nil {
		return nil, err
	}
	found = append(found, foundArchive...)
	odd = append(odd, oddArchive...)
	sort.Slice(found, func(i, j int) bool { return found[i].UID < found[j].UID })
	result.OddFiles = odd

	if flags.RemoveOddFiles {
		for _, p := range odd {
			if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				h.logf("mailbox: Reconstruct: removing odd file %s failed (non-fatal): %v", p, rmErr)
			}
		}
	}

	annots, err := h.collab.Annotations.All(ctx)
	if err != nil {
		annots = nil
	}
	sort.Slice(annots, func(i, j int) bool { return annots[i].UID < annots[j].UID })

	var discovered []foundFile
	var delannots []uint32
	var pendingRewrites []foundFile
	foundIdx, annotIdx := 0, 0
	lastSeen := uint32(0)

	newRecords := make([]*wireformat.Record, 0, h.recordCount())
	for recno := 0; recno < h.recordCount(); recno++ {
		r, _, rerr := h.readRecordAt(recno)
		if rerr != nil {
			return nil, rerr
		}
		if r.UID == 0 {
			continue
		}
		if r.UID <= lastSeen {
			result.Wiped++
			continue
		}
		for foundIdx < len(found) && found[foundIdx].UID < r.UID {
			discovered = append(discovered, found[foundIdx])
			foundIdx++
		}
		for annotIdx < len(annots) && annots[annotIdx].UID < r.UID {
			delannots = append(delannots, annots[annotIdx].UID)
			annotIdx++
		}

		updated, rewritten, err := h.reconstructCompareUpdate(r, flags)
		if err != nil {
			return nil, err
		}
		if updated {
			result.Updated++
		}
		newRecords = append(newRecords, r)
		if rewritten != nil {
			pendingRewrites = append(pendingRewrites, *rewritten)
		}
		lastSeen = r.UID
	}

	for foundIdx < len(found) {
		f := found[foundIdx]
		foundIdx++
		if f.UID <= lastSeen {
			discovered = append(discovered, f)
			continue
		}
		rec, err := h.synthesizeRecordFromFile(f)
		if err != nil {
			h.logf("mailbox: Reconstruct: synthesizing record for %s failed (non-fatal): %v", f.Path, err)
			continue
		}
		newRecords = append(newRecords, rec)
	}
	for annotIdx < len(annots) {
		delannots = append(delannots, annots[annotIdx].UID)
		annotIdx++
	}

	// Payloads moved onto a fresh UID by a GUID-mismatch rewrite land
	// last: reconstructCompareUpdate mints each new UID from the then-
	// current LastUID, so these are always newer than anything already
	// placed above.
	for _, f := range pendingRewrites {
		rec, err := h.synthesizeRecordFromFile(f)
		if err != nil {
			h.logf("mailbox: Reconstruct: synthesizing rewritten record for %s failed (non-fatal): %v", f.Path, err)
			continue
		}
		newRecords = append(newRecords, rec)
	}

	if len(delannots) > 0 {
		if err := h.collab.Annotations.DeleteUIDs(ctx, delannots); err != nil {
			h.logf("mailbox: Reconstruct: annotation cleanup failed (non-fatal): %v", err)
		}
	}

	h.recalcCounters(newRecords)
	result.Discovered = discovered

	if !flags.MakeChanges {
		return result, nil
	}

	for i, r := range newRecords {
		if err := h.writeRecordAt(i, r); err != nil {
			return nil, err
		}
	}
	if err := h.indexFile.Truncate(int64(h.recordOffset(len(newRecords)))); err != nil {
		return nil, wrap(IOError, "Reconstruct", err)
	}
	h.header.NumRecords = uint32(len(newRecords))
	if len(newRecords) > 0 {
		h.header.LastUID = newRecords[len(newRecords)-1].UID
	}
	if err := h.flushHeader(); err != nil {
		return nil, err
	}
	return result, nil
}

// reconstructCompareUpdate implements §4.7 step 6: if the payload file is
// missing, mark EXPUNGED|UNLINKED. Otherwise, when DoStat or AlwaysParse
// asks for it: if the on-disk size disagrees with the record (or
// AlwaysParse forces it regardless), reparse the payload; if the
// recomputed GUID disagrees with a previously-recorded one, apply the
// configured mismatch policy (GUIDUnlink removes the payload, GUIDRewrite
// moves it onto a fresh UID for rediscovery); otherwise adopt whichever
// reparsed fields differ. rewritten is non-nil only for GUIDRewrite.
func (h *Handle) reconstructCompareUpdate(r *wireformat.Record, flags ReconstructFlags) (updated bool, rewritten *foundFile, err error) {
	role := roleOf(r)
	path := MessagePath(h.dir, r.UID, role)
	st, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		if r.SystemFlags&(wireformat.FlagExpunged|wireformat.FlagUnlinked) == wireformat.FlagExpunged|wireformat.FlagUnlinked {
			return false, nil, nil
		}
		r.SystemFlags |= wireformat.FlagExpunged | wireformat.FlagUnlinked
		return true, nil, nil
	}
	if statErr != nil {
		return false, nil, wrap(IOError, "reconstructCompareUpdate", statErr)
	}

	if !flags.DoStat && !flags.AlwaysParse {
		return false, nil, nil
	}
	sizeDiffers := uint32(st.Size()) != r.Size
	if !sizeDiffers && !flags.AlwaysParse {
		return false, nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, nil, wrap(IOError, "reconstructCompareUpdate", err)
	}
	pm, perr := msgparse.Parse(f, int(h.header.MinorVersion))
	f.Close()
	if perr != nil {
		h.logf("mailbox: Reconstruct: reparsing uid %d failed (non-fatal): %v", r.UID, perr)
		return false, nil, nil
	}
	newGUID := wireformat.MessageGUID(pm.GUID)

	if !r.GUID.IsZero() && r.GUID != newGUID {
		switch {
		case flags.GUIDUnlink:
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				h.logf("mailbox: Reconstruct: removing GUID-mismatched payload %s failed (non-fatal): %v", path, rmErr)
			}
			r.SystemFlags |= wireformat.FlagExpunged | wireformat.FlagUnlinked
			return true, nil, nil
		case flags.GUIDRewrite:
			newUID := h.header.LastUID + 1
			newPath := MessagePath(h.dir, newUID, role)
			if mkErr := os.MkdirAll(filepath.Dir(newPath), 0o750); mkErr != nil {
				return false, nil, wrap(IOError, "reconstructCompareUpdate", mkErr)
			}
			if rnErr := os.Rename(path, newPath); rnErr != nil {
				return false, nil, wrap(IOError, "reconstructCompareUpdate", rnErr)
			}
			h.header.LastUID = newUID
			r.SystemFlags |= wireformat.FlagExpunged | wireformat.FlagUnlinked
			return true, &foundFile{UID: newUID, Role: role, Path: newPath}, nil
		}
	}

	changed := false
	if r.Size != uint32(st.Size()) {
		r.Size = uint32(st.Size())
		changed = true
	}
	if r.GUID != newGUID {
		r.GUID = newGUID
		changed = true
	}
	if pm.Body.Type != "MULTIPART" {
		if lines := uint32(pm.Body.Lines); r.ContentLines != lines {
			r.ContentLines = lines
			changed = true
		}
	}
	return changed, nil, nil
}

// synthesizeRecordFromFile builds a minimal placeholder record for a
// payload file found on disk with no corresponding index record: UID,
// internaldate from the file's mtime, size, and the ARCHIVED bit for an
// archive payload. The message is not parsed, so GUID, cache and modseq
// are left zero.
func (h *Handle) synthesizeRecordFromFile(f foundFile) (*wireformat.Record, error) {
	st, err := os.Stat(f.Path)
	if err != nil {
		return nil, wrap(IOError, "synthesizeRecordFromFile", err)
	}
	r := &wireformat.Record{
		UID:          f.UID,
		InternalDate: st.ModTime().Unix(),
		LastUpdated:  time.Now().Unix(),
		Size:         uint32(st.Size()),
	}
	if f.Role == RoleArchive {
		r.SystemFlags |= wireformat.FlagArchived
	}
	return r, nil
}

// recalcCounters implements mailbox_index_recalc (§4.7 step 8): zero all
// counters and re-derive them from the final record set.
func (h *Handle) recalcCounters(records []*wireformat.Record) {
	h.header.Answered, h.header.Flagged, h.header.Deleted, h.header.Exists = 0, 0, 0, 0
	h.header.QuotaMailboxUsed = 0
	for _, r := range records {
		if r.SystemFlags&wireformat.FlagExpunged != 0 {
			continue
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
		h.header.QuotaMailboxUsed += uint64(r.Size)
	}
	vers := SyncCRCVersion(h.header.SyncCRCVers)
	if vers != 0 {
		h.header.SyncCRC = recomputeSyncCRC(vers, records, nil)
	}
}

// scanPayloads enumerates payload files under role's data directory,
// producing a sorted (uid, role) list and a separate odd-file list for
// names that don't match "<digits>." (§4.7 step 2).
func (h *Handle) scanPayloads(role CacheRole) (found []foundFile, odd []string, err error) {
	root := filepath.Join(h.dir, role.dataDirName())
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, wrap(IOError, "scanPayloads", err)
	}
	for _, hashDir := range entries {
		if !hashDir.IsDir() {
			odd = append(odd, filepath.Join(root, hashDir.Name()))
			continue
		}
		sub := filepath.Join(root, hashDir.Name())
		files, err := os.ReadDir(sub)
		if err != nil {
			return nil, nil, wrap(IOError, "scanPayloads", err)
		}
		for _, f := range files {
			m := payloadNameRe.FindStringSubmatch(f.Name())
			if m == nil {
				odd = append(odd, filepath.Join(sub, f.Name()))
				continue
			}
			uid, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				odd = append(odd, filepath.Join(sub, f.Name()))
				continue
			}
			found = append(found, foundFile{UID: uint32(uid), Role: role, Path: filepath.Join(sub, f.Name())})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].UID < found[j].UID })
	return found, odd, nil
}
