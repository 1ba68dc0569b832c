package mailbox

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/brong/mboxd/mailbox/wireformat"
)

// CreateOptions configures Create.
type CreateOptions struct {
	QuotaRoot   string
	UniqueID    string
	ACL         string
	UIDValidity uint32

	// MinorVersion selects the on-disk layout version written for a new
	// mailbox. Zero means wireformat.CurrentMinorVersion.
	MinorVersion uint32
}

// Create lays out a brand-new, empty mailbox directory under partition:
// the textual header, an empty index file at the chosen minor_version,
// the spool cache file, and the spool data directory (§6.3
// create_mailbox). The archive data directory is not created here.
//
// Create does not consult the catalog or take the name lock - the caller
// is expected to have already reserved the name there before calling, the
// same division of responsibility Open draws between catalog lookup and
// filesystem layout.
func Create(name, partition string, opts CreateOptions) error {
	mv := opts.MinorVersion
	if mv == 0 {
		mv = wireformat.CurrentMinorVersion
	}
	if int(mv) < wireformat.MinMinorVersion || int(mv) > wireformat.MaxMinorVersion {
		return errf(BadFormat, "Create", "unsupported minor_version %d", mv)
	}
	if name == "" {
		return &Error{Code: BadName, Op: "Create"}
	}

	dir := MailboxDir(partition, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return wrap(IOError, "Create", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, RoleSpool.dataDirName()), 0o750); err != nil {
		return wrap(IOError, "Create", err)
	}

	th := &TextHeader{QuotaRoot: opts.QuotaRoot, UniqueID: opts.UniqueID, ACL: opts.ACL}
	textPath := filepath.Join(dir, HeaderFileName)
	if err := writeFileExcl(textPath, th.Encode(), 0o640); err != nil {
		return wrap(IOError, "Create", err)
	}

	hdr := &wireformat.Header{
		Generation:     1,
		Format:         wireformat.FormatDefault,
		MinorVersion:   mv,
		StartOffset:    uint32(wireformat.HeaderSize(mv)),
		RecordSize:     uint32(wireformat.Size(int(mv))),
		NumRecords:     0,
		LastAppendDate: time.Now().Unix(),
		UIDValidity:    opts.UIDValidity,
		HeaderFileCRC:  th.CRC32(),
	}
	if hdr.UIDValidity == 0 {
		hdr.UIDValidity = uint32(time.Now().Unix())
	}
	idxBuf, err := wireformat.EncodeHeader(hdr)
	if err != nil {
		os.Remove(textPath)
		return wrap(Internal, "Create", err)
	}
	indexPath := filepath.Join(dir, IndexFileName)
	if err := writeFileExcl(indexPath, idxBuf, 0o640); err != nil {
		os.Remove(textPath)
		return wrap(IOError, "Create", err)
	}

	cachePath := filepath.Join(dir, CacheFileName)
	cf, err := createCacheFile(cachePath, RoleSpool, hdr.Generation)
	if err != nil {
		os.Remove(textPath)
		os.Remove(indexPath)
		return err
	}
	if err := cf.close(); err != nil {
		return wrap(IOError, "Create", err)
	}
	return nil
}

// writeFileExcl writes data to path, failing if path already exists -
// create_mailbox must never silently overwrite an existing mailbox.
func writeFileExcl(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
	}
	return werr
}

// Delete marks h's mailbox DELETED in its index header and commits, per
// §6.3 delete. The caller must hold an exclusive index lock. The mailbox
// directory itself is left on disk for delete_cleanup to remove once
// every reader has released its handle.
func (h *Handle) Delete() error {
	h.requireIndexLock(Exclusive, "Delete")
	h.header.Options |= wireformat.OptDeleted
	return h.flushHeader()
}

// DeleteCleanup physically removes a mailbox's on-disk directory, per
// §6.3 delete_cleanup. It takes name and partition directly rather than a
// Handle, since by the time cleanup runs every Handle referencing the
// mailbox should already be closed - this mirrors the "cleanup runs after
// the last reference is gone" ordering spilldb/boxmgmt.go uses for
// deferred deletes.
func DeleteCleanup(partition, name string) error {
	dir := MailboxDir(partition, name)
	if err := os.RemoveAll(dir); err != nil {
		return wrap(IOError, "DeleteCleanup", err)
	}
	return nil
}

// RenameCopy implements rename_copy (§6.3): it copies src's current
// generation (index, spool cache, and archive cache if present) into a
// freshly created directory for dst, stamping dst with a new UIDValidity
// so clients see it as a distinct mailbox identity, per invariant "a
// rename that changes partition or splits history mints a new
// UIDValidity". The textual header is not copied: Create writes a new one
// from opts, whose QuotaRoot and ACL default to src's; src's user-flag
// names are not carried over.
//
// Cross-mailbox operations must acquire their name locks in a total
// order to avoid deadlock (§5); RenameCopy itself takes no locks - the
// caller (typically a rename orchestrator holding both names locked in
// lexicographic order) is responsible for that, the same way repack and
// reconstruct assume their caller already holds the index lock they need.
func RenameCopy(ctx context.Context, srcHandle *Handle, dstName, dstPartition string, opts CreateOptions) error {
	srcHandle.requireIndexLock(Shared, "RenameCopy")

	if opts.UIDValidity == 0 {
		opts.UIDValidity = uint32(time.Now().Unix())
	}
	if opts.QuotaRoot == "" {
		opts.QuotaRoot = srcHandle.textHeader.QuotaRoot
	}
	if opts.ACL == "" {
		opts.ACL = srcHandle.textHeader.ACL
	}
	if opts.MinorVersion == 0 {
		opts.MinorVersion = srcHandle.header.MinorVersion
	}

	dstDir := MailboxDir(dstPartition, dstName)
	if _, err := os.Stat(dstDir); err == nil {
		return errf(BadName, "RenameCopy", "destination %q already exists", dstName)
	}
	if err := Create(dstName, dstPartition, opts); err != nil {
		return err
	}

	srcDir := srcHandle.dir
	if err := copyMailboxGeneration(srcDir, dstDir); err != nil {
		os.RemoveAll(dstDir)
		return err
	}
	if err := restampCopiedIndex(dstDir, opts.UIDValidity); err != nil {
		os.RemoveAll(dstDir)
		return err
	}
	return nil
}

// restampCopiedIndex gives a just-copied index file a fresh UIDValidity and
// re-derives HeaderFileCRC against dst's own textual header, so a copied
// mailbox is never mistaken by a client for the same identity as its
// source (invariant: rename_copy mints a new UIDValidity).
func restampCopiedIndex(dstDir string, uidValidity uint32) error {
	idxPath := filepath.Join(dstDir, IndexFileName)
	idxBuf, err := os.ReadFile(idxPath)
	if err != nil {
		return wrap(IOError, "restampCopiedIndex", err)
	}
	hdr, _, err := wireformat.DecodeHeader(idxBuf)
	if err != nil {
		return wrap(BadFormat, "restampCopiedIndex", err)
	}
	textBuf, err := os.ReadFile(filepath.Join(dstDir, HeaderFileName))
	if err != nil {
		return wrap(IOError, "restampCopiedIndex", err)
	}
	th, err := ParseTextHeader(textBuf)
	if err != nil {
		return wrap(BadFormat, "restampCopiedIndex", err)
	}

	hdr.UIDValidity = uidValidity
	hdr.HeaderFileCRC = th.CRC32()

	newBuf, err := wireformat.EncodeHeader(hdr)
	if err != nil {
		return wrap(Internal, "restampCopiedIndex", err)
	}
	copy(idxBuf[:len(newBuf)], newBuf)
	return wrap(IOError, "restampCopiedIndex", os.WriteFile(idxPath, idxBuf, 0o640))
}

// copyMailboxGeneration copies the committed on-disk files of a source
// mailbox's current generation over dst's freshly created layout.
func copyMailboxGeneration(srcDir, dstDir string) error {
	if err := copyFile(filepath.Join(srcDir, IndexFileName), filepath.Join(dstDir, IndexFileName)); err != nil {
		return err
	}
	if err := copyFile(filepath.Join(srcDir, CacheFileName), filepath.Join(dstDir, CacheFileName)); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(srcDir, ArchiveCacheFileName)); err == nil {
		if err := copyFile(filepath.Join(srcDir, ArchiveCacheFileName), filepath.Join(dstDir, ArchiveCacheFileName)); err != nil {
			return err
		}
	}
	for _, role := range []CacheRole{RoleSpool, RoleArchive} {
		srcData := filepath.Join(srcDir, role.dataDirName())
		if _, err := os.Stat(srcData); err != nil {
			continue
		}
		if err := copyTree(srcData, filepath.Join(dstDir, role.dataDirName())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrap(IOError, "copyFile", err)
	}
	os.Remove(dst)
	return wrap(IOError, "copyFile", writeFileExcl(dst, data, 0o640))
}

func copyTree(srcDir, dstDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o640)
	})
}
