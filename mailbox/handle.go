package mailbox

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/brong/mboxd/mailbox/wireformat"
)

// Collaborators bundles the external, out-of-scope lookup services a
// Handle consults (§4.10). Any field left nil falls back to a no-op
// implementation, so tests and single-purpose tools can open a mailbox
// without standing up a full sidecar store.
type Collaborators struct {
	Quota         QuotaStore
	Seen          SeenStore
	Conversations ConversationStore
	Annotations   AnnotationStore
	Catalog       Catalog
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Quota == nil {
		c.Quota = noopQuota{}
	}
	if c.Seen == nil {
		c.Seen = noopSeen{}
	}
	if c.Conversations == nil {
		c.Conversations = noopConversations{}
	}
	if c.Annotations == nil {
		c.Annotations = noopAnnotations{}
	}
	return c
}

// Options configures Open.
type Options struct {
	Collaborators Collaborators

	// Logf receives one line per non-fatal failure an operation recovers
	// from (sidecar updates, payload removal, reparsing, opportunistic
	// cleanup). Defaults to a no-op.
	Logf func(format string, v ...interface{})
}

// Handle is an open mailbox: its name lock, its locked-and-mapped index
// file, its decoded header, and its cache file set. All mutation
// operations (append_record, rewrite_record, expunge, repack, ...) are
// methods on *Handle, and every one of them requires the caller to be
// holding the appropriate index lock (§4.1, §4.4).
//
// A Handle is refcounted by the registry it was opened through: repeated
// Open calls for the same name share the in-memory header and mapping,
// matching the "process-wide registry with explicit lifecycle" shape of
// spilldb/boxmgmt.go's per-user table.
type Handle struct {
	mu sync.Mutex

	name      string
	partition string
	dir       string

	nameLock *NameLock

	indexFile *os.File
	indexLock *IndexLock
	idxMap    *indexMap

	header     *wireformat.Header
	textHeader *TextHeader

	spoolCache   *cacheFile
	archiveCache *cacheFile

	collab Collaborators
	logf   func(format string, v ...interface{})

	refcount int
}

func discardf(string, ...interface{}) {}

// Open opens the existing mailbox name, acquiring the process-wide name
// lock in mode and returning a ready-to-use Handle (§4.1). It never
// creates a mailbox; a missing one fails with Nonexistent.
//
// Open does not take the index lock; callers take it explicitly via
// LockIndex/TryLockIndex before any mutating operation: the name lock
// serializes open/rename/delete, the index lock serializes mutation.
func Open(ctx context.Context, reg *Registry, name string, mode LockMode, opts Options) (*Handle, error) {
	if opts.Logf == nil {
		opts.Logf = discardf
	}
	collab := opts.Collaborators.withDefaults()

	if h := reg.acquireExisting(name); h != nil {
		return h, nil
	}

	nl := reg.names.Lock(name, mode)

	var cat Catalog = collab.Catalog
	if cat == nil {
		nl.Unlock()
		return nil, errf(Internal, "Open", "no catalog collaborator configured")
	}
	entry, err := cat.Lookup(ctx, name)
	if err != nil {
		nl.Unlock()
		return nil, wrap(Nonexistent, "Open", err)
	}
	if entry.Moving {
		nl.Unlock()
		return nil, &Error{Code: Moved, Op: "Open"}
	}

	dir := MailboxDir(entry.Partition, name)
	h, err := openAt(dir, name, entry.Partition, nl, collab, opts.Logf)
	if err != nil {
		nl.Unlock()
		return nil, err
	}
	h.refcount = 1
	reg.put(name, h)
	return h, nil
}

// openAt performs the filesystem-level open steps once the name lock and
// catalog entry are already in hand (§4.1 steps 4-7).
func openAt(dir, name, partition string, nl *NameLock, collab Collaborators, logf func(string, ...interface{})) (*Handle, error) {
	textBuf, err := os.ReadFile(dir + "/" + HeaderFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Code: Nonexistent, Op: "openAt", Err: err}
		}
		return nil, wrap(IOError, "openAt", err)
	}
	th, err := ParseTextHeader(textBuf)
	if err != nil {
		return nil, wrap(BadFormat, "openAt", err)
	}

	idxf, err := os.OpenFile(dir+"/"+IndexFileName, os.O_RDWR, 0o640)
	if err != nil {
		return nil, wrap(IOError, "openAt", err)
	}

	st, err := idxf.Stat()
	if err != nil {
		idxf.Close()
		return nil, wrap(IOError, "openAt", err)
	}
	im, err := mapIndexFile(idxf, int(st.Size()), true)
	if err != nil {
		idxf.Close()
		return nil, wrap(IOError, "openAt", err)
	}

	hdr, crcOK, err := wireformat.DecodeHeader(im.bytes())
	if err != nil {
		im.unmap()
		idxf.Close()
		return nil, wrap(BadFormat, "openAt", err)
	}
	if !crcOK {
		im.unmap()
		idxf.Close()
		return nil, &Error{Code: Checksum, Op: "openAt", Err: fmt.Errorf("index header CRC mismatch for %s", name)}
	}
	if th.CRC32() != hdr.HeaderFileCRC {
		// Open Question #1: re-read the textual header once before giving
		// up, in case a concurrent writer raced the two files; no further
		// retries.
		textBuf2, rerr := os.ReadFile(dir + "/" + HeaderFileName)
		if rerr == nil {
			if th2, perr := ParseTextHeader(textBuf2); perr == nil && th2.CRC32() == hdr.HeaderFileCRC {
				th = th2
			}
		}
		if th.CRC32() != hdr.HeaderFileCRC {
			im.unmap()
			idxf.Close()
			return nil, &Error{Code: Checksum, Op: "openAt", Err: fmt.Errorf("textual header CRC mismatch for %s", name)}
		}
	}

	spool, err := openCacheFile(dir+"/"+CacheFileName, RoleSpool, hdr.Generation)
	if err != nil {
		im.unmap()
		idxf.Close()
		return nil, err
	}
	var archive *cacheFile
	if _, statErr := os.Stat(dir + "/" + ArchiveCacheFileName); statErr == nil {
		archive, err = openCacheFile(dir+"/"+ArchiveCacheFileName, RoleArchive, hdr.Generation)
		if err != nil {
			spool.close()
			im.unmap()
			idxf.Close()
			return nil, err
		}
	}

	return &Handle{
		name:         name,
		partition:    partition,
		dir:          dir,
		nameLock:     nl,
		indexFile:    idxf,
		idxMap:       im,
		header:       hdr,
		textHeader:   th,
		spoolCache:   spool,
		archiveCache: archive,
		collab:       collab,
		logf:         logf,
	}, nil
}

// LockIndex takes the on-disk advisory index lock in mode, blocking until
// available. The caller must hold it for the duration of any mutating
// operation and release it with UnlockIndex (§4.1).
func (h *Handle) LockIndex(mode LockMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, err := lockIndexFile(h.indexFile, mode)
	if err != nil {
		return err
	}
	h.indexLock = l
	return nil
}

// TryLockIndex takes the index lock without blocking, returning
// Code==Locked if another process holds it incompatibly.
func (h *Handle) TryLockIndex(mode LockMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, err := tryLockIndexFile(h.indexFile, mode)
	if err != nil {
		return err
	}
	h.indexLock = l
	return nil
}

// UnlockIndex releases the index lock taken by LockIndex/TryLockIndex.
func (h *Handle) UnlockIndex() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.indexLock == nil {
		return nil
	}
	err := h.indexLock.Unlock()
	h.indexLock = nil
	return err
}

func (h *Handle) requireIndexLock(mode LockMode, op string) {
	invariant(h.indexLock != nil, "%s called without an index lock held", op)
	if mode == Exclusive {
		invariant(h.indexLock.mode == Exclusive, "%s requires an exclusive index lock", op)
	}
}

// reopenAfterRepack swaps in the freshly committed header and cache files
// after Repack renames its .NEW outputs into place, reopening the index
// file and its mapping against the new generation's content.
func (h *Handle) reopenAfterRepack(newHeader *wireformat.Header, newSpool, newArchive *cacheFile) error {
	h.spoolCache.close()
	h.spoolCache = newSpool
	if h.archiveCache != nil {
		h.archiveCache.close()
	}
	h.archiveCache = newArchive

	if h.idxMap != nil {
		h.idxMap.unmap()
	}
	// The rename replaced the path's directory entry with a new inode;
	// a process's existing fd still refers to the old (now unlinked)
	// inode, so the index file must be reopened by path rather than
	// re-stat'd in place.
	oldLock := h.indexLock
	if oldLock != nil {
		oldLock.Unlock()
	}
	if h.indexFile != nil {
		h.indexFile.Close()
	}
	newFile, err := os.OpenFile(h.dir+"/"+IndexFileName, os.O_RDWR, 0o640)
	if err != nil {
		return wrap(IOError, "reopenAfterRepack", err)
	}
	newIdxLock, err := lockIndexFile(newFile, Exclusive)
	if err != nil {
		newFile.Close()
		return wrap(IOError, "reopenAfterRepack", err)
	}
	h.indexFile = newFile
	h.indexLock = newIdxLock

	st, err := h.indexFile.Stat()
	if err != nil {
		return wrap(IOError, "reopenAfterRepack", err)
	}
	im, err := mapIndexFile(h.indexFile, int(st.Size()), true)
	if err != nil {
		return wrap(IOError, "reopenAfterRepack", err)
	}
	h.idxMap = im
	h.header = newHeader
	return nil
}

// Close releases the handle's reference. When the last reference is
// released, the index mapping and files are closed and the name lock is
// released (§4.1). If the header carries a cleanup option, the
// opportunistic cleanup runs first and can release the name lock before
// the files are closed.
func (h *Handle) Close(reg *Registry) error {
	return reg.release(h)
}

func (h *Handle) closeFiles() error {
	var firstErr error
	if h.indexLock != nil {
		if err := h.indexLock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.idxMap != nil {
		if err := h.idxMap.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.indexFile != nil {
		if err := h.indexFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := h.spoolCache.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.archiveCache.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if h.nameLock != nil {
		h.nameLock.Unlock()
	}
	return firstErr
}

// Header returns the handle's in-memory index header. Callers must hold
// at least a shared index lock to rely on its contents being current.
func (h *Handle) Header() *wireformat.Header { return h.header }

// TextHeader returns the handle's parsed textual header.
func (h *Handle) TextHeader() *TextHeader { return h.textHeader }

// Name returns the mailbox name this handle was opened for.
func (h *Handle) Name() string { return h.name }
