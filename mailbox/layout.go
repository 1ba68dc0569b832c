package mailbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File names within a mailbox's directory, per §6.1.
const (
	HeaderFileName       = "cyrus.header"
	IndexFileName        = "cyrus.index"
	CacheFileName        = "cyrus.cache"
	ArchiveCacheFileName = "cyrus.archivecache"
	ExpungeFileName      = "cyrus.expunge" // legacy; this package neither reads nor removes it
	NewSuffix            = ".NEW"
)

// CacheRole distinguishes the spool cache from the archive cache; each role
// has its own append-only file and generation lineage (§4.3).
type CacheRole int

const (
	RoleSpool CacheRole = iota
	RoleArchive
)

func (r CacheRole) cacheFileName() string {
	if r == RoleArchive {
		return ArchiveCacheFileName
	}
	return CacheFileName
}

func (r CacheRole) dataDirName() string {
	if r == RoleArchive {
		return "archive"
	}
	return "data"
}

// mangleName maps a hierarchical, '.'-separated mailbox name onto a
// filesystem-safe directory name.
func mangleName(name string) string {
	return strings.ReplaceAll(name, "/", "^")
}

// MailboxDir returns the on-disk directory for a mailbox under partition.
func MailboxDir(partition, name string) string {
	return filepath.Join(partition, mangleName(name))
}

// MessagePath returns the payload path for uid under role within dir, using
// the low byte of the UID as a fan-out hash directory to keep any one
// directory from growing unbounded, matching the shape described in §6.1
// ("data/<hash>/<uid>.").
func MessagePath(dir string, uid uint32, role CacheRole) string {
	hash := fmt.Sprintf("%02x", uid&0xff)
	return filepath.Join(dir, role.dataDirName(), hash, fmt.Sprintf("%d.", uid))
}
