package mailbox

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// IndexLock holds an advisory flock(2) on an already-open index file
// descriptor. Unlike NameLock, this lock is visible to other processes.
//
// Adapted from calvinalkan-agent-task/internal/fs/lock.go: that package
// locks a dedicated lock file by path and defends against the lock file
// being replaced out from under a waiter. Here the index file is never
// replaced while a lock is held - repack renames a *new* generation's file
// into place only after the old file's lock has been released - so the
// inode-match retry loop is unnecessary and only the flock core is kept.
type IndexLock struct {
	f    *os.File
	mode LockMode
}

// lockIndexFile takes an advisory lock on f in mode, blocking until
// available.
func lockIndexFile(f *os.File, mode LockMode) (*IndexLock, error) {
	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}
	if err := flockRetryEINTR(int(f.Fd()), how); err != nil {
		return nil, fmt.Errorf("mailbox: lockIndexFile: %v", err)
	}
	return &IndexLock{f: f, mode: mode}, nil
}

// tryLockIndexFile takes an advisory lock on f in mode without blocking. It
// returns Locked if the lock is currently held incompatibly by another
// process.
func tryLockIndexFile(f *os.File, mode LockMode) (*IndexLock, error) {
	how := unix.LOCK_SH | unix.LOCK_NB
	if mode == Exclusive {
		how = unix.LOCK_EX | unix.LOCK_NB
	}
	err := flockRetryEINTR(int(f.Fd()), how)
	if err == unix.EWOULDBLOCK {
		return nil, &Error{Code: Locked, Op: "tryLockIndexFile"}
	}
	if err != nil {
		return nil, fmt.Errorf("mailbox: tryLockIndexFile: %v", err)
	}
	return &IndexLock{f: f, mode: mode}, nil
}

// Unlock releases the advisory lock. It does not close the underlying file.
func (l *IndexLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	return flockRetryEINTR(int(l.f.Fd()), unix.LOCK_UN)
}

func flockRetryEINTR(fd int, how int) error {
	for {
		err := unix.Flock(fd, how)
		if err != unix.EINTR {
			return err
		}
	}
}
