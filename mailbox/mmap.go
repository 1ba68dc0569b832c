package mailbox

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// indexMap is a memory mapping of an index file, resized on growth. Per
// Design Notes, the header's num_records*record_size+start_offset is
// authoritative. The write paths grow the mapping (ensure) before writing
// past its end; readers do not remap, and a record beyond the mapping is
// reported as out of range.
type indexMap struct {
	f        *os.File
	data     []byte
	writable bool
}

func mapIndexFile(f *os.File, size int, writable bool) (*indexMap, error) {
	if size == 0 {
		return &indexMap{f: f, writable: writable}, nil
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mailbox: mapIndexFile: %v", err)
	}
	return &indexMap{f: f, data: data, writable: writable}, nil
}

// ensure grows the mapping to at least size bytes, remapping if needed.
func (m *indexMap) ensure(size int) error {
	if len(m.data) >= size {
		return nil
	}
	if err := m.unmap(); err != nil {
		return err
	}
	nm, err := mapIndexFile(m.f, size, m.writable)
	if err != nil {
		return err
	}
	*m = *nm
	return nil
}

func (m *indexMap) unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return fmt.Errorf("mailbox: indexMap.unmap: %v", err)
	}
	return nil
}

// bytes returns the live mapping. Callers must not retain slices of it past
// the next ensure/unmap call, since remapping may relocate or invalidate it.
func (m *indexMap) bytes() []byte { return m.data }
