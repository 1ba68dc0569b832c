package mailbox

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// cacheGenerationSize is the width of the generation prefix at the start of
// every cache file (§3.1, §6.1).
const cacheGenerationSize = 4

// cacheFile is one role's (spool or archive) append-only cache file for a
// single index generation. Cache files are never rewritten in place; a new
// generation gets a new file during repack (§4.3, §4.5).
//
// Each entry is stored as [uint32 length][record bytes]; cache_offset in
// the index record points at the length prefix, and cache_crc is the CRC
// of the length-prefixed entry's record bytes only (not the length field
// itself) - this lets load_cache bound a single read without scanning the
// TLV stream for an end marker.
type cacheFile struct {
	f          *os.File
	role       CacheRole
	generation uint32
	path       string
}

// createCacheFile creates a brand-new, empty cache file for generation,
// writing and fsyncing the 4-byte generation prefix before first use
// (§4.3 "On creation (empty file)...").
func createCacheFile(path string, role CacheRole, generation uint32) (*cacheFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, wrap(IOError, "createCacheFile", err)
	}
	var hdr [cacheGenerationSize]byte
	binary.BigEndian.PutUint32(hdr[:], generation)
	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return nil, wrap(IOError, "createCacheFile", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, wrap(IOError, "createCacheFile", err)
	}
	return &cacheFile{f: f, role: role, generation: generation, path: path}, nil
}

// openCacheFile opens an existing cache file and validates its generation
// prefix against want.
func openCacheFile(path string, role CacheRole, want uint32) (*cacheFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o640)
	if err != nil {
		return nil, wrap(IOError, "openCacheFile", err)
	}
	var hdr [cacheGenerationSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, wrap(BadFormat, "openCacheFile", fmt.Errorf("reading generation prefix: %v", err))
	}
	got := binary.BigEndian.Uint32(hdr[:])
	if got != want {
		f.Close()
		return nil, errf(BadFormat, "openCacheFile", "cache generation mismatch: file has %d, index wants %d", got, want)
	}
	return &cacheFile{f: f, role: role, generation: got, path: path}, nil
}

func (cf *cacheFile) close() error {
	if cf == nil || cf.f == nil {
		return nil
	}
	return cf.f.Close()
}

// append writes record at the end of the file and returns its offset (the
// offset of the length prefix) and the CRC of record's bytes.
func (cf *cacheFile) append(record []byte) (offset uint64, crc uint32, err error) {
	off, err := cf.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, wrap(IOError, "cacheFile.append", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(record)))
	if _, err := cf.f.Write(lenBuf[:]); err != nil {
		return 0, 0, wrap(IOError, "cacheFile.append", err)
	}
	if _, err := cf.f.Write(record); err != nil {
		return 0, 0, wrap(IOError, "cacheFile.append", err)
	}
	return uint64(off), crc32.ChecksumIEEE(record), nil
}

// readAt reads the record stored at offset and validates it against
// wantCRC (§4.3 load_cache).
func (cf *cacheFile) readAt(offset uint64, wantCRC uint32) (record []byte, crcOK bool, err error) {
	var lenBuf [4]byte
	if _, err := cf.f.ReadAt(lenBuf[:], int64(offset)); err != nil {
		return nil, false, wrap(IOError, "cacheFile.readAt", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	record = make([]byte, length)
	if _, err := cf.f.ReadAt(record, int64(offset)+4); err != nil {
		return nil, false, wrap(IOError, "cacheFile.readAt", err)
	}
	return record, crc32.ChecksumIEEE(record) == wantCRC, nil
}

func (cf *cacheFile) sync() error {
	if err := cf.f.Sync(); err != nil {
		return wrap(IOError, "cacheFile.sync", err)
	}
	return nil
}
