package wireformat

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Minor version bounds supported by this codec. Versions below
// ModSeqMinVersion carry no per-record modseq; versions below
// CIDMinVersion carry no conversation id. Decode synthesizes both as zero
// when absent, matching §4.2.
const (
	MinMinorVersion      = 6
	MaxMinorVersion      = 13
	CurrentMinorVersion  = 13
	ModSeqMinVersion     = 10
	CIDMinVersion        = 13
	SynthesizeBelowMinor = 12 // versions below this need header field synthesis
)

// System flags, per §3.1.
const (
	FlagAnswered uint32 = 1 << iota
	FlagFlagged
	FlagDeleted
	FlagDraft
	FlagSeen
	FlagExpunged
	FlagUnlinked
	FlagArchived
)

// GUIDSize is the length in bytes of a message content hash.
const GUIDSize = 20

// MessageGUID is an immutable content hash computed by the message parser.
type MessageGUID [GUIDSize]byte

func (g MessageGUID) IsZero() bool { return g == MessageGUID{} }

// Record is the decoded form of one fixed-size index record.
type Record struct {
	UID          uint32
	InternalDate int64 // unix seconds
	SentDate     int64 // unix seconds
	Size         uint32
	HeaderSize   uint32
	GMTimeOffset int32 // seconds east of UTC
	CacheOffset  uint64
	LastUpdated  int64
	SystemFlags  uint32
	UserFlags    [4]uint32 // 128 bits
	ContentLines uint32
	CacheVersion uint32
	GUID         MessageGUID
	ModSeq       uint64 // zero if minor_version < ModSeqMinVersion
	CID          uint64 // zero if minor_version < CIDMinVersion
	CacheCRC     uint32
	RecordCRC    uint32
}

func align8(n int) int { return (n + 7) &^ 7 }

// Size reports the encoded byte length of a record at the given minor
// version.
func Size(minorVersion int) int {
	n := 4 // UID
	n = align8(n + 4)
	n += 8 // InternalDate
	n += 8 // SentDate
	n += 4 // Size
	n += 4 // HeaderSize
	n += 4 // GMTimeOffset
	n = align8(n + 4)
	n += 8 // CacheOffset
	n += 8 // LastUpdated
	n += 4 // SystemFlags
	n += 4 // ContentLines
	n += 16 // UserFlags [4]uint32
	n += 4 // CacheVersion
	n = align8(n + 4)
	n += GUIDSize // MessageGUID
	n = align8(n)
	if minorVersion >= ModSeqMinVersion {
		n += 8 // ModSeq
	}
	if minorVersion >= CIDMinVersion {
		n = align8(n)
		n += 8 // CID
	}
	n += 4 // CacheCRC
	n += 4 // RecordCRC
	return n
}

// Encode writes r into a newly allocated buffer sized for minorVersion,
// computing RecordCRC over every preceding byte.
func Encode(r *Record, minorVersion int) ([]byte, error) {
	if minorVersion < MinMinorVersion || minorVersion > MaxMinorVersion {
		return nil, fmt.Errorf("wireformat.Encode: unsupported minor_version %d", minorVersion)
	}
	buf := make([]byte, Size(minorVersion))
	cur := 0

	binary.BigEndian.PutUint32(buf[cur:], r.UID)
	cur = align8(cur + 4)
	binary.BigEndian.PutUint64(buf[cur:], uint64(r.InternalDate))
	cur += 8
	binary.BigEndian.PutUint64(buf[cur:], uint64(r.SentDate))
	cur += 8
	binary.BigEndian.PutUint32(buf[cur:], r.Size)
	cur += 4
	binary.BigEndian.PutUint32(buf[cur:], r.HeaderSize)
	cur += 4
	binary.BigEndian.PutUint32(buf[cur:], uint32(r.GMTimeOffset))
	cur = align8(cur + 4)
	binary.BigEndian.PutUint64(buf[cur:], r.CacheOffset)
	cur += 8
	binary.BigEndian.PutUint64(buf[cur:], uint64(r.LastUpdated))
	cur += 8
	binary.BigEndian.PutUint32(buf[cur:], r.SystemFlags)
	cur += 4
	binary.BigEndian.PutUint32(buf[cur:], r.ContentLines)
	cur += 4
	for i, f := range r.UserFlags {
		binary.BigEndian.PutUint32(buf[cur+i*4:], f)
	}
	cur += 16
	binary.BigEndian.PutUint32(buf[cur:], r.CacheVersion)
	cur = align8(cur + 4)
	copy(buf[cur:cur+GUIDSize], r.GUID[:])
	cur = align8(cur + GUIDSize)

	if minorVersion >= ModSeqMinVersion {
		binary.BigEndian.PutUint64(buf[cur:], r.ModSeq)
		cur += 8
	}
	if minorVersion >= CIDMinVersion {
		cur = align8(cur)
		binary.BigEndian.PutUint64(buf[cur:], r.CID)
		cur += 8
	}

	crcOffset := cur + 4
	crc := crc32.ChecksumIEEE(buf[:crcOffset])
	binary.BigEndian.PutUint32(buf[cur:], r.CacheCRC)
	binary.BigEndian.PutUint32(buf[crcOffset:], crc)
	return buf, nil
}

// Decode reads a record encoded at minorVersion from buf. It validates
// RecordCRC and returns *Error{Code: mailbox.Checksum}-shaped information via
// the returned bool; callers in package mailbox translate this into the
// exported error taxonomy.
func Decode(buf []byte, minorVersion int) (rec *Record, crcOK bool, err error) {
	if minorVersion < MinMinorVersion || minorVersion > MaxMinorVersion {
		return nil, false, fmt.Errorf("wireformat.Decode: unsupported minor_version %d", minorVersion)
	}
	want := Size(minorVersion)
	if len(buf) < want {
		return nil, false, fmt.Errorf("wireformat.Decode: short record: have %d want %d", len(buf), want)
	}
	buf = buf[:want]

	r := new(Record)
	cur := 0
	r.UID = binary.BigEndian.Uint32(buf[cur:])
	cur = align8(cur + 4)
	r.InternalDate = int64(binary.BigEndian.Uint64(buf[cur:]))
	cur += 8
	r.SentDate = int64(binary.BigEndian.Uint64(buf[cur:]))
	cur += 8
	r.Size = binary.BigEndian.Uint32(buf[cur:])
	cur += 4
	r.HeaderSize = binary.BigEndian.Uint32(buf[cur:])
	cur += 4
	r.GMTimeOffset = int32(binary.BigEndian.Uint32(buf[cur:]))
	cur = align8(cur + 4)
	r.CacheOffset = binary.BigEndian.Uint64(buf[cur:])
	cur += 8
	r.LastUpdated = int64(binary.BigEndian.Uint64(buf[cur:]))
	cur += 8
	r.SystemFlags = binary.BigEndian.Uint32(buf[cur:])
	cur += 4
	r.ContentLines = binary.BigEndian.Uint32(buf[cur:])
	cur += 4
	for i := range r.UserFlags {
		r.UserFlags[i] = binary.BigEndian.Uint32(buf[cur+i*4:])
	}
	cur += 16
	r.CacheVersion = binary.BigEndian.Uint32(buf[cur:])
	cur = align8(cur + 4)
	copy(r.GUID[:], buf[cur:cur+GUIDSize])
	cur = align8(cur + GUIDSize)

	if minorVersion >= ModSeqMinVersion {
		r.ModSeq = binary.BigEndian.Uint64(buf[cur:])
		cur += 8
	}
	if minorVersion >= CIDMinVersion {
		cur = align8(cur)
		r.CID = binary.BigEndian.Uint64(buf[cur:])
		cur += 8
	}

	r.CacheCRC = binary.BigEndian.Uint32(buf[cur:])
	crcOffset := cur + 4
	r.RecordCRC = binary.BigEndian.Uint32(buf[crcOffset:])

	want32 := crc32.ChecksumIEEE(buf[:crcOffset])
	return r, want32 == r.RecordCRC, nil
}
