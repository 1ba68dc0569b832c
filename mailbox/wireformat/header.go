package wireformat

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Header options bitmap, per §3.1.
const (
	OptDeleted uint32 = 1 << iota
	OptNeedsRepack
	OptNeedsUnlink
	OptSharedSeen
	OptPop3NewUIDL
)

// Format identifies the record/cache encoding family. Only one format is
// defined by this engine, but the field is carried through so a future
// format can be distinguished from a corrupt header.
const FormatDefault uint32 = 1

// Fields gated on minor_version, mirroring Record's ModSeq/CID gating:
//   - RecentUID/RecentTime: minor_version >= 11
//   - SyncCRC/SyncCRCVers:  minor_version >= 12
//   - Pop3ShowAfter/QuotaAnnotUsed: minor_version >= 13
const (
	RecentMinVersion   = 11
	SyncCRCMinVersion  = 12
	Pop3AnnotMinVersion = 13
)

// Header is the decoded form of the fixed-size, CRC-protected index header.
type Header struct {
	Generation uint32
	Format     uint32
	MinorVersion uint32

	StartOffset uint32
	RecordSize  uint32
	NumRecords  uint32

	LastAppendDate int64
	LastUID        uint32

	QuotaMailboxUsed uint64
	UIDValidity      uint32

	Answered uint32
	Flagged  uint32
	Deleted  uint32
	Exists   uint32

	Options uint32

	LeakedCacheRecords uint32

	HighestModSeq uint64
	DeletedModSeq uint64
	FirstExpunged int64
	LastRepackTime int64

	HeaderFileCRC uint32

	SyncCRC     uint32
	SyncCRCVers uint32

	RecentUID  uint32
	RecentTime int64

	Pop3ShowAfter  int64
	QuotaAnnotUsed uint64

	HeaderCRC uint32
}

// HeaderSize reports the encoded byte length of a header at minorVersion.
// This is also the index file's start_offset.
func HeaderSize(minorVersion uint32) int {
	n := 4 /*Generation*/ + 4 /*Format*/ + 4 /*MinorVersion*/
	n += 4 /*StartOffset*/ + 4 /*RecordSize*/ + 4 /*NumRecords*/
	n = align8(n)
	n += 8 /*LastAppendDate*/
	n += 4 /*LastUID*/
	n = align8(n + 4)
	n += 8 /*QuotaMailboxUsed*/
	n += 4 /*UIDValidity*/
	n += 4 /*Answered*/
	n += 4 /*Flagged*/
	n += 4 /*Deleted*/
	n += 4 /*Exists*/
	n += 4 /*Options*/
	n += 4 /*LeakedCacheRecords*/
	n = align8(n)
	n += 8 /*HighestModSeq*/
	n += 8 /*DeletedModSeq*/
	n += 8 /*FirstExpunged*/
	n += 8 /*LastRepackTime*/
	n += 4 /*HeaderFileCRC*/
	if int(minorVersion) >= SyncCRCMinVersion {
		n += 4 /*SyncCRC*/
		n += 4 /*SyncCRCVers*/
	}
	if int(minorVersion) >= RecentMinVersion {
		n = align8(n + 4)
		n += 4 /*RecentUID*/
		n += 8 /*RecentTime*/
	}
	if int(minorVersion) >= Pop3AnnotMinVersion {
		n = align8(n)
		n += 8 /*Pop3ShowAfter*/
		n += 8 /*QuotaAnnotUsed*/
	}
	n = align8(n)
	n += 4 /*HeaderCRC*/
	return n
}

// EncodeHeader writes h into a newly allocated buffer, computing HeaderCRC
// over every preceding byte. The writer always writes h.MinorVersion's
// current layout, per §4.2.
func EncodeHeader(h *Header) ([]byte, error) {
	mv := h.MinorVersion
	if int(mv) < MinMinorVersion || int(mv) > MaxMinorVersion {
		return nil, fmt.Errorf("wireformat.EncodeHeader: unsupported minor_version %d", mv)
	}
	buf := make([]byte, HeaderSize(mv))
	cur := 0
	be := binary.BigEndian

	be.PutUint32(buf[cur:], h.Generation)
	cur += 4
	be.PutUint32(buf[cur:], h.Format)
	cur += 4
	be.PutUint32(buf[cur:], mv)
	cur += 4
	be.PutUint32(buf[cur:], h.StartOffset)
	cur += 4
	be.PutUint32(buf[cur:], h.RecordSize)
	cur += 4
	be.PutUint32(buf[cur:], h.NumRecords)
	cur = align8(cur + 4)
	be.PutUint64(buf[cur:], uint64(h.LastAppendDate))
	cur += 8
	be.PutUint32(buf[cur:], h.LastUID)
	cur = align8(cur + 4)
	be.PutUint64(buf[cur:], h.QuotaMailboxUsed)
	cur += 8
	be.PutUint32(buf[cur:], h.UIDValidity)
	cur += 4
	be.PutUint32(buf[cur:], h.Answered)
	cur += 4
	be.PutUint32(buf[cur:], h.Flagged)
	cur += 4
	be.PutUint32(buf[cur:], h.Deleted)
	cur += 4
	be.PutUint32(buf[cur:], h.Exists)
	cur += 4
	be.PutUint32(buf[cur:], h.Options)
	cur += 4
	be.PutUint32(buf[cur:], h.LeakedCacheRecords)
	cur = align8(cur + 4)
	be.PutUint64(buf[cur:], h.HighestModSeq)
	cur += 8
	be.PutUint64(buf[cur:], h.DeletedModSeq)
	cur += 8
	be.PutUint64(buf[cur:], uint64(h.FirstExpunged))
	cur += 8
	be.PutUint64(buf[cur:], uint64(h.LastRepackTime))
	cur += 8
	be.PutUint32(buf[cur:], h.HeaderFileCRC)
	cur += 4

	if int(mv) >= SyncCRCMinVersion {
		be.PutUint32(buf[cur:], h.SyncCRC)
		cur += 4
		be.PutUint32(buf[cur:], h.SyncCRCVers)
		cur += 4
	}
	if int(mv) >= RecentMinVersion {
		cur = align8(cur + 4)
		be.PutUint32(buf[cur:], h.RecentUID)
		cur += 4
		be.PutUint64(buf[cur:], uint64(h.RecentTime))
		cur += 8
	}
	if int(mv) >= Pop3AnnotMinVersion {
		cur = align8(cur)
		be.PutUint64(buf[cur:], uint64(h.Pop3ShowAfter))
		cur += 8
		be.PutUint64(buf[cur:], h.QuotaAnnotUsed)
		cur += 8
	}
	cur = align8(cur)
	crc := crc32.ChecksumIEEE(buf[:cur])
	be.PutUint32(buf[cur:], crc)
	return buf, nil
}

// DecodeHeader reads a header from buf. It synthesizes Exists and
// DeletedModSeq for minor_version < SynthesizeBelowMinor per §4.2,
// and reports whether HeaderCRC validated.
func DecodeHeader(buf []byte) (h *Header, crcOK bool, err error) {
	if len(buf) < 12 {
		return nil, false, fmt.Errorf("wireformat.DecodeHeader: buffer too short for version probe")
	}
	be := binary.BigEndian
	mv := be.Uint32(buf[8:12])
	if int(mv) < MinMinorVersion || int(mv) > MaxMinorVersion {
		return nil, false, fmt.Errorf("wireformat.DecodeHeader: unsupported minor_version %d", mv)
	}
	want := HeaderSize(mv)
	if len(buf) < want {
		return nil, false, fmt.Errorf("wireformat.DecodeHeader: short header: have %d want %d", len(buf), want)
	}
	buf = buf[:want]

	h = &Header{MinorVersion: mv}
	cur := 0
	h.Generation = be.Uint32(buf[cur:])
	cur += 4
	h.Format = be.Uint32(buf[cur:])
	cur += 4
	cur += 4 // minor version already read
	h.StartOffset = be.Uint32(buf[cur:])
	cur += 4
	h.RecordSize = be.Uint32(buf[cur:])
	cur += 4
	h.NumRecords = be.Uint32(buf[cur:])
	cur = align8(cur + 4)
	h.LastAppendDate = int64(be.Uint64(buf[cur:]))
	cur += 8
	h.LastUID = be.Uint32(buf[cur:])
	cur = align8(cur + 4)
	h.QuotaMailboxUsed = be.Uint64(buf[cur:])
	cur += 8
	h.UIDValidity = be.Uint32(buf[cur:])
	cur += 4
	h.Answered = be.Uint32(buf[cur:])
	cur += 4
	h.Flagged = be.Uint32(buf[cur:])
	cur += 4
	h.Deleted = be.Uint32(buf[cur:])
	cur += 4
	h.Exists = be.Uint32(buf[cur:])
	cur += 4
	h.Options = be.Uint32(buf[cur:])
	cur += 4
	h.LeakedCacheRecords = be.Uint32(buf[cur:])
	cur = align8(cur + 4)
	h.HighestModSeq = be.Uint64(buf[cur:])
	cur += 8
	h.DeletedModSeq = be.Uint64(buf[cur:])
	cur += 8
	h.FirstExpunged = int64(be.Uint64(buf[cur:]))
	cur += 8
	h.LastRepackTime = int64(be.Uint64(buf[cur:]))
	cur += 8
	h.HeaderFileCRC = be.Uint32(buf[cur:])
	cur += 4

	if int(mv) >= SyncCRCMinVersion {
		h.SyncCRC = be.Uint32(buf[cur:])
		cur += 4
		h.SyncCRCVers = be.Uint32(buf[cur:])
		cur += 4
	}
	if int(mv) >= RecentMinVersion {
		cur = align8(cur + 4)
		h.RecentUID = be.Uint32(buf[cur:])
		cur += 4
		h.RecentTime = int64(be.Uint64(buf[cur:]))
		cur += 8
	}
	if int(mv) >= Pop3AnnotMinVersion {
		cur = align8(cur)
		h.Pop3ShowAfter = int64(be.Uint64(buf[cur:]))
		cur += 8
		h.QuotaAnnotUsed = be.Uint64(buf[cur:])
		cur += 8
	}
	cur = align8(cur)
	h.HeaderCRC = be.Uint32(buf[cur:])

	if int(mv) < SynthesizeBelowMinor {
		h.Exists = h.NumRecords
		h.DeletedModSeq = h.HighestModSeq
	}

	want32 := crc32.ChecksumIEEE(buf[:cur])
	return h, want32 == h.HeaderCRC, nil
}
