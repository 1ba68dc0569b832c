package mailbox

import (
	"github.com/brong/mboxd/mailbox/wireformat"
)

// recordOffset returns the byte offset of the recno'th record.
func (h *Handle) recordOffset(recno int) int {
	return int(h.header.StartOffset) + recno*int(h.header.RecordSize)
}

// readRecordAt decodes the recno'th record from the current mapping. The
// caller must hold at least a SHARED index lock.
func (h *Handle) readRecordAt(recno int) (*wireformat.Record, bool, error) {
	off := h.recordOffset(recno)
	size := int(h.header.RecordSize)
	buf := h.idxMap.bytes()
	if off+size > len(buf) {
		return nil, false, errf(BadFormat, "readRecordAt", "record %d out of range (offset %d, mapping %d bytes)", recno, off, len(buf))
	}
	return wireformat.Decode(buf[off:off+size], int(h.header.MinorVersion))
}

// writeRecordAt encodes r and writes it at recno's offset, growing the
// file and the mapping first if recno is beyond their current size.
func (h *Handle) writeRecordAt(recno int, r *wireformat.Record) error {
	buf, err := wireformat.Encode(r, int(h.header.MinorVersion))
	if err != nil {
		return wrap(Internal, "writeRecordAt", err)
	}
	off := h.recordOffset(recno)
	need := off + len(buf)

	st, err := h.indexFile.Stat()
	if err != nil {
		return wrap(IOError, "writeRecordAt", err)
	}
	if int64(need) > st.Size() {
		if err := h.indexFile.Truncate(int64(need)); err != nil {
			return wrap(IOError, "writeRecordAt", err)
		}
	}
	if err := h.idxMap.ensure(need); err != nil {
		return wrap(IOError, "writeRecordAt", err)
	}
	copy(h.idxMap.bytes()[off:need], buf)
	return nil
}

// flushHeader encodes the in-memory header and writes it to the start of
// the mapping, then syncs the index file to disk.
func (h *Handle) flushHeader() error {
	h.header.HeaderFileCRC = h.textHeader.CRC32()
	buf, err := wireformat.EncodeHeader(h.header)
	if err != nil {
		return wrap(Internal, "flushHeader", err)
	}
	if err := h.idxMap.ensure(len(buf)); err != nil {
		return wrap(IOError, "flushHeader", err)
	}
	copy(h.idxMap.bytes()[:len(buf)], buf)
	return syncIndex(h)
}

func syncIndex(h *Handle) error {
	if err := h.indexFile.Sync(); err != nil {
		return wrap(IOError, "syncIndex", err)
	}
	return nil
}

// recordCount returns the number of records currently stored.
func (h *Handle) recordCount() int { return int(h.header.NumRecords) }

// findRecno returns the record index for uid via binary search over the
// strictly-increasing UID ordering (§3.2 invariant 2), or -1 if absent.
func (h *Handle) findRecno(uid uint32) (int, error) {
	lo, hi := 0, h.recordCount()-1
	for lo <= hi {
		mid := (lo + hi) / 2
		r, _, err := h.readRecordAt(mid)
		if err != nil {
			return -1, err
		}
		switch {
		case r.UID == uid:
			return mid, nil
		case r.UID < uid:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1, nil
}
