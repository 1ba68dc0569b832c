package mailbox

import (
	"testing"

	"github.com/brong/mboxd/mailbox/wireformat"
)

func openTestHandle(t *testing.T, name string) *Handle {
	t.Helper()
	partition := t.TempDir()
	if err := Create(name, partition, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dir := MailboxDir(partition, name)
	h, err := openAt(dir, name, partition, nil, Collaborators{}.withDefaults(), discardf)
	if err != nil {
		t.Fatalf("openAt: %v", err)
	}
	t.Cleanup(func() { h.closeFiles() })
	return h
}

func testRecord(uid uint32) *wireformat.Record {
	return &wireformat.Record{
		UID:          uid,
		InternalDate: 1700000000,
		SentDate:     1700000000,
		Size:         1024,
		HeaderSize:   128,
		SystemFlags:  wireformat.FlagSeen,
		CacheVersion: 1,
	}
}

func TestHandleWriteAndReadRecordAt(t *testing.T) {
	h := openTestHandle(t, "INBOX")

	rec := testRecord(1)
	if err := h.writeRecordAt(0, rec); err != nil {
		t.Fatalf("writeRecordAt: %v", err)
	}

	got, crcOK, err := h.readRecordAt(0)
	if err != nil {
		t.Fatalf("readRecordAt: %v", err)
	}
	if !crcOK {
		t.Error("expected record CRC to validate")
	}
	if got.UID != 1 || got.Size != 1024 || got.SystemFlags != wireformat.FlagSeen {
		t.Errorf("readRecordAt = %+v, want UID=1 Size=1024 SystemFlags=FlagSeen", got)
	}
}

func TestHandleReadRecordAtOutOfRange(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if _, _, err := h.readRecordAt(0); err == nil {
		t.Error("expected an error reading beyond the mapped index")
	}
}

func TestHandleRecordOffsetIsMonotonic(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	off0 := h.recordOffset(0)
	off1 := h.recordOffset(1)
	if off1-off0 != int(h.header.RecordSize) {
		t.Errorf("recordOffset delta = %d, want RecordSize %d", off1-off0, h.header.RecordSize)
	}
	if off0 != int(h.header.StartOffset) {
		t.Errorf("recordOffset(0) = %d, want StartOffset %d", off0, h.header.StartOffset)
	}
}

func TestHandleFindRecno(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	uids := []uint32{2, 4, 6, 8, 10}
	for i, uid := range uids {
		if err := h.writeRecordAt(i, testRecord(uid)); err != nil {
			t.Fatalf("writeRecordAt(%d): %v", i, err)
		}
	}
	h.header.NumRecords = uint32(len(uids))

	for i, uid := range uids {
		recno, err := h.findRecno(uid)
		if err != nil {
			t.Fatalf("findRecno(%d): %v", uid, err)
		}
		if recno != i {
			t.Errorf("findRecno(%d) = %d, want %d", uid, recno, i)
		}
	}

	for _, uid := range []uint32{1, 3, 11} {
		recno, err := h.findRecno(uid)
		if err != nil {
			t.Fatalf("findRecno(%d): %v", uid, err)
		}
		if recno != -1 {
			t.Errorf("findRecno(%d) = %d, want -1 (absent)", uid, recno)
		}
	}
}

func TestHandleFlushHeaderPersists(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	h.header.LastUID = 42
	h.header.NumRecords = 3
	if err := h.flushHeader(); err != nil {
		t.Fatalf("flushHeader: %v", err)
	}

	hdr, crcOK, err := wireformat.DecodeHeader(h.idxMap.bytes())
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if !crcOK {
		t.Error("expected header CRC to validate after flush")
	}
	if hdr.LastUID != 42 || hdr.NumRecords != 3 {
		t.Errorf("decoded header = %+v, want LastUID=42 NumRecords=3", hdr)
	}
}

func TestHandleRecordCount(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if h.recordCount() != 0 {
		t.Fatalf("recordCount() = %d, want 0", h.recordCount())
	}
	h.header.NumRecords = 5
	if h.recordCount() != 5 {
		t.Errorf("recordCount() = %d, want 5", h.recordCount())
	}
}
