package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/brong/mboxd/mailbox/wireformat"
)

func guidFor(b byte) wireformat.MessageGUID {
	var g wireformat.MessageGUID
	for i := range g {
		g[i] = b
	}
	return g
}

func appendTestMessage(t *testing.T, h *Handle, uid uint32) {
	t.Helper()
	cache := &CacheRecord{Items: []CacheItem{{Type: ItemHeaderSubject, Value: []byte("hello")}}}
	rec := AppendRecord{
		UID:          uid,
		InternalDate: time.Unix(1700000000, 0).UTC(),
		Size:         512,
		HeaderSize:   64,
		ContentLines: 10,
		GUID:         guidFor(byte(uid)),
		Cache:        cache,
	}
	if err := h.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append(uid=%d): %v", uid, err)
	}
}

func TestHandleAppendGrowsIndex(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	defer h.UnlockIndex()

	appendTestMessage(t, h, 1)
	appendTestMessage(t, h, 2)

	if h.header.NumRecords != 2 {
		t.Errorf("NumRecords = %d, want 2", h.header.NumRecords)
	}
	if h.header.LastUID != 2 {
		t.Errorf("LastUID = %d, want 2", h.header.LastUID)
	}
	if h.header.Exists != 2 {
		t.Errorf("Exists = %d, want 2", h.header.Exists)
	}
	if h.header.QuotaMailboxUsed != 1024 {
		t.Errorf("QuotaMailboxUsed = %d, want 1024", h.header.QuotaMailboxUsed)
	}

	r, crcOK, err := h.readRecordAt(1)
	if err != nil || !crcOK {
		t.Fatalf("readRecordAt(1): %v, crcOK=%v", err, crcOK)
	}
	if r.UID != 2 {
		t.Errorf("second record UID = %d, want 2", r.UID)
	}
}

func TestHandleAppendRejectsNonIncreasingUID(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	defer h.UnlockIndex()

	appendTestMessage(t, h, 5)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Append to panic on a non-increasing uid")
		}
	}()
	appendTestMessage(t, h, 5)
}

func TestHandleRewriteFlags(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	defer h.UnlockIndex()

	appendTestMessage(t, h, 1)
	r, _, err := h.readRecordAt(0)
	if err != nil {
		t.Fatalf("readRecordAt: %v", err)
	}

	rw := RewriteRecord{
		UID:         1,
		GUID:        r.GUID,
		SystemFlags: r.SystemFlags | wireformat.FlagSeen | wireformat.FlagFlagged,
		UserFlags:   r.UserFlags,
	}
	if err := h.Rewrite(context.Background(), rw); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	got, _, err := h.readRecordAt(0)
	if err != nil {
		t.Fatalf("readRecordAt after rewrite: %v", err)
	}
	if got.SystemFlags&wireformat.FlagSeen == 0 || got.SystemFlags&wireformat.FlagFlagged == 0 {
		t.Errorf("SystemFlags = %b, want Seen|Flagged set", got.SystemFlags)
	}
	if h.header.Flagged != 1 {
		t.Errorf("header.Flagged = %d, want 1", h.header.Flagged)
	}
}

func TestHandleRewriteRejectsGUIDMismatch(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	defer h.UnlockIndex()

	appendTestMessage(t, h, 1)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Rewrite to panic on a guid mismatch")
		}
	}()
	h.Rewrite(context.Background(), RewriteRecord{UID: 1, GUID: guidFor(0xff)})
}

func TestHandleExpungeMarksDeletedRecords(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	defer h.UnlockIndex()

	appendTestMessage(t, h, 1)
	appendTestMessage(t, h, 2)

	r1, _, _ := h.readRecordAt(0)
	rw := RewriteRecord{UID: 1, GUID: r1.GUID, SystemFlags: r1.SystemFlags | wireformat.FlagDeleted}
	if err := h.Rewrite(context.Background(), rw); err != nil {
		t.Fatalf("Rewrite to set \\Deleted: %v", err)
	}

	expunged, err := h.Expunge(context.Background(), nil, false)
	if err != nil {
		t.Fatalf("Expunge: %v", err)
	}
	if len(expunged) != 1 || expunged[0] != 1 {
		t.Errorf("expunged = %v, want [1]", expunged)
	}

	got, _, _ := h.readRecordAt(0)
	if got.SystemFlags&wireformat.FlagExpunged == 0 {
		t.Error("expected uid 1 to carry EXPUNGED")
	}
	if got.SystemFlags&wireformat.FlagUnlinked != 0 {
		t.Error("non-immediate expunge must not set UNLINKED")
	}

	untouched, _, _ := h.readRecordAt(1)
	if untouched.SystemFlags&wireformat.FlagExpunged != 0 {
		t.Error("uid 2 was never \\Deleted and must not be expunged")
	}
}

func TestHandleExpungeCleanupUnlinksOldExpunges(t *testing.T) {
	h := openTestHandle(t, "INBOX")
	if err := h.LockIndex(Exclusive); err != nil {
		t.Fatalf("LockIndex: %v", err)
	}
	defer h.UnlockIndex()

	appendTestMessage(t, h, 1)
	r1, _, _ := h.readRecordAt(0)
	rw := RewriteRecord{
		UID:              1,
		GUID:             r1.GUID,
		SystemFlags:      r1.SystemFlags | wireformat.FlagDeleted,
		ImmediateExpunge: false,
	}
	if err := h.Rewrite(context.Background(), rw); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if _, err := h.Expunge(context.Background(), nil, false); err != nil {
		t.Fatalf("Expunge: %v", err)
	}

	if err := h.ExpungeCleanup(context.Background(), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ExpungeCleanup: %v", err)
	}

	got, _, _ := h.readRecordAt(0)
	if got.SystemFlags&wireformat.FlagUnlinked == 0 {
		t.Error("expected uid 1 to be UNLINKED after cleanup with a future mark")
	}
}
