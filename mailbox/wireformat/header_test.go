package wireformat

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	for _, mv := range []uint32{6, 11, 12, 13} {
		mv := mv
		t.Run("", func(t *testing.T) {
			h := &Header{
				Generation:       3,
				Format:           FormatDefault,
				MinorVersion:     mv,
				StartOffset:      uint32(HeaderSize(mv)),
				RecordSize:       uint32(Size(int(mv))),
				NumRecords:       5,
				LastAppendDate:   1700000000,
				LastUID:          5,
				QuotaMailboxUsed: 12345,
				UIDValidity:      77,
				Answered:         1,
				Flagged:          2,
				Deleted:          0,
				Exists:           5,
				Options:          OptSharedSeen,
				HighestModSeq:    500,
				DeletedModSeq:    0,
				SyncCRC:          0xabcd,
				SyncCRCVers:      2,
				RecentUID:        5,
				RecentTime:       1700000000,
				Pop3ShowAfter:    0,
				QuotaAnnotUsed:   10,
			}

			buf, err := EncodeHeader(h)
			if err != nil {
				t.Fatal(err)
			}
			if len(buf) != HeaderSize(mv) {
				t.Fatalf("len=%d want %d", len(buf), HeaderSize(mv))
			}

			out, crcOK, err := DecodeHeader(buf)
			if err != nil {
				t.Fatal(err)
			}
			if !crcOK {
				t.Fatal("header_crc did not validate")
			}
			if out.NumRecords != h.NumRecords || out.LastUID != h.LastUID {
				t.Fatalf("round trip mismatch: %+v vs %+v", out, h)
			}
			if mv < SynthesizeBelowMinor {
				if out.Exists != out.NumRecords {
					t.Fatalf("expected synthesized Exists=NumRecords for minor_version %d", mv)
				}
				if out.DeletedModSeq != out.HighestModSeq {
					t.Fatalf("expected synthesized DeletedModSeq=HighestModSeq for minor_version %d", mv)
				}
			}
		})
	}
}

func TestHeaderDecodeDetectsCorruption(t *testing.T) {
	h := &Header{MinorVersion: CurrentMinorVersion, Format: FormatDefault}
	buf, err := EncodeHeader(h)
	if err != nil {
		t.Fatal(err)
	}
	buf[20] ^= 0xff
	_, crcOK, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if crcOK {
		t.Fatal("expected header_crc mismatch after corruption")
	}
}
