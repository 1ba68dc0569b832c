package msgparse

// cacheHeaderMinVersion maps a header name (as it appears in
// CanonicalKey form) to the minimum cache version that carries it in the
// cache-headers buffer, per §4.8's "Cache-header selection". X- headers
// not listed here are dropped; everything else not listed is dropped too.
var cacheHeaderMinVersion = map[Key]int{
	"Subject":           1,
	"From":              1,
	"To":                1,
	"Cc":                1,
	"Bcc":               1,
	"Date":              1,
	"In-Reply-To":       1,
	"References":        1,
	"Message-ID":        1,
	"Reply-To":          1,
	"Content-Type":      1,
	"X-Mailer":          1,
	"X-Delivered-To":    2,
	"X-Me-Message-ID":   2,
	"List-Id":           3,
	"X-Priority":        3,
	"Sender":            1,
	"Content-Language":  3,
}

// buildCacheHeaders concatenates the raw bytes of every header whose
// cacheHeaderMinVersion entry is <= cacheVersion, in header order, each
// terminated with CRLF, for storage as the cache record's header buffer
// (used to answer IMAP BODY.PEEK[HEADER]-style lookups without reparsing
// the payload).
func buildCacheHeaders(h *Header, cacheVersion int) []byte {
	var out []byte
	for _, e := range h.Entries {
		minVers, ok := cacheHeaderMinVersion[e.Key]
		if !ok || minVers > cacheVersion {
			continue
		}
		out = append(out, e.Key...)
		out = append(out, ':', ' ')
		out = append(out, e.Value...)
		out = append(out, '\r', '\n')
	}
	return out
}
