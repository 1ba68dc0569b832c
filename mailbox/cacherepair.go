package mailbox

import (
	"os"
	"strings"

	"github.com/brong/mboxd/mailbox/wireformat"
	"github.com/brong/mboxd/msgparse"
)

// loadCacheOrRepair returns the cache record bytes for recno/r, falling
// back to repairCacheRecord when the stored entry is missing, points at a
// bad offset, or fails its CRC (§4.3 load_cache).
func (h *Handle) loadCacheOrRepair(recno int, r *wireformat.Record) ([]byte, error) {
	buf, crcOK, err := h.loadCache(r)
	if err == nil && crcOK {
		return buf, nil
	}
	return h.repairCacheRecord(recno, r)
}

// repairCacheRecord reparses r's payload file from scratch, appends a
// freshly built cache record to the live cache file for r's role, and -
// if the caller holds an exclusive index lock - rewrites the index
// record in place and marks the mailbox NEEDS_REPACK, so the orphaned
// old cache entry is folded away the next time the mailbox is repacked.
func (h *Handle) repairCacheRecord(recno int, r *wireformat.Record) ([]byte, error) {
	path := MessagePath(h.dir, r.UID, roleOf(r))
	f, err := os.Open(path)
	if err != nil {
		return nil, wrap(IOError, "repairCacheRecord", err)
	}
	pm, perr := msgparse.Parse(f, int(h.header.MinorVersion))
	f.Close()
	if perr != nil {
		return nil, wrap(BadFormat, "repairCacheRecord", perr)
	}

	buf := buildCacheRecord(pm).Encode()

	cf := h.spoolCache
	if r.SystemFlags&wireformat.FlagArchived != 0 {
		cf = h.archiveCache
	}
	if cf == nil {
		return nil, errf(IOError, "repairCacheRecord", "no cache file open for uid %d's role", r.UID)
	}
	offset, crc, aerr := cf.append(buf)
	if aerr != nil {
		return nil, aerr
	}

	if h.indexLock != nil && h.indexLock.mode == Exclusive {
		repaired := *r
		repaired.CacheOffset = offset
		repaired.CacheCRC = crc
		if werr := h.writeRecordAt(recno, &repaired); werr == nil {
			h.header.Options |= wireformat.OptNeedsRepack
			h.header.LeakedCacheRecords++
			h.flushHeader()
		}
	}

	return buf, nil
}

// buildCacheRecord builds a minimal cache record out of a freshly parsed
// message, covering the header-derived items a reparse can recover. It
// does not attempt to reproduce ItemSection/ItemBody offsets, since those
// describe body part boundaries that only a full parse (not this
// best-effort repair path) is expected to populate precisely.
func buildCacheRecord(pm *msgparse.ParsedMessage) *CacheRecord {
	rec := &CacheRecord{}
	rec.Set(ItemEnvelope, []byte(envelopeSummary(&pm.Envelope)))
	rec.Set(ItemBodyStructure, []byte(pm.Body.Type+"/"+pm.Body.Subtype))
	rec.Set(ItemHeaderFrom, []byte(joinAddresses(pm.Envelope.From)))
	rec.Set(ItemHeaderTo, []byte(joinAddresses(pm.Envelope.To)))
	rec.Set(ItemHeaderCC, []byte(joinAddresses(pm.Envelope.Cc)))
	rec.Set(ItemHeaderBCC, []byte(joinAddresses(pm.Envelope.Bcc)))
	rec.Set(ItemHeaderSubject, []byte(pm.Envelope.Subject))
	rec.Set(ItemHeaderMessageID, []byte(pm.Envelope.MessageID))
	rec.Set(ItemHeaderReferences, []byte(pm.Envelope.References))
	rec.Set(ItemHeaderXHeaders, pm.Envelope.CacheHeaders)
	return rec
}

func envelopeSummary(env *msgparse.Envelope) string {
	return env.Date + "\x00" + env.Subject + "\x00" + env.MessageID
}

func joinAddresses(addrs []msgparse.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, a.Name+" <"+a.Addr+">")
		} else {
			parts = append(parts, a.Addr)
		}
	}
	return strings.Join(parts, ", ")
}
