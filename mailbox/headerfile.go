package mailbox

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
)

// HeaderFileMagic is the first line of every cyrus.header-style textual
// header file.
const HeaderFileMagic = "* MBOXD-HEADER *"

// TextHeader is the parsed form of the textual header file (§3.1, §6.1):
// a magic line, quotaroot\tuniqueid, a space-separated user-flag name list,
// and an ACL.
type TextHeader struct {
	QuotaRoot string
	UniqueID  string
	UserFlags []string // up to 128 entries, index is the bit position
	ACL       string
}

// Encode renders h in canonical form. Parsing tolerates legacy forms
// (missing uniqueid, missing quotaroot tab) but the writer always produces
// this canonical layout, per Design Notes "textual-header parsing".
func (h *TextHeader) Encode() []byte {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "%s\n", HeaderFileMagic)
	fmt.Fprintf(buf, "%s\t%s\n", h.QuotaRoot, h.UniqueID)
	fmt.Fprintf(buf, "%s\n", strings.Join(h.UserFlags, " "))
	fmt.Fprintf(buf, "%s\n", h.ACL)
	return buf.Bytes()
}

// CRC32 returns the CRC of the bytes Encode would write - the value stored
// as the index header's HeaderFileCRC field (invariant 7).
func (h *TextHeader) CRC32() uint32 {
	return crc32.ChecksumIEEE(h.Encode())
}

// ParseTextHeader parses a textual header file, tolerating the legacy forms
// called out in Design Notes: a missing uniqueid, or a quotaroot line with
// no tab at all (treated as quotaroot with an empty uniqueid).
func ParseTextHeader(buf []byte) (*TextHeader, error) {
	sc := bufio.NewScanner(bytes.NewReader(buf))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("mailbox: ParseTextHeader: empty file")
	}
	if !strings.HasPrefix(sc.Text(), "* MBOXD-HEADER") && sc.Text() != HeaderFileMagic {
		return nil, fmt.Errorf("mailbox: ParseTextHeader: bad magic line %q", sc.Text())
	}

	h := new(TextHeader)
	if sc.Scan() {
		line := sc.Text()
		if tab := strings.IndexByte(line, '\t'); tab >= 0 {
			h.QuotaRoot = line[:tab]
			h.UniqueID = line[tab+1:]
		} else {
			h.QuotaRoot = line
		}
	}
	if sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			h.UserFlags = strings.Split(line, " ")
		}
	}
	if sc.Scan() {
		h.ACL = sc.Text()
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mailbox: ParseTextHeader: %v", err)
	}
	return h, nil
}

// UserFlagBit returns the bit index for name, adding it if there is a free
// slot. It returns UserFlagExhausted if all 128 user flag slots are in use.
func (h *TextHeader) UserFlagBit(name string) (int, error) {
	for i, f := range h.UserFlags {
		if strings.EqualFold(f, name) {
			return i, nil
		}
	}
	for i, f := range h.UserFlags {
		if f == "" {
			h.UserFlags[i] = name
			return i, nil
		}
	}
	if len(h.UserFlags) >= 128 {
		return 0, &Error{Code: UserFlagExhausted, Op: "UserFlagBit"}
	}
	h.UserFlags = append(h.UserFlags, name)
	return len(h.UserFlags) - 1, nil
}

// RemoveUserFlag clears name's slot, freeing it for reuse. It is a no-op if
// name is not present.
func (h *TextHeader) RemoveUserFlag(name string) {
	for i, f := range h.UserFlags {
		if strings.EqualFold(f, name) {
			h.UserFlags[i] = ""
			return
		}
	}
}

// SortedACLEntries splits the ACL string ("identifier rights identifier
// rights ...") into stable, sorted (identifier, rights) pairs, useful for
// deterministic comparisons in reconstruct and tests.
func SortedACLEntries(acl string) [][2]string {
	fields := strings.Fields(acl)
	var out [][2]string
	for i := 0; i+1 < len(fields); i += 2 {
		out = append(out, [2]string{fields[i], fields[i+1]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
