package msgparse

import "strings"

// concatenatedReferences implements §4.8's References rule: concatenate
// every References: header occurrence, stripping RFC 5322 comments and
// folding whitespace, and return the <id> tokens rejoined in order as a
// single space-separated string.
func concatenatedReferences(h *Header) string {
	all := h.All("References")
	if len(all) == 0 {
		return ""
	}
	var joined strings.Builder
	for i, v := range all {
		if i > 0 {
			joined.WriteByte(' ')
		}
		joined.Write(v)
	}
	ids, err := ParseReferences(joined.String())
	if err != nil || len(ids) == 0 {
		return ""
	}
	return strings.Join(ids, " ")
}
