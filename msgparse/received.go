package msgparse

import "strings"

// receivedDate implements §4.8's received_date selection rule:
// X-DeliveredInternalDate wins outright if present; otherwise the first
// Received: header's ";"-delimited timestamp; otherwise none.
func receivedDate(h *Header) string {
	if v := h.Get("X-DeliveredInternalDate"); v != nil {
		return strings.TrimSpace(string(v))
	}
	all := h.All("Received")
	if len(all) == 0 {
		return ""
	}
	first := string(all[0])
	semi := strings.LastIndexByte(first, ';')
	if semi < 0 {
		return ""
	}
	return strings.TrimSpace(first[semi+1:])
}
