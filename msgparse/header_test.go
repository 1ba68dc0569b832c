package msgparse

import (
	"bufio"
	"strings"
	"testing"
)

func TestCanonicalKey(t *testing.T) {
	cases := map[string]Key{
		"Message-ID":         "Message-ID",
		"message-id":         "Message-ID",
		"CONTENT-TYPE":       "Content-Type",
		"x-deliveredinternaldate": "X-DeliveredInternalDate",
		"X-DELIVEREDINTERNALDATE": "X-DeliveredInternalDate",
		"dkim-signature":     "DKIM-Signature",
		"Subject":            "Subject",
		"x-custom-header":    "X-Custom-Header",
	}
	for raw, want := range cases {
		if got := CanonicalKey([]byte(raw)); got != want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestReadHeaderFolding(t *testing.T) {
	raw := "Subject: hello\r\n world\r\nFrom: a@example.com\r\nTo: b@example.com,\r\n\tc@example.com\r\n\r\nbody\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got, want := string(h.Get("Subject")), "hello world"; got != want {
		t.Errorf("Subject = %q, want %q", got, want)
	}
	if got, want := string(h.Get("From")), "a@example.com"; got != want {
		t.Errorf("From = %q, want %q", got, want)
	}
	if got, want := string(h.Get("To")), "b@example.com, c@example.com"; got != want {
		t.Errorf("To = %q, want %q", got, want)
	}
}

func TestReadHeaderEncodedWord(t *testing.T) {
	raw := "Subject: =?UTF-8?B?aGVsbG8=?=\r\n\r\nbody\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got, want := string(h.Get("Subject")), "hello"; got != want {
		t.Errorf("Subject = %q, want %q", got, want)
	}
}

func TestReadHeaderMultipleValues(t *testing.T) {
	raw := "Received: from a\r\nReceived: from b\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	all := h.All("Received")
	if len(all) != 2 {
		t.Fatalf("got %d Received values, want 2", len(all))
	}
	if string(all[0]) != "from a" || string(all[1]) != "from b" {
		t.Errorf("Received values = %q, %q", all[0], all[1])
	}
}
