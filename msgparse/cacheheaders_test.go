package msgparse

import "testing"

func TestBuildCacheHeadersFiltersByVersion(t *testing.T) {
	h := &Header{Entries: []HeaderEntry{
		{Key: "Subject", Value: []byte("hello")},
		{Key: "List-Id", Value: []byte("<list.example.com>")},
		{Key: "X-Unrelated", Value: []byte("drop me")},
	}}

	got := string(buildCacheHeaders(h, 1))
	want := "Subject: hello\r\n"
	if got != want {
		t.Errorf("cacheVersion 1 = %q, want %q", got, want)
	}

	got = string(buildCacheHeaders(h, 3))
	want = "Subject: hello\r\nList-Id: <list.example.com>\r\n"
	if got != want {
		t.Errorf("cacheVersion 3 = %q, want %q", got, want)
	}
}

func TestBuildCacheHeadersPreservesOrder(t *testing.T) {
	h := &Header{Entries: []HeaderEntry{
		{Key: "To", Value: []byte("a@example.com")},
		{Key: "From", Value: []byte("b@example.com")},
	}}
	got := string(buildCacheHeaders(h, 1))
	want := "To: a@example.com\r\nFrom: b@example.com\r\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
