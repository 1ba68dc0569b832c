package msgparse

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"testing"
)

func TestParseSimpleTextMessage(t *testing.T) {
	raw := "From: Alice <alice@example.com>\r\n" +
		"To: Bob <bob@example.com>\r\n" +
		"Subject: hello\r\n" +
		"Message-ID: <abc@example.com>\r\n" +
		"\r\n" +
		"line one\r\nline two\r\n"

	pm, err := Parse(strings.NewReader(raw), 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if pm.Envelope.Subject != "hello" {
		t.Errorf("Subject = %q, want %q", pm.Envelope.Subject, "hello")
	}
	if pm.Envelope.MessageID != "<abc@example.com>" {
		t.Errorf("MessageID = %q, want %q", pm.Envelope.MessageID, "<abc@example.com>")
	}
	if len(pm.Envelope.From) != 1 || pm.Envelope.From[0].Addr != "alice@example.com" {
		t.Errorf("From = %+v, want one address alice@example.com", pm.Envelope.From)
	}
	if len(pm.Envelope.To) != 1 || pm.Envelope.To[0].Addr != "bob@example.com" {
		t.Errorf("To = %+v, want one address bob@example.com", pm.Envelope.To)
	}

	if pm.Body.Type != "TEXT" || pm.Body.Subtype != "PLAIN" {
		t.Errorf("Body Type/Subtype = %s/%s, want TEXT/PLAIN (no Content-Type given)", pm.Body.Type, pm.Body.Subtype)
	}
	if pm.Body.Encoding != "7BIT" {
		t.Errorf("Encoding = %q, want 7BIT (no Content-Transfer-Encoding given)", pm.Body.Encoding)
	}
	if pm.Body.Lines != 2 {
		t.Errorf("Lines = %d, want 2", pm.Body.Lines)
	}

	bodyBytes := []byte("line one\r\nline two\r\n")
	want := md5.Sum(bodyBytes)
	if pm.Body.MD5 != hex.EncodeToString(want[:]) {
		t.Errorf("MD5 = %q, want %q", pm.Body.MD5, hex.EncodeToString(want[:]))
	}
}

func TestParseBase64Body(t *testing.T) {
	raw := "Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8gd29ybGQ=\r\n"

	pm, err := Parse(strings.NewReader(raw), 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pm.Body.Encoding != "BASE64" {
		t.Errorf("Encoding = %q, want BASE64", pm.Body.Encoding)
	}
	want := md5.Sum([]byte("hello world"))
	if pm.Body.MD5 != hex.EncodeToString(want[:]) {
		t.Errorf("MD5 = %q, want md5 of the decoded payload", pm.Body.MD5)
	}
	if pm.Body.Length != int64(len("hello world")) {
		t.Errorf("Length = %d, want %d", pm.Body.Length, len("hello world"))
	}
}

func TestParseMultipartMessage(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=XYZ\r\n" +
		"\r\n" +
		"preamble, ignored\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"first part\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>second part</p>\r\n" +
		"--XYZ--\r\n"

	pm, err := Parse(strings.NewReader(raw), 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pm.Body.Type != "MULTIPART" || pm.Body.Subtype != "MIXED" {
		t.Errorf("Type/Subtype = %s/%s, want MULTIPART/MIXED", pm.Body.Type, pm.Body.Subtype)
	}
	if len(pm.Body.Parts) != 2 {
		t.Fatalf("len(Parts) = %d, want 2", len(pm.Body.Parts))
	}
	if pm.Body.Parts[0].Subtype != "PLAIN" {
		t.Errorf("Parts[0].Subtype = %q, want PLAIN", pm.Body.Parts[0].Subtype)
	}
	if pm.Body.Parts[1].Subtype != "HTML" {
		t.Errorf("Parts[1].Subtype = %q, want HTML", pm.Body.Parts[1].Subtype)
	}
	if len(pm.Body.BoundaryOffsets) == 0 {
		t.Error("expected BoundaryOffsets to be recorded for a multipart body")
	}
}

func TestParseUnknownContentTypeDefaultsToTextPlain(t *testing.T) {
	raw := "Content-Type: this is not a media type;;;\r\n\r\nbody\r\n"
	pm, err := Parse(strings.NewReader(raw), 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pm.Body.Type != "TEXT" || pm.Body.Subtype != "PLAIN" {
		t.Errorf("Type/Subtype = %s/%s, want TEXT/PLAIN fallback", pm.Body.Type, pm.Body.Subtype)
	}
}

func TestParseGUIDIsSHA1OfBodyBytes(t *testing.T) {
	raw := "Subject: x\r\n\r\nbody\r\n"
	pm, err := Parse(strings.NewReader(raw), 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := sha1.Sum([]byte("body\r\n"))
	if pm.GUID != want {
		t.Errorf("GUID = %x, want %x", pm.GUID, want)
	}
}
