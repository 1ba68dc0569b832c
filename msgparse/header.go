// Package msgparse parses RFC 5322/2046/2231 email messages into a body
// tree and the set of fields the mailbox engine's cache records need.
package msgparse

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
)

// Key is a canonical MIME header field name.
type Key string

// HeaderEntry is one header line, in original order.
type HeaderEntry struct {
	Key   Key
	Value []byte
}

// Header is a parsed, order-preserving MIME-style header.
type Header struct {
	Entries []HeaderEntry
	index   map[Key][][]byte
}

func (h *Header) ensureIndex() {
	if h.index != nil {
		return
	}
	h.index = make(map[Key][][]byte, len(h.Entries))
	for _, e := range h.Entries {
		h.index[e.Key] = append(h.index[e.Key], e.Value)
	}
}

// Add appends a header entry, keeping the index (if built) in sync.
func (h *Header) Add(k Key, v []byte) {
	h.Entries = append(h.Entries, HeaderEntry{Key: k, Value: v})
	if h.index != nil {
		h.index[k] = append(h.index[k], v)
	}
}

// Get returns the first value stored for k, or nil.
func (h *Header) Get(k Key) []byte {
	h.ensureIndex()
	vv := h.index[k]
	if len(vv) == 0 {
		return nil
	}
	return vv[0]
}

// All returns every value stored for k, in header order.
func (h *Header) All(k Key) [][]byte {
	h.ensureIndex()
	return h.index[k]
}

// CanonicalKey canonicalizes a raw header field name, matching the casing
// RFC 5322-producing agents commonly use (Subject-Case with well-known
// multi-word exceptions such as Message-ID, DKIM-Signature).
func CanonicalKey(raw []byte) Key {
	b := make([]byte, len(raw))
	copy(b, raw)
	asciiLower(b)
	switch string(b) {
	case "message-id":
		return "Message-ID"
	case "content-id":
		return "Content-ID"
	case "content-type":
		return "Content-Type"
	case "content-transfer-encoding":
		return "Content-Transfer-Encoding"
	case "content-disposition":
		return "Content-Disposition"
	case "mime-version":
		return "MIME-Version"
	case "dkim-signature":
		return "DKIM-Signature"
	case "x-deliveredinternaldate":
		return "X-DeliveredInternalDate"
	case "x-mailer":
		return "X-Mailer"
	case "in-reply-to":
		return "In-Reply-To"
	case "references":
		return "References"
	default:
		for i, c := range b {
			if 'a' <= c && c <= 'z' && (i == 0 || b[i-1] == '-') {
				b[i] -= 'a' - 'A'
			}
		}
		return Key(b)
	}
}

func asciiLower(b []byte) {
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
}

// ProtocolError reports a malformed header.
type ProtocolError string

func (p ProtocolError) Error() string { return string(p) }

// headerReader reads a folded, colon-delimited header block ending in a
// blank line, adapted from net/textproto's line-folding reader.
type headerReader struct {
	r   *bufio.Reader
	buf []byte
}

func newHeaderReader(r *bufio.Reader) *headerReader { return &headerReader{r: r} }

func (r *headerReader) readLineSlice() ([]byte, error) {
	var line []byte
	for {
		l, more, err := r.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == nil && !more {
			return l, nil
		}
		line = append(line, l...)
		if !more {
			break
		}
	}
	return line, nil
}

func (r *headerReader) readContinuedLineSlice() ([]byte, error) {
	line, err := r.readLineSlice()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return line, nil
	}
	if r.r.Buffered() > 1 {
		peek, err := r.r.Peek(1)
		if err == nil && isASCIILetter(peek[0]) {
			return trimSpace(line), nil
		}
	}
	r.buf = append(r.buf[:0], trimSpace(line)...)
	for r.skipSpace() > 0 {
		cont, err := r.readLineSlice()
		if err != nil {
			break
		}
		r.buf = append(r.buf, ' ')
		r.buf = append(r.buf, trimSpace(cont)...)
	}
	return r.buf, nil
}

func (r *headerReader) skipSpace() int {
	n := 0
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			break
		}
		if c != ' ' && c != '\t' {
			r.r.UnreadByte()
			break
		}
		n++
	}
	return n
}

// ReadHeader reads a MIME-style header block from r, RFC 2047-decoding
// encoded words in values as it goes.
func ReadHeader(r *bufio.Reader) (Header, error) {
	hr := newHeaderReader(r)
	var h Header

	if buf, err := r.Peek(1); err == nil && (buf[0] == ' ' || buf[0] == '\t') {
		line, _ := hr.readLineSlice()
		return h, ProtocolError("msgparse: malformed header initial line: " + string(line))
	}

	for {
		kv, err := hr.readContinuedLineSlice()
		if len(kv) == 0 {
			return h, err
		}
		i := bytes.IndexByte(kv, ':')
		if i < 0 {
			return h, ProtocolError(fmt.Sprintf("msgparse: malformed header line: %q", kv))
		}
		endKey := i
		for endKey > 0 && kv[endKey-1] == ' ' {
			endKey--
		}
		key := CanonicalKey(kv[:endKey])
		if key == "" {
			continue
		}
		j := i + 1
		for j < len(kv) && (kv[j] == ' ' || kv[j] == '\t') {
			j++
		}
		value := append([]byte(nil), kv[j:]...)
		if bytes.Contains(value, []byte("=?")) {
			if decoded, derr := wordDecoder.DecodeHeader(string(value)); derr == nil {
				value = []byte(decoded)
			}
		}
		h.Add(key, value)
		if err != nil {
			return h, err
		}
	}
}

func isASCIILetter(b byte) bool {
	b |= 0x20
	return 'a' <= b && b <= 'z'
}

func trimSpace(s []byte) []byte {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	n := len(s)
	for n > i && (s[n-1] == ' ' || s[n-1] == '\t') {
		n--
	}
	return s[i:n]
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}
