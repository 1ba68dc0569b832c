package msgparse

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"

	"crawshaw.io/iox"
)

// largePartThreshold is the size above which a part's decoded content is
// spilled to a Filer-backed buffer instead of held in memory while its
// length/line-count/MD5 are computed.
const largePartThreshold = 1 << 20

// Body is one node of a parsed message's MIME structure (§4.8): a leaf
// for a single-part body, or an interior node with Parts populated for a
// multipart.
type Body struct {
	Type, Subtype     string
	Params            []Param
	Disposition       string
	DispositionParams []Param
	Language          []string
	Encoding          string
	ID                string
	Description       string
	MD5               string
	Lines             int
	Length            int64

	Parts           []Body
	BoundaryOffsets []int64
}

// Envelope holds the top-level-only fields §4.8 returns alongside the
// body tree.
type Envelope struct {
	From, Sender, ReplyTo []Address
	To, Cc, Bcc           []Address
	Date                  string
	Subject               string
	InReplyTo             string
	References            string
	MessageID             string
	XMeMessageID          string
	ReceivedDate          string
	CacheHeaders          []byte
}

// ParsedMessage is the full return value of Parse.
type ParsedMessage struct {
	Body     Body
	Envelope Envelope
	GUID     [20]byte
}

// Parser parses messages, optionally spilling large decoded parts to
// disk via filer rather than holding them fully in memory.
type Parser struct {
	Filer *iox.Filer
}

// Parse reads one RFC 5322 message from r and returns its body tree plus
// envelope fields, per §4.8. A nil Filer keeps every part in memory.
func (p *Parser) Parse(r io.Reader, cacheVersion int) (*ParsedMessage, error) {
	br := bufio.NewReader(r)
	hdr, err := ReadHeader(br)
	if err != nil && err != io.EOF {
		return nil, err
	}
	raw, _ := io.ReadAll(br)

	body := p.buildBody(&hdr, raw)
	env := buildEnvelope(&hdr, cacheVersion)

	pm := &ParsedMessage{Body: body, Envelope: env}
	pm.GUID = sha1.Sum(raw)
	return pm, nil
}

// Parse is the in-memory-only convenience entry point, equivalent to
// (&Parser{}).Parse.
func Parse(r io.Reader, cacheVersion int) (*ParsedMessage, error) {
	return (&Parser{}).Parse(r, cacheVersion)
}

func buildEnvelope(h *Header, cacheVersion int) Envelope {
	env := Envelope{
		Date:         string(h.Get("Date")),
		Subject:      string(h.Get("Subject")),
		InReplyTo:    string(h.Get("In-Reply-To")),
		References:   concatenatedReferences(h),
		MessageID:    string(h.Get("Message-ID")),
		XMeMessageID: string(h.Get("X-Me-Message-ID")),
		ReceivedDate: receivedDate(h),
		CacheHeaders: buildCacheHeaders(h, cacheVersion),
	}
	env.From = parseAddrHeader(h, "From")
	env.Sender = parseAddrHeader(h, "Sender")
	env.ReplyTo = parseAddrHeader(h, "Reply-To")
	env.To = parseAddrHeader(h, "To")
	env.Cc = parseAddrHeader(h, "Cc")
	env.Bcc = parseAddrHeader(h, "Bcc")
	return env
}

func parseAddrHeader(h *Header, key Key) []Address {
	v := h.Get(key)
	if v == nil {
		return nil
	}
	addrs, err := ParseAddressList(string(v))
	if err != nil {
		return nil
	}
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, *a)
	}
	return out
}

// buildBody implements the multipart tree walk (§4.8), adapted from a
// parse-then-measure two-pass shape: structural fields come from the raw
// header, sub-bodies come from walking multipart boundaries recursively.
func (p *Parser) buildBody(h *Header, content []byte) Body {
	ctype := string(h.Get("Content-Type"))
	mediaType, typeParams, err := mime.ParseMediaType(ctype)
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
		typeParams = map[string]string{"charset": "us-ascii"}
	}

	typ, subtype := "TEXT", "PLAIN"
	if slash := strings.IndexByte(mediaType, '/'); slash >= 0 {
		typ = strings.ToUpper(mediaType[:slash])
		subtype = strings.ToUpper(mediaType[slash+1:])
	}

	b := Body{
		Type:    typ,
		Subtype: subtype,
		Params:  parseParams(ctype),
		ID:      strings.Trim(string(h.Get("Content-ID")), "<>"),
		Description: string(h.Get("Content-Description")),
	}

	if enc := string(h.Get("Content-Transfer-Encoding")); enc != "" {
		b.Encoding = strings.ToUpper(strings.TrimSpace(enc))
	} else {
		b.Encoding = "7BIT"
	}

	if disp := string(h.Get("Content-Disposition")); disp != "" {
		if dtype, _, derr := mime.ParseMediaType(disp); derr == nil {
			b.Disposition = strings.ToUpper(dtype)
			b.DispositionParams = parseParams(disp)
		}
	}

	if strings.HasPrefix(strings.ToLower(mediaType), "multipart/") {
		boundary := typeParams["boundary"]
		parts, offsets := splitMultipart(content, boundary)
		for _, partBytes := range parts {
			ph, pbody, perr := splitPartHeader(partBytes)
			if perr != nil {
				continue
			}
			b.Parts = append(b.Parts, p.buildBody(ph, pbody))
		}
		b.BoundaryOffsets = offsets
		return b
	}

	if p.Filer != nil && len(content) > largePartThreshold {
		length, lines, sum, err := p.measureSpilled(content, b.Encoding)
		if err == nil {
			b.Length, b.Lines, b.MD5 = length, lines, hex.EncodeToString(sum[:])
			return b
		}
		// fall through to the in-memory path on spill failure
	}

	decoded := decodeTransferEncoding(content, b.Encoding)
	b.Length = int64(len(decoded))
	b.Lines = countLines(decoded)
	sum := md5.Sum(decoded)
	b.MD5 = hex.EncodeToString(sum[:])
	return b
}

// measureSpilled decodes content into a Filer-backed buffer so a large
// attachment's length/line-count/MD5 can be computed without holding the
// fully decoded form in memory at once.
func (p *Parser) measureSpilled(content []byte, encoding string) (length int64, lines int, sum [16]byte, err error) {
	buf := p.Filer.BufferFile(0)
	defer buf.Close()

	h := md5.New()
	w := io.MultiWriter(buf, h)

	switch encoding {
	case "BASE64":
		_, err = io.Copy(w, base64.NewDecoder(base64.StdEncoding, strings.NewReader(stripNonBase64(content))))
	case "QUOTED-PRINTABLE":
		_, err = io.Copy(w, quotedprintable.NewReader(bytes.NewReader(content)))
	default:
		_, err = w.Write(content)
	}
	if err != nil {
		return 0, 0, sum, err
	}

	length = buf.Size()
	if _, err = buf.Seek(0, io.SeekStart); err != nil {
		return 0, 0, sum, err
	}
	lineBuf := make([]byte, 32*1024)
	for {
		n, rerr := buf.Read(lineBuf)
		lines += bytes.Count(lineBuf[:n], []byte{'\n'})
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, sum, rerr
		}
	}
	copy(sum[:], h.Sum(nil))
	return length, lines, sum, nil
}

// splitMultipart scans content for "--boundary" delimiter lines (RFC
// 2046 §5.1.1), recording each delimiter's byte offset and the raw bytes
// of the section it introduces.
func splitMultipart(content []byte, boundary string) (parts [][]byte, offsets []int64) {
	if boundary == "" {
		return nil, nil
	}
	delim := []byte("--" + boundary)
	pos := 0
	var sectionStart = -1
	for {
		idx := bytes.Index(content[pos:], delim)
		if idx < 0 {
			break
		}
		off := int64(pos + idx)
		lineEnd := pos + idx + len(delim)
		isClose := bytes.HasPrefix(content[lineEnd:], []byte("--"))

		if sectionStart >= 0 {
			end := int(off)
			for end > sectionStart && (content[end-1] == '\n' || content[end-1] == '\r') {
				end--
			}
			parts = append(parts, content[sectionStart:end])
		}
		offsets = append(offsets, off)

		if isClose {
			break
		}
		if nl := bytes.IndexByte(content[lineEnd:], '\n'); nl >= 0 {
			sectionStart = lineEnd + nl + 1
			pos = sectionStart
		} else {
			break
		}
	}
	return parts, offsets
}

// splitPartHeader re-parses a raw multipart section (header block plus
// body) through the same header reader used for the outer message, so
// RFC 2047 decoding and canonical keys are applied uniformly.
func splitPartHeader(raw []byte) (*Header, []byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := ReadHeader(br)
	if err != nil && err != io.EOF {
		return nil, nil, err
	}
	rest, _ := io.ReadAll(br)
	return &h, rest, nil
}

func decodeTransferEncoding(content []byte, encoding string) []byte {
	switch encoding {
	case "BASE64":
		out, err := base64.StdEncoding.DecodeString(stripNonBase64(content))
		if err != nil {
			return content
		}
		return out
	case "QUOTED-PRINTABLE":
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(content)))
		if err != nil {
			return content
		}
		return out
	default:
		return content
	}
}

func stripNonBase64(b []byte) string {
	var buf strings.Builder
	for _, c := range b {
		if c == '\r' || c == '\n' {
			continue
		}
		buf.WriteByte(c)
	}
	return buf.String()
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return bytes.Count(b, []byte{'\n'})
}
