package msgparse

import (
	"fmt"
	"strconv"
	"strings"
)

// WriteNString renders s as an IMAP nstring: NIL for a nil value, a
// quoted string when s contains none of CR/LF/'"'/'\\'/'%'/NUL, and a
// literal ({len}\r\n...) otherwise.
func WriteNString(s *string) string {
	if s == nil {
		return "NIL"
	}
	return writeNStringValue(*s)
}

func writeNStringValue(s string) string {
	if needsLiteral(s) {
		return fmt.Sprintf("{%d}\r\n%s", len(s), s)
	}
	var buf strings.Builder
	buf.WriteByte('"')
	buf.WriteString(s)
	buf.WriteByte('"')
	return buf.String()
}

func needsLiteral(s string) bool {
	return strings.ContainsAny(s, "\r\n\"\\%\x00")
}

// ParseNString parses the inverse of WriteNString from the start of s,
// returning the decoded value (nil for NIL) and the unconsumed remainder.
func ParseNString(s string) (value *string, rest string, err error) {
	s = strings.TrimLeft(s, " \t")
	switch {
	case strings.HasPrefix(s, "NIL"):
		return nil, s[3:], nil
	case strings.HasPrefix(s, "\""):
		end := strings.IndexByte(s[1:], '"')
		if end < 0 {
			return nil, s, fmt.Errorf("msgparse: unterminated quoted nstring")
		}
		v := s[1 : 1+end]
		return &v, s[1+end+1:], nil
	case strings.HasPrefix(s, "{"):
		close := strings.IndexByte(s, '}')
		if close < 0 {
			return nil, s, fmt.Errorf("msgparse: malformed literal length")
		}
		n, perr := strconv.Atoi(s[1:close])
		if perr != nil || n < 0 {
			return nil, s, fmt.Errorf("msgparse: bad literal length: %q", s[1:close])
		}
		body := s[close+1:]
		body = strings.TrimPrefix(body, "\r\n")
		if len(body) < n {
			return nil, s, fmt.Errorf("msgparse: literal shorter than declared length")
		}
		v := body[:n]
		return &v, body[n:], nil
	default:
		return nil, s, fmt.Errorf("msgparse: not an nstring: %q", s)
	}
}
