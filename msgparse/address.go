// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgparse

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// Address is one RFC 5322 mailbox: an optional display name plus an
// addr-spec.
type Address struct {
	Name string
	Addr string
}

// ParseAddress parses a single RFC 5322 address, e.g. "Barry Gibbs <bg@example.com>".
func ParseAddress(address string) (*Address, error) {
	return (&addrParser{s: address}).parseSingleAddress()
}

// ParseAddressList parses s as a comma-separated list of addresses.
func ParseAddressList(list string) ([]*Address, error) {
	return (&addrParser{s: list}).parseAddressList()
}

// ParseReferences parses a References: header body into its constituent
// Message-IDs, in order, each re-encoded into angle-bracket form.
func ParseReferences(references string) (refs []string, err error) {
	refs, err = (&addrParser{s: references}).parseReferences()
	if err != nil {
		return nil, err
	}
	for i, ref := range refs {
		refs[i] = EncodeAddressSpec(ref)
	}
	return refs, nil
}

// ParseReference parses a single encoded Message-ID, as used in the
// Message-ID: and In-Reply-To: headers.
func ParseReference(reference string) (string, error) {
	refs, err := (&addrParser{s: reference}).parseReferences()
	if err != nil {
		return "", err
	}
	if len(refs) != 1 {
		return "", errors.New("msgparse: more than one message id found")
	}
	return EncodeAddressSpec(refs[0]), nil
}

// FormatAddress renders a as a valid RFC 5322 address, RFC 2047-encoding
// the display name if it contains non-ASCII characters.
func FormatAddress(a *Address) string {
	s := EncodeAddressSpec(a.Addr)
	if a.Name == "" {
		return s
	}

	allPrintable := true
	for _, r := range a.Name {
		if !isVchar(r) && !isWSP(r) || isMultibyte(r) {
			allPrintable = false
			break
		}
	}
	if allPrintable {
		return quoteString(a.Name) + " " + s
	}

	if strings.ContainsAny(a.Name, "\"#$%&'(),.:;<>@[]^`{|}~") {
		return mime.BEncoding.Encode("utf-8", a.Name) + " " + s
	}
	return mime.QEncoding.Encode("utf-8", a.Name) + " " + s
}

// FormatAddressList joins list with ", ", formatting each address.
func FormatAddressList(list []Address) string {
	var addrs []string
	for i := range list {
		addrs = append(addrs, FormatAddress(&list[i]))
	}
	return strings.Join(addrs, ", ")
}

// EncodeAddressSpec renders a bare addr-spec in angle-bracket form,
// quoting the local-part if it requires it.
func EncodeAddressSpec(address string) string {
	at := strings.LastIndex(address, "@")
	var local, domain string
	if at < 0 {
		local = address
	} else {
		local, domain = address[:at], address[at+1:]
	}

	quoteLocal := false
	for i, r := range local {
		if isAtext(r, false, false) {
			continue
		}
		if r == '.' {
			if i > 0 && local[i-1] != '.' && i < len(local)-1 {
				continue
			}
		}
		quoteLocal = true
		break
	}
	if quoteLocal {
		local = quoteString(local)
	}
	return "<" + local + "@" + domain + ">"
}

type addrParser struct {
	s string
}

func (p *addrParser) parseAddressList() ([]*Address, error) {
	var list []*Address
	for {
		p.skipSpace()
		addrs, err := p.parseAddress(true)
		if err != nil {
			return nil, err
		}
		list = append(list, addrs...)

		if !p.skipCFWS() {
			return nil, errors.New("msgparse: misformatted parenthetical comment")
		}
		if p.empty() {
			break
		}
		if !p.consume(',') {
			return nil, errors.New("msgparse: expected comma")
		}
	}
	return list, nil
}

func (p *addrParser) parseSingleAddress() (*Address, error) {
	addrs, err := p.parseAddress(true)
	if err != nil {
		return nil, err
	}
	if !p.skipCFWS() {
		return nil, errors.New("msgparse: misformatted parenthetical comment")
	}
	if !p.empty() {
		return nil, fmt.Errorf("msgparse: expected single address, got %q", p.s)
	}
	if len(addrs) == 0 {
		return nil, errors.New("msgparse: empty group")
	}
	if len(addrs) > 1 {
		return nil, errors.New("msgparse: group with multiple addresses")
	}
	return addrs[0], nil
}

// parseAddress parses a single RFC 5322 address (mailbox or group) at the
// start of p.
func (p *addrParser) parseAddress(handleGroup bool) ([]*Address, error) {
	p.skipSpace()
	if p.empty() {
		return nil, errors.New("msgparse: no address")
	}

	spec, err := p.consumeAddrSpec()
	if err == nil {
		var displayName string
		p.skipSpace()
		if !p.empty() && p.peek() == '(' {
			displayName, err = p.consumeDisplayNameComment()
			if err != nil {
				return nil, err
			}
		}
		return []*Address{{Name: displayName, Addr: spec}}, err
	}

	var displayName string
	if p.peek() != '<' {
		displayName, err = p.consumePhrase()
		if err != nil {
			return nil, err
		}
	}

	p.skipSpace()
	if handleGroup {
		if p.consume(':') {
			return p.consumeGroupList()
		}
	}
	if !p.consume('<') {
		return nil, errors.New("msgparse: no angle-addr")
	}
	spec, err = p.consumeAddrSpec()
	if err != nil {
		return nil, err
	}
	if !p.consume('>') {
		return nil, errors.New("msgparse: unclosed angle-addr")
	}
	return []*Address{{Name: displayName, Addr: spec}}, nil
}

// parseReferences parses a sequence of '<' addr-spec '>' tokens separated
// by folding whitespace and RFC 5322 comments, as used in the References:
// header. Comments are skipped.
func (p *addrParser) parseReferences() (refs []string, err error) {
	for {
		if !p.skipCFWS() {
			return nil, errors.New("msgparse: misformatted parenthetical comment")
		}
		if p.empty() {
			break
		}
		if !p.consume('<') {
			return nil, errors.New("msgparse: references: no angle-addr")
		}
		spec, err := p.consumeAddrSpec()
		if err != nil {
			return nil, err
		}
		refs = append(refs, spec)
		if !p.consume('>') {
			return nil, errors.New("msgparse: unclosed angle-addr")
		}
		p.skipSpace()
	}
	return refs, nil
}

func (p *addrParser) consumeGroupList() ([]*Address, error) {
	var group []*Address
	p.skipSpace()
	if p.consume(';') {
		p.skipCFWS()
		return group, nil
	}

	for {
		p.skipSpace()
		addrs, err := p.parseAddress(false)
		if err != nil {
			return nil, err
		}
		group = append(group, addrs...)

		if !p.skipCFWS() {
			return nil, errors.New("msgparse: misformatted parenthetical comment")
		}
		if p.consume(';') {
			p.skipCFWS()
			break
		}
		if !p.consume(',') {
			return nil, errors.New("msgparse: expected comma")
		}
	}
	return group, nil
}

func (p *addrParser) consumeAddrSpec() (spec string, err error) {
	orig := *p
	defer func() {
		if err != nil {
			*p = orig
		}
	}()

	var localPart string
	p.skipSpace()
	if p.empty() {
		return "", errors.New("msgparse: no addr-spec")
	}
	if p.peek() == '"' {
		localPart, err = p.consumeQuotedString()
		if localPart == "" {
			err = errors.New("msgparse: empty quoted string in addr-spec")
		}
	} else {
		localPart, err = p.consumeAtom(true, false)
	}
	if err != nil {
		return "", err
	}

	if !p.consume('@') {
		return "", errors.New("msgparse: missing @ in addr-spec")
	}

	var domain string
	p.skipSpace()
	if p.empty() {
		return "", errors.New("msgparse: no domain in addr-spec")
	}
	domain, err = p.consumeAtom(true, false)
	if err != nil {
		return "", err
	}
	return localPart + "@" + domain, nil
}

func (p *addrParser) consumePhrase() (phrase string, err error) {
	var words []string
	var isPrevEncoded bool
	for {
		var word string
		p.skipSpace()
		if p.empty() {
			break
		}
		isEncoded := false
		if p.peek() == '"' {
			word, err = p.consumeQuotedString()
		} else {
			word, err = p.consumeAtom(true, true)
			if err == nil {
				word, isEncoded, err = p.decodeRFC2047Word(word)
			}
		}
		if err != nil {
			break
		}
		if isPrevEncoded && isEncoded {
			words[len(words)-1] += word
		} else {
			words = append(words, word)
		}
		isPrevEncoded = isEncoded
	}
	if err != nil && len(words) == 0 {
		return "", fmt.Errorf("msgparse: missing word in phrase: %v", err)
	}
	return strings.Join(words, " "), nil
}

func (p *addrParser) consumeQuotedString() (qs string, err error) {
	i := 1
	qsb := make([]rune, 0, 10)
	escaped := false

Loop:
	for {
		r, size := utf8.DecodeRuneInString(p.s[i:])
		switch {
		case size == 0:
			return "", errors.New("msgparse: unclosed quoted-string")
		case size == 1 && r == utf8.RuneError:
			return "", fmt.Errorf("msgparse: invalid utf-8 in quoted-string: %q", p.s)
		case escaped:
			if !isVchar(r) && !isWSP(r) {
				return "", fmt.Errorf("msgparse: bad character in quoted-string: %q", r)
			}
			qsb = append(qsb, r)
			escaped = false
		case isQtext(r) || isWSP(r):
			qsb = append(qsb, r)
		case r == '"':
			break Loop
		case r == '\\':
			escaped = true
		default:
			return "", fmt.Errorf("msgparse: bad character in quoted-string: %q", r)
		}
		i += size
	}
	p.s = p.s[i+1:]
	return string(qsb), nil
}

func (p *addrParser) consumeAtom(dot bool, permissive bool) (atom string, err error) {
	i := 0
Loop:
	for {
		r, size := utf8.DecodeRuneInString(p.s[i:])
		switch {
		case size == 1 && r == utf8.RuneError:
			return "", fmt.Errorf("msgparse: invalid utf-8 in address: %q", p.s)
		case size == 0 || !isAtext(r, dot, permissive):
			break Loop
		default:
			i += size
		}
	}
	if i == 0 {
		return "", errors.New("msgparse: invalid string")
	}
	atom, p.s = p.s[:i], p.s[i:]
	if !permissive {
		if strings.HasPrefix(atom, ".") {
			return "", errors.New("msgparse: leading dot in atom")
		}
		if strings.Contains(atom, "..") {
			return "", errors.New("msgparse: double dot in atom")
		}
		if strings.HasSuffix(atom, ".") {
			return "", errors.New("msgparse: trailing dot in atom")
		}
	}
	return atom, nil
}

func (p *addrParser) consumeDisplayNameComment() (string, error) {
	if !p.consume('(') {
		return "", errors.New("msgparse: comment does not start with (")
	}
	comment, ok := p.consumeComment()
	if !ok {
		return "", errors.New("msgparse: misformatted parenthetical comment")
	}

	words := strings.FieldsFunc(comment, func(r rune) bool { return r == ' ' || r == '\t' })
	for idx, word := range words {
		decoded, isEncoded, err := p.decodeRFC2047Word(word)
		if err != nil {
			return "", err
		}
		if isEncoded {
			words[idx] = decoded
		}
	}
	return strings.Join(words, " "), nil
}

func (p *addrParser) consume(c byte) bool {
	if p.empty() || p.peek() != c {
		return false
	}
	p.s = p.s[1:]
	return true
}

func (p *addrParser) skipSpace() {
	p.s = strings.TrimLeft(p.s, " \t")
}

func (p *addrParser) peek() byte { return p.s[0] }
func (p *addrParser) empty() bool { return p.len() == 0 }
func (p *addrParser) len() int   { return len(p.s) }

func (p *addrParser) skipCFWS() bool {
	p.skipSpace()
	for {
		if !p.consume('(') {
			break
		}
		if _, ok := p.consumeComment(); !ok {
			return false
		}
		p.skipSpace()
	}
	return true
}

func (p *addrParser) consumeComment() (string, bool) {
	depth := 1
	var comment string
	for {
		if p.empty() || depth == 0 {
			break
		}
		if p.peek() == '\\' && p.len() > 1 {
			p.s = p.s[1:]
		} else if p.peek() == '(' {
			depth++
		} else if p.peek() == ')' {
			depth--
		}
		if depth > 0 {
			comment += p.s[:1]
		}
		p.s = p.s[1:]
	}
	return comment, depth == 0
}

func (p *addrParser) decodeRFC2047Word(s string) (word string, isEncoded bool, err error) {
	word, err = wordDecoder.Decode(s)
	if err == nil {
		return word, true, nil
	}
	if _, ok := err.(charsetError); ok {
		return s, true, err
	}
	return s, false, nil
}

type charsetError string

func (e charsetError) Error() string {
	return fmt.Sprintf("msgparse: charset not supported: %q", string(e))
}

// isAtext reports whether r is an RFC 5322 atext character. If dot is
// true, period is included; if permissive is true, RFC 5322 3.2.3
// specials are allowed except '<', '>', ':' and '"'.
func isAtext(r rune, dot, permissive bool) bool {
	switch r {
	case '.':
		return dot
	case '(', ')', '[', ']', ';', '@', '\\', ',':
		return permissive
	case '<', '>', '"', ':':
		return false
	}
	return isVchar(r)
}

func isQtext(r rune) bool {
	if r == '\\' || r == '"' {
		return false
	}
	return isVchar(r)
}

func quoteString(s string) string {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		if isQtext(r) || isWSP(r) {
			buf.WriteRune(r)
		} else if isVchar(r) {
			buf.WriteByte('\\')
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return buf.String()
}

func isVchar(r rune) bool {
	return '!' <= r && r <= '~' || isMultibyte(r)
}

func isMultibyte(r rune) bool {
	return r >= utf8.RuneSelf
}

func isWSP(r rune) bool {
	return r == ' ' || r == '\t'
}
