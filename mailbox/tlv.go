package mailbox

import (
	"encoding/binary"
	"fmt"
)

// CacheItemType enumerates the cached, pre-parsed per-message fields stored
// in a cache record (§3.1).
type CacheItemType uint16

const (
	ItemEnvelope CacheItemType = iota
	ItemBodyStructure
	ItemBody
	ItemSection
	ItemHeaderFrom
	ItemHeaderTo
	ItemHeaderCC
	ItemHeaderBCC
	ItemHeaderSubject
	ItemHeaderMessageID
	ItemHeaderReferences
	ItemHeaderXHeaders
)

// CacheItem is one TLV-encoded entry in a cache record.
type CacheItem struct {
	Type  CacheItemType
	Value []byte
}

// CacheRecord is the variable-length, TLV-encoded sequence of cached items
// for one message (§3.1). Items are 4-byte aligned on disk.
type CacheRecord struct {
	Items []CacheItem
}

func padLen(n int) int { return (n + 3) &^ 3 }

// Encode serializes the cache record as [type uint16][len uint32][value]
// [pad to 4-byte boundary] repeated for each item.
func (c *CacheRecord) Encode() []byte {
	size := 0
	for _, it := range c.Items {
		size += 2 + 4 + padLen(len(it.Value))
	}
	buf := make([]byte, size)
	cur := 0
	for _, it := range c.Items {
		binary.BigEndian.PutUint16(buf[cur:], uint16(it.Type))
		cur += 2
		binary.BigEndian.PutUint32(buf[cur:], uint32(len(it.Value)))
		cur += 4
		copy(buf[cur:], it.Value)
		cur += padLen(len(it.Value))
	}
	return buf
}

// DecodeCacheRecord parses a byte slice produced by Encode.
func DecodeCacheRecord(buf []byte) (*CacheRecord, error) {
	c := new(CacheRecord)
	cur := 0
	for cur < len(buf) {
		if cur+6 > len(buf) {
			return nil, fmt.Errorf("mailbox: DecodeCacheRecord: truncated item header at offset %d", cur)
		}
		typ := CacheItemType(binary.BigEndian.Uint16(buf[cur:]))
		cur += 2
		length := int(binary.BigEndian.Uint32(buf[cur:]))
		cur += 4
		if cur+length > len(buf) {
			return nil, fmt.Errorf("mailbox: DecodeCacheRecord: truncated item value at offset %d", cur)
		}
		value := make([]byte, length)
		copy(value, buf[cur:cur+length])
		cur += padLen(length)
		c.Items = append(c.Items, CacheItem{Type: typ, Value: value})
	}
	return c, nil
}

// Get returns the first item of the given type, or nil if absent.
func (c *CacheRecord) Get(t CacheItemType) []byte {
	for _, it := range c.Items {
		if it.Type == t {
			return it.Value
		}
	}
	return nil
}

// Set replaces (or appends) the item of the given type.
func (c *CacheRecord) Set(t CacheItemType, value []byte) {
	for i, it := range c.Items {
		if it.Type == t {
			c.Items[i].Value = value
			return
		}
	}
	c.Items = append(c.Items, CacheItem{Type: t, Value: value})
}
