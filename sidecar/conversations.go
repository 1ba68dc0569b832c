package sidecar

import (
	"context"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/brong/mboxd/mailbox"
)

// ConversationStore implements mailbox.ConversationStore against the
// sidecar database, adapted from spillbox's ConvoLabels read-modify-write
// shape: every delta is applied inside one transaction.
type ConversationStore struct {
	Pool *sqlitex.Pool
}

func (c *ConversationStore) Update(ctx context.Context, cid uint64, delta mailbox.ConvoDelta) (err error) {
	conn := c.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer c.Pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	return applyConvoDelta(conn, cid, delta)
}

func (c *ConversationStore) Rename(ctx context.Context, oldCID, newCID uint64, delta mailbox.ConvoDelta) (err error) {
	conn := c.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer c.Pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	inverse := delta
	inverse.NumRecords, inverse.Exists, inverse.Unseen = -delta.NumRecords, -delta.Exists, -delta.Unseen
	inverse.Size, inverse.Answered, inverse.Flagged, inverse.Deleted =
		-delta.Size, -delta.Answered, -delta.Flagged, -delta.Deleted
	inverse.Senders = nil
	if err := applyConvoDelta(conn, oldCID, inverse); err != nil {
		return err
	}
	return applyConvoDelta(conn, newCID, delta)
}

func applyConvoDelta(conn *sqlite.Conn, cid uint64, delta mailbox.ConvoDelta) error {
	cidStr := strconv.FormatUint(cid, 10)

	sendersCSV := ""
	if len(delta.Senders) > 0 {
		sendersCSV = strings.Join(delta.Senders, ",")
	}

	stmt := conn.Prep(`INSERT INTO Conversations (CID, NumRecords, Exists_, Unseen, Size, Answered, Flagged, Deleted, Senders)
		VALUES ($cid, $numRecords, $exists, $unseen, $size, $answered, $flagged, $deleted, $senders)
		ON CONFLICT (CID) DO UPDATE SET
			NumRecords = NumRecords + excluded.NumRecords,
			Exists_    = Exists_ + excluded.Exists_,
			Unseen     = Unseen + excluded.Unseen,
			Size       = Size + excluded.Size,
			Answered   = Answered + excluded.Answered,
			Flagged    = Flagged + excluded.Flagged,
			Deleted    = Deleted + excluded.Deleted,
			Senders    = CASE WHEN excluded.Senders = '' THEN Senders
			                  WHEN Senders = '' THEN excluded.Senders
			                  ELSE Senders || ',' || excluded.Senders END;`)
	stmt.SetText("$cid", cidStr)
	stmt.SetInt64("$numRecords", int64(delta.NumRecords))
	stmt.SetInt64("$exists", int64(delta.Exists))
	stmt.SetInt64("$unseen", int64(delta.Unseen))
	stmt.SetInt64("$size", delta.Size)
	stmt.SetInt64("$answered", int64(delta.Answered))
	stmt.SetInt64("$flagged", int64(delta.Flagged))
	stmt.SetInt64("$deleted", int64(delta.Deleted))
	stmt.SetText("$senders", sendersCSV)
	defer stmt.Reset()
	_, err := stmt.Step()
	return err
}
