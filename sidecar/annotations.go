package sidecar

import (
	"context"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/brong/mboxd/mailbox"
)

// AnnotationStore implements mailbox.AnnotationStore against the sidecar
// database.
type AnnotationStore struct {
	Pool *sqlitex.Pool
}

func (a *AnnotationStore) Changed(ctx context.Context, old, new mailbox.Annotation) (err error) {
	conn := a.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer a.Pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	if new.Value == "" {
		stmt := conn.Prep(`DELETE FROM Annotations WHERE UID = $uid AND Entry = $entry AND UserID = $userid;`)
		stmt.SetInt64("$uid", int64(old.UID))
		stmt.SetText("$entry", old.Entry)
		stmt.SetText("$userid", old.UserID)
		defer stmt.Reset()
		_, err = stmt.Step()
		return err
	}

	stmt := conn.Prep(`INSERT INTO Annotations (UID, Entry, UserID, Value)
		VALUES ($uid, $entry, $userid, $value)
		ON CONFLICT (UID, Entry, UserID) DO UPDATE SET Value = excluded.Value;`)
	stmt.SetInt64("$uid", int64(new.UID))
	stmt.SetText("$entry", new.Entry)
	stmt.SetText("$userid", new.UserID)
	stmt.SetText("$value", new.Value)
	defer stmt.Reset()
	_, err = stmt.Step()
	return err
}

func (a *AnnotationStore) ForUID(ctx context.Context, uid uint32) ([]mailbox.Annotation, error) {
	conn := a.Pool.Get(ctx)
	if conn == nil {
		return nil, ctx.Err()
	}
	defer a.Pool.Put(conn)

	stmt := conn.Prep(`SELECT UID, Entry, UserID, Value FROM Annotations WHERE UID = $uid ORDER BY Entry, UserID;`)
	stmt.SetInt64("$uid", int64(uid))
	defer stmt.Reset()
	return scanAnnotations(stmt)
}

func (a *AnnotationStore) All(ctx context.Context) ([]mailbox.Annotation, error) {
	conn := a.Pool.Get(ctx)
	if conn == nil {
		return nil, ctx.Err()
	}
	defer a.Pool.Put(conn)

	stmt := conn.Prep(`SELECT UID, Entry, UserID, Value FROM Annotations ORDER BY UID, Entry, UserID;`)
	defer stmt.Reset()
	return scanAnnotations(stmt)
}

func (a *AnnotationStore) DeleteUIDs(ctx context.Context, uids []uint32) (err error) {
	if len(uids) == 0 {
		return nil
	}
	conn := a.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer a.Pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	for _, uid := range uids {
		stmt := conn.Prep(`DELETE FROM Annotations WHERE UID = $uid;`)
		stmt.SetInt64("$uid", int64(uid))
		if _, serr := stmt.Step(); serr != nil {
			stmt.Reset()
			return serr
		}
		stmt.Reset()
	}
	return nil
}

func scanAnnotations(stmt *sqlite.Stmt) ([]mailbox.Annotation, error) {
	var out []mailbox.Annotation
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		out = append(out, mailbox.Annotation{
			UID:    uint32(stmt.GetInt64("UID")),
			Entry:  stmt.GetText("Entry"),
			UserID: stmt.GetText("UserID"),
			Value:  stmt.GetText("Value"),
		})
	}
	return out, nil
}
