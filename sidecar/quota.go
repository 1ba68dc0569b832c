package sidecar

import (
	"context"
	"fmt"

	"crawshaw.io/sqlite/sqlitex"

	"github.com/brong/mboxd/mailbox"
)

// QuotaStore implements mailbox.QuotaStore against the sidecar database.
type QuotaStore struct {
	Pool *sqlitex.Pool
}

func (q *QuotaStore) Usage(ctx context.Context, root string) (storage, annotation int64, err error) {
	conn := q.Pool.Get(ctx)
	if conn == nil {
		return 0, 0, ctx.Err()
	}
	defer q.Pool.Put(conn)

	stmt := conn.Prep(`SELECT Used, UsedAnnotation FROM Quota WHERE Root = $root;`)
	stmt.SetText("$root", root)
	defer stmt.Reset()
	hasRow, err := stmt.Step()
	if err != nil {
		return 0, 0, err
	}
	if !hasRow {
		return 0, 0, nil
	}
	return stmt.GetInt64("Used"), stmt.GetInt64("UsedAnnotation"), nil
}

func (q *QuotaStore) AdjustUsage(ctx context.Context, root string, deltaStorage, deltaAnnotation int64) (err error) {
	conn := q.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer q.Pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	stmt := conn.Prep(`INSERT INTO Quota (Root, Used, UsedAnnotation) VALUES ($root, $delta, $deltaAnnotation)
		ON CONFLICT (Root) DO UPDATE SET
			Used           = Used + excluded.Used,
			UsedAnnotation = UsedAnnotation + excluded.UsedAnnotation;`)
	stmt.SetText("$root", root)
	stmt.SetInt64("$delta", deltaStorage)
	stmt.SetInt64("$deltaAnnotation", deltaAnnotation)
	defer stmt.Reset()
	_, err = stmt.Step()
	return err
}

func (q *QuotaStore) CheckLimit(ctx context.Context, root string, addBytes int64) error {
	conn := q.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer q.Pool.Put(conn)

	stmt := conn.Prep(`SELECT Used, Limit_ FROM Quota WHERE Root = $root;`)
	stmt.SetText("$root", root)
	defer stmt.Reset()
	hasRow, err := stmt.Step()
	if err != nil {
		return err
	}
	if !hasRow {
		return nil
	}
	limit := stmt.GetInt64("Limit_")
	if limit < 0 {
		return nil
	}
	used := stmt.GetInt64("Used")
	if used+addBytes > limit {
		return &mailbox.Error{Code: mailbox.QuotaExceeded, Op: "CheckLimit",
			Err: fmt.Errorf("quota root %q: %d + %d > %d", root, used, addBytes, limit)}
	}
	return nil
}
