package sidecar

import (
	"context"

	"crawshaw.io/sqlite/sqlitex"

	"github.com/brong/mboxd/mailbox"
)

// SeenStore implements mailbox.SeenStore against the sidecar database.
type SeenStore struct {
	Pool *sqlitex.Pool
}

func (s *SeenStore) Get(ctx context.Context, userID, uniqueID string) (mailbox.SeenState, error) {
	conn := s.Pool.Get(ctx)
	if conn == nil {
		return mailbox.SeenState{}, ctx.Err()
	}
	defer s.Pool.Put(conn)

	var state mailbox.SeenState
	found := false
	stmt := conn.Prep(`SELECT LastRead, LastUID, SeenUIDs, Recent FROM Seen
		WHERE UserID = $userID AND UniqueID = $uniqueID;`)
	stmt.SetText("$userID", userID)
	stmt.SetText("$uniqueID", uniqueID)
	defer stmt.Reset()
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return mailbox.SeenState{}, err
		}
		if !hasRow {
			break
		}
		found = true
		state.LastRead = stmt.GetInt64("LastRead")
		state.LastUID = uint32(stmt.GetInt64("LastUID"))
		state.SeenUIDs = stmt.GetText("SeenUIDs")
		state.LastChanged = stmt.GetInt64("Recent")
	}
	if !found {
		return mailbox.SeenState{}, nil
	}
	return state, nil
}

func (s *SeenStore) Set(ctx context.Context, userID, uniqueID string, state mailbox.SeenState) (err error) {
	conn := s.Pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer s.Pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	stmt := conn.Prep(`INSERT INTO Seen (UserID, UniqueID, LastRead, LastUID, SeenUIDs, Recent)
		VALUES ($userID, $uniqueID, $lastRead, $lastUID, $seenUIDs, $recent)
		ON CONFLICT (UserID, UniqueID) DO UPDATE SET
			LastRead = excluded.LastRead,
			LastUID = excluded.LastUID,
			SeenUIDs = excluded.SeenUIDs,
			Recent = excluded.Recent;`)
	stmt.SetText("$userID", userID)
	stmt.SetText("$uniqueID", uniqueID)
	stmt.SetInt64("$lastRead", state.LastRead)
	stmt.SetInt64("$lastUID", int64(state.LastUID))
	stmt.SetText("$seenUIDs", state.SeenUIDs)
	stmt.SetInt64("$recent", state.LastChanged)
	defer stmt.Reset()
	_, err = stmt.Step()
	return err
}
