// Package sidecar implements the mailbox package's external
// collaborators (§4.10: seen-state, conversations, annotations, quota)
// against a local sqlite database, one pool per partition or per user
// depending on deployment.
package sidecar

import (
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

const createSQL = `
CREATE TABLE IF NOT EXISTS Seen (
	UserID   TEXT NOT NULL,
	UniqueID TEXT NOT NULL,
	LastRead INTEGER NOT NULL DEFAULT 0,
	LastUID  INTEGER NOT NULL DEFAULT 0,
	SeenUIDs TEXT NOT NULL DEFAULT '',
	Recent   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (UserID, UniqueID)
);

CREATE TABLE IF NOT EXISTS Conversations (
	CID         TEXT PRIMARY KEY,
	NumRecords  INTEGER NOT NULL DEFAULT 0,
	Exists_     INTEGER NOT NULL DEFAULT 0,
	Unseen      INTEGER NOT NULL DEFAULT 0,
	Size        INTEGER NOT NULL DEFAULT 0,
	Answered    INTEGER NOT NULL DEFAULT 0,
	Flagged     INTEGER NOT NULL DEFAULT 0,
	Deleted     INTEGER NOT NULL DEFAULT 0,
	Senders     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS Annotations (
	UID    INTEGER NOT NULL,
	Entry  TEXT NOT NULL,
	UserID TEXT NOT NULL DEFAULT '',
	Value  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (UID, Entry, UserID)
);

CREATE TABLE IF NOT EXISTS Quota (
	Root           TEXT PRIMARY KEY,
	Used           INTEGER NOT NULL DEFAULT 0,
	UsedAnnotation INTEGER NOT NULL DEFAULT 0,
	Limit_         INTEGER NOT NULL DEFAULT -1
);
`

// Open opens (creating and migrating if necessary) the sidecar database
// at dbfile and returns a connection pool sized for concurrent mailbox
// handles, following the same init-then-pool shape a configuration
// database typically uses.
func Open(dbfile string, poolSize int) (*sqlitex.Pool, error) {
	conn, err := sqlite.OpenConn(dbfile, 0)
	if err != nil {
		return nil, fmt.Errorf("sidecar.Open: init open: %v", err)
	}
	if err := Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sidecar.Open: init: %v", err)
	}
	if err := conn.Close(); err != nil {
		return nil, fmt.Errorf("sidecar.Open: init close: %v", err)
	}

	pool, err := sqlitex.Open(dbfile, 0, poolSize)
	if err != nil {
		return nil, fmt.Errorf("sidecar.Open: pool: %v", err)
	}
	return pool, nil
}

// Init creates the sidecar schema if it does not already exist.
func Init(conn *sqlite.Conn) error {
	if err := sqlitex.ExecTransient(conn, "PRAGMA journal_mode=WAL;", nil); err != nil {
		return err
	}
	return sqlitex.ExecScript(conn, createSQL)
}
