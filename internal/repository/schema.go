package repository

import (
	"context"
	"fmt"

	"github.com/S1riyS/tnfs/pkg/database/postgresql"
	"github.com/S1riyS/tnfs/pkg/logging"
)

// RootIno is the inode of "/" on a freshly initialised store.
const RootIno = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS inode_allocator (
		id       SMALLINT PRIMARY KEY CHECK (id = 1),
		next_ino BIGINT NOT NULL
	)`,
	`INSERT INTO inode_allocator (id, next_ino)
	 VALUES (1, 1)
	 ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS inodes (
		ino       BIGINT PRIMARY KEY,
		ref_count INTEGER NOT NULL DEFAULT 1 CHECK (ref_count >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		path        TEXT PRIMARY KEY,
		ino         BIGINT NOT NULL UNIQUE REFERENCES inodes (ino),
		kind        SMALLINT NOT NULL CHECK (kind IN (0, 1)),
		owner       TEXT NOT NULL,
		mode        INTEGER NOT NULL CHECK (mode BETWEEN 0 AND 511),
		content     BYTEA NOT NULL DEFAULT ''::bytea,
		size        BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL,
		modified_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS journal (
		id        BIGSERIAL PRIMARY KEY,
		operation TEXT NOT NULL,
		path      TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		details   TEXT NOT NULL,
		actor     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS journal_path_idx ON journal (path)`,
	`CREATE TABLE IF NOT EXISTS mac_settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mac_rules (
		path      TEXT NOT NULL,
		operation TEXT NOT NULL CHECK (operation IN ('read', 'write', 'execute', 'delete')),
		kind      SMALLINT NOT NULL CHECK (kind IN (0, 1)),
		roles     TEXT[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (path, operation)
	)`,
	`CREATE TABLE IF NOT EXISTS mac_audit (
		id         BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL,
		username   TEXT NOT NULL,
		role       TEXT NOT NULL,
		path       TEXT NOT NULL,
		operation  TEXT NOT NULL,
		result     TEXT NOT NULL CHECK (result IN ('granted', 'denied')),
		timestamp  TIMESTAMPTZ NOT NULL,
		mode       TEXT NOT NULL CHECK (mode IN ('enforcing', 'permissive'))
	)`,
}

// Migrate creates every table if it does not exist yet.
func Migrate(ctx context.Context, db postgresql.Client) error {
	const op = "repository.Migrate"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	err := postgresql.WithTransaction(ctx, db, func(ctx context.Context) error {
		tx := postgresql.GetDBClient(ctx, db)
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Schema is up to date")
	return nil
}

// NewPostgres wires every repository to db.
func NewPostgres(db postgresql.Client, tx Transactor) Repositories {
	return Repositories{
		Tx:      tx,
		Nodes:   NewNodeRepository(db),
		Inodes:  NewInodeRepository(db),
		Journal: NewJournalRepository(db),
		Audit:   NewAuditRepository(db),
		Policy:  NewPolicyRepository(db),
	}
}
