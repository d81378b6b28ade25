// Package sqlitestore implements the store interfaces on top of
// modernc.org/sqlite, a pure-Go, cgo-free sqlite driver — the single-process
// host has no need for a network database, and pure Go keeps the deploy
// story (rebuild the host binary, SIGTERM, resume) a single static artifact.
//
// Every write goes through a process-wide mutex. sqlite allows only one
// writer at a time; rather than let writers queue up on the driver's lock
// (and risk SQLITE_BUSY under load) the host serializes writes explicitly,
// matching the ACID-single-process state-store behavior the design calls
// for.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/agenthost/internal/store"
)

// DB wraps the underlying *sql.DB plus the process-wide write lock.
type DB struct {
	conn     *sql.DB
	writeMu  sync.Mutex
}

// Open opens (creating if necessary) the sqlite database at path and runs
// any pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY entirely; reads can
	// still run concurrently against the same *sql.DB handle.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := store.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// withWriteTx runs fn inside a transaction while holding the write lock,
// committing on success and rolling back on any error.
func (d *DB) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Stores builds a store.Stores backed by this database.
func (d *DB) Stores() *store.Stores {
	return &store.Stores{
		Workspaces: &workspaceStore{db: d},
		Messages:   &messageStore{db: d},
		Cursors:    &cursorStore{db: d},
		Sessions:   &sessionStore{db: d},
		Schedules:  &scheduleStore{db: d},
		HostJobs:   &hostJobStore{db: d},
		Audit:      &auditStore{db: d},
	}
}
