/*
Copyright © 2025 Benny Powers

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package store is the Schema Layer and Query Layer: it opens the
// embedded SQLite database, creates the schema idempotently, and gives
// every other internal package the three transaction flavours the
// synchroniser needs (§4.3).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the database handle. It is exclusively owned by whatever
// operation is currently running a write transaction; code outside
// this package reaches the raw *sql.DB only through DB().
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and runs
// the idempotent schema migration. Passing ":memory:" is useful for
// tests. WAL mode and a busy timeout match how a single-process,
// single-writer embedded engine should be configured (§5).
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer, cooperative scheduling (§5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle to internal packages that build their own
// prepared statements (modulecache, importresolver, inheritance, ...).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// BeginDeferred opens a read-mostly transaction that may upgrade to a
// write lock on first mutation (module-id fetch-or-insert,
// imported-type-name fetch-or-insert).
func (s *Store) BeginDeferred(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// BeginImmediate opens a write transaction that acquires SQLite's
// RESERVED lock immediately, matching the "one immediate transaction
// per top-level write call" rule of §4.3. database/sql has no portable
// way to request BEGIN IMMEDIATE through Tx options, so this pins a
// dedicated *sql.Conn (MaxOpenConns is 1 anyway, §5's single-writer
// model) and issues BEGIN IMMEDIATE directly on it.
func (s *Store) BeginImmediate(ctx context.Context) (*ImmediateTx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin immediate: %w", err)
	}
	return &ImmediateTx{conn: conn}, nil
}

// ImmediateTx is a write transaction opened with BEGIN IMMEDIATE on its
// own connection. Callers issue statements through Conn and must call
// exactly one of Commit or Rollback.
type ImmediateTx struct {
	conn *sql.Conn
}

func (t *ImmediateTx) Conn() *sql.Conn { return t.conn }

func (t *ImmediateTx) Commit(ctx context.Context) error {
	defer t.conn.Close()
	_, err := t.conn.ExecContext(ctx, "COMMIT")
	return err
}

func (t *ImmediateTx) Rollback(ctx context.Context) error {
	defer t.conn.Close()
	_, err := t.conn.ExecContext(ctx, "ROLLBACK")
	return err
}

// WithImmediate runs fn inside a single immediate transaction. fn's
// returned error rolls the transaction back; any error returned from
// Commit is reported as-is. This is the entry point every top-level
// write operation (synchronise, synchroniseDocumentImports) funnels
// through, so "all writes in one immediate transaction per call" is
// structural rather than a convention callers must remember.
func (s *Store) WithImmediate(ctx context.Context, fn func(conn *sql.Conn) error) error {
	tx, err := s.BeginImmediate(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Conn()); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// WithDeferred runs fn inside a deferred transaction, committing on
// success and rolling back on error.
func (s *Store) WithDeferred(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginDeferred(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
