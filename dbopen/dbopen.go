// Package dbopen opens the SQLite files pagedrive keeps state in. Every
// database gets WAL journaling, NORMAL synchronous and a busy timeout, and
// the modernc.org/sqlite driver is registered here.
//
//	db, err := dbopen.Open("state/history.db", dbopen.WithMkdirAll(), dbopen.WithSchema(ddl))
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

type options struct {
	busyTimeoutMS int
	mkdirAll      bool
	schemas       []string
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds (default 5000).
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMS = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema runs ddl once the pragmas are set. Schemas run in the order
// given and must be idempotent.
func WithSchema(ddl string) Option { return func(o *options) { o.schemas = append(o.schemas, ddl) } }

// Open opens path and prepares it. On error nothing is left open.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeoutMS: 5000}
	for _, fn := range opts {
		fn(&o)
	}
	if o.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := prepare(db, o); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: %s: %w", path, err)
	}
	return db, nil
}

func prepare(db *sql.DB, o options) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeoutMS),
	}
	stmts = append(stmts, o.schemas...)
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("exec %.40q: %w", s, err)
		}
	}
	return db.Ping()
}

// OpenMemory opens a private in-memory database closed at the end of the
// test. It holds a single connection: every new ":memory:" connection
// would see an empty database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
