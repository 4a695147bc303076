package dbopen

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Attempts is how many times Exec and QueryRow try a statement that keeps
// hitting a lock. Waits grow linearly from RetryDelay.
var (
	Attempts   = 3
	RetryDelay = 50 * time.Millisecond
)

// IsBusy reports an SQLite lock error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Exec runs a statement, retrying while the database is locked.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// QueryRow runs a single-row query and scans it into dest, retrying while
// the database is locked. sql.ErrNoRows is returned as is.
func QueryRow(ctx context.Context, db *sql.DB, query string, args []any, dest ...any) error {
	return retry(ctx, func() error {
		return db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}

func retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 1; i <= Attempts; i++ {
		if err = fn(); err == nil || !IsBusy(err) {
			return err
		}
		if i == Attempts {
			break
		}
		t := time.NewTimer(time.Duration(i) * RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
