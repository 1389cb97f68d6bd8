package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// busyBackoff is the wait before each retry of a statement hitting a lock.
var busyBackoff = []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond}

// IsBusy reports whether err is SQLite lock contention.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "is locked")
}

// Exec runs a write statement, retrying while another sgxhist process
// holds the ledger lock beyond busy_timeout.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	res, err := db.ExecContext(ctx, query, args...)
	for _, wait := range busyBackoff {
		if !IsBusy(err) {
			break
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(err, ctx.Err())
		case <-t.C:
		}
		res, err = db.ExecContext(ctx, query, args...)
	}
	return res, err
}
