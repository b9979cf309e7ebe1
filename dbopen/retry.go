package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// busyBackoff is the pause before each retry of a transaction that hit a
// locked database. Its length bounds the number of attempts.
var busyBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

var busyMarkers = []string{"SQLITE_BUSY", "database is locked", "database table is locked"}

// IsBusy reports whether err is SQLite refusing a lock held by another
// connection.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RunTx runs fn in a transaction and commits it. fn is run again in a
// fresh transaction when the attempt fails with a busy database, at most
// three attempts in all.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	err := attempt(ctx, db, fn)
	for _, wait := range busyBackoff {
		if !IsBusy(err) {
			return err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: retry abandoned: %w", ctx.Err())
		case <-t.C:
		}
		err = attempt(ctx, db, fn)
	}
	return err
}

func attempt(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
