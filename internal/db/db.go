// Package db stores the run ledger: one row per batch run and one row per
// processed recording, in a local SQLite database.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/mea-sync/internal/monitoring"
)

// DB wraps the SQLite handle used by the ledger.
type DB struct {
	*sql.DB
}

const (
	busyTimeoutMillis = 5000
	busyRetries       = 5
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// NewDB opens (creating if needed) the database at path, applies the
// connection pragmas and brings the schema up to the latest migration.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	monitoring.Debugf("ledger opened at %s", path)
	return db, nil
}

// isBusy reports whether err is a transient lock error from SQLite.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retryOnBusy runs fn until it succeeds, fails with a non-busy error or
// the retry budget is spent.
func retryOnBusy(fn func() error) error {
	var err error
	backoff := 20 * time.Millisecond
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = fn()
		if !isBusy(err) {
			return err
		}
		monitoring.Debugf("ledger busy (attempt %d): %v", attempt+1, err)
		time.Sleep(backoff)
		backoff *= 2
	}
	return errors.Join(errors.New("ledger busy: retries exhausted"), err)
}
