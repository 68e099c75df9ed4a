package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the console's session store.
type DB struct {
	*sql.DB
}

// Open opens the session store at path, brings its schema up to date and
// drops sessions that expired while the console was down.
func Open(ctx context.Context, path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.init(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to session store: %w", err)
	}
	from, err := db.migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrating session store from version %d: %w", from, err)
	}
	n, err := db.PurgeExpiredSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("purged expired sessions", "count", n)
	}
	return nil
}

// dsn has the driver apply the pragmas on every new connection.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// SchemaVersion is the number of migrations applied.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// migrate applies the pending steps in order, one transaction each, and
// returns the version it started from.
func (db *DB) migrate(ctx context.Context) (int, error) {
	from, err := db.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}
	if from > len(migrations) {
		return from, fmt.Errorf("schema version %d is newer than this build (%d)", from, len(migrations))
	}
	for i := from; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return from, err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return from, fmt.Errorf("step %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return from, err
		}
		if err := tx.Commit(); err != nil {
			return from, err
		}
	}
	return from, nil
}
