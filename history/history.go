// Package history keeps a local log of launch attempts in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values stored for an attempt.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
	OutcomeCancelled = "cancelled"
)

// DefaultKeep is how many entries Prune leaves behind by default.
const DefaultKeep = 500

// Entry is one launch attempt.
type Entry struct {
	ID         int64
	ProfileID  string
	Name       string
	Address    string
	Login      string
	Outcome    string
	Error      string
	Temporary  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the attempt took.
func (e *Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Database wraps the SQLite history database.
type Database struct {
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return d, nil
}

func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS launches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		login TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		temporary INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_launches_started ON launches(started_at);
	CREATE INDEX IF NOT EXISTS idx_launches_profile ON launches(profile_id);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Record appends an entry and sets its ID.
func (d *Database) Record(ctx context.Context, e *Entry) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO launches
		(profile_id, name, address, login, outcome, error, temporary, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProfileID, e.Name, e.Address, e.Login, e.Outcome, e.Error, e.Temporary,
		e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record launch: %w", err)
	}

	id, err := res.LastInsertId()
	if err == nil {
		e.ID = id
	}
	return nil
}

// Recent returns the newest entries first.
func (d *Database) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return d.query(ctx, `
		SELECT id, profile_id, name, address, login, outcome, error, temporary, started_at, finished_at
		FROM launches ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
}

// ForProfile returns the newest entries for one connection.
func (d *Database) ForProfile(ctx context.Context, profileID string, limit int) ([]Entry, error) {
	return d.query(ctx, `
		SELECT id, profile_id, name, address, login, outcome, error, temporary, started_at, finished_at
		FROM launches WHERE profile_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`, profileID, limit)
}

// Prune deletes all but the newest keep entries and returns how many
// were removed.
func (d *Database) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM launches WHERE id NOT IN (
			SELECT id FROM launches ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func (d *Database) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Name, &e.Address, &e.Login,
			&e.Outcome, &e.Error, &e.Temporary, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
