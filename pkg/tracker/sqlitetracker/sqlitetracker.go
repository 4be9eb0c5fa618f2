// Package sqlitetracker implements a durable, crash-consistent
// tracker.Tracker backed by a single-writer SQLite database file, one per
// channel.
package sqlitetracker

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Tracker persists path -> offset in a `tracks` table. Every Set commits
// synchronously before returning, so a Set that returns nil has already
// survived a crash.
type Tracker struct {
	db *sql.DB
}

// Open opens (creating if necessary) the tracker database at path. An empty
// path opens an in-memory database, useful for tests.
func Open(path string) (*Tracker, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitetracker: open %s: %w", path, err)
	}
	// A single connection guarantees single-writer semantics: concurrent
	// Set calls serialize through one SQLite connection instead of
	// racing on WAL checkpoints.
	db.SetMaxOpenConns(1)

	t := &Tracker{db: db}
	if err := t.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) initSchema() error {
	_, err := t.db.Exec(`CREATE TABLE IF NOT EXISTS tracks (
		path TEXT PRIMARY KEY,
		offset INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("sqlitetracker: init schema: %w", err)
	}
	return nil
}

func (t *Tracker) Get(path string) (int64, bool) {
	var offset int64
	err := t.db.QueryRow(`SELECT offset FROM tracks WHERE path = ?`, path).Scan(&offset)
	if err != nil {
		return 0, false
	}
	return offset, true
}

// Set upserts path's offset, mirroring the update-then-insert-if-absent
// pattern the original tracker used, and commits before returning.
func (t *Tracker) Set(path string, offset int64) error {
	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitetracker: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE tracks SET offset = ? WHERE path = ?`, offset, path)
	if err != nil {
		return fmt.Errorf("sqlitetracker: update %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.Exec(`INSERT INTO tracks (path, offset) VALUES (?, ?)`, path, offset); err != nil {
			return fmt.Errorf("sqlitetracker: insert %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitetracker: commit %s: %w", path, err)
	}
	return nil
}

func (t *Tracker) Delete(path string) error {
	if _, err := t.db.Exec(`DELETE FROM tracks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("sqlitetracker: delete %s: %w", path, err)
	}
	return nil
}

func (t *Tracker) DeletePrefix(prefix string) error {
	if _, err := t.db.Exec(`DELETE FROM tracks WHERE path LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%"); err != nil {
		return fmt.Errorf("sqlitetracker: delete prefix %s: %w", prefix, err)
	}
	return nil
}

func (t *Tracker) Each(fn func(path string, offset int64) bool) error {
	rows, err := t.db.Query(`SELECT path, offset FROM tracks`)
	if err != nil {
		return fmt.Errorf("sqlitetracker: iterate: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		var offset int64
		if err := rows.Scan(&path, &offset); err != nil {
			return fmt.Errorf("sqlitetracker: scan: %w", err)
		}
		if !fn(path, offset) {
			break
		}
	}
	return rows.Err()
}

func (t *Tracker) Len() (int, error) {
	var n int
	if err := t.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitetracker: count: %w", err)
	}
	return n, nil
}

func (t *Tracker) Close() error {
	return t.db.Close()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
