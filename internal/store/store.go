// Package store persists the knowledge base in SQLite: entries with their
// monotonically increasing versions, the append-only version history,
// notebooks, tags, relations, and the agent operation log.
//
// The single concurrency guard for entry mutations is the conditional
// update in UpdateEntry: the write matches both id and the expected
// version, and zero affected rows means another writer got there first.
// No in-process lock is held across the fetch-check-write sequence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// DefaultNotebookID is the fixed id of the notebook entries land in when
// no notebook is given. It is seeded by the migration and cannot be
// deleted.
const DefaultNotebookID = "default"

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens (or creates) the database at the given path and runs
// migrations.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notebooks (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon        TEXT NOT NULL DEFAULT '📓',
			is_default  INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			sort_order  INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL
		)`,

		// Markdown documents. version starts at 1 and moves by exactly one
		// per successful mutation.
		`CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL REFERENCES notebooks(id),
			title       TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			summary     TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL DEFAULT 'note',
			source      TEXT NOT NULL DEFAULT 'manual',
			word_count  INTEGER NOT NULL DEFAULT 0,
			version     INTEGER NOT NULL DEFAULT 1,
			is_pinned   INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,

		// Append-only audit trail: one row per successful mutation,
		// carrying the full content at that version. Never updated.
		`CREATE TABLE IF NOT EXISTS entry_versions (
			id             TEXT PRIMARY KEY,
			entry_id       TEXT NOT NULL REFERENCES entries(id),
			version        INTEGER NOT NULL,
			title          TEXT NOT NULL,
			content        TEXT NOT NULL,
			summary        TEXT NOT NULL DEFAULT '',
			change_summary TEXT NOT NULL DEFAULT '',
			source         TEXT NOT NULL DEFAULT 'manual',
			word_count     INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			UNIQUE(entry_id, version)
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			color      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS entry_tags (
			entry_id TEXT NOT NULL REFERENCES entries(id),
			tag_id   TEXT NOT NULL REFERENCES tags(id),
			PRIMARY KEY (entry_id, tag_id)
		)`,

		// Directed links between entries.
		`CREATE TABLE IF NOT EXISTS entry_relations (
			id            TEXT PRIMARY KEY,
			from_entry_id TEXT NOT NULL REFERENCES entries(id),
			to_entry_id   TEXT NOT NULL REFERENCES entries(id),
			type          TEXT NOT NULL DEFAULT 'related',
			created_at    TEXT NOT NULL,
			UNIQUE(from_entry_id, to_entry_id, type)
		)`,

		// What the agent did, for the activity feed. Standalone: rows
		// survive entry deletion.
		`CREATE TABLE IF NOT EXISTS agent_logs (
			id            TEXT PRIMARY KEY,
			action        TEXT NOT NULL,
			entry_id      TEXT NOT NULL DEFAULT '',
			entry_title   TEXT NOT NULL DEFAULT '',
			summary       TEXT NOT NULL DEFAULT '',
			added_words   INTEGER NOT NULL DEFAULT 0,
			removed_words INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_entries_notebook ON entries(notebook_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_entry ON entry_versions(entry_id, version)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_created ON agent_logs(created_at)`,

		// Seed the default notebook
		`INSERT OR IGNORE INTO notebooks (id, name, icon, is_default, created_at)
		 VALUES ('default', '默认笔记本', '📓', 1, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", truncate(stmt, 60), err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NewID returns a new ULID. IDs sort by creation time.
func (s *Store) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// cutoff30d is the lower bound used by the agent log and stats queries.
func cutoff30d() string {
	return time.Now().UTC().Add(-30 * 24 * time.Hour).Format(time.RFC3339)
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
