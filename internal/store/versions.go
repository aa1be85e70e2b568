package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Version is one row of an entry's audit trail, without the stored
// content (history listings only need the metadata).
type Version struct {
	ID            string `json:"id"`
	Version       int    `json:"version"`
	Title         string `json:"title"`
	ChangeSummary string `json:"changeSummary"`
	Source        string `json:"source"`
	WordCount     int    `json:"wordCount"`
	CreatedAt     string `json:"createdAt"`
}

// ListVersions returns an entry's version history, newest first.
func (s *Store) ListVersions(ctx context.Context, entryID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, title, change_summary, source, word_count, created_at
		 FROM entry_versions WHERE entry_id = ? ORDER BY version DESC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.Version, &v.Title, &v.ChangeSummary,
			&v.Source, &v.WordCount, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersionContent returns the full content stored for one version of
// an entry. Returns ("", false, nil) when the version does not exist.
func (s *Store) GetVersionContent(ctx context.Context, entryID string, version int) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM entry_versions WHERE entry_id = ? AND version = ?`,
		entryID, version).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get version content: %w", err)
	}
	return content, true, nil
}
