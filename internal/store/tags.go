package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tag is a tag row plus its usage count when listed.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count,omitempty"`
}

// ListTags returns all tags ordered by name with usage counts.
func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.color,
		        (SELECT COUNT(*) FROM entry_tags et WHERE et.tag_id = t.id)
		 FROM tags t ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.Count); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// TagsForEntry returns the tags linked to one entry.
func (s *Store) TagsForEntry(ctx context.Context, entryID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.color
		 FROM entry_tags et JOIN tags t ON t.id = et.tag_id
		 WHERE et.entry_id = ? ORDER BY t.name`, entryID)
	if err != nil {
		return nil, fmt.Errorf("entry tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// setEntryTags links the entry to the named tags, creating missing ones.
// Names are trimmed and lowercased; empty names are dropped.
func (s *Store) setEntryTags(ctx context.Context, tx *sql.Tx, entryID string, names []string) error {
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		var tagID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM tags WHERE name = ?`, name).Scan(&tagID)
		if errors.Is(err, sql.ErrNoRows) {
			tagID = s.NewID()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tags (id, name, created_at) VALUES (?, ?, ?)`,
				tagID, name, now()); err != nil {
				return fmt.Errorf("create tag %q: %w", name, err)
			}
		} else if err != nil {
			return fmt.Errorf("find tag %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO entry_tags (entry_id, tag_id) VALUES (?, ?)`,
			entryID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}
