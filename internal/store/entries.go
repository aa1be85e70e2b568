package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Entry is a full entry row plus its notebook name.
type Entry struct {
	ID           string `json:"id"`
	NotebookID   string `json:"notebookId"`
	NotebookName string `json:"notebookName"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Summary      string `json:"summary"`
	Type         string `json:"type"`
	Source       string `json:"source"`
	WordCount    int    `json:"wordCount"`
	Version      int    `json:"version"`
	IsPinned     bool   `json:"isPinned"`
	IsArchived   bool   `json:"isArchived"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// EntryUpdate describes a conditional entry mutation. Nil pointer fields
// are left untouched; Tags non-nil replaces the tag set wholesale.
type EntryUpdate struct {
	Title      *string
	Content    *string
	Summary    *string
	NotebookID *string
	Type       *string
	WordCount  *int
	Tags       []string

	ChangeSummary string
	Source        string
}

// ListFilter narrows and pages ListEntries.
type ListFilter struct {
	NotebookID string
	Tags       []string
	Type       string
	SortBy     string // updated_at | created_at | title
	SortOrder  string // asc | desc
	Page       int
	PageSize   int
}

const entryColumns = `e.id, e.notebook_id, n.name, e.title, e.content, e.summary,
	e.type, e.source, e.word_count, e.version, e.is_pinned, e.is_archived,
	e.created_at, e.updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var e Entry
	var pinned, archived int
	err := row.Scan(
		&e.ID, &e.NotebookID, &e.NotebookName, &e.Title, &e.Content, &e.Summary,
		&e.Type, &e.Source, &e.WordCount, &e.Version, &pinned, &archived,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.IsPinned = pinned != 0
	e.IsArchived = archived != 0
	return &e, nil
}

// GetEntry fetches one entry by id. Returns (nil, nil) when absent.
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+`
		 FROM entries e JOIN notebooks n ON n.id = e.notebook_id
		 WHERE e.id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns non-archived entries matching the filter plus the
// total match count.
func (s *Store) ListEntries(ctx context.Context, f ListFilter) ([]Entry, int, error) {
	where := []string{"e.is_archived = 0"}
	var args []any

	if f.NotebookID != "" {
		where = append(where, "e.notebook_id = ?")
		args = append(args, f.NotebookID)
	}
	if f.Type != "" {
		where = append(where, "e.type = ?")
		args = append(args, f.Type)
	}
	if len(f.Tags) > 0 {
		placeholders := strings.Repeat("?,", len(f.Tags))
		where = append(where, fmt.Sprintf(
			`e.id IN (SELECT et.entry_id FROM entry_tags et
			          JOIN tags t ON t.id = et.tag_id
			          WHERE t.name IN (%s))`, placeholders[:len(placeholders)-1]))
		for _, tag := range f.Tags {
			args = append(args, tag)
		}
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries e WHERE `+whereClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	sortBy := "e.updated_at"
	switch f.SortBy {
	case "created_at", "createdAt":
		sortBy = "e.created_at"
	case "title":
		sortBy = "e.title"
	}
	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}

	page := max(1, f.Page)
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+`
		 FROM entries e JOIN notebooks n ON n.id = e.notebook_id
		 WHERE `+whereClause+`
		 ORDER BY `+sortBy+` `+order+`
		 LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

// InsertEntry creates the entry at version 1 together with its tag links
// and the initial version row, in one transaction.
func (s *Store) InsertEntry(ctx context.Context, e *Entry, tags []string, changeSummary string) error {
	ts := now()
	e.Version = 1
	e.CreatedAt = ts
	e.UpdatedAt = ts

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entries (id, notebook_id, title, content, summary, type, source,
			                      word_count, version, is_pinned, is_archived, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 0, ?, ?)`,
			e.ID, e.NotebookID, e.Title, e.Content, e.Summary, e.Type, e.Source,
			e.WordCount, ts, ts)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		if err := s.setEntryTags(ctx, tx, e.ID, tags); err != nil {
			return err
		}

		return s.insertVersionRow(ctx, tx, e, changeSummary, e.Source)
	})
	if err != nil {
		return err
	}

	slog.Info("entry created", "id", e.ID, "title", e.Title, "words", e.WordCount)
	return nil
}

// UpdateEntry applies upd if and only if the stored version still equals
// expectedVersion, bumps the version by one, and appends the version row.
// Returns (nil, nil) when the conditional write matched no row, meaning
// the entry is gone or its version moved.
func (s *Store) UpdateEntry(ctx context.Context, id string, expectedVersion int, upd EntryUpdate) (*Entry, error) {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{now()}

	appendSet := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Title != nil {
		appendSet("title", *upd.Title)
	}
	if upd.Content != nil {
		appendSet("content", *upd.Content)
	}
	if upd.Summary != nil {
		appendSet("summary", *upd.Summary)
	}
	if upd.NotebookID != nil {
		appendSet("notebook_id", *upd.NotebookID)
	}
	if upd.Type != nil {
		appendSet("type", *upd.Type)
	}
	if upd.WordCount != nil {
		appendSet("word_count", *upd.WordCount)
	}
	args = append(args, id, expectedVersion)

	var updated *Entry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// The compare-and-swap: condition on both id and version, then
		// verify a row was actually hit.
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET `+strings.Join(sets, ", ")+` WHERE id = ? AND version = ?`,
			args...)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if upd.Tags != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM entry_tags WHERE entry_id = ?`, id); err != nil {
				return fmt.Errorf("clear entry tags: %w", err)
			}
			if err := s.setEntryTags(ctx, tx, id, upd.Tags); err != nil {
				return err
			}
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+entryColumns+`
			 FROM entries e JOIN notebooks n ON n.id = e.notebook_id
			 WHERE e.id = ?`, id)
		updated, err = scanEntry(row)
		if err != nil {
			return fmt.Errorf("reload entry: %w", err)
		}

		return s.insertVersionRow(ctx, tx, updated, upd.ChangeSummary, upd.Source)
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		slog.Info("entry updated", "id", id, "version", updated.Version, "change", upd.ChangeSummary)
	}
	return updated, nil
}

// insertVersionRow appends the audit row for the version e is now at.
// source is the mutation's originator, not the entry's creation source.
func (s *Store) insertVersionRow(ctx context.Context, tx *sql.Tx, e *Entry, changeSummary, source string) error {
	if source == "" {
		source = "manual"
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO entry_versions (id, entry_id, version, title, content, summary,
		                             change_summary, source, word_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.NewID(), e.ID, e.Version, e.Title, e.Content, e.Summary,
		changeSummary, source, e.WordCount, now())
	if err != nil {
		return fmt.Errorf("insert version row: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry with its tag links, relations and version
// history. Agent log rows are kept. Reports whether a row was deleted.
func (s *Store) DeleteEntry(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM entry_tags WHERE entry_id = ?`,
			`DELETE FROM entry_versions WHERE entry_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete entry children: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entry_relations WHERE from_entry_id = ? OR to_entry_id = ?`, id, id); err != nil {
			return fmt.Errorf("delete entry relations: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}
