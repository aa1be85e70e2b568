package store

import (
	"context"
	"fmt"
)

// Stats is an aggregate snapshot of the knowledge base.
type Stats struct {
	EntryCount     int            `json:"entryCount"`
	TotalWordCount int            `json:"totalWordCount"`
	NotebookCount  int            `json:"notebookCount"`
	TagCount       int            `json:"tagCount"`
	EntriesByType  map[string]int `json:"entriesByType"`
	AgentOps30d    int            `json:"agentOps30d"`
}

// GetStats computes aggregate counts over non-archived data.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{EntriesByType: map[string]int{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(word_count), 0)
		 FROM entries WHERE is_archived = 0`).
		Scan(&stats.EntryCount, &stats.TotalWordCount)
	if err != nil {
		return nil, fmt.Errorf("entry stats: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notebooks WHERE is_archived = 0`).
		Scan(&stats.NotebookCount); err != nil {
		return nil, fmt.Errorf("notebook count: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tags`).Scan(&stats.TagCount); err != nil {
		return nil, fmt.Errorf("tag count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM entries WHERE is_archived = 0 GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("entries by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		stats.EntriesByType[typ] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_logs WHERE created_at >= ?`, cutoff30d()).
		Scan(&stats.AgentOps30d); err != nil {
		return nil, fmt.Errorf("agent op count: %w", err)
	}

	return stats, nil
}
