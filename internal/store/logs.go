package store

import (
	"context"
	"fmt"
	"log/slog"
)

// AgentLog records one agent-originated operation for the activity feed.
type AgentLog struct {
	ID           string `json:"id"`
	Action       string `json:"action"`
	EntryID      string `json:"entryId,omitempty"`
	EntryTitle   string `json:"entryTitle,omitempty"`
	Summary      string `json:"summary,omitempty"`
	AddedWords   int    `json:"addedWords"`
	RemovedWords int    `json:"removedWords"`
	CreatedAt    string `json:"createdAt"`
}

// InsertAgentLog appends one agent log row.
func (s *Store) InsertAgentLog(ctx context.Context, l AgentLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_logs (id, action, entry_id, entry_title, summary,
		                         added_words, removed_words, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.NewID(), l.Action, l.EntryID, l.EntryTitle, l.Summary,
		l.AddedWords, l.RemovedWords, now())
	if err != nil {
		return fmt.Errorf("insert agent log: %w", err)
	}
	slog.Debug("agent log", "action", l.Action, "entry", l.EntryID, "summary", l.Summary)
	return nil
}

// ListAgentLogs returns agent activity from the last 30 days, newest
// first, optionally filtered by action, plus the total match count.
func (s *Store) ListAgentLogs(ctx context.Context, action string, page, pageSize int) ([]AgentLog, int, error) {
	where := `created_at >= ?`
	args := []any{cutoff30d()}
	if action != "" {
		where += ` AND action = ?`
		args = append(args, action)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agent logs: %w", err)
	}

	page = max(1, page)
	if pageSize <= 0 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, entry_id, entry_title, summary, added_words, removed_words, created_at
		 FROM agent_logs WHERE `+where+`
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agent logs: %w", err)
	}
	defer rows.Close()

	var logs []AgentLog
	for rows.Next() {
		var l AgentLog
		if err := rows.Scan(&l.ID, &l.Action, &l.EntryID, &l.EntryTitle,
			&l.Summary, &l.AddedWords, &l.RemovedWords, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan agent log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}
