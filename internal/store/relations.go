package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrRelationExists is returned when the same relation is added twice.
var ErrRelationExists = errors.New("relation already exists")

// Relation links the queried entry to another entry, in either direction.
type Relation struct {
	RelationID    string `json:"relationId"`
	TargetID      string `json:"targetId"`
	TargetTitle   string `json:"targetTitle"`
	TargetSummary string `json:"targetSummary"`
	Type          string `json:"type"`
	Direction     string `json:"direction"` // outgoing | incoming
	CreatedAt     string `json:"createdAt"`
}

// ListRelations returns all relations touching the entry, outgoing first.
func (s *Store) ListRelations(ctx context.Context, entryID string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, e.id, e.title, e.summary, r.type, 'outgoing', r.created_at
		 FROM entry_relations r JOIN entries e ON e.id = r.to_entry_id
		 WHERE r.from_entry_id = ?
		 UNION ALL
		 SELECT r.id, e.id, e.title, e.summary, r.type, 'incoming', r.created_at
		 FROM entry_relations r JOIN entries e ON e.id = r.from_entry_id
		 WHERE r.to_entry_id = ?`, entryID, entryID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var relations []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.RelationID, &r.TargetID, &r.TargetTitle,
			&r.TargetSummary, &r.Type, &r.Direction, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// CreateRelation links fromID to toID. Both entries must exist; duplicate
// links yield ErrRelationExists.
func (s *Store) CreateRelation(ctx context.Context, fromID, toID, relType string) (string, error) {
	if relType == "" {
		relType = "related"
	}
	id := s.NewID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entry_relations (id, from_entry_id, to_entry_id, type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, fromID, toID, relType, now())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", ErrRelationExists
		}
		return "", fmt.Errorf("insert relation: %w", err)
	}
	return id, nil
}

// DeleteRelation removes one relation by id, reporting whether it existed.
func (s *Store) DeleteRelation(ctx context.Context, relationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entry_relations WHERE id = ?`, relationID)
	if err != nil {
		return false, fmt.Errorf("delete relation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
