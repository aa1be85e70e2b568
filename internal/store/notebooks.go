package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrDefaultNotebook is returned when deleting the default notebook.
var ErrDefaultNotebook = errors.New("the default notebook cannot be deleted")

// Notebook is a notebook row plus its entry count when listed.
type Notebook struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IsDefault   bool   `json:"isDefault"`
	EntryCount  int    `json:"entryCount"`
	CreatedAt   string `json:"createdAt"`
}

// ListNotebooks returns non-archived notebooks, default first.
func (s *Store) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT nb.id, nb.name, nb.description, nb.icon, nb.is_default, nb.created_at,
		        (SELECT COUNT(*) FROM entries e WHERE e.notebook_id = nb.id AND e.is_archived = 0)
		 FROM notebooks nb
		 WHERE nb.is_archived = 0
		 ORDER BY nb.is_default DESC, nb.sort_order, nb.name`)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	var notebooks []Notebook
	for rows.Next() {
		var nb Notebook
		var isDefault int
		if err := rows.Scan(&nb.ID, &nb.Name, &nb.Description, &nb.Icon,
			&isDefault, &nb.CreatedAt, &nb.EntryCount); err != nil {
			return nil, fmt.Errorf("scan notebook: %w", err)
		}
		nb.IsDefault = isDefault != 0
		notebooks = append(notebooks, nb)
	}
	return notebooks, rows.Err()
}

// GetNotebook fetches one notebook. Returns (nil, nil) when absent.
func (s *Store) GetNotebook(ctx context.Context, id string) (*Notebook, error) {
	var nb Notebook
	var isDefault int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, icon, is_default, created_at
		 FROM notebooks WHERE id = ?`, id).
		Scan(&nb.ID, &nb.Name, &nb.Description, &nb.Icon, &isDefault, &nb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notebook: %w", err)
	}
	nb.IsDefault = isDefault != 0
	return &nb, nil
}

// CreateNotebook inserts a new notebook and returns it.
func (s *Store) CreateNotebook(ctx context.Context, name, description, icon string) (*Notebook, error) {
	if icon == "" {
		icon = "📓"
	}
	nb := &Notebook{
		ID:          s.NewID(),
		Name:        name,
		Description: description,
		Icon:        icon,
		CreatedAt:   now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notebooks (id, name, description, icon, is_default, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		nb.ID, nb.Name, nb.Description, nb.Icon, nb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert notebook: %w", err)
	}
	return nb, nil
}

// UpdateNotebook overwrites the non-empty fields of a notebook. Reports
// whether the notebook exists.
func (s *Store) UpdateNotebook(ctx context.Context, id string, name, description, icon *string) (bool, error) {
	nb, err := s.GetNotebook(ctx, id)
	if err != nil {
		return false, err
	}
	if nb == nil {
		return false, nil
	}

	if name != nil {
		nb.Name = *name
	}
	if description != nil {
		nb.Description = *description
	}
	if icon != nil {
		nb.Icon = *icon
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE notebooks SET name = ?, description = ?, icon = ? WHERE id = ?`,
		nb.Name, nb.Description, nb.Icon, id)
	if err != nil {
		return false, fmt.Errorf("update notebook: %w", err)
	}
	return true, nil
}

// DeleteNotebook removes a notebook after moving its entries to the
// default notebook. Deleting the default notebook is refused.
func (s *Store) DeleteNotebook(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var isDefault int
		err := tx.QueryRowContext(ctx,
			`SELECT is_default FROM notebooks WHERE id = ?`, id).Scan(&isDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get notebook: %w", err)
		}
		if isDefault != 0 {
			return ErrDefaultNotebook
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET notebook_id = ? WHERE notebook_id = ?`,
			DefaultNotebookID, id); err != nil {
			return fmt.Errorf("move entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notebooks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete notebook: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}
