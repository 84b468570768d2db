package store

import (
	"context"
	"database/sql"
	"time"

	julieerrors "github.com/anortham/julie-go/internal/errors"
)

// RegisterWorkspace inserts or touches a workspace row, used by `julie
// workspace add` and by first-run indexing to claim a root.
func (s *Store) RegisterWorkspace(ctx context.Context, ws *Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := ws.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Unix(0, 0)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces(id, root, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET root = excluded.root`,
		ws.ID, ws.Root, createdAt.Unix())
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to register workspace "+ws.ID, err)
	}
	return nil
}

// GetWorkspace returns a single workspace by id, or nil if not found.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := &Workspace{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, root, created_at FROM workspaces WHERE id = ?`, id).
		Scan(&ws.ID, &ws.Root, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to get workspace "+id, err)
	}
	ws.CreatedAt = time.Unix(createdAt, 0)
	return ws, nil
}

// ListWorkspaces returns every registered workspace, oldest first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, root, created_at FROM workspaces ORDER BY created_at`)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to list workspaces", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		ws := &Workspace{}
		var createdAt int64
		if err := rows.Scan(&ws.ID, &ws.Root, &createdAt); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan workspace", err)
		}
		ws.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, ws)
	}
	return out, rows.Err()
}

// RemoveWorkspace deletes a workspace row. It does not cascade into
// files/symbols: those belong to whichever store database backs the
// workspace, and removing the workspace registration does not delete that
// database file.
func (s *Store) RemoveWorkspace(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id); err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to remove workspace "+id, err)
	}
	return nil
}
