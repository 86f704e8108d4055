package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateWorkspace inserts a workspace and appends its creation event.
func (t *Tx) CreateWorkspace(ws *Workspace) error {
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	meta, err := marshalMeta(ws.Metadata)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO workspaces (id, name, path, provider, git_remote, git_branch, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.Name, nullable(ws.Path), nullable(ws.Provider),
		nullable(ws.GitRemote), nullable(ws.GitBranch), meta, now, now,
	)
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	_, err = t.AppendEvent(EventWorkspaceCreated, EntityWorkspace, ws.ID, "", ws)
	return err
}

// FindWorkspaceByPath returns the workspace for a path/provider pair, or
// ErrNotFound. Workspaces are created on first harvest referencing a new
// pair, so this is the identity lookup for that rule.
func (t *Tx) FindWorkspaceByPath(path, providerID string) (*Workspace, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, name, path, provider, git_remote, git_branch, metadata, created_at, updated_at
		FROM workspaces
		WHERE path = ? AND provider = ?`,
		path, providerID,
	)
	return scanWorkspace(row)
}

// GetWorkspace returns a workspace by id, or ErrNotFound.
func (t *Tx) GetWorkspace(id string) (*Workspace, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, name, path, provider, git_remote, git_branch, metadata, created_at, updated_at
		FROM workspaces WHERE id = ?`,
		id,
	)
	return scanWorkspace(row)
}

// DeleteWorkspace removes a workspace. Its sessions survive with a nulled
// workspace reference (FK ON DELETE SET NULL).
func (t *Tx) DeleteWorkspace(id string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWorkspaces returns all workspaces ordered by name.
func (t *Tx) ListWorkspaces() ([]*Workspace, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, name, path, provider, git_remote, git_branch, metadata, created_at, updated_at
		FROM workspaces ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// ListWorkspaces is the read-path variant of Tx.ListWorkspaces.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	var out []*Workspace
	err := s.View(ctx, func(t *Tx) error {
		var err error
		out, err = t.ListWorkspaces()
		return err
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*Workspace, error) {
	var ws Workspace
	var path, providerID, gitRemote, gitBranch sql.NullString
	var meta string
	err := row.Scan(&ws.ID, &ws.Name, &path, &providerID, &gitRemote,
		&gitBranch, &meta, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}

	ws.Path = path.String
	ws.Provider = providerID.String
	ws.GitRemote = gitRemote.String
	ws.GitBranch = gitBranch.String
	if err := unmarshalMeta(meta, &ws.Metadata); err != nil {
		return nil, err
	}
	return &ws, nil
}

func marshalMeta(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func unmarshalMeta(raw string, dst *map[string]string) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
