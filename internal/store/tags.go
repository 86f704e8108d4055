package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnsureTag returns the tag named name, creating it if needed.
func (t *Tx) EnsureTag(name string) (*Tag, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, created_at FROM tags WHERE name = ?`, name)

	var tag Tag
	err := row.Scan(&tag.ID, &tag.Name, &tag.CreatedAt)
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup tag: %w", err)
	}

	tag = Tag{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO tags (id, name, created_at) VALUES (?, ?, ?)`,
		tag.ID, tag.Name, tag.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &tag, nil
}

// TagSession attaches a tag to a session. Already-tagged is a no-op
// (unique join on the pair).
func (t *Tx) TagSession(sessionID, tagID string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO session_tags (session_id, tag_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`,
		sessionID, tagID,
	)
	if err != nil {
		return fmt.Errorf("tag session: %w", err)
	}
	return nil
}

// TagDocument attaches a tag to a document.
func (t *Tx) TagDocument(documentID, tagID string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO document_tags (document_id, tag_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`,
		documentID, tagID,
	)
	if err != nil {
		return fmt.Errorf("tag document: %w", err)
	}
	return nil
}

// TagWorkspace attaches a tag to a workspace.
func (t *Tx) TagWorkspace(workspaceID, tagID string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO workspace_tags (workspace_id, tag_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`,
		workspaceID, tagID,
	)
	if err != nil {
		return fmt.Errorf("tag workspace: %w", err)
	}
	return nil
}

// SessionTags returns the tag names attached to a session, sorted.
func (s *Store) SessionTags(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN session_tags st ON st.tag_id = t.id
		WHERE st.session_id = ?
		ORDER BY t.name ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("session tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
