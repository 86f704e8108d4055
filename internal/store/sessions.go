package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession inserts a session and appends its creation event. Derived
// counts start at zero; message writes maintain them.
func (t *Tx) CreateSession(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CurrentBranch == "" {
		sess.CurrentBranch = MainBranch
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	sess.MessageCount = 0
	sess.TokenCount = 0

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO sessions (id, workspace_id, provider, provider_session_id, title, model,
			message_count, token_count, archived, is_agentic, parent_session_id, current_branch,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, sess.Provider, sess.ProviderSessionID,
		sess.Title, sess.Model, boolInt(sess.Archived), boolInt(sess.IsAgentic),
		sess.ParentSessionID, sess.CurrentBranch, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	_, err = t.AppendEvent(EventSessionCreated, EntitySession, sess.ID, "", sess)
	return err
}

// UpdateSessionMeta updates title/model/archived/agentic flags and appends
// an update event. Derived counts are not touchable here.
func (t *Tx) UpdateSessionMeta(sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE sessions
		SET title = ?, model = ?, archived = ?, is_agentic = ?, workspace_id = ?, updated_at = ?
		WHERE id = ?`,
		sess.Title, sess.Model, boolInt(sess.Archived), boolInt(sess.IsAgentic),
		sess.WorkspaceID, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = t.AppendEvent(EventSessionUpdated, EntitySession, sess.ID, "", sess)
	return err
}

// DeleteSession removes a session and everything it owns: messages,
// attachments, checkpoints, import sources, tag joins (FK cascade) and the
// messages' full-text rows (explicit, same transaction).
func (t *Tx) DeleteSession(id string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM messages_fts WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session fts: %w", err)
	}

	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = t.AppendEvent(EventSessionDeleted, EntitySession, id, "", nil)
	return err
}

// GetSession returns a session by id, or ErrNotFound.
func (t *Tx) GetSession(id string) (*Session, error) {
	row := t.tx.QueryRowContext(t.ctx, sessionSelect+` WHERE id = ?`, id)
	return scanSession(row)
}

// FindSessionByIdentity resolves a session by its provider-native identity
// within a workspace. workspaceID nil matches sessions without a workspace.
func (t *Tx) FindSessionByIdentity(workspaceID *string, providerID, nativeID string) (*Session, error) {
	query := sessionSelect + ` WHERE provider = ? AND provider_session_id = ?`
	args := []any{providerID, nativeID}
	if workspaceID != nil {
		query += ` AND workspace_id = ?`
		args = append(args, *workspaceID)
	} else {
		query += ` AND workspace_id IS NULL`
	}

	row := t.tx.QueryRowContext(t.ctx, query, args...)
	return scanSession(row)
}

// FindSessionByHeuristic is the fallback identity lookup for providers with
// no stable session id: title + model + earliest-turn timestamp.
func (t *Tx) FindSessionByHeuristic(workspaceID *string, providerID, title, model string, earliest time.Time) (*Session, error) {
	query := sessionSelect + `
		WHERE provider = ? AND provider_session_id IS NULL
		AND title = ? AND model = ? AND created_at = ?`
	args := []any{providerID, title, model, earliest.UTC()}
	if workspaceID != nil {
		query += ` AND workspace_id = ?`
		args = append(args, *workspaceID)
	} else {
		query += ` AND workspace_id IS NULL`
	}

	row := t.tx.QueryRowContext(t.ctx, query, args...)
	return scanSession(row)
}

// SetCurrentBranch moves the session's live path to branch.
func (t *Tx) SetCurrentBranch(sessionID, branch string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE sessions SET current_branch = ?, updated_at = ? WHERE id = ?`,
		branch, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set current branch: %w", err)
	}
	return nil
}

// RecomputeSessionDerived rewrites message_count and token_count from the
// session's live path: the head of the current branch walked back through
// parent links, so counts reflect the shared prefix plus the current
// branch's messages. Runs inside every message-mutating unit of work.
func (t *Tx) RecomputeSessionDerived(sessionID string) error {
	var branch string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT current_branch FROM sessions WHERE id = ?`, sessionID,
	).Scan(&branch)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read current branch: %w", err)
	}

	var headID sql.NullString
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT id FROM messages
		WHERE session_id = ? AND branch_label = ?
		ORDER BY sequence_num DESC LIMIT 1`,
		sessionID, branch,
	).Scan(&headID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read branch head: %w", err)
	}

	var count, tokens int
	if headID.Valid {
		err = t.tx.QueryRowContext(t.ctx, `
			WITH RECURSIVE path(id, parent_id, token_count) AS (
				SELECT id, parent_id, token_count FROM messages WHERE id = ?
				UNION ALL
				SELECT m.id, m.parent_id, m.token_count
				FROM messages m JOIN path p ON m.id = p.parent_id
			)
			SELECT COUNT(*), COALESCE(SUM(token_count), 0) FROM path`,
			headID.String,
		).Scan(&count, &tokens)
		if err != nil {
			return fmt.Errorf("walk live path: %w", err)
		}
	}

	_, err = t.tx.ExecContext(t.ctx, `
		UPDATE sessions SET message_count = ?, token_count = ?, updated_at = ? WHERE id = ?`,
		count, tokens, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("write derived counts: %w", err)
	}
	return nil
}

// ListSessions returns sessions, optionally filtered by workspace, newest
// update first.
func (t *Tx) ListSessions(workspaceID string) ([]*Session, error) {
	query := sessionSelect
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListSessions is the read-path variant of Tx.ListSessions.
func (s *Store) ListSessions(ctx context.Context, workspaceID string) ([]*Session, error) {
	var out []*Session
	err := s.View(ctx, func(t *Tx) error {
		var err error
		out, err = t.ListSessions(workspaceID)
		return err
	})
	return out, err
}

// GetSession is the read-path variant of Tx.GetSession.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, id)
	return scanSession(row)
}

const sessionSelect = `
	SELECT id, workspace_id, provider, provider_session_id, title, model,
		message_count, token_count, archived, is_agentic, parent_session_id,
		current_branch, created_at, updated_at
	FROM sessions`

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var workspaceID, nativeID, parentID sql.NullString
	var archived, agentic int
	err := row.Scan(&sess.ID, &workspaceID, &sess.Provider, &nativeID,
		&sess.Title, &sess.Model, &sess.MessageCount, &sess.TokenCount,
		&archived, &agentic, &parentID, &sess.CurrentBranch,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.WorkspaceID = nullString(workspaceID)
	sess.ProviderSessionID = nullString(nativeID)
	sess.ParentSessionID = nullString(parentID)
	sess.Archived = archived != 0
	sess.IsAgentic = agentic != 0
	return &sess, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
