package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertCheckpoint stores an immutable session snapshot and appends its
// creation event. There is deliberately no update method: checkpoints are
// only ever superseded by newer ones.
func (t *Tx) InsertCheckpoint(cp *Checkpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO checkpoints (id, session_id, name, description, state, last_message_id, message_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.Name, cp.Description, cp.State,
		cp.LastMessageID, cp.MessageCount, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	// The event carries the whole checkpoint: replaying the log must be
	// able to rebuild it, state blob included, without reading this row.
	_, err = t.AppendEvent(EventCheckpointCreated, EntityCheckpoint, cp.ID, "", cp)
	return err
}

// GetCheckpoint returns a checkpoint by id, or ErrNotFound.
func (t *Tx) GetCheckpoint(id string) (*Checkpoint, error) {
	row := t.tx.QueryRowContext(t.ctx, checkpointSelect+` WHERE id = ?`, id)
	return scanCheckpoint(row)
}

// SessionCheckpoints returns a session's checkpoints ordered oldest first.
func (t *Tx) SessionCheckpoints(sessionID string) ([]*Checkpoint, error) {
	rows, err := t.tx.QueryContext(t.ctx, checkpointSelect+`
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// ListCheckpoints is the read-path variant of Tx.SessionCheckpoints.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	var out []*Checkpoint
	err := s.View(ctx, func(t *Tx) error {
		var err error
		out, err = t.SessionCheckpoints(sessionID)
		return err
	})
	return out, err
}

// GetCheckpoint is the read-path variant of Tx.GetCheckpoint.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, checkpointSelect+` WHERE id = ?`, id)
	return scanCheckpoint(row)
}

const checkpointSelect = `
	SELECT id, session_id, name, description, state, last_message_id, message_count, created_at
	FROM checkpoints`

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var desc, lastMsg sql.NullString
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Name, &desc, &cp.State,
		&lastMsg, &cp.MessageCount, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	cp.Description = nullString(desc)
	cp.LastMessageID = nullString(lastMsg)
	return &cp, nil
}
