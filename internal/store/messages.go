package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HashContent returns the content hash used for dedup and re-harvest
// diffing: sha256 over role and content.
func HashContent(role, content string) string {
	h := sha256.New()
	h.Write([]byte(role))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

var validRoles = map[string]bool{
	"user": true, "assistant": true, "system": true, "tool": true,
}

// InsertMessage appends one message to a branch. Enforced before commit:
// valid role, parent in the same session, gap-free sequence numbers per
// (session, branch). Parents always exist before their children, so parent
// links cannot form cycles. The full-text row is written in the same
// transaction.
//
// The caller appends the unit of work's event; a batch of inserted messages
// is one logical mutation.
func (t *Tx) InsertMessage(msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.BranchLabel == "" {
		msg.BranchLabel = MainBranch
	}
	if !validRoles[msg.Role] {
		return integrityf("message %s: invalid role %q", msg.ID, msg.Role)
	}
	if msg.ContentHash == "" {
		msg.ContentHash = HashContent(msg.Role, msg.Content)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if msg.ParentID != nil {
		if *msg.ParentID == msg.ID {
			return integrityf("message %s: parent references itself", msg.ID)
		}
		var parentSession string
		err := t.tx.QueryRowContext(t.ctx,
			`SELECT session_id FROM messages WHERE id = ?`, *msg.ParentID,
		).Scan(&parentSession)
		if errors.Is(err, sql.ErrNoRows) {
			return integrityf("message %s: parent %s does not exist", msg.ID, *msg.ParentID)
		}
		if err != nil {
			return fmt.Errorf("check parent: %w", err)
		}
		if parentSession != msg.SessionID {
			return integrityf("message %s: parent %s belongs to another session", msg.ID, *msg.ParentID)
		}
	}

	// Gap-free sequence per (session, branch): a branch's first message may
	// start at any position (forks start at the diverging position), every
	// later one must follow its predecessor directly.
	var last sql.NullInt64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT MAX(sequence_num) FROM messages
		WHERE session_id = ? AND branch_label = ?`,
		msg.SessionID, msg.BranchLabel,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("read branch tail: %w", err)
	}
	if last.Valid && msg.SequenceNum != int(last.Int64)+1 {
		return integrityf("message %s: sequence %d breaks gap-free order (expected %d)",
			msg.ID, msg.SequenceNum, last.Int64+1)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO messages (id, session_id, role, content, model, token_count,
			parent_id, branch_label, sequence_num, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Model, msg.TokenCount,
		msg.ParentID, msg.BranchLabel, msg.SequenceNum, msg.ContentHash, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO messages_fts (message_id, session_id, content) VALUES (?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Content,
	)
	if err != nil {
		return fmt.Errorf("index message: %w", err)
	}
	return nil
}

// AddAttachment stores attachment data with its owning message.
func (t *Tx) AddAttachment(att *Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.Checksum == "" {
		content := ""
		if att.Content != nil {
			content = *att.Content
		} else if att.URL != nil {
			content = *att.URL
		}
		sum := sha256.Sum256([]byte(content))
		att.Checksum = hex.EncodeToString(sum[:])
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO message_attachments (id, message_id, name, mime_type, content, url, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.MessageID, att.Name, att.MimeType, att.Content, att.URL,
		att.Checksum, att.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add attachment: %w", err)
	}
	return nil
}

// MessageAttachments returns a message's attachments in creation order.
func (t *Tx) MessageAttachments(messageID string) ([]*Attachment, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, message_id, name, mime_type, content, url, checksum, created_at
		FROM message_attachments
		WHERE message_id = ?
		ORDER BY created_at ASC, id ASC`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("message attachments: %w", err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		var a Attachment
		var mime, content, url sql.NullString
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Name, &mime, &content, &url,
			&a.Checksum, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.MimeType = nullString(mime)
		a.Content = nullString(content)
		a.URL = nullString(url)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// BranchMessages returns a branch's messages in sequence order.
func (t *Tx) BranchMessages(sessionID, branch string) ([]*Message, error) {
	rows, err := t.tx.QueryContext(t.ctx, messageSelect+`
		WHERE session_id = ? AND branch_label = ?
		ORDER BY sequence_num ASC`,
		sessionID, branch,
	)
	if err != nil {
		return nil, fmt.Errorf("branch messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// LivePath returns the messages on the session's current path in order:
// the head of the current branch walked back to the root.
func (t *Tx) LivePath(sessionID string) ([]*Message, error) {
	sess, err := t.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	var headID sql.NullString
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT id FROM messages
		WHERE session_id = ? AND branch_label = ?
		ORDER BY sequence_num DESC LIMIT 1`,
		sessionID, sess.CurrentBranch,
	).Scan(&headID)
	if errors.Is(err, sql.ErrNoRows) || !headID.Valid {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("branch head: %w", err)
	}

	rows, err := t.tx.QueryContext(t.ctx, `
		WITH RECURSIVE path(id, parent_id) AS (
			SELECT id, parent_id FROM messages WHERE id = ?
			UNION ALL
			SELECT m.id, m.parent_id FROM messages m JOIN path p ON m.id = p.parent_id
		)
		`+messageSelect+`
		WHERE id IN (SELECT id FROM path)
		ORDER BY sequence_num ASC`,
		headID.String,
	)
	if err != nil {
		return nil, fmt.Errorf("live path: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// AllMessages returns every live message of a session across branches,
// ordered by branch then sequence. Checkpoints snapshot this.
func (t *Tx) AllMessages(sessionID string) ([]*Message, error) {
	rows, err := t.tx.QueryContext(t.ctx, messageSelect+`
		WHERE session_id = ?
		ORDER BY branch_label ASC, sequence_num ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("all messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// Branches lists a session's branch labels, main first, then by creation.
func (t *Tx) Branches(sessionID string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT branch_label, MIN(created_at) AS first
		FROM messages WHERE session_id = ?
		GROUP BY branch_label
		ORDER BY CASE WHEN branch_label = ? THEN 0 ELSE 1 END, first ASC`,
		sessionID, MainBranch,
	)
	if err != nil {
		return nil, fmt.Errorf("branches: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		// MIN(created_at) has no declared column type, so the driver
		// returns it as raw text rather than time.Time; the value is
		// only used for SQL-side ordering and is discarded here.
		var first any
		if err := rows.Scan(&label, &first); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, label)
	}
	return out, rows.Err()
}

// NewBranchLabel derives a branch label from the hash of the message a fork
// diverges at: "fork-" plus the hash's first 8 hex chars, suffixed with a
// counter if the session already has a branch by that name.
func (t *Tx) NewBranchLabel(sessionID, divergedHash string) (string, error) {
	short := divergedHash
	if len(short) > 8 {
		short = short[:8]
	}
	base := "fork-" + short

	label := base
	for n := 2; ; n++ {
		var exists int
		err := t.tx.QueryRowContext(t.ctx, `
			SELECT COUNT(*) FROM messages
			WHERE session_id = ? AND branch_label = ?`,
			sessionID, label,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check branch label: %w", err)
		}
		if exists == 0 {
			return label, nil
		}
		label = fmt.Sprintf("%s-%d", base, n)
	}
}

// SessionMessages is the read-path variant of Tx.AllMessages.
func (s *Store) SessionMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+`
		WHERE session_id = ?
		ORDER BY branch_label ASC, sequence_num ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

const messageSelect = `
	SELECT id, session_id, role, content, model, token_count, parent_id,
		branch_label, sequence_num, content_hash, created_at
	FROM messages`

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		var m Message
		var model, parentID sql.NullString
		var tokens sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &model,
			&tokens, &parentID, &m.BranchLabel, &m.SequenceNum, &m.ContentHash,
			&m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Model = nullString(model)
		m.ParentID = nullString(parentID)
		if tokens.Valid {
			v := int(tokens.Int64)
			m.TokenCount = &v
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
