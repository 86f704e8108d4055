// Package normalize maps provider session records onto the canonical model:
// it resolves identity, inserts new sessions, and merges re-harvested ones,
// forking a branch when history diverged instead of overwriting it.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/nervosys/chasm/internal/logging"
	"github.com/nervosys/chasm/internal/provider"
	"github.com/nervosys/chasm/internal/store"
)

// ErrEmptyRecord marks a record with no turns; the harvester skips these.
var ErrEmptyRecord = errors.New("record has no turns")

// ErrIdentityConflict reports two records claiming one provider session id
// with content that cannot be reconciled. Divergence is normally resolved
// by branching, never by dropping data; this surfaces only when writing
// the fork branch itself fails, wrapping the underlying cause.
var ErrIdentityConflict = errors.New("identity conflict")

// Result describes what one record did to the store.
type Result struct {
	SessionID string
	// Created is true when a new session was inserted.
	Created bool
	// Unchanged is true for an idempotent re-harvest: zero writes.
	Unchanged bool
	// NewBranch holds the branch label when divergence forked one.
	NewBranch string
	// Appended counts messages written in this unit of work.
	Appended int
}

// Apply merges one provider record into the store inside the caller's unit
// of work. All writes, derived-field updates, and events commit atomically.
func Apply(t *store.Tx, workspaceID *string, rec provider.SessionRecord) (*Result, error) {
	if len(rec.Turns) == 0 {
		return nil, ErrEmptyRecord
	}

	sess, err := resolveIdentity(t, workspaceID, rec)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if sess == nil {
		return insertSession(t, workspaceID, rec)
	}
	return mergeSession(t, sess, rec)
}

// resolveIdentity looks up an existing session for the record: by
// (provider, provider_session_id) when the provider has stable ids, else by
// the title+model+earliest-timestamp heuristic.
func resolveIdentity(t *store.Tx, workspaceID *string, rec provider.SessionRecord) (*store.Session, error) {
	if rec.NativeID != "" {
		return t.FindSessionByIdentity(workspaceID, rec.Provider, rec.NativeID)
	}
	return t.FindSessionByHeuristic(workspaceID, rec.Provider, rec.Title, rec.Model, earliestTimestamp(rec))
}

func insertSession(t *store.Tx, workspaceID *string, rec provider.SessionRecord) (*Result, error) {
	sess := &store.Session{
		WorkspaceID: workspaceID,
		Provider:    rec.Provider,
		Title:       rec.Title,
		Model:       rec.Model,
		CreatedAt:   earliestTimestamp(rec),
	}
	if rec.NativeID != "" {
		id := rec.NativeID
		sess.ProviderSessionID = &id
	}
	if err := t.CreateSession(sess); err != nil {
		return nil, err
	}

	written, err := writeTurns(t, sess.ID, store.MainBranch, nil, 0, rec.Turns)
	if err != nil {
		return nil, err
	}
	if err := finishWrite(t, sess.ID, rec, store.MainBranch, store.EventMessagesAppended, written); err != nil {
		return nil, err
	}

	logging.L().Debugw("session inserted",
		"session", sess.ID, "provider", rec.Provider, "messages", len(written))
	return &Result{SessionID: sess.ID, Created: true, Appended: len(written)}, nil
}

// mergeSession diffs the record's turns against the session's live path by
// position and content hash.
//
//   - identical (or a matching prefix of) the stored path: no-op
//   - stored path plus new tail turns: append to the current branch
//   - divergence at some position: fork a new branch there; the old branch
//     is left intact (non-destructive history)
func mergeSession(t *store.Tx, sess *store.Session, rec provider.SessionRecord) (*Result, error) {
	path, err := t.LivePath(sess.ID)
	if err != nil {
		return nil, err
	}

	divergeAt := -1
	limit := len(rec.Turns)
	if len(path) < limit {
		limit = len(path)
	}
	for i := 0; i < limit; i++ {
		if store.HashContent(rec.Turns[i].Role, rec.Turns[i].Content) != path[i].ContentHash {
			divergeAt = i
			break
		}
	}

	if divergeAt < 0 {
		if len(rec.Turns) <= len(path) {
			// Identical or truncated source: history is never shortened.
			return &Result{SessionID: sess.ID, Unchanged: true}, nil
		}
		return appendTail(t, sess, rec, path)
	}
	return forkBranch(t, sess, rec, path, divergeAt)
}

func appendTail(t *store.Tx, sess *store.Session, rec provider.SessionRecord, path []*store.Message) (*Result, error) {
	var parent *store.Message
	nextSeq := 0
	if len(path) > 0 {
		parent = path[len(path)-1]
		nextSeq = parent.SequenceNum + 1
	}

	written, err := writeTurns(t, sess.ID, sess.CurrentBranch, parent, nextSeq, rec.Turns[len(path):])
	if err != nil {
		return nil, err
	}
	if err := finishWrite(t, sess.ID, rec, sess.CurrentBranch, store.EventMessagesAppended, written); err != nil {
		return nil, err
	}
	if err := maybeUpdateMeta(t, sess, rec); err != nil {
		return nil, err
	}

	logging.L().Debugw("session extended",
		"session", sess.ID, "branch", sess.CurrentBranch, "appended", len(written))
	return &Result{SessionID: sess.ID, Appended: len(written)}, nil
}

func forkBranch(t *store.Tx, sess *store.Session, rec provider.SessionRecord, path []*store.Message, divergeAt int) (*Result, error) {
	divergedHash := store.HashContent(rec.Turns[divergeAt].Role, rec.Turns[divergeAt].Content)
	label, err := t.NewBranchLabel(sess.ID, divergedHash)
	if err != nil {
		return nil, err
	}

	var parent *store.Message
	if divergeAt > 0 {
		parent = path[divergeAt-1]
	}

	written, err := writeTurns(t, sess.ID, label, parent, divergeAt, rec.Turns[divergeAt:])
	if err != nil {
		// Divergent content the store refuses to branch cannot be merged
		// or silently dropped.
		return nil, fmt.Errorf("%w: session %s at turn %d: %w", ErrIdentityConflict, sess.ID, divergeAt, err)
	}
	if err := t.SetCurrentBranch(sess.ID, label); err != nil {
		return nil, err
	}
	if err := finishWrite(t, sess.ID, rec, label, store.EventBranchCreated, written); err != nil {
		return nil, err
	}
	if err := maybeUpdateMeta(t, sess, rec); err != nil {
		return nil, err
	}

	logging.L().Debugw("session branched",
		"session", sess.ID, "branch", label, "at", divergeAt, "messages", len(written))
	return &Result{SessionID: sess.ID, NewBranch: label, Appended: len(written)}, nil
}

// writeTurns inserts turns as messages chained behind parent, starting at
// startSeq on branch. Attachments land with their message.
func writeTurns(t *store.Tx, sessionID, branch string, parent *store.Message, startSeq int, turns []provider.Turn) ([]*store.Message, error) {
	written := make([]*store.Message, 0, len(turns))
	for i, turn := range turns {
		msg := &store.Message{
			SessionID:   sessionID,
			Role:        turn.Role,
			Content:     turn.Content,
			BranchLabel: branch,
			SequenceNum: startSeq + i,
			ContentHash: store.HashContent(turn.Role, turn.Content),
		}
		if parent != nil {
			id := parent.ID
			msg.ParentID = &id
		}
		if turn.Model != "" {
			m := turn.Model
			msg.Model = &m
		}
		if turn.TokenCount > 0 {
			tc := turn.TokenCount
			msg.TokenCount = &tc
		}
		if !turn.Timestamp.IsZero() {
			msg.CreatedAt = turn.Timestamp.UTC()
		}

		if err := t.InsertMessage(msg); err != nil {
			return nil, fmt.Errorf("turn %d: %w", startSeq+i, err)
		}

		for _, a := range turn.Attachments {
			att := &store.Attachment{MessageID: msg.ID, Name: a.Name}
			if a.MimeType != "" {
				v := a.MimeType
				att.MimeType = &v
			}
			if a.Content != "" {
				v := a.Content
				att.Content = &v
			}
			if a.URL != "" {
				v := a.URL
				att.URL = &v
			}
			if err := t.AddAttachment(att); err != nil {
				return nil, err
			}
		}

		parent = msg
		written = append(written, msg)
	}
	return written, nil
}

// finishWrite recomputes derived counts, records provenance, and appends
// the unit of work's message event.
func finishWrite(t *store.Tx, sessionID string, rec provider.SessionRecord, branch, eventType string, written []*store.Message) error {
	if err := t.RecomputeSessionDerived(sessionID); err != nil {
		return err
	}
	if rec.SourcePath != "" {
		if _, err := t.RecordImport(sessionID, rec.Provider, rec.SourcePath); err != nil {
			return err
		}
	}

	_, err := t.AppendEvent(eventType, store.EntityMessage, sessionID, "", map[string]any{
		"session_id": sessionID,
		"branch":     branch,
		"messages":   written,
	})
	return err
}

// maybeUpdateMeta refreshes title/model when the provider renamed the
// conversation or switched models.
func maybeUpdateMeta(t *store.Tx, sess *store.Session, rec provider.SessionRecord) error {
	changed := false
	if rec.Title != "" && rec.Title != sess.Title {
		sess.Title = rec.Title
		changed = true
	}
	if rec.Model != "" && rec.Model != sess.Model {
		sess.Model = rec.Model
		changed = true
	}
	if !changed {
		return nil
	}
	return t.UpdateSessionMeta(sess)
}

func earliestTimestamp(rec provider.SessionRecord) time.Time {
	var earliest time.Time
	for _, turn := range rec.Turns {
		if turn.Timestamp.IsZero() {
			continue
		}
		if earliest.IsZero() || turn.Timestamp.Before(earliest) {
			earliest = turn.Timestamp
		}
	}
	if earliest.IsZero() {
		return time.Now().UTC()
	}
	return earliest.UTC()
}
