// Package checkpoint captures immutable point-in-time snapshots of a
// session's full state, independent of later harvests or branch switches.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nervosys/chasm/internal/logging"
	"github.com/nervosys/chasm/internal/store"
)

// State is the serialized payload of a checkpoint: the session's metadata
// and every message across all branches at capture time. Restoring or
// diffing a checkpoint needs nothing outside this blob.
type State struct {
	Session  *store.Session   `json:"session"`
	Messages []*store.Message `json:"messages"`
	Branches []string         `json:"branches,omitempty"`
}

// Create captures a session snapshot under name. Reading the state and
// writing the checkpoint row happen in one unit of work, so the snapshot
// is consistent even while harvests run.
func Create(ctx context.Context, st *store.Store, sessionID, name, description string) (*store.Checkpoint, error) {
	var cp *store.Checkpoint
	err := st.Run(ctx, func(t *store.Tx) error {
		sess, err := t.GetSession(sessionID)
		if err != nil {
			return err
		}
		msgs, err := t.AllMessages(sessionID)
		if err != nil {
			return err
		}
		branches, err := t.Branches(sessionID)
		if err != nil {
			return err
		}

		raw, err := json.Marshal(State{Session: sess, Messages: msgs, Branches: branches})
		if err != nil {
			return fmt.Errorf("serialize checkpoint state: %w", err)
		}

		cp = &store.Checkpoint{
			SessionID:    sessionID,
			Name:         name,
			State:        string(raw),
			MessageCount: sess.MessageCount,
		}
		if description != "" {
			cp.Description = &description
		}
		if live, err := t.LivePath(sessionID); err != nil {
			return err
		} else if len(live) > 0 {
			id := live[len(live)-1].ID
			cp.LastMessageID = &id
		}

		return t.InsertCheckpoint(cp)
	})
	if err != nil {
		return nil, err
	}

	logging.L().Infow("checkpoint created",
		"session", sessionID, "name", name, "messages", cp.MessageCount)
	return cp, nil
}

// List returns a session's checkpoints oldest first.
func List(ctx context.Context, st *store.Store, sessionID string) ([]*store.Checkpoint, error) {
	return st.ListCheckpoints(ctx, sessionID)
}

// Load fetches a checkpoint and decodes its captured state.
func Load(ctx context.Context, st *store.Store, id string) (*store.Checkpoint, *State, error) {
	cp, err := st.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var state State
	if err := json.Unmarshal([]byte(cp.State), &state); err != nil {
		return nil, nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return cp, &state, nil
}
