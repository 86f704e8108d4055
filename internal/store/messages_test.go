package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosys/chasm/internal/store"
)

func createSession(t *testing.T, st *store.Store) *store.Session {
	t.Helper()
	sess := &store.Session{Provider: "test", Title: "fixture"}
	require.NoError(t, st.Run(context.Background(), func(tx *store.Tx) error {
		return tx.CreateSession(sess)
	}))
	return sess
}

// appendMessages writes a chain of messages on one branch, each parented on
// its predecessor.
func appendMessages(t *testing.T, st *store.Store, sessionID, branch string, startSeq int, parentID *string, contents ...string) []*store.Message {
	t.Helper()
	var out []*store.Message
	require.NoError(t, st.Run(context.Background(), func(tx *store.Tx) error {
		parent := parentID
		for i, content := range contents {
			role := "user"
			if (startSeq+i)%2 == 1 {
				role = "assistant"
			}
			msg := &store.Message{
				SessionID:   sessionID,
				Role:        role,
				Content:     content,
				BranchLabel: branch,
				SequenceNum: startSeq + i,
				ParentID:    parent,
			}
			if err := tx.InsertMessage(msg); err != nil {
				return err
			}
			parent = &msg.ID
			out = append(out, msg)
		}
		if err := tx.RecomputeSessionDerived(sessionID); err != nil {
			return err
		}
		_, err := tx.AppendEvent(store.EventMessagesAppended, store.EntityMessage, sessionID, "", nil)
		return err
	}))
	return out
}

func TestInsertMessageValidation(t *testing.T) {
	st := openStore(t)
	sess := createSession(t, st)
	other := createSession(t, st)
	ctx := context.Background()

	msgs := appendMessages(t, st, sess.ID, store.MainBranch, 0, nil, "hello", "hi")

	tests := []struct {
		name string
		msg  store.Message
	}{
		{
			name: "invalid role",
			msg:  store.Message{SessionID: sess.ID, Role: "narrator", Content: "x", SequenceNum: 2},
		},
		{
			name: "sequence gap",
			msg:  store.Message{SessionID: sess.ID, Role: "user", Content: "x", SequenceNum: 5},
		},
		{
			name: "parent from another session",
			msg: store.Message{SessionID: other.ID, Role: "user", Content: "x",
				SequenceNum: 0, ParentID: &msgs[0].ID},
		},
		{
			name: "missing parent",
			msg: store.Message{SessionID: sess.ID, Role: "user", Content: "x",
				SequenceNum: 2, ParentID: ptr("nope")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := st.Run(ctx, func(tx *store.Tx) error {
				return tx.InsertMessage(&msg)
			})
			require.ErrorIs(t, err, store.ErrIntegrity)
		})
	}

	// Failed inserts appended no events.
	require.EqualValues(t, 3, st.CurrentVersion()) // 2 sessions + 1 append
}

func TestDerivedCountsFollowCurrentBranch(t *testing.T) {
	st := openStore(t)
	sess := createSession(t, st)
	ctx := context.Background()

	main := appendMessages(t, st, sess.ID, store.MainBranch, 0, nil, "q1", "a1", "q2")

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.MessageCount)

	// Fork at position 2: shares q1/a1, replaces q2.
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		fork := &store.Message{
			SessionID:   sess.ID,
			Role:        "user",
			Content:     "q2-edited",
			BranchLabel: "fork-aaaa1111",
			SequenceNum: 2,
			ParentID:    &main[1].ID,
		}
		if err := tx.InsertMessage(fork); err != nil {
			return err
		}
		if err := tx.SetCurrentBranch(sess.ID, "fork-aaaa1111"); err != nil {
			return err
		}
		if err := tx.RecomputeSessionDerived(sess.ID); err != nil {
			return err
		}
		_, err := tx.AppendEvent(store.EventBranchCreated, store.EntityMessage, sess.ID, "", nil)
		return err
	}))

	got, err = st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	// Live path = shared prefix (2) + fork message (1).
	require.Equal(t, 3, got.MessageCount)
	require.Equal(t, "fork-aaaa1111", got.CurrentBranch)

	// All branches still hold every message.
	all, err := st.SessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestLivePathCrossesBranchPoint(t *testing.T) {
	st := openStore(t)
	sess := createSession(t, st)

	main := appendMessages(t, st, sess.ID, store.MainBranch, 0, nil, "q1", "a1", "q2")
	appendMessages(t, st, sess.ID, "fork-bbbb2222", 2, &main[1].ID, "q2-edited", "a2-edited")

	require.NoError(t, st.Run(context.Background(), func(tx *store.Tx) error {
		return tx.SetCurrentBranch(sess.ID, "fork-bbbb2222")
	}))

	var path []*store.Message
	require.NoError(t, st.View(context.Background(), func(tx *store.Tx) error {
		var err error
		path, err = tx.LivePath(sess.ID)
		return err
	}))

	require.Len(t, path, 4)
	require.Equal(t, "q1", path[0].Content)
	require.Equal(t, "a1", path[1].Content)
	require.Equal(t, "q2-edited", path[2].Content)
	require.Equal(t, "a2-edited", path[3].Content)
	for i, msg := range path {
		require.Equal(t, i, msg.SequenceNum)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	st := openStore(t)
	sess := createSession(t, st)
	ctx := context.Background()

	msgs := appendMessages(t, st, sess.ID, store.MainBranch, 0, nil, "find me please")
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		return tx.AddAttachment(&store.Attachment{MessageID: msgs[0].ID, Name: "notes.txt", Content: ptr("inline")})
	}))

	hits, err := st.SearchMessages(ctx, "find", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		return tx.DeleteSession(sess.ID)
	}))

	_, err = st.GetSession(ctx, sess.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	remaining, err := st.SessionMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	// Full-text rows went with the session.
	hits, err = st.SearchMessages(ctx, "find", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchMessages(t *testing.T) {
	st := openStore(t)
	sess := createSession(t, st)

	appendMessages(t, st, sess.ID, store.MainBranch, 0, nil,
		"how do goroutines leak",
		"unbuffered channels block forever when nobody reads",
	)

	hits, err := st.SearchMessages(context.Background(), "goroutines", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "message", hits[0].Kind)
	require.Equal(t, sess.ID, hits[0].SessionID)
	require.Contains(t, hits[0].Snippet, "goroutines")
}

func TestNewBranchLabel(t *testing.T) {
	st := openStore(t)
	sess := createSession(t, st)

	hash := store.HashContent("user", "edited")
	var first, second string
	require.NoError(t, st.Run(context.Background(), func(tx *store.Tx) error {
		var err error
		first, err = tx.NewBranchLabel(sess.ID, hash)
		if err != nil {
			return err
		}
		// Occupy the label, then ask again.
		msg := &store.Message{SessionID: sess.ID, Role: "user", Content: "edited",
			BranchLabel: first, SequenceNum: 0}
		if err := tx.InsertMessage(msg); err != nil {
			return err
		}
		second, err = tx.NewBranchLabel(sess.ID, hash)
		return err
	}))

	require.Equal(t, "fork-"+hash[:8], first)
	require.Equal(t, first+"-2", second)
}

func ptr(s string) *string { return &s }
