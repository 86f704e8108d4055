package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosys/chasm/internal/checkpoint"
	"github.com/nervosys/chasm/internal/normalize"
	"github.com/nervosys/chasm/internal/provider"
	"github.com/nervosys/chasm/internal/store"
	"github.com/nervosys/chasm/testutil"
)

func seedSession(t *testing.T, st *store.Store, rec provider.SessionRecord) string {
	t.Helper()
	var id string
	require.NoError(t, st.Run(context.Background(), func(tx *store.Tx) error {
		out, err := normalize.Apply(tx, nil, rec)
		if err != nil {
			return err
		}
		id = out.SessionID
		return nil
	}))
	return id
}

func TestCreateCapturesFullState(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	sessionID := seedSession(t, st, testutil.Conversation("conv-1"))

	cp, err := checkpoint.Create(ctx, st, sessionID, "before-refactor", "state before the big edit")
	require.NoError(t, err)
	require.Equal(t, 3, cp.MessageCount)
	require.NotNil(t, cp.LastMessageID)
	require.Equal(t, "state before the big edit", *cp.Description)

	_, state, err := checkpoint.Load(ctx, st, cp.ID)
	require.NoError(t, err)
	require.Equal(t, sessionID, state.Session.ID)
	require.Len(t, state.Messages, 3)
	require.Equal(t, []string{store.MainBranch}, state.Branches)
}

func TestCheckpointIsImmutableAgainstLaterWrites(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	rec := testutil.Conversation("conv-1")
	sessionID := seedSession(t, st, rec)

	cp, err := checkpoint.Create(ctx, st, sessionID, "snap", "")
	require.NoError(t, err)

	// The session keeps growing; the checkpoint does not.
	rec.Turns = append(rec.Turns, testutil.Turn(provider.RoleAssistant, "more", 3))
	seedSession(t, st, rec)

	_, state, err := checkpoint.Load(ctx, st, cp.ID)
	require.NoError(t, err)
	require.Len(t, state.Messages, 3)

	sess, err := st.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, 4, sess.MessageCount)
}

func TestListOrdersOldestFirst(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	sessionID := seedSession(t, st, testutil.Conversation("conv-1"))

	first, err := checkpoint.Create(ctx, st, sessionID, "one", "")
	require.NoError(t, err)
	second, err := checkpoint.Create(ctx, st, sessionID, "two", "")
	require.NoError(t, err)

	list, err := checkpoint.List(ctx, st, sessionID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID)
	require.Equal(t, second.ID, list[1].ID)
}

func TestLoadUnknownCheckpoint(t *testing.T) {
	st := testutil.OpenStore(t)

	_, _, err := checkpoint.Load(context.Background(), st, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
