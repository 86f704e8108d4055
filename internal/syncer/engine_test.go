package syncer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nervosys/chasm/internal/checkpoint"
	"github.com/nervosys/chasm/internal/normalize"
	"github.com/nervosys/chasm/internal/store"
	"github.com/nervosys/chasm/internal/syncer"
	"github.com/nervosys/chasm/testutil"
)

func seed(t *testing.T, st *store.Store, nativeIDs ...string) {
	t.Helper()
	for _, id := range nativeIDs {
		rec := testutil.Conversation(id)
		require.NoError(t, st.Run(context.Background(), func(tx *store.Tx) error {
			_, err := normalize.Apply(tx, nil, rec)
			return err
		}))
	}
}

func TestDeltaCoversEverythingSinceCursor(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)
	ctx := context.Background()

	seed(t, st, "a", "b")
	mid := engine.Version()
	seed(t, st, "c")

	all, err := engine.Delta(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	require.EqualValues(t, engine.Version(), all[len(all)-1].Version)
	for i := 1; i < len(all); i++ {
		require.Equal(t, all[i-1].Version+1, all[i].Version)
	}

	tail, err := engine.Delta(ctx, mid)
	require.NoError(t, err)
	require.Len(t, tail, int(engine.Version()-mid))
	require.EqualValues(t, mid+1, tail[0].Version)
}

func TestDeltaDetectsStaleCursor(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)
	ctx := context.Background()

	seed(t, st, "a", "b", "c")
	_, err := st.PruneEventsBefore(ctx, 4)
	require.NoError(t, err)

	// Cursor 0 can no longer be served: versions 1..3 are gone.
	_, err = engine.Delta(ctx, 0)
	var stale *syncer.StaleCursorError
	require.ErrorAs(t, err, &stale)
	require.EqualValues(t, 4, stale.Oldest)

	// Cursor 3 is fine: everything after it is retained.
	events, err := engine.Delta(ctx, 3)
	require.NoError(t, err)
	require.EqualValues(t, 4, events[0].Version)
}

func TestSnapshotMatchesVersion(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)
	ctx := context.Background()

	seed(t, st, "a", "b")

	snap, err := engine.TakeSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.Version(), snap.Version)
	require.Len(t, snap.Sessions, 2)
	require.Len(t, snap.Messages, 6)

	// Every event the snapshot's version covers is in the delta from 0, so
	// a client can choose either bootstrap path.
	events, err := engine.Delta(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, snap.Version, events[len(events)-1].Version)
}

// replayState rebuilds store state from event payloads alone, the way a
// bootstrapping client applies a delta from version 0.
type replayState struct {
	sessions    map[string]*store.Session
	messages    map[string]*store.Message
	checkpoints map[string]*store.Checkpoint
	documents   map[string]*store.Document
}

func newReplayState() *replayState {
	return &replayState{
		sessions:    map[string]*store.Session{},
		messages:    map[string]*store.Message{},
		checkpoints: map[string]*store.Checkpoint{},
		documents:   map[string]*store.Document{},
	}
}

func (rs *replayState) apply(t *testing.T, ev store.Event) {
	t.Helper()
	switch ev.EventType {
	case store.EventSessionCreated, store.EventSessionUpdated:
		var sess store.Session
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &sess))
		rs.sessions[sess.ID] = &sess
	case store.EventMessagesAppended, store.EventBranchCreated:
		var data struct {
			SessionID string           `json:"session_id"`
			Branch    string           `json:"branch"`
			Messages  []*store.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &data))
		for _, m := range data.Messages {
			rs.messages[m.ID] = m
		}
		if sess := rs.sessions[data.SessionID]; sess != nil {
			sess.CurrentBranch = data.Branch
		}
	case store.EventCheckpointCreated:
		var cp store.Checkpoint
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &cp))
		rs.checkpoints[cp.ID] = &cp
	case store.EventDocumentIngested:
		var doc store.Document
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &doc))
		rs.documents[doc.ID] = &doc
	default:
		t.Fatalf("replay: unhandled event type %q", ev.EventType)
	}
}

// liveCounts recomputes the derived counts from replayed messages: the head
// of the current branch walked back through parent links.
func (rs *replayState) liveCounts(sessionID, branch string) (int, int) {
	var head *store.Message
	for _, m := range rs.messages {
		if m.SessionID == sessionID && m.BranchLabel == branch {
			if head == nil || m.SequenceNum > head.SequenceNum {
				head = m
			}
		}
	}
	count, tokens := 0, 0
	for m := head; m != nil; {
		count++
		if m.TokenCount != nil {
			tokens += *m.TokenCount
		}
		if m.ParentID == nil {
			break
		}
		m = rs.messages[*m.ParentID]
	}
	return count, tokens
}

func TestDeltaReplayMatchesSnapshot(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)
	ctx := context.Background()

	seed(t, st, "a", "b")

	// Edit one turn of "a" so the log carries a branch fork.
	edited := testutil.Conversation("a")
	edited.Turns[1].Content = "Write a fuzz test instead."
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		_, err := normalize.Apply(tx, nil, edited)
		return err
	}))

	var sessionID string
	sessions, err := st.ListSessions(ctx, "")
	require.NoError(t, err)
	for _, sess := range sessions {
		if sess.ProviderSessionID != nil && *sess.ProviderSessionID == "a" {
			sessionID = sess.ID
		}
	}
	require.NotEmpty(t, sessionID)

	_, err = checkpoint.Create(ctx, st, sessionID, "before-release", "pre-release state")
	require.NoError(t, err)

	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		_, err := tx.IngestDocument(
			&store.Document{Title: "notes", Content: "release notes"},
			[]string{"release notes"})
		return err
	}))

	snap, err := engine.TakeSnapshot(ctx)
	require.NoError(t, err)

	events, err := engine.Delta(ctx, 0)
	require.NoError(t, err)

	rs := newReplayState()
	for _, ev := range events {
		if ev.Version > snap.Version {
			break
		}
		rs.apply(t, ev)
	}

	require.Len(t, snap.Sessions, len(rs.sessions))
	for _, sess := range snap.Sessions {
		got := rs.sessions[sess.ID]
		require.NotNil(t, got, "session %s missing after replay", sess.ID)
		require.Equal(t, sess.Title, got.Title)
		require.Equal(t, sess.CurrentBranch, got.CurrentBranch)
		count, tokens := rs.liveCounts(sess.ID, got.CurrentBranch)
		require.Equal(t, sess.MessageCount, count)
		require.Equal(t, sess.TokenCount, tokens)
	}

	require.Len(t, snap.Messages, len(rs.messages))
	for _, m := range snap.Messages {
		got := rs.messages[m.ID]
		require.NotNil(t, got, "message %s missing after replay", m.ID)
		require.Equal(t, m.Content, got.Content)
		require.Equal(t, m.BranchLabel, got.BranchLabel)
		require.Equal(t, m.SequenceNum, got.SequenceNum)
	}

	// Checkpoints replay whole: the event carries the state blob.
	require.Len(t, snap.Checkpoints, len(rs.checkpoints))
	for _, cp := range snap.Checkpoints {
		got := rs.checkpoints[cp.ID]
		require.NotNil(t, got, "checkpoint %s missing after replay", cp.ID)
		require.Equal(t, cp.State, got.State)
		require.Equal(t, cp.Description, got.Description)
		require.Equal(t, cp.LastMessageID, got.LastMessageID)
		require.Equal(t, cp.MessageCount, got.MessageCount)
	}

	require.Len(t, snap.Documents, len(rs.documents))
	for _, doc := range snap.Documents {
		got := rs.documents[doc.ID]
		require.NotNil(t, got, "document %s missing after replay", doc.ID)
		require.Equal(t, doc.ContentHash, got.ContentHash)
	}
}

func TestSnapshotIsConsistentUnderConcurrentWrites(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)
	ctx := context.Background()

	done := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() {
		defer close(done)
		for i := 0; i < 30; i++ {
			rec := testutil.Conversation(fmt.Sprintf("s-%d", i))
			if err := st.Run(ctx, func(tx *store.Tx) error {
				_, err := normalize.Apply(tx, nil, rec)
				return err
			}); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	var snaps []*syncer.Snapshot
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		snap, err := engine.TakeSnapshot(ctx)
		require.NoError(t, err)
		snaps = append(snaps, snap)
	}
	select {
	case err := <-writeErr:
		t.Fatalf("writer: %v", err)
	default:
	}

	events, err := engine.Delta(ctx, 0)
	require.NoError(t, err)

	// Each snapshot must be exactly the state its version implies: the
	// session and message totals recoverable from events up to Version.
	for _, snap := range snaps {
		sessions, messages := 0, 0
		for _, ev := range events {
			if ev.Version > snap.Version {
				break
			}
			switch ev.EventType {
			case store.EventSessionCreated:
				sessions++
			case store.EventMessagesAppended:
				var data struct {
					Messages []*store.Message `json:"messages"`
				}
				require.NoError(t, json.Unmarshal([]byte(ev.Data), &data))
				messages += len(data.Messages)
			}
		}
		require.Len(t, snap.Sessions, sessions, "snapshot at version %d", snap.Version)
		require.Len(t, snap.Messages, messages, "snapshot at version %d", snap.Version)
	}
}

func TestSubscribeReceivesCommittedEvents(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)

	events, cancel := engine.Subscribe()
	defer cancel()

	seed(t, st, "a")

	var got []store.Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	// session.created then messages.appended, in version order.
	require.Equal(t, store.EventSessionCreated, got[0].EventType)
	require.Equal(t, store.EventMessagesAppended, got[1].EventType)
	require.Less(t, got[0].Version, got[1].Version)
}

func TestLaggingSubscriberIsDropped(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)

	events, cancel := engine.Subscribe()
	defer cancel()

	// Never read: each seeded session commits two events, so 40 sessions
	// overflow the subscriber buffer.
	for i := 0; i < 40; i++ {
		seed(t, st, fmt.Sprintf("overflow-%d", i))
	}

	drained := 0
	for range events {
		drained++
	}
	// Channel closed by the broadcaster; we got at most a full buffer.
	require.LessOrEqual(t, drained, 64)

	// Publishing still works with no subscribers left.
	_, err := engine.Publish(context.Background(), "custom.event", "session", "x", "tester", nil)
	require.NoError(t, err)
}

func TestPublishAssignsNextVersion(t *testing.T) {
	st := testutil.OpenStore(t)
	engine := syncer.New(st)
	ctx := context.Background()

	seed(t, st, "a")
	before := engine.Version()

	version, err := engine.Publish(ctx, "custom.event", "session", "remote-1", "peer",
		map[string]string{"note": "external write"})
	require.NoError(t, err)
	require.Equal(t, before+1, version)
	require.Equal(t, version, engine.Version())

	events, err := engine.Delta(ctx, before)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "custom.event", events[0].EventType)
	require.Equal(t, "peer", events[0].Actor)
}
