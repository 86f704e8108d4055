// Package syncer exposes the store's event log to clients: version cursors,
// deltas, full snapshots, and live subscriptions. Versions are global and
// strictly monotonic, so a client holding cursor N can always catch up with
// the events after N or fall back to a snapshot.
package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/nervosys/chasm/internal/logging"
	"github.com/nervosys/chasm/internal/store"
)

// subscriberBuffer is each subscriber's channel capacity. A subscriber that
// falls this far behind is disconnected rather than blocking the log.
const subscriberBuffer = 64

// StaleCursorError reports a delta cursor older than the oldest retained
// event. The client must take a fresh snapshot.
type StaleCursorError struct {
	From   int64
	Oldest int64
}

func (e *StaleCursorError) Error() string {
	return fmt.Sprintf("cursor %d predates oldest retained event %d: snapshot required", e.From, e.Oldest)
}

// Snapshot is the full state of the store at one version. Applying all
// events up to Version over an empty store yields the same state.
type Snapshot struct {
	Version     int64               `json:"version"`
	Workspaces  []*store.Workspace  `json:"workspaces"`
	Sessions    []*store.Session    `json:"sessions"`
	Messages    []*store.Message    `json:"messages"`
	Checkpoints []*store.Checkpoint `json:"checkpoints"`
	Documents   []*store.Document   `json:"documents"`
}

// Engine serves sync reads and fans committed events out to subscribers.
type Engine struct {
	store *store.Store

	mu     sync.Mutex
	subs   map[int]chan store.Event
	nextID int
}

// New wires an engine onto the store's commit hook.
func New(st *store.Store) *Engine {
	e := &Engine{store: st, subs: make(map[int]chan store.Event)}
	st.OnCommit(e.broadcast)
	return e
}

// Version returns the cursor of the most recent committed event.
func (e *Engine) Version() int64 {
	return e.store.CurrentVersion()
}

// Delta returns all events after the client's cursor, ordered by version.
// A cursor older than the retained log returns *StaleCursorError.
func (e *Engine) Delta(ctx context.Context, from int64) ([]store.Event, error) {
	if from < 0 {
		from = 0
	}

	oldest, err := e.store.OldestEventVersion(ctx)
	if err != nil {
		return nil, err
	}
	// A cursor is serviceable when every event after it is still retained:
	// from must be at least oldest-1. from=0 against an unpruned log is
	// always fine.
	if oldest > 0 && from < oldest-1 {
		return nil, &StaleCursorError{From: from, Oldest: oldest}
	}

	return e.store.EventsAfter(ctx, from)
}

// TakeSnapshot captures the full state and the version it corresponds to.
// All reads, the version included, happen in one read transaction: a commit
// landing mid-snapshot can never leave the payload newer than its Version.
func (e *Engine) TakeSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := e.store.View(ctx, func(t *store.Tx) error {
		version, err := t.MaxEventVersion()
		if err != nil {
			return err
		}
		snap.Version = version

		if snap.Workspaces, err = t.ListWorkspaces(); err != nil {
			return err
		}
		if snap.Sessions, err = t.ListSessions(""); err != nil {
			return err
		}
		for _, sess := range snap.Sessions {
			msgs, err := t.AllMessages(sess.ID)
			if err != nil {
				return err
			}
			snap.Messages = append(snap.Messages, msgs...)

			cps, err := t.SessionCheckpoints(sess.ID)
			if err != nil {
				return err
			}
			snap.Checkpoints = append(snap.Checkpoints, cps...)
		}
		snap.Documents, err = t.ListDocuments()
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Publish appends an externally produced event through a unit of work, so
// remote writers share the same versioning as local harvests.
func (e *Engine) Publish(ctx context.Context, eventType, entityType, entityID, actor string, data any) (int64, error) {
	var version int64
	err := e.store.Run(ctx, func(t *store.Tx) error {
		v, err := t.AppendEvent(eventType, entityType, entityID, actor, data)
		version = v
		return err
	})
	return version, err
}

// Subscribe registers a live event feed. The returned channel receives every
// event committed after the call, in version order. cancel unregisters and
// closes the channel. A subscriber whose buffer stays full is dropped.
func (e *Engine) Subscribe() (<-chan store.Event, func()) {
	ch := make(chan store.Event, subscriberBuffer)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// broadcast runs on the store's commit hook, under the store's write lock,
// so event batches arrive here in version order and fan out in version
// order. Slow subscribers never block the log: a full buffer disconnects
// them.
func (e *Engine) broadcast(events []store.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range events {
		for id, ch := range e.subs {
			select {
			case ch <- ev:
			default:
				delete(e.subs, id)
				close(ch)
				logging.L().Warnw("dropping lagging subscriber", "subscriber", id, "version", ev.Version)
			}
		}
	}
}
