package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendEvent appends one change event inside the current unit of work.
// The version assigned is exactly one greater than the highest version
// visible to this transaction, which with the single writer lane makes the
// event log gap-free and in lock-step with the data it describes.
//
// Callable only from inside Run: an event can never commit without its
// mutation and a mutation can never commit without its event.
func (t *Tx) AppendEvent(eventType, entityType, entityID, actor string, data any) (int64, error) {
	payload := "{}"
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("marshal event data: %w", err)
		}
		payload = string(raw)
	}

	var version int64
	if err := t.tx.QueryRowContext(t.ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM events`,
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("next event version: %w", err)
	}

	now := time.Now().UTC()
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO events (event_type, entity_type, entity_id, actor, data, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		eventType, entityType, entityID, actor, payload, version, now,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event id: %w", err)
	}

	t.appended = append(t.appended, Event{
		ID:         id,
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Data:       payload,
		Version:    version,
		CreatedAt:  now,
	})
	return version, nil
}

// MaxEventVersion returns the highest committed event version visible to
// this transaction, or 0 for an empty log. Snapshot readers use it so the
// reported version and the data they read come from the same transaction.
func (t *Tx) MaxEventVersion() (int64, error) {
	var v sql.NullInt64
	if err := t.tx.QueryRowContext(t.ctx,
		`SELECT MAX(version) FROM events`,
	).Scan(&v); err != nil {
		return 0, fmt.Errorf("max event version: %w", err)
	}
	return v.Int64, nil
}

// EventsAfter returns all events with version > from, ordered by version.
func (s *Store) EventsAfter(ctx context.Context, from int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, entity_type, entity_id, actor, data, version, created_at
		FROM events
		WHERE version > ?
		ORDER BY version ASC`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.EntityType, &e.EntityID,
			&e.Actor, &e.Data, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneEventsBefore drops events with version < keep. Retention only:
// committed history stays immutable, old deltas just stop being servable
// and clients holding cursors older than keep-1 must re-snapshot.
func (s *Store) PruneEventsBefore(ctx context.Context, keep int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE version < ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events count: %w", err)
	}
	return n, nil
}

// OldestEventVersion returns the lowest retained event version, or 0 when
// the log is empty. Used for stale-cursor detection once events can be
// pruned.
func (s *Store) OldestEventVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(version) FROM events`).Scan(&v); err != nil {
		return 0, fmt.Errorf("oldest event version: %w", err)
	}
	return v.Int64, nil
}
