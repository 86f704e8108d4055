package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordImport upserts the provenance row for a harvested source. A
// re-import of the same (session, source path) bumps import_version so
// repeated harvests of one file are detectable.
func (t *Tx) RecordImport(sessionID, providerID, sourcePath string) (int, error) {
	now := time.Now().UTC()
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO import_sources (id, session_id, provider, source_path, import_version, last_imported_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(session_id, source_path)
		DO UPDATE SET import_version = import_version + 1, last_imported_at = excluded.last_imported_at`,
		uuid.NewString(), sessionID, providerID, sourcePath, now,
	)
	if err != nil {
		return 0, fmt.Errorf("record import: %w", err)
	}

	var version int
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT import_version FROM import_sources
		WHERE session_id = ? AND source_path = ?`,
		sessionID, sourcePath,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read import version: %w", err)
	}
	return version, nil
}

// AddShareLink records that a session was published at url.
func (t *Tx) AddShareLink(sessionID, url string) (*ShareLink, error) {
	link := &ShareLink{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO share_links (id, session_id, url, created_at)
		VALUES (?, ?, ?, ?)`,
		link.ID, link.SessionID, link.URL, link.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("add share link: %w", err)
	}
	return link, nil
}
