package store

import (
	"context"
	"fmt"
)

// SearchHit is one full-text match.
type SearchHit struct {
	Kind      string  `json:"kind"` // "message" or "document"
	EntityID  string  `json:"entity_id"`
	SessionID string  `json:"session_id,omitempty"`
	Snippet   string  `json:"snippet"`
	Rank      float64 `json:"rank"`
}

// SearchMessages runs an FTS5 MATCH over message content, best-ranked
// first. The index is maintained inside the same transactions as the rows
// it covers, so hits always reflect committed state.
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, session_id,
			snippet(messages_fts, 2, '[', ']', '…', 12), rank
		FROM messages_fts
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		h := SearchHit{Kind: "message"}
		if err := rows.Scan(&h.EntityID, &h.SessionID, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchDocuments runs an FTS5 MATCH over document content.
func (s *Store) SearchDocuments(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id,
			snippet(documents_fts, 1, '[', ']', '…', 12), rank
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		h := SearchHit{Kind: "document"}
		if err := rows.Scan(&h.EntityID, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
