package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var validEmbedSources = map[EmbeddingSource]bool{
	EmbedMessage: true, EmbedDocument: true, EmbedDocumentChunk: true, EmbedMemory: true,
}

// PutEmbedding stores a vector for a source entity. Unique on
// (source_type, source_id, model): re-embedding the same source with the
// same model overwrites the previous vector, never duplicates.
func (t *Tx) PutEmbedding(emb *Embedding) error {
	if !validEmbedSources[emb.SourceType] {
		return integrityf("embedding: unknown source type %q", emb.SourceType)
	}
	if len(emb.Vector) == 0 {
		return integrityf("embedding for %s/%s: empty vector", emb.SourceType, emb.SourceID)
	}
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO embeddings (id, source_type, source_id, model, vector, dims, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id, model)
		DO UPDATE SET vector = excluded.vector, dims = excluded.dims, created_at = excluded.created_at`,
		emb.ID, string(emb.SourceType), emb.SourceID, emb.Model, emb.Vector,
		emb.Dims, emb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the vector for a (source, model) pair, or
// ErrNotFound.
func (t *Tx) GetEmbedding(sourceType EmbeddingSource, sourceID, model string) (*Embedding, error) {
	var emb Embedding
	var st string
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, source_type, source_id, model, vector, dims, created_at
		FROM embeddings
		WHERE source_type = ? AND source_id = ? AND model = ?`,
		string(sourceType), sourceID, model,
	).Scan(&emb.ID, &st, &emb.SourceID, &emb.Model, &emb.Vector, &emb.Dims, &emb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	emb.SourceType = EmbeddingSource(st)
	return &emb, nil
}
