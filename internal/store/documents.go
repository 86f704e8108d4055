package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestDocument stores a knowledge-base document with its chunks. Dedup is
// by content hash: an identical document already present is returned as-is
// with no writes and no event (idempotent re-ingestion).
func (t *Tx) IngestDocument(doc *Document, chunks []string) (*Document, error) {
	if doc.ContentHash == "" {
		sum := sha256.Sum256([]byte(doc.Content))
		doc.ContentHash = hex.EncodeToString(sum[:])
	}

	existing, err := t.findDocumentByHash(doc.ContentHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.ChunkCount = len(chunks)

	meta, err := marshalMeta(doc.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (id, title, content, content_hash, chunk_count, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.ContentHash, doc.ChunkCount, meta, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	for i, content := range chunks {
		_, err = t.tx.ExecContext(t.ctx, `
			INSERT INTO document_chunks (id, document_id, chunk_index, content)
			VALUES (?, ?, ?, ?)`,
			uuid.NewString(), doc.ID, i, content,
		)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents_fts (document_id, content) VALUES (?, ?)`,
		doc.ID, doc.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("index document: %w", err)
	}

	if _, err := t.AppendEvent(EventDocumentIngested, EntityDocument, doc.ID, "", doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document, its chunks (FK cascade) and its
// full-text row.
func (t *Tx) DeleteDocument(id string) error {
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM documents_fts WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("delete document fts: %w", err)
	}

	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) findDocumentByHash(hash string) (*Document, error) {
	row := t.tx.QueryRowContext(t.ctx, documentSelect+` WHERE content_hash = ?`, hash)
	return scanDocument(row)
}

// GetDocument returns a document by id, or ErrNotFound.
func (t *Tx) GetDocument(id string) (*Document, error) {
	row := t.tx.QueryRowContext(t.ctx, documentSelect+` WHERE id = ?`, id)
	return scanDocument(row)
}

// DocumentChunks returns a document's chunks in index order.
func (t *Tx) DocumentChunks(documentID string) ([]*DocumentChunk, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, document_id, chunk_index, content
		FROM document_chunks
		WHERE document_id = ?
		ORDER BY chunk_index ASC`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("document chunks: %w", err)
	}
	defer rows.Close()

	var out []*DocumentChunk
	for rows.Next() {
		var c DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ListDocuments returns all documents, oldest first.
func (t *Tx) ListDocuments() ([]*Document, error) {
	rows, err := t.tx.QueryContext(t.ctx, documentSelect+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// ListDocuments is the read-path variant of Tx.ListDocuments.
func (s *Store) ListDocuments(ctx context.Context) ([]*Document, error) {
	var out []*Document
	err := s.View(ctx, func(t *Tx) error {
		var err error
		out, err = t.ListDocuments()
		return err
	})
	return out, err
}

const documentSelect = `
	SELECT id, title, content, content_hash, chunk_count, metadata, created_at, updated_at
	FROM documents`

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var meta string
	err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.ContentHash,
		&doc.ChunkCount, &meta, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := unmarshalMeta(meta, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}
