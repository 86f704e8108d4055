package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosys/chasm/internal/store"
)

func TestIngestDocumentDedups(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	doc := &store.Document{Title: "runbook", Content: "restart the worker pool"}
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		_, err := tx.IngestDocument(doc, []string{"restart the", "worker pool"})
		return err
	}))
	versionAfterFirst := st.CurrentVersion()

	// Same content again: the existing row comes back, nothing is written,
	// no event is appended.
	var again *store.Document
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		var err error
		again, err = tx.IngestDocument(&store.Document{Title: "copy", Content: "restart the worker pool"}, nil)
		return err
	}))
	require.Equal(t, doc.ID, again.ID)
	require.Equal(t, versionAfterFirst, st.CurrentVersion())

	docs, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, 2, docs[0].ChunkCount)
}

func TestDocumentChunksAndSearch(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	doc := &store.Document{Content: "checkpoint restore procedure for stuck sessions"}
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		_, err := tx.IngestDocument(doc, []string{"checkpoint restore", "procedure"})
		return err
	}))

	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		chunks, err := tx.DocumentChunks(doc.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		require.Equal(t, 0, chunks[0].ChunkIndex)
		require.Equal(t, "checkpoint restore", chunks[0].Content)
		return nil
	}))

	hits, err := st.SearchDocuments(ctx, "restore", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, doc.ID, hits[0].EntityID)

	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		return tx.DeleteDocument(doc.ID)
	}))
	hits, err = st.SearchDocuments(ctx, "restore", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestPutEmbeddingUpserts(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	sess := createSession(t, st)
	msgs := appendMessages(t, st, sess.ID, store.MainBranch, 0, nil, "embed me")

	put := func(vector []byte) {
		require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
			return tx.PutEmbedding(&store.Embedding{
				SourceType: store.EmbedMessage,
				SourceID:   msgs[0].ID,
				Model:      "embedder-v1",
				Vector:     vector,
				Dims:       2,
			})
		}))
	}

	put([]byte{1, 2})
	put([]byte{3, 4})

	var got *store.Embedding
	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		var err error
		got, err = tx.GetEmbedding(store.EmbedMessage, msgs[0].ID, "embedder-v1")
		return err
	}))
	require.Equal(t, []byte{3, 4}, got.Vector)

	// Rejections: unknown source type, empty vector.
	err := st.Run(ctx, func(tx *store.Tx) error {
		return tx.PutEmbedding(&store.Embedding{SourceType: "tweet", SourceID: "x", Model: "m", Vector: []byte{1}})
	})
	require.ErrorIs(t, err, store.ErrIntegrity)

	err = st.Run(ctx, func(tx *store.Tx) error {
		return tx.PutEmbedding(&store.Embedding{SourceType: store.EmbedMessage, SourceID: "x", Model: "m"})
	})
	require.ErrorIs(t, err, store.ErrIntegrity)
}

func TestRecordImportBumpsVersion(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	sess := createSession(t, st)

	var v1, v2 int
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		var err error
		v1, err = tx.RecordImport(sess.ID, "test", "/tmp/source.json")
		return err
	}))
	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		var err error
		v2, err = tx.RecordImport(sess.ID, "test", "/tmp/source.json")
		return err
	}))

	require.Equal(t, 1, v1)
	require.Equal(t, 2, v2)
}

func TestTags(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	sess := createSession(t, st)

	require.NoError(t, st.Run(ctx, func(tx *store.Tx) error {
		tag, err := tx.EnsureTag("golang")
		if err != nil {
			return err
		}
		// Same name resolves to the same tag.
		same, err := tx.EnsureTag("golang")
		if err != nil {
			return err
		}
		require.Equal(t, tag.ID, same.ID)

		if err := tx.TagSession(sess.ID, tag.ID); err != nil {
			return err
		}
		// Double-tagging is a no-op.
		return tx.TagSession(sess.ID, tag.ID)
	}))

	tags, err := st.SessionTags(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"golang"}, tags)
}
