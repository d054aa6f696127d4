package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakespeare-quote-api/internal/application/quote"
	apperrors "shakespeare-quote-api/pkg/errors"
)

type captureStore struct {
	inserted [][]*quote.Fragment
	err      error
}

func (s *captureStore) Insert(ctx context.Context, fragments []*quote.Fragment) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, fragments)
	return nil
}

func (s *captureStore) Query(ctx context.Context, vector []float32, limit int, predicates map[string]string) ([]*quote.Candidate, error) {
	return nil, nil
}
func (s *captureStore) Get(ctx context.Context, id string) (*quote.Fragment, error) { return nil, nil }
func (s *captureStore) Delete(ctx context.Context, ids []string) error              { return nil }
func (s *captureStore) Count(ctx context.Context) (int64, error)                    { return 0, nil }

type batchEmbedder struct {
	dim     int
	batches [][]string
	err     error
}

func (e *batchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, e.dim), nil
}

func (e *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}

func TestIngestAssignsContentDerivedIDs(t *testing.T) {
	store := &captureStore{}
	embedder := &batchEmbedder{dim: 4}
	ing := NewIngestor(store, embedder, 0)

	count, err := ing.Ingest(context.Background(), []*ChunkRecord{
		{ChunkText: "To be, or not to be", PlayTitle: "Hamlet", Character: "Hamlet"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, store.inserted, 1)
	frag := store.inserted[0][0]
	assert.Equal(t, ContentID("Hamlet", "Hamlet", "To be, or not to be"), frag.ID)
	assert.Len(t, frag.Embedding, 4)
	assert.Equal(t, "Hamlet", frag.Meta.PlayTitle)
}

func TestContentIDStable(t *testing.T) {
	a := ContentID("Hamlet", "Hamlet", "To be, or not to be")
	b := ContentID("Hamlet", "Hamlet", "To be, or not to be")
	c := ContentID("Hamlet", "Ophelia", "To be, or not to be")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestIngestKeepsExplicitIDs(t *testing.T) {
	store := &captureStore{}
	ing := NewIngestor(store, &batchEmbedder{dim: 4}, 0)

	_, err := ing.Ingest(context.Background(), []*ChunkRecord{
		{ChunkID: "custom-id", ChunkText: "some text"},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-id", store.inserted[0][0].ID)
}

func TestIngestRejectsBatchWithEmptyText(t *testing.T) {
	store := &captureStore{}
	ing := NewIngestor(store, &batchEmbedder{dim: 4}, 0)

	_, err := ing.Ingest(context.Background(), []*ChunkRecord{
		{ChunkText: "valid text"},
		{ChunkText: "   "},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIngestFailed))

	// 批次原子：没有任何写入
	assert.Empty(t, store.inserted)
}

func TestIngestEmbedsInConfiguredBatches(t *testing.T) {
	store := &captureStore{}
	embedder := &batchEmbedder{dim: 4}
	ing := NewIngestor(store, embedder, 2)

	records := make([]*ChunkRecord, 5)
	for i := range records {
		records[i] = &ChunkRecord{ChunkText: fmt.Sprintf("fragment %d", i)}
	}

	count, err := ing.Ingest(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// 5 条按批大小 2 分为 3 批
	require.Len(t, embedder.batches, 3)
	assert.Len(t, embedder.batches[0], 2)
	assert.Len(t, embedder.batches[2], 1)

	// 写入仍是单次整批
	require.Len(t, store.inserted, 1)
	assert.Len(t, store.inserted[0], 5)
}

func TestIngestEmptyInputIsNoOp(t *testing.T) {
	store := &captureStore{}
	ing := NewIngestor(store, &batchEmbedder{dim: 4}, 0)

	count, err := ing.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, store.inserted)
}

func TestIngestEmbeddingFailureAborts(t *testing.T) {
	store := &captureStore{}
	ing := NewIngestor(store, &batchEmbedder{dim: 4, err: fmt.Errorf("embedding service down")}, 0)

	_, err := ing.Ingest(context.Background(), []*ChunkRecord{{ChunkText: "text"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingFailed))
	assert.Empty(t, store.inserted)
}
