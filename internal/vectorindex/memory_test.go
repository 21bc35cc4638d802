package vectorindex

import (
	"context"
	"testing"

	"chatpdf-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(index int, text string, vec ...float32) model.EmbeddingRecord {
	return model.EmbeddingRecord{Chunk: model.Chunk{DocumentID: "ns", Index: index, Page: 1, Text: text}, Vector: vec}
}

func TestMemoryStore_UpsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Upsert(ctx, "ns", []model.EmbeddingRecord{
		record(0, "a", 1, 0),
		record(1, "b", 0, 1),
		record(2, "c", 1, 1),
	}))
	namespaces, err := s.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ns"}, namespaces)

	results, err := s.Search(ctx, "ns", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "c", results[1].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	empty, err := s.Search(ctx, "other", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.DeleteNamespace(ctx, "ns"))
	require.NoError(t, s.DeleteNamespace(ctx, "ns"))
	namespaces, _ = s.ListNamespaces(ctx)
	assert.Empty(t, namespaces)
}

func TestMemoryStore_RejectsMixedDimensions(t *testing.T) {
	s := NewMemoryStore()
	err := s.Upsert(context.Background(), "ns", []model.EmbeddingRecord{record(0, "a", 1, 0), record(1, "b", 1)})
	assert.Error(t, err)
	namespaces, _ := s.ListNamespaces(context.Background())
	assert.Empty(t, namespaces)
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 1}))
}
