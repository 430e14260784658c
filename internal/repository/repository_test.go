package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectordb/internal/domain"
	"vectordb/internal/vdberr"
)

func TestLibraryRepositoryDuplicateName(t *testing.T) {
	r := NewLibraryRepository()
	lib := &domain.Library{ID: uuid.NewString(), Name: "docs", Dimension: 4}
	_, err := r.Create(lib)
	require.NoError(t, err)

	other := &domain.Library{ID: uuid.NewString(), Name: "docs", Dimension: 4}
	_, err = r.Create(other)
	require.Error(t, err)
	assert.True(t, vdberr.Is(err, vdberr.Conflict))
}

func TestLibraryRepositoryGetNotFound(t *testing.T) {
	r := NewLibraryRepository()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, vdberr.Is(err, vdberr.NotFound))
}

func TestLibraryRepositoryUpdateStats(t *testing.T) {
	r := NewLibraryRepository()
	lib := &domain.Library{ID: uuid.NewString(), Name: "docs", Dimension: 4}
	_, err := r.Create(lib)
	require.NoError(t, err)

	require.NoError(t, r.UpdateStats(lib.ID, 3, 0))
	got, err := r.Get(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalChunks)

	require.NoError(t, r.UpdateStats(lib.ID, -10, 0))
	got, _ = r.Get(lib.ID)
	assert.Equal(t, 0, got.TotalChunks)
}

func TestChunkRepositoryCreateBulkAllOrNothing(t *testing.T) {
	r := NewChunkRepository()
	id := uuid.NewString()
	chunks := []*domain.Chunk{
		{ID: id, LibraryID: "lib1", Content: "a"},
		{ID: id, LibraryID: "lib1", Content: "b"},
	}
	_, err := r.CreateBulk(chunks)
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestChunkRepositoryByDocument(t *testing.T) {
	r := NewChunkRepository()
	doc := uuid.NewString()
	for i := 2; i >= 0; i-- {
		c := &domain.Chunk{ID: uuid.NewString(), LibraryID: "lib1", DocumentID: doc, ChunkIndex: i}
		_, err := r.Create(c)
		require.NoError(t, err)
	}
	got := r.GetByDocument(doc)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, 2, got[2].ChunkIndex)

	removed := r.DeleteByDocument(doc)
	assert.Equal(t, 3, removed)
	assert.Empty(t, r.GetByDocument(doc))
}

func TestChunkRepositorySearchByMetadataOperators(t *testing.T) {
	r := NewChunkRepository()
	lib := "lib1"
	mk := func(score float64, tag string) *domain.Chunk {
		return &domain.Chunk{
			ID:        uuid.NewString(),
			LibraryID: lib,
			Metadata:  map[string]any{"score": score, "tag": tag},
		}
	}
	c1, _ := r.Create(mk(1.0, "a"))
	c2, _ := r.Create(mk(5.0, "b"))
	_, _ = r.Create(mk(9.0, "c"))

	results := r.SearchByMetadata(lib, map[string]any{
		"score": map[string]any{"$gte": 1.0, "$lt": 9.0},
	}, 10)
	require.Len(t, results, 2)
	ids := map[string]bool{results[0].ID: true, results[1].ID: true}
	assert.True(t, ids[c1.ID])
	assert.True(t, ids[c2.ID])

	inResults := r.SearchByMetadata(lib, map[string]any{
		"tag": map[string]any{"$in": []any{"a", "c"}},
	}, 10)
	assert.Len(t, inResults, 2)
}
