package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectordb/internal/domain"
	"vectordb/internal/lock"
	"vectordb/internal/repository"
)

func newTestStack() (*LibraryService, *ChunkService, *SearchService) {
	libRepo := repository.NewLibraryRepository()
	chunkRepo := repository.NewChunkRepository()
	locks := lock.NewManager()

	libSvc := NewLibraryService(libRepo, nil)
	chunkSvc := NewChunkService(chunkRepo, libSvc, locks, nil)
	searchSvc := NewSearchService(libSvc, chunkRepo, time.Minute)
	return libSvc, chunkSvc, searchSvc
}

func TestCreateLibraryRejectsDuplicateName(t *testing.T) {
	libSvc, _, _ := newTestStack()
	_, err := libSvc.CreateLibrary("docs", 4, domain.IndexHNSW, "", nil)
	require.NoError(t, err)

	_, err = libSvc.CreateLibrary("docs", 4, domain.IndexHNSW, "", nil)
	require.Error(t, err)
}

func TestCreateChunkRejectsDimensionMismatch(t *testing.T) {
	libSvc, chunkSvc, _ := newTestStack()
	lib, err := libSvc.CreateLibrary("docs", 4, domain.IndexHNSW, "", nil)
	require.NoError(t, err)

	_, err = chunkSvc.CreateChunk(lib.ID, "hello", []float32{1, 2}, "", 0, nil)
	require.Error(t, err)
}

func TestCreateLibraryRejectsOversizedDimension(t *testing.T) {
	libSvc, _, _ := newTestStack()
	_, err := libSvc.CreateLibrary("docs", 4097, domain.IndexHNSW, "", nil)
	require.Error(t, err)
}

func TestCreateChunkRejectsEmptyOrOversizedContent(t *testing.T) {
	libSvc, chunkSvc, _ := newTestStack()
	lib, err := libSvc.CreateLibrary("docs", 2, domain.IndexHNSW, "", nil)
	require.NoError(t, err)

	_, err = chunkSvc.CreateChunk(lib.ID, "", []float32{1, 2}, "", 0, nil)
	require.Error(t, err)

	oversized := make([]byte, 10001)
	for i := range oversized {
		oversized[i] = 'a'
	}
	_, err = chunkSvc.CreateChunk(lib.ID, string(oversized), []float32{1, 2}, "", 0, nil)
	require.Error(t, err)
}

func TestCreateChunkTracksDocumentCounter(t *testing.T) {
	libSvc, chunkSvc, _ := newTestStack()
	lib, err := libSvc.CreateLibrary("docs", 2, domain.IndexHNSW, "", nil)
	require.NoError(t, err)

	c1, err := chunkSvc.CreateChunk(lib.ID, "alpha", []float32{1, 0}, "doc1", 0, nil)
	require.NoError(t, err)
	_, err = chunkSvc.CreateChunk(lib.ID, "beta", []float32{0, 1}, "doc1", 1, nil)
	require.NoError(t, err)
	_, err = chunkSvc.CreateChunk(lib.ID, "gamma", []float32{1, 1}, "doc2", 0, nil)
	require.NoError(t, err)

	got, err := libSvc.GetLibrary(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalChunks)
	assert.Equal(t, 2, got.TotalDocuments)

	require.NoError(t, chunkSvc.DeleteChunk(c1.ID))
	got, err = libSvc.GetLibrary(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalChunks)
	assert.Equal(t, 2, got.TotalDocuments)

	removed, err := chunkSvc.DeleteChunksByDocument(lib.ID, "doc2")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	got, err = libSvc.GetLibrary(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalChunks)
	assert.Equal(t, 1, got.TotalDocuments)
}

func TestCreateChunkAndSearch(t *testing.T) {
	libSvc, chunkSvc, searchSvc := newTestStack()
	lib, err := libSvc.CreateLibrary("docs", 3, domain.IndexHNSW, "", nil)
	require.NoError(t, err)

	c1, err := chunkSvc.CreateChunk(lib.ID, "alpha", []float32{1, 0, 0}, "doc1", 0, map[string]any{"lang": "en"})
	require.NoError(t, err)
	_, err = chunkSvc.CreateChunk(lib.ID, "beta", []float32{0, 1, 0}, "doc1", 1, map[string]any{"lang": "fr"})
	require.NoError(t, err)

	got, err := libSvc.GetLibrary(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalChunks)

	results, err := searchSvc.Search(lib.ID, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, c1.ID, results[0].ChunkID)

	filtered, err := searchSvc.Search(lib.ID, []float32{1, 0, 0}, 2, map[string]any{"lang": "fr"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "beta", filtered[0].Content)
}

func TestDeleteChunkDecrementsCounter(t *testing.T) {
	libSvc, chunkSvc, _ := newTestStack()
	lib, err := libSvc.CreateLibrary("docs", 2, domain.IndexLSH, "", nil)
	require.NoError(t, err)

	c, err := chunkSvc.CreateChunk(lib.ID, "x", []float32{1, 1}, "", 0, nil)
	require.NoError(t, err)

	require.NoError(t, chunkSvc.DeleteChunk(c.ID))
	got, err := libSvc.GetLibrary(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalChunks)

	_, err = chunkSvc.GetChunk(c.ID)
	assert.Error(t, err)
}

func TestMultiLibrarySearch(t *testing.T) {
	libSvc, chunkSvc, searchSvc := newTestStack()
	lib1, err := libSvc.CreateLibrary("a", 2, domain.IndexKDTree, "", nil)
	require.NoError(t, err)
	lib2, err := libSvc.CreateLibrary("b", 2, domain.IndexKDTree, "", nil)
	require.NoError(t, err)

	_, err = chunkSvc.CreateChunk(lib1.ID, "a1", []float32{1, 1}, "", 0, nil)
	require.NoError(t, err)
	_, err = chunkSvc.CreateChunk(lib2.ID, "b1", []float32{2, 2}, "", 0, nil)
	require.NoError(t, err)

	results, err := searchSvc.MultiLibrarySearch(context.Background(), []string{lib1.ID, lib2.ID}, []float32{1, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}
