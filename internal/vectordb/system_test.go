package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectordb/internal/config"
	"vectordb/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.WALDirectory = dir + "/wal"
	cfg.SnapshotDirectory = dir + "/snapshots"
	cfg.IndexDirectory = dir + "/index"
	return cfg
}

func TestSystemCreateChunkAndSearch(t *testing.T) {
	sys, err := New(testConfig(t))
	require.NoError(t, err)
	defer sys.Close()

	lib, err := sys.LibraryService.CreateLibrary("docs", 3, domain.IndexHNSW, "", nil)
	require.NoError(t, err)

	c, err := sys.ChunkService.CreateChunk(lib.ID, "hello", []float32{1, 0, 0}, "doc1", 0, nil)
	require.NoError(t, err)

	results, err := sys.SearchService.Search(lib.ID, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, c.ID, results[0].ChunkID)
}

func TestSystemSnapshotAndRecover(t *testing.T) {
	cfg := testConfig(t)
	sys, err := New(cfg)
	require.NoError(t, err)

	lib, err := sys.LibraryService.CreateLibrary("docs", 2, domain.IndexKDTree, "", nil)
	require.NoError(t, err)
	_, err = sys.ChunkService.CreateChunk(lib.ID, "a", []float32{1, 1}, "", 0, nil)
	require.NoError(t, err)
	_, err = sys.ChunkService.CreateChunk(lib.ID, "b", []float32{2, 2}, "", 1, nil)
	require.NoError(t, err)

	_, err = sys.Recovery.CreateBackup(cfg.SnapshotRetain)
	require.NoError(t, err)

	_, err = sys.ChunkService.CreateChunk(lib.ID, "c", []float32{3, 3}, "", 2, nil)
	require.NoError(t, err)
	require.NoError(t, sys.Close())

	sys2, err := New(cfg)
	require.NoError(t, err)
	defer sys2.Close()

	report, err := sys2.Recovery.RecoverSystem()
	require.NoError(t, err)
	assert.True(t, report.RecoveredFromSnapshot)
	assert.Equal(t, 1, report.WALEntriesReplayed)

	gotLib, err := sys2.LibraryService.GetLibrary(lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, gotLib.TotalChunks)

	results, err := sys2.SearchService.Search(lib.ID, []float32{1, 1}, 3, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
