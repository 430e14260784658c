package index

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectordb/internal/domain"
)

func seedVectors(n, dim int) ([]uuid.UUID, [][]float32) {
	ids := make([]uuid.UUID, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = uuid.New()
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32((i*7 + d*3) % 53)
		}
		vecs[i] = v
	}
	return ids, vecs
}

func testIndexRoundTrip(t *testing.T, idx Index) {
	ids, vecs := seedVectors(50, 8)
	require.NoError(t, idx.AddBatch(ids, vecs))
	assert.Equal(t, 50, idx.Size())

	results, err := idx.Search(vecs[0], 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, ids[0], results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)

	require.NoError(t, idx.Remove(ids[0]))
	assert.Equal(t, 49, idx.Size())

	idx.Clear()
	assert.Equal(t, 0, idx.Size())
}

func TestLSHRoundTrip(t *testing.T) {
	testIndexRoundTrip(t, NewLSH(DefaultLSHConfig(8)))
}

func TestHNSWRoundTrip(t *testing.T) {
	testIndexRoundTrip(t, NewHNSW(DefaultHNSWConfig(8)))
}

func TestKDTreeRoundTrip(t *testing.T) {
	testIndexRoundTrip(t, NewKDTree(DefaultKDTreeConfig(8)))
}

func testIndexRejectsDimensionMismatch(t *testing.T, idx Index) {
	id := uuid.New()
	err := idx.Add(id, []float32{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, 0, idx.Size())

	ids, _ := seedVectors(2, 8)
	err = idx.AddBatch(ids, [][]float32{{1, 2, 3}, {1, 2, 3, 4, 5, 6, 7, 8}})
	require.Error(t, err)
	assert.Equal(t, 0, idx.Size())
}

func testIndexRejectsDuplicateID(t *testing.T, idx Index) {
	ids, vecs := seedVectors(3, 8)
	require.NoError(t, idx.Add(ids[0], vecs[0]))

	err := idx.Add(ids[0], vecs[1])
	require.Error(t, err)
	assert.Equal(t, 1, idx.Size())

	err = idx.AddBatch([]uuid.UUID{ids[1], ids[1]}, [][]float32{vecs[1], vecs[1]})
	require.Error(t, err)
	assert.Equal(t, 1, idx.Size())

	err = idx.AddBatch(ids[:2], vecs[:2])
	require.Error(t, err)
	assert.Equal(t, 1, idx.Size())
}

func TestLSHRejectsDimensionMismatch(t *testing.T) {
	testIndexRejectsDimensionMismatch(t, NewLSH(DefaultLSHConfig(8)))
}

func TestLSHRejectsDuplicateID(t *testing.T) {
	testIndexRejectsDuplicateID(t, NewLSH(DefaultLSHConfig(8)))
}

func TestHNSWRejectsDimensionMismatch(t *testing.T) {
	testIndexRejectsDimensionMismatch(t, NewHNSW(DefaultHNSWConfig(8)))
}

func TestHNSWRejectsDuplicateID(t *testing.T) {
	testIndexRejectsDuplicateID(t, NewHNSW(DefaultHNSWConfig(8)))
}

func TestKDTreeRejectsDimensionMismatch(t *testing.T) {
	testIndexRejectsDimensionMismatch(t, NewKDTree(DefaultKDTreeConfig(8)))
}

func TestKDTreeRejectsDuplicateID(t *testing.T) {
	testIndexRejectsDuplicateID(t, NewKDTree(DefaultKDTreeConfig(8)))
}

func TestHNSWSearchFilter(t *testing.T) {
	idx := NewHNSW(DefaultHNSWConfig(4))
	ids, vecs := seedVectors(20, 4)
	require.NoError(t, idx.AddBatch(ids, vecs))

	filter := map[uuid.UUID]bool{ids[3]: true, ids[7]: true}
	results, err := idx.Search(vecs[3], 5, filter)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, filter[r.ID])
	}
}

func TestFactoryNew(t *testing.T) {
	for _, kind := range []domain.IndexKind{domain.IndexLSH, domain.IndexHNSW, domain.IndexKDTree} {
		idx, err := New(kind, 4)
		require.NoError(t, err)
		require.NotNil(t, idx)
	}
	_, err := New(domain.IndexKind("bogus"), 4)
	assert.Error(t, err)
}

func TestDefaultTuning(t *testing.T) {
	tuning, err := DefaultTuning(domain.IndexHNSW, 128)
	require.NoError(t, err)
	assert.Equal(t, 16, tuning["m"])
	assert.Equal(t, 200, tuning["ef_construction"])
}
