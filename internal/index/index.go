// Package index implements the ANN index family (LSH, HNSW, KD-Tree) behind
// a single Index contract, plus a factory for constructing them from a
// library's configured kind.
package index

import (
	"sort"

	"github.com/google/uuid"

	"vectordb/internal/vdberr"
	"vectordb/internal/vector"
)

// Config holds the parameters common to every index kind.
type Config struct {
	Dimension int
	Metric    vector.Metric
}

// Result is one ranked hit from a Search call.
type Result struct {
	ID       uuid.UUID
	Distance float64
}

// Index is the uniform contract every ANN index implements. Each
// implementation guards its own internal state with an RWLock: Search
// takes a read lock, every mutating method takes a write lock.
type Index interface {
	Add(id uuid.UUID, v []float32) error
	AddBatch(ids []uuid.UUID, vs [][]float32) error
	Search(v []float32, k int, filter map[uuid.UUID]bool) ([]Result, error)
	Remove(id uuid.UUID) error
	Clear()
	Size() int
}

// validateDimension rejects a vector whose length doesn't match cfg's
// configured dimension. Every Add/AddBatch entry point calls this before
// touching its internal structures, so a caller bypassing the service
// layer (e.g. a test driving an index directly) still gets a contract-level
// rejection instead of a silent out-of-bounds write.
func validateDimension(cfg Config, v []float32) error {
	if len(v) != cfg.Dimension {
		return vdberr.Validationf("embedding", "expected dimension %d, got %d", cfg.Dimension, len(v))
	}
	return nil
}

// validateNewID rejects an id already present in the index: Add/AddBatch
// insert, they don't silently overwrite.
func validateNewID(exists bool, id uuid.UUID) error {
	if exists {
		return vdberr.Conflictf("duplicate_id", "vector %s already exists in index", id)
	}
	return nil
}

// sortResults sorts hits ascending by distance and truncates to k.
func sortResults(results []Result, k int) []Result {
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results
}
