package index

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"vectordb/internal/lock"
	"vectordb/internal/vector"
)

// LSHConfig tunes the random-hyperplane locality sensitive hash index.
type LSHConfig struct {
	Config
	NumTables int
	KeySize   int
	Seed      int64
}

// DefaultLSHConfig returns the tuning the original implementation ships:
// 10 hash tables of 10 bits each, seeded for reproducibility.
func DefaultLSHConfig(dimension int) LSHConfig {
	return LSHConfig{
		Config:    Config{Dimension: dimension, Metric: vector.Euclidean},
		NumTables: 10,
		KeySize:   10,
		Seed:      42,
	}
}

type lshEntry struct {
	vec []float32
}

// LSH is a multi-table random-hyperplane locality sensitive hash index:
// each table hashes a vector to a bit string by the sign of its dot product
// against a fixed set of random hyperplanes, and vectors that land in the
// same bucket in any table are search candidates.
type LSH struct {
	cfg        LSHConfig
	lk         *lock.RWLock
	hyperplanes [][][]float32 // [table][row][dimension]
	tables      []map[string]map[uuid.UUID]bool
	vectors     map[uuid.UUID]*lshEntry
}

// NewLSH builds an LSH index with hyperplanes drawn from a seeded RNG, so
// construction is deterministic for a given configuration.
func NewLSH(cfg LSHConfig) *LSH {
	rng := rand.New(rand.NewSource(cfg.Seed))
	hyperplanes := make([][][]float32, cfg.NumTables)
	tables := make([]map[string]map[uuid.UUID]bool, cfg.NumTables)
	for t := 0; t < cfg.NumTables; t++ {
		planes := make([][]float32, cfg.KeySize)
		for r := 0; r < cfg.KeySize; r++ {
			row := make([]float32, cfg.Dimension)
			for d := 0; d < cfg.Dimension; d++ {
				row[d] = float32(rng.NormFloat64())
			}
			planes[r] = row
		}
		hyperplanes[t] = planes
		tables[t] = make(map[string]map[uuid.UUID]bool)
	}
	return &LSH{
		cfg:         cfg,
		lk:          lock.New(),
		hyperplanes: hyperplanes,
		tables:      tables,
		vectors:     make(map[uuid.UUID]*lshEntry),
	}
}

func (l *LSH) hash(table int, v []float32) string {
	var sb strings.Builder
	sb.Grow(l.cfg.KeySize)
	for _, row := range l.hyperplanes[table] {
		var dot float64
		for d := range v {
			dot += float64(row[d]) * float64(v[d])
		}
		if dot >= 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (l *LSH) addLocked(id uuid.UUID, v []float32) {
	cp := make([]float32, len(v))
	copy(cp, v)
	l.vectors[id] = &lshEntry{vec: cp}
	for t := 0; t < l.cfg.NumTables; t++ {
		key := l.hash(t, v)
		bucket, ok := l.tables[t][key]
		if !ok {
			bucket = make(map[uuid.UUID]bool)
			l.tables[t][key] = bucket
		}
		bucket[id] = true
	}
}

// Add inserts one vector under the given id, rejecting a dimension
// mismatch or a duplicate id.
func (l *LSH) Add(id uuid.UUID, v []float32) error {
	if err := validateDimension(l.cfg.Config, v); err != nil {
		return err
	}
	l.lk.Lock()
	defer l.lk.Unlock()
	_, exists := l.vectors[id]
	if err := validateNewID(exists, id); err != nil {
		return err
	}
	l.addLocked(id, v)
	return nil
}

// AddBatch inserts many vectors under one write lock acquisition, or none
// if any entry fails validation.
func (l *LSH) AddBatch(ids []uuid.UUID, vs [][]float32) error {
	for _, v := range vs {
		if err := validateDimension(l.cfg.Config, v); err != nil {
			return err
		}
	}
	l.lk.Lock()
	defer l.lk.Unlock()
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		_, exists := l.vectors[id]
		if err := validateNewID(exists || seen[id], id); err != nil {
			return err
		}
		seen[id] = true
	}
	for i, id := range ids {
		l.addLocked(id, vs[i])
	}
	return nil
}

// Search unions the candidate buckets from every table the query vector
// hashes into, optionally intersects with filter, computes exact distances
// against the stored vectors, and returns the k closest.
func (l *LSH) Search(v []float32, k int, filter map[uuid.UUID]bool) ([]Result, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()

	candidates := make(map[uuid.UUID]bool)
	for t := 0; t < l.cfg.NumTables; t++ {
		key := l.hash(t, v)
		for id := range l.tables[t][key] {
			candidates[id] = true
		}
	}

	results := make([]Result, 0, len(candidates))
	for id := range candidates {
		if filter != nil && !filter[id] {
			continue
		}
		entry := l.vectors[id]
		results = append(results, Result{ID: id, Distance: vector.Distance(l.cfg.Metric, v, entry.vec)})
	}
	return sortResults(results, k), nil
}

// Remove recomputes the stored vector's hash in each table to find and
// drop its bucket membership, deleting any bucket left empty.
func (l *LSH) Remove(id uuid.UUID) error {
	l.lk.Lock()
	defer l.lk.Unlock()

	entry, ok := l.vectors[id]
	if !ok {
		return nil
	}
	for t := 0; t < l.cfg.NumTables; t++ {
		key := l.hash(t, entry.vec)
		bucket := l.tables[t][key]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(l.tables[t], key)
		}
	}
	delete(l.vectors, id)
	return nil
}

// Clear drops every vector and bucket.
func (l *LSH) Clear() {
	l.lk.Lock()
	defer l.lk.Unlock()
	for t := 0; t < l.cfg.NumTables; t++ {
		l.tables[t] = make(map[string]map[uuid.UUID]bool)
	}
	l.vectors = make(map[uuid.UUID]*lshEntry)
}

// Size returns the number of indexed vectors.
func (l *LSH) Size() int {
	l.lk.RLock()
	defer l.lk.RUnlock()
	return len(l.vectors)
}
