package repository

import (
	"sort"

	"vectordb/internal/domain"
	"vectordb/internal/lock"
	"vectordb/internal/vdberr"
)

// ChunkRepository stores Chunk entities keyed by id, with a secondary index
// from document id to the chunk ids belonging to it.
type ChunkRepository struct {
	lk         *lock.RWLock
	byID       map[string]*domain.Chunk
	byDocument map[string][]string // document_id -> chunk ids
}

// NewChunkRepository returns an empty repository.
func NewChunkRepository() *ChunkRepository {
	return &ChunkRepository{
		lk:         lock.New(),
		byID:       make(map[string]*domain.Chunk),
		byDocument: make(map[string][]string),
	}
}

func (r *ChunkRepository) indexDocument(c *domain.Chunk) {
	if c.DocumentID == "" {
		return
	}
	r.byDocument[c.DocumentID] = append(r.byDocument[c.DocumentID], c.ID)
}

func (r *ChunkRepository) unindexDocument(c *domain.Chunk) {
	if c.DocumentID == "" {
		return
	}
	ids := r.byDocument[c.DocumentID]
	for i, id := range ids {
		if id == c.ID {
			r.byDocument[c.DocumentID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byDocument[c.DocumentID]) == 0 {
		delete(r.byDocument, c.DocumentID)
	}
}

// Create stores c, rejecting a duplicate id.
func (r *ChunkRepository) Create(c *domain.Chunk) (*domain.Chunk, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	if _, exists := r.byID[c.ID]; exists {
		return nil, vdberr.Conflictf("duplicate_id", "chunk %s already exists", c.ID)
	}
	cp := c.Clone()
	r.byID[c.ID] = cp
	r.indexDocument(cp)
	return c.Clone(), nil
}

// CreateBulk stores every chunk, or none: if any id collides with an
// existing chunk or another chunk in the same batch, nothing is stored.
func (r *ChunkRepository) CreateBulk(chunks []*domain.Chunk) ([]*domain.Chunk, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if _, exists := r.byID[c.ID]; exists {
			return nil, vdberr.Conflictf("duplicate_id", "chunk %s already exists", c.ID)
		}
		if seen[c.ID] {
			return nil, vdberr.Conflictf("duplicate_id", "chunk %s duplicated in batch", c.ID)
		}
		seen[c.ID] = true
	}

	out := make([]*domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		cp := c.Clone()
		r.byID[c.ID] = cp
		r.indexDocument(cp)
		out = append(out, c.Clone())
	}
	return out, nil
}

// Get returns a copy of the chunk with the given id.
func (r *ChunkRepository) Get(id string) (*domain.Chunk, error) {
	r.lk.RLock()
	defer r.lk.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, vdberr.NotFoundf("chunk", id)
	}
	return c.Clone(), nil
}

// Update overwrites the stored chunk, fixing up the document index if the
// document id changed.
func (r *ChunkRepository) Update(c *domain.Chunk) (*domain.Chunk, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	existing, ok := r.byID[c.ID]
	if !ok {
		return nil, vdberr.NotFoundf("chunk", c.ID)
	}
	if existing.DocumentID != c.DocumentID {
		r.unindexDocument(existing)
		r.byID[c.ID] = c.Clone()
		r.indexDocument(r.byID[c.ID])
	} else {
		r.byID[c.ID] = c.Clone()
	}
	return c.Clone(), nil
}

// Delete removes the chunk and its document index entry.
func (r *ChunkRepository) Delete(id string) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return vdberr.NotFoundf("chunk", id)
	}
	r.unindexDocument(c)
	delete(r.byID, id)
	return nil
}

// GetByDocument returns copies of every chunk belonging to documentID,
// sorted by ChunkIndex.
func (r *ChunkRepository) GetByDocument(documentID string) []*domain.Chunk {
	r.lk.RLock()
	defer r.lk.RUnlock()

	ids := r.byDocument[documentID]
	out := make([]*domain.Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

// DeleteByDocument removes every chunk belonging to documentID and returns
// how many were removed.
func (r *ChunkRepository) DeleteByDocument(documentID string) int {
	r.lk.Lock()
	defer r.lk.Unlock()

	ids := append([]string(nil), r.byDocument[documentID]...)
	for _, id := range ids {
		delete(r.byID, id)
	}
	delete(r.byDocument, documentID)
	return len(ids)
}

// ListByLibrary returns copies of every chunk belonging to libraryID.
func (r *ChunkRepository) ListByLibrary(libraryID string) []*domain.Chunk {
	r.lk.RLock()
	defer r.lk.RUnlock()

	out := make([]*domain.Chunk, 0)
	for _, c := range r.byID {
		if c.LibraryID == libraryID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SearchByMetadata returns up to limit chunks in libraryID whose metadata
// satisfies every filter (short-circuit AND semantics: the first failing
// filter excludes the chunk).
func (r *ChunkRepository) SearchByMetadata(libraryID string, filters map[string]any, limit int) []*domain.Chunk {
	r.lk.RLock()
	defer r.lk.RUnlock()

	out := make([]*domain.Chunk, 0)
	for _, c := range r.byID {
		if c.LibraryID != libraryID {
			continue
		}
		if !matchesMetadata(c.Metadata, filters) {
			continue
		}
		out = append(out, c.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchesMetadata(metadata map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if sub, isMap := want.(map[string]any); isMap {
			if !applyOperatorFilter(got, ok, sub) {
				return false
			}
			continue
		}
		if !ok || got != want {
			return false
		}
	}
	return true
}

// applyOperatorFilter evaluates one metadata field against an operator
// expression like {"$gt": 5, "$in": [...]}. Every operator present must
// pass for the field to match.
func applyOperatorFilter(value any, present bool, ops map[string]any) bool {
	for op, arg := range ops {
		switch op {
		case "$gt":
			if !present || !numericCompare(value, arg, func(a, b float64) bool { return a > b }) {
				return false
			}
		case "$gte":
			if !present || !numericCompare(value, arg, func(a, b float64) bool { return a >= b }) {
				return false
			}
		case "$lt":
			if !present || !numericCompare(value, arg, func(a, b float64) bool { return a < b }) {
				return false
			}
		case "$lte":
			if !present || !numericCompare(value, arg, func(a, b float64) bool { return a <= b }) {
				return false
			}
		case "$ne":
			if present && value == arg {
				return false
			}
		case "$in":
			if !present || !containsAny(arg, value) {
				return false
			}
		case "$nin":
			if present && containsAny(arg, value) {
				return false
			}
		}
	}
	return true
}

func numericCompare(value, arg any, cmp func(a, b float64) bool) bool {
	a, aok := toFloat64(value)
	b, bok := toFloat64(arg)
	if !aok || !bok {
		return false
	}
	return cmp(a, b)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func containsAny(list any, value any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count() int {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return len(r.byID)
}
