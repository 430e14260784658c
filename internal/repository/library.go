// Package repository implements the in-memory storage of Library and Chunk
// entities, guarded by their own RWLock, with defensive copies on every
// read and write so callers never observe or mutate internal state through
// an aliased pointer.
package repository

import (
	"sort"

	"vectordb/internal/domain"
	"vectordb/internal/lock"
	"vectordb/internal/vdberr"
)

// LibraryRepository stores Library entities keyed by id, enforcing
// name uniqueness.
type LibraryRepository struct {
	lk        *lock.RWLock
	byID      map[string]*domain.Library
	byName    map[string]string // name -> id
}

// NewLibraryRepository returns an empty repository.
func NewLibraryRepository() *LibraryRepository {
	return &LibraryRepository{
		lk:     lock.New(),
		byID:   make(map[string]*domain.Library),
		byName: make(map[string]string),
	}
}

// Create stores lib, rejecting a duplicate id or name.
func (r *LibraryRepository) Create(lib *domain.Library) (*domain.Library, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	if _, exists := r.byID[lib.ID]; exists {
		return nil, vdberr.Conflictf("duplicate_id", "library %s already exists", lib.ID)
	}
	if _, exists := r.byName[lib.Name]; exists {
		return nil, vdberr.Conflictf("duplicate_name", "library named %q already exists", lib.Name)
	}

	r.byID[lib.ID] = lib.Clone()
	r.byName[lib.Name] = lib.ID
	return lib.Clone(), nil
}

// Get returns a copy of the library with the given id.
func (r *LibraryRepository) Get(id string) (*domain.Library, error) {
	r.lk.RLock()
	defer r.lk.RUnlock()

	lib, ok := r.byID[id]
	if !ok {
		return nil, vdberr.NotFoundf("library", id)
	}
	return lib.Clone(), nil
}

// GetByName returns a copy of the library with the given name.
func (r *LibraryRepository) GetByName(name string) (*domain.Library, error) {
	r.lk.RLock()
	defer r.lk.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, vdberr.NotFoundf("library", name)
	}
	return r.byID[id].Clone(), nil
}

// Update overwrites the stored library, re-checking name uniqueness if the
// name changed.
func (r *LibraryRepository) Update(lib *domain.Library) (*domain.Library, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	existing, ok := r.byID[lib.ID]
	if !ok {
		return nil, vdberr.NotFoundf("library", lib.ID)
	}
	if existing.Name != lib.Name {
		if ownerID, taken := r.byName[lib.Name]; taken && ownerID != lib.ID {
			return nil, vdberr.Conflictf("duplicate_name", "library named %q already exists", lib.Name)
		}
		delete(r.byName, existing.Name)
		r.byName[lib.Name] = lib.ID
	}
	r.byID[lib.ID] = lib.Clone()
	return lib.Clone(), nil
}

// UpdateStats applies chunkDelta and documentDelta to the library's
// TotalChunks/TotalDocuments counters without requiring callers to
// read-modify-write the whole entity.
func (r *LibraryRepository) UpdateStats(id string, chunkDelta, documentDelta int) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	lib, ok := r.byID[id]
	if !ok {
		return vdberr.NotFoundf("library", id)
	}
	lib.TotalChunks += chunkDelta
	if lib.TotalChunks < 0 {
		lib.TotalChunks = 0
	}
	lib.TotalDocuments += documentDelta
	if lib.TotalDocuments < 0 {
		lib.TotalDocuments = 0
	}
	return nil
}

// Delete removes the library and its name index entry.
func (r *LibraryRepository) Delete(id string) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	lib, ok := r.byID[id]
	if !ok {
		return vdberr.NotFoundf("library", id)
	}
	delete(r.byID, id)
	delete(r.byName, lib.Name)
	return nil
}

// List returns copies of every library, sorted by id for deterministic
// output.
func (r *LibraryRepository) List() []*domain.Library {
	r.lk.RLock()
	defer r.lk.RUnlock()

	out := make([]*domain.Library, 0, len(r.byID))
	for _, lib := range r.byID {
		out = append(out, lib.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByIndexKind returns copies of every library configured with kind.
func (r *LibraryRepository) ListByIndexKind(kind domain.IndexKind) []*domain.Library {
	r.lk.RLock()
	defer r.lk.RUnlock()

	out := make([]*domain.Library, 0)
	for _, lib := range r.byID {
		if lib.IndexKind == kind {
			out = append(out, lib.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of stored libraries.
func (r *LibraryRepository) Count() int {
	r.lk.RLock()
	defer r.lk.RUnlock()
	return len(r.byID)
}
