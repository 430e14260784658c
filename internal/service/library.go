// Package service implements the three services that sit above the
// repositories: LibraryService owns the process-wide index instances,
// ChunkService enforces the vector/library invariants under hierarchical
// locking, and SearchService answers filtered and multi-library queries.
package service

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"vectordb/internal/domain"
	"vectordb/internal/index"
	"vectordb/internal/repository"
	"vectordb/internal/vdberr"
)

// maxDimension is the largest embedding dimension a library may declare.
const maxDimension = 4096

// LibraryService owns the process-wide map from library id to its live
// Index instance, alongside the persisted Library entities.
type LibraryService struct {
	repo   *repository.LibraryRepository
	logger OperationLogger

	mu      sync.Mutex
	indexes map[string]index.Index
}

// NewLibraryService wires a LibraryService onto a repository. logger may be
// nil, in which case library mutations are not recorded to a WAL (useful
// for tests).
func NewLibraryService(repo *repository.LibraryRepository, logger OperationLogger) *LibraryService {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LibraryService{
		repo:    repo,
		logger:  logger,
		indexes: make(map[string]index.Index),
	}
}

// CreateLibrary validates the request, constructs the backing index, and
// only then persists the entity: if index construction fails, nothing is
// stored.
func (s *LibraryService) CreateLibrary(name string, dimension int, kind domain.IndexKind, description string, metadata map[string]any) (*domain.Library, error) {
	if name == "" {
		return nil, vdberr.Validationf("name", "library name must not be empty")
	}
	if dimension <= 0 {
		return nil, vdberr.Validationf("dimension", "dimension must be positive, got %d", dimension)
	}
	if dimension > maxDimension {
		return nil, vdberr.Validationf("dimension", "dimension must not exceed %d, got %d", maxDimension, dimension)
	}
	if _, err := s.repo.GetByName(name); err == nil {
		return nil, vdberr.Conflictf("duplicate_name", "library named %q already exists", name)
	}

	idx, err := index.New(kind, dimension)
	if err != nil {
		return nil, vdberr.Validationf("index_kind", "%v", err)
	}

	now := time.Now()
	lib := &domain.Library{
		ID:          uuid.NewString(),
		Name:        name,
		Dimension:   dimension,
		IndexKind:   kind,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.logger.LogOperation("library.create", lib.ID, lib); err != nil {
		return nil, vdberr.Internalf(err, "log library create")
	}

	stored, err := s.repo.Create(lib)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.indexes[stored.ID] = idx
	s.mu.Unlock()

	return stored, nil
}

// GetLibrary returns the library entity, lazily reconstructing its index
// instance if it was dropped (e.g. after recovery) rather than failing.
func (s *LibraryService) GetLibrary(id string) (*domain.Library, error) {
	lib, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	s.ensureIndex(lib)
	return lib, nil
}

// GetLibraryByName mirrors GetLibrary, looked up by name.
func (s *LibraryService) GetLibraryByName(name string) (*domain.Library, error) {
	lib, err := s.repo.GetByName(name)
	if err != nil {
		return nil, err
	}
	s.ensureIndex(lib)
	return lib, nil
}

func (s *LibraryService) ensureIndex(lib *domain.Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[lib.ID]; ok {
		return
	}
	idx, err := index.New(lib.IndexKind, lib.Dimension)
	if err != nil {
		log.Printf("library %s: failed to reconstruct index: %v", lib.ID, err)
		return
	}
	log.Printf("library %s: reconstructing missing index instance", lib.ID)
	s.indexes[lib.ID] = idx
}

// GetIndex returns the live index instance for a library, reconstructing
// it if necessary.
func (s *LibraryService) GetIndex(libraryID string) (index.Index, error) {
	s.mu.Lock()
	idx, ok := s.indexes[libraryID]
	s.mu.Unlock()
	if ok {
		return idx, nil
	}
	lib, err := s.repo.Get(libraryID)
	if err != nil {
		return nil, err
	}
	s.ensureIndex(lib)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok = s.indexes[libraryID]
	if !ok {
		return nil, vdberr.Indexf(string(lib.IndexKind), "reconstruct", fmt.Errorf("index instance unavailable for library %s", libraryID))
	}
	return idx, nil
}

// SetIndex installs idx as the live instance for libraryID. Used by
// recovery to restore an index rebuilt from replayed chunk data.
func (s *LibraryService) SetIndex(libraryID string, idx index.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[libraryID] = idx
}

// UpdateLibrary patches name/description/metadata, re-checking name
// uniqueness if the name changed.
func (s *LibraryService) UpdateLibrary(id string, name, description *string, metadata map[string]any) (*domain.Library, error) {
	lib, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		if *name == "" {
			return nil, vdberr.Validationf("name", "library name must not be empty")
		}
		lib.Name = *name
	}
	if description != nil {
		lib.Description = *description
	}
	if metadata != nil {
		lib.Metadata = metadata
	}
	lib.UpdatedAt = time.Now()

	if _, err := s.logger.LogOperation("library.update", lib.ID, lib); err != nil {
		return nil, vdberr.Internalf(err, "log library update")
	}

	return s.repo.Update(lib)
}

// BuildIndex runs a post-load finalization step for index kinds that need
// one. None of LSH, HNSW or KD-Tree require it today since they build
// incrementally; this hook exists so a future index kind (e.g. an IVF
// index needing a training pass) has somewhere to plug in without another
// service-layer change.
func (s *LibraryService) BuildIndex(libraryID string) error {
	idx, err := s.GetIndex(libraryID)
	if err != nil {
		return err
	}
	type builder interface{ Build() error }
	if b, ok := idx.(builder); ok {
		return b.Build()
	}
	log.Printf("library %s: index kind has no build step, skipping", libraryID)
	return nil
}

// DeleteLibrary clears and drops the library's index and deletes the
// entity.
func (s *LibraryService) DeleteLibrary(id string) error {
	if _, err := s.repo.Get(id); err != nil {
		return err
	}

	if _, err := s.logger.LogOperation("library.delete", id, nil); err != nil {
		return vdberr.Internalf(err, "log library delete")
	}

	s.mu.Lock()
	if idx, ok := s.indexes[id]; ok {
		idx.Clear()
		delete(s.indexes, id)
	}
	s.mu.Unlock()
	return s.repo.Delete(id)
}

// ListLibraries returns every stored library.
func (s *LibraryService) ListLibraries() []*domain.Library {
	return s.repo.List()
}

// ListByIndexKind returns every library configured with kind.
func (s *LibraryService) ListByIndexKind(kind domain.IndexKind) []*domain.Library {
	return s.repo.ListByIndexKind(kind)
}

// CountLibraries reports the total number of libraries.
func (s *LibraryService) CountLibraries() int {
	return s.repo.Count()
}
