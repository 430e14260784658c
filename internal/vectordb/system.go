// Package vectordb wires repositories, services, and the persistence
// pipeline into one System, the single construction point the CLI and
// tests use instead of reaching for package-level globals.
package vectordb

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"vectordb/internal/config"
	"vectordb/internal/domain"
	"vectordb/internal/lock"
	"vectordb/internal/persistence"
	"vectordb/internal/recovery"
	"vectordb/internal/repository"
	"vectordb/internal/service"
	"vectordb/internal/snapshot"
	"vectordb/internal/wal"
)

func parseChunkID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse chunk id %s: %w", id, err)
	}
	return parsed, nil
}

// System is the explicitly-constructed root of the whole library: one
// System per process (or per test), never a package-level singleton.
type System struct {
	Config config.Config

	Libraries *repository.LibraryRepository
	Chunks    *repository.ChunkRepository
	Locks     *lock.Manager

	LibraryService *service.LibraryService
	ChunkService   *service.ChunkService
	SearchService  *service.SearchService

	wal         *wal.WAL
	snapshotStr *snapshot.Store
	Persistence *persistence.Manager
	Recovery    *recovery.Service
}

// New builds a System from cfg. When cfg.PersistenceEnabled is false, the
// WAL/snapshot/persistence/recovery fields are left nil and every mutation
// simply skips logging.
func New(cfg config.Config) (*System, error) {
	sys := &System{
		Config:    cfg,
		Libraries: repository.NewLibraryRepository(),
		Chunks:    repository.NewChunkRepository(),
		Locks:     lock.NewManager(),
	}

	var logger service.OperationLogger
	if cfg.PersistenceEnabled {
		w, err := wal.Open(cfg.WALDirectory, cfg.SegmentSize)
		if err != nil {
			return nil, fmt.Errorf("open wal: %w", err)
		}
		store, err := snapshot.NewStore(cfg.SnapshotDirectory, cfg.SnapshotCompress)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		sys.wal = w
		sys.snapshotStr = store
		sys.Persistence = persistence.NewManager(w, store, sys)
		sys.Recovery = recovery.NewService(sys.Persistence, sys.counts)
		logger = sys.Persistence
	}

	sys.LibraryService = service.NewLibraryService(sys.Libraries, logger)
	sys.ChunkService = service.NewChunkService(sys.Chunks, sys.LibraryService, sys.Locks, logger)
	sys.SearchService = service.NewSearchService(sys.LibraryService, sys.Chunks, cfg.CacheTTL)
	return sys, nil
}

// Close stops background persistence loops and closes the WAL.
func (s *System) Close() error {
	if s.Persistence != nil {
		s.Persistence.Stop()
	}
	if s.wal != nil {
		return s.wal.Close()
	}
	return nil
}

func (s *System) counts() map[string]int {
	return map[string]int{
		"libraries": s.Libraries.Count(),
		"chunks":    s.Chunks.Count(),
	}
}

// state is the full recoverable snapshot payload: every library and every
// chunk, flat, with the index instances rebuilt from chunk embeddings
// after restore rather than serialized themselves.
type state struct {
	Libraries []*domain.Library `msgpack:"libraries"`
	Chunks    []*domain.Chunk   `msgpack:"chunks"`
}

// State implements persistence.StateProvider.
func (s *System) State() (any, error) {
	return &state{
		Libraries: s.Libraries.List(),
		Chunks:    s.allChunks(),
	}, nil
}

func (s *System) allChunks() []*domain.Chunk {
	var out []*domain.Chunk
	for _, lib := range s.Libraries.List() {
		out = append(out, s.Chunks.ListByLibrary(lib.ID)...)
	}
	return out
}

// NewState implements persistence.StateProvider.
func (s *System) NewState() any { return &state{} }

// RestoreState implements persistence.StateProvider: it repopulates both
// repositories and rebuilds each library's index from its chunks'
// embeddings, since the index instances themselves are not part of the
// snapshot payload.
func (s *System) RestoreState(raw any) error {
	st, ok := raw.(*state)
	if !ok {
		return fmt.Errorf("restore state: unexpected snapshot shape %T", raw)
	}

	var logger service.OperationLogger
	if s.Persistence != nil {
		logger = s.Persistence
	}

	s.Libraries = repository.NewLibraryRepository()
	s.Chunks = repository.NewChunkRepository()
	s.LibraryService = service.NewLibraryService(s.Libraries, logger)

	for _, lib := range st.Libraries {
		if _, err := s.Libraries.Create(lib); err != nil {
			return fmt.Errorf("restore library %s: %w", lib.ID, err)
		}
		// GetLibrary's side effect of lazily reconstructing the index
		// instance is what we want here; the entity itself is discarded.
		if _, err := s.LibraryService.GetLibrary(lib.ID); err != nil {
			return fmt.Errorf("reconstruct index for library %s: %w", lib.ID, err)
		}
	}

	chunksByLibrary := make(map[string][]*domain.Chunk)
	for _, c := range st.Chunks {
		if _, err := s.Chunks.Create(c); err != nil {
			return fmt.Errorf("restore chunk %s: %w", c.ID, err)
		}
		chunksByLibrary[c.LibraryID] = append(chunksByLibrary[c.LibraryID], c)
	}

	for libID, chunks := range chunksByLibrary {
		idx, err := s.LibraryService.GetIndex(libID)
		if err != nil {
			return fmt.Errorf("rebuild index for library %s: %w", libID, err)
		}
		for _, c := range chunks {
			vecID, err := parseChunkID(c.ID)
			if err != nil {
				return err
			}
			if err := idx.Add(vecID, c.Embedding); err != nil {
				return fmt.Errorf("rebuild index entry %s: %w", c.ID, err)
			}
		}
	}

	s.ChunkService = service.NewChunkService(s.Chunks, s.LibraryService, s.Locks, logger)
	s.SearchService = service.NewSearchService(s.LibraryService, s.Chunks, s.Config.CacheTTL)
	return nil
}

// ReplayOperation implements persistence.StateProvider: it applies one
// WAL-logged library or chunk mutation. Chunk mutations and library
// create/update go directly against the repositories and index, bypassing
// ChunkService; library.delete goes through LibraryService. Neither path
// re-logs to the WAL being read, since LogOperation is a no-op while
// recovery runs.
func (s *System) ReplayOperation(operationType, resourceID string, data json.RawMessage) error {
	switch operationType {
	case "library.create":
		var lib domain.Library
		if err := json.Unmarshal(data, &lib); err != nil {
			return fmt.Errorf("replay library.create: %w", err)
		}
		if _, err := s.Libraries.Create(&lib); err != nil {
			return fmt.Errorf("replay library.create: %w", err)
		}
		if _, err := s.LibraryService.GetLibrary(lib.ID); err != nil {
			return fmt.Errorf("replay library.create: %w", err)
		}
		return nil

	case "library.update":
		var lib domain.Library
		if err := json.Unmarshal(data, &lib); err != nil {
			return fmt.Errorf("replay library.update: %w", err)
		}
		if _, err := s.Libraries.Update(&lib); err != nil {
			return fmt.Errorf("replay library.update: %w", err)
		}
		return nil

	case "library.delete":
		// LogOperation is a no-op while isRecovering is set, so calling
		// through the service here is safe: it won't re-append to the WAL
		// it is being replayed from.
		if err := s.LibraryService.DeleteLibrary(resourceID); err != nil {
			return fmt.Errorf("replay library.delete: %w", err)
		}
		return nil

	case "chunk.create":
		var c domain.Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("replay chunk.create: %w", err)
		}
		isNewDocument := c.DocumentID != "" && len(s.Chunks.GetByDocument(c.DocumentID)) == 0
		if _, err := s.Chunks.Create(&c); err != nil {
			return fmt.Errorf("replay chunk.create: %w", err)
		}
		idx, err := s.LibraryService.GetIndex(c.LibraryID)
		if err != nil {
			return fmt.Errorf("replay chunk.create: %w", err)
		}
		vecID, err := parseChunkID(c.ID)
		if err != nil {
			return err
		}
		if err := idx.Add(vecID, c.Embedding); err != nil {
			return fmt.Errorf("replay chunk.create: %w", err)
		}
		documentDelta := 0
		if isNewDocument {
			documentDelta = 1
		}
		return s.Libraries.UpdateStats(c.LibraryID, 1, documentDelta)

	case "chunk.create_bulk":
		var chunks []*domain.Chunk
		if err := json.Unmarshal(data, &chunks); err != nil {
			return fmt.Errorf("replay chunk.create_bulk: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		existingDocuments := make(map[string]bool)
		for _, c := range s.Chunks.ListByLibrary(chunks[0].LibraryID) {
			if c.DocumentID != "" {
				existingDocuments[c.DocumentID] = true
			}
		}
		newDocuments := 0
		for _, c := range chunks {
			if c.DocumentID != "" && !existingDocuments[c.DocumentID] {
				existingDocuments[c.DocumentID] = true
				newDocuments++
			}
		}
		if _, err := s.Chunks.CreateBulk(chunks); err != nil {
			return fmt.Errorf("replay chunk.create_bulk: %w", err)
		}
		idx, err := s.LibraryService.GetIndex(chunks[0].LibraryID)
		if err != nil {
			return fmt.Errorf("replay chunk.create_bulk: %w", err)
		}
		for _, c := range chunks {
			vecID, err := parseChunkID(c.ID)
			if err != nil {
				return err
			}
			if err := idx.Add(vecID, c.Embedding); err != nil {
				return fmt.Errorf("replay chunk.create_bulk: %w", err)
			}
		}
		return s.Libraries.UpdateStats(chunks[0].LibraryID, len(chunks), newDocuments)

	case "chunk.update":
		var c domain.Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("replay chunk.update: %w", err)
		}
		previous, err := s.Chunks.Get(c.ID)
		if err != nil {
			return fmt.Errorf("replay chunk.update: %w", err)
		}
		if _, err := s.Chunks.Update(&c); err != nil {
			return fmt.Errorf("replay chunk.update: %w", err)
		}
		embeddingChanged := len(previous.Embedding) != len(c.Embedding)
		if !embeddingChanged {
			for i := range previous.Embedding {
				if previous.Embedding[i] != c.Embedding[i] {
					embeddingChanged = true
					break
				}
			}
		}
		if !embeddingChanged {
			return nil
		}
		idx, err := s.LibraryService.GetIndex(c.LibraryID)
		if err != nil {
			return fmt.Errorf("replay chunk.update: %w", err)
		}
		vecID, err := parseChunkID(c.ID)
		if err != nil {
			return err
		}
		if err := idx.Remove(vecID); err != nil {
			return fmt.Errorf("replay chunk.update: %w", err)
		}
		if err := idx.Add(vecID, c.Embedding); err != nil {
			return fmt.Errorf("replay chunk.update: %w", err)
		}
		return nil

	case "chunk.delete":
		existing, err := s.Chunks.Get(resourceID)
		if err != nil {
			return fmt.Errorf("replay chunk.delete: %w", err)
		}
		idx, err := s.LibraryService.GetIndex(existing.LibraryID)
		if err != nil {
			return fmt.Errorf("replay chunk.delete: %w", err)
		}
		vecID, err := parseChunkID(existing.ID)
		if err != nil {
			return err
		}
		if err := idx.Remove(vecID); err != nil {
			return fmt.Errorf("replay chunk.delete: %w", err)
		}
		if err := s.Chunks.Delete(resourceID); err != nil {
			return fmt.Errorf("replay chunk.delete: %w", err)
		}
		documentDelta := 0
		if existing.DocumentID != "" && len(s.Chunks.GetByDocument(existing.DocumentID)) == 0 {
			documentDelta = -1
		}
		return s.Libraries.UpdateStats(existing.LibraryID, -1, documentDelta)

	default:
		return fmt.Errorf("replay: unknown operation type %q", operationType)
	}
}
