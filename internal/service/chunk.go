package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"vectordb/internal/domain"
	"vectordb/internal/lock"
	"vectordb/internal/repository"
	"vectordb/internal/vdberr"
)

// OperationLogger is the subset of the persistence manager a service needs
// to record a mutation to the write-ahead log before applying it in
// memory. Defined here rather than imported from internal/persistence to
// avoid a service <-> persistence import cycle (persistence's recovery
// path reaches repositories and services only through the StateProvider
// interface that vectordb.System implements).
type OperationLogger interface {
	LogOperation(operationType, resourceID string, data any) (int64, error)
}

type noopLogger struct{}

func (noopLogger) LogOperation(string, string, any) (int64, error) { return -1, nil }

// ChunkService enforces the chunk/library/index invariants: every mutation
// acquires the resources it touches in hierarchical-lock order, logs the
// operation, and only then applies it to the repository and index.
type ChunkService struct {
	chunks    *repository.ChunkRepository
	libraries *LibraryService
	locks     *lock.Manager
	logger    OperationLogger
}

// NewChunkService wires a ChunkService onto its repository and the
// LibraryService that owns index instances. logger may be nil, in which
// case mutations are not recorded to a WAL (useful for tests).
func NewChunkService(chunks *repository.ChunkRepository, libraries *LibraryService, locks *lock.Manager, logger OperationLogger) *ChunkService {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ChunkService{chunks: chunks, libraries: libraries, locks: locks, logger: logger}
}

// maxContentLength is the largest number of characters a chunk's content
// may hold.
const maxContentLength = 10000

func validateContent(content string) error {
	if content == "" {
		return vdberr.Validationf("content", "content must not be empty")
	}
	if len([]rune(content)) > maxContentLength {
		return vdberr.Validationf("content", "content must not exceed %d characters", maxContentLength)
	}
	return nil
}

func (s *ChunkService) validateEmbedding(libraryID string, embedding []float32) (*domain.Library, error) {
	lib, err := s.libraries.GetLibrary(libraryID)
	if err != nil {
		return nil, err
	}
	if len(embedding) != lib.Dimension {
		return nil, vdberr.Validationf("embedding", "expected dimension %d, got %d", lib.Dimension, len(embedding))
	}
	return lib, nil
}

func chunkIndexID(c *domain.Chunk) (uuid.UUID, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, vdberr.Internalf(err, "parse chunk id %s", c.ID)
	}
	return id, nil
}

// CreateChunk validates the embedding against its library's dimension,
// persists the chunk, adds it to the live index, and bumps the library's
// chunk counter.
func (s *ChunkService) CreateChunk(libraryID, content string, embedding []float32, documentID string, chunkIndex int, metadata map[string]any) (*domain.Chunk, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	lib, err := s.validateEmbedding(libraryID, embedding)
	if err != nil {
		return nil, err
	}

	h := s.locks.AcquireHierarchical([]lock.Request{
		{Level: lock.Library, ID: libraryID, Mode: lock.Read},
		{Level: lock.Index, ID: libraryID, Mode: lock.Write},
	})
	defer h.Release()

	idx, err := s.libraries.GetIndex(libraryID)
	if err != nil {
		return nil, err
	}

	isNewDocument := documentID != "" && len(s.chunks.GetByDocument(documentID)) == 0

	now := time.Now()
	c := &domain.Chunk{
		ID:         uuid.NewString(),
		LibraryID:  libraryID,
		Content:    content,
		Embedding:  embedding,
		DocumentID: documentID,
		ChunkIndex: chunkIndex,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.logger.LogOperation("chunk.create", c.ID, c); err != nil {
		return nil, vdberr.Internalf(err, "log chunk create")
	}

	stored, err := s.chunks.Create(c)
	if err != nil {
		return nil, err
	}
	vecID, err := chunkIndexID(stored)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(vecID, stored.Embedding); err != nil {
		return nil, vdberr.Indexf(string(lib.IndexKind), "add", err)
	}
	documentDelta := 0
	if isNewDocument {
		documentDelta = 1
	}
	if err := s.libraries.repo.UpdateStats(libraryID, 1, documentDelta); err != nil {
		return nil, err
	}
	return stored, nil
}

// CreateChunksBulk validates and inserts many chunks in one index batch
// call, or none if any fail validation or repository insertion.
func (s *ChunkService) CreateChunksBulk(libraryID string, inputs []ChunkInput) ([]*domain.Chunk, error) {
	lib, err := s.libraries.GetLibrary(libraryID)
	if err != nil {
		return nil, err
	}

	h := s.locks.AcquireHierarchical([]lock.Request{
		{Level: lock.Library, ID: libraryID, Mode: lock.Read},
		{Level: lock.Index, ID: libraryID, Mode: lock.Write},
	})
	defer h.Release()

	idx, err := s.libraries.GetIndex(libraryID)
	if err != nil {
		return nil, err
	}

	existingDocuments := make(map[string]bool)
	for _, c := range s.chunks.ListByLibrary(libraryID) {
		if c.DocumentID != "" {
			existingDocuments[c.DocumentID] = true
		}
	}

	now := time.Now()
	chunks := make([]*domain.Chunk, len(inputs))
	newDocuments := 0
	for i, in := range inputs {
		if err := validateContent(in.Content); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if len(in.Embedding) != lib.Dimension {
			return nil, vdberr.Validationf("embedding", "chunk %d: expected dimension %d, got %d", i, lib.Dimension, len(in.Embedding))
		}
		if in.DocumentID != "" && !existingDocuments[in.DocumentID] {
			existingDocuments[in.DocumentID] = true
			newDocuments++
		}
		chunks[i] = &domain.Chunk{
			ID:         uuid.NewString(),
			LibraryID:  libraryID,
			Content:    in.Content,
			Embedding:  in.Embedding,
			DocumentID: in.DocumentID,
			ChunkIndex: in.ChunkIndex,
			Metadata:   in.Metadata,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	if _, err := s.logger.LogOperation("chunk.create_bulk", libraryID, chunks); err != nil {
		return nil, vdberr.Internalf(err, "log chunk bulk create")
	}

	stored, err := s.chunks.CreateBulk(chunks)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(stored))
	vecs := make([][]float32, len(stored))
	for i, c := range stored {
		id, err := chunkIndexID(c)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		vecs[i] = c.Embedding
	}
	if err := idx.AddBatch(ids, vecs); err != nil {
		return nil, vdberr.Indexf(string(lib.IndexKind), "add_batch", err)
	}
	if err := s.libraries.repo.UpdateStats(libraryID, len(stored), newDocuments); err != nil {
		return nil, err
	}
	return stored, nil
}

// ChunkInput is one element of a bulk-create request.
type ChunkInput struct {
	Content    string
	Embedding  []float32
	DocumentID string
	ChunkIndex int
	Metadata   map[string]any
}

// GetChunk returns a chunk by id.
func (s *ChunkService) GetChunk(id string) (*domain.Chunk, error) {
	return s.chunks.Get(id)
}

// UpdateChunk patches a chunk's content/metadata and, if the embedding
// changed, removes and re-adds it in the index so the index never holds a
// stale vector.
func (s *ChunkService) UpdateChunk(id string, content *string, embedding []float32, metadata map[string]any) (*domain.Chunk, error) {
	existing, err := s.chunks.Get(id)
	if err != nil {
		return nil, err
	}

	h := s.locks.AcquireHierarchical([]lock.Request{
		{Level: lock.Library, ID: existing.LibraryID, Mode: lock.Read},
		{Level: lock.Index, ID: existing.LibraryID, Mode: lock.Write},
		{Level: lock.Chunk, ID: id, Mode: lock.Write},
	})
	defer h.Release()

	lib, err := s.libraries.GetLibrary(existing.LibraryID)
	if err != nil {
		return nil, err
	}

	embeddingChanged := embedding != nil
	if embeddingChanged && len(embedding) != lib.Dimension {
		return nil, vdberr.Validationf("embedding", "expected dimension %d, got %d", lib.Dimension, len(embedding))
	}
	if content != nil {
		if err := validateContent(*content); err != nil {
			return nil, err
		}
	}

	if content != nil {
		existing.Content = *content
	}
	if metadata != nil {
		existing.Metadata = metadata
	}
	if embeddingChanged {
		existing.Embedding = embedding
	}
	existing.UpdatedAt = time.Now()

	if _, err := s.logger.LogOperation("chunk.update", id, existing); err != nil {
		return nil, vdberr.Internalf(err, "log chunk update")
	}

	stored, err := s.chunks.Update(existing)
	if err != nil {
		return nil, err
	}

	if embeddingChanged {
		idx, err := s.libraries.GetIndex(existing.LibraryID)
		if err != nil {
			return nil, err
		}
		vecID, err := chunkIndexID(stored)
		if err != nil {
			return nil, err
		}
		if err := idx.Remove(vecID); err != nil {
			return nil, vdberr.Indexf(string(lib.IndexKind), "remove", err)
		}
		if err := idx.Add(vecID, stored.Embedding); err != nil {
			return nil, vdberr.Indexf(string(lib.IndexKind), "add", err)
		}
	}
	return stored, nil
}

// DeleteChunk removes a chunk from the index and repository, decrementing
// the owning library's counter.
func (s *ChunkService) DeleteChunk(id string) error {
	existing, err := s.chunks.Get(id)
	if err != nil {
		return err
	}

	h := s.locks.AcquireHierarchical([]lock.Request{
		{Level: lock.Library, ID: existing.LibraryID, Mode: lock.Write},
		{Level: lock.Index, ID: existing.LibraryID, Mode: lock.Write},
	})
	defer h.Release()

	if _, err := s.logger.LogOperation("chunk.delete", id, nil); err != nil {
		return vdberr.Internalf(err, "log chunk delete")
	}

	idx, err := s.libraries.GetIndex(existing.LibraryID)
	if err != nil {
		return err
	}
	vecID, err := chunkIndexID(existing)
	if err != nil {
		return err
	}
	if err := idx.Remove(vecID); err != nil {
		return vdberr.Indexf("index", "remove", err)
	}
	if err := s.chunks.Delete(id); err != nil {
		return err
	}
	documentDelta := 0
	if existing.DocumentID != "" && len(s.chunks.GetByDocument(existing.DocumentID)) == 0 {
		documentDelta = -1
	}
	return s.libraries.repo.UpdateStats(existing.LibraryID, -1, documentDelta)
}

// DeleteChunksByDocument removes every chunk under documentID from the
// library's index and repository.
func (s *ChunkService) DeleteChunksByDocument(libraryID, documentID string) (int, error) {
	h := s.locks.AcquireHierarchical([]lock.Request{
		{Level: lock.Library, ID: libraryID, Mode: lock.Write},
		{Level: lock.Index, ID: libraryID, Mode: lock.Write},
	})
	defer h.Release()

	chunks := s.chunks.GetByDocument(documentID)
	idx, err := s.libraries.GetIndex(libraryID)
	if err != nil {
		return 0, err
	}
	for _, c := range chunks {
		vecID, err := chunkIndexID(c)
		if err != nil {
			return 0, err
		}
		if err := idx.Remove(vecID); err != nil {
			return 0, vdberr.Indexf("index", "remove", err)
		}
	}
	removed := s.chunks.DeleteByDocument(documentID)
	documentDelta := 0
	if documentID != "" && removed > 0 {
		documentDelta = -1
	}
	if err := s.libraries.repo.UpdateStats(libraryID, -removed, documentDelta); err != nil {
		return 0, err
	}
	return removed, nil
}

// ListChunks returns every chunk in a library.
func (s *ChunkService) ListChunks(libraryID string) []*domain.Chunk {
	return s.chunks.ListByLibrary(libraryID)
}

// GetChunksByDocument returns every chunk under a document id, ordered by
// chunk index.
func (s *ChunkService) GetChunksByDocument(documentID string) []*domain.Chunk {
	return s.chunks.GetByDocument(documentID)
}
