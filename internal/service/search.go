package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vectordb/internal/lock"
	"vectordb/internal/repository"
	"vectordb/internal/vdberr"
)

// SearchResult is one ranked hit returned to a caller, converting raw index
// distance into a bounded similarity score.
type SearchResult struct {
	ChunkID  string
	Content  string
	Distance float64
	Score    float64
	Metadata map[string]any
}

type cacheEntry struct {
	results []SearchResult
	created time.Time
}

// SearchService answers metadata-filtered nearest-neighbor queries against
// a library's index, with a small result cache and concurrent fan-out
// across libraries.
//
// The original implementation referenced a cache lock that was never
// initialized, leaving the cache's thread-safety ambiguous; here it is
// guarded explicitly with its own RWLock so concurrent searches can never
// race on the cache map.
type SearchService struct {
	libraries *LibraryService
	chunks    *repository.ChunkRepository

	cacheLock *lock.RWLock
	cache     map[string]cacheEntry
	cacheTTL  time.Duration
}

// NewSearchService wires a SearchService with the given cache TTL (zero
// disables caching).
func NewSearchService(libraries *LibraryService, chunks *repository.ChunkRepository, cacheTTL time.Duration) *SearchService {
	return &SearchService{
		libraries: libraries,
		chunks:    chunks,
		cacheLock: lock.New(),
		cache:     make(map[string]cacheEntry),
		cacheTTL:  cacheTTL,
	}
}

func fingerprint(libraryID string, query []float32, k int, filters map[string]any) string {
	h := sha256.New()
	h.Write([]byte(libraryID))
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(k))
	h.Write(buf)
	for _, v := range query {
		binary.LittleEndian.PutUint32(buf, uint32(int32(v*1e6)))
		h.Write(buf)
	}
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		h.Write([]byte(key))
		h.Write([]byte(fmt.Sprintf("=%v;", filters[key])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *SearchService) lookupCache(key string) ([]SearchResult, bool) {
	if s.cacheTTL <= 0 {
		return nil, false
	}
	s.cacheLock.RLock()
	defer s.cacheLock.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.created) > s.cacheTTL {
		return nil, false
	}
	return entry.results, true
}

func (s *SearchService) storeCache(key string, results []SearchResult) {
	if s.cacheTTL <= 0 {
		return
	}
	s.cacheLock.Lock()
	defer s.cacheLock.Unlock()
	s.cache[key] = cacheEntry{results: results, created: time.Now()}
}

// Search runs a k-nearest-neighbor query against libraryID's index,
// optionally narrowed to chunks matching metadataFilters, and returns
// results ranked by descending score.
func (s *SearchService) Search(libraryID string, query []float32, k int, metadataFilters map[string]any) ([]SearchResult, error) {
	lib, err := s.libraries.GetLibrary(libraryID)
	if err != nil {
		return nil, err
	}
	if len(query) != lib.Dimension {
		return nil, vdberr.Validationf("query", "expected dimension %d, got %d", lib.Dimension, len(query))
	}

	key := fingerprint(libraryID, query, k, metadataFilters)
	if cached, ok := s.lookupCache(key); ok {
		return cached, nil
	}

	idx, err := s.libraries.GetIndex(libraryID)
	if err != nil {
		return nil, err
	}

	var filter map[uuid.UUID]bool
	if len(metadataFilters) > 0 {
		candidates := s.chunks.SearchByMetadata(libraryID, metadataFilters, k*10)
		filter = make(map[uuid.UUID]bool, len(candidates))
		for _, c := range candidates {
			id, err := uuid.Parse(c.ID)
			if err != nil {
				continue
			}
			filter[id] = true
		}
		if len(filter) == 0 {
			return nil, nil
		}
	}

	hits, err := idx.Search(query, k, filter)
	if err != nil {
		return nil, vdberr.Indexf(string(lib.IndexKind), "search", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		c, err := s.chunks.Get(hit.ID.String())
		if err != nil {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:  c.ID,
			Content:  c.Content,
			Distance: hit.Distance,
			Score:    1.0 / (1.0 + hit.Distance),
			Metadata: c.Metadata,
		})
	}

	s.storeCache(key, results)
	return results, nil
}

// MultiLibraryResult pairs a library id with its search outcome.
type MultiLibraryResult struct {
	LibraryID string
	Results   []SearchResult
	Err       error
}

// MultiLibrarySearch fans a query out across libraryIDs concurrently,
// returning one result set per library in the same order as the input.
func (s *SearchService) MultiLibrarySearch(ctx context.Context, libraryIDs []string, query []float32, k int, metadataFilters map[string]any) ([]MultiLibraryResult, error) {
	out := make([]MultiLibraryResult, len(libraryIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, libID := range libraryIDs {
		i, libID := i, libID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results, err := s.Search(libID, query, k, metadataFilters)
			out[i] = MultiLibraryResult{LibraryID: libID, Results: results, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// InvalidateCache drops every cached result, e.g. after a bulk mutation.
func (s *SearchService) InvalidateCache() {
	s.cacheLock.Lock()
	defer s.cacheLock.Unlock()
	s.cache = make(map[string]cacheEntry)
}
