package index

import (
	"container/heap"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"vectordb/internal/lock"
	"vectordb/internal/vector"
)

// HNSWConfig tunes the hierarchical navigable small world graph.
type HNSWConfig struct {
	Config
	M              int
	EfConstruction int
	MaxM           int
	MaxM0          int
	Ml             float64
	Seed           int64
}

// DefaultHNSWConfig mirrors the original implementation's tuning: M=16
// bidirectional links per node (doubled at layer 0), ef_construction=200,
// and a level-assignment multiplier of 1/ln(2).
func DefaultHNSWConfig(dimension int) HNSWConfig {
	m := 16
	return HNSWConfig{
		Config:         Config{Dimension: dimension, Metric: vector.Euclidean},
		M:              m,
		EfConstruction: 200,
		MaxM:           m,
		MaxM0:          2 * m,
		Ml:             1 / math.Log(2),
		Seed:           42,
	}
}

type hnswNode struct {
	id        uuid.UUID
	vec       []float32
	level     int
	neighbors map[int]map[uuid.UUID]bool
}

// HNSW is a hierarchical navigable small world graph: nodes are assigned a
// random top layer, linked into layered proximity graphs, and searched by
// greedy descent from the entry point followed by a beam search at the
// base layer.
type HNSW struct {
	cfg        HNSWConfig
	lk         *lock.RWLock
	rng        *rand.Rand
	nodes      map[uuid.UUID]*hnswNode
	entryPoint uuid.UUID
	hasEntry   bool
	maxLevel   int
}

// NewHNSW builds an empty HNSW index with a seeded level-assignment RNG.
func NewHNSW(cfg HNSWConfig) *HNSW {
	return &HNSW{
		cfg:   cfg,
		lk:    lock.New(),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		nodes: make(map[uuid.UUID]*hnswNode),
	}
}

func (h *HNSW) randomLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 {
		level++
	}
	return level
}

func (h *HNSW) dist(a, b []float32) float64 {
	return vector.Distance(h.cfg.Metric, a, b)
}

// candidateHeap is a min-heap of (distance, id) ordered ascending, used to
// drive greedy descent and the layer-0 beam search frontier.
type candidateHeap []Result

func (c candidateHeap) Len() int            { return len(c) }
func (c candidateHeap) Less(i, j int) bool  { return c[i].Distance < c[j].Distance }
func (c candidateHeap) Swap(i, j int)       { c[i], c[j] = c[j], c[i] }
func (c *candidateHeap) Push(x any)         { *c = append(*c, x.(Result)) }
func (c *candidateHeap) Pop() any {
	old := *c
	n := len(old)
	item := old[n-1]
	*c = old[:n-1]
	return item
}

// farthestHeap is a max-heap of (distance, id) ordered descending, used to
// keep the current best-k candidates with O(log k) eviction of the worst.
type farthestHeap []Result

func (c farthestHeap) Len() int            { return len(c) }
func (c farthestHeap) Less(i, j int) bool  { return c[i].Distance > c[j].Distance }
func (c farthestHeap) Swap(i, j int)       { c[i], c[j] = c[j], c[i] }
func (c *farthestHeap) Push(x any)         { *c = append(*c, x.(Result)) }
func (c *farthestHeap) Pop() any {
	old := *c
	n := len(old)
	item := old[n-1]
	*c = old[:n-1]
	return item
}

// searchLayer runs a greedy beam search on a single layer starting from
// entryPoints, keeping up to ef candidates, and returns them sorted
// ascending by distance.
func (h *HNSW) searchLayer(query []float32, entryPoints []uuid.UUID, ef, layer int, filter map[uuid.UUID]bool) []Result {
	visited := make(map[uuid.UUID]bool)
	candidates := &candidateHeap{}
	best := &farthestHeap{}

	for _, id := range entryPoints {
		if visited[id] {
			continue
		}
		visited[id] = true
		d := h.dist(query, h.nodes[id].vec)
		heap.Push(candidates, Result{ID: id, Distance: d})
		if filter == nil || filter[id] {
			heap.Push(best, Result{ID: id, Distance: d})
		}
	}

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(Result)
		if best.Len() >= ef && current.Distance > (*best)[0].Distance {
			break
		}
		node := h.nodes[current.ID]
		for neighborID := range node.neighbors[layer] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true
			d := h.dist(query, h.nodes[neighborID].vec)
			if best.Len() < ef || d < (*best)[0].Distance {
				heap.Push(candidates, Result{ID: neighborID, Distance: d})
				if filter == nil || filter[neighborID] {
					heap.Push(best, Result{ID: neighborID, Distance: d})
					if best.Len() > ef {
						heap.Pop(best)
					}
				}
			}
		}
	}

	out := make([]Result, best.Len())
	copy(out, *best)
	return sortResults(out, len(out))
}

func (h *HNSW) selectNeighbors(candidates []Result, m int) []uuid.UUID {
	sorted := sortResults(candidates, len(candidates))
	if len(sorted) > m {
		sorted = sorted[:m]
	}
	ids := make([]uuid.UUID, len(sorted))
	for i, r := range sorted {
		ids[i] = r.ID
	}
	return ids
}

func (h *HNSW) connect(id uuid.UUID, layer int, neighbors []uuid.UUID) {
	node := h.nodes[id]
	if node.neighbors[layer] == nil {
		node.neighbors[layer] = make(map[uuid.UUID]bool)
	}
	maxConns := h.cfg.MaxM
	if layer == 0 {
		maxConns = h.cfg.MaxM0
	}
	for _, nid := range neighbors {
		node.neighbors[layer][nid] = true
		other := h.nodes[nid]
		if other.neighbors[layer] == nil {
			other.neighbors[layer] = make(map[uuid.UUID]bool)
		}
		other.neighbors[layer][id] = true
		h.pruneConnections(nid, layer, maxConns)
	}
	h.pruneConnections(id, layer, maxConns)
}

// pruneConnections keeps only the maxConns closest neighbors of id at the
// given layer, dropping the link symmetrically on the far side too.
func (h *HNSW) pruneConnections(id uuid.UUID, layer, maxConns int) {
	node := h.nodes[id]
	neighborSet := node.neighbors[layer]
	if len(neighborSet) <= maxConns {
		return
	}
	candidates := make([]Result, 0, len(neighborSet))
	for nid := range neighborSet {
		candidates = append(candidates, Result{ID: nid, Distance: h.dist(node.vec, h.nodes[nid].vec)})
	}
	sorted := sortResults(candidates, maxConns)
	kept := make(map[uuid.UUID]bool, len(sorted))
	for _, r := range sorted {
		kept[r.ID] = true
	}
	for nid := range neighborSet {
		if !kept[nid] {
			delete(neighborSet, nid)
			if other := h.nodes[nid]; other != nil && other.neighbors[layer] != nil {
				delete(other.neighbors[layer], id)
			}
		}
	}
}

func (h *HNSW) addLocked(id uuid.UUID, v []float32) {
	cp := make([]float32, len(v))
	copy(cp, v)
	level := h.randomLevel()
	node := &hnswNode{id: id, vec: cp, level: level, neighbors: make(map[int]map[uuid.UUID]bool)}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLevel = level
		return
	}

	current := h.entryPoint
	for layer := h.maxLevel; layer > level; layer-- {
		nearest := h.searchLayer(v, []uuid.UUID{current}, 1, layer, nil)
		if len(nearest) > 0 {
			current = nearest[0].ID
		}
	}

	entryPoints := []uuid.UUID{current}
	for layer := min(level, h.maxLevel); layer >= 0; layer-- {
		candidates := h.searchLayer(v, entryPoints, h.cfg.EfConstruction, layer, nil)
		maxConns := h.cfg.MaxM
		if layer == 0 {
			maxConns = h.cfg.MaxM0
		}
		neighbors := h.selectNeighbors(candidates, maxConns)
		h.connect(id, layer, neighbors)
		entryPoints = entryPoints[:0]
		for _, r := range candidates {
			entryPoints = append(entryPoints, r.ID)
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = id
	}
}

// Add inserts one vector, assigning it a random layer and wiring it into
// the proximity graph at each layer up to that level. Rejects a dimension
// mismatch or a duplicate id.
func (h *HNSW) Add(id uuid.UUID, v []float32) error {
	if err := validateDimension(h.cfg.Config, v); err != nil {
		return err
	}
	h.lk.Lock()
	defer h.lk.Unlock()
	_, exists := h.nodes[id]
	if err := validateNewID(exists, id); err != nil {
		return err
	}
	h.addLocked(id, v)
	return nil
}

// AddBatch inserts many vectors under one write lock acquisition, or none
// if any entry fails validation.
func (h *HNSW) AddBatch(ids []uuid.UUID, vs [][]float32) error {
	for _, v := range vs {
		if err := validateDimension(h.cfg.Config, v); err != nil {
			return err
		}
	}
	h.lk.Lock()
	defer h.lk.Unlock()
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		_, exists := h.nodes[id]
		if err := validateNewID(exists || seen[id], id); err != nil {
			return err
		}
		seen[id] = true
	}
	for i, id := range ids {
		h.addLocked(id, vs[i])
	}
	return nil
}

// Search greedily descends through layers above 0 (keeping one candidate
// per layer), then runs a beam search of width max(ef_construction, k) at
// layer 0 and returns the k closest.
func (h *HNSW) Search(v []float32, k int, filter map[uuid.UUID]bool) ([]Result, error) {
	h.lk.RLock()
	defer h.lk.RUnlock()

	if !h.hasEntry {
		return nil, nil
	}

	current := h.entryPoint
	for layer := h.maxLevel; layer > 0; layer-- {
		nearest := h.searchLayer(v, []uuid.UUID{current}, 1, layer, nil)
		if len(nearest) > 0 {
			current = nearest[0].ID
		}
	}

	ef := h.cfg.EfConstruction
	if k > ef {
		ef = k
	}
	results := h.searchLayer(v, []uuid.UUID{current}, ef, 0, filter)
	return sortResults(results, k), nil
}

// Remove drops all of id's edges from its neighbors and deletes the node.
// If id was the entry point, an arbitrary remaining node takes over; this
// is the naive dropout the original implementation also accepts rather
// than a full re-link of the affected neighborhood.
func (h *HNSW) Remove(id uuid.UUID) error {
	h.lk.Lock()
	defer h.lk.Unlock()

	node, ok := h.nodes[id]
	if !ok {
		return nil
	}
	for layer, neighbors := range node.neighbors {
		for nid := range neighbors {
			if other := h.nodes[nid]; other != nil && other.neighbors[layer] != nil {
				delete(other.neighbors[layer], id)
			}
		}
	}
	delete(h.nodes, id)

	if h.hasEntry && h.entryPoint == id {
		h.hasEntry = false
		h.maxLevel = 0
		for otherID, other := range h.nodes {
			h.entryPoint = otherID
			h.hasEntry = true
			h.maxLevel = other.level
			break
		}
	}
	return nil
}

// Clear drops every node.
func (h *HNSW) Clear() {
	h.lk.Lock()
	defer h.lk.Unlock()
	h.nodes = make(map[uuid.UUID]*hnswNode)
	h.hasEntry = false
	h.maxLevel = 0
}

// Size returns the number of indexed vectors.
func (h *HNSW) Size() int {
	h.lk.RLock()
	defer h.lk.RUnlock()
	return len(h.nodes)
}
