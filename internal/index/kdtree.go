package index

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"vectordb/internal/lock"
	"vectordb/internal/vector"
)

// KDTreeConfig tunes the random-projection KD-tree.
type KDTreeConfig struct {
	Config
	LeafSize      int
	ProjectionDim int
	Seed          int64
}

// DefaultKDTreeConfig mirrors the original implementation's tuning: leaves
// of up to 40 vectors, split on a 16-dimensional random projection.
func DefaultKDTreeConfig(dimension int) KDTreeConfig {
	projDim := 16
	if dimension < projDim {
		projDim = dimension
	}
	return KDTreeConfig{
		Config:        Config{Dimension: dimension, Metric: vector.Euclidean},
		LeafSize:      40,
		ProjectionDim: projDim,
		Seed:          42,
	}
}

type kdEntry struct {
	id  uuid.UUID
	vec []float32 // original, unprojected vector
	proj []float32
}

type kdNode struct {
	isLeaf    bool
	entries   []*kdEntry // leaf only
	splitDim  int
	splitVal  float32
	left      *kdNode
	right     *kdNode
	minBound  []float32
	maxBound  []float32
}

// KDTree is a KD-tree built over a random linear projection of the input
// vectors: splitting happens in the reduced projected space, but distances
// reported to callers are always computed on the original vectors.
type KDTree struct {
	cfg        KDTreeConfig
	lk         *lock.RWLock
	projection [][]float32 // [projectionDim][dimension], rows unit-normalized
	entries    map[uuid.UUID]*kdEntry
	root       *kdNode
}

// NewKDTree builds an empty KD-tree with a seeded random projection matrix.
func NewKDTree(cfg KDTreeConfig) *KDTree {
	rng := rand.New(rand.NewSource(cfg.Seed))
	projection := make([][]float32, cfg.ProjectionDim)
	for r := 0; r < cfg.ProjectionDim; r++ {
		row := make([]float32, cfg.Dimension)
		var sumSq float64
		for d := 0; d < cfg.Dimension; d++ {
			val := rng.NormFloat64()
			row[d] = float32(val)
			sumSq += val * val
		}
		norm := math.Sqrt(sumSq)
		if norm > 0 {
			for d := range row {
				row[d] = float32(float64(row[d]) / norm)
			}
		}
		projection[r] = row
	}
	return &KDTree{
		cfg:        cfg,
		lk:         lock.New(),
		projection: projection,
		entries:    make(map[uuid.UUID]*kdEntry),
	}
}

func (t *KDTree) project(v []float32) []float32 {
	out := make([]float32, t.cfg.ProjectionDim)
	for r, row := range t.projection {
		var sum float64
		for d := range v {
			sum += float64(row[d]) * float64(v[d])
		}
		out[r] = float32(sum)
	}
	return out
}

func (t *KDTree) addLocked(id uuid.UUID, v []float32) {
	cp := make([]float32, len(v))
	copy(cp, v)
	e := &kdEntry{id: id, vec: cp, proj: t.project(v)}
	t.entries[id] = e
	t.rebuild()
}

// Add inserts one vector and rebuilds the tree from scratch. A full rebuild
// on every mutation is the simple, correct baseline the original
// implementation also uses; an incremental variant is a valid future
// optimization this index does not need today. Rejects a dimension
// mismatch or a duplicate id.
func (t *KDTree) Add(id uuid.UUID, v []float32) error {
	if err := validateDimension(t.cfg.Config, v); err != nil {
		return err
	}
	t.lk.Lock()
	defer t.lk.Unlock()
	_, exists := t.entries[id]
	if err := validateNewID(exists, id); err != nil {
		return err
	}
	t.addLocked(id, v)
	return nil
}

// AddBatch inserts many vectors and rebuilds the tree once at the end, or
// rejects the whole batch if any entry fails validation.
func (t *KDTree) AddBatch(ids []uuid.UUID, vs [][]float32) error {
	for _, v := range vs {
		if err := validateDimension(t.cfg.Config, v); err != nil {
			return err
		}
	}
	t.lk.Lock()
	defer t.lk.Unlock()
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		_, exists := t.entries[id]
		if err := validateNewID(exists || seen[id], id); err != nil {
			return err
		}
		seen[id] = true
	}
	for i, id := range ids {
		cp := make([]float32, len(vs[i]))
		copy(cp, vs[i])
		t.entries[id] = &kdEntry{id: id, vec: cp, proj: t.project(vs[i])}
	}
	t.rebuild()
	return nil
}

func (t *KDTree) rebuild() {
	all := make([]*kdEntry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	t.root = t.buildNode(all, 0)
}

func boundsOf(entries []*kdEntry, projDim int) (min, max []float32) {
	min = make([]float32, projDim)
	max = make([]float32, projDim)
	for d := 0; d < projDim; d++ {
		min[d] = float32(math.Inf(1))
		max[d] = float32(math.Inf(-1))
	}
	for _, e := range entries {
		for d := 0; d < projDim; d++ {
			if e.proj[d] < min[d] {
				min[d] = e.proj[d]
			}
			if e.proj[d] > max[d] {
				max[d] = e.proj[d]
			}
		}
	}
	return
}

func (t *KDTree) buildNode(entries []*kdEntry, depth int) *kdNode {
	if len(entries) == 0 {
		return nil
	}
	minB, maxB := boundsOf(entries, t.cfg.ProjectionDim)
	if len(entries) <= t.cfg.LeafSize {
		return &kdNode{isLeaf: true, entries: entries, minBound: minB, maxBound: maxB}
	}

	splitDim := depth % t.cfg.ProjectionDim
	sorted := make([]*kdEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].proj[splitDim] < sorted[j].proj[splitDim] })

	mid := len(sorted) / 2
	splitVal := sorted[mid].proj[splitDim]
	if sorted[0].proj[splitDim] == sorted[len(sorted)-1].proj[splitDim] {
		// every value along this axis is identical: force a middle split so
		// the tree still makes progress instead of recursing forever.
		return &kdNode{
			isLeaf:   false,
			splitDim: splitDim,
			splitVal: splitVal,
			left:     t.buildNode(sorted[:mid], depth+1),
			right:    t.buildNode(sorted[mid:], depth+1),
			minBound: minB,
			maxBound: maxB,
		}
	}

	return &kdNode{
		isLeaf:   false,
		splitDim: splitDim,
		splitVal: splitVal,
		left:     t.buildNode(sorted[:mid], depth+1),
		right:    t.buildNode(sorted[mid:], depth+1),
		minBound: minB,
		maxBound: maxB,
	}
}

// minDistanceToBox computes the minimum possible L2 distance in projected
// space from a query to any point inside the node's bounding box, by
// clamping each axis into the box range before taking the norm.
func minDistanceToBox(q []float32, minBound, maxBound []float32) float64 {
	var sum float64
	for d := range q {
		v := q[d]
		if v < minBound[d] {
			v = minBound[d]
		} else if v > maxBound[d] {
			v = maxBound[d]
		}
		diff := float64(q[d] - v)
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

type boxCandidate struct {
	bound float64
	node  *kdNode
}

type boxHeap []boxCandidate

func (h boxHeap) Len() int           { return len(h) }
func (h boxHeap) Less(i, j int) bool { return h[i].bound < h[j].bound }
func (h boxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *boxHeap) Push(x any)        { *h = append(*h, x.(boxCandidate)) }
func (h *boxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Search performs best-first branch-and-bound over the projected-space
// bounding boxes, descending into boxes whose lower-bound distance could
// still beat the current k-th best, and computing exact distances on the
// original (unprojected) vectors at leaves.
func (t *KDTree) Search(v []float32, k int, filter map[uuid.UUID]bool) ([]Result, error) {
	t.lk.RLock()
	defer t.lk.RUnlock()

	if t.root == nil {
		return nil, nil
	}
	qProj := t.project(v)

	toExplore := &boxHeap{}
	heap.Push(toExplore, boxCandidate{bound: minDistanceToBox(qProj, t.root.minBound, t.root.maxBound), node: t.root})

	best := &farthestHeap{}
	for toExplore.Len() > 0 {
		cand := heap.Pop(toExplore).(boxCandidate)
		if best.Len() >= k && cand.bound > (*best)[0].Distance {
			break
		}
		node := cand.node
		if node.isLeaf {
			for _, e := range node.entries {
				if filter != nil && !filter[e.id] {
					continue
				}
				d := vector.Distance(t.cfg.Metric, v, e.vec)
				if best.Len() < k {
					heap.Push(best, Result{ID: e.id, Distance: d})
				} else if d < (*best)[0].Distance {
					heap.Push(best, Result{ID: e.id, Distance: d})
					heap.Pop(best)
				}
			}
			continue
		}
		if node.left != nil {
			heap.Push(toExplore, boxCandidate{bound: minDistanceToBox(qProj, node.left.minBound, node.left.maxBound), node: node.left})
		}
		if node.right != nil {
			heap.Push(toExplore, boxCandidate{bound: minDistanceToBox(qProj, node.right.minBound, node.right.maxBound), node: node.right})
		}
	}

	out := make([]Result, best.Len())
	copy(out, *best)
	return sortResults(out, k), nil
}

// Remove deletes the vector from the entry set and rebuilds the tree.
func (t *KDTree) Remove(id uuid.UUID) error {
	t.lk.Lock()
	defer t.lk.Unlock()
	if _, ok := t.entries[id]; !ok {
		return nil
	}
	delete(t.entries, id)
	t.rebuild()
	return nil
}

// Clear drops every vector.
func (t *KDTree) Clear() {
	t.lk.Lock()
	defer t.lk.Unlock()
	t.entries = make(map[uuid.UUID]*kdEntry)
	t.root = nil
}

// Size returns the number of indexed vectors.
func (t *KDTree) Size() int {
	t.lk.RLock()
	defer t.lk.RUnlock()
	return len(t.entries)
}
