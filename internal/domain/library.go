// Package domain defines the Library and Chunk entities shared by the
// repository and service layers.
package domain

import "time"

// IndexKind names the ANN index family a library is backed by.
type IndexKind string

const (
	IndexLSH     IndexKind = "LSH"
	IndexHNSW    IndexKind = "HNSW"
	IndexKDTree  IndexKind = "KD_TREE"
)

// Library groups chunks that share an embedding dimension and an index.
type Library struct {
	ID             string
	Name           string
	Dimension      int
	IndexKind      IndexKind
	Description    string
	Metadata       map[string]any
	TotalDocuments int
	TotalChunks    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so callers can't mutate repository-owned state
// through a returned pointer.
func (l *Library) Clone() *Library {
	if l == nil {
		return nil
	}
	cp := *l
	if l.Metadata != nil {
		cp.Metadata = make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
