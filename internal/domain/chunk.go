package domain

import "time"

// Chunk is one embedded unit of content belonging to a library. LibraryID
// is a first-class field: the original Python implementation stored this
// association inconsistently inside the metadata map
// (metadata["library_id"]); here it is canonicalized onto the struct so
// every repository and service operates on one unambiguous representation.
type Chunk struct {
	ID         string
	LibraryID  string
	Content    string
	Embedding  []float32
	DocumentID string
	ChunkIndex int
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of the chunk, including its embedding and
// metadata, so repository callers can't mutate stored state through an
// aliased slice or map.
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Embedding != nil {
		cp.Embedding = make([]float32, len(c.Embedding))
		copy(cp.Embedding, c.Embedding)
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
