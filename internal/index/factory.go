package index

import (
	"fmt"

	"vectordb/internal/domain"
)

// New constructs an Index for the given kind and dimension, using each
// kind's default tuning.
func New(kind domain.IndexKind, dimension int) (Index, error) {
	switch kind {
	case domain.IndexLSH:
		return NewLSH(DefaultLSHConfig(dimension)), nil
	case domain.IndexHNSW:
		return NewHNSW(DefaultHNSWConfig(dimension)), nil
	case domain.IndexKDTree:
		return NewKDTree(DefaultKDTreeConfig(dimension)), nil
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}

// DefaultTuning reports an index kind's default tuning parameters without
// constructing it, as plain key/value pairs. Used by the CLI's
// "show defaults" mode and by tests asserting the tuning a bare
// `library create` would pick.
func DefaultTuning(kind domain.IndexKind, dimension int) (map[string]any, error) {
	switch kind {
	case domain.IndexLSH:
		cfg := DefaultLSHConfig(dimension)
		return map[string]any{
			"num_tables": cfg.NumTables,
			"key_size":   cfg.KeySize,
			"seed":       cfg.Seed,
			"metric":     string(cfg.Metric),
		}, nil
	case domain.IndexHNSW:
		cfg := DefaultHNSWConfig(dimension)
		return map[string]any{
			"m":               cfg.M,
			"ef_construction": cfg.EfConstruction,
			"max_m":           cfg.MaxM,
			"max_m0":          cfg.MaxM0,
			"ml":              cfg.Ml,
			"seed":            cfg.Seed,
			"metric":          string(cfg.Metric),
		}, nil
	case domain.IndexKDTree:
		cfg := DefaultKDTreeConfig(dimension)
		return map[string]any{
			"leaf_size":      cfg.LeafSize,
			"projection_dim": cfg.ProjectionDim,
			"seed":           cfg.Seed,
			"metric":         string(cfg.Metric),
		}, nil
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}
