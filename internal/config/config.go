// Package config defines the process-wide configuration knobs, built from
// flags the way the teacher's cmd/server/main.go builds its own flag set.
package config

import (
	"flag"
	"time"

	"vectordb/internal/domain"
)

// Config holds every tunable the system needs at startup.
//
// DefaultIndexKind, IndexDirectory, the LSH/HNSW tuning fields, MaxWorkers,
// BatchSize, CacheSize, AutoCheckpointInterval, AutoSnapshotInterval,
// LogLevel and LogFormat are parsed and carried here, but no component
// reads them: indexes are built with index.DefaultTuning's fixed values,
// the search cache has no size bound, multi-library search does not limit
// its concurrency, and System does not start the background persistence
// loops.
type Config struct {
	PersistenceEnabled bool
	WALDirectory       string
	SnapshotDirectory  string
	IndexDirectory     string

	DefaultIndexKind domain.IndexKind

	LSHTables          int
	LSHKeySize         int
	HNSWM              int
	HNSWEfConstruction int

	MaxWorkers int
	BatchSize  int

	CacheSize int
	CacheTTL  time.Duration

	SegmentSize            int64
	SnapshotRetain         int
	AutoCheckpointInterval time.Duration
	AutoSnapshotInterval   time.Duration
	SnapshotCompress       bool

	LogLevel  string
	LogFormat string
}

// Default returns the configuration the process starts with absent any
// flag overrides.
func Default() Config {
	return Config{
		PersistenceEnabled: true,
		WALDirectory:       "./data/wal",
		SnapshotDirectory:  "./data/snapshots",
		IndexDirectory:     "./data/index",

		DefaultIndexKind: domain.IndexHNSW,

		LSHTables:          10,
		LSHKeySize:         10,
		HNSWM:              16,
		HNSWEfConstruction: 200,

		MaxWorkers: 4,
		BatchSize:  100,

		CacheSize: 1000,
		CacheTTL:  5 * time.Minute,

		SegmentSize:            64 * 1024 * 1024,
		SnapshotRetain:         5,
		AutoCheckpointInterval: 60 * time.Second,
		AutoSnapshotInterval:   time.Hour,
		SnapshotCompress:       true,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// FromFlags parses args against the default configuration, mirroring the
// flag.String/flag.Int/flag.Duration calls the teacher's main() builds.
func FromFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	fs.BoolVar(&cfg.PersistenceEnabled, "persistence-enabled", cfg.PersistenceEnabled, "enable WAL + snapshot persistence")
	fs.StringVar(&cfg.WALDirectory, "wal-dir", cfg.WALDirectory, "write-ahead log directory")
	fs.StringVar(&cfg.SnapshotDirectory, "snapshot-dir", cfg.SnapshotDirectory, "snapshot directory")
	fs.StringVar(&cfg.IndexDirectory, "index-dir", cfg.IndexDirectory, "index directory")

	var defaultIndexKind string
	fs.StringVar(&defaultIndexKind, "default-index-kind", string(cfg.DefaultIndexKind), "default index kind (LSH, HNSW, KD_TREE)")

	fs.IntVar(&cfg.LSHTables, "lsh-tables", cfg.LSHTables, "number of LSH hash tables")
	fs.IntVar(&cfg.LSHKeySize, "lsh-key-size", cfg.LSHKeySize, "bits per LSH hash key")
	fs.IntVar(&cfg.HNSWM, "hnsw-m", cfg.HNSWM, "HNSW bidirectional links per node")
	fs.IntVar(&cfg.HNSWEfConstruction, "hnsw-ef-construction", cfg.HNSWEfConstruction, "HNSW construction beam width")

	fs.IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "max concurrent multi-library search workers")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "default bulk insert batch size")

	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "search result cache capacity")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "search result cache entry lifetime")

	fs.Int64Var(&cfg.SegmentSize, "wal-segment-size", cfg.SegmentSize, "WAL segment rotation size in bytes")
	fs.IntVar(&cfg.SnapshotRetain, "snapshot-retain", cfg.SnapshotRetain, "number of snapshot generations to retain")
	fs.DurationVar(&cfg.AutoCheckpointInterval, "auto-checkpoint-interval", cfg.AutoCheckpointInterval, "background checkpoint interval")
	fs.DurationVar(&cfg.AutoSnapshotInterval, "auto-snapshot-interval", cfg.AutoSnapshotInterval, "background snapshot interval")
	fs.BoolVar(&cfg.SnapshotCompress, "snapshot-compress", cfg.SnapshotCompress, "gzip-compress snapshot payloads")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.DefaultIndexKind = domain.IndexKind(defaultIndexKind)
	return cfg, nil
}
