// Package snapshot implements point-in-time state snapshots: MessagePack
// encoded, optionally gzip compressed, checksummed with a JSON sidecar,
// and retained up to a configurable number of generations.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRetain is how many snapshot generations are kept once cleanup
// runs, matching the original implementation's default of 5.
const DefaultRetain = 5

// Meta is the JSON sidecar stored alongside each snapshot payload.
type Meta struct {
	ID         string    `json:"id"`
	Sequence   uint64    `json:"sequence"`
	Checksum   string    `json:"checksum"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages snapshot files under a directory.
type Store struct {
	dir      string
	compress bool
}

// NewStore creates dir if needed and returns a Store writing
// gzip-compressed snapshots when compress is true.
func NewStore(dir string, compress bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir, compress: compress}, nil
}

func (s *Store) payloadPath(id string) string { return filepath.Join(s.dir, id+".snapshot") }
func (s *Store) metaPath(id string) string     { return filepath.Join(s.dir, id+".meta") }

// Create encodes state as MessagePack, optionally gzip-compresses it at
// level 6, writes both the payload and its checksummed metadata sidecar,
// and returns the metadata.
func (s *Store) Create(id string, sequence uint64, state any) (Meta, error) {
	encoded, err := msgpack.Marshal(state)
	if err != nil {
		return Meta{}, fmt.Errorf("encode snapshot state: %w", err)
	}

	payload := encoded
	if s.compress {
		var buf bytes.Buffer
		gw, err := gzip.NewWriterLevel(&buf, 6)
		if err != nil {
			return Meta{}, fmt.Errorf("create gzip writer: %w", err)
		}
		if _, err := gw.Write(encoded); err != nil {
			gw.Close()
			return Meta{}, fmt.Errorf("gzip snapshot payload: %w", err)
		}
		if err := gw.Close(); err != nil {
			return Meta{}, fmt.Errorf("close gzip writer: %w", err)
		}
		payload = buf.Bytes()
	}

	sum := sha256.Sum256(payload)
	meta := Meta{
		ID:         id,
		Sequence:   sequence,
		Checksum:   hex.EncodeToString(sum[:]),
		Compressed: s.compress,
		CreatedAt:  time.Now(),
	}

	if err := os.WriteFile(s.payloadPath(id), payload, 0o644); err != nil {
		return Meta{}, fmt.Errorf("write snapshot payload: %w", err)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("marshal snapshot meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), metaBytes, 0o644); err != nil {
		return Meta{}, fmt.Errorf("write snapshot meta: %w", err)
	}
	return meta, nil
}

// Load reads a snapshot's metadata, verifies its checksum, decompresses
// if necessary, and unmarshals the MessagePack payload into out.
func (s *Store) Load(id string, out any) (Meta, error) {
	metaBytes, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return Meta{}, fmt.Errorf("read snapshot meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return Meta{}, fmt.Errorf("unmarshal snapshot meta: %w", err)
	}

	payload, err := os.ReadFile(s.payloadPath(id))
	if err != nil {
		return Meta{}, fmt.Errorf("read snapshot payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != meta.Checksum {
		return Meta{}, fmt.Errorf("snapshot %s: checksum mismatch", id)
	}

	if meta.Compressed {
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return Meta{}, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gr.Close()
		decoded, err := io.ReadAll(gr)
		if err != nil {
			return Meta{}, fmt.Errorf("decompress snapshot payload: %w", err)
		}
		payload = decoded
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		return Meta{}, fmt.Errorf("decode snapshot state: %w", err)
	}
	return meta, nil
}

// List returns every snapshot's metadata, newest first.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var metas []Meta
	for _, e := range entries {
		name := e.Name()
		if len(name) < 5 || name[len(name)-5:] != ".meta" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", name, err)
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt.After(metas[j].CreatedAt) })
	return metas, nil
}

// Latest returns the most recently created snapshot's metadata, or
// (Meta{}, false) if none exist.
func (s *Store) Latest() (Meta, bool, error) {
	metas, err := s.List()
	if err != nil {
		return Meta{}, false, err
	}
	if len(metas) == 0 {
		return Meta{}, false, nil
	}
	return metas[0], true, nil
}

// Delete removes a snapshot's payload and metadata sidecar.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.payloadPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot payload: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot meta: %w", err)
	}
	return nil
}

// CleanupOld keeps only the newest keepN snapshots, deleting the rest.
func (s *Store) CleanupOld(keepN int) error {
	metas, err := s.List()
	if err != nil {
		return err
	}
	if len(metas) <= keepN {
		return nil
	}
	for _, meta := range metas[keepN:] {
		if err := s.Delete(meta.ID); err != nil {
			return err
		}
	}
	return nil
}
