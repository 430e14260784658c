package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, DefaultSegmentSize)
	require.NoError(t, err)
	defer w.Close()

	seq1, err := w.Append("chunk.create", "abc", map[string]any{"x": 1})
	require.NoError(t, err)
	seq2, err := w.Append("chunk.delete", "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, seq1+1, seq2)

	entries, err := w.Read(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	p1, err := entries[0].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, "chunk.create", p1.OperationType)
	assert.Equal(t, "abc", p1.ResourceID)
}

func TestReadFromSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, DefaultSegmentSize)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err := w.Append("op", "r", nil)
		require.NoError(t, err)
	}
	entries, err := w.Read(4)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTruncateRemovesCoveredEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, DefaultSegmentSize)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err := w.Append("op", "r", nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Truncate(3))

	entries, err := w.Read(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[0].Sequence)
	assert.Equal(t, uint64(5), entries[1].Sequence)
}

func TestSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, EntryHeaderSize+32)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 10; i++ {
		_, err := w.Append("op", "r", map[string]any{"i": i})
		require.NoError(t, err)
	}
	entries, err := w.Read(0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)

	segments, err := listSegments(dir)
	require.NoError(t, err)
	assert.Greater(t, len(segments), 1)
}

func TestReopenRecoversSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, DefaultSegmentSize)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := w.Append("op", "r", nil)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	w2, err := Open(dir, DefaultSegmentSize)
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, uint64(3), w2.CurrentSequence())

	seq, err := w2.Append("op", "r", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
}
