package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleState struct {
	Libraries map[string]string
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, true)
	require.NoError(t, err)

	state := sampleState{Libraries: map[string]string{"lib1": "docs"}}
	meta, err := store.Create("snap1", 10, state)
	require.NoError(t, err)
	assert.True(t, meta.Compressed)

	var out sampleState
	loaded, err := store.Load("snap1", &out)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), loaded.Sequence)
	assert.Equal(t, "docs", out.Libraries["lib1"])
}

func TestLatestReturnsMostRecent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, false)
	require.NoError(t, err)

	_, err = store.Create("snap1", 1, sampleState{})
	require.NoError(t, err)
	_, err = store.Create("snap2", 2, sampleState{})
	require.NoError(t, err)

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), latest.Sequence)
}

func TestCleanupOldKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, false)
	require.NoError(t, err)

	for i := uint64(1); i <= 7; i++ {
		_, err := store.Create(idFor(i), i, sampleState{})
		require.NoError(t, err)
	}
	require.NoError(t, store.CleanupOld(DefaultRetain))

	metas, err := store.List()
	require.NoError(t, err)
	assert.Len(t, metas, DefaultRetain)
}

func idFor(seq uint64) string {
	return "snap-" + string(rune('a'+seq))
}
