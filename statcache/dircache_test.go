package statcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory storage.Store[DirTable] for exercising
// DirCache without touching disk.
type memStore struct {
	data DirTable
}

func (m *memStore) With(_ context.Context, fn func(*DirTable) error) error {
	copied := m.data
	copied.Init()
	return fn(&copied)
}

func (m *memStore) Update(_ context.Context, fn func(*DirTable) error) error {
	m.data.Init()
	if err := fn(&m.data); err != nil {
		return err
	}
	return nil
}

func TestDirCacheOverFakeStore(t *testing.T) {
	ctx := context.Background()
	backing := &memStore{}

	dc, err := NewDirCache(ctx, backing)
	require.NoError(t, err)
	dc.Record("pkg", 7, 2)
	require.NoError(t, dc.Save(ctx))

	reloaded, err := NewDirCache(ctx, backing)
	require.NoError(t, err)
	assert.True(t, reloaded.Unchanged("pkg", 7, 2))
}

func TestDirCacheRoundtrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "dirs.lock")
	filePath := filepath.Join(dir, "dirs.json")

	dc, err := LoadDirCache(ctx, lockPath, filePath)
	require.NoError(t, err)
	assert.False(t, dc.Unchanged("src", 100, 3))

	dc.Record("src", 100, 3)
	assert.True(t, dc.Unchanged("src", 100, 3))
	assert.False(t, dc.Unchanged("src", 101, 3))
	assert.False(t, dc.Unchanged("src", 100, 4))
	require.NoError(t, dc.Save(ctx))

	reloaded, err := LoadDirCache(ctx, lockPath, filePath)
	require.NoError(t, err)
	assert.True(t, reloaded.Unchanged("src", 100, 3))

	reloaded.Forget("src")
	assert.False(t, reloaded.Unchanged("src", 100, 3))
}
