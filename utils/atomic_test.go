package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, AtomicWriteFile(path, []byte("one"), 0o644))
	require.NoError(t, AtomicWriteFile(path, []byte("two"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp leftovers.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.json")
	require.NoError(t, AtomicWriteJSON(path, map[string]int{"n": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data))
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
