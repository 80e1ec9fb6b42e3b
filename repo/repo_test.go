package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractyl/fractyl/types"
)

func TestInitAndFind(t *testing.T) {
	root := t.TempDir()
	r, err := Init(root)
	require.NoError(t, err)
	assert.DirExists(t, r.ObjectsDir())
	assert.DirExists(t, filepath.Join(r.Dir, "snapshots"))
	assert.FileExists(t, r.IndexPath())

	// Init refuses to clobber.
	_, err = Init(root)
	assert.True(t, errors.Is(err, types.ErrRepoExists))

	// Find from a nested directory walks up to the root.
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	found, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, r.Root, found.Root)
}

func TestFindMissing(t *testing.T) {
	_, err := Find(t.TempDir())
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCurrentRoundtrip(t *testing.T) {
	r, err := Init(t.TempDir())
	require.NoError(t, err)

	// No CURRENT yet: empty, no error.
	id, err := r.ReadCurrent("main")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, r.WriteCurrent("main", "some-id"))
	id, err = r.ReadCurrent("main")
	require.NoError(t, err)
	assert.Equal(t, "some-id", id)

	// The file is a single newline-terminated line.
	raw, err := os.ReadFile(r.CurrentPath("main"))
	require.NoError(t, err)
	assert.Equal(t, "some-id\n", string(raw))
}

func TestBranchesAreDisjoint(t *testing.T) {
	r, err := Init(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, r.WriteCurrent("main", "id-main"))
	require.NoError(t, r.WriteCurrent("feature", "id-feature"))

	id, err := r.ReadCurrent("main")
	require.NoError(t, err)
	assert.Equal(t, "id-main", id)
	id, err = r.ReadCurrent("feature")
	require.NoError(t, err)
	assert.Equal(t, "id-feature", id)

	assert.NotEqual(t, r.SnapshotsDir("main"), r.SnapshotsDir("feature"))
}

func TestBranchFileNameFlattensSlashes(t *testing.T) {
	r := &Repo{Root: "/x", Dir: "/x/.fractyl"}
	assert.Equal(t, filepath.Join(r.CacheDir(), "index_feature_login.bin"), r.StatCachePath("feature/login"))
}

func TestMigrateLegacyLayout(t *testing.T) {
	r, err := Init(t.TempDir())
	require.NoError(t, err)

	legacy := filepath.Join(r.Dir, "snapshots")
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "old-id.json"), []byte(`{"id":"old-id"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "CURRENT"), []byte("old-id\n"), 0o644))

	require.NoError(t, r.MigrateLegacyLayout(context.Background(), "main"))

	assert.FileExists(t, filepath.Join(r.SnapshotsDir("main"), "old-id.json"))
	id, err := r.ReadCurrent("main")
	require.NoError(t, err)
	assert.Equal(t, "old-id", id)
	assert.NoFileExists(t, filepath.Join(r.Dir, "CURRENT"))
	assert.NoDirExists(t, legacy)
}

func TestMigrateNothingToDo(t *testing.T) {
	r, err := Init(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, r.MigrateLegacyLayout(context.Background(), "main"))
	assert.NoDirExists(t, filepath.Join(r.Dir, "snapshots"))
}
