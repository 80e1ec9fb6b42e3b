package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractyl/fractyl/hash"
	"github.com/fractyl/fractyl/index"
	"github.com/fractyl/fractyl/objects"
	"github.com/fractyl/fractyl/statcache"
)

type fixture struct {
	root  string
	store *objects.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := objects.New(filepath.Join(root, ".fractyl", "objects"))
	require.NoError(t, err)
	return &fixture{root: root, store: store}
}

func (f *fixture) write(t *testing.T, rel, body string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
}

func (f *fixture) scan(t *testing.T, cache *statcache.Cache, prior *index.Index) (*index.Index, Stats) {
	t.Helper()
	sc := &Scanner{
		Root:  f.root,
		Store: f.store,
		Cache: cache,
		Prior: prior,
	}
	ix, stats, err := sc.Scan(context.Background())
	require.NoError(t, err)
	return ix, stats
}

func TestFullWalkIndexesTree(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")
	f.write(t, "b/c.txt", "world")
	f.write(t, "b/d/e.txt", "deep")

	ix, stats := f.scan(t, statcache.New("main"), index.New())
	require.Equal(t, 3, ix.Len())
	assert.Equal(t, 3, stats.Hashed)

	e, ok := ix.Find("b/c.txt")
	require.True(t, ok)
	assert.Equal(t, hash.Bytes([]byte("world")), e.Digest)
	assert.Equal(t, uint64(5), e.Size)

	// Everything indexed is in the store.
	for _, e := range ix.Entries() {
		assert.True(t, f.store.Exists(e.Digest), e.Path)
	}
}

func TestRepoAndGitDirsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "tracked.txt", "yes")
	f.write(t, ".git/config", "no")
	f.write(t, ".fractyl/internal", "no")

	ix, _ := f.scan(t, statcache.New("main"), index.New())
	require.Equal(t, 1, ix.Len())
	_, ok := ix.Find("tracked.txt")
	assert.True(t, ok)
}

func TestForeignRepoBoundary(t *testing.T) {
	f := newFixture(t)
	f.write(t, "mine.txt", "mine")
	f.write(t, "sub/.git/HEAD", "ref: refs/heads/main")
	f.write(t, "sub/a.txt", "foreign working set")

	ix, _ := f.scan(t, statcache.New("main"), index.New())
	require.Equal(t, 1, ix.Len())
	_, ok := ix.Find("sub/a.txt")
	assert.False(t, ok)
	// The foreign body never entered the store.
	assert.False(t, f.store.Exists(hash.Bytes([]byte("foreign working set"))))
}

func TestStatScanReusesUnchangedDigests(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")
	f.write(t, "b.txt", "stable")

	cache := statcache.New("main")
	prior, stats := f.scan(t, cache, index.New())
	require.Equal(t, 2, stats.Hashed)
	require.Equal(t, 2, cache.Len())

	// Second scan, nothing changed: stat-only, no hashing at all.
	ix, stats := f.scan(t, cache, prior)
	assert.Zero(t, stats.Hashed)
	assert.True(t, prior.EqualUnordered(ix))
}

func TestStatScanDetectsModifyAndDelete(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")
	f.write(t, "b.txt", "stable")

	cache := statcache.New("main")
	prior, _ := f.scan(t, cache, index.New())

	// Force a visible mtime difference regardless of filesystem clock
	// granularity.
	f.write(t, "a.txt", "longer body now")
	old := time.Now().Add(-2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(f.root, "a.txt"), old, old))
	require.NoError(t, os.Remove(filepath.Join(f.root, "b.txt")))

	ix, stats := f.scan(t, cache, prior)
	require.Equal(t, 1, ix.Len())
	assert.Equal(t, 1, stats.CacheChanged)
	assert.Equal(t, 1, stats.CacheDeleted)

	e, ok := ix.Find("a.txt")
	require.True(t, ok)
	assert.Equal(t, hash.Bytes([]byte("longer body now")), e.Digest)
	_, ok = cache.Find("b.txt")
	assert.False(t, ok)
}

func TestStatScanFindsNewFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")

	cache := statcache.New("main")
	prior, _ := f.scan(t, cache, index.New())

	// A new file plus churn on an existing one; this scan does not allow
	// the sweep skip, so the sweep runs.
	f.write(t, "a.txt", "changed contents")
	old := time.Now().Add(-2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(f.root, "a.txt"), old, old))
	f.write(t, "fresh/new.txt", "new")

	ix, _ := f.scan(t, cache, prior)
	require.Equal(t, 2, ix.Len())
	_, ok := ix.Find("fresh/new.txt")
	assert.True(t, ok)
	_, ok = cache.Find("fresh/new.txt")
	assert.True(t, ok)
}

func TestSweepSkipHidesNewFilesForBackgroundScans(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")

	cache := statcache.New("main")
	prior, _ := f.scan(t, cache, index.New())

	// Only a new file, no churn on cached entries: a background scan with
	// a fresh cache may legitimately miss it, an interactive one may not.
	f.write(t, "fresh.txt", "new")

	sc := &Scanner{
		Root:           f.root,
		Store:          f.store,
		Cache:          cache,
		Prior:          prior,
		AllowSweepSkip: true,
	}
	ix, stats, err := sc.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.SweepSkipped)
	_, ok := ix.Find("fresh.txt")
	assert.False(t, ok)

	// Default (interactive) scan always sweeps.
	ix, stats = f.scan(t, cache, prior)
	assert.False(t, stats.SweepSkipped)
	_, ok = ix.Find("fresh.txt")
	assert.True(t, ok)
}

func TestUnchangedClassificationKeepsPriorDigest(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "hello")

	cache := statcache.New("main")
	prior, _ := f.scan(t, cache, index.New())
	ix, _ := f.scan(t, cache, prior)

	pe, _ := prior.Find("a.txt")
	ne, ok := ix.Find("a.txt")
	require.True(t, ok)
	assert.Equal(t, pe.Digest, ne.Digest)
}

func TestLargeFilesAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "small.txt", "ok")
	f.write(t, "huge.bin", "this one is over the limit")

	sc := &Scanner{
		Root:        f.root,
		Store:       f.store,
		Cache:       statcache.New("main"),
		Prior:       index.New(),
		MaxFileSize: 10,
	}
	ix, _, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, ix.Len())
	_, ok := ix.Find("huge.bin")
	assert.False(t, ok)
}

func TestIgnorePredicate(t *testing.T) {
	f := newFixture(t)
	f.write(t, "keep.txt", "keep")
	f.write(t, "skip.log", "skip")
	f.write(t, "build/out", "skip dir")

	sc := &Scanner{
		Root:  f.root,
		Store: f.store,
		Cache: statcache.New("main"),
		Prior: index.New(),
		Ignored: func(rel string, isDir bool) bool {
			return rel == "skip.log" || rel == "build"
		},
	}
	ix, _, err := sc.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, ix.Len())
	_, ok := ix.Find("keep.txt")
	assert.True(t, ok)
}

func TestSymlinksAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "real.txt", "real")
	require.NoError(t, os.Symlink(
		filepath.Join(f.root, "real.txt"),
		filepath.Join(f.root, "link.txt")))

	ix, _ := f.scan(t, statcache.New("main"), index.New())
	require.Equal(t, 1, ix.Len())
	_, ok := ix.Find("link.txt")
	assert.False(t, ok)
}
