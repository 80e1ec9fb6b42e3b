package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/fractyl/fractyl/config"
	"github.com/fractyl/fractyl/hash"
	"github.com/fractyl/fractyl/ignore"
	"github.com/fractyl/fractyl/index"
	"github.com/fractyl/fractyl/lock/pidlock"
	"github.com/fractyl/fractyl/objects"
	"github.com/fractyl/fractyl/progress"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/scanner"
	"github.com/fractyl/fractyl/statcache"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/vcs"
)

// Options configures one commit.
type Options struct {
	// Description for the record; empty means derive one from the parent.
	Description string
	// Background marks a periodic commit from the supervisor; it enables
	// the scanner's fresh-cache sweep skip.
	Background bool
	Tracker    progress.Tracker
}

// Result reports what a commit did.
type Result struct {
	// Snapshot is nil when no changes were detected.
	Snapshot *types.Snapshot
	Created  bool
	Branch   string
	Added    int
	Modified int
	Deleted  int
	Stats    scanner.Stats
}

// Commit takes the repository lock and snapshots the working tree.
// Returns Created=false (and no error) when nothing changed.
func Commit(ctx context.Context, conf *config.Config, r *repo.Repo, opts Options) (*Result, error) {
	l := pidlock.New(r.LockPath(), time.Duration(conf.LockTimeoutSeconds)*time.Second)
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	defer l.Unlock(ctx) //nolint:errcheck
	return commitLocked(ctx, conf, r, opts)
}

// commitLocked is the commit body, shared with the restore engine's
// safety snapshot (which already holds the lock).
func commitLocked(ctx context.Context, conf *config.Config, r *repo.Repo, opts Options) (*Result, error) {
	logger := log.WithFunc("snapshot.commit")

	vctx := vcs.Detect(ctx, r.Root)
	branch := vctx.Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}
	if err := r.MigrateLegacyLayout(ctx, branch); err != nil {
		return nil, err
	}
	if err := r.EnsureBranch(branch); err != nil {
		return nil, err
	}

	store, err := objects.New(r.ObjectsDir())
	if err != nil {
		return nil, err
	}

	currentID, err := r.ReadCurrent(branch)
	if err != nil {
		return nil, err
	}
	var parent *types.Snapshot
	prior := index.New()
	if currentID != "" {
		parent, err = LoadRecord(r, branch, currentID)
		if err != nil {
			return nil, fmt.Errorf("load CURRENT snapshot: %w", err)
		}
		prior, err = loadIndexObject(store, parent.IndexHash)
		if err != nil {
			return nil, fmt.Errorf("load prior index: %w", err)
		}
	}

	cache, err := statcache.Load(r.StatCachePath(branch), branch)
	if err != nil {
		return nil, err
	}
	dirCache, err := statcache.LoadDirCache(ctx, r.DirCacheLockPath(branch), r.DirCachePath(branch))
	if err != nil {
		return nil, err
	}

	sc := &scanner.Scanner{
		Root:           r.Root,
		Store:          store,
		Cache:          cache,
		DirCache:       dirCache,
		Prior:          prior,
		Ignored:        ignore.Load(r.Root).Ignored,
		Workers:        conf.PoolSize,
		MaxFileSize:    conf.MaxFileSize,
		AllowSweepSkip: opts.Background,
		Tracker:        opts.Tracker,
	}
	newIx, stats, err := sc.Scan(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Branch: branch, Stats: stats}
	res.Added, res.Modified, res.Deleted = diffCounts(prior, newIx)

	if !shouldCommit(parent, prior, newIx) {
		logger.Infof(ctx, "no changes on %s (%d files)", branch, newIx.Len())
		saveCaches(ctx, r, branch, cache, dirCache)
		return res, nil
	}

	// Objects first, then the record, then CURRENT: a crash at any point
	// leaves the branch consistent.
	encoded, err := newIx.Encode()
	if err != nil {
		return nil, err
	}
	indexDigest, err := store.PutBytes(encoded)
	if err != nil {
		return nil, fmt.Errorf("store index object: %w", err)
	}
	if err := newIx.Save(r.IndexPath()); err != nil {
		return nil, fmt.Errorf("save live index: %w", err)
	}

	desc := opts.Description
	if desc == "" {
		latest := latestByTimestamp(r, branch)
		desc = DefaultDescription(parent, latest)
	}

	snap := &types.Snapshot{
		ID:          uuid.New().String(),
		Description: desc,
		Timestamp:   types.Now(),
		IndexHash:   indexDigest.Hex(),
	}
	if currentID != "" {
		snap.Parent = &currentID
	}
	if vctx.Branch != "" || vctx.Commit != "" {
		snap.GitBranch = vctx.Branch
		snap.GitCommit = vctx.Commit
		dirty := vctx.Dirty
		snap.GitDirty = &dirty
		snap.GitStatus = vctx.Status
	}

	if err := SaveRecord(r, branch, snap); err != nil {
		return nil, fmt.Errorf("write snapshot record: %w", err)
	}
	if err := r.WriteCurrent(branch, snap.ID); err != nil {
		return nil, fmt.Errorf("advance CURRENT: %w", err)
	}
	saveCaches(ctx, r, branch, cache, dirCache)

	logger.Infof(ctx, "snapshot %s on %s: +%d ~%d -%d (%d files, %d hashed)",
		snap.ShortID(), branch, res.Added, res.Modified, res.Deleted, newIx.Len(), stats.Hashed)
	res.Snapshot = snap
	res.Created = true
	return res, nil
}

// shouldCommit decides whether the scan found anything worth recording.
func shouldCommit(parent *types.Snapshot, prior, next *index.Index) bool {
	if parent == nil {
		return next.Len() > 0
	}
	if prior.Len() != next.Len() {
		return true
	}
	// Equal counts: the scanner is deterministic, so the ordered compare
	// almost always settles it; a strategy switch can reorder entries
	// without changing contents, hence the unordered fallback.
	if prior.EqualOrdered(next) {
		return false
	}
	return !prior.EqualUnordered(next)
}

func diffCounts(prior, next *index.Index) (added, modified, deleted int) {
	for _, e := range next.Entries() {
		old, ok := prior.Find(e.Path)
		switch {
		case !ok:
			added++
		case old.Digest != e.Digest:
			modified++
		}
	}
	for _, e := range prior.Entries() {
		if _, ok := next.Find(e.Path); !ok {
			deleted++
		}
	}
	return
}

// latestByTimestamp returns the newest record on branch, or nil.
func latestByTimestamp(r *repo.Repo, branch string) *types.Snapshot {
	snaps, err := List(r, branch)
	if err != nil || len(snaps) == 0 {
		return nil
	}
	return snaps[0]
}

// loadIndexObject fetches and decodes an index object by its hex digest.
func loadIndexObject(store *objects.Store, hexDigest string) (*index.Index, error) {
	d, err := hash.Parse(hexDigest)
	if err != nil {
		return nil, err
	}
	data, err := store.Get(d)
	if err != nil {
		return nil, err
	}
	return index.Decode(data)
}

// saveCaches persists the stat and directory caches; failures are
// warnings, the caches are regeneratable.
func saveCaches(ctx context.Context, r *repo.Repo, branch string, cache *statcache.Cache, dirCache *statcache.DirCache) {
	logger := log.WithFunc("snapshot.saveCaches")
	if err := cache.Save(r.StatCachePath(branch)); err != nil {
		logger.Warnf(ctx, "persist stat cache: %v", err)
	}
	if err := dirCache.Save(ctx); err != nil {
		logger.Warnf(ctx, "persist dir cache: %v", err)
	}
}
