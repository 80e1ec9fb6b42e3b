package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/fractyl/fractyl/config"
	"github.com/fractyl/fractyl/ignore"
	"github.com/fractyl/fractyl/index"
	"github.com/fractyl/fractyl/lock/pidlock"
	"github.com/fractyl/fractyl/objects"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/vcs"
)

// RestoreResult reports what a restore did.
type RestoreResult struct {
	Snapshot *types.Snapshot
	Branch   string
	// SafetySnapshot is the snapshot of uncommitted work taken before the
	// tree was rewritten, when one was needed.
	SafetySnapshot *types.Snapshot
	Restored       int
	Removed        int
}

// Restore rewrites the working tree to match the referenced snapshot:
// every indexed file is materialized from the object store and every
// unindexed tracked file is removed. Not transactional: a partial
// failure is recovered by re-invoking restore.
func Restore(ctx context.Context, conf *config.Config, r *repo.Repo, ref string) (*RestoreResult, error) {
	l := pidlock.New(r.LockPath(), time.Duration(conf.LockTimeoutSeconds)*time.Second)
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	defer l.Unlock(ctx) //nolint:errcheck

	logger := log.WithFunc("snapshot.Restore")

	branch := vcs.Detect(ctx, r.Root).Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}

	id, err := Resolve(r, branch, ref)
	if err != nil {
		return nil, err
	}
	snap, err := LoadRecord(r, branch, id)
	if err != nil {
		return nil, err
	}
	store, err := objects.New(r.ObjectsDir())
	if err != nil {
		return nil, err
	}
	ix, err := loadIndexObject(store, snap.IndexHash)
	if err != nil {
		return nil, fmt.Errorf("load index for %s: %w", snap.ShortID(), err)
	}

	res := &RestoreResult{Snapshot: snap, Branch: branch}

	// Uncommitted work would be lost by the rewrite, so it is snapshotted
	// first. Best-effort: a failure here warns and the restore proceeds.
	safety, err := commitLocked(ctx, conf, r, Options{})
	if err != nil {
		logger.Warnf(ctx, "safety snapshot before restore failed: %v", err)
	} else if safety.Created {
		logger.Infof(ctx, "saved uncommitted work as %s before restore", safety.Snapshot.ShortID())
		res.SafetySnapshot = safety.Snapshot
	}

	for _, e := range ix.Entries() {
		dest := filepath.Join(r.Root, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return res, fmt.Errorf("create parent for %s: %w", e.Path, err)
		}
		if err := store.RestoreFile(e.Digest, dest); err != nil {
			return res, fmt.Errorf("restore %s: %w", e.Path, err)
		}
		if err := os.Chmod(dest, os.FileMode(e.Mode&0o777)); err != nil {
			logger.Warnf(ctx, "chmod %s: %v", e.Path, err)
		}
		res.Restored++
	}

	removed, err := removeUntracked(ctx, r, ix)
	res.Removed = removed
	if err != nil {
		return res, err
	}

	if err := ix.Save(r.IndexPath()); err != nil {
		return res, fmt.Errorf("save live index: %w", err)
	}
	if err := r.WriteCurrent(branch, snap.ID); err != nil {
		return res, fmt.Errorf("update CURRENT: %w", err)
	}
	logger.Infof(ctx, "restored %s on %s (%d files, %d removed)", snap.ShortID(), branch, res.Restored, res.Removed)
	return res, nil
}

// removeUntracked deletes working-tree files absent from ix. The
// repository dir, version-control dirs, foreign repository roots, and
// ignored paths are left alone; directories emptied by the removals are
// pruned best-effort.
func removeUntracked(ctx context.Context, r *repo.Repo, ix *index.Index) (int, error) {
	logger := log.WithFunc("snapshot.removeUntracked")
	matcher := ignore.Load(r.Root)

	removed := 0
	var emptied []string
	err := filepath.WalkDir(r.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Warnf(ctx, "walk %s: %v", path, err)
			return nil
		}
		if path == r.Root {
			return nil
		}
		rel, rerr := filepath.Rel(r.Root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			base := filepath.Base(path)
			if base == repo.DirName || base == ".git" {
				return filepath.SkipDir
			}
			if matcher.Ignored(rel, true) || isForeignRepo(path) {
				return filepath.SkipDir
			}
			emptied = append(emptied, path)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Ignored(rel, false) {
			return nil
		}
		if _, ok := ix.Find(rel); ok {
			return nil
		}
		if err := os.Remove(path); err != nil {
			logger.Warnf(ctx, "remove %s: %v", rel, err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Deepest first so nested empty chains collapse.
	sort.Slice(emptied, func(i, j int) bool {
		return strings.Count(emptied[i], string(os.PathSeparator)) > strings.Count(emptied[j], string(os.PathSeparator))
	})
	for _, dir := range emptied {
		_ = os.Remove(dir) // fails (correctly) unless empty
	}
	return removed, nil
}

// isForeignRepo reports whether dir is another repository's root (it
// contains a .git entry); such directories are never touched.
func isForeignRepo(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}
