package scanner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/fractyl/fractyl/index"
	scanprogress "github.com/fractyl/fractyl/progress/scan"
	"github.com/fractyl/fractyl/statcache"
)

// statResult is one worker's verdict for one cached path.
type statResult struct {
	entry   *index.Entry // nil when the file is gone
	update  bool         // entry was rehashed; push it into the cache
	newStat statcache.FileStat
}

// statScan is the fast path: re-stat every cached path in parallel, reuse
// prior digests for unchanged files, rehash only the changed ones, then
// sweep for new files unless the fresh-cache heuristic applies.
func (s *Scanner) statScan(ctx context.Context) (*index.Index, Stats, error) {
	logger := log.WithFunc("scanner.statScan")
	paths := s.Cache.Paths()
	results := make([]statResult, len(paths))

	// Contiguous slice per worker: no shared append, deterministic order.
	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(paths) + s.Workers - 1) / s.Workers
	for w := 0; w < s.Workers && w*chunk < len(paths); w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(paths) {
			hi = len(paths)
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = s.statOne(ctx, paths[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var stats Stats
	ix := index.New()
	for i, r := range results {
		if r.entry == nil {
			s.Cache.Remove(paths[i])
			stats.CacheDeleted++
			continue
		}
		ix.AddDirect(*r.entry)
		if r.update {
			s.Cache.Update(r.entry.Path, r.newStat, r.entry.Digest)
			stats.CacheChanged++
			stats.Hashed++
		}
	}
	s.Tracker.OnEvent(scanprogress.Event{Phase: scanprogress.PhaseStat, Files: ix.Len(), Hashed: stats.Hashed})

	// New-file sweep. Skippable when the cache is fresh and the stat
	// phase saw no churn: a tree that quiet is very unlikely to have
	// grown between two daemon ticks.
	if s.AllowSweepSkip && s.Cache.Age().Seconds() < freshCacheWindow &&
		stats.CacheChanged == 0 && stats.CacheDeleted == 0 {
		stats.SweepSkipped = true
		logger.Debugf(ctx, "cache is fresh and stat pass saw no churn, skipping new-file sweep")
	} else if err := s.sweepNewFiles(ctx, ix, &stats); err != nil {
		return nil, stats, err
	}

	stats.Files = ix.Len()
	s.Tracker.OnEvent(scanprogress.Event{Phase: scanprogress.PhaseDone, Files: stats.Files, Hashed: stats.Hashed})
	return ix, stats, nil
}

// statOne classifies one cached path. Runs on a worker goroutine: it only
// reads the cache and prior index and writes its own results slot.
func (s *Scanner) statOne(ctx context.Context, rel string) statResult {
	logger := log.WithFunc("scanner.statOne")
	abs := filepath.Join(s.Root, filepath.FromSlash(rel))

	var st unix.Stat_t
	if err := unix.Lstat(abs, &st); err != nil || !isRegular(&st) {
		return statResult{} // deleted (or no longer a regular file)
	}
	if s.Ignored(rel, false) {
		return statResult{} // newly ignored: drops out of the snapshot
	}
	if st.Size > s.MaxFileSize {
		logger.Warnf(ctx, "skipping large file %s (%d bytes)", rel, st.Size)
		return statResult{}
	}

	fs := fileStatOf(&st)
	if s.Cache.Check(rel, fs) == statcache.StatusUnchanged {
		// The cached digest is a truncated hint; the full digest comes
		// from the prior index. A cache hit without a prior entry forces
		// a rehash.
		if prior, ok := s.Prior.Find(rel); ok {
			e := prior
			return statResult{entry: &e}
		}
	}

	s.Tracker.OnEvent(scanprogress.Event{Phase: scanprogress.PhaseHash, Path: rel})
	d, err := s.Store.PutFile(abs)
	if err != nil {
		logger.Warnf(ctx, "store %s: %v", rel, err)
		return statResult{}
	}
	return statResult{
		entry: &index.Entry{
			Path:   rel,
			Digest: d,
			Mode:   fs.Mode,
			Size:   fs.Size,
			Mtime:  int64(fs.MtimeSec),
		},
		update:  true,
		newStat: fs,
	}
}

// sweepNewFiles walks the tree looking for files absent from the stat
// cache. Directories whose recorded mtime and direct-file count are
// unchanged skip the per-file checks; descent continues regardless, since
// a directory's stat says nothing about its grandchildren.
func (s *Scanner) sweepNewFiles(ctx context.Context, ix *index.Index, stats *Stats) error {
	logger := log.WithFunc("scanner.sweepNewFiles")

	type dirItem struct{ abs, rel string }
	queue := []dirItem{{abs: s.Root}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(d.abs)
		if err != nil {
			logger.Warnf(ctx, "read dir %s: %v", d.abs, err)
			continue
		}

		fileCount := 0
		for _, e := range entries {
			if !e.IsDir() {
				fileCount++
			}
		}

		var dirSt unix.Stat_t
		dirKnown := unix.Lstat(d.abs, &dirSt) == nil
		checkFiles := true
		if s.DirCache != nil && dirKnown && d.rel != "" &&
			s.DirCache.Unchanged(d.rel, dirSt.Mtim.Sec, fileCount) {
			checkFiles = false
		}

		for _, e := range entries {
			name := e.Name()
			if skipName(name) {
				continue
			}
			rel := name
			if d.rel != "" {
				rel = d.rel + "/" + name
			}
			abs := filepath.Join(d.abs, name)

			if e.IsDir() {
				if s.Ignored(rel, true) || isForeignRepo(abs) {
					continue
				}
				queue = append(queue, dirItem{abs: abs, rel: rel})
				continue
			}
			if !checkFiles || !e.Type().IsRegular() || s.Ignored(rel, false) {
				continue
			}
			if _, known := s.Cache.Find(rel); known {
				continue
			}

			var st unix.Stat_t
			if err := unix.Lstat(abs, &st); err != nil || !isRegular(&st) {
				continue
			}
			if st.Size > s.MaxFileSize {
				logger.Warnf(ctx, "skipping large file %s (%d bytes)", rel, st.Size)
				continue
			}
			s.Tracker.OnEvent(scanprogress.Event{Phase: scanprogress.PhaseHash, Path: rel})
			digest, err := s.Store.PutFile(abs)
			if err != nil {
				logger.Warnf(ctx, "store %s: %v", rel, err)
				continue
			}
			fs := fileStatOf(&st)
			ix.AddDirect(index.Entry{
				Path:   rel,
				Digest: digest,
				Mode:   fs.Mode,
				Size:   fs.Size,
				Mtime:  int64(fs.MtimeSec),
			})
			s.Cache.Update(rel, fs, digest)
			stats.Hashed++
		}

		if s.DirCache != nil && dirKnown && d.rel != "" {
			s.DirCache.Record(d.rel, dirSt.Mtim.Sec, fileCount)
		}
	}
	return nil
}

// isForeignRepo reports whether dir is itself another repository's root,
// detected by a .git entry (file or directory) inside it. The scanner
// never descends into such a directory.
func isForeignRepo(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}
