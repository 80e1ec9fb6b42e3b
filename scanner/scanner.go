// Package scanner reconciles the working tree against the prior snapshot
// index and the stat cache, producing the new index with as little
// hashing as the caches permit.
//
// Two strategies, selected by heuristic: a stat-only pass over the cached
// path list (fast path, used whenever a non-empty stat cache exists) and
// a full parallel traversal (cold path).
package scanner

import (
	"context"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/fractyl/fractyl/config"
	"github.com/fractyl/fractyl/index"
	"github.com/fractyl/fractyl/objects"
	"github.com/fractyl/fractyl/progress"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/statcache"
)

// freshCacheWindow: when the cache is younger than this and the stat pass
// classified nothing as changed or deleted, the new-file sweep is skipped
// entirely.
const freshCacheWindow = 5 * 60 // seconds

// Stats reports what a scan did, for logging and heuristics.
type Stats struct {
	// Files is the number of entries in the produced index.
	Files int
	// Hashed is how many file bodies were hashed and stored.
	Hashed int
	// CacheChanged and CacheDeleted count stat-phase classifications.
	CacheChanged int
	CacheDeleted int
	// SweepSkipped is true when the fresh-cache heuristic suppressed
	// new-file detection.
	SweepSkipped bool
}

// Scanner holds one scan's collaborators. Root and Store are required;
// Scan fills in defaults for the other fields, and DirCache stays optional.
type Scanner struct {
	Root  string
	Store *objects.Store
	Cache *statcache.Cache
	// DirCache is the optional directory-mtime hint table.
	DirCache *statcache.DirCache
	// Prior is the previous snapshot's index (possibly empty).
	Prior *index.Index
	// Ignored is the ignored-path predicate; nil means nothing is ignored.
	Ignored func(rel string, isDir bool) bool
	// Workers is the stat/hash pool size; defaults to min(NumCPU, 8).
	Workers int
	// MaxFileSize excludes larger files from the index, with a warning.
	MaxFileSize int64
	// AllowSweepSkip lets the stat-only strategy skip new-file detection
	// when the cache is fresh and the stat pass saw no churn. Only
	// high-frequency callers (the periodic daemon) should enable it: an
	// interactive snapshot must always see a brand-new file.
	AllowSweepSkip bool
	Tracker        progress.Tracker
}

// Scan produces the new index describing every current, tracked regular
// file. Per-file failures are warnings: the affected file is omitted and
// the scan continues.
func (s *Scanner) Scan(ctx context.Context) (*index.Index, Stats, error) {
	if s.Tracker == nil {
		s.Tracker = progress.Nop
	}
	if s.Workers <= 0 {
		s.Workers = config.DefaultMaxWorkers
		if n := runtime.NumCPU(); n < s.Workers {
			s.Workers = n
		}
	}
	if s.MaxFileSize <= 0 {
		s.MaxFileSize = config.DefaultMaxFileSize
	}
	if s.Ignored == nil {
		s.Ignored = func(string, bool) bool { return false }
	}
	if s.Cache == nil {
		s.Cache = statcache.New(repo.DefaultBranch)
	}
	if s.Prior == nil {
		s.Prior = index.New()
	}

	if s.Cache.Len() > 0 {
		return s.statScan(ctx)
	}
	return s.fullWalk(ctx)
}

// skipName reports whether a directory entry is never scanned: the
// repository's own dir and the version-control dir.
func skipName(name string) bool {
	return name == repo.DirName || name == ".git"
}

// fileStatOf converts a raw lstat into the cache's stat record.
func fileStatOf(st *unix.Stat_t) statcache.FileStat {
	return statcache.FileStat{
		MtimeSec:  uint32(st.Mtim.Sec),
		MtimeNsec: uint32(st.Mtim.Nsec),
		CtimeSec:  uint32(st.Ctim.Sec),
		CtimeNsec: uint32(st.Ctim.Nsec),
		Size:      uint64(st.Size),
		Inode:     st.Ino,
		Device:    uint32(st.Dev),
		Mode:      st.Mode,
		UID:       st.Uid,
		GID:       st.Gid,
	}
}

func isRegular(st *unix.Stat_t) bool {
	return st.Mode&unix.S_IFMT == unix.S_IFREG
}
