package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/fractyl/fractyl/index"
	scanprogress "github.com/fractyl/fractyl/progress/scan"
)

// dirWork is one directory queued for traversal.
type dirWork struct {
	abs string
	rel string // forward-slash, "" for the root
}

// fullWalk is the cold path: traverse the whole tree with a worker pool
// fed from a shared directory queue, reusing prior-index digests where
// size and mtime match and hashing everything else.
func (s *Scanner) fullWalk(ctx context.Context) (*index.Index, Stats, error) {
	logger := log.WithFunc("scanner.fullWalk")

	ix := index.New()
	var stats Stats
	var mu sync.Mutex // guards ix, stats, s.Cache, s.DirCache

	// pending tracks outstanding directories so the channel can be closed
	// exactly when the traversal is exhausted. Every enqueue path and the
	// workers observe cancellation so nothing blocks past an abort.
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan dirWork, 1024)
	var pending sync.WaitGroup

	var enqueue func(w dirWork)
	enqueue = func(w dirWork) {
		pending.Add(1)
		select {
		case queue <- w:
		case <-gctx.Done():
			pending.Done()
		default:
			// Channel full: hand the work off asynchronously rather than
			// deadlocking the worker that produced it.
			go func() {
				select {
				case queue <- w:
				case <-gctx.Done():
					pending.Done()
				}
			}()
		}
	}
	enqueue(dirWork{abs: s.Root})
	go func() {
		pending.Wait()
		close(queue)
	}()

	for w := 0; w < s.Workers; w++ {
		g.Go(func() error {
			for {
				select {
				case d, ok := <-queue:
					if !ok {
						return nil
					}
					s.walkDir(ctx, d, enqueue, ix, &stats, &mu)
					pending.Done()
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	stats.Files = ix.Len()
	logger.Debugf(ctx, "full traversal: %d files, %d hashed", stats.Files, stats.Hashed)
	s.Tracker.OnEvent(scanprogress.Event{Phase: scanprogress.PhaseDone, Files: stats.Files, Hashed: stats.Hashed})
	return ix, stats, nil
}

// walkDir processes one directory: files are stat'ed and recorded,
// subdirectories are enqueued.
func (s *Scanner) walkDir(ctx context.Context, d dirWork, enqueue func(dirWork), ix *index.Index, stats *Stats, mu *sync.Mutex) {
	logger := log.WithFunc("scanner.walkDir")

	entries, err := os.ReadDir(d.abs)
	if err != nil {
		logger.Warnf(ctx, "read dir %s: %v", d.abs, err)
		return
	}

	fileCount := 0
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			fileCount++
		}
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
			enqueue(dirWork{abs: abs, rel: rel})
			continue
		}
		// Entry type comes from d_type, avoiding a stat for the skip
		// decision; symlinks and special files are out of scope.
		if !e.Type().IsRegular() || s.Ignored(rel, false) {
			continue
		}
		s.walkFile(ctx, abs, rel, ix, stats, mu)
	}

	if s.DirCache != nil && d.rel != "" {
		var dirSt unix.Stat_t
		if unix.Lstat(d.abs, &dirSt) == nil {
			mu.Lock()
			s.DirCache.Record(d.rel, dirSt.Mtim.Sec, fileCount)
			mu.Unlock()
		}
	}
}

func (s *Scanner) walkFile(ctx context.Context, abs, rel string, ix *index.Index, stats *Stats, mu *sync.Mutex) {
	logger := log.WithFunc("scanner.walkFile")

	var st unix.Stat_t
	if err := unix.Lstat(abs, &st); err != nil {
		logger.Warnf(ctx, "stat %s: %v", rel, err)
		return
	}
	if !isRegular(&st) {
		return
	}
	if st.Size > s.MaxFileSize {
		logger.Warnf(ctx, "skipping large file %s (%d bytes)", rel, st.Size)
		return
	}

	fs := fileStatOf(&st)
	entry := index.Entry{
		Path:  rel,
		Mode:  fs.Mode,
		Size:  fs.Size,
		Mtime: int64(fs.MtimeSec),
	}

	// Reuse the prior digest when size and mtime match; the object is
	// already in the store from the snapshot that produced the prior index.
	if prior, ok := s.Prior.Find(rel); ok && prior.Size == entry.Size && prior.Mtime == entry.Mtime {
		entry.Digest = prior.Digest
	} else {
		s.Tracker.OnEvent(scanprogress.Event{Phase: scanprogress.PhaseHash, Path: rel})
		d, err := s.Store.PutFile(abs)
		if err != nil {
			logger.Warnf(ctx, "store %s: %v", rel, err)
			return
		}
		entry.Digest = d
		mu.Lock()
		stats.Hashed++
		mu.Unlock()
	}

	// Direct append: the traversal visits every path exactly once.
	mu.Lock()
	ix.AddDirect(entry)
	s.Cache.Update(rel, fs, entry.Digest)
	mu.Unlock()
}
