// Package repo locates and lays out the on-disk repository: the .fractyl
// directory, the object store fan-out, per-branch refs, the stat cache
// files, and the writer lock.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/utils"
)

// DirName is the repository directory created inside the working tree.
const DirName = ".fractyl"

// DefaultBranch is used when no version-control context exists.
const DefaultBranch = "main"

// Repo is a located repository: the working-tree root and its .fractyl dir.
type Repo struct {
	Root string
	Dir  string
}

// Find canonicalizes start and walks upward looking for a directory that
// contains .fractyl/. Fails with types.ErrNotFound at the filesystem root.
func Find(start string) (*Repo, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", start, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName)
		if utils.IsDir(candidate) {
			return &Repo{Root: dir, Dir: candidate}, nil
		}
		if dir == filepath.Dir(dir) {
			return nil, fmt.Errorf("no %s repository above %s: %w", DirName, abs, types.ErrNotFound)
		}
	}
}

// Init creates the repository layout under path. Fails with
// types.ErrRepoExists if .fractyl/ is already there.
func Init(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Join(abs, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%s: %w", dir, types.ErrRepoExists)
	}
	r := &Repo{Root: abs, Dir: dir}
	// snapshots/ at the top level is the legacy location; the first commit
	// migrates it under refs/heads/<branch>/.
	if err := utils.EnsureDirs(r.Dir, r.ObjectsDir(), filepath.Join(r.Dir, "snapshots"), r.CacheDir()); err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.IndexPath(), nil, 0o644); err != nil {
		return nil, fmt.Errorf("create live index: %w", err)
	}
	return r, nil
}

// ObjectsDir returns the object store root.
func (r *Repo) ObjectsDir() string {
	return filepath.Join(r.Dir, "objects")
}

// CacheDir returns the directory holding per-branch stat caches.
func (r *Repo) CacheDir() string {
	return filepath.Join(r.Dir, "cache")
}

// IndexPath returns the live index file, rewritten on every commit and
// restore.
func (r *Repo) IndexPath() string {
	return filepath.Join(r.Dir, "index")
}

// LockPath returns the repository writer lock file.
func (r *Repo) LockPath() string {
	return filepath.Join(r.Dir, "fractyl.lock")
}

// BranchDir returns the ref directory for branch.
func (r *Repo) BranchDir(branch string) string {
	return filepath.Join(r.Dir, "refs", "heads", branch)
}

// SnapshotsDir returns the snapshot record directory for branch.
func (r *Repo) SnapshotsDir(branch string) string {
	return filepath.Join(r.BranchDir(branch), "snapshots")
}

// CurrentPath returns the CURRENT pointer file for branch.
func (r *Repo) CurrentPath(branch string) string {
	return filepath.Join(r.BranchDir(branch), "CURRENT")
}

// StatCachePath returns the stat cache file for branch.
func (r *Repo) StatCachePath(branch string) string {
	return filepath.Join(r.CacheDir(), "index_"+branchFileName(branch)+".bin")
}

// DirCachePath returns the directory-mtime cache file for branch.
func (r *Repo) DirCachePath(branch string) string {
	return filepath.Join(r.CacheDir(), "dirs_"+branchFileName(branch)+".json")
}

// DirCacheLockPath returns the flock guarding the directory-mtime cache.
func (r *Repo) DirCacheLockPath(branch string) string {
	return filepath.Join(r.CacheDir(), "dirs_"+branchFileName(branch)+".lock")
}

// DaemonPIDPath returns the background supervisor's pid file.
func (r *Repo) DaemonPIDPath() string {
	return filepath.Join(r.Dir, "daemon.pid")
}

// DaemonLockPath returns the flock serializing daemon instances.
func (r *Repo) DaemonLockPath() string {
	return filepath.Join(r.Dir, "daemon.lock")
}

// DaemonLogPath returns the supervisor's log file.
func (r *Repo) DaemonLogPath() string {
	return filepath.Join(r.Dir, "daemon.log")
}

// EnsureBranch creates the ref directories for branch. Branch refs are
// created lazily by the first commit, not by init.
func (r *Repo) EnsureBranch(branch string) error {
	return utils.EnsureDirs(r.SnapshotsDir(branch), r.CacheDir())
}

// ReadCurrent returns the id recorded in CURRENT for branch, or "" when
// the branch has no snapshots yet.
func (r *Repo) ReadCurrent(branch string) (string, error) {
	data, err := os.ReadFile(r.CurrentPath(branch)) //nolint:gosec // repository-internal path
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read CURRENT for %s: %w", branch, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteCurrent atomically replaces CURRENT for branch.
func (r *Repo) WriteCurrent(branch, id string) error {
	if err := r.EnsureBranch(branch); err != nil {
		return err
	}
	return utils.AtomicWriteFile(r.CurrentPath(branch), []byte(id+"\n"), 0o644)
}

// branchFileName flattens a branch name (which may contain slashes) into
// a single cache-file component.
func branchFileName(branch string) string {
	return strings.ReplaceAll(branch, "/", "_")
}
