// Package pidlock implements the repository writer lock: a single file
// created with O_EXCL containing the holder's pid. A crashed writer leaves
// the file behind; the next acquirer probes the recorded pid and clears
// the lock when the process is gone.
package pidlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/fractyl/fractyl/lock"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/utils"
)

const pollInterval = 100 * time.Millisecond

// compile-time interface check.
var _ lock.Locker = (*Lock)(nil)

// Lock is an advisory pid-file lock. One writer per repository.
type Lock struct {
	path    string
	timeout time.Duration
	held    bool
}

// New creates a Lock for the given path. timeout bounds how long Lock
// waits for a live holder to release.
func New(path string, timeout time.Duration) *Lock {
	return &Lock{path: path, timeout: timeout}
}

// TryLock attempts a single non-blocking acquisition.
// Returns (false, nil) when another live writer holds the lock.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	err := l.tryAcquire(ctx)
	if errors.Is(err, types.ErrLocked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Lock acquires the lock, polling until the timeout expires.
// Fails with types.ErrLocked when a live writer still holds it.
func (l *Lock) Lock(ctx context.Context) error {
	var lastErr error
	waitErr := utils.WaitFor(ctx, l.timeout, pollInterval, func() (bool, error) {
		lastErr = l.tryAcquire(ctx)
		if lastErr == nil {
			return true, nil
		}
		if errors.Is(lastErr, types.ErrLocked) {
			return false, nil // keep polling
		}
		return false, lastErr
	})
	if waitErr == nil {
		return nil
	}
	if ctx.Err() == nil && lastErr != nil {
		return lastErr
	}
	return waitErr
}

// Unlock releases the lock. The file is unlinked only if it still records
// the caller's pid, so a crash-and-restart cycle cannot unlink a new
// owner's lock. Release errors are logged and dropped per the error policy.
func (l *Lock) Unlock(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	pid, err := utils.ReadPIDFile(l.path)
	if err != nil {
		log.WithFunc("pidlock.Unlock").Warnf(ctx, "read lock %s on release: %v", l.path, err)
		return nil
	}
	if pid != os.Getpid() {
		log.WithFunc("pidlock.Unlock").Warnf(ctx, "lock %s now owned by pid %d, leaving in place", l.path, pid)
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.WithFunc("pidlock.Unlock").Warnf(ctx, "remove lock %s: %v", l.path, err)
	}
	return nil
}

// tryAcquire creates the lock file exclusively and records our pid. On
// EEXIST the recorded pid is probed; a dead holder's lock is removed and
// the acquisition retried once.
func (l *Lock) tryAcquire(ctx context.Context) error {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			werr := writePID(f)
			if werr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("write lock %s: %w", l.path, werr)
			}
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock %s: %w", l.path, err)
		}

		pid, rerr := utils.ReadPIDFile(l.path)
		if rerr != nil {
			if os.IsNotExist(rerr) {
				continue // holder released between create and read
			}
			// Unreadable or torn lock file: treat as stale.
			pid = 0
		}
		if pid > 0 && utils.IsProcessAlive(pid) {
			return fmt.Errorf("held by pid %d: %w", pid, types.ErrLocked)
		}
		log.WithFunc("pidlock.tryAcquire").Warnf(ctx, "removing stale lock %s (pid %d not running)", l.path, pid)
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale lock %s: %w", l.path, err)
		}
	}
	return fmt.Errorf("lock %s contended: %w", l.path, types.ErrLocked)
}

func writePID(f *os.File) error {
	defer f.Close() //nolint:errcheck
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return err
	}
	return f.Sync()
}
