// Package daemon is the periodic-snapshot supervisor: a timer that drives
// the committer through the regular repository lock. One instance per
// repository, enforced with an flock; the pid file exists for status and
// stop.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/fractyl/fractyl/config"
	"github.com/fractyl/fractyl/lock/flock"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/snapshot"
	"github.com/fractyl/fractyl/utils"
)

const stopGracePeriod = 10 * time.Second

// Status describes the supervisor for one repository.
type Status struct {
	Running bool
	PID     int
	// Interval is zero when not reported; Inspect does not report it.
	Interval time.Duration
}

// Start spawns a detached supervisor process for the repository by
// re-executing the current binary with the hidden run subcommand. Fails
// if a live daemon already exists.
func Start(ctx context.Context, r *repo.Repo, interval time.Duration) (int, error) {
	if st := Inspect(r); st.Running {
		return 0, fmt.Errorf("daemon already running (pid %d)", st.PID)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate binary: %w", err)
	}
	logFile, err := os.OpenFile(r.DaemonLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close() //nolint:errcheck

	cmd := exec.Command(exe, "daemon", "run", //nolint:gosec // re-executing ourselves
		"--interval", strconv.Itoa(int(interval.Seconds())),
		"--root", r.Root)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// The child owns its lifecycle from here; Release detaches the parent.
	if err := cmd.Process.Release(); err != nil {
		log.WithFunc("daemon.Start").Warnf(ctx, "release daemon process: %v", err)
	}
	return pid, nil
}

// Run is the supervisor loop, executed inside the spawned process. It
// holds the daemon flock for its whole lifetime and takes a snapshot
// every interval. Commit failures are logged and the loop continues;
// "no changes" is the normal quiet outcome.
func Run(ctx context.Context, conf *config.Config, r *repo.Repo, interval time.Duration) error {
	logger := log.WithFunc("daemon.Run")

	fl := flock.New(r.DaemonLockPath())
	ok, err := fl.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another daemon holds %s", r.DaemonLockPath())
	}
	defer fl.Unlock(ctx) //nolint:errcheck

	if err := utils.WritePIDFile(r.DaemonPIDPath(), os.Getpid()); err != nil {
		return fmt.Errorf("write daemon pid: %w", err)
	}
	defer os.Remove(r.DaemonPIDPath()) //nolint:errcheck

	logger.Infof(ctx, "daemon started for %s, interval %s", r.Root, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof(ctx, "daemon stopping: %v", ctx.Err())
			return nil
		case <-ticker.C:
			res, err := snapshot.Commit(ctx, conf, r, snapshot.Options{Background: true})
			switch {
			case err != nil:
				logger.Warnf(ctx, "periodic snapshot: %v", err)
			case res.Created:
				logger.Infof(ctx, "periodic snapshot %s (+%d ~%d -%d)",
					res.Snapshot.ShortID(), res.Added, res.Modified, res.Deleted)
			}
		}
	}
}

// Stop terminates the repository's daemon, waiting for it to exit.
func Stop(ctx context.Context, r *repo.Repo) error {
	st := Inspect(r)
	if !st.Running {
		return fmt.Errorf("daemon is not running")
	}
	if err := utils.TerminateProcess(ctx, st.PID, stopGracePeriod); err != nil {
		return fmt.Errorf("stop daemon pid %d: %w", st.PID, err)
	}
	_ = os.Remove(r.DaemonPIDPath())
	return nil
}

// Inspect reports daemon liveness from the pid file. A pid file naming a
// dead process is stale, not running; so is one whose pid was recycled
// by an unrelated binary after a crash, which is why the check verifies
// the process image and not just existence.
func Inspect(r *repo.Repo) Status {
	pid, err := utils.ReadPIDFile(r.DaemonPIDPath())
	if err != nil {
		return Status{}
	}
	if !utils.VerifyProcess(pid, binaryName()) {
		return Status{PID: pid}
	}
	return Status{Running: true, PID: pid}
}

// binaryName is the executable name a live daemon must be running, since
// the daemon is this binary re-executed with the hidden run subcommand.
func binaryName() string {
	exe, err := os.Executable()
	if err != nil {
		return "fractyl"
	}
	return filepath.Base(exe)
}
