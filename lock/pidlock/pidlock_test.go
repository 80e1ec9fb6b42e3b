package pidlock

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/utils"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "fractyl.lock")
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	path := lockPath(t)
	l := New(path, time.Second)

	require.NoError(t, l.Lock(ctx))

	// The file records our pid.
	pid, err := utils.ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Unlock(ctx))
	assert.NoFileExists(t, path)
}

func TestSecondWriterFails(t *testing.T) {
	ctx := context.Background()
	path := lockPath(t)

	l1 := New(path, time.Second)
	require.NoError(t, l1.Lock(ctx))
	defer l1.Unlock(ctx) //nolint:errcheck

	l2 := New(path, 300*time.Millisecond)
	err := l2.Lock(ctx)
	assert.True(t, errors.Is(err, types.ErrLocked))

	ok, err := l2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaleLockIsRecovered(t *testing.T) {
	ctx := context.Background()
	path := lockPath(t)

	// A real pid that is certainly dead: a child that already exited.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	deadPID := cmd.Process.Pid
	require.False(t, utils.IsProcessAlive(deadPID))
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(deadPID)+"\n"), 0o600))

	l := New(path, time.Second)
	require.NoError(t, l.Lock(ctx))
	pid, err := utils.ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	require.NoError(t, l.Unlock(ctx))
}

func TestGarbageLockIsRecovered(t *testing.T) {
	ctx := context.Background()
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not a pid\n"), 0o600))

	l := New(path, time.Second)
	require.NoError(t, l.Lock(ctx))
	require.NoError(t, l.Unlock(ctx))
}

func TestUnlockLeavesForeignLock(t *testing.T) {
	ctx := context.Background()
	path := lockPath(t)

	l := New(path, time.Second)
	require.NoError(t, l.Lock(ctx))

	// Simulate a crash-and-restart race: someone else now owns the file.
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o600))
	require.NoError(t, l.Unlock(ctx))
	assert.FileExists(t, path)
}

func TestWaitAcquireEventuallySucceeds(t *testing.T) {
	ctx := context.Background()
	path := lockPath(t)

	l1 := New(path, time.Second)
	require.NoError(t, l1.Lock(ctx))
	go func() {
		time.Sleep(250 * time.Millisecond)
		_ = l1.Unlock(ctx)
	}()

	l2 := New(path, 3*time.Second)
	start := time.Now()
	require.NoError(t, l2.Lock(ctx))
	assert.Less(t, time.Since(start), 3*time.Second)
	require.NoError(t, l2.Unlock(ctx))
}
