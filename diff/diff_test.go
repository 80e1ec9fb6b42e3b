package diff

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractyl/fractyl/config"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/snapshot"
)

func TestIsBinary(t *testing.T) {
	assert.True(t, isBinary("logo.png", []byte("anything")))
	assert.True(t, isBinary("data", []byte{'a', 0, 'b'}))
	assert.False(t, isBinary("main.go", []byte("package main\n")))
	assert.False(t, isBinary("empty.txt", nil))
}

func TestColorize(t *testing.T) {
	out := colorize("--- a/f\n+++ b/f\n-old\n+new\n ctx\n")
	assert.Contains(t, out, "\x1b[31m-old\x1b[0m")
	assert.Contains(t, out, "\x1b[32m+new\x1b[0m")
	assert.Contains(t, out, "--- a/f\n")
	assert.NotContains(t, out, "\x1b[32m+++")
}

func TestRunRendersUnifiedDiff(t *testing.T) {
	ctx := context.Background()
	r, err := repo.Init(t.TempDir())
	require.NoError(t, err)
	conf := config.DefaultConfig()

	write := func(rel, body string) {
		abs := filepath.Join(r.Root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
	}

	write("greet.txt", "hello\nshared\n")
	write("gone.txt", "bye\n")
	s1, err := snapshot.Commit(ctx, conf, r, snapshot.Options{Description: "one"})
	require.NoError(t, err)

	write("greet.txt", "goodbye\nshared\n")
	old := time.Now().Add(-2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(r.Root, "greet.txt"), old, old))
	require.NoError(t, os.Remove(filepath.Join(r.Root, "gone.txt")))
	write("added.txt", "fresh\n")
	s2, err := snapshot.Commit(ctx, conf, r, snapshot.Options{Description: "two"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Run(ctx, r, s1.Snapshot.ID, s2.Snapshot.ID, &buf, Options{}))
	out := buf.String()

	assert.Contains(t, out, "--- a/greet.txt")
	assert.Contains(t, out, "+++ b/greet.txt")
	assert.Contains(t, out, "-hello")
	assert.Contains(t, out, "+goodbye")
	assert.Contains(t, out, "Only in "+s1.Snapshot.ShortID()+": gone.txt")
	assert.Contains(t, out, "Only in "+s2.Snapshot.ShortID()+": added.txt")
	assert.NotContains(t, out, "shared.txt")
}

func TestRunAgainstCurrent(t *testing.T) {
	ctx := context.Background()
	r, err := repo.Init(t.TempDir())
	require.NoError(t, err)
	conf := config.DefaultConfig()

	path := filepath.Join(r.Root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1\n"), 0o644))
	s1, err := snapshot.Commit(ctx, conf, r, snapshot.Options{Description: "one"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2 longer\n"), 0o644))
	old := time.Now().Add(-2 * time.Second)
	require.NoError(t, os.Chtimes(path, old, old))
	_, err = snapshot.Commit(ctx, conf, r, snapshot.Options{Description: "two"})
	require.NoError(t, err)

	// Empty second ref means CURRENT.
	var buf bytes.Buffer
	require.NoError(t, Run(ctx, r, s1.Snapshot.ID, "", &buf, Options{}))
	assert.Contains(t, buf.String(), "+v2 longer")
}
