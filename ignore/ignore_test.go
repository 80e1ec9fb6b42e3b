package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
}

func TestNoIgnoreFiles(t *testing.T) {
	m := Load(t.TempDir())
	assert.False(t, m.Ignored("anything.txt", false))
	assert.False(t, m.Ignored("", false))
}

func TestGitignorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\nbuild/\n")

	m := Load(root)
	assert.True(t, m.Ignored("debug.log", false))
	assert.True(t, m.Ignored("sub/debug.log", false))
	assert.True(t, m.Ignored("build", true))
	assert.False(t, m.Ignored("main.go", false))
}

func TestNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/.gitignore", "generated.go\n")
	writeFile(t, root, "vendor/generated.go", "x")

	m := Load(root)
	assert.True(t, m.Ignored("vendor/generated.go", false))
	assert.False(t, m.Ignored("generated.go", false))
}

func TestFractylIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".fractylignore", "# comment\n\n*.tmp\n")

	m := Load(root)
	assert.True(t, m.Ignored("scratch.tmp", false))
	assert.False(t, m.Ignored("scratch.txt", false))
}
