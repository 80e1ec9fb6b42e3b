package hash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256("hello"), a fixed vector.
const helloHex = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

// sha256("") for the empty body.
const emptyHex = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestBytes(t *testing.T) {
	assert.Equal(t, helloHex, Bytes([]byte("hello")).Hex())
	assert.Equal(t, emptyHex, Bytes(nil).Hex())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	d, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, helloHex, d.Hex())
}

func TestFileMatchesBytesForLargeBody(t *testing.T) {
	// Spans several read-buffer fills.
	body := []byte(strings.Repeat("0123456789abcdef", 4096))
	path := filepath.Join(t.TempDir(), "big")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	d, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, Bytes(body), d)
}

func TestFileMissing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	d, err := Parse(helloHex)
	require.NoError(t, err)
	assert.Equal(t, helloHex, d.Hex())

	_, err = Parse("abcd")
	assert.Error(t, err)
	_, err = Parse(strings.Repeat("zz", 32))
	assert.Error(t, err)
}

func TestShortAndZero(t *testing.T) {
	d := Bytes([]byte("hello"))
	assert.Equal(t, helloHex[:8], d.Short())
	assert.False(t, d.IsZero())
	assert.True(t, Digest{}.IsZero())
}
