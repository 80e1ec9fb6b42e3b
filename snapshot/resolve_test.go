package snapshot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
)

func testRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	require.NoError(t, err)
	return r
}

func record(t *testing.T, r *repo.Repo, branch, id string, ts time.Time) *types.Snapshot {
	t.Helper()
	s := &types.Snapshot{
		ID:          id,
		Description: "test",
		Timestamp:   types.UTCTime{Time: ts},
		IndexHash:   strings.Repeat("0", 64),
	}
	require.NoError(t, SaveRecord(r, branch, s))
	return s
}

func TestResolvePrefix(t *testing.T) {
	r := testRepo(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	idA := "abcd1234" + strings.Repeat("0", 56)
	idB := "abcd5678" + strings.Repeat("0", 56)
	idC := strings.Repeat("f", 64)
	record(t, r, "main", idA, base)
	record(t, r, "main", idB, base.Add(time.Minute))
	record(t, r, "main", idC, base.Add(2*time.Minute))

	// Shared prefix: ambiguous.
	_, err := Resolve(r, "main", "abcd")
	assert.True(t, errors.Is(err, types.ErrAmbiguous))

	// One more character settles it.
	id, err := Resolve(r, "main", "abcd1")
	require.NoError(t, err)
	assert.Equal(t, idA, id)

	// Below the minimum length.
	_, err = Resolve(r, "main", "abc")
	assert.True(t, errors.Is(err, types.ErrRefTooShort))

	// No match.
	_, err = Resolve(r, "main", "dead")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestResolveRelative(t *testing.T) {
	r := testRepo(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	oldest := record(t, r, "main", strings.Repeat("1", 64), base)
	middle := record(t, r, "main", strings.Repeat("2", 64), base.Add(time.Minute))
	newest := record(t, r, "main", strings.Repeat("3", 64), base.Add(2*time.Minute))

	id, err := Resolve(r, "main", "-1")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, id)

	id, err = Resolve(r, "main", "-2")
	require.NoError(t, err)
	assert.Equal(t, middle.ID, id)

	id, err = Resolve(r, "main", "-3")
	require.NoError(t, err)
	assert.Equal(t, oldest.ID, id)

	_, err = Resolve(r, "main", "-4")
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = Resolve(r, "main", "-0")
	assert.True(t, errors.Is(err, types.ErrInvalidArgs))

	_, err = Resolve(r, "main", "-x")
	assert.True(t, errors.Is(err, types.ErrInvalidArgs))
}

func TestResolveFullIDsVerbatim(t *testing.T) {
	r := testRepo(t)

	hex64 := strings.Repeat("a", 64)
	id, err := Resolve(r, "main", hex64)
	require.NoError(t, err)
	assert.Equal(t, hex64, id)

	uuid := "123e4567-e89b-12d3-a456-426614174000"
	id, err = Resolve(r, "main", uuid)
	require.NoError(t, err)
	assert.Equal(t, uuid, id)
}

func TestResolveIsDeterministic(t *testing.T) {
	r := testRepo(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	record(t, r, "main", "abcd1234"+strings.Repeat("0", 56), base)

	for i := 0; i < 3; i++ {
		id, err := Resolve(r, "main", "abcd")
		require.NoError(t, err)
		assert.Equal(t, "abcd1234"+strings.Repeat("0", 56), id)
	}
}

func TestResolveEmpty(t *testing.T) {
	r := testRepo(t)
	_, err := Resolve(r, "main", "")
	assert.True(t, errors.Is(err, types.ErrInvalidArgs))
}
