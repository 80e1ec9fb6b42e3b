package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fractyl/fractyl/types"
)

func snap(id, desc string) *types.Snapshot {
	return &types.Snapshot{ID: id, Description: desc}
}

func TestDefaultDescriptionFirstSnapshot(t *testing.T) {
	assert.Equal(t, "working", DefaultDescription(nil, nil))
}

func TestDefaultDescriptionIncrements(t *testing.T) {
	prior := snap("id-1", "working")
	assert.Equal(t, "working +1", DefaultDescription(prior, prior))

	prior = snap("id-2", "working +1")
	assert.Equal(t, "working +2", DefaultDescription(prior, prior))

	prior = snap("id-3", "fix parser +41")
	assert.Equal(t, "fix parser +42", DefaultDescription(prior, prior))
}

func TestDefaultDescriptionNonNumericSuffix(t *testing.T) {
	prior := snap("id-1", "before lunch +x")
	assert.Equal(t, "before lunch +x +1", DefaultDescription(prior, prior))
}

func TestDefaultDescriptionDivergence(t *testing.T) {
	// CURRENT was restored to an older snapshot; the newest record by
	// timestamp is someone else.
	prior := snap("abcdef1234567890", "working +3")
	latest := snap("ffff000011112222", "working +5")
	assert.Equal(t, "working-abcdef", DefaultDescription(prior, latest))
}
