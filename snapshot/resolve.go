package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
)

// minPrefixLen is the shortest accepted hex-prefix reference.
const minPrefixLen = 4

// Resolve turns a user snapshot reference into a full id on branch:
//
//   - "-N" for N >= 1 picks the Nth most recent record by timestamp;
//   - a full-id shape (64 hex chars, or a dashed UUID) is accepted verbatim;
//   - anything else is a prefix: at least 4 chars, matching exactly one id.
func Resolve(r *repo.Repo, branch, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty reference: %w", types.ErrInvalidArgs)
	}
	if strings.HasPrefix(ref, "-") {
		return resolveRelative(r, branch, ref)
	}
	if isFullID(ref) {
		return ref, nil
	}
	return resolvePrefix(r, branch, ref)
}

func resolveRelative(r *repo.Repo, branch, ref string) (string, error) {
	n, err := strconv.Atoi(ref[1:])
	if err != nil || n < 1 {
		return "", fmt.Errorf("relative reference %q: %w", ref, types.ErrInvalidArgs)
	}
	snaps, err := List(r, branch)
	if err != nil {
		return "", err
	}
	if n > len(snaps) {
		return "", fmt.Errorf("only %d snapshots on %s, cannot resolve %q: %w", len(snaps), branch, ref, types.ErrNotFound)
	}
	return snaps[n-1].ID, nil
}

func resolvePrefix(r *repo.Repo, branch, prefix string) (string, error) {
	if len(prefix) < minPrefixLen {
		return "", fmt.Errorf("prefix %q shorter than %d chars: %w", prefix, minPrefixLen, types.ErrRefTooShort)
	}
	snaps, err := List(r, branch)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range snaps {
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no snapshot matches %q on %s: %w", prefix, branch, types.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("prefix %q matches %s: %w", prefix, strings.Join(matches, ", "), types.ErrAmbiguous)
	}
}

// isFullID reports whether ref already names a snapshot outright: 64 hex
// chars, or the 36-char dashed UUID shape.
func isFullID(ref string) bool {
	if len(ref) != 64 && len(ref) != 36 {
		return false
	}
	for _, c := range ref {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F', c == '-':
		default:
			return false
		}
	}
	return true
}
