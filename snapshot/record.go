// Package snapshot implements the engine's writer operations: committing
// a snapshot of the working tree, restoring one, listing, resolving user
// references, and deleting records.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/utils"
)

// RecordPath returns the JSON file for a record id on a branch.
func RecordPath(r *repo.Repo, branch, id string) string {
	return filepath.Join(r.SnapshotsDir(branch), id+".json")
}

// SaveRecord writes a snapshot record. Records are written once and never
// modified; the write is atomic so readers cannot see a torn document.
func SaveRecord(r *repo.Repo, branch string, snap *types.Snapshot) error {
	if err := r.EnsureBranch(branch); err != nil {
		return err
	}
	return utils.AtomicWriteJSON(RecordPath(r, branch, snap.ID), snap)
}

// LoadRecord reads a snapshot record by full id.
func LoadRecord(r *repo.Repo, branch, id string) (*types.Snapshot, error) {
	path := RecordPath(r, branch, id)
	data, err := os.ReadFile(path) //nolint:gosec // repository-internal path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot record %s: %v: %w", path, err, types.ErrBadFormat)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("snapshot record %s has no id: %w", path, types.ErrBadFormat)
	}
	return &snap, nil
}
