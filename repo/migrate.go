package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/projecteru2/core/log"

	"github.com/fractyl/fractyl/utils"
)

// MigrateLegacyLayout moves a pre-branch layout (snapshots/ and CURRENT
// directly under .fractyl/) into refs/heads/<branch>/. Runs on first
// commit, under the same writer lock as the commit itself, so concurrent
// access cannot observe the half-moved state.
func (r *Repo) MigrateLegacyLayout(ctx context.Context, branch string) error {
	legacySnapshots := filepath.Join(r.Dir, "snapshots")
	legacyCurrent := filepath.Join(r.Dir, "CURRENT")

	hasRecords := false
	if entries, err := os.ReadDir(legacySnapshots); err == nil {
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				hasRecords = true
				break
			}
		}
	}
	hasCurrent := utils.IsRegular(legacyCurrent)
	if !hasRecords && !hasCurrent {
		// Nothing to migrate; drop the empty placeholder dir if present.
		_ = os.Remove(legacySnapshots)
		return nil
	}

	logger := log.WithFunc("repo.MigrateLegacyLayout")
	logger.Infof(ctx, "migrating legacy layout to refs/heads/%s", branch)

	if err := utils.EnsureDirs(r.BranchDir(branch)); err != nil {
		return err
	}

	if hasRecords {
		target := r.SnapshotsDir(branch)
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("both legacy and branch snapshot dirs exist; refusing to merge %s into %s", legacySnapshots, target)
		}
		if err := os.Rename(legacySnapshots, target); err != nil {
			return fmt.Errorf("move %s to %s: %w", legacySnapshots, target, err)
		}
	} else {
		_ = os.Remove(legacySnapshots)
	}
	if hasCurrent {
		if err := os.Rename(legacyCurrent, r.CurrentPath(branch)); err != nil {
			return fmt.Errorf("move %s: %w", legacyCurrent, err)
		}
	}
	return utils.SyncParentDir(r.Dir)
}
