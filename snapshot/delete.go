package snapshot

import (
	"context"
	"fmt"
	"os"

	"github.com/projecteru2/core/log"

	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/vcs"
)

// Delete removes a single snapshot record after resolving ref on the
// current branch. Objects are never touched: there is no garbage
// collection, and bodies may be shared with other snapshots.
func Delete(ctx context.Context, r *repo.Repo, ref string) (string, error) {
	branch := vcs.Detect(ctx, r.Root).Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}

	id, err := Resolve(r, branch, ref)
	if err != nil {
		return "", err
	}
	path := RecordPath(r, branch, id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("snapshot %s on %s: %w", id, branch, types.ErrNotFound)
		}
		return "", fmt.Errorf("delete snapshot %s: %w", id, err)
	}

	logger := log.WithFunc("snapshot.Delete")
	logger.Infof(ctx, "deleted snapshot record %s on %s (objects are retained)", id, branch)

	// A CURRENT pointing at the deleted record would violate its
	// invariant; repoint it at the newest remaining snapshot.
	current, err := r.ReadCurrent(branch)
	if err == nil && current == id {
		if latest := latestByTimestamp(r, branch); latest != nil {
			if werr := r.WriteCurrent(branch, latest.ID); werr != nil {
				logger.Warnf(ctx, "repoint CURRENT after delete: %v", werr)
			}
		} else if rerr := os.Remove(r.CurrentPath(branch)); rerr != nil && !os.IsNotExist(rerr) {
			logger.Warnf(ctx, "clear CURRENT after delete: %v", rerr)
		}
	}
	return id, nil
}
