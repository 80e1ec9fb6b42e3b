// Package vcs reads the version-control context a snapshot is taken in.
// The engine treats it as an opaque provider: a branch name partitioning
// snapshot history, plus optional commit id, dirty flag, and status
// lines. Everything degrades to the zero Context outside a git repository.
package vcs

import (
	"context"
	"fmt"
	"sort"

	git "github.com/go-git/go-git/v5"

	"github.com/projecteru2/core/log"
)

// maxStatusLines bounds the status detail carried into a snapshot record.
const maxStatusLines = 100

// Context is the version-control state at commit time. All fields are
// optional; the zero value means "no VCS present".
type Context struct {
	Branch string
	Commit string
	Dirty  bool
	Status []string
}

// Detect reads the git context for the working tree at root. Any failure
// is logged at debug level and yields a partial or zero context; snapshot
// commits never fail because of the VCS.
func Detect(ctx context.Context, root string) Context {
	logger := log.WithFunc("vcs.Detect")

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		logger.Debugf(ctx, "no git repository at %s: %v", root, err)
		return Context{}
	}

	var out Context
	head, err := repo.Head()
	if err != nil {
		logger.Debugf(ctx, "git HEAD: %v", err)
		return out
	}
	out.Commit = head.Hash().String()
	if head.Name().IsBranch() {
		out.Branch = head.Name().Short()
	} else {
		// Detached HEAD still partitions history, by commit.
		out.Branch = "detached-" + out.Commit[:7]
	}

	wt, err := repo.Worktree()
	if err != nil {
		logger.Debugf(ctx, "git worktree: %v", err)
		return out
	}
	status, err := wt.Status()
	if err != nil {
		logger.Debugf(ctx, "git status: %v", err)
		return out
	}
	out.Dirty = !status.IsClean()
	out.Status = formatStatus(status)
	return out
}

func formatStatus(status git.Status) []string {
	var lines []string
	for path, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		lines = append(lines, fmt.Sprintf("%c%c %s", fs.Staging, fs.Worktree, path))
	}
	sort.Strings(lines)
	if len(lines) > maxStatusLines {
		lines = lines[:maxStatusLines]
	}
	return lines
}
