package snapshots

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fractyl/fractyl/cmd/core"
	"github.com/fractyl/fractyl/diff"
	"github.com/fractyl/fractyl/hash"
	"github.com/fractyl/fractyl/index"
	"github.com/fractyl/fractyl/objects"
	"github.com/fractyl/fractyl/progress"
	scanprogress "github.com/fractyl/fractyl/progress/scan"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/snapshot"
	"github.com/fractyl/fractyl/vcs"
)

type Handler struct {
	core.BaseHandler
}

func (h Handler) Snapshot(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")

	tracker := progress.NewTracker(func(e scanprogress.Event) {
		if e.Phase == scanprogress.PhaseHash {
			fmt.Printf("  hashing %s\n", e.Path)
		}
	})
	res, err := snapshot.Commit(ctx, conf, r, snapshot.Options{Description: message, Tracker: tracker})
	if err != nil {
		return err
	}
	if !res.Created {
		fmt.Println("No changes detected since last snapshot.")
		return nil
	}
	fmt.Printf("Created snapshot %s on %s: %q\n", res.Snapshot.ShortID(), res.Branch, res.Snapshot.Description)
	fmt.Printf("  +%d added, ~%d modified, -%d deleted (%d files, %d hashed)\n",
		res.Added, res.Modified, res.Deleted, res.Stats.Files, res.Stats.Hashed)
	return nil
}

func (h Handler) List(cmd *cobra.Command, _ []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	branch := currentBranch(ctx, r)

	snaps, err := snapshot.List(r, branch)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Printf("No snapshots on %s.\n", branch)
		return nil
	}
	current, _ := r.ReadCurrent(branch)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDESCRIPTION\tAGE\tPARENT")
	for _, s := range snaps {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		parent := "-"
		if s.Parent != nil {
			parent = shortID(*s.Parent)
		}
		_, _ = fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n",
			marker, s.ShortID(), s.Description, age(s.Timestamp.Time), parent)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func (h Handler) Show(cmd *cobra.Command, args []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	branch := currentBranch(ctx, r)

	id, err := snapshot.Resolve(r, branch, args[0])
	if err != nil {
		return err
	}
	snap, err := snapshot.LoadRecord(r, branch, id)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot:    %s\n", snap.ID)
	fmt.Printf("Description: %s\n", snap.Description)
	fmt.Printf("Timestamp:   %s\n", snap.Timestamp.Format(time.RFC1123))
	if snap.Parent != nil {
		fmt.Printf("Parent:      %s\n", *snap.Parent)
	}
	if snap.GitBranch != "" {
		fmt.Printf("Git branch:  %s\n", snap.GitBranch)
	}
	if snap.GitCommit != "" {
		fmt.Printf("Git commit:  %s\n", snap.GitCommit)
	}
	if snap.GitDirty != nil {
		fmt.Printf("Git dirty:   %v\n", *snap.GitDirty)
	}
	fmt.Printf("Index hash:  %s\n", snap.IndexHash)

	store, err := objects.New(r.ObjectsDir())
	if err != nil {
		return err
	}
	d, err := hash.Parse(snap.IndexHash)
	if err != nil {
		return err
	}
	data, err := store.Get(d)
	if err != nil {
		return err
	}
	ix, err := index.Decode(data)
	if err != nil {
		return err
	}
	var total uint64
	for _, e := range ix.Entries() {
		total += e.Size
	}
	fmt.Printf("Files:       %d (%s)\n", ix.Len(), core.FormatSize(int64(total)))
	return nil
}

func (h Handler) Restore(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	res, err := snapshot.Restore(ctx, conf, r, args[0])
	if err != nil {
		return err
	}
	if res.SafetySnapshot != nil {
		fmt.Printf("Saved uncommitted work as %s.\n", res.SafetySnapshot.ShortID())
	}
	fmt.Printf("Restored %s on %s (%d files written, %d removed).\n",
		res.Snapshot.ShortID(), res.Branch, res.Restored, res.Removed)
	return nil
}

func (h Handler) Delete(cmd *cobra.Command, args []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	id, err := snapshot.Delete(ctx, r, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Deleted snapshot %s.\n", id)
	fmt.Println("Objects are retained; snapshots sharing them are unaffected.")
	return nil
}

func (h Handler) Diff(cmd *cobra.Command, args []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	refB := ""
	if len(args) == 2 {
		refB = args[1]
	}
	opts := diff.Options{Color: term.IsTerminal(int(os.Stdout.Fd()))}
	return diff.Run(ctx, r, args[0], refB, os.Stdout, opts)
}

func currentBranch(ctx context.Context, r *repo.Repo) string {
	branch := vcs.Detect(ctx, r.Root).Branch
	if branch == "" {
		return repo.DefaultBranch
	}
	return branch
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
