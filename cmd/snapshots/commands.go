package snapshots

import "github.com/spf13/cobra"

// Actions are the snapshot operations the CLI exposes.
type Actions interface {
	Snapshot(cmd *cobra.Command, args []string) error
	List(cmd *cobra.Command, args []string) error
	Show(cmd *cobra.Command, args []string) error
	Restore(cmd *cobra.Command, args []string) error
	Delete(cmd *cobra.Command, args []string) error
	Diff(cmd *cobra.Command, args []string) error
}

// Commands builds the snapshot command set.
func Commands(h Actions) []*cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take a snapshot of the working tree",
		Args:  cobra.NoArgs,
		RunE:  h.Snapshot,
	}
	snapshotCmd.Flags().StringP("message", "m", "", "snapshot description")

	return []*cobra.Command{
		snapshotCmd,
		{
			Use:   "list",
			Short: "List snapshots on the current branch, newest first",
			Args:  cobra.NoArgs,
			RunE:  h.List,
		},
		{
			Use:   "show <ref>",
			Short: "Show one snapshot's metadata and contents summary",
			Args:  cobra.ExactArgs(1),
			RunE:  h.Show,
		},
		{
			Use:   "restore <ref>",
			Short: "Restore the working tree to a snapshot",
			Args:  cobra.ExactArgs(1),
			RunE:  h.Restore,
		},
		{
			Use:   "delete <ref>",
			Short: "Delete a snapshot record (objects are kept)",
			Args:  cobra.ExactArgs(1),
			RunE:  h.Delete,
		},
		{
			Use:   "diff <ref-a> [ref-b]",
			Short: "Diff two snapshots (one ref diffs against CURRENT)",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  h.Diff,
		},
	}
}
