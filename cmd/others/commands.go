package others

import "github.com/spf13/cobra"

// Actions organizes cross-cutting commands.
type Actions interface {
	Init(cmd *cobra.Command, args []string) error
	Version(cmd *cobra.Command, args []string) error
}

// Commands builds the repository lifecycle and misc command set.
func Commands(h Actions) []*cobra.Command {
	return []*cobra.Command{
		{
			Use:   "init",
			Short: "Initialize a fractyl repository in the current directory",
			Args:  cobra.NoArgs,
			RunE:  h.Init,
		},
		{
			Use:   "version",
			Short: "Show version, git revision, and build timestamp",
			Args:  cobra.NoArgs,
			RunE:  h.Version,
		},
	}
}
