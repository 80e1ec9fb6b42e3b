package daemon

import "github.com/spf13/cobra"

// Actions are the supervisor operations the CLI exposes.
type Actions interface {
	Start(cmd *cobra.Command, args []string) error
	Stop(cmd *cobra.Command, args []string) error
	Status(cmd *cobra.Command, args []string) error
	Restart(cmd *cobra.Command, args []string) error
	Run(cmd *cobra.Command, args []string) error
}

// Command builds the daemon command tree.
func Command(h Actions) *cobra.Command {
	root := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the periodic-snapshot daemon",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon for this repository",
		Args:  cobra.NoArgs,
		RunE:  h.Start,
	}
	start.Flags().IntP("interval", "i", 0, "snapshot interval in seconds (default from config)")

	run := &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon loop in the foreground",
		Hidden: true, // spawned by 'daemon start'
		Args:   cobra.NoArgs,
		RunE:   h.Run,
	}
	run.Flags().IntP("interval", "i", 0, "snapshot interval in seconds")
	run.Flags().String("root", "", "repository working-tree root")

	root.AddCommand(
		start,
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the daemon",
			Args:  cobra.NoArgs,
			RunE:  h.Stop,
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the daemon is running",
			Args:  cobra.NoArgs,
			RunE:  h.Status,
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the daemon",
			Args:  cobra.NoArgs,
			RunE:  h.Restart,
		},
		run,
	)
	return root
}
