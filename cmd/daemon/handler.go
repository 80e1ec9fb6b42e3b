package daemon

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fractyl/fractyl/cmd/core"
	"github.com/fractyl/fractyl/config"
	"github.com/fractyl/fractyl/daemon"
	"github.com/fractyl/fractyl/repo"
)

type Handler struct {
	core.BaseHandler
}

func (h Handler) Start(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	pid, err := daemon.Start(ctx, r, interval(cmd, conf))
	if err != nil {
		return err
	}
	fmt.Printf("Daemon started (pid %d).\n", pid)
	return nil
}

func (h Handler) Stop(cmd *cobra.Command, _ []string) error {
	ctx, _, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	if err := daemon.Stop(ctx, r); err != nil {
		return err
	}
	fmt.Println("Daemon stopped.")
	return nil
}

func (h Handler) Status(cmd *cobra.Command, _ []string) error {
	if _, _, err := h.Init(cmd); err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	st := daemon.Inspect(r)
	switch {
	case st.Running:
		fmt.Printf("Daemon is running (pid %d).\n", st.PID)
	case st.PID != 0:
		fmt.Printf("Daemon is not running (stale pid file, pid %d).\n", st.PID)
	default:
		fmt.Println("Daemon is not running.")
	}
	return nil
}

func (h Handler) Restart(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	r, err := core.OpenRepo()
	if err != nil {
		return err
	}
	if st := daemon.Inspect(r); st.Running {
		if err := daemon.Stop(ctx, r); err != nil {
			return err
		}
	}
	pid, err := daemon.Start(ctx, r, interval(cmd, conf))
	if err != nil {
		return err
	}
	fmt.Printf("Daemon restarted (pid %d).\n", pid)
	return nil
}

// Run is the hidden foreground loop executed by the process 'daemon
// start' spawns.
func (h Handler) Run(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	root, _ := cmd.Flags().GetString("root")
	var r *repo.Repo
	if root != "" {
		r, err = repo.Find(root)
	} else {
		r, err = core.OpenRepo()
	}
	if err != nil {
		return err
	}
	return daemon.Run(ctx, conf, r, interval(cmd, conf))
}

func interval(cmd *cobra.Command, conf *config.Config) time.Duration {
	secs, _ := cmd.Flags().GetInt("interval")
	if secs <= 0 {
		secs = conf.DaemonIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}
