package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fractyl/fractyl/cmd/core"
	cmddaemon "github.com/fractyl/fractyl/cmd/daemon"
	cmdothers "github.com/fractyl/fractyl/cmd/others"
	cmdsnapshots "github.com/fractyl/fractyl/cmd/snapshots"
	"github.com/fractyl/fractyl/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fractyl",
		Short:        "Fractyl - content-addressed working-tree snapshots",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(core.CommandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().Int("pool-size", 0, "scanner worker pool size")
	cmd.PersistentFlags().Int("lock-timeout", 0, "seconds to wait for the repository lock")

	_ = viper.BindPFlag("pool_size", cmd.PersistentFlags().Lookup("pool-size"))
	_ = viper.BindPFlag("lock_timeout_seconds", cmd.PersistentFlags().Lookup("lock-timeout"))

	viper.SetEnvPrefix("FRACTYL")
	viper.AutomaticEnv()

	confProvider := func() *config.Config { return conf }
	base := core.BaseHandler{ConfProvider: confProvider}

	cmd.AddCommand(cmdsnapshots.Commands(cmdsnapshots.Handler{BaseHandler: base})...)
	cmd.AddCommand(cmddaemon.Command(cmddaemon.Handler{BaseHandler: base}))
	cmd.AddCommand(cmdothers.Commands(cmdothers.Handler{BaseHandler: base})...)

	return cmd
}()

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		// No config file is OK; a corrupt/unreadable one is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	conf.Normalize()

	return log.SetupLog(ctx, conf.Log, "")
}
