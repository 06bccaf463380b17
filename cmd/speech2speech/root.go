package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RaghavMittal2005/speech2speech/config"
)

type globalOptions struct {
	ConfigPath  string
	ThreadID    string
	Verbose     bool
	MetricsAddr string
}

// cliEnv is shared by every subcommand once the root pre-run has loaded the
// configuration.
type cliEnv struct {
	opts   globalOptions
	cfg    *config.Config
	logger *zap.Logger
	build  appBuilder
	open   storeOpener
}

func newRootCmd(build appBuilder, open storeOpener) *cobra.Command {
	env := &cliEnv{build: build, open: open}

	cmd := &cobra.Command{
		Use:           "speech2speech",
		Short:         "A sandboxed coding assistant for the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env.opts.ConfigPath)
			if err != nil {
				return err
			}
			if env.opts.MetricsAddr != "" {
				cfg.Metrics.Addr = env.opts.MetricsAddr
			}
			logger, err := config.NewLogger(cfg.Logging, env.opts.Verbose)
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&env.opts.ConfigPath, "config", "c", config.DefaultPath, "path to the configuration file")
	cmd.PersistentFlags().StringVarP(&env.opts.ThreadID, "thread", "t", "", "conversation thread id (default: a new thread)")
	cmd.PersistentFlags().BoolVarP(&env.opts.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&env.opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	cmd.AddCommand(newChatCmd(env))
	cmd.AddCommand(newRunCmd(env))
	cmd.AddCommand(newThreadsCmd(env))
	return cmd
}
