package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type cliOptions struct {
	configPath string
	logLevel   string
	jsonOutput bool
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		logLevel: "warn",
		logger:   zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "deckctl",
		Short: "CLI client for the deckd connection coordinator",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd, &opts)
			return initLogger(&opts)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (optional)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newDiscoverCmd(&opts),
		newConnectCmd(&opts),
		newServersCmd(&opts),
		newThreadsCmd(&opts),
		newModelsCmd(&opts),
		newChatCmd(&opts),
		newRuntimeCmd(&opts),
	)

	return root
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "log-level":
			opts.logLevel, _ = flags.GetString("log-level")
		case "json":
			opts.jsonOutput, _ = flags.GetBool("json")
		}
	})
}
