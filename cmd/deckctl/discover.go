package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"deckd/internal/domain"
	"deckd/internal/infra/discovery"
	"deckd/internal/infra/telemetry"
)

func newDiscoverCmd(opts *cliOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan the network for agent servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			engine := discovery.New(
				cfg.Discovery.EngineConfig(cfg.LocalPort),
				opts.logger,
				telemetry.NewMetrics(prometheus.DefaultRegisterer),
			)
			var emit func(discovery.Snapshot)
			if watch && !opts.jsonOutput {
				emit = func(snapshot discovery.Snapshot) {
					printServerTable(snapshot.Servers)
				}
			}
			servers := engine.Run(cmd.Context(), emit)
			if watch && !opts.jsonOutput {
				return nil
			}
			return printServers(servers, opts.jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "print each refined snapshot as it arrives")
	return cmd
}

func printServers(servers []domain.ServerConfig, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(servers)
	}
	printServerTable(servers)
	return nil
}
