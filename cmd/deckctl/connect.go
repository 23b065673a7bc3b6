package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"deckd/internal/app"
	"deckd/internal/domain"
)

func newConnectCmd(opts *cliOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "connect [host:port]",
		Short: "Connect to an agent server (local runtime when no address is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCoordinator(opts, func(coordinator *app.Coordinator, _ app.Config) error {
				var server domain.ServerConfig
				var err error
				if len(args) == 0 {
					server, err = coordinator.ConnectLocalDefault()
				} else {
					var config domain.ServerConfig
					config, err = manualServerConfig(args[0], name)
					if err != nil {
						return err
					}
					server, err = coordinator.Connect(config)
				}
				if err != nil {
					return exitWith(1, fmt.Sprintf("connect failed: %v", err))
				}
				if opts.jsonOutput {
					return writeJSON(server)
				}
				fmt.Printf("connected %s (%s:%d)\n", server.Name, server.Host, server.Port)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the saved entry")
	return cmd
}

func manualServerConfig(address, name string) (domain.ServerConfig, error) {
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return domain.ServerConfig{}, fmt.Errorf("parse address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return domain.ServerConfig{}, fmt.Errorf("invalid port in %q", address)
	}
	if name == "" {
		name = host
	}
	return domain.ServerConfig{
		Name:           name,
		Host:           host,
		Port:           port,
		Source:         domain.SourceManual,
		HasAgentServer: true,
	}, nil
}

func newServersCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List saved servers and reconnect outcomes",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withCoordinator(opts, func(coordinator *app.Coordinator, _ app.Config) error {
				connected, err := coordinator.ReconnectSaved()
				if err != nil {
					return err
				}
				snapshot := coordinator.State().Snapshot()
				if opts.jsonOutput {
					return writeJSON(map[string]any{
						"saved":     snapshot.Servers,
						"connected": connected,
					})
				}
				printServerTable(snapshot.Servers)
				fmt.Printf("connected=%d\n", len(connected))
				return nil
			})
		},
	}
}
