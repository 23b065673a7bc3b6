package main

import (
	"github.com/spf13/cobra"

	"deckd/internal/app"
)

func newThreadsCmd(opts *cliOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List conversation threads on a server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withCoordinator(opts, func(coordinator *app.Coordinator, _ app.Config) error {
				if err := connectTarget(coordinator, address); err != nil {
					return err
				}
				if err := coordinator.RefreshSessions(""); err != nil {
					return err
				}
				snapshot := coordinator.State().Snapshot()
				return printThreads(snapshot.Threads, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "server host:port (defaults to the local runtime)")
	return cmd
}

func newModelsCmd(opts *cliOptions) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models a server offers",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withCoordinator(opts, func(coordinator *app.Coordinator, _ app.Config) error {
				if err := connectTarget(coordinator, address); err != nil {
					return err
				}
				models, err := coordinator.LoadModels("")
				if err != nil {
					return err
				}
				snapshot := coordinator.State().Snapshot()
				return printModels(models, snapshot.SelectedModel, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "server host:port (defaults to the local runtime)")
	return cmd
}

func connectTarget(coordinator *app.Coordinator, address string) error {
	if address == "" {
		_, err := coordinator.ConnectLocalDefault()
		return err
	}
	config, err := manualServerConfig(address, "")
	if err != nil {
		return err
	}
	_, err = coordinator.Connect(config)
	return err
}
