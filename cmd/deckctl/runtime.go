package main

import (
	"github.com/spf13/cobra"

	"deckd/internal/infra/launcher"
)

func newRuntimeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Manage the local agent runtime",
	}
	cmd.AddCommand(
		newRuntimeStatusCmd(opts),
		newRuntimeStartCmd(opts),
		newRuntimeStopCmd(opts),
	)
	return cmd
}

func newRuntimeLauncher(opts *cliOptions) (*launcher.Launcher, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return launcher.New(launcher.Options{
		BinaryPath: cfg.AgentBinary,
		Port:       cfg.LocalPort,
		MinVersion: cfg.MinRuntimeVersion,
		Logger:     opts.logger,
	}), nil
}

func newRuntimeStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the local runtime port is accepting connections",
		RunE: func(_ *cobra.Command, _ []string) error {
			runtime, err := newRuntimeLauncher(opts)
			if err != nil {
				return err
			}
			return printRuntimeStatus(runtime.Status(), opts.jsonOutput)
		},
	}
}

func newRuntimeStartCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the local agent runtime and wait for readiness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runtime, err := newRuntimeLauncher(opts)
			if err != nil {
				return err
			}
			status, err := runtime.Start(cmd.Context())
			if err != nil {
				_ = printRuntimeStatus(status, opts.jsonOutput)
				return err
			}
			return printRuntimeStatus(status, opts.jsonOutput)
		},
	}
}

func newRuntimeStopCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a runtime started by this process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runtime, err := newRuntimeLauncher(opts)
			if err != nil {
				return err
			}
			if err := runtime.Stop(cmd.Context()); err != nil {
				return err
			}
			return printRuntimeStatus(runtime.Status(), opts.jsonOutput)
		},
	}
}
