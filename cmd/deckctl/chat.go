package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"deckd/internal/app"
	"deckd/internal/domain"
)

func newChatCmd(opts *cliOptions) *cobra.Command {
	var (
		address string
		cwd     string
		image   string
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "chat <text...>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCoordinator(opts, func(coordinator *app.Coordinator, _ app.Config) error {
				if err := connectTarget(coordinator, address); err != nil {
					return err
				}
				done := make(chan struct{}, 1)
				unsubscribe := coordinator.State().Subscribe(func(state domain.AppState) {
					if state.ActiveThreadKey == nil {
						return
					}
					for _, thread := range state.Threads {
						if thread.Key == *state.ActiveThreadKey && thread.ActiveTurnID == "" && thread.Status != domain.ThreadConnecting {
							select {
							case done <- struct{}{}:
							default:
							}
						}
					}
				})
				defer unsubscribe()

				key, err := coordinator.SendMessage(app.SendMessageInput{
					Text:           strings.Join(args, " "),
					Cwd:            cwd,
					LocalImagePath: image,
				})
				if err != nil {
					return exitWith(1, fmt.Sprintf("send failed: %v", err))
				}

				deadline := time.After(wait)
				for {
					select {
					case <-done:
						if turnFinished(coordinator.State().Snapshot(), key) {
							return printReply(coordinator.State().Snapshot(), key, opts.jsonOutput)
						}
					case <-deadline:
						return exitWith(2, "timed out waiting for the reply")
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "server host:port (defaults to the local runtime)")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for a newly created thread")
	cmd.Flags().StringVar(&image, "image", "", "attach a local image file")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the turn to finish")
	return cmd
}

func turnFinished(state domain.AppState, key domain.ThreadKey) bool {
	for _, thread := range state.Threads {
		if thread.Key == key {
			return thread.ActiveTurnID == "" && thread.Status != domain.ThreadThinking
		}
	}
	return false
}

func printReply(state domain.AppState, key domain.ThreadKey, jsonOutput bool) error {
	for _, thread := range state.Threads {
		if thread.Key != key {
			continue
		}
		if jsonOutput {
			return writeJSON(thread)
		}
		if thread.LastError != "" {
			return exitWith(1, fmt.Sprintf("turn failed: %s", thread.LastError))
		}
		for i := len(thread.Messages) - 1; i >= 0; i-- {
			if thread.Messages[i].Role == domain.RoleAssistant {
				fmt.Println(thread.Messages[i].Text)
				return nil
			}
		}
		return nil
	}
	return domain.ErrThreadNotFound
}
