package main

import (
	"encoding/json"
	"fmt"

	"deckd/internal/domain"
	"deckd/internal/infra/launcher"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printServerTable(servers []domain.ServerConfig) {
	fmt.Printf("servers=%d\n", len(servers))
	for _, server := range servers {
		agent := ""
		if server.HasAgentServer {
			agent = "\tagent"
		}
		fmt.Printf("%s\t%s\t%s:%d\t%s%s\n", server.ID, server.Name, server.Host, server.Port, server.Source, agent)
	}
}

func printThreads(threads []domain.ThreadState, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(threads)
	}
	fmt.Printf("threads=%d\n", len(threads))
	for _, thread := range threads {
		fmt.Printf("%s\t%s\t%s\t%s\n", thread.Key.ThreadID, thread.Status, thread.UpdatedAt.Format("2006-01-02 15:04"), thread.Preview)
	}
	return nil
}

func printModels(models []domain.ModelInfo, selection *domain.ModelSelection, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{"models": models, "selection": selection})
	}
	fmt.Printf("models=%d\n", len(models))
	for _, model := range models {
		marker := " "
		if selection != nil && selection.ModelID == model.ID {
			marker = "*"
		}
		fmt.Printf("%s %s\t%s\n", marker, model.ID, model.DisplayName)
	}
	return nil
}

func printRuntimeStatus(status launcher.Status, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{
			"running":   status.Running,
			"ready":     status.Ready,
			"port":      status.Port,
			"pid":       status.PID,
			"lastError": status.LastError,
		})
	}
	state := "stopped"
	if status.Ready {
		state = "ready"
	} else if status.Running {
		state = "starting"
	}
	fmt.Printf("%s port=%d", state, status.Port)
	if status.PID != 0 {
		fmt.Printf(" pid=%d", status.PID)
	}
	fmt.Println()
	if status.LastError != "" {
		fmt.Printf("error=%s\n", status.LastError)
	}
	return nil
}
