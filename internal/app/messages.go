package app

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"deckd/internal/domain"
)

// imageMarkerPattern matches the legacy embedded image marker that some
// inputs still carry, e.g. "[image: /tmp/shot.png]". Kept as a
// compatibility shim; structured input should use LocalImagePath.
var imageMarkerPattern = regexp.MustCompile(`\[image:\s*([^\]]+)\]`)

// extractImageMarker strips the first embedded image marker from text
// and returns the cleaned text plus the marker path.
func extractImageMarker(text string) (string, string) {
	match := imageMarkerPattern.FindStringSubmatch(text)
	if match == nil {
		return text, ""
	}
	cleaned := strings.TrimSpace(imageMarkerPattern.ReplaceAllString(text, ""))
	return cleaned, strings.TrimSpace(match[1])
}

// SendMessageInput is the structured message-composition surface.
type SendMessageInput struct {
	Text           string
	Cwd            string
	Selection      *domain.ModelSelection
	LocalImagePath string
}

// SendMessage appends an optimistic user message, then starts a turn on
// the active thread, creating one first if none is active.
func (c *Coordinator) SendMessage(input SendMessageInput) (domain.ThreadKey, error) {
	return submit(c, func() (domain.ThreadKey, error) {
		text, embedded := extractImageMarker(input.Text)
		imagePath := input.LocalImagePath
		if imagePath == "" {
			imagePath = embedded
		}

		snapshot := c.state.Snapshot()
		var key domain.ThreadKey
		if snapshot.ActiveThreadKey != nil {
			key = *snapshot.ActiveThreadKey
		} else {
			created, err := c.startThreadLocked(input.Cwd, input.Selection)
			if err != nil {
				return domain.ThreadKey{}, err
			}
			key = created
		}

		entry, err := c.entryFor(key.ServerID)
		if err != nil {
			return domain.ThreadKey{}, err
		}

		// Optimistic append before the network call.
		optimistic := domain.ChatMessage{
			ID:        uuid.NewString(),
			Role:      domain.RoleUser,
			Text:      text,
			Timestamp: time.Now(),
		}
		c.state.Commit(func(state *domain.AppState) {
			if thread := findThread(state, key); thread != nil {
				thread.Messages = append(thread.Messages, optimistic)
				thread.Preview = previewOf(text)
				thread.UpdatedAt = optimistic.Timestamp
			}
		})

		parts := []domain.InputPart{{Type: domain.InputPartText, Text: text}}
		if imagePath != "" {
			parts = append(parts, domain.InputPart{Type: domain.InputPartLocalImage, Path: imagePath})
		}
		params := domain.TurnStartParams{
			ThreadID: key.ThreadID,
			Input:    parts,
			Cwd:      input.Cwd,
		}
		selection := input.Selection
		if selection == nil {
			selection = snapshot.SelectedModel
		}
		if selection != nil {
			params.Model = selection.ModelID
			params.ReasoningEffort = selection.ReasoningEffort
		}

		var result domain.TurnStartResult
		if err := c.call(entry.client, domain.MethodTurnStart, params, &result); err != nil {
			c.state.Commit(func(state *domain.AppState) {
				if thread := findThread(state, key); thread != nil {
					thread.Status = domain.ThreadError
					thread.LastError = err.Error()
					finalizeStreaming(thread)
				}
			})
			return domain.ThreadKey{}, domain.OperationError("turn-start", err)
		}

		c.state.Commit(func(state *domain.AppState) {
			if thread := findThread(state, key); thread != nil {
				thread.Status = domain.ThreadThinking
				thread.ActiveTurnID = result.TurnID
				thread.UpdatedAt = time.Now()
			}
		})
		return key, nil
	})
}

// appendDelta grows the trailing streaming assistant message, opening
// one when none is in progress.
func appendDelta(thread *domain.ThreadState, delta string, at time.Time) {
	if len(thread.Messages) > 0 {
		last := &thread.Messages[len(thread.Messages)-1]
		if last.Streaming && last.Role == domain.RoleAssistant {
			last.Text += delta
			thread.UpdatedAt = at
			return
		}
	}
	thread.Messages = append(thread.Messages, domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.RoleAssistant,
		Text:      delta,
		Streaming: true,
		Timestamp: at,
	})
	thread.UpdatedAt = at
}

// finalizeStreaming closes any in-progress streaming message.
// Idempotent.
func finalizeStreaming(thread *domain.ThreadState) {
	for i := range thread.Messages {
		thread.Messages[i].Streaming = false
	}
}

func previewOf(text string) string {
	const maxPreview = 80
	trimmed := strings.TrimSpace(text)
	if line, _, found := strings.Cut(trimmed, "\n"); found {
		trimmed = line
	}
	if len(trimmed) > maxPreview {
		return trimmed[:maxPreview]
	}
	return trimmed
}
