package app

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"deckd/internal/domain"
)

// dispatchNotification hops a server notification onto the worker.
// Called from transport read loops; must not block them.
func (c *Coordinator) dispatchNotification(serverID, method string, params json.RawMessage) {
	c.metrics.ObserveNotification(method)
	c.post(func() {
		c.applyNotification(serverID, method, params)
	})
}

func (c *Coordinator) applyNotification(serverID, method string, params json.RawMessage) {
	if _, ok := c.clients[serverID]; !ok {
		// Notification raced a disconnect; the registries no longer know
		// this server.
		c.logger.Debug("drop notification for unknown server", zap.String("server", serverID), zap.String("method", method))
		return
	}
	switch method {
	case domain.NotifyLoginCompleted:
		c.onLoginCompleted(serverID, params)
	case domain.NotifyAccountUpdated:
		c.onAccountUpdated(serverID)
	case domain.NotifyTurnStarted:
		c.onTurnStarted(serverID, params)
	case domain.NotifyAgentMessageDelta:
		c.onAgentMessageDelta(serverID, params)
	case domain.NotifyItemCompleted:
		c.onItemCompleted(serverID, params)
	case domain.NotifyTurnCompleted, domain.NotifyTurnCompletedLegacy:
		c.onTurnCompleted(serverID, params)
	default:
		c.logger.Debug("unhandled notification", zap.String("method", method))
	}
}

func (c *Coordinator) onLoginCompleted(serverID string, params json.RawMessage) {
	var event domain.LoginCompletedEvent
	if err := json.Unmarshal(params, &event); err != nil {
		c.logger.Warn("malformed login-completed payload", zap.Error(err))
		return
	}
	if !event.Success {
		c.state.Commit(func(state *domain.AppState) {
			account := state.Accounts[serverID]
			account.LastError = event.Error
			account.PendingLoginURL = ""
			account.PendingLoginID = ""
			state.Accounts[serverID] = account
		})
		return
	}
	c.state.Commit(func(state *domain.AppState) {
		account := state.Accounts[serverID]
		account.PendingLoginURL = ""
		account.PendingLoginID = ""
		account.LastError = ""
		state.Accounts[serverID] = account
	})
	if _, err := c.readAccountLocked(serverID); err != nil {
		c.logger.Warn("account re-read after login failed", zap.String("server", serverID), zap.Error(err))
	}
}

func (c *Coordinator) onAccountUpdated(serverID string) {
	if _, err := c.readAccountLocked(serverID); err != nil {
		c.logger.Warn("account re-read failed", zap.String("server", serverID), zap.Error(err))
	}
}

func (c *Coordinator) onTurnStarted(serverID string, params json.RawMessage) {
	var event domain.TurnStartedEvent
	if err := json.Unmarshal(params, &event); err != nil {
		c.logger.Warn("malformed turn-started payload", zap.Error(err))
		return
	}
	key := domain.ThreadKey{ServerID: serverID, ThreadID: event.ThreadID}
	c.state.Commit(func(state *domain.AppState) {
		if thread := findThread(state, key); thread != nil {
			thread.Status = domain.ThreadThinking
			thread.ActiveTurnID = event.TurnID
			thread.UpdatedAt = time.Now()
		}
	})
}

func (c *Coordinator) onAgentMessageDelta(serverID string, params json.RawMessage) {
	var event domain.AgentMessageDeltaEvent
	if err := json.Unmarshal(params, &event); err != nil {
		c.logger.Warn("malformed delta payload", zap.Error(err))
		return
	}
	if event.Delta == "" {
		return
	}
	key := domain.ThreadKey{ServerID: serverID, ThreadID: event.ThreadID}
	c.state.Commit(func(state *domain.AppState) {
		if thread := findThread(state, key); thread != nil {
			appendDelta(thread, event.Delta, time.Now())
		}
	})
}

func (c *Coordinator) onItemCompleted(serverID string, params json.RawMessage) {
	var event domain.ItemCompletedEvent
	if err := json.Unmarshal(params, &event); err != nil {
		c.logger.Warn("malformed item-completed payload", zap.Error(err))
		return
	}
	// User and assistant message items travel on the direct and delta
	// paths; rendering them here would duplicate them.
	if event.Item.Type == domain.ItemUserMessage || event.Item.Type == domain.ItemAgentMessage {
		return
	}
	message, ok := domain.RenderItem(event.Item, time.Now())
	if !ok {
		return
	}
	key := domain.ThreadKey{ServerID: serverID, ThreadID: event.ThreadID}
	c.state.Commit(func(state *domain.AppState) {
		if thread := findThread(state, key); thread != nil {
			thread.Messages = append(thread.Messages, message)
			thread.UpdatedAt = message.Timestamp
		}
	})
}

// onTurnCompleted finalizes the named thread, or, when the server omits
// the thread id, every thread on that server believed to hold an active
// turn. The fallback is a guess about ambiguous server behavior, so it
// is counted and logged.
func (c *Coordinator) onTurnCompleted(serverID string, params json.RawMessage) {
	var event domain.TurnCompletedEvent
	if err := json.Unmarshal(params, &event); err != nil {
		c.logger.Warn("malformed turn-completed payload", zap.Error(err))
		return
	}
	if event.ThreadID != "" {
		key := domain.ThreadKey{ServerID: serverID, ThreadID: event.ThreadID}
		c.state.Commit(func(state *domain.AppState) {
			if thread := findThread(state, key); thread != nil {
				finalizeThread(thread)
			}
		})
		return
	}
	c.metrics.ObserveOrphanTurnCompletion()
	c.logger.Warn("turn-completed without thread id, finalizing all active turns", zap.String("server", serverID))
	c.state.Commit(func(state *domain.AppState) {
		for i := range state.Threads {
			thread := &state.Threads[i]
			if thread.Key.ServerID == serverID && thread.ActiveTurnID != "" {
				finalizeThread(thread)
			}
		}
	})
}

func finalizeThread(thread *domain.ThreadState) {
	thread.Status = domain.ThreadReady
	thread.ActiveTurnID = ""
	thread.UpdatedAt = time.Now()
	finalizeStreaming(thread)
}
