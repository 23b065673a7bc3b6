package app

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"deckd/internal/domain"
)

// sandboxUnavailableSignatures are the recognized failure fragments
// that justify retrying with the permissive profile. Anything else is
// terminal.
var sandboxUnavailableSignatures = []string{
	"sandbox unavailable",
	"sandbox is not available",
	"landlock",
	"seatbelt",
}

func isSandboxUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range sandboxUnavailableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// RefreshSessions lists remote threads for one server (or all connected
// servers) and merges them into the registry. Local fields survive;
// metadata is replaced with a monotonic updatedAt.
func (c *Coordinator) RefreshSessions(serverID string) error {
	_, err := submit(c, func() (struct{}, error) {
		targets := make([]*clientEntry, 0, len(c.clients))
		if serverID != "" {
			entry, err := c.entryFor(serverID)
			if err != nil {
				return struct{}{}, err
			}
			targets = append(targets, entry)
		} else {
			for _, entry := range c.clients {
				targets = append(targets, entry)
			}
		}
		var firstErr error
		for _, entry := range targets {
			if err := c.refreshServerLocked(entry); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return struct{}{}, firstErr
	})
	return err
}

func (c *Coordinator) refreshServerLocked(entry *clientEntry) error {
	var result domain.ThreadListResult
	if err := c.call(entry.client, domain.MethodThreadList, nil, &result); err != nil {
		return fmt.Errorf("list threads on %s: %w", entry.config.ID, err)
	}
	serverID := entry.config.ID
	c.state.Commit(func(state *domain.AppState) {
		for _, summary := range result.Threads {
			if summary.ThreadID == "" {
				continue
			}
			key := domain.ThreadKey{ServerID: serverID, ThreadID: summary.ThreadID}
			if existing := findThread(state, key); existing != nil {
				existing.Preview = summary.Preview
				existing.Cwd = summary.Cwd
				if summary.UpdatedAt.After(existing.UpdatedAt) {
					existing.UpdatedAt = summary.UpdatedAt
				}
				continue
			}
			state.Threads = append(state.Threads, domain.ThreadState{
				Key:       key,
				Status:    domain.ThreadReady,
				Preview:   summary.Preview,
				Cwd:       summary.Cwd,
				UpdatedAt: summary.UpdatedAt,
			})
		}
	})
	return nil
}

// StartThread starts a new thread on the active server under the tiered
// sandbox policy and makes it active.
func (c *Coordinator) StartThread(cwd string, selection *domain.ModelSelection) (domain.ThreadKey, error) {
	return submit(c, func() (domain.ThreadKey, error) {
		return c.startThreadLocked(cwd, selection)
	})
}

func (c *Coordinator) startThreadLocked(cwd string, selection *domain.ModelSelection) (domain.ThreadKey, error) {
	entry, err := c.activeEntry()
	if err != nil {
		return domain.ThreadKey{}, err
	}
	params := domain.ThreadStartParams{
		Cwd:            cwd,
		SandboxProfile: domain.SandboxRestricted,
	}
	if selection == nil {
		selection = c.state.Snapshot().SelectedModel
	}
	if selection != nil {
		params.Model = selection.ModelID
		params.ReasoningEffort = selection.ReasoningEffort
	}

	var result domain.ThreadStartResult
	err = c.call(entry.client, domain.MethodThreadStart, params, &result)
	if isSandboxUnavailable(err) {
		c.logger.Info("restricted sandbox unavailable, retrying permissive", zap.String("server", entry.config.ID))
		params.SandboxProfile = domain.SandboxPermissive
		err = c.call(entry.client, domain.MethodThreadStart, params, &result)
	}
	if err != nil {
		return domain.ThreadKey{}, domain.OperationError("thread-start", err)
	}
	if result.ThreadID == "" {
		return domain.ThreadKey{}, domain.ProtocolError(domain.MethodThreadStart, "missing thread id", nil)
	}

	key := domain.ThreadKey{ServerID: entry.config.ID, ThreadID: result.ThreadID}
	c.state.Commit(func(state *domain.AppState) {
		if findThread(state, key) == nil {
			state.Threads = append(state.Threads, domain.ThreadState{
				Key:       key,
				Status:    domain.ThreadReady,
				Cwd:       cwd,
				UpdatedAt: time.Now(),
			})
		}
		state.ActiveThreadKey = &key
		state.ActiveServerID = key.ServerID
	})
	return key, nil
}

// ResumeThread resumes a server-side thread and reconstructs its
// message history. On failure the thread keeps its prior messages and
// is marked errored.
func (c *Coordinator) ResumeThread(serverID, threadID, cwd string) (domain.ThreadKey, error) {
	return submit(c, func() (domain.ThreadKey, error) {
		return c.resumeThreadLocked(serverID, threadID, cwd)
	})
}

func (c *Coordinator) resumeThreadLocked(serverID, threadID, cwd string) (domain.ThreadKey, error) {
	entry, err := c.entryFor(serverID)
	if err != nil {
		return domain.ThreadKey{}, err
	}
	key := domain.ThreadKey{ServerID: serverID, ThreadID: threadID}
	c.state.Commit(func(state *domain.AppState) {
		if existing := findThread(state, key); existing != nil {
			existing.Status = domain.ThreadConnecting
		} else {
			state.Threads = append(state.Threads, domain.ThreadState{
				Key:       key,
				Status:    domain.ThreadConnecting,
				Cwd:       cwd,
				UpdatedAt: time.Now(),
			})
		}
	})

	params := domain.ThreadResumeParams{
		ThreadID:       threadID,
		Cwd:            cwd,
		SandboxProfile: domain.SandboxRestricted,
	}
	var result domain.ThreadResumeResult
	err = c.call(entry.client, domain.MethodThreadRes, params, &result)
	if isSandboxUnavailable(err) {
		c.logger.Info("restricted sandbox unavailable, retrying permissive", zap.String("server", serverID))
		params.SandboxProfile = domain.SandboxPermissive
		err = c.call(entry.client, domain.MethodThreadRes, params, &result)
	}
	if err != nil {
		c.state.Commit(func(state *domain.AppState) {
			if thread := findThread(state, key); thread != nil {
				thread.Status = domain.ThreadError
				thread.LastError = err.Error()
			}
		})
		return domain.ThreadKey{}, domain.OperationError("thread-resume", err)
	}

	messages := domain.MessagesFromHistory(result, time.Now())
	c.state.Commit(func(state *domain.AppState) {
		thread := findThread(state, key)
		if thread == nil {
			return
		}
		thread.Status = domain.ThreadReady
		thread.LastError = ""
		thread.Messages = messages
		if cwd != "" {
			thread.Cwd = cwd
		}
		state.ActiveThreadKey = &key
		state.ActiveServerID = serverID
	})
	return key, nil
}

// SelectThread switches the active thread pointer. A thread with no
// cached messages is lazily resumed first.
func (c *Coordinator) SelectThread(key domain.ThreadKey, cwdForLazyResume string) error {
	_, err := submit(c, func() (struct{}, error) {
		snapshot := c.state.Snapshot()
		thread := findThread(&snapshot, key)
		if thread == nil {
			return struct{}{}, fmt.Errorf("%w: %s/%s", domain.ErrThreadNotFound, key.ServerID, key.ThreadID)
		}
		if len(thread.Messages) == 0 {
			cwd := cwdForLazyResume
			if cwd == "" {
				cwd = thread.Cwd
			}
			_, err := c.resumeThreadLocked(key.ServerID, key.ThreadID, cwd)
			return struct{}{}, err
		}
		c.state.Commit(func(state *domain.AppState) {
			state.ActiveThreadKey = &key
			state.ActiveServerID = key.ServerID
		})
		return struct{}{}, nil
	})
	return err
}

// Interrupt stops the active thread's in-flight turn.
func (c *Coordinator) Interrupt() error {
	_, err := submit(c, func() (struct{}, error) {
		snapshot := c.state.Snapshot()
		if snapshot.ActiveThreadKey == nil {
			return struct{}{}, domain.ErrNoActiveThread
		}
		key := *snapshot.ActiveThreadKey
		entry, err := c.entryFor(key.ServerID)
		if err != nil {
			return struct{}{}, err
		}
		thread := findThread(&snapshot, key)
		params := domain.TurnInterruptParams{ThreadID: key.ThreadID}
		if thread != nil {
			params.TurnID = thread.ActiveTurnID
		}
		if err := c.call(entry.client, domain.MethodTurnStop, params, nil); err != nil {
			return struct{}{}, domain.OperationError("turn-interrupt", err)
		}
		c.state.Commit(func(state *domain.AppState) {
			if t := findThread(state, key); t != nil {
				t.Status = domain.ThreadReady
				t.ActiveTurnID = ""
				finalizeStreaming(t)
			}
		})
		return struct{}{}, nil
	})
	return err
}
