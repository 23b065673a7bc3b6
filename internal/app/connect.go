package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"deckd/internal/domain"
	"deckd/internal/infra/transport"
)

// ConnectLocalDefault ensures the local runtime is running and connects
// to it over loopback.
func (c *Coordinator) ConnectLocalDefault() (domain.ServerConfig, error) {
	return submit(c, func() (domain.ServerConfig, error) {
		if c.runtime == nil {
			return domain.ServerConfig{}, domain.ErrRuntimeUnavailable
		}
		status, err := c.runtime.Start(context.Background())
		if err != nil {
			c.state.Commit(func(state *domain.AppState) {
				state.ConnectionStatus = domain.ConnError
				state.ConnectionError = err.Error()
			})
			return domain.ServerConfig{}, domain.ConnectionError("connect-local", err)
		}
		config := domain.ServerConfig{
			ID:             localServerID(status.Port),
			Name:           localServerName(),
			Host:           "127.0.0.1",
			Port:           status.Port,
			Source:         domain.SourceLocal,
			HasAgentServer: true,
		}
		return c.connectLocked(config)
	})
}

// Connect opens a transport to the given server. Idempotent for an
// already-connected server id.
func (c *Coordinator) Connect(config domain.ServerConfig) (domain.ServerConfig, error) {
	return submit(c, func() (domain.ServerConfig, error) {
		return c.connectLocked(config)
	})
}

// connectLocked runs on the worker.
func (c *Coordinator) connectLocked(config domain.ServerConfig) (domain.ServerConfig, error) {
	if config.ID == "" {
		config.ID = transport.HostPort(config.Host, config.Port)
	}
	if existing, ok := c.clients[config.ID]; ok {
		return existing.config, nil
	}

	c.state.Commit(func(state *domain.AppState) {
		state.ConnectionStatus = domain.ConnConnecting
	})

	serverID := config.ID
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	client, err := c.dialer(ctx, config, func(method string, params json.RawMessage) {
		c.dispatchNotification(serverID, method, params)
	})
	if err != nil {
		c.commitConnectFailure(err)
		return domain.ServerConfig{}, domain.ConnectionError("connect", err)
	}

	var initResult domain.InitializeResult
	initParams := domain.InitializeParams{
		ClientName:      "deckd",
		ClientVersion:   Version,
		ClientID:        clientID(),
		ProtocolVersion: domain.ProtocolVersion,
	}
	if err := c.call(client, domain.MethodInitialize, initParams, &initResult); err != nil {
		_ = client.Close()
		c.commitConnectFailure(err)
		return domain.ServerConfig{}, domain.ConnectionError("handshake", err)
	}
	if config.Name == "" && initResult.ServerName != "" {
		config.Name = initResult.ServerName
	}

	c.clients[config.ID] = &clientEntry{client: client, config: config}
	c.state.Commit(func(state *domain.AppState) {
		state.ConnectionStatus = domain.ConnReady
		state.ConnectionError = ""
		state.ActiveServerID = config.ID
		replaced := false
		for i := range state.Servers {
			if state.Servers[i].ID == config.ID {
				state.Servers[i] = config
				replaced = true
				break
			}
		}
		if !replaced {
			state.Servers = append(state.Servers, config)
		}
	})

	if c.store != nil {
		if err := c.store.Put(config); err != nil {
			c.logger.Warn("persist server failed", zap.String("server", config.ID), zap.Error(err))
		}
	}
	c.logger.Info("connected", zap.String("server", config.ID), zap.String("addr", transport.HostPort(config.Host, config.Port)))
	return config, nil
}

func (c *Coordinator) commitConnectFailure(err error) {
	c.state.Commit(func(state *domain.AppState) {
		state.ConnectionStatus = domain.ConnError
		state.ConnectionError = err.Error()
	})
}

// ReconnectSaved attempts every persisted server; each attempt is
// fault-isolated from the others. Returns the successful configs.
func (c *Coordinator) ReconnectSaved() ([]domain.ServerConfig, error) {
	return submit(c, func() ([]domain.ServerConfig, error) {
		if c.store == nil {
			return nil, nil
		}
		saved, err := c.store.List()
		if err != nil {
			return nil, fmt.Errorf("list saved servers: %w", err)
		}
		var connected []domain.ServerConfig
		for _, config := range saved {
			result, err := c.connectLocked(config)
			if err != nil {
				c.metrics.ObserveReconnect("failure")
				c.logger.Warn("saved server reconnect failed", zap.String("server", config.ID), zap.Error(err))
				continue
			}
			c.metrics.ObserveReconnect("success")
			connected = append(connected, result)
		}
		return connected, nil
	})
}

// Disconnect closes one server's transport and evicts its registries.
func (c *Coordinator) Disconnect(serverID string) error {
	_, err := submit(c, func() (struct{}, error) {
		return struct{}{}, c.disconnectLocked(serverID)
	})
	return err
}

// DisconnectAll closes every transport.
func (c *Coordinator) DisconnectAll() error {
	_, err := submit(c, func() (struct{}, error) {
		for id := range c.clients {
			if err := c.disconnectLocked(id); err != nil {
				c.logger.Warn("disconnect failed", zap.String("server", id), zap.Error(err))
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (c *Coordinator) disconnectLocked(serverID string) error {
	entry, ok := c.clients[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrServerNotFound, serverID)
	}
	delete(c.clients, serverID)
	if err := entry.client.Close(); err != nil {
		c.logger.Debug("close transport failed", zap.String("server", serverID), zap.Error(err))
	}

	c.state.Commit(func(state *domain.AppState) {
		servers := state.Servers[:0]
		for _, server := range state.Servers {
			if server.ID != serverID {
				servers = append(servers, server)
			}
		}
		state.Servers = servers
		threads := state.Threads[:0]
		for _, thread := range state.Threads {
			if thread.Key.ServerID != serverID {
				threads = append(threads, thread)
			}
		}
		state.Threads = threads
		delete(state.Accounts, serverID)
		recomputeActive(state, c.connectedIDs())
		if len(c.clients) == 0 {
			state.ConnectionStatus = domain.ConnDisconnected
		}
	})
	c.logger.Info("disconnected", zap.String("server", serverID))
	return nil
}

func (c *Coordinator) connectedIDs() map[string]bool {
	ids := make(map[string]bool, len(c.clients))
	for id := range c.clients {
		ids[id] = true
	}
	return ids
}

// recomputeActive restores the active pointers by deterministic
// fallback: keep them if still valid, else the most-recently-updated
// remaining thread, else the first remaining server, else null.
func recomputeActive(state *domain.AppState, connected map[string]bool) {
	if state.ActiveThreadKey != nil {
		if t := findThread(state, *state.ActiveThreadKey); t == nil || !connected[state.ActiveThreadKey.ServerID] {
			state.ActiveThreadKey = nil
		}
	}
	if state.ActiveServerID != "" && !connected[state.ActiveServerID] {
		state.ActiveServerID = ""
	}
	if state.ActiveThreadKey == nil {
		domain.SortThreads(state.Threads)
		for i := range state.Threads {
			if connected[state.Threads[i].Key.ServerID] {
				key := state.Threads[i].Key
				state.ActiveThreadKey = &key
				break
			}
		}
	}
	if state.ActiveServerID == "" {
		if state.ActiveThreadKey != nil {
			state.ActiveServerID = state.ActiveThreadKey.ServerID
		} else {
			for _, server := range state.Servers {
				if connected[server.ID] {
					state.ActiveServerID = server.ID
					break
				}
			}
		}
	}
}

func localServerID(port int) string {
	return transport.HostPort("127.0.0.1", port)
}

func localServerName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "This device"
	}
	return hostname
}
