package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"deckd/internal/domain"
	"deckd/internal/infra/launcher"
	"deckd/internal/infra/telemetry"
	"deckd/internal/infra/transport"
)

// RPCClient is the per-server request channel the coordinator talks
// through.
type RPCClient interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Close() error
}

// Dialer opens a transport to one server and wires its notifications.
type Dialer func(ctx context.Context, config domain.ServerConfig, notify transport.NotificationHandler) (RPCClient, error)

// Runtime is the local agent launcher capability.
type Runtime interface {
	Start(ctx context.Context) (launcher.Status, error)
	Stop(ctx context.Context) error
	Status() launcher.Status
	Port() int
}

// ServerStore is the durable saved-server list.
type ServerStore interface {
	List() ([]domain.ServerConfig, error)
	Put(config domain.ServerConfig) error
	Delete(id string) error
	Close() error
}

type clientEntry struct {
	client RPCClient
	config domain.ServerConfig
}

// Coordinator serializes every mutating operation through one worker
// goroutine. That single owner is the only correctness mechanism for
// the registries; there is no per-field locking.
type Coordinator struct {
	store   ServerStore
	runtime Runtime
	dialer  Dialer
	state   *StateStore
	metrics *telemetry.Metrics
	logger  *zap.Logger

	requestTimeout time.Duration

	// Owned by the worker goroutine.
	clients map[string]*clientEntry

	jobs      chan func()
	closeOnce sync.Once
	closed    chan struct{}
	drained   chan struct{}
}

type CoordinatorOptions struct {
	Store          ServerStore
	Runtime        Runtime
	Dialer         Dialer
	Metrics        *telemetry.Metrics
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = defaultDialer(logger)
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = domain.DefaultRequestTimeoutSeconds * time.Second
	}
	c := &Coordinator{
		store:          opts.Store,
		runtime:        opts.Runtime,
		dialer:         dialer,
		state:          NewStateStore(),
		metrics:        opts.Metrics,
		logger:         logger.Named("coordinator"),
		requestTimeout: requestTimeout,
		clients:        make(map[string]*clientEntry),
		jobs:           make(chan func(), 64),
		closed:         make(chan struct{}),
		drained:        make(chan struct{}),
	}
	go c.run()
	return c
}

func defaultDialer(logger *zap.Logger) Dialer {
	return func(ctx context.Context, config domain.ServerConfig, notify transport.NotificationHandler) (RPCClient, error) {
		conn, err := transport.Dial(ctx, config.Host, config.Port)
		if err != nil {
			return nil, err
		}
		return transport.NewClient(conn, transport.ClientOptions{
			Logger:              logger,
			NotificationHandler: notify,
		}), nil
	}
}

// State exposes the snapshot store for observers.
func (c *Coordinator) State() *StateStore {
	return c.state
}

func (c *Coordinator) run() {
	defer close(c.drained)
	for {
		select {
		case job := <-c.jobs:
			job()
		case <-c.closed:
			// Drain whatever was queued before the close.
			for {
				select {
				case job := <-c.jobs:
					job()
				default:
					c.teardown()
					return
				}
			}
		}
	}
}

func (c *Coordinator) teardown() {
	for id, entry := range c.clients {
		if err := entry.client.Close(); err != nil {
			c.logger.Debug("close transport failed", zap.String("server", id), zap.Error(err))
		}
	}
	c.clients = make(map[string]*clientEntry)
	if c.runtime != nil {
		if err := c.runtime.Stop(context.Background()); err != nil {
			c.logger.Debug("stop runtime failed", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Debug("close store failed", zap.Error(err))
		}
	}
	c.state.Close()
}

// Close stops the worker and tears down transports, the local runtime,
// and the store. Further submissions are rejected.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	<-c.drained
}

// submit runs fn on the worker and waits for its result.
func submit[T any](c *Coordinator, fn func() (T, error)) (T, error) {
	var zero T
	type reply struct {
		value T
		err   error
	}
	replyCh := make(chan reply, 1)
	job := func() {
		value, err := fn()
		replyCh <- reply{value: value, err: err}
	}
	select {
	case <-c.closed:
		return zero, domain.ErrCoordinatorClosed
	case c.jobs <- job:
	}
	select {
	case r := <-replyCh:
		return r.value, r.err
	case <-c.drained:
		// The drain may have run the job right before shutdown; prefer
		// its reply over the closed error.
		select {
		case r := <-replyCh:
			return r.value, r.err
		default:
			return zero, domain.ErrCoordinatorClosed
		}
	}
}

// post enqueues fn without waiting; used by notification delivery. Jobs
// posted after close are dropped.
func (c *Coordinator) post(fn func()) {
	select {
	case <-c.closed:
	case c.jobs <- fn:
	}
}

// call issues one RPC with the coordinator's request timeout.
func (c *Coordinator) call(client RPCClient, method string, params any, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	started := time.Now()
	raw, err := client.Call(ctx, method, params)
	if err != nil {
		c.metrics.ObserveRPC(method, "error", time.Since(started).Seconds())
		return err
	}
	c.metrics.ObserveRPC(method, "ok", time.Since(started).Seconds())
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return domain.ProtocolError(method, "malformed response", err)
	}
	return nil
}

// entryFor returns the connected client for a server id.
func (c *Coordinator) entryFor(serverID string) (*clientEntry, error) {
	entry, ok := c.clients[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrServerNotFound, serverID)
	}
	return entry, nil
}

// activeEntry resolves the active server's client.
func (c *Coordinator) activeEntry() (*clientEntry, error) {
	snapshot := c.state.Snapshot()
	if snapshot.ActiveServerID == "" {
		return nil, domain.ErrServerNotFound
	}
	return c.entryFor(snapshot.ActiveServerID)
}

func findThread(state *domain.AppState, key domain.ThreadKey) *domain.ThreadState {
	for i := range state.Threads {
		if state.Threads[i].Key == key {
			return &state.Threads[i]
		}
	}
	return nil
}
