package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.uber.org/zap"

	"deckd/internal/domain"
)

var requestIDSeq atomic.Uint64

// NotificationHandler receives server-initiated notifications. It is
// called from the client's read loop; implementations must not block.
type NotificationHandler func(method string, params json.RawMessage)

type callResult struct {
	resp *jsonrpc.Response
	err  error
}

// Client correlates requests with responses over one Conn and routes
// notifications to a handler.
type Client struct {
	conn   Conn
	notify NotificationHandler
	logger *zap.Logger

	mu        sync.Mutex
	pending   map[string]chan callResult
	closeOnce sync.Once
	cancel    context.CancelFunc
	closed    chan struct{}
}

type ClientOptions struct {
	Logger              *zap.Logger
	NotificationHandler NotificationHandler
}

func NewClient(conn Conn, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		notify:  opts.NotificationHandler,
		logger:  logger,
		pending: make(map[string]chan callResult),
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c
}

// Call issues one request and waits for its response or ctx expiry.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, domain.ErrConnectionClosed
	}
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		rawParams = encoded
	}

	seq := requestIDSeq.Add(1)
	key := fmt.Sprintf("req-%d", seq)
	id, err := jsonrpc.MakeID(key)
	if err != nil {
		return nil, fmt.Errorf("build request id: %w", err)
	}
	req := &jsonrpc.Request{ID: id, Method: method, Params: rawParams}
	wire, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	resultCh := make(chan callResult, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, domain.ErrConnectionClosed
	}
	c.pending[key] = resultCh
	c.mu.Unlock()

	if err := c.conn.Send(ctx, wire); err != nil {
		c.removePending(key)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		if result.resp.Error != nil {
			return nil, domain.ProtocolError(method, result.resp.Error.Error(), result.resp.Error)
		}
		return result.resp.Result, nil
	case <-ctx.Done():
		c.removePending(key)
		return nil, ctx.Err()
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		err = c.conn.Close()
		c.failPending(domain.ErrConnectionClosed)
	})
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		payload, err := c.conn.Recv(ctx)
		if err != nil {
			c.failPending(fmt.Errorf("recv: %w", err))
			return
		}
		msg, err := jsonrpc.DecodeMessage(payload)
		if err != nil {
			c.logger.Debug("drop undecodable message", zap.Error(err))
			continue
		}
		switch typed := msg.(type) {
		case *jsonrpc.Response:
			c.dispatchResponse(typed)
		case *jsonrpc.Request:
			if typed.ID.IsValid() {
				// Servers here never call back into the client.
				c.logger.Debug("drop unexpected server call", zap.String("method", typed.Method))
				continue
			}
			if c.notify != nil {
				c.notify(typed.Method, typed.Params)
			}
		}
	}
}

func (c *Client) dispatchResponse(resp *jsonrpc.Response) {
	key, err := responseKey(resp.ID)
	if err != nil {
		c.logger.Debug("drop response with invalid id", zap.Error(err))
		return
	}
	c.mu.Lock()
	ch := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if ch == nil {
		c.logger.Debug("drop response with no pending call", zap.String("id", key))
		return
	}
	ch <- callResult{resp: resp}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}

func (c *Client) removePending(key string) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, key)
	}
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func responseKey(id jsonrpc.ID) (string, error) {
	if !id.IsValid() {
		return "", errors.New("missing response id")
	}
	switch typed := id.Raw().(type) {
	case string:
		return typed, nil
	case float64:
		return fmt.Sprintf("req-%v", typed), nil
	case json.Number:
		return "req-" + typed.String(), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", typed)
	}
}
