package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the raw bidirectional channel to one server. Implementations
// must allow concurrent Send and Recv from different goroutines.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	incoming  chan []byte
	readErr   error
	readErrMu sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens the persistent socket to host:port.
func Dial(ctx context.Context, host string, port int) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, URL(host, port), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", HostPort(host, port), err)
	}
	c := &wsConn{
		conn:     conn,
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

func (c *wsConn) readPump() {
	defer close(c.incoming)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.readErrMu.Lock()
			c.readErr = err
			c.readErrMu.Unlock()
			return
		}
		select {
		case c.incoming <- payload:
		case <-c.closed:
			return
		}
	}
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return fmt.Errorf("send on closed connection")
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *wsConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-c.incoming:
		if !ok {
			c.readErrMu.Lock()
			err := c.readErr
			c.readErrMu.Unlock()
			if err == nil {
				err = fmt.Errorf("connection closed")
			}
			return nil, err
		}
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("connection closed")
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
