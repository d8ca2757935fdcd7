package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// wsConsumer adapts one WebSocket connection to hub.Consumer.
type wsConsumer struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSConsumer(conn *websocket.Conn) *wsConsumer {
	return &wsConsumer{id: uuid.NewString(), conn: conn}
}

func (c *wsConsumer) ID() string { return c.id }

// Send writes msg as one text frame. The write deadline is taken from ctx.
// A failed write closes the connection, which ends the handler's read loop.
func (c *wsConsumer) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, msg)
}

// primeWith writes the frame returned by current while holding the send
// lock, so a round that starts meanwhile is written after it.
func (c *wsConsumer) primeWith(ctx context.Context, current func() ([]byte, bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := current()
	if !ok {
		return nil
	}
	return c.send(ctx, msg)
}

func (c *wsConsumer) send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.close()
		return err
	}
	if err := websocket.Message.Send(c.conn, string(msg)); err != nil {
		c.close()
		return err
	}
	return nil
}

func (c *wsConsumer) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// serveWS runs for the lifetime of one WebSocket connection.
func (s *Server) serveWS(conn *websocket.Conn) {
	c := newWSConsumer(conn)
	remote := conn.Request().RemoteAddr
	ctx := conn.Request().Context()

	s.hub.Register(c)
	s.logConnected("websocket", c.id, remote)

	// hijacked connections are not closed by http.Server.Shutdown
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		s.hub.Unregister(c)
		c.close()
		s.logDisconnected("websocket", c.id, remote)
	}()

	if err := s.prime(ctx, c); err != nil {
		s.logger.Debug("failed to prime consumer", "consumer", c.id, "error", err)
		return
	}

	// clients are not expected to send anything; read until the peer goes away
	var discard string
	for {
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			return
		}
	}
}
