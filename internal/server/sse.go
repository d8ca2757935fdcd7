package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write.
	// Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	// sseQueueSize bounds events waiting for the SSE writer goroutine.
	sseQueueSize = 16
)

var errConsumerGone = errors.New("consumer gone")

// sseConsumer adapts one SSE stream to hub.Consumer. Send enqueues; the
// handler goroutine performs the actual writes.
type sseConsumer struct {
	id    string
	queue chan []byte

	mu       sync.Mutex
	gone     chan struct{}
	goneOnce sync.Once
}

func newSSEConsumer() *sseConsumer {
	return &sseConsumer{
		id:    uuid.NewString(),
		queue: make(chan []byte, sseQueueSize),
		gone:  make(chan struct{}),
	}
}

func (c *sseConsumer) ID() string { return c.id }

// Send enqueues msg, waiting for queue space until ctx expires. A consumer
// that cannot keep up is marked gone so its handler exits.
func (c *sseConsumer) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(ctx, msg)
}

// primeWith enqueues the frame returned by current while holding the send
// lock, so a round that starts meanwhile is queued behind it.
func (c *sseConsumer) primeWith(ctx context.Context, current func() ([]byte, bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := current()
	if !ok {
		return nil
	}
	return c.enqueue(ctx, msg)
}

func (c *sseConsumer) enqueue(ctx context.Context, msg []byte) error {
	select {
	case <-c.gone:
		return errConsumerGone
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	case <-c.gone:
		return errConsumerGone
	case <-ctx.Done():
		c.markGone()
		return ctx.Err()
	}
}

func (c *sseConsumer) markGone() {
	c.goneOnce.Do(func() { close(c.gone) })
}

// handleSSE streams events via Server-Sent Events.
//
// Writes use deadlines so a stalled client cannot pin the handler; the
// handler exits on client disconnect, server shutdown, or eviction.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	c := newSSEConsumer()
	ctx := r.Context()

	s.hub.Register(c)
	s.logConnected("sse", c.id, r.RemoteAddr)

	defer func() {
		c.markGone()
		s.hub.Unregister(c)
		s.logDisconnected("sse", c.id, r.RemoteAddr)
	}()

	if err := s.prime(ctx, c); err != nil {
		return
	}

	for {
		select {
		case data := <-c.queue:
			if err := writeAndFlush(data); err != nil {
				return
			}
		case <-c.gone:
			return
		case <-ctx.Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
