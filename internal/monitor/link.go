package monitor

import (
	"context"
	"time"
)

// Link is the capability a Monitor needs from a peripheral connection.
//
// A Link is used for a single connection attempt; the Monitor asks its
// [LinkFactory] for a fresh one on every attempt. Implementations must make
// Disconnect safe to call on a link that failed to connect or was already
// lost.
type Link interface {
	// Connect establishes the connection to address.
	Connect(ctx context.Context, address string) error

	// Subscribe enables measurement notifications. handler may be called
	// from any goroutine until Disconnect returns.
	Subscribe(ctx context.Context, handler func(payload []byte)) error

	// ReadName reads the peripheral's display name.
	ReadName(ctx context.Context) (string, error)

	// Disconnect tears the connection down.
	Disconnect() error

	// IsConnected reports whether the connection is still alive.
	IsConnected() bool
}

// LinkFactory returns a new, unconnected Link.
type LinkFactory func() Link

// Clock is the time source for backoff waits and sample timestamps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
