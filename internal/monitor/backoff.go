package monitor

import (
	"sync"
	"time"
)

const (
	// DefaultReconnectMin is the initial reconnect delay.
	DefaultReconnectMin = 1 * time.Second

	// DefaultReconnectMax caps the reconnect delay.
	DefaultReconnectMax = 30 * time.Second

	backoffMultiplier = 2
)

// Backoff tracks the reconnect delay. The delay always lies within
// [min, max]; it doubles after each wait and resets to min on success.
type Backoff struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a Backoff starting at minDelay. Non-positive values
// fall back to the defaults and maxDelay is raised to minDelay if smaller.
func NewBackoff(minDelay, maxDelay time.Duration) *Backoff {
	if minDelay <= 0 {
		minDelay = DefaultReconnectMin
	}
	if maxDelay <= 0 {
		maxDelay = DefaultReconnectMax
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Backoff{min: minDelay, max: maxDelay, current: minDelay}
}

// Next returns the delay to wait now and advances to the next one.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	next := b.current * backoffMultiplier
	if next > b.max || next <= 0 {
		next = b.max
	}
	b.current = next
	return delay
}

// Reset returns the delay to min. Call after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.min
	b.mu.Unlock()
}

// Current returns the delay the next wait would use.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
