package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
)

// DefaultTimeout is the shared deadline for one broadcast round.
const DefaultTimeout = 500 * time.Millisecond

// ErrSendPanic is reported for a consumer whose Send panicked.
var ErrSendPanic = errors.New("consumer send panicked")

// Consumer is a downstream observer of published events.
//
// Send delivers one serialized event. It must honour ctx: the hub cancels
// ctx when the round's shared deadline passes and evicts the consumer if
// Send has not returned by then. A Send that returns an error after the
// deadline fired is counted as timed out rather than failed.
//
// The hub keys consumers by value, so implementations must be comparable;
// in practice they are pointer types. Registering an uncomparable value
// (a struct holding a slice or map) panics.
type Consumer interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
}

// RoundResult summarizes one broadcast round.
type RoundResult struct {
	Delivered int
	Failed    int
	TimedOut  int
}

// Evicted returns the number of consumers removed by the round.
func (r RoundResult) Evicted() int {
	return r.Failed + r.TimedOut
}

// Hub holds the active consumer set and broadcasts events to it.
type Hub struct {
	consumers mapset.Set
	timeout   time.Duration
	logger    *slog.Logger

	mu         sync.RWMutex
	lastStatus *StatusEvent
	lastSample *SampleEvent
}

// New creates a [Hub]. A non-positive timeout uses [DefaultTimeout]; a nil
// logger uses slog.Default().
func New(timeout time.Duration, logger *slog.Logger) *Hub {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		consumers: mapset.NewSet(),
		timeout:   timeout,
		logger:    logger,
	}
}

// Timeout returns the shared deadline applied to each round.
func (h *Hub) Timeout() time.Duration {
	return h.timeout
}

// Register adds c to the active set. Registering twice is a no-op.
// It reports whether c was newly added.
func (h *Hub) Register(c Consumer) bool {
	return h.consumers.Add(c)
}

// Unregister removes c. Unknown consumers are ignored.
func (h *Hub) Unregister(c Consumer) {
	h.consumers.Remove(c)
}

// Contains reports whether c is currently registered.
func (h *Hub) Contains(c Consumer) bool {
	return h.consumers.Contains(c)
}

// Len returns the number of registered consumers.
func (h *Hub) Len() int {
	return h.consumers.Cardinality()
}

// LastStatus returns the most recently published status.
func (h *Hub) LastStatus() (StatusEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastStatus == nil {
		return StatusEvent{}, false
	}
	return *h.lastStatus, true
}

// LastSample returns the most recently published sample.
func (h *Hub) LastSample() (SampleEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastSample == nil {
		return SampleEvent{}, false
	}
	s := *h.lastSample
	s.RR = append([]float64(nil), s.RR...)
	return s, true
}

// PublishSample publishes a [SampleEvent]. Its signature matches the
// monitor's sample callback.
func (h *Hub) PublishSample(bpm uint16, rrMS []float64, timestampMS int64) {
	h.Publish(context.Background(), SampleEvent{BPM: bpm, TimestampMS: timestampMS, RR: rrMS})
}

// PublishStatus publishes a [StatusEvent]. Its signature matches the
// monitor's status callback.
func (h *Hub) PublishStatus(status, device string) {
	h.Publish(context.Background(), StatusEvent{Status: status, Device: device})
}

// Publish broadcasts ev to every consumer registered when the round starts.
//
// All sends run concurrently under one deadline of [Hub.Timeout]. Consumers
// that fail or miss the deadline are unregistered after the round. Publish
// returns once every send has finished or the deadline has passed.
func (h *Hub) Publish(ctx context.Context, ev Event) RoundResult {
	h.remember(ev)

	// snapshot so concurrent register/unregister cannot disturb the round
	snapshot := h.consumers.ToSlice()
	if len(snapshot) == 0 {
		return RoundResult{}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "error", err)
		return RoundResult{}
	}

	roundCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type outcome struct {
		idx      int
		err      error
		timedOut bool
	}

	consumers := make([]Consumer, 0, len(snapshot))
	for _, item := range snapshot {
		if c, ok := item.(Consumer); ok {
			consumers = append(consumers, c)
		}
	}

	// buffered so late senders never block after the round has moved on
	outcomes := make(chan outcome, len(consumers))
	for i, c := range consumers {
		go func(i int, c Consumer) {
			err := h.safeSend(roundCtx, c, data)
			// a send that gave up because the deadline fired missed the round
			late := err != nil && errors.Is(roundCtx.Err(), context.DeadlineExceeded)
			outcomes <- outcome{idx: i, err: err, timedOut: late}
		}(i, c)
	}

	finished := make([]bool, len(consumers))
	timedOut := make([]bool, len(consumers))
	var result RoundResult
	var evict []Consumer

	record := func(o outcome) {
		finished[o.idx] = true
		if o.timedOut {
			timedOut[o.idx] = true
			return
		}
		if o.err != nil {
			result.Failed++
			evict = append(evict, consumers[o.idx])
			h.logger.Debug("removed failed consumer", "consumer", consumers[o.idx].ID(), "error", o.err)
			return
		}
		result.Delivered++
	}

	remaining := len(consumers)
collect:
	for remaining > 0 {
		select {
		case o := <-outcomes:
			record(o)
			remaining--
		case <-roundCtx.Done():
			break collect
		}
	}

	// pick up outcomes that raced with the deadline
drain:
	for remaining > 0 {
		select {
		case o := <-outcomes:
			record(o)
			remaining--
		default:
			break drain
		}
	}

	for i, c := range consumers {
		if !finished[i] || timedOut[i] {
			result.TimedOut++
			evict = append(evict, c)
			h.logger.Debug("removed slow consumer", "consumer", c.ID())
		}
	}
	if result.TimedOut > 0 {
		h.logger.Warn("broadcast timeout, slow consumer(s) evicted",
			"timed_out", result.TimedOut,
			"timeout", h.timeout.String(),
		)
	}

	for _, c := range evict {
		h.consumers.Remove(c)
	}
	return result
}

// remember records the latest status or sample for late joiners.
func (h *Hub) remember(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch e := ev.(type) {
	case StatusEvent:
		h.lastStatus = &e
	case SampleEvent:
		e.RR = append([]float64(nil), e.RR...)
		h.lastSample = &e
	}
}

// safeSend calls c.Send with panic recovery. A panic counts as a failed send.
func (h *Hub) safeSend(ctx context.Context, c Consumer, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("consumer send panicked", "consumer", c.ID(), "panic", fmt.Sprintf("%v", r))
			err = ErrSendPanic
		}
	}()
	return c.Send(ctx, data)
}
