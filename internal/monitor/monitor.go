package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/pulsecast/internal/hrm"
)

// Status labels reported through [Config.OnStatus].
const (
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

const (
	// DefaultPollInterval is how often a connected link is checked for loss.
	DefaultPollInterval = 500 * time.Millisecond

	// notificationBuffer bounds payloads queued between the link and the loop.
	notificationBuffer = 64
)

// Phase is the monitor's lifecycle state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseBackingOff
	PhaseStopped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseBackingOff:
		return "backing_off"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SampleFunc receives one decoded measurement. rrMS may be empty.
type SampleFunc func(bpm uint16, rrMS []float64, timestampMS int64)

// StatusFunc receives a status label and, for "connected", the device name.
type StatusFunc func(status, device string)

// Config holds the settings for a [Monitor].
type Config struct {
	// Address identifies the peripheral. Required.
	Address string

	// ReconnectMin is the first reconnect delay. Defaults to 1s.
	ReconnectMin time.Duration

	// ReconnectMax caps the reconnect delay. Defaults to 30s.
	ReconnectMax time.Duration

	// PollInterval is how often a connected link is checked. Defaults to 500ms.
	PollInterval time.Duration

	// OnSample is called from the control loop for each decoded packet.
	OnSample SampleFunc

	// OnStatus is called from the control loop on each status change.
	OnStatus StatusFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the system clock.
	Clock Clock
}

// Monitor keeps one peripheral connected and forwards its measurements.
//
// All lifecycle methods are safe for concurrent use. Callbacks run on the
// monitor's own goroutine and must not call [Monitor.Stop].
type Monitor struct {
	address      string
	factory      LinkFactory
	backoff      *Backoff
	pollInterval time.Duration
	onSample     SampleFunc
	onStatus     StatusFunc
	logger       *slog.Logger
	clock        Clock

	mu      sync.Mutex
	phase   Phase
	link    Link
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a [Monitor] in the Idle phase.
func New(factory LinkFactory, cfg Config) (*Monitor, error) {
	if factory == nil {
		return nil, errors.New("link factory is required")
	}
	if cfg.Address == "" {
		return nil, errors.New("peripheral address is required")
	}
	if cfg.ReconnectMin < 0 || cfg.ReconnectMax < 0 {
		return nil, errors.New("reconnect delays cannot be negative")
	}
	if cfg.ReconnectMin > 0 && cfg.ReconnectMax > 0 && cfg.ReconnectMax < cfg.ReconnectMin {
		return nil, errors.New("reconnect max must not be less than reconnect min")
	}

	m := &Monitor{
		address:      cfg.Address,
		factory:      factory,
		backoff:      NewBackoff(cfg.ReconnectMin, cfg.ReconnectMax),
		pollInterval: cfg.PollInterval,
		onSample:     cfg.OnSample,
		onStatus:     cfg.OnStatus,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		done:         make(chan struct{}),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = DefaultPollInterval
	}
	if m.onSample == nil {
		m.onSample = func(uint16, []float64, int64) {}
	}
	if m.onStatus == nil {
		m.onStatus = func(string, string) {}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	return m, nil
}

// Address returns the peripheral address.
func (m *Monitor) Address() string {
	return m.address
}

// Phase returns the current lifecycle phase.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// ReconnectDelay returns the delay the next backoff would wait.
func (m *Monitor) ReconnectDelay() time.Duration {
	return m.backoff.Current()
}

// Done is closed once the control loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Start launches the control loop and returns immediately.
//
// The loop runs until ctx is cancelled or [Monitor.Stop] is called. Start is
// idempotent, and a no-op after Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.phase == PhaseStopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.closeDone()
		defer m.finish()
		m.run(loopCtx)
	}()
}

// Stop ends the control loop, tears down any active link, and waits for the
// loop to exit. Stop is idempotent and safe to call before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	wasStarted := m.started
	m.phase = PhaseStopped
	if m.cancel != nil {
		m.cancel()
	}
	link := m.link
	m.link = nil
	m.mu.Unlock()

	if link != nil {
		m.logger.Debug("stopping monitor, disconnecting link", "address", m.address)
		m.disconnect(link)
	}

	m.wg.Wait()
	if !wasStarted {
		m.closeDone()
	}
}

func (m *Monitor) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

// finish runs when the loop exits for any reason.
func (m *Monitor) finish() {
	m.mu.Lock()
	m.phase = PhaseStopped
	link := m.link
	m.link = nil
	m.mu.Unlock()

	if link != nil {
		m.disconnect(link)
	}
}

// setPhase moves to p unless the monitor has been stopped.
func (m *Monitor) setPhase(p Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseStopped {
		return false
	}
	m.phase = p
	return true
}

// run is the control loop.
func (m *Monitor) run(ctx context.Context) {
	for ctx.Err() == nil {
		if !m.setPhase(PhaseConnecting) {
			return
		}
		m.onStatus(StatusConnecting, "")

		link := m.factory()
		if !m.attach(link) {
			m.disconnect(link)
			return
		}

		m.logger.Debug("connecting", "address", m.address)
		if err := link.Connect(ctx, m.address); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("connection failed", "address", m.address, "error", err)
			m.release(link)
			if !m.backOff(ctx, false) {
				return
			}
			continue
		}

		m.backoff.Reset()
		name := m.readName(ctx, link)
		m.logger.Info("connected", "device", name, "address", m.address)
		m.onStatus(StatusConnected, name)

		m.stream(ctx, link)
		m.release(link)
		if ctx.Err() != nil {
			return
		}

		m.logger.Info("disconnected from device", "device", name)
		m.onStatus(StatusDisconnected, "")
		if !m.backOff(ctx, true) {
			return
		}
	}
}

// attach records link as the active link so Stop can tear it down.
func (m *Monitor) attach(link Link) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseStopped {
		return false
	}
	m.link = link
	return true
}

// release detaches and disconnects link if it is still the active one.
func (m *Monitor) release(link Link) {
	m.mu.Lock()
	owned := m.link == link
	if owned {
		m.link = nil
	}
	m.mu.Unlock()

	if owned {
		m.disconnect(link)
	}
}

// disconnect tears link down, ignoring errors from an already broken link.
func (m *Monitor) disconnect(link Link) {
	if err := link.Disconnect(); err != nil {
		m.logger.Debug("disconnect error ignored", "address", m.address, "error", err)
	}
}

// readName reads the device name, falling back to the address.
func (m *Monitor) readName(ctx context.Context, link Link) string {
	name, err := link.ReadName(ctx)
	if err != nil || name == "" {
		if err != nil {
			m.logger.Debug("device name unavailable", "address", m.address, "error", err)
		}
		return m.address
	}
	return name
}

// backOff waits for the current reconnect delay and advances it. It returns
// false if the wait was interrupted by cancellation or Stop.
func (m *Monitor) backOff(ctx context.Context, disconnectedSent bool) bool {
	if !m.setPhase(PhaseBackingOff) {
		return false
	}
	if !disconnectedSent {
		m.onStatus(StatusDisconnected, "")
	}

	delay := m.backoff.Next()
	m.logger.Info("reconnecting", "delay", delay.String(), "address", m.address)

	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(delay):
		return true
	}
}

// stream subscribes to notifications and forwards them until the link is
// lost or ctx is cancelled.
func (m *Monitor) stream(ctx context.Context, link Link) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notes := make(chan notification, notificationBuffer)
	handler := func(payload []byte) {
		n := notification{
			payload: append([]byte(nil), payload...),
			at:      m.clock.Now(),
		}
		select {
		case notes <- n:
		case <-connCtx.Done():
		}
	}

	if err := link.Subscribe(connCtx, handler); err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("subscribe failed", "address", m.address, "error", err)
		}
		return
	}
	if !m.setPhase(PhaseConnected) {
		return
	}
	m.logger.Debug("subscribed to heart rate notifications", "address", m.address)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notes:
			m.handleNotification(n)
		case <-ticker.C:
			if !link.IsConnected() {
				m.drain(notes)
				return
			}
		}
	}
}

// drain forwards notifications that arrived before the link was found lost.
func (m *Monitor) drain(notes <-chan notification) {
	for {
		select {
		case n := <-notes:
			m.handleNotification(n)
		default:
			return
		}
	}
}

// notification is one raw payload stamped with its arrival time.
type notification struct {
	payload []byte
	at      time.Time
}

// handleNotification decodes one payload and forwards it. Malformed packets
// are logged and dropped without affecting the connection.
func (m *Monitor) handleNotification(n notification) {
	meas, err := hrm.Decode(n.payload)
	if err != nil {
		m.logger.Warn("malformed heart rate packet", "error", err, "bytes", len(n.payload))
		return
	}

	ts := n.at.UnixMilli()
	m.logger.Debug("heart rate", "bpm", meas.BPM, "rr_ms", meas.RRIntervals)
	m.onSample(meas.BPM, meas.RRIntervals, ts)
}
