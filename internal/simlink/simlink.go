// Package simlink provides a simulated heart rate peripheral.
//
// A [Simulator] hands out links that behave like a chest strap: they
// connect, report a device name and stream encoded Heart Rate Measurement
// notifications with a drifting BPM. Connection failures and link drops can
// be scripted, which makes the simulator useful for demos and for exercising
// the reconnect path without hardware.
package simlink

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/pulsecast/internal/blelink"
	"github.com/jpalmerr/pulsecast/internal/hrm"
	"github.com/jpalmerr/pulsecast/internal/monitor"
)

const (
	// DefaultAddress is the address the simulated device advertises.
	DefaultAddress = "5e:ed:00:00:00:01"

	// DefaultName is the GAP name of the simulated device.
	DefaultName = "PulseCast Simulator"

	// DefaultInterval is the notification period.
	DefaultInterval = time.Second

	// DefaultBPM is the resting heart rate the walk starts from.
	DefaultBPM = 72

	minBPM = 45
	maxBPM = 190
)

var (
	// ErrConnectFailed is returned by scripted connection failures.
	ErrConnectFailed = errors.New("simulated connect failure")

	// ErrNotConnected is returned when a link is used before Connect.
	ErrNotConnected = errors.New("not connected")
)

// Config scripts the simulated device.
type Config struct {
	Address  string
	Name     string
	Interval time.Duration
	BPM      uint16

	// FailConnects makes the first N Connect calls across all links fail.
	FailConnects int

	// DropAfter drops each connection after N notifications. Zero never drops.
	DropAfter int

	// Seed seeds the BPM walk. Zero uses the current time.
	Seed int64
}

// Simulator is a scriptable fake peripheral shared by the links it creates.
type Simulator struct {
	cfg Config

	mu       sync.Mutex
	attempts int
	bpm      float64
	rng      *rand.Rand
}

// New creates a [Simulator], applying defaults for zero fields.
func New(cfg Config) *Simulator {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BPM == 0 {
		cfg.BPM = DefaultBPM
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg: cfg,
		bpm: float64(cfg.BPM),
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Address returns the simulated device address.
func (s *Simulator) Address() string {
	return s.cfg.Address
}

// Attempts returns the number of Connect calls seen so far.
func (s *Simulator) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Factory returns a monitor.LinkFactory producing links to this simulator.
func (s *Simulator) Factory() monitor.LinkFactory {
	return func() monitor.Link {
		return &Link{sim: s}
	}
}

// Scan reports the simulated device once the scan window elapses, honouring
// the name filter the same way the radio scanner does.
func (s *Simulator) Scan(ctx context.Context, timeout time.Duration, nameFilter string) ([]blelink.Device, error) {
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if nameFilter != "" && !strings.Contains(strings.ToLower(s.cfg.Name), strings.ToLower(nameFilter)) {
		return nil, nil
	}
	return []blelink.Device{{Address: s.cfg.Address, Name: s.cfg.Name}}, nil
}

func (s *Simulator) connect(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.cfg.FailConnects {
		return ErrConnectFailed
	}
	if !strings.EqualFold(address, s.cfg.Address) {
		return fmt.Errorf("device %s not found", address)
	}
	return nil
}

// next advances the BPM walk and returns the matching measurement.
func (s *Simulator) next() hrm.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	// drift towards the configured rate with some noise
	s.bpm += (float64(s.cfg.BPM)-s.bpm)*0.1 + s.rng.NormFloat64()*1.5
	if s.bpm < minBPM {
		s.bpm = minBPM
	}
	if s.bpm > maxBPM {
		s.bpm = maxBPM
	}

	bpm := uint16(s.bpm + 0.5)
	rr := 60000.0 / s.bpm
	beats := 1
	if s.rng.Intn(4) == 0 {
		beats = 2
	}
	intervals := make([]float64, beats)
	for i := range intervals {
		intervals[i] = hrm.RRToMillis(hrm.MillisToRR(rr + s.rng.NormFloat64()*15))
	}
	return hrm.Measurement{
		BPM:           bpm,
		SensorContact: hrm.ContactDetected,
		RRIntervals:   intervals,
	}
}

// Link is one simulated connection. It satisfies monitor.Link.
type Link struct {
	sim *Simulator

	mu        sync.Mutex
	connected bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Connect connects unless a scripted failure is pending.
func (l *Link) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.sim.connect(address); err != nil {
		return err
	}
	l.mu.Lock()
	l.connected = true
	l.stop = make(chan struct{})
	l.mu.Unlock()
	return nil
}

// Subscribe starts streaming encoded notifications to handler.
func (l *Link) Subscribe(ctx context.Context, handler func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return ErrNotConnected
	}

	stop := l.stop
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.sim.cfg.Interval)
		defer ticker.Stop()

		sent := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				handler(hrm.Encode(l.sim.next(), false))
				sent++
				if l.sim.cfg.DropAfter > 0 && sent >= l.sim.cfg.DropAfter {
					l.drop()
					return
				}
			}
		}
	}()
	return nil
}

// ReadName returns the configured device name.
func (l *Link) ReadName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !l.IsConnected() {
		return "", ErrNotConnected
	}
	return l.sim.cfg.Name, nil
}

// Disconnect stops notifications. Safe to call repeatedly.
func (l *Link) Disconnect() error {
	l.drop()
	l.wg.Wait()
	return nil
}

// IsConnected reports whether the link is up.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Link) drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return
	}
	l.connected = false
	close(l.stop)
}
