package pulsecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pulsecast/internal/simlink"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScanner returns scripted results, one per call, repeating the last.
type fakeScanner struct {
	mu      sync.Mutex
	results [][]Device
	err     error
	calls   int
}

func (f *fakeScanner) Scan(ctx context.Context, _ time.Duration, _ string) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	i := f.calls - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

func (f *fakeScanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// statusRecorder collects status callbacks in order.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
	devices  []string
}

func (r *statusRecorder) record(s Status, device string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.devices = append(r.devices, device)
	r.mu.Unlock()
}

func (r *statusRecorder) snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *statusRecorder) has(s Status) bool {
	for _, got := range r.snapshot() {
		if got == s {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newSim(cfg simlink.Config) *simlink.Simulator {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Millisecond
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	return simlink.New(cfg)
}

func runAsync(ctx context.Context, pc *PulseCast) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- pc.Start(ctx)
	}()
	return done
}

func awaitReturn(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
		return nil
	}
}

// TestStart_BlocksUntilContextCancelled verifies Start blocks and returns
// nil on graceful shutdown.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	sim := newSim(simlink.Config{})
	pc, err := New(
		WithDevice(sim.Address()),
		WithLinkFactory(sim.Factory()),
		WithPort(19001),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := awaitReturn(t, done); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}

// TestStart_AlreadyCancelledContext verifies Start returns immediately with
// a cancelled context.
func TestStart_AlreadyCancelledContext(t *testing.T) {
	pc, err := New(
		WithScanner(&fakeScanner{}),
		WithPort(19002),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := runAsync(ctx, pc)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
}

// TestStart_PortInUse verifies Start reports a bind failure.
func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:19003")
	if err != nil {
		t.Skipf("cannot reserve port: %v", err)
	}
	defer ln.Close()

	pc, err := New(
		WithScanner(&fakeScanner{}),
		WithPort(19003),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = pc.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error when port is in use, got nil")
	}
	if !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v, want error containing 'failed to start HTTP server'", err)
	}
}

// TestStart_ServesStatusWhileScanning verifies the HTTP server is reachable
// before a device has been found.
func TestStart_ServesStatusWhileScanning(t *testing.T) {
	pc, err := New(
		WithScanner(&fakeScanner{}),
		WithScanTimeout(10*time.Millisecond),
		WithPort(19004),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)
	defer func() {
		cancel()
		_ = awaitReturn(t, done)
	}()

	waitFor(t, 2*time.Second, func() bool { return pc.Addr() != "" })

	var body string
	waitFor(t, 2*time.Second, func() bool {
		resp, err := http.Get("http://" + pc.Addr() + "/api/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return strings.Contains(body, `"status":"scanning"`)
	})
	if !strings.Contains(body, `"consumers":0`) {
		t.Errorf("status body = %s, want consumers 0", body)
	}
}

// TestStart_ScansUntilFound verifies empty scans are retried.
func TestStart_ScansUntilFound(t *testing.T) {
	sim := newSim(simlink.Config{Name: "Polar H10"})
	scanner := &fakeScanner{results: [][]Device{
		nil,
		nil,
		{{Address: sim.Address(), Name: "Polar H10"}},
	}}
	rec := &statusRecorder{}

	pc, err := New(
		WithScanner(scanner),
		WithScanTimeout(10*time.Millisecond),
		WithLinkFactory(sim.Factory()),
		WithStatusCallback(rec.record),
		WithPort(19005),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)

	waitFor(t, 3*time.Second, func() bool { return rec.has(StatusConnected) })
	cancel()
	if err := awaitReturn(t, done); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}

	if scanner.Calls() != 3 {
		t.Errorf("scanner calls = %d, want 3", scanner.Calls())
	}

	got := rec.snapshot()
	want := []Status{StatusScanning, StatusScanning, StatusScanning, StatusConnecting, StatusConnected}
	if len(got) < len(want) {
		t.Fatalf("statuses = %v, want prefix %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statuses[%d] = %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}

	rec.mu.Lock()
	device := rec.devices[4]
	rec.mu.Unlock()
	if device != "Polar H10" {
		t.Errorf("connected device = %q, want %q", device, "Polar H10")
	}
}

// TestStart_SelectorUsedForMultipleDevices verifies the selector chooses
// when several devices are found without a name filter.
func TestStart_SelectorUsedForMultipleDevices(t *testing.T) {
	sim := newSim(simlink.Config{Address: "5e:ed:00:00:00:02"})
	scanner := &fakeScanner{results: [][]Device{{
		{Address: "5e:ed:00:00:00:01", Name: "Other"},
		{Address: "5e:ed:00:00:00:02", Name: "Mine"},
	}}}

	var selectorCalls int
	var mu sync.Mutex
	sel := func(_ context.Context, devices []Device) (Device, error) {
		mu.Lock()
		selectorCalls++
		mu.Unlock()
		return devices[1], nil
	}

	var connected sync.Once
	connectedCh := make(chan struct{})
	pc, err := New(
		WithScanner(scanner),
		WithDeviceSelector(sel),
		WithLinkFactory(sim.Factory()),
		WithStatusCallback(func(s Status, _ string) {
			if s == StatusConnected {
				connected.Do(func() { close(connectedCh) })
			}
		}),
		WithPort(19006),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)

	select {
	case <-connectedCh:
	case <-time.After(3 * time.Second):
		t.Fatal("never connected to the selected device")
	}
	cancel()
	_ = awaitReturn(t, done)

	mu.Lock()
	defer mu.Unlock()
	if selectorCalls != 1 {
		t.Errorf("selector calls = %d, want 1", selectorCalls)
	}
}

// TestStart_NameFilterSkipsSelector verifies a name filter auto-selects the
// first match.
func TestStart_NameFilterSkipsSelector(t *testing.T) {
	sim := newSim(simlink.Config{})
	scanner := &fakeScanner{results: [][]Device{{
		{Address: sim.Address(), Name: "Polar A"},
		{Address: "5e:ed:00:00:00:09", Name: "Polar B"},
	}}}
	rec := &statusRecorder{}

	pc, err := New(
		WithScanner(scanner),
		WithNameFilter("polar"),
		WithDeviceSelector(func(context.Context, []Device) (Device, error) {
			t.Error("selector should not be called with a name filter")
			return Device{}, errors.New("unexpected")
		}),
		WithLinkFactory(sim.Factory()),
		WithStatusCallback(rec.record),
		WithPort(19007),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)
	waitFor(t, 3*time.Second, func() bool { return rec.has(StatusConnected) })
	cancel()
	_ = awaitReturn(t, done)
}

// TestStart_SelectorError verifies a failing selector aborts Start.
func TestStart_SelectorError(t *testing.T) {
	scanner := &fakeScanner{results: [][]Device{{
		{Address: "a", Name: "A"},
		{Address: "b", Name: "B"},
	}}}
	errAborted := errors.New("user aborted")

	pc, err := New(
		WithScanner(scanner),
		WithDeviceSelector(func(context.Context, []Device) (Device, error) {
			return Device{}, errAborted
		}),
		WithPort(19008),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := runAsync(context.Background(), pc)
	err = awaitReturn(t, done)
	if !errors.Is(err, errAborted) {
		t.Errorf("Start() error = %v, want %v", err, errAborted)
	}
	if err != nil && !strings.Contains(err.Error(), "device selection failed") {
		t.Errorf("Start() error = %v, want error containing 'device selection failed'", err)
	}
}

// TestStart_ScanErrorRetried verifies adapter errors do not stop the bridge.
func TestStart_ScanErrorRetried(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("adapter busy")}

	pc, err := New(
		WithScanner(scanner),
		WithScanTimeout(5*time.Millisecond),
		WithPort(19009),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)
	waitFor(t, 2*time.Second, func() bool { return scanner.Calls() >= 3 })
	cancel()
	if err := awaitReturn(t, done); err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}

// TestStart_ReconnectsAfterDrop verifies a dropped link reconnects and
// keeps streaming.
func TestStart_ReconnectsAfterDrop(t *testing.T) {
	sim := newSim(simlink.Config{DropAfter: 3})
	rec := &statusRecorder{}

	pc, err := New(
		WithDevice(sim.Address()),
		WithLinkFactory(sim.Factory()),
		WithReconnect(10*time.Millisecond, 20*time.Millisecond),
		WithStatusCallback(rec.record),
		WithPort(19010),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, pc)

	waitFor(t, 5*time.Second, func() bool { return sim.Attempts() >= 2 })
	waitFor(t, 5*time.Second, func() bool {
		n := 0
		for _, s := range rec.snapshot() {
			if s == StatusConnected {
				n++
			}
		}
		return n >= 2
	})
	cancel()
	_ = awaitReturn(t, done)

	if !rec.has(StatusDisconnected) {
		t.Errorf("statuses = %v, want a disconnected status between connects", rec.snapshot())
	}
}

// TestStart_MultipleSequentialRuns verifies that a new PulseCast can be
// started after the previous one shuts down.
func TestStart_MultipleSequentialRuns(t *testing.T) {
	for i := 0; i < 3; i++ {
		sim := newSim(simlink.Config{})
		pc, err := New(
			WithDevice(sim.Address()),
			WithLinkFactory(sim.Factory()),
			WithPort(19020+i),
			WithLogger(testLogger()),
		)
		if err != nil {
			t.Fatalf("iteration %d: New() error = %v", i, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := runAsync(ctx, pc)
		time.Sleep(50 * time.Millisecond)
		cancel()

		if err := awaitReturn(t, done); err != nil {
			t.Errorf("iteration %d: Start() error = %v", i, err)
		}
	}
}

// TestStart_WithTimeoutContext verifies Start respects deadline contexts.
func TestStart_WithTimeoutContext(t *testing.T) {
	sim := newSim(simlink.Config{})
	pc, err := New(
		WithDevice(sim.Address()),
		WithLinkFactory(sim.Factory()),
		WithPort(19011),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = pc.Start(ctx)
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("Start() ran for %v, expected ~200ms", elapsed)
	}
	if err != nil {
		t.Errorf("Start() error = %v, want nil", err)
	}
}

func TestAddr_BeforeStart(t *testing.T) {
	pc, err := New(WithPort(19012))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if pc.Addr() != "" {
		t.Errorf("Addr() = %q, want empty before Start", pc.Addr())
	}
	if want := fmt.Sprint(19012); pc.Port() != 19012 {
		t.Errorf("Port() = %d, want %s", pc.Port(), want)
	}
}
