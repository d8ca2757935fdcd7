package pulsecast

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecast/dashboard"
	"github.com/jpalmerr/pulsecast/internal/blelink"
	"github.com/jpalmerr/pulsecast/internal/discovery"
	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/monitor"
	"github.com/jpalmerr/pulsecast/internal/server"
)

const (
	defaultHost             = "127.0.0.1"
	defaultPort             = 8765
	defaultBroadcastTimeout = hub.DefaultTimeout
	defaultScanTimeout      = blelink.DefaultScanTimeout
	defaultInstance         = "PulseCast"
)

// PulseCast bridges one heart rate peripheral to any number of WebSocket and
// SSE clients.
//
// It is created using [New] with functional options and started with
// [PulseCast.Start]:
//
//	pc, err := pulsecast.New(pulsecast.WithNameFilter("polar"))
//	if err != nil {
//	    slog.Error("failed to create pulsecast", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	pc.Start(ctx) // blocks until context cancelled
type PulseCast struct {
	title            string
	host             string
	port             int
	device           string
	nameFilter       string
	broadcastTimeout time.Duration
	reconnectMin     time.Duration
	reconnectMax     time.Duration
	scanTimeout      time.Duration
	logger           *slog.Logger
	linkFactory      monitor.LinkFactory
	scanner          Scanner
	selector         DeviceSelector
	sampleCallbacks  []func(Sample)
	statusCallbacks  []func(Status, string)
	advertiseName    string

	mu   sync.RWMutex
	addr string
}

// New creates a new [PulseCast] instance with the given options.
//
// Defaults:
//   - Host: 127.0.0.1, port 8765
//   - Broadcast timeout: 500ms
//   - Reconnect backoff: 1s doubling to 30s
//   - Scan window: 5s
//   - Bluetooth link and scanner: go-ble on the host adapter
func New(opts ...Option) (*PulseCast, error) {
	cfg := &pcConfig{
		host:             defaultHost,
		port:             defaultPort,
		broadcastTimeout: defaultBroadcastTimeout,
		reconnectMin:     monitor.DefaultReconnectMin,
		reconnectMax:     monitor.DefaultReconnectMax,
		scanTimeout:      defaultScanTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	linkFactory := cfg.linkFactory
	if linkFactory == nil {
		linkFactory = blelink.Factory(blelink.DefaultDialTimeout, logger)
	}
	scanner := cfg.scanner
	if scanner == nil {
		scanner = blelink.NewScanner(logger)
	}
	selector := cfg.selector
	if selector == nil {
		selector = firstDevice
	}

	var advertiseName string
	if cfg.advertise {
		advertiseName = cfg.advertiseName
		if advertiseName == "" {
			advertiseName = cfg.title
		}
		if advertiseName == "" {
			advertiseName = defaultInstance
		}
	}

	return &PulseCast{
		title:            cfg.title,
		host:             cfg.host,
		port:             cfg.port,
		device:           cfg.device,
		nameFilter:       cfg.nameFilter,
		broadcastTimeout: cfg.broadcastTimeout,
		reconnectMin:     cfg.reconnectMin,
		reconnectMax:     cfg.reconnectMax,
		scanTimeout:      cfg.scanTimeout,
		logger:           logger,
		linkFactory:      linkFactory,
		scanner:          scanner,
		selector:         selector,
		sampleCallbacks:  cfg.sampleCallbacks,
		statusCallbacks:  cfg.statusCallbacks,
		advertiseName:    advertiseName,
	}, nil
}

// Start runs the bridge until ctx is cancelled.
//
// The HTTP server is started first so clients can attach while the device
// is being located. Without a configured device address Start scans
// repeatedly, broadcasting "scanning", until a device is found; a single
// result or a name filter selects the first device, otherwise the
// [DeviceSelector] decides. The connection monitor then keeps the device
// connected, reconnecting with exponential backoff, until shutdown.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start or device selection fails.
func (pc *PulseCast) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	h := hub.New(pc.broadcastTimeout, pc.logger)

	// the server shuts down with runCtx, including on early error returns
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.NewServer(h, pc.host, pc.port, dashboard.Assets, pc.title, pc.logger)
	if err := srv.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	pc.setAddr(srv.Addr())
	pc.logger.Info("websocket server running", "url", "ws://"+srv.Addr()+"/ws")
	pc.logger.Info("dashboard available", "url", "http://"+srv.Addr()+"/")

	if pc.advertiseName != "" {
		if adv := pc.advertise(srv.Addr()); adv != nil {
			defer adv.Stop()
		}
	}

	address := pc.device
	if address == "" {
		var err error
		address, err = pc.scanUntilFound(runCtx, h)
		if err != nil {
			if runCtx.Err() != nil {
				pc.logger.Info("pulsecast stopped")
				return nil
			}
			return err
		}
	}

	mon, err := monitor.New(pc.linkFactory, monitor.Config{
		Address:      address,
		ReconnectMin: pc.reconnectMin,
		ReconnectMax: pc.reconnectMax,
		OnSample:     pc.sampleHandler(h),
		OnStatus:     pc.statusHandler(h),
		Logger:       pc.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	mon.Start(runCtx)
	<-runCtx.Done()
	mon.Stop()

	pc.logger.Info("pulsecast stopped")
	return nil
}

// Addr returns the server's bound address once [PulseCast.Start] has
// started it.
func (pc *PulseCast) Addr() string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.addr
}

// Port returns the configured HTTP port.
func (pc *PulseCast) Port() int {
	return pc.port
}

// Device returns the configured device address, or "" when scanning.
func (pc *PulseCast) Device() string {
	return pc.device
}

func (pc *PulseCast) setAddr(addr string) {
	pc.mu.Lock()
	pc.addr = addr
	pc.mu.Unlock()
}

// advertise announces addr over mDNS. It returns nil if advertising failed.
func (pc *PulseCast) advertise(addr string) *discovery.Advertiser {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		pc.logger.Warn("mDNS advertising skipped", "addr", addr, "error", err)
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		pc.logger.Warn("mDNS advertising skipped", "addr", addr, "error", err)
		return nil
	}

	adv := discovery.NewAdvertiser(discovery.Config{Logger: pc.logger})
	if err := adv.Advertise(pc.advertiseName, port); err != nil {
		pc.logger.Warn("mDNS advertising failed", "error", err)
		return nil
	}
	return adv
}

// scanUntilFound scans until a device is chosen or ctx is cancelled.
func (pc *PulseCast) scanUntilFound(ctx context.Context, h *hub.Hub) (string, error) {
	for {
		pc.publishStatus(h, StatusScanning, "")
		pc.logger.Info("scanning for heart rate devices", "name_filter", pc.nameFilter)

		devices, err := pc.scanner.Scan(ctx, pc.scanTimeout, pc.nameFilter)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch {
		case err != nil:
			pc.logger.Warn("scan failed", "error", err)
		case len(devices) == 1 || (len(devices) > 1 && pc.nameFilter != ""):
			pc.logger.Info("found device", "name", devices[0].Name, "address", devices[0].Address)
			return devices[0].Address, nil
		case len(devices) > 1:
			d, err := pc.selector(ctx, devices)
			if err != nil {
				return "", fmt.Errorf("device selection failed: %w", err)
			}
			pc.logger.Info("selected device", "name", d.Name, "address", d.Address)
			return d.Address, nil
		}

		pc.logger.Warn("no heart rate devices found, retrying",
			"name_filter", pc.nameFilter,
			"retry_in", pc.scanTimeout.String(),
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pc.scanTimeout):
		}
	}
}

// sampleHandler broadcasts a sample, then runs the sample callbacks.
func (pc *PulseCast) sampleHandler(h *hub.Hub) monitor.SampleFunc {
	return func(bpm uint16, rrMS []float64, timestampMS int64) {
		h.PublishSample(bpm, rrMS, timestampMS)
		for _, cb := range pc.sampleCallbacks {
			s := Sample{
				BPM:         bpm,
				RRIntervals: append([]float64(nil), rrMS...),
				Timestamp:   time.UnixMilli(timestampMS),
			}
			invokeCallbackSafe(pc.logger, "sample", func() { cb(s) })
		}
	}
}

// statusHandler broadcasts a status, then runs the status callbacks.
func (pc *PulseCast) statusHandler(h *hub.Hub) monitor.StatusFunc {
	return func(status, device string) {
		pc.publishStatus(h, Status(status), device)
	}
}

func (pc *PulseCast) publishStatus(h *hub.Hub, status Status, device string) {
	h.PublishStatus(string(status), device)
	for _, cb := range pc.statusCallbacks {
		invokeCallbackSafe(pc.logger, "status", func() { cb(status, device) })
	}
}

// firstDevice is the default [DeviceSelector].
func firstDevice(_ context.Context, devices []Device) (Device, error) {
	return devices[0], nil
}

// invokeCallbackSafe calls fn with panic recovery. Panics are logged with a
// correlation ID and do not propagate.
func invokeCallbackSafe(logger *slog.Logger, kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked",
				"callback", kind,
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
