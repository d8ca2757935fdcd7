package pulsecast

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jpalmerr/pulsecast/internal/monitor"
)

// pcConfig holds mutable state during PulseCast construction.
type pcConfig struct {
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
	advertise        bool
	advertiseName    string
}

// Option is a function that configures a [PulseCast] instance during
// construction. Options return an error if validation fails.
type Option func(*pcConfig) error

// WithDevice sets the peripheral address to connect to, skipping the scan.
//
// Returns an error if the address is empty.
func WithDevice(address string) Option {
	return func(cfg *pcConfig) error {
		address = strings.TrimSpace(address)
		if address == "" {
			return errors.New("device address cannot be empty")
		}
		cfg.device = address
		return nil
	}
}

// WithNameFilter restricts scanning to devices whose name contains filter,
// compared case-insensitively. With a filter set the first match is used
// without asking the [DeviceSelector].
func WithNameFilter(filter string) Option {
	return func(cfg *pcConfig) error {
		cfg.nameFilter = strings.TrimSpace(filter)
		return nil
	}
}

// WithHost sets the interface the server listens on. Defaults to 127.0.0.1.
func WithHost(host string) Option {
	return func(cfg *pcConfig) error {
		if strings.TrimSpace(host) == "" {
			return errors.New("host cannot be empty")
		}
		cfg.host = host
		return nil
	}
}

// WithPort sets the HTTP port for the WebSocket, SSE and dashboard server.
// Defaults to 8765.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *pcConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithBroadcastTimeout sets the shared deadline for delivering one event to
// all consumers. Consumers that miss it are disconnected. Defaults to 500ms.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(cfg *pcConfig) error {
		if d <= 0 {
			return errors.New("broadcast timeout must be positive")
		}
		cfg.broadcastTimeout = d
		return nil
	}
}

// WithReconnect sets the reconnect backoff bounds. The delay starts at
// minDelay, doubles after every failed attempt up to maxDelay, and resets
// after a successful connection. Defaults to 1s and 30s.
func WithReconnect(minDelay, maxDelay time.Duration) Option {
	return func(cfg *pcConfig) error {
		if minDelay <= 0 {
			return errors.New("reconnect minimum must be positive")
		}
		if maxDelay < minDelay {
			return errors.New("reconnect maximum must not be below the minimum")
		}
		cfg.reconnectMin = minDelay
		cfg.reconnectMax = maxDelay
		return nil
	}
}

// WithScanTimeout sets the length of one scan window, which is also the
// pause between empty scans. Defaults to 5s.
func WithScanTimeout(d time.Duration) Option {
	return func(cfg *pcConfig) error {
		if d <= 0 {
			return errors.New("scan timeout must be positive")
		}
		cfg.scanTimeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pcConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithLinkFactory replaces the Bluetooth link driver. A fresh link is
// created for every connection attempt. Used for simulation and tests.
func WithLinkFactory(f monitor.LinkFactory) Option {
	return func(cfg *pcConfig) error {
		if f == nil {
			return errors.New("link factory cannot be nil")
		}
		cfg.linkFactory = f
		return nil
	}
}

// WithScanner replaces the Bluetooth scanner.
func WithScanner(s Scanner) Option {
	return func(cfg *pcConfig) error {
		if s == nil {
			return errors.New("scanner cannot be nil")
		}
		cfg.scanner = s
		return nil
	}
}

// WithDeviceSelector sets the function that chooses between several
// discovered devices. Without one the first device found is used.
func WithDeviceSelector(sel DeviceSelector) Option {
	return func(cfg *pcConfig) error {
		if sel == nil {
			return errors.New("device selector cannot be nil")
		}
		cfg.selector = sel
		return nil
	}
}

// WithSampleCallback registers a function called for every decoded sample,
// after it has been broadcast.
//
// Callbacks run synchronously on the monitor goroutine in registration
// order and must not block. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithSampleCallback(cb func(Sample)) Option {
	return func(cfg *pcConfig) error {
		if cb == nil {
			return nil
		}
		cfg.sampleCallbacks = append(cfg.sampleCallbacks, cb)
		return nil
	}
}

// WithStatusCallback registers a function called on every status change,
// after it has been broadcast. device is set for [StatusConnected].
// The same rules as [WithSampleCallback] apply.
func WithStatusCallback(cb func(status Status, device string)) Option {
	return func(cfg *pcConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "PulseCast".
func WithTitle(title string) Option {
	return func(cfg *pcConfig) error {
		cfg.title = title
		return nil
	}
}

// WithAdvertise announces the server on the local network over mDNS as
// service type _pulsecast._tcp under the given instance name. An empty
// name uses the dashboard title. Advertising failures are logged and do not
// stop the bridge.
func WithAdvertise(instance string) Option {
	return func(cfg *pcConfig) error {
		cfg.advertise = true
		cfg.advertiseName = strings.TrimSpace(instance)
		return nil
	}
}
