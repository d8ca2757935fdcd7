package blelink

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// DefaultScanTimeout is the scan window used when none is given.
const DefaultScanTimeout = 5 * time.Second

// unknownName is reported for devices that do not advertise a local name.
const unknownName = "Unknown"

// Device is a discovered heart rate peripheral.
type Device struct {
	Address string
	Name    string
}

// Scanner discovers peripherals advertising the Heart Rate service.
type Scanner struct {
	methods coreMethods
	logger  *slog.Logger
}

// NewScanner creates a [Scanner] on the host adapter.
func NewScanner(logger *slog.Logger) *Scanner {
	return newScanner(&realCoreMethods{dialTimeout: DefaultDialTimeout}, logger)
}

func newScanner(methods coreMethods, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{methods: methods, logger: logger}
}

// Scan listens for advertisements for timeout and returns the Heart Rate
// devices seen, in discovery order and de-duplicated by address. When
// nameFilter is non-empty only devices whose name contains it
// (case-insensitive) are returned.
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration, nameFilter string) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	filter := strings.ToLower(nameFilter)

	var (
		mu      sync.Mutex
		seen    = make(map[string]struct{})
		devices []Device
	)

	handler := func(a ble.Advertisement) {
		addr := a.Addr().String()
		name := a.LocalName()
		if name == "" {
			name = unknownName
		}

		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[addr]; ok {
			return
		}
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			return
		}
		seen[addr] = struct{}{}
		devices = append(devices, Device{Address: addr, Name: name})
		s.logger.Debug("discovered device", "name", name, "address", addr)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// duplicates are allowed so a name arriving in a later scan response can
	// still satisfy the filter
	err := s.methods.Scan(scanCtx, true, handler, advertisesHeartRate)
	if err != nil && !scanWindowElapsed(err) {
		return nil, errors.Wrap(err, "scan")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	s.logger.Debug("scan complete", "found", len(devices))
	return append([]Device(nil), devices...), nil
}

// scanWindowElapsed reports whether err only signals the end of the scan
// window.
func scanWindowElapsed(err error) bool {
	cause := errors.Cause(err)
	return cause == context.DeadlineExceeded || cause == context.Canceled
}
