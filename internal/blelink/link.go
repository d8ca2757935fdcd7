package blelink

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"

	"github.com/jpalmerr/pulsecast/internal/monitor"
)

var (
	// ErrNotConnected is returned by operations that need an open connection.
	ErrNotConnected = errors.New("not connected")

	// ErrNoHeartRate is returned when the peer has no Heart Rate Measurement
	// characteristic.
	ErrNoHeartRate = errors.New("heart rate measurement characteristic not found")

	// ErrNoDeviceName is returned when the peer does not expose 0x2A00.
	ErrNoDeviceName = errors.New("device name characteristic not found")
)

// Link is a GATT connection to one heart rate peripheral. It satisfies
// monitor.Link; a Link is used for a single connection attempt.
type Link struct {
	methods     coreMethods
	dialTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	cln      ble.Client
	hrChar   *ble.Characteristic
	nameChar *ble.Characteristic
}

// NewLink creates an unconnected [Link]. A non-positive dialTimeout uses
// [DefaultDialTimeout].
func NewLink(dialTimeout time.Duration, logger *slog.Logger) *Link {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return newLink(&realCoreMethods{dialTimeout: dialTimeout}, dialTimeout, logger)
}

func newLink(methods coreMethods, dialTimeout time.Duration, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{methods: methods, dialTimeout: dialTimeout, logger: logger}
}

// Factory returns a monitor.LinkFactory producing go-ble links.
func Factory(dialTimeout time.Duration, logger *slog.Logger) monitor.LinkFactory {
	return func() monitor.Link {
		return NewLink(dialTimeout, logger)
	}
}

// Connect dials address, discovers the GATT profile and locates the Heart
// Rate Measurement characteristic.
func (l *Link) Connect(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, l.dialTimeout)
	defer cancel()

	cln, err := l.methods.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return errors.Wrapf(err, "dial %s", address)
	}

	p, err := cln.DiscoverProfile(true)
	if err != nil {
		_ = cln.CancelConnection()
		return errors.Wrap(err, "discover profile")
	}

	hr := findCharacteristic(p, HeartRateServiceUUID, HeartRateMeasurementUUID)
	if hr == nil {
		_ = cln.CancelConnection()
		return ErrNoHeartRate
	}

	l.mu.Lock()
	l.cln = cln
	l.hrChar = hr
	l.nameChar = findCharacteristic(p, nil, DeviceNameUUID)
	l.mu.Unlock()

	l.logger.Debug("gatt profile discovered", "address", address, "services", len(p.Services))
	return nil
}

// Subscribe enables notifications on the measurement characteristic.
func (l *Link) Subscribe(ctx context.Context, handler func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	cln, hr := l.cln, l.hrChar
	l.mu.Unlock()
	if cln == nil {
		return ErrNotConnected
	}

	err := cln.Subscribe(hr, false, func(req []byte) {
		handler(req)
	})
	return errors.Wrap(err, "subscribe heart rate measurement")
}

// ReadName reads the GAP device name.
func (l *Link) ReadName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	cln, nameChar := l.cln, l.nameChar
	l.mu.Unlock()
	if cln == nil {
		return "", ErrNotConnected
	}
	if nameChar == nil {
		return "", ErrNoDeviceName
	}

	data, err := cln.ReadCharacteristic(nameChar)
	if err != nil {
		return "", errors.Wrap(err, "read device name")
	}
	return decodeName(data), nil
}

// Disconnect unsubscribes and drops the connection. It is safe to call on an
// unconnected link.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	cln, hr := l.cln, l.hrChar
	l.cln, l.hrChar, l.nameChar = nil, nil, nil
	l.mu.Unlock()
	if cln == nil {
		return nil
	}

	if err := cln.Unsubscribe(hr, false); err != nil {
		l.logger.Debug("unsubscribe failed", "error", err)
	}
	return errors.Wrap(cln.CancelConnection(), "cancel connection")
}

// IsConnected reports whether the peer is still connected.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	cln := l.cln
	l.mu.Unlock()
	if cln == nil {
		return false
	}
	select {
	case <-cln.Disconnected():
		return false
	default:
		return true
	}
}

// decodeName converts a raw 0x2A00 value, dropping NUL padding and invalid
// UTF-8.
func decodeName(data []byte) string {
	data = bytes.TrimRight(data, "\x00")
	return strings.ToValidUTF8(string(data), "")
}
