package pulsecast

import (
	"context"
	"time"

	"github.com/jpalmerr/pulsecast/internal/blelink"
)

// Status is the bridge's view of the peripheral connection.
//
// Status values are broadcast to consumers as {"status": "..."} messages
// and passed to callbacks registered with [WithStatusCallback].
type Status string

const (
	// StatusScanning indicates the bridge is looking for a device to use.
	StatusScanning Status = "scanning"

	// StatusConnecting indicates a connection attempt is in progress.
	StatusConnecting Status = "connecting"

	// StatusConnected indicates the device is connected and streaming.
	StatusConnected Status = "connected"

	// StatusDisconnected indicates the last attempt failed or the link was
	// lost; a reconnect follows after the backoff delay.
	StatusDisconnected Status = "disconnected"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Sample is one decoded heart rate measurement.
type Sample struct {
	// BPM is the heart rate in beats per minute.
	BPM uint16

	// RRIntervals are the beat-to-beat intervals in milliseconds, oldest
	// first. Empty when the sensor did not report any.
	RRIntervals []float64

	// Timestamp is the wall-clock time the notification was received.
	Timestamp time.Time
}

// Device is a discovered heart rate peripheral.
type Device = blelink.Device

// Scanner discovers heart rate peripherals. Scan listens for timeout and
// returns the devices whose name contains nameFilter (case-insensitive),
// or all devices when nameFilter is empty.
type Scanner interface {
	Scan(ctx context.Context, timeout time.Duration, nameFilter string) ([]Device, error)
}

// DeviceSelector picks one device when a scan finds several and no name
// filter is configured.
type DeviceSelector func(ctx context.Context, devices []Device) (Device, error)
