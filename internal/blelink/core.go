package blelink

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// Heart Rate profile identifiers.
var (
	HeartRateServiceUUID     = ble.UUID16(0x180D)
	HeartRateMeasurementUUID = ble.UUID16(0x2A37)
	DeviceNameUUID           = ble.UUID16(0x2A00)
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 10 * time.Second

type coreMethods interface {
	Dial(context.Context, ble.Addr) (ble.Client, error)
	Scan(context.Context, bool, ble.AdvHandler, ble.AdvFilter) error
}

// realCoreMethods talks to the host adapter through the package-level
// go-ble default device. The device is opened on first use; a failed open
// is retried on the next call so an adapter that appears later is picked up.
type realCoreMethods struct {
	dialTimeout time.Duration
}

var (
	defaultDeviceMu    sync.Mutex
	defaultDeviceReady bool

	// seams for tests
	openDevice    = newDevice
	installDevice = ble.SetDefaultDevice
)

func (bc *realCoreMethods) setDefaultDevice() error {
	defaultDeviceMu.Lock()
	defer defaultDeviceMu.Unlock()
	if defaultDeviceReady {
		return nil
	}
	device, err := openDevice(bc.dialTimeout)
	if err != nil {
		return errors.Wrap(err, "new host device")
	}
	installDevice(device)
	defaultDeviceReady = true
	return nil
}

func (bc *realCoreMethods) Dial(ctx context.Context, addr ble.Addr) (ble.Client, error) {
	if err := bc.setDefaultDevice(); err != nil {
		return nil, err
	}
	return ble.Dial(ctx, addr)
}

func (bc *realCoreMethods) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler, f ble.AdvFilter) error {
	if err := bc.setDefaultDevice(); err != nil {
		return err
	}
	return ble.Scan(ctx, allowDup, h, f)
}

// advertisesHeartRate reports whether a lists the Heart Rate service.
func advertisesHeartRate(a ble.Advertisement) bool {
	for _, u := range a.Services() {
		if u.Equal(HeartRateServiceUUID) {
			return true
		}
	}
	return false
}

// findCharacteristic returns the first characteristic with the given UUID,
// optionally restricted to one service.
func findCharacteristic(p *ble.Profile, service, char ble.UUID) *ble.Characteristic {
	if p == nil {
		return nil
	}
	for _, s := range p.Services {
		if service != nil && !s.UUID.Equal(service) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(char) {
				return c
			}
		}
	}
	return nil
}
