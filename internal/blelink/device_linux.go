//go:build linux

package blelink

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newDevice(timeout time.Duration) (ble.Device, error) {
	opts := []ble.Option{
		ble.OptDialerTimeout(timeout),
	}
	return linux.NewDevice(opts...)
}
