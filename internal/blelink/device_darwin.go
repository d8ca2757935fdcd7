//go:build darwin

package blelink

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newDevice(timeout time.Duration) (ble.Device, error) {
	return darwin.NewDevice(ble.OptDialerTimeout(timeout))
}
