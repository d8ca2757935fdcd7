//go:build !linux && !darwin

package blelink

import (
	"runtime"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

// ErrUnsupportedPlatform is returned on hosts without a go-ble backend.
var ErrUnsupportedPlatform = errors.New("bluetooth is not supported on " + runtime.GOOS)

func newDevice(_ time.Duration) (ble.Device, error) {
	return nil, ErrUnsupportedPlatform
}
