// Package blelink drives real Bluetooth LE heart rate peripherals through
// github.com/go-ble/ble.
//
// [Link] implements the monitor's link capability for one GATT connection,
// and [Scanner] finds devices advertising the Heart Rate service (0x180D).
// The host adapter is opened lazily on first use; only Linux and macOS are
// supported.
package blelink
