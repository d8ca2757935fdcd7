// Package monitor keeps a single heart rate peripheral connected.
//
// A [Monitor] owns one peripheral address and drives a small state machine:
//
//	Idle -> Connecting -> Connected -> BackingOff -> Connecting -> ...
//	any  -> Stopped
//
// Connect failures and link loss are never fatal. Each failure moves the
// monitor to BackingOff, where it waits for the current reconnect delay and
// then doubles it up to the configured maximum. A successful connect resets
// the delay to the minimum.
//
// Peripheral access goes through the [Link] interface so the BLE driver, the
// simulated peripheral, and test fakes are interchangeable. Inbound
// notifications are decoded with the hrm package and delivered, in arrival
// order, to the sample callback. Malformed packets are logged and skipped.
//
// Status labels ("connecting", "connected", "disconnected") are reported via
// the status callback so downstream observers can follow the retry cycle.
package monitor
