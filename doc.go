// Package pulsecast bridges a Bluetooth LE heart rate sensor to any number
// of local clients in real time.
//
// PulseCast connects to one peripheral exposing the standard Heart Rate
// service, decodes its Heart Rate Measurement notifications, and broadcasts
// each sample as JSON to every attached WebSocket and Server-Sent Events
// client. Lost connections are retried with exponential backoff; clients
// that fall behind are dropped so they cannot stall the others.
//
// # Quick Start
//
//	pc, _ := pulsecast.New(pulsecast.WithNameFilter("polar"))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	pc.Start(ctx) // blocks until context is cancelled
//
// Clients then connect to ws://127.0.0.1:8765/ws and receive messages of
// two shapes:
//
//	{"bpm": 72, "timestamp": 1700000000000, "rr_ms": [820.31]}
//	{"status": "connected", "device": "Polar H10 7E3F"}
//
// Status values are "scanning", "connecting", "connected" and
// "disconnected". rr_ms is omitted when the sensor reports no intervals,
// and device is only sent with "connected".
//
// # Configuration
//
//	pc, err := pulsecast.New(
//	    pulsecast.WithDevice("A0:9E:1A:12:34:56"),
//	    pulsecast.WithPort(9000),
//	    pulsecast.WithReconnect(time.Second, 30*time.Second),
//	    pulsecast.WithSampleCallback(func(s pulsecast.Sample) {
//	        log.Println(s.BPM)
//	    }),
//	)
//
// # Architecture
//
//   - internal/hrm: Heart Rate Measurement decoding
//   - internal/monitor: connection state machine with backoff
//   - internal/hub: broadcast to consumers under a shared deadline
//   - internal/server: WebSocket, SSE, REST and dashboard endpoints
//   - internal/blelink: go-ble driver for real hardware
//   - internal/simlink: simulated sensor
//   - internal/discovery: optional mDNS advertisement
//   - dashboard: embedded web UI
//
// The internal packages are not part of the public API and may change
// without notice.
package pulsecast
