// Package server provides the HTTP front end for PulseCast.
//
// It attaches network clients to the broadcast hub:
//
//   - WebSocket: each connection at "/ws" is a hub consumer
//   - Server-Sent Events: each stream at "/api/sse" is a hub consumer
//   - REST API: "/api/status" returns the latest status and sample
//   - Dashboard: the embedded live view at "/"
//
// New consumers receive the latest status immediately. The server supports
// graceful shutdown via context cancellation, with a 5-second timeout for
// in-flight requests; WebSocket connections are closed explicitly.
package server
