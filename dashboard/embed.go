// Package dashboard provides the embedded live heart rate page.
//
// The page is served at "/" by the server package. It subscribes to /ws and
// falls back to /api/sse when a WebSocket cannot be opened.
package dashboard

import "embed"

// Assets holds assets/index.html. The literal {{.Title}} in the page is
// replaced with the escaped dashboard title when served.
//
//go:embed assets/*
var Assets embed.FS
