// Standalone WebSocket client that prints the PulseCast stream.
//
// Usage:
//
//	go run ./example
//
// Then in another terminal:
//
//	go run ./example/cmd/wsclient -url ws://127.0.0.1:8765/ws
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

type message struct {
	BPM       *uint16   `json:"bpm"`
	Timestamp int64     `json:"timestamp"`
	RRMS      []float64 `json:"rr_ms"`
	Status    string    `json:"status"`
	Device    string    `json:"device"`
}

func main() {
	url := flag.String("url", "ws://127.0.0.1:8765/ws", "PulseCast WebSocket URL")
	flag.Parse()

	origin := "http://" + strings.TrimPrefix(strings.TrimPrefix(*url, "ws://"), "wss://")
	conn, err := websocket.Dial(*url, "", origin)
	if err != nil {
		slog.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s\n", *url)

	for {
		var raw string
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			fmt.Println("Connection closed:", err)
			return
		}

		var m message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			slog.Warn("unexpected message", "data", raw, "error", err)
			continue
		}

		switch {
		case m.BPM != nil:
			ts := time.UnixMilli(m.Timestamp).Format("15:04:05.000")
			fmt.Printf("%s  %3d bpm  rr=%v\n", ts, *m.BPM, m.RRMS)
		case m.Device != "":
			fmt.Printf("status: %s (%s)\n", m.Status, m.Device)
		default:
			fmt.Printf("status: %s\n", m.Status)
		}
	}
}
