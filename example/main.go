package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pulsecast"
	"github.com/jpalmerr/pulsecast/internal/simlink"
)

func main() {
	// simulated strap that drops every 30 beats to show reconnects
	sim := simlink.New(simlink.Config{
		Name:         "Demo Strap",
		FailConnects: 2,
		DropAfter:    30,
	})

	pc, err := pulsecast.New(
		pulsecast.WithLinkFactory(sim.Factory()),
		pulsecast.WithScanner(sim),
		pulsecast.WithScanTimeout(time.Second),
		pulsecast.WithReconnect(time.Second, 8*time.Second),
		pulsecast.WithPort(8765),
		pulsecast.WithTitle("PulseCast Demo"),
		pulsecast.WithSampleCallback(func(s pulsecast.Sample) {
			if s.BPM > 150 {
				slog.Warn("high heart rate", "bpm", s.BPM)
			}
		}),
		pulsecast.WithStatusCallback(func(status pulsecast.Status, device string) {
			slog.Info("status changed", "status", status, "device", device)
		}),
	)
	if err != nil {
		slog.Error("failed to create pulsecast", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  PulseCast Demo")
	fmt.Println()
	fmt.Println("  Dashboard:  http://127.0.0.1:8765")
	fmt.Println("  WebSocket:  ws://127.0.0.1:8765/ws")
	fmt.Println("  SSE:        http://127.0.0.1:8765/api/sse")
	fmt.Println()
	fmt.Println("  The simulated strap fails twice before connecting and")
	fmt.Println("  drops every 30 beats. Press Ctrl+C to stop.")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pc.Start(ctx); err != nil {
		slog.Error("pulsecast error", "error", err)
		os.Exit(1)
	}
}
