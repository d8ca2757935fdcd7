// Package main is the entry point for the pulsecast CLI.
//
// Usage:
//
//	pulsecast serve                     # Scan, connect and broadcast
//	pulsecast serve -n polar -p 9000    # Filter by name, custom port
//	pulsecast serve --simulate          # Run against a simulated sensor
//	pulsecast scan                      # List nearby heart rate devices
//	pulsecast validate -c config.yaml   # Validate configuration
//	pulsecast version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsecast",
	Short: "Bluetooth heart rate to WebSocket bridge",
	Long: `PulseCast streams live heart rate from a Bluetooth LE sensor to local
clients over WebSocket and Server-Sent Events.

Quick start:
  1. Put on your heart rate strap
  2. Run: pulsecast serve
  3. Open http://127.0.0.1:8765 in your browser, or connect to
     ws://127.0.0.1:8765/ws

Messages:
  {"bpm": 72, "timestamp": 1700000000000, "rr_ms": [820.31]}
  {"status": "connected", "device": "Polar H10 7E3F"}`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pulsecast binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pulsecast %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
