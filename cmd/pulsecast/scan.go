package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecast"
	"github.com/jpalmerr/pulsecast/internal/blelink"
	"github.com/jpalmerr/pulsecast/internal/simlink"
)

// scanCmd lists nearby heart rate devices.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby heart rate devices",
	Long: `Scan for Bluetooth LE devices advertising the Heart Rate service and
print their names and addresses.

Use an address from the list with 'pulsecast serve -d <address>'.

Example:
  pulsecast scan
  pulsecast scan -n polar -t 10s`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	f := scanCmd.Flags()
	f.StringP("config", "c", "", "path to config file")
	f.StringP("name", "n", "", "only list devices whose name contains this")
	f.DurationP("timeout", "t", 0, "scan duration (default from config, 5s)")
	f.BoolP("verbose", "v", false, "enable debug logging")
	f.Bool("simulate", false, "list the simulated heart rate sensor")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, newLogger(cmd.ErrOrStderr(), slog.LevelInfo))
	if err != nil {
		return err
	}

	f := cmd.Flags()
	name, _ := f.GetString("name")
	if name == "" {
		name = cfg.Device.NameFilter
	}
	timeout, _ := f.GetDuration("timeout")
	if timeout <= 0 {
		timeout = cfg.BLE.ScanTimeout.Duration()
	}
	if verbose, _ := f.GetBool("verbose"); verbose {
		cfg.Server.LogLevel = "debug"
	}
	logger, closeLog := configLogger(cmd.ErrOrStderr(), cfg)
	defer closeLog()

	var scanner pulsecast.Scanner = blelink.NewScanner(logger)
	if simulate, _ := f.GetBool("simulate"); simulate {
		scanner = simlink.New(simlink.Config{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Scanning for %s...\n", timeout)
	devices, err := scanner.Scan(ctx, timeout, name)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printDevices(cmd.OutOrStdout(), devices)
	return nil
}

func printDevices(w io.Writer, devices []pulsecast.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No heart rate devices found.")
		return
	}
	fmt.Fprintf(w, "Found %d heart rate device(s):\n", len(devices))
	for _, d := range devices {
		fmt.Fprintf(w, "  %-24s %s\n", d.Name, d.Address)
	}
}
