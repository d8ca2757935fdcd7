package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecast"
	"github.com/jpalmerr/pulsecast/config"
	"github.com/jpalmerr/pulsecast/internal/simlink"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the bridge.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to a heart rate sensor and broadcast it",
	Long: `Connect to a Bluetooth LE heart rate sensor and broadcast its readings.

The server will:
  - Load configuration from -c, ./pulsecast.yaml or
    ~/.config/pulsecast/config.yaml (defaults if none exist)
  - Start the WebSocket, SSE and dashboard server
  - Scan for a heart rate device unless --device is given, prompting
    when several are found and no --name filter is set
  - Stream samples to every connected client, reconnecting to the
    sensor with exponential backoff if the link drops

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pulsecast serve
  pulsecast serve -n polar -p 9000
  pulsecast serve -d A0:9E:1A:12:34:56 -H 0.0.0.0
  pulsecast serve --simulate -v
  pulsecast serve -H 0.0.0.0 --advertise`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringP("config", "c", "", "path to config file")
	f.StringP("host", "H", "", "interface to listen on (default 127.0.0.1)")
	f.IntP("port", "p", 0, "HTTP port (default 8765)")
	f.StringP("device", "d", "", "device address to connect to, skips scanning")
	f.StringP("name", "n", "", "only use devices whose name contains this")
	f.BoolP("verbose", "v", false, "enable debug logging")
	f.Bool("advertise", false, "announce the server on the local network via mDNS")
	f.Bool("simulate", false, "use a simulated heart rate sensor")
}

// loadConfig resolves the config file named by the --config flag.
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, used, err := config.Resolve(path, config.SearchPaths(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if used != "" {
		logger.Debug("config loaded", "path", used)
	}
	return cfg, nil
}

func serveOverrides(cmd *cobra.Command) config.Overrides {
	f := cmd.Flags()
	var o config.Overrides
	o.Host, _ = f.GetString("host")
	o.Port, _ = f.GetInt("port")
	o.Device, _ = f.GetString("device")
	o.NameFilter, _ = f.GetString("name")
	o.Verbose, _ = f.GetBool("verbose")
	o.Advertise, _ = f.GetBool("advertise")
	return o
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, newLogger(cmd.ErrOrStderr(), slog.LevelInfo))
	if err != nil {
		return err
	}
	if err := serveOverrides(cmd).Apply(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger, closeLog := configLogger(cmd.ErrOrStderr(), cfg)
	defer closeLog()

	opts := append(config.BuildOptions(cfg),
		pulsecast.WithLogger(logger),
		pulsecast.WithDeviceSelector(promptSelector(cmd.InOrStdin(), cmd.OutOrStdout())),
	)

	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		sim := simlink.New(simlink.Config{})
		opts = append(opts,
			pulsecast.WithLinkFactory(sim.Factory()),
			pulsecast.WithScanner(sim),
		)
		logger.Info("using simulated sensor", "address", sim.Address())
	}

	pc, err := pulsecast.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create PulseCast: %w", err)
	}

	logger.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"device", cfg.Device.Address,
		"name_filter", cfg.Device.NameFilter,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- pc.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
