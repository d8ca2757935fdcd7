package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecast/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a PulseCast configuration file without starting the server.

This command parses the YAML, expands environment variables, applies
defaults and validates all fields. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsecast validate -c pulsecast.yaml
  pulsecast validate --config ~/.config/pulsecast/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	device := "scan"
	switch {
	case cfg.Device.Address != "":
		device = cfg.Device.Address
	case cfg.Device.NameFilter != "":
		device = fmt.Sprintf("scan, name contains %q", cfg.Device.NameFilter)
	}

	level := cfg.Server.LogLevel
	if _, ok := cfg.LogLevel(); !ok {
		level += " (unknown, info will be used)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Listen:            %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  Broadcast timeout: %s\n", cfg.Server.BroadcastTimeout.Duration())
	fmt.Fprintf(out, "  Log level:         %s\n", level)
	fmt.Fprintf(out, "  Scan timeout:      %s\n", cfg.BLE.ScanTimeout.Duration())
	fmt.Fprintf(out, "  Reconnect:         %s to %s\n", cfg.BLE.ReconnectMin.Duration(), cfg.BLE.ReconnectMax.Duration())
	fmt.Fprintf(out, "  Device:            %s\n", device)

	return nil
}
