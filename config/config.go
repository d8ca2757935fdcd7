// Package config provides YAML configuration parsing for PulseCast.
//
// This package enables running PulseCast as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	server:
//	  host: 127.0.0.1
//	  port: 8765
//	  broadcast_timeout: 500ms
//	  log_level: info
//	  log_file: /var/log/pulsecast.log
//	  advertise: true
//
//	ble:
//	  scan_timeout: 5s
//	  reconnect_min: 1s
//	  reconnect_max: 30s
//
//	device:
//	  name_filter: ${HRM_NAME:-polar}
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied to fields left unset.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 8765
	DefaultBroadcastTimeout = 500 * time.Millisecond
	DefaultLogLevel         = "info"
	DefaultScanTimeout      = 5 * time.Second
	DefaultReconnectMin     = 1 * time.Second
	DefaultReconnectMax     = 30 * time.Second
)

// FileName is the config file looked for in the working directory.
const FileName = "pulsecast.yaml"

// Config is the root configuration structure for PulseCast.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [Parse] or [Resolve] to create a Config.
type Config struct {
	Server ServerConfig `yaml:"server"`
	BLE    BLEConfig    `yaml:"ble"`
	Device DeviceConfig `yaml:"device"`
}

// ServerConfig configures the WebSocket, SSE and dashboard server.
type ServerConfig struct {
	// Host is the listen interface. Defaults to 127.0.0.1.
	Host string `yaml:"host"`

	// Port is the HTTP server port. Defaults to 8765.
	Port int `yaml:"port"`

	// BroadcastTimeout bounds one broadcast round. Clients that miss it are
	// disconnected. Defaults to 500ms.
	BroadcastTimeout Duration `yaml:"broadcast_timeout"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	// Unknown values fall back to info.
	LogLevel string `yaml:"log_level"`

	// Title is the dashboard title. Defaults to "PulseCast" if not set.
	Title string `yaml:"title"`

	// LogFile additionally writes logs to this file, rotated at 10 MB.
	LogFile string `yaml:"log_file"`

	// Advertise announces the server over mDNS as _pulsecast._tcp.
	Advertise bool `yaml:"advertise"`
}

// BLEConfig configures scanning and reconnection.
type BLEConfig struct {
	// ScanTimeout is the length of one scan window. Defaults to 5s.
	ScanTimeout Duration `yaml:"scan_timeout"`

	// ReconnectMin is the first reconnect delay. Defaults to 1s.
	ReconnectMin Duration `yaml:"reconnect_min"`

	// ReconnectMax caps the doubling reconnect delay. Defaults to 30s.
	ReconnectMax Duration `yaml:"reconnect_max"`
}

// DeviceConfig selects the heart rate peripheral.
//
// Both values support environment variable substitution:
// ${VAR} or ${VAR:-default}
type DeviceConfig struct {
	// Address connects directly, skipping the scan.
	Address string `yaml:"address"`

	// NameFilter restricts scanning to names containing this substring.
	NameFilter string `yaml:"name_filter"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LogLevel parses Server.LogLevel. ok is false when the value is not a
// known level, in which case info is returned.
func (c *Config) LogLevel() (level slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(c.Server.LogLevel)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		varName := sub[1]
		hasDefault := sub[2] != ""

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", varName)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in host, title, device address and
// name filter. Defaults are applied to every unset field before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SearchPaths returns the locations checked when no config file is given:
// ./pulsecast.yaml, then $HOME/.config/pulsecast/config.yaml.
func SearchPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "pulsecast", "config.yaml"))
	}
	return paths
}

// Resolve loads the configuration for the CLI.
//
// An explicit path must load cleanly. Without one the first existing file
// from paths is used; a discovered file that fails to load is reported as a
// warning and defaults are used instead. The returned string is the file
// that was loaded, or "" when running on defaults.
func Resolve(path string, paths []string, logger *slog.Logger) (*Config, string, error) {
	if path != "" {
		cfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("cannot access config file", "path", p, "error", err)
			}
			continue
		}

		cfg, err := Load(p)
		if err != nil {
			logger.Warn("ignoring invalid config file, using defaults", "path", p, "error", err)
			return Default(), "", nil
		}
		return cfg, p, nil
	}

	return Default(), "", nil
}

func (c *Config) expand() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"server.host", &c.Server.Host},
		{"server.title", &c.Server.Title},
		{"server.log_file", &c.Server.LogFile},
		{"device.address", &c.Device.Address},
		{"device.name_filter", &c.Device.NameFilter},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = strings.TrimSpace(expanded)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.BroadcastTimeout == 0 {
		c.Server.BroadcastTimeout = Duration(DefaultBroadcastTimeout)
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.BLE.ScanTimeout == 0 {
		c.BLE.ScanTimeout = Duration(DefaultScanTimeout)
	}
	if c.BLE.ReconnectMin == 0 {
		c.BLE.ReconnectMin = Duration(DefaultReconnectMin)
	}
	if c.BLE.ReconnectMax == 0 {
		c.BLE.ReconnectMax = Duration(DefaultReconnectMax)
		if c.BLE.ReconnectMin.Duration() > DefaultReconnectMax {
			c.BLE.ReconnectMax = c.BLE.ReconnectMin
		}
	}
}

// Validate checks field ranges. It expects defaults to have been applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.BroadcastTimeout.Duration() <= 0 {
		return fmt.Errorf("server.broadcast_timeout must be positive, got %s", c.Server.BroadcastTimeout.Duration())
	}
	if c.BLE.ScanTimeout.Duration() <= 0 {
		return fmt.Errorf("ble.scan_timeout must be positive, got %s", c.BLE.ScanTimeout.Duration())
	}
	if c.BLE.ReconnectMin.Duration() <= 0 {
		return fmt.Errorf("ble.reconnect_min must be positive, got %s", c.BLE.ReconnectMin.Duration())
	}
	if c.BLE.ReconnectMax.Duration() < c.BLE.ReconnectMin.Duration() {
		return fmt.Errorf("ble.reconnect_max (%s) must not be below ble.reconnect_min (%s)",
			c.BLE.ReconnectMax.Duration(), c.BLE.ReconnectMin.Duration())
	}
	return nil
}
