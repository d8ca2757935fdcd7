package config

import (
	"github.com/jpalmerr/pulsecast"
)

// Overrides are command line values that take precedence over the file.
// Zero values leave the file value untouched.
type Overrides struct {
	Host       string
	Port       int
	Device     string
	NameFilter string
	Verbose    bool
	Advertise  bool
}

// Apply merges o into cfg and re-validates the result.
func (o Overrides) Apply(cfg *Config) error {
	if o.Host != "" {
		cfg.Server.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	if o.Device != "" {
		cfg.Device.Address = o.Device
	}
	if o.NameFilter != "" {
		cfg.Device.NameFilter = o.NameFilter
	}
	if o.Verbose {
		cfg.Server.LogLevel = "debug"
	}
	if o.Advertise {
		cfg.Server.Advertise = true
	}
	return cfg.Validate()
}

// BuildOptions converts parsed configuration into SDK options.
//
// Logger, link driver and device selector are not part of the file and are
// appended by the caller.
func BuildOptions(cfg *Config) []pulsecast.Option {
	opts := []pulsecast.Option{
		pulsecast.WithHost(cfg.Server.Host),
		pulsecast.WithPort(cfg.Server.Port),
		pulsecast.WithBroadcastTimeout(cfg.Server.BroadcastTimeout.Duration()),
		pulsecast.WithScanTimeout(cfg.BLE.ScanTimeout.Duration()),
		pulsecast.WithReconnect(cfg.BLE.ReconnectMin.Duration(), cfg.BLE.ReconnectMax.Duration()),
	}

	if cfg.Server.Title != "" {
		opts = append(opts, pulsecast.WithTitle(cfg.Server.Title))
	}
	if cfg.Device.Address != "" {
		opts = append(opts, pulsecast.WithDevice(cfg.Device.Address))
	}
	if cfg.Device.NameFilter != "" {
		opts = append(opts, pulsecast.WithNameFilter(cfg.Device.NameFilter))
	}
	if cfg.Server.Advertise {
		opts = append(opts, pulsecast.WithAdvertise(cfg.Server.Title))
	}

	return opts
}
