// Package discovery advertises the PulseCast server over mDNS so clients on
// the local network can find it without knowing its address.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the DNS-SD service type of a PulseCast server.
	ServiceType = "_pulsecast._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultTTL is the record TTL.
	DefaultTTL = 120 * time.Second
)

// server is the part of *zeroconf.Server the advertiser uses.
type server interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error)

// Config configures an [Advertiser].
type Config struct {
	// Interface restricts advertising to one network interface.
	// Empty means all multicast interfaces.
	Interface string

	// TTL is the DNS record TTL. Defaults to 120s.
	TTL time.Duration

	Logger *slog.Logger
}

// Advertiser publishes one PulseCast service record.
type Advertiser struct {
	cfg      Config
	register registerFunc
	logger   *slog.Logger

	mu     sync.Mutex
	server server
}

// NewAdvertiser creates an advertiser backed by zeroconf.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	ttl := uint32(cfg.TTL.Seconds())
	return newAdvertiser(cfg, func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error) {
		s, err := zeroconf.Register(instance, service, domain, port, txt, ifaces, zeroconf.TTL(ttl))
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func newAdvertiser(cfg Config, register registerFunc) *Advertiser {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{cfg: cfg, register: register, logger: logger}
}

// TXT returns the TXT records describing the server's endpoints.
func TXT() []string {
	return []string{
		"ws=/ws",
		"sse=/api/sse",
		"status=/api/status",
	}
}

// Advertise starts advertising instance on port, replacing any previous
// advertisement.
func (a *Advertiser) Advertise(instance string, port int) error {
	if instance == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}

	ifaces, err := a.interfaces()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	s, err := a.register(instance, ServiceType, Domain, port, TXT(), ifaces)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = s

	a.logger.Info("advertising via mDNS",
		"instance", instance,
		"service", ServiceType,
		"port", port,
	)
	return nil
}

// Stop withdraws the advertisement. Safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Debug("mDNS advertisement stopped")
	}
}

func (a *Advertiser) interfaces() ([]net.Interface, error) {
	if a.cfg.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", a.cfg.Interface, err)
	}
	return []net.Interface{*iface}, nil
}
