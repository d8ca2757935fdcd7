package pulsecast

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/monitor"
)

func TestNew_Defaults(t *testing.T) {
	pc, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if pc.host != defaultHost {
		t.Errorf("host = %q, want %q", pc.host, defaultHost)
	}
	if pc.Port() != defaultPort {
		t.Errorf("Port() = %v, want %v", pc.Port(), defaultPort)
	}
	if pc.broadcastTimeout != hub.DefaultTimeout {
		t.Errorf("broadcastTimeout = %v, want %v", pc.broadcastTimeout, hub.DefaultTimeout)
	}
	if pc.reconnectMin != monitor.DefaultReconnectMin || pc.reconnectMax != monitor.DefaultReconnectMax {
		t.Errorf("reconnect = %v..%v, want %v..%v",
			pc.reconnectMin, pc.reconnectMax, monitor.DefaultReconnectMin, monitor.DefaultReconnectMax)
	}
	if pc.scanTimeout != defaultScanTimeout {
		t.Errorf("scanTimeout = %v, want %v", pc.scanTimeout, defaultScanTimeout)
	}
	if pc.Device() != "" {
		t.Errorf("Device() = %q, want empty", pc.Device())
	}
	if pc.linkFactory == nil || pc.scanner == nil || pc.selector == nil {
		t.Error("New() should fill in link factory, scanner and selector")
	}
}

func TestNew_OptionErrors(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"empty device", WithDevice("  "), "device address cannot be empty"},
		{"empty host", WithHost(""), "host cannot be empty"},
		{"port zero", WithPort(0), "port must be between"},
		{"port too high", WithPort(65536), "port must be between"},
		{"zero broadcast timeout", WithBroadcastTimeout(0), "broadcast timeout must be positive"},
		{"zero reconnect min", WithReconnect(0, time.Second), "reconnect minimum must be positive"},
		{"max below min", WithReconnect(2*time.Second, time.Second), "must not be below the minimum"},
		{"zero scan timeout", WithScanTimeout(0), "scan timeout must be positive"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
		{"nil link factory", WithLinkFactory(nil), "link factory cannot be nil"},
		{"nil scanner", WithScanner(nil), "scanner cannot be nil"},
		{"nil selector", WithDeviceSelector(nil), "device selector cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_AllOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sel := func(_ context.Context, d []Device) (Device, error) { return d[len(d)-1], nil }

	pc, err := New(
		WithDevice(" AA:BB:CC:DD:EE:FF "),
		WithNameFilter(" polar "),
		WithHost("0.0.0.0"),
		WithPort(9000),
		WithBroadcastTimeout(250*time.Millisecond),
		WithReconnect(2*time.Second, 10*time.Second),
		WithScanTimeout(3*time.Second),
		WithLogger(logger),
		WithScanner(&fakeScanner{}),
		WithDeviceSelector(sel),
		WithSampleCallback(func(Sample) {}),
		WithStatusCallback(func(Status, string) {}),
		WithTitle("Ward 7"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if pc.Device() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Device() = %q, want trimmed address", pc.Device())
	}
	if pc.nameFilter != "polar" {
		t.Errorf("nameFilter = %q, want %q", pc.nameFilter, "polar")
	}
	if pc.host != "0.0.0.0" || pc.Port() != 9000 {
		t.Errorf("listen = %s:%d, want 0.0.0.0:9000", pc.host, pc.Port())
	}
	if pc.broadcastTimeout != 250*time.Millisecond {
		t.Errorf("broadcastTimeout = %v, want 250ms", pc.broadcastTimeout)
	}
	if pc.reconnectMin != 2*time.Second || pc.reconnectMax != 10*time.Second {
		t.Errorf("reconnect = %v..%v, want 2s..10s", pc.reconnectMin, pc.reconnectMax)
	}
	if pc.scanTimeout != 3*time.Second {
		t.Errorf("scanTimeout = %v, want 3s", pc.scanTimeout)
	}
	if pc.logger != logger {
		t.Error("logger was not applied")
	}
	if len(pc.sampleCallbacks) != 1 || len(pc.statusCallbacks) != 1 {
		t.Errorf("callbacks = %d/%d, want 1/1", len(pc.sampleCallbacks), len(pc.statusCallbacks))
	}
	if pc.title != "Ward 7" {
		t.Errorf("title = %q, want %q", pc.title, "Ward 7")
	}
}

func TestWithReconnect_EqualBounds(t *testing.T) {
	pc, err := New(WithReconnect(time.Second, time.Second))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if pc.reconnectMin != pc.reconnectMax {
		t.Errorf("reconnect = %v..%v, want equal bounds", pc.reconnectMin, pc.reconnectMax)
	}
}

func TestFirstDevice(t *testing.T) {
	devices := []Device{{Address: "a", Name: "A"}, {Address: "b", Name: "B"}}
	got, err := firstDevice(context.Background(), devices)
	if err != nil {
		t.Fatalf("firstDevice() error = %v", err)
	}
	if got.Address != "a" {
		t.Errorf("firstDevice() = %v, want %v", got, devices[0])
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusScanning, "scanning"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusDisconnected, "disconnected"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String() = %v, want %v", got, tt.want)
		}
	}
}

func TestWithAdvertise_InstanceName(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"disabled", nil, ""},
		{"explicit", []Option{WithAdvertise("Bike Strap")}, "Bike Strap"},
		{"falls back to title", []Option{WithTitle("Ward 7"), WithAdvertise("  ")}, "Ward 7"},
		{"falls back to default", []Option{WithAdvertise("")}, "PulseCast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := New(tt.opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if pc.advertiseName != tt.want {
				t.Errorf("advertiseName = %q, want %q", pc.advertiseName, tt.want)
			}
		})
	}
}
