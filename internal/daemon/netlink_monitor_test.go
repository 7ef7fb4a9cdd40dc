package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestNewHotplugMonitor(t *testing.T) {
	t.Run("no targets returns nil", func(t *testing.T) {
		if m := newHotplugMonitor(nil); m != nil {
			t.Error("expected nil monitor without targets")
		}
	})

	t.Run("incomplete targets are skipped", func(t *testing.T) {
		m := newHotplugMonitor(nil,
			hotplugTarget{device: "", component: "panel", reinit: func() {}},
			hotplugTarget{device: "/dev/i2c-1", component: "panel"},
		)
		if m != nil {
			t.Error("expected nil monitor when every target is incomplete")
		}
	})

	t.Run("valid target creates monitor", func(t *testing.T) {
		m := newHotplugMonitor(nil, hotplugTarget{device: "/dev/i2c-1", component: "panel", reinit: func() {}})
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if _, ok := m.targets["/dev/i2c-1"]; !ok {
			t.Errorf("expected /dev/i2c-1 target, got %v", m.targets)
		}
	})
}

func TestHotplugMonitorNilSafety(t *testing.T) {
	var m *hotplugMonitor
	if m.Running() {
		t.Error("expected Running() to return false for nil monitor")
	}
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor should return nil, got: %v", err)
	}
}

func TestHotplugMonitorStopIdempotency(t *testing.T) {
	m := newHotplugMonitor(nil, hotplugTarget{device: "/dev/i2c-1", component: "panel", reinit: func() {}})
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Error("expected Running() to return false after Stop on unstarted monitor")
	}
}

func TestHotplugMatcher(t *testing.T) {
	m := newHotplugMonitor(nil, hotplugTarget{device: "/dev/i2c-1", component: "panel", reinit: func() {}})
	matcher := m.buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	tests := []struct {
		name  string
		event netlink.UEvent
		want  bool
	}{
		{"i2c add", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "i2c-dev"}}, true},
		{"spidev add", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "spidev"}}, true},
		{"i2c remove", netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "i2c-dev"}}, true},
		{"i2c change", netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "i2c-dev"}}, false},
		{"block add", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}, false},
		{"i2c adapter", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "i2c"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matcher.Evaluate(tt.event); got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHotplugHandleEvent(t *testing.T) {
	var panelCalls, knobCalls int
	m := newHotplugMonitor(nil,
		hotplugTarget{device: "/dev/i2c-1", component: "panel", reinit: func() { panelCalls++ }},
		hotplugTarget{device: "/dev/spidev0.1", component: "knob", reinit: func() { knobCalls++ }},
	)

	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "i2c-2"}})
	if panelCalls != 0 || knobCalls != 0 {
		t.Fatalf("unexpected reinit for unwatched events: panel=%d knob=%d", panelCalls, knobCalls)
	}

	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "i2c-1"}})
	if panelCalls != 1 {
		t.Fatalf("expected panel reinit, got %d", panelCalls)
	}

	m.handleEvent(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "/dev/i2c-1"}})
	if panelCalls != 1 {
		t.Fatalf("remove should not reinit, got %d", panelCalls)
	}

	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVPATH": "/devices/platform/soc/fe204000.spi/spi_master/spi0/spi0.1/spidev/spidev0.1"},
	})
	if knobCalls != 1 {
		t.Fatalf("expected knob reinit from DEVPATH, got %d", knobCalls)
	}
}

func TestExtractDeviceName(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"DEVNAME": "/dev/i2c-1"}, "/dev/i2c-1"},
		{map[string]string{"DEVNAME": "spidev0.0"}, "/dev/spidev0.0"},
		{map[string]string{"DEVPATH": "/devices/platform/i2c-dev/i2c-3"}, "/dev/i2c-3"},
		{map[string]string{}, ""},
	}
	for _, tt := range tests {
		if got := extractDeviceName(netlink.UEvent{Env: tt.env}); got != tt.want {
			t.Fatalf("extractDeviceName(%v) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
