package daemon

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"faceplate/internal/logging"
)

// hotplugTarget binds a device node to the component that owns it.
type hotplugTarget struct {
	device    string
	component string
	reinit    func()
}

// hotplugMonitor listens for udev netlink events on the i2c-dev and spidev
// subsystems and reopens the owning component when its node reappears.
type hotplugMonitor struct {
	logger  *slog.Logger
	targets map[string]hotplugTarget

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newHotplugMonitor returns nil when there is nothing to watch.
func newHotplugMonitor(logger *slog.Logger, targets ...hotplugTarget) *hotplugMonitor {
	byDevice := make(map[string]hotplugTarget, len(targets))
	for _, target := range targets {
		if target.device == "" || target.reinit == nil {
			continue
		}
		byDevice[target.device] = target
	}
	if len(byDevice) == 0 {
		return nil
	}
	return &hotplugMonitor{
		logger:  logging.NewComponentLogger(logger, "hotplug-monitor"),
		targets: byDevice,
	}
}

// Start begins listening for udev netlink events.
func (m *hotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; hardware hotplug disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "reattached panel or knob needs a daemon restart"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.Int("devices", len(m.targets)),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *hotplugMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *hotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *hotplugMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug detection may be affected"),
			)
		}
	}
}

// buildMatcher matches add and remove events for i2c-dev and spidev nodes.
func (m *hotplugMonitor) buildMatcher() netlink.Matcher {
	action := "^(add|remove)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^(i2c-dev|spidev)$",
		},
	})
	return rules
}

func (m *hotplugMonitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	target, ok := m.targets[devname]
	if !ok {
		m.logger.Debug("ignoring event for unwatched device", logging.String(logging.FieldDevice, devname))
		return
	}

	switch uevent.Action {
	case netlink.ADD:
		m.logger.Info("hardware attached; reinitialising",
			logging.String(logging.FieldEventType, "hotplug_attached"),
			logging.String(logging.FieldDevice, devname),
			logging.String("target", target.component),
		)
		target.reinit()
	case netlink.REMOVE:
		logging.WarnWithContext(m.logger, "hardware removed", "hotplug_removed",
			logging.String(logging.FieldDevice, devname),
			logging.String("target", target.component),
			logging.String(logging.FieldErrorHint, "check the ribbon cable and dtoverlay settings"),
			logging.String(logging.FieldImpact, target.component+" unavailable until reattached"),
		)
	}
}

// extractDeviceName returns the absolute device node for a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := strings.TrimSpace(uevent.Env["DEVNAME"]); devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := strings.TrimSpace(uevent.Env["DEVPATH"])
	if devpath == "" {
		return ""
	}
	base := path.Base(devpath)
	if base == "." || base == "/" {
		return ""
	}
	return "/dev/" + base
}
