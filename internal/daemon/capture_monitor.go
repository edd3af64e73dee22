package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"tapearc/internal/config"
	"tapearc/internal/logging"
)

// captureMonitor listens for udev netlink events on the configured SDI
// capture device node, so the daemon can surface card availability without
// polling the device itself.
type captureMonitor struct {
	logger   *slog.Logger
	device   string
	onChange func(present bool)

	mu        sync.Mutex
	conn      *netlink.UEventConn
	quit      chan struct{}
	running   bool
	available bool
}

func newCaptureMonitor(cfg *config.Config, logger *slog.Logger, onChange func(present bool)) *captureMonitor {
	if cfg == nil {
		return nil
	}
	device := strings.TrimSpace(cfg.Capture.Device)
	if device == "" {
		return nil
	}
	return &captureMonitor{
		logger:   logging.NewComponentLogger(logger, "capture-monitor"),
		device:   device,
		onChange: onChange,
		// Assume the card is present until an event says otherwise; the
		// capture collaborator reports the authoritative failure anyway.
		available: true,
	}
}

// Start begins listening for udev netlink events.
func (m *captureMonitor) Start(ctx context.Context) error {
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
		m.logger.Warn("failed to connect to netlink socket; capture device availability unmonitored",
			logging.Args(
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_connect_failed"),
				logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			)...)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("capture device monitor started",
		logging.Args(
			logging.String(logging.FieldEventType, "capture_monitor_started"),
			logging.String("device", m.device),
		)...)
	return nil
}

// Stop shuts down the monitor.
func (m *captureMonitor) Stop() {
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

	m.logger.Info("capture device monitor stopped",
		logging.Args(logging.String(logging.FieldEventType, "capture_monitor_stopped"))...)
}

// Running reports whether the monitor is active.
func (m *captureMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Available reports the last observed presence of the capture device.
func (m *captureMonitor) Available() bool {
	if m == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *captureMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Args(
					logging.Error(err),
					logging.String(logging.FieldEventType, "netlink_monitor_error"),
					logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				)...)
		}
	}
}

// buildMatcher matches add and remove events for video capture nodes.
func (m *captureMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *captureMonitor) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" || devname != m.device {
		return
	}

	present := uevent.Action != netlink.REMOVE
	m.setAvailable(present)

	if present {
		m.logger.Info("capture device present",
			logging.Args(
				logging.String(logging.FieldEventType, "capture_device_present"),
				logging.String("device", devname),
			)...)
	} else {
		m.logger.Warn("capture device removed",
			logging.Args(
				logging.String(logging.FieldEventType, "capture_device_removed"),
				logging.String("device", devname),
				logging.String(logging.FieldErrorHint, "check the SDI card and its driver"),
			)...)
	}

	if m.onChange != nil {
		m.onChange(present)
	}
}

func (m *captureMonitor) setAvailable(present bool) {
	m.mu.Lock()
	m.available = present
	m.mu.Unlock()
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/dev/") {
			return "/dev/" + devname
		}
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
