package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"tapearc/internal/config"
)

func monitorConfig(device string) *config.Config {
	cfg := &config.Config{}
	cfg.Capture.Device = device
	return cfg
}

func TestNewCaptureMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newCaptureMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("empty device returns nil", func(t *testing.T) {
		if m := newCaptureMonitor(monitorConfig(""), nil, nil); m != nil {
			t.Error("expected nil monitor for empty device")
		}
	})

	t.Run("configured device creates monitor", func(t *testing.T) {
		m := newCaptureMonitor(monitorConfig("/dev/video2"), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if m.device != "/dev/video2" {
			t.Errorf("device = %s", m.device)
		}
		if !m.Available() {
			t.Error("device should start out assumed present")
		}
	})
}

func TestCaptureMonitorNilSafety(t *testing.T) {
	var m *captureMonitor
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor: %v", err)
	}
	if m.Running() {
		t.Error("nil monitor reports running")
	}
	if !m.Available() {
		t.Error("nil monitor should report the device available")
	}
}

func TestCaptureMonitorMatcher(t *testing.T) {
	m := newCaptureMonitor(monitorConfig("/dev/video2"), nil, nil)
	matcher := m.buildMatcher()

	add := netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "video2"},
	}
	if !matcher.Evaluate(add) {
		t.Error("expected matcher to accept video4linux add")
	}

	remove := netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "video2"},
	}
	if !matcher.Evaluate(remove) {
		t.Error("expected matcher to accept video4linux remove")
	}

	block := netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "block", "DEVNAME": "sda1"},
	}
	if matcher.Evaluate(block) {
		t.Error("expected matcher to reject non-video subsystems")
	}
}

func TestCaptureMonitorHandleEvent(t *testing.T) {
	var changes []bool
	m := newCaptureMonitor(monitorConfig("/dev/video2"), nil, func(present bool) {
		changes = append(changes, present)
	})

	// Other devices are ignored.
	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"DEVNAME": "video0"},
	})
	if !m.Available() || len(changes) != 0 {
		t.Fatal("event for another device changed availability")
	}

	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"DEVNAME": "video2"},
	})
	if m.Available() {
		t.Fatal("remove event left the device available")
	}

	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "video2"},
	})
	if !m.Available() {
		t.Fatal("add event did not restore availability")
	}

	if len(changes) != 2 || changes[0] || !changes[1] {
		t.Fatalf("onChange calls = %v", changes)
	}
}

func TestExtractDeviceName(t *testing.T) {
	cases := []struct {
		name  string
		event netlink.UEvent
		want  string
	}{
		{
			name:  "devname with prefix",
			event: netlink.UEvent{Env: map[string]string{"DEVNAME": "/dev/video2"}},
			want:  "/dev/video2",
		},
		{
			name:  "bare devname",
			event: netlink.UEvent{Env: map[string]string{"DEVNAME": "video2"}},
			want:  "/dev/video2",
		},
		{
			name:  "devpath fallback",
			event: netlink.UEvent{Env: map[string]string{"DEVPATH": "/devices/pci0000:00/video4linux/video2"}},
			want:  "/dev/video2",
		},
		{
			name:  "no information",
			event: netlink.UEvent{Env: map[string]string{}},
			want:  "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractDeviceName(tc.event); got != tc.want {
				t.Errorf("extractDeviceName = %q, want %q", got, tc.want)
			}
		})
	}
}
