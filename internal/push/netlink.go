package push

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"signage/internal/logging"
)

// NetlinkMonitor listens for kernel network interface uevents and invokes
// onChange so connectivity is re-checked without waiting for the next probe
// tick.
type NetlinkMonitor struct {
	logger   *slog.Logger
	onChange func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetlinkMonitor creates a monitor. onChange is typically Prober.Trigger.
func NewNetlinkMonitor(logger *slog.Logger, onChange func()) *NetlinkMonitor {
	return &NetlinkMonitor{
		logger:   logging.NewComponentLogger(logger, "netlink-monitor"),
		onChange: onChange,
	}
}

// Start begins listening. A socket failure is logged and otherwise ignored;
// the periodic prober still covers connectivity.
func (m *NetlinkMonitor) Start(ctx context.Context) error {
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
		m.logger.Warn("failed to connect to netlink socket; connectivity will rely on periodic probes",
			logging.Error(err),
			logging.EventType("netlink_connect_failed"),
			logging.ErrorHint("ensure the daemon has permission to access netlink sockets"),
			logging.Impact("network changes detected only at the probe interval"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("netlink monitor started",
		logging.EventType("netlink_monitor_started"),
	)
	return nil
}

// Stop shuts the monitor down.
func (m *NetlinkMonitor) Stop() {
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

	m.logger.Info("netlink monitor stopped",
		logging.EventType("netlink_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *NetlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *NetlinkMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

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
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.EventType("netlink_monitor_error"),
				logging.ErrorHint("check kernel netlink subsystem"),
				logging.Impact("network changes may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=net with ACTION=add|remove|change|online|offline.
func buildMatcher() netlink.Matcher {
	action := "^(add|remove|change|online|offline)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^net$",
		},
	})
	return rules
}

func (m *NetlinkMonitor) handleEvent(uevent netlink.UEvent) {
	iface := uevent.Env["INTERFACE"]
	if iface == "lo" {
		return
	}
	m.logger.Debug("network interface event",
		logging.String("interface", iface),
		logging.String("action", string(uevent.Action)),
	)
	if m.onChange != nil {
		m.onChange()
	}
}
