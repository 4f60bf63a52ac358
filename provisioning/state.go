// Package provisioning holds the Wi-Fi provisioning state machine and the
// command protocol spoken over the write-only command characteristic.
package provisioning

import (
	dbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// State is the single authoritative provisioning phase, exposed to clients
// through the state characteristic.
type State string

const (
	StateUnconfigured State = "UNCONFIGURED"
	StateScanning     State = "SCANNING"
	StateScanComplete State = "SCAN_COMPLETE"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// ConnectResult is the immediate outcome of handing credentials to the
// Wi-Fi collaborator. Requested means activation was accepted and actual
// success will only be observed via the IPv4-ready event.
type ConnectResult int

const (
	ConnectFailed ConnectResult = iota
	ConnectRequested
)

// Wifi is the network-management collaborator.
type Wifi interface {
	// Scan returns SSIDs ranked by descending signal strength, deduplicated
	// by best strength. Empty on failure; never an error.
	Scan() []string
	// Connect hands credentials to the network manager.
	Connect(ssid, psk string) ConnectResult
	// ActiveDetails reports the active SSID and IPv4 address of the managed
	// interface, if it currently has one.
	ActiveDetails() (ssid, ip string, ok bool)
}

// Publisher pushes a payload to a characteristic's subscribers.
type Publisher interface {
	Publish(path dbus.ObjectPath, value []byte)
}

// Machine owns the provisioning state. All methods run on the event loop:
// each transition publishes its payload before the next event is accepted.
type Machine struct {
	logger    *zap.SugaredLogger
	wifi      Wifi
	pub       Publisher
	statePath dbus.ObjectPath
	budget    int

	state State

	// last observed connection details, for the CONNECTED payload
	ssid string
	ip   string
}

func NewMachine(logger *zap.SugaredLogger, wifi Wifi, pub Publisher, statePath dbus.ObjectPath, budget int) *Machine {
	return &Machine{
		logger:    logger,
		wifi:      wifi,
		pub:       pub,
		statePath: statePath,
		budget:    budget,
		state:     StateUnconfigured,
	}
}

// State returns the current provisioning state.
func (m *Machine) State() State {
	return m.state
}

// StatePayload is the plain {"state":...} document served on reads.
func (m *Machine) StatePayload() []byte {
	return buildStatePayload(m.state)
}

func (m *Machine) setState(next State) {
	if m.state != next {
		m.logger.Infof("provisioning state %s -> %s", m.state, next)
	}
	m.state = next
	m.pub.Publish(m.statePath, buildStatePayload(next))
}

// HandleCommand decodes and routes one payload written to the command
// characteristic. Malformed or unknown commands are dropped with a warning;
// the channel is write-only, so there is nothing to reply to.
func (m *Machine) HandleCommand(raw []byte) {
	if len(raw) == 0 {
		m.logger.Warn("command write: empty payload")
		return
	}

	m.logger.Infof("command write: %s", raw)

	cmd, err := parseCommand(raw)
	if err != nil {
		m.logger.Warnf("command dropped: %v", err)
		return
	}

	switch cmd.Op {
	case opWifiScan:
		m.handleScan()
	case opWifiConnect:
		if cmd.SSID == "" {
			m.logger.Warn("wifi_connect: missing ssid")
			return
		}
		m.handleConnect(cmd.SSID, cmd.PSK)
	default:
		m.logger.Warnf("command dropped: unknown op %q", cmd.Op)
	}
}

// handleScan runs a full scan cycle. Synchronous: the loop is blocked for
// the scan's duration, which is an accepted trade-off for this device.
func (m *Machine) handleScan() {
	m.setState(StateScanning)

	ssids := m.wifi.Scan()
	m.logger.Infof("wifi_scan: completed, ssid_count=%d", len(ssids))

	m.pub.Publish(m.statePath, buildScanPayload(ssids, m.budget))
	m.setState(StateScanComplete)
}

// handleConnect hands credentials off. Success is only ever observed via
// the IPv4-ready event; an accepted request parks the machine in CONNECTING.
func (m *Machine) handleConnect(ssid, psk string) {
	m.setState(StateConnecting)

	if m.wifi.Connect(ssid, psk) != ConnectRequested {
		m.setState(StateUnconfigured)
	}
}

// HandleIPv4Ready is the external signal that the managed interface got an
// IPv4 address. Delivered via the event loop by the address monitor, or
// synthesized on subscribe when the device is already provisioned.
func (m *Machine) HandleIPv4Ready(ssid, ip string) {
	m.logger.Infof("wifi connected ssid=%s ip=%s", ssid, ip)
	m.state = StateConnected
	m.ssid = ssid
	m.ip = ip
	m.pub.Publish(m.statePath, buildConnectedPayload(ssid, ip))
}

// HandleIPv4Lost is observed but deliberately does not transition state;
// transient DHCP renews would otherwise flap the client UI.
func (m *Machine) HandleIPv4Lost() {
	m.logger.Info("interface IPv4 address removed")
}

// HandleSubscription publishes current truth when a client subscribes, so a
// device provisioned before this session immediately reports CONNECTED
// without being asked anything.
func (m *Machine) HandleSubscription(enabled bool) {
	if !enabled {
		m.logger.Info("state notifications disabled by client")
		return
	}
	m.logger.Info("state notifications enabled by client")

	if ssid, ip, ok := m.wifi.ActiveDetails(); ok {
		m.HandleIPv4Ready(ssid, ip)
		return
	}
	m.pub.Publish(m.statePath, buildStatePayload(m.state))
}
