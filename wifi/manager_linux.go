// Package wifi is the network-management collaborator: scanning and
// connecting through NetworkManager, and watching the kernel for the IPv4
// address that proves a connect attempt worked.
package wifi

import (
	"sort"
	"sync/atomic"
	"time"

	semver "github.com/Masterminds/semver/v3"
	errw "github.com/pkg/errors"
	gnm "github.com/viamrobotics/gonetworkmanager/v2"
	"go.uber.org/zap"
)

var (
	// ErrNM is returned when NetworkManager is missing or too old.
	ErrNM = errw.New("NetworkManager does not exist or is older than v1.30.0")
	// ErrNoWifi is returned when no wireless device matches the configured
	// interface.
	ErrNoWifi = errw.New("no wifi device found")
)

// Manager talks to NetworkManager for one wireless interface.
type Manager struct {
	logger *zap.SugaredLogger
	nm     gnm.NetworkManager
	iface  string
	settle time.Duration

	// busy guard: at most one scan in flight, extras dropped not queued
	scanBusy atomic.Bool

	// replaced in tests
	scanFn func() ([]string, error)
}

// NewManager connects to NetworkManager and verifies it is recent enough to
// trust. Failure here is startup-fatal for the daemon.
func NewManager(logger *zap.SugaredLogger, iface string, settle time.Duration) (*Manager, error) {
	nm, err := gnm.NewNetworkManager()
	if err != nil {
		logger.Error(err)
		return nil, ErrNM
	}

	ver, err := nm.GetPropertyVersion()
	if err != nil {
		logger.Error(err)
		return nil, ErrNM
	}
	logger.Infof("Found NetworkManager version: %s", ver)

	sv, err := semver.NewVersion(ver)
	if err != nil {
		logger.Error(err)
		return nil, ErrNM
	}
	if !sv.GreaterThanEqual(semver.MustParse("1.30.0")) {
		return nil, ErrNM
	}

	m := &Manager{
		logger: logger,
		nm:     nm,
		iface:  iface,
		settle: settle,
	}
	m.scanFn = m.scanOnce
	return m, nil
}

// Scan runs one scan cycle and returns SSIDs ranked by best signal
// strength. A scan already in flight causes the request to be dropped with
// a warning; scan failures yield an empty list, never an error.
func (m *Manager) Scan() []string {
	if !m.scanBusy.CompareAndSwap(false, true) {
		m.logger.Warn("wifi_scan: ignored (busy)")
		return nil
	}
	defer m.scanBusy.Store(false)

	ssids, err := m.scanFn()
	if err != nil {
		m.logger.Warn(errw.Wrap(err, "wifi_scan"))
		return nil
	}
	return ssids
}

func (m *Manager) scanOnce() ([]string, error) {
	wifiDev, err := m.wifiDevice()
	if err != nil {
		return nil, err
	}

	if err := wifiDev.RequestScan(); err != nil {
		m.logger.Warn(errw.Wrap(err, "wifi_scan: scan request failed, using cached results"))
	}

	// Let scan results populate. This blocks the event loop for the
	// duration, which is an accepted trade-off on this device.
	time.Sleep(m.settle)

	aps, err := wifiDev.GetAccessPoints()
	if err != nil {
		return nil, errw.Wrap(err, "listing access points")
	}

	best := map[string]uint8{}
	for _, ap := range aps {
		ssid, err := ap.GetPropertySSID()
		if err != nil {
			m.logger.Warn(errw.Wrap(err, "getting ssid of discovered network"))
			continue
		}
		if ssid == "" {
			continue
		}

		strength, err := ap.GetPropertyStrength()
		if err != nil {
			m.logger.Warn(errw.Wrap(err, "getting signal strength of discovered network"))
			continue
		}

		if prev, ok := best[ssid]; !ok || strength > prev {
			best[ssid] = strength
		}
	}

	ssids := rankSSIDs(best)
	m.logger.Infof("wifi_scan: found %d SSIDs", len(ssids))
	return ssids, nil
}

// rankSSIDs orders by descending strength, ties broken by name so results
// are stable between scans.
func rankSSIDs(best map[string]uint8) []string {
	ssids := make([]string, 0, len(best))
	for ssid := range best {
		ssids = append(ssids, ssid)
	}
	sort.Slice(ssids, func(i, j int) bool {
		if best[ssids[i]] != best[ssids[j]] {
			return best[ssids[i]] > best[ssids[j]]
		}
		return ssids[i] < ssids[j]
	})
	return ssids
}

func (m *Manager) wifiDevice() (gnm.DeviceWireless, error) {
	devices, err := m.nm.GetDevices()
	if err != nil {
		return nil, errw.Wrap(err, "listing NetworkManager devices")
	}

	for _, device := range devices {
		devType, err := device.GetPropertyDeviceType()
		if err != nil {
			return nil, errw.Wrap(err, "getting device type")
		}
		if devType != gnm.NmDeviceTypeWifi {
			continue
		}

		wifiDev, ok := device.(gnm.DeviceWireless)
		if !ok {
			return nil, errw.New("cannot cast to wifi device")
		}

		ifName, err := wifiDev.GetPropertyInterface()
		if err != nil {
			return nil, errw.Wrap(err, "getting device interface name")
		}
		if ifName == m.iface {
			return wifiDev, nil
		}
	}

	return nil, errw.Wrapf(ErrNoWifi, "interface %s", m.iface)
}

// ActiveDetails reports the active SSID and first IPv4 address of the
// managed interface. ok is false while the interface has no address.
func (m *Manager) ActiveDetails() (string, string, bool) {
	wifiDev, err := m.wifiDevice()
	if err != nil {
		m.logger.Debug(errw.Wrap(err, "active details"))
		return "", "", false
	}

	ssid := "unknown"
	if ap, err := wifiDev.GetPropertyActiveAccessPoint(); err == nil && ap != nil {
		if s, err := ap.GetPropertySSID(); err == nil && s != "" {
			ssid = s
		}
	}

	ip4, err := wifiDev.GetPropertyIP4Config()
	if err != nil || ip4 == nil {
		return "", "", false
	}
	addrs, err := ip4.GetPropertyAddressData()
	if err != nil || len(addrs) == 0 {
		return "", "", false
	}

	return ssid, addrs[0].Address, true
}
