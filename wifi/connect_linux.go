package wifi

import (
	errw "github.com/pkg/errors"
	gnm "github.com/viamrobotics/gonetworkmanager/v2"

	"github.com/pidevelop/provision/provisioning"
)

// Connect builds a connection profile for ssid and asks NetworkManager to
// add and activate it. Activation runs in the background: a Requested
// result only means NetworkManager accepted the profile, and the daemon
// learns about actual success through the address monitor.
func (m *Manager) Connect(ssid, psk string) provisioning.ConnectResult {
	m.logger.Infof("wifi_connect: starting ssid=%s", ssid)

	wifiDev, err := m.wifiDevice()
	if err != nil {
		m.logger.Error(errw.Wrap(err, "wifi_connect"))
		return provisioning.ConnectFailed
	}

	if _, err := m.nm.AddAndActivateConnection(connectionSettings(ssid, psk), wifiDev); err != nil {
		m.logger.Error(errw.Wrapf(err, "wifi_connect: activating %s", ssid))
		return provisioning.ConnectFailed
	}

	return provisioning.ConnectRequested
}

// connectionSettings generates the NetworkManager profile for a wifi
// network. An empty psk means an open network, so no security section.
func connectionSettings(ssid, psk string) gnm.ConnectionSettings {
	settings := gnm.ConnectionSettings{
		"connection": {
			"id":          ssid,
			"type":        "802-11-wireless",
			"autoconnect": true,
		},
		"802-11-wireless": {
			"mode": "infrastructure",
			"ssid": []byte(ssid),
		},
		"ipv4": {
			"method": "auto",
		},
		"ipv6": {
			"method": "auto",
		},
	}

	if psk != "" {
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      psk,
		}
	}

	return settings
}
