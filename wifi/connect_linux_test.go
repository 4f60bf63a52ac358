package wifi

import (
	"testing"

	"go.viam.com/test"
)

func TestConnectionSettingsSecured(t *testing.T) {
	settings := connectionSettings("Home", "hunter22")

	test.That(t, settings["connection"]["id"], test.ShouldEqual, "Home")
	test.That(t, settings["connection"]["type"], test.ShouldEqual, "802-11-wireless")
	test.That(t, settings["connection"]["autoconnect"], test.ShouldEqual, true)
	test.That(t, settings["802-11-wireless"]["mode"], test.ShouldEqual, "infrastructure")
	test.That(t, settings["802-11-wireless"]["ssid"], test.ShouldResemble, []byte("Home"))
	test.That(t, settings["ipv4"]["method"], test.ShouldEqual, "auto")
	test.That(t, settings["ipv6"]["method"], test.ShouldEqual, "auto")

	security, ok := settings["802-11-wireless-security"]
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, security["key-mgmt"], test.ShouldEqual, "wpa-psk")
	test.That(t, security["psk"], test.ShouldEqual, "hunter22")
}

func TestConnectionSettingsOpenNetwork(t *testing.T) {
	settings := connectionSettings("OpenCafe", "")

	test.That(t, settings["802-11-wireless"]["ssid"], test.ShouldResemble, []byte("OpenCafe"))
	_, ok := settings["802-11-wireless-security"]
	test.That(t, ok, test.ShouldBeFalse)
}
