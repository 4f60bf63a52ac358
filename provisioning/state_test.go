package provisioning

import (
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

const testStatePath dbus.ObjectPath = "/org/bluez/provision/char1"

type fakeWifi struct {
	scanResult    []string
	scanCalls     int
	connectResult ConnectResult
	connectSSID   string
	connectPSK    string

	activeSSID string
	activeIP   string
	active     bool
}

func (w *fakeWifi) Scan() []string {
	w.scanCalls++
	return w.scanResult
}

func (w *fakeWifi) Connect(ssid, psk string) ConnectResult {
	w.connectSSID = ssid
	w.connectPSK = psk
	return w.connectResult
}

func (w *fakeWifi) ActiveDetails() (string, string, bool) {
	return w.activeSSID, w.activeIP, w.active
}

type fakePublisher struct {
	payloads []string
}

func (p *fakePublisher) Publish(path dbus.ObjectPath, value []byte) {
	p.payloads = append(p.payloads, string(value))
}

func testMachine(t *testing.T, wifi *fakeWifi) (*Machine, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return NewMachine(zaptest.NewLogger(t).Sugar(), wifi, pub, testStatePath, 200), pub
}

func TestMachineStartsUnconfigured(t *testing.T) {
	m, pub := testMachine(t, &fakeWifi{})
	test.That(t, m.State(), test.ShouldEqual, StateUnconfigured)
	test.That(t, string(m.StatePayload()), test.ShouldEqual, `{"state":"UNCONFIGURED"}`)
	test.That(t, pub.payloads, test.ShouldBeEmpty)
}

func TestScanCommandPublishesFullCycle(t *testing.T) {
	wifi := &fakeWifi{scanResult: []string{"Home", "Cafe"}}
	m, pub := testMachine(t, wifi)

	m.HandleCommand([]byte(`{"op":"wifi_scan"}`))

	test.That(t, wifi.scanCalls, test.ShouldEqual, 1)
	test.That(t, m.State(), test.ShouldEqual, StateScanComplete)
	test.That(t, pub.payloads, test.ShouldResemble, []string{
		`{"state":"SCANNING"}`,
		`{"op":"wifi_scan","ssids":["Home","Cafe"]}`,
		`{"state":"SCAN_COMPLETE"}`,
	})
}

func TestConnectCommandFailureReturnsToUnconfigured(t *testing.T) {
	wifi := &fakeWifi{connectResult: ConnectFailed}
	m, pub := testMachine(t, wifi)

	m.HandleCommand([]byte(`{"op":"wifi_connect","ssid":"Home","psk":"secret"}`))

	test.That(t, wifi.connectSSID, test.ShouldEqual, "Home")
	test.That(t, wifi.connectPSK, test.ShouldEqual, "secret")
	test.That(t, m.State(), test.ShouldEqual, StateUnconfigured)
	test.That(t, pub.payloads, test.ShouldResemble, []string{
		`{"state":"CONNECTING"}`,
		`{"state":"UNCONFIGURED"}`,
	})
}

func TestConnectCommandParksInConnectingUntilAddress(t *testing.T) {
	wifi := &fakeWifi{connectResult: ConnectRequested}
	m, pub := testMachine(t, wifi)

	m.HandleCommand([]byte(`{"op":"wifi_connect","ssid":"Home","psk":"secret"}`))
	test.That(t, m.State(), test.ShouldEqual, StateConnecting)
	test.That(t, pub.payloads, test.ShouldResemble, []string{`{"state":"CONNECTING"}`})

	// success is only observed via the address event
	m.HandleIPv4Ready("Home", "192.168.1.50")
	test.That(t, m.State(), test.ShouldEqual, StateConnected)
	test.That(t, pub.payloads[len(pub.payloads)-1], test.ShouldEqual,
		`{"state":"CONNECTED","ssid":"Home","ip":"192.168.1.50"}`)
}

func TestConnectCommandRequiresSSID(t *testing.T) {
	wifi := &fakeWifi{connectResult: ConnectRequested}
	m, pub := testMachine(t, wifi)

	m.HandleCommand([]byte(`{"op":"wifi_connect","psk":"secret"}`))
	test.That(t, m.State(), test.ShouldEqual, StateUnconfigured)
	test.That(t, pub.payloads, test.ShouldBeEmpty)
	test.That(t, wifi.connectSSID, test.ShouldEqual, "")
}

func TestMalformedCommandsAreDropped(t *testing.T) {
	m, pub := testMachine(t, &fakeWifi{})

	m.HandleCommand(nil)
	m.HandleCommand([]byte(`{}`))
	m.HandleCommand([]byte(`{"op":"reboot"}`))
	m.HandleCommand([]byte(`garbage`))

	test.That(t, m.State(), test.ShouldEqual, StateUnconfigured)
	test.That(t, pub.payloads, test.ShouldBeEmpty)
}

func TestIPv4LostDoesNotChangeState(t *testing.T) {
	m, pub := testMachine(t, &fakeWifi{})

	m.HandleIPv4Ready("Home", "192.168.1.50")
	test.That(t, m.State(), test.ShouldEqual, StateConnected)

	published := len(pub.payloads)
	m.HandleIPv4Lost()
	test.That(t, m.State(), test.ShouldEqual, StateConnected)
	test.That(t, len(pub.payloads), test.ShouldEqual, published)
}

func TestSubscribePublishesCurrentState(t *testing.T) {
	m, pub := testMachine(t, &fakeWifi{})

	m.HandleSubscription(true)
	test.That(t, pub.payloads, test.ShouldResemble, []string{`{"state":"UNCONFIGURED"}`})

	m.HandleSubscription(false)
	test.That(t, len(pub.payloads), test.ShouldEqual, 1)
}

func TestSubscribeOnProvisionedDeviceReportsConnected(t *testing.T) {
	wifi := &fakeWifi{activeSSID: "Home", activeIP: "192.168.1.50", active: true}
	m, pub := testMachine(t, wifi)

	m.HandleSubscription(true)
	test.That(t, m.State(), test.ShouldEqual, StateConnected)
	test.That(t, pub.payloads, test.ShouldResemble, []string{
		`{"state":"CONNECTED","ssid":"Home","ip":"192.168.1.50"}`,
	})
}

func TestHandlersBindMachine(t *testing.T) {
	wifi := &fakeWifi{}
	m, pub := testMachine(t, wifi)

	state := m.StateHandler()
	test.That(t, string(state.ReadValue()), test.ShouldEqual, `{"state":"UNCONFIGURED"}`)

	command := m.CommandHandler()
	command.WriteValue([]byte(`{"op":"wifi_scan"}`))
	test.That(t, wifi.scanCalls, test.ShouldEqual, 1)
	test.That(t, m.State(), test.ShouldEqual, StateScanComplete)

	state.SubscriptionChanged(true)
	test.That(t, pub.payloads[len(pub.payloads)-1], test.ShouldEqual, `{"state":"SCAN_COMPLETE"}`)
}
