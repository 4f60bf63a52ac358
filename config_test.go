package provision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(content), 0o644)
	test.That(t, err, test.ShouldBeNil)
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, DefaultConfig())
	test.That(t, cfg.BLE.AdapterAlias, test.ShouldEqual, "PiDevelopDotcom")
	test.That(t, cfg.Wifi.Interface, test.ShouldEqual, "wlan0")
	test.That(t, cfg.Wifi.NotifyBudgetBytes, test.ShouldEqual, 200)
}

func TestLoadConfigPartialOverride(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	// comments are allowed, and unset fields keep their defaults
	path := writeTestConfig(t, `{
		// custom radio on this board
		"wifi": {
			"interface": "wlp2s0",
			"scan_settle_ms": 1200,
			"notify_budget_bytes": 200
		}
	}`)

	cfg, err := LoadConfig(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Wifi.Interface, test.ShouldEqual, "wlp2s0")
	test.That(t, cfg.Wifi.ScanSettle(), test.ShouldEqual, 1200*time.Millisecond)
	test.That(t, cfg.BLE.ServiceUUID, test.ShouldEqual, DefaultConfig().BLE.ServiceUUID)
	test.That(t, cfg.DeviceInfo.Company, test.ShouldEqual, "PiDevelop.com")
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	path := writeTestConfig(t, `{"wifi": `)
	_, err := LoadConfig(path, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateRejectsBadUUID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BLE.StateUUID = "not-a-uuid"
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "ble.state_uuid")
}

func TestValidateRejectsEmptyAlias(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BLE.AdapterAlias = ""
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsEmptyInterface(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wifi.Interface = ""
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsNegativeSettle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wifi.ScanSettleMS = -1
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestValidateRejectsTinyBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wifi.NotifyBudgetBytes = 16
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)

	cfg.Wifi.NotifyBudgetBytes = 32
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}
