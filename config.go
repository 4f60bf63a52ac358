package provision

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	errw "github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// DefaultConfigFilePath is where the daemon looks for its config unless
// overridden on the command line.
const DefaultConfigFilePath = "/etc/provision/config.json"

// DeviceInfo is the vendor/project metadata served by the read-only
// device-info characteristic.
type DeviceInfo struct {
	Company     string `json:"company"`
	Developer   string `json:"developer"`
	ProjectName string `json:"project_name"`
}

// BLEConfig covers the advertised identity of the peripheral. The UUIDs are
// frozen protocol identifiers and only overridable for forks that run their
// own companion app.
type BLEConfig struct {
	AdapterAlias   string `json:"adapter_alias"`
	ServiceUUID    string `json:"service_uuid"`
	DeviceInfoUUID string `json:"device_info_uuid"`
	StateUUID      string `json:"state_uuid"`
	CommandUUID    string `json:"command_uuid"`
}

// WifiConfig covers the Wi-Fi collaborator.
type WifiConfig struct {
	// Interface is the wireless interface being provisioned.
	Interface string `json:"interface"`
	// ScanSettleMS is how long to wait after requesting a scan before
	// collecting access points.
	ScanSettleMS int `json:"scan_settle_ms"`
	// NotifyBudgetBytes caps the serialized SSID-list notification payload.
	NotifyBudgetBytes int `json:"notify_budget_bytes"`
}

// Config is the daemon configuration, loaded from a JSON (with comments)
// file at startup. Zero values are filled from DefaultConfig.
type Config struct {
	DeviceInfo DeviceInfo `json:"device_info"`
	BLE        BLEConfig  `json:"ble"`
	Wifi       WifiConfig `json:"wifi"`
}

func DefaultConfig() Config {
	return Config{
		DeviceInfo: DeviceInfo{
			Company:     "PiDevelop.com",
			Developer:   "james@pidevelop.com",
			ProjectName: "Provision BLE",
		},
		BLE: BLEConfig{
			AdapterAlias:   "PiDevelopDotcom",
			ServiceUUID:    "9a7d0000-7c2a-4f8e-9b32-9b3e6d4a0001",
			DeviceInfoUUID: "9a7d0000-7c2a-4f8e-9b32-9b3e6d4a0002",
			StateUUID:      "9a7d0000-7c2a-4f8e-9b32-9b3e6d4a0003",
			CommandUUID:    "9a7d0000-7c2a-4f8e-9b32-9b3e6d4a0004",
		},
		Wifi: WifiConfig{
			Interface:         "wlan0",
			ScanSettleMS:      700,
			NotifyBudgetBytes: 200,
		},
	}
}

// ScanSettle returns the scan settle delay as a duration.
func (c WifiConfig) ScanSettle() time.Duration {
	return time.Duration(c.ScanSettleMS) * time.Millisecond
}

// LoadConfig reads and validates the config file at path. A missing file is
// not an error: the defaults describe a stock device.
func LoadConfig(path string, logger *zap.SugaredLogger) (Config, error) {
	cfg := DefaultConfig()

	jsonBytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Infof("no config file at %s, using defaults", path)
			return cfg, nil
		}
		return cfg, errw.Wrapf(err, "reading %s", path)
	}

	if err := json.Unmarshal(jsonc.ToJSON(jsonBytes), &cfg); err != nil {
		return cfg, errw.Wrapf(err, "parsing %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errw.Wrapf(err, "validating %s", path)
	}

	return cfg, nil
}

// Validate checks the parts of the config that would otherwise fail in
// confusing ways deep inside bluez or NetworkManager.
func (c *Config) Validate() error {
	for name, val := range map[string]string{
		"ble.service_uuid":     c.BLE.ServiceUUID,
		"ble.device_info_uuid": c.BLE.DeviceInfoUUID,
		"ble.state_uuid":       c.BLE.StateUUID,
		"ble.command_uuid":     c.BLE.CommandUUID,
	} {
		if _, err := uuid.Parse(val); err != nil {
			return errw.Wrapf(err, "invalid %s", name)
		}
	}

	if c.BLE.AdapterAlias == "" {
		return errw.New("ble.adapter_alias may not be empty")
	}

	if c.Wifi.Interface == "" {
		return errw.New("wifi.interface may not be empty")
	}

	if c.Wifi.ScanSettleMS < 0 {
		return errw.New("wifi.scan_settle_ms may not be negative")
	}

	// Payloads below "[]}" plus one quoted entry cannot carry anything.
	if c.Wifi.NotifyBudgetBytes < 32 {
		return errw.Errorf("wifi.notify_budget_bytes too small: %d", c.Wifi.NotifyBudgetBytes)
	}

	return nil
}
