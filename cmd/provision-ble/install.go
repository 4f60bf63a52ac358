package main

import (
	"os"
	"os/exec"
	"path/filepath"

	errw "github.com/pkg/errors"
	sysd "github.com/sergeymakinen/go-systemdconf/v2"
	"github.com/sergeymakinen/go-systemdconf/v2/unit"
	"go.uber.org/zap"
)

const (
	serviceFileDir  = "/etc/systemd/system"
	serviceFileName = "provision-ble.service"
)

// install writes the systemd service file pointing at the current executable
// and reloads the systemd daemon. It does not enable or start the unit.
func install(logger *zap.SugaredLogger) error {
	// Check for systemd
	cmd := exec.Command("systemctl", "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errw.Wrapf(err, "can only install on systems using systemd, but 'systemctl --version' returned errors %s", output)
	}

	curPath, err := os.Executable()
	if err != nil {
		return errw.Wrap(err, "getting path to self")
	}

	serviceFile := &unit.ServiceFile{
		Unit: unit.UnitSection{
			Description: sysd.Value{"BLE Wi-Fi provisioning daemon"},
			After:       sysd.Value{"bluetooth.service", "NetworkManager.service"},
			Wants:       sysd.Value{"bluetooth.service", "NetworkManager.service"},
		},
		Service: unit.ServiceSection{
			Type:       sysd.Value{"exec"},
			ExecStart:  sysd.Value{curPath},
			Restart:    sysd.Value{"on-failure"},
			RestartSec: sysd.Value{"5"},
		},
		Install: unit.InstallSection{
			WantedBy: sysd.Value{"multi-user.target"},
		},
	}

	newFileBytes, err := sysd.Marshal(serviceFile)
	if err != nil {
		return errw.Wrap(err, "marshaling service file")
	}

	serviceFilePath := filepath.Join(serviceFileDir, serviceFileName)
	logger.Infof("writing systemd service file to %s", serviceFilePath)
	//nolint:gosec
	if err := os.WriteFile(serviceFilePath, newFileBytes, 0o644); err != nil {
		return errw.Wrapf(err, "writing systemd service file %s", serviceFilePath)
	}

	cmd = exec.Command("systemctl", "daemon-reload")
	output, err = cmd.CombinedOutput()
	if err != nil {
		return errw.Wrapf(err, "running 'systemctl daemon-reload' output: %s", output)
	}

	logger.Infof("service installed, start it with 'systemctl start %s'", serviceFileName)
	return nil
}
