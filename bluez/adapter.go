// Package bluez covers the daemon's client-side dealings with the bluez
// peripheral manager: finding a capable adapter, naming it, exporting the
// advertisement object, and the two-phase registration sequence that makes
// the peripheral discoverable.
package bluez

import (
	dbus "github.com/godbus/dbus/v5"
	errw "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	BluezService = "org.bluez"

	adapterIface     = "org.bluez.Adapter1"
	gattManagerIface = "org.bluez.GattManager1"
	advManagerIface  = "org.bluez.LEAdvertisingManager1"

	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
)

// ErrNoAdapter is returned when no bluez adapter exposes both the GATT and
// advertising managers. Startup-fatal for the daemon.
var ErrNoAdapter = errw.New("no adapter found exposing GattManager1 and LEAdvertisingManager1")

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// FindAdapter returns the first bluez adapter implementing both
// GattManager1 and LEAdvertisingManager1.
func FindAdapter(conn *dbus.Conn, logger *zap.SugaredLogger) (dbus.ObjectPath, error) {
	var objects managedObjects
	obj := conn.Object(BluezService, "/")
	if err := obj.Call(objectManagerIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return "", errw.Wrap(err, "listing bluez objects")
	}

	adapter, err := pickAdapter(objects)
	if err != nil {
		return "", err
	}

	logger.Infof("bluez adapter selected: %s", adapter)
	return adapter, nil
}

func pickAdapter(objects managedObjects) (dbus.ObjectPath, error) {
	for path, ifaces := range objects {
		_, hasGatt := ifaces[gattManagerIface]
		_, hasAdv := ifaces[advManagerIface]
		if hasGatt && hasAdv {
			return path, nil
		}
	}
	return "", ErrNoAdapter
}

// SetAlias names the adapter before advertising so pairing dialogs show the
// product name. Best effort: failure is logged, not fatal.
func SetAlias(conn *dbus.Conn, adapter dbus.ObjectPath, alias string, logger *zap.SugaredLogger) {
	obj := conn.Object(BluezService, adapter)
	if err := obj.SetProperty(adapterIface+".Alias", dbus.MakeVariant(alias)); err != nil {
		logger.Warn(errw.Wrapf(err, "setting adapter alias to %q", alias))
		return
	}
	logger.Infof("adapter alias set to %q", alias)
}
