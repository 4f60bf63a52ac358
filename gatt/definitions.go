// Package gatt owns the D-Bus object tree this daemon exports to bluez: one
// application root implementing ObjectManager, one primary GATT service, and
// its characteristics. It answers introspection, property reads, and method
// calls, and emits Value change notifications for subscribed clients.
package gatt

import (
	dbus "github.com/godbus/dbus/v5"
	errw "github.com/pkg/errors"
)

const (
	// Interfaces bluez expects from a GATT application.
	ObjectManagerIface  = "org.freedesktop.DBus.ObjectManager"
	PropertiesIface     = "org.freedesktop.DBus.Properties"
	IntrospectableIface = "org.freedesktop.DBus.Introspectable"
	ServiceIface        = "org.bluez.GattService1"
	CharacteristicIface = "org.bluez.GattCharacteristic1"

	// Object paths of the exported tree. bluez is pointed at AppPath when
	// the application is registered and walks the rest via ObjectManager.
	AppPath        dbus.ObjectPath = "/org/bluez/provision"
	ServicePath    dbus.ObjectPath = "/org/bluez/provision/service0"
	DeviceInfoPath dbus.ObjectPath = "/org/bluez/provision/char0"
	StatePath      dbus.ObjectPath = "/org/bluez/provision/char1"
	CommandPath    dbus.ObjectPath = "/org/bluez/provision/char2"
)

// Characteristic capability flags, as bluez spells them.
const (
	FlagRead   = "read"
	FlagWrite  = "write"
	FlagNotify = "notify"
)

var (
	// ErrDuplicatePath is returned when exporting an object at a path that
	// is already registered.
	ErrDuplicatePath = errw.New("object path already exported")
	// ErrUnresolvedParent is returned when a characteristic names a service
	// that has not been exported yet.
	ErrUnresolvedParent = errw.New("characteristic service not exported")
)

// D-Bus error names returned to callers on protocol errors.
const (
	errNameUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
	errNameUnknownObject = "org.freedesktop.DBus.Error.UnknownObject"
	errNameNotSupported  = "org.bluez.Error.NotSupported"
)

func unknownMethodError(method string) *dbus.Error {
	return dbus.NewError(errNameUnknownMethod, []interface{}{"unknown method " + method})
}

func unknownObjectError(path dbus.ObjectPath) *dbus.Error {
	return dbus.NewError(errNameUnknownObject, []interface{}{"unknown object " + string(path)})
}

func notSupportedError(op string) *dbus.Error {
	return dbus.NewError(errNameNotSupported, []interface{}{op + " not supported"})
}
