package bluez

import (
	dbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	errw "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	advertisementIface  = "org.bluez.LEAdvertisement1"
	propertiesIface     = "org.freedesktop.DBus.Properties"
	introspectableIface = "org.freedesktop.DBus.Introspectable"

	// AdvertisementPath is where the advertisement object lives in our
	// exported tree.
	AdvertisementPath dbus.ObjectPath = "/org/bluez/provision/advertisement0"
)

// Advertisement is the LEAdvertisement1 object handed to bluez. Static
// after export: bluez reads the properties once at registration. Includes
// tx-power and local-name so scanners see a named, rangeable device, and
// the flags make the peripheral general-discoverable on LE only.
type Advertisement struct {
	logger       *zap.SugaredLogger
	serviceUUIDs []string
}

func NewAdvertisement(serviceUUID string, logger *zap.SugaredLogger) *Advertisement {
	return &Advertisement{
		logger:       logger,
		serviceUUIDs: []string{serviceUUID},
	}
}

// Release implements LEAdvertisement1. bluez calls it when it unregisters
// the advertisement on teardown.
func (a *Advertisement) Release() *dbus.Error {
	a.logger.Info("advertisement released by bluez")
	return nil
}

func (a *Advertisement) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Type":         dbus.MakeVariant("peripheral"),
		"ServiceUUIDs": dbus.MakeVariant(a.serviceUUIDs),
		"Includes":     dbus.MakeVariant([]string{"tx-power", "local-name"}),
		"Flags":        dbus.MakeVariant([]string{"general-discoverable", "le-only"}),
	}
}

// Get implements Properties for the advertisement object.
func (a *Advertisement) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	all, dErr := a.GetAll(iface)
	if dErr != nil {
		return dbus.Variant{}, dErr
	}
	v, ok := all[name]
	if !ok {
		return dbus.Variant{}, prop.ErrPropNotFound
	}
	return v, nil
}

// GetAll implements Properties for the advertisement object.
func (a *Advertisement) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if iface != advertisementIface {
		return nil, prop.ErrIfaceNotFound
	}
	return a.properties(), nil
}

// Set implements Properties; every advertisement property is read-only.
func (a *Advertisement) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return prop.ErrReadOnly
}

// Export places the advertisement object on the bus at AdvertisementPath.
func (a *Advertisement) Export(conn *dbus.Conn) error {
	if err := conn.Export(a, AdvertisementPath, advertisementIface); err != nil {
		return errw.Wrap(err, "exporting advertisement")
	}
	if err := conn.Export(a, AdvertisementPath, propertiesIface); err != nil {
		return errw.Wrap(err, "exporting advertisement properties")
	}

	node := &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:    advertisementIface,
				Methods: []introspect.Method{{Name: "Release"}},
				Properties: []introspect.Property{
					{Name: "Type", Type: "s", Access: "read"},
					{Name: "ServiceUUIDs", Type: "as", Access: "read"},
					{Name: "Includes", Type: "as", Access: "read"},
					{Name: "Flags", Type: "as", Access: "read"},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), AdvertisementPath, introspectableIface); err != nil {
		return errw.Wrap(err, "exporting advertisement introspection")
	}

	a.logger.Info("BLE advertisement exported")
	return nil
}
