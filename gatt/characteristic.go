package gatt

import (
	dbus "github.com/godbus/dbus/v5"
)

// Capability interfaces implemented by characteristic handlers. A handler
// implements the subset matching its flags; the registry checks the pairing
// at export time and routes method calls through these.

// Readable serves ReadValue. The returned bytes become the new cached Value.
type Readable interface {
	ReadValue() []byte
}

// Writable services WriteValue. Malformed input is the handler's problem;
// the write itself always succeeds at the protocol level.
type Writable interface {
	WriteValue(value []byte)
}

// Subscribable is told when a client starts or stops notifications, so it
// can push current truth on subscribe.
type Subscribable interface {
	SubscriptionChanged(enabled bool)
}

// Service is a static GATT service definition.
type Service struct {
	UUID    string
	Path    dbus.ObjectPath
	Primary bool
}

// Characteristic is one exported GATT characteristic. Owned by the Registry;
// value and subscribed are only touched on the event loop.
type Characteristic struct {
	UUID        string
	Path        dbus.ObjectPath
	ServicePath dbus.ObjectPath
	Flags       []string

	handler    interface{}
	value      []byte
	subscribed bool
}

// NewCharacteristic pairs a characteristic definition with its handler.
func NewCharacteristic(uuid string, path, servicePath dbus.ObjectPath, flags []string, handler interface{}) *Characteristic {
	return &Characteristic{
		UUID:        uuid,
		Path:        path,
		ServicePath: servicePath,
		Flags:       flags,
		handler:     handler,
	}
}

func (c *Characteristic) hasFlag(flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// properties builds the live GattCharacteristic1 property map. Value always
// reflects the current cache, not a snapshot.
func (c *Characteristic) properties() map[string]dbus.Variant {
	value := c.value
	if value == nil {
		value = []byte{}
	}
	return map[string]dbus.Variant{
		"UUID":        dbus.MakeVariant(c.UUID),
		"Service":     dbus.MakeVariant(c.ServicePath),
		"Flags":       dbus.MakeVariant(c.Flags),
		"Descriptors": dbus.MakeVariant([]dbus.ObjectPath{}),
		"Value":       dbus.MakeVariant(value),
	}
}

func (s *Service) properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"UUID":     dbus.MakeVariant(s.UUID),
		"Primary":  dbus.MakeVariant(s.Primary),
		"Includes": dbus.MakeVariant([]dbus.ObjectPath{}),
	}
}
