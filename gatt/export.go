package gatt

// D-Bus facing method tables. godbus invokes these on its own dispatch
// goroutines; every handler marshals itself onto the event loop before
// touching the registry, preserving the single-writer model.

import (
	dbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

type objectManagerExport struct {
	r *Registry
}

func (o *objectManagerExport) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	o.r.loop.Call(func() {
		objects = o.r.ManagedObjects()
	})
	o.r.logger.Debugf("GetManagedObjects served %d objects", len(objects))
	return objects, nil
}

type characteristicExport struct {
	r    *Registry
	path dbus.ObjectPath
}

func (c *characteristicExport) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	var value []byte
	var dErr *dbus.Error
	c.r.loop.Call(func() {
		value, dErr = c.r.DispatchMethod(c.path, "ReadValue", nil)
	})
	return value, dErr
}

func (c *characteristicExport) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	var dErr *dbus.Error
	c.r.loop.Call(func() {
		_, dErr = c.r.DispatchMethod(c.path, "WriteValue", value)
	})
	return dErr
}

func (c *characteristicExport) StartNotify() *dbus.Error {
	var dErr *dbus.Error
	c.r.loop.Call(func() {
		_, dErr = c.r.DispatchMethod(c.path, "StartNotify", nil)
	})
	return dErr
}

func (c *characteristicExport) StopNotify() *dbus.Error {
	var dErr *dbus.Error
	c.r.loop.Call(func() {
		_, dErr = c.r.DispatchMethod(c.path, "StopNotify", nil)
	})
	return dErr
}

type propertiesExport struct {
	r    *Registry
	path dbus.ObjectPath
}

func (p *propertiesExport) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	var v dbus.Variant
	var dErr *dbus.Error
	p.r.loop.Call(func() {
		v, dErr = p.r.GetProperty(p.path, iface, name)
	})
	return v, dErr
}

func (p *propertiesExport) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	var all map[string]dbus.Variant
	var dErr *dbus.Error
	p.r.loop.Call(func() {
		all, dErr = p.r.GetAllProperties(p.path, iface)
	})
	return all, dErr
}

func (p *propertiesExport) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return prop.ErrReadOnly
}

func (r *Registry) exportIntrospection(path dbus.ObjectPath, node *introspect.Node) error {
	return r.bus.Export(introspect.NewIntrospectable(node), path, IntrospectableIface)
}

func appIntrospection() *introspect.Node {
	return &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: ObjectManagerIface,
				Methods: []introspect.Method{{
					Name: "GetManagedObjects",
					Args: []introspect.Arg{{Name: "objects", Type: "a{oa{sa{sv}}}", Direction: "out"}},
				}},
			},
		},
	}
}

func serviceIntrospection() *introspect.Node {
	return &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: ServiceIface,
				Properties: []introspect.Property{
					{Name: "UUID", Type: "s", Access: "read"},
					{Name: "Primary", Type: "b", Access: "read"},
					{Name: "Includes", Type: "ao", Access: "read"},
				},
			},
		},
	}
}

func characteristicIntrospection() *introspect.Node {
	return &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: CharacteristicIface,
				Methods: []introspect.Method{
					{
						Name: "ReadValue",
						Args: []introspect.Arg{
							{Name: "options", Type: "a{sv}", Direction: "in"},
							{Name: "value", Type: "ay", Direction: "out"},
						},
					},
					{
						Name: "WriteValue",
						Args: []introspect.Arg{
							{Name: "value", Type: "ay", Direction: "in"},
							{Name: "options", Type: "a{sv}", Direction: "in"},
						},
					},
					{Name: "StartNotify"},
					{Name: "StopNotify"},
				},
				Properties: []introspect.Property{
					{Name: "UUID", Type: "s", Access: "read"},
					{Name: "Service", Type: "o", Access: "read"},
					{Name: "Flags", Type: "as", Access: "read"},
					{Name: "Descriptors", Type: "ao", Access: "read"},
					{Name: "Value", Type: "ay", Access: "read"},
				},
			},
		},
	}
}
