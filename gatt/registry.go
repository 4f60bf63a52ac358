package gatt

import (
	dbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	errw "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/pidevelop/provision"
)

// Bus is the slice of *dbus.Conn the registry needs. Narrowed so tests can
// substitute a recording fake.
type Bus interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Registry owns every object exported to bluez, keyed by path. All methods
// other than the Export* ones must run on the event loop; the D-Bus facing
// wrappers in export.go marshal themselves in. Export* is called from the
// composition root before the loop starts serving traffic.
type Registry struct {
	bus    Bus
	loop   *provision.Loop
	logger *zap.SugaredLogger

	services map[dbus.ObjectPath]*Service
	chars    map[dbus.ObjectPath]*Characteristic
}

func NewRegistry(bus Bus, loop *provision.Loop, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		bus:      bus,
		loop:     loop,
		logger:   logger,
		services: map[dbus.ObjectPath]*Service{},
		chars:    map[dbus.ObjectPath]*Characteristic{},
	}
}

func (r *Registry) registered(path dbus.ObjectPath) bool {
	_, svc := r.services[path]
	_, chr := r.chars[path]
	return svc || chr
}

// ExportApplication exports the ObjectManager root. bluez calls
// GetManagedObjects on it during application registration.
func (r *Registry) ExportApplication() error {
	if err := r.bus.Export(&objectManagerExport{r}, AppPath, ObjectManagerIface); err != nil {
		return errw.Wrap(err, "exporting object manager")
	}
	if err := r.exportIntrospection(AppPath, appIntrospection()); err != nil {
		return err
	}
	r.logger.Infof("exported ObjectManager at %s", AppPath)
	return nil
}

// ExportService registers a service object.
func (r *Registry) ExportService(svc *Service) error {
	if r.registered(svc.Path) {
		return errw.Wrapf(ErrDuplicatePath, "%s", svc.Path)
	}

	if err := r.bus.Export(&propertiesExport{r: r, path: svc.Path}, svc.Path, PropertiesIface); err != nil {
		return errw.Wrapf(err, "exporting properties for %s", svc.Path)
	}
	if err := r.exportIntrospection(svc.Path, serviceIntrospection()); err != nil {
		return err
	}

	r.services[svc.Path] = svc
	r.logger.Infof("exported GattService1 at %s", svc.Path)
	return nil
}

// ExportCharacteristic registers a characteristic object. The owning service
// must already be exported. The handler must cover every capability flag.
func (r *Registry) ExportCharacteristic(chr *Characteristic) error {
	if r.registered(chr.Path) {
		return errw.Wrapf(ErrDuplicatePath, "%s", chr.Path)
	}
	if _, ok := r.services[chr.ServicePath]; !ok {
		return errw.Wrapf(ErrUnresolvedParent, "%s wants %s", chr.Path, chr.ServicePath)
	}

	if err := r.checkHandler(chr); err != nil {
		return err
	}

	// Seed the Value cache so the property is sensible before any notify.
	if readable, ok := chr.handler.(Readable); ok {
		chr.value = readable.ReadValue()
	}

	if err := r.bus.Export(&characteristicExport{r: r, path: chr.Path}, chr.Path, CharacteristicIface); err != nil {
		return errw.Wrapf(err, "exporting characteristic %s", chr.Path)
	}
	if err := r.bus.Export(&propertiesExport{r: r, path: chr.Path}, chr.Path, PropertiesIface); err != nil {
		return errw.Wrapf(err, "exporting properties for %s", chr.Path)
	}
	if err := r.exportIntrospection(chr.Path, characteristicIntrospection()); err != nil {
		return err
	}

	r.chars[chr.Path] = chr
	r.logger.Infof("exported GattCharacteristic1 at %s (uuid %s, flags %v)", chr.Path, chr.UUID, chr.Flags)
	return nil
}

func (r *Registry) checkHandler(chr *Characteristic) error {
	if chr.hasFlag(FlagRead) {
		if _, ok := chr.handler.(Readable); !ok {
			return errw.Errorf("characteristic %s has read flag but handler is not Readable", chr.Path)
		}
	}
	if chr.hasFlag(FlagWrite) {
		if _, ok := chr.handler.(Writable); !ok {
			return errw.Errorf("characteristic %s has write flag but handler is not Writable", chr.Path)
		}
	}
	if chr.hasFlag(FlagNotify) {
		if _, ok := chr.handler.(Subscribable); !ok {
			return errw.Errorf("characteristic %s has notify flag but handler is not Subscribable", chr.Path)
		}
	}
	return nil
}

// DispatchMethod routes one GATT method call to the object at path. Value is
// only meaningful for WriteValue; the returned bytes only for ReadValue.
func (r *Registry) DispatchMethod(path dbus.ObjectPath, method string, value []byte) ([]byte, *dbus.Error) {
	chr, ok := r.chars[path]
	if !ok {
		return nil, unknownObjectError(path)
	}

	switch method {
	case "ReadValue":
		return r.readValue(chr)
	case "WriteValue":
		return nil, r.writeValue(chr, value)
	case "StartNotify":
		return nil, r.setNotify(chr, true)
	case "StopNotify":
		return nil, r.setNotify(chr, false)
	default:
		return nil, unknownMethodError(method)
	}
}

func (r *Registry) readValue(chr *Characteristic) ([]byte, *dbus.Error) {
	readable, ok := chr.handler.(Readable)
	if !ok || !chr.hasFlag(FlagRead) {
		return nil, notSupportedError("read")
	}

	// Refresh the cache so reads always serve current truth.
	chr.value = readable.ReadValue()
	if chr.value == nil {
		return []byte{}, nil
	}
	return chr.value, nil
}

func (r *Registry) writeValue(chr *Characteristic, value []byte) *dbus.Error {
	writable, ok := chr.handler.(Writable)
	if !ok || !chr.hasFlag(FlagWrite) {
		return notSupportedError("write")
	}

	// The handler owns validation; the protocol write itself never fails.
	writable.WriteValue(value)
	return nil
}

func (r *Registry) setNotify(chr *Characteristic, enabled bool) *dbus.Error {
	if !chr.hasFlag(FlagNotify) {
		return notSupportedError("notify")
	}

	chr.subscribed = enabled
	if sub, ok := chr.handler.(Subscribable); ok {
		sub.SubscriptionChanged(enabled)
	}
	return nil
}

// GetProperty answers a Properties.Get for path.
func (r *Registry) GetProperty(path dbus.ObjectPath, iface, name string) (dbus.Variant, *dbus.Error) {
	all, dErr := r.GetAllProperties(path, iface)
	if dErr != nil {
		return dbus.Variant{}, dErr
	}
	v, ok := all[name]
	if !ok {
		return dbus.Variant{}, prop.ErrPropNotFound
	}
	return v, nil
}

// GetAllProperties answers a Properties.GetAll for path.
func (r *Registry) GetAllProperties(path dbus.ObjectPath, iface string) (map[string]dbus.Variant, *dbus.Error) {
	if svc, ok := r.services[path]; ok {
		if iface != ServiceIface {
			return nil, prop.ErrIfaceNotFound
		}
		return svc.properties(), nil
	}
	if chr, ok := r.chars[path]; ok {
		if iface != CharacteristicIface {
			return nil, prop.ErrIfaceNotFound
		}
		return chr.properties(), nil
	}
	return nil, unknownObjectError(path)
}

// ManagedObjects builds the full object/interface/property tree for
// ObjectManager.GetManagedObjects. Built on demand so every Value reflects
// the current cache.
func (r *Registry) ManagedObjects() map[dbus.ObjectPath]map[string]map[string]dbus.Variant {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant, len(r.services)+len(r.chars))
	for path, svc := range r.services {
		objects[path] = map[string]map[string]dbus.Variant{ServiceIface: svc.properties()}
	}
	for path, chr := range r.chars {
		objects[path] = map[string]map[string]dbus.Variant{CharacteristicIface: chr.properties()}
	}
	return objects
}

// Publish replaces the cached value of the characteristic at path and, if a
// client is subscribed, emits a PropertiesChanged for Value. bluez turns
// that into an ATT notification. Publishing the same bytes twice emits two
// notifications; coalescing is the transport's business.
func (r *Registry) Publish(path dbus.ObjectPath, value []byte) {
	chr, ok := r.chars[path]
	if !ok {
		// The publisher may race a teardown, so this is not a hard error.
		r.logger.Warnf("publish: no characteristic at %s", path)
		return
	}

	if !chr.subscribed {
		r.logger.Debugf("publish: skipped, no subscriber at %s", path)
		return
	}

	chr.value = value
	if err := r.bus.Emit(path, PropertiesIface+".PropertiesChanged",
		CharacteristicIface,
		map[string]dbus.Variant{"Value": dbus.MakeVariant(value)},
		[]string{},
	); err != nil {
		r.logger.Warnf("publish: emitting PropertiesChanged for %s: %v", path, err)
	}
}
