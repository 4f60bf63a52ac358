package bluez

import (
	dbus "github.com/godbus/dbus/v5"
	errw "github.com/pkg/errors"
	"go.uber.org/zap"
	goutils "go.viam.com/utils"
)

// Phase tracks the two-step registration sequence. Advertisement
// registration never starts before application registration succeeded.
type Phase int

const (
	PhaseAppPending Phase = iota
	PhaseAppDone
	PhaseAdvPending
	PhaseAdvDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAppPending:
		return "APP_PENDING"
	case PhaseAppDone:
		return "APP_DONE"
	case PhaseAdvPending:
		return "ADV_PENDING"
	case PhaseAdvDone:
		return "ADV_DONE"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Manager abstracts the two async bluez registration calls. done is invoked
// exactly once per call, on an arbitrary goroutine.
type Manager interface {
	RegisterApplication(app dbus.ObjectPath, done func(err error))
	RegisterAdvertisement(adv dbus.ObjectPath, done func(err error))
}

type dbusManager struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
}

// NewManager returns a Manager backed by the bluez adapter object.
func NewManager(conn *dbus.Conn, adapter dbus.ObjectPath) Manager {
	return &dbusManager{conn: conn, adapter: adapter}
}

func (m *dbusManager) call(method string, path dbus.ObjectPath, done func(err error)) {
	obj := m.conn.Object(BluezService, m.adapter)
	ch := make(chan *dbus.Call, 1)
	obj.Go(method, 0, ch, path, map[string]dbus.Variant{})
	goutils.PanicCapturingGo(func() {
		call := <-ch
		done(call.Err)
	})
}

func (m *dbusManager) RegisterApplication(app dbus.ObjectPath, done func(err error)) {
	m.call(gattManagerIface+".RegisterApplication", app, done)
}

func (m *dbusManager) RegisterAdvertisement(adv dbus.ObjectPath, done func(err error)) {
	m.call(advManagerIface+".RegisterAdvertisement", adv, done)
}

// Sequencer registers the GATT application and then the advertisement, in
// that order. It owns one registration session whose release runs on
// exactly one of the three terminal edges: app failure, advertisement
// failure, or full success. Continuations are marshalled back onto the
// event loop through invoke, so phase is only ever touched there.
type Sequencer struct {
	logger *zap.SugaredLogger
	mgr    Manager
	invoke func(func())

	appPath dbus.ObjectPath
	advPath dbus.ObjectPath

	phase    Phase
	release  func()
	released bool
}

// NewSequencer wires a sequencer. release is the session teardown; the
// sequencer guarantees it runs exactly once.
func NewSequencer(logger *zap.SugaredLogger, mgr Manager, invoke func(func()),
	appPath, advPath dbus.ObjectPath, release func(),
) *Sequencer {
	return &Sequencer{
		logger:  logger,
		mgr:     mgr,
		invoke:  invoke,
		appPath: appPath,
		advPath: advPath,
		phase:   PhaseAppPending,
		release: release,
	}
}

// Phase returns the current registration phase. Loop context only.
func (s *Sequencer) Phase() Phase {
	return s.phase
}

// Start begins the sequence. Precondition: every GATT object is already
// exported, since bluez walks the tree during RegisterApplication.
func (s *Sequencer) Start() {
	s.phase = PhaseAppPending
	s.mgr.RegisterApplication(s.appPath, func(err error) {
		s.invoke(func() { s.appDone(err) })
	})
}

func (s *Sequencer) appDone(err error) {
	if err != nil {
		s.fail(errw.Wrap(err, "RegisterApplication"))
		return
	}

	s.logger.Info("GATT application registered")
	s.phase = PhaseAppDone

	s.phase = PhaseAdvPending
	s.mgr.RegisterAdvertisement(s.advPath, func(err error) {
		s.invoke(func() { s.advDone(err) })
	})
}

func (s *Sequencer) advDone(err error) {
	if err != nil {
		s.fail(errw.Wrap(err, "RegisterAdvertisement"))
		return
	}

	s.logger.Info("advertisement registered, peripheral is discoverable")
	s.phase = PhaseAdvDone
	s.finish()
}

// fail is reached from exactly one pending phase per run; the peripheral
// stays unadvertised but the process keeps serving already-exported objects.
func (s *Sequencer) fail(err error) {
	s.logger.Error(err)
	s.phase = PhaseFailed
	s.finish()
}

func (s *Sequencer) finish() {
	if s.released {
		// Both terminal edges run on the loop and each is reachable once,
		// so this would be a sequencing bug.
		s.logger.Error("registration session already released")
		return
	}
	s.released = true
	if s.release != nil {
		s.release()
	}
}
