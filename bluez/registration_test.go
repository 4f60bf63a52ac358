package bluez

import (
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

const (
	testAppPath dbus.ObjectPath = "/org/bluez/provision"
	testAdvPath dbus.ObjectPath = "/org/bluez/provision/advertisement0"
)

// fakeManager captures the registration continuations so tests drive the
// sequence by hand.
type fakeManager struct {
	appPath dbus.ObjectPath
	appDone func(err error)
	advPath dbus.ObjectPath
	advDone func(err error)
}

func (m *fakeManager) RegisterApplication(app dbus.ObjectPath, done func(err error)) {
	m.appPath = app
	m.appDone = done
}

func (m *fakeManager) RegisterAdvertisement(adv dbus.ObjectPath, done func(err error)) {
	m.advPath = adv
	m.advDone = done
}

// runInline executes continuations directly, standing in for the event loop.
func runInline(fn func()) {
	fn()
}

func testSequencer(t *testing.T) (*Sequencer, *fakeManager, *int) {
	t.Helper()
	mgr := &fakeManager{}
	releases := 0
	seq := NewSequencer(zaptest.NewLogger(t).Sugar(), mgr, runInline,
		testAppPath, testAdvPath, func() {
			releases++
		})
	return seq, mgr, &releases
}

func TestSequencerHappyPath(t *testing.T) {
	seq, mgr, releases := testSequencer(t)

	seq.Start()
	test.That(t, seq.Phase(), test.ShouldEqual, PhaseAppPending)
	test.That(t, mgr.appPath, test.ShouldEqual, testAppPath)
	test.That(t, mgr.advDone, test.ShouldBeNil)
	test.That(t, *releases, test.ShouldEqual, 0)

	mgr.appDone(nil)
	test.That(t, seq.Phase(), test.ShouldEqual, PhaseAdvPending)
	test.That(t, mgr.advPath, test.ShouldEqual, testAdvPath)
	test.That(t, *releases, test.ShouldEqual, 0)

	mgr.advDone(nil)
	test.That(t, seq.Phase(), test.ShouldEqual, PhaseAdvDone)
	test.That(t, *releases, test.ShouldEqual, 1)
}

func TestSequencerApplicationFailure(t *testing.T) {
	seq, mgr, releases := testSequencer(t)

	seq.Start()
	mgr.appDone(errors.New("bluez rejected the tree"))

	test.That(t, seq.Phase(), test.ShouldEqual, PhaseFailed)
	test.That(t, *releases, test.ShouldEqual, 1)
	// the advertisement phase never started
	test.That(t, mgr.advDone, test.ShouldBeNil)
}

func TestSequencerAdvertisementFailure(t *testing.T) {
	seq, mgr, releases := testSequencer(t)

	seq.Start()
	mgr.appDone(nil)
	mgr.advDone(errors.New("advertising quota exhausted"))

	test.That(t, seq.Phase(), test.ShouldEqual, PhaseFailed)
	test.That(t, *releases, test.ShouldEqual, 1)
}

func TestSequencerReleasesExactlyOnce(t *testing.T) {
	seq, mgr, releases := testSequencer(t)

	seq.Start()
	mgr.appDone(nil)
	mgr.advDone(nil)
	test.That(t, *releases, test.ShouldEqual, 1)

	// a buggy duplicate completion must not release the session again
	seq.finish()
	test.That(t, *releases, test.ShouldEqual, 1)
}

func TestPhaseString(t *testing.T) {
	test.That(t, PhaseAppPending.String(), test.ShouldNotBeEmpty)
	test.That(t, PhaseFailed.String(), test.ShouldNotBeEmpty)
}
