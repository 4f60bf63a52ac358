package wifi

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

func TestRankSSIDsByStrength(t *testing.T) {
	got := rankSSIDs(map[string]uint8{
		"Weak":   20,
		"Strong": 90,
		"Medium": 55,
	})
	test.That(t, got, test.ShouldResemble, []string{"Strong", "Medium", "Weak"})
}

func TestRankSSIDsTieBreaksByName(t *testing.T) {
	got := rankSSIDs(map[string]uint8{
		"Zulu":  70,
		"Alpha": 70,
		"Mike":  70,
	})
	test.That(t, got, test.ShouldResemble, []string{"Alpha", "Mike", "Zulu"})
}

func TestRankSSIDsEmpty(t *testing.T) {
	test.That(t, rankSSIDs(nil), test.ShouldResemble, []string{})
}

func TestScanReturnsRankedResults(t *testing.T) {
	m := &Manager{logger: zaptest.NewLogger(t).Sugar(), iface: "wlan0"}
	m.scanFn = func() ([]string, error) {
		return []string{"Strong", "Weak"}, nil
	}

	test.That(t, m.Scan(), test.ShouldResemble, []string{"Strong", "Weak"})
}

func TestScanFailureYieldsEmptyList(t *testing.T) {
	m := &Manager{logger: zaptest.NewLogger(t).Sugar(), iface: "wlan0"}
	m.scanFn = func() ([]string, error) {
		return nil, errors.New("no radio")
	}

	test.That(t, m.Scan(), test.ShouldBeNil)

	// the busy guard must have been released
	m.scanFn = func() ([]string, error) {
		return []string{"Back"}, nil
	}
	test.That(t, m.Scan(), test.ShouldResemble, []string{"Back"})
}

func TestScanDropsConcurrentRequests(t *testing.T) {
	m := &Manager{logger: zaptest.NewLogger(t).Sugar(), iface: "wlan0"}

	started := make(chan struct{})
	release := make(chan struct{})
	m.scanFn = func() ([]string, error) {
		close(started)
		<-release
		return []string{"Home"}, nil
	}

	results := make(chan []string, 1)
	go func() {
		results <- m.Scan()
	}()

	<-started

	// a second request while the first is in flight is dropped, not queued
	test.That(t, m.Scan(), test.ShouldBeNil)

	close(release)
	select {
	case got := <-results:
		test.That(t, got, test.ShouldResemble, []string{"Home"})
	case <-time.After(5 * time.Second):
		t.Fatal("scan never completed")
	}

	// and afterwards the guard is free again
	m.scanFn = func() ([]string, error) {
		return []string{"After"}, nil
	}
	test.That(t, m.Scan(), test.ShouldResemble, []string{"After"})
}
