package sessionctl

import (
	"errors"
	"testing"
	"time"
)

func TestNavigationFallsBackToPush(t *testing.T) {
	p := newFakeProvider()
	n := newFakeNavigator()
	n.replaceErr = errors.New("replace unsupported")
	c := startTestController(t, testConfig(), p, newFakeStore(), n)

	p.emit(SignedOut())

	select {
	case got := <-n.done:
		if got != "push:/(auth)/sign-in" {
			t.Fatalf("expected push fallback, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected navigation")
	}
	if c.metrics.Value(MetricNavigationFallback) != 1 {
		t.Fatalf("expected fallback counter 1, got %d", c.metrics.Value(MetricNavigationFallback))
	}
}

func TestNavigationFailureIsSwallowed(t *testing.T) {
	p := newFakeProvider()
	n := newFakeNavigator()
	n.replaceErr = errors.New("replace failed")
	n.pushErr = errors.New("push failed")
	c := startTestController(t, testConfig(), p, newFakeStore(), n)

	p.emit(SignedOut())

	select {
	case <-n.done:
	case <-time.After(time.Second):
		t.Fatal("expected navigation attempt")
	}
	waitFor(t, "navigation failure counted", func() bool {
		return c.metrics.Value(MetricNavigationFailure) == 1
	})
	if st := c.State(); st.SignedIn() || st.Loading {
		t.Fatalf("expected cleared state regardless of navigation, got %+v", st)
	}
}

func TestNavigationWaitsForDelay(t *testing.T) {
	p := newFakeProvider()
	n := newFakeNavigator()
	cfg := testConfig()
	cfg.Navigation.SignOutDelay = 80 * time.Millisecond
	startTestController(t, cfg, p, newFakeStore(), n)

	start := time.Now()
	p.emit(SignedOut())

	select {
	case <-n.done:
		if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
			t.Fatalf("navigation ran after %v, before the delay", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("expected navigation")
	}
}

func TestRepeatedSignedOutNavigatesOnce(t *testing.T) {
	p := newFakeProvider()
	n := newFakeNavigator()
	cfg := testConfig()
	cfg.Navigation.SignOutDelay = 30 * time.Millisecond
	startTestController(t, cfg, p, newFakeStore(), n)

	p.emit(SignedOut())
	p.emit(SignedOut())
	time.Sleep(120 * time.Millisecond)

	if got := n.recorded(); len(got) != 1 {
		t.Fatalf("expected a single navigation, got %v", got)
	}
}

func TestNavigationDisabled(t *testing.T) {
	p := newFakeProvider()
	n := newFakeNavigator()
	cfg := testConfig()
	cfg.Navigation.Disabled = true
	startTestController(t, cfg, p, newFakeStore(), n)

	p.emit(SignedOut())
	time.Sleep(40 * time.Millisecond)

	if got := n.recorded(); len(got) != 0 {
		t.Fatalf("expected no navigation, got %v", got)
	}
}

func TestCloseCancelsPendingNavigation(t *testing.T) {
	p := newFakeProvider()
	n := newFakeNavigator()
	cfg := testConfig()
	cfg.Navigation.SignOutDelay = 50 * time.Millisecond
	c := startTestController(t, cfg, p, newFakeStore(), n)

	p.emit(SignedOut())
	c.Close()
	time.Sleep(100 * time.Millisecond)

	if got := n.recorded(); len(got) != 0 {
		t.Fatalf("expected navigation cancelled by Close, got %v", got)
	}
}
