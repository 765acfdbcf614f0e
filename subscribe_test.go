package sessionctl

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesTransitionsInOrder(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore()
	s.put("A", RoleTeacher, "pre-1")
	c := startTestController(t, testConfig(), p, s, nil)

	var (
		mu     sync.Mutex
		states []State
	)
	unsubscribe := c.Subscribe(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})
	defer unsubscribe()

	p.emit(SignedIn(testSession("A")))
	waitLoads(c)
	p.emit(SignedOut())

	waitFor(t, "signed-out state delivered", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && !states[len(states)-1].SignedIn()
	})

	mu.Lock()
	defer mu.Unlock()
	first := states[0]
	if first.User == nil || first.Profile != nil || !first.Loading {
		t.Fatalf("expected identity-without-profile first, got %+v", first)
	}
	sawProfile := false
	for _, st := range states {
		if st.Profile != nil {
			sawProfile = true
		}
	}
	if !sawProfile {
		t.Fatal("expected a state carrying the loaded profile")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := newFakeProvider()
	c := startTestController(t, testConfig(), p, newFakeStore(), nil)

	var count int
	var mu sync.Mutex
	unsubscribe := c.Subscribe(func(State) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsubscribe()
	unsubscribe()

	p.emit(SignedIn(testSession("A")))
	waitLoads(c)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", count)
	}
}

func TestSubscriberPanicDoesNotBreakHub(t *testing.T) {
	p := newFakeProvider()
	c := startTestController(t, testConfig(), p, newFakeStore(), nil)

	c.Subscribe(func(State) { panic("bad subscriber") })
	got := make(chan State, 16)
	c.Subscribe(func(st State) { got <- st })

	p.emit(SignedIn(testSession("A")))

	select {
	case st := <-got:
		if st.User == nil {
			t.Fatalf("expected identity, got %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("expected delivery despite panicking subscriber")
	}
}

func TestSubscriberMayReadController(t *testing.T) {
	p := newFakeProvider()
	c := startTestController(t, testConfig(), p, newFakeStore(), nil)

	done := make(chan bool, 16)
	c.Subscribe(func(State) {
		done <- c.State().SignedIn()
	})

	p.emit(SignedIn(testSession("A")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber calling State deadlocked")
	}
}

func TestWatchStartsWithCurrentStateAndCloses(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore()
	s.put("A", RoleParent, "pre-1")
	c := startTestController(t, testConfig(), p, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Watch(ctx)

	select {
	case st := <-ch:
		if st.SignedIn() {
			t.Fatalf("expected signed-out initial state, got %+v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("expected initial state")
	}

	p.emit(SignedIn(testSession("A")))
	waitLoads(c)

	deadline := time.After(2 * time.Second)
	for {
		var st State
		select {
		case st = <-ch:
		case <-deadline:
			t.Fatal("expected profile state on watch channel")
		}
		if st.Profile != nil {
			break
		}
	}

	cancel()
	waitFor(t, "watch channel closed", func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	})
}
