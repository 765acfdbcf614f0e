package sessionctl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu        sync.Mutex
	current   *Session
	listeners map[int]func(AuthEvent)
	nextID    int

	currentErr error
	signInErr  error
	signUpErr  error
	signOutErr error
	resetErr   error
	updateErr  error
	panicOn    string

	signInGate  chan struct{}
	signUpGate  chan struct{}
	signOutGate chan struct{}
	resetGate   chan struct{}
	updateGate  chan struct{}

	// onRestore, when set, builds an event emitted from inside
	// CurrentSession, the way a refreshing provider does.
	onRestore func(*Session) AuthEvent

	signInCalls   int
	signUpCalls   int
	signUpMeta    map[string]string
	resetRedirect string
	updated       string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: make(map[int]func(AuthEvent))}
}

func testSession(identityID string) *Session {
	now := time.Now()
	return &Session{
		AccessToken:  "access-" + identityID,
		RefreshToken: "refresh-" + identityID,
		TokenType:    "bearer",
		IdentityID:   identityID,
		Email:        identityID + "@example.com",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func (p *fakeProvider) emit(ev AuthEvent) {
	p.mu.Lock()
	fns := make([]func(AuthEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (p *fakeProvider) maybePanic(op string) {
	p.mu.Lock()
	should := p.panicOn == op
	p.mu.Unlock()
	if should {
		panic("boom in " + op)
	}
}

func waitGate(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakeProvider) CurrentSession(context.Context) (*Session, error) {
	p.maybePanic("CurrentSession")
	p.mu.Lock()
	if p.currentErr != nil {
		err := p.currentErr
		p.mu.Unlock()
		return nil, err
	}
	sess := p.current.clone()
	onRestore := p.onRestore
	p.mu.Unlock()

	if sess != nil && onRestore != nil {
		p.emit(onRestore(sess.clone()))
	}
	return sess, nil
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	p.maybePanic("SignInWithPassword")
	p.mu.Lock()
	p.signInCalls++
	gate := p.signInGate
	err := p.signInErr
	p.mu.Unlock()

	if gateErr := waitGate(ctx, gate); gateErr != nil {
		return nil, gateErr
	}
	if err != nil {
		return nil, err
	}

	sess := testSession("uid-" + email)
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	p.emit(SignedIn(sess))
	return sess, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, _, _ string, meta map[string]string) error {
	p.mu.Lock()
	p.signUpCalls++
	p.signUpMeta = meta
	gate := p.signUpGate
	p.mu.Unlock()

	if err := waitGate(ctx, gate); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signUpErr
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.maybePanic("SignOut")
	p.mu.Lock()
	gate := p.signOutGate
	p.mu.Unlock()
	if err := waitGate(ctx, gate); err != nil {
		return err
	}

	p.mu.Lock()
	err := p.signOutErr
	if err == nil {
		p.current = nil
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.emit(SignedOut())
	return nil
}

func (p *fakeProvider) ResetPasswordForEmail(ctx context.Context, _ string, redirectTo string) error {
	p.mu.Lock()
	p.resetRedirect = redirectTo
	gate := p.resetGate
	p.mu.Unlock()

	if err := waitGate(ctx, gate); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetErr
}

func (p *fakeProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	p.mu.Lock()
	p.updated = newPassword
	gate := p.updateGate
	p.mu.Unlock()

	if err := waitGate(ctx, gate); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updateErr
}

func (p *fakeProvider) OnAuthStateChange(fn func(AuthEvent)) func() {
	p.maybePanic("OnAuthStateChange")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

type fakeStore struct {
	mu    sync.Mutex
	rows  map[string]*ProfileRow
	errs  map[string]error
	calls map[string]int
	gate  chan struct{}
	panic bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:  make(map[string]*ProfileRow),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (s *fakeStore) put(identityID string, role Role, preschoolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := "Thandi"
	s.rows[identityID] = &ProfileRow{
		ID:          "profile-" + identityID,
		AuthUserID:  identityID,
		Email:       identityID + "@example.com",
		FirstName:   &first,
		Role:        string(role),
		PreschoolID: &preschoolID,
	}
}

func (s *fakeStore) FindProfileByIdentityID(ctx context.Context, identityID string) (*ProfileRow, error) {
	s.mu.Lock()
	s.calls[identityID]++
	gate := s.gate
	shouldPanic := s.panic
	s.mu.Unlock()

	if shouldPanic {
		panic("store exploded")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[identityID]; err != nil {
		return nil, err
	}
	row, ok := s.rows[identityID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := *row
	return &out, nil
}

func (s *fakeStore) callCount(identityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[identityID]
}

type fakeNavigator struct {
	mu         sync.Mutex
	replaceErr error
	pushErr    error
	calls      []string
	done       chan string
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{done: make(chan string, 8)}
}

func (n *fakeNavigator) Replace(route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "replace:"+route)
	if n.replaceErr != nil {
		return n.replaceErr
	}
	n.done <- "replace:" + route
	return nil
}

func (n *fakeNavigator) Push(route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "push:"+route)
	if n.pushErr != nil {
		n.done <- "failed"
		return n.pushErr
	}
	n.done <- "push:" + route
	return nil
}

func (n *fakeNavigator) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

var errBackend = errors.New("backend down")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Navigation.SignOutDelay = 5 * time.Millisecond
	cfg.Profile.LoadTimeout = 2 * time.Second
	return cfg
}

func buildTestController(t *testing.T, cfg Config, p *fakeProvider, s *fakeStore, n *fakeNavigator) *Controller {
	t.Helper()

	b := New().
		WithConfig(cfg).
		WithAuthProvider(p).
		WithProfileStore(s).
		WithLogger(discardLogger())
	if n != nil {
		b = b.WithNavigator(n)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func startTestController(t *testing.T, cfg Config, p *fakeProvider, s *fakeStore, n *fakeNavigator) *Controller {
	t.Helper()

	c := buildTestController(t, cfg, p, s, n)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitLoads(c *Controller) {
	c.loads.Wait()
}
