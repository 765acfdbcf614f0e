package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edudashpro/sessionctl"
)

// localProvider accepts any credentials and emits events synchronously, so
// the measured latency is the controller's own.
type localProvider struct {
	mu        sync.Mutex
	current   *sessionctl.Session
	listeners map[int]func(sessionctl.AuthEvent)
	nextID    int
}

func newLocalProvider() *localProvider {
	return &localProvider{listeners: make(map[int]func(sessionctl.AuthEvent))}
}

func (p *localProvider) CurrentSession(context.Context) (*sessionctl.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *localProvider) SignInWithPassword(_ context.Context, email, _ string) (*sessionctl.Session, error) {
	// emails are user<N>@load.example; the identity is uid-<N>.
	n := strings.TrimSuffix(strings.TrimPrefix(email, "user"), "@load.example")
	now := time.Now()
	sess := &sessionctl.Session{
		AccessToken:  "access-" + n,
		RefreshToken: "refresh-" + n,
		TokenType:    "bearer",
		IdentityID:   "uid-" + n,
		Email:        email,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	p.emit(sessionctl.SignedIn(sess))
	return sess, nil
}

func (p *localProvider) SignUp(context.Context, string, string, map[string]string) error {
	return nil
}

func (p *localProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.emit(sessionctl.SignedOut())
	return nil
}

func (p *localProvider) ResetPasswordForEmail(context.Context, string, string) error { return nil }

func (p *localProvider) UpdatePassword(context.Context, string) error { return nil }

func (p *localProvider) OnAuthStateChange(fn func(sessionctl.AuthEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *localProvider) emit(ev sessionctl.AuthEvent) {
	p.mu.Lock()
	fns := make([]func(sessionctl.AuthEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
