package sessionctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Controller is the single authority for who is signed in and which profile
// belongs to them. Construct it with [Builder.Build] and call [Controller.Start]
// once; all methods are safe for concurrent use.
//
// State changes are driven by provider events: SignIn and SignOut only
// delegate, and the resulting SIGNED_IN / SIGNED_OUT events move the state.
type Controller struct {
	config    Config
	provider  AuthProvider
	store     ProfileStore
	navigator Navigator
	logger    *slog.Logger
	audit     *auditDispatcher
	metrics   *Metrics
	hub       *stateHub

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu    sync.Mutex
	state State
	// busy holds one token per operation that currently keeps Loading true.
	busy      map[uint64]struct{}
	nextToken uint64
	// generation advances whenever an in-flight profile load must not be
	// applied: identity change, sign-out, or a newer load.
	generation uint64
	cancelLoad context.CancelFunc
	// profileFor is the identity whose profile the current generation
	// requested. Empty once loads are invalidated.
	profileFor  string
	navTimer    *time.Timer
	unsubscribe func()
	started     bool
	closed      bool

	loads sync.WaitGroup
}

// Start subscribes to provider events and restores any persisted session.
// Failures are logged, Loading is forced false, and the error is returned
// for the caller's information; the controller stays usable.
func (c *Controller) Start(ctx context.Context) error {
	if c == nil {
		return ErrControllerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	tok := c.acquireLocked()
	c.publishLocked()
	c.mu.Unlock()

	var unsubscribe func()
	err := c.guard("OnAuthStateChange", func() error {
		unsubscribe = c.provider.OnAuthStateChange(c.handleAuthEvent)
		return nil
	})
	if err != nil {
		c.logger.Error("sessionctl: subscribe to auth events failed", "error", err)
		c.forceIdle()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return ErrControllerClosed
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	var sess *Session
	err = c.guard("CurrentSession", func() error {
		var callErr error
		sess, callErr = c.provider.CurrentSession(ctx)
		return callErr
	})
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		c.logger.Error("sessionctl: restore session failed", "error", err)
		c.forceIdle()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Provider events may already have run while CurrentSession was in
	// flight. A SIGNED_IN for this identity has started its own load; a
	// passive event (token refresh) only set the identity.
	if sess != nil && sess.IdentityID != "" && !c.closed {
		if c.state.User == nil || c.state.User.ID != sess.IdentityID || c.profileFor != sess.IdentityID {
			c.state.Session = sess.clone()
			c.state.User = sess.Identity()
			c.startProfileLoadLocked(sess.IdentityID)
		}
	}
	c.releaseLocked(tok)
	c.publishLocked()
	return nil
}

// Close unsubscribes from the provider, cancels pending navigation and
// in-flight loads, waits for them to finish, and flushes the audit trail.
// Close is idempotent.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if c.navTimer != nil {
		c.navTimer.Stop()
		c.navTimer = nil
	}
	c.generation++
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		_ = c.guard("unsubscribe", func() error {
			unsubscribe()
			return nil
		})
	}
	c.cancelBase()
	c.loads.Wait()
	c.hub.Close()
	c.audit.Close()
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	if c == nil {
		return State{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SignIn verifies credentials with the provider. On success it returns nil
// and leaves the state untouched; the SIGNED_IN event that follows performs
// the identity transition and the profile load.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	if c == nil {
		return ErrControllerNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}

	tok, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(tok)

	err = c.guard("SignInWithPassword", func() error {
		_, callErr := c.provider.SignInWithPassword(ctx, email, password)
		return callErr
	})
	if err != nil {
		c.metrics.Inc(MetricSignInFailure)
		c.logger.Warn("sessionctl: sign in failed", "email", email, "error", err)
		c.emitAudit(ctx, auditEventSignInFailure, false, "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return err
	}

	c.metrics.Inc(MetricSignInSuccess)
	c.emitAudit(ctx, auditEventSignInSuccess, true, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// SignUp registers a new account. The profile row is created downstream of
// the provider (database trigger); this call never writes it.
func (c *Controller) SignUp(ctx context.Context, email, password string, data SignUpData) error {
	if c == nil {
		return ErrControllerNotReady
	}
	email = normalizeEmail(email)
	if err := validateSignUp(email, password, data, c.config.Auth.MinPasswordLength); err != nil {
		c.metrics.Inc(MetricSignUpFailure)
		return err
	}

	tok, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(tok)

	meta := data.metadata()
	err = c.guard("SignUp", func() error {
		return c.provider.SignUp(ctx, email, password, meta)
	})
	if err != nil {
		c.metrics.Inc(MetricSignUpFailure)
		c.logger.Warn("sessionctl: sign up failed", "email", email, "role", data.Role, "error", err)
		c.emitAudit(ctx, auditEventSignUpFailure, false, "", err, func() map[string]string {
			return map[string]string{"email": email, "role": string(data.Role)}
		})
		return err
	}

	c.metrics.Inc(MetricSignUpSuccess)
	c.emitAudit(ctx, auditEventSignUpSuccess, true, "", nil, func() map[string]string {
		return map[string]string{"email": email, "role": string(data.Role)}
	})
	return nil
}

// SignOut asks the provider to end the session. Teardown of Session, User and
// Profile happens when the provider's SIGNED_OUT event arrives, so a forced
// server-side sign-out takes exactly the same path.
func (c *Controller) SignOut(ctx context.Context) error {
	if c == nil {
		return ErrControllerNotReady
	}
	tok, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(tok)

	identityID := c.currentIdentityID()
	c.metrics.Inc(MetricSignOutRequested)

	err = c.guard("SignOut", func() error {
		return c.provider.SignOut(ctx)
	})
	if err != nil {
		c.metrics.Inc(MetricSignOutFailure)
		c.logger.Error("sessionctl: sign out failed", "identity_id", identityID, "error", err)
		c.emitAudit(ctx, auditEventSignOutFailure, false, identityID, err, nil)
		return err
	}
	return nil
}

// RefreshProfile reloads the profile of the current identity, even when one
// is cached, and waits for that load to settle or ctx to end. Without an
// identity it does nothing.
func (c *Controller) RefreshProfile(ctx context.Context) error {
	if c == nil {
		return ErrControllerNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state.User == nil {
		c.mu.Unlock()
		return nil
	}
	done := c.startProfileLoadLocked(c.state.User.ID)
	c.publishLocked()
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetPassword sends a reset email that redirects to the configured target.
func (c *Controller) ResetPassword(ctx context.Context, email string) error {
	if c == nil {
		return ErrControllerNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	tok, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(tok)

	c.metrics.Inc(MetricPasswordResetRequest)
	redirect := c.config.Auth.PasswordResetRedirect
	err = c.guard("ResetPasswordForEmail", func() error {
		return c.provider.ResetPasswordForEmail(ctx, email, redirect)
	})
	if err != nil {
		c.metrics.Inc(MetricPasswordResetFailure)
		c.logger.Warn("sessionctl: password reset request failed", "email", email, "error", err)
		c.emitAudit(ctx, auditEventPasswordResetRequest, false, "", err, func() map[string]string {
			return map[string]string{"email": email}
		})
		return err
	}
	c.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// UpdatePassword changes the password of the signed-in identity.
func (c *Controller) UpdatePassword(ctx context.Context, newPassword string) error {
	if c == nil {
		return ErrControllerNotReady
	}
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if min := c.config.Auth.MinPasswordLength; min > 0 && len([]rune(newPassword)) < min {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, min)
	}

	tok, err := c.begin()
	if err != nil {
		return err
	}
	defer c.end(tok)

	identityID := c.currentIdentityID()
	err = c.guard("UpdatePassword", func() error {
		return c.provider.UpdatePassword(ctx, newPassword)
	})
	if err != nil {
		c.metrics.Inc(MetricPasswordUpdateFailure)
		c.logger.Warn("sessionctl: password update failed", "identity_id", identityID, "error", err)
		c.emitAudit(ctx, auditEventPasswordUpdate, false, identityID, err, nil)
		return err
	}
	c.metrics.Inc(MetricPasswordUpdateSuccess)
	c.emitAudit(ctx, auditEventPasswordUpdate, true, identityID, nil, nil)
	return nil
}

// HasRole reports whether the loaded profile has role. It is false when no
// profile is loaded.
func (c *Controller) HasRole(role Role) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Profile != nil && c.state.Profile.Role == role
}

// IsRole is an alias of [Controller.HasRole].
func (c *Controller) IsRole(role Role) bool {
	return c.HasRole(role)
}

// MetricsSnapshot returns the controller's counters.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events lost to backpressure.
func (c *Controller) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Controller) begin() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrControllerClosed
	}
	tok := c.acquireLocked()
	c.publishLocked()
	return tok, nil
}

func (c *Controller) end(tok uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releaseLocked(tok) {
		c.publishLocked()
	}
}

func (c *Controller) acquireLocked() uint64 {
	c.nextToken++
	tok := c.nextToken
	c.busy[tok] = struct{}{}
	c.state.Loading = true
	return tok
}

// releaseLocked drops tok and reports whether Loading changed. Tokens that a
// SIGNED_OUT already cleared are ignored.
func (c *Controller) releaseLocked(tok uint64) bool {
	if _, ok := c.busy[tok]; !ok {
		return false
	}
	delete(c.busy, tok)
	loading := len(c.busy) > 0
	changed := loading != c.state.Loading
	c.state.Loading = loading
	return changed
}

func (c *Controller) forceIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.busy)
	c.state.Loading = false
	c.publishLocked()
}

func (c *Controller) currentIdentityID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.User == nil {
		return ""
	}
	return c.state.User.ID
}

func (c *Controller) snapshotLocked() State {
	var user *Identity
	if c.state.User != nil {
		u := *c.state.User
		user = &u
	}
	return State{
		Session: c.state.Session.clone(),
		User:    user,
		Profile: c.state.Profile.clone(),
		Loading: c.state.Loading,
	}
}

func (c *Controller) publishLocked() {
	c.hub.Publish(c.snapshotLocked())
}

// guard runs a collaborator call and converts a panic into an error so that
// nothing escapes to the caller unhandled.
func (c *Controller) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.Inc(MetricProviderPanic)
			c.logger.Error("sessionctl: collaborator panicked", "op", op, "panic", r)
			err = fmt.Errorf("%w: %s panicked: %v", ErrProviderUnavailable, op, r)
		}
	}()
	return fn()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
