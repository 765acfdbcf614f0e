package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/edudashpro/sessionctl"
	"github.com/edudashpro/sessionctl/jwt"
	"github.com/edudashpro/sessionctl/session"
)

// Config points the client at a GoTrue-compatible auth server.
type Config struct {
	// BaseURL is the auth root, e.g. https://project.supabase.co/auth/v1.
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// DeviceID selects the persisted session slot.
	DeviceID string
	// HTTPTimeout bounds every request.
	HTTPTimeout time.Duration
	// SessionRetention keeps the persisted session past access-token expiry
	// so it can still be refreshed.
	SessionRetention time.Duration
	// RefreshMargin refreshes a restored session that expires within it.
	RefreshMargin time.Duration
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.DeviceID == "" {
		c.DeviceID = "default"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.SessionRetention <= 0 {
		c.SessionRetention = 30 * 24 * time.Hour
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = time.Minute
	}
	return c
}

// Client implements [sessionctl.AuthProvider] against the GoTrue REST API.
// Sessions are persisted through a [session.Store] when one is given.
type Client struct {
	cfg    Config
	http   *http.Client
	store  *session.Store
	tokens *jwt.Manager
	logger *slog.Logger

	mu        sync.Mutex
	current   *sessionctl.Session
	listeners map[uint64]func(sessionctl.AuthEvent)
	nextID    uint64

	stopRevocations func()
}

// New returns a Client. store and tokens may be nil: without a store the
// session lives in memory only, and without a token manager access tokens
// are read without signature verification.
func New(cfg Config, store *session.Store, tokens *jwt.Manager, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("gotrue base url required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gotrue base url: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		store:     store,
		tokens:    tokens,
		logger:    logger.With("component", "gotrue"),
		listeners: make(map[uint64]func(sessionctl.AuthEvent)),
	}, nil
}

// CurrentSession returns the in-memory session, or restores the persisted
// one, refreshing it first when it is about to expire. No session is not an
// error.
func (c *Client) CurrentSession(ctx context.Context) (*sessionctl.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current != nil && !current.Expired(time.Now().Add(c.cfg.RefreshMargin)) {
		return copySession(current), nil
	}

	if current == nil {
		if c.store == nil {
			return nil, nil
		}
		stored, err := c.store.Load(ctx, c.cfg.DeviceID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil, nil
			}
			if errors.Is(err, session.ErrSessionCorrupt) {
				c.logger.Warn("gotrue: discarding corrupt persisted session", "error", err)
				_ = c.store.Delete(ctx, c.cfg.DeviceID)
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %v", sessionctl.ErrProviderUnavailable, err)
		}
		current = fromStored(stored)
	}

	if !current.Expired(time.Now().Add(c.cfg.RefreshMargin)) {
		c.mu.Lock()
		c.current = current
		c.mu.Unlock()
		return copySession(current), nil
	}

	refreshed, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		if errors.Is(err, sessionctl.ErrInvalidCredentials) {
			c.logger.Info("gotrue: persisted session no longer refreshable", "identity_id", current.IdentityID)
			c.forget(ctx)
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

// Refresh exchanges the current refresh token for a new session and emits a
// TOKEN_REFRESHED event.
func (c *Client) Refresh(ctx context.Context) (*sessionctl.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return nil, sessionctl.ErrNotSignedIn
	}
	return c.refresh(ctx, current.RefreshToken)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*sessionctl.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	sess, err := c.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.adopt(ctx, sess)
	c.emit(sessionctl.OtherEvent("TOKEN_REFRESHED", sess))
	return copySession(sess), nil
}

// SignInWithPassword runs the password grant and emits SIGNED_IN.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*sessionctl.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	sess, err := c.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.adopt(ctx, sess)
	c.emit(sessionctl.SignedIn(sess))
	return copySession(sess), nil
}

// SignUp registers an account with metadata as user data. When the server
// auto-confirms and returns a session, the client signs in with it.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) error {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/signup", "", signUpRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return nil
	}
	sess, err := c.sessionFromToken(resp)
	if err != nil {
		return err
	}
	c.adopt(ctx, sess)
	c.emit(sessionctl.SignedIn(sess))
	return nil
}

// SignOut revokes the session server-side, forgets it locally, tells other
// devices, and emits SIGNED_OUT. Without a session it only emits.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current != nil {
		err := c.do(ctx, http.MethodPost, "/logout", current.AccessToken, nil, nil)
		// An already-invalid token means the server has nothing to revoke.
		if err != nil && !errors.Is(err, sessionctl.ErrInvalidCredentials) {
			return err
		}
		if c.store != nil {
			if err := c.store.PublishRevocation(ctx, current.IdentityID); err != nil {
				c.logger.Warn("gotrue: revocation broadcast failed", "identity_id", current.IdentityID, "error", err)
			}
		}
	}

	c.forget(ctx)
	c.emit(sessionctl.SignedOut())
	return nil
}

// ResetPasswordForEmail asks the server to mail a recovery link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword changes the password of the signed-in user and emits
// USER_UPDATED.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		return sessionctl.ErrNotSignedIn
	}

	if err := c.do(ctx, http.MethodPut, "/user", current.AccessToken, map[string]string{
		"password": newPassword,
	}, nil); err != nil {
		return err
	}
	c.emit(sessionctl.OtherEvent("USER_UPDATED", current))
	return nil
}

// OnAuthStateChange registers fn for every auth event.
func (c *Client) OnAuthStateChange(fn func(sessionctl.AuthEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// WatchRevocations signs this device out when another device revokes the
// same identity. It requires a session store.
func (c *Client) WatchRevocations(ctx context.Context) error {
	if c.store == nil {
		return errors.New("gotrue: revocation watch requires a session store")
	}
	stop, err := c.store.SubscribeRevocations(ctx, func(identityID string) {
		c.mu.Lock()
		current := c.current
		c.mu.Unlock()
		if current == nil || current.IdentityID != identityID {
			return
		}
		c.logger.Info("gotrue: session revoked elsewhere", "identity_id", identityID)
		c.forget(context.Background())
		c.emit(sessionctl.SignedOut())
	})
	if err != nil {
		return fmt.Errorf("%w: %v", sessionctl.ErrProviderUnavailable, err)
	}

	c.mu.Lock()
	prev := c.stopRevocations
	c.stopRevocations = stop
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

// Close stops the revocation watch.
func (c *Client) Close() {
	c.mu.Lock()
	stop := c.stopRevocations
	c.stopRevocations = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *Client) adopt(ctx context.Context, sess *sessionctl.Session) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, toStored(c.cfg.DeviceID, sess), c.cfg.SessionRetention); err != nil {
		c.logger.Warn("gotrue: persist session failed", "identity_id", sess.IdentityID, "error", err)
	}
}

func (c *Client) forget(ctx context.Context) {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.cfg.DeviceID); err != nil {
		c.logger.Warn("gotrue: delete persisted session failed", "error", err)
	}
}

func (c *Client) emit(ev sessionctl.AuthEvent) {
	c.mu.Lock()
	fns := make([]func(sessionctl.AuthEvent), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		c.deliver(fn, ev)
	}
}

func (c *Client) deliver(fn func(sessionctl.AuthEvent), ev sessionctl.AuthEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("gotrue: auth listener panicked", "event", ev.Kind().String(), "panic", r)
		}
	}()
	fn(ev)
}

// do sends one JSON request. out may be nil.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sessionctl.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", sessionctl.ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", sessionctl.ErrProviderUnavailable, err)
	}
	return nil
}

func (c *Client) sessionFromToken(resp tokenResponse) (*sessionctl.Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", sessionctl.ErrProviderUnavailable)
	}

	var (
		claims *jwt.Claims
		err    error
	)
	if c.tokens != nil {
		claims, err = c.tokens.Parse(resp.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("%w: untrusted access token: %v", sessionctl.ErrProviderUnavailable, err)
		}
	} else {
		claims, _ = jwt.ParseUnverified(resp.AccessToken)
	}

	now := time.Now()
	sess := &sessionctl.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		IdentityID:   resp.User.ID,
		Email:        resp.User.Email,
		IssuedAt:     now,
	}
	if claims != nil {
		if sess.IdentityID == "" {
			sess.IdentityID = claims.Subject
		}
		if sess.Email == "" {
			sess.Email = claims.Email
		}
		sess.ExpiresAt = claims.ExpiresAtTime()
	}
	switch {
	case resp.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0 && sess.ExpiresAt.IsZero():
		sess.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if sess.TokenType == "" {
		sess.TokenType = "bearer"
	}
	if sess.IdentityID == "" {
		return nil, fmt.Errorf("%w: response carried no user id", sessionctl.ErrProviderUnavailable)
	}
	return sess, nil
}

func copySession(s *sessionctl.Session) *sessionctl.Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func toStored(deviceID string, s *sessionctl.Session) *session.Session {
	stored := &session.Session{
		DeviceID:     deviceID,
		IdentityID:   s.IdentityID,
		Email:        s.Email,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	if !s.IssuedAt.IsZero() {
		stored.IssuedAt = s.IssuedAt.Unix()
	}
	if !s.ExpiresAt.IsZero() {
		stored.ExpiresAt = s.ExpiresAt.Unix()
	}
	return stored
}

func fromStored(s *session.Session) *sessionctl.Session {
	out := &sessionctl.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		IdentityID:   s.IdentityID,
		Email:        s.Email,
	}
	if s.IssuedAt > 0 {
		out.IssuedAt = time.Unix(s.IssuedAt, 0)
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return out
}
