package sessionctl

import "context"

// handleAuthEvent is registered with the provider in Start. It may be called
// from any goroutine, including synchronously from inside a provider call.
func (c *Controller) handleAuthEvent(ev AuthEvent) {
	if c == nil {
		return
	}

	switch ev.Kind() {
	case EventSignedIn:
		c.metrics.Inc(MetricEventSignedIn)
		c.onSignedIn(ev.Session())
	case EventSignedOut:
		c.metrics.Inc(MetricEventSignedOut)
		c.onSignedOut()
	default:
		c.metrics.Inc(MetricEventOther)
		c.onPassiveEvent(ev.Detail(), ev.Session())
	}
}

// onSignedIn loads the profile only when the identity actually changed.
// Providers re-fire SIGNED_IN on refocus and token refresh; for the held
// identity only the session is swapped.
func (c *Controller) onSignedIn(sess *Session) {
	if sess == nil || sess.IdentityID == "" {
		c.logger.Warn("sessionctl: SIGNED_IN without identity ignored")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.state.User != nil && c.state.User.ID == sess.IdentityID {
		c.state.Session = sess.clone()
		c.state.User = sess.Identity()
		c.metrics.Inc(MetricDuplicateSignInSuppressed)
		c.logger.Debug("sessionctl: duplicate SIGNED_IN, profile load skipped", "identity_id", sess.IdentityID)
		c.publishLocked()
		return
	}

	c.logger.Info("sessionctl: signed in", "identity_id", sess.IdentityID)
	c.state.Session = sess.clone()
	c.state.User = sess.Identity()
	c.startProfileLoadLocked(sess.IdentityID)
	c.publishLocked()
}

// onSignedOut clears the whole state in one step, abandons in-flight work,
// and schedules navigation to the landing route.
func (c *Controller) onSignedOut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	var identityID string
	if c.state.User != nil {
		identityID = c.state.User.ID
	}

	c.invalidateLoadsLocked()
	c.state = State{}
	clear(c.busy)
	c.publishLocked()
	c.scheduleNavigationLocked()
	c.mu.Unlock()

	c.logger.Info("sessionctl: signed out", "identity_id", identityID)
	c.emitAudit(context.Background(), auditEventSignOutSuccess, true, identityID, nil, nil)
}

// onPassiveEvent mirrors the provider's session without loading anything.
// When the identity disappears or changes, the profile that belonged to the
// old identity is dropped with it.
func (c *Controller) onPassiveEvent(detail string, sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.logger.Debug("sessionctl: auth event", "event", detail)

	if sess == nil || sess.IdentityID == "" {
		if c.state.Session == nil && c.state.User == nil {
			return
		}
		c.invalidateLoadsLocked()
		c.state.Session = nil
		c.state.User = nil
		c.state.Profile = nil
		c.publishLocked()
		return
	}

	if c.state.User != nil && c.state.User.ID != sess.IdentityID {
		c.invalidateLoadsLocked()
		c.state.Profile = nil
	}
	c.state.Session = sess.clone()
	c.state.User = sess.Identity()
	c.publishLocked()
}
