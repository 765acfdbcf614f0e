package sessionctl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// scheduleNavigationLocked arms the post sign-out redirect. A repeated
// SIGNED_OUT re-arms the timer rather than stacking a second redirect.
func (c *Controller) scheduleNavigationLocked() {
	if c.config.Navigation.Disabled || c.navigator == nil {
		return
	}
	if c.navTimer != nil {
		c.navTimer.Stop()
	}
	route := c.config.Navigation.LandingRoute
	c.navTimer = time.AfterFunc(c.config.Navigation.SignOutDelay, func() {
		c.navigate(route)
	})
}

// navigate tries Replace first and Push as a fallback. Failures are logged
// and never surfaced; sign-out has already completed.
func (c *Controller) navigate(route string) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	err := c.callNavigator(route, c.navigator.Replace)
	if err == nil {
		return
	}
	c.metrics.Inc(MetricNavigationFallback)
	c.logger.Warn("sessionctl: replace navigation failed, falling back to push", "route", route, "error", err)

	pushErr := c.callNavigator(route, c.navigator.Push)
	if pushErr == nil {
		return
	}
	c.metrics.Inc(MetricNavigationFailure)
	failure := fmt.Errorf("%w: %w", ErrNavigationFailed, errors.Join(err, pushErr))
	c.logger.Error("sessionctl: navigation to landing route failed", "route", route, "error", failure)
	c.emitAudit(context.Background(), auditEventNavigationFailed, false, "", failure, func() map[string]string {
		return map[string]string{"route": route}
	})
}

func (c *Controller) callNavigator(route string, fn func(string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("navigator panicked: %v", r)
		}
	}()
	return fn(route)
}
