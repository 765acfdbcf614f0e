package sessionctl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// startProfileLoadLocked begins an asynchronous profile lookup for
// identityID and returns a channel closed once the result has been applied
// or discarded. Any older load is superseded.
func (c *Controller) startProfileLoadLocked(identityID string) <-chan struct{} {
	c.invalidateLoadsLocked()
	gen := c.generation
	c.profileFor = identityID
	tok := c.acquireLocked()
	c.state.Profile = nil

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout := c.config.Profile.LoadTimeout; timeout > 0 {
		ctx, cancel = context.WithTimeout(c.baseCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(c.baseCtx)
	}
	c.cancelLoad = cancel

	done := make(chan struct{})
	c.metrics.Inc(MetricProfileLoadStarted)
	c.loads.Add(1)
	go func() {
		defer c.loads.Done()
		defer close(done)
		defer cancel()
		c.runProfileLoad(ctx, gen, tok, identityID)
	}()
	return done
}

// invalidateLoadsLocked makes every in-flight load stale.
func (c *Controller) invalidateLoadsLocked() {
	c.generation++
	c.profileFor = ""
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
}

func (c *Controller) runProfileLoad(ctx context.Context, gen, tok uint64, identityID string) {
	start := time.Now()
	row, err := c.fetchProfile(ctx, identityID)
	c.metrics.Observe(MetricProfileLoadLatency, time.Since(start))

	var profile *Profile
	if err == nil {
		profile = mapProfileRow(row)
	}

	c.mu.Lock()
	stale := gen != c.generation || c.state.User == nil || c.state.User.ID != identityID
	if stale {
		if c.releaseLocked(tok) {
			c.publishLocked()
		}
		c.mu.Unlock()
		c.metrics.Inc(MetricProfileLoadDiscarded)
		c.logger.Debug("sessionctl: stale profile load discarded", "identity_id", identityID)
		return
	}
	c.state.Profile = profile
	c.cancelLoad = nil
	c.releaseLocked(tok)
	c.publishLocked()
	c.mu.Unlock()

	c.reportProfileLoad(identityID, profile, err)
}

// fetchProfile calls the store and converts a panic into a store error.
func (c *Controller) fetchProfile(ctx context.Context, identityID string) (row *ProfileRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.Inc(MetricProviderPanic)
			err = fmt.Errorf("%w: lookup panicked: %v", ErrProfileStoreUnavailable, r)
		}
	}()
	row, err = c.store.FindProfileByIdentityID(ctx, identityID)
	if err == nil && row == nil {
		err = ErrProfileNotFound
	}
	return row, err
}

// reportProfileLoad logs and counts the outcome. A missing profile is the
// expected "setup incomplete" state and is logged below error level.
func (c *Controller) reportProfileLoad(identityID string, profile *Profile, err error) {
	ctx := context.Background()
	switch {
	case err == nil:
		c.metrics.Inc(MetricProfileLoadSuccess)
		c.logger.Info("sessionctl: profile loaded", "identity_id", identityID, "role", profile.Role)
		c.emitAudit(ctx, auditEventProfileLoaded, true, identityID, nil, func() map[string]string {
			return map[string]string{"role": string(profile.Role)}
		})
	case errors.Is(err, ErrProfileNotFound):
		c.metrics.Inc(MetricProfileLoadNotFound)
		c.logger.Warn("sessionctl: no profile for identity", "identity_id", identityID)
		c.emitAudit(ctx, auditEventProfileMissing, false, identityID, err, nil)
	case errors.Is(err, ErrProfileAccessDenied):
		c.metrics.Inc(MetricProfileLoadDenied)
		c.logger.Error("sessionctl: profile lookup denied by access policy", "identity_id", identityID, "error", err)
		c.emitAudit(ctx, auditEventProfileLoadFailure, false, identityID, err, nil)
	default:
		c.metrics.Inc(MetricProfileLoadError)
		c.logger.Error("sessionctl: profile lookup failed", "identity_id", identityID, "error", err)
		c.emitAudit(ctx, auditEventProfileLoadFailure, false, identityID, err, nil)
	}
}
