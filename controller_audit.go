package sessionctl

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignInSuccess        = "sign_in_success"
	auditEventSignInFailure        = "sign_in_failure"
	auditEventSignUpSuccess        = "sign_up_success"
	auditEventSignUpFailure        = "sign_up_failure"
	auditEventSignOutSuccess       = "sign_out_success"
	auditEventSignOutFailure       = "sign_out_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordUpdate       = "password_update"
	auditEventProfileLoaded        = "profile_loaded"
	auditEventProfileMissing       = "profile_missing"
	auditEventProfileLoadFailure   = "profile_load_failure"
	auditEventNavigationFailed     = "navigation_failed"
)

// AuditErrorCode is the stable, non-sensitive error label written to audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrNotSignedIn        AuditErrorCode = "not_signed_in"
	auditErrProfileNotFound    AuditErrorCode = "profile_not_found"
	auditErrProfileDenied      AuditErrorCode = "profile_access_denied"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrNavigation         AuditErrorCode = "navigation_failed"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Controller) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		Success:    success,
		Metadata:   metadata,
	}
	if p := c.loadedProfileFor(identityID); p != nil {
		event.PreschoolID = p.PreschoolID
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func (c *Controller) loadedProfileFor(identityID string) *Profile {
	if identityID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.User == nil || c.state.User.ID != identityID {
		return nil
	}
	return c.state.Profile.clone()
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrSignUpInvalid):
		return auditErrValidation
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrNotSignedIn),
		errors.Is(err, ErrSessionNotFound):
		return auditErrNotSignedIn
	case errors.Is(err, ErrProfileNotFound):
		return auditErrProfileNotFound
	case errors.Is(err, ErrProfileAccessDenied):
		return auditErrProfileDenied
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrProfileStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrNavigationFailed):
		return auditErrNavigation
	default:
		return auditErrInternal
	}
}
