package sessionctl

import "errors"

var (
	// ErrInvalidCredentials is returned when the provider rejects an email/password pair
	// or an expired reset link.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailRequired is returned when an operation needs an email and got a blank one.
	ErrEmailRequired = errors.New("email required")
	// ErrPasswordRequired is returned when an operation needs a password and got an empty one.
	ErrPasswordRequired = errors.New("password required")
	// ErrPasswordPolicy is returned when a new password fails the configured policy.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrSignUpInvalid wraps sign-up seed validation failures.
	ErrSignUpInvalid = errors.New("invalid sign-up request")
	// ErrProviderUnavailable is returned when the auth provider cannot be reached
	// or misbehaves.
	ErrProviderUnavailable = errors.New("auth provider unavailable")
	// ErrNotSignedIn is returned by operations that need a current identity.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrSessionNotFound is returned by providers and stores when no session is persisted.
	ErrSessionNotFound = errors.New("session not found")
	// ErrProfileNotFound is returned by profile stores for zero matching rows.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileAccessDenied is returned by profile stores when a row-level
	// access policy rejects the lookup.
	ErrProfileAccessDenied = errors.New("profile access denied by policy")
	// ErrProfileStoreUnavailable is returned by profile stores for transport failures.
	ErrProfileStoreUnavailable = errors.New("profile store unavailable")
	// ErrControllerClosed is returned by operations invoked after Close.
	ErrControllerClosed = errors.New("session controller closed")
	// ErrControllerNotReady is returned when a nil controller is used.
	ErrControllerNotReady = errors.New("session controller not initialized")
	// ErrNavigationFailed is logged when both navigation attempts fail.
	ErrNavigationFailed = errors.New("navigation failed")
)
