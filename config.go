package sessionctl

import (
	"errors"
	"strings"
	"time"
)

// Config controls controller behavior. Build clones the value, so later
// mutations by the caller have no effect on a running controller.
type Config struct {
	Navigation NavigationConfig
	Auth       AuthConfig
	Profile    ProfileConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
}

/*
====================================
NAVIGATION CONFIG
====================================
*/

// NavigationConfig controls the post sign-out redirect.
type NavigationConfig struct {
	// LandingRoute is the unauthenticated route shown after SIGNED_OUT.
	LandingRoute string
	// SignOutDelay postpones navigation so consumers observe the cleared state first.
	SignOutDelay time.Duration
	// Disabled skips navigation entirely (headless consumers).
	Disabled bool
}

/*
====================================
AUTH CONFIG
====================================
*/

// AuthConfig controls credential handling before delegation to the provider.
type AuthConfig struct {
	PasswordResetRedirect string
	MinPasswordLength     int
}

// ProfileConfig controls the profile load procedure.
type ProfileConfig struct {
	// LoadTimeout bounds a single profile lookup. Zero leaves the store's own
	// timeout in charge.
	LoadTimeout time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LoggingConfig selects the default slog handler used when no logger is injected.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// DefaultConfig returns the settings the mobile app ships with.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Navigation: NavigationConfig{
			LandingRoute: "/(auth)/sign-in",
			SignOutDelay: 100 * time.Millisecond,
		},
		Auth: AuthConfig{
			PasswordResetRedirect: "edudashpro://reset-password",
			MinPasswordLength:     8,
		},
		Profile: ProfileConfig{
			LoadTimeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !c.Navigation.Disabled {
		if strings.TrimSpace(c.Navigation.LandingRoute) == "" {
			return errors.New("Navigation LandingRoute must be set unless navigation is disabled")
		}
		if c.Navigation.SignOutDelay < 0 {
			return errors.New("Navigation SignOutDelay must be >= 0")
		}
		if c.Navigation.SignOutDelay > 10*time.Second {
			return errors.New("Navigation SignOutDelay must be <= 10s")
		}
	}

	if c.Auth.MinPasswordLength < 0 {
		return errors.New("Auth MinPasswordLength must be >= 0")
	}

	if c.Profile.LoadTimeout < 0 {
		return errors.New("Profile LoadTimeout must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("Logging Level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return errors.New("Logging Format must be json or text")
	}

	return nil
}

// LintWarning is a non-fatal observation about a valid configuration.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes lists warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint flags settings that are valid but likely wrong for a shipped app.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if c.Navigation.Disabled {
		ws = append(ws, LintWarning{
			Code:    "navigation_disabled",
			Message: "sign-out will not redirect to the landing route",
		})
	}
	if !c.Navigation.Disabled && c.Navigation.SignOutDelay == 0 {
		ws = append(ws, LintWarning{
			Code:    "signout_delay_zero",
			Message: "navigation may run before consumers observe the cleared state",
		})
	}
	if c.Profile.LoadTimeout == 0 {
		ws = append(ws, LintWarning{
			Code:    "profile_timeout_unbounded",
			Message: "profile loads rely solely on the store client's timeout",
		})
	}
	if c.Auth.MinPasswordLength < 8 {
		ws = append(ws, LintWarning{
			Code:    "password_min_length_short",
			Message: "passwords shorter than 8 characters are accepted before delegation",
		})
	}
	if strings.TrimSpace(c.Auth.PasswordResetRedirect) == "" {
		ws = append(ws, LintWarning{
			Code:    "reset_redirect_missing",
			Message: "password reset emails will use the provider default redirect",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "a slow audit sink will block controller operations",
		})
	}

	return ws
}
