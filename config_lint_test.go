package sessionctl

import (
	"testing"
	"time"
)

func TestLint_DefaultConfigNoWarnings(t *testing.T) {
	cfg := defaultConfig()
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected shipped defaults to lint clean, got %v", ws.Codes())
	}
}

func TestLint_Codes(t *testing.T) {
	tests := []struct {
		code   string
		mutate func(*Config)
	}{
		{"navigation_disabled", func(c *Config) { c.Navigation.Disabled = true }},
		{"signout_delay_zero", func(c *Config) { c.Navigation.SignOutDelay = 0 }},
		{"profile_timeout_unbounded", func(c *Config) { c.Profile.LoadTimeout = 0 }},
		{"password_min_length_short", func(c *Config) { c.Auth.MinPasswordLength = 6 }},
		{"reset_redirect_missing", func(c *Config) { c.Auth.PasswordResetRedirect = "" }},
		{"audit_blocking", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.DropIfFull = false
		}},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if !containsCode(cfg.Lint().Codes(), tc.code) {
				t.Fatalf("expected %s warning", tc.code)
			}
		})
	}
}

func TestLint_DisabledNavigationSkipsDelayWarning(t *testing.T) {
	cfg := defaultConfig()
	cfg.Navigation.Disabled = true
	cfg.Navigation.SignOutDelay = 0 * time.Millisecond

	if containsCode(cfg.Lint().Codes(), "signout_delay_zero") {
		t.Fatal("delay warning is irrelevant when navigation is disabled")
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
