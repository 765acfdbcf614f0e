package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	_ = os.Unsetenv(key)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"EDUDASH_GOTRUE_URL", "EDUDASH_DEVICE_ID", "EDUDASH_NAVIGATION_SIGNOUT_DELAY", "EDUDASH_AUDIT_ENABLED"} {
		unsetEnv(t, k)
	}

	s, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Controller.Navigation.SignOutDelay != 100*time.Millisecond {
		t.Fatalf("unexpected sign-out delay %v", s.Controller.Navigation.SignOutDelay)
	}
	if s.Controller.Auth.MinPasswordLength != 8 || s.Redis.Prefix != "sessionctl" {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.DeviceID == "" {
		t.Fatal("expected a derived device id")
	}
	if s.Throttle.MaxSignInFailures != 5 || s.Throttle.ResetWindow != time.Hour {
		t.Fatalf("unexpected throttle defaults %+v", s.Throttle)
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected missing gotrue url to fail validation")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EDUDASH_GOTRUE_URL", "https://project.supabase.co/auth/v1")
	t.Setenv("EDUDASH_DEVICE_ID", "tablet-7")
	t.Setenv("EDUDASH_NAVIGATION_SIGNOUT_DELAY", "250ms")
	t.Setenv("EDUDASH_PROFILE_LOAD_TIMEOUT", "3s")
	t.Setenv("EDUDASH_REDIS_DB", "4")
	t.Setenv("EDUDASH_POSTGRES_SCOPE_CLAIMS", "true")
	unsetEnv(t, "EDUDASH_AUDIT_ENABLED")

	s, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.GoTrue.URL != "https://project.supabase.co/auth/v1" || s.DeviceID != "tablet-7" {
		t.Fatalf("unexpected settings %+v", s)
	}
	if s.Controller.Navigation.SignOutDelay != 250*time.Millisecond || s.Controller.Profile.LoadTimeout != 3*time.Second {
		t.Fatalf("unexpected durations %+v", s.Controller)
	}
	if s.Redis.DB != 4 || !s.Postgres.ScopeClaims {
		t.Fatalf("unexpected store settings %+v %+v", s.Redis, s.Postgres)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "session.env")
	content := "EDUDASH_GOTRUE_URL=https://from-file.example.com/auth/v1\nEDUDASH_GOTRUE_API_KEY=file-key\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("EDUDASH_GOTRUE_URL", "https://from-env.example.com/auth/v1")
	unsetEnv(t, "EDUDASH_GOTRUE_API_KEY")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.GoTrue.URL != "https://from-env.example.com/auth/v1" {
		t.Fatalf("expected environment to win, got %q", s.GoTrue.URL)
	}
	if s.GoTrue.APIKey != "file-key" {
		t.Fatalf("expected api key from file, got %q", s.GoTrue.APIKey)
	}
}

func TestLoadMissingEnvFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("expected missing env file to fail")
	}
}

func TestValidateAuditNeedsBroker(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EDUDASH_GOTRUE_URL", "https://project.supabase.co/auth/v1")
	t.Setenv("EDUDASH_AUDIT_ENABLED", "true")
	unsetEnv(t, "EDUDASH_AMQP_URL")

	s, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected audit without broker to fail")
	}
}
