package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/edudashpro/sessionctl"
	"github.com/edudashpro/sessionctl/internal/rate"
	"github.com/edudashpro/sessionctl/jwt"
)

func TestTerminalNavigatorRecordsRoutes(t *testing.T) {
	var out bytes.Buffer
	n := newTerminalNavigator(&out)

	if err := n.Replace("/(auth)/sign-in"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	route, ok := n.wait(ctx)
	if !ok || route != "/(auth)/sign-in" {
		t.Fatalf("unexpected route %q ok=%v", route, ok)
	}
	if got := out.String(); got != "navigate (replace): /(auth)/sign-in\n" {
		t.Fatalf("unexpected output %q", got)
	}

	_ = n.Push("/a")
	_ = n.Push("/b")
	if !strings.Contains(out.String(), "navigate (push): /b") {
		t.Fatalf("push not printed: %q", out.String())
	}
}

func TestTerminalNavigatorWaitHonorsContext(t *testing.T) {
	n := newTerminalNavigator(&bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := n.wait(ctx); ok {
		t.Fatal("expected wait to give up on a cancelled context")
	}
}

func TestPrintStateSignedOut(t *testing.T) {
	var out bytes.Buffer
	if err := printState(&out, sessionctl.State{}, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	if out.String() != "Not signed in.\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPrintStateProfile(t *testing.T) {
	s := sessionctl.State{
		Session: &sessionctl.Session{IdentityID: "uid-1", Email: "thandi@school.example", ExpiresAt: time.Unix(1700000000, 0)},
		User:    &sessionctl.Identity{ID: "uid-1", Email: "thandi@school.example"},
		Profile: &sessionctl.Profile{
			ID:               "p-1",
			FirstName:        "Thandi",
			LastName:         "Nkosi",
			Role:             sessionctl.RoleTeacher,
			PreschoolID:      "school-9",
			IsActive:         true,
			CompletionStatus: sessionctl.CompletionComplete,
		},
	}

	var out bytes.Buffer
	if err := printState(&out, s, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	for _, want := range []string{
		"Signed in as: thandi@school.example (uid-1)",
		"Session expires: 2023-11-14T22:13:20Z",
		"Name: Thandi Nkosi",
		"Role: teacher",
		"Preschool: school-9",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in %q", want, out.String())
		}
	}
	if strings.Contains(out.String(), "inactive") {
		t.Fatalf("active profile reported inactive: %q", out.String())
	}
}

func TestPrintStateJSONMissingProfile(t *testing.T) {
	s := sessionctl.State{
		Session: &sessionctl.Session{IdentityID: "uid-2"},
		User:    &sessionctl.Identity{ID: "uid-2", Email: "new@example.com"},
	}

	var out bytes.Buffer
	if err := printState(&out, s, true); err != nil {
		t.Fatalf("print: %v", err)
	}
	var v stateView
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.SignedIn || !v.ProfileMissing || v.Profile != nil || v.IdentityID != "uid-2" {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestPrompterReadsLinesFromSharedBuffer(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("first-secret\r\nsecond-secret"), &out)

	a, err := p.secret("New password")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := p.secret("Confirm password")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a != "first-secret" || b != "second-secret" {
		t.Fatalf("unexpected secrets %q %q", a, b)
	}
	if out.String() != "New password: Confirm password: " {
		t.Fatalf("unexpected prompts %q", out.String())
	}

	if _, err := p.secret("Again"); err == nil {
		t.Fatal("expected EOF once input is exhausted")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	want := []string{"metrics", "reset-password", "signin", "signout", "signup", "update-password", "watch", "whoami"}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected commands %v", got)
	}
	for _, name := range []string{"env-file", "json", "timeout"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("missing persistent flag %q", name)
		}
	}
}

func TestSignUpFlagsNormalizeRole(t *testing.T) {
	d := signUpFlags{firstName: " Lerato ", lastName: "Mokoena", role: "principal"}.data()
	if d.FirstName != "Lerato" || d.Role != sessionctl.RolePrincipalAdmin {
		t.Fatalf("unexpected sign-up data %+v", d)
	}
}

/*
====================================
END TO END
====================================
*/

type authServer struct {
	t      *testing.T
	tokens *jwt.Manager

	mu    sync.Mutex
	paths []string
}

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		Secret:        []byte("cli-test-secret-with-at-least-32-characters"),
		Audience:      "authenticated",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	a := &authServer{t: t, tokens: m}
	srv := httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(srv.Close)
	return srv
}

func (a *authServer) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.paths = append(a.paths, r.URL.Path)
	a.mu.Unlock()

	switch r.URL.Path {
	case "/token":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "correct-horse" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		tok, err := a.tokens.Issue("uid-cli", body.Email, "sess-cli")
		if err != nil {
			a.t.Errorf("issue: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  tok,
			"token_type":    "bearer",
			"expires_in":    3600,
			"expires_at":    time.Now().Add(time.Hour).Unix(),
			"refresh_token": "refresh-cli",
			"user":          map[string]any{"id": "uid-cli", "email": body.Email},
		})
	case "/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func setupEnv(t *testing.T, gotrueURL, redisAddr string) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("EDUDASH_GOTRUE_URL", gotrueURL)
	t.Setenv("EDUDASH_LOG_LEVEL", "error")
	t.Setenv("EDUDASH_NAVIGATION_SIGNOUT_DELAY", "1ms")
	t.Setenv("EDUDASH_DEVICE_ID", "cli-test")
	if redisAddr != "" {
		t.Setenv("EDUDASH_REDIS_ADDR", redisAddr)
	} else {
		t.Setenv("EDUDASH_REDIS_ADDR", "")
		_ = os.Unsetenv("EDUDASH_REDIS_ADDR")
	}
	for _, k := range []string{"EDUDASH_POSTGRES_DSN", "EDUDASH_AUDIT_ENABLED", "EDUDASH_JWT_SECRET", "EDUDASH_NAVIGATION_DISABLED"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestSignInReportsMissingProfile(t *testing.T) {
	srv := newAuthServer(t)
	setupEnv(t, srv.URL, "")

	out, err := run(t, "", "signin", "--email", "new@example.com", "--password", "correct-horse")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if !strings.Contains(out, "Signed in as: new@example.com (uid-cli)") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "setup incomplete") {
		t.Fatalf("expected missing profile notice, got %q", out)
	}
}

func TestSignInPromptsForPassword(t *testing.T) {
	srv := newAuthServer(t)
	setupEnv(t, srv.URL, "")

	out, err := run(t, "correct-horse\n", "signin", "--email", "new@example.com")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if !strings.HasPrefix(out, "Password: ") {
		t.Fatalf("expected a password prompt, got %q", out)
	}
}

func TestSignInRejectedCredentials(t *testing.T) {
	srv := newAuthServer(t)
	setupEnv(t, srv.URL, "")

	_, err := run(t, "", "signin", "--email", "new@example.com", "--password", "wrong-password")
	if !errors.Is(err, sessionctl.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestSessionSurvivesAcrossInvocations(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newAuthServer(t)
	setupEnv(t, srv.URL, mr.Addr())

	if _, err := run(t, "", "signin", "--email", "kept@example.com", "--password", "correct-horse"); err != nil {
		t.Fatalf("signin: %v", err)
	}

	out, err := run(t, "", "--json", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var v stateView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !v.SignedIn || v.Email != "kept@example.com" {
		t.Fatalf("session not restored: %+v", v)
	}

	out, err = run(t, "", "signout")
	if err != nil {
		t.Fatalf("signout: %v", err)
	}
	if !strings.Contains(out, "navigate (replace): /(auth)/sign-in") || !strings.Contains(out, "Signed out.") {
		t.Fatalf("unexpected signout output %q", out)
	}

	out, err = run(t, "", "whoami")
	if err != nil {
		t.Fatalf("whoami after signout: %v", err)
	}
	if out != "Not signed in.\n" {
		t.Fatalf("session still present: %q", out)
	}
}

func TestSignInThrottledAfterRepeatedFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newAuthServer(t)
	setupEnv(t, srv.URL, mr.Addr())
	t.Setenv("EDUDASH_THROTTLE_SIGNIN_MAX", "2")

	for i := 0; i < 2; i++ {
		_, err := run(t, "", "signin", "--email", "locked@example.com", "--password", "wrong-password")
		if !errors.Is(err, sessionctl.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}

	_, err := run(t, "", "signin", "--email", "locked@example.com", "--password", "correct-horse")
	if !errors.Is(err, rate.ErrRateLimited) {
		t.Fatalf("expected throttle, got %v", err)
	}
}

func TestUpdatePasswordRejectsMismatch(t *testing.T) {
	_, err := run(t, "one-password\nother-password\n", "update-password")
	if !errors.Is(err, errPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestMetricsCommandRendersCounters(t *testing.T) {
	srv := newAuthServer(t)
	setupEnv(t, srv.URL, "")

	out, err := run(t, "", "metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if !strings.Contains(out, "sessionctl_sign_in_success_total 0") {
		t.Fatalf("unexpected exposition %q", out)
	}
}
