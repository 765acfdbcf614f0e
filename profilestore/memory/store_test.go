package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/edudashpro/sessionctl"
)

func TestStoreLookupLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.FindProfileByIdentityID(ctx, "uid-1"); !errors.Is(err, sessionctl.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	s.Put("uid-1", sessionctl.ProfileRow{ID: "prof-1", Email: "a@example.com", Role: "parent"})
	row, err := s.FindProfileByIdentityID(ctx, "uid-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if row.ID != "prof-1" || row.Role != "parent" {
		t.Fatalf("unexpected row %+v", row)
	}

	row.Role = "superadmin"
	again, _ := s.FindProfileByIdentityID(ctx, "uid-1")
	if again.Role != "parent" {
		t.Fatal("expected returned rows to be copies")
	}

	s.Deny("uid-1")
	if _, err := s.FindProfileByIdentityID(ctx, "uid-1"); !errors.Is(err, sessionctl.ErrProfileAccessDenied) {
		t.Fatalf("expected ErrProfileAccessDenied, got %v", err)
	}
	s.Allow("uid-1")
	if _, err := s.FindProfileByIdentityID(ctx, "uid-1"); err != nil {
		t.Fatalf("expected lookup after allow, got %v", err)
	}

	s.Delete("uid-1")
	if _, err := s.FindProfileByIdentityID(ctx, "uid-1"); !errors.Is(err, sessionctl.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound after delete, got %v", err)
	}
	if s.Calls() != 6 {
		t.Fatalf("expected 6 calls, got %d", s.Calls())
	}
}

func TestStoreHonoursCancellation(t *testing.T) {
	s := New()
	s.Put("uid-1", sessionctl.ProfileRow{ID: "prof-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.FindProfileByIdentityID(ctx, "uid-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Put("uid-1", sessionctl.ProfileRow{ID: "prof-1"})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.FindProfileByIdentityID(context.Background(), "uid-1")
		}()
	}
	wg.Wait()
	if s.Calls() != 16 {
		t.Fatalf("expected 16 calls, got %d", s.Calls())
	}
}
