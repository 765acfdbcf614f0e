package sessionctl

import (
	"context"
	"errors"
	"testing"
)

func TestFromContextOutsideScope(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrControllerNotReady) {
		t.Fatalf("expected ErrControllerNotReady, got %v", err)
	}
}

func TestFromContextReturnsScopedController(t *testing.T) {
	c := buildTestController(t, testConfig(), newFakeProvider(), newFakeStore(), nil)

	ctx := NewContext(context.Background(), c)
	got, err := FromContext(ctx)
	if err != nil {
		t.Fatalf("FromContext failed: %v", err)
	}
	if got != c {
		t.Fatal("expected the scoped controller")
	}
}
