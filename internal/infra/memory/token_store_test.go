package memory

import (
	"context"
	"errors"
	"testing"

	"gig-geni-service/internal/domain"
)

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown user, got %v", err)
	}
	pair := domain.TokenPair{AccessToken: "a", RefreshToken: "r"}
	if err := store.Put(ctx, "u1", pair); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "u1")
	if err != nil || got != pair {
		t.Fatalf("expected stored pair, got %+v err=%v", got, err)
	}
	_ = store.Delete(ctx, "u1")
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected deleted pair gone, got %v", err)
	}
}
