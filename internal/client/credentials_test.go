package client

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestKeyringStore_RoundTrip(t *testing.T) {
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))

	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	want := Session{AccessToken: "a", RefreshToken: "r", UserID: "u", Email: "e@example.com"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, err := store.Load()
	if err != nil || got != want {
		t.Fatalf("Load = %+v, %v", got, err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear should be a no-op: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}
