package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daily-planner/planner/internal/platform/sqlitedb"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewSQLiteRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	return repo
}

func TestSQLiteRepository_Users(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	u := User{ID: "u1", Email: "alice@example.com", PasswordHash: "hash", CreatedAt: testNow}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := repo.CreateUser(ctx, User{ID: "u2", Email: "alice@example.com", PasswordHash: "x", CreatedAt: testNow}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	got, err := repo.FindUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail error: %v", err)
	}
	if got.ID != "u1" || !got.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := repo.FindUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteRepository_RefreshTokens(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	if err := repo.CreateUser(ctx, User{ID: "u1", Email: "a@example.com", PasswordHash: "h", CreatedAt: testNow}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	rt := RefreshToken{TokenID: "t1", UserID: "u1", TokenHash: "h1", ExpiresAt: testNow.Add(time.Hour), CreatedAt: testNow}
	if err := repo.CreateRefreshToken(ctx, rt); err != nil {
		t.Fatalf("CreateRefreshToken error: %v", err)
	}

	if _, err := repo.FindRefreshTokenByHash(ctx, "h1", testNow); err != nil {
		t.Fatalf("FindRefreshTokenByHash error: %v", err)
	}
	if _, err := repo.FindRefreshTokenByHash(ctx, "h1", testNow.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired token to be hidden, got %v", err)
	}

	if err := repo.RevokeRefreshToken(ctx, "t1", testNow); err != nil {
		t.Fatalf("RevokeRefreshToken error: %v", err)
	}
	if _, err := repo.FindRefreshTokenByHash(ctx, "h1", testNow); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked token to be hidden, got %v", err)
	}
}

func TestSQLiteRepository_ServiceRoundTrip(t *testing.T) {
	svc := newTestService(newSQLiteRepo(t))
	ctx := context.Background()
	reg, err := svc.Register(ctx, "frank@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Refresh(ctx, reg.RefreshToken); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
}
