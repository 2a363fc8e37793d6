package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daily-planner/planner/internal/platform/auth"
)

type fakeRepo struct {
	mu            sync.Mutex
	users         map[string]User
	refreshByHash map[string]RefreshToken

	createErr error
	findErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         map[string]User{},
		refreshByHash: map[string]RefreshToken{},
	}
}

func (f *fakeRepo) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeRepo) CreateUser(ctx context.Context, user User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeRepo) FindUserByEmail(ctx context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return User{}, f.findErr
	}
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (f *fakeRepo) FindUserByID(ctx context.Context, userID string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshByHash[token.TokenHash] = token
	return nil
}

func (f *fakeRepo) FindRefreshTokenByHash(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.refreshByHash[tokenHash]
	if !ok || rt.RevokedAt != nil || !rt.ExpiresAt.After(now) {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (f *fakeRepo) RevokeRefreshToken(ctx context.Context, tokenID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, rt := range f.refreshByHash {
		if rt.TokenID == tokenID {
			rt.RevokedAt = &at
			f.refreshByHash[hash] = rt
		}
	}
	return nil
}

var testNow = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func testTokenManager() auth.Manager {
	m := auth.NewManager("secret", time.Hour)
	m.Now = func() time.Time { return testNow }
	return m
}

func newTestService(repo Repository) *Service {
	svc := NewService(repo, testTokenManager(), 24*time.Hour)
	svc.Now = func() time.Time { return testNow }
	next := 0
	svc.NewID = func() string {
		next++
		return fmt.Sprintf("id-%d", next)
	}
	return svc
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	reg, err := svc.Register(ctx, " Alice@Example.com ", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if reg.AccessToken == "" || reg.RefreshToken == "" || reg.UserID == "" {
		t.Fatalf("unexpected register response: %+v", reg)
	}
	if reg.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", reg.Email)
	}

	login, err := svc.Login(ctx, "ALICE@example.com", "password123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("expected refresh token rotation")
	}
	svc.Now = func() time.Time { return testNow.Add(RotationGrace) }
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected rotated token to be rejected, got %v", err)
	}

	if err := svc.Logout(ctx, refreshed.RefreshToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := svc.Refresh(ctx, refreshed.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected logged out token to be rejected, got %v", err)
	}
}

func TestRefreshTokensAreUnguessable(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()

	a, err := svc.Register(ctx, "gina@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	b, err := svc.Register(ctx, "hank@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if len(tok) != 43 || strings.Contains(tok, "id-") {
			t.Fatalf("expected a 32-byte base64url secret, got %q", tok)
		}
	}
	shared := 0
	for shared < len(a.RefreshToken) && a.RefreshToken[shared] == b.RefreshToken[shared] {
		shared++
	}
	if shared >= 6 {
		t.Fatalf("consecutive refresh tokens share a %d-character prefix: %q %q", shared, a.RefreshToken, b.RefreshToken)
	}

	svc.NewSecret = func() (string, error) { return "", errors.New("entropy exhausted") }
	if _, err := svc.Login(ctx, "gina@example.com", "password123"); err == nil {
		t.Fatal("expected secret generation failure to abort the session")
	}
}

func TestRefresh_ReplayWithinGraceSharesRotation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "ivy@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]AuthResponse, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(ctx, reg.RefreshToken)
		}(i)
	}
	wg.Wait()
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Refresh error: %v", i, errs[i])
		}
		if results[i].RefreshToken != results[0].RefreshToken {
			t.Fatalf("caller %d got a different successor", i)
		}
	}
	if results[0].RefreshToken == reg.RefreshToken {
		t.Fatal("expected refresh token rotation")
	}

	repo.mu.Lock()
	live := 0
	for _, rt := range repo.refreshByHash {
		if rt.RevokedAt == nil {
			live++
		}
	}
	repo.mu.Unlock()
	if live != 1 {
		t.Fatalf("expected exactly one live refresh token, got %d", live)
	}

	svc.Now = func() time.Time { return testNow.Add(RotationGrace - time.Second) }
	again, err := svc.Refresh(ctx, reg.RefreshToken)
	if err != nil || again.RefreshToken != results[0].RefreshToken {
		t.Fatalf("expected the same successor inside the grace window, got %+v %v", again, err)
	}

	svc.Now = func() time.Time { return testNow.Add(RotationGrace) }
	if _, err := svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected rejection after the grace window, got %v", err)
	}
}

func TestLogout_EndsGraceWindow(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()
	reg, err := svc.Register(ctx, "jack@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	next, err := svc.Refresh(ctx, reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if err := svc.Logout(ctx, next.RefreshToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if _, err := svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected signed-out session to stay closed, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", "password123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Register(ctx, "Bob <bob@example.com>", "password123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail for display-name form, got %v", err)
	}
	if _, err := svc.Register(ctx, "bob@example.com", "short"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()
	if _, err := svc.Register(ctx, "bob@example.com", "password123"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "BOB@example.com", "password456"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "carol@example.com", "password123"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := svc.Login(ctx, "carol@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	repo.findErr = errors.New("db down")
	if _, err := svc.Login(ctx, "carol@example.com", "password123"); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestRefresh_Expired(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx := context.Background()
	resp, err := svc.Register(ctx, "dave@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	svc.Now = func() time.Time { return testNow.Add(25 * time.Hour) }
	if _, err := svc.Refresh(ctx, resp.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "  "); !errors.Is(err, ErrRefreshTokenMissing) {
		t.Fatalf("expected ErrRefreshTokenMissing, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(newFakeRepo())
	resp, err := svc.Register(context.Background(), "erin@example.com", "password123")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	id, err := svc.Authenticate(resp.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if id.UserID != resp.UserID || id.Email != "erin@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if _, err := svc.Authenticate(""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.Authenticate("garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
