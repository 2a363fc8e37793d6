package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/daily-planner/planner/internal/platform/auth"
)

var (
	ErrInvalidEmail        = errors.New("a valid email address is required")
	ErrInvalidPassword     = errors.New("password must be at least 8 characters")
	ErrEmailTaken          = errors.New("an account with this email already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrRefreshTokenMissing = errors.New("refresh_token is required")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthenticated     = errors.New("not signed in")
)

const (
	minPasswordLength  = 8
	refreshSecretBytes = 32

	// RotationGrace is how long a rotated refresh token keeps resolving to
	// the session that replaced it.
	RotationGrace = 10 * time.Second
)

// Identity is the signed-in user as seen by request handlers.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type AuthResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
}

func (a AuthResponse) Identity() Identity {
	return Identity{UserID: a.UserID, Email: a.Email}
}

type Service struct {
	Repo       Repository
	AuthToken  auth.Manager
	NewID      func() string
	NewSecret  func() (string, error)
	RefreshTTL time.Duration
	Grace      time.Duration
	Now        func() time.Time

	mu        sync.Mutex
	rotations map[string]*rotation
}

// rotation is one in-flight or recently finished refresh, keyed by the hash of
// the token it consumed.
type rotation struct {
	done chan struct{}
	at   time.Time
	resp AuthResponse
	err  error
}

func NewService(repo Repository, tokenManager auth.Manager, refreshTTL time.Duration) *Service {
	return &Service{
		Repo:       repo,
		AuthToken:  tokenManager,
		NewID:      nuid.Next,
		NewSecret:  newRefreshSecret,
		RefreshTTL: refreshTTL,
		Grace:      RotationGrace,
		Now:        func() time.Time { return time.Now().UTC() },
		rotations:  map[string]*rotation{},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	addr, err := mail.ParseAddress(normalizeEmail(email))
	if err != nil || addr.Address != normalizeEmail(email) {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

func (s *Service) Register(ctx context.Context, email, password string) (AuthResponse, error) {
	if err := validateCredentials(email, password); err != nil {
		return AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResponse{}, err
	}

	u := User{
		ID:           s.NewID(),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		CreatedAt:    s.Now(),
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

func (s *Service) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	addr := normalizeEmail(email)
	if addr == "" || password == "" {
		return AuthResponse{}, ErrInvalidCredentials
	}

	u, err := s.Repo.FindUserByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidCredentials
		}
		return AuthResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return AuthResponse{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, u)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. Callers presenting the same token while it rotates, or
// within Grace of it, receive the same replacement session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AuthResponse{}, ErrRefreshTokenMissing
	}
	hash := hashRefreshToken(refreshToken)

	s.mu.Lock()
	s.pruneRotations(s.Now())
	if rot, ok := s.rotations[hash]; ok {
		s.mu.Unlock()
		select {
		case <-rot.done:
			return rot.resp, rot.err
		case <-ctx.Done():
			return AuthResponse{}, ctx.Err()
		}
	}
	rot := &rotation{done: make(chan struct{}), at: s.Now()}
	if s.rotations == nil {
		s.rotations = map[string]*rotation{}
	}
	s.rotations[hash] = rot
	s.mu.Unlock()

	rot.resp, rot.err = s.rotate(ctx, hash)
	if rot.err != nil {
		s.mu.Lock()
		delete(s.rotations, hash)
		s.mu.Unlock()
	}
	close(rot.done)
	return rot.resp, rot.err
}

func (s *Service) rotate(ctx context.Context, hash string) (AuthResponse, error) {
	session, err := s.Repo.FindRefreshTokenByHash(ctx, hash, s.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidRefreshToken
		}
		return AuthResponse{}, err
	}
	if err := s.Repo.RevokeRefreshToken(ctx, session.TokenID, s.Now()); err != nil {
		return AuthResponse{}, err
	}

	u, err := s.Repo.FindUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResponse{}, ErrInvalidRefreshToken
		}
		return AuthResponse{}, err
	}
	return s.issueSession(ctx, u)
}

// pruneRotations drops finished rotations older than the grace window.
// s.mu must be held.
func (s *Service) pruneRotations(now time.Time) {
	for hash, rot := range s.rotations {
		select {
		case <-rot.done:
			if now.Sub(rot.at) >= s.Grace {
				delete(s.rotations, hash)
			}
		default:
		}
	}
}

// forgetRotations stops a signed-out token, and any token it replaced, from
// resolving through the grace window.
func (s *Service) forgetRotations(refreshToken, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rotations, hash)
	for h, rot := range s.rotations {
		select {
		case <-rot.done:
			if rot.resp.RefreshToken == refreshToken {
				delete(s.rotations, h)
			}
		default:
		}
	}
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrRefreshTokenMissing
	}
	hash := hashRefreshToken(refreshToken)
	s.forgetRotations(refreshToken, hash)
	session, err := s.Repo.FindRefreshTokenByHash(ctx, hash, s.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Repo.RevokeRefreshToken(ctx, session.TokenID, s.Now())
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(accessToken string) (Identity, error) {
	if accessToken == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := s.AuthToken.Parse(accessToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID(), Email: claims.Email}, nil
}

func (s *Service) issueSession(ctx context.Context, user User) (AuthResponse, error) {
	accessToken, err := s.AuthToken.Sign(user.ID, user.Email)
	if err != nil {
		return AuthResponse{}, err
	}

	now := s.Now()
	refreshToken, err := s.NewSecret()
	if err != nil {
		return AuthResponse{}, err
	}
	session := RefreshToken{
		TokenID:   s.NewID(),
		UserID:    user.ID,
		TokenHash: hashRefreshToken(refreshToken),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
	}
	if err := s.Repo.CreateRefreshToken(ctx, session); err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresAt:        now.Add(s.AuthToken.TTL),
		RefreshExpiresAt: session.ExpiresAt,
		UserID:           user.ID,
		Email:            user.Email,
	}, nil
}

// newRefreshSecret returns an unguessable bearer secret. IDs from NewID are
// sequential and must never be used here.
func newRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
