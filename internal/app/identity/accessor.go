package identity

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const (
	AccessCookie  = "planner_access"
	RefreshCookie = "planner_refresh"
)

// Accessor resolves the signed-in user from browser cookies.
type Accessor struct {
	Service       *Service
	SecureCookies bool
	Logger        *log.Logger
}

func NewAccessor(svc *Service, secureCookies bool, logger *log.Logger) *Accessor {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Accessor{Service: svc, SecureCookies: secureCookies, Logger: logger}
}

// CurrentUser returns the identity carried by the access cookie. An expired or
// missing access token is renewed from the refresh cookie, and the rotated
// cookies are written to w. Any failure reports no session.
func (a *Accessor) CurrentUser(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	if c, err := r.Cookie(AccessCookie); err == nil {
		if id, err := a.Service.Authenticate(c.Value); err == nil {
			return id, true
		}
	}

	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		return Identity{}, false
	}
	resp, err := a.Service.Refresh(r.Context(), c.Value)
	if err != nil {
		a.Logger.Debug("session refresh failed", "err", err)
		a.ClearSession(w)
		return Identity{}, false
	}
	a.SetSession(w, resp)
	return resp.Identity(), true
}

func (a *Accessor) SetSession(w http.ResponseWriter, resp AuthResponse) {
	http.SetCookie(w, a.cookie(AccessCookie, resp.AccessToken, resp.RefreshExpiresAt))
	http.SetCookie(w, a.cookie(RefreshCookie, resp.RefreshToken, resp.RefreshExpiresAt))
}

func (a *Accessor) ClearSession(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c := a.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// SignOut revokes the refresh token behind the request's cookie and clears
// both cookies.
func (a *Accessor) SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer a.ClearSession(w)
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	return a.Service.Logout(ctx, c.Value)
}

func (a *Accessor) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

type identityContextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok && id.UserID != ""
}
