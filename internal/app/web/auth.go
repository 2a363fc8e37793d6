package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/services/frontend"
)

// Error codes echoed on /auth/error.
const (
	errCodeInvalidCredentials = "invalid_credentials"
	errCodeInvalidEmail       = "invalid_email"
	errCodeWeakPassword       = "weak_password"
	errCodeEmailTaken         = "email_taken"
	errCodeServer             = "server_error"
)

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.CurrentUser(w, r); ok {
		redirect(w, r, "/")
		return
	}
	s.render(w, r, http.StatusOK, frontend.LoginPage(frontend.AuthForm{Email: r.URL.Query().Get("email")}))
}

func (s *Server) handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.CurrentUser(w, r); ok {
		redirect(w, r, "/")
		return
	}
	s.render(w, r, http.StatusOK, frontend.SignUpPage(frontend.AuthForm{}))
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, authErrorURL(errCodeServer, "The form could not be read."))
		return
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	resp, err := s.identity.Login(ctx, r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			redirect(w, r, authErrorURL(errCodeInvalidCredentials, err.Error()))
			return
		}
		s.logger.Error("login failed", "err", err)
		redirect(w, r, authErrorURL(errCodeServer, "Sign-in is unavailable right now."))
		return
	}
	s.sessions.SetSession(w, resp)
	s.logger.Info("user signed in", "user_id", resp.UserID)
	redirect(w, r, "/")
}

func (s *Server) handleSignUpSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirect(w, r, authErrorURL(errCodeServer, "The form could not be read."))
		return
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	resp, err := s.identity.Register(ctx, r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail):
			redirect(w, r, authErrorURL(errCodeInvalidEmail, err.Error()))
		case errors.Is(err, identity.ErrInvalidPassword):
			redirect(w, r, authErrorURL(errCodeWeakPassword, err.Error()))
		case errors.Is(err, identity.ErrEmailTaken):
			redirect(w, r, authErrorURL(errCodeEmailTaken, err.Error()))
		default:
			s.logger.Error("sign-up failed", "err", err)
			redirect(w, r, authErrorURL(errCodeServer, "Sign-up is unavailable right now."))
		}
		return
	}
	s.sessions.SetSession(w, resp)
	s.logger.Info("user registered", "user_id", resp.UserID)
	redirect(w, r, "/")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()
	if err := s.sessions.SignOut(ctx, w, r); err != nil {
		s.logger.Warn("sign out: revoke refresh token", "err", err)
	}
	redirect(w, r, "/auth/login")
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.render(w, r, http.StatusOK, frontend.AuthErrorPage(q.Get("error"), q.Get("error_description")))
}

func authErrorURL(code, description string) string {
	v := url.Values{}
	v.Set("error", code)
	v.Set("error_description", description)
	return "/auth/error?" + v.Encode()
}
