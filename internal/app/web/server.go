// Package web serves the planner's HTML pages, the JSON API used by the
// terminal client and the server-sent change feed.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/platform/logging"
	"github.com/daily-planner/planner/internal/platform/metrics"
	"github.com/daily-planner/planner/internal/search"
	"github.com/daily-planner/planner/services/frontend"
)

const defaultStoreTimeout = 5 * time.Second

// ReadyFunc reports whether the server's dependencies can take traffic.
type ReadyFunc func(ctx context.Context) error

type Options struct {
	Identity      *identity.Service
	Todos         *todos.Service
	Feed          *Feed
	Logger        *log.Logger
	Ready         ReadyFunc
	SecureCookies bool
	AllowedOrigin string
	InlineLimit   int
	StoreTimeout  time.Duration
	Now           func() time.Time
}

type Server struct {
	identity      *identity.Service
	sessions      *identity.Accessor
	todos         *todos.Service
	feed          *Feed
	logger        *log.Logger
	ready         ReadyFunc
	allowedOrigin string
	inlineLimit   int
	storeTimeout  time.Duration
	now           func() time.Time
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		identity:      opts.Identity,
		sessions:      identity.NewAccessor(opts.Identity, opts.SecureCookies, logger),
		todos:         opts.Todos,
		feed:          opts.Feed,
		logger:        logger,
		ready:         opts.Ready,
		allowedOrigin: opts.AllowedOrigin,
		inlineLimit:   opts.InlineLimit,
		storeTimeout:  opts.StoreTimeout,
		now:           opts.Now,
	}
	if s.inlineLimit <= 0 {
		s.inlineLimit = search.InlineLimit
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = defaultStoreTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", metrics.DefaultHandler())
	r.Handle("/static/*", http.StripPrefix("/static/", frontend.StaticHandler()))

	r.Get("/auth/login", s.handleLoginPage)
	r.Post("/auth/login", s.handleLoginSubmit)
	r.Get("/auth/sign-up", s.handleSignUpPage)
	r.Post("/auth/sign-up", s.handleSignUpSubmit)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/error", s.handleAuthError)

	r.Group(func(pages chi.Router) {
		pages.Use(s.requireSession(true))
		pages.Get("/", s.handleCalendar)
		pages.Get("/day/{date}", s.handleDay)
		pages.Post("/day/{date}/todos", s.handleCreateTodo)
		pages.Post("/day/{date}/todos/{id}/toggle", s.handleToggleTodo)
		pages.Post("/day/{date}/todos/{id}/edit", s.handleEditTodo)
		pages.Post("/day/{date}/todos/{id}/delete", s.handleDeleteTodo)
		pages.Get("/search", s.handleSearchPage)
	})

	r.Group(func(fragments chi.Router) {
		fragments.Use(s.requireSession(false))
		fragments.Get("/ui/search", s.handleInlineSearch)
		fragments.Get("/events", s.handleEvents)
	})

	r.Route("/api/v1", s.apiRoutes)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1500*time.Millisecond)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	s.handleHealthz(w, r)
}

// instrument logs each request and records it under its route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpRequestDuration.Observe(elapsed.Seconds(), route)
		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// storeContext bounds one store round-trip made on behalf of r.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.storeTimeout)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		s.logger.Error("render page", "path", r.URL.Path, "err", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}
