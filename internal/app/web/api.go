package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/search"
)

func (s *Server) apiRoutes(r chi.Router) {
	r.Use(s.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/auth/register", s.handleAPIRegister)
	r.Post("/auth/login", s.handleAPILogin)
	r.Post("/auth/refresh", s.handleAPIRefresh)
	r.Post("/auth/logout", s.handleAPILogout)

	r.Group(func(authR chi.Router) {
		authR.Use(s.bearerAuth)
		authR.Get("/me", s.handleAPIMe)
		authR.Get("/todos", s.handleAPIListTodos)
		authR.Post("/todos", s.handleAPICreateTodo)
		authR.Patch("/todos/{id}", s.handleAPIUpdateTodo)
		authR.Delete("/todos/{id}", s.handleAPIDeleteTodo)
		authR.Get("/calendar", s.handleAPICalendar)
		authR.Get("/search", s.handleAPISearch)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type todoListResponse struct {
	Todos []todos.Todo `json:"todos"`
}

type searchResponse struct {
	Query string       `json:"query"`
	Seq   uint64       `json:"seq"`
	State search.State `json:"state"`
	Todos []todos.Todo `json:"todos"`
}

func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	s.writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleAPIRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, credentialsSchema, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	resp, err := s.identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrInvalidPassword):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrEmailTaken):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("api register", "err", err)
			s.writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, credentialsSchema, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	resp, err := s.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error("api login", "err", err)
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, refreshSchema, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	resp, err := s.identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrRefreshTokenMissing):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			s.writeError(w, http.StatusUnauthorized, err.Error())
		default:
			s.logger.Error("api refresh", "err", err)
			s.writeError(w, http.StatusInternalServerError, "refresh failed")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, refreshSchema, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	if err := s.identity.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, identity.ErrRefreshTokenMissing) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("api logout", "err", err)
		s.writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, currentIdentity(r))
}

// writeTodoError maps todo service errors onto API statuses.
func (s *Server) writeTodoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, todos.ErrTitleRequired),
		errors.Is(err, todos.ErrInvalidDate),
		errors.Is(err, todos.ErrInvalidRange),
		errors.Is(err, todos.ErrNothingToApply),
		errors.Is(err, todos.ErrQueryTooShort):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, todos.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "todo store unavailable")
	}
}

func (s *Server) handleAPIListTodos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := currentIdentity(r).UserID
	ctx, cancel := s.storeContext(r)
	defer cancel()

	var (
		list []todos.Todo
		err  error
	)
	switch {
	case q.Get("date") != "":
		list, err = s.todos.Day(ctx, userID, q.Get("date"))
	case q.Get("from") != "" && q.Get("to") != "":
		list, err = s.todos.Range(ctx, userID, q.Get("from"), q.Get("to"))
	default:
		s.writeError(w, http.StatusBadRequest, "date or from and to are required")
		return
	}
	if err != nil {
		s.writeTodoError(w, err)
		return
	}
	if list == nil {
		list = []todos.Todo{}
	}
	s.writeJSON(w, http.StatusOK, todoListResponse{Todos: list})
}

func (s *Server) handleAPICreateTodo(w http.ResponseWriter, r *http.Request) {
	var req todos.NewTodo
	if err := decodeBody(r, todoCreateSchema, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	created, err := s.todos.Create(ctx, currentIdentity(r).UserID, req)
	if err != nil {
		s.writeTodoError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAPIUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var patch todos.Patch
	if err := decodeBody(r, todoPatchSchema, &patch); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	updated, err := s.todos.Update(ctx, currentIdentity(r).UserID, chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeTodoError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAPIDeleteTodo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.todos.Delete(ctx, currentIdentity(r).UserID, chi.URLParam(r, "id")); err != nil {
		s.writeTodoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPICalendar(w http.ResponseWriter, r *http.Request) {
	cursor := s.now()
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		m, err := calendar.ParseMonth(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cursor = m
	}
	first := calendar.FirstOfMonth(cursor)
	ctx, cancel := s.storeContext(r)
	defer cancel()

	list, err := s.todos.Range(ctx, currentIdentity(r).UserID, calendar.FormatDate(first), calendar.FormatDate(calendar.LastOfMonth(first)))
	if err != nil {
		s.writeTodoError(w, err)
		return
	}
	entries := make([]calendar.Entry, 0, len(list))
	for _, t := range list {
		entries = append(entries, calendar.Entry{Date: t.Date, Completed: t.Completed})
	}
	s.writeJSON(w, http.StatusOK, monthResponse(calendar.BuildGrid(first, entries, s.now())))
}

func monthResponse(g calendar.Grid) contracts.CalendarMonth {
	out := contracts.CalendarMonth{
		Month: calendar.FormatMonth(g.Month),
		Prev:  calendar.FormatMonth(g.Prev),
		Next:  calendar.FormatMonth(g.Next),
		Days:  make([]contracts.CalendarDay, 0, len(g.Cells)),
	}
	for _, c := range g.Cells {
		out.Days = append(out.Days, contracts.CalendarDay{
			Date:    c.Key(),
			Day:     c.Day,
			InMonth: c.InMonth,
			Today:   c.IsToday,
			Count:   c.Count,
			Status:  string(c.Status),
		})
	}
	return out
}

// handleAPISearch answers both client surfaces: limit=0 (or absent) is the
// full result list, a positive limit the inline panel. Short queries never
// reach the store.
func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := searchResponse{Query: search.Normalize(q.Get("q")), State: search.StateIdle, Todos: []todos.Todo{}}
	if raw := q.Get("seq"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "seq must be a non-negative integer")
			return
		}
		resp.Seq = seq
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if !search.Qualifies(resp.Query) {
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	searchRequestsTotal.WithLabelValues("api").Inc()
	ctx, cancel := s.storeContext(r)
	defer cancel()
	list, err := s.todos.Search(ctx, currentIdentity(r).UserID, resp.Query, limit)
	if err != nil {
		s.writeTodoError(w, err)
		return
	}
	if list != nil {
		resp.Todos = list
	}
	resp.State = search.StateFor(resp.Query, len(list))
	s.writeJSON(w, http.StatusOK, resp)
}
