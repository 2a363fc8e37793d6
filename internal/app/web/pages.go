package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/search"
	"github.com/daily-planner/planner/internal/views"
	"github.com/daily-planner/planner/services/frontend"
)

func (s *Server) chrome(r *http.Request, title, notice string) frontend.Chrome {
	return frontend.Chrome{
		Title:  title,
		Email:  currentIdentity(r).Email,
		Notice: notice,
		Live:   s.feed != nil,
	}
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	var cursor time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		m, err := calendar.ParseMonth(raw)
		if err != nil {
			redirect(w, r, "/")
			return
		}
		cursor = m
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	v := views.NewCalendarView(s.todos, s.logger, currentIdentity(r).UserID, cursor, s.now)
	v.Load(ctx)
	s.render(w, r, http.StatusOK, frontend.CalendarPage(s.chrome(r, v.Title(), v.Notice), v))
}

// loadDay validates the {date} URL parameter and loads that day. It redirects
// home on a malformed date and reports false.
func (s *Server) loadDay(w http.ResponseWriter, r *http.Request) (*views.DayView, bool) {
	date := chi.URLParam(r, "date")
	if !calendar.IsDate(date) {
		redirect(w, r, "/")
		return nil, false
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	v := views.NewDayView(s.todos, s.logger, currentIdentity(r).UserID, date)
	v.Load(ctx)
	return v, true
}

func (s *Server) renderDay(w http.ResponseWriter, r *http.Request, status int, v *views.DayView) {
	s.render(w, r, status, frontend.DayPage(s.chrome(r, v.Heading(), v.Notice), v))
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadDay(w, r)
	if !ok {
		return
	}
	if edit := r.URL.Query().Get("edit"); edit != "" {
		v.BeginEdit(edit)
	}
	s.renderDay(w, r, http.StatusOK, v)
}

// mutateDay runs one day-view mutation. Success redirects back to the day;
// failure re-renders it with the notice and the unchanged list.
func (s *Server) mutateDay(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, v *views.DayView) bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	v, ok := s.loadDay(w, r)
	if !ok {
		return
	}
	if v.Notice != "" {
		s.renderDay(w, r, http.StatusServiceUnavailable, v)
		return
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()
	if !apply(ctx, v) {
		s.renderDay(w, r, noticeStatus(v.Notice), v)
		return
	}
	redirect(w, r, "/day/"+v.Date)
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	s.mutateDay(w, r, func(ctx context.Context, v *views.DayView) bool {
		return v.Create(ctx, r.PostForm.Get("title"), r.PostForm.Get("description"))
	})
}

func (s *Server) handleToggleTodo(w http.ResponseWriter, r *http.Request) {
	s.mutateDay(w, r, func(ctx context.Context, v *views.DayView) bool {
		return v.Toggle(ctx, chi.URLParam(r, "id"))
	})
}

func (s *Server) handleEditTodo(w http.ResponseWriter, r *http.Request) {
	s.mutateDay(w, r, func(ctx context.Context, v *views.DayView) bool {
		return v.SaveEdit(ctx, chi.URLParam(r, "id"), r.PostForm.Get("title"), r.PostForm.Get("description"))
	})
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	s.mutateDay(w, r, func(ctx context.Context, v *views.DayView) bool {
		return v.Delete(ctx, chi.URLParam(r, "id"))
	})
}

func noticeStatus(notice string) int {
	switch notice {
	case views.NoticeTitle:
		return http.StatusUnprocessableEntity
	case views.NoticeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if search.Qualifies(query) {
		searchRequestsTotal.WithLabelValues("page").Inc()
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	page := views.FullSearch(ctx, s.todos, s.logger, currentIdentity(r).UserID, query)
	c := s.chrome(r, "Search", page.Notice)
	c.Query = page.Query
	s.render(w, r, http.StatusOK, frontend.SearchResultsPage(c, page))
}

func (s *Server) handleInlineSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seq, _ := strconv.ParseUint(q.Get("seq"), 10, 64)
	if search.Qualifies(q.Get("q")) {
		searchRequestsTotal.WithLabelValues("inline").Inc()
	}
	ctx, cancel := s.storeContext(r)
	defer cancel()

	panel := views.InlineSearch(ctx, s.todos, s.logger, currentIdentity(r).UserID, q.Get("q"), seq, s.inlineLimit)
	s.render(w, r, http.StatusOK, frontend.SearchPanel(panel))
}
