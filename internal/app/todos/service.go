package todos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nuid"

	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/platform/metrics"
	"github.com/daily-planner/planner/internal/platform/natsutil"
	"github.com/daily-planner/planner/internal/search"
	"github.com/daily-planner/planner/internal/sharding"
)

var (
	storeErrorsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "planner_todo_store_errors_total",
		Help: "Todo store calls that returned an unexpected error.",
	}, []string{"op"})

	eventsPublishedTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "planner_todo_events_published_total",
		Help: "Todo change events published to the change feed.",
	}, []string{"outcome"})
)

func init() {
	metrics.Default.MustRegister(storeErrorsTotal, eventsPublishedTotal)
}

// NewTodo is the user input for a create.
type NewTodo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type Service struct {
	Repo      Repository
	Publisher natsutil.Publisher
	Logger    *log.Logger
	Now       func() time.Time
	NewID     func() string
}

// NewService wires a todo service. publisher may be nil, in which case no
// change events are emitted.
func NewService(repo Repository, publisher natsutil.Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{
		Repo:      repo,
		Publisher: publisher,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
	}
}

// NormalizeDescription trims a description; blank input means absent.
func NormalizeDescription(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) List(ctx context.Context, f Filter) ([]Todo, error) {
	if strings.TrimSpace(f.UserID) == "" {
		return nil, ErrUserRequired
	}
	for _, d := range []string{f.Date, f.From, f.To} {
		if d != "" && !calendar.IsDate(d) {
			return nil, ErrInvalidDate
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return nil, ErrInvalidRange
	}
	list, err := s.Repo.List(ctx, f)
	if err != nil {
		s.storeFailed("list", err, "user_id", f.UserID, "date", f.Date, "from", f.From, "to", f.To)
		return nil, err
	}
	return list, nil
}

// Day lists one day's todos in creation order.
func (s *Service) Day(ctx context.Context, userID, date string) ([]Todo, error) {
	if date == "" {
		return nil, ErrInvalidDate
	}
	return s.List(ctx, Filter{UserID: userID, Date: date, Order: OrderCreated})
}

// Range lists todos with from <= date <= to.
func (s *Service) Range(ctx context.Context, userID, from, to string) ([]Todo, error) {
	if from == "" || to == "" {
		return nil, ErrInvalidDate
	}
	return s.List(ctx, Filter{UserID: userID, From: from, To: to, Order: OrderDateAsc})
}

// Search finds todos whose title or description contains query, newest date
// first. limit <= 0 returns every match.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Todo, error) {
	if !search.Qualifies(query) {
		return nil, ErrQueryTooShort
	}
	return s.List(ctx, Filter{
		UserID:   userID,
		Contains: search.Normalize(query),
		Order:    OrderDateDesc,
		Limit:    limit,
	})
}

func (s *Service) Create(ctx context.Context, userID string, in NewTodo) (Todo, error) {
	if strings.TrimSpace(userID) == "" {
		return Todo{}, ErrUserRequired
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Todo{}, ErrTitleRequired
	}
	if !calendar.IsDate(in.Date) {
		return Todo{}, ErrInvalidDate
	}

	created, err := s.Repo.Insert(ctx, Todo{
		UserID:      userID,
		Title:       title,
		Description: NormalizeDescription(in.Description),
		Date:        in.Date,
		CreatedAt:   s.Now(),
	})
	if err != nil {
		s.storeFailed("insert", err, "user_id", userID, "date", in.Date)
		return Todo{}, err
	}
	s.publish(contracts.TodoCreated, created)
	return created, nil
}

// Edit replaces title and description with the create normalization rules.
func (s *Service) Edit(ctx context.Context, userID, id, title, description string) (Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Todo{}, ErrTitleRequired
	}
	desc := strings.TrimSpace(description)
	return s.update(ctx, userID, id, Patch{Title: &title, Description: &desc}, contracts.TodoUpdated)
}

func (s *Service) SetCompleted(ctx context.Context, userID, id string, completed bool) (Todo, error) {
	return s.update(ctx, userID, id, Patch{Completed: &completed}, contracts.TodoToggled)
}

// Update applies a partial change. Title, when present, must be non-blank;
// description is trimmed and a blank value clears it.
func (s *Service) Update(ctx context.Context, userID, id string, p Patch) (Todo, error) {
	if p.empty() {
		return Todo{}, ErrNothingToApply
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Todo{}, ErrTitleRequired
		}
		p.Title = &title
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		p.Description = &desc
	}
	eventType := contracts.TodoUpdated
	if p.Title == nil && p.Description == nil {
		eventType = contracts.TodoToggled
	}
	return s.update(ctx, userID, id, p, eventType)
}

func (s *Service) update(ctx context.Context, userID, id string, p Patch, eventType string) (Todo, error) {
	if strings.TrimSpace(userID) == "" {
		return Todo{}, ErrUserRequired
	}
	updated, err := s.Repo.Update(ctx, userID, id, p)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.storeFailed("update", err, "user_id", userID, "todo_id", id)
		}
		return Todo{}, err
	}
	s.publish(eventType, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	if err := s.Repo.Delete(ctx, userID, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.storeFailed("delete", err, "user_id", userID, "todo_id", id)
		}
		return err
	}
	s.publish(contracts.TodoDeleted, Todo{ID: id, UserID: userID})
	return nil
}

func (s *Service) storeFailed(op string, err error, keyvals ...any) {
	storeErrorsTotal.WithLabelValues(op).Inc()
	s.Logger.Error("todo store "+op+" failed", append(keyvals, "err", err)...)
}

// publish is best effort: the store write already succeeded.
func (s *Service) publish(eventType string, t Todo) {
	if s.Publisher == nil {
		return
	}
	event := contracts.TodoEvent{
		EventID:    s.NewID(),
		EventType:  eventType,
		TodoID:     t.ID,
		UserID:     t.UserID,
		Date:       t.Date,
		Completed:  t.Completed,
		OccurredAt: s.Now(),
		ShardID:    sharding.GetShardID(t.UserID),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		eventsPublishedTotal.WithLabelValues("error").Inc()
		return
	}
	if err := s.Publisher.Publish(sharding.UserEventSubject(t.UserID), payload); err != nil {
		eventsPublishedTotal.WithLabelValues("error").Inc()
		s.Logger.Warn("publish todo event failed", "event_type", eventType, "todo_id", t.ID, "err", err)
		return
	}
	eventsPublishedTotal.WithLabelValues("ok").Inc()
}
