package todos

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("todo not found")
	ErrTitleRequired  = errors.New("title is required")
	ErrInvalidDate    = errors.New("date must be a valid YYYY-MM-DD calendar date")
	ErrInvalidRange   = errors.New("from must not be after to")
	ErrUserRequired   = errors.New("user_id is required")
	ErrQueryTooShort  = errors.New("search query is too short")
	ErrNothingToApply = errors.New("no fields to update")
)

type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// DescriptionText returns the description or "" when absent.
func (t Todo) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

type Order int

const (
	// OrderCreated lists a day's todos oldest first.
	OrderCreated Order = iota
	// OrderDateDesc lists newest dates first; used by search.
	OrderDateDesc
	// OrderDateAsc lists oldest dates first; used by range reads.
	OrderDateAsc
)

// Filter selects one user's todos. Date, the From/To range and Contains may be
// combined; zero values are ignored. Limit <= 0 means no limit.
type Filter struct {
	UserID   string
	Date     string
	From     string
	To       string
	Contains string
	Order    Order
	Limit    int
}

// Patch carries the fields to change. A non-nil empty Description clears it.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	List(ctx context.Context, filter Filter) ([]Todo, error)
	// Insert stores t and returns it with ID and CreatedAt assigned.
	Insert(ctx context.Context, t Todo) (Todo, error)
	Update(ctx context.Context, userID, id string, patch Patch) (Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

// likePattern turns a literal query into a contains pattern with the LIKE
// wildcards escaped by a backslash.
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}

func orderClause(o Order) string {
	switch o {
	case OrderDateDesc:
		return " ORDER BY date DESC, created_at ASC, id ASC"
	case OrderDateAsc:
		return " ORDER BY date ASC, created_at ASC, id ASC"
	default:
		return " ORDER BY created_at ASC, id ASC"
	}
}

func stringPtr(s string) *string {
	return &s
}
