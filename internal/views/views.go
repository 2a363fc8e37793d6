// Package views holds the per-request view models behind the calendar, day
// and search screens. The store is the source of truth: a view model's list
// is a cache that changes only after the store acknowledges a mutation.
// Store failures are logged and surfaced as a Notice; the cached state is
// left exactly as it was.
package views

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/daily-planner/planner/internal/app/todos"
)

const (
	NoticeLoadFailed   = "Could not load your todos. Please try again."
	NoticeSaveFailed   = "Could not save your change. Please try again."
	NoticeSearchFailed = "Search is unavailable right now."
	NoticeNotFound     = "That todo no longer exists."
	NoticeTitle        = "A title is required."
)

// TodoStore is the slice of the todo service the views depend on.
type TodoStore interface {
	Day(ctx context.Context, userID, date string) ([]todos.Todo, error)
	Range(ctx context.Context, userID, from, to string) ([]todos.Todo, error)
	Search(ctx context.Context, userID, query string, limit int) ([]todos.Todo, error)
	Create(ctx context.Context, userID string, in todos.NewTodo) (todos.Todo, error)
	Edit(ctx context.Context, userID, id, title, description string) (todos.Todo, error)
	SetCompleted(ctx context.Context, userID, id string, completed bool) (todos.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

func orDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}
