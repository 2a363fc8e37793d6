package views

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/search"
)

type DayView struct {
	Store  TodoStore
	Logger *log.Logger
	UserID string
	Date   string

	Todos     []todos.Todo
	EditingID string
	Notice    string

	// Create form contents, kept when a create fails.
	FormTitle       string
	FormDescription string
}

func NewDayView(store TodoStore, logger *log.Logger, userID, date string) *DayView {
	return &DayView{Store: store, Logger: orDiscard(logger), UserID: userID, Date: date}
}

// Load replaces the cached list with the store's view of the day.
func (v *DayView) Load(ctx context.Context) bool {
	list, err := v.Store.Day(ctx, v.UserID, v.Date)
	if err != nil {
		v.fail("load day", err)
		return false
	}
	v.Todos = list
	return true
}

func (v *DayView) Create(ctx context.Context, title, description string) bool {
	v.FormTitle, v.FormDescription = title, description
	if strings.TrimSpace(title) == "" {
		v.Notice = NoticeTitle
		return false
	}
	created, err := v.Store.Create(ctx, v.UserID, todos.NewTodo{Title: title, Description: description, Date: v.Date})
	if err != nil {
		v.fail("create todo", err)
		return false
	}
	v.Todos = append(v.Todos, created)
	v.FormTitle, v.FormDescription = "", ""
	return true
}

// Toggle flips the cached completion state of id in the store.
func (v *DayView) Toggle(ctx context.Context, id string) bool {
	i := v.index(id)
	if i < 0 {
		v.Notice = NoticeNotFound
		return false
	}
	updated, err := v.Store.SetCompleted(ctx, v.UserID, id, !v.Todos[i].Completed)
	if err != nil {
		v.fail("toggle todo", err, "todo_id", id)
		return false
	}
	v.Todos[i] = updated
	return true
}

// BeginEdit puts id into edit mode, leaving any other record's edit mode.
func (v *DayView) BeginEdit(id string) bool {
	if v.index(id) < 0 {
		return false
	}
	v.EditingID = id
	return true
}

func (v *DayView) CancelEdit() {
	v.EditingID = ""
}

func (v *DayView) SaveEdit(ctx context.Context, id, title, description string) bool {
	i := v.index(id)
	if i < 0 {
		v.Notice = NoticeNotFound
		return false
	}
	v.EditingID = id
	if strings.TrimSpace(title) == "" {
		v.Notice = NoticeTitle
		return false
	}
	updated, err := v.Store.Edit(ctx, v.UserID, id, title, description)
	if err != nil {
		v.fail("edit todo", err, "todo_id", id)
		return false
	}
	v.Todos[i] = updated
	v.EditingID = ""
	return true
}

func (v *DayView) Delete(ctx context.Context, id string) bool {
	i := v.index(id)
	if i < 0 {
		v.Notice = NoticeNotFound
		return false
	}
	if err := v.Store.Delete(ctx, v.UserID, id); err != nil {
		v.fail("delete todo", err, "todo_id", id)
		return false
	}
	v.Todos = append(v.Todos[:i:i], v.Todos[i+1:]...)
	if v.EditingID == id {
		v.EditingID = ""
	}
	return true
}

// Summary counts completed and total todos in the cached list.
func (v *DayView) Summary() (completed, total int) {
	for _, t := range v.Todos {
		if t.Completed {
			completed++
		}
	}
	return completed, len(v.Todos)
}

// Heading renders the date like "Monday, March 10, 2025".
func (v *DayView) Heading() string {
	return search.FormatHeading(v.Date)
}

func (v *DayView) index(id string) int {
	for i, t := range v.Todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (v *DayView) fail(op string, err error, keyvals ...any) {
	v.Logger.Error(op, append([]any{"user_id", v.UserID, "date", v.Date, "err", err}, keyvals...)...)
	switch {
	case errors.Is(err, todos.ErrNotFound):
		v.Notice = NoticeNotFound
	case errors.Is(err, todos.ErrTitleRequired):
		v.Notice = NoticeTitle
	case op == "load day":
		v.Notice = NoticeLoadFailed
	default:
		v.Notice = NoticeSaveFailed
	}
}
