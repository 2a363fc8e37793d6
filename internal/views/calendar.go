package views

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daily-planner/planner/internal/calendar"
)

type CalendarView struct {
	Store  TodoStore
	Logger *log.Logger
	UserID string
	Now    func() time.Time

	Cursor time.Time
	Grid   calendar.Grid
	Notice string
}

// NewCalendarView starts at the month containing cursor; a zero cursor means
// the current month.
func NewCalendarView(store TodoStore, logger *log.Logger, userID string, cursor time.Time, now func() time.Time) *CalendarView {
	if now == nil {
		now = time.Now
	}
	if cursor.IsZero() {
		cursor = now()
	}
	return &CalendarView{
		Store:  store,
		Logger: orDiscard(logger),
		UserID: userID,
		Now:    now,
		Cursor: calendar.FirstOfMonth(cursor),
	}
}

// Load fetches the cursor month and rebuilds the grid. On failure the grid is
// built without indicators.
func (v *CalendarView) Load(ctx context.Context) {
	from := calendar.FormatDate(calendar.FirstOfMonth(v.Cursor))
	to := calendar.FormatDate(calendar.LastOfMonth(v.Cursor))

	var entries []calendar.Entry
	list, err := v.Store.Range(ctx, v.UserID, from, to)
	if err != nil {
		v.Logger.Error("load calendar month", "user_id", v.UserID, "from", from, "to", to, "err", err)
		v.Notice = NoticeLoadFailed
	} else {
		entries = make([]calendar.Entry, 0, len(list))
		for _, t := range list {
			entries = append(entries, calendar.Entry{Date: t.Date, Completed: t.Completed})
		}
	}
	v.Grid = calendar.BuildGrid(v.Cursor, entries, v.Now())
}

func (v *CalendarView) Prev(ctx context.Context) {
	v.Cursor = calendar.ShiftMonth(v.Cursor, -1)
	v.Load(ctx)
}

func (v *CalendarView) Next(ctx context.Context) {
	v.Cursor = calendar.ShiftMonth(v.Cursor, 1)
	v.Load(ctx)
}

// Title renders the cursor month, e.g. "March 2025".
func (v *CalendarView) Title() string {
	return v.Cursor.Format("January 2006")
}
