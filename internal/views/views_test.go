package views

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/search"
)

type fakeStore struct {
	rows  []todos.Todo
	next  int
	clock time.Time

	err         error
	searchCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{clock: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeStore) Day(ctx context.Context, userID, date string) ([]todos.Todo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []todos.Todo
	for _, t := range f.rows {
		if t.UserID == userID && t.Date == date {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Range(ctx context.Context, userID, from, to string) ([]todos.Todo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []todos.Todo
	for _, t := range f.rows {
		if t.UserID == userID && t.Date >= from && t.Date <= to {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Search(ctx context.Context, userID, query string, limit int) ([]todos.Todo, error) {
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	q := strings.ToLower(search.Normalize(query))
	var out []todos.Todo
	for _, t := range f.rows {
		if t.UserID == userID && (strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(t.DescriptionText()), q)) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Create(ctx context.Context, userID string, in todos.NewTodo) (todos.Todo, error) {
	if f.err != nil {
		return todos.Todo{}, f.err
	}
	f.next++
	f.clock = f.clock.Add(time.Second)
	t := todos.Todo{
		ID:          fmt.Sprintf("t%d", f.next),
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Description: todos.NormalizeDescription(in.Description),
		Date:        in.Date,
		CreatedAt:   f.clock,
	}
	f.rows = append(f.rows, t)
	return t, nil
}

func (f *fakeStore) find(userID, id string) int {
	for i, t := range f.rows {
		if t.ID == id && t.UserID == userID {
			return i
		}
	}
	return -1
}

func (f *fakeStore) Edit(ctx context.Context, userID, id, title, description string) (todos.Todo, error) {
	if f.err != nil {
		return todos.Todo{}, f.err
	}
	i := f.find(userID, id)
	if i < 0 {
		return todos.Todo{}, todos.ErrNotFound
	}
	f.rows[i].Title = strings.TrimSpace(title)
	f.rows[i].Description = todos.NormalizeDescription(description)
	return f.rows[i], nil
}

func (f *fakeStore) SetCompleted(ctx context.Context, userID, id string, completed bool) (todos.Todo, error) {
	if f.err != nil {
		return todos.Todo{}, f.err
	}
	i := f.find(userID, id)
	if i < 0 {
		return todos.Todo{}, todos.ErrNotFound
	}
	f.rows[i].Completed = completed
	return f.rows[i], nil
}

func (f *fakeStore) Delete(ctx context.Context, userID, id string) error {
	if f.err != nil {
		return f.err
	}
	i := f.find(userID, id)
	if i < 0 {
		return todos.ErrNotFound
	}
	f.rows = append(f.rows[:i], f.rows[i+1:]...)
	return nil
}

func cellFor(g calendar.Grid, date string) calendar.Cell {
	for _, c := range g.Cells {
		if c.Key() == date {
			return c
		}
	}
	return calendar.Cell{}
}

func march2025() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

func TestBuyMilkScenario(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	day := NewDayView(store, nil, "U", "2025-03-10")
	day.Load(ctx)
	if !day.Create(ctx, "Buy milk", "") {
		t.Fatalf("create failed: %s", day.Notice)
	}

	cal := NewCalendarView(store, nil, "U", march2025(), nil)
	cal.Load(ctx)
	cell := cellFor(cal.Grid, "2025-03-10")
	if cell.Count != 1 || cell.Status != calendar.StatusPending {
		t.Fatalf("expected one pending todo, got %+v", cell)
	}

	if !day.Create(ctx, "Bake bread", "") || !day.Toggle(ctx, day.Todos[1].ID) {
		t.Fatalf("second todo setup failed: %s", day.Notice)
	}
	cal.Load(ctx)
	cell = cellFor(cal.Grid, "2025-03-10")
	if cell.Count != 2 || cell.Status != calendar.StatusPartial {
		t.Fatalf("expected partial with two todos, got %+v", cell)
	}

	page := FullSearch(ctx, store, nil, "U", "milk")
	if page.Total != 1 || len(page.Groups) != 1 || page.Groups[0].Heading != "Monday, March 10, 2025" {
		t.Fatalf("unexpected search page: %+v", page)
	}
	if page.Groups[0].Hits[0].Todo.Title != "Buy milk" || page.Summary() != "Found 1 todo matching" {
		t.Fatalf("unexpected hit: %+v / %q", page.Groups[0].Hits[0], page.Summary())
	}
}

func TestCalendarView_NavigationAndToday(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC) }
	cal := NewCalendarView(newFakeStore(), nil, "U", time.Time{}, now)
	cal.Load(context.Background())
	if cal.Title() != "December 2025" || !cellFor(cal.Grid, "2025-12-31").IsToday {
		t.Fatalf("unexpected initial calendar %s", cal.Title())
	}
	cal.Next(context.Background())
	if cal.Title() != "January 2026" {
		t.Fatalf("expected January 2026, got %s", cal.Title())
	}
	cal.Prev(context.Background())
	cal.Prev(context.Background())
	if cal.Title() != "November 2025" {
		t.Fatalf("expected November 2025, got %s", cal.Title())
	}
}

func TestCalendarView_LoadFailureShowsEmptyGrid(t *testing.T) {
	store := newFakeStore()
	store.rows = []todos.Todo{{ID: "x", UserID: "U", Title: "x", Date: "2025-03-10"}}
	store.err = errors.New("backend down")

	cal := NewCalendarView(store, nil, "U", march2025(), nil)
	cal.Load(context.Background())
	if len(cal.Grid.Cells) != calendar.GridCells {
		t.Fatalf("expected full grid, got %d cells", len(cal.Grid.Cells))
	}
	if c := cellFor(cal.Grid, "2025-03-10"); c.Count != 0 || c.Status != calendar.StatusNone {
		t.Fatalf("expected no indicators on failure, got %+v", c)
	}
	if cal.Notice != NoticeLoadFailed {
		t.Fatalf("expected load notice, got %q", cal.Notice)
	}
}

func TestDayView_CreateValidationAndFailure(t *testing.T) {
	store := newFakeStore()
	day := NewDayView(store, nil, "U", "2025-03-10")
	ctx := context.Background()

	if day.Create(ctx, "   ", "desc") || day.Notice != NoticeTitle || len(store.rows) != 0 {
		t.Fatalf("blank title must not reach the store, notice %q", day.Notice)
	}

	store.err = errors.New("insert failed")
	if day.Create(ctx, "Walk", "park") {
		t.Fatal("expected failure")
	}
	if len(day.Todos) != 0 || day.FormTitle != "Walk" || day.Notice != NoticeSaveFailed {
		t.Fatalf("failed create must leave state unchanged: %+v", day)
	}

	store.err = nil
	day.Notice = ""
	if !day.Create(ctx, "Walk", "  park ") {
		t.Fatalf("create failed: %s", day.Notice)
	}
	if day.FormTitle != "" || day.Todos[0].DescriptionText() != "park" {
		t.Fatalf("expected cleared form and trimmed description: %+v", day)
	}
}

func TestDayView_ToggleEditDelete(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	day := NewDayView(store, nil, "U", "2025-03-10")
	day.Create(ctx, "A", "")
	day.Create(ctx, "B", "")
	a, b := day.Todos[0].ID, day.Todos[1].ID

	if !day.Toggle(ctx, a) || !day.Todos[0].Completed {
		t.Fatal("toggle did not complete A")
	}
	if c, n := day.Summary(); c != 1 || n != 2 {
		t.Fatalf("summary = %d/%d", c, n)
	}

	day.BeginEdit(a)
	day.BeginEdit(b)
	if day.EditingID != b {
		t.Fatalf("expected only B in edit mode, got %q", day.EditingID)
	}
	if day.SaveEdit(ctx, b, " ", "x") || day.EditingID != b {
		t.Fatal("blank title must keep edit mode open")
	}
	if !day.SaveEdit(ctx, b, " B2 ", " ") || day.EditingID != "" || day.Todos[1].Title != "B2" || day.Todos[1].Description != nil {
		t.Fatalf("unexpected edit result %+v editing=%q", day.Todos[1], day.EditingID)
	}

	store.err = errors.New("delete failed")
	if day.Delete(ctx, a) || len(day.Todos) != 2 {
		t.Fatal("failed delete must keep the list")
	}
	store.err = nil
	if !day.Delete(ctx, a) || len(day.Todos) != 1 || day.Todos[0].ID != b {
		t.Fatalf("unexpected list after delete %+v", day.Todos)
	}

	fresh := NewDayView(store, nil, "U", "2025-03-10")
	fresh.Load(ctx)
	if len(fresh.Todos) != 1 {
		t.Fatalf("delete not visible on reload: %+v", fresh.Todos)
	}
}

func TestDayView_ToggleFailureLeavesState(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	day := NewDayView(store, nil, "U", "2025-03-10")
	day.Create(ctx, "A", "")

	store.err = errors.New("timeout")
	if day.Toggle(ctx, day.Todos[0].ID) || day.Todos[0].Completed {
		t.Fatal("failed toggle must not change local state")
	}
	if day.Toggle(ctx, "missing") || day.Notice != NoticeNotFound {
		t.Fatalf("expected not found notice, got %q", day.Notice)
	}
}

func TestInlineSearch(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	day := NewDayView(store, nil, "U", "2025-03-10")
	for i := 0; i < 12; i++ {
		day.Create(ctx, fmt.Sprintf("Milk run %d", i), "")
	}

	short := InlineSearch(ctx, store, nil, "U", " m ", 4, 0)
	if short.State != search.StateIdle || short.Open() || store.searchCalls != 0 {
		t.Fatalf("short query must not search: %+v calls=%d", short, store.searchCalls)
	}

	p := InlineSearch(ctx, store, nil, "U", "MILK", 5, 0)
	if p.Seq != 5 || len(p.Hits) != search.InlineLimit || p.State != search.StateHasResults {
		t.Fatalf("unexpected panel: seq=%d hits=%d state=%s", p.Seq, len(p.Hits), p.State)
	}
	if p.Hits[0].DateLabel != "Mar 10, 2025" || !p.Hits[0].Title[0].Match || p.Hits[0].Title[0].Text != "Milk" {
		t.Fatalf("unexpected hit rendering %+v", p.Hits[0])
	}

	none := InlineSearch(ctx, store, nil, "U", "zzz", 6, 0)
	if none.State != search.StateNoResults || !none.Open() {
		t.Fatalf("expected open no-results panel, got %+v", none)
	}

	store.err = errors.New("down")
	failed := InlineSearch(ctx, store, nil, "U", "milk", 7, 0)
	if failed.Notice != NoticeSearchFailed || len(failed.Hits) != 0 {
		t.Fatalf("unexpected failure panel %+v", failed)
	}
}

func TestFullSearch_GroupsInStoreOrder(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	for _, d := range []string{"2025-01-05", "2025-03-10", "2025-03-10", "2025-04-01"} {
		NewDayView(store, nil, "U", d).Create(ctx, "milk "+d, "")
	}

	page := FullSearch(ctx, store, nil, "U", "milk")
	if page.Total != 4 || len(page.Groups) != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Groups[0].Date != "2025-04-01" || page.Groups[1].Date != "2025-03-10" || len(page.Groups[1].Hits) != 2 {
		t.Fatalf("unexpected grouping %+v", page.Groups)
	}
	if page.Summary() != "Found 4 todos matching" {
		t.Fatalf("unexpected summary %q", page.Summary())
	}
	if idle := FullSearch(ctx, store, nil, "U", "m"); idle.State != search.StateIdle {
		t.Fatalf("expected idle for short query, got %s", idle.State)
	}
}
