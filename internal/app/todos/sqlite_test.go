package todos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daily-planner/planner/internal/platform/sqlitedb"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewSQLiteRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	return repo
}

func seed(t *testing.T, repo Repository, userID, title, desc, date string, at time.Time) Todo {
	t.Helper()
	created, err := repo.Insert(context.Background(), Todo{
		UserID:      userID,
		Title:       title,
		Description: NormalizeDescription(desc),
		Date:        date,
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	return created
}

func TestSQLiteRepository_InsertAssignsIDAndRoundTrips(t *testing.T) {
	repo := newSQLiteRepo(t)
	at := time.Date(2026, 2, 10, 9, 0, 0, 123, time.UTC)
	created := seed(t, repo, "u1", "Buy milk", "", "2025-03-10", at)

	if created.ID == "" || !created.CreatedAt.Equal(at) || created.Description != nil || created.Completed {
		t.Fatalf("unexpected insert result: %+v", created)
	}
}

func TestSQLiteRepository_DayOrderedByCreation(t *testing.T) {
	repo := newSQLiteRepo(t)
	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	second := seed(t, repo, "u1", "second", "", "2025-03-10", base.Add(time.Minute))
	first := seed(t, repo, "u1", "first", "", "2025-03-10", base)
	seed(t, repo, "u1", "other day", "", "2025-03-11", base)
	seed(t, repo, "u2", "other user", "", "2025-03-10", base)

	list, err := repo.List(context.Background(), Filter{UserID: "u1", Date: "2025-03-10"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected day list: %+v", list)
	}
}

func TestSQLiteRepository_RangeInclusive(t *testing.T) {
	repo := newSQLiteRepo(t)
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	for _, d := range []string{"2025-02-28", "2025-03-01", "2025-03-15", "2025-03-31", "2025-04-01"} {
		seed(t, repo, "u1", d, "", d, at)
	}
	list, err := repo.List(context.Background(), Filter{UserID: "u1", From: "2025-03-01", To: "2025-03-31", Order: OrderDateAsc})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 3 || list[0].Date != "2025-03-01" || list[2].Date != "2025-03-31" {
		t.Fatalf("unexpected range: %+v", list)
	}
}

func TestSQLiteRepository_ContainsIsLiteralAndCaseInsensitive(t *testing.T) {
	repo := newSQLiteRepo(t)
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	milk := seed(t, repo, "u1", "Buy MILK", "", "2025-03-10", at)
	desc := seed(t, repo, "u1", "Groceries", "oat milk", "2025-04-01", at)
	seed(t, repo, "u1", "100% done", "", "2025-01-01", at)
	seed(t, repo, "u1", "1000 done", "", "2025-01-02", at)

	got, err := repo.List(context.Background(), Filter{UserID: "u1", Contains: "milk", Order: OrderDateDesc})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[0].ID != desc.ID || got[1].ID != milk.ID {
		t.Fatalf("unexpected search result: %+v", got)
	}

	pct, err := repo.List(context.Background(), Filter{UserID: "u1", Contains: "0%"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(pct) != 1 || pct[0].Title != "100% done" {
		t.Fatalf("expected %% to match literally, got %+v", pct)
	}

	limited, _ := repo.List(context.Background(), Filter{UserID: "u1", Contains: "done", Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	cafe := seed(t, repo, "u2", "CAFÉ meeting", "", "2025-03-11", at)
	ubung := seed(t, repo, "u2", "Homework", "Übung machen", "2025-03-12", at)
	for _, tc := range []struct {
		query string
		want  string
	}{
		{"café", cafe.ID},
		{"CAFÉ", cafe.ID},
		{"Café Meeting", cafe.ID},
		{"übung", ubung.ID},
		{"ÜBUNG", ubung.ID},
	} {
		got, err := repo.List(context.Background(), Filter{UserID: "u2", Contains: tc.query})
		if err != nil {
			t.Fatalf("List(%q) error: %v", tc.query, err)
		}
		if len(got) != 1 || got[0].ID != tc.want {
			t.Fatalf("List(%q): expected one match, got %+v", tc.query, got)
		}
	}
}

func TestSQLiteRepository_UpdateAndDeleteAreUserScoped(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	created := seed(t, repo, "u1", "Task", "notes", "2025-03-10", time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))

	done := true
	if _, err := repo.Update(ctx, "u2", created.ID, Patch{Completed: &done}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}
	blank := ""
	updated, err := repo.Update(ctx, "u1", created.ID, Patch{Completed: &done, Description: &blank})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if !updated.Completed || updated.Description != nil || updated.Title != "Task" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := repo.Update(ctx, "u1", created.ID, Patch{}); !errors.Is(err, ErrNothingToApply) {
		t.Fatalf("expected ErrNothingToApply, got %v", err)
	}

	if err := repo.Delete(ctx, "u2", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := repo.Delete(ctx, "u1", created.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	list, _ := repo.List(ctx, Filter{UserID: "u1", Date: "2025-03-10"})
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", list)
	}
}

func TestSQLiteRepository_WithService(t *testing.T) {
	svc := newTestService(newSQLiteRepo(t), nil)
	ctx := context.Background()
	created, err := svc.Create(ctx, "u1", NewTodo{Title: "Buy milk", Date: "2025-03-10"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	found, err := svc.Search(ctx, "u1", "MILK", 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(found) != 1 || found[0].ID != created.ID {
		t.Fatalf("unexpected search result: %+v", found)
	}
}

func TestLikePattern(t *testing.T) {
	if got := likePattern(`50%_off\`); got != `%50\%\_off\\%` {
		t.Fatalf("likePattern = %q", got)
	}
}
