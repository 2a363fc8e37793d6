//go:build integration

package integration_test

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/app/web"
	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/platform/auth"
	"github.com/daily-planner/planner/internal/platform/dbpool"
	"github.com/daily-planner/planner/internal/platform/logging"
	"github.com/daily-planner/planner/internal/platform/natsutil"
)

// stack is planner-web on Postgres, optionally with the JetStream change feed.
type stack struct {
	url  string
	pool *pgxpool.Pool
	feed bool
}

func startStack(t *testing.T, withFeed bool) *stack {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	databaseURL := os.Getenv("PLANNER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("PLANNER_TEST_DATABASE_URL not set")
	}
	natsURL := os.Getenv("PLANNER_TEST_NATS_URL")
	if withFeed && natsURL == "" {
		t.Skip("PLANNER_TEST_NATS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := dbpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	idRepo := identity.NewPostgresRepository(pool)
	todoRepo := todos.NewPostgresRepository(pool)
	if err := idRepo.EnsureSchema(ctx); err != nil {
		t.Fatalf("identity schema: %v", err)
	}
	if err := todoRepo.EnsureSchema(ctx); err != nil {
		t.Fatalf("todo schema: %v", err)
	}

	logger := logging.Discard()
	var (
		publisher natsutil.Publisher
		feed      *web.Feed
	)
	if withFeed {
		nc, err := natsutil.ConnectJetStreamWithRetry(ctx, natsURL, 10*time.Second)
		if err != nil {
			t.Fatalf("connect nats: %v", err)
		}
		t.Cleanup(nc.Close)
		publisher = natsutil.JetStreamPublisher{JS: nc.JS}
		feed = web.NewFeed(natsutil.JetStreamListener{JS: nc.JS}, logger)
	}

	srv := web.NewServer(web.Options{
		Identity: identity.NewService(idRepo, auth.NewManager("integration-secret", 15*time.Minute), time.Hour),
		Todos:    todos.NewService(todoRepo, publisher, logger),
		Feed:     feed,
		Logger:   logger,
		Ready:    pool.Ping,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &stack{url: ts.URL, pool: pool, feed: withFeed}
}

func (s *stack) signUp(t *testing.T, prefix string) *client.Client {
	t.Helper()
	c := client.New(s.url, 10*time.Second)
	email := fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
	if _, err := c.Register(context.Background(), email, "integration-pass-123"); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return c
}

func TestPostgresPlannerFlow(t *testing.T) {
	s := startStack(t, false)
	c := s.signUp(t, "flow")
	ctx := context.Background()

	today := calendar.FormatDate(time.Now())
	earlier := calendar.FormatDate(time.Now().AddDate(0, 0, -3))

	milk, err := c.Create(ctx, "Buy milk", "2 litres", today)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Create(ctx, "Milkshake", "", earlier); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.SetCompleted(ctx, milk.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}

	day, err := c.Day(ctx, today)
	if err != nil || len(day) != 1 || !day[0].Completed {
		t.Fatalf("unexpected day listing %+v %v", day, err)
	}

	month, err := c.Calendar(ctx, today[:7])
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	var found bool
	for _, d := range month.Days {
		if d.Date == today {
			found = true
			if !d.Today || d.Count != 1 || d.Status != "done" {
				t.Fatalf("unexpected calendar cell %+v", d)
			}
		}
	}
	if !found {
		t.Fatalf("today missing from calendar %s", month.Month)
	}

	res, err := c.Search(ctx, "MILK", 9, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Seq != 9 || res.State != "has-results" || len(res.Todos) != 2 {
		t.Fatalf("unexpected search result %+v", res)
	}
	if res.Todos[0].Date != today || res.Todos[1].Date != earlier {
		t.Fatalf("expected newest date first, got %s then %s", res.Todos[0].Date, res.Todos[1].Date)
	}

	other := s.signUp(t, "other")
	if res, err := other.Search(ctx, "milk", 1, 0); err != nil || len(res.Todos) != 0 {
		t.Fatalf("search must be scoped to the owner: %+v %v", res, err)
	}
	if err := other.Delete(ctx, milk.ID); err == nil {
		t.Fatal("deleting another user's todo must fail")
	}

	if err := c.Delete(ctx, milk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var rows int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM todos WHERE id = $1`, milk.ID).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected deleted row, found %d", rows)
	}
}

func TestRefreshTokenRotationSurvivesRestart(t *testing.T) {
	s := startStack(t, false)
	c := s.signUp(t, "rotate")
	ctx := context.Background()
	first := c.Session()

	// A fresh server process shares nothing but the database.
	restarted := startStack(t, false)
	again := client.New(restarted.url, 10*time.Second)
	again.SetSession(client.Session{AccessToken: "stale", RefreshToken: first.RefreshToken})
	if _, err := again.Day(ctx, calendar.FormatDate(time.Now())); err != nil {
		t.Fatalf("refresh against the shared store failed: %v", err)
	}
	if again.Session().RefreshToken == first.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}
}

func TestChangeFeedDeliversOwnTodos(t *testing.T) {
	s := startStack(t, true)
	c := s.signUp(t, "feed")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: identity.AccessCookie, Value: c.Session().AccessToken})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status %d", resp.StatusCode)
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	waitForLine(t, lines, "event: ready")

	title := fmt.Sprintf("feed-%d", time.Now().UnixNano())
	created, err := c.Create(ctx, title, "", calendar.FormatDate(time.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	line := waitForLine(t, lines, created.ID)
	if !strings.Contains(line, "todo.created") {
		t.Fatalf("expected a created event, got %s", line)
	}
}

func waitForLine(t *testing.T, lines <-chan string, needle string) string {
	t.Helper()
	timeout := time.After(15 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q", needle)
			}
			if strings.Contains(line, needle) {
				return line
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", needle)
		}
	}
}
