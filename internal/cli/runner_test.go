package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/app/web"
	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/platform/auth"
	"github.com/daily-planner/planner/internal/platform/sqlitedb"
	"github.com/daily-planner/planner/internal/search"
	"github.com/daily-planner/planner/internal/tui"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	api      *client.Client
	sessions *client.KeyringStore
	out      bytes.Buffer
	errOut   bytes.Buffer
	search   func(m tui.SearchModel) (tui.SearchModel, error)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	idRepo := identity.NewSQLiteRepository(db)
	todoRepo := todos.NewSQLiteRepository(db)
	if err := idRepo.EnsureSchema(ctx); err != nil {
		t.Fatalf("identity schema: %v", err)
	}
	if err := todoRepo.EnsureSchema(ctx); err != nil {
		t.Fatalf("todo schema: %v", err)
	}
	srv := web.NewServer(web.Options{
		Identity: identity.NewService(idRepo, auth.NewManager("cli-secret", time.Minute), time.Hour),
		Todos:    todos.NewService(todoRepo, nil, nil),
		Now:      func() time.Time { return testNow },
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &harness{
		t:        t,
		api:      client.New(ts.URL, time.Second),
		sessions: client.NewKeyringStore(keyring.NewArrayKeyring(nil)),
	}
}

func (h *harness) run(stdin string, args ...string) int {
	h.t.Helper()
	h.out.Reset()
	h.errOut.Reset()
	r := &Runner{
		API:       h.api,
		Sessions:  h.sessions,
		In:        strings.NewReader(stdin),
		Out:       &h.out,
		Err:       &h.errOut,
		Now:       func() time.Time { return testNow },
		RunSearch: h.search,
	}
	return r.Run(context.Background(), args)
}

func (h *harness) expect(code int, stdin string, args ...string) string {
	h.t.Helper()
	if got := h.run(stdin, args...); got != code {
		h.t.Fatalf("%v: exit %d, want %d\nstdout: %s\nstderr: %s", args, got, code, h.out.String(), h.errOut.String())
	}
	return h.out.String()
}

func TestRunner_EndToEnd(t *testing.T) {
	h := newHarness(t)

	h.expect(1, "", "day")
	if !strings.Contains(h.errOut.String(), "not signed in") {
		t.Fatalf("expected sign-in hint, got %q", h.errOut.String())
	}

	h.expect(0, "password123\n", "register", "cli@example.com")
	if _, err := h.sessions.Load(); err != nil {
		t.Fatalf("session not saved: %v", err)
	}

	out := h.expect(0, "", "add", "-d", "2 litres", "2025-03-10", "Buy", "milk")
	if !strings.Contains(out, `Added "Buy milk" to Monday, March 10, 2025`) {
		t.Fatalf("unexpected add output %q", out)
	}

	list, err := h.api.Day(context.Background(), "2025-03-10")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one todo, got %v %v", list, err)
	}
	id := list[0].ID

	out = h.expect(0, "", "day")
	if !strings.Contains(out, "[ ] Buy milk - 2 litres") || !strings.Contains(out, "0/1 completed") {
		t.Fatalf("unexpected day output:\n%s", out)
	}

	out = h.expect(0, "", "toggle", "2025-03-10", id)
	if !strings.Contains(out, `Marked "Buy milk" as done`) {
		t.Fatalf("unexpected toggle output %q", out)
	}
	out = h.expect(0, "", "month", "2025-03")
	if !strings.Contains(out, "March 2025") || !strings.Contains(out, "10✓") {
		t.Fatalf("unexpected month output:\n%s", out)
	}

	out = h.expect(0, "", "search", "MILK")
	if !strings.Contains(out, "Found 1 todo matching") || !strings.Contains(out, "[x] Buy milk") {
		t.Fatalf("unexpected search output:\n%s", out)
	}
	h.expect(2, "", "search", "m")

	out = h.expect(0, "", "edit", id, "-d", "3 litres", "Buy", "oat", "milk")
	if !strings.Contains(out, `Updated "Buy oat milk" on Monday, March 10, 2025`) {
		t.Fatalf("unexpected edit output %q", out)
	}
	out = h.expect(0, "", "day", "2025-03-10")
	if !strings.Contains(out, "[x] Buy oat milk - 3 litres") {
		t.Fatalf("expected edited todo:\n%s", out)
	}
	h.expect(0, "", "edit", id, "-d", "")
	list, err = h.api.Day(context.Background(), "2025-03-10")
	if err != nil || len(list) != 1 || list[0].Title != "Buy oat milk" || list[0].Description != nil {
		t.Fatalf("expected description cleared and title kept, got %+v %v", list, err)
	}

	h.expect(0, "", "rm", id)
	h.expect(1, "", "rm", id)
	if !strings.Contains(h.errOut.String(), "todo not found") {
		t.Fatalf("expected not-found error, got %q", h.errOut.String())
	}

	h.expect(0, "", "logout")
	h.expect(1, "", "month")
}

func TestRunner_UsageErrors(t *testing.T) {
	h := newHarness(t)
	h.expect(0, "password123\n", "register", "usage@example.com")

	cases := [][]string{
		{"bogus"},
		{"login"},
		{"month", "March"},
		{"day", "2025-02-30"},
		{"add", "2025-03-10"},
		{"toggle", "2025-03-10"},
		{"edit"},
		{"edit", "some-id"},
		{"edit", "-d", "text"},
		{"rm"},
	}
	for _, args := range cases {
		h.expect(2, "", args...)
	}
	if h.expect(2, ""); !strings.Contains(h.out.String(), "Usage:") {
		t.Fatal("expected help without arguments")
	}
}

func TestRunner_LoginFailure(t *testing.T) {
	h := newHarness(t)
	h.expect(0, "password123\n", "register", "fail@example.com")
	h.expect(0, "", "logout")

	h.expect(1, "wrong-password\n", "login", "fail@example.com")
	if !strings.Contains(h.errOut.String(), "invalid email or password") {
		t.Fatalf("unexpected stderr %q", h.errOut.String())
	}
	h.expect(0, "password123\n", "login", "FAIL@example.com")
}

func TestRunner_InteractiveSearchOpensChosenDay(t *testing.T) {
	h := newHarness(t)
	h.expect(0, "password123\n", "register", "tui@example.com")
	h.expect(0, "", "add", "2025-03-12", "Call", "mom")

	h.search = func(m tui.SearchModel) (tui.SearchModel, error) {
		if _, ok := m.Chosen(); ok {
			t.Fatal("fresh model must have no selection")
		}
		return pickFirst(t, m, "mom"), nil
	}
	out := h.expect(0, "", "search", "-i")
	if !strings.Contains(out, "Wednesday, March 12, 2025") || !strings.Contains(out, "Call mom") {
		t.Fatalf("expected the chosen day:\n%s", out)
	}
}

// pickFirst types query into a running prompt, waits for the debounced search
// to land and presses enter.
func pickFirst(t *testing.T, m tui.SearchModel, query string) tui.SearchModel {
	t.Helper()
	in, keys := io.Pipe()
	t.Cleanup(func() { keys.Close() })
	go func() {
		_, _ = keys.Write([]byte(query))
		time.Sleep(search.DebounceDelay + 700*time.Millisecond)
		_, _ = keys.Write([]byte("\r"))
	}()
	final, err := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(io.Discard)).Run()
	if err != nil {
		t.Fatalf("search prompt: %v", err)
	}
	chosen, ok := final.(tui.SearchModel).Chosen()
	if !ok || chosen.Title != "Call mom" {
		t.Fatalf("expected Call mom to be chosen, got %+v", chosen)
	}
	return final.(tui.SearchModel)
}
