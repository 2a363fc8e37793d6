package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/platform/auth"
	"github.com/daily-planner/planner/internal/platform/sqlitedb"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// memoryBus delivers published payloads synchronously to listeners of the
// same subject.
type memoryBus struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]func([]byte)
	failNext  error
}

func newMemoryBus() *memoryBus {
	return &memoryBus{listeners: map[string]map[int]func([]byte){}}
}

func (b *memoryBus) Publish(subject string, payload []byte) error {
	b.mu.Lock()
	handlers := make([]func([]byte), 0, len(b.listeners[subject]))
	for _, h := range b.listeners[subject] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *memoryBus) Listen(subject string, handle func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		return nil, err
	}
	b.next++
	id := b.next
	if b.listeners[subject] == nil {
		b.listeners[subject] = map[int]func([]byte){}
	}
	b.listeners[subject][id] = handle
	return func() {
		b.mu.Lock()
		delete(b.listeners[subject], id)
		b.mu.Unlock()
	}, nil
}

func (b *memoryBus) active(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[subject])
}

type testEnv struct {
	handler  http.Handler
	identity *identity.Service
	todos    *todos.Service
	repo     *todos.SQLiteRepository
	bus      *memoryBus
	feed     *Feed
}

type envOption func(*Options)

func withoutFeed() envOption {
	return func(o *Options) { o.Feed = nil }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlitedb.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	idRepo := identity.NewSQLiteRepository(db)
	if err := idRepo.EnsureSchema(ctx); err != nil {
		t.Fatalf("identity schema: %v", err)
	}
	todoRepo := todos.NewSQLiteRepository(db)
	if err := todoRepo.EnsureSchema(ctx); err != nil {
		t.Fatalf("todo schema: %v", err)
	}

	bus := newMemoryBus()
	env := &testEnv{
		identity: identity.NewService(idRepo, auth.NewManager("test-secret", 15*time.Minute), 24*time.Hour),
		todos:    todos.NewService(todoRepo, bus, nil),
		repo:     todoRepo,
		bus:      bus,
	}
	env.feed = NewFeed(bus, nil)

	o := Options{
		Identity: env.identity,
		Todos:    env.todos,
		Feed:     env.feed,
		Now:      func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&o)
	}
	env.handler = NewServer(o).Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// signUp registers through the sign-up form and returns the session cookies
// and the new user's id.
func (e *testEnv) signUp(t *testing.T, email string) ([]*http.Cookie, string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/sign-up", url.Values{"email": {email}, "password": {"password123"}}, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("sign-up: status %d location %q", rr.Code, rr.Header().Get("Location"))
	}
	cookies := rr.Result().Cookies()
	for _, c := range cookies {
		if c.Name == identity.AccessCookie {
			id, err := e.identity.Authenticate(c.Value)
			if err != nil {
				t.Fatalf("authenticate new session: %v", err)
			}
			return cookies, id.UserID
		}
	}
	t.Fatal("sign-up set no access cookie")
	return nil, ""
}

func expectRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}
