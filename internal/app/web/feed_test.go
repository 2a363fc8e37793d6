package web

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/sharding"
)

func TestFeed_FanOutAndRelease(t *testing.T) {
	bus := newMemoryBus()
	feed := NewFeed(bus, nil)
	subject := sharding.UserEventSubject("user-1")

	a, releaseA, err := feed.Subscribe("user-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	b, releaseB, err := feed.Subscribe("user-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if bus.active(subject) != 1 {
		t.Fatalf("expected one upstream listener, got %d", bus.active(subject))
	}
	if feed.Streams("user-1") != 2 {
		t.Fatalf("expected 2 streams, got %d", feed.Streams("user-1"))
	}

	_ = bus.Publish(subject, []byte(`{"event_id":"e1","event_type":"todo.created","user_id":"user-1","todo_id":"t1"}`))
	for _, ch := range []<-chan contracts.TodoEvent{a, b} {
		select {
		case ev := <-ch:
			if ev.EventID != "e1" || ev.TodoID != "t1" {
				t.Fatalf("unexpected event %+v", ev)
			}
		default:
			t.Fatal("expected event on every stream")
		}
	}

	_ = bus.Publish(subject, []byte(`{"event_id":"e2","user_id":"someone-else"}`))
	_ = bus.Publish(subject, []byte(`not json`))
	select {
	case ev := <-a:
		t.Fatalf("unexpected event delivered: %+v", ev)
	default:
	}

	releaseA()
	releaseA()
	if bus.active(subject) != 1 || feed.Streams("user-1") != 1 {
		t.Fatal("releasing one stream must keep the upstream listener")
	}
	releaseB()
	if bus.active(subject) != 0 || feed.Streams("user-1") != 0 {
		t.Fatal("last release must stop the upstream listener")
	}
}

func TestFeed_SlowSubscriberDropsEvents(t *testing.T) {
	bus := newMemoryBus()
	feed := NewFeed(bus, nil)
	ch, release, err := feed.Subscribe("user-1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer release()

	subject := sharding.UserEventSubject("user-1")
	for i := 0; i < feedBuffer+10; i++ {
		_ = bus.Publish(subject, []byte(`{"event_id":"e","user_id":"user-1"}`))
	}
	if len(ch) != feedBuffer {
		t.Fatalf("expected a full buffer of %d, got %d", feedBuffer, len(ch))
	}
}

func TestFeed_ListenFailure(t *testing.T) {
	bus := newMemoryBus()
	bus.failNext = errors.New("nats unavailable")
	feed := NewFeed(bus, nil)

	if _, _, err := feed.Subscribe("user-1"); err == nil {
		t.Fatal("expected subscribe error")
	}
	if feed.Streams("user-1") != 0 {
		t.Fatal("failed subscribe must not leave a stream behind")
	}
	if _, release, err := feed.Subscribe("user-1"); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	} else {
		release()
	}
}

func TestEvents_StreamsOwnTodoChanges(t *testing.T) {
	env := newTestEnv(t)
	cookies, userID := env.signUp(t, "stream@example.com")

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return name, data
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	if name, _ := readEvent(); name != "ready" {
		t.Fatalf("expected ready event, got %q", name)
	}

	created, err := env.todos.Create(context.Background(), userID, todos.NewTodo{Title: "Stream me", Date: "2025-03-10"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	name, data := readEvent()
	if name != "todo" || !strings.Contains(data, `"event_type":"`+contracts.TodoCreated+`"`) || !strings.Contains(data, created.ID) {
		t.Fatalf("unexpected event %q: %s", name, data)
	}
}

func TestEvents_Disabled(t *testing.T) {
	env := newTestEnv(t, withoutFeed())
	cookies, _ := env.signUp(t, "quiet@example.com")

	if rr := env.do(t, http.MethodGet, "/events", nil, cookies); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if body := env.do(t, http.MethodGet, "/", nil, cookies).Body.String(); strings.Contains(body, `data-live="on"`) {
		t.Fatal("live reload must be off without a feed")
	}
	if rr := env.do(t, http.MethodGet, "/events", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rr.Code)
	}
}
