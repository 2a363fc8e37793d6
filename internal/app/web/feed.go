package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/platform/logging"
	"github.com/daily-planner/planner/internal/platform/natsutil"
	"github.com/daily-planner/planner/internal/sharding"
)

const (
	feedBuffer    = 64
	feedKeepalive = 25 * time.Second
)

// Feed fans todo change events out to every open stream of their owner. One
// upstream subscription is held per user while that user has streams open.
type Feed struct {
	mu       sync.Mutex
	listener natsutil.Listener
	logger   *log.Logger
	byUser   map[string]*userFeed
}

type userFeed struct {
	userID   string
	listener natsutil.Listener
	logger   *log.Logger

	mu          sync.Mutex
	stop        func()
	subscribers map[uint64]chan contracts.TodoEvent
	nextID      uint64
}

func NewFeed(listener natsutil.Listener, logger *log.Logger) *Feed {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Feed{
		listener: listener,
		logger:   logger,
		byUser:   map[string]*userFeed{},
	}
}

// Subscribe opens a stream of userID's events. The returned func must be
// called to release it.
func (f *Feed) Subscribe(userID string) (<-chan contracts.TodoEvent, func(), error) {
	f.mu.Lock()
	uf, ok := f.byUser[userID]
	if !ok {
		uf = &userFeed{
			userID:      userID,
			listener:    f.listener,
			logger:      f.logger,
			subscribers: map[uint64]chan contracts.TodoEvent{},
		}
		f.byUser[userID] = uf
	}
	f.mu.Unlock()

	id, ch, err := uf.add()
	if err != nil {
		f.dropIfEmpty(userID, uf)
		return nil, nil, err
	}
	feedSubscribers.Inc()

	var once sync.Once
	release := func() {
		once.Do(func() {
			feedSubscribers.Dec()
			if uf.remove(id) {
				f.dropIfEmpty(userID, uf)
			}
		})
	}
	return ch, release, nil
}

// Streams reports how many streams are open for userID.
func (f *Feed) Streams(userID string) int {
	f.mu.Lock()
	uf, ok := f.byUser[userID]
	f.mu.Unlock()
	if !ok {
		return 0
	}
	uf.mu.Lock()
	defer uf.mu.Unlock()
	return len(uf.subscribers)
}

func (f *Feed) dropIfEmpty(userID string, uf *userFeed) {
	uf.mu.Lock()
	empty := len(uf.subscribers) == 0
	uf.mu.Unlock()
	if !empty {
		return
	}
	f.mu.Lock()
	if current, ok := f.byUser[userID]; ok && current == uf {
		delete(f.byUser, userID)
	}
	f.mu.Unlock()
}

func (u *userFeed) add() (uint64, chan contracts.TodoEvent, error) {
	ch := make(chan contracts.TodoEvent, feedBuffer)

	u.mu.Lock()
	u.nextID++
	id := u.nextID
	u.subscribers[id] = ch
	u.mu.Unlock()

	if err := u.ensureListening(); err != nil {
		u.mu.Lock()
		delete(u.subscribers, id)
		u.mu.Unlock()
		return 0, nil, err
	}
	return id, ch, nil
}

// remove reports whether the last subscriber left, in which case the
// upstream subscription has been stopped.
func (u *userFeed) remove(id uint64) bool {
	u.mu.Lock()
	delete(u.subscribers, id)
	if len(u.subscribers) > 0 {
		u.mu.Unlock()
		return false
	}
	stop := u.stop
	u.stop = nil
	u.mu.Unlock()

	if stop != nil {
		stop()
	}
	return true
}

func (u *userFeed) ensureListening() error {
	u.mu.Lock()
	if u.stop != nil {
		u.mu.Unlock()
		return nil
	}
	u.mu.Unlock()

	if u.listener == nil {
		return fmt.Errorf("change feed is not configured")
	}
	stop, err := u.listener.Listen(sharding.UserEventSubject(u.userID), u.handle)
	if err != nil {
		return err
	}

	u.mu.Lock()
	if u.stop != nil {
		u.mu.Unlock()
		stop()
		return nil
	}
	u.stop = stop
	u.mu.Unlock()
	return nil
}

func (u *userFeed) handle(payload []byte) {
	var event contracts.TodoEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		u.logger.Warn("dropping malformed todo event", "user_id", u.userID, "err", err)
		return
	}
	if event.UserID != u.userID {
		return
	}
	u.broadcast(event)
}

func (u *userFeed) broadcast(event contracts.TodoEvent) {
	u.mu.Lock()
	subs := make([]chan contracts.TodoEvent, 0, len(u.subscribers))
	for _, ch := range u.subscribers {
		subs = append(subs, ch)
	}
	u.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "change feed disabled", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	userID := currentIdentity(r).UserID
	events, release, err := s.feed.Subscribe(userID)
	if err != nil {
		s.logger.Error("change feed subscribe", "user_id", userID, "err", err)
		http.Error(w, "stream subscription failed", http.StatusServiceUnavailable)
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(feedKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: todo\ndata: %s\n\n", event.EventID, payload)
			flusher.Flush()
		}
	}
}
