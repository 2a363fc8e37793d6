package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daily-planner/planner/internal/app/identity"
	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/platform/env"
	"github.com/daily-planner/planner/internal/platform/logging"
	"github.com/daily-planner/planner/internal/platform/metrics"
)

type config struct {
	APIBase                 string
	Users                   int
	SetupConcurrency        int
	StartupWait             time.Duration
	Duration                time.Duration
	RampUp                  time.Duration
	ActionsPerUserPerSecond float64
	RequestTimeout          time.Duration
	MetricsAddr             string
	Password                string
	DaySpread               int
	EnableFeed              bool
}

// simulatedUser owns one account and the ids of the todos it created.
type simulatedUser struct {
	Index int
	Email string
	API   *client.Client

	mu    sync.Mutex
	todos []client.Todo
}

type runner struct {
	cfg    config
	runID  string
	logger *log.Logger
	stream *http.Client

	activeVUs  atomic.Int64
	activeFeed atomic.Int64
}

var (
	actionsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "planner_loadgen_actions_total",
		Help: "Planner actions executed by the load generator.",
	}, []string{"action", "outcome"})

	virtualUsersGauge = metrics.NewGauge(metrics.Opts{
		Name: "planner_loadgen_virtual_users",
		Help: "Virtual users currently sending actions.",
	})

	feedUsersGauge = metrics.NewGauge(metrics.Opts{
		Name: "planner_loadgen_feed_connected_users",
		Help: "Virtual users holding an open /events stream.",
	})
)

func init() {
	metrics.Default.MustRegister(actionsTotal, virtualUsersGauge, feedUsersGauge)
}

// Search terms drawn from the same vocabulary as the generated titles so
// most queries have hits.
var (
	verbs   = []string{"Buy", "Call", "Book", "Fix", "Plan", "Review", "Pay", "Clean"}
	objects = []string{"milk", "mom", "dentist", "bike", "trip", "report", "rent", "kitchen"}
)

func main() {
	cfg := loadConfig()
	logger := logging.New(env.String("LOADGEN_LOG_LEVEL", "info"), "text").WithPrefix("loadgen")
	if cfg.Users <= 0 || cfg.SetupConcurrency <= 0 {
		logger.Fatal("LOADGEN_USERS and LOADGEN_SETUP_CONCURRENCY must be > 0")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	go runMetricsServer(logger, cfg.MetricsAddr)

	r := &runner{
		cfg:    cfg,
		runID:  strconv.FormatInt(time.Now().UTC().UnixNano(), 36),
		logger: logger,
		stream: &http.Client{},
	}

	if err := r.waitForReady(ctx); err != nil {
		logger.Fatal("planner web not ready", "base", cfg.APIBase, "err", err)
	}

	users := r.setupUsers(ctx)
	if len(users) == 0 {
		logger.Fatal("failed to initialize any users")
	}
	logger.Info("load generator initialized",
		"users", len(users), "duration", cfg.Duration, "feed", cfg.EnableFeed, "rate_per_user", cfg.ActionsPerUserPerSecond)

	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func(u *simulatedUser) {
			defer wg.Done()
			r.runUser(ctx, u)
		}(user)
	}

	<-ctx.Done()
	wg.Wait()
	logger.Info("load test complete",
		"ok_actions", actionCount("ok"), "failed_actions", actionCount("error"))
}

func loadConfig() config {
	return config{
		APIBase:                 strings.TrimRight(env.String("LOADGEN_API_BASE", env.DefaultAPIBase), "/"),
		Users:                   env.Int("LOADGEN_USERS", 50),
		SetupConcurrency:        env.Int("LOADGEN_SETUP_CONCURRENCY", 10),
		StartupWait:             env.Duration("LOADGEN_STARTUP_WAIT", 2*time.Minute),
		Duration:                env.Duration("LOADGEN_DURATION", 5*time.Minute),
		RampUp:                  env.Duration("LOADGEN_RAMP_UP", 30*time.Second),
		ActionsPerUserPerSecond: env.Float("LOADGEN_ACTIONS_PER_USER_PER_SECOND", 0.5),
		RequestTimeout:          env.Duration("LOADGEN_REQUEST_TIMEOUT", 10*time.Second),
		MetricsAddr:             env.String("LOADGEN_METRICS_ADDR", ":9099"),
		Password:                env.String("LOADGEN_PASSWORD", "load-test-pass-123"),
		DaySpread:               env.Int("LOADGEN_DAY_SPREAD", 21),
		EnableFeed:              env.Bool("LOADGEN_ENABLE_FEED", true),
	}
}

func (r *runner) waitForReady(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.StartupWait)
	health := &http.Client{Timeout: 3 * time.Second}
	var lastErr error
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIBase+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := health.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("status %d", resp.StatusCode)
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return lastErr
}

func (r *runner) setupUsers(ctx context.Context) []*simulatedUser {
	var (
		mu    sync.Mutex
		users []*simulatedUser
		wg    sync.WaitGroup
	)
	slots := make(chan struct{}, r.cfg.SetupConcurrency)
	for i := 0; i < r.cfg.Users; i++ {
		wg.Add(1)
		slots <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-slots }()
			u, err := r.setupUser(ctx, idx)
			if err != nil {
				r.logger.Warn("user setup failed", "user", idx, "err", err)
				return
			}
			mu.Lock()
			users = append(users, u)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	return users
}

func (r *runner) setupUser(ctx context.Context, idx int) (*simulatedUser, error) {
	u := &simulatedUser{
		Index: idx,
		Email: fmt.Sprintf("load-%s-%d@example.com", r.runID, idx),
		API:   client.New(r.cfg.APIBase, r.cfg.RequestTimeout),
	}
	if _, err := u.API.Register(ctx, u.Email, r.cfg.Password); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *runner) runUser(ctx context.Context, u *simulatedUser) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(u.Index)))

	if r.cfg.RampUp > 0 && r.cfg.Users > 1 {
		delay := time.Duration(int64(r.cfg.RampUp) * int64(u.Index) / int64(r.cfg.Users))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	if r.cfg.EnableFeed {
		go r.runFeedLoop(ctx, u)
	}

	r.activeVUs.Add(1)
	virtualUsersGauge.Inc()
	defer func() {
		r.activeVUs.Add(-1)
		virtualUsersGauge.Dec()
	}()

	interval := time.Duration(float64(time.Second) / r.cfg.ActionsPerUserPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAction(ctx, u, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, u *simulatedUser, rng *rand.Rand) {
	var (
		action string
		err    error
	)
	todo, ok := u.randomTodo(rng)
	switch roll := rng.Intn(100); {
	case !ok || roll < 35:
		action, err = "create", r.createTodo(ctx, u, rng)
	case roll < 55:
		action = "toggle"
		_, err = u.API.SetCompleted(ctx, todo.ID, !todo.Completed)
	case roll < 70:
		action = "calendar"
		_, err = u.API.Calendar(ctx, todo.Date[:7])
	case roll < 76:
		action = "day"
		_, err = u.API.Day(ctx, todo.Date)
	case roll < 80:
		action, err = "week", weekAround(ctx, u, todo.Date)
	case roll < 93:
		action, err = "search", r.search(ctx, u, rng)
	default:
		action = "delete"
		if err = u.API.Delete(ctx, todo.ID); err == nil {
			u.removeTodo(todo.ID)
		}
	}
	outcome := "ok"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		outcome = "error"
		r.logger.Debug("action failed", "action", action, "user", u.Index, "err", err)
	}
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// weekAround lists the seven days centred on date, the window a week strip
// would fetch.
func weekAround(ctx context.Context, u *simulatedUser, date string) error {
	day, err := calendar.ParseDate(date)
	if err != nil {
		return err
	}
	from := calendar.FormatDate(day.AddDate(0, 0, -3))
	to := calendar.FormatDate(day.AddDate(0, 0, 3))
	_, err = u.API.Range(ctx, from, to)
	return err
}

func (r *runner) createTodo(ctx context.Context, u *simulatedUser, rng *rand.Rand) error {
	offset := rng.Intn(2*r.cfg.DaySpread+1) - r.cfg.DaySpread
	date := calendar.FormatDate(time.Now().AddDate(0, 0, offset))
	title := verbs[rng.Intn(len(verbs))] + " " + objects[rng.Intn(len(objects))]
	desc := ""
	if rng.Intn(3) == 0 {
		desc = "generated by run " + r.runID
	}
	t, err := u.API.Create(ctx, title, desc, date)
	if err != nil {
		return err
	}
	u.addTodo(t)
	return nil
}

// search replays typing: every prefix from two characters on is sent with a
// rising sequence number, the way the inline search bar does.
func (r *runner) search(ctx context.Context, u *simulatedUser, rng *rand.Rand) error {
	term := objects[rng.Intn(len(objects))]
	for n := 2; n <= len(term); n++ {
		if _, err := u.API.Search(ctx, term[:n], uint64(n), 0); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) runFeedLoop(ctx context.Context, u *simulatedUser) {
	for {
		if err := r.readFeed(ctx, u); err != nil && ctx.Err() == nil {
			r.logger.Debug("feed stream ended", "user", u.Index, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (r *runner) readFeed(ctx context.Context, u *simulatedUser) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.APIBase+"/events", nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: identity.AccessCookie, Value: u.API.Session().AccessToken})
	req.Header.Set("Accept", "text/event-stream")

	resp, err := r.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	r.activeFeed.Add(1)
	feedUsersGauge.Inc()
	defer func() {
		r.activeFeed.Add(-1)
		feedUsersGauge.Dec()
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: todo") {
			actionsTotal.WithLabelValues("feed_event", "ok").Inc()
		}
	}
	return scanner.Err()
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("progress",
				"ok_actions", actionCount("ok"),
				"failed_actions", actionCount("error"),
				"active_vus", r.activeVUs.Load(),
				"active_feeds", r.activeFeed.Load())
		}
	}
}

func actionCount(outcome string) float64 {
	var total float64
	for _, action := range []string{"create", "toggle", "calendar", "day", "week", "search", "delete"} {
		total += actionsTotal.Value(action, outcome)
	}
	return total
}

func runMetricsServer(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "err", err)
	}
}

func (u *simulatedUser) addTodo(t client.Todo) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.todos = append(u.todos, t)
}

func (u *simulatedUser) randomTodo(rng *rand.Rand) (client.Todo, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.todos) == 0 {
		return client.Todo{}, false
	}
	return u.todos[rng.Intn(len(u.todos))], true
}

func (u *simulatedUser) removeTodo(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, t := range u.todos {
		if t.ID != id {
			continue
		}
		u.todos[i] = u.todos[len(u.todos)-1]
		u.todos = u.todos[:len(u.todos)-1]
		return
	}
}
