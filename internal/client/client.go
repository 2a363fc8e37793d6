// Package client talks to the planner's JSON API on behalf of the terminal
// client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/platform/metrics"
)

var requestsTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "planner_client_requests_total",
	Help: "API requests sent by the terminal client.",
}, []string{"endpoint", "method", "status", "outcome"})

func init() {
	metrics.Default.MustRegister(requestsTotal)
}

var ErrUnauthorized = errors.New("not signed in")

// APIError is a non-success response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("planner api: status %d", e.Status)
	}
	return fmt.Sprintf("planner api: %s (status %d)", e.Message, e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

type Session struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
}

type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t Todo) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

type SearchResult struct {
	Query string `json:"query"`
	Seq   uint64 `json:"seq"`
	State string `json:"state"`
	Todos []Todo `json:"todos"`
}

// Patch mirrors the API's partial update body; nil fields are left alone.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

type Client struct {
	base string
	http *http.Client

	mu      sync.Mutex
	session Session
	// OnSession is called after a refresh rotates the session tokens.
	OnSession func(Session)
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) Register(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "register", email, password, http.StatusCreated)
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	return c.authenticate(ctx, "login", email, password, http.StatusOK)
}

func (c *Client) authenticate(ctx context.Context, endpoint, email, password string, expected int) (Session, error) {
	var s Session
	_, err := c.do(ctx, endpoint, http.MethodPost, "/api/v1/auth/"+endpoint, map[string]string{
		"email":    email,
		"password": password,
	}, false, &s, expected)
	if err != nil {
		return Session{}, err
	}
	c.SetSession(s)
	return s, nil
}

// Logout revokes the current refresh token and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.Session().RefreshToken
	if refresh == "" {
		return nil
	}
	_, err := c.do(ctx, "logout", http.MethodPost, "/api/v1/auth/logout", map[string]string{"refresh_token": refresh}, false, nil, http.StatusNoContent)
	c.SetSession(Session{})
	return err
}

func (c *Client) refresh(ctx context.Context) error {
	refresh := c.Session().RefreshToken
	if refresh == "" {
		return ErrUnauthorized
	}
	var s Session
	if _, err := c.do(ctx, "refresh", http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, false, &s, http.StatusOK); err != nil {
		return err
	}
	c.SetSession(s)
	if c.OnSession != nil {
		c.OnSession(s)
	}
	return nil
}

func (c *Client) Day(ctx context.Context, date string) ([]Todo, error) {
	return c.list(ctx, "/api/v1/todos?date="+url.QueryEscape(date))
}

func (c *Client) Range(ctx context.Context, from, to string) ([]Todo, error) {
	return c.list(ctx, "/api/v1/todos?from="+url.QueryEscape(from)+"&to="+url.QueryEscape(to))
}

func (c *Client) list(ctx context.Context, path string) ([]Todo, error) {
	var resp struct {
		Todos []Todo `json:"todos"`
	}
	if _, err := c.authed(ctx, "list_todos", http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Todos, nil
}

func (c *Client) Create(ctx context.Context, title, description, date string) (Todo, error) {
	var t Todo
	_, err := c.authed(ctx, "create_todo", http.MethodPost, "/api/v1/todos", map[string]string{
		"title":       title,
		"description": description,
		"date":        date,
	}, &t, http.StatusCreated)
	return t, err
}

func (c *Client) Update(ctx context.Context, id string, p Patch) (Todo, error) {
	var t Todo
	_, err := c.authed(ctx, "update_todo", http.MethodPatch, "/api/v1/todos/"+url.PathEscape(id), p, &t, http.StatusOK)
	return t, err
}

func (c *Client) SetCompleted(ctx context.Context, id string, completed bool) (Todo, error) {
	return c.Update(ctx, id, Patch{Completed: &completed})
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.authed(ctx, "delete_todo", http.MethodDelete, "/api/v1/todos/"+url.PathEscape(id), nil, nil, http.StatusNoContent)
	return err
}

// Calendar fetches the month grid; an empty month means the server's current
// month.
func (c *Client) Calendar(ctx context.Context, month string) (contracts.CalendarMonth, error) {
	path := "/api/v1/calendar"
	if month != "" {
		path += "?month=" + url.QueryEscape(month)
	}
	var m contracts.CalendarMonth
	_, err := c.authed(ctx, "calendar", http.MethodGet, path, nil, &m, http.StatusOK)
	return m, err
}

// Search runs one query. limit <= 0 asks for every match.
func (c *Client) Search(ctx context.Context, query string, seq uint64, limit int) (SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("seq", strconv.FormatUint(seq, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res SearchResult
	_, err := c.authed(ctx, "search", http.MethodGet, "/api/v1/search?"+q.Encode(), nil, &res, http.StatusOK)
	return res, err
}

// authed sends a bearer request and retries it once after a refresh when the
// access token was rejected.
func (c *Client) authed(ctx context.Context, endpoint, method, path string, payload, out any, expected ...int) (int, error) {
	status, err := c.do(ctx, endpoint, method, path, payload, true, out, expected...)
	if !errors.Is(err, ErrUnauthorized) {
		return status, err
	}
	if rerr := c.refresh(ctx); rerr != nil {
		return status, err
	}
	return c.do(ctx, endpoint, method, path, payload, true, out, expected...)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, payload any, bearer bool, out any, expected ...int) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer {
		token := c.Session().AccessToken
		if token == "" {
			return 0, ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, method, "0", "error").Inc()
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	statusText := strconv.Itoa(resp.StatusCode)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, method, statusText, "error").Inc()
		return resp.StatusCode, err
	}
	for _, want := range expected {
		if resp.StatusCode != want {
			continue
		}
		requestsTotal.WithLabelValues(endpoint, method, statusText, "success").Inc()
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s response: %w", endpoint, err)
			}
		}
		return resp.StatusCode, nil
	}

	requestsTotal.WithLabelValues(endpoint, method, statusText, "error").Inc()
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		apiErr.Message = envelope.Error
	}
	return resp.StatusCode, apiErr
}
