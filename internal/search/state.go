package search

import "sync"

type State string

const (
	StateIdle       State = "idle"
	StateSearching  State = "searching"
	StateHasResults State = "has-results"
	StateNoResults  State = "no-results"
)

// Tracker drives the idle/searching/results state machine and tags each
// request with a sequence number so that late responses for superseded
// queries are dropped.
type Tracker struct {
	mu    sync.Mutex
	seq   uint64
	state State
	query string
}

func NewTracker() *Tracker {
	return &Tracker{state: StateIdle}
}

// Begin records a new query. It returns the request's sequence number and
// whether a request should be issued at all. A non-qualifying query moves the
// tracker to idle and invalidates anything in flight.
func (t *Tracker) Begin(query string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.query = Normalize(query)
	if !Qualifies(query) {
		t.state = StateIdle
		return t.seq, false
	}
	t.state = StateSearching
	return t.seq, true
}

// Complete applies a response. It returns false, leaving state untouched,
// when seq is not the latest request.
func (t *Tracker) Complete(seq uint64, results int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.seq || t.state != StateSearching {
		return false
	}
	if results > 0 {
		t.state = StateHasResults
	} else {
		t.state = StateNoResults
	}
	return true
}

// Reset returns to idle, e.g. after a result is selected.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.seq++
	t.state = StateIdle
	t.query = ""
	t.mu.Unlock()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Query() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query
}

func (t *Tracker) Current(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seq == t.seq
}

// StateFor derives the settled state of a one-shot search such as the
// full-page results.
func StateFor(query string, results int) State {
	switch {
	case !Qualifies(query):
		return StateIdle
	case results > 0:
		return StateHasResults
	default:
		return StateNoResults
	}
}
