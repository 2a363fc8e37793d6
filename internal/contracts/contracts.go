package contracts

import "time"

// Todo change kinds carried on the per-user feed.
const (
	TodoCreated = "todo.created"
	TodoUpdated = "todo.updated"
	TodoToggled = "todo.toggled"
	TodoDeleted = "todo.deleted"
)

// TodoEvent is published after a todo mutation succeeds and is fanned out
// to the owner's open pages over SSE.
type TodoEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	TodoID     string    `json:"todo_id"`
	UserID     string    `json:"user_id"`
	Date       string    `json:"date"`
	Completed  bool      `json:"completed"`
	OccurredAt time.Time `json:"occurred_at"`
	ShardID    int       `json:"shard_id"`
}

// CalendarMonth is the JSON shape of one month grid.
type CalendarMonth struct {
	Month string        `json:"month"`
	Prev  string        `json:"prev"`
	Next  string        `json:"next"`
	Days  []CalendarDay `json:"days"`
}

// CalendarDay is one of the 42 grid cells. Status is empty for cells without
// todos and for the neighbouring months' overflow cells.
type CalendarDay struct {
	Date    string `json:"date"`
	Day     int    `json:"day"`
	InMonth bool   `json:"in_month"`
	Today   bool   `json:"today"`
	Count   int    `json:"count"`
	Status  string `json:"status,omitempty"`
}
