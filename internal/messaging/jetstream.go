package messaging

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	EventsStream  = "PLANNER_EVENTS"
	EventsSubject = "planner.event.>"

	// Feed consumers start from new messages, so old events are only kept
	// for inspection.
	eventsMaxAge = 24 * time.Hour
)

// EnsureStreams creates the todo change stream when it does not exist yet.
func EnsureStreams(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(EventsStream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      EventsStream,
		Subjects:  []string{EventsSubject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    eventsMaxAge,
		Replicas:  1,
	})
	return err
}
