// Package notify carries typed state-change events from producers (worker,
// orchestrator, HTTP handlers) to connected event-stream clients.
package notify

import (
	"context"
	"time"
)

type EventType string

const (
	EventEmailFetched      EventType = "email_fetched"
	EventTeamSuggested     EventType = "team_suggested"
	EventTeamAssigned      EventType = "team_assigned"
	EventAgenticProgress   EventType = "agentic_progress"
	EventAgenticMessage    EventType = "agentic_message"
	EventAgenticCompleted  EventType = "agentic_completed"
	EventAgenticFailed     EventType = "agentic_failed"
	EventStatisticsUpdated EventType = "statistics_updated"
	EventFetchCompleted    EventType = "fetch_completed"
)

// Event is one server push. Data is a small JSON-serialisable payload that
// identifies the affected email or task.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// Publisher accepts events for delivery. Publish never blocks on slow
// consumers and never fails the caller; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Multi fans a single Publish out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) {
	for _, p := range m {
		p.Publish(ctx, evt)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
