// Package bus provides the in-process event bus that carries chat lines and
// transfer progress between components.
package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	EventAgentStarted EventType = "agent.started"
	EventAgentStopped EventType = "agent.stopped"

	// EventChatReceived carries every chat line the bridge sees; the ack
	// listener picks acknowledgements out of it.
	EventChatReceived EventType = "chat.received"

	EventTradeState    EventType = "trade.state"
	EventTradeFinished EventType = "trade.finished"

	EventCollectMember   EventType = "collect.member"
	EventCollectFinished EventType = "collect.finished"
)

// Event represents a bus event.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Source    string          `json:"source"`
	Target    string          `json:"target,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// NewEvent encodes data into a new event stamped with the current time.
func NewEvent(eventType EventType, source string, data any) (*Event, error) {
	e := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		e.Data = raw
	}
	return e, nil
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// ParseData decodes the payload into v. An event without payload leaves v
// untouched.
func (e *Event) ParseData(v any) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// ChatEventData carries one raw chat line from the game client.
type ChatEventData struct {
	Line string `json:"line"`
}

// TradeEventData describes a trade session transition or its final result.
type TradeEventData struct {
	SessionID string   `json:"session_id"`
	Giver     string   `json:"giver"`
	Receiver  string   `json:"receiver"`
	State     string   `json:"state"`
	Offered   []string `json:"offered,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
	Batches   int      `json:"batches,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// CollectEventData describes one roster member's outcome.
type CollectEventData struct {
	SessionID string        `json:"session_id"`
	Collector string        `json:"collector"`
	Member    string        `json:"member"`
	Outcome   string        `json:"outcome"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
}
