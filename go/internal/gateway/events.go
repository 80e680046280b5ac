package gateway

import (
	"encoding/json"
	"time"

	"github.com/pennyrush/pennyrush/go/internal/events"
)

// GameEvent is the envelope pushed to WebSocket clients.
type GameEvent struct {
	ID        string          `json:"id"`        // Event UUID
	GameID    string          `json:"game_id"`   // Game UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of game event
type EventType string

// Timer display needs no tick events: clients count down from the ends_at
// carried on every event, and the server's expiry check stays authoritative.
const (
	EventTypeGameStarted       EventType = EventType(events.TypeGameStarted)
	EventTypeClickAccepted     EventType = EventType(events.TypeClickAccepted)
	EventTypeFinalPhaseEntered EventType = EventType(events.TypeFinalPhaseEntered)
	EventTypeGameEnded         EventType = EventType(events.TypeGameEnded)
)

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *GameEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeGameStarted:
		var payload events.GameStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeClickAccepted:
		var payload events.ClickAcceptedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeFinalPhaseEntered:
		var payload events.FinalPhaseEnteredPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeGameEnded:
		var payload events.GameEndedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
