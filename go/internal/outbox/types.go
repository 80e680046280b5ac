package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one row of the transactional outbox: a domain event written
// in the same transaction as the state change it describes, relayed to the
// bus by the worker.
type OutboxEvent struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	EventType string    `json:"event_type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// EventPublisher delivers outbox events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
