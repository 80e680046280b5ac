package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSPublisher publishes outbox events to a JetStream stream. Subjects are
// "<prefix>.<EventType>", e.g. "auction.events.ClickAccepted".
type NATSPublisher struct {
	js            jetstream.JetStream
	subjectPrefix string
}

// NewNATSPublisher wraps an existing NATS connection with a JetStream context.
func NewNATSPublisher(nc *nats.Conn, subjectPrefix string) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &NATSPublisher{
		js:            js,
		subjectPrefix: subjectPrefix,
	}, nil
}

// EnsureStream creates the stream for the publisher's subjects if it does not
// exist yet.
func (p *NATSPublisher) EnsureStream(ctx context.Context, streamName string) error {
	_, err := p.js.Stream(ctx, streamName)
	if err == nil {
		return nil
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{p.subjectPrefix + ".>"},
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	log.Info().Str("stream", streamName).Msg("created JetStream stream")
	return nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	subject := fmt.Sprintf("%s.%s", p.subjectPrefix, event.EventType)

	envelope := map[string]interface{}{
		"eventId":   event.ID.String(),
		"eventType": event.EventType,
		"gameId":    event.GameID.String(),
		"timestamp": event.CreatedAt,
		"payload":   json.RawMessage(event.Payload),
	}

	messageBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, messageBytes); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// LogPublisher is an in-memory publisher for development without a bus.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("game_id", event.GameID.String()).
		Msg("publishing event")
	return nil
}
