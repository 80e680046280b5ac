package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements outbox storage on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTx appends an event inside the caller's transaction. This is the only
// write path: events exist iff the state change that produced them committed.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, eventType string, gameID uuid.UUID, payload []byte) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO game_outbox (id, game_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), gameID, eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

// FetchUnsentTx claims up to limit unsent events with row locking so
// concurrent relay workers never double-publish a row they both hold.
func (r *Repository) FetchUnsentTx(ctx context.Context, tx pgx.Tx, limit int32) ([]OutboxEvent, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, game_id, event_type, payload, created_at
		 FROM game_outbox
		 WHERE sent_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.GameID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkSentTx marks one event as published.
func (r *Repository) MarkSentTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx,
		`UPDATE game_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

// ProcessPending claims a batch of unsent events, runs handle on each, and
// marks the ones that handled cleanly as sent, all in one transaction. A
// handler failure leaves that row unsent for the next poll. Returns how many
// events were handled successfully.
func (r *Repository) ProcessPending(ctx context.Context, limit int32, handle func(OutboxEvent) error) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	events, err := r.FetchUnsentTx(ctx, tx, limit)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	sent := 0
	for _, event := range events {
		if err := handle(event); err != nil {
			continue
		}
		if err := r.MarkSentTx(ctx, tx, event.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit outbox transaction: %w", err)
	}
	return sent, nil
}

// PendingCount returns the unsent backlog size, used for lag metrics and the
// health check.
func (r *Repository) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM game_outbox WHERE sent_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}
