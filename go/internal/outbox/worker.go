package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds relay worker settings.
type Config struct {
	PollInterval      time.Duration
	BatchSize         int32
	HealthyMaxPending int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		BatchSize:         100,
		HealthyMaxPending: 1000,
	}
}

// BatchStore is what the worker needs from outbox storage.
type BatchStore interface {
	ProcessPending(ctx context.Context, limit int32, handle func(OutboxEvent) error) (int, error)
	PendingCount(ctx context.Context) (int, error)
}

// Worker polls the outbox and relays unsent events to the publisher. Events
// that fail to publish stay unsent and are retried on the next poll.
type Worker struct {
	store     BatchStore
	publisher EventPublisher
	config    Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(store BatchStore, publisher EventPublisher, cfg Config) *Worker {
	return &Worker{
		store:     store,
		publisher: publisher,
		config:    cfg,
		stopChan:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processOutbox(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	sent, err := w.store.ProcessPending(ctx, w.config.BatchSize, func(event OutboxEvent) error {
		if err := w.publisher.Publish(ctx, event); err != nil {
			eventsPublished.WithLabelValues(event.EventType, "failure").Inc()
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to publish outbox event")
			return err
		}
		eventsPublished.WithLabelValues(event.EventType, "success").Inc()
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("outbox batch failed")
		return
	}
	if sent > 0 {
		batchSize.Observe(float64(sent))
	}

	if pending, err := w.store.PendingCount(ctx); err == nil {
		outboxLag.Set(float64(pending))
	}
}

// Healthy reports whether the relay is keeping up with the outbox backlog.
func (w *Worker) Healthy(ctx context.Context) error {
	pending, err := w.store.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("outbox store unreachable: %w", err)
	}
	if pending > w.config.HealthyMaxPending {
		return fmt.Errorf("outbox backlog too large: %d pending", pending)
	}
	return nil
}
