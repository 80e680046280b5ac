package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeStore holds events in memory and mimics the transactional contract:
// a failed handle leaves the event pending.
type fakeStore struct {
	mu      sync.Mutex
	pending []OutboxEvent
}

func (s *fakeStore) add(eventType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, OutboxEvent{
		ID:        uuid.New(),
		GameID:    uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now(),
	})
}

func (s *fakeStore) ProcessPending(ctx context.Context, limit int32, handle func(OutboxEvent) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	var remaining []OutboxEvent
	for i, event := range s.pending {
		if int32(i) >= limit {
			remaining = append(remaining, event)
			continue
		}
		if err := handle(event); err != nil {
			remaining = append(remaining, event)
			continue
		}
		sent++
	}
	s.pending = remaining
	return sent, nil
}

func (s *fakeStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	failTypes map[string]bool
}

func (p *fakePublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTypes[event.EventType] {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestWorkerRelaysPendingEvents(t *testing.T) {
	store := &fakeStore{}
	store.add("click_accepted")
	store.add("game_ended")

	publisher := &fakePublisher{}
	worker := NewWorker(store, publisher, Config{
		PollInterval:      10 * time.Millisecond,
		BatchSize:         100,
		HealthyMaxPending: 10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))
	defer worker.Stop()

	require.Eventually(t, func() bool {
		return publisher.count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestWorkerKeepsFailedEventsPending(t *testing.T) {
	store := &fakeStore{}
	store.add("click_accepted")
	store.add("game_ended")

	publisher := &fakePublisher{failTypes: map[string]bool{"game_ended": true}}
	worker := NewWorker(store, publisher, Config{
		PollInterval:      10 * time.Millisecond,
		BatchSize:         100,
		HealthyMaxPending: 10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))
	defer worker.Stop()

	require.Eventually(t, func() bool {
		return publisher.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending)
}

func TestWorkerDoubleStartRejected(t *testing.T) {
	worker := NewWorker(&fakeStore{}, &fakePublisher{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, worker.Start(ctx))
	require.Error(t, worker.Start(ctx))
	require.NoError(t, worker.Stop())
	require.Error(t, worker.Stop())
}

func TestWorkerHealthy(t *testing.T) {
	store := &fakeStore{}
	worker := NewWorker(store, &fakePublisher{}, Config{
		PollInterval:      time.Hour,
		BatchSize:         100,
		HealthyMaxPending: 1,
	})

	ctx := context.Background()
	require.NoError(t, worker.Healthy(ctx))

	store.add("click_accepted")
	store.add("click_accepted")
	require.Error(t, worker.Healthy(ctx))
}
