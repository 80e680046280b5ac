package clock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pennyrush/pennyrush/go/internal/auction/repository"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// AuctionApp defines what the sweeper needs from the auction app.
type AuctionApp interface {
	FetchNextDeadline(ctx context.Context) (*repository.NextDeadline, error)
	FetchGamesDue(ctx context.Context, limit int32) ([]uuid.UUID, error)
	ExpireGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error)
	ActivateScheduledGames(ctx context.Context, limit int32) ([]models.Game, error)
}

// Sweeper is the server-side expiry observer: it sleeps until the soonest
// game deadline, then runs the idempotent expiry check for every overdue
// game. Clients polling remaining time may invoke the same check
// concurrently; the conditional transition keeps that safe.
type Sweeper struct {
	app        AuctionApp
	clock      Clock
	batchSize  int32
	wakeCh     chan struct{}
	instanceID string

	numWorkers int
	workCh     chan uuid.UUID

	// Track in-flight work so redundant due-lists don't double-queue a game.
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// NewSweeper creates a new expiry sweeper with a small worker pool.
func NewSweeper(app AuctionApp, batchSize int32) *Sweeper {
	numWorkers := 4
	return &Sweeper{
		app:        app,
		clock:      clockwork.NewRealClock(),
		batchSize:  batchSize,
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8],
		numWorkers: numWorkers,
		workCh:     make(chan uuid.UUID, numWorkers*2),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// WithClock swaps the clock; tests install a clockwork.FakeClock here.
func (s *Sweeper) WithClock(c Clock) *Sweeper {
	s.clock = c
	return s
}

// Wake nudges the sweeper to re-evaluate deadlines ahead of its timer, e.g.
// after a new game is created.
func (s *Sweeper) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run loops forever, sleeping until the next deadline and firing expiry
// checks. It returns when ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Int("workers", s.numWorkers).Msg("sweeper started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	defer func() {
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("sweeper shut down")
	}()

	timer := s.clock.NewTimer(0)
	defer timer.Stop()

	const idlePollDuration = 5 * time.Second

	for {
		select {
		case <-s.wakeCh:
		default:
		}

		if _, err := s.app.ActivateScheduledGames(ctx, s.batchSize); err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error activating scheduled games")
		}

		nd, err := s.app.FetchNextDeadline(ctx)
		if err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error fetching next deadline")
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if nd == nil || nd.Deadline == nil {
			// No waiting or open games; idle with timer reuse.
			timer.Reset(idlePollDuration)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				log.Info().Str("instance", s.instanceID).Msg("shutdown during idle")
				return nil
			case <-s.wakeCh:
				continue
			}
		}

		wait := nd.Deadline.Sub(s.clock.Now())
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				log.Info().Str("instance", s.instanceID).Msg("shutdown during wait")
				return nil
			case <-s.wakeCh:
				// A sooner deadline may exist now.
				continue
			}
		}

		due, err := s.app.FetchGamesDue(ctx, s.batchSize)
		if err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error fetching due games")
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				return nil
			}
		}

		queued := 0
		for _, gameID := range due {
			s.inFlightMu.Lock()
			if s.inFlight[gameID] {
				s.inFlightMu.Unlock()
				continue
			}
			s.inFlight[gameID] = true
			s.inFlightMu.Unlock()

			select {
			case <-ctx.Done():
				s.inFlightMu.Lock()
				delete(s.inFlight, gameID)
				s.inFlightMu.Unlock()
				log.Info().Str("instance", s.instanceID).Msg("shutdown while queueing expiries")
				return nil
			case s.workCh <- gameID:
				queued++
			}
		}

		if len(due) > 0 && queued == 0 {
			// Every due game is already with a worker. The deadline query will
			// keep returning them until the workers finish, so back off instead
			// of re-fetching in a tight loop.
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				return nil
			case <-s.wakeCh:
			}
		}
	}
}

// worker runs expiry checks from the work channel.
func (s *Sweeper) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case gameID, ok := <-s.workCh:
			if !ok {
				return
			}

			if _, err := s.app.ExpireGame(ctx, gameID); err != nil {
				log.Error().
					Err(err).
					Str("game_id", gameID.String()).
					Str("instance", s.instanceID).
					Int("worker_id", workerID).
					Msg("expiry check failed")

				// Keep the game marked in-flight through a short backoff so a
				// persistently failing expiry is not immediately re-queued.
				t := s.clock.NewTimer(time.Second)
				select {
				case <-t.Chan():
				case <-ctx.Done():
				}
				t.Stop()
			}

			s.inFlightMu.Lock()
			delete(s.inFlight, gameID)
			s.inFlightMu.Unlock()
		}
	}
}
