package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/auction/repository"
	"github.com/pennyrush/pennyrush/go/internal/auctionerrors"
	"github.com/pennyrush/pennyrush/go/internal/ledger"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/rs/zerolog/log"
)

// maxClickAttempts bounds automatic retries of the conditional click update
// on transient storage conflicts.
const maxClickAttempts = 3

// GameRepository defines what the app layer needs from the game repository
type GameRepository interface {
	CreateGame(ctx context.Context, req repository.CreateGameRequest) (*models.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListOpenGames(ctx context.Context) ([]models.Game, error)
	ListClicks(ctx context.Context, gameID uuid.UUID, limit int32) ([]models.Click, error)
	ApplyClick(ctx context.Context, req repository.ApplyClickRequest) (*repository.ClickResult, error)
	ExpireGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error)
	ActivateScheduledGames(ctx context.Context, limit int32) ([]models.Game, error)
	FetchNextDeadline(ctx context.Context) (*repository.NextDeadline, error)
	FetchGamesDue(ctx context.Context, limit int32) ([]uuid.UUID, error)
}

// DedupGuard suppresses duplicate in-flight click submissions. Begin returns
// false when the same key is already being processed; End releases the key.
type DedupGuard interface {
	Begin(ctx context.Context, key string) (bool, error)
	End(ctx context.Context, key string)
}

// IdentityClient resolves display usernames for click attribution.
type IdentityClient interface {
	GetUsername(ctx context.Context, userID uuid.UUID) (string, error)
}

// App is the authoritative auction state machine. Every game mutation in the
// system goes through it.
type App struct {
	repo     GameRepository
	dedup    DedupGuard
	identity IdentityClient
	rules    Rules
}

// NewApp creates a new auction App
func NewApp(repo GameRepository, dedup DedupGuard, identity IdentityClient, rules Rules) *App {
	return &App{
		repo:     repo,
		dedup:    dedup,
		identity: identity,
		rules:    rules,
	}
}

// Rules returns the game mechanics this app runs with.
func (a *App) Rules() Rules {
	return a.rules
}

// SubmitClick admits and applies one bid. requestID is the client's
// idempotency token for duplicate in-flight suppression; a fresh one is
// generated when the client sends none.
//
// Rejections (ErrGameNotOpen, ErrGameExpired, ledger.ErrInsufficientFunds,
// ErrDuplicateClick) are terminal for this bid and leave game state and the
// persisted balance untouched.
func (a *App) SubmitClick(ctx context.Context, gameID, userID uuid.UUID, requestID string) (*repository.ClickResult, error) {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	key := fmt.Sprintf("click:%s:%s:%s", gameID, userID, requestID)
	ok, err := a.dedup.Begin(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate click: %w", err)
	}
	if !ok {
		clicksRejected.WithLabelValues("duplicate").Inc()
		return nil, auctionerrors.ErrDuplicateClick
	}
	defer a.dedup.End(ctx, key)

	username, err := a.identity.GetUsername(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username: %w", err)
	}

	req := repository.ApplyClickRequest{
		GameID:              gameID,
		UserID:              userID,
		Username:            username,
		Cost:                a.rules.ClickCost,
		FinalPhaseThreshold: a.rules.FinalPhaseThreshold,
		TimerReset:          a.rules.TimerReset,
	}

	var res *repository.ClickResult
	for attempt := 1; attempt <= maxClickAttempts; attempt++ {
		res, err = a.repo.ApplyClick(ctx, req)
		if err == nil || !repository.IsRetryable(err) {
			break
		}
		log.Warn().
			Err(err).
			Str("game_id", gameID.String()).
			Int("attempt", attempt).
			Msg("click conflict, retrying")
	}
	if err != nil {
		if repository.IsRetryable(err) {
			clicksRejected.WithLabelValues("conflict").Inc()
			return nil, auctionerrors.ErrConflict
		}
		a.countRejection(err)
		return nil, err
	}

	clicksAccepted.Inc()
	if res.EnteredFinalPhase {
		finalPhaseEntered.Inc()
	}
	log.Info().
		Str("game_id", gameID.String()).
		Str("user_id", userID.String()).
		Str("username", username).
		Int("total_clicks", res.Game.TotalClicks).
		Bool("final_phase", res.Game.Status == models.GameStatusFinalPhase).
		Time("ends_at", res.Game.EndsAt).
		Msg("click accepted")
	return res, nil
}

func (a *App) countRejection(err error) {
	switch {
	case errors.Is(err, auctionerrors.ErrGameNotFound):
		clicksRejected.WithLabelValues("not_found").Inc()
	case errors.Is(err, auctionerrors.ErrGameNotOpen):
		clicksRejected.WithLabelValues("not_open").Inc()
	case errors.Is(err, auctionerrors.ErrGameExpired):
		clicksRejected.WithLabelValues("expired").Inc()
	case errors.Is(err, ledger.ErrInsufficientFunds):
		clicksRejected.WithLabelValues("insufficient_funds").Inc()
	default:
		clicksRejected.WithLabelValues("internal").Inc()
	}
}

// GetGame retrieves an authoritative game snapshot.
func (a *App) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	game, err := a.repo.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	return game, nil
}

// ListOpenGames returns games currently accepting clicks.
func (a *App) ListOpenGames(ctx context.Context) ([]models.Game, error) {
	games, err := a.repo.ListOpenGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open games: %w", err)
	}
	return games, nil
}

// ListClicks returns recent clicks for a game, newest first.
func (a *App) ListClicks(ctx context.Context, gameID uuid.UUID, limit int32) ([]models.Click, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	clicks, err := a.repo.ListClicks(ctx, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	return clicks, nil
}

// CreateGame creates a new game with validation.
func (a *App) CreateGame(ctx context.Context, itemID uuid.UUID, startsAt, endsAt time.Time) (*models.Game, error) {
	if itemID == uuid.Nil {
		return nil, fmt.Errorf("item id is required")
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("ends_at must be after starts_at")
	}

	status := models.GameStatusWaiting
	if !startsAt.After(time.Now()) {
		status = models.GameStatusActive
	}

	game, err := a.repo.CreateGame(ctx, repository.CreateGameRequest{
		ID:       uuid.New(),
		ItemID:   itemID,
		Status:   status,
		StartsAt: startsAt,
		EndsAt:   endsAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	log.Info().
		Str("game_id", game.ID.String()).
		Str("item_id", itemID.String()).
		Time("ends_at", endsAt).
		Msg("created game")
	return game, nil
}

// ExpireGame runs the idempotent expiry check for one game. Redundant
// invocations after the transition are no-ops and return the same terminal
// state via GetGame. Returns nil when the game was not due.
func (a *App) ExpireGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	game, err := a.repo.ExpireGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to expire game: %w", err)
	}
	if game == nil {
		return nil, nil
	}

	gamesEnded.Inc()
	evt := log.Info().
		Str("game_id", game.ID.String()).
		Int("total_clicks", game.TotalClicks)
	if game.WinnerID != nil {
		evt = evt.Str("winner_id", game.WinnerID.String()).Str("winner_username", game.LastClickUsername)
	} else {
		evt = evt.Bool("no_winner", true)
	}
	evt.Msg("game ended")
	return game, nil
}

// ActivateScheduledGames opens waiting games whose start time has passed.
func (a *App) ActivateScheduledGames(ctx context.Context, limit int32) ([]models.Game, error) {
	games, err := a.repo.ActivateScheduledGames(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to activate scheduled games: %w", err)
	}
	for _, g := range games {
		log.Info().Str("game_id", g.ID.String()).Time("ends_at", g.EndsAt).Msg("game activated")
	}
	return games, nil
}

// FetchNextDeadline exposes the soonest pending deadline to the sweeper.
func (a *App) FetchNextDeadline(ctx context.Context) (*repository.NextDeadline, error) {
	return a.repo.FetchNextDeadline(ctx)
}

// FetchGamesDue exposes overdue game IDs to the sweeper.
func (a *App) FetchGamesDue(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return a.repo.FetchGamesDue(ctx, limit)
}
