package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pennyrush/pennyrush/go/internal/auctionerrors"
	"github.com/pennyrush/pennyrush/go/internal/events"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/pennyrush/pennyrush/go/internal/sqlutil"
)

// LedgerStore defines what the game repository needs from the credit ledger.
// The debit runs inside the same transaction as the game mutation so both
// apply or neither does.
type LedgerStore interface {
	DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error
}

// OutboxStore defines what the game repository needs from the outbox.
type OutboxStore interface {
	InsertTx(ctx context.Context, tx pgx.Tx, eventType string, gameID uuid.UUID, payload []byte) error
}

// Repository implements game storage on Postgres.
//
// Every mutation is a conditional update scoped to the game row: the row is
// locked FOR UPDATE, admission is re-checked against the database clock
// inside the transaction, and the status/ends_at change commits atomically
// with the ledger debit, the click row and the outbox event. Two concurrent
// clicks therefore serialize on the row lock and each sees the other's
// committed ends_at, never a stale one.
type Repository struct {
	pool   *pgxpool.Pool
	ledger LedgerStore
	outbox OutboxStore
}

func NewRepository(pool *pgxpool.Pool, ledger LedgerStore, outbox OutboxStore) *Repository {
	return &Repository{
		pool:   pool,
		ledger: ledger,
		outbox: outbox,
	}
}

const gameColumns = `id, item_id, status, starts_at, ends_at, total_clicks,
	last_click_user_id, last_click_username, winner_id, created_at, updated_at`

func scanGame(row pgx.Row) (*models.Game, error) {
	var g models.Game
	err := row.Scan(&g.ID, &g.ItemID, &g.Status, &g.StartsAt, &g.EndsAt, &g.TotalClicks,
		&g.LastClickUserID, &g.LastClickUsername, &g.WinnerID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

type CreateGameRequest struct {
	ID       uuid.UUID         `json:"id"`
	ItemID   uuid.UUID         `json:"item_id"`
	Status   models.GameStatus `json:"status"`
	StartsAt time.Time         `json:"starts_at"`
	EndsAt   time.Time         `json:"ends_at"`
}

// CreateGame inserts a new game row.
func (r *Repository) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO games (id, item_id, status, starts_at, ends_at, total_clicks, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, now(), now())
		 RETURNING `+gameColumns,
		req.ID, req.ItemID, req.Status, req.StartsAt, req.EndsAt)

	game, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

// GetGame retrieves a game by ID.
func (r *Repository) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	game, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctionerrors.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// ListOpenGames returns games currently accepting clicks, soonest expiry first.
func (r *Repository) ListOpenGames(ctx context.Context) ([]models.Game, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM games
		 WHERE status IN ($1, $2)
		 ORDER BY ends_at ASC`,
		models.GameStatusActive, models.GameStatusFinalPhase)
	if err != nil {
		return nil, fmt.Errorf("failed to list open games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// ListClicks returns the most recent clicks for a game, newest first.
func (r *Repository) ListClicks(ctx context.Context, gameID uuid.UUID, limit int32) ([]models.Click, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, game_id, user_id, username, clicked_at FROM clicks
		 WHERE game_id = $1
		 ORDER BY clicked_at DESC, id DESC
		 LIMIT $2`,
		gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	var clicks []models.Click
	for rows.Next() {
		var c models.Click
		if err := rows.Scan(&c.ID, &c.GameID, &c.UserID, &c.Username, &c.ClickedAt); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, c)
	}
	return clicks, rows.Err()
}

type ApplyClickRequest struct {
	GameID              uuid.UUID     `json:"game_id"`
	UserID              uuid.UUID     `json:"user_id"`
	Username            string        `json:"username"`
	Cost                int64         `json:"cost"`
	FinalPhaseThreshold time.Duration `json:"final_phase_threshold"`
	TimerReset          time.Duration `json:"timer_reset"`
}

// ClickResult is the post-click snapshot returned to the caller.
type ClickResult struct {
	Game              models.Game  `json:"game"`
	Click             models.Click `json:"click"`
	EnteredFinalPhase bool         `json:"entered_final_phase"`
}

// ApplyClick admits and applies one click in a single transaction:
//
//	lock game row → re-check open + not expired against the DB clock →
//	conditional ledger debit → status/ends_at transition → click row →
//	outbox events → commit.
//
// A rejection at any step rolls back everything, so a rejected bid never
// moves total_clicks, last_click_*, ends_at or the persisted balance.
func (r *Repository) ApplyClick(ctx context.Context, req ApplyClickRequest) (*ClickResult, error) {
	var res ClickResult
	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var g models.Game
		var now time.Time
		err := tx.QueryRow(ctx,
			`SELECT `+gameColumns+`, now() FROM games WHERE id = $1 FOR UPDATE`,
			req.GameID,
		).Scan(&g.ID, &g.ItemID, &g.Status, &g.StartsAt, &g.EndsAt, &g.TotalClicks,
			&g.LastClickUserID, &g.LastClickUsername, &g.WinnerID, &g.CreatedAt, &g.UpdatedAt, &now)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return auctionerrors.ErrGameNotFound
			}
			return fmt.Errorf("failed to lock game: %w", err)
		}

		if !g.Status.IsOpen() {
			return auctionerrors.ErrGameNotOpen
		}
		if !g.EndsAt.After(now) {
			// Expired but not yet swept; the sweeper will end it.
			return auctionerrors.ErrGameExpired
		}

		if err := r.ledger.DebitTx(ctx, tx, req.UserID, req.Cost); err != nil {
			return err
		}

		// Final-phase rule: any click inside the threshold, and every click
		// while already in the final phase, resets the countdown.
		newStatus := g.Status
		newEndsAt := g.EndsAt
		resets := g.Status == models.GameStatusFinalPhase || g.EndsAt.Sub(now) <= req.FinalPhaseThreshold
		if resets {
			newStatus = models.GameStatusFinalPhase
			newEndsAt = now.Add(req.TimerReset)
		}
		entered := g.Status == models.GameStatusActive && newStatus == models.GameStatusFinalPhase

		row := tx.QueryRow(ctx,
			`UPDATE games
			 SET status = $2, ends_at = $3, total_clicks = total_clicks + 1,
			     last_click_user_id = $4, last_click_username = $5, updated_at = $6
			 WHERE id = $1
			 RETURNING `+gameColumns,
			g.ID, newStatus, newEndsAt, req.UserID, req.Username, now)
		updated, err := scanGame(row)
		if err != nil {
			return fmt.Errorf("failed to apply click: %w", err)
		}

		click := models.Click{
			ID:        uuid.New(),
			GameID:    g.ID,
			UserID:    req.UserID,
			Username:  req.Username,
			ClickedAt: now,
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO clicks (id, game_id, user_id, username, clicked_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			click.ID, click.GameID, click.UserID, click.Username, click.ClickedAt); err != nil {
			return fmt.Errorf("failed to insert click: %w", err)
		}

		payload, err := json.Marshal(events.ClickAcceptedPayload{
			ClickID:     click.ID.String(),
			GameID:      g.ID.String(),
			UserID:      req.UserID.String(),
			Username:    req.Username,
			TotalClicks: updated.TotalClicks,
			Status:      string(updated.Status),
			EndsAt:      updated.EndsAt,
			ClickedAt:   click.ClickedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal ClickAccepted payload: %w", err)
		}
		if err := r.outbox.InsertTx(ctx, tx, events.TypeClickAccepted, g.ID, payload); err != nil {
			return err
		}

		if entered {
			payload, err := json.Marshal(events.FinalPhaseEnteredPayload{
				GameID:    g.ID.String(),
				EnteredAt: now,
				EndsAt:    updated.EndsAt,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal FinalPhaseEntered payload: %w", err)
			}
			if err := r.outbox.InsertTx(ctx, tx, events.TypeFinalPhaseEntered, g.ID, payload); err != nil {
				return err
			}
		}

		res = ClickResult{Game: *updated, Click: click, EnteredFinalPhase: entered}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ExpireGame transitions an overdue game to ended and freezes the winner.
// The guard on status and ends_at makes redundant invocations no-ops, so any
// number of observers may call it for the same game. Returns (nil, nil) when
// the game was not due (already ended, extended by a late click, or unknown).
func (r *Repository) ExpireGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	var ended *models.Game
	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE games
			 SET status = $2, winner_id = last_click_user_id, updated_at = now()
			 WHERE id = $1 AND status IN ($3, $4) AND ends_at <= now()
			 RETURNING `+gameColumns,
			gameID, models.GameStatusEnded, models.GameStatusActive, models.GameStatusFinalPhase)
		g, err := scanGame(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to expire game: %w", err)
		}

		winnerID := ""
		if g.WinnerID != nil {
			winnerID = g.WinnerID.String()
		}
		payload, err := json.Marshal(events.GameEndedPayload{
			GameID:         g.ID.String(),
			WinnerID:       winnerID,
			WinnerUsername: g.LastClickUsername,
			TotalClicks:    g.TotalClicks,
			EndedAt:        g.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal GameEnded payload: %w", err)
		}
		if err := r.outbox.InsertTx(ctx, tx, events.TypeGameEnded, g.ID, payload); err != nil {
			return err
		}

		ended = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

// ActivateScheduledGames opens waiting games whose start time has passed.
func (r *Repository) ActivateScheduledGames(ctx context.Context, limit int32) ([]models.Game, error) {
	var activated []models.Game
	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`UPDATE games SET status = $1, updated_at = now()
			 WHERE id IN (
			     SELECT id FROM games
			     WHERE status = $2 AND starts_at <= now()
			     ORDER BY starts_at ASC
			     LIMIT $3
			     FOR UPDATE SKIP LOCKED
			 )
			 RETURNING `+gameColumns,
			models.GameStatusActive, models.GameStatusWaiting, limit)
		if err != nil {
			return fmt.Errorf("failed to activate games: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			g, err := scanGame(rows)
			if err != nil {
				return fmt.Errorf("failed to scan activated game: %w", err)
			}
			activated = append(activated, *g)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, g := range activated {
			payload, err := json.Marshal(events.GameStartedPayload{
				GameID:    g.ID.String(),
				ItemID:    g.ItemID.String(),
				StartedAt: g.StartsAt,
				EndsAt:    g.EndsAt,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal GameStarted payload: %w", err)
			}
			if err := r.outbox.InsertTx(ctx, tx, events.TypeGameStarted, g.ID, payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// NextDeadline is the soonest timestamp at which some game needs attention:
// an open game's expiry or a waiting game's start.
type NextDeadline struct {
	GameID   uuid.UUID  `json:"game_id"`
	Deadline *time.Time `json:"deadline"`
}

// FetchNextDeadline returns the soonest pending deadline, or nil when no
// game is waiting or open.
func (r *Repository) FetchNextDeadline(ctx context.Context) (*NextDeadline, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, deadline FROM (
		     SELECT id, ends_at AS deadline FROM games WHERE status IN ($1, $2)
		     UNION ALL
		     SELECT id, starts_at AS deadline FROM games WHERE status = $3
		 ) d
		 ORDER BY deadline ASC
		 LIMIT 1`,
		models.GameStatusActive, models.GameStatusFinalPhase, models.GameStatusWaiting)

	var nd NextDeadline
	var deadline time.Time
	if err := row.Scan(&nd.GameID, &deadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch next deadline: %w", err)
	}
	nd.Deadline = &deadline
	return &nd, nil
}

// FetchGamesDue returns IDs of open games whose expiry has passed.
func (r *Repository) FetchGamesDue(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM games
		 WHERE status IN ($1, $2) AND ends_at <= now()
		 ORDER BY ends_at ASC
		 LIMIT $3`,
		models.GameStatusActive, models.GameStatusFinalPhase, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due games: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsRetryable reports whether err is a transient conflict worth retrying the
// same conditional update for: serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
