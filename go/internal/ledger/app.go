package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/rs/zerolog/log"
)

// LedgerRepository defines what the app layer needs from the repository
type LedgerRepository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int64) error
	Credit(ctx context.Context, userID uuid.UUID, amount int64) error
}

// App handles credit ledger business logic
type App struct {
	repo LedgerRepository
}

// NewApp creates a new ledger App
func NewApp(repo LedgerRepository) *App {
	return &App{repo: repo}
}

// GetBalance returns a user's spendable balance.
func (a *App) GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	balance, err := a.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Debit removes credits from a user's balance. InsufficientFunds is terminal:
// the caller must not retry the same bid.
func (a *App) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit of %d: %w", amount, ErrInvalidAmount)
	}
	if err := a.repo.Debit(ctx, userID, amount); err != nil {
		return err
	}
	log.Debug().Str("user_id", userID.String()).Int64("amount", amount).Msg("debited credits")
	return nil
}

// Credit adds credits to a user's balance.
func (a *App) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit of %d: %w", amount, ErrInvalidAmount)
	}
	if err := a.repo.Credit(ctx, userID, amount); err != nil {
		return err
	}
	log.Info().Str("user_id", userID.String()).Int64("amount", amount).Msg("credited credits")
	return nil
}
